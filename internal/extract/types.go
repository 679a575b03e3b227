package extract

import (
	"strings"

	"github.com/lodestone-ai/codegraph/internal/model"
)

var primitiveTypes = map[string]bool{
	// Python
	"int": true, "str": true, "float": true, "bool": true, "bytes": true,
	"None": true,
	// TypeScript
	"number": true, "string": true, "boolean": true, "void": true,
	"null": true, "undefined": true, "bigint": true, "symbol": true,
	// Go
	"int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true,
	"uint64": true, "float32": true, "float64": true, "byte": true,
	"rune": true, "error": true, "complex64": true, "complex128": true,
	"uintptr": true,
}

var anyTypes = map[string]bool{
	"Any": true, "any": true, "unknown": true, "object": true,
	"interface{}": true,
}

// categorize buckets a type expression by its lexical shape and reports
// optionality and array-ness. No semantic resolution is attempted.
func categorize(typeText string) (category model.TypeCategory, optional, isArray bool) {
	t := strings.TrimSpace(typeText)

	if strings.HasPrefix(t, "*") {
		optional = true
		t = strings.TrimPrefix(t, "*")
	}
	if inner, ok := unwrapBracket(t, "Optional"); ok {
		optional = true
		t = inner
	}
	if strings.HasSuffix(t, "| None") || strings.HasSuffix(t, "| null") ||
		strings.HasSuffix(t, "| undefined") {
		optional = true
	}
	if strings.HasPrefix(t, "[]") {
		isArray = true
		t = strings.TrimPrefix(t, "[]")
	}
	if strings.HasSuffix(t, "[]") {
		isArray = true
		t = strings.TrimSuffix(t, "[]")
	}
	for _, seq := range []string{"list", "List", "Array", "Sequence"} {
		if inner, ok := unwrapBracket(t, seq); ok {
			isArray = true
			t = inner
			break
		}
	}

	base := t
	if i := strings.IndexAny(t, "[<"); i > 0 {
		base = t[:i]
	}

	switch {
	case anyTypes[t] || anyTypes[base]:
		return model.TypeAny, optional, isArray
	case strings.Contains(t, "|") || base == "Union":
		return model.TypeUnion, optional, isArray
	case base == "Callable" || strings.HasPrefix(t, "func(") ||
		strings.Contains(t, "=>"):
		return model.TypeFunction, optional, isArray
	case strings.ContainsAny(t, "[<") || strings.HasPrefix(t, "map["):
		return model.TypeGeneric, optional, isArray
	case primitiveTypes[t]:
		return model.TypePrimitive, optional, isArray
	default:
		return model.TypeClass, optional, isArray
	}
}

// unwrapBracket returns the inner expression of wrapper[...] or wrapper<...>.
func unwrapBracket(t, wrapper string) (string, bool) {
	for _, pair := range [2][2]string{{"[", "]"}, {"<", ">"}} {
		prefix := wrapper + pair[0]
		if strings.HasPrefix(t, prefix) && strings.HasSuffix(t, pair[1]) {
			return strings.TrimSpace(t[len(prefix) : len(t)-1]), true
		}
	}
	return "", false
}

// newType builds a TypeAnnotation for a symbol from raw annotation text.
func newType(snapshotID, symbolID, typeText string) model.TypeAnnotation {
	category, optional, isArray := categorize(typeText)
	return model.TypeAnnotation{
		ID:         model.NewID(),
		SnapshotID: snapshotID,
		SymbolID:   symbolID,
		TypeName:   strings.TrimSpace(typeText),
		Category:   category,
		Optional:   optional,
		IsArray:    isArray,
	}
}
