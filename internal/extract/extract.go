// Package extract turns one file's source text into symbols, imports, call
// sites, type annotations and endpoint records. Extraction is file-local: no
// extractor ever sees another file.
package extract

import (
	"github.com/lodestone-ai/codegraph/internal/lang"
	"github.com/lodestone-ai/codegraph/internal/model"
)

// Result is everything one file contributes to a snapshot.
type Result struct {
	Symbols   []model.Symbol
	Imports   []model.Import
	Calls     []model.CallSite
	Types     []model.TypeAnnotation
	Endpoints []model.Endpoint
}

// Extractor parses one file and emits its entities. Implementations are pure:
// same input bytes produce the same output modulo generated ids.
type Extractor interface {
	Extract(src []byte, fileID, snapshotID string) (*Result, error)
}

// ForLanguage selects the extractor for a language by family tag.
func ForLanguage(l lang.Language) (Extractor, bool) {
	spec := lang.ForLanguage(l)
	if spec == nil {
		return nil, false
	}
	var inner Extractor
	switch spec.Family {
	case lang.FamilyPython:
		inner = &pythonExtractor{}
	case lang.FamilyJS:
		inner = &jsExtractor{language: l}
	case lang.FamilyGo:
		inner = &goExtractor{}
	default:
		return nil, false
	}
	return dedupingExtractor{inner: inner}, true
}

// dedupingExtractor collapses symbols that share one qualified name within a
// file. Python and JS allow redefinition at the same scope, e.g. a fallback
// def inside "except ImportError:", but a file holds at most one symbol per
// qualified name.
type dedupingExtractor struct {
	inner Extractor
}

func (d dedupingExtractor) Extract(src []byte, fileID, snapshotID string) (*Result, error) {
	res, err := d.inner.Extract(src, fileID, snapshotID)
	if err != nil {
		return nil, err
	}
	res.collapseDuplicateSymbols()
	return res, nil
}

// collapseDuplicateSymbols keeps the last definition of each qualified name,
// matching shadowing order, and rewrites call, type and endpoint references
// from dropped ids to the surviving one.
func (r *Result) collapseDuplicateSymbols() {
	last := make(map[string]int, len(r.Symbols))
	for i, s := range r.Symbols {
		last[s.QualName] = i
	}
	if len(last) == len(r.Symbols) {
		return
	}

	remap := make(map[string]string)
	kept := r.Symbols[:0]
	for i, s := range r.Symbols {
		if last[s.QualName] != i {
			remap[s.ID] = r.Symbols[last[s.QualName]].ID
			continue
		}
		kept = append(kept, s)
	}
	r.Symbols = kept

	for i := range r.Calls {
		if id, ok := remap[r.Calls[i].CallerSymbolID]; ok {
			r.Calls[i].CallerSymbolID = id
		}
	}
	for i := range r.Types {
		if id, ok := remap[r.Types[i].SymbolID]; ok {
			r.Types[i].SymbolID = id
		}
	}
	for i := range r.Endpoints {
		if id, ok := remap[r.Endpoints[i].SymbolID]; ok {
			r.Endpoints[i].SymbolID = id
		}
	}
}

// httpMethods are the verbs recognized by endpoint detection, lowercase.
var httpMethods = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true,
	"patch": true, "options": true, "head": true,
}

// joinScope builds a qualified name from the enclosing scope chain.
func joinScope(scope []string, name string) string {
	if len(scope) == 0 {
		return name
	}
	qual := scope[0]
	for _, s := range scope[1:] {
		qual += "." + s
	}
	return qual + "." + name
}

// stripQuotes removes one layer of surrounding string quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}
