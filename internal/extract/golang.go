package extract

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/lodestone-ai/codegraph/internal/lang"
	"github.com/lodestone-ai/codegraph/internal/model"
	"github.com/lodestone-ai/codegraph/internal/parser"
)

// goExtractor handles .go sources. Go imports are package paths rather than
// hierarchical module names, so they are recorded verbatim and left to the
// resolver's external classification.
type goExtractor struct{}

type goWalker struct {
	src        []byte
	fileID     string
	snapshotID string
	res        *Result
}

func (e *goExtractor) Extract(src []byte, fileID, snapshotID string) (*Result, error) {
	tree, err := parser.Parse(lang.Go, src)
	if err != nil {
		return nil, fmt.Errorf("parse go: %w", err)
	}
	defer tree.Close()

	w := &goWalker{src: src, fileID: fileID, snapshotID: snapshotID, res: &Result{}}
	root := tree.RootNode()
	for i := uint(0); i < root.NamedChildCount(); i++ {
		w.walkTopLevel(root.NamedChild(i))
	}
	return w.res, nil
}

func (w *goWalker) walkTopLevel(n *tree_sitter.Node) {
	switch n.Kind() {
	case "import_declaration":
		w.emitImports(n)
	case "function_declaration":
		w.emitFunc(n, "")
	case "method_declaration":
		w.emitFunc(n, receiverTypeName(n, w.src))
	case "type_declaration":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			spec := n.NamedChild(i)
			if spec.Kind() == "type_spec" {
				w.emitTypeSpec(spec)
			}
		}
	case "var_declaration", "const_declaration":
		w.emitVars(n)
	}
}

func (w *goWalker) emitImports(n *tree_sitter.Node) {
	var specs []*tree_sitter.Node
	parser.Walk(n, func(child *tree_sitter.Node) bool {
		if child.Kind() == "import_spec" {
			specs = append(specs, child)
			return false
		}
		return true
	})
	for _, spec := range specs {
		path := stripQuotes(fieldText(spec, "path", w.src))
		if path == "" {
			continue
		}
		line, _ := parser.Lines(spec)
		w.res.Imports = append(w.res.Imports, model.Import{
			ID:         model.NewID(),
			SnapshotID: w.snapshotID,
			FileID:     w.fileID,
			Module:     path,
			Alias:      fieldText(spec, "name", w.src),
			Line:       line,
		})
	}
}

func (w *goWalker) emitFunc(n *tree_sitter.Node, receiver string) {
	name := fieldText(n, "name", w.src)
	if name == "" {
		return
	}

	kind := model.KindFunction
	qual := name
	if receiver != "" {
		kind = model.KindMethod
		qual = receiver + "." + name
	}

	sig := "func "
	if receiver != "" {
		sig += "(" + receiver + ") "
	}
	sig += name + fieldText(n, "parameters", w.src)
	if result := n.ChildByFieldName("result"); result != nil {
		sig += " " + parser.NodeText(result, w.src)
	}

	start, end := parser.Lines(n)
	sym := model.Symbol{
		ID:         model.NewID(),
		SnapshotID: w.snapshotID,
		FileID:     w.fileID,
		Kind:       kind,
		Name:       name,
		QualName:   qual,
		Signature:  sig,
		StartLine:  start,
		EndLine:    end,
		Meta: model.SymbolMeta{
			IsMethod:   receiver != "",
			IsExported: isExportedName(name),
		},
	}
	w.res.Symbols = append(w.res.Symbols, sym)

	for _, rt := range resultTypes(n, w.src) {
		w.res.Types = append(w.res.Types, newType(w.snapshotID, sym.ID, rt))
	}
	if body := n.ChildByFieldName("body"); body != nil {
		w.emitCalls(body, sym.ID)
	}
}

func (w *goWalker) emitTypeSpec(spec *tree_sitter.Node) {
	name := fieldText(spec, "name", w.src)
	if name == "" {
		return
	}
	typeNode := spec.ChildByFieldName("type")
	typeKind := ""
	if typeNode != nil {
		typeKind = typeNode.Kind()
	}

	sig := "type " + name
	switch typeKind {
	case "struct_type":
		sig += " struct"
	case "interface_type":
		sig += " interface"
	default:
		if typeNode != nil {
			sig += " " + parser.NodeText(typeNode, w.src)
		}
	}

	start, end := parser.Lines(spec)
	w.res.Symbols = append(w.res.Symbols, model.Symbol{
		ID:         model.NewID(),
		SnapshotID: w.snapshotID,
		FileID:     w.fileID,
		Kind:       model.KindClass,
		Name:       name,
		QualName:   name,
		Signature:  sig,
		StartLine:  start,
		EndLine:    end,
		Meta: model.SymbolMeta{
			IsExported: isExportedName(name),
		},
	})
}

func (w *goWalker) emitVars(n *tree_sitter.Node) {
	cursor := n.Walk()
	defer cursor.Close()
	for i := uint(0); i < n.NamedChildCount(); i++ {
		spec := n.NamedChild(i)
		if spec.Kind() != "var_spec" && spec.Kind() != "const_spec" {
			continue
		}
		start, end := parser.Lines(spec)
		sig := strings.TrimSpace(parser.NodeText(spec, w.src))
		typeNode := spec.ChildByFieldName("type")

		// A spec can bind several names: var a, b int. One symbol per name,
		// the declared type attached to each.
		for _, nameNode := range spec.ChildrenByFieldName("name", cursor) {
			name := parser.NodeText(&nameNode, w.src)
			sym := model.Symbol{
				ID:         model.NewID(),
				SnapshotID: w.snapshotID,
				FileID:     w.fileID,
				Kind:       model.KindVariable,
				Name:       name,
				QualName:   name,
				Signature:  sig,
				StartLine:  start,
				EndLine:    end,
				Meta: model.SymbolMeta{
					IsExported: isExportedName(name),
				},
			}
			w.res.Symbols = append(w.res.Symbols, sym)
			if typeNode != nil {
				w.res.Types = append(w.res.Types, newType(w.snapshotID, sym.ID, parser.NodeText(typeNode, w.src)))
			}
		}
	}
}

func (w *goWalker) emitCalls(body *tree_sitter.Node, callerID string) {
	parser.Walk(body, func(n *tree_sitter.Node) bool {
		if n.Kind() != "call_expression" {
			return true
		}
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return true
		}

		var callee string
		kind := model.CallDirect
		switch fn.Kind() {
		case "identifier":
			callee = parser.NodeText(fn, w.src)
		case "selector_expression":
			callee = fieldText(fn, "field", w.src)
			kind = model.CallMethod
		default:
			return true
		}
		if callee == "" {
			return true
		}

		line, _ := parser.Lines(n)
		w.res.Calls = append(w.res.Calls, model.CallSite{
			ID:             model.NewID(),
			SnapshotID:     w.snapshotID,
			CallerSymbolID: callerID,
			CalleeName:     callee,
			Kind:           kind,
			Line:           line,
		})
		return true
	})
}

// receiverTypeName extracts the bare receiver type, dropping any pointer
// star: func (s *Store) Get() -> "Store".
func receiverTypeName(n *tree_sitter.Node, src []byte) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	name := ""
	parser.Walk(recv, func(child *tree_sitter.Node) bool {
		if child.Kind() == "type_identifier" {
			name = parser.NodeText(child, src)
			return false
		}
		return true
	})
	return name
}

// resultTypes splits a function's result field into individual type texts.
func resultTypes(n *tree_sitter.Node, src []byte) []string {
	result := n.ChildByFieldName("result")
	if result == nil {
		return nil
	}
	if result.Kind() != "parameter_list" {
		return []string{parser.NodeText(result, src)}
	}
	var out []string
	for i := uint(0); i < result.NamedChildCount(); i++ {
		decl := result.NamedChild(i)
		if t := decl.ChildByFieldName("type"); t != nil {
			out = append(out, parser.NodeText(t, src))
		} else {
			out = append(out, parser.NodeText(decl, src))
		}
	}
	return out
}

func isExportedName(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
