package extract

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/lodestone-ai/codegraph/internal/lang"
	"github.com/lodestone-ai/codegraph/internal/model"
	"github.com/lodestone-ai/codegraph/internal/parser"
)

// jsExtractor handles the JavaScript family: JS, JSX, TypeScript and TSX.
// TypeScript grammars add type_annotation nodes on top of the JS shape, so
// one walker covers all four.
type jsExtractor struct {
	language lang.Language
}

type jsWalker struct {
	src           []byte
	fileID        string
	snapshotID    string
	res           *Result
	symbolsByName map[string]string
}

func (e *jsExtractor) Extract(src []byte, fileID, snapshotID string) (*Result, error) {
	tree, err := parser.Parse(e.language, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", e.language, err)
	}
	defer tree.Close()

	w := &jsWalker{
		src:           src,
		fileID:        fileID,
		snapshotID:    snapshotID,
		res:           &Result{},
		symbolsByName: map[string]string{},
	}
	w.walk(tree.RootNode(), "", "", false)
	w.detectEndpoints(tree.RootNode())
	return w.res, nil
}

func (w *jsWalker) walk(n *tree_sitter.Node, className, callerID string, exported bool) {
	switch n.Kind() {
	case "export_statement":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			w.walk(n.NamedChild(i), className, callerID, true)
		}
		return

	case "function_declaration", "generator_function_declaration":
		sym := w.emitFunction(n, className, exported)
		if body := n.ChildByFieldName("body"); body != nil {
			w.walk(body, className, sym.ID, false)
		}
		return

	case "lexical_declaration", "variable_declaration":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			decl := n.NamedChild(i)
			if decl.Kind() == "variable_declarator" {
				w.emitDeclarator(decl, className, callerID, exported)
			}
		}
		return

	case "class_declaration":
		sym := w.emitClass(n, exported)
		if body := n.ChildByFieldName("body"); body != nil {
			for i := uint(0); i < body.NamedChildCount(); i++ {
				w.walk(body.NamedChild(i), sym.Name, "", false)
			}
		}
		return

	case "method_definition":
		sym := w.emitMethod(n, className)
		if body := n.ChildByFieldName("body"); body != nil {
			w.walk(body, className, sym.ID, false)
		}
		return

	case "import_statement":
		w.emitImport(n)

	case "call_expression":
		if callerID != "" {
			w.emitCall(n, callerID, false)
		}
	case "new_expression":
		if callerID != "" {
			w.emitCall(n, callerID, true)
		}
	}

	for i := uint(0); i < n.NamedChildCount(); i++ {
		w.walk(n.NamedChild(i), className, callerID, false)
	}
}

func (w *jsWalker) emitFunction(n *tree_sitter.Node, className string, exported bool) model.Symbol {
	name := fieldText(n, "name", w.src)
	params := fieldText(n, "parameters", w.src)
	sig := "function " + name + params
	if hasTokenChild(n, "async") {
		sig = "async " + sig
	}
	if rt := returnTypeText(n, w.src); rt != "" {
		sig += ": " + rt
	}
	return w.addSymbol(n, model.KindFunction, name, className, sig, model.SymbolMeta{
		IsAsync:    hasTokenChild(n, "async"),
		IsExported: exported,
	})
}

// emitDeclarator handles const foo = () => {} and plain bindings. Arrow and
// function expressions become function symbols; other initializers at class
// or module level are recorded as variables only when exported.
func (w *jsWalker) emitDeclarator(decl *tree_sitter.Node, className, callerID string, exported bool) {
	name := fieldText(decl, "name", w.src)
	value := decl.ChildByFieldName("value")
	if name == "" {
		return
	}

	if value != nil && (value.Kind() == "arrow_function" || value.Kind() == "function_expression") {
		params := fieldText(value, "parameters", w.src)
		if params == "" {
			params = "(" + fieldText(value, "parameter", w.src) + ")"
		}
		sig := "const " + name + " = " + params + " =>"
		sym := w.addSymbol(decl, model.KindFunction, name, className, sig, model.SymbolMeta{
			IsAsync:    hasTokenChild(value, "async"),
			IsExported: exported,
		})
		if rt := returnTypeText(value, w.src); rt != "" {
			w.res.Types = append(w.res.Types, newType(w.snapshotID, sym.ID, rt))
		}
		if body := value.ChildByFieldName("body"); body != nil {
			w.walk(body, className, sym.ID, false)
		}
		return
	}

	if exported {
		sym := w.addSymbol(decl, model.KindVariable, name, className, "const "+name, model.SymbolMeta{
			IsExported: true,
		})
		if t := decl.ChildByFieldName("type"); t != nil {
			w.res.Types = append(w.res.Types, newType(w.snapshotID, sym.ID, annotationText(t, w.src)))
		}
	}
	// Calls in a plain initializer still belong to the enclosing function.
	if value != nil && callerID != "" {
		w.walk(value, className, callerID, false)
	}
}

func (w *jsWalker) emitClass(n *tree_sitter.Node, exported bool) model.Symbol {
	name := fieldText(n, "name", w.src)

	var bases []string
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child.Kind() == "class_heritage" && child.NamedChildCount() > 0 {
			base := child.NamedChild(child.NamedChildCount() - 1)
			bases = append(bases, strings.TrimSpace(parser.NodeText(base, w.src)))
		}
	}

	sig := "class " + name
	if len(bases) > 0 {
		sig += " extends " + strings.Join(bases, ", ")
	}
	return w.addSymbol(n, model.KindClass, name, "", sig, model.SymbolMeta{
		IsExported: exported,
		Bases:      bases,
	})
}

func (w *jsWalker) emitMethod(n *tree_sitter.Node, className string) model.Symbol {
	name := fieldText(n, "name", w.src)
	params := fieldText(n, "parameters", w.src)
	sig := name + params
	if hasTokenChild(n, "async") {
		sig = "async " + sig
	}
	sym := w.addSymbol(n, model.KindMethod, name, className, sig, model.SymbolMeta{
		IsAsync:  hasTokenChild(n, "async"),
		IsMethod: true,
	})
	if rt := returnTypeText(n, w.src); rt != "" {
		w.res.Types = append(w.res.Types, newType(w.snapshotID, sym.ID, rt))
	}
	return sym
}

func (w *jsWalker) addSymbol(n *tree_sitter.Node, kind model.SymbolKind, name, className, sig string, meta model.SymbolMeta) model.Symbol {
	qual := name
	if className != "" {
		qual = className + "." + name
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
		Meta:       meta,
	}
	w.res.Symbols = append(w.res.Symbols, sym)
	w.symbolsByName[name] = sym.ID
	return sym
}

// emitImport handles import defaultName, { a, b as c } from "./mod" and
// import * as ns from "mod".
func (w *jsWalker) emitImport(n *tree_sitter.Node) {
	source := n.ChildByFieldName("source")
	if source == nil {
		return
	}
	module := stripQuotes(parser.NodeText(source, w.src))

	var names []model.ImportedName
	alias := ""
	for i := uint(0); i < n.NamedChildCount(); i++ {
		clause := n.NamedChild(i)
		if clause.Kind() != "import_clause" {
			continue
		}
		for j := uint(0); j < clause.NamedChildCount(); j++ {
			item := clause.NamedChild(j)
			switch item.Kind() {
			case "identifier":
				names = append(names, model.ImportedName{Name: "default", Alias: parser.NodeText(item, w.src)})
			case "namespace_import":
				if item.NamedChildCount() > 0 {
					alias = parser.NodeText(item.NamedChild(0), w.src)
				}
			case "named_imports":
				for k := uint(0); k < item.NamedChildCount(); k++ {
					spec := item.NamedChild(k)
					if spec.Kind() != "import_specifier" {
						continue
					}
					names = append(names, model.ImportedName{
						Name:  fieldText(spec, "name", w.src),
						Alias: fieldText(spec, "alias", w.src),
					})
				}
			}
		}
	}

	line, _ := parser.Lines(n)
	w.res.Imports = append(w.res.Imports, model.Import{
		ID:            model.NewID(),
		SnapshotID:    w.snapshotID,
		FileID:        w.fileID,
		Module:        module,
		Names:         names,
		Alias:         alias,
		RelativeDepth: jsRelativeDepth(module),
		Line:          line,
	})
}

// jsRelativeDepth maps "./x" to 1 and "../x" to 2, one more per extra "../"
// segment, mirroring dot-count semantics of hierarchical module names.
func jsRelativeDepth(module string) int {
	if strings.HasPrefix(module, "./") {
		return 1
	}
	if !strings.HasPrefix(module, "../") {
		return 0
	}
	depth := 1
	for strings.HasPrefix(module, "../") {
		depth++
		module = module[3:]
	}
	return depth
}

func (w *jsWalker) emitCall(n *tree_sitter.Node, callerID string, isNew bool) {
	var callee string
	kind := model.CallDirect

	if isNew {
		ctor := n.ChildByFieldName("constructor")
		if ctor == nil {
			return
		}
		callee = parser.NodeText(ctor, w.src)
		kind = model.CallConstructor
	} else {
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return
		}
		switch fn.Kind() {
		case "identifier":
			callee = parser.NodeText(fn, w.src)
		case "member_expression":
			callee = fieldText(fn, "property", w.src)
			kind = model.CallMethod
		default:
			return
		}
	}
	if callee == "" {
		return
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
}

// detectEndpoints recognizes Express-style route registrations:
// app.get("/path", handler) and router.post("/path", mw, handler).
func (w *jsWalker) detectEndpoints(root *tree_sitter.Node) {
	parser.Walk(root, func(n *tree_sitter.Node) bool {
		if n.Kind() != "call_expression" {
			return true
		}
		fn := n.ChildByFieldName("function")
		if fn == nil || fn.Kind() != "member_expression" {
			return true
		}
		obj := fieldText(fn, "object", w.src)
		method := fieldText(fn, "property", w.src)
		if (obj != "app" && obj != "router") || !httpMethods[method] {
			return true
		}
		args := n.ChildByFieldName("arguments")
		if args == nil {
			return true
		}
		path := firstStringArg(args, w.src)
		if path == "" {
			return true
		}

		// Handler is the trailing identifier argument when present.
		handlerID := ""
		if count := args.NamedChildCount(); count > 0 {
			last := args.NamedChild(count - 1)
			if last.Kind() == "identifier" {
				handlerID = w.symbolsByName[parser.NodeText(last, w.src)]
			}
		}

		w.res.Endpoints = append(w.res.Endpoints, model.Endpoint{
			ID:         model.NewID(),
			SnapshotID: w.snapshotID,
			FileID:     w.fileID,
			SymbolID:   handlerID,
			Method:     strings.ToUpper(method),
			Path:       path,
			Framework:  "express",
		})
		return true
	})
}

// returnTypeText strips the leading colon from a TS return type annotation.
func returnTypeText(n *tree_sitter.Node, src []byte) string {
	rt := n.ChildByFieldName("return_type")
	if rt == nil {
		return ""
	}
	return annotationText(rt, src)
}

func annotationText(n *tree_sitter.Node, src []byte) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parser.NodeText(n, src)), ":"))
}
