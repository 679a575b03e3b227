package extract

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/lodestone-ai/codegraph/internal/lang"
	"github.com/lodestone-ai/codegraph/internal/model"
	"github.com/lodestone-ai/codegraph/internal/parser"
)

// pythonExtractor handles .py and .pyw sources.
type pythonExtractor struct{}

type pyScope struct {
	name    string
	isClass bool
}

type pyWalker struct {
	src        []byte
	fileID     string
	snapshotID string
	res        *Result
	// symbolsByName maps short symbol names to ids for endpoint linking.
	symbolsByName map[string]string
}

func (e *pythonExtractor) Extract(src []byte, fileID, snapshotID string) (*Result, error) {
	tree, err := parser.Parse(lang.Python, src)
	if err != nil {
		return nil, fmt.Errorf("parse python: %w", err)
	}
	defer tree.Close()

	w := &pyWalker{
		src:           src,
		fileID:        fileID,
		snapshotID:    snapshotID,
		res:           &Result{},
		symbolsByName: map[string]string{},
	}
	w.walk(tree.RootNode(), nil, "", nil)
	w.detectEndpoints(tree.RootNode())
	return w.res, nil
}

// walk visits definitions depth-first, tracking the enclosing scope chain and
// the innermost function symbol for call attribution.
func (w *pyWalker) walk(n *tree_sitter.Node, scope []pyScope, callerID string, decorators []string) {
	switch n.Kind() {
	case "decorated_definition":
		var decs []string
		for i := uint(0); i < n.NamedChildCount(); i++ {
			child := n.NamedChild(i)
			if child.Kind() == "decorator" && child.NamedChildCount() > 0 {
				decs = append(decs, decoratorName(child.NamedChild(0), w.src))
			}
		}
		if def := n.ChildByFieldName("definition"); def != nil {
			w.walk(def, scope, callerID, decs)
		}
		return

	case "function_definition":
		sym := w.emitFunction(n, scope, decorators)
		for i := uint(0); i < n.NamedChildCount(); i++ {
			w.walk(n.NamedChild(i), append(scope, pyScope{name: sym.Name}), sym.ID, nil)
		}
		return

	case "class_definition":
		sym := w.emitClass(n, scope, decorators)
		for i := uint(0); i < n.NamedChildCount(); i++ {
			// Calls in a class body outside any method have no caller.
			w.walk(n.NamedChild(i), append(scope, pyScope{name: sym.Name, isClass: true}), "", nil)
		}
		return

	case "import_statement":
		w.emitImport(n)

	case "import_from_statement":
		w.emitFromImport(n)

	case "call":
		if callerID != "" {
			w.emitCall(n, callerID)
		}
	}

	for i := uint(0); i < n.NamedChildCount(); i++ {
		w.walk(n.NamedChild(i), scope, callerID, nil)
	}
}

func (w *pyWalker) emitFunction(n *tree_sitter.Node, scope []pyScope, decorators []string) model.Symbol {
	name := fieldText(n, "name", w.src)
	isAsync := hasTokenChild(n, "async")
	isMethod := len(scope) > 0 && scope[len(scope)-1].isClass

	kind := model.KindFunction
	if isMethod {
		kind = model.KindMethod
	}

	start, end := parser.Lines(n)
	sym := model.Symbol{
		ID:         model.NewID(),
		SnapshotID: w.snapshotID,
		FileID:     w.fileID,
		Kind:       kind,
		Name:       name,
		QualName:   joinScope(scopeNames(scope), name),
		Signature:  pySignature(n, w.src, name, isAsync),
		StartLine:  start,
		EndLine:    end,
		Meta: model.SymbolMeta{
			IsAsync:    isAsync,
			IsMethod:   isMethod,
			Decorators: decorators,
		},
	}
	w.res.Symbols = append(w.res.Symbols, sym)
	w.symbolsByName[name] = sym.ID

	if rt := n.ChildByFieldName("return_type"); rt != nil {
		w.res.Types = append(w.res.Types, newType(w.snapshotID, sym.ID, parser.NodeText(rt, w.src)))
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := uint(0); i < params.NamedChildCount(); i++ {
			p := params.NamedChild(i)
			if p.Kind() == "typed_parameter" || p.Kind() == "typed_default_parameter" {
				if t := p.ChildByFieldName("type"); t != nil {
					w.res.Types = append(w.res.Types, newType(w.snapshotID, sym.ID, parser.NodeText(t, w.src)))
				}
			}
		}
	}
	return sym
}

func (w *pyWalker) emitClass(n *tree_sitter.Node, scope []pyScope, decorators []string) model.Symbol {
	name := fieldText(n, "name", w.src)

	var bases []string
	if sup := n.ChildByFieldName("superclasses"); sup != nil {
		for i := uint(0); i < sup.NamedChildCount(); i++ {
			arg := sup.NamedChild(i)
			if arg.Kind() == "identifier" || arg.Kind() == "attribute" {
				bases = append(bases, parser.NodeText(arg, w.src))
			}
		}
	}

	sig := "class " + name
	if len(bases) > 0 {
		sig += "(" + strings.Join(bases, ", ") + ")"
	}

	start, end := parser.Lines(n)
	sym := model.Symbol{
		ID:         model.NewID(),
		SnapshotID: w.snapshotID,
		FileID:     w.fileID,
		Kind:       model.KindClass,
		Name:       name,
		QualName:   joinScope(scopeNames(scope), name),
		Signature:  sig,
		StartLine:  start,
		EndLine:    end,
		Meta: model.SymbolMeta{
			Decorators: decorators,
			Bases:      bases,
		},
	}
	w.res.Symbols = append(w.res.Symbols, sym)
	w.symbolsByName[name] = sym.ID
	return sym
}

// emitImport handles "import a.b [as c], d".
func (w *pyWalker) emitImport(n *tree_sitter.Node) {
	line, _ := parser.Lines(n)
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		switch child.Kind() {
		case "dotted_name":
			w.res.Imports = append(w.res.Imports, model.Import{
				ID:         model.NewID(),
				SnapshotID: w.snapshotID,
				FileID:     w.fileID,
				Module:     parser.NodeText(child, w.src),
				Line:       line,
			})
		case "aliased_import":
			w.res.Imports = append(w.res.Imports, model.Import{
				ID:         model.NewID(),
				SnapshotID: w.snapshotID,
				FileID:     w.fileID,
				Module:     fieldText(child, "name", w.src),
				Alias:      fieldText(child, "alias", w.src),
				Line:       line,
			})
		}
	}
}

// emitFromImport handles "from [.]*mod import a [as b], c".
func (w *pyWalker) emitFromImport(n *tree_sitter.Node) {
	modNode := n.ChildByFieldName("module_name")
	if modNode == nil {
		return
	}
	module := parser.NodeText(modNode, w.src)
	depth := 0
	for depth < len(module) && module[depth] == '.' {
		depth++
	}

	var names []model.ImportedName
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child.Id() == modNode.Id() {
			continue
		}
		switch child.Kind() {
		case "dotted_name", "identifier":
			names = append(names, model.ImportedName{Name: parser.NodeText(child, w.src)})
		case "aliased_import":
			names = append(names, model.ImportedName{
				Name:  fieldText(child, "name", w.src),
				Alias: fieldText(child, "alias", w.src),
			})
		case "wildcard_import":
			names = append(names, model.ImportedName{Name: "*"})
		}
	}

	line, _ := parser.Lines(n)
	w.res.Imports = append(w.res.Imports, model.Import{
		ID:            model.NewID(),
		SnapshotID:    w.snapshotID,
		FileID:        w.fileID,
		Module:        module,
		Names:         names,
		RelativeDepth: depth,
		Line:          line,
	})
}

// emitCall records the callee's textual name: bare identifier for direct
// calls, trailing attribute for method calls.
func (w *pyWalker) emitCall(n *tree_sitter.Node, callerID string) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}

	var callee string
	kind := model.CallDirect
	switch fn.Kind() {
	case "identifier":
		callee = parser.NodeText(fn, w.src)
	case "attribute":
		callee = fieldText(fn, "attribute", w.src)
		kind = model.CallMethod
	default:
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

// detectEndpoints is a second pass recognizing FastAPI and Flask route
// decorators. Endpoint records annotate the symbol graph.
func (w *pyWalker) detectEndpoints(root *tree_sitter.Node) {
	parser.Walk(root, func(n *tree_sitter.Node) bool {
		if n.Kind() != "decorated_definition" {
			return true
		}
		def := n.ChildByFieldName("definition")
		if def == nil || def.Kind() != "function_definition" {
			return true
		}
		handler := fieldText(def, "name", w.src)

		for i := uint(0); i < n.NamedChildCount(); i++ {
			dec := n.NamedChild(i)
			if dec.Kind() != "decorator" || dec.NamedChildCount() == 0 {
				continue
			}
			if ep := w.parseRouteDecorator(dec.NamedChild(0), handler); ep != nil {
				w.res.Endpoints = append(w.res.Endpoints, *ep)
			}
		}
		return true
	})
}

// parseRouteDecorator matches @app.get("/p"), @router.post("/p", tags=[...])
// and Flask's @app.route("/p", methods=["POST"]).
func (w *pyWalker) parseRouteDecorator(expr *tree_sitter.Node, handler string) *model.Endpoint {
	if expr.Kind() != "call" {
		return nil
	}
	fn := expr.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "attribute" {
		return nil
	}
	obj := strings.ToLower(fieldText(fn, "object", w.src))
	attr := strings.ToLower(fieldText(fn, "attribute", w.src))
	if !strings.Contains(obj, "app") && !strings.Contains(obj, "router") {
		return nil
	}

	args := expr.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}

	method := ""
	framework := "fastapi"
	switch {
	case httpMethods[attr]:
		method = strings.ToUpper(attr)
	case attr == "route":
		framework = "flask"
		method = "GET"
		if ms := keywordList(args, "methods", w.src); len(ms) > 0 {
			method = strings.ToUpper(ms[0])
		}
	default:
		return nil
	}

	path := firstStringArg(args, w.src)
	if path == "" {
		return nil
	}

	return &model.Endpoint{
		ID:         model.NewID(),
		SnapshotID: w.snapshotID,
		FileID:     w.fileID,
		SymbolID:   w.symbolsByName[handler],
		Method:     method,
		Path:       path,
		Tags:       keywordList(args, "tags", w.src),
		Framework:  framework,
	}
}

// decoratorName flattens a decorator expression to dotted text, unwrapping
// calls to their callee.
func decoratorName(n *tree_sitter.Node, src []byte) string {
	if n.Kind() == "call" {
		if fn := n.ChildByFieldName("function"); fn != nil {
			return parser.NodeText(fn, src)
		}
	}
	return parser.NodeText(n, src)
}

func pySignature(n *tree_sitter.Node, src []byte, name string, isAsync bool) string {
	sig := "def " + name
	if isAsync {
		sig = "async " + sig
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		sig += parser.NodeText(params, src)
	} else {
		sig += "()"
	}
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		sig += " -> " + parser.NodeText(rt, src)
	}
	return sig
}

func scopeNames(scope []pyScope) []string {
	names := make([]string, len(scope))
	for i, s := range scope {
		names[i] = s.name
	}
	return names
}

func fieldText(n *tree_sitter.Node, field string, src []byte) string {
	child := n.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return parser.NodeText(child, src)
}

func hasTokenChild(n *tree_sitter.Node, token string) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		if n.Child(i).Kind() == token {
			return true
		}
	}
	return false
}

// firstStringArg returns the unquoted first string literal in an argument
// list.
func firstStringArg(args *tree_sitter.Node, src []byte) string {
	for i := uint(0); i < args.NamedChildCount(); i++ {
		arg := args.NamedChild(i)
		if arg.Kind() == "string" {
			return stripQuotes(parser.NodeText(arg, src))
		}
	}
	return ""
}

// keywordList returns the string elements of a list-valued keyword argument,
// e.g. tags=["users", "admin"].
func keywordList(args *tree_sitter.Node, keyword string, src []byte) []string {
	for i := uint(0); i < args.NamedChildCount(); i++ {
		arg := args.NamedChild(i)
		if arg.Kind() != "keyword_argument" {
			continue
		}
		if fieldText(arg, "name", src) != keyword {
			continue
		}
		value := arg.ChildByFieldName("value")
		if value == nil || value.Kind() != "list" {
			return nil
		}
		var out []string
		for j := uint(0); j < value.NamedChildCount(); j++ {
			el := value.NamedChild(j)
			if el.Kind() == "string" {
				out = append(out, stripQuotes(parser.NodeText(el, src)))
			}
		}
		return out
	}
	return nil
}
