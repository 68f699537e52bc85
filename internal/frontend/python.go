package frontend

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/kestrelsec/reach/internal/graph"
)

func newPython() Frontend {
	return &tsFrontend{lang: "python", grammar: python.GetLanguage(), extract: extractPython}
}

func extractPython(fc *fileContext, root *sitter.Node) {
	pyWalk(fc, root, "", "")
}

// pyWalk recurses with the enclosing class scope (for qualified method
// names) and the enclosing function's node id (for call attribution).
// Module-level calls attribute to the file's toplevel node: Python runs them
// on import.
func pyWalk(fc *fileContext, n *sitter.Node, classScope, callerID string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			name := fc.text(child.ChildByFieldName("name"))
			qualified := joinName(classScope, name)
			vis := "public"
			if strings.HasPrefix(name, "_") && !strings.HasSuffix(name, "__") {
				vis = "private"
			}
			id := fc.addFunc(qualified, child, vis)
			if body := child.ChildByFieldName("body"); body != nil {
				pyWalk(fc, body, qualified, id)
			}

		case "class_definition":
			name := fc.text(child.ChildByFieldName("name"))
			if body := child.ChildByFieldName("body"); body != nil {
				pyWalk(fc, body, joinName(classScope, name), callerID)
			}

		case "decorated_definition":
			pyWalk(fc, child, classScope, callerID)

		case "call":
			pyCall(fc, child, classScope, callerID)
			// Arguments may contain nested calls and lambdas.
			if args := child.ChildByFieldName("arguments"); args != nil {
				pyWalk(fc, args, classScope, callerID)
			}

		case "import_statement":
			pyImport(fc, child)

		case "import_from_statement":
			pyImportFrom(fc, child)

		default:
			pyWalk(fc, child, classScope, callerID)
		}
	}
}

func pyCall(fc *fileContext, call *sitter.Node, classScope, callerID string) {
	caller := callerID
	if caller == "" {
		caller = fc.toplevelID()
	}

	fn := call.ChildByFieldName("function")
	if fn == nil {
		return
	}

	var name string
	switch fn.Type() {
	case "identifier":
		name = fc.text(fn)
	case "attribute":
		name = fc.text(fn) // obj.method
	default:
		// Computed callee, e.g. fns[key]() — target unknowable statically.
		fc.addSignal(graph.ConstructComputedCall, graph.EscalateFunction, caller, call)
		return
	}

	switch tailName(name) {
	case "eval", "exec", "__import__":
		fc.addSignal(graph.ConstructEval, graph.EscalateFile, caller, call)
	case "import_module":
		fc.addSignal(graph.ConstructDynamicImport, graph.EscalateFile, caller, call)
	case "getattr", "globals", "locals", "vars":
		fc.addSignal(graph.ConstructReflection, graph.EscalateFunction, caller, call)
	}

	fc.addCall(caller, name, call)
}

// pyImport handles "import a.b" and "import a.b as c".
func pyImport(fc *fileContext, n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			src := fc.text(child)
			fc.addImport(graph.Import{Source: src, Alias: src})
		case "aliased_import":
			src := fc.text(child.ChildByFieldName("name"))
			alias := fc.text(child.ChildByFieldName("alias"))
			fc.addImport(graph.Import{Source: src, Alias: alias})
		}
	}
}

// pyImportFrom handles "from m import a, b as c" and "from m import *".
func pyImportFrom(fc *fileContext, n *sitter.Node) {
	module := fc.text(n.ChildByFieldName("module_name"))
	if module == "" {
		return
	}
	sawNames := false
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name", "identifier":
			name := fc.text(child)
			if name == module {
				continue
			}
			sawNames = true
			fc.addImport(graph.Import{Source: module, Alias: name, Symbols: []string{name}})
		case "aliased_import":
			sym := fc.text(child.ChildByFieldName("name"))
			alias := fc.text(child.ChildByFieldName("alias"))
			sawNames = true
			fc.addImport(graph.Import{Source: module, Alias: alias, Symbols: []string{sym}})
		case "wildcard_import":
			sawNames = true
			fc.addImport(graph.Import{Source: module, Symbols: []string{"*"}})
		}
	}
	if !sawNames {
		fc.addImport(graph.Import{Source: module})
	}
}
