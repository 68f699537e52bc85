package frontend

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/kestrelsec/reach/internal/graph"
)

func newJavaScript() Frontend {
	return &tsFrontend{lang: "javascript", grammar: javascript.GetLanguage(), extract: extractJS}
}

func extractJS(fc *fileContext, root *sitter.Node) {
	jsWalk(fc, root, "", "", false)
}

// jsWalk recurses with the enclosing class scope, the enclosing function's
// node id, and whether the current subtree sits under an export statement.
func jsWalk(fc *fileContext, n *sitter.Node, classScope, callerID string, exported bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "export_statement":
			jsWalk(fc, child, classScope, callerID, true)

		case "function_declaration", "generator_function_declaration":
			name := fc.text(child.ChildByFieldName("name"))
			id := fc.addFunc(joinName(classScope, name), child, jsVisibility(exported))
			if body := child.ChildByFieldName("body"); body != nil {
				jsWalk(fc, body, classScope, id, false)
			}

		case "method_definition":
			name := fc.text(child.ChildByFieldName("name"))
			id := fc.addFunc(joinName(classScope, name), child, jsVisibility(exported))
			if body := child.ChildByFieldName("body"); body != nil {
				jsWalk(fc, body, classScope, id, false)
			}

		case "class_declaration":
			name := fc.text(child.ChildByFieldName("name"))
			if body := child.ChildByFieldName("body"); body != nil {
				jsWalk(fc, body, joinName(classScope, name), callerID, exported)
			}

		case "variable_declarator":
			// const f = () => {} and const f = function() {} define functions.
			value := child.ChildByFieldName("value")
			if value != nil && (value.Type() == "arrow_function" || value.Type() == "function_expression" || value.Type() == "function") {
				name := fc.text(child.ChildByFieldName("name"))
				id := fc.addFunc(joinName(classScope, name), child, jsVisibility(exported))
				if body := value.ChildByFieldName("body"); body != nil {
					jsWalk(fc, body, classScope, id, false)
				}
			} else {
				jsWalk(fc, child, classScope, callerID, false)
			}

		case "call_expression":
			jsCall(fc, child, classScope, callerID)
			if args := child.ChildByFieldName("arguments"); args != nil {
				jsWalk(fc, args, classScope, callerID, false)
			}

		case "import_statement":
			jsImport(fc, child)

		default:
			jsWalk(fc, child, classScope, callerID, exported)
		}
	}
}

func jsVisibility(exported bool) string {
	if exported {
		return "public"
	}
	return "private"
}

func jsCall(fc *fileContext, call *sitter.Node, classScope, callerID string) {
	caller := callerID
	if caller == "" {
		caller = fc.toplevelID()
	}

	fn := call.ChildByFieldName("function")
	if fn == nil {
		return
	}

	switch fn.Type() {
	case "identifier":
		name := fc.text(fn)
		switch name {
		case "eval":
			fc.addSignal(graph.ConstructEval, graph.EscalateFile, caller, call)
		case "require":
			// CommonJS: require('module') is an import when the argument is a
			// string literal, a dynamic-import signal otherwise.
			if src, ok := jsStringArg(fc, call); ok {
				fc.addImport(graph.Import{Source: src})
			} else {
				fc.addSignal(graph.ConstructDynamicImport, graph.EscalateFile, caller, call)
			}
			return
		}
		fc.addCall(caller, name, call)

	case "member_expression":
		obj := fc.text(fn.ChildByFieldName("object"))
		prop := fc.text(fn.ChildByFieldName("property"))
		if prop == "apply" || prop == "call" || prop == "bind" {
			// f.call(...) still targets f.
			fc.addCall(caller, obj, call)
			return
		}
		fc.addCall(caller, obj+"."+prop, call)

	case "subscript_expression":
		// obj[expr]() — computed member call, target unknowable statically.
		fc.addSignal(graph.ConstructComputedCall, graph.EscalateFunction, caller, call)

	case "import":
		// Dynamic import().
		if src, ok := jsStringArg(fc, call); ok {
			fc.addImport(graph.Import{Source: src})
		} else {
			fc.addSignal(graph.ConstructDynamicImport, graph.EscalateFile, caller, call)
		}
	}
}

// jsStringArg returns the call's single string-literal argument, unquoted.
func jsStringArg(fc *fileContext, call *sitter.Node) (string, bool) {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return "", false
	}
	arg := args.NamedChild(0)
	if arg.Type() != "string" {
		return "", false
	}
	return trimQuotes(fc.text(arg)), true
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		switch s[0] {
		case '\'', '"', '`':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}

// jsImport handles ES module import statements.
func jsImport(fc *fileContext, n *sitter.Node) {
	source := trimQuotes(fc.text(n.ChildByFieldName("source")))
	if source == "" {
		return
	}

	recorded := false
	walk(n, func(c *sitter.Node) bool {
		switch c.Type() {
		case "import_specifier":
			name := fc.text(c.ChildByFieldName("name"))
			alias := fc.text(c.ChildByFieldName("alias"))
			if alias == "" {
				alias = name
			}
			fc.addImport(graph.Import{Source: source, Alias: alias, Symbols: []string{name}})
			recorded = true
		case "namespace_import":
			// import * as ns from 'm'
			for i := 0; i < int(c.NamedChildCount()); i++ {
				if c.NamedChild(i).Type() == "identifier" {
					fc.addImport(graph.Import{Source: source, Alias: fc.text(c.NamedChild(i))})
					recorded = true
				}
			}
		case "identifier":
			// Default import: import x from 'm'
			if c.Parent() != nil && c.Parent().Type() == "import_clause" {
				fc.addImport(graph.Import{Source: source, Alias: fc.text(c)})
				recorded = true
			}
		}
		return true
	})
	if !recorded {
		fc.addImport(graph.Import{Source: source})
	}
}
