package frontend

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"

	"github.com/kestrelsec/reach/internal/graph"
)

func newPHP() Frontend {
	return &tsFrontend{lang: "php", grammar: php.GetLanguage(), extract: extractPHP}
}

func extractPHP(fc *fileContext, root *sitter.Node) {
	phpWalk(fc, root, "", "")
}

func phpWalk(fc *fileContext, n *sitter.Node, classScope, callerID string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			name := fc.text(child.ChildByFieldName("name"))
			id := fc.addFunc(joinName(classScope, name), child, "public")
			phpWalk(fc, child, classScope, id)

		case "method_declaration":
			name := fc.text(child.ChildByFieldName("name"))
			id := fc.addFunc(joinName(classScope, name), child, phpVisibility(fc, child))
			phpWalk(fc, child, classScope, id)

		case "class_declaration", "interface_declaration", "trait_declaration":
			name := fc.text(child.ChildByFieldName("name"))
			phpWalk(fc, child, joinName(classScope, name), callerID)

		case "function_call_expression":
			phpCall(fc, child, callerID)
			phpWalk(fc, child, classScope, callerID)

		case "member_call_expression", "scoped_call_expression":
			phpMemberCall(fc, child, callerID)
			phpWalk(fc, child, classScope, callerID)

		case "namespace_use_declaration":
			phpUse(fc, child)

		case "include_expression", "include_once_expression",
			"require_expression", "require_once_expression":
			phpInclude(fc, child, callerID)

		default:
			phpWalk(fc, child, classScope, callerID)
		}
	}
}

func phpVisibility(fc *fileContext, method *sitter.Node) string {
	for i := 0; i < int(method.NamedChildCount()); i++ {
		if c := method.NamedChild(i); c.Type() == "visibility_modifier" {
			return fc.text(c)
		}
	}
	return "public"
}

func phpCall(fc *fileContext, call *sitter.Node, callerID string) {
	caller := callerID
	if caller == "" {
		caller = fc.toplevelID()
	}

	fn := call.ChildByFieldName("function")
	if fn == nil {
		return
	}

	if fn.Type() == "variable_name" {
		// $f() — variable function, target resolved at runtime.
		fc.addSignal(graph.ConstructComputedCall, graph.EscalateFile, caller, call)
		return
	}

	name := phpName(fc.text(fn))
	switch tailName(name) {
	case "eval", "assert", "create_function":
		fc.addSignal(graph.ConstructEval, graph.EscalateFile, caller, call)
	case "call_user_func", "call_user_func_array", "forward_static_call":
		fc.addSignal(graph.ConstructReflection, graph.EscalateFunction, caller, call)
	}
	fc.addCall(caller, name, call)
}

func phpMemberCall(fc *fileContext, call *sitter.Node, callerID string) {
	caller := callerID
	if caller == "" {
		caller = fc.toplevelID()
	}
	name := fc.text(call.ChildByFieldName("name"))
	if name == "" {
		// $obj->$method() — computed member call.
		fc.addSignal(graph.ConstructComputedCall, graph.EscalateFunction, caller, call)
		return
	}
	if obj := call.ChildByFieldName("object"); obj != nil && obj.Type() == "variable_name" {
		fc.addCall(caller, name, call)
		return
	}
	if scope := call.ChildByFieldName("scope"); scope != nil {
		fc.addCall(caller, phpName(fc.text(scope))+"."+name, call)
		return
	}
	fc.addCall(caller, name, call)
}

// phpUse records "use Vendor\Sub\Name;" declarations. Namespace separators
// become slashes so the builder's import normalization applies unchanged.
func phpUse(fc *fileContext, n *sitter.Node) {
	walk(n, func(c *sitter.Node) bool {
		if c.Type() != "namespace_use_clause" {
			return true
		}
		clause := fc.text(c)
		alias := ""
		if i := strings.Index(clause, " as "); i >= 0 {
			alias = strings.TrimSpace(clause[i+4:])
			clause = clause[:i]
		}
		src := phpName(strings.TrimSpace(clause))
		if alias == "" {
			alias = tailName(src)
		}
		fc.addImport(graph.Import{Source: src, Alias: alias, Symbols: []string{tailName(src)}})
		return false
	})
}

func phpInclude(fc *fileContext, n *sitter.Node, callerID string) {
	caller := callerID
	if caller == "" {
		caller = fc.toplevelID()
	}
	// A literal include records an import; anything computed is dynamic.
	lit := ""
	walk(n, func(c *sitter.Node) bool {
		if c.Type() == "string" {
			lit = trimQuotes(fc.text(c))
			return false
		}
		return true
	})
	if lit != "" {
		fc.addImport(graph.Import{Source: lit})
		return
	}
	fc.addSignal(graph.ConstructDynamicImport, graph.EscalateFile, caller, n)
}

// phpName normalizes namespace separators to slashes and strips a leading
// separator.
func phpName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimPrefix(name, "/")
}
