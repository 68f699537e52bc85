package frontend

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/kestrelsec/reach/internal/graph"
)

func newRust() Frontend {
	return &tsFrontend{lang: "rust", grammar: rust.GetLanguage(), extract: extractRust}
}

// Macros that expand to nothing a call graph cares about. Anything else gets
// a function-scoped dynamic signal: a macro can expand to arbitrary calls.
var benignRustMacros = map[string]bool{
	"println": true, "print": true, "eprintln": true, "eprint": true,
	"format": true, "vec": true, "write": true, "writeln": true,
	"assert": true, "assert_eq": true, "assert_ne": true,
	"debug_assert": true, "panic": true, "dbg": true, "todo": true,
	"unimplemented": true, "unreachable": true, "matches": true,
	"include_str": true, "include_bytes": true, "cfg": true,
}

func extractRust(fc *fileContext, root *sitter.Node) {
	rsWalk(fc, root, "", "")
}

func rsWalk(fc *fileContext, n *sitter.Node, scope, callerID string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "function_item":
			name := fc.text(child.ChildByFieldName("name"))
			id := fc.addFunc(joinName(scope, name), child, rsVisibility(fc, child))
			if body := child.ChildByFieldName("body"); body != nil {
				rsWalk(fc, body, scope, id)
			}

		case "impl_item":
			typeName := rsImplType(fc, child)
			if body := child.ChildByFieldName("body"); body != nil {
				rsWalk(fc, body, joinName(scope, typeName), callerID)
			}

		case "mod_item":
			name := fc.text(child.ChildByFieldName("name"))
			rsWalk(fc, child, joinName(scope, name), callerID)

		case "trait_item":
			name := fc.text(child.ChildByFieldName("name"))
			rsWalk(fc, child, joinName(scope, name), callerID)

		case "call_expression":
			rsCall(fc, child, callerID)
			rsWalk(fc, child, scope, callerID)

		case "macro_invocation":
			name := fc.text(child.ChildByFieldName("macro"))
			if !benignRustMacros[tailName(strings.ReplaceAll(name, "::", "/"))] {
				caller := callerID
				if caller == "" {
					caller = fc.toplevelID()
				}
				fc.addSignal(graph.ConstructMacro, graph.EscalateFunction, caller, child)
			}

		case "use_declaration":
			rsUse(fc, child)

		default:
			rsWalk(fc, child, scope, callerID)
		}
	}
}

func rsVisibility(fc *fileContext, item *sitter.Node) string {
	for i := 0; i < int(item.NamedChildCount()); i++ {
		if item.NamedChild(i).Type() == "visibility_modifier" {
			return "public"
		}
	}
	return "private"
}

// rsImplType extracts the implemented type's bare name from an impl block.
func rsImplType(fc *fileContext, impl *sitter.Node) string {
	t := impl.ChildByFieldName("type")
	if t == nil {
		return ""
	}
	name := fc.text(t)
	// Strip generics: Foo<T> -> Foo.
	if i := strings.IndexByte(name, '<'); i > 0 {
		name = name[:i]
	}
	return tailName(strings.ReplaceAll(name, "::", "/"))
}

func rsCall(fc *fileContext, call *sitter.Node, callerID string) {
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
		fc.addCall(caller, fc.text(fn), call)
	case "scoped_identifier":
		// module::function or Type::method.
		name := strings.ReplaceAll(fc.text(fn), "::", "/")
		fc.addCall(caller, name, call)
	case "field_expression":
		// x.method() — the receiver's type is unknown without inference, and
		// through a dyn trait the target is chosen at runtime.
		method := fc.text(fn.ChildByFieldName("field"))
		fc.addCallConf(caller, method, graph.ConfidenceHeuristic, call)
	default:
		// Calling a function pointer or closure value.
		fc.addCallConf(caller, fc.text(fn), graph.ConfidenceHeuristic, call)
	}
}

// rsUse records use declarations, flattening grouped imports.
func rsUse(fc *fileContext, n *sitter.Node) {
	arg := n.ChildByFieldName("argument")
	if arg == nil {
		return
	}
	for _, source := range rsUsePaths(fc, arg) {
		fc.addImport(graph.Import{Source: source, Alias: tailName(source)})
	}
}

// rsUsePaths expands a use tree into full paths: "a::b::{c, d}" yields
// a/b/c and a/b/d.
func rsUsePaths(fc *fileContext, n *sitter.Node) []string {
	switch n.Type() {
	case "identifier", "crate", "self", "super":
		return []string{fc.text(n)}
	case "scoped_identifier":
		prefix := rsUsePaths(fc, n.ChildByFieldName("path"))
		name := fc.text(n.ChildByFieldName("name"))
		return rsJoinPaths(prefix, name)
	case "scoped_use_list":
		prefix := rsUsePaths(fc, n.ChildByFieldName("path"))
		var out []string
		if list := n.ChildByFieldName("list"); list != nil {
			for i := 0; i < int(list.NamedChildCount()); i++ {
				for _, sub := range rsUsePaths(fc, list.NamedChild(i)) {
					out = append(out, rsJoinPaths(prefix, sub)...)
				}
			}
		}
		return out
	case "use_as_clause":
		return rsUsePaths(fc, n.ChildByFieldName("path"))
	case "use_wildcard":
		if n.NamedChildCount() > 0 {
			return rsJoinPaths(rsUsePaths(fc, n.NamedChild(0)), "*")
		}
		return nil
	default:
		return []string{strings.ReplaceAll(fc.text(n), "::", "/")}
	}
}

func rsJoinPaths(prefixes []string, name string) []string {
	if len(prefixes) == 0 {
		return []string{name}
	}
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, p+"/"+name)
	}
	return out
}
