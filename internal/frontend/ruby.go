package frontend

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"

	"github.com/kestrelsec/reach/internal/graph"
)

func newRuby() Frontend {
	return &tsFrontend{lang: "ruby", grammar: ruby.GetLanguage(), extract: extractRuby}
}

func extractRuby(fc *fileContext, root *sitter.Node) {
	rbWalk(fc, root, "", "")
}

func rbWalk(fc *fileContext, n *sitter.Node, classScope, callerID string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "method", "singleton_method":
			name := fc.text(child.ChildByFieldName("name"))
			id := fc.addFunc(joinName(classScope, name), child, "public")
			rbWalk(fc, child, classScope, id)

		case "class", "module":
			name := fc.text(child.ChildByFieldName("name"))
			rbWalk(fc, child, joinName(classScope, name), callerID)

		case "call":
			rbCall(fc, child, classScope, callerID)
			if args := child.ChildByFieldName("arguments"); args != nil {
				rbWalk(fc, args, classScope, callerID)
			}
			if block := child.ChildByFieldName("block"); block != nil {
				rbWalk(fc, block, classScope, callerID)
			}

		default:
			rbWalk(fc, child, classScope, callerID)
		}
	}
}

func rbCall(fc *fileContext, call *sitter.Node, classScope, callerID string) {
	caller := callerID
	if caller == "" {
		caller = fc.toplevelID()
	}

	method := fc.text(call.ChildByFieldName("method"))
	if method == "" {
		return
	}

	switch method {
	case "require", "require_relative", "load", "gem":
		if src, ok := rbStringArg(fc, call); ok {
			fc.addImport(graph.Import{Source: src})
			return
		}
		fc.addSignal(graph.ConstructDynamicImport, graph.EscalateFile, caller, call)
		return
	case "eval", "instance_eval", "class_eval", "module_eval":
		fc.addSignal(graph.ConstructEval, graph.EscalateFile, caller, call)
	case "send", "__send__", "public_send", "method", "define_method", "instance_variable_get", "const_get":
		// Reflective dispatch: the receiver decides the target at runtime.
		fc.addSignal(graph.ConstructReflection, graph.EscalateFunction, caller, call)
	}

	name := method
	if recv := call.ChildByFieldName("receiver"); recv != nil {
		if recv.Type() == "identifier" || recv.Type() == "constant" {
			name = fc.text(recv) + "." + method
		}
	}
	fc.addCall(caller, name, call)
}

func rbStringArg(fc *fileContext, call *sitter.Node) (string, bool) {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return "", false
	}
	arg := args.NamedChild(0)
	if arg.Type() != "string" {
		return "", false
	}
	return trimRubyString(fc.text(arg)), true
}

func trimRubyString(s string) string {
	for len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return s
}
