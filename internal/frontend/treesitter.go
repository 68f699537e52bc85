package frontend

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kestrelsec/reach/internal/graph"
)

// tsFrontend is the scaffold shared by all tree-sitter grammar front-ends.
// Each language supplies its grammar and a per-file extraction walk.
type tsFrontend struct {
	lang    string
	grammar *sitter.Language
	extract func(fc *fileContext, root *sitter.Node)
}

func (f *tsFrontend) Language() string { return f.lang }

// Parse runs two passes: extract every file, then split the collected raw
// calls into intra-package edges (callee defined here) and unresolved
// references (cross-package, resolved later by the builder).
func (f *tsFrontend) Parse(ctx context.Context, pkg PackageInfo) (*Result, error) {
	files, err := listFiles(pkg, f.lang)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	res := &Result{}
	st := &pkgState{pkg: pkg, res: res, defined: make(map[string][]string)}

	parser := sitter.NewParser()
	parser.SetLanguage(f.grammar)

	for _, path := range files {
		// A dead context means the package blew its analysis budget; that is
		// a unit-level skip, not a per-file failure.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := os.ReadFile(path)
		if err != nil {
			res.Failures = append(res.Failures, FileFailure{File: path, Err: err.Error()})
			continue
		}
		tree, err := parser.ParseCtx(ctx, nil, src)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			res.Failures = append(res.Failures, FileFailure{File: path, Err: err.Error()})
			continue
		}
		fc := &fileContext{state: st, file: relPath(pkg, path), src: src}
		f.extract(fc, tree.RootNode())
		tree.Close()
	}

	st.finish()
	return res, nil
}

// pkgState accumulates package-wide extraction state across files.
type pkgState struct {
	pkg     PackageInfo
	res     *Result
	defined map[string][]string // bare trailing name -> node ids in this package
	raw     []rawCall
}

type rawCall struct {
	caller string
	name   string
	file   string
	line   int
	conf   graph.Confidence
}

// finish resolves raw calls against the package's own definitions. A match
// on the full (possibly qualified) name is exact; a match only on the
// trailing segment is heuristic, since the receiver is unknown. Everything
// else is queued for cross-package resolution.
func (s *pkgState) finish() {
	for _, c := range s.raw {
		conf := c.conf
		ids := s.defined[c.name]
		if ids == nil {
			if tail := tailName(c.name); tail != c.name {
				ids = s.defined[tail]
				conf = graph.ConfidenceHeuristic
			}
		}
		if len(ids) > 0 {
			// Self-recursion still counts as an edge.
			for _, id := range ids {
				s.res.Calls = append(s.res.Calls, graph.CallEdge{
					Caller: c.caller, Callee: id,
					Confidence: conf,
					File:       c.file, Line: c.line,
				})
			}
			continue
		}
		s.res.Unresolved = append(s.res.Unresolved, graph.UnresolvedCall{
			Caller: c.caller, Name: c.name, File: c.file, Line: c.line,
		})
	}
}

// fileContext carries per-file extraction state and the helpers language
// walks use to emit results.
type fileContext struct {
	state    *fileState
	file     string
	src      []byte
	toplevel string // lazily created toplevel node id
}

// fileState is an alias kept narrow so fileContext methods read naturally.
type fileState = pkgState

func (fc *fileContext) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(fc.src)
}

func (fc *fileContext) line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// addFunc registers a function definition and returns its node id.
func (fc *fileContext) addFunc(qualified string, n *sitter.Node, visibility string) string {
	id := graph.FuncID(fc.state.pkg.Name, qualified)
	fc.state.res.Functions = append(fc.state.res.Functions, graph.FunctionNode{
		ID:         id,
		Package:    fc.state.pkg.Name,
		Name:       qualified,
		File:       fc.file,
		Line:       fc.line(n),
		Visibility: visibility,
		Origin:     fc.state.pkg.Origin,
	})
	fc.state.defined[qualified] = append(fc.state.defined[qualified], id)
	if tail := tailName(qualified); tail != qualified {
		fc.state.defined[tail] = append(fc.state.defined[tail], id)
	}
	return id
}

// toplevelID returns the node standing in for the file's module-level code,
// creating it on first use. Script languages execute this code on import, so
// the entrypoint detector treats it as a root for application files.
func (fc *fileContext) toplevelID() string {
	if fc.toplevel == "" {
		name := "<toplevel>@" + filepath.Base(fc.file)
		fc.toplevel = fc.addFuncName(name)
	}
	return fc.toplevel
}

func (fc *fileContext) addFuncName(qualified string) string {
	id := graph.FuncID(fc.state.pkg.Name, qualified)
	fc.state.res.Functions = append(fc.state.res.Functions, graph.FunctionNode{
		ID:      id,
		Package: fc.state.pkg.Name,
		Name:    qualified,
		File:    fc.file,
		Line:    1,
		Origin:  fc.state.pkg.Origin,
	})
	fc.state.defined[qualified] = append(fc.state.defined[qualified], id)
	return id
}

// addCall records a call site; caller may be a function id or the toplevel.
func (fc *fileContext) addCall(caller, name string, n *sitter.Node) {
	fc.addCallConf(caller, name, graph.ConfidenceExact, n)
}

// addCallConf records a call site whose intra-package resolution should not
// be trusted beyond the given confidence (e.g. receiver-typed method calls).
func (fc *fileContext) addCallConf(caller, name string, conf graph.Confidence, n *sitter.Node) {
	if name == "" {
		return
	}
	fc.state.raw = append(fc.state.raw, rawCall{
		caller: caller, name: name, file: fc.file, line: fc.line(n), conf: conf,
	})
}

func (fc *fileContext) addImport(imp graph.Import) {
	fc.state.res.Imports = append(fc.state.res.Imports, imp)
}

func (fc *fileContext) addSignal(construct graph.Construct, esc graph.Escalation, funcID string, n *sitter.Node) {
	fc.state.res.Signals = append(fc.state.res.Signals, graph.DynamicSignal{
		Package:    fc.state.pkg.Name,
		File:       fc.file,
		FunctionID: funcID,
		Construct:  construct,
		Escalation: esc,
		Line:       fc.line(n),
	})
}

// walk visits n and its named descendants depth-first. The visitor returns
// false to prune a subtree.
func walk(n *sitter.Node, visit func(*sitter.Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), visit)
	}
}

// tailName returns the trailing segment of a dotted or slashed name.
func tailName(name string) string {
	if i := strings.LastIndexAny(name, "./"); i >= 0 && i+1 < len(name) {
		return name[i+1:]
	}
	return name
}

// joinName nests a member name under its enclosing scope.
func joinName(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}
