package frontend

import (
	"context"
	"fmt"
	"go/token"

	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/callgraph/cha"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/kestrelsec/reach/internal/graph"
)

// goFrontend leans on the Go build graph instead of parsing source itself:
// the toolchain already resolves every import and type, so the call graph
// comes from SSA plus class-hierarchy analysis rather than name matching.
type goFrontend struct{}

func newGoBuild() Frontend { return &goFrontend{} }

func (f *goFrontend) Language() string { return "go" }

// Calls into these force conservative treatment of the calling function:
// the real target is chosen at runtime.
var goReflectionTargets = map[string]bool{
	"(reflect.Value).Call":         true,
	"(reflect.Value).CallSlice":    true,
	"(reflect.Value).MethodByName": true,
	"plugin.Open":                  true,
}

func (f *goFrontend) Parse(ctx context.Context, pkg PackageInfo) (*Result, error) {
	cfg := &packages.Config{
		Context: ctx,
		Dir:     pkg.Dir,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedImports | packages.NeedDeps | packages.NeedTypes |
			packages.NeedSyntax | packages.NeedTypesInfo,
	}
	loaded, err := packages.Load(cfg, "./...")
	if err != nil {
		return nil, fmt.Errorf("load go packages in %s: %w", pkg.Dir, err)
	}

	res := &Result{}
	for _, p := range loaded {
		for _, e := range p.Errors {
			res.Failures = append(res.Failures, FileFailure{File: e.Pos, Err: e.Msg})
		}
	}

	prog, ssaPkgs := ssautil.AllPackages(loaded, ssa.InstantiateGenerics)
	prog.Build()

	// Packages named on the load pattern are the application; everything else
	// reached through the build graph is a dependency.
	application := make(map[*ssa.Package]bool, len(ssaPkgs))
	for _, p := range ssaPkgs {
		if p != nil {
			application[p] = true
		}
	}

	cg := cha.CallGraph(prog)
	seen := make(map[string]bool)
	for fn, node := range cg.Nodes {
		if !includeGoFunc(fn) {
			continue
		}
		id := f.addGoFunc(res, prog, fn, application, seen)
		for _, edge := range node.Out {
			f.addGoEdge(res, prog, id, edge, application, seen)
		}
	}
	return res, nil
}

// includeGoFunc filters SSA functions down to ones worth a graph node.
// Compiler-synthesized wrappers are noise, but package initializers carry
// real user code (package-level variable initialization and init funcs).
func includeGoFunc(fn *ssa.Function) bool {
	if fn == nil || fn.Pkg == nil {
		return false
	}
	return fn.Synthetic == "" || fn.Synthetic == "package initializer"
}

func (f *goFrontend) addGoFunc(res *Result, prog *ssa.Program, fn *ssa.Function, application map[*ssa.Package]bool, seen map[string]bool) string {
	pkgPath := fn.Pkg.Pkg.Path()
	name := fn.RelString(fn.Pkg.Pkg)
	id := graph.FuncID(pkgPath, name)
	if seen[id] {
		return id
	}
	seen[id] = true

	origin := graph.OriginDependency
	if application[fn.Pkg] {
		origin = graph.OriginApplication
	}
	visibility := "private"
	if token.IsExported(fn.Name()) {
		visibility = "public"
	}
	pos := prog.Fset.Position(fn.Pos())
	res.Functions = append(res.Functions, graph.FunctionNode{
		ID:         id,
		Package:    pkgPath,
		Name:       name,
		File:       pos.Filename,
		Line:       pos.Line,
		Visibility: visibility,
		Origin:     origin,
	})
	return id
}

func (f *goFrontend) addGoEdge(res *Result, prog *ssa.Program, callerID string, edge *callgraph.Edge, application map[*ssa.Package]bool, seen map[string]bool) {
	callee := edge.Callee.Func
	if callee == nil {
		return
	}

	if goReflectionTargets[callee.String()] {
		res.Signals = append(res.Signals, graph.DynamicSignal{
			Package:    graphPackage(callerID),
			FunctionID: callerID,
			Construct:  graph.ConstructReflection,
			Escalation: graph.EscalateFunction,
		})
		return
	}
	if !includeGoFunc(callee) {
		return
	}
	calleeID := f.addGoFunc(res, prog, callee, application, seen)

	// A statically dispatched site names its one target. CHA edges from an
	// interface or function-value call are candidates, not certainties.
	conf := graph.ConfidenceHeuristic
	if edge.Site != nil && edge.Site.Common().StaticCallee() != nil {
		conf = graph.ConfidenceExact
	}

	var file string
	var line int
	if edge.Site != nil {
		pos := prog.Fset.Position(edge.Site.Pos())
		file, line = pos.Filename, pos.Line
	}
	res.Calls = append(res.Calls, graph.CallEdge{
		Caller: callerID, Callee: calleeID,
		Confidence: conf,
		File:       file, Line: line,
	})
}

// graphPackage recovers the package half of a node id.
func graphPackage(id string) string {
	for i := 0; i+1 < len(id); i++ {
		if id[i] == ':' && id[i+1] == ':' {
			return id[:i]
		}
	}
	return id
}
