// Package entrypoint decides which functions are roots of execution:
// process entries, tests, script top-level code, framework handler shapes,
// and anything a user-provided rule script claims.
package entrypoint

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/kestrelsec/reach/internal/graph"
)

// Rule decides whether one function is an execution root.
type Rule interface {
	Name() string
	Match(ctx context.Context, fn *graph.FunctionNode) bool
}

// Detector evaluates rules against every application function in a graph.
type Detector struct {
	rules []Rule
	log   *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithRules appends rules after the universal set.
func WithRules(rules ...Rule) Option {
	return func(d *Detector) { d.rules = append(d.rules, rules...) }
}

// WithLogger sets the detector's logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Detector) { d.log = log }
}

// NewDetector builds a detector carrying the universal rules plus any
// configured extras.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{rules: universalRules(), log: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect marks and returns the graph's entrypoints. Rules only apply to
// application code; dependency functions are never roots on their own. When
// nothing matches, detection fails open: every function becomes a root, since
// reporting everything unreachable would be worse than reporting nothing.
func (d *Detector) Detect(ctx context.Context, g *graph.Graph) []graph.Entrypoint {
	var eps []graph.Entrypoint
	for _, id := range g.SortedIDs() {
		fn := g.Nodes[id]
		if fn.Origin != graph.OriginApplication {
			continue
		}
		for _, r := range d.rules {
			if r.Match(ctx, fn) {
				eps = append(eps, graph.Entrypoint{FunctionID: id, Rule: r.Name()})
				break
			}
		}
	}

	if len(eps) == 0 {
		d.log.Warn("no entrypoints detected, failing open", "functions", len(g.Nodes))
		for _, id := range g.SortedIDs() {
			eps = append(eps, graph.Entrypoint{FunctionID: id, Rule: "fail-open"})
		}
	}

	sort.Slice(eps, func(i, j int) bool { return eps[i].FunctionID < eps[j].FunctionID })
	g.MarkEntrypoints(eps)
	return eps
}

func universalRules() []Rule {
	return []Rule{
		funcRule{name: "process-entry", match: isProcessEntry},
		funcRule{name: "toplevel", match: isToplevel},
		funcRule{name: "test", match: isTest},
		funcRule{name: "framework-handler", match: isFrameworkHandler},
	}
}

// funcRule adapts a plain predicate to the Rule interface.
type funcRule struct {
	name  string
	match func(fn *graph.FunctionNode) bool
}

func (r funcRule) Name() string { return r.name }

func (r funcRule) Match(_ context.Context, fn *graph.FunctionNode) bool {
	return r.match(fn)
}

// isProcessEntry matches the OS-facing entry: main, Main.main, fn main.
func isProcessEntry(fn *graph.FunctionNode) bool {
	return tail(fn.Name) == "main"
}

// isToplevel matches the synthetic node for a script file's module-level
// code. Dependency toplevels are excluded already by the origin filter: a
// library's import-time code runs only if something imports it.
func isToplevel(fn *graph.FunctionNode) bool {
	return strings.HasPrefix(fn.Name, "<toplevel>@")
}

// isTest matches test functions by the naming conventions the ecosystems
// enforce: pytest's test_*, Go's Test*/Benchmark* in _test.go files, xUnit
// style test* methods in test files.
func isTest(fn *graph.FunctionNode) bool {
	name := tail(fn.Name)
	if strings.HasPrefix(name, "test_") || strings.HasPrefix(name, "test") && strings.Contains(fn.File, "test") {
		return true
	}
	if strings.HasSuffix(fn.File, "_test.go") &&
		(strings.HasPrefix(name, "Test") || strings.HasPrefix(name, "Benchmark") || strings.HasPrefix(name, "Fuzz")) {
		return true
	}
	return false
}

// isFrameworkHandler matches the common shapes frameworks invoke without a
// visible caller: HTTP/route handlers, job workers, CLI command bodies.
func isFrameworkHandler(fn *graph.FunctionNode) bool {
	if fn.Visibility == "private" {
		return false
	}
	name := tail(fn.Name)
	switch name {
	case "handler", "handle", "lambda_handler", "perform", "__invoke", "call", "execute", "run":
		return true
	}
	return strings.HasSuffix(name, "Handler") || strings.HasSuffix(name, "_handler")
}

func tail(name string) string {
	if i := strings.LastIndexAny(name, "./"); i >= 0 && i+1 < len(name) {
		return name[i+1:]
	}
	return name
}
