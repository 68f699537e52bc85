package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildLinear constructs main -> used -> helper plus an uncalled dead.
func buildLinear(t *testing.T) *Graph {
	t.Helper()
	b := NewBuilder()
	b.RegisterPackage("app", false)
	for _, name := range []string{"main", "used", "helper", "dead"} {
		b.AddNode(FunctionNode{
			ID: FuncID("app", name), Package: "app", Name: name,
			File: "main.py", Origin: OriginApplication,
		})
	}
	b.AddEdge(CallEdge{Caller: FuncID("app", "main"), Callee: FuncID("app", "used"), Confidence: ConfidenceExact})
	b.AddEdge(CallEdge{Caller: FuncID("app", "used"), Callee: FuncID("app", "helper"), Confidence: ConfidenceExact})
	return b.Freeze()
}

func TestReach_LinearChainWithDeadFunction(t *testing.T) {
	g := buildLinear(t)
	g.MarkEntrypoints([]Entrypoint{{FunctionID: FuncID("app", "main"), Rule: "process-entry"}})

	res := g.Reach(ReachOptions{})

	assert.Equal(t, []string{
		FuncID("app", "helper"),
		FuncID("app", "main"),
		FuncID("app", "used"),
	}, res.Reachable)
	assert.Equal(t, []string{FuncID("app", "dead")}, res.Unreachable)
}

func TestReach_PartitionIsDisjointAndComplete(t *testing.T) {
	g := buildLinear(t)
	g.MarkEntrypoints([]Entrypoint{{FunctionID: FuncID("app", "main"), Rule: "process-entry"}})

	res := g.Reach(ReachOptions{})

	seen := make(map[string]bool)
	for _, id := range res.Reachable {
		seen[id] = true
	}
	for _, id := range res.Unreachable {
		require.False(t, seen[id], "node %s in both sets", id)
		seen[id] = true
	}
	assert.Len(t, seen, len(g.Nodes))
}

func TestReach_CycleTerminates(t *testing.T) {
	b := NewBuilder()
	b.RegisterPackage("app", false)
	for _, name := range []string{"main", "a", "b"} {
		b.AddNode(FunctionNode{ID: FuncID("app", name), Package: "app", Name: name, Origin: OriginApplication})
	}
	b.AddEdge(CallEdge{Caller: FuncID("app", "main"), Callee: FuncID("app", "a"), Confidence: ConfidenceExact})
	b.AddEdge(CallEdge{Caller: FuncID("app", "a"), Callee: FuncID("app", "b"), Confidence: ConfidenceExact})
	b.AddEdge(CallEdge{Caller: FuncID("app", "b"), Callee: FuncID("app", "a"), Confidence: ConfidenceExact})
	g := b.Freeze()
	g.MarkEntrypoints([]Entrypoint{{FunctionID: FuncID("app", "main"), Rule: "process-entry"}})

	res := g.Reach(ReachOptions{})

	assert.Contains(t, res.Reachable, FuncID("app", "a"))
	assert.Contains(t, res.Reachable, FuncID("app", "b"))
	assert.Empty(t, res.Unreachable)
}

func TestReach_DynamicSignalEscalatesPackage(t *testing.T) {
	b := NewBuilder()
	b.RegisterPackage("mod", false)
	for _, name := range []string{"f1", "f2", "f3"} {
		b.AddNode(FunctionNode{ID: FuncID("mod", name), Package: "mod", Name: name, Origin: OriginDependency})
	}
	b.AddSignal(DynamicSignal{Package: "mod", Construct: ConstructEval, Escalation: EscalatePackage})
	g := b.Freeze()

	// No entrypoints at all: only the escalated scope is reachable.
	res := g.Reach(ReachOptions{})

	assert.Len(t, res.Reachable, 3)
	assert.Empty(t, res.Unreachable)
}

func TestReach_FileEscalationOnlyCoversThatFile(t *testing.T) {
	b := NewBuilder()
	b.RegisterPackage("app", false)
	b.AddNode(FunctionNode{ID: FuncID("app", "inFile"), Package: "app", Name: "inFile", File: "dyn.rb", Origin: OriginApplication})
	b.AddNode(FunctionNode{ID: FuncID("app", "elsewhere"), Package: "app", Name: "elsewhere", File: "other.rb", Origin: OriginApplication})
	b.AddSignal(DynamicSignal{Package: "app", File: "dyn.rb", Construct: ConstructEval, Escalation: EscalateFile})
	g := b.Freeze()

	res := g.Reach(ReachOptions{})

	assert.Equal(t, []string{FuncID("app", "inFile")}, res.Reachable)
	assert.Equal(t, []string{FuncID("app", "elsewhere")}, res.Unreachable)
}

func TestReach_FileEscalationScopedToSignalPackage(t *testing.T) {
	b := NewBuilder()
	b.RegisterPackage("liba", false)
	b.RegisterPackage("libb", false)
	// Two packages whose entry files share a basename.
	b.AddNode(FunctionNode{ID: FuncID("liba", "setup"), Package: "liba", Name: "setup", File: "index.js", Origin: OriginDependency})
	b.AddNode(FunctionNode{ID: FuncID("libb", "setup"), Package: "libb", Name: "setup", File: "index.js", Origin: OriginDependency})
	b.AddSignal(DynamicSignal{Package: "liba", File: "index.js", Construct: ConstructEval, Escalation: EscalateFile})
	g := b.Freeze()

	res := g.Reach(ReachOptions{})

	assert.Equal(t, []string{FuncID("liba", "setup")}, res.Reachable)
	assert.Equal(t, []string{FuncID("libb", "setup")}, res.Unreachable)
}

func TestReach_StrictModeExcludesHeuristicEdges(t *testing.T) {
	b := NewBuilder()
	b.RegisterPackage("app", false)
	for _, name := range []string{"main", "viaExact", "viaGuess"} {
		b.AddNode(FunctionNode{ID: FuncID("app", name), Package: "app", Name: name, Origin: OriginApplication})
	}
	b.AddEdge(CallEdge{Caller: FuncID("app", "main"), Callee: FuncID("app", "viaExact"), Confidence: ConfidenceExact})
	b.AddEdge(CallEdge{Caller: FuncID("app", "main"), Callee: FuncID("app", "viaGuess"), Confidence: ConfidenceHeuristic})
	g := b.Freeze()
	g.MarkEntrypoints([]Entrypoint{{FunctionID: FuncID("app", "main"), Rule: "process-entry"}})

	lenient := g.Reach(ReachOptions{})
	assert.Contains(t, lenient.Reachable, FuncID("app", "viaGuess"))

	strict := g.Reach(ReachOptions{Strict: true})
	assert.Contains(t, strict.Reachable, FuncID("app", "viaExact"))
	assert.Contains(t, strict.Unreachable, FuncID("app", "viaGuess"))
}

func TestReach_Deterministic(t *testing.T) {
	g := buildLinear(t)
	g.MarkEntrypoints([]Entrypoint{{FunctionID: FuncID("app", "main"), Rule: "process-entry"}})

	first := g.Reach(ReachOptions{})
	for range 10 {
		again := g.Reach(ReachOptions{})
		require.Equal(t, first.Reachable, again.Reachable)
		require.Equal(t, first.Unreachable, again.Unreachable)
	}
}
