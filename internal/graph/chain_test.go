package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortestChain_ReturnsValidPath(t *testing.T) {
	g := buildLinear(t)
	g.MarkEntrypoints([]Entrypoint{{FunctionID: FuncID("app", "main"), Rule: "process-entry"}})

	chain := g.ShortestChain(FuncID("app", "helper"))

	require.Equal(t, []string{
		FuncID("app", "main"),
		FuncID("app", "used"),
		FuncID("app", "helper"),
	}, chain)

	// Consecutive ids must be connected by a call edge.
	for i := 0; i < len(chain)-1; i++ {
		assert.Contains(t, g.Callees(chain[i]), chain[i+1])
	}
	assert.True(t, g.Nodes[chain[0]].Entrypoint)
}

func TestShortestChain_TargetIsEntrypoint(t *testing.T) {
	g := buildLinear(t)
	g.MarkEntrypoints([]Entrypoint{{FunctionID: FuncID("app", "main"), Rule: "process-entry"}})

	assert.Equal(t, []string{FuncID("app", "main")}, g.ShortestChain(FuncID("app", "main")))
}

func TestShortestChain_NoPath(t *testing.T) {
	g := buildLinear(t)
	g.MarkEntrypoints([]Entrypoint{{FunctionID: FuncID("app", "main"), Rule: "process-entry"}})

	assert.Nil(t, g.ShortestChain(FuncID("app", "dead")))
	assert.Nil(t, g.ShortestChain("nope::nope"))
}

func TestShortestChain_PrefersShorterThenLexicographic(t *testing.T) {
	b := NewBuilder()
	b.RegisterPackage("app", false)
	// Two equal-length routes to target: via mid_a and via mid_b.
	for _, name := range []string{"entry", "mid_a", "mid_b", "target", "long1", "long2"} {
		b.AddNode(FunctionNode{ID: FuncID("app", name), Package: "app", Name: name, Origin: OriginApplication})
	}
	edge := func(from, to string) {
		b.AddEdge(CallEdge{Caller: FuncID("app", from), Callee: FuncID("app", to), Confidence: ConfidenceExact})
	}
	edge("entry", "mid_a")
	edge("entry", "mid_b")
	edge("mid_a", "target")
	edge("mid_b", "target")
	// A longer route that must lose to the two-hop ones.
	edge("entry", "long1")
	edge("long1", "long2")
	edge("long2", "target")
	g := b.Freeze()
	g.MarkEntrypoints([]Entrypoint{{FunctionID: FuncID("app", "entry"), Rule: "process-entry"}})

	want := []string{FuncID("app", "entry"), FuncID("app", "mid_a"), FuncID("app", "target")}
	for range 5 {
		require.Equal(t, want, g.ShortestChain(FuncID("app", "target")))
	}
}
