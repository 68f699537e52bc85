package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrelsec/reach/internal/graph"
)

func TestRust_FunctionsImplBlocksAndCalls(t *testing.T) {
	res := parseFixture(t, "rust", map[string]string{
		"lib.rs": `use serde::Deserialize;
use std::collections::{HashMap, HashSet};

pub fn public_api() {
    helper();
    util::shared();
}

fn helper() {
    println!("fine");
}

mod util {
    pub fn shared() {}
}

struct Widget;

impl Widget {
    pub fn render(&self) {
        public_api();
    }
}
`,
	})

	api := requireFunc(t, res, "app::public_api")
	assert.Equal(t, "public", api.Visibility)
	h := requireFunc(t, res, "app::helper")
	assert.Equal(t, "private", h.Visibility)
	requireFunc(t, res, "app::util.shared")
	requireFunc(t, res, "app::Widget.render")

	e := requireEdge(t, res, "app::public_api", "app::helper")
	assert.Equal(t, graph.ConfidenceExact, e.Confidence)

	// util::shared() only matches on its trailing segment, so the edge is
	// heuristic rather than exact.
	shared := requireEdge(t, res, "app::public_api", "app::util.shared")
	assert.Equal(t, graph.ConfidenceHeuristic, shared.Confidence)

	requireEdge(t, res, "app::Widget.render", "app::public_api")

	sources := importSources(res)
	assert.Contains(t, sources, "serde/Deserialize")
	assert.Contains(t, sources, "std/collections/HashMap")
	assert.Contains(t, sources, "std/collections/HashSet")

	// println! is on the benign list.
	assert.False(t, hasSignal(res, graph.ConstructMacro, graph.EscalateFunction))
}

func TestRust_UnknownMacroEmitsSignal(t *testing.T) {
	res := parseFixture(t, "rust", map[string]string{
		"gen.rs": `fn generated() {
    custom_dispatch!(route);
}
`,
	})
	assert.True(t, hasSignal(res, graph.ConstructMacro, graph.EscalateFunction))
}

func TestRust_MethodCallIsHeuristic(t *testing.T) {
	res := parseFixture(t, "rust", map[string]string{
		"m.rs": `struct Conn;

impl Conn {
    fn send(&self) {}
}

fn go(c: Conn) {
    c.send();
}
`,
	})

	e := requireEdge(t, res, "app::go", "app::Conn.send")
	assert.Equal(t, graph.ConfidenceHeuristic, e.Confidence)
}

func TestRust_UseAsClauseKeepsPath(t *testing.T) {
	res := parseFixture(t, "rust", map[string]string{
		"u.rs": `use tokio::runtime as rt;
`,
	})
	assert.Contains(t, importSources(res), "tokio/runtime")
}
