package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrelsec/reach/internal/graph"
)

func TestJavaScript_FunctionsCallsAndVisibility(t *testing.T) {
	res := parseFixture(t, "javascript", map[string]string{
		"main.js": `import { readFile } from 'fs';

export function publicApi() {
  inner();
}

function inner() {
  return 1;
}

const arrow = () => {
  publicApi();
};

class Box {
  open() {
    arrow();
  }
}

publicApi();
`,
	})

	api := requireFunc(t, res, "app::publicApi")
	assert.Equal(t, "public", api.Visibility)

	inner := requireFunc(t, res, "app::inner")
	assert.Equal(t, "private", inner.Visibility)

	requireFunc(t, res, "app::arrow")
	requireFunc(t, res, "app::Box.open")

	e := requireEdge(t, res, "app::publicApi", "app::inner")
	assert.Equal(t, graph.ConfidenceExact, e.Confidence)
	requireEdge(t, res, "app::arrow", "app::publicApi")
	requireEdge(t, res, "app::Box.open", "app::arrow")
	requireEdge(t, res, "app::<toplevel>@main.js", "app::publicApi")

	assert.Contains(t, importSources(res), "fs")
}

func TestJavaScript_RequireLiteralIsImportComputedIsSignal(t *testing.T) {
	res := parseFixture(t, "javascript", map[string]string{
		"loader.js": `const fs = require('fs');

function load(name) {
  return require(name);
}
`,
	})

	assert.Contains(t, importSources(res), "fs")
	assert.True(t, hasSignal(res, graph.ConstructDynamicImport, graph.EscalateFile))
}

func TestJavaScript_MemberCallTargetsObjectMethod(t *testing.T) {
	res := parseFixture(t, "javascript", map[string]string{
		"member.js": `function go(client) {
  client.fetch('/x');
  client.fetch.call(null, '/y');
}
`,
	})

	names := unresolvedNames(res)
	assert.Contains(t, names, "client.fetch")
}

func TestJavaScript_EvalAndSubscriptSignals(t *testing.T) {
	res := parseFixture(t, "javascript", map[string]string{
		"dyn.js": `function run(src, handlers, key) {
  eval(src);
  handlers[key]();
}
`,
	})
	assert.True(t, hasSignal(res, graph.ConstructEval, graph.EscalateFile))
	assert.True(t, hasSignal(res, graph.ConstructComputedCall, graph.EscalateFunction))
}

func TestJavaScript_ImportForms(t *testing.T) {
	res := parseFixture(t, "javascript", map[string]string{
		"imports.js": `import def from 'mod-a';
import * as ns from 'mod-b';
import { one, two as alias } from 'mod-c';
`,
	})

	byAlias := map[string]graph.Import{}
	for _, imp := range res.Imports {
		byAlias[imp.Alias] = imp
	}
	assert.Equal(t, "mod-a", byAlias["def"].Source)
	assert.Equal(t, "mod-b", byAlias["ns"].Source)
	assert.Equal(t, "mod-c", byAlias["one"].Source)
	assert.Equal(t, "mod-c", byAlias["alias"].Source)
	assert.Equal(t, []string{"two"}, byAlias["alias"].Symbols)
}

func TestTypeScript_AnnotatedSourceParses(t *testing.T) {
	res := parseFixture(t, "typescript", map[string]string{
		"greet.ts": `export const greet = (name: string): string => {
  return format(name);
};

function format(name: string): string {
  return name;
}
`,
	})

	g := requireFunc(t, res, "app::greet")
	assert.Equal(t, "public", g.Visibility)
	requireFunc(t, res, "app::format")

	e := requireEdge(t, res, "app::greet", "app::format")
	assert.Equal(t, graph.ConfidenceExact, e.Confidence)
}
