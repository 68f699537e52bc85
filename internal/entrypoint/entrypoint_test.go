package entrypoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/reach/internal/graph"
)

func buildGraph(t *testing.T, nodes ...graph.FunctionNode) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder()
	for _, n := range nodes {
		b.RegisterPackage(n.Package, false)
		b.AddNode(n)
	}
	return b.Freeze()
}

func appNode(pkg, name, file string) graph.FunctionNode {
	return graph.FunctionNode{
		ID: graph.FuncID(pkg, name), Package: pkg, Name: name, File: file,
		Visibility: "public", Origin: graph.OriginApplication,
	}
}

func ruleFor(eps []graph.Entrypoint, id string) (string, bool) {
	for _, ep := range eps {
		if ep.FunctionID == id {
			return ep.Rule, true
		}
	}
	return "", false
}

func TestDetect_ProcessEntryAndToplevel(t *testing.T) {
	g := buildGraph(t,
		appNode("app", "main", "main.py"),
		appNode("app", "<toplevel>@cli.py", "cli.py"),
		appNode("app", "quiet_helper", "util.py"),
	)

	eps := NewDetector().Detect(context.Background(), g)

	rule, ok := ruleFor(eps, "app::main")
	require.True(t, ok)
	assert.Equal(t, "process-entry", rule)

	rule, ok = ruleFor(eps, "app::<toplevel>@cli.py")
	require.True(t, ok)
	assert.Equal(t, "toplevel", rule)

	_, ok = ruleFor(eps, "app::quiet_helper")
	assert.False(t, ok)

	assert.True(t, g.Nodes["app::main"].Entrypoint)
	assert.False(t, g.Nodes["app::quiet_helper"].Entrypoint)
}

func TestDetect_JavaQualifiedMain(t *testing.T) {
	g := buildGraph(t,
		appNode("app", "com.example.Main.main", "Main.class"),
		appNode("app", "com.example.Main.helper", "Main.class"),
	)

	eps := NewDetector().Detect(context.Background(), g)

	rule, ok := ruleFor(eps, "app::com.example.Main.main")
	require.True(t, ok)
	assert.Equal(t, "process-entry", rule)
}

func TestDetect_Tests(t *testing.T) {
	g := buildGraph(t,
		appNode("app", "test_login", "tests/test_auth.py"),
		appNode("app", "TestScanner", "scanner_test.go"),
		appNode("app", "BenchmarkParse", "parse_test.go"),
		appNode("app", "Transform", "transform.go"),
	)

	eps := NewDetector().Detect(context.Background(), g)

	for _, id := range []string{"app::test_login", "app::TestScanner", "app::BenchmarkParse"} {
		rule, ok := ruleFor(eps, id)
		require.True(t, ok, id)
		assert.Equal(t, "test", rule, id)
	}
	_, ok := ruleFor(eps, "app::Transform")
	assert.False(t, ok)
}

func TestDetect_FrameworkHandlerShapes(t *testing.T) {
	private := graph.FunctionNode{
		ID: "app::handle_hidden", Package: "app", Name: "handle_hidden",
		Visibility: "private", Origin: graph.OriginApplication,
	}
	g := buildGraph(t,
		appNode("app", "lambda_handler", "fn.py"),
		appNode("app", "Jobs.perform", "jobs.rb"),
		appNode("app", "RequestHandler", "serve.js"),
		private,
	)

	eps := NewDetector().Detect(context.Background(), g)

	for _, id := range []string{"app::lambda_handler", "app::Jobs.perform", "app::RequestHandler"} {
		rule, ok := ruleFor(eps, id)
		require.True(t, ok, id)
		assert.Equal(t, "framework-handler", rule, id)
	}
	_, ok := ruleFor(eps, "app::handle_hidden")
	assert.False(t, ok)
}

func TestDetect_DependencyFunctionsAreNeverRoots(t *testing.T) {
	dep := graph.FunctionNode{
		ID: "lib::main", Package: "lib", Name: "main",
		Visibility: "public", Origin: graph.OriginDependency,
	}
	g := buildGraph(t, appNode("app", "main", "main.py"), dep)

	eps := NewDetector().Detect(context.Background(), g)

	_, ok := ruleFor(eps, "lib::main")
	assert.False(t, ok)
}

func TestDetect_ZeroMatchesFailsOpen(t *testing.T) {
	g := buildGraph(t,
		appNode("app", "alpha", "a.py"),
		appNode("app", "beta", "b.py"),
	)

	eps := NewDetector().Detect(context.Background(), g)

	require.Len(t, eps, 2)
	for _, ep := range eps {
		assert.Equal(t, "fail-open", ep.Rule)
	}
	assert.True(t, g.Nodes["app::alpha"].Entrypoint)
	assert.True(t, g.Nodes["app::beta"].Entrypoint)
}

func TestDetect_Deterministic(t *testing.T) {
	g := buildGraph(t,
		appNode("app", "main", "m.py"),
		appNode("app", "test_x", "t.py"),
		appNode("app", "handler", "h.py"),
	)

	first := NewDetector().Detect(context.Background(), g)
	second := NewDetector().Detect(context.Background(), g)
	assert.Equal(t, first, second)
}

func TestScriptRule_MatchesByExpression(t *testing.T) {
	rule := NewScriptRule("jobs", `fn_name.has_prefix("job_") && fn_visibility == "public"`)

	job := appNode("app", "job_sync", "jobs.py")
	other := appNode("app", "helper", "util.py")

	assert.True(t, rule.Match(context.Background(), &job))
	assert.False(t, rule.Match(context.Background(), &other))
}

func TestScriptRule_BrokenScriptDisablesItself(t *testing.T) {
	rule := NewScriptRule("broken", `this is not risor (((`)

	fn := appNode("app", "main", "m.py")
	assert.False(t, rule.Match(context.Background(), &fn))
	assert.False(t, rule.Match(context.Background(), &fn))
}

func TestLoadScriptRule_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.risor")
	require.NoError(t, os.WriteFile(path, []byte(`fn_name.has_prefix("job_")`), 0o644))

	rule, err := LoadScriptRule(path)
	require.NoError(t, err)
	assert.Equal(t, "jobs.risor", rule.Name())

	job := appNode("app", "job_sync", "jobs.py")
	assert.True(t, rule.Match(context.Background(), &job))

	_, err = LoadScriptRule(filepath.Join(t.TempDir(), "absent.risor"))
	require.Error(t, err)
}

func TestDetect_ScriptRuleWiredThroughDetector(t *testing.T) {
	g := buildGraph(t,
		appNode("app", "job_ingest", "jobs.py"),
		appNode("app", "main", "m.py"),
	)

	d := NewDetector(WithRules(NewScriptRule("jobs", `fn_name.has_prefix("job_")`)))
	eps := d.Detect(context.Background(), g)

	rule, ok := ruleFor(eps, "app::job_ingest")
	require.True(t, ok)
	assert.Equal(t, "jobs", rule)
}