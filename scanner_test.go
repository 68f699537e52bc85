package reach

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/reach/internal/frontend"
	"github.com/kestrelsec/reach/internal/graph"
	"github.com/kestrelsec/reach/internal/resolver"
)

// pythonProject writes a small project with one vendored dependency (liba),
// one dependency that cannot be located (ghost), and an application that
// calls liba.process but never liba.dead.
func pythonProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, root, "requirements.txt", "liba==1.4.0\nghost==1.0.0\n")
	writeFile(t, root, "app.py", `import liba

def main():
    liba.process()

main()
`)
	writeFile(t, root, ".venv/lib/python3.12/site-packages/liba/core.py", `def process():
    helper()

def helper():
    pass

def dead():
    pass
`)
	return root
}

func writeFile(t *testing.T, root string, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func advisories(t *testing.T) []Record {
	t.Helper()
	path := filepath.Join(t.TempDir(), "osv.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {
    "id": "OSV-2024-1000",
    "summary": "process mishandles input",
    "affected": [{
      "package": {"ecosystem": "pypi", "name": "liba"},
      "ranges": [{"type": "SEMVER", "events": [{"introduced": "0"}, {"fixed": "2.0.0"}]}],
      "ecosystem_specific": {"symbols": ["process"]}
    }]
  },
  {
    "id": "OSV-2024-2000",
    "summary": "dead code path",
    "affected": [{
      "package": {"ecosystem": "pypi", "name": "liba"},
      "ecosystem_specific": {"symbols": ["dead"]}
    }]
  },
  {
    "id": "OSV-2024-3000",
    "summary": "ghost vulnerability",
    "affected": [{
      "package": {"ecosystem": "pypi", "name": "ghost"}
    }]
  }
]`), 0o644))

	recs, err := LoadRecords(path)
	require.NoError(t, err)
	return recs
}

func scanProject(t *testing.T, root string, opts ...Option) *Report {
	t.Helper()
	s, err := NewScanner(root, opts...)
	require.NoError(t, err)
	defer s.Close()

	report, err := s.Scan(context.Background(), advisories(t))
	require.NoError(t, err)
	return report
}

func findingByID(t *testing.T, report *Report, id string) Finding {
	t.Helper()
	for _, f := range report.Findings {
		if f.ID == id {
			return f
		}
	}
	t.Fatalf("finding %s not in report", id)
	return Finding{}
}

func TestScan_EndToEndVerdicts(t *testing.T) {
	report := scanProject(t, pythonProject(t))

	require.Len(t, report.Findings, 3)

	reachable := findingByID(t, report, "OSV-2024-1000")
	assert.Equal(t, VerdictReachable, reachable.Verdict)
	require.Len(t, reachable.Symbols, 1)
	chain := reachable.Symbols[0].Chain
	require.NotEmpty(t, chain)
	assert.Equal(t, "liba::process", chain[len(chain)-1])

	assert.Equal(t, VerdictUnreachable, findingByID(t, report, "OSV-2024-2000").Verdict)

	ghost := findingByID(t, report, "OSV-2024-3000")
	assert.Equal(t, VerdictUnknown, ghost.Verdict)
	assert.Equal(t, "package code not located", ghost.Reason)
}

func TestScan_ReportShape(t *testing.T) {
	report := scanProject(t, pythonProject(t))

	assert.NotEmpty(t, report.ScanID)
	assert.Contains(t, report.Ecosystems, "pypi")
	assert.NotZero(t, report.TotalFunctions)
	assert.NotEmpty(t, report.Entrypoints)
	assert.Equal(t, []string{"ghost"}, report.Diagnostics.MissingPackages)
	assert.Empty(t, report.Diagnostics.TimedOutPackages)

	// Entry points feed the reachable set: main and the module toplevel.
	assert.NotEmpty(t, report.Reachable)
	assert.Contains(t, report.Unreachable, "liba::dead")
}

func TestScan_PackageTimeoutIsRecordedAndConservative(t *testing.T) {
	report := scanProject(t, pythonProject(t), WithPackageTimeout(time.Nanosecond))

	// An unmeetable budget skips every parse unit; the dependency must be
	// flagged, and its advisory can only degrade to unknown, never to
	// unreachable.
	assert.Contains(t, report.Diagnostics.TimedOutPackages, "liba")
	f := findingByID(t, report, "OSV-2024-1000")
	assert.Equal(t, VerdictUnknown, f.Verdict)
}

func TestBuildGraph_TimedOutPackageStaysReachable(t *testing.T) {
	s, err := NewScanner(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	app := s.appName()
	proj := &resolver.Project{Deps: []resolver.Package{
		{Name: "liba", Version: "1.4.0", Origin: resolver.OriginVendored, Ecosystem: "pypi"},
	}}
	merged := &scanResults{
		results: []parsedResult{{
			unit: parseUnit{pkg: frontend.PackageInfo{Name: app}},
			res: &frontend.Result{
				Functions: []graph.FunctionNode{{
					ID: graph.FuncID(app, "main"), Package: app, Name: "main", Origin: graph.OriginApplication,
				}},
				Unresolved: []graph.UnresolvedCall{{Caller: graph.FuncID(app, "main"), Name: "liba.process"}},
				Imports:    []graph.Import{{Source: "liba"}},
			},
		}},
		timedOut: []string{"liba"},
	}

	g := s.buildGraph(proj, merged)
	g.MarkEntrypoints([]graph.Entrypoint{{FunctionID: graph.FuncID(app, "main"), Rule: "process-entry"}})
	res := g.Reach(graph.ReachOptions{})

	// The located-but-unparsed package behaves like a missing one: the
	// reference materializes as a synthetic node, conservatively reachable.
	require.Len(t, g.Edges, 1)
	assert.Equal(t, graph.ConfidenceConservative, g.Edges[0].Confidence)
	assert.Contains(t, res.Reachable, "liba::process")
}

func TestScan_CacheHitsOnSecondRun(t *testing.T) {
	root := pythonProject(t)
	cachePath := filepath.Join(t.TempDir(), "reach.db")

	cold := scanProject(t, root, WithCachePath(cachePath))
	assert.Zero(t, cold.Diagnostics.CacheHits)

	warm := scanProject(t, root, WithCachePath(cachePath))
	assert.Equal(t, 1, warm.Diagnostics.CacheHits)

	// Cached and cold scans agree.
	assert.Equal(t, cold.TotalFunctions, warm.TotalFunctions)
	assert.Equal(t, len(cold.Findings), len(warm.Findings))
}

func TestScan_UnopenableCacheScansCold(t *testing.T) {
	root := pythonProject(t)
	report := scanProject(t, root, WithCachePath(filepath.Join(root, "no", "such", "dir", "c.db")))
	assert.Len(t, report.Findings, 3)
}

func TestScan_LanguageRestrictionLeavesPackageUnknown(t *testing.T) {
	report := scanProject(t, pythonProject(t), WithLanguages("ruby"))

	f := findingByID(t, report, "OSV-2024-1000")
	assert.Equal(t, VerdictUnknown, f.Verdict)
	assert.Equal(t, "package produced no analyzable functions", f.Reason)
}

func TestScan_CustomRuleScript(t *testing.T) {
	root := pythonProject(t)
	writeFile(t, root, "jobs.py", `def job_nightly():
    pass
`)

	report := scanProject(t, root, WithRuleScript("jobs", `fn_name.has_prefix("job_")`))

	var rules []string
	for _, ep := range report.Entrypoints {
		rules = append(rules, ep.Rule)
	}
	assert.Contains(t, rules, "jobs")
}

func TestScan_MissingRootFails(t *testing.T) {
	s, err := NewScanner(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Scan(context.Background(), nil)
	require.Error(t, err)
}

func TestScannerOptions(t *testing.T) {
	s, err := NewScanner(t.TempDir(),
		WithStrictConfidence(),
		WithPackageTimeout(5*time.Second),
		WithWorkers(2),
		WithLanguages("python", "java"),
		WithVendorDirs("third_party"),
	)
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.strict)
	assert.Equal(t, 5*time.Second, s.timeout)
	assert.Equal(t, 2, s.workers)
	assert.True(t, s.enabled("python"))
	assert.False(t, s.enabled("ruby"))
	assert.Equal(t, []string{"third_party"}, s.vendorDirs)
}

func TestReport_Writers(t *testing.T) {
	report := scanProject(t, pythonProject(t))

	var jsonBuf bytes.Buffer
	require.NoError(t, report.WriteJSON(&jsonBuf))
	assert.Contains(t, jsonBuf.String(), `"scan_id"`)
	assert.Contains(t, jsonBuf.String(), "OSV-2024-1000")

	var textBuf bytes.Buffer
	require.NoError(t, report.WriteText(&textBuf))
	assert.Contains(t, textBuf.String(), "[reachable] OSV-2024-1000")
	assert.Contains(t, textBuf.String(), "missing packages: [ghost]")
}
