package reach

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kestrelsec/reach/internal/cache"
	"github.com/kestrelsec/reach/internal/entrypoint"
	"github.com/kestrelsec/reach/internal/graph"
	"github.com/kestrelsec/reach/internal/resolver"
	"github.com/kestrelsec/reach/internal/vulnmap"
)

// AnalyzerVersion names the current grammar/decoder generation. Bumping it
// invalidates every cached parse result.
const AnalyzerVersion = "reach-analyzer/3"

// Scanner orchestrates the pipeline: dependency resolution, per-package
// parsing, call-graph construction, entrypoint detection, reachability, and
// vulnerability verdicts.
type Scanner struct {
	root       string
	log        *slog.Logger
	strict     bool
	timeout    time.Duration
	workers    int
	cachePath  string
	cache      *cache.Store
	languages  map[string]bool // nil means all languages
	rules      []entrypoint.Rule
	vendorDirs []string
	cacheDirs  []string
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithStrictConfidence makes the reachability traversal follow only exact
// edges. Dynamic-signal escalations still apply.
func WithStrictConfidence() Option {
	return func(s *Scanner) { s.strict = true }
}

// WithPackageTimeout bounds how long a single package may take to parse.
// A package that exceeds it is skipped and treated as unanalyzable.
func WithPackageTimeout(d time.Duration) Option {
	return func(s *Scanner) { s.timeout = d }
}

// WithWorkers sets the parallel parse worker count.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithCachePath enables the SQLite parse cache at the given path.
func WithCachePath(path string) Option {
	return func(s *Scanner) { s.cachePath = path }
}

// WithLanguages restricts which languages the Scanner will process.
func WithLanguages(languages ...string) Option {
	return func(s *Scanner) {
		s.languages = make(map[string]bool, len(languages))
		for _, lang := range languages {
			s.languages[lang] = true
		}
	}
}

// WithEntrypointRules appends detection rules after the universal set.
func WithEntrypointRules(rules ...entrypoint.Rule) Option {
	return func(s *Scanner) { s.rules = append(s.rules, rules...) }
}

// WithRuleScript appends a Risor-scripted entrypoint rule.
func WithRuleScript(name, source string) Option {
	return func(s *Scanner) {
		s.rules = append(s.rules, entrypoint.NewScriptRule(name, source))
	}
}

// WithVendorDirs adds extra vendored-dependency directories, relative to the
// project root, searched before any global cache.
func WithVendorDirs(dirs ...string) Option {
	return func(s *Scanner) { s.vendorDirs = append(s.vendorDirs, dirs...) }
}

// WithCacheDirs adds extra global dependency-cache directories.
func WithCacheDirs(dirs ...string) Option {
	return func(s *Scanner) { s.cacheDirs = append(s.cacheDirs, dirs...) }
}

// WithLogger sets the scanner's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scanner) { s.log = log }
}

// NewScanner creates a Scanner for the project at root.
func NewScanner(root string, opts ...Option) (*Scanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("reach: resolve root: %w", err)
	}
	s := &Scanner{
		root:    abs,
		log:     slog.Default(),
		timeout: 30 * time.Second,
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cachePath != "" {
		// The cache is an optimization: if it cannot be opened the scan
		// proceeds cold.
		c, err := cache.Open(s.cachePath)
		if err == nil {
			err = c.Migrate(AnalyzerVersion)
		}
		if err != nil {
			s.log.Warn("parse cache unavailable, scanning cold", "path", s.cachePath, "error", err)
		} else {
			s.cache = c
		}
	}
	return s, nil
}

// Close releases the Scanner's cache resources.
func (s *Scanner) Close() error {
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}

// Scan runs the full pipeline and cross-references the given vulnerability
// records against the computed reachable set.
func (s *Scanner) Scan(ctx context.Context, records []vulnmap.Record) (*Report, error) {
	started := time.Now()

	proj, err := resolver.Resolve(s.root, resolver.Options{
		VendorDirs: s.vendorDirs,
		CacheDirs:  s.cacheDirs,
		Logger:     s.log,
	})
	if err != nil {
		return nil, fmt.Errorf("reach: resolve dependencies: %w", err)
	}
	s.log.Info("project resolved", "ecosystems", proj.Ecosystems, "dependencies", len(proj.Deps))

	units, err := s.planUnits(proj)
	if err != nil {
		return nil, fmt.Errorf("reach: enumerate parse units: %w", err)
	}

	merged, err := s.parseAll(ctx, units)
	if err != nil {
		return nil, err
	}

	g := s.buildGraph(proj, merged)

	detector := entrypoint.NewDetector(
		entrypoint.WithRules(s.rules...),
		entrypoint.WithLogger(s.log),
	)
	eps := detector.Detect(ctx, g)

	reach := g.Reach(graph.ReachOptions{Strict: s.strict})
	s.log.Info("reachability computed",
		"functions", len(g.Nodes),
		"reachable", len(reach.Reachable),
		"entrypoints", len(eps))

	findings := vulnmap.Evaluate(g, proj.Deps, records)

	return newReport(s.root, proj, g, eps, reach, findings, merged, started), nil
}

// buildGraph merges every parse result into one call graph. Packages that
// could not be located or that blew their parse budget are registered as
// missing, so references into them resolve to synthetic reachable nodes.
func (s *Scanner) buildGraph(proj *resolver.Project, merged *scanResults) *graph.Graph {
	b := graph.NewBuilder()
	b.RegisterPackage(s.appName(), false)
	for _, dep := range proj.Deps {
		b.RegisterPackage(dep.Name, dep.Origin == resolver.OriginNotFound)
	}
	for _, name := range merged.timedOut {
		b.RegisterPackage(name, true)
	}
	for _, pr := range merged.results {
		for _, fn := range pr.res.Functions {
			b.AddNode(fn)
		}
		for _, e := range pr.res.Calls {
			b.AddEdge(e)
		}
		for _, u := range pr.res.Unresolved {
			b.AddUnresolved(pr.unit.pkg.Name, u)
		}
		b.AddImports(pr.unit.pkg.Name, pr.res.Imports)
		for _, sig := range pr.res.Signals {
			b.AddSignal(sig)
		}
	}
	return b.Freeze()
}

func (s *Scanner) appName() string {
	return filepath.Base(s.root)
}
