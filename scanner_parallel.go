package reach

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelsec/reach/internal/cache"
	"github.com/kestrelsec/reach/internal/frontend"
	"github.com/kestrelsec/reach/internal/graph"
	"github.com/kestrelsec/reach/internal/resolver"
)

// parseUnit is one (package, language) pair of work for a front-end.
type parseUnit struct {
	pkg  frontend.PackageInfo
	lang string

	// hashPath is the tree (or jar) whose content keys the cache slot.
	// Units with cacheable=false are parsed fresh every scan.
	hashPath  string
	cacheable bool
	version   string
}

type parsedResult struct {
	unit parseUnit
	res  *frontend.Result
}

// scanResults is everything the parse phase hands to graph construction.
type scanResults struct {
	results   []parsedResult
	timedOut  []string // package names that exceeded their parse budget or failed wholesale
	failures  []frontend.FileFailure
	cacheHits int
}

// planUnits enumerates parse units: the application tree grouped by language,
// plus one unit per located dependency and language.
func (s *Scanner) planUnits(proj *resolver.Project) ([]parseUnit, error) {
	var units []parseUnit

	appFiles, err := s.walkApp(proj)
	if err != nil {
		return nil, err
	}
	for _, lang := range sortedKeys(appFiles) {
		if !s.enabled(lang) {
			continue
		}
		pkg := frontend.PackageInfo{
			Name:   s.appName(),
			Dir:    s.root,
			Origin: graph.OriginApplication,
		}
		if lang == "go" {
			// The Go front-end loads the whole module via the build system;
			// the file list is only a presence signal.
			pkg.Ecosystem = "go"
		} else {
			pkg.Files = appFiles[lang]
		}
		units = append(units, parseUnit{pkg: pkg, lang: lang, hashPath: s.root})
	}

	for _, dep := range proj.Deps {
		if dep.Origin == resolver.OriginNotFound || dep.Dir == "" {
			continue
		}
		if strings.HasSuffix(dep.Dir, ".jar") {
			if !s.enabled("java") {
				continue
			}
			units = append(units, parseUnit{
				pkg: frontend.PackageInfo{
					Name:      dep.Name,
					Files:     []string{dep.Dir},
					Origin:    graph.OriginDependency,
					Ecosystem: dep.Ecosystem,
				},
				lang:      "java",
				hashPath:  dep.Dir,
				cacheable: true,
				version:   dep.Version,
			})
			continue
		}

		byLang, err := filesByLanguage(dep.Dir)
		if err != nil {
			s.log.Warn("skipping unreadable dependency", "package", dep.Name, "dir", dep.Dir, "error", err)
			continue
		}
		for _, lang := range sortedKeys(byLang) {
			if !s.enabled(lang) || lang == "go" {
				continue
			}
			units = append(units, parseUnit{
				pkg: frontend.PackageInfo{
					Name:      dep.Name,
					Dir:       dep.Dir,
					Files:     byLang[lang],
					Origin:    graph.OriginDependency,
					Ecosystem: dep.Ecosystem,
				},
				lang:      lang,
				hashPath:  dep.Dir,
				cacheable: true,
				version:   dep.Version,
			})
		}
	}
	return units, nil
}

// parseAll runs the parse units in three phases: a serial cache-lookup pass,
// a bounded parallel parse of the misses, and a serial commit pass that
// populates the cache for next time.
func (s *Scanner) parseAll(ctx context.Context, units []parseUnit) (*scanResults, error) {
	out := &scanResults{}

	type workItem struct {
		unit parseUnit
		hash string
	}
	var work []workItem
	for _, u := range units {
		if s.cache != nil && u.cacheable {
			hash, err := cache.HashTree(u.hashPath)
			if err == nil {
				if res, ok := s.cache.Get(u.pkg.Ecosystem, u.pkg.Name, u.version, hash); ok {
					out.results = append(out.results, parsedResult{unit: u, res: res})
					out.cacheHits++
					continue
				}
				work = append(work, workItem{unit: u, hash: hash})
				continue
			}
			s.log.Warn("content hash failed, parsing uncached", "package", u.pkg.Name, "error", err)
		}
		work = append(work, workItem{unit: u})
	}

	fresh := make([]*frontend.Result, len(work))
	var mu sync.Mutex

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(s.workers)
	for i, w := range work {
		grp.Go(func() error {
			fe, ok := frontend.ForLanguage(w.unit.lang)
			if !ok {
				return nil
			}
			tctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()

			res, err := fe.Parse(tctx, w.unit.pkg)
			if err != nil {
				if gctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
					return err // the scan itself was cancelled
				}
				mu.Lock()
				out.timedOut = append(out.timedOut, w.unit.pkg.Name)
				mu.Unlock()
				s.log.Warn("package skipped", "package", w.unit.pkg.Name, "language", w.unit.lang, "error", err)
				return nil
			}
			fresh[i] = res
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	for i, w := range work {
		res := fresh[i]
		if res == nil {
			continue
		}
		out.results = append(out.results, parsedResult{unit: w.unit, res: res})
		out.failures = append(out.failures, res.Failures...)
		if s.cache != nil && w.unit.cacheable && w.hash != "" {
			if err := s.cache.Put(w.unit.pkg.Ecosystem, w.unit.pkg.Name, w.unit.version, w.hash, res); err != nil {
				s.log.Warn("cache write failed", "package", w.unit.pkg.Name, "error", err)
			}
		}
	}

	sort.Strings(out.timedOut)
	return out, nil
}

// walkApp collects the application's own source files grouped by language,
// skipping hidden directories, common vendor trees, and any configured
// vendor directories.
func (s *Scanner) walkApp(proj *resolver.Project) (map[string][]string, error) {
	skip := map[string]bool{}
	for _, d := range s.vendorDirs {
		skip[filepath.Join(s.root, d)] = true
	}

	byLang := map[string][]string{}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != s.root && (strings.HasPrefix(name, ".") || vendorTreeDirs[name] || skip[path]) {
				return filepath.SkipDir
			}
			return nil
		}
		if lang, ok := frontend.LanguageForFile(path); ok {
			byLang[lang] = append(byLang[lang], path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, files := range byLang {
		sort.Strings(files)
	}
	return byLang, nil
}

var vendorTreeDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"target":       true,
	"venv":         true,
	".venv":        true,
}

func filesByLanguage(dir string) (map[string][]string, error) {
	byLang := map[string][]string{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if lang, ok := frontend.LanguageForFile(path); ok {
			byLang[lang] = append(byLang[lang], path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, files := range byLang {
		sort.Strings(files)
	}
	return byLang, nil
}

func (s *Scanner) enabled(lang string) bool {
	return s.languages == nil || s.languages[lang]
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
