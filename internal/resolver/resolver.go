// Package resolver enumerates a project's declared dependencies from its
// lockfiles and locates each one's code on disk. Vendored trees win over
// global caches; packages that cannot be located are reported, not fatal.
package resolver

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Origin classifies where a dependency's code was found.
type Origin string

const (
	OriginVendored Origin = "vendored"
	OriginCache    Origin = "cache"
	OriginNotFound Origin = "not-found"
)

// Package is one located (or missing) dependency. Dir is a directory for
// source trees and a file path for jar archives.
type Package struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Dir       string `json:"dir,omitempty"`
	Origin    Origin `json:"origin"`
	Ecosystem string `json:"ecosystem"`
}

// Project is the resolver's view of one project root.
type Project struct {
	Root       string
	Ecosystems []string
	Deps       []Package
}

// Options adjusts dependency location.
type Options struct {
	// VendorDirs are extra directories, relative to the project root, searched
	// before any global cache.
	VendorDirs []string
	// CacheDirs are extra absolute directories searched after vendored trees.
	CacheDirs []string
	Logger    *slog.Logger
}

type lockfile struct {
	file      string
	ecosystem string
	parse     func(path string) ([]Dependency, error)
}

var lockfiles = []lockfile{
	{"package-lock.json", "npm", parseNPMLock},
	{"requirements.txt", "pypi", parseRequirements},
	{"Gemfile.lock", "rubygems", parseGemfileLock},
	{"composer.lock", "packagist", parseComposerLock},
	{"Cargo.lock", "crates", parseCargoLock},
}

// Resolve reads every lockfile present under root and locates the declared
// dependencies. A (ecosystem, name, version) triple is resolved at most once.
func Resolve(root string, opts Options) (*Project, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", root)
	}

	proj := &Project{Root: abs}
	seen := make(map[string]bool)

	for _, lf := range lockfiles {
		path := filepath.Join(abs, lf.file)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		deps, err := lf.parse(path)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", lf.file, err)
		}
		proj.Ecosystems = append(proj.Ecosystems, lf.ecosystem)
		log.Debug("lockfile parsed", "file", lf.file, "dependencies", len(deps))

		for _, d := range deps {
			key := lf.ecosystem + "\x00" + d.Name + "\x00" + d.Version
			if seen[key] {
				continue
			}
			seen[key] = true
			pkg := locate(abs, lf.ecosystem, d, opts)
			if pkg.Origin == OriginNotFound {
				log.Warn("dependency not located", "ecosystem", lf.ecosystem, "package", d.Name, "version", d.Version)
			}
			proj.Deps = append(proj.Deps, pkg)
		}
	}

	if _, err := os.Stat(filepath.Join(abs, "go.mod")); err == nil {
		// Go dependencies ride the build graph; no lockfile walk.
		proj.Ecosystems = append(proj.Ecosystems, "go")
	}

	if jars := scanJavaLibs(abs, opts, seen); len(jars) > 0 {
		proj.Ecosystems = append(proj.Ecosystems, "maven")
		proj.Deps = append(proj.Deps, jars...)
	}

	sort.Slice(proj.Deps, func(i, j int) bool {
		a, b := proj.Deps[i], proj.Deps[j]
		if a.Ecosystem != b.Ecosystem {
			return a.Ecosystem < b.Ecosystem
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Version < b.Version
	})
	return proj, nil
}

// locate finds a dependency's on-disk code: vendored candidates relative to
// the project root first, then cache candidates.
func locate(root, ecosystem string, d Dependency, opts Options) Package {
	pkg := Package{Name: d.Name, Version: d.Version, Origin: OriginNotFound, Ecosystem: ecosystem}

	vendored, cache := candidatePatterns(ecosystem, d)
	for _, extra := range opts.VendorDirs {
		vendored = append(vendored, filepath.Join(extra, d.Name), filepath.Join(extra, d.Name+"-"+d.Version))
	}
	for _, p := range vendored {
		if dir, ok := firstMatch(filepath.Join(root, p)); ok {
			pkg.Dir, pkg.Origin = dir, OriginVendored
			return pkg
		}
	}

	home, _ := os.UserHomeDir()
	for _, p := range cache {
		if home == "" {
			break
		}
		if dir, ok := firstMatch(filepath.Join(home, p)); ok {
			pkg.Dir, pkg.Origin = dir, OriginCache
			return pkg
		}
	}
	for _, extra := range opts.CacheDirs {
		for _, name := range []string{d.Name, d.Name + "-" + d.Version} {
			if dir, ok := firstMatch(filepath.Join(extra, name)); ok {
				pkg.Dir, pkg.Origin = dir, OriginCache
				return pkg
			}
		}
	}
	return pkg
}

// candidatePatterns returns glob patterns (relative to the project root and
// the home directory respectively) for one ecosystem's install layouts.
func candidatePatterns(ecosystem string, d Dependency) (vendored, cache []string) {
	name, version := d.Name, d.Version
	switch ecosystem {
	case "npm":
		vendored = []string{filepath.Join("node_modules", name)}
	case "pypi":
		// Distribution names use dashes; import directories use underscores.
		mod := strings.ReplaceAll(name, "-", "_")
		for _, env := range []string{".venv", "venv"} {
			vendored = append(vendored,
				filepath.Join(env, "lib", "*", "site-packages", mod),
				filepath.Join(env, "lib", "*", "site-packages", name),
			)
		}
		cache = []string{
			filepath.Join(".local", "lib", "python*", "site-packages", mod),
		}
	case "rubygems":
		gem := name + "-" + version
		vendored = []string{filepath.Join("vendor", "bundle", "ruby", "*", "gems", gem)}
		cache = []string{filepath.Join(".gem", "ruby", "*", "gems", gem)}
	case "packagist":
		// Composer names are vendor/project and install under vendor/ as-is.
		vendored = []string{filepath.Join("vendor", filepath.FromSlash(name))}
	case "crates":
		vendored = []string{
			filepath.Join("vendor", name),
			filepath.Join("vendor", name+"-"+version),
		}
		cache = []string{filepath.Join(".cargo", "registry", "src", "*", name+"-"+version)}
	}
	return vendored, cache
}

// firstMatch globs a pattern and returns the lexically first existing match.
func firstMatch(pattern string) (string, bool) {
	if !strings.ContainsAny(pattern, "*?[") {
		if _, err := os.Stat(pattern); err == nil {
			return pattern, true
		}
		return "", false
	}
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}

// javaLibDirs are the conventional places builds drop dependency jars.
var javaLibDirs = []string{"lib", filepath.Join("target", "dependency"), filepath.Join("build", "libs")}

// scanJavaLibs discovers jar dependencies. There is no lockfile to consult:
// the jars on disk are the dependency set.
func scanJavaLibs(root string, opts Options, seen map[string]bool) []Package {
	dirs := append([]string{}, javaLibDirs...)
	dirs = append(dirs, opts.VendorDirs...)

	var pkgs []Package
	for _, d := range dirs {
		entries, err := os.ReadDir(filepath.Join(root, d))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".jar") {
				continue
			}
			name, version := splitJarName(strings.TrimSuffix(e.Name(), ".jar"))
			key := "maven\x00" + name + "\x00" + version
			if seen[key] {
				continue
			}
			seen[key] = true
			pkgs = append(pkgs, Package{
				Name:      name,
				Version:   version,
				Dir:       filepath.Join(root, d, e.Name()),
				Origin:    OriginVendored,
				Ecosystem: "maven",
			})
		}
	}
	return pkgs
}

// splitJarName splits commons-io-2.11.0 into (commons-io, 2.11.0): the
// version starts at the last dash followed by a digit.
func splitJarName(base string) (string, string) {
	for i := len(base) - 2; i > 0; i-- {
		if base[i] == '-' && base[i+1] >= '0' && base[i+1] <= '9' {
			return base[:i], base[i+1:]
		}
	}
	return base, ""
}
