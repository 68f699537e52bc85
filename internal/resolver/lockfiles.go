package resolver

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Dependency is one (name, version) pair declared by a lockfile.
type Dependency struct {
	Name    string
	Version string
}

// parseNPMLock reads package-lock.json. Version 2/3 lockfiles carry a
// "packages" map keyed by install path; version 1 carries a "dependencies"
// tree.
func parseNPMLock(path string) ([]Dependency, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock struct {
		Packages map[string]struct {
			Version string `json:"version"`
		} `json:"packages"`
		Dependencies map[string]npmV1Dep `json:"dependencies"`
	}
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	var deps []Dependency
	if len(lock.Packages) > 0 {
		for key, p := range lock.Packages {
			if key == "" { // the root project itself
				continue
			}
			// Nested installs look like node_modules/a/node_modules/b.
			name := key
			if i := strings.LastIndex(key, "node_modules/"); i >= 0 {
				name = key[i+len("node_modules/"):]
			}
			deps = append(deps, Dependency{Name: name, Version: p.Version})
		}
		return deps, nil
	}
	collectNPMV1(lock.Dependencies, &deps)
	return deps, nil
}

type npmV1Dep struct {
	Version      string              `json:"version"`
	Dependencies map[string]npmV1Dep `json:"dependencies"`
}

func collectNPMV1(m map[string]npmV1Dep, out *[]Dependency) {
	for name, d := range m {
		*out = append(*out, Dependency{Name: name, Version: d.Version})
		collectNPMV1(d.Dependencies, out)
	}
}

// parseRequirements reads a pip requirements.txt. Only pinned "name==version"
// lines yield a version; looser specifiers still yield the name so the
// package can be located if vendored.
func parseRequirements(path string) ([]Dependency, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var deps []Dependency
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		name, version := line, ""
		for _, sep := range []string{"==", ">=", "<=", "~=", "!=", ">", "<"} {
			if i := strings.Index(line, sep); i >= 0 {
				name = strings.TrimSpace(line[:i])
				if sep == "==" {
					version = strings.TrimSpace(line[i+len(sep):])
				}
				break
			}
		}
		// Strip extras: name[extra].
		if i := strings.IndexByte(name, '['); i >= 0 {
			name = name[:i]
		}
		if name != "" {
			deps = append(deps, Dependency{Name: name, Version: version})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return deps, nil
}

// parseGemfileLock reads a bundler Gemfile.lock: gems are the four-space
// indented entries under the GEM section's "specs:".
func parseGemfileLock(path string) ([]Dependency, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var deps []Dependency
	inGem, inSpecs := false, false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "GEM":
			inGem, inSpecs = true, false
		case trimmed != "" && !strings.HasPrefix(line, " "):
			inGem, inSpecs = false, false
		case inGem && trimmed == "specs:":
			inSpecs = true
		case inSpecs && strings.HasPrefix(line, "    ") && !strings.HasPrefix(line, "      "):
			name, version, ok := strings.Cut(trimmed, " ")
			if !ok {
				name = trimmed
			}
			version = strings.Trim(version, "()")
			deps = append(deps, Dependency{Name: name, Version: version})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return deps, nil
}

// parseComposerLock reads composer.lock; dev packages count too, they ship
// code that can run.
func parseComposerLock(path string) ([]Dependency, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock struct {
		Packages    []composerPackage `json:"packages"`
		PackagesDev []composerPackage `json:"packages-dev"`
	}
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	var deps []Dependency
	for _, p := range append(lock.Packages, lock.PackagesDev...) {
		deps = append(deps, Dependency{Name: p.Name, Version: strings.TrimPrefix(p.Version, "v")})
	}
	return deps, nil
}

type composerPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// parseCargoLock reads Cargo.lock, a TOML file of [[package]] entries. The
// workspace's own crates have no source field and are skipped; they are the
// application, not dependencies.
func parseCargoLock(path string) ([]Dependency, error) {
	var lock struct {
		Package []struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
			Source  string `toml:"source"`
		} `toml:"package"`
	}
	if _, err := toml.DecodeFile(path, &lock); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	var deps []Dependency
	for _, p := range lock.Package {
		if p.Source == "" {
			continue
		}
		deps = append(deps, Dependency{Name: p.Name, Version: p.Version})
	}
	return deps, nil
}
