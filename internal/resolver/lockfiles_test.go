package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func depMap(deps []Dependency) map[string]string {
	m := make(map[string]string, len(deps))
	for _, d := range deps {
		m[d.Name] = d.Version
	}
	return m
}

func TestParseNPMLock_V3Packages(t *testing.T) {
	path := writeFile(t, t.TempDir(), "package-lock.json", `{
  "lockfileVersion": 3,
  "packages": {
    "": {"name": "myapp"},
    "node_modules/lodash": {"version": "4.17.21"},
    "node_modules/a/node_modules/minimist": {"version": "1.2.8"},
    "node_modules/@scope/pkg": {"version": "2.0.0"}
  }
}`)

	deps, err := parseNPMLock(path)
	require.NoError(t, err)

	m := depMap(deps)
	assert.Equal(t, "4.17.21", m["lodash"])
	assert.Equal(t, "1.2.8", m["minimist"])
	assert.Equal(t, "2.0.0", m["@scope/pkg"])
	assert.NotContains(t, m, "")
}

func TestParseNPMLock_V1Dependencies(t *testing.T) {
	path := writeFile(t, t.TempDir(), "package-lock.json", `{
  "lockfileVersion": 1,
  "dependencies": {
    "express": {
      "version": "4.18.2",
      "dependencies": {
        "accepts": {"version": "1.3.8"}
      }
    }
  }
}`)

	deps, err := parseNPMLock(path)
	require.NoError(t, err)

	m := depMap(deps)
	assert.Equal(t, "4.18.2", m["express"])
	assert.Equal(t, "1.3.8", m["accepts"])
}

func TestParseRequirements(t *testing.T) {
	path := writeFile(t, t.TempDir(), "requirements.txt", `# deps
requests==2.31.0
urllib3>=1.26  # not pinned
flask[async]==2.3.2
-r other.txt

pyyaml
`)

	deps, err := parseRequirements(path)
	require.NoError(t, err)

	m := depMap(deps)
	assert.Equal(t, "2.31.0", m["requests"])
	assert.Equal(t, "", m["urllib3"])
	assert.Equal(t, "2.3.2", m["flask"])
	assert.Equal(t, "", m["pyyaml"])
	assert.NotContains(t, m, "-r other.txt")
}

func TestParseGemfileLock(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Gemfile.lock", `GEM
  remote: https://rubygems.org/
  specs:
    rack (2.2.8)
    rake (13.1.0)
      subdepish (~> 1.0)

PLATFORMS
  ruby

DEPENDENCIES
  rack
`)

	deps, err := parseGemfileLock(path)
	require.NoError(t, err)

	m := depMap(deps)
	assert.Equal(t, "2.2.8", m["rack"])
	assert.Equal(t, "13.1.0", m["rake"])
	// Six-space indented lines are transitive constraints, not gems.
	assert.NotContains(t, m, "subdepish")
}

func TestParseComposerLock(t *testing.T) {
	path := writeFile(t, t.TempDir(), "composer.lock", `{
  "packages": [
    {"name": "monolog/monolog", "version": "v3.5.0"}
  ],
  "packages-dev": [
    {"name": "phpunit/phpunit", "version": "10.5.1"}
  ]
}`)

	deps, err := parseComposerLock(path)
	require.NoError(t, err)

	m := depMap(deps)
	assert.Equal(t, "3.5.0", m["monolog/monolog"])
	assert.Equal(t, "10.5.1", m["phpunit/phpunit"])
}

func TestParseCargoLock_SkipsWorkspaceCrates(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Cargo.lock", `version = 3

[[package]]
name = "myapp"
version = "0.1.0"

[[package]]
name = "serde"
version = "1.0.193"
source = "registry+https://github.com/rust-lang/crates.io-index"
`)

	deps, err := parseCargoLock(path)
	require.NoError(t, err)

	m := depMap(deps)
	assert.Equal(t, "1.0.193", m["serde"])
	assert.NotContains(t, m, "myapp")
}

func TestSplitJarName(t *testing.T) {
	cases := map[string][2]string{
		"commons-io-2.11.0":       {"commons-io", "2.11.0"},
		"guava-32.1.3-jre":        {"guava", "32.1.3-jre"},
		"plainlib":                {"plainlib", ""},
		"log4j-core-2.14.1":       {"log4j-core", "2.14.1"},
	}
	for in, want := range cases {
		name, version := splitJarName(in)
		assert.Equal(t, want[0], name, in)
		assert.Equal(t, want[1], version, in)
	}
}
