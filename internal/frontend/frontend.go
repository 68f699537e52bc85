// Package frontend turns one package's source files or compiled artifacts
// into function nodes, intra-package call edges, unresolved call references,
// declared imports, and dynamic-code signals.
package frontend

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/kestrelsec/reach/internal/graph"
)

// PackageInfo describes the unit of work handed to a front-end: one package's
// name, on-disk location and file set.
type PackageInfo struct {
	Name      string
	Dir       string
	Files     []string // absolute paths; when nil, Dir is walked
	Origin    graph.Origin
	Ecosystem string
}

// FileFailure records a single file that could not be parsed. Parse failures
// drop only that file's functions; they never abort the scan.
type FileFailure struct {
	File string `json:"file"`
	Err  string `json:"error"`
}

// Result is the front-end output contract. Identical across all variants, so
// downstream components never care which front-end produced it.
type Result struct {
	Functions  []graph.FunctionNode  `json:"functions"`
	Calls      []graph.CallEdge      `json:"calls"`
	Unresolved []graph.UnresolvedCall `json:"unresolved"`
	Imports    []graph.Import        `json:"imports"`
	Signals    []graph.DynamicSignal `json:"signals"`
	Failures   []FileFailure         `json:"failures,omitempty"`
}

// Frontend parses or queries one package. Implementations are cheap to
// construct; the scanner creates one per worker so parsers never cross
// goroutines.
type Frontend interface {
	Language() string
	Parse(ctx context.Context, pkg PackageInfo) (*Result, error)
}

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rb":    "ruby",
	".php":   "php",
	".rs":    "rust",
	".class": "java",
	".jar":   "java",
	".go":    "go",
}

// LanguageForFile returns the canonical language name for a file path based
// on its extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// ForLanguage returns a fresh front-end for a canonical language name.
func ForLanguage(lang string) (Frontend, bool) {
	switch lang {
	case "python":
		return newPython(), true
	case "javascript":
		return newJavaScript(), true
	case "typescript":
		return newTypeScript(), true
	case "ruby":
		return newRuby(), true
	case "php":
		return newPHP(), true
	case "rust":
		return newRust(), true
	case "java":
		return newJava(), true
	case "go":
		return newGoBuild(), true
	}
	return nil, false
}

// Languages returns every supported canonical language name.
func Languages() []string {
	return []string{"go", "java", "javascript", "php", "python", "ruby", "rust", "typescript"}
}

// listFiles returns the package's files for one language, either the
// pre-enumerated set or a walk of the package directory. Hidden directories
// and common vendor trees are skipped during the walk.
func listFiles(pkg PackageInfo, lang string) ([]string, error) {
	if pkg.Files != nil {
		var out []string
		for _, f := range pkg.Files {
			if l, ok := LanguageForFile(f); ok && l == lang {
				out = append(out, f)
			}
		}
		return out, nil
	}

	var out []string
	err := filepath.WalkDir(pkg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			name := d.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if l, ok := LanguageForFile(path); ok && l == lang {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// relPath shortens an absolute file path to be relative to the package dir
// when possible; node files and signals carry these shorter paths.
func relPath(pkg PackageInfo, path string) string {
	if pkg.Dir == "" {
		return path
	}
	if rel, err := filepath.Rel(pkg.Dir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
