package frontend

import (
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// The TypeScript grammar is a superset of the JavaScript grammar for every
// construct this front-end extracts (functions, classes, calls, imports,
// eval/require/computed-member dynamics), so the walk is shared.
func newTypeScript() Frontend {
	return &tsFrontend{lang: "typescript", grammar: ts.GetLanguage(), extract: extractJS}
}
