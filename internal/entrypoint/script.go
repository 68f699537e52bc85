package entrypoint

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/kestrelsec/reach/internal/graph"
)

// ScriptRule evaluates a Risor script against each candidate function. The
// script sees fn_name, fn_file, fn_package and fn_visibility as globals and
// its final expression decides the match:
//
//	fn_name.has_prefix("job_") && fn_visibility == "public"
//
// Script errors never fail the scan; the rule just stops matching.
type ScriptRule struct {
	name   string
	source string
	log    *slog.Logger

	mu     sync.Mutex
	broken bool
}

// NewScriptRule wraps inline Risor source as an entrypoint rule.
func NewScriptRule(name, source string) *ScriptRule {
	return &ScriptRule{name: name, source: source, log: slog.Default()}
}

// LoadScriptRule reads a rule script from disk, named after its file name.
func LoadScriptRule(path string) (*ScriptRule, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewScriptRule(filepath.Base(path), string(src)), nil
}

func (r *ScriptRule) Name() string { return r.name }

func (r *ScriptRule) Match(ctx context.Context, fn *graph.FunctionNode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken {
		return false
	}

	result, err := risor.Eval(ctx, r.source,
		risor.WithGlobal("fn_name", fn.Name),
		risor.WithGlobal("fn_file", fn.File),
		risor.WithGlobal("fn_package", fn.Package),
		risor.WithGlobal("fn_visibility", fn.Visibility),
	)
	if err != nil {
		// Disable after the first failure: a broken script would otherwise
		// error once per function.
		r.log.Warn("entrypoint rule script failed, disabling", "rule", r.name, "error", err)
		r.broken = true
		return false
	}
	if b, ok := result.(*object.Bool); ok {
		return b.Value()
	}
	return false
}
