package reach

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelsec/reach/internal/frontend"
	"github.com/kestrelsec/reach/internal/graph"
	"github.com/kestrelsec/reach/internal/resolver"
	"github.com/kestrelsec/reach/internal/vulnmap"
)

// Diagnostics surfaces everything the scan could not fully analyze. A clean
// scan has all-zero diagnostics; anything else tells the reader which
// verdicts to treat with care.
type Diagnostics struct {
	ParseFailures    []frontend.FileFailure `json:"parse_failures,omitempty"`
	MissingPackages  []string               `json:"missing_packages,omitempty"`
	TimedOutPackages []string               `json:"timed_out_packages,omitempty"`
	UnresolvedCalls  int                    `json:"unresolved_calls"`
	HeuristicEdges   int                    `json:"heuristic_edges"`
	CacheHits        int                    `json:"cache_hits"`
}

// Report is the full result of one scan.
type Report struct {
	ScanID    string        `json:"scan_id"`
	Root      string        `json:"root"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Ecosystems   []string           `json:"ecosystems,omitempty"`
	Dependencies []resolver.Package `json:"dependencies,omitempty"`

	TotalFunctions int                `json:"total_functions"`
	Entrypoints    []graph.Entrypoint `json:"entrypoints,omitempty"`
	Reachable      []string           `json:"reachable,omitempty"`
	Unreachable    []string           `json:"unreachable,omitempty"`

	Findings    []vulnmap.Finding `json:"findings,omitempty"`
	Diagnostics Diagnostics       `json:"diagnostics"`
}

func newReport(
	root string,
	proj *resolver.Project,
	g *graph.Graph,
	eps []graph.Entrypoint,
	reach *graph.ReachResult,
	findings []vulnmap.Finding,
	merged *scanResults,
	started time.Time,
) *Report {
	var missing []string
	for _, dep := range proj.Deps {
		if dep.Origin == resolver.OriginNotFound {
			missing = append(missing, dep.Name)
		}
	}

	return &Report{
		ScanID:         uuid.NewString(),
		Root:           root,
		StartedAt:      started,
		Duration:       time.Since(started),
		Ecosystems:     proj.Ecosystems,
		Dependencies:   proj.Deps,
		TotalFunctions: len(g.Nodes),
		Entrypoints:    eps,
		Reachable:      reach.Reachable,
		Unreachable:    reach.Unreachable,
		Findings:       findings,
		Diagnostics: Diagnostics{
			ParseFailures:    merged.failures,
			MissingPackages:  missing,
			TimedOutPackages: merged.timedOut,
			UnresolvedCalls:  g.Dropped,
			HeuristicEdges:   g.Heuristics,
			CacheHits:        merged.cacheHits,
		},
	}
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes a human-oriented summary: verdict counts, findings with
// their shortest call chains, and any diagnostics worth flagging.
func (r *Report) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "scan %s\n", r.ScanID)
	fmt.Fprintf(w, "  root: %s\n", r.Root)
	fmt.Fprintf(w, "  functions: %d (%d reachable, %d unreachable)\n",
		r.TotalFunctions, len(r.Reachable), len(r.Unreachable))
	fmt.Fprintf(w, "  entrypoints: %d\n", len(r.Entrypoints))

	if len(r.Findings) == 0 {
		fmt.Fprintln(w, "  findings: none")
	} else {
		fmt.Fprintf(w, "  findings: %d\n", len(r.Findings))
		for _, f := range r.Findings {
			fmt.Fprintf(w, "    [%s] %s %s@%s", f.Verdict, f.ID, f.Package, f.Version)
			if f.Reason != "" {
				fmt.Fprintf(w, " (%s)", f.Reason)
			}
			fmt.Fprintln(w)
			for _, sv := range f.Symbols {
				if sv.Verdict != vulnmap.VerdictReachable || len(sv.Chain) == 0 {
					continue
				}
				fmt.Fprintf(w, "      %s:", sv.Symbol)
				for _, hop := range sv.Chain {
					fmt.Fprintf(w, " -> %s", hop)
				}
				fmt.Fprintln(w)
			}
		}
	}

	d := r.Diagnostics
	if len(d.MissingPackages) > 0 {
		fmt.Fprintf(w, "  missing packages: %v\n", d.MissingPackages)
	}
	if len(d.TimedOutPackages) > 0 {
		fmt.Fprintf(w, "  timed-out packages: %v\n", d.TimedOutPackages)
	}
	if len(d.ParseFailures) > 0 {
		fmt.Fprintf(w, "  parse failures: %d\n", len(d.ParseFailures))
	}
	if d.UnresolvedCalls > 0 {
		fmt.Fprintf(w, "  unresolved references dropped: %d\n", d.UnresolvedCalls)
	}
	return nil
}
