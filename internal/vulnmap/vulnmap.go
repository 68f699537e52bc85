// Package vulnmap cross-references vulnerability records against a computed
// call graph and answers the question the raw advisory cannot: does this
// code path actually run?
package vulnmap

import (
	"sort"
	"strings"

	"github.com/kestrelsec/reach/internal/graph"
	"github.com/kestrelsec/reach/internal/resolver"
)

// Verdict is the reachability answer for one advisory or symbol.
type Verdict string

const (
	VerdictReachable   Verdict = "reachable"
	VerdictUnreachable Verdict = "unreachable"
	// VerdictUnknown means the package or symbol could not be analyzed. It is
	// never folded into the other two: "we don't know" is an answer.
	VerdictUnknown Verdict = "unknown"
)

// SymbolVerdict is the per-symbol detail behind a finding.
type SymbolVerdict struct {
	Symbol     string   `json:"symbol"`
	FunctionID string   `json:"function_id,omitempty"`
	Verdict    Verdict  `json:"verdict"`
	// Chain is the shortest entrypoint-to-symbol call path. Empty for a
	// symbol reachable only through a dynamic-signal escalation.
	Chain []string `json:"chain,omitempty"`
}

// Finding is the verdict for one record against the scanned project.
type Finding struct {
	ID        string          `json:"id"`
	Summary   string          `json:"summary,omitempty"`
	Ecosystem string          `json:"ecosystem"`
	Package   string          `json:"package"`
	Version   string          `json:"version,omitempty"`
	Verdict   Verdict         `json:"verdict"`
	Symbols   []SymbolVerdict `json:"symbols,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// Evaluate produces one finding per relevant record. A record whose package
// is in the dependency set at an affected version gets a full reachability
// verdict; a record naming a package outside the resolved tree entirely gets
// an unknown finding, never silence. Only records for unaffected installed
// versions yield nothing.
func Evaluate(g *graph.Graph, deps []resolver.Package, records []Record) []Finding {
	byName := make(map[string]resolver.Package, len(deps))
	for _, d := range deps {
		byName[d.Name] = d
	}

	var findings []Finding
	for _, rec := range records {
		dep, ok := byName[rec.Package]
		if ok && rec.Ecosystem != "" && dep.Ecosystem != "" && rec.Ecosystem != dep.Ecosystem {
			ok = false
		}
		if !ok {
			// A package the resolver never saw cannot be cleared in either
			// direction.
			findings = append(findings, Finding{
				ID:        rec.ID,
				Summary:   rec.Summary,
				Ecosystem: rec.Ecosystem,
				Package:   rec.Package,
				Verdict:   VerdictUnknown,
				Reason:    "package not in dependency tree",
			})
			continue
		}
		if !rec.Affects(dep.Version) {
			continue
		}
		findings = append(findings, evaluateRecord(g, dep, rec))
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].ID != findings[j].ID {
			return findings[i].ID < findings[j].ID
		}
		return findings[i].Package < findings[j].Package
	})
	return findings
}

func evaluateRecord(g *graph.Graph, dep resolver.Package, rec Record) Finding {
	f := Finding{
		ID:        rec.ID,
		Summary:   rec.Summary,
		Ecosystem: rec.Ecosystem,
		Package:   rec.Package,
		Version:   dep.Version,
	}

	nodes := g.NodesInPackage(rec.Package)
	if dep.Origin == resolver.OriginNotFound && len(nodes) == 0 {
		f.Verdict = VerdictUnknown
		f.Reason = "package code not located"
		return f
	}
	if len(nodes) == 0 {
		f.Verdict = VerdictUnknown
		f.Reason = "package produced no analyzable functions"
		return f
	}

	if len(rec.Symbols) == 0 {
		// No symbol list: the whole package is the vulnerable surface.
		f.Symbols = verdictForAll(g, nodes)
	} else {
		for _, sym := range rec.Symbols {
			f.Symbols = append(f.Symbols, verdictForSymbol(g, rec.Package, nodes, sym))
		}
	}

	f.Verdict = aggregate(f.Symbols)
	return f
}

// verdictForAll treats every function of the package as a vulnerable symbol
// and reports the reachable ones, or a single unreachable summary entry.
func verdictForAll(g *graph.Graph, nodes []string) []SymbolVerdict {
	var out []SymbolVerdict
	for _, id := range nodes {
		n := g.Nodes[id]
		if n == nil || !n.Reachable {
			continue
		}
		out = append(out, SymbolVerdict{
			Symbol:     n.Name,
			FunctionID: id,
			Verdict:    VerdictReachable,
			Chain:      g.ShortestChain(id),
		})
	}
	if len(out) == 0 {
		return []SymbolVerdict{{Symbol: "*", Verdict: VerdictUnreachable}}
	}
	return out
}

func verdictForSymbol(g *graph.Graph, pkg string, nodes []string, sym string) SymbolVerdict {
	ids := matchSymbol(g, nodes, sym)
	if len(ids) == 0 {
		return SymbolVerdict{Symbol: sym, Verdict: VerdictUnknown}
	}
	// Several definitions can share a name; any reachable one decides.
	sv := SymbolVerdict{Symbol: sym, FunctionID: ids[0], Verdict: VerdictUnreachable}
	for _, id := range ids {
		if n := g.Nodes[id]; n != nil && n.Reachable {
			sv.FunctionID = id
			sv.Verdict = VerdictReachable
			sv.Chain = g.ShortestChain(id)
			break
		}
	}
	return sv
}

// matchSymbol resolves an advisory symbol name to node ids: full qualified
// name first, trailing-segment match second.
func matchSymbol(g *graph.Graph, nodes []string, sym string) []string {
	var full, partial []string
	for _, id := range nodes {
		n := g.Nodes[id]
		if n == nil {
			continue
		}
		switch {
		case n.Name == sym:
			full = append(full, id)
		case tailSegment(n.Name) == tailSegment(sym):
			partial = append(partial, id)
		}
	}
	if len(full) > 0 {
		return full
	}
	return partial
}

// aggregate folds symbol verdicts into the record verdict: positive evidence
// of reachability wins, then uncertainty, then unreachable.
func aggregate(symbols []SymbolVerdict) Verdict {
	verdict := VerdictUnreachable
	for _, sv := range symbols {
		switch sv.Verdict {
		case VerdictReachable:
			return VerdictReachable
		case VerdictUnknown:
			verdict = VerdictUnknown
		}
	}
	return verdict
}

func tailSegment(name string) string {
	if i := strings.LastIndexAny(name, "./"); i >= 0 && i+1 < len(name) {
		return name[i+1:]
	}
	return name
}
