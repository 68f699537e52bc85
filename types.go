package reach

import (
	"github.com/kestrelsec/reach/internal/graph"
	"github.com/kestrelsec/reach/internal/resolver"
	"github.com/kestrelsec/reach/internal/vulnmap"
)

// Public type aliases for the internal types that appear in the Scanner and
// Report API. These are Go type aliases (=), identical to the internal types
// at compile time, so external consumers never import internal packages.

type FunctionNode = graph.FunctionNode
type CallEdge = graph.CallEdge
type Entrypoint = graph.Entrypoint
type DynamicSignal = graph.DynamicSignal
type Confidence = graph.Confidence
type Origin = graph.Origin

type Package = resolver.Package
type PackageOrigin = resolver.Origin

type Record = vulnmap.Record
type VersionRange = vulnmap.VersionRange
type Finding = vulnmap.Finding
type SymbolVerdict = vulnmap.SymbolVerdict
type Verdict = vulnmap.Verdict

// Verdict values as produced in findings.
const (
	VerdictReachable   = vulnmap.VerdictReachable
	VerdictUnreachable = vulnmap.VerdictUnreachable
	VerdictUnknown     = vulnmap.VerdictUnknown
)

// LoadRecords reads a JSON file of OSV-format vulnerability records and
// flattens them to one record per affected package.
func LoadRecords(path string) ([]Record, error) {
	return vulnmap.LoadRecords(path)
}
