package graph

// Origin classifies where a function's declaring package came from.
type Origin string

const (
	OriginApplication Origin = "application"
	OriginDependency  Origin = "dependency"
)

// Confidence classifies how certain a call-edge resolution is. It is fixed
// when the edge is created and never upgraded afterward.
type Confidence string

const (
	// ConfidenceExact means the callee was resolved through declared imports
	// or a static call instruction.
	ConfidenceExact Confidence = "exact"
	// ConfidenceHeuristic means the callee was matched by bare name across
	// loaded packages, or the call site is dynamically dispatched but the
	// candidate set is known.
	ConfidenceHeuristic Confidence = "heuristic"
	// ConfidenceConservative means the target is resolved at runtime or lives
	// in an unanalyzable package; the edge exists purely to avoid
	// under-reporting reachability.
	ConfidenceConservative Confidence = "conservative"
)

// InvokeKind tags bytecode call instructions. Empty for edges that did not
// come from a bytecode front-end.
type InvokeKind string

const (
	InvokeVirtual   InvokeKind = "virtual"
	InvokeSpecial   InvokeKind = "special"
	InvokeStatic    InvokeKind = "static"
	InvokeInterface InvokeKind = "interface"
	InvokeDynamic   InvokeKind = "dynamic"
)

// FunctionNode is one function in the unified call graph. Nodes are immutable
// after construction except for Reachable, which is set by the traversal.
type FunctionNode struct {
	ID         string `json:"id"`
	Package    string `json:"package"`
	Name       string `json:"name"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Visibility string `json:"visibility,omitempty"`
	Entrypoint bool   `json:"entrypoint,omitempty"`
	Origin     Origin `json:"origin"`
	Reachable  bool   `json:"reachable"`
}

// FuncID builds the globally unique node id for a qualified function name
// inside a package.
func FuncID(pkg, name string) string {
	return pkg + "::" + name
}

// CallEdge connects a caller to a callee by node id.
type CallEdge struct {
	Caller     string     `json:"caller"`
	Callee     string     `json:"callee"`
	Confidence Confidence `json:"confidence"`
	Invoke     InvokeKind `json:"invoke,omitempty"`
	File       string     `json:"file,omitempty"`
	Line       int        `json:"line,omitempty"`
}

// UnresolvedCall is a call site whose target could not be resolved inside the
// declaring package. The builder resolves it cross-package after all
// front-end results are merged.
type UnresolvedCall struct {
	Caller string `json:"caller"`
	Name   string `json:"name"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// Import is one declared import of a package, used to narrow cross-package
// resolution to specific targets.
type Import struct {
	Source  string   `json:"source"`
	Alias   string   `json:"alias,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
}

// Entrypoint pairs a function node with the detection rule that matched it.
type Entrypoint struct {
	FunctionID string `json:"function_id"`
	Rule       string `json:"rule"`
}

// Construct identifies the kind of dynamically-dispatched or reflective code
// a front-end observed.
type Construct string

const (
	ConstructEval          Construct = "eval"
	ConstructReflection    Construct = "reflection"
	ConstructComputedCall  Construct = "computed-call"
	ConstructDynamicImport Construct = "dynamic-import"
	ConstructInvokeDynamic Construct = "invokedynamic"
	ConstructMacro         Construct = "macro"
)

// Escalation is the scope forced reachable when a dynamic construct is seen.
type Escalation string

const (
	EscalateFunction Escalation = "function"
	EscalateFile     Escalation = "file"
	EscalatePackage  Escalation = "package"
)

// DynamicSignal records one observed dynamic construct and the scope it
// escalates. Every node inside the scope is forced into the reachable set
// regardless of graph-computed reachability.
type DynamicSignal struct {
	Package    string     `json:"package"`
	File       string     `json:"file,omitempty"`
	FunctionID string     `json:"function_id,omitempty"`
	Construct  Construct  `json:"construct"`
	Escalation Escalation `json:"escalation"`
	Line       int        `json:"line,omitempty"`
}
