package graph

import "sort"

// Graph is the unified, immutable call graph produced by Builder.Freeze.
// Adjacency and scope indexes are precomputed and sorted so traversal order
// is deterministic across runs.
type Graph struct {
	Nodes   map[string]*FunctionNode
	Edges   []CallEdge
	Signals []DynamicSignal

	// Dropped counts unresolved references that matched nothing; Heuristics
	// counts references resolved by the bare-name fallback.
	Dropped    int
	Heuristics int

	out       map[string][]string
	in        map[string][]string
	byFile    map[string][]string
	byPackage map[string][]string
}

// Callees returns the sorted out-neighbors of a node.
func (g *Graph) Callees(id string) []string { return g.out[id] }

// Callers returns the sorted in-neighbors of a node.
func (g *Graph) Callers(id string) []string { return g.in[id] }

// NodesInFile returns the sorted node ids declared in one package's file.
// File paths are package-relative, so the same basename in two packages
// names two distinct files.
func (g *Graph) NodesInFile(pkg, file string) []string { return g.byFile[fileKey(pkg, file)] }

func fileKey(pkg, file string) string { return pkg + "\x00" + file }

// NodesInPackage returns the sorted node ids declared in a package.
func (g *Graph) NodesInPackage(pkg string) []string { return g.byPackage[pkg] }

// SortedIDs returns every node id in lexicographic order.
func (g *Graph) SortedIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarkEntrypoints sets the entrypoint flag on the named nodes.
func (g *Graph) MarkEntrypoints(eps []Entrypoint) {
	for _, ep := range eps {
		if n, ok := g.Nodes[ep.FunctionID]; ok {
			n.Entrypoint = true
		}
	}
}

// nodeState is the per-node traversal state machine. No intermediate state
// survives a completed run: every node ends Unvisited or Reachable.
type nodeState uint8

const (
	stateUnvisited nodeState = iota
	stateVisiting
	stateReachable
)

// ReachOptions configures the traversal.
type ReachOptions struct {
	// Strict excludes heuristic and conservative edges from traversal.
	// The default (lenient) follows every edge regardless of confidence,
	// which is the conservative policy for security findings.
	Strict bool
}

// ReachResult partitions the graph's node ids into reachable and unreachable
// sets. The two are disjoint and their union is every node.
type ReachResult struct {
	Reachable   []string
	Unreachable []string
}

// Reach computes the reachable set. The initial frontier is every entrypoint
// plus every node inside a dynamic signal's escalation scope. Traversal is a
// single-threaded O(V+E) walk with a visited set, so cycles terminate.
// Reach also sets the Reachable flag on the nodes themselves.
func (g *Graph) Reach(opts ReachOptions) *ReachResult {
	states := make(map[string]nodeState, len(g.Nodes))

	var frontier []string
	push := func(id string) {
		if _, ok := g.Nodes[id]; !ok {
			return
		}
		if states[id] == stateUnvisited {
			states[id] = stateVisiting
			frontier = append(frontier, id)
		}
	}

	for _, id := range g.SortedIDs() {
		if g.Nodes[id].Entrypoint {
			push(id)
		}
	}
	for _, id := range g.escalatedNodes() {
		push(id)
	}

	edgeOK := func(e CallEdge) bool {
		return !opts.Strict || e.Confidence == ConfidenceExact
	}
	// In strict mode the precomputed adjacency can't be used directly; index
	// the surviving edges once.
	out := g.out
	if opts.Strict {
		out = make(map[string][]string, len(g.out))
		for _, e := range g.Edges {
			if edgeOK(e) {
				out[e.Caller] = append(out[e.Caller], e.Callee)
			}
		}
	}

	for len(frontier) > 0 {
		id := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		states[id] = stateReachable
		for _, callee := range out[id] {
			push(callee)
		}
	}

	res := &ReachResult{}
	for _, id := range g.SortedIDs() {
		if states[id] == stateReachable {
			g.Nodes[id].Reachable = true
			res.Reachable = append(res.Reachable, id)
		} else {
			g.Nodes[id].Reachable = false
			res.Unreachable = append(res.Unreachable, id)
		}
	}
	return res
}

// escalatedNodes expands every dynamic signal to the node ids its escalation
// scope covers.
func (g *Graph) escalatedNodes() []string {
	var ids []string
	for _, s := range g.Signals {
		switch s.Escalation {
		case EscalateFunction:
			ids = append(ids, s.FunctionID)
		case EscalateFile:
			ids = append(ids, g.NodesInFile(s.Package, s.File)...)
		case EscalatePackage:
			ids = append(ids, g.byPackage[s.Package]...)
		}
	}
	sort.Strings(ids)
	return dedupeStrings(ids)
}
