package graph

import (
	"sort"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// Builder accumulates per-package front-end output and produces a frozen
// Graph. Appends are safe for concurrent use; resolution happens in a single
// pass inside Freeze.
type Builder struct {
	nodes *xsync.Map[string, *FunctionNode]

	mu         sync.Mutex
	edges      map[string]CallEdge
	unresolved []UnresolvedCall
	signals    []DynamicSignal
	imports    map[string][]Import // package name -> declared imports
	missing    map[string]bool     // package name -> source not found
	callerPkg  map[string]string   // unresolved caller id -> package name
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes:     xsync.NewMap[string, *FunctionNode](),
		edges:     make(map[string]CallEdge),
		imports:   make(map[string][]Import),
		missing:   make(map[string]bool),
		callerPkg: make(map[string]string),
	}
}

// RegisterPackage records package-level facts the resolution pass needs.
// missing marks packages whose source could not be located; references into
// them resolve conservatively.
func (b *Builder) RegisterPackage(name string, missing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if missing {
		b.missing[name] = true
	} else if _, ok := b.imports[name]; !ok {
		b.imports[name] = nil
	}
}

// AddNode inserts a function node. The first write for an id wins; duplicate
// definitions (e.g. the same file reached through two roots) are ignored.
func (b *Builder) AddNode(n FunctionNode) {
	b.nodes.LoadOrStore(n.ID, &n)
}

// AddEdge inserts a call edge, deduplicating on (caller, callee). When the
// same pair arrives twice the stronger confidence is kept; an edge's own
// confidence never changes after Freeze.
func (b *Builder) AddEdge(e CallEdge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addEdgeLocked(e)
}

func (b *Builder) addEdgeLocked(e CallEdge) {
	key := e.Caller + "\x00" + e.Callee
	prev, ok := b.edges[key]
	if !ok || confidenceRank(e.Confidence) > confidenceRank(prev.Confidence) {
		b.edges[key] = e
	}
}

// AddUnresolved queues a call reference for cross-package resolution.
func (b *Builder) AddUnresolved(pkg string, u UnresolvedCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unresolved = append(b.unresolved, u)
	b.callerPkg[u.Caller] = pkg
}

// AddImports records a package's declared imports.
func (b *Builder) AddImports(pkg string, imps []Import) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.imports[pkg] = append(b.imports[pkg], imps...)
}

// AddSignal records a dynamic code signal.
func (b *Builder) AddSignal(s DynamicSignal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = append(b.signals, s)
}

func confidenceRank(c Confidence) int {
	switch c {
	case ConfidenceExact:
		return 3
	case ConfidenceHeuristic:
		return 2
	case ConfidenceConservative:
		return 1
	}
	return 0
}

// lookupIndex is the immutable cross-package symbol table used during
// resolution. Built once per Freeze and passed to every resolution step.
type lookupIndex struct {
	// byPackage maps package name -> bare trailing name -> sorted node ids.
	byPackage map[string]map[string][]string
	packages  []string // sorted package names
}

func (b *Builder) buildIndex() *lookupIndex {
	idx := &lookupIndex{byPackage: make(map[string]map[string][]string)}
	b.nodes.Range(func(id string, n *FunctionNode) bool {
		names := idx.byPackage[n.Package]
		if names == nil {
			names = make(map[string][]string)
			idx.byPackage[n.Package] = names
		}
		for _, key := range bareNames(n.Name) {
			names[key] = append(names[key], id)
		}
		return true
	})
	for pkg, names := range idx.byPackage {
		idx.packages = append(idx.packages, pkg)
		for key := range names {
			sort.Strings(names[key])
		}
	}
	sort.Strings(idx.packages)
	return idx
}

// bareNames returns the lookup keys a qualified name answers to: the full
// qualified name and its trailing segment (method name without receiver).
func bareNames(qualified string) []string {
	keys := []string{qualified}
	if i := strings.LastIndexAny(qualified, "./"); i >= 0 && i+1 < len(qualified) {
		keys = append(keys, qualified[i+1:])
	}
	return keys
}

// packagesForImport maps an import source to known package names. Tries the
// full source, then the scoped pair (@scope/name), then the first path
// segment, then the first dotted segment (python-style module paths).
func (idx *lookupIndex) packagesForImport(source string, known map[string][]Import, missing map[string]bool) []string {
	var out []string
	seen := make(map[string]bool)
	try := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		if _, ok := idx.byPackage[name]; ok {
			out = append(out, name)
		} else if _, ok := known[name]; ok {
			out = append(out, name)
		} else if missing[name] {
			out = append(out, name)
		}
	}
	try(source)
	parts := strings.Split(source, "/")
	if strings.HasPrefix(source, "@") && len(parts) >= 2 {
		try(parts[0] + "/" + parts[1])
	}
	try(parts[0])
	try(strings.SplitN(parts[0], ".", 2)[0])
	return out
}

// Freeze resolves all queued cross-package references and returns the
// completed immutable graph. Resolution order per reference:
//
//  1. exact: the bare name exists in a package named by the caller package's
//     declared imports
//  2. heuristic: the bare name exists anywhere in the loaded packages
//  3. conservative: the reference points into a package whose source was not
//     found; a synthetic node is created and forced reachable
//
// References matching none of the above are dropped and counted.
func (b *Builder) Freeze() *Graph {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.buildIndex()
	dropped := 0
	heuristics := 0

	for _, u := range b.unresolved {
		pkg := b.callerPkg[u.Caller]

		// Step 1: narrow the search through declared imports.
		if ids, miss := b.resolveViaImports(idx, pkg, u); len(ids) > 0 {
			for _, id := range ids {
				b.addResolvedEdge(u, id, ConfidenceExact)
			}
			continue
		} else if miss != "" {
			id := b.syntheticNode(miss, u.Name)
			b.addResolvedEdge(u, id, ConfidenceConservative)
			continue
		}

		// Step 2: bare-name fallback across every loaded package.
		if ids := b.resolveByName(idx, pkg, u.Name); len(ids) > 0 {
			for _, id := range ids {
				b.addResolvedEdge(u, id, ConfidenceHeuristic)
			}
			heuristics++
			continue
		}
		dropped++
	}

	return b.assemble(dropped, heuristics)
}

// resolveViaImports looks the bare name up in each package the caller's
// imports reach. Returns matched node ids, or the name of a missing package
// the imports point into when no loaded package matches.
func (b *Builder) resolveViaImports(idx *lookupIndex, pkg string, u UnresolvedCall) ([]string, string) {
	var ids []string
	missingPkg := ""
	for _, imp := range b.imports[pkg] {
		// Imported-symbol aliasing: "from m import f as g" means a call to g
		// should be looked up as f.
		name := u.Name
		if imp.Alias != "" && imp.Alias == firstSegment(u.Name) && len(imp.Symbols) == 1 {
			name = imp.Symbols[0]
		}
		for _, target := range idx.packagesForImport(imp.Source, b.imports, b.missing) {
			if target == pkg {
				continue
			}
			if b.missing[target] {
				missingPkg = target
				continue
			}
			names := idx.byPackage[target]
			for _, key := range []string{name, lastSegment(name)} {
				if matched := names[key]; len(matched) > 0 {
					ids = append(ids, matched...)
					break
				}
			}
		}
	}
	sort.Strings(ids)
	return dedupeStrings(ids), missingPkg
}

// resolveByName matches the bare name across every loaded package except the
// caller's own (intra-package calls were already resolved by the front-end).
func (b *Builder) resolveByName(idx *lookupIndex, callerPkg, name string) []string {
	var ids []string
	key := lastSegment(name)
	for _, pkg := range idx.packages {
		if pkg == callerPkg {
			continue
		}
		ids = append(ids, idx.byPackage[pkg][key]...)
	}
	sort.Strings(ids)
	return dedupeStrings(ids)
}

func (b *Builder) addResolvedEdge(u UnresolvedCall, callee string, c Confidence) {
	b.addEdgeLocked(CallEdge{
		Caller:     u.Caller,
		Callee:     callee,
		Confidence: c,
		File:       u.File,
		Line:       u.Line,
	})
}

// syntheticNode materializes a placeholder for a symbol inside a package
// whose source was never located. It is forced reachable: an unanalyzable
// package cannot be proven unreachable.
func (b *Builder) syntheticNode(pkg, name string) string {
	id := FuncID(pkg, lastSegment(name))
	b.nodes.LoadOrStore(id, &FunctionNode{
		ID:      id,
		Package: pkg,
		Name:    lastSegment(name),
		Origin:  OriginDependency,
	})
	b.signals = append(b.signals, DynamicSignal{
		Package:    pkg,
		FunctionID: id,
		Construct:  ConstructReflection,
		Escalation: EscalateFunction,
	})
	return id
}

func (b *Builder) assemble(dropped, heuristics int) *Graph {
	g := &Graph{
		Nodes:      make(map[string]*FunctionNode),
		out:        make(map[string][]string),
		in:         make(map[string][]string),
		byFile:     make(map[string][]string),
		byPackage:  make(map[string][]string),
		Signals:    append([]DynamicSignal(nil), b.signals...),
		Dropped:    dropped,
		Heuristics: heuristics,
	}
	b.nodes.Range(func(id string, n *FunctionNode) bool {
		g.Nodes[id] = n
		g.byFile[fileKey(n.Package, n.File)] = append(g.byFile[fileKey(n.Package, n.File)], id)
		g.byPackage[n.Package] = append(g.byPackage[n.Package], id)
		return true
	})
	for _, e := range b.edges {
		// Edges whose endpoints never materialized carry no information.
		if _, ok := g.Nodes[e.Caller]; !ok {
			continue
		}
		if _, ok := g.Nodes[e.Callee]; !ok {
			continue
		}
		g.Edges = append(g.Edges, e)
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Caller != g.Edges[j].Caller {
			return g.Edges[i].Caller < g.Edges[j].Caller
		}
		return g.Edges[i].Callee < g.Edges[j].Callee
	})
	for _, e := range g.Edges {
		g.out[e.Caller] = append(g.out[e.Caller], e.Callee)
		g.in[e.Callee] = append(g.in[e.Callee], e.Caller)
	}
	for _, m := range []map[string][]string{g.out, g.in, g.byFile, g.byPackage} {
		for k := range m {
			sort.Strings(m[k])
			m[k] = dedupeStrings(m[k])
		}
	}
	return g
}

func lastSegment(name string) string {
	if i := strings.LastIndexAny(name, "./"); i >= 0 && i+1 < len(name) {
		return name[i+1:]
	}
	return name
}

func firstSegment(name string) string {
	if i := strings.IndexAny(name, "./"); i > 0 {
		return name[:i]
	}
	return name
}

func dedupeStrings(in []string) []string {
	out := in[:0]
	var prev string
	for i, s := range in {
		if i == 0 || s != prev {
			out = append(out, s)
		}
		prev = s
	}
	return out
}
