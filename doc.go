// Package reach determines whether known-vulnerable functions in a project's
// dependencies are actually reachable from the project's own code.
//
// # Pipeline
//
// A scan runs five phases:
//
//  1. Resolve: read the project's lockfiles and locate each declared
//     dependency's code on disk (vendored trees first, then global caches).
//  2. Parse: run a language front-end over the application and every located
//     dependency, producing function nodes, call edges, imports, and
//     dynamic-code signals. Packages are parsed in parallel under a
//     per-package time budget, with results cached by content hash.
//  3. Build: merge every front-end result into one unified call graph,
//     resolving cross-package references through declared imports.
//  4. Detect: mark entrypoints (process mains, script toplevels, tests,
//     framework handler shapes, and any user-scripted rules).
//  5. Evaluate: traverse the graph from the entrypoints and cross-reference
//     vulnerability records against the reachable set, producing a
//     reachable / unreachable / unknown verdict per advisory with the
//     shortest call chain as evidence.
//
// # Usage
//
// Create a Scanner, scan, and render the report:
//
//	s, err := reach.NewScanner("path/to/project", reach.WithCachePath("reach.db"))
//	if err != nil { ... }
//	defer s.Close()
//
//	ctx := context.Background()
//	records, err := reach.LoadRecords("osv.json")
//	report, err := s.Scan(ctx, records)
//	report.WriteText(os.Stdout)
//
// # Confidence
//
// Every call edge carries a confidence level: exact (static target), heuristic
// (name or dispatch-based), or conservative (dynamic construct). The default
// traversal follows every edge, which is the safe policy for security
// findings; [WithStrictConfidence] restricts it to exact edges. Dynamic
// constructs the analysis cannot see through (eval, reflection, computed
// calls) escalate their surrounding scope so nothing silently disappears from
// the reachable set.
package reach
