package graph

// ShortestChain returns the shortest entrypoint-to-target call chain as a
// sequence of node ids, or nil when no entrypoint reaches the target. BFS
// backtracks from the target over in-edges; because neighbor lists are sorted
// and the queue is FIFO, ties between equal-length chains break toward the
// lexicographically smallest ids, so output is reproducible.
func (g *Graph) ShortestChain(target string) []string {
	node, ok := g.Nodes[target]
	if !ok {
		return nil
	}
	if node.Entrypoint {
		return []string{target}
	}

	// prev[id] is the node one step closer to the target.
	prev := map[string]string{target: ""}
	queue := []string{target}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, caller := range g.Callers(id) {
			if _, seen := prev[caller]; seen {
				continue
			}
			prev[caller] = id
			if g.Nodes[caller] != nil && g.Nodes[caller].Entrypoint {
				return g.walkChain(prev, caller)
			}
			queue = append(queue, caller)
		}
	}
	return nil
}

func (g *Graph) walkChain(prev map[string]string, start string) []string {
	var chain []string
	for id := start; id != ""; id = prev[id] {
		chain = append(chain, id)
	}
	return chain
}
