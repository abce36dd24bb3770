package rewriter

import "fmt"

// validateAcyclic rebuilds the node dependency graph (one vertex per
// producer node, one edge for every tensor a node consumes from an
// earlier node) and runs a Kahn's-algorithm topological sort over it, so a
// rewrite that somehow introduced a cycle is caught before it is returned
// to the caller. The tensor graph is structurally a DAG; no cycles are
// ever expected.
//
// This is hand-rolled rather than built on a graph library: the one
// general-purpose graph package considered ships
// duplicate method definitions for *Graph across core/methods.go,
// core/methods_edges.go, core/methods_vertices.go, and
// core/adjacency_list.go and would not build, so it is not wired in here
// (see DESIGN.md).
func validateAcyclic(graph message) error {
	nodes := graph.allSub(fGraphNode)

	ids := make([]string, len(nodes))
	producer := make(map[string]string, len(nodes)*2)
	for i, n := range nodes {
		ids[i] = nodeVertexID(n, i)
		for _, out := range stringFields(n, fNodeOutput) {
			producer[out] = ids[i]
		}
	}

	indegree := make(map[string]int, len(ids))
	adj := make(map[string][]string, len(ids))
	for _, id := range ids {
		indegree[id] = 0
	}
	for i, n := range nodes {
		to := ids[i]
		for _, in := range stringFields(n, fNodeInput) {
			from, ok := producer[in]
			if !ok || from == to {
				continue
			}
			adj[from] = append(adj[from], to)
			indegree[to]++
		}
	}

	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[cur] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(ids) {
		return fmt.Errorf("rewriter: graph is not acyclic (%d/%d nodes ordered)", visited, len(ids))
	}
	return nil
}

func nodeVertexID(n message, index int) string {
	if name, ok := n.str(fNodeName); ok && name != "" {
		return name
	}
	return fmt.Sprintf("node#%d", index)
}
