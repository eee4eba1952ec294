package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/framegraph/internal/ids"
)

// Cycle is a strongly connected group of nodes in the dependency graph.
// Path starts and ends at the same node.
type Cycle struct {
	Nodes []ids.NodeID
	Path  []ids.NodeID
}

// graph maps each node to its successors. Successor lists are sorted so
// every traversal is deterministic.
type graph map[ids.NodeID][]ids.NodeID

func (g graph) addEdge(from, to ids.NodeID) bool {
	if from == to {
		return false
	}
	succ := g[from]
	i, found := slices.BinarySearch(succ, to)
	if found {
		return false
	}
	g[from] = slices.Insert(succ, i, to)
	return true
}

func (g graph) hasEdge(from, to ids.NodeID) bool {
	_, found := slices.BinarySearch(g[from], to)
	return found
}

// vertices returns every node with an entry in g, sorted.
func (g graph) vertices() []ids.NodeID {
	out := make([]ids.NodeID, 0, len(g))
	for v := range g {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// predecessors inverts g.
func (g graph) predecessors() graph {
	preds := make(graph, len(g))
	for _, v := range g.vertices() {
		if _, ok := preds[v]; !ok {
			preds[v] = nil
		}
		for _, w := range g[v] {
			preds[w] = append(preds[w], v)
		}
	}
	for v := range preds {
		slices.Sort(preds[v])
	}
	return preds
}

// findCycles runs Tarjan's algorithm over g and returns every component with
// more than one node. Components are reported in discovery order with their
// members sorted.
func findCycles(g graph) []Cycle {
	var (
		index   = 0
		stack   []ids.NodeID
		indices = make(map[ids.NodeID]int)
		lowlink = make(map[ids.NodeID]int)
		onStack = make(map[ids.NodeID]bool)
		cycles  []Cycle
	)

	var strongConnect func(ids.NodeID)
	strongConnect = func(v ids.NodeID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []ids.NodeID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 {
				slices.Sort(scc)
				cycles = append(cycles, Cycle{Nodes: scc, Path: cyclePath(scc, g)})
			}
		}
	}

	for _, v := range g.vertices() {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return cycles
}

// cyclePath returns the shortest walk inside the component from its lowest
// node back to itself.
func cyclePath(scc []ids.NodeID, g graph) []ids.NodeID {
	member := make(map[ids.NodeID]bool, len(scc))
	for _, n := range scc {
		member[n] = true
	}

	start := scc[0]
	parent := map[ids.NodeID]ids.NodeID{start: ids.InvalidNode}
	queue := []ids.NodeID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, w := range g[cur] {
			if w == start {
				var path []ids.NodeID
				for n := cur; n != ids.InvalidNode; n = parent[n] {
					path = append(path, n)
				}
				slices.Reverse(path)
				return append(path, start)
			}
			if _, seen := parent[w]; member[w] && !seen {
				parent[w] = cur
				queue = append(queue, w)
			}
		}
	}
	return []ids.NodeID{start}
}

// breakCycles drops every edge inside a component that goes from a higher
// node id to a lower one. What is left of each component is ordered by id.
func breakCycles(g graph, cycles []Cycle) {
	comp := make(map[ids.NodeID]int)
	for i, c := range cycles {
		for _, n := range c.Nodes {
			comp[n] = i
		}
	}
	for v, succ := range g {
		cv, inCycle := comp[v]
		if !inCycle {
			continue
		}
		g[v] = slices.DeleteFunc(succ, func(w ids.NodeID) bool {
			cw, ok := comp[w]
			return ok && cw == cv && w < v
		})
	}
}

func formatCyclePath(names *ids.Names, path []ids.NodeID) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = names.NodeName(n)
	}
	return fmt.Sprintf("dependency cycle: %s", strings.Join(parts, " -> "))
}
