package compiler

import (
	"container/heap"

	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/multiplex"
)

// readyQueue orders IR nodes whose predecessors have all run.
type readyQueue struct {
	nodes []ir.Node
	items []uint32
}

func (q *readyQueue) Len() int { return len(q.items) }

// Less runs lower priority values first, then less multiplexed nodes, then
// lower IR indices, then lower node ids.
func (q *readyQueue) Less(i, j int) bool {
	a, b := &q.nodes[q.items[i]], &q.nodes[q.items[j]]
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.Mode != b.Mode {
		return multiplex.LessMultiplexed(a.Mode, b.Mode)
	}
	if q.items[i] != q.items[j] {
		return q.items[i] < q.items[j]
	}
	return a.Node < b.Node
}

func (q *readyQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *readyQueue) Push(x any) { q.items = append(q.items, x.(uint32)) }

func (q *readyQueue) Pop() any {
	last := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return last
}

// scheduleNodes orders the IR with Kahn's algorithm.
func (c *Compiler) scheduleNodes() {
	nodes := c.frame.Nodes
	indegree := make([]int, len(nodes))
	succ := make([][]uint32, len(nodes))
	for i := range nodes {
		indegree[i] = len(nodes[i].Preds)
		for _, p := range nodes[i].Preds {
			succ[p] = append(succ[p], uint32(i))
		}
	}

	q := &readyQueue{nodes: nodes}
	for i := range nodes {
		if indegree[i] == 0 {
			q.items = append(q.items, uint32(i))
		}
	}
	heap.Init(q)

	order := make([]uint32, 0, len(nodes))
	for q.Len() > 0 {
		i := heap.Pop(q).(uint32)
		order = append(order, i)
		for _, s := range succ[i] {
			indegree[s]--
			if indegree[s] == 0 {
				heap.Push(q, s)
			}
		}
	}

	if len(order) != len(nodes) {
		// Cycles are broken before the IR is built; reaching this means
		// the IR edges are inconsistent with the node graph.
		c.log.Error("schedule left nodes unordered", "scheduled", len(order), "total", len(nodes))
		scheduled := make([]bool, len(nodes))
		for _, i := range order {
			scheduled[i] = true
		}
		for i := range nodes {
			if !scheduled[i] {
				order = append(order, uint32(i))
			}
		}
	}
	c.frame.Order = order
}
