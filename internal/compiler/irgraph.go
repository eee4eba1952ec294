package compiler

import (
	"maps"
	"slices"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
)

// buildIR expands every kept node over its multiplexing extents and links
// instances that agree on the dimensions their nodes share.
func (c *Compiler) buildIR() {
	d := &c.deps
	nodes := make([]ir.Node, 0, len(d.kept))
	c.spans = make(map[ids.NodeID]span, len(d.kept))

	for _, id := range d.kept {
		n := &c.reg.Nodes[id]
		start := len(nodes)
		for _, idx := range multiplex.All(multiplex.ExtentsForNode(n.Multiplexing, c.extents)) {
			nodes = append(nodes, ir.Node{
				Node:        id,
				Name:        c.nodeName(id),
				Index:       idx,
				Mode:        n.Multiplexing,
				Priority:    n.Priority,
				SideEffects: n.SideEffects,
				Preds:       []uint32{},
				Bindings:    c.bindings(n),
			})
		}
		c.spans[id] = span{start: start, end: len(nodes)}
	}

	preds := d.edges.predecessors()
	for _, v := range d.kept {
		vs := c.spans[v]
		for _, u := range preds[v] {
			if !d.keep[u] {
				continue
			}
			us := c.spans[u]
			shared := nodes[vs.start].Mode & nodes[us.start].Mode
			for vi := vs.start; vi < vs.end; vi++ {
				want := multiplex.Project(nodes[vi].Index, shared)
				for ui := us.start; ui < us.end; ui++ {
					if multiplex.Project(nodes[ui].Index, shared) == want {
						nodes[vi].Preds = append(nodes[vi].Preds, uint32(ui))
					}
				}
			}
		}
	}
	for i := range nodes {
		slices.Sort(nodes[i].Preds)
	}

	c.frame.Nodes = nodes
}

// bindings lists one binding per raw request, normal requests first, each
// group in raw id order. Physical instances are filled in by resource
// scheduling.
func (c *Compiler) bindings(n *registry.NodeData) []ir.Binding {
	out := make([]ir.Binding, 0, len(n.Requests)+len(n.HistoryRequests))
	for _, reqs := range []map[ids.ResID]registry.ResourceRequest{n.Requests, n.HistoryRequests} {
		for _, raw := range slices.Sorted(maps.Keys(reqs)) {
			req := reqs[raw]
			b := ir.Binding{
				Raw:      raw,
				Resolved: c.res.Binding(raw),
				History:  req.History,
				Physical: [2]int32{ir.Unbound, ir.Unbound},
				Usage:    req.Usage,
				Access:   req.Access,
				Stages:   req.Stages,
			}
			b.Origin = b.Resolved
			if c.available(b.Resolved) {
				b.Origin = c.reg.ChainOrigin(b.Resolved)
				origin := &c.reg.Resources[b.Origin]
				b.Kind = origin.Kind
				b.External = origin.Origin == registry.OriginImported
			}
			out = append(out, b)
		}
	}
	return out
}
