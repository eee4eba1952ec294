package compiler

import (
	"maps"
	"slices"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/registry"
)

// calculateStateDeltas fills every IR node's required state and the delta
// from the node scheduled before it.
func (c *Compiler) calculateStateDeltas() {
	states := make(map[ids.NodeID]ir.NodeState, len(c.deps.kept))
	for _, id := range c.deps.kept {
		states[id] = c.nodeState(&c.reg.Nodes[id])
	}
	for i := range c.frame.Nodes {
		c.frame.Nodes[i].State = states[c.frame.Nodes[i].Node]
	}

	deltas := make([]ir.StateDelta, len(c.frame.Order))
	var prev *ir.Node
	for pos, i := range c.frame.Order {
		cur := &c.frame.Nodes[i]
		deltas[pos] = ir.Transition(prev, cur)
		prev = cur
	}
	c.frame.Deltas = deltas
}

func (c *Compiler) nodeState(n *registry.NodeData) ir.NodeState {
	s := ir.NodeState{
		ShaderVars:  []ir.ShaderVar{},
		BlockLayers: slices.Clone(n.BlockLayers),
		Wireframe:   n.Wireframe,
	}
	if s.BlockLayers == nil {
		s.BlockLayers = []registry.BlockLayer{}
	}
	if n.RenderPass != nil {
		p := n.RenderPass
		s.Pass = &ir.PassState{
			Colors:        c.targets(p.Colors),
			DepthReadOnly: p.DepthReadOnly,
			Resolves:      c.targets(p.Resolves),
		}
		if p.Depth != nil {
			t := c.target(*p.Depth)
			s.Pass.Depth = &t
		}
	}
	for _, name := range slices.Sorted(maps.Keys(n.ShaderVars)) {
		s.ShaderVars = append(s.ShaderVars, ir.ShaderVar{Name: name, Ref: n.ShaderVars[name]})
	}
	if n.VRS != nil {
		v := *n.VRS
		s.VRS = &v
	}
	return s
}

func (c *Compiler) targets(list []registry.Attachment) []ir.Target {
	out := make([]ir.Target, 0, len(list))
	for _, a := range list {
		out = append(out, c.target(a))
	}
	slices.SortFunc(out, func(a, b ir.Target) int { return int(a.Slot) - int(b.Slot) })
	return out
}

func (c *Compiler) target(a registry.Attachment) ir.Target {
	return ir.Target{
		Slot:   a.Slot,
		Ref:    a.Ref,
		Origin: c.reg.ChainOrigin(c.res.Binding(a.Ref.Res)),
		Mip:    a.Mip,
		Layer:  a.Layer,
		Load:   a.Load,
		Store:  a.Store,
		Clear:  a.Clear,
	}
}
