package executor

import (
	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
)

// frameRun is the state of one Execute call.
type frameRun struct {
	ex         *Executor
	prev, curr uint32
	// history is false when prev and curr select the same instance.
	history bool
}

// nodeRun is one scheduled node instance with its external views gathered.
type nodeRun struct {
	*frameRun
	node *ir.Node
	ext  map[ids.ResID]registry.View
}

func (r *frameRun) parity(history bool) uint32 {
	if history {
		return r.prev % 2
	}
	return r.curr % 2
}

func (r *frameRun) applyEvents(events ir.FrameEvents) {
	for _, ev := range events.HistoryInit {
		switch ev.Kind {
		case ir.EventClear:
			for _, p := range ev.Physical {
				if p < 0 || int(p) >= len(r.ex.views) {
					continue
				}
				if r.ex.phys[p].Kind == registry.KindBlob {
					r.ex.blobs[p] = newBlob(r.ex.phys[p].Blob)
					continue
				}
				r.ex.dev.Clear(r.ex.views[p])
			}
		case ir.EventDiscard:
			r.ex.log.Debug("history starts undefined", "resource", ev.Name)
		}
	}
}

func (r *frameRun) barriers(list []ir.Barrier) {
	for _, b := range list {
		if b.History && !r.history {
			continue
		}
		v, ok := r.ex.View(b.Physical[r.parity(b.History)])
		if !ok {
			continue
		}
		r.ex.dev.Barrier(v, b.From, b.To)
	}
}

// enter gathers the external views of node. Providers are called once per
// node instance.
func (r *frameRun) enter(node *ir.Node) *nodeRun {
	nr := &nodeRun{frameRun: r, node: node, ext: make(map[ids.ResID]registry.View)}
	for _, b := range node.Bindings {
		if !b.External {
			continue
		}
		if _, ok := nr.ext[b.Origin]; ok {
			continue
		}
		provide := r.ex.reg.Resources[b.Origin].External
		if provide == nil {
			r.ex.log.Error("imported resource has no provider", "node", node.Label(), "resource", r.ex.reg.Names.ResourceName(b.Origin))
			continue
		}
		nr.ext[b.Origin] = provide(node.Index)
	}
	return nr
}

func (r *frameRun) execute(node *ir.Node, d ir.StateDelta) {
	nr := r.enter(node)
	nr.apply(d)

	if int(node.Node) < len(r.ex.reg.Nodes) {
		data := &r.ex.reg.Nodes[node.Node]
		switch {
		case !data.Live():
			r.ex.log.Error("scheduled node is no longer registered", "node", node.Label())
		case data.Exec != nil:
			data.Exec(&execContext{nodeRun: nr})
		}
	}

	if node.SideEffects != registry.SideEffectsNone {
		nr.validate()
	}
}

// binding finds the binding of a reference. References may name the raw
// request or what it resolves to.
func (nr *nodeRun) binding(ref registry.ResourceRef) (ir.Binding, bool) {
	for _, b := range nr.node.Bindings {
		if b.Raw == ref.Res && b.History == ref.History {
			return b, true
		}
	}
	resolved := nr.ex.res.Binding(ref.Res)
	for _, b := range nr.node.Bindings {
		if b.Resolved == resolved && b.History == ref.History {
			return b, true
		}
	}
	return ir.Binding{}, false
}

func (nr *nodeRun) bindingView(b ir.Binding) (registry.View, bool) {
	if b.History && !nr.history {
		return registry.View{}, false
	}
	var v registry.View
	var ok bool
	if b.External {
		v, ok = nr.ext[b.Origin]
	} else {
		v, ok = nr.ex.View(b.Physical[nr.parity(b.History)])
	}
	v.Resource = b.Resolved
	return v, ok
}

func (nr *nodeRun) view(ref registry.ResourceRef) (registry.View, bool) {
	b, ok := nr.binding(ref)
	if !ok {
		return registry.View{}, false
	}
	return nr.bindingView(b)
}

func (nr *nodeRun) apply(d ir.StateDelta) {
	dev := nr.ex.dev
	if d.EndPass {
		dev.EndRenderPass()
	}
	for _, block := range d.PopLayers {
		dev.PopBlockLayer(block)
	}
	if d.BeginPass != nil {
		dev.BeginRenderPass(nr.pass(d.BeginPass))
	}
	for _, l := range d.PushLayers {
		dev.PushBlockLayer(l.Block, l.Layer)
	}
	if d.Wireframe != nil {
		dev.SetWireframe(*d.Wireframe)
	}
	if d.SetVRS {
		dev.SetVRS(nr.vrs(d.VRS))
	}
	for _, sv := range d.ShaderVars {
		if v, ok := nr.view(sv.Ref); ok {
			dev.BindShaderVar(sv.Name, v)
		}
	}
}

func (nr *nodeRun) pass(p *ir.PassState) RenderPass {
	out := RenderPass{DepthReadOnly: p.DepthReadOnly}
	for _, t := range p.Colors {
		if a, ok := nr.attachment(SlotColor, t); ok {
			out.Colors = append(out.Colors, a)
		}
	}
	if p.Depth != nil {
		if a, ok := nr.attachment(SlotDepth, *p.Depth); ok {
			out.Depth = &a
		}
	}
	for _, t := range p.Resolves {
		if a, ok := nr.attachment(SlotResolve, t); ok {
			out.Resolves = append(out.Resolves, a)
		}
	}
	return out
}

func (nr *nodeRun) attachment(kind SlotKind, t ir.Target) (Attachment, bool) {
	v, ok := nr.view(t.Ref)
	if !ok {
		nr.ex.log.Warn("render target has no resource bound", "node", nr.node.Label(),
			"resource", nr.ex.reg.Names.ResourceName(t.Ref.Res))
		return Attachment{}, false
	}
	v.Mip, v.Layer = t.Mip, t.Layer
	slot := Slot{Kind: kind, Index: t.Slot}
	if kind == SlotDepth {
		slot.Index = 0
	}
	return Attachment{Slot: slot, View: v, Load: t.Load, Store: t.Store, Clear: t.Clear}, true
}

func (nr *nodeRun) vrs(s *registry.VRSState) *VRS {
	if s == nil {
		return nil
	}
	out := &VRS{RateX: s.RateX, RateY: s.RateY}
	if s.Rate != nil {
		if v, ok := nr.view(*s.Rate); ok {
			out.Rate = &v
		}
	}
	return out
}

// validate compares what the node left bound with what it was expected to
// leave bound, and rebinds the expected view after each mismatch.
func (nr *nodeRun) validate() {
	dev := nr.ex.dev
	st := nr.node.State
	for _, sv := range st.ShaderVars {
		want, ok := nr.view(sv.Ref)
		if !ok {
			continue
		}
		got, bound := dev.ShaderVar(sv.Name)
		if bound && got == want {
			continue
		}
		nr.report(ReportShaderVar, sv.Name, want, got, bound)
		dev.BindShaderVar(sv.Name, want)
	}
	if st.Pass == nil {
		return
	}
	for _, a := range nr.pass(st.Pass).Attachments() {
		got, bound := dev.RenderTarget(a.Slot)
		if bound && got == a.View {
			continue
		}
		nr.report(ReportRenderTarget, a.Slot.String(), a.View, got, bound)
		dev.BindRenderTarget(a.Slot, a.View)
	}
}

func (nr *nodeRun) report(kind ReportKind, slot string, want, got registry.View, bound bool) {
	rep := Report{
		Frame:        nr.curr,
		Node:         nr.node.Label(),
		Kind:         kind,
		Slot:         slot,
		Expected:     want,
		ExpectedName: nr.ex.reg.Names.ResourceName(want.Resource),
		Observed:     got,
		Bound:        bound,
	}
	if bound {
		rep.ObservedName = nr.ex.reg.Names.ResourceName(got.Resource)
	}
	nr.ex.log.Warn("node left an unexpected binding", "node", rep.Node, "kind", kind, "slot", slot,
		"expected", rep.ExpectedName, "observed", rep.ObservedName, "bound", bound)
	if nr.ex.sink != nil {
		nr.ex.sink(rep)
	}
}

// execContext is what a node's execution callback sees.
type execContext struct {
	*nodeRun
}

func (c *execContext) Node() ids.NodeID {
	return c.node.Node
}

func (c *execContext) Index() multiplex.Index {
	return c.node.Index
}

func (c *execContext) View(raw ids.ResID, history bool) (registry.View, bool) {
	return c.view(registry.ResourceRef{Res: raw, History: history})
}

func (c *execContext) Blob(raw ids.ResID, history bool) (any, bool) {
	b, ok := c.binding(registry.ResourceRef{Res: raw, History: history})
	if !ok || b.Kind != registry.KindBlob || (b.History && !c.history) {
		return nil, false
	}
	p := b.Physical[c.parity(b.History)]
	if p < 0 || int(p) >= len(c.ex.blobs) {
		return nil, false
	}
	return c.ex.blobs[p], true
}
