package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/roach88/framegraph/internal/registry"
)

// DomainFrame prefixes compiled frame hashes. The version suffix allows the
// canonical form to change later.
const DomainFrame = "framegraph/frame/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data). The null byte keeps
// the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash identifies a compiled frame by its schedule, state deltas, resource
// assignment and events. Two compilations with equal hashes execute
// identically against the same device. Diagnostics are not part of it.
func (f *Frame) Hash() (string, error) {
	canonical, err := MarshalCanonical(f.Canonical())
	if err != nil {
		return "", fmt.Errorf("frame hash: %w", err)
	}
	return hashWithDomain(DomainFrame, canonical), nil
}

// MustHash is like Hash but panics on error. Frames built by the compiler
// always marshal.
func (f *Frame) MustHash() string {
	h, err := f.Hash()
	if err != nil {
		panic(err)
	}
	return h
}

// Canonical renders the frame as a canonical value.
func (f *Frame) Canonical() Object {
	nodes := make(Array, 0, len(f.Nodes))
	for i := range f.Nodes {
		nodes = append(nodes, canonicalNode(&f.Nodes[i]))
	}
	order := make(Array, 0, len(f.Order))
	for _, i := range f.Order {
		order = append(order, Int(i))
	}
	deltas := make(Array, 0, len(f.Deltas))
	for _, d := range f.Deltas {
		deltas = append(deltas, canonicalDelta(d))
	}
	barriers := make(Array, 0, len(f.Barriers))
	for _, list := range f.Barriers {
		arr := make(Array, 0, len(list))
		for _, b := range list {
			arr = append(arr, Object{
				"resource": Int(b.Resource),
				"physical": physical(b.Physical),
				"history":  Bool(b.History),
				"from":     canonicalUsage(b.From),
				"to":       canonicalUsage(b.To),
			})
		}
		barriers = append(barriers, arr)
	}
	resources := make(Array, 0, len(f.Resources))
	for _, r := range f.Resources {
		resources = append(resources, canonicalResource(r))
	}
	events := make(Array, 0, len(f.Events.HistoryInit))
	for _, e := range f.Events.HistoryInit {
		phys := make(Array, 0, len(e.Physical))
		for _, p := range e.Physical {
			phys = append(phys, Int(p))
		}
		events = append(events, Object{
			"kind":     String(e.Kind.String()),
			"resource": String(e.Name),
			"physical": phys,
		})
	}

	return Object{
		"extents":   extents(f.Extents),
		"nodes":     nodes,
		"order":     order,
		"deltas":    deltas,
		"barriers":  barriers,
		"resources": resources,
		"events":    events,
	}
}

func canonicalNode(n *Node) Object {
	preds := make(Array, 0, len(n.Preds))
	for _, p := range n.Preds {
		preds = append(preds, Int(p))
	}
	bindings := make(Array, 0, len(n.Bindings))
	for _, b := range n.Bindings {
		bindings = append(bindings, Object{
			"raw":      Int(b.Raw),
			"resolved": Int(b.Resolved),
			"history":  Bool(b.History),
			"physical": physical(b.Physical),
			"external": Bool(b.External),
			"usage":    String(b.Usage.String()),
			"access":   String(b.Access.String()),
			"stages":   Int(b.Stages),
		})
	}
	return Object{
		"name":         String(n.Name),
		"index":        index(n.Index),
		"mode":         Int(n.Mode),
		"priority":     Int(n.Priority),
		"side_effects": String(n.SideEffects.String()),
		"preds":        preds,
		"bindings":     bindings,
		"state":        canonicalState(n.State),
	}
}

func canonicalState(s NodeState) Object {
	obj := Object{
		"shader_vars":  shaderVars(s.ShaderVars),
		"block_layers": blockLayers(s.BlockLayers),
		"wireframe":    Bool(s.Wireframe),
	}
	if s.Pass != nil {
		obj["pass"] = canonicalPass(s.Pass)
	}
	if s.VRS != nil {
		obj["vrs"] = Array{Int(s.VRS.RateX), Int(s.VRS.RateY)}
	}
	return obj
}

func canonicalDelta(d StateDelta) Object {
	pops := make(Array, 0, len(d.PopLayers))
	for _, p := range d.PopLayers {
		pops = append(pops, String(p))
	}
	obj := Object{
		"end_pass":    Bool(d.EndPass),
		"pop_layers":  pops,
		"push_layers": blockLayers(d.PushLayers),
		"set_vrs":     Bool(d.SetVRS),
		"shader_vars": shaderVars(d.ShaderVars),
	}
	if d.BeginPass != nil {
		obj["begin_pass"] = canonicalPass(d.BeginPass)
	}
	if d.Wireframe != nil {
		obj["wireframe"] = Bool(*d.Wireframe)
	}
	return obj
}

func canonicalPass(p *PassState) Object {
	targets := func(list []Target) Array {
		arr := make(Array, 0, len(list))
		for _, t := range list {
			arr = append(arr, canonicalTarget(t))
		}
		return arr
	}
	obj := Object{
		"colors":          targets(p.Colors),
		"resolves":        targets(p.Resolves),
		"depth_read_only": Bool(p.DepthReadOnly),
	}
	if p.Depth != nil {
		obj["depth"] = canonicalTarget(*p.Depth)
	}
	return obj
}

func canonicalTarget(t Target) Object {
	return Object{
		"slot":    Int(t.Slot),
		"res":     Int(t.Ref.Res),
		"history": Bool(t.Ref.History),
		"mip":     Int(t.Mip),
		"layer":   Int(t.Layer),
		"load":    Int(t.Load),
		"store":   Int(t.Store),
		"clear": Array{
			String(formatFloat(t.Clear.R)), String(formatFloat(t.Clear.G)),
			String(formatFloat(t.Clear.B)), String(formatFloat(t.Clear.A)),
		},
	}
}

func canonicalResource(r PhysicalResource) Object {
	names := make(Array, 0, len(r.Names))
	for _, n := range r.Names {
		names = append(names, String(n))
	}
	obj := Object{
		"index":   Int(r.Index),
		"kind":    String(r.Kind.String()),
		"names":   names,
		"history": Bool(r.History),
		"parity":  Int(r.Parity),
	}
	switch r.Kind {
	case registry.KindTexture:
		obj["texture"] = Object{
			"format":    Int(r.Texture.Format),
			"usage":     Int(r.Texture.Usage),
			"dimension": Int(r.Texture.Dimension),
			"size": Array{
				Int(r.Texture.Size.Width), Int(r.Texture.Size.Height), Int(r.Texture.Size.DepthOrArrayLayers),
			},
			"mips": Int(r.Texture.MipLevels),
		}
	case registry.KindBuffer:
		obj["buffer"] = Object{"size": Int(r.Buffer.Size), "usage": Int(r.Buffer.Usage)}
	case registry.KindBlob:
		obj["blob"] = String(r.Blob.Tag)
	}
	return obj
}

func canonicalUsage(u UsageState) Object {
	return Object{
		"usage":  String(u.Usage.String()),
		"access": String(u.Access.String()),
		"stages": Int(u.Stages),
	}
}

func shaderVars(vars []ShaderVar) Array {
	arr := make(Array, 0, len(vars))
	for _, v := range vars {
		arr = append(arr, Object{
			"name":    String(v.Name),
			"res":     Int(v.Ref.Res),
			"history": Bool(v.Ref.History),
		})
	}
	return arr
}

func blockLayers(layers []registry.BlockLayer) Array {
	arr := make(Array, 0, len(layers))
	for _, l := range layers {
		arr = append(arr, Object{"block": String(l.Block), "layer": Int(l.Layer)})
	}
	return arr
}

func physical(p [2]int32) Array {
	return Array{Int(p[0]), Int(p[1])}
}

func index(idx [4]uint32) Array {
	return Array{Int(idx[0]), Int(idx[1]), Int(idx[2]), Int(idx[3])}
}

func extents(e [4]uint32) Array {
	return index(e)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
