package compiler

import (
	"fmt"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
)

// virtualKey identifies one virtual resource instance: a renaming chain as
// seen by one iteration of the node that created it.
type virtualKey struct {
	origin ids.ResID
	index  multiplex.Index
}

type virtual struct {
	key     virtualKey
	name    string
	kind    registry.ResourceKind
	texture registry.TextureDesc
	buffer  registry.BufferDesc
	blob    registry.BlobDesc
	history bool

	first, last int
	phys        [2]int32
}

// instanceKey is one concrete physical instance as accessed in a frame.
// History instances differ from the current ones by parity.
type instanceKey struct {
	phys    [2]int32
	history bool
}

// scheduleResources computes lifetimes, assigns physical instances with
// aliasing, accumulates usage flags and places barriers.
func (c *Compiler) scheduleResources() {
	c.resDiags = nil
	c.virtuals = nil
	byKey := make(map[virtualKey]*virtual)
	unsized := make(map[ids.AutoResTypeID]bool)

	for pos, i := range c.frame.Order {
		node := &c.frame.Nodes[i]
		for bi := range node.Bindings {
			b := &node.Bindings[bi]
			b.Physical = [2]int32{ir.Unbound, ir.Unbound}
			if b.Kind == registry.KindNone || b.External {
				continue
			}
			key := c.virtualKeyFor(b.Origin, node.Index)
			v, ok := byKey[key]
			if !ok {
				v = c.newVirtual(key, pos, unsized)
				byKey[key] = v
				c.virtuals = append(c.virtuals, v)
			}
			v.last = pos
			switch v.kind {
			case registry.KindTexture:
				v.texture.Usage |= registry.TextureUsageFor(b.Usage)
			case registry.KindBuffer:
				v.buffer.Usage |= registry.BufferUsageFor(b.Usage)
			}
		}
	}

	resources := c.allocate()
	c.frame.Resources = resources

	for _, i := range c.frame.Order {
		node := &c.frame.Nodes[i]
		for bi := range node.Bindings {
			b := &node.Bindings[bi]
			if b.Kind == registry.KindNone || b.External {
				continue
			}
			b.Physical = byKey[c.virtualKeyFor(b.Origin, node.Index)].phys
		}
	}

	c.placeBarriers()
}

// virtualKeyFor projects the accessing iteration onto the creator's
// multiplexing mode.
func (c *Compiler) virtualKeyFor(origin ids.ResID, idx multiplex.Index) virtualKey {
	mode := multiplex.ModeNone
	if p := c.reg.Resources[origin].Producer; p != ids.InvalidNode && int(p) < len(c.reg.Nodes) {
		mode = c.reg.Nodes[p].Multiplexing
	}
	return virtualKey{origin: origin, index: multiplex.Project(idx, mode)}
}

func (c *Compiler) newVirtual(key virtualKey, pos int, unsized map[ids.AutoResTypeID]bool) *virtual {
	res := &c.reg.Resources[key.origin]
	v := &virtual{
		key:     key,
		name:    c.resName(key.origin),
		kind:    res.Kind,
		buffer:  res.Buffer,
		blob:    res.Blob,
		history: c.deps.historyChains[key.origin],
		first:   pos,
		last:    pos,
		phys:    [2]int32{ir.Unbound, ir.Unbound},
	}
	if key.index != (multiplex.Index{}) {
		v.name += key.index.String()
	}
	if res.Kind == registry.KindTexture {
		v.texture = c.resolveTexture(key.origin, res.Texture, unsized)
	}
	return v
}

// resolveTexture sizes auto-resolution textures from the static resolution.
// An unset type sizes the texture 1x1 and is reported once per type.
func (c *Compiler) resolveTexture(origin ids.ResID, desc registry.TextureDesc, unsized map[ids.AutoResTypeID]bool) registry.TextureDesc {
	if desc.AutoRes == ids.InvalidAutoResType {
		return desc.Resolved(registry.Resolution{})
	}
	res, ok := c.reg.ResolutionOf(desc.AutoRes)
	if !ok || res.IsZero() {
		if !unsized[desc.AutoRes] {
			unsized[desc.AutoRes] = true
			c.report(&c.resDiags, warningDiag(CodeUnsizedTexture, "", c.resName(origin),
				"auto-resolution type %s has no resolution", c.reg.Names.AutoResTypeName(desc.AutoRes)))
		}
		res = registry.Resolution{Width: 1, Height: 1}
	}
	return desc.Resolved(res)
}

// allocate assigns physical instances in order of first use. History chains
// get one instance per frame parity and never alias; blobs never alias;
// textures and buffers reuse the lowest free compatible instance.
func (c *Compiler) allocate() []ir.PhysicalResource {
	var out []ir.PhysicalResource
	add := func(v *virtual, parity uint32) int32 {
		idx := int32(len(out))
		out = append(out, ir.PhysicalResource{
			Index:    idx,
			Kind:     v.kind,
			Texture:  v.texture,
			Buffer:   v.buffer,
			Blob:     v.blob,
			Names:    []string{v.name},
			History:  v.history,
			Parity:   parity,
			FirstUse: v.first,
			LastUse:  v.last,
		})
		return idx
	}

	for _, v := range c.virtuals {
		switch {
		case v.history:
			v.phys = [2]int32{add(v, 0), add(v, 1)}
		case v.kind == registry.KindBlob:
			p := add(v, 0)
			v.phys = [2]int32{p, p}
		default:
			p := c.findAlias(out, v)
			if p == ir.Unbound {
				p = add(v, 0)
			} else {
				r := &out[p]
				r.Names = append(r.Names, v.name)
				r.LastUse = max(r.LastUse, v.last)
				r.Texture.Usage |= v.texture.Usage
				r.Buffer.Usage |= v.buffer.Usage
			}
			v.phys = [2]int32{p, p}
		}
	}
	if out == nil {
		out = []ir.PhysicalResource{}
	}
	return out
}

func (c *Compiler) findAlias(out []ir.PhysicalResource, v *virtual) int32 {
	for i := range out {
		r := &out[i]
		if r.History || r.Kind != v.kind || r.LastUse >= v.first {
			continue
		}
		switch v.kind {
		case registry.KindTexture:
			if r.Texture.Compatible(v.texture) {
				return int32(i)
			}
		case registry.KindBuffer:
			if r.Buffer.Size == v.buffer.Size {
				return int32(i)
			}
		}
	}
	return ir.Unbound
}

// placeBarriers records a transition before every access whose usage or
// access differs from the previous access of the same physical instance.
// Consecutive unordered-access writes also get one. The first access of a
// frame has no barrier.
func (c *Compiler) placeBarriers() {
	barriers := make([][]ir.Barrier, len(c.frame.Order))
	last := make(map[instanceKey]ir.UsageState)

	for pos, i := range c.frame.Order {
		node := &c.frame.Nodes[i]
		seen := make(map[instanceKey]bool)
		for _, b := range node.Bindings {
			if !b.Bound() || b.External || b.Kind == registry.KindBlob {
				continue
			}
			key := instanceKey{phys: b.Physical, history: b.History && b.Physical[0] != b.Physical[1]}
			if seen[key] {
				continue
			}
			seen[key] = true
			to := ir.UsageState{Usage: b.Usage, Access: b.Access, Stages: b.Stages}
			if from, ok := last[key]; ok && needsBarrier(from, to) {
				barriers[pos] = append(barriers[pos], ir.Barrier{
					Resource: b.Resolved,
					Physical: b.Physical,
					History:  key.history,
					From:     from,
					To:       to,
				})
			}
			last[key] = to
		}
	}
	c.frame.Barriers = barriers
}

func needsBarrier(from, to ir.UsageState) bool {
	if from.Usage != to.Usage || from.Access != to.Access {
		return true
	}
	return to.Usage == registry.UsageUnorderedAccess && to.Access == registry.AccessReadWrite
}

// historyKey identifies a history instance pair together with its
// allocation, so a reallocation counts as a new instance.
func historyKey(v *virtual) string {
	return fmt.Sprintf("%s|%d|%v|%d/%d|%d,%d", v.name, v.kind, texSig(v.texture), v.buffer.Size, v.buffer.Usage, v.phys[0], v.phys[1])
}

func texSig(d registry.TextureDesc) string {
	return fmt.Sprintf("%s/%dx%dx%d/%d/%d", d.Format, d.Size.Width, d.Size.Height, d.Size.DepthOrArrayLayers, d.MipLevels, d.Usage)
}
