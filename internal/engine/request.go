package engine

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
)

// Request is what a declaration callback declares a node through. It is
// only valid for the duration of the callback.
//
// Names are relative to the namespace the node was registered under.
// Problems such as a resource created by two nodes or two attachments on
// one slot are recorded on the node and reported when it compiles.
type Request struct {
	rt *Runtime
	id ids.NodeID
	ns ids.NameSpaceID
}

func newRequest(rt *Runtime, node ids.NodeID, ns ids.NameSpaceID) *Request {
	return &Request{rt: rt, id: node, ns: ns}
}

// Node returns the id of the node being declared.
func (r *Request) Node() ids.NodeID {
	return r.id
}

// Name returns the full name of the node being declared.
func (r *Request) Name() string {
	return r.rt.names.NodeName(r.id)
}

// ResourceID interns a resource name relative to the node's namespace.
// Execution callbacks pass it to ExecContext.View.
func (r *Request) ResourceID(name string) ids.ResID {
	id := r.rt.names.Resource(r.ns, name)
	r.rt.reg.Resize()
	return id
}

func (r *Request) node() *registry.NodeData {
	return r.rt.reg.Node(r.id)
}

func (r *Request) conflict(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	n := r.node()
	n.Conflicts = append(n.Conflicts, msg)
	r.rt.log.Debug("declaration conflict", "node", r.Name(), "conflict", msg)
}

// TextureSpec describes a texture to create.
type TextureSpec struct {
	Format    gputypes.TextureFormat
	Usage     gputypes.TextureUsage
	Dimension gputypes.TextureDimension
	// Size is used when AutoRes is empty. With AutoRes set only its depth
	// or array layer count is.
	Size      gputypes.Extent3D
	MipLevels uint32
	// AutoRes names an auto-resolution type the texture is sized by.
	AutoRes string
	// Scale multiplies the auto-resolution. Zero means 1.
	Scale float32
}

func (r *Request) textureDesc(spec TextureSpec) registry.TextureDesc {
	d := registry.TextureDesc{
		Format:    spec.Format,
		Usage:     spec.Usage,
		Dimension: spec.Dimension,
		Size:      spec.Size,
		MipLevels: spec.MipLevels,
		AutoRes:   ids.InvalidAutoResType,
		Scale:     spec.Scale,
	}
	if spec.AutoRes != "" {
		d.AutoRes = r.rt.names.AutoResType(r.ns, spec.AutoRes)
		r.rt.reg.Resize()
	}
	return d
}

// CreateTexture creates a texture the node writes first.
func (r *Request) CreateTexture(name string, spec TextureSpec) *ResourceBuilder {
	desc := r.textureDesc(spec)
	return r.produce(name, registry.KindTexture, registry.OriginCreated, func(d *registry.ResourceData) {
		d.Texture = desc
	})
}

// CreateBuffer creates a buffer the node writes first.
func (r *Request) CreateBuffer(name string, desc registry.BufferDesc) *ResourceBuilder {
	return r.produce(name, registry.KindBuffer, registry.OriginCreated, func(d *registry.ResourceData) {
		d.Buffer = desc
	})
}

// CreateBlob creates a CPU-side value of type tag. factory builds the value
// on allocation and again whenever history initialisation clears it; a nil
// factory leaves the value nil.
func (r *Request) CreateBlob(name, tag string, factory func() any) *ResourceBuilder {
	return r.produce(name, registry.KindBlob, registry.OriginCreated, func(d *registry.ResourceData) {
		d.Blob = registry.BlobDesc{Tag: tag, Factory: factory}
	})
}

// ImportTexture makes a texture owned outside the graph available under
// name. provide is called once per multiplexing iteration.
func (r *Request) ImportTexture(name string, provide registry.ExternalProvider) *ResourceBuilder {
	return r.importResource(name, registry.KindTexture, provide)
}

// ImportBuffer is ImportTexture for buffers.
func (r *Request) ImportBuffer(name string, provide registry.ExternalProvider) *ResourceBuilder {
	return r.importResource(name, registry.KindBuffer, provide)
}

func (r *Request) importResource(name string, kind registry.ResourceKind, provide registry.ExternalProvider) *ResourceBuilder {
	if provide == nil {
		r.conflict("imported %s %s has no provider", kind, name)
		return &ResourceBuilder{r: r, id: r.ResourceID(name)}
	}
	return r.produce(name, kind, registry.OriginImported, func(d *registry.ResourceData) {
		d.External = provide
	})
}

// produce claims the record of name for this node.
func (r *Request) produce(name string, kind registry.ResourceKind, origin registry.Origin, fill func(*registry.ResourceData)) *ResourceBuilder {
	id := r.ResourceID(name)
	b := &ResourceBuilder{r: r, id: id}
	full := r.rt.names.ResourceName(id)

	n := r.node()
	if slices.Contains(n.Created, id) {
		r.conflict("resource %s is created twice", full)
		return b
	}
	if other, ok := r.foreignProducer(id); ok {
		r.conflict("resource %s is already produced by %s", full, r.rt.names.NodeName(other))
		return b
	}

	d := r.rt.reg.Resource(id)
	*d = registry.ResourceData{
		Kind:        kind,
		Origin:      origin,
		Texture:     registry.TextureDesc{AutoRes: ids.InvalidAutoResType},
		Producer:    r.id,
		RenamedFrom: ids.InvalidRes,
		RenamedTo:   d.RenamedTo,
		History:     d.History,
	}
	fill(d)

	n = r.node()
	n.Created = registry.AppendRes(n.Created, id)
	n.AddRequest(id, registry.ResourceRequest{Access: registry.AccessReadWrite})
	b.ok = true
	return b
}

// foreignProducer returns the live node other than this one producing id.
func (r *Request) foreignProducer(id ids.ResID) (ids.NodeID, bool) {
	d := r.rt.reg.Resource(id)
	if !d.Produced() || d.Producer == r.id || d.Producer == ids.InvalidNode {
		return ids.InvalidNode, false
	}
	if !r.rt.reg.Node(d.Producer).Live() {
		return ids.InvalidNode, false
	}
	return d.Producer, true
}

// Read declares that the node reads name.
func (r *Request) Read(name string) *ResourceBuilder {
	return r.use(r.ResourceID(name), registry.AccessReadOnly, false)
}

// ReadSlot declares that the node reads whatever the slot named slot
// points at.
func (r *Request) ReadSlot(slot string) *ResourceBuilder {
	return r.use(r.ResourceID(slot), registry.AccessReadOnly, true)
}

// Modify declares that the node writes name in place. It runs after the
// producer and before every reader.
func (r *Request) Modify(name string) *ResourceBuilder {
	return r.use(r.ResourceID(name), registry.AccessReadWrite, false)
}

// ModifySlot is Modify through a slot.
func (r *Request) ModifySlot(slot string) *ResourceBuilder {
	return r.use(r.ResourceID(slot), registry.AccessReadWrite, true)
}

func (r *Request) use(id ids.ResID, access registry.Access, fromSlot bool) *ResourceBuilder {
	n := r.node()
	if access == registry.AccessReadWrite {
		n.Modified = registry.AppendRes(n.Modified, id)
	} else {
		n.Read = registry.AppendRes(n.Read, id)
	}
	n.AddRequest(id, registry.ResourceRequest{Access: access, FromSlot: fromSlot})
	return &ResourceBuilder{r: r, id: id, ok: true}
}

// HistoryFor declares that the node reads the previous frame's contents of
// name. It adds no dependency on name's producer.
func (r *Request) HistoryFor(name string) *ResourceBuilder {
	id := r.ResourceID(name)
	r.node().AddRequest(id, registry.ResourceRequest{Access: registry.AccessReadOnly, History: true})
	return &ResourceBuilder{r: r, id: id, history: true, ok: true}
}

// Rename consumes from and produces its contents as to. Readers of from
// run before the node; readers of to run after. Both names back the same
// memory. to inherits from's history policy unless WithHistory overrides
// it.
func (r *Request) Rename(from, to string) *ResourceBuilder {
	src := r.ResourceID(from)
	dst := r.ResourceID(to)
	b := &ResourceBuilder{r: r, id: dst}
	if src == dst {
		r.conflict("resource %s is renamed to itself", r.rt.names.ResourceName(src))
		return b
	}

	n := r.node()
	if _, dup := n.Renamed[dst]; dup || slices.Contains(n.Created, dst) {
		r.conflict("resource %s is produced twice", r.rt.names.ResourceName(dst))
		return b
	}
	if other, ok := r.foreignProducer(dst); ok {
		r.conflict("resource %s is already produced by %s", r.rt.names.ResourceName(dst), r.rt.names.NodeName(other))
		return b
	}

	reg := r.rt.reg
	d := reg.Resource(dst)
	next, history := d.RenamedTo, d.History
	*d = reg.Resources[src]
	d.Origin = registry.OriginRenamed
	d.Producer = r.id
	d.RenamedFrom = src
	d.RenamedTo = next
	if history != registry.HistoryNone {
		d.History = history
	}
	reg.Resources[src].RenamedTo = dst

	n = r.node()
	if n.Renamed == nil {
		n.Renamed = make(map[ids.ResID]ids.ResID)
	}
	n.Renamed[dst] = src
	n.AddRequest(src, registry.ResourceRequest{Access: registry.AccessReadWrite})
	n.AddRequest(dst, registry.ResourceRequest{Access: registry.AccessReadWrite})
	b.ok = true
	return b
}

// SetPriority orders the node among nodes that are ready at the same time.
// Lower runs earlier.
func (r *Request) SetPriority(p int32) {
	r.node().Priority = p
}

// SetSideEffects sets whether the node may be culled.
func (r *Request) SetSideEffects(se registry.SideEffects) {
	r.node().SideEffects = se
}

// Multiplex sets the dimensions the node runs once per index of.
func (r *Request) Multiplex(mode multiplex.Mode) {
	r.node().Multiplexing = mode
}

// OrderMeAfter makes the node run after the node named node.
func (r *Request) OrderMeAfter(node string) {
	id := r.rt.names.Node(r.ns, node)
	r.rt.reg.Resize()
	n := r.node()
	n.FollowNodes = registry.AppendNode(n.FollowNodes, id)
}

// OrderMeBefore makes the node run before the node named node.
func (r *Request) OrderMeBefore(node string) {
	id := r.rt.names.Node(r.ns, node)
	r.rt.reg.Resize()
	n := r.node()
	n.PrecedeNodes = registry.AppendNode(n.PrecedeNodes, id)
}

// ShaderBlockLayer selects layer of block while the node runs.
func (r *Request) ShaderBlockLayer(block string, layer int32) {
	n := r.node()
	for i, l := range n.BlockLayers {
		if l.Block == block {
			if l.Layer != layer {
				r.conflict("shader block %s set to layers %d and %d", block, l.Layer, layer)
			}
			n.BlockLayers[i].Layer = layer
			return
		}
	}
	n.BlockLayers = append(n.BlockLayers, registry.BlockLayer{Block: block, Layer: layer})
}

// Wireframe runs the node with wireframe rasterisation.
func (r *Request) Wireframe(on bool) {
	r.node().Wireframe = on
}

// VariableRateShading runs the node at a coarse shading rate. rateImage
// names an optional shading-rate texture, which is read as a shader
// resource.
func (r *Request) VariableRateShading(rateX, rateY uint32, rateImage string) {
	vrs := &registry.VRSState{RateX: rateX, RateY: rateY}
	if rateImage != "" {
		b := r.Read(rateImage).Usage(registry.UsageShaderResource).AtStage(registry.StagePixel)
		ref := b.Ref()
		vrs.Rate = &ref
	}
	r.node().VRS = vrs
}

// ResourceBuilder refines the request that returned it.
type ResourceBuilder struct {
	r       *Request
	id      ids.ResID
	history bool
	// ok is false when the request was rejected; refinements are dropped.
	ok bool
}

// ID returns the raw id of the requested name.
func (b *ResourceBuilder) ID() ids.ResID {
	return b.id
}

// Ref returns the reference execution callbacks and render state use.
func (b *ResourceBuilder) Ref() registry.ResourceRef {
	return registry.ResourceRef{Res: b.id, History: b.history}
}

// Handle returns the resource id and which frame's instance is meant.
func (b *ResourceBuilder) Handle() registry.ResUID {
	return registry.ResUID{ID: b.id, History: b.history}
}

func (b *ResourceBuilder) update(fn func(*registry.ResourceRequest)) *ResourceBuilder {
	if !b.ok {
		return b
	}
	n := b.r.node()
	m := n.Requests
	if b.history {
		m = n.HistoryRequests
	}
	req, ok := m[b.id]
	if !ok {
		return b
	}
	fn(&req)
	m[b.id] = req
	return b
}

// AtStage adds pipeline stages the resource is used from.
func (b *ResourceBuilder) AtStage(s registry.PipelineStage) *ResourceBuilder {
	return b.update(func(req *registry.ResourceRequest) { req.Stages |= s })
}

// Usage sets how the resource is bound.
func (b *ResourceBuilder) Usage(u registry.Usage) *ResourceBuilder {
	return b.update(func(req *registry.ResourceRequest) { req.Usage = u })
}

// Optional lets the node run without the resource. Nothing is bound then.
func (b *ResourceBuilder) Optional() *ResourceBuilder {
	return b.update(func(req *registry.ResourceRequest) { req.Optional = true })
}

// Blob sets the blob type the node expects. A blob of another type prunes
// the node.
func (b *ResourceBuilder) Blob(tag string) *ResourceBuilder {
	return b.update(func(req *registry.ResourceRequest) { req.TypeTag = tag })
}

// BindToShaderVar binds the resource to a shader variable before the node
// runs. The binding is checked after nodes with side effects.
func (b *ResourceBuilder) BindToShaderVar(name string) *ResourceBuilder {
	if !b.ok {
		return b
	}
	n := b.r.node()
	if prev, ok := n.ShaderVars[name]; ok && prev != b.Ref() {
		b.r.conflict("shader variable %s bound to %s and %s", name,
			b.r.rt.names.ResourceName(prev.Res), b.r.rt.names.ResourceName(b.id))
		return b
	}
	if n.ShaderVars == nil {
		n.ShaderVars = make(map[string]registry.ResourceRef)
	}
	n.ShaderVars[name] = b.Ref()
	return b.update(func(req *registry.ResourceRequest) {
		if req.Usage == registry.UsageUnknown {
			req.Usage = registry.UsageShaderResource
		}
	})
}

// WithHistory sets what the previous-frame instance holds on the first
// frame. Only resources the node produces carry a policy.
func (b *ResourceBuilder) WithHistory(h registry.History) *ResourceBuilder {
	if !b.ok || b.history {
		return b
	}
	d := b.r.rt.reg.Resource(b.id)
	if d.Producer != b.r.id {
		b.r.conflict("history policy set on %s, which the node does not produce", b.r.rt.names.ResourceName(b.id))
		return b
	}
	d.History = h
	return b
}

// RenderPass returns a builder for the render pass the node runs in.
func (r *Request) RenderPass() *RenderPassBuilder {
	n := r.node()
	if n.RenderPass == nil {
		n.RenderPass = &registry.RenderPassRequest{}
	}
	return &RenderPassBuilder{r: r}
}

// RenderPassBuilder declares render pass attachments. Attaching a resource
// also requests it with the matching usage.
type RenderPassBuilder struct {
	r *Request
}

// AttachmentOption adjusts one attachment.
type AttachmentOption func(*registry.Attachment)

// LoadClear clears the attachment to c when the pass begins.
func LoadClear(c gputypes.Color) AttachmentOption {
	return func(a *registry.Attachment) {
		a.Load = gputypes.LoadOpClear
		a.Clear = c
	}
}

// Store sets the store op. The default is store.
func Store(op gputypes.StoreOp) AttachmentOption {
	return func(a *registry.Attachment) { a.Store = op }
}

// MipLayer selects the mip level and array layer rendered to.
func MipLayer(mip, layer uint32) AttachmentOption {
	return func(a *registry.Attachment) { a.Mip, a.Layer = mip, layer }
}

func (p *RenderPassBuilder) attachment(slot uint32, name string, usage registry.Usage, access registry.Access, opts []AttachmentOption) registry.Attachment {
	r := p.r
	id := r.ResourceID(name)
	n := r.node()
	if !slices.Contains(n.Created, id) {
		r.use(id, access, false)
	}
	r.node().AddRequest(id, registry.ResourceRequest{Access: access, Usage: usage, Stages: registry.StagePixel})

	a := registry.Attachment{
		Slot:  slot,
		Ref:   registry.ResourceRef{Res: id},
		Load:  gputypes.LoadOpLoad,
		Store: gputypes.StoreOpStore,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// Color attaches name to colour slot.
func (p *RenderPassBuilder) Color(slot uint32, name string, opts ...AttachmentOption) *RenderPassBuilder {
	a := p.attachment(slot, name, registry.UsageColorAttachment, registry.AccessReadWrite, opts)
	if !p.r.node().RenderPass.AddColor(a) {
		p.r.conflict("colour slot %d attached twice", slot)
	}
	return p
}

// Depth attaches name as the writable depth target.
func (p *RenderPassBuilder) Depth(name string, opts ...AttachmentOption) *RenderPassBuilder {
	a := p.attachment(0, name, registry.UsageDepthAttachment, registry.AccessReadWrite, opts)
	if !p.r.node().RenderPass.SetDepth(a, false) {
		p.r.conflict("depth attached twice")
	}
	return p
}

// DepthReadOnly attaches name as a depth target the node only tests
// against.
func (p *RenderPassBuilder) DepthReadOnly(name string, opts ...AttachmentOption) *RenderPassBuilder {
	a := p.attachment(0, name, registry.UsageDepthAttachment, registry.AccessReadOnly, opts)
	if !p.r.node().RenderPass.SetDepth(a, true) {
		p.r.conflict("depth attached twice")
	}
	return p
}

// Resolve attaches name as the resolve target of colour slot.
func (p *RenderPassBuilder) Resolve(slot uint32, name string, opts ...AttachmentOption) *RenderPassBuilder {
	a := p.attachment(slot, name, registry.UsageResolveAttachment, registry.AccessReadWrite, opts)
	if !p.r.node().RenderPass.AddResolve(a) {
		p.r.conflict("resolve slot %d attached twice", slot)
	}
	return p
}
