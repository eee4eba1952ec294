package executor

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/registry"
)

// SlotKind is the kind of render pass attachment point.
type SlotKind uint8

const (
	SlotColor SlotKind = iota
	SlotDepth
	SlotResolve
)

// Slot is one render target binding point.
type Slot struct {
	Kind  SlotKind
	Index uint32
}

func (s Slot) String() string {
	switch s.Kind {
	case SlotDepth:
		return "depth"
	case SlotResolve:
		return fmt.Sprintf("resolve%d", s.Index)
	default:
		return fmt.Sprintf("color%d", s.Index)
	}
}

// Attachment is a render pass attachment with its physical view.
type Attachment struct {
	Slot  Slot
	View  registry.View
	Load  gputypes.LoadOp
	Store gputypes.StoreOp
	Clear gputypes.Color
}

// RenderPass is a render pass with every attachment bound to a view.
type RenderPass struct {
	Colors        []Attachment
	Depth         *Attachment
	DepthReadOnly bool
	Resolves      []Attachment
}

// Attachments lists every attachment, colours first.
func (p RenderPass) Attachments() []Attachment {
	out := make([]Attachment, 0, len(p.Colors)+len(p.Resolves)+1)
	out = append(out, p.Colors...)
	if p.Depth != nil {
		out = append(out, *p.Depth)
	}
	return append(out, p.Resolves...)
}

// VRS is a variable rate shading state. A nil *VRS is the default rate.
type VRS struct {
	RateX, RateY uint32
	Rate         *registry.View
}

// Device receives every state change and transition the executor issues.
// It also reports what is currently bound so the executor can check that
// nodes leave the expected bindings in place.
type Device interface {
	BeginRenderPass(pass RenderPass)
	EndRenderPass()
	BindRenderTarget(slot Slot, view registry.View)
	RenderTarget(slot Slot) (registry.View, bool)
	BindShaderVar(name string, view registry.View)
	ShaderVar(name string) (registry.View, bool)
	SetWireframe(on bool)
	SetVRS(vrs *VRS)
	PushBlockLayer(block string, layer int32)
	PopBlockLayer(block string)
	Barrier(view registry.View, from, to ir.UsageState)
	Clear(view registry.View)
}

// Allocator backs physical resources. Views it returns stay valid until
// released.
type Allocator interface {
	Allocate(res ir.PhysicalResource) registry.View
	Release(view registry.View)
}
