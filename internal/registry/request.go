package registry

import (
	"github.com/gogpu/gputypes"

	"github.com/roach88/framegraph/internal/ids"
)

// ResourceRequest is one node's raw request for one resource name.
type ResourceRequest struct {
	Access   Access
	Stages   PipelineStage
	Usage    Usage
	Optional bool
	History  bool
	FromSlot bool
	// TypeTag is the blob type a reader expects. Empty accepts any.
	TypeTag string
}

// Merge reconciles two raw requests that resolve to the same resource.
//
// Stages are unioned, access escalates to ReadWrite if either side writes,
// and the result is optional only if both sides are. The usage of the
// writing request wins; otherwise the first known usage is kept.
func Merge(a, b ResourceRequest) ResourceRequest {
	out := a
	out.Stages = a.Stages | b.Stages
	out.Optional = a.Optional && b.Optional
	out.History = a.History && b.History
	out.FromSlot = a.FromSlot || b.FromSlot

	if a.Access == AccessReadWrite || b.Access == AccessReadWrite {
		out.Access = AccessReadWrite
	} else if a.Access == AccessUnknown {
		out.Access = b.Access
	}

	switch {
	case b.Access == AccessReadWrite && a.Access != AccessReadWrite && b.Usage != UsageUnknown:
		out.Usage = b.Usage
	case out.Usage == UsageUnknown:
		out.Usage = b.Usage
	}

	if out.TypeTag == "" {
		out.TypeTag = b.TypeTag
	}
	return out
}

// ResourceRef names a raw requested resource and which frame's instance is
// meant.
type ResourceRef struct {
	Res     ids.ResID
	History bool
}

// Attachment is one render target a node asks to have bound.
type Attachment struct {
	Slot  uint32
	Ref   ResourceRef
	Mip   uint32
	Layer uint32
	Load  gputypes.LoadOp
	Store gputypes.StoreOp
	Clear gputypes.Color
}

// RenderPassRequest is the render pass a node runs inside.
type RenderPassRequest struct {
	Colors        []Attachment
	Depth         *Attachment
	DepthReadOnly bool
	Resolves      []Attachment
}

// AddColor records a colour attachment. A second attachment on the same
// slot is rejected.
func (p *RenderPassRequest) AddColor(a Attachment) bool {
	for _, c := range p.Colors {
		if c.Slot == a.Slot {
			return false
		}
	}
	p.Colors = append(p.Colors, a)
	return true
}

// AddResolve records a resolve attachment for a colour slot.
func (p *RenderPassRequest) AddResolve(a Attachment) bool {
	for _, r := range p.Resolves {
		if r.Slot == a.Slot {
			return false
		}
	}
	p.Resolves = append(p.Resolves, a)
	return true
}

// SetDepth records the depth attachment. Only one is allowed.
func (p *RenderPassRequest) SetDepth(a Attachment, readOnly bool) bool {
	if p.Depth != nil {
		return false
	}
	p.Depth = &a
	p.DepthReadOnly = readOnly
	return true
}

// BlockLayer selects a layer of a shader block for the node's duration.
type BlockLayer struct {
	Block string
	Layer int32
}

// VRSState is the variable rate shading state a node runs with.
type VRSState struct {
	RateX, RateY uint32
	// Rate is an optional shading-rate image.
	Rate *ResourceRef
}
