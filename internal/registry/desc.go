package registry

import (
	"math"

	"github.com/gogpu/gputypes"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/multiplex"
)

// TextureDesc describes a texture the graph creates.
//
// A texture is either fixed-size (Size) or sized by an auto-resolution type
// (AutoRes valid), in which case its size is the type's static resolution
// times Scale.
type TextureDesc struct {
	Format    gputypes.TextureFormat
	Usage     gputypes.TextureUsage
	Dimension gputypes.TextureDimension
	Size      gputypes.Extent3D
	MipLevels uint32
	AutoRes   ids.AutoResTypeID
	Scale     float32
}

// Resolved returns the descriptor with Size computed from res when the
// texture is auto-sized.
func (d TextureDesc) Resolved(res Resolution) TextureDesc {
	if d.Dimension == 0 {
		d.Dimension = gputypes.TextureDimension2D
	}
	if d.MipLevels == 0 {
		d.MipLevels = 1
	}
	if d.AutoRes == ids.InvalidAutoResType {
		return d
	}
	scale := d.Scale
	if scale <= 0 {
		scale = 1
	}
	d.Size = gputypes.Extent3D{
		Width:              scaled(res.Width, scale),
		Height:             scaled(res.Height, scale),
		DepthOrArrayLayers: max(d.Size.DepthOrArrayLayers, 1),
	}
	return d
}

func scaled(v uint32, s float32) uint32 {
	out := uint32(math.Round(float64(v) * float64(s)))
	return max(out, 1)
}

// Compatible reports whether two resolved descriptors can share memory.
// Usage is ignored; it is accumulated over every alias.
func (d TextureDesc) Compatible(o TextureDesc) bool {
	return d.Format == o.Format &&
		d.Dimension == o.Dimension &&
		d.Size == o.Size &&
		d.MipLevels == o.MipLevels
}

// BufferDesc describes a buffer the graph creates.
type BufferDesc struct {
	Size  uint64
	Usage gputypes.BufferUsage
}

// BlobDesc describes an opaque CPU-side value. Tag is checked against the
// type tag readers expect.
type BlobDesc struct {
	Tag     string
	Factory func() any
}

// Resolution is a width/height pair for auto-resolution types.
type Resolution struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero.
func (r Resolution) IsZero() bool {
	return r.Width == 0 || r.Height == 0
}

// Fits reports whether r fits inside bound on both axes.
func (r Resolution) Fits(bound Resolution) bool {
	return r.Width <= bound.Width && r.Height <= bound.Height
}

// TextureUsageFor maps a request usage onto the gputypes texture usage bits
// the physical texture must carry.
func TextureUsageFor(u Usage) gputypes.TextureUsage {
	switch u {
	case UsageColorAttachment, UsageDepthAttachment, UsageResolveAttachment:
		return gputypes.TextureUsageRenderAttachment
	case UsageShaderResource:
		return gputypes.TextureUsageTextureBinding
	case UsageUnorderedAccess:
		return gputypes.TextureUsageStorageBinding
	case UsageCopySrc:
		return gputypes.TextureUsageCopySrc
	case UsageCopyDst:
		return gputypes.TextureUsageCopyDst
	default:
		return 0
	}
}

// BufferUsageFor maps a request usage onto gputypes buffer usage bits.
func BufferUsageFor(u Usage) gputypes.BufferUsage {
	switch u {
	case UsageShaderResource, UsageUnorderedAccess:
		return gputypes.BufferUsageStorage
	case UsageConstant:
		return gputypes.BufferUsageUniform
	case UsageVertex:
		return gputypes.BufferUsageVertex
	case UsageCopySrc:
		return gputypes.BufferUsageCopySrc
	case UsageCopyDst:
		return gputypes.BufferUsageCopyDst
	default:
		return 0
	}
}

// View is a physical resource as seen by devices and execution callbacks.
// Views compare by value; Handle is whatever the allocator or the external
// provider handed out.
type View struct {
	Resource ids.ResID
	Instance int32
	Mip      uint32
	Layer    uint32
	Handle   uint64
}

// ExternalInstance is the Instance of views that come from a provider.
const ExternalInstance int32 = -1

// ExternalProvider supplies the view of an imported resource for one
// multiplexing iteration. Multiplexed owners must get distinct views per
// index.
type ExternalProvider func(idx multiplex.Index) View

// ExecContext is what an execution callback sees for one iteration.
type ExecContext interface {
	Node() ids.NodeID
	Index() multiplex.Index
	// View returns the physical view bound for a raw requested resource.
	// history selects the previous frame's instance.
	View(raw ids.ResID, history bool) (View, bool)
	// Blob returns the value of a blob resource.
	Blob(raw ids.ResID, history bool) (any, bool)
}

// ExecFunc runs a node for one multiplexing iteration.
type ExecFunc func(ctx ExecContext)

// DeclareFunc declares a node's requests on reg and returns its execution
// callback. A nil result is a node with nothing to run.
type DeclareFunc func(node ids.NodeID, reg *Registry) ExecFunc
