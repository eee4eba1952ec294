package registry

import (
	"fmt"
	"math"
	"strings"
)

// Access is how a node touches a resource.
type Access uint8

const (
	AccessUnknown Access = iota
	AccessReadOnly
	AccessReadWrite
)

func (a Access) String() string {
	switch a {
	case AccessReadOnly:
		return "read_only"
	case AccessReadWrite:
		return "read_write"
	default:
		return "unknown"
	}
}

// PipelineStage is a bitmask of the pipeline stages a request is used from.
type PipelineStage uint8

const StageUnknown PipelineStage = 0

const (
	StageVertex PipelineStage = 1 << iota
	StagePixel
	StageCompute
	StageTransfer
	StageRaytrace

	StageAllGraphics = StageVertex | StagePixel
)

var stageNames = []struct {
	bit  PipelineStage
	name string
}{
	{StageVertex, "vertex"},
	{StagePixel, "pixel"},
	{StageCompute, "compute"},
	{StageTransfer, "transfer"},
	{StageRaytrace, "raytrace"},
}

func (s PipelineStage) String() string {
	if s == StageUnknown {
		return "unknown"
	}
	var parts []string
	for _, n := range stageNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseStage maps a single stage name to its bit.
func ParseStage(name string) (PipelineStage, bool) {
	for _, n := range stageNames {
		if n.name == name {
			return n.bit, true
		}
	}
	return StageUnknown, false
}

// Usage is how a resource is bound while a node runs.
type Usage uint8

const (
	UsageUnknown Usage = iota
	UsageColorAttachment
	UsageDepthAttachment
	UsageResolveAttachment
	UsageShaderResource
	UsageUnorderedAccess
	UsageCopySrc
	UsageCopyDst
	UsageConstant
	UsageVertex
)

var usageNames = map[Usage]string{
	UsageUnknown:           "unknown",
	UsageColorAttachment:   "color_attachment",
	UsageDepthAttachment:   "depth_attachment",
	UsageResolveAttachment: "resolve_attachment",
	UsageShaderResource:    "shader_resource",
	UsageUnorderedAccess:   "unordered_access",
	UsageCopySrc:           "copy_src",
	UsageCopyDst:           "copy_dst",
	UsageConstant:          "constant",
	UsageVertex:            "vertex",
}

func (u Usage) String() string {
	if n, ok := usageNames[u]; ok {
		return n
	}
	return fmt.Sprintf("usage(%d)", uint8(u))
}

// ParseUsage is the inverse of Usage.String.
func ParseUsage(name string) (Usage, bool) {
	for u, n := range usageNames {
		if n == name {
			return u, true
		}
	}
	return UsageUnknown, false
}

// SideEffects classifies whether a node may be culled.
type SideEffects uint8

const (
	// SideEffectsNone marks a node whose only effect is its outputs.
	SideEffectsNone SideEffects = iota
	// SideEffectsInternal nodes are culled when nothing consumes their outputs.
	SideEffectsInternal
	// SideEffectsExternal nodes are never culled.
	SideEffectsExternal
)

func (s SideEffects) String() string {
	switch s {
	case SideEffectsNone:
		return "none"
	case SideEffectsInternal:
		return "internal"
	case SideEffectsExternal:
		return "external"
	default:
		return fmt.Sprintf("side_effects(%d)", uint8(s))
	}
}

// ParseSideEffects is the inverse of SideEffects.String.
func ParseSideEffects(name string) (SideEffects, bool) {
	switch name {
	case "none":
		return SideEffectsNone, true
	case "internal":
		return SideEffectsInternal, true
	case "external":
		return SideEffectsExternal, true
	}
	return SideEffectsNone, false
}

// History is what happens to a resource's previous-frame instance on the
// first frame it exists.
type History uint8

const (
	HistoryNone History = iota
	HistoryClearZeroOnFirstFrame
	HistoryDiscardOnFirstFrame
)

func (h History) String() string {
	switch h {
	case HistoryNone:
		return "none"
	case HistoryClearZeroOnFirstFrame:
		return "clear_zero"
	case HistoryDiscardOnFirstFrame:
		return "discard"
	default:
		return fmt.Sprintf("history(%d)", uint8(h))
	}
}

// ParseHistory is the inverse of History.String.
func ParseHistory(name string) (History, bool) {
	switch name {
	case "", "none":
		return HistoryNone, true
	case "clear_zero":
		return HistoryClearZeroOnFirstFrame, true
	case "discard":
		return HistoryDiscardOnFirstFrame, true
	}
	return HistoryNone, false
}

// ResourceKind is the physical type of a resource.
type ResourceKind uint8

const (
	KindNone ResourceKind = iota
	KindTexture
	KindBuffer
	KindBlob
)

func (k ResourceKind) String() string {
	switch k {
	case KindTexture:
		return "texture"
	case KindBuffer:
		return "buffer"
	case KindBlob:
		return "blob"
	default:
		return "none"
	}
}

// Origin records how a resource record came to be produced.
type Origin uint8

const (
	OriginNone Origin = iota
	OriginCreated
	OriginImported
	OriginRenamed
)

func (o Origin) String() string {
	switch o {
	case OriginCreated:
		return "created"
	case OriginImported:
		return "imported"
	case OriginRenamed:
		return "renamed"
	default:
		return "none"
	}
}

// Priority sentinels. Lower values run earlier among ready nodes.
const (
	PrioAsEarlyAsPossible int32 = math.MinInt32
	PrioDefault           int32 = 0
	PrioAsLateAsPossible  int32 = math.MaxInt32
)
