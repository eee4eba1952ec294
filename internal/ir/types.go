package ir

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
)

// Unbound marks a binding with no physical instance.
const Unbound int32 = -1

// Frame is one compiled frame graph.
type Frame struct {
	Extents multiplex.Extents `json:"extents"`
	// Nodes are the intermediate nodes in IR index order.
	Nodes []Node `json:"nodes"`
	// Order lists IR indices in execution order. Deltas and Barriers are
	// parallel to it.
	Order     []uint32           `json:"order"`
	Deltas    []StateDelta       `json:"deltas"`
	Barriers  [][]Barrier        `json:"barriers"`
	Resources []PhysicalResource `json:"resources"`
	Events    FrameEvents        `json:"events"`

	Diagnostics []Diagnostic `json:"diagnostics"`
	Culled      []string     `json:"culled"`
	Pruned      []string     `json:"pruned"`
}

// Node is one multiplexed instance of a graph node.
type Node struct {
	Node        ids.NodeID           `json:"node"`
	Name        string               `json:"name"`
	Index       multiplex.Index      `json:"index"`
	Mode        multiplex.Mode       `json:"mode"`
	Priority    int32                `json:"priority"`
	SideEffects registry.SideEffects `json:"side_effects"`
	// Preds are the IR indices that must run before this node.
	Preds    []uint32  `json:"preds"`
	Bindings []Binding `json:"bindings"`
	State    NodeState `json:"state"`
}

// Label names the instance for traces: "/gbuffer" or "/shadow[0 0 1 0]".
func (n *Node) Label() string {
	if n.Mode == multiplex.ModeNone {
		return n.Name
	}
	return n.Name + n.Index.String()
}

// Binding maps one raw request of a node instance onto physical instances.
type Binding struct {
	Raw ids.ResID `json:"raw"`
	// Resolved is Raw after namespace fallback and slots. Renames are not
	// followed: it is the chain link the node touches.
	Resolved ids.ResID `json:"resolved"`
	// Origin is the start of Resolved's renaming chain; it owns the
	// creation descriptor or the external provider.
	Origin  ids.ResID             `json:"origin"`
	Kind    registry.ResourceKind `json:"kind"`
	History bool                  `json:"history"`
	// Physical is the instance accessed when the accessed frame has parity
	// 0 or 1. Both entries are equal for resources without history.
	Physical [2]int32               `json:"physical"`
	External bool                   `json:"external"`
	Usage    registry.Usage         `json:"usage"`
	Access   registry.Access        `json:"access"`
	Stages   registry.PipelineStage `json:"stages"`
}

// Bound reports whether the binding refers to any resource.
func (b Binding) Bound() bool {
	return b.External || b.Physical[0] != Unbound
}

// Target is one render pass attachment.
type Target struct {
	Slot   uint32               `json:"slot"`
	Ref    registry.ResourceRef `json:"ref"`
	Origin ids.ResID            `json:"origin"`
	Mip    uint32               `json:"mip"`
	Layer  uint32               `json:"layer"`
	Load   gputypes.LoadOp      `json:"load"`
	Store  gputypes.StoreOp     `json:"store"`
	Clear  gputypes.Color       `json:"clear"`
}

func (t Target) same(o Target) bool {
	return t.Slot == o.Slot && t.Origin == o.Origin && t.Ref.History == o.Ref.History &&
		t.Mip == o.Mip && t.Layer == o.Layer && t.Load == o.Load && t.Store == o.Store && t.Clear == o.Clear
}

// PassState is the render pass a node runs inside.
type PassState struct {
	Colors        []Target `json:"colors"`
	Depth         *Target  `json:"depth,omitempty"`
	DepthReadOnly bool     `json:"depth_read_only"`
	Resolves      []Target `json:"resolves"`
}

// Equal reports whether two passes bind the same attachments the same way.
// A nil pass only equals another nil pass.
func (p *PassState) Equal(o *PassState) bool {
	if p == nil || o == nil {
		return p == o
	}
	if len(p.Colors) != len(o.Colors) || len(p.Resolves) != len(o.Resolves) || p.DepthReadOnly != o.DepthReadOnly {
		return false
	}
	for i := range p.Colors {
		if !p.Colors[i].same(o.Colors[i]) {
			return false
		}
	}
	for i := range p.Resolves {
		if !p.Resolves[i].same(o.Resolves[i]) {
			return false
		}
	}
	if (p.Depth == nil) != (o.Depth == nil) {
		return false
	}
	return p.Depth == nil || p.Depth.same(*o.Depth)
}

// ShaderVar is a shader variable a node expects bound to a resource.
type ShaderVar struct {
	Name string               `json:"name"`
	Ref  registry.ResourceRef `json:"ref"`
}

// NodeState is the global state a node requires while it runs.
type NodeState struct {
	Pass        *PassState            `json:"pass,omitempty"`
	ShaderVars  []ShaderVar           `json:"shader_vars"`
	BlockLayers []registry.BlockLayer `json:"block_layers"`
	Wireframe   bool                  `json:"wireframe"`
	VRS         *registry.VRSState    `json:"vrs,omitempty"`
}

// StateDelta is what must change between the previous node and this one.
type StateDelta struct {
	EndPass    bool                  `json:"end_pass"`
	BeginPass  *PassState            `json:"begin_pass,omitempty"`
	PopLayers  []string              `json:"pop_layers"`
	PushLayers []registry.BlockLayer `json:"push_layers"`
	Wireframe  *bool                 `json:"wireframe,omitempty"`
	SetVRS     bool                  `json:"set_vrs"`
	VRS        *registry.VRSState    `json:"vrs,omitempty"`
	ShaderVars []ShaderVar           `json:"shader_vars"`
}

// UsageState is how a resource is used at one point of the schedule.
type UsageState struct {
	Usage  registry.Usage         `json:"usage"`
	Access registry.Access        `json:"access"`
	Stages registry.PipelineStage `json:"stages"`
}

// Barrier is a state transition applied before a scheduled node runs.
// Physical is indexed by frame parity like Binding.Physical; History selects
// the previous frame's parity.
type Barrier struct {
	Resource ids.ResID  `json:"resource"`
	Physical [2]int32   `json:"physical"`
	History  bool       `json:"history"`
	From     UsageState `json:"from"`
	To       UsageState `json:"to"`
}

// PhysicalResource is one allocation. Several virtual resources with
// disjoint lifetimes may alias onto it.
type PhysicalResource struct {
	Index   int32                 `json:"index"`
	Kind    registry.ResourceKind `json:"kind"`
	Texture registry.TextureDesc  `json:"texture"`
	Buffer  registry.BufferDesc   `json:"buffer"`
	Blob    registry.BlobDesc     `json:"-"`
	Names   []string              `json:"names"`
	History bool                  `json:"history"`
	Parity  uint32                `json:"parity"`
	// FirstUse and LastUse are positions in Frame.Order.
	FirstUse int `json:"first_use"`
	LastUse  int `json:"last_use"`
}

// EventKind is what happens to a history instance on its first frame.
type EventKind uint8

const (
	EventClear EventKind = iota + 1
	EventDiscard
)

func (k EventKind) String() string {
	switch k {
	case EventClear:
		return "clear"
	case EventDiscard:
		return "discard"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is a one-shot action on physical instances.
type Event struct {
	Kind     EventKind `json:"kind"`
	Resource ids.ResID `json:"resource"`
	Name     string    `json:"name"`
	Physical []int32   `json:"physical"`
}

// FrameEvents are applied at the start of the next executed frame.
type FrameEvents struct {
	HistoryInit []Event `json:"history_init"`
}

// Empty reports whether there is nothing to apply.
func (e FrameEvents) Empty() bool {
	return len(e.HistoryInit) == 0
}

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a configuration problem found while compiling.
type Diagnostic struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Node     string   `json:"node,omitempty"`
	Resource string   `json:"resource,omitempty"`
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	switch {
	case d.Node != "" && d.Resource != "":
		return fmt.Sprintf("%s: %s (node=%s, resource=%s)", d.Code, d.Message, d.Node, d.Resource)
	case d.Node != "":
		return fmt.Sprintf("%s: %s (node=%s)", d.Code, d.Message, d.Node)
	default:
		return fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
}

// ScheduledLabels lists node labels in execution order.
func (f *Frame) ScheduledLabels() []string {
	out := make([]string, 0, len(f.Order))
	for _, i := range f.Order {
		out = append(out, f.Nodes[i].Label())
	}
	return out
}

// HasErrors reports whether any diagnostic is an error.
func (f *Frame) HasErrors() bool {
	for _, d := range f.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
