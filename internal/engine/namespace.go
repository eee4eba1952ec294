package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/registry"
	"github.com/roach88/framegraph/internal/stage"
	"github.com/roach88/framegraph/internal/tracker"
)

// NameSpace is a directory of node, resource, slot and auto-resolution
// type names. Relative names passed to its methods and to requests of nodes
// registered under it are interned under it; names starting with "/" are
// absolute.
//
// The zero NameSpace is not usable; get one from Runtime.Root.
type NameSpace struct {
	rt    *Runtime
	id    ids.NameSpaceID
	owner string
}

// Child returns the namespace name under ns, creating it if needed. name
// may contain separators.
func (ns NameSpace) Child(name string) NameSpace {
	return NameSpace{rt: ns.rt, id: ns.rt.names.NameSpace(ns.id, name), owner: ns.owner}
}

// WithOwner returns ns with an owner context. Nodes registered through it
// are removed together by Runtime.WipeOwner.
func (ns NameSpace) WithOwner(owner string) NameSpace {
	ns.owner = owner
	return ns
}

// Path returns the full name of ns.
func (ns NameSpace) Path() string {
	return ns.rt.names.NameSpaceName(ns.id)
}

// DeclareFunc declares one node's requests and returns its execution
// callback. It runs before the first compilation after registration, and
// again whenever a resource chain the node produces part of is evicted.
type DeclareFunc func(r *Request) registry.ExecFunc

// RegisterNode registers a node named name under ns. Registering a name
// that is already live replaces the old node; its handle goes stale.
func (ns NameSpace) RegisterNode(name, sourceTag string, declare DeclareFunc) (*NodeHandle, error) {
	rt := ns.rt
	if declare == nil {
		return nil, fmt.Errorf("register node %q: nil declaration callback", name)
	}
	if rt.tracker.Locked() {
		return nil, fmt.Errorf("register node %q: %w", name, tracker.ErrChangesLocked)
	}

	id := rt.names.Node(ns.id, name)
	rt.reg.Resize()
	if old := rt.reg.Node(id); old.Live() {
		rt.log.Debug("replacing live node", "node", rt.names.NodeName(id))
		if err := rt.tracker.UnregisterNode(id, old.Generation); err != nil {
			return nil, fmt.Errorf("register node %q: %w", name, err)
		}
	}

	n := rt.reg.Node(id)
	n.Declare = func(node ids.NodeID, _ *registry.Registry) registry.ExecFunc {
		return declare(newRequest(rt, node, ns.id))
	}
	n.SourceTag = sourceTag
	if err := rt.tracker.RegisterNode(ns.owner, id); err != nil {
		n.Declare = nil
		return nil, fmt.Errorf("register node %q: %w", name, err)
	}
	rt.stages.MarkDirty(stage.NodeDeclarationUpdate)
	return &NodeHandle{rt: rt, uid: registry.NodeUID{ID: id, Generation: n.Generation}}, nil
}

// FillSlot points the slot named slot in ns at the resource name in
// target. Readers of the slot read whatever that resource resolves to.
func (ns NameSpace) FillSlot(slot string, target NameSpace, name string) {
	rt := ns.rt
	id := rt.names.Resource(ns.id, slot)
	to := rt.names.Resource(target.id, name)
	rt.reg.Resize()
	s := rt.reg.Slot(id)
	if s.Target == to {
		return
	}
	s.Target = to
	rt.stages.MarkDirty(stage.NameResolution)
	rt.log.Debug("slot filled", "slot", rt.names.ResourceName(id), "target", rt.names.ResourceName(to))
}

// ClearSlot empties a slot. Unknown slots are ignored.
func (ns NameSpace) ClearSlot(slot string) {
	rt := ns.rt
	id, ok := rt.names.LookupResource(ns.id, slot)
	if !ok {
		return
	}
	s := rt.reg.Slot(id)
	if !s.Filled() {
		return
	}
	s.Target = ids.InvalidRes
	rt.stages.MarkDirty(stage.NameResolution)
	rt.log.Debug("slot cleared", "slot", rt.names.ResourceName(id))
}

// SetResolution sets the static resolution of an auto-resolution type.
// Textures sized by the type are allocated at this size. The dynamic
// resolution is clamped to it.
func (ns NameSpace) SetResolution(typeName string, width, height uint32) error {
	rt := ns.rt
	id := rt.names.AutoResType(ns.id, typeName)
	rt.reg.Resize()
	full := rt.names.AutoResTypeName(id)

	res := registry.Resolution{Width: width, Height: height}
	if res.IsZero() {
		err := &RuntimeError{Code: ErrCodeInvalidResolution, Message: fmt.Sprintf("static resolution %dx%d is empty", width, height), Name: full}
		rt.log.Error("rejected static resolution", "type", full, "width", width, "height", height)
		return err
	}

	d := rt.reg.AutoResType(id)
	if d.Set && d.Static == res {
		return nil
	}
	d.Static = res
	if !d.Set || d.Dynamic.IsZero() || !d.Dynamic.Fits(res) {
		d.Dynamic = res
	}
	d.Set = true
	rt.stages.MarkDirty(stage.ResourceScheduling)
	rt.log.Debug("static resolution set", "type", full, "width", width, "height", height)
	return nil
}

// SetDynamicResolution sets the resolution an auto-resolution type renders
// at this frame. It must be positive and fit inside the static resolution;
// otherwise it is rejected and the stored value is left unchanged. Nothing
// is recompiled.
func (ns NameSpace) SetDynamicResolution(typeName string, width, height int) error {
	rt := ns.rt
	full := typeName
	id, ok := rt.names.LookupAutoResType(ns.id, typeName)
	if ok {
		full = rt.names.AutoResTypeName(id)
	}
	if !ok || !rt.reg.AutoResType(id).Set {
		rt.log.Error("dynamic resolution for a type without static resolution", "type", typeName)
		return &RuntimeError{Code: ErrCodeUnknownResolution, Message: "auto-resolution type has no static resolution", Name: full}
	}

	d := rt.reg.AutoResType(id)
	if width <= 0 || height <= 0 || uint64(width) > uint64(d.Static.Width) || uint64(height) > uint64(d.Static.Height) {
		rt.log.Error("rejected dynamic resolution",
			"type", full,
			"width", width,
			"height", height,
			"static_width", d.Static.Width,
			"static_height", d.Static.Height,
		)
		return &RuntimeError{
			Code:    ErrCodeInvalidResolution,
			Message: fmt.Sprintf("dynamic resolution %dx%d does not fit static %dx%d", width, height, d.Static.Width, d.Static.Height),
			Name:    full,
		}
	}
	d.Dynamic = registry.Resolution{Width: uint32(width), Height: uint32(height)}
	return nil
}

// DynamicResolution returns the current dynamic resolution of a type.
func (ns NameSpace) DynamicResolution(typeName string) (registry.Resolution, bool) {
	id, ok := ns.rt.names.LookupAutoResType(ns.id, typeName)
	if !ok {
		return registry.Resolution{}, false
	}
	d := ns.rt.reg.AutoResType(id)
	return d.Dynamic, d.Set
}

// NodeHandle keeps a registered node alive. Releasing it unregisters the
// node, unless the node was registered again since.
type NodeHandle struct {
	rt       *Runtime
	uid      registry.NodeUID
	released bool
}

// Name returns the full node name.
func (h *NodeHandle) Name() string {
	return h.rt.names.NodeName(h.uid.ID)
}

// UID returns the node id and the generation the handle was issued for.
func (h *NodeHandle) UID() registry.NodeUID {
	return h.uid
}

// Valid reports whether the handle's node is still the live occupant.
func (h *NodeHandle) Valid() bool {
	_, err := h.rt.live(h)
	return err == nil
}

// Release unregisters the node. Releasing twice, or after the node was
// replaced, does nothing.
func (h *NodeHandle) Release() error {
	if h.released {
		return nil
	}
	rt := h.rt
	err := rt.tracker.UnregisterNode(h.uid.ID, h.uid.Generation)
	switch {
	case errors.Is(err, tracker.ErrStaleGeneration):
		h.released = true
		return nil
	case err != nil:
		return fmt.Errorf("release node %s: %w", h.Name(), err)
	}
	h.released = true
	rt.stages.MarkDirty(stage.NodeDeclarationUpdate)
	return nil
}
