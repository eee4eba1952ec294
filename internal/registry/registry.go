// Package registry holds the mutable frame graph state: one record per node,
// resource, auto-resolution type and named slot, indexed by dense ids.
//
// The registry is the single source of truth read by every compilation
// stage. It is owned by one runtime and is never shared between goroutines.
package registry

import (
	"sort"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/multiplex"
)

// NodeUID identifies one occupant of a node id.
type NodeUID struct {
	ID         ids.NodeID
	Generation uint32
}

// ResUID identifies a resource and which frame's instance is meant.
type ResUID struct {
	ID      ids.ResID
	History bool
}

// NodeData is everything known about one node.
type NodeData struct {
	Generation uint32
	Declare    DeclareFunc
	// Exec is regenerated every time Declare runs. It is nil until then.
	Exec     ExecFunc
	Declared bool
	Disabled bool

	SourceTag string
	Owner     string

	Created  []ids.ResID
	Read     []ids.ResID
	Modified []ids.ResID
	// Renamed maps each rename target to its source.
	Renamed map[ids.ResID]ids.ResID

	Requests        map[ids.ResID]ResourceRequest
	HistoryRequests map[ids.ResID]ResourceRequest

	Priority     int32
	SideEffects  SideEffects
	Multiplexing multiplex.Mode

	FollowNodes  []ids.NodeID
	PrecedeNodes []ids.NodeID

	RenderPass  *RenderPassRequest
	ShaderVars  map[string]ResourceRef
	BlockLayers []BlockLayer
	Wireframe   bool
	VRS         *VRSState

	// Conflicts are configuration errors found while declaring.
	Conflicts []string
}

// Live reports whether the node is registered.
func (n *NodeData) Live() bool {
	return n.Declare != nil
}

// Active reports whether the node takes part in compilation.
func (n *NodeData) Active() bool {
	return n.Declare != nil && n.Declared && !n.Disabled
}

// ResetDeclaration drops everything the declaration callback produces while
// keeping registration state.
func (n *NodeData) ResetDeclaration() {
	*n = NodeData{
		Generation:  n.Generation,
		Declare:     n.Declare,
		Disabled:    n.Disabled,
		SourceTag:   n.SourceTag,
		Owner:       n.Owner,
		Priority:    PrioDefault,
		SideEffects: SideEffectsInternal,
	}
}

// Produced lists every resource the node created or renamed into, sorted.
func (n *NodeData) Produced() []ids.ResID {
	out := append([]ids.ResID(nil), n.Created...)
	for to := range n.Renamed {
		out = append(out, to)
	}
	sortRes(out)
	return out
}

// AddRequest stores a request, merging with an earlier one for the same id.
func (n *NodeData) AddRequest(id ids.ResID, req ResourceRequest) {
	m := &n.Requests
	if req.History {
		m = &n.HistoryRequests
	}
	if *m == nil {
		*m = make(map[ids.ResID]ResourceRequest)
	}
	if prev, ok := (*m)[id]; ok {
		req = Merge(prev, req)
	}
	(*m)[id] = req
}

// RequestedIDs returns the raw ids of every request, history ones included,
// sorted and without duplicates.
func (n *NodeData) RequestedIDs() []ids.ResID {
	seen := make(map[ids.ResID]struct{}, len(n.Requests)+len(n.HistoryRequests))
	for id := range n.Requests {
		seen[id] = struct{}{}
	}
	for id := range n.HistoryRequests {
		seen[id] = struct{}{}
	}
	out := make([]ids.ResID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sortRes(out)
	return out
}

// ResourceData is everything known about one resource name.
type ResourceData struct {
	Kind     ResourceKind
	Origin   Origin
	Texture  TextureDesc
	Buffer   BufferDesc
	Blob     BlobDesc
	External ExternalProvider
	Producer ids.NodeID

	RenamedFrom ids.ResID
	RenamedTo   ids.ResID

	History History
}

// Produced reports whether some node creates, imports or renames into the
// resource.
func (r *ResourceData) Produced() bool {
	return r.Origin != OriginNone
}

func emptyResource() ResourceData {
	return ResourceData{
		Producer:    ids.InvalidNode,
		RenamedFrom: ids.InvalidRes,
		RenamedTo:   ids.InvalidRes,
		Texture:     TextureDesc{AutoRes: ids.InvalidAutoResType},
	}
}

// AutoResTypeData holds the resolutions of one auto-resolution type.
type AutoResTypeData struct {
	Static  Resolution
	Dynamic Resolution
	Set     bool
}

// SlotData is a named slot. An empty slot has Target == ids.InvalidRes.
type SlotData struct {
	Target ids.ResID
}

// Filled reports whether the slot points anywhere.
func (s SlotData) Filled() bool {
	return s.Target != ids.InvalidRes
}

// Registry is the graph state shared by the tracker, resolver, compiler and
// executor.
type Registry struct {
	Names        *ids.Names
	Nodes        []NodeData
	Resources    []ResourceData
	AutoResTypes []AutoResTypeData
	Slots        []SlotData
}

// New creates an empty registry over names.
func New(names *ids.Names) *Registry {
	r := &Registry{Names: names}
	r.Resize()
	return r
}

// Resize grows every table to the current name table sizes. Tables never
// shrink since ids are never removed.
func (r *Registry) Resize() {
	for len(r.Nodes) < r.Names.NodeCount() {
		n := NodeData{}
		n.ResetDeclaration()
		r.Nodes = append(r.Nodes, n)
	}
	for len(r.Resources) < r.Names.ResourceCount() {
		r.Resources = append(r.Resources, emptyResource())
	}
	for len(r.Slots) < r.Names.ResourceCount() {
		r.Slots = append(r.Slots, SlotData{Target: ids.InvalidRes})
	}
	for len(r.AutoResTypes) < r.Names.AutoResTypeCount() {
		r.AutoResTypes = append(r.AutoResTypes, AutoResTypeData{})
	}
}

// Node returns the record for id, growing tables as needed.
func (r *Registry) Node(id ids.NodeID) *NodeData {
	if int(id) >= len(r.Nodes) {
		r.Resize()
	}
	return &r.Nodes[id]
}

// Resource returns the record for id, growing tables as needed.
func (r *Registry) Resource(id ids.ResID) *ResourceData {
	if int(id) >= len(r.Resources) {
		r.Resize()
	}
	return &r.Resources[id]
}

// AutoResType returns the record for id, growing tables as needed.
func (r *Registry) AutoResType(id ids.AutoResTypeID) *AutoResTypeData {
	if int(id) >= len(r.AutoResTypes) {
		r.Resize()
	}
	return &r.AutoResTypes[id]
}

// Slot returns the slot record for id, growing tables as needed.
func (r *Registry) Slot(id ids.ResID) *SlotData {
	if int(id) >= len(r.Slots) {
		r.Resize()
	}
	return &r.Slots[id]
}

// HasResource reports whether id indexes the resource table.
func (r *Registry) HasResource(id ids.ResID) bool {
	return int(id) < len(r.Resources)
}

// Evict resets a resource record. The history policy survives.
func (r *Registry) Evict(id ids.ResID) {
	if !r.HasResource(id) {
		return
	}
	h := r.Resources[id].History
	r.Resources[id] = emptyResource()
	r.Resources[id].History = h
}

// ChainOrigin walks RenamedFrom links back to the start of id's chain.
func (r *Registry) ChainOrigin(id ids.ResID) ids.ResID {
	cur := id
	for steps := 0; r.HasResource(cur) && steps <= len(r.Resources); steps++ {
		prev := r.Resources[cur].RenamedFrom
		if prev == ids.InvalidRes {
			break
		}
		cur = prev
	}
	return cur
}

// ChainTail walks RenamedTo links to the latest link of id's chain.
func (r *Registry) ChainTail(id ids.ResID) ids.ResID {
	cur := id
	for steps := 0; r.HasResource(cur) && steps <= len(r.Resources); steps++ {
		next := r.Resources[cur].RenamedTo
		if next == ids.InvalidRes {
			break
		}
		cur = next
	}
	return cur
}

// Chain lists every link of id's renaming chain, origin first.
func (r *Registry) Chain(id ids.ResID) []ids.ResID {
	out := []ids.ResID{}
	seen := make(map[ids.ResID]bool)
	for cur := r.ChainOrigin(id); r.HasResource(cur) && !seen[cur]; cur = r.Resources[cur].RenamedTo {
		seen[cur] = true
		out = append(out, cur)
	}
	if len(out) == 0 {
		out = append(out, id)
	}
	return out
}

// EvictChain evicts every link of id's chain and returns the nodes that had
// produced any of them.
func (r *Registry) EvictChain(id ids.ResID) []ids.NodeID {
	var producers []ids.NodeID
	for _, link := range r.Chain(id) {
		if !r.HasResource(link) {
			continue
		}
		if p := r.Resources[link].Producer; p != ids.InvalidNode {
			producers = appendNode(producers, p)
		}
		r.Evict(link)
	}
	return producers
}

// ResolutionOf returns the static resolution of an auto-resolution type.
func (r *Registry) ResolutionOf(id ids.AutoResTypeID) (Resolution, bool) {
	if int(id) >= len(r.AutoResTypes) || !r.AutoResTypes[id].Set {
		return Resolution{}, false
	}
	return r.AutoResTypes[id].Static, true
}

// LiveNodes returns the ids of every registered node in id order.
func (r *Registry) LiveNodes() []ids.NodeID {
	var out []ids.NodeID
	for i := range r.Nodes {
		if r.Nodes[i].Live() {
			out = append(out, ids.NodeID(i))
		}
	}
	return out
}

func appendNode(list []ids.NodeID, id ids.NodeID) []ids.NodeID {
	for _, n := range list {
		if n == id {
			return list
		}
	}
	return append(list, id)
}

// AppendRes appends id to list unless already present.
func AppendRes(list []ids.ResID, id ids.ResID) []ids.ResID {
	for _, r := range list {
		if r == id {
			return list
		}
	}
	return append(list, id)
}

// AppendNode appends id to list unless already present.
func AppendNode(list []ids.NodeID, id ids.NodeID) []ids.NodeID {
	return appendNode(list, id)
}

func sortRes(list []ids.ResID) {
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
}
