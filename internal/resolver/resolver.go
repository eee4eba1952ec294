// Package resolver maps raw requested resource names to the resources that
// actually back them.
//
// A raw name is first bound, repeating until nothing changes:
//
//   - namespace fallback: a name nobody produces resolves to the closest
//     ancestor namespace's resource with the same short name that is
//     produced (or is a filled slot);
//   - slot indirection: a filled slot resolves to its target.
//
// Binding returns that link: the resource a request actually touches.
// Resolve then follows the renaming chain to its latest live link, binding
// again after every hop, so it names the authoritative resource.
//
// Both tables are collapsed eagerly in Update, so lookups are table reads
// and Resolve(Resolve(x)) == Resolve(x).
package resolver

import (
	"log/slog"
	"slices"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/logx"
	"github.com/roach88/framegraph/internal/registry"
)

type inverseKey struct {
	node ids.NodeID
	res  ids.ResID
}

// Resolver holds the resolution table built by the last Update.
type Resolver struct {
	reg *registry.Registry
	log *slog.Logger

	bound    []ids.ResID
	resolved []ids.ResID
	inverse  map[inverseKey][]ids.ResID

	validNodes   []bool
	validRes     []bool
	validAutoRes []bool
}

// New creates a resolver over reg.
func New(reg *registry.Registry, log *slog.Logger) *Resolver {
	return &Resolver{
		reg:     reg,
		log:     logx.OrNop(log),
		inverse: make(map[inverseKey][]ids.ResID),
	}
}

// Update rebuilds the validity index, the resolution table and the inverse
// map from the registry.
func (r *Resolver) Update() {
	r.updateValidity()

	n := len(r.reg.Resources)
	r.bound = make([]ids.ResID, n)
	for i := 0; i < n; i++ {
		r.bound[i] = r.resolveRaw(ids.ResID(i))
	}
	r.resolved = make([]ids.ResID, n)
	for i := 0; i < n; i++ {
		r.resolved[i] = r.followRenames(ids.ResID(i))
	}

	r.inverse = make(map[inverseKey][]ids.ResID)
	for i := range r.reg.Nodes {
		node := &r.reg.Nodes[i]
		if !node.Live() {
			continue
		}
		for _, raw := range node.RequestedIDs() {
			key := inverseKey{node: ids.NodeID(i), res: r.Resolve(raw)}
			r.inverse[key] = append(r.inverse[key], raw)
		}
	}
}

func (r *Resolver) updateValidity() {
	r.validNodes = make([]bool, len(r.reg.Nodes))
	for i := range r.reg.Nodes {
		r.validNodes[i] = r.reg.Nodes[i].Live()
	}
	r.validRes = make([]bool, len(r.reg.Resources))
	for i := range r.reg.Resources {
		r.validRes[i] = r.reg.Resources[i].Produced() || r.reg.Slots[i].Filled()
	}
	r.validAutoRes = make([]bool, len(r.reg.AutoResTypes))
	for i := range r.reg.AutoResTypes {
		r.validAutoRes[i] = r.reg.AutoResTypes[i].Set
	}
}

// resolveRaw follows slot and namespace hops until it reaches a produced
// resource. Names that lead nowhere, and cyclic slot chains, resolve to
// themselves.
func (r *Resolver) resolveRaw(id ids.ResID) ids.ResID {
	seen := map[ids.ResID]bool{}
	cur := id
	for {
		if seen[cur] {
			r.log.Error("slot cycle while resolving resource",
				"resource", r.reg.Names.ResourceName(id),
				"at", r.reg.Names.ResourceName(cur),
			)
			return id
		}
		seen[cur] = true

		if int(cur) < len(r.reg.Slots) && r.reg.Slots[cur].Filled() {
			cur = r.reg.Slots[cur].Target
			continue
		}
		if r.reg.HasResource(cur) && r.reg.Resources[cur].Produced() {
			return cur
		}
		next, ok := r.fallback(cur)
		if !ok {
			return id
		}
		cur = next
	}
}

// followRenames walks from id's binding along live RenamedTo links,
// rebinding after each hop. A cyclic chain resolves to id's binding.
func (r *Resolver) followRenames(id ids.ResID) ids.ResID {
	cur := r.Binding(id)
	seen := map[ids.ResID]bool{}
	for !seen[cur] {
		seen[cur] = true
		next, ok := r.renamedTo(cur)
		if !ok {
			return cur
		}
		cur = r.Binding(next)
	}
	r.log.Error("renaming cycle while resolving resource",
		"resource", r.reg.Names.ResourceName(id),
		"at", r.reg.Names.ResourceName(cur),
	)
	return r.Binding(id)
}

// renamedTo returns the link id was renamed into, if both are produced.
func (r *Resolver) renamedTo(id ids.ResID) (ids.ResID, bool) {
	if !r.reg.HasResource(id) || !r.reg.Resources[id].Produced() {
		return ids.InvalidRes, false
	}
	next := r.reg.Resources[id].RenamedTo
	if next == ids.InvalidRes || !r.reg.HasResource(next) || !r.reg.Resources[next].Produced() {
		return ids.InvalidRes, false
	}
	return next, true
}

// fallback looks for the same short name in ancestor namespaces.
func (r *Resolver) fallback(id ids.ResID) (ids.ResID, bool) {
	names := r.reg.Names
	short := names.ShortResourceName(id)
	for ns := names.NameSpaceParent(names.ResourceParent(id)); ns != ids.InvalidNameSpace; ns = names.NameSpaceParent(ns) {
		cand, ok := names.ResourceIn(ns, short)
		if !ok || !r.reg.HasResource(cand) {
			continue
		}
		if r.reg.Resources[cand].Produced() || r.reg.Slots[cand].Filled() {
			return cand, true
		}
	}
	return ids.InvalidRes, false
}

// Binding returns the resource raw is bound to through namespace fallback
// and slots, without following renames. Ids interned after the last Update
// bind to themselves.
func (r *Resolver) Binding(raw ids.ResID) ids.ResID {
	if int(raw) >= len(r.bound) {
		return raw
	}
	return r.bound[raw]
}

// Resolve returns the authoritative resource for raw: its binding, carried
// to the latest live link of its renaming chain. Ids interned after the
// last Update resolve to themselves.
func (r *Resolver) Resolve(raw ids.ResID) ids.ResID {
	if int(raw) >= len(r.resolved) {
		return raw
	}
	return r.resolved[raw]
}

// Resolved reports whether raw resolves to something produced.
func (r *Resolver) Resolved(raw ids.ResID) bool {
	res := r.Resolve(raw)
	return r.reg.HasResource(res) && r.reg.Resources[res].Produced()
}

// Unresolve returns every raw id node requested that resolves to resolved,
// sorted. History requests are included.
func (r *Resolver) Unresolve(node ids.NodeID, resolved ids.ResID) []ids.ResID {
	raws := r.inverse[inverseKey{node: node, res: resolved}]
	if len(raws) == 0 {
		return nil
	}
	out := slices.Clone(raws)
	slices.Sort(out)
	return out
}

// IsValidNode reports whether id was registered at the last Update.
func (r *Resolver) IsValidNode(id ids.NodeID) bool {
	return int(id) < len(r.validNodes) && r.validNodes[id]
}

// IsValidResource reports whether id was produced or a filled slot at the
// last Update.
func (r *Resolver) IsValidResource(id ids.ResID) bool {
	return int(id) < len(r.validRes) && r.validRes[id]
}

// IsValidAutoResType reports whether id had a resolution set.
func (r *Resolver) IsValidAutoResType(id ids.AutoResTypeID) bool {
	return int(id) < len(r.validAutoRes) && r.validAutoRes[id]
}

// SuggestResource finds the valid resource whose full name is closest to
// name, for "did you mean" diagnostics.
func (r *Resolver) SuggestResource(name string) (string, bool) {
	best, bestDist := "", -1
	for i, ok := range r.validRes {
		if !ok {
			continue
		}
		cand := r.reg.Names.ResourceName(ids.ResID(i))
		d := editDistance(name, cand)
		if bestDist < 0 || d < bestDist || (d == bestDist && cand < best) {
			best, bestDist = cand, d
		}
	}
	if bestDist < 0 || bestDist > max(2, len(name)/3) {
		return "", false
	}
	return best, true
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
