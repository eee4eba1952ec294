package compiler

import (
	"maps"
	"slices"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/registry"
)

// nodeInfo is one active node's requests in resolved terms.
type nodeInfo struct {
	// produced are the resources the node creates, imports or renames into.
	produced []ids.ResID
	// renamedFrom are the resources the node consumes by renaming them.
	renamedFrom []ids.ResID
	modified    []ids.ResID
	read        []ids.ResID

	requests map[ids.ResID]registry.ResourceRequest
	history  map[ids.ResID]registry.ResourceRequest
	// raws maps a resolved id back to the first raw name that reached it.
	raws map[ids.ResID]ids.ResID
}

func (n *nodeInfo) produces(r ids.ResID) bool {
	return slices.Contains(n.produced, r)
}

// consumed lists everything the node needs someone else to produce,
// history reads included.
func (n *nodeInfo) consumed() []ids.ResID {
	var out []ids.ResID
	for _, list := range [][]ids.ResID{n.renamedFrom, n.modified, n.read} {
		for _, r := range list {
			out = registry.AppendRes(out, r)
		}
	}
	for _, r := range slices.Sorted(maps.Keys(n.history)) {
		out = registry.AppendRes(out, r)
	}
	return out
}

type depsState struct {
	info   map[ids.NodeID]*nodeInfo
	alive  map[ids.NodeID]bool
	pruned []ids.NodeID

	modifiers map[ids.ResID][]ids.NodeID
	readers   map[ids.ResID][]ids.NodeID
	renamers  map[ids.ResID][]ids.NodeID

	edges graph
	kept  []ids.NodeID
	keep  map[ids.NodeID]bool

	// historyChains holds the chain origins some kept node reads the
	// previous frame of.
	historyChains map[ids.ResID]bool
}

// calculateDependencies prunes nodes with unsatisfiable requests, builds the
// node-level dependency graph, breaks cycles and culls unused nodes.
func (c *Compiler) calculateDependencies() {
	c.depsDiags = nil
	c.missing = nil
	c.deps = depsState{
		info:          make(map[ids.NodeID]*nodeInfo),
		alive:         make(map[ids.NodeID]bool),
		modifiers:     make(map[ids.ResID][]ids.NodeID),
		readers:       make(map[ids.ResID][]ids.NodeID),
		renamers:      make(map[ids.ResID][]ids.NodeID),
		edges:         make(graph),
		keep:          make(map[ids.NodeID]bool),
		historyChains: make(map[ids.ResID]bool),
	}
	d := &c.deps

	for _, id := range c.reg.LiveNodes() {
		n := &c.reg.Nodes[id]
		if !n.Active() {
			continue
		}
		d.alive[id] = true
		d.info[id] = c.collect(n)
		for _, msg := range n.Conflicts {
			c.report(&c.depsDiags, errorDiag(CodeDeclarationConflict, c.nodeName(id), "", "%s", msg))
		}
	}

	c.prune()
	c.buildEdges()

	cycles := findCycles(c.deps.edges)
	for _, cyc := range cycles {
		c.report(&c.depsDiags, warningDiag(CodeCycle, c.nodeName(cyc.Nodes[0]), "", "%s", formatCyclePath(c.reg.Names, cyc.Path)))
	}
	breakCycles(c.deps.edges, cycles)

	c.cull()
}

// collect resolves a node's declaration. Created and renamed-into names are
// the node's own and are not resolved.
func (c *Compiler) collect(n *registry.NodeData) *nodeInfo {
	info := &nodeInfo{
		requests: make(map[ids.ResID]registry.ResourceRequest),
		history:  make(map[ids.ResID]registry.ResourceRequest),
		raws:     make(map[ids.ResID]ids.ResID),
	}
	merge := func(dst map[ids.ResID]registry.ResourceRequest, src map[ids.ResID]registry.ResourceRequest) {
		for _, raw := range slices.Sorted(maps.Keys(src)) {
			r := c.res.Binding(raw)
			if prev, ok := dst[r]; ok {
				dst[r] = registry.Merge(prev, src[raw])
			} else {
				dst[r] = src[raw]
			}
			if _, ok := info.raws[r]; !ok {
				info.raws[r] = raw
			}
		}
	}
	merge(info.requests, n.Requests)
	merge(info.history, n.HistoryRequests)

	for _, r := range n.Created {
		info.produced = registry.AppendRes(info.produced, r)
	}
	for _, to := range slices.Sorted(maps.Keys(n.Renamed)) {
		info.produced = registry.AppendRes(info.produced, to)
		info.renamedFrom = registry.AppendRes(info.renamedFrom, c.res.Binding(n.Renamed[to]))
	}
	for _, raw := range n.Modified {
		r := c.res.Binding(raw)
		if !info.produces(r) && !slices.Contains(info.renamedFrom, r) {
			info.modified = registry.AppendRes(info.modified, r)
		}
	}
	for _, raw := range n.Read {
		r := c.res.Binding(raw)
		if !info.produces(r) && !slices.Contains(info.renamedFrom, r) && !slices.Contains(info.modified, r) {
			info.read = registry.AppendRes(info.read, r)
		}
	}
	for _, list := range [][]ids.ResID{info.produced, info.renamedFrom, info.modified, info.read} {
		slices.Sort(list)
	}
	return info
}

// producer returns the live producer of r, or InvalidNode.
func (c *Compiler) producer(r ids.ResID) ids.NodeID {
	if !c.reg.HasResource(r) {
		return ids.InvalidNode
	}
	res := &c.reg.Resources[r]
	if !res.Produced() || !c.deps.alive[res.Producer] {
		return ids.InvalidNode
	}
	return res.Producer
}

// available reports whether r is backed by a live producer.
func (c *Compiler) available(r ids.ResID) bool {
	return c.producer(r) != ids.InvalidNode
}

// prune removes nodes with a missing required resource or a mismatched blob
// tag until nothing changes, since pruning a producer starves its readers.
func (c *Compiler) prune() {
	d := &c.deps
	for changed := true; changed; {
		changed = false
		for _, id := range slices.Sorted(maps.Keys(d.alive)) {
			if c.checkRequests(id) {
				continue
			}
			delete(d.alive, id)
			d.pruned = append(d.pruned, id)
			changed = true
		}
	}
	slices.Sort(d.pruned)
}

// checkRequests validates one node's requests and records a diagnostic for
// the first unsatisfiable one.
func (c *Compiler) checkRequests(id ids.NodeID) bool {
	info := c.deps.info[id]
	for _, reqs := range []map[ids.ResID]registry.ResourceRequest{info.requests, info.history} {
		for _, r := range slices.Sorted(maps.Keys(reqs)) {
			req := reqs[r]
			if info.produces(r) && !req.History {
				continue
			}
			raw := info.raws[r]
			if !c.available(r) {
				if req.Optional {
					continue
				}
				c.missingResource(id, raw, r)
				return false
			}
			origin := &c.reg.Resources[c.reg.ChainOrigin(r)]
			if origin.Kind == registry.KindBlob && req.TypeTag != "" && origin.Blob.Tag != req.TypeTag {
				c.report(&c.depsDiags, errorDiag(CodeBlobTypeMismatch, c.nodeName(id), c.resName(raw),
					"blob %s has type %q, node expects %q", c.resName(r), origin.Blob.Tag, req.TypeTag))
				return false
			}
		}
	}
	return true
}

func (c *Compiler) missingResource(node ids.NodeID, raw, resolved ids.ResID) {
	err := &MissingResourceError{
		Node:     c.nodeName(node),
		Resource: c.resName(raw),
	}
	if c.reg.HasResource(resolved) {
		if res := &c.reg.Resources[resolved]; res.Produced() && res.Producer != ids.InvalidNode {
			err.Producer = c.nodeName(res.Producer)
		}
	}
	if err.Producer == "" {
		if s, ok := c.res.SuggestResource(err.Resource); ok {
			err.Suggestion = s
		}
	}
	c.missing = append(c.missing, err)
	c.report(&c.depsDiags, err.diagnostic())
}

// buildEdges links producers before modifiers, modifiers before readers,
// and everyone touching a resource before the node that renames it away.
func (c *Compiler) buildEdges() {
	d := &c.deps
	alive := slices.Sorted(maps.Keys(d.alive))
	for _, id := range alive {
		d.edges[id] = nil
	}

	touched := make(map[ids.ResID]bool)
	for _, id := range alive {
		info := d.info[id]
		for _, r := range info.modified {
			d.modifiers[r] = append(d.modifiers[r], id)
			touched[r] = true
		}
		for _, r := range info.read {
			d.readers[r] = append(d.readers[r], id)
			touched[r] = true
		}
		for _, r := range info.renamedFrom {
			d.renamers[r] = append(d.renamers[r], id)
			touched[r] = true
		}
	}

	for _, r := range slices.Sorted(maps.Keys(touched)) {
		p := c.producer(r)
		if p == ids.InvalidNode {
			continue
		}
		mods, reads, renames := d.modifiers[r], d.readers[r], d.renamers[r]
		if len(renames) > 1 {
			names := make([]any, 0, len(renames))
			for _, n := range renames {
				names = append(names, c.nodeName(n))
			}
			c.report(&c.depsDiags, warningDiag(CodeRenameConflict, c.nodeName(renames[1]), c.resName(r),
				"resource %s is renamed by %d nodes: %v", c.resName(r), len(renames), names))
		}
		for _, m := range mods {
			d.edges.addEdge(p, m)
			for _, x := range reads {
				d.edges.addEdge(m, x)
			}
		}
		for _, x := range reads {
			d.edges.addEdge(p, x)
		}
		for _, rn := range renames {
			d.edges.addEdge(p, rn)
			for _, m := range mods {
				d.edges.addEdge(m, rn)
			}
			for _, x := range reads {
				d.edges.addEdge(x, rn)
			}
		}
	}

	for _, id := range alive {
		n := &c.reg.Nodes[id]
		for _, f := range n.FollowNodes {
			c.orderingEdge(id, f, f, id)
		}
		for _, p := range n.PrecedeNodes {
			c.orderingEdge(id, p, id, p)
		}
	}
}

func (c *Compiler) orderingEdge(owner, other, from, to ids.NodeID) {
	if c.deps.alive[other] {
		c.deps.edges.addEdge(from, to)
		return
	}
	if int(other) >= len(c.reg.Nodes) || !c.reg.Nodes[other].Live() {
		c.report(&c.depsDiags, warningDiag(CodeUnknownOrdering, c.nodeName(owner), "",
			"ordering constraint names unknown node %s", c.nodeName(other)))
	}
}

// cull keeps the nodes with external side effects and, transitively, the
// producers and modifiers of everything a kept node consumes.
func (c *Compiler) cull() {
	d := &c.deps
	var queue []ids.NodeID
	push := func(id ids.NodeID) {
		if id == ids.InvalidNode || d.keep[id] {
			return
		}
		d.keep[id] = true
		queue = append(queue, id)
	}
	for _, id := range slices.Sorted(maps.Keys(d.alive)) {
		if c.reg.Nodes[id].SideEffects == registry.SideEffectsExternal {
			push(id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		info := d.info[id]
		for _, r := range info.consumed() {
			push(c.producer(r))
			for _, m := range d.modifiers[r] {
				push(m)
			}
		}
	}

	d.kept = slices.Sorted(maps.Keys(d.keep))
	for _, id := range d.kept {
		for r := range d.info[id].history {
			if c.available(r) {
				d.historyChains[c.reg.ChainOrigin(r)] = true
			}
		}
	}

	c.frame.Culled = nil
	for _, id := range slices.Sorted(maps.Keys(d.alive)) {
		if !d.keep[id] {
			c.frame.Culled = append(c.frame.Culled, c.nodeName(id))
		}
	}
	c.frame.Pruned = nil
	for _, id := range d.pruned {
		c.frame.Pruned = append(c.frame.Pruned, c.nodeName(id))
	}
}
