// Package tracker owns the node registration lifecycle: generations, the
// deferred declaration queue, owner contexts and the changes-locked flag.
//
// Registration never runs a declaration callback directly. Nodes are queued
// and declared in one batch by UpdateNodeDeclarations, right before the
// next compilation.
package tracker

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/logx"
	"github.com/roach88/framegraph/internal/registry"
)

var (
	// ErrChangesLocked is returned by structural edits made while a frame is
	// executing. The edit is not applied.
	ErrChangesLocked = errors.New("graph changes are locked during execution")

	// ErrStaleGeneration is returned when an unregister carries a generation
	// older than the live one.
	ErrStaleGeneration = errors.New("stale node generation")
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.log = logx.OrNop(l) }
}

// WithShuffleSeed makes UpdateNodeDeclarations process the queue in a
// seeded random order, which shakes out declarations that depend on
// processing order.
func WithShuffleSeed(seed uint64) Option {
	return func(t *Tracker) { t.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// Tracker manages node registration against a registry.
type Tracker struct {
	reg *registry.Registry
	log *slog.Logger
	rng *rand.Rand

	pending []ids.NodeID
	queued  map[ids.NodeID]bool
	owners  map[ids.NodeID]string

	locked       bool
	nodesChanged bool
	vizDirty     bool
}

// New creates a tracker over reg.
func New(reg *registry.Registry, opts ...Option) *Tracker {
	t := &Tracker{
		reg:    reg,
		log:    logx.Nop(),
		queued: make(map[ids.NodeID]bool),
		owners: make(map[ids.NodeID]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RegisterNode queues id for declaration and records its owner. The
// declaration callback must already be stored on the node record, or be
// stored before the next UpdateNodeDeclarations.
func (t *Tracker) RegisterNode(owner string, id ids.NodeID) error {
	if t.locked {
		t.log.Error("node registration while changes are locked",
			"node", t.reg.Names.NodeName(id),
			"owner", owner,
		)
		return ErrChangesLocked
	}

	node := t.reg.Node(id)
	node.Owner = owner
	t.owners[id] = owner
	t.enqueue(id)
	t.nodesChanged = true
	t.vizDirty = true

	t.log.Debug("node registered", "node", t.reg.Names.NodeName(id), "owner", owner)
	return nil
}

// UnregisterNode removes a node registered with the given generation.
//
// Unknown nodes are ignored. A generation older than the live one means the
// caller's handle outlived a re-registration; it is ignored and reported as
// ErrStaleGeneration.
//
// Every renaming chain the node produced a link of is evicted. Other live
// nodes that produced links of those chains are queued to declare again so
// their links are rebuilt.
func (t *Tracker) UnregisterNode(id ids.NodeID, generation uint32) error {
	if t.locked {
		t.log.Error("node unregistration while changes are locked",
			"node", t.reg.Names.NodeName(id),
		)
		return ErrChangesLocked
	}
	if int(id) >= len(t.reg.Nodes) || !t.reg.Nodes[id].Live() {
		return nil
	}

	node := &t.reg.Nodes[id]
	if generation < node.Generation {
		t.log.Debug("ignoring stale unregister",
			"node", t.reg.Names.NodeName(id),
			"generation", generation,
			"live_generation", node.Generation,
		)
		return ErrStaleGeneration
	}

	for _, res := range node.Produced() {
		// The link may already be gone if an earlier link of the same chain
		// was evicted in this loop.
		for _, producer := range t.reg.EvictChain(res) {
			if producer == id || int(producer) >= len(t.reg.Nodes) || !t.reg.Nodes[producer].Live() {
				continue
			}
			t.log.Debug("redeclaring producer of evicted chain",
				"node", t.reg.Names.NodeName(producer),
				"resource", t.reg.Names.ResourceName(res),
			)
			t.enqueue(producer)
		}
	}

	next := node.Generation + 1
	*node = registry.NodeData{Generation: next}
	node.ResetDeclaration()

	delete(t.owners, id)
	t.dequeue(id)
	t.nodesChanged = true
	t.vizDirty = true

	t.log.Debug("node unregistered", "node", t.reg.Names.NodeName(id), "generation", next)
	return nil
}

// WipeContextNodes unregisters every node still owned by owner.
func (t *Tracker) WipeContextNodes(owner string) error {
	var victims []ids.NodeID
	for id, o := range t.owners {
		if o == owner {
			victims = append(victims, id)
		}
	}
	slices.Sort(victims)

	var firstErr error
	for _, id := range victims {
		if err := t.UnregisterNode(id, t.reg.Nodes[id].Generation); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// UpdateNodeDeclarations drains the queue and runs each pending node's
// declaration callback, storing the execution callback it returns. Tables
// are resized afterwards so every stage can index by the latest ids.
func (t *Tracker) UpdateNodeDeclarations() {
	for len(t.pending) > 0 {
		batch := t.pending
		t.pending = nil
		for _, id := range batch {
			delete(t.queued, id)
		}
		if t.rng != nil {
			t.rng.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
		}

		for _, id := range batch {
			t.declare(id)
		}
	}
	t.reg.Resize()
}

func (t *Tracker) declare(id ids.NodeID) {
	node := t.reg.Node(id)
	if !node.Live() {
		return
	}
	declare := node.Declare
	node.ResetDeclaration()

	exec := declare(id, t.reg)

	// The callback may have grown the tables; re-take the pointer.
	node = t.reg.Node(id)
	node.Exec = exec
	node.Declared = true
	t.log.Debug("node declared", "node", t.reg.Names.NodeName(id))
}

// Pending returns the queued node ids in processing order.
func (t *Tracker) Pending() []ids.NodeID {
	return append([]ids.NodeID(nil), t.pending...)
}

// Owner returns the owner context of a registered node.
func (t *Tracker) Owner(id ids.NodeID) (string, bool) {
	o, ok := t.owners[id]
	return o, ok
}

// LockChanges freezes the graph structure until UnlockChanges.
func (t *Tracker) LockChanges() { t.locked = true }

// UnlockChanges allows structural edits again.
func (t *Tracker) UnlockChanges() { t.locked = false }

// Locked reports whether structural edits are currently refused.
func (t *Tracker) Locked() bool { return t.locked }

// AcquireNodesChanged reports and clears the structure-changed flag.
func (t *Tracker) AcquireNodesChanged() bool {
	changed := t.nodesChanged
	t.nodesChanged = false
	return changed
}

// AcquireVisualizationDirty reports and clears the visualisation flag.
func (t *Tracker) AcquireVisualizationDirty() bool {
	dirty := t.vizDirty
	t.vizDirty = false
	return dirty
}

func (t *Tracker) enqueue(id ids.NodeID) {
	if t.queued[id] {
		return
	}
	t.queued[id] = true
	t.pending = append(t.pending, id)
}

func (t *Tracker) dequeue(id ids.NodeID) {
	if !t.queued[id] {
		return
	}
	delete(t.queued, id)
	for i, p := range t.pending {
		if p == id {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return
		}
	}
}
