package compiler

import (
	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/registry"
)

// initHistory emits a one-shot event for every history instance pair that
// was not allocated by the previous compilation.
func (c *Compiler) initHistory() {
	current := make(map[string]bool)
	events := []ir.Event{}
	for _, v := range c.virtuals {
		if !v.history {
			continue
		}
		key := historyKey(v)
		current[key] = true
		if c.knownHistory[key] {
			continue
		}
		var kind ir.EventKind
		switch c.historyPolicy(v.key.origin) {
		case registry.HistoryClearZeroOnFirstFrame:
			kind = ir.EventClear
		case registry.HistoryDiscardOnFirstFrame:
			kind = ir.EventDiscard
		default:
			continue
		}
		events = append(events, ir.Event{
			Kind:     kind,
			Resource: v.key.origin,
			Name:     v.name,
			Physical: []int32{v.phys[0], v.phys[1]},
		})
	}
	c.knownHistory = current
	c.frame.Events = ir.FrameEvents{HistoryInit: events}
}

// historyPolicy returns the policy of the latest link of origin's chain
// that sets one. Renames inherit their source's policy unless overridden.
func (c *Compiler) historyPolicy(origin ids.ResID) registry.History {
	policy := registry.HistoryNone
	for _, link := range c.reg.Chain(origin) {
		if h := c.reg.Resources[link].History; h != registry.HistoryNone {
			policy = h
		}
	}
	return policy
}
