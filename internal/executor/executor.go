// Package executor runs a compiled frame against a device.
//
// Execute walks the schedule once per frame. Before each node it applies
// the node's barriers and state delta, binds its resources to physical
// views and calls its execution callback with the multiplexing index. After
// each node with side effects it checks that the shader variables and render
// targets the node was expected to leave bound are still bound, reports
// every mismatch and restores the expected binding.
//
// Nothing here fails the frame. Problems are logged and reported; the worst
// outcome is a wrong image plus a report.
package executor

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/logx"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
	"github.com/roach88/framegraph/internal/resolver"
)

// ErrSameFrame is returned by CheckFrames when the previous and current
// frame indices select the same history instance.
var ErrSameFrame = errors.New("previous and current frame select the same instance")

// CheckFrames validates a prev/curr frame pair. History reads need the two
// frames to have different parity.
func CheckFrames(prev, curr uint32) error {
	if prev%2 == curr%2 {
		return fmt.Errorf("%w: prev=%d curr=%d", ErrSameFrame, prev, curr)
	}
	return nil
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.log = logx.OrNop(l) }
}

// WithReportSink sets the function that receives validation reports.
func WithReportSink(sink ReportSink) Option {
	return func(e *Executor) { e.sink = sink }
}

// Executor owns the physical instances of the loaded frame.
type Executor struct {
	reg   *registry.Registry
	res   *resolver.Resolver
	dev   Device
	alloc Allocator
	log   *slog.Logger
	sink  ReportSink

	frame *ir.Frame
	phys  []ir.PhysicalResource
	views []registry.View
	blobs []any
}

// New creates an executor issuing commands to dev and backing resources
// with alloc.
func New(reg *registry.Registry, res *resolver.Resolver, dev Device, alloc Allocator, opts ...Option) *Executor {
	e := &Executor{
		reg:   reg,
		res:   res,
		dev:   dev,
		alloc: alloc,
		log:   logx.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Frame returns the loaded frame, or nil.
func (e *Executor) Frame() *ir.Frame {
	return e.frame
}

// View returns the view backing physical instance p of the loaded frame.
func (e *Executor) View(p int32) (registry.View, bool) {
	if p < 0 || int(p) >= len(e.views) {
		return registry.View{}, false
	}
	return e.views[p], true
}

// Load makes frame the one Execute runs. Instances whose allocation did not
// change keep their view and contents; the rest are released and
// reallocated.
func (e *Executor) Load(frame *ir.Frame) {
	views := make([]registry.View, len(frame.Resources))
	blobs := make([]any, len(frame.Resources))
	kept := make([]bool, len(e.phys))

	for i, r := range frame.Resources {
		if i < len(e.phys) && sameAllocation(e.phys[i], r) {
			views[i], blobs[i] = e.views[i], e.blobs[i]
			kept[i] = true
		}
	}
	for i := range e.phys {
		if !kept[i] {
			e.release(i)
		}
	}
	for i, r := range frame.Resources {
		if i < len(kept) && kept[i] {
			continue
		}
		if r.Kind == registry.KindBlob {
			views[i] = registry.View{Resource: ids.InvalidRes, Instance: int32(i)}
			blobs[i] = newBlob(r.Blob)
			continue
		}
		views[i] = e.alloc.Allocate(r)
		e.log.Debug("allocated physical resource", "index", i, "names", r.Names, "kind", r.Kind)
	}

	e.frame = frame
	e.phys = frame.Resources
	e.views = views
	e.blobs = blobs
}

// Release frees every physical instance and unloads the frame.
func (e *Executor) Release() {
	for i := range e.phys {
		e.release(i)
	}
	e.frame, e.phys, e.views, e.blobs = nil, nil, nil, nil
}

func (e *Executor) release(i int) {
	if e.phys[i].Kind != registry.KindBlob {
		e.alloc.Release(e.views[i])
	}
}

func sameAllocation(a, b ir.PhysicalResource) bool {
	return a.Kind == b.Kind &&
		a.Texture == b.Texture &&
		a.Buffer == b.Buffer &&
		a.Blob.Tag == b.Blob.Tag &&
		a.History == b.History &&
		a.Parity == b.Parity
}

func newBlob(d registry.BlobDesc) any {
	if d.Factory == nil {
		return nil
	}
	return d.Factory()
}

// Execute runs the loaded frame once. prev and curr select which instance
// of every history resource is read and which is written; history reads
// bind nothing when they select the same one. Nodes whose multiplexing
// index lies outside extents are skipped, though their barriers are still
// issued so resource states stay consistent.
func (e *Executor) Execute(prev, curr uint32, extents multiplex.Extents, events ir.FrameEvents, deltas []ir.StateDelta) {
	f := e.frame
	if f == nil {
		e.log.Error("execute called before a frame was loaded")
		return
	}
	run := &frameRun{ex: e, prev: prev, curr: curr, history: true}
	if err := CheckFrames(prev, curr); err != nil {
		e.log.Error("history reads bind nothing this frame", "error", err)
		run.history = false
	}
	if len(deltas) != len(f.Order) {
		e.log.Error("state deltas do not match the schedule", "deltas", len(deltas), "nodes", len(f.Order))
		deltas = f.Deltas
	}

	run.applyEvents(events)

	var last *ir.Node
	skipped := false
	for pos, i := range f.Order {
		node := &f.Nodes[i]
		if pos < len(f.Barriers) {
			run.barriers(f.Barriers[pos])
		}
		if !multiplex.InsideExtents(node.Index, extents) {
			skipped = true
			continue
		}
		d := deltas[pos]
		if skipped {
			d = ir.Transition(last, node)
			skipped = false
		}
		run.execute(node, d)
		last = node
	}
	if last != nil {
		run.enter(&ir.Node{}).apply(ir.Transition(last, &ir.Node{}))
	}
}
