package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/framegraph/internal/compiler"
	"github.com/roach88/framegraph/internal/executor"
	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/logx"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
	"github.com/roach88/framegraph/internal/resolver"
	"github.com/roach88/framegraph/internal/stage"
	"github.com/roach88/framegraph/internal/tracker"
)

// Runtime owns one frame graph.
type Runtime struct {
	names    *ids.Names
	reg      *registry.Registry
	tracker  *tracker.Tracker
	resolver *resolver.Resolver
	compiler *compiler.Compiler
	exec     *executor.Executor
	stages   *stage.Tracker
	log      *slog.Logger

	dev   executor.Device
	alloc executor.Allocator
	sink  executor.ReportSink
	clock Clock
	runID string

	shuffleSeed *uint64
	extents     multiplex.Extents

	frame   *ir.Frame
	loaded  *ir.Frame
	pending ir.FrameEvents
	reports []executor.Report
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger every component logs to. The default discards
// output.
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) { rt.log = logx.OrNop(l) }
}

// WithDevice sets the device frames execute against.
func WithDevice(d executor.Device) Option {
	return func(rt *Runtime) { rt.dev = d }
}

// WithAllocator sets the allocator backing physical resources.
func WithAllocator(a executor.Allocator) Option {
	return func(rt *Runtime) { rt.alloc = a }
}

// WithReportSink sets a function called with every validation report, in
// addition to the runtime keeping them for Reports.
func WithReportSink(sink executor.ReportSink) Option {
	return func(rt *Runtime) { rt.sink = sink }
}

// WithShuffleSeed declares pending nodes in a seeded random order.
func WithShuffleSeed(seed uint64) Option {
	return func(rt *Runtime) { rt.shuffleSeed = &seed }
}

// WithExtents sets the initial multiplexing extents. The default is one
// iteration in every dimension.
func WithExtents(e multiplex.Extents) Option {
	return func(rt *Runtime) { rt.extents = e }
}

// WithClock sets the frame clock. The default is a FrameClock at 0.
func WithClock(c Clock) Option {
	return func(rt *Runtime) { rt.clock = c }
}

// WithRunIDs sets the generator of the runtime's run id. The default is
// UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(rt *Runtime) { rt.runID = g.Generate() }
}

// New creates a runtime with an empty graph.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		log:     logx.Nop(),
		clock:   NewFrameClock(),
		extents: multiplex.One(),
		stages:  stage.NewTracker(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.runID == "" {
		rt.runID = UUIDv7Generator{}.Generate()
	}

	rt.names = ids.New()
	rt.reg = registry.New(rt.names)

	trackerOpts := []tracker.Option{tracker.WithLogger(rt.log)}
	if rt.shuffleSeed != nil {
		trackerOpts = append(trackerOpts, tracker.WithShuffleSeed(*rt.shuffleSeed))
	}
	rt.tracker = tracker.New(rt.reg, trackerOpts...)
	rt.resolver = resolver.New(rt.reg, rt.log)
	rt.compiler = compiler.New(rt.reg, rt.resolver,
		compiler.WithLogger(rt.log),
		compiler.WithExtents(rt.extents),
	)
	rt.exec = executor.New(rt.reg, rt.resolver, rt.dev, rt.alloc,
		executor.WithLogger(rt.log),
		executor.WithReportSink(rt.collect),
	)
	return rt
}

// RunID returns the id this runtime stamps on stored frames and reports.
func (rt *Runtime) RunID() string {
	return rt.runID
}

// Names returns the name tables. Ids from it index Resolve results.
func (rt *Runtime) Names() *ids.Names {
	return rt.names
}

// Root returns the root namespace.
func (rt *Runtime) Root() NameSpace {
	return NameSpace{rt: rt, id: ids.Root}
}

// SetExtents changes the multiplexing extents. Nodes are re-expanded on the
// next compilation.
func (rt *Runtime) SetExtents(e multiplex.Extents) {
	if e == rt.extents {
		return
	}
	rt.extents = e
	rt.compiler.SetExtents(e)
	rt.stages.MarkDirty(stage.IRGraphBuild)
}

// Extents returns the current multiplexing extents.
func (rt *Runtime) Extents() multiplex.Extents {
	return rt.extents
}

// SetNodeEnabled enables or disables a registered node. A disabled node is
// treated as absent by compilation but keeps its registration.
func (rt *Runtime) SetNodeEnabled(h *NodeHandle, enabled bool) error {
	n, err := rt.live(h)
	if err != nil {
		return err
	}
	if n.Disabled == !enabled {
		return nil
	}
	n.Disabled = !enabled
	rt.stages.MarkDirty(stage.DependencyDataCalculation)
	rt.log.Debug("node enabled changed", "node", rt.names.NodeName(h.uid.ID), "enabled", enabled)
	return nil
}

// WipeOwner unregisters every node registered through a namespace carrying
// owner.
func (rt *Runtime) WipeOwner(owner string) error {
	if err := rt.tracker.WipeContextNodes(owner); err != nil {
		return fmt.Errorf("wipe owner %q: %w", owner, err)
	}
	rt.stages.MarkDirty(stage.NodeDeclarationUpdate)
	return nil
}

// ResetAllocator releases every physical resource. History instances are
// initialised again on the next frame.
func (rt *Runtime) ResetAllocator() {
	rt.exec.Release()
	rt.loaded = nil
	rt.compiler.ResetHistory()
	rt.stages.MarkDirty(stage.HistoryInitialization)
}

// Close releases every physical resource.
func (rt *Runtime) Close() {
	rt.exec.Release()
	rt.loaded = nil
}

// Compile runs every dirty stage and returns the compiled frame. Nothing
// runs when the graph is up to date.
func (rt *Runtime) Compile() *ir.Frame {
	if rt.stages.UpToDate() && rt.frame != nil {
		return rt.frame
	}
	history := false
	rt.stages.Run(func(s stage.Stage) {
		switch s {
		case stage.NodeDeclarationUpdate:
			rt.tracker.UpdateNodeDeclarations()
		case stage.NameResolution:
			rt.reg.Resize()
			rt.resolver.Update()
		default:
			if s == stage.HistoryInitialization {
				history = true
			}
			rt.compiler.RunStage(s)
		}
	})
	rt.frame = rt.compiler.Frame()
	if history {
		rt.pending.HistoryInit = append(rt.pending.HistoryInit, rt.frame.Events.HistoryInit...)
	}
	rt.log.Debug("frame compiled",
		"nodes", len(rt.frame.Order),
		"resources", len(rt.frame.Resources),
		"diagnostics", len(rt.frame.Diagnostics),
	)
	return rt.frame
}

// Err joins every error-severity diagnostic of the last compilation.
func (rt *Runtime) Err() error {
	return rt.compiler.Err()
}

// Diagnostics returns the diagnostics of the last compilation.
func (rt *Runtime) Diagnostics() []ir.Diagnostic {
	if rt.frame == nil {
		return nil
	}
	return rt.frame.Diagnostics
}

// RunNodes compiles if needed and executes one frame. Structural edits are
// refused while it runs.
func (rt *Runtime) RunNodes(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run nodes: %w", err)
	}
	if rt.dev == nil || rt.alloc == nil {
		return ErrNoDevice
	}

	frame := rt.Compile()
	if frame != rt.loaded {
		rt.exec.Load(frame)
		rt.loaded = frame
	}

	curr := rt.clock.Next()
	prev := curr - 1
	events := rt.pending
	rt.pending = ir.FrameEvents{}

	rt.tracker.LockChanges()
	defer rt.tracker.UnlockChanges()

	rt.exec.Execute(prev, curr, rt.extents, events, frame.Deltas)
	rt.log.Debug("frame executed", "frame", curr, "nodes", len(frame.Order))
	return nil
}

// Frame returns the index of the last executed frame.
func (rt *Runtime) Frame() uint32 {
	return rt.clock.Current()
}

// Reports returns every validation report so far, oldest first.
func (rt *Runtime) Reports() []executor.Report {
	return append([]executor.Report(nil), rt.reports...)
}

func (rt *Runtime) collect(r executor.Report) {
	rt.reports = append(rt.reports, r)
	if rt.sink != nil {
		rt.sink(r)
	}
}

// Resolve returns the full name that path resolves to as of the last
// compilation. Relative paths start at the root.
func (rt *Runtime) Resolve(path string) (string, bool) {
	id, ok := rt.names.LookupResource(ids.Root, path)
	if !ok || !rt.resolver.Resolved(id) {
		return "", false
	}
	return rt.names.ResourceName(rt.resolver.Resolve(id)), true
}

// View returns the view backing the current-frame instance of a resource,
// as of the last executed frame.
func (rt *Runtime) View(path string) (registry.View, bool) {
	id, ok := rt.names.LookupResource(ids.Root, path)
	if !ok || rt.loaded == nil {
		return registry.View{}, false
	}
	resolved := rt.resolver.Binding(id)
	for i := range rt.loaded.Nodes {
		for _, b := range rt.loaded.Nodes[i].Bindings {
			if b.Resolved != resolved || b.History || b.External || !b.Bound() {
				continue
			}
			return rt.exec.View(b.Physical[rt.clock.Current()%2])
		}
	}
	return registry.View{}, false
}

// live returns the record behind a handle, or a stale handle error.
func (rt *Runtime) live(h *NodeHandle) (*registry.NodeData, error) {
	if h == nil || h.rt != rt {
		return nil, &RuntimeError{Code: ErrCodeStaleHandle, Message: "handle does not belong to this runtime"}
	}
	n := rt.reg.Node(h.uid.ID)
	if h.released || !n.Live() || n.Generation != h.uid.Generation {
		return nil, &RuntimeError{
			Code:    ErrCodeStaleHandle,
			Message: fmt.Sprintf("node was unregistered (generation %d, live %d)", h.uid.Generation, n.Generation),
			Node:    rt.names.NodeName(h.uid.ID),
		}
	}
	return n, nil
}
