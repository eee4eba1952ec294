// Package compiler turns the declared graph into an executable frame.
//
// Compilation is split into the stages of package stage, and each stage
// only reads what the stages before it produced, so an edit re-runs the
// stages it invalidates and nothing earlier:
//
//	DependencyDataCalculation  pruning, edges, cycles, culling
//	IRGraphBuild               multiplexed instances and their bindings
//	NodeScheduling             execution order
//	StateDeltaRecalculation    required state and per-node deltas
//	ResourceScheduling         lifetimes, aliasing, usage, barriers
//	HistoryInitialization      first-frame events for history instances
//
// NodeDeclarationUpdate and NameResolution belong to the tracker and the
// resolver; RunStage ignores them.
package compiler

import (
	"errors"
	"log/slog"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/logx"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
	"github.com/roach88/framegraph/internal/resolver"
	"github.com/roach88/framegraph/internal/stage"
)

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.log = logx.OrNop(l) }
}

// WithExtents sets the initial multiplexing extents.
func WithExtents(e multiplex.Extents) Option {
	return func(c *Compiler) { c.extents = e }
}

// span is the half-open range of IR indices one node expanded into.
type span struct {
	start, end int
}

// Compiler holds the output of every stage. The frame returned by Frame is
// valid until the next RunStage.
type Compiler struct {
	reg *registry.Registry
	res *resolver.Resolver
	log *slog.Logger

	extents multiplex.Extents

	deps     depsState
	spans    map[ids.NodeID]span
	virtuals []*virtual
	frame    ir.Frame

	depsDiags []ir.Diagnostic
	resDiags  []ir.Diagnostic
	missing   []*MissingResourceError

	knownHistory map[string]bool
}

// New creates a compiler reading reg through res. The resolver must be
// updated before the dependency stage runs.
func New(reg *registry.Registry, res *resolver.Resolver, opts ...Option) *Compiler {
	c := &Compiler{
		reg:          reg,
		res:          res,
		log:          logx.Nop(),
		extents:      multiplex.One(),
		spans:        make(map[ids.NodeID]span),
		knownHistory: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetExtents changes the multiplexing extents. Callers mark IRGraphBuild
// dirty afterwards.
func (c *Compiler) SetExtents(e multiplex.Extents) {
	c.extents = e
}

// Extents returns the multiplexing extents the IR is built for.
func (c *Compiler) Extents() multiplex.Extents {
	return c.extents
}

// ResetHistory forgets which history instances were initialised, so the
// next HistoryInitialization emits events for all of them. Used after the
// allocator drops its memory.
func (c *Compiler) ResetHistory() {
	c.knownHistory = make(map[string]bool)
}

// RunStage runs one compiler stage.
func (c *Compiler) RunStage(s stage.Stage) {
	switch s {
	case stage.DependencyDataCalculation:
		c.calculateDependencies()
	case stage.IRGraphBuild:
		c.buildIR()
	case stage.NodeScheduling:
		c.scheduleNodes()
	case stage.StateDeltaRecalculation:
		c.calculateStateDeltas()
	case stage.ResourceScheduling:
		c.scheduleResources()
	case stage.HistoryInitialization:
		c.initHistory()
	}
}

// Compile runs every compiler stage and returns the frame. The tracker and
// resolver must already be up to date.
func (c *Compiler) Compile() *ir.Frame {
	for s := stage.DependencyDataCalculation; s < stage.UpToDate; s++ {
		c.RunStage(s)
	}
	return c.Frame()
}

// Frame returns the compiled frame as of the last stage run.
func (c *Compiler) Frame() *ir.Frame {
	f := c.frame
	f.Extents = c.extents
	f.Diagnostics = make([]ir.Diagnostic, 0, len(c.depsDiags)+len(c.resDiags))
	f.Diagnostics = append(f.Diagnostics, c.depsDiags...)
	f.Diagnostics = append(f.Diagnostics, c.resDiags...)
	return &f
}

// Err joins every error-severity diagnostic of the last compilation.
// Missing resources come back as *MissingResourceError.
func (c *Compiler) Err() error {
	var errs []error
	for _, m := range c.missing {
		errs = append(errs, m)
	}
	for _, d := range c.Frame().Diagnostics {
		if d.Severity == ir.SeverityError && d.Code != CodeMissingResource {
			errs = append(errs, d)
		}
	}
	return errors.Join(errs...)
}

func (c *Compiler) report(list *[]ir.Diagnostic, d ir.Diagnostic) {
	*list = append(*list, d)
	attrs := []any{"code", d.Code}
	if d.Node != "" {
		attrs = append(attrs, "node", d.Node)
	}
	if d.Resource != "" {
		attrs = append(attrs, "resource", d.Resource)
	}
	if d.Severity == ir.SeverityError {
		c.log.Error(d.Message, attrs...)
	} else {
		c.log.Warn(d.Message, attrs...)
	}
}

func (c *Compiler) nodeName(id ids.NodeID) string {
	return c.reg.Names.NodeName(id)
}

func (c *Compiler) resName(id ids.ResID) string {
	return c.reg.Names.ResourceName(id)
}
