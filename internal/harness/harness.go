package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/framegraph/internal/desc"
	"github.com/roach88/framegraph/internal/engine"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
	"github.com/roach88/framegraph/internal/store"
	"github.com/roach88/framegraph/internal/testutil"
)

// Harness is the test execution engine.
// It drives one runtime against a recording device with a deterministic
// frame clock and run id, and records every frame in a store.
type Harness struct {
	rt      *engine.Runtime
	dev     *testutil.RecordingDevice
	store   *store.Store
	graph   *desc.Graph
	logger  *slog.Logger
	handles map[string]*engine.NodeHandle

	// drifts are pending shader variable rebinds, by node name.
	drifts   map[string][]DriftStep
	executed map[string]int
	ran      []string
	frame    *ir.Frame
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh runtime and a fresh in-memory
// database. Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Load the scenario's graph description
// 2. Install it into a runtime backed by testutil fakes
// 3. Apply each step, recording every executed frame
// 4. Evaluate assertions
//
// A step the runtime rejects fails the result; an error is returned only
// when the scenario cannot run at all.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, nil)
}

// RunWithLogger is Run with the runtime logging to logger. A nil logger
// discards output.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	g, err := desc.LoadFile(scenario.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}
	if problems := desc.Validate(g); len(problems) > 0 {
		return nil, fmt.Errorf("invalid graph: %w", problems[0])
	}
	for name, n := range scenario.Extents {
		d, ok := multiplex.ParseDim(name)
		if !ok {
			return nil, fmt.Errorf("unknown extents dimension %q", name)
		}
		if g.Extents == (multiplex.Extents{}) {
			g.Extents = multiplex.One()
		}
		g.Extents[d] = n
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	dev := testutil.NewRecordingDevice()
	rt := engine.New(
		engine.WithDevice(dev),
		engine.WithAllocator(testutil.NewAllocator()),
		engine.WithClock(testutil.NewDeterministicClock(0)),
		engine.WithRunIDs(testutil.NewFixedRunIDs(scenario.Name)),
		engine.WithLogger(logger),
	)
	defer rt.Close()

	h := &Harness{
		rt:       rt,
		dev:      dev,
		store:    st,
		graph:    g,
		logger:   logger,
		handles:  make(map[string]*engine.NodeHandle),
		drifts:   make(map[string][]DriftStep),
		executed: make(map[string]int),
	}

	result := NewResult()
	result.RunID = rt.RunID()

	handles, err := desc.Install(rt, g, desc.WithExec(h.exec))
	for _, nh := range handles {
		h.handles[nh.Name()] = nh
	}
	if err != nil {
		if len(handles) < len(g.Nodes) {
			return nil, fmt.Errorf("failed to install graph: %w", err)
		}
		// Rejected dynamic resolutions leave the graph usable.
		result.AddError(fmt.Sprintf("install: %v", err))
	}

	ctx := context.Background()
	err = st.WriteRun(ctx, store.Run{
		ID:            result.RunID,
		Source:        scenario.Graph,
		Extents:       rt.Extents(),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	})
	if err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		if err := h.apply(ctx, step, result); err != nil {
			var stepErr *stepError
			if !errors.As(err, &stepErr) {
				return nil, fmt.Errorf("steps[%d]: %w", i, err)
			}
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, stepErr.err))
		}
	}

	h.frame = rt.Compile()
	actx := &AssertionContext{
		Ctx:      ctx,
		Store:    st,
		RunID:    result.RunID,
		Runtime:  rt,
		Frame:    h.frame,
		Executed: h.executed,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// stepError is a step the runtime refused. It fails the scenario without
// aborting it.
type stepError struct {
	err error
}

func (e *stepError) Error() string { return e.err.Error() }

func refused(format string, args ...any) error {
	return &stepError{err: fmt.Errorf(format, args...)}
}

func (h *Harness) apply(ctx context.Context, st Step, result *Result) error {
	root := h.rt.Root()
	switch {
	case st.Run != nil:
		for range *st.Run {
			if err := h.runFrame(ctx, result); err != nil {
				return err
			}
		}

	case st.Unregister != "":
		nh, err := h.handle(st.Unregister)
		if err != nil {
			return err
		}
		if err := nh.Release(); err != nil {
			return refused("unregister %s: %v", st.Unregister, err)
		}
		delete(h.handles, nh.Name())

	case st.Register != "":
		n, ok := h.graph.Node(st.Register)
		if !ok {
			return refused("register %s: no such node in the description", st.Register)
		}
		nh, err := desc.Register(h.rt, n, desc.WithExec(h.exec))
		if err != nil {
			return refused("register: %v", err)
		}
		h.handles[nh.Name()] = nh

	case st.Enable != "", st.Disable != "":
		name, enabled := st.Enable, true
		if name == "" {
			name, enabled = st.Disable, false
		}
		nh, err := h.handle(name)
		if err != nil {
			return err
		}
		if err := h.rt.SetNodeEnabled(nh, enabled); err != nil {
			return refused("set enabled %s: %v", name, err)
		}

	case st.FillSlot != nil:
		root.FillSlot(st.FillSlot.Slot, root, st.FillSlot.Target)

	case st.ClearSlot != "":
		root.ClearSlot(st.ClearSlot)

	case st.SetResolution != nil:
		r := st.SetResolution
		err := root.SetResolution(r.Type, uint32(r.Width), uint32(r.Height))
		return expectRejection("set_resolution", err, r.ExpectError)

	case st.SetDynamicResolution != nil:
		r := st.SetDynamicResolution
		err := root.SetDynamicResolution(r.Type, r.Width, r.Height)
		return expectRejection("set_dynamic_resolution", err, r.ExpectError)

	case st.Drift != nil:
		name := nodeName(st.Drift.Node)
		h.drifts[name] = append(h.drifts[name], *st.Drift)
	}
	return nil
}

func expectRejection(op string, err error, want bool) error {
	switch {
	case want && err == nil:
		return refused("%s: expected the runtime to reject it", op)
	case !want && err != nil:
		return refused("%s: %v", op, err)
	}
	return nil
}

func (h *Harness) handle(name string) (*engine.NodeHandle, error) {
	nh, ok := h.handles[nodeName(name)]
	if !ok {
		return nil, refused("no registered node %s", name)
	}
	return nh, nil
}

// exec is the callback every described node runs: it counts the execution
// and applies pending drifts.
func (h *Harness) exec(path string) registry.ExecFunc {
	name := nodeName(path)
	return func(registry.ExecContext) {
		h.executed[name]++
		h.ran = append(h.ran, name)
		for _, d := range h.drifts[name] {
			h.dev.Drift(d.Var, registry.View{Handle: d.Handle})
		}
		delete(h.drifts, name)
	}
}

func (h *Harness) runFrame(ctx context.Context, result *Result) error {
	frame := h.rt.Compile()
	h.dev.Calls = nil
	h.ran = []string{}
	before := len(h.rt.Reports())

	if err := h.rt.RunNodes(ctx); err != nil {
		return fmt.Errorf("run frame: %w", err)
	}
	n := h.rt.Frame()
	reports := h.rt.Reports()[before:]

	rec, err := store.NewFrameRecord(result.RunID, n, frame)
	if err != nil {
		return fmt.Errorf("record frame %d: %w", n, err)
	}
	if _, err := h.store.RecordFrame(ctx, rec, reports, frame.Diagnostics); err != nil {
		return err
	}

	trace := FrameTrace{
		Frame:    n,
		Order:    frame.ScheduledLabels(),
		Calls:    append([]string{}, h.dev.Calls...),
		Executed: h.ran,
		Reports:  make([]string, 0, len(reports)),
	}
	for _, r := range reports {
		trace.Reports = append(trace.Reports, r.String())
	}
	result.Frames = append(result.Frames, trace)
	h.logger.Debug("scenario frame", "frame", n, "nodes", len(trace.Order), "reports", len(reports))
	return nil
}

// nodeName turns a description label or runtime path into a full node
// name.
func nodeName(path string) string {
	return "/" + strings.TrimPrefix(path, "/")
}
