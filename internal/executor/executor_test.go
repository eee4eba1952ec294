package executor_test

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framegraph/internal/compiler"
	"github.com/roach88/framegraph/internal/executor"
	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
	"github.com/roach88/framegraph/internal/resolver"
	"github.com/roach88/framegraph/internal/testutil"
)

// rig compiles registry state written directly, the way the engine's
// request API would write it, and executes it on a recording device.
type rig struct {
	names   *ids.Names
	reg     *registry.Registry
	res     *resolver.Resolver
	comp    *compiler.Compiler
	dev     *testutil.RecordingDevice
	alloc   *testutil.Allocator
	ex      *executor.Executor
	frame   *ir.Frame
	reports []executor.Report
}

func newRig(opts ...compiler.Option) *rig {
	r := &rig{names: ids.New()}
	r.reg = registry.New(r.names)
	r.res = resolver.New(r.reg, nil)
	r.comp = compiler.New(r.reg, r.res, opts...)
	r.dev = testutil.NewRecordingDevice()
	r.alloc = testutil.NewAllocator()
	r.ex = executor.New(r.reg, r.res, r.dev, r.alloc,
		executor.WithReportSink(func(rep executor.Report) { r.reports = append(r.reports, rep) }))
	return r
}

func (r *rig) node(path string, se registry.SideEffects, exec registry.ExecFunc) ids.NodeID {
	id := r.names.Node(ids.Root, path)
	r.reg.Resize()
	n := r.reg.Node(id)
	n.Declare = func(ids.NodeID, *registry.Registry) registry.ExecFunc { return exec }
	n.Declared = true
	n.Exec = exec
	n.SideEffects = se
	return id
}

func (r *rig) resource(path string) ids.ResID {
	id := r.names.Resource(ids.Root, path)
	r.reg.Resize()
	return id
}

func (r *rig) texture(node ids.NodeID, path string) ids.ResID {
	id := r.resource(path)
	rec := r.reg.Resource(id)
	rec.Kind = registry.KindTexture
	rec.Origin = registry.OriginCreated
	rec.Producer = node
	rec.Texture = registry.TextureDesc{
		Format:  gputypes.TextureFormatRGBA8Unorm,
		Size:    gputypes.Extent3D{Width: 16, Height: 16, DepthOrArrayLayers: 1},
		AutoRes: ids.InvalidAutoResType,
	}
	n := r.reg.Node(node)
	n.Created = append(n.Created, id)
	n.AddRequest(id, registry.ResourceRequest{Access: registry.AccessReadWrite, Usage: registry.UsageColorAttachment})
	return id
}

func (r *rig) read(node ids.NodeID, path string, history bool) ids.ResID {
	id := r.resource(path)
	n := r.reg.Node(node)
	if !history {
		n.Read = append(n.Read, id)
	}
	n.AddRequest(id, registry.ResourceRequest{
		Access: registry.AccessReadOnly, Usage: registry.UsageShaderResource, History: history,
	})
	return id
}

func (r *rig) load() *ir.Frame {
	r.reg.Resize()
	r.res.Update()
	r.frame = r.comp.Compile()
	r.ex.Load(r.frame)
	return r.frame
}

func (r *rig) run(prev, curr uint32, ext multiplex.Extents) {
	r.ex.Execute(prev, curr, ext, r.frame.Events, r.frame.Deltas)
}

func TestExecute_DriftedShaderVarReportedOnce(t *testing.T) {
	r := newRig()
	var y ids.ResID
	a := r.node("a", registry.SideEffectsExternal, func(ctx registry.ExecContext) {
		v, ok := ctx.View(y, false)
		require.True(t, ok)
		r.dev.Drift("V", v)
	})
	x := r.texture(a, "x")
	y = r.texture(a, "y")
	r.reg.Node(a).ShaderVars = map[string]registry.ResourceRef{"V": {Res: x}}

	var seenByB registry.View
	b := r.node("b", registry.SideEffectsExternal, func(registry.ExecContext) {
		seenByB, _ = r.dev.ShaderVar("V")
	})
	r.read(b, "x", false)

	r.load()
	r.run(0, 1, multiplex.One())

	require.Len(t, r.reports, 1)
	rep := r.reports[0]
	assert.Equal(t, "/a", rep.Node)
	assert.Equal(t, executor.ReportShaderVar, rep.Kind)
	assert.Equal(t, "V", rep.Slot)
	assert.Equal(t, "/x", rep.ExpectedName)
	assert.Equal(t, "/y", rep.ObservedName)
	assert.True(t, rep.Bound)
	assert.Equal(t, uint32(1), rep.Frame)
	assert.Contains(t, rep.String(), "node /a left shader_var V bound to /y")

	assert.Equal(t, x, seenByB.Resource, "the expected binding is restored before the next node")
	assert.Equal(t, rep.Expected, seenByB)
}

func TestExecute_NoneNodesAreNotValidated(t *testing.T) {
	r := newRig()
	n := r.node("scratch", registry.SideEffectsNone, func(registry.ExecContext) {
		r.dev.Drift("V", registry.View{Handle: 99})
	})
	x := r.texture(n, "x")
	r.reg.Node(n).ShaderVars = map[string]registry.ResourceRef{"V": {Res: x}}
	c := r.node("present", registry.SideEffectsExternal, nil)
	r.read(c, "x", false)

	r.load()
	r.run(0, 1, multiplex.One())

	assert.Empty(t, r.reports)
}

func TestExecute_RenderTargetDriftRestored(t *testing.T) {
	r := newRig()
	var other ids.ResID
	slot := executor.Slot{Kind: executor.SlotColor}
	a := r.node("draw", registry.SideEffectsExternal, func(ctx registry.ExecContext) {
		v, _ := ctx.View(other, false)
		r.dev.BindRenderTarget(slot, v)
	})
	color := r.texture(a, "color")
	other = r.texture(a, "other")
	r.reg.Node(a).RenderPass = &registry.RenderPassRequest{
		Colors: []registry.Attachment{{Ref: registry.ResourceRef{Res: color}, Load: gputypes.LoadOpClear}},
	}

	r.load()
	r.run(0, 1, multiplex.One())

	require.Len(t, r.reports, 1)
	assert.Equal(t, executor.ReportRenderTarget, r.reports[0].Kind)
	assert.Equal(t, "color0", r.reports[0].Slot)
	assert.Equal(t, "/color", r.reports[0].ExpectedName)
	assert.Equal(t, "/other", r.reports[0].ObservedName)

	got, ok := r.dev.RenderTarget(slot)
	assert.False(t, ok, "the pass ended after the last node")
	assert.Equal(t, registry.View{}, got)
	assert.Equal(t, 2, r.dev.Count("bind_target"))
}

func TestExecute_HistoryAlternatesInstances(t *testing.T) {
	r := newRig()
	type seen struct{ written, history registry.View }
	var frames []seen
	var accum ids.ResID
	taa := r.node("taa", registry.SideEffectsExternal, func(ctx registry.ExecContext) {
		w, _ := ctx.View(accum, false)
		h, _ := ctx.View(accum, true)
		frames = append(frames, seen{w, h})
	})
	accum = r.texture(taa, "accum")
	r.reg.Resources[accum].History = registry.HistoryClearZeroOnFirstFrame
	r.read(taa, "accum", true)

	r.load()
	r.run(0, 1, multiplex.One())
	r.ex.Execute(1, 2, multiplex.One(), ir.FrameEvents{}, r.frame.Deltas)

	require.Len(t, frames, 2)
	assert.NotEqual(t, frames[0].written.Handle, frames[0].history.Handle)
	assert.Equal(t, frames[0].written.Handle, frames[1].history.Handle, "a written frame is read one frame later")
	assert.Equal(t, frames[0].history.Handle, frames[1].written.Handle)
	assert.Equal(t, 2, r.dev.Count("clear"), "both instances are cleared on the first frame")
}

func TestExecute_SameFrameBindsNoHistory(t *testing.T) {
	r := newRig()
	var accum ids.ResID
	var historyBound, currentBound bool
	taa := r.node("taa", registry.SideEffectsExternal, func(ctx registry.ExecContext) {
		_, currentBound = ctx.View(accum, false)
		_, historyBound = ctx.View(accum, true)
	})
	accum = r.texture(taa, "accum")
	r.reg.Resources[accum].History = registry.HistoryDiscardOnFirstFrame
	r.read(taa, "accum", true)

	r.load()
	r.run(3, 3, multiplex.One())

	assert.True(t, currentBound)
	assert.False(t, historyBound)
	assert.True(t, errors.Is(executor.CheckFrames(3, 5), executor.ErrSameFrame))
	assert.NoError(t, executor.CheckFrames(3, 4))
}

func TestExecute_SkipsIndicesOutsideRuntimeExtents(t *testing.T) {
	r := newRig(compiler.WithExtents(multiplex.Extents{1, 1, 2, 1}))
	var ran []multiplex.Index
	v := r.node("view", registry.SideEffectsExternal, func(ctx registry.ExecContext) {
		ran = append(ran, ctx.Index())
	})
	r.reg.Node(v).Multiplexing = multiplex.ModeViewport

	r.load()
	r.run(0, 1, multiplex.Extents{1, 1, 1, 1})
	assert.Equal(t, []multiplex.Index{{0, 0, 0, 0}}, ran)

	ran = nil
	r.run(1, 2, multiplex.Extents{1, 1, 2, 1})
	assert.Equal(t, []multiplex.Index{{0, 0, 0, 0}, {0, 0, 1, 0}}, ran)
}

func TestExecute_ExternalProviderCalledPerIndex(t *testing.T) {
	r := newRig(compiler.WithExtents(multiplex.Extents{1, 1, 2, 1}))
	host := r.node("host", registry.SideEffectsInternal, nil)
	back := r.resource("backbuffer")
	rec := r.reg.Resource(back)
	rec.Kind = registry.KindTexture
	rec.Origin = registry.OriginImported
	rec.Producer = host
	rec.External = func(idx multiplex.Index) registry.View {
		return registry.View{Instance: registry.ExternalInstance, Handle: 100 + uint64(idx[multiplex.DimViewport])}
	}
	r.reg.Node(host).Created = []ids.ResID{back}
	r.reg.Node(host).Multiplexing = multiplex.ModeViewport

	var handles []uint64
	p := r.node("present", registry.SideEffectsExternal, func(ctx registry.ExecContext) {
		v, ok := ctx.View(back, false)
		require.True(t, ok)
		handles = append(handles, v.Handle)
	})
	r.reg.Node(p).Multiplexing = multiplex.ModeViewport
	r.read(p, "backbuffer", false)

	frame := r.load()
	assert.Empty(t, frame.Resources, "imported resources are never allocated")
	r.run(0, 1, multiplex.Extents{1, 1, 2, 1})

	assert.Equal(t, []uint64{100, 101}, handles)
}

func TestExecute_MergedPassBeginsOnce(t *testing.T) {
	r := newRig()
	a := r.node("opaque", registry.SideEffectsInternal, nil)
	color := r.texture(a, "color")
	pass := func() *registry.RenderPassRequest {
		return &registry.RenderPassRequest{Colors: []registry.Attachment{
			{Ref: registry.ResourceRef{Res: color}, Load: gputypes.LoadOpLoad, Store: gputypes.StoreOpStore},
		}}
	}
	r.reg.Node(a).RenderPass = pass()
	b := r.node("transparent", registry.SideEffectsExternal, nil)
	bn := r.reg.Node(b)
	bn.Modified = []ids.ResID{color}
	bn.AddRequest(color, registry.ResourceRequest{Access: registry.AccessReadWrite, Usage: registry.UsageColorAttachment})
	bn.RenderPass = pass()
	bn.BlockLayers = []registry.BlockLayer{{Block: "object", Layer: 1}}

	r.load()
	r.run(0, 1, multiplex.One())

	assert.Equal(t, []string{
		"begin_pass color0=#1:Load",
		"push object=1",
		"end_pass",
		"pop object",
	}, r.dev.Calls)
	assert.Empty(t, r.reports)
}

func TestExecute_BeforeLoadIsNoOp(t *testing.T) {
	r := newRig()
	r.ex.Execute(0, 1, multiplex.One(), ir.FrameEvents{}, nil)
	assert.Empty(t, r.dev.Calls)
}

func TestLoad_KeepsUnchangedAllocations(t *testing.T) {
	r := newRig()
	n := r.node("n", registry.SideEffectsExternal, nil)
	tex := r.texture(n, "t")

	r.load()
	r.load()
	assert.Empty(t, r.alloc.Released)
	assert.Len(t, r.alloc.Live, 1)

	r.reg.Resources[tex].Texture.Size.Width = 32
	r.load()
	assert.Equal(t, []uint64{1}, r.alloc.Released)
	v, ok := r.ex.View(0)
	require.True(t, ok)
	assert.Equal(t, uint64(2), v.Handle)

	r.ex.Release()
	assert.Empty(t, r.alloc.Live)
	assert.Nil(t, r.ex.Frame())
}

func TestReport_StringWithNothingBound(t *testing.T) {
	rep := executor.Report{Node: "/a", Kind: executor.ReportShaderVar, Slot: "V", ExpectedName: "/x"}
	assert.Equal(t, "node /a left shader_var V bound to nothing, expected /x (mip 0, layer 0)", rep.String())
}
