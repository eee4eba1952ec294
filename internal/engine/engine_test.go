package engine

import (
	"context"
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
	"github.com/roach88/framegraph/internal/testutil"
	"github.com/roach88/framegraph/internal/tracker"
)

type testRuntime struct {
	*Runtime
	dev   *testutil.RecordingDevice
	alloc *testutil.Allocator
}

func newTestRuntime(t *testing.T, opts ...Option) *testRuntime {
	t.Helper()
	dev := testutil.NewRecordingDevice()
	alloc := testutil.NewAllocator()
	opts = append([]Option{
		WithDevice(dev),
		WithAllocator(alloc),
		WithRunIDs(testutil.NewFixedRunIDs("")),
	}, opts...)
	rt := New(opts...)
	t.Cleanup(rt.Close)
	return &testRuntime{Runtime: rt, dev: dev, alloc: alloc}
}

func (rt *testRuntime) register(t *testing.T, ns NameSpace, name string, declare DeclareFunc) *NodeHandle {
	t.Helper()
	h, err := ns.RegisterNode(name, "engine_test", declare)
	require.NoError(t, err)
	return h
}

func (rt *testRuntime) run(t *testing.T) {
	t.Helper()
	require.NoError(t, rt.RunNodes(context.Background()))
}

func smallTexture() TextureSpec {
	return TextureSpec{
		Format: gputypes.TextureFormatRGBA8Unorm,
		Size:   gputypes.Extent3D{Width: 32, Height: 32, DepthOrArrayLayers: 1},
	}
}

func diagCodes(diags []ir.Diagnostic) []string {
	out := []string{}
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

// chain registers a creates tex, b modifies it, c renames it to tex2 and d
// reads tex2 with external side effects.
func chain(t *testing.T, rt *testRuntime) map[string]*NodeHandle {
	root := rt.Root()
	return map[string]*NodeHandle{
		"a": rt.register(t, root, "a", func(r *Request) registry.ExecFunc {
			r.CreateTexture("tex", smallTexture()).Usage(registry.UsageColorAttachment)
			return nil
		}),
		"b": rt.register(t, root, "b", func(r *Request) registry.ExecFunc {
			r.Modify("tex").Usage(registry.UsageUnorderedAccess).AtStage(registry.StageCompute)
			return nil
		}),
		"c": rt.register(t, root, "c", func(r *Request) registry.ExecFunc {
			r.Rename("tex", "tex2")
			return nil
		}),
		"d": rt.register(t, root, "d", func(r *Request) registry.ExecFunc {
			r.SetSideEffects(registry.SideEffectsExternal)
			r.Read("tex2").Usage(registry.UsageShaderResource).AtStage(registry.StagePixel)
			return nil
		}),
	}
}

func TestRuntime_CreateModifyRenameRead(t *testing.T) {
	rt := newTestRuntime(t)
	chain(t, rt)

	frame := rt.Compile()

	require.NoError(t, rt.Err())
	assert.Equal(t, []string{"/a", "/b", "/c", "/d"}, frame.ScheduledLabels())
	require.Len(t, frame.Resources, 1)
	assert.Equal(t, []string{"/tex"}, frame.Resources[0].Names)

	name, ok := rt.Resolve("tex2")
	require.True(t, ok)
	assert.Equal(t, "/tex2", name)
}

func TestRuntime_ResolveFollowsRenameChain(t *testing.T) {
	rt := newTestRuntime(t)
	nodes := chain(t, rt)
	rt.Compile()

	tex, ok := rt.names.LookupResource(ids.Root, "tex")
	require.True(t, ok)
	tex2, ok := rt.names.LookupResource(ids.Root, "tex2")
	require.True(t, ok)
	assert.Equal(t, tex2, rt.resolver.Resolve(tex))
	assert.Equal(t, tex, rt.resolver.Binding(tex))

	name, ok := rt.Resolve("tex")
	require.True(t, ok)
	assert.Equal(t, "/tex2", name)

	require.NoError(t, nodes["c"].Release())
	rt.Compile()
	name, ok = rt.Resolve("tex")
	require.True(t, ok)
	assert.Equal(t, "/tex", name)
}

func TestRuntime_UnregisteringRenamerEvictsChain(t *testing.T) {
	rt := newTestRuntime(t)
	nodes := chain(t, rt)
	rt.Compile()

	require.NoError(t, nodes["c"].Release())
	frame := rt.Compile()

	assert.Empty(t, frame.ScheduledLabels())
	assert.Equal(t, []string{"/d"}, frame.Pruned)
	assert.Equal(t, []string{"/a", "/b"}, frame.Culled)
	assert.True(t, compiler.IsMissingResource(rt.Err()))
	_, ok := rt.Resolve("tex2")
	assert.False(t, ok)

	// The creator was redeclared, so the chain comes back with a new renamer.
	root := rt.Root()
	rt.register(t, root, "c", func(r *Request) registry.ExecFunc {
		r.Rename("tex", "tex2")
		return nil
	})
	frame = rt.Compile()
	require.NoError(t, rt.Err())
	assert.Equal(t, []string{"/a", "/b", "/c", "/d"}, frame.ScheduledLabels())
}

func TestRuntime_HistoryPolicySurvivesEviction(t *testing.T) {
	rt := newTestRuntime(t)
	root := rt.Root()
	a := rt.register(t, root, "a", func(r *Request) registry.ExecFunc {
		r.CreateTexture("acc", smallTexture()).WithHistory(registry.HistoryClearZeroOnFirstFrame)
		return nil
	})
	rt.Compile()
	require.NoError(t, a.Release())
	rt.Compile()

	id, ok := rt.Names().LookupResource(0, "acc")
	require.True(t, ok)
	assert.Equal(t, registry.HistoryClearZeroOnFirstFrame, rt.reg.Resource(id).History)
	assert.False(t, rt.reg.Resource(id).Produced())
}

func TestRuntime_DynamicResolutionRejected(t *testing.T) {
	rt := newTestRuntime(t)
	root := rt.Root()
	require.NoError(t, root.SetResolution("main", 1920, 1080))

	err := root.SetDynamicResolution("main", 3000, 1080)
	require.Error(t, err)
	assert.True(t, IsInvalidResolution(err))
	res, ok := root.DynamicResolution("main")
	require.True(t, ok)
	assert.Equal(t, registry.Resolution{Width: 1920, Height: 1080}, res)

	require.NoError(t, root.SetDynamicResolution("main", 960, 540))
	res, _ = root.DynamicResolution("main")
	assert.Equal(t, registry.Resolution{Width: 960, Height: 540}, res)

	for _, bad := range [][2]int{{0, 540}, {-1, 540}, {960, -5}} {
		err := root.SetDynamicResolution("main", bad[0], bad[1])
		assert.True(t, IsInvalidResolution(err), "%v", bad)
	}
	res, _ = root.DynamicResolution("main")
	assert.Equal(t, registry.Resolution{Width: 960, Height: 540}, res)
}

func TestRuntime_DynamicResolutionUnknownType(t *testing.T) {
	rt := newTestRuntime(t)
	err := rt.Root().SetDynamicResolution("half", 10, 10)

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeUnknownResolution, re.Code)
}

func TestRuntime_StaticResolutionClampsDynamic(t *testing.T) {
	rt := newTestRuntime(t)
	root := rt.Root()
	require.NoError(t, root.SetResolution("main", 1920, 1080))
	require.NoError(t, root.SetDynamicResolution("main", 1600, 900))
	require.NoError(t, root.SetResolution("main", 1280, 720))

	res, _ := root.DynamicResolution("main")
	assert.Equal(t, registry.Resolution{Width: 1280, Height: 720}, res)

	assert.True(t, IsInvalidResolution(root.SetResolution("main", 0, 720)))
}

func TestRuntime_AutoResolutionTexture(t *testing.T) {
	rt := newTestRuntime(t)
	root := rt.Root()
	require.NoError(t, root.SetResolution("main", 1920, 1080))
	rt.register(t, root, "a", func(r *Request) registry.ExecFunc {
		r.SetSideEffects(registry.SideEffectsExternal)
		r.CreateTexture("half", TextureSpec{Format: gputypes.TextureFormatRGBA8Unorm, AutoRes: "main", Scale: 0.5})
		return nil
	})

	frame := rt.Compile()
	require.Len(t, frame.Resources, 1)
	assert.Equal(t, uint32(960), frame.Resources[0].Texture.Size.Width)
	assert.Equal(t, uint32(540), frame.Resources[0].Texture.Size.Height)

	require.NoError(t, root.SetResolution("main", 1280, 720))
	frame = rt.Compile()
	assert.Equal(t, uint32(640), frame.Resources[0].Texture.Size.Width)
}

func TestRuntime_NoneNodesCulledExternalKept(t *testing.T) {
	for _, tc := range []struct {
		name   string
		reader registry.SideEffects
		order  []string
		culled []string
	}{
		{"none", registry.SideEffectsNone, []string{}, []string{"/producer", "/reader"}},
		{"internal", registry.SideEffectsInternal, []string{}, []string{"/producer", "/reader"}},
		{"external", registry.SideEffectsExternal, []string{"/producer", "/reader"}, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rt := newTestRuntime(t)
			root := rt.Root()
			rt.register(t, root, "producer", func(r *Request) registry.ExecFunc {
				r.SetSideEffects(registry.SideEffectsNone)
				r.CreateBuffer("buf", registry.BufferDesc{Size: 256})
				return nil
			})
			rt.register(t, root, "reader", func(r *Request) registry.ExecFunc {
				r.SetSideEffects(tc.reader)
				r.Read("buf").Usage(registry.UsageConstant)
				return nil
			})

			frame := rt.Compile()
			assert.Equal(t, tc.order, frame.ScheduledLabels())
			assert.Equal(t, tc.culled, frame.Culled)
		})
	}
}

func TestRuntime_DriftedShaderVarReportedOnce(t *testing.T) {
	rt := newTestRuntime(t)
	root := rt.Root()
	rt.register(t, root, "gbuffer", func(r *Request) registry.ExecFunc {
		r.CreateTexture("albedo", smallTexture()).Usage(registry.UsageColorAttachment)
		return nil
	})
	rt.register(t, root, "lighting", func(r *Request) registry.ExecFunc {
		r.SetSideEffects(registry.SideEffectsExternal)
		r.Read("albedo").BindToShaderVar("albedo_tex").AtStage(registry.StagePixel)
		return func(registry.ExecContext) {
			rt.dev.Drift("albedo_tex", registry.View{Handle: 999})
		}
	})

	rt.run(t)

	reports := rt.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, executor.ReportShaderVar, reports[0].Kind)
	assert.Equal(t, "albedo_tex", reports[0].Slot)
	assert.Equal(t, "/lighting", reports[0].Node)
	assert.Equal(t, "/albedo", reports[0].ExpectedName)
	assert.Equal(t, uint64(999), reports[0].Observed.Handle)
	assert.Equal(t, 2, rt.dev.Count("bind albedo_tex="), "bound before the node and restored after")

	rt.run(t)
	assert.Len(t, rt.Reports(), 2)
	assert.Equal(t, uint32(2), rt.Reports()[1].Frame)
}

func TestRuntime_ReportSinkSeesReports(t *testing.T) {
	var seen []executor.Report
	rt := newTestRuntime(t, WithReportSink(func(r executor.Report) { seen = append(seen, r) }))
	rt.register(t, rt.Root(), "n", func(r *Request) registry.ExecFunc {
		r.SetSideEffects(registry.SideEffectsExternal)
		r.CreateBuffer("b", registry.BufferDesc{Size: 64}).BindToShaderVar("params")
		return func(registry.ExecContext) { rt.dev.Drift("params", registry.View{Handle: 7}) }
	})

	rt.run(t)
	require.Len(t, seen, 1)
	assert.Equal(t, rt.Reports(), seen)
}

func TestRuntime_ReleaseIsGenerationChecked(t *testing.T) {
	rt := newTestRuntime(t)
	root := rt.Root()
	declare := func(r *Request) registry.ExecFunc { return nil }

	h1 := rt.register(t, root, "n", declare)
	h2 := rt.register(t, root, "n", declare)

	assert.False(t, h1.Valid())
	assert.True(t, h2.Valid())
	assert.Greater(t, h2.UID().Generation, h1.UID().Generation)

	require.NoError(t, h1.Release(), "a stale release is ignored")
	assert.True(t, h2.Valid())
	assert.True(t, IsStaleHandle(rt.SetNodeEnabled(h1, false)))

	require.NoError(t, h2.Release())
	assert.False(t, h2.Valid())
	require.NoError(t, h2.Release())
}

func TestRuntime_RegisterDuringExecutionRefused(t *testing.T) {
	rt := newTestRuntime(t)
	root := rt.Root()
	var regErr, releaseErr error
	var self *NodeHandle
	self = rt.register(t, root, "n", func(r *Request) registry.ExecFunc {
		r.SetSideEffects(registry.SideEffectsExternal)
		return func(registry.ExecContext) {
			_, regErr = root.RegisterNode("late", "", func(*Request) registry.ExecFunc { return nil })
			releaseErr = self.Release()
		}
	})

	rt.run(t)

	assert.ErrorIs(t, regErr, tracker.ErrChangesLocked)
	assert.ErrorIs(t, releaseErr, tracker.ErrChangesLocked)
	assert.True(t, self.Valid())
	_, ok := rt.Names().LookupNode(0, "late")
	assert.False(t, ok)
	assert.Equal(t, []string{"/n"}, rt.Compile().ScheduledLabels())
}

func TestRuntime_SetNodeEnabled(t *testing.T) {
	rt := newTestRuntime(t)
	nodes := chain(t, rt)
	first := rt.Compile()

	require.NoError(t, rt.SetNodeEnabled(nodes["d"], false))
	frame := rt.Compile()
	assert.NotSame(t, first, frame)
	assert.Empty(t, frame.ScheduledLabels())
	assert.Equal(t, []string{"/a", "/b", "/c"}, frame.Culled)

	require.NoError(t, rt.SetNodeEnabled(nodes["d"], true))
	assert.Equal(t, []string{"/a", "/b", "/c", "/d"}, rt.Compile().ScheduledLabels())
}

func TestRuntime_CompileUpToDateReturnsSameFrame(t *testing.T) {
	rt := newTestRuntime(t)
	chain(t, rt)

	f1 := rt.Compile()
	f2 := rt.Compile()
	assert.Same(t, f1, f2)
}

func TestRuntime_WipeOwner(t *testing.T) {
	rt := newTestRuntime(t)
	plugin := rt.Root().Child("plugin").WithOwner("plugin")
	declare := func(r *Request) registry.ExecFunc {
		r.SetSideEffects(registry.SideEffectsExternal)
		return nil
	}
	rt.register(t, plugin, "x", declare)
	rt.register(t, plugin, "y", declare)
	rt.register(t, rt.Root(), "z", declare)
	assert.Equal(t, []string{"/plugin/x", "/plugin/y", "/z"}, rt.Compile().ScheduledLabels())

	require.NoError(t, rt.WipeOwner("plugin"))
	assert.Equal(t, []string{"/z"}, rt.Compile().ScheduledLabels())
}

func TestRuntime_SlotsRedirectReads(t *testing.T) {
	rt := newTestRuntime(t)
	root := rt.Root()
	scene := root.Child("scene")
	rt.register(t, scene, "draw", func(r *Request) registry.ExecFunc {
		r.CreateTexture("color", smallTexture())
		return nil
	})
	rt.register(t, root, "present", func(r *Request) registry.ExecFunc {
		r.SetSideEffects(registry.SideEffectsExternal)
		r.ReadSlot("output").Usage(registry.UsageCopySrc)
		return nil
	})

	root.FillSlot("output", scene, "color")
	frame := rt.Compile()
	require.NoError(t, rt.Err())
	assert.Equal(t, []string{"/scene/draw", "/present"}, frame.ScheduledLabels())
	name, ok := rt.Resolve("output")
	require.True(t, ok)
	assert.Equal(t, "/scene/color", name)

	root.ClearSlot("output")
	frame = rt.Compile()
	assert.Equal(t, []string{"/present"}, frame.Pruned)
	assert.True(t, compiler.IsMissingResource(rt.Err()))
}

func TestRuntime_NamespaceFallback(t *testing.T) {
	rt := newTestRuntime(t)
	root := rt.Root()
	rt.register(t, root, "shadows", func(r *Request) registry.ExecFunc {
		r.CreateTexture("shadow_map", smallTexture())
		return nil
	})
	rt.register(t, root.Child("camera/main"), "lighting", func(r *Request) registry.ExecFunc {
		r.SetSideEffects(registry.SideEffectsExternal)
		r.Read("shadow_map").Usage(registry.UsageShaderResource)
		return nil
	})

	frame := rt.Compile()
	require.NoError(t, rt.Err())
	assert.Equal(t, []string{"/shadows", "/camera/main/lighting"}, frame.ScheduledLabels())
	name, ok := rt.Resolve("/camera/main/shadow_map")
	require.True(t, ok)
	assert.Equal(t, "/shadow_map", name)
}

func TestRuntime_DeclarationConflicts(t *testing.T) {
	rt := newTestRuntime(t)
	root := rt.Root()
	rt.register(t, root, "first", func(r *Request) registry.ExecFunc {
		r.SetSideEffects(registry.SideEffectsExternal)
		r.CreateTexture("shared", smallTexture())
		return nil
	})
	rt.register(t, root, "second", func(r *Request) registry.ExecFunc {
		r.SetSideEffects(registry.SideEffectsExternal)
		r.CreateTexture("shared", smallTexture())
		r.RenderPass().
			Color(0, "shared").
			Color(0, "shared")
		return nil
	})

	rt.Compile()

	var conflicts []ir.Diagnostic
	for _, d := range rt.Diagnostics() {
		if d.Code == compiler.CodeDeclarationConflict {
			conflicts = append(conflicts, d)
		}
	}
	require.Len(t, conflicts, 2, "%v", diagCodes(rt.Diagnostics()))
	for _, d := range conflicts {
		assert.Equal(t, "/second", d.Node)
	}
	assert.Contains(t, conflicts[0].Message, "already produced by /first")
	assert.Contains(t, conflicts[1].Message, "colour slot 0 attached twice")
}

func TestRuntime_RenderPassAndState(t *testing.T) {
	rt := newTestRuntime(t)
	rt.register(t, rt.Root(), "draw", func(r *Request) registry.ExecFunc {
		r.SetSideEffects(registry.SideEffectsExternal)
		r.CreateTexture("color", smallTexture())
		r.CreateTexture("depth", TextureSpec{
			Format: gputypes.TextureFormatDepth32Float,
			Size:   gputypes.Extent3D{Width: 32, Height: 32, DepthOrArrayLayers: 1},
		})
		r.RenderPass().
			Color(0, "color", LoadClear(gputypes.Color{A: 1})).
			Depth("depth")
		r.ShaderBlockLayer("object", 2)
		r.Wireframe(true)
		return nil
	})

	rt.run(t)

	assert.Equal(t, []string{
		"begin_pass color0=#1:Clear depth=#2:Load",
		"push object=2",
		"wireframe true",
		"end_pass",
		"pop object",
		"wireframe false",
	}, rt.dev.Calls)
}

func TestRuntime_HistoryEventsAppliedOnce(t *testing.T) {
	rt := newTestRuntime(t)
	var current, previous []registry.View
	rt.register(t, rt.Root(), "taa", func(r *Request) registry.ExecFunc {
		r.SetSideEffects(registry.SideEffectsExternal)
		acc := r.CreateTexture("acc", smallTexture()).
			Usage(registry.UsageUnorderedAccess).
			WithHistory(registry.HistoryClearZeroOnFirstFrame).ID()
		r.HistoryFor("acc").Usage(registry.UsageShaderResource)
		return func(ctx registry.ExecContext) {
			cur, _ := ctx.View(acc, false)
			prev, _ := ctx.View(acc, true)
			current = append(current, cur)
			previous = append(previous, prev)
		}
	})

	rt.run(t)
	assert.Equal(t, 2, rt.dev.Count("clear "))
	rt.run(t)
	assert.Equal(t, 2, rt.dev.Count("clear "), "history is initialised once")

	require.Len(t, current, 2)
	assert.NotEqual(t, current[0].Handle, previous[0].Handle)
	assert.Equal(t, current[0].Handle, previous[1].Handle, "last frame's output is this frame's history")

	rt.ResetAllocator()
	rt.run(t)
	assert.Equal(t, 4, rt.dev.Count("clear "))
}

func TestRuntime_ExtentsMultiplexNodes(t *testing.T) {
	rt := newTestRuntime(t, WithExtents(multiplex.Extents{1, 1, 2, 1}))
	var seen []multiplex.Index
	rt.register(t, rt.Root(), "view", func(r *Request) registry.ExecFunc {
		r.SetSideEffects(registry.SideEffectsExternal)
		r.Multiplex(multiplex.ModeViewport)
		return func(ctx registry.ExecContext) { seen = append(seen, ctx.Index()) }
	})

	rt.run(t)
	assert.Equal(t, []multiplex.Index{{0, 0, 0, 0}, {0, 0, 1, 0}}, seen)

	rt.SetExtents(multiplex.Extents{1, 1, 3, 1})
	assert.Len(t, rt.Compile().ScheduledLabels(), 3)
}

func TestRuntime_RunNodesErrors(t *testing.T) {
	rt := New()
	assert.ErrorIs(t, rt.RunNodes(context.Background()), ErrNoDevice)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestRuntime(t).RunNodes(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRuntime_RegisterNilDeclaration(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.Root().RegisterNode("n", "", nil)
	assert.Error(t, err)
}

func TestRuntime_RunIDFromGenerator(t *testing.T) {
	rt := New(WithRunIDs(testutil.NewFixedRunIDs("run-42")))
	assert.Equal(t, "run-42", rt.RunID())
	assert.NotEmpty(t, New().RunID())
}
