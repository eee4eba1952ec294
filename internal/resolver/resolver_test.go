package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framegraph/internal/ids"
	"github.com/roach88/framegraph/internal/registry"
)

type fixture struct {
	names *ids.Names
	reg   *registry.Registry
	res   *Resolver
}

func newFixture() *fixture {
	names := ids.New()
	reg := registry.New(names)
	return &fixture{names: names, reg: reg, res: New(reg, nil)}
}

func (f *fixture) produce(path string) ids.ResID {
	id := f.names.Resource(ids.Root, path)
	r := f.reg.Resource(id)
	r.Kind = registry.KindTexture
	r.Origin = registry.OriginCreated
	r.Producer = 0
	return id
}

func (f *fixture) fill(slot, target string) ids.ResID {
	s := f.names.Resource(ids.Root, slot)
	t := f.names.Resource(ids.Root, target)
	f.reg.Slot(s).Target = t
	f.reg.Resize()
	return s
}

func TestResolver_ProducedResolvesToItself(t *testing.T) {
	f := newFixture()
	tex := f.produce("tex")
	f.res.Update()

	assert.Equal(t, tex, f.res.Resolve(tex))
	assert.True(t, f.res.Resolved(tex))
}

func TestResolver_NamespaceFallback(t *testing.T) {
	f := newFixture()
	depth := f.produce("depth")
	inner := f.names.Resource(ids.Root, "lighting/shadows/depth")
	f.reg.Resize()
	f.res.Update()

	assert.Equal(t, depth, f.res.Resolve(inner))
}

func TestResolver_InnerNameShadowsOuter(t *testing.T) {
	f := newFixture()
	f.produce("depth")
	mid := f.produce("lighting/depth")
	inner := f.names.Resource(ids.Root, "lighting/shadows/depth")
	f.reg.Resize()
	f.res.Update()

	assert.Equal(t, mid, f.res.Resolve(inner))
}

func TestResolver_SlotIndirection(t *testing.T) {
	f := newFixture()
	final := f.produce("final")
	slot := f.fill("output", "final")
	f.res.Update()

	assert.Equal(t, final, f.res.Resolve(slot))
}

func TestResolver_SlotToSlotChainCollapses(t *testing.T) {
	f := newFixture()
	final := f.produce("final")
	inner := f.fill("inner", "final")
	outer := f.fill("outer", "inner")
	f.res.Update()

	assert.Equal(t, final, f.res.Resolve(outer))
	assert.Equal(t, final, f.res.Resolve(inner))
}

func TestResolver_SlotCycleResolvesToItself(t *testing.T) {
	f := newFixture()
	a := f.fill("a", "b")
	b := f.fill("b", "a")
	f.res.Update()

	assert.Equal(t, a, f.res.Resolve(a))
	assert.Equal(t, b, f.res.Resolve(b))
}

func TestResolver_EmptySlotResolvesToItself(t *testing.T) {
	f := newFixture()
	slot := f.names.Resource(ids.Root, "unbound")
	f.reg.Resize()
	f.res.Update()

	assert.Equal(t, slot, f.res.Resolve(slot))
	assert.False(t, f.res.Resolved(slot))
}

func (f *fixture) rename(from, to string) (ids.ResID, ids.ResID) {
	src := f.names.Resource(ids.Root, from)
	dst := f.produce(to)
	f.reg.Resources[dst].Origin = registry.OriginRenamed
	f.reg.Resources[dst].RenamedFrom = src
	f.reg.Resources[src].RenamedTo = dst
	return src, dst
}

func TestResolver_RenameIsFollowed(t *testing.T) {
	f := newFixture()
	f.produce("tex")
	tex, tex2 := f.rename("tex", "tex2")
	f.res.Update()

	assert.Equal(t, tex2, f.res.Resolve(tex))
	assert.Equal(t, tex2, f.res.Resolve(tex2))
	assert.Equal(t, tex, f.res.Binding(tex))
	assert.Equal(t, tex, f.reg.ChainOrigin(f.res.Resolve(tex)))
}

func TestResolver_RenameChainWalksToLatestLink(t *testing.T) {
	f := newFixture()
	f.produce("albedo")
	albedo, lit := f.rename("albedo", "lit")
	_, graded := f.rename("lit", "graded")
	f.res.Update()

	assert.Equal(t, graded, f.res.Resolve(albedo))
	assert.Equal(t, graded, f.res.Resolve(lit))
	assert.Equal(t, lit, f.res.Binding(lit))
}

func TestResolver_DeadRenameLinkNotFollowed(t *testing.T) {
	f := newFixture()
	tex := f.produce("tex")
	gone := f.names.Resource(ids.Root, "tex2")
	f.reg.Resize()
	f.reg.Resources[tex].RenamedTo = gone
	f.res.Update()

	assert.Equal(t, tex, f.res.Resolve(tex))
}

func TestResolver_SlotThenRename(t *testing.T) {
	f := newFixture()
	f.produce("color")
	_, tonemapped := f.rename("color", "tonemapped")
	slot := f.fill("output", "color")
	f.res.Update()

	assert.Equal(t, tonemapped, f.res.Resolve(slot))
	assert.Equal(t, f.res.Resolve(slot), f.res.Resolve(f.res.Resolve(slot)))
}

func TestResolver_RenameCycleResolvesToBinding(t *testing.T) {
	f := newFixture()
	a := f.produce("a")
	b := f.produce("b")
	f.reg.Resources[a].RenamedTo = b
	f.reg.Resources[b].RenamedTo = a
	f.res.Update()

	assert.Equal(t, a, f.res.Resolve(a))
	assert.Equal(t, b, f.res.Resolve(b))
}

// TestResolver_Idempotent checks Resolve(Resolve(x)) == Resolve(x) for every
// interned id in a graph mixing fallback, slots, renames and a cycle.
func TestResolver_Idempotent(t *testing.T) {
	f := newFixture()
	f.produce("depth")
	f.produce("final")
	f.produce("post/color")
	f.names.Resource(ids.Root, "post/bloom/depth")
	f.names.Resource(ids.Root, "post/bloom/color")
	f.fill("output", "post/color")
	f.fill("screen", "output")
	f.fill("x", "y")
	f.fill("y", "x")
	f.fill("dangling", "nothing")
	f.rename("final", "final2")
	f.fill("present", "final")
	f.reg.Resize()
	f.res.Update()

	for i := 0; i < f.names.ResourceCount(); i++ {
		x := ids.ResID(i)
		once := f.res.Resolve(x)
		assert.Equal(t, once, f.res.Resolve(once), "resource %s", f.names.ResourceName(x))
	}
	assert.Equal(t, ids.ResID(99), f.res.Resolve(99))
}

func TestResolver_Unresolve(t *testing.T) {
	f := newFixture()
	final := f.produce("final")
	slot := f.fill("output", "final")
	other := f.produce("other")

	node := f.names.Node(ids.Root, "post")
	n := f.reg.Node(node)
	n.Declare = func(ids.NodeID, *registry.Registry) registry.ExecFunc { return nil }
	n.AddRequest(final, registry.ResourceRequest{Access: registry.AccessReadOnly})
	n.AddRequest(slot, registry.ResourceRequest{Access: registry.AccessReadOnly, FromSlot: true})
	n.AddRequest(final, registry.ResourceRequest{Access: registry.AccessReadOnly, History: true})
	f.res.Update()

	assert.Equal(t, []ids.ResID{final, slot}, f.res.Unresolve(node, final))
	assert.Empty(t, f.res.Unresolve(node, other))

	_, graded := f.rename("final", "graded")
	f.res.Update()
	assert.Equal(t, []ids.ResID{final, slot}, f.res.Unresolve(node, graded))
	assert.Empty(t, f.res.Unresolve(node, final))
	assert.Empty(t, f.res.Unresolve(ids.NodeID(42), final))
}

func TestResolver_Validity(t *testing.T) {
	f := newFixture()
	tex := f.produce("gbuf/albedo")
	missing := f.names.Resource(ids.Root, "gbuf/albdo")
	main := f.names.AutoResType(ids.Root, "main")
	f.reg.Resize()
	f.reg.AutoResType(main).Set = true

	node := f.names.Node(ids.Root, "gbuf")
	f.reg.Node(node).Declare = func(ids.NodeID, *registry.Registry) registry.ExecFunc { return nil }
	f.res.Update()

	assert.True(t, f.res.IsValidResource(tex))
	assert.False(t, f.res.IsValidResource(missing))
	assert.True(t, f.res.IsValidNode(node))
	assert.True(t, f.res.IsValidAutoResType(main))

	suggestion, ok := f.res.SuggestResource(f.names.ResourceName(missing))
	require.True(t, ok)
	assert.Equal(t, "/gbuf/albedo", suggestion)

	_, ok = f.res.SuggestResource("/completely/unrelated/name")
	assert.False(t, ok)
}
