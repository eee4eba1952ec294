package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames_RootNameSpace(t *testing.T) {
	n := New()
	assert.Equal(t, 1, n.NameSpaceCount())
	assert.Equal(t, "/", n.NameSpaceName(Root))
	assert.Equal(t, InvalidNameSpace, n.NameSpaceParent(Root))
}

func TestNames_InternIsStable(t *testing.T) {
	n := New()
	a := n.Resource(Root, "gbuf_albedo")
	b := n.Resource(Root, "gbuf_albedo")
	c := n.Resource(Root, "gbuf_normal")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 2, n.ResourceCount())
}

func TestNames_FamiliesAreIndependent(t *testing.T) {
	n := New()
	node := n.Node(Root, "shadow")
	res := n.Resource(Root, "shadow")

	assert.Equal(t, NodeID(0), node)
	assert.Equal(t, ResID(0), res)
	assert.Equal(t, "/shadow", n.NodeName(node))
	assert.Equal(t, "/shadow", n.ResourceName(res))
}

func TestNames_PathQualified(t *testing.T) {
	n := New()
	id := n.Node(Root, "a/b/c")

	assert.Equal(t, "/a/b/c", n.NodeName(id))
	ab := n.NodeParent(id)
	assert.Equal(t, "/a/b", n.NameSpaceName(ab))
	assert.Equal(t, "/a", n.NameSpaceName(n.NameSpaceParent(ab)))

	// Relative path from an inner namespace reaches the same id.
	a := n.NameSpace(Root, "a")
	assert.Equal(t, id, n.Node(a, "b/c"))

	// Absolute path ignores the parent.
	assert.Equal(t, id, n.Node(ab, "/a/b/c"))
}

func TestNames_EmptySegmentsSkipped(t *testing.T) {
	n := New()
	assert.Equal(t, n.Resource(Root, "x/y"), n.Resource(Root, "x//y/"))
}

func TestNames_NFCNormalization(t *testing.T) {
	n := New()
	composed := n.Resource(Root, "caf\u00e9")
	decomposed := n.Resource(Root, "cafe\u0301")
	assert.Equal(t, composed, decomposed)
}

func TestNames_LookupDoesNotIntern(t *testing.T) {
	n := New()
	_, ok := n.LookupNode(Root, "missing/node")
	assert.False(t, ok)
	assert.Equal(t, 0, n.NodeCount())
	assert.Equal(t, 1, n.NameSpaceCount(), "lookup must not create namespaces")

	id := n.Node(Root, "present/node")
	found, ok := n.LookupNode(Root, "present/node")
	require.True(t, ok)
	assert.Equal(t, id, found)
}

func TestNames_ResourceIn(t *testing.T) {
	n := New()
	inner := n.NameSpace(Root, "inner")
	outer := n.Resource(Root, "depth")

	_, ok := n.ResourceIn(inner, "depth")
	assert.False(t, ok)

	found, ok := n.ResourceIn(Root, "depth")
	require.True(t, ok)
	assert.Equal(t, outer, found)
	assert.Equal(t, "depth", n.ShortResourceName(outer))
}

func TestNames_InvalidIDs(t *testing.T) {
	n := New()
	assert.Equal(t, "<invalid>", n.NodeName(InvalidNode))
	assert.Equal(t, "<invalid>", n.ResourceName(InvalidRes))
	assert.Equal(t, InvalidNameSpace, n.ResourceParent(InvalidRes))
	assert.Equal(t, "", n.ShortResourceName(InvalidRes))
}

func TestNames_AutoResTypes(t *testing.T) {
	n := New()
	main := n.AutoResType(Root, "main")
	found, ok := n.LookupAutoResType(Root, "main")
	require.True(t, ok)
	assert.Equal(t, main, found)
	assert.Equal(t, "/main", n.AutoResTypeName(main))
	assert.Equal(t, 1, n.AutoResTypeCount())
}
