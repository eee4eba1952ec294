// Package ids provides interned, namespaced identifiers for the frame graph.
//
// Every name family (namespaces, nodes, resources, auto-resolution types) is
// an append-only table of (parent namespace, short name) pairs. Ids are dense
// uint32 indices into that table, so they can index parallel slices in the
// registry directly. Ids are never removed; a name keeps its id for the
// lifetime of the Names value.
//
// This package imports nothing internal.
package ids

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NameSpaceID identifies a namespace. The root namespace is always Root.
type NameSpaceID uint32

// NodeID identifies a node name.
type NodeID uint32

// ResID identifies a resource name. Named slots share this family.
type ResID uint32

// AutoResTypeID identifies an auto-resolution type ("main", "half", ...).
type AutoResTypeID uint32

// Sentinels. Equality is integer equality, so these never collide with a
// real id as long as a family holds fewer than MaxUint32 names.
const (
	InvalidNameSpace   NameSpaceID   = math.MaxUint32
	InvalidNode        NodeID        = math.MaxUint32
	InvalidRes         ResID         = math.MaxUint32
	InvalidAutoResType AutoResTypeID = math.MaxUint32
)

// Root is the id of the root namespace "/".
const Root NameSpaceID = 0

// Separator splits path segments.
const Separator = "/"

type entry struct {
	parent NameSpaceID
	name   string
}

// table is one interned name family.
type table struct {
	entries []entry
	index   map[entry]uint32
}

func newTable() table {
	return table{index: make(map[entry]uint32)}
}

func (t *table) intern(parent NameSpaceID, name string) uint32 {
	key := entry{parent: parent, name: name}
	if id, ok := t.index[key]; ok {
		return id
	}
	id := uint32(len(t.entries))
	t.entries = append(t.entries, key)
	t.index[key] = id
	return id
}

func (t *table) lookup(parent NameSpaceID, name string) (uint32, bool) {
	id, ok := t.index[entry{parent: parent, name: name}]
	return id, ok
}

func (t *table) valid(id uint32) bool {
	return int(id) < len(t.entries)
}

// Names holds the four interned name families.
//
// Names is not safe for concurrent use; the frame graph mutates it only from
// the thread that drives frame setup.
type Names struct {
	spaces    table
	nodes     table
	resources table
	autoRes   table
}

// New creates a Names value containing only the root namespace.
func New() *Names {
	n := &Names{
		spaces:    newTable(),
		nodes:     newTable(),
		resources: newTable(),
		autoRes:   newTable(),
	}
	n.spaces.intern(InvalidNameSpace, "")
	return n
}

// normalize applies NFC so that visually identical names intern to one id.
func normalize(segment string) string {
	return norm.NFC.String(segment)
}

// splitPath breaks a path into its namespace part and its leaf name.
// A leading separator makes the path absolute (relative to Root).
// Empty segments are skipped.
func splitPath(path string) (absolute bool, dirs []string, leaf string) {
	absolute = strings.HasPrefix(path, Separator)
	var segs []string
	for _, s := range strings.Split(path, Separator) {
		if s != "" {
			segs = append(segs, normalize(s))
		}
	}
	if len(segs) == 0 {
		return absolute, nil, ""
	}
	return absolute, segs[:len(segs)-1], segs[len(segs)-1]
}

// walk resolves the directory part of a path, interning missing namespaces
// when create is set. It returns InvalidNameSpace if a namespace is missing
// and create is false.
func (n *Names) walk(parent NameSpaceID, absolute bool, dirs []string, create bool) NameSpaceID {
	cur := parent
	if absolute {
		cur = Root
	}
	for _, d := range dirs {
		if create {
			cur = NameSpaceID(n.spaces.intern(cur, d))
			continue
		}
		id, ok := n.spaces.lookup(cur, d)
		if !ok {
			return InvalidNameSpace
		}
		cur = NameSpaceID(id)
	}
	return cur
}

// NameSpace interns a namespace path under parent and returns its id.
// An empty path returns parent itself.
func (n *Names) NameSpace(parent NameSpaceID, path string) NameSpaceID {
	abs, dirs, leaf := splitPath(path)
	ns := n.walk(parent, abs, dirs, true)
	if leaf == "" {
		return ns
	}
	return NameSpaceID(n.spaces.intern(ns, leaf))
}

// Node interns a node path under parent.
func (n *Names) Node(parent NameSpaceID, path string) NodeID {
	abs, dirs, leaf := splitPath(path)
	ns := n.walk(parent, abs, dirs, true)
	return NodeID(n.nodes.intern(ns, leaf))
}

// Resource interns a resource (or slot) path under parent.
func (n *Names) Resource(parent NameSpaceID, path string) ResID {
	abs, dirs, leaf := splitPath(path)
	ns := n.walk(parent, abs, dirs, true)
	return ResID(n.resources.intern(ns, leaf))
}

// AutoResType interns an auto-resolution type path under parent.
func (n *Names) AutoResType(parent NameSpaceID, path string) AutoResTypeID {
	abs, dirs, leaf := splitPath(path)
	ns := n.walk(parent, abs, dirs, true)
	return AutoResTypeID(n.autoRes.intern(ns, leaf))
}

// LookupNode finds a node by path without interning anything.
func (n *Names) LookupNode(parent NameSpaceID, path string) (NodeID, bool) {
	abs, dirs, leaf := splitPath(path)
	ns := n.walk(parent, abs, dirs, false)
	if ns == InvalidNameSpace {
		return InvalidNode, false
	}
	id, ok := n.nodes.lookup(ns, leaf)
	if !ok {
		return InvalidNode, false
	}
	return NodeID(id), true
}

// LookupResource finds a resource by path without interning anything.
func (n *Names) LookupResource(parent NameSpaceID, path string) (ResID, bool) {
	abs, dirs, leaf := splitPath(path)
	ns := n.walk(parent, abs, dirs, false)
	if ns == InvalidNameSpace {
		return InvalidRes, false
	}
	id, ok := n.resources.lookup(ns, leaf)
	if !ok {
		return InvalidRes, false
	}
	return ResID(id), true
}

// LookupAutoResType finds an auto-resolution type without interning.
func (n *Names) LookupAutoResType(parent NameSpaceID, path string) (AutoResTypeID, bool) {
	abs, dirs, leaf := splitPath(path)
	ns := n.walk(parent, abs, dirs, false)
	if ns == InvalidNameSpace {
		return InvalidAutoResType, false
	}
	id, ok := n.autoRes.lookup(ns, leaf)
	if !ok {
		return InvalidAutoResType, false
	}
	return AutoResTypeID(id), true
}

// ResourceIn looks up the short name within exactly one namespace.
func (n *Names) ResourceIn(ns NameSpaceID, short string) (ResID, bool) {
	id, ok := n.resources.lookup(ns, short)
	return ResID(id), ok
}

// AutoResTypeIn looks up the short name within exactly one namespace.
func (n *Names) AutoResTypeIn(ns NameSpaceID, short string) (AutoResTypeID, bool) {
	id, ok := n.autoRes.lookup(ns, short)
	return AutoResTypeID(id), ok
}

// Counts of every family. Registry tables are sized from these.

func (n *Names) NameSpaceCount() int   { return len(n.spaces.entries) }
func (n *Names) NodeCount() int        { return len(n.nodes.entries) }
func (n *Names) ResourceCount() int    { return len(n.resources.entries) }
func (n *Names) AutoResTypeCount() int { return len(n.autoRes.entries) }

// NameSpaceParent returns the parent of ns, or InvalidNameSpace for Root.
func (n *Names) NameSpaceParent(ns NameSpaceID) NameSpaceID {
	if !n.spaces.valid(uint32(ns)) {
		return InvalidNameSpace
	}
	return n.spaces.entries[ns].parent
}

// NodeParent returns the namespace a node was interned under.
func (n *Names) NodeParent(id NodeID) NameSpaceID {
	if !n.nodes.valid(uint32(id)) {
		return InvalidNameSpace
	}
	return n.nodes.entries[id].parent
}

// ResourceParent returns the namespace a resource was interned under.
func (n *Names) ResourceParent(id ResID) NameSpaceID {
	if !n.resources.valid(uint32(id)) {
		return InvalidNameSpace
	}
	return n.resources.entries[id].parent
}

// AutoResTypeParent returns the namespace an auto-res type was interned under.
func (n *Names) AutoResTypeParent(id AutoResTypeID) NameSpaceID {
	if !n.autoRes.valid(uint32(id)) {
		return InvalidNameSpace
	}
	return n.autoRes.entries[id].parent
}

// ShortResourceName returns the leaf name of a resource.
func (n *Names) ShortResourceName(id ResID) string {
	if !n.resources.valid(uint32(id)) {
		return ""
	}
	return n.resources.entries[id].name
}

// ShortAutoResTypeName returns the leaf name of an auto-res type.
func (n *Names) ShortAutoResTypeName(id AutoResTypeID) string {
	if !n.autoRes.valid(uint32(id)) {
		return ""
	}
	return n.autoRes.entries[id].name
}

// NameSpaceName returns the full path of a namespace ("/" for Root).
func (n *Names) NameSpaceName(ns NameSpaceID) string {
	if ns == Root {
		return Separator
	}
	if !n.spaces.valid(uint32(ns)) {
		return "<invalid>"
	}
	var segs []string
	for cur := ns; cur != Root && cur != InvalidNameSpace; cur = n.spaces.entries[cur].parent {
		segs = append(segs, n.spaces.entries[cur].name)
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return Separator + strings.Join(segs, Separator)
}

func (n *Names) join(ns NameSpaceID, leaf string) string {
	if ns == Root {
		return Separator + leaf
	}
	return n.NameSpaceName(ns) + Separator + leaf
}

// NodeName returns the full path of a node.
func (n *Names) NodeName(id NodeID) string {
	if !n.nodes.valid(uint32(id)) {
		return "<invalid>"
	}
	e := n.nodes.entries[id]
	return n.join(e.parent, e.name)
}

// ResourceName returns the full path of a resource.
func (n *Names) ResourceName(id ResID) string {
	if !n.resources.valid(uint32(id)) {
		return "<invalid>"
	}
	e := n.resources.entries[id]
	return n.join(e.parent, e.name)
}

// AutoResTypeName returns the full path of an auto-resolution type.
func (n *Names) AutoResTypeName(id AutoResTypeID) string {
	if !n.autoRes.valid(uint32(id)) {
		return "<invalid>"
	}
	e := n.autoRes.entries[id]
	return n.join(e.parent, e.name)
}
