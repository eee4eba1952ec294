// Package desc loads frame graphs described in CUE and installs them into
// an engine.Runtime.
//
// A description has up to five top-level fields:
//
//	extents:            {viewport: 2, sub_camera: 1}
//	resolution:         main: {width: 1920, height: 1080}
//	dynamic_resolution: main: {width: 960, height: 540}
//	slot:               "/output": "/scene/color"
//	node:               "scene/draw": {...}
//
// Node labels are paths; everything but the last segment is the namespace
// the node is registered under, and the names its requests use are
// relative to that namespace. See Compile for the node fields.
package desc

import (
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/roach88/framegraph/internal/engine"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
)

// Graph is a compiled description.
type Graph struct {
	Extents     multiplex.Extents
	Resolutions []Resolution
	Dynamic     []Resolution
	Slots       []Slot
	Nodes       []Node
}

// Node returns the node labelled path. A leading "/" is ignored.
func (g *Graph) Node(path string) (*Node, bool) {
	path = strings.TrimPrefix(path, "/")
	for i := range g.Nodes {
		if strings.TrimPrefix(g.Nodes[i].Path, "/") == path {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// Resolution sets an auto-resolution type. Type is a path.
type Resolution struct {
	Type   string
	Width  uint32
	Height uint32
}

// Slot points the slot at Path to the resource at Target.
type Slot struct {
	Path   string
	Target string
}

// Node is one described node.
type Node struct {
	Path string
	// SourceTag is the file:line the node was described at.
	SourceTag   string
	SideEffects registry.SideEffects
	Priority    int32
	Multiplex   multiplex.Mode
	After       []string
	Before      []string

	Creates  []Create
	Imports  []Import
	Reads    []Use
	Modifies []Use
	History  []Use
	Renames  []Rename

	Pass        *Pass
	BlockLayers []registry.BlockLayer
	Wireframe   bool
	VRS         *VRS
}

// Create is a resource the node creates.
type Create struct {
	Name    string
	Kind    registry.ResourceKind
	Texture engine.TextureSpec
	Buffer  registry.BufferDesc
	// Tag is the blob type.
	Tag       string
	Usage     registry.Usage
	Stages    registry.PipelineStage
	History   registry.History
	ShaderVar string
}

// Import is a resource owned outside the graph. Its provider hands out
// Handle plus the flat multiplexing index.
type Import struct {
	Name   string
	Kind   registry.ResourceKind
	Handle uint64
	Usage  registry.Usage
}

// Use is a read, modify or history request.
type Use struct {
	Name      string
	Slot      bool
	Usage     registry.Usage
	Stages    registry.PipelineStage
	Optional  bool
	Tag       string
	ShaderVar string
}

// Rename consumes From and produces To.
type Rename struct {
	From    string
	To      string
	Usage   registry.Usage
	History registry.History
}

// Pass is the render pass the node runs in.
type Pass struct {
	Colors        []Attachment
	Depth         *Attachment
	DepthReadOnly bool
	Resolves      []Attachment
}

// Attachment is one render target.
type Attachment struct {
	Slot    uint32
	Target  string
	Clear   *gputypes.Color
	Discard bool
	Mip     uint32
	Layer   uint32
}

// VRS is the shading rate the node runs at.
type VRS struct {
	RateX, RateY uint32
	Image        string
}
