package desc

import (
	"fmt"
	"path"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/roach88/framegraph/internal/engine"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
)

// ExecSource supplies the execution callback of a described node. path is
// the node's label.
type ExecSource func(path string) registry.ExecFunc

type installConfig struct {
	exec  ExecSource
	owner string
}

// InstallOption configures Install.
type InstallOption func(*installConfig)

// WithExec sets where execution callbacks come from. Without it described
// nodes run nothing beyond their render state.
func WithExec(src ExecSource) InstallOption {
	return func(c *installConfig) { c.exec = src }
}

// WithOwner registers every node under owner so Runtime.WipeOwner removes
// the whole description.
func WithOwner(owner string) InstallOption {
	return func(c *installConfig) { c.owner = owner }
}

// Install registers g's nodes and applies its resolutions, slots and
// extents. Handles are returned in node order. Dynamic resolutions that
// the runtime rejects are returned as errors after everything else has
// been applied.
func Install(rt *engine.Runtime, g *Graph, opts ...InstallOption) ([]*engine.NodeHandle, error) {
	cfg := installConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	root := rt.Root()
	if cfg.owner != "" {
		root = root.WithOwner(cfg.owner)
	}

	if g.Extents != (multiplex.Extents{}) {
		e := multiplex.One()
		for d, n := range g.Extents {
			if n > 0 {
				e[d] = n
			}
		}
		rt.SetExtents(e)
	}

	for _, r := range g.Resolutions {
		if err := root.SetResolution(r.Type, r.Width, r.Height); err != nil {
			return nil, fmt.Errorf("resolution %s: %w", r.Type, err)
		}
	}
	for _, s := range g.Slots {
		root.FillSlot(s.Path, root, s.Target)
	}

	handles := make([]*engine.NodeHandle, 0, len(g.Nodes))
	for i := range g.Nodes {
		h, err := register(rt, root, &g.Nodes[i], cfg)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}

	for _, r := range g.Dynamic {
		if err := root.SetDynamicResolution(r.Type, int(r.Width), int(r.Height)); err != nil {
			return handles, fmt.Errorf("dynamic resolution %s: %w", r.Type, err)
		}
	}
	return handles, nil
}

// Register registers a single described node, replacing a live node of the
// same name.
func Register(rt *engine.Runtime, n *Node, opts ...InstallOption) (*engine.NodeHandle, error) {
	cfg := installConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	root := rt.Root()
	if cfg.owner != "" {
		root = root.WithOwner(cfg.owner)
	}
	return register(rt, root, n, cfg)
}

func register(rt *engine.Runtime, root engine.NameSpace, n *Node, cfg installConfig) (*engine.NodeHandle, error) {
	dir, leaf := path.Split(strings.TrimPrefix(n.Path, "/"))
	ns := root
	if dir != "" {
		ns = root.Child(strings.TrimSuffix(dir, "/"))
	}
	var exec registry.ExecFunc
	if cfg.exec != nil {
		exec = cfg.exec(n.Path)
	}
	h, err := ns.RegisterNode(leaf, n.SourceTag, declareNode(rt, n, exec))
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.Path, err)
	}
	return h, nil
}

func declareNode(rt *engine.Runtime, n *Node, exec registry.ExecFunc) engine.DeclareFunc {
	return func(r *engine.Request) registry.ExecFunc {
		r.SetSideEffects(n.SideEffects)
		r.SetPriority(n.Priority)
		r.Multiplex(n.Multiplex)
		for _, a := range n.After {
			r.OrderMeAfter(a)
		}
		for _, b := range n.Before {
			r.OrderMeBefore(b)
		}

		for _, c := range n.Creates {
			var b *engine.ResourceBuilder
			switch c.Kind {
			case registry.KindTexture:
				b = r.CreateTexture(c.Name, c.Texture)
			case registry.KindBuffer:
				b = r.CreateBuffer(c.Name, c.Buffer)
			default:
				b = r.CreateBlob(c.Name, c.Tag, func() any { return map[string]any{} })
			}
			refine(b, c.Usage, c.Stages)
			if c.ShaderVar != "" {
				b.BindToShaderVar(c.ShaderVar)
			}
			if c.History != registry.HistoryNone {
				b.WithHistory(c.History)
			}
		}

		for _, im := range n.Imports {
			provide := importProvider(rt, im.Handle)
			var b *engine.ResourceBuilder
			if im.Kind == registry.KindBuffer {
				b = r.ImportBuffer(im.Name, provide)
			} else {
				b = r.ImportTexture(im.Name, provide)
			}
			refine(b, im.Usage, 0)
		}

		for _, rn := range n.Renames {
			b := r.Rename(rn.From, rn.To)
			refine(b, rn.Usage, 0)
			if rn.History != registry.HistoryNone {
				b.WithHistory(rn.History)
			}
		}

		for _, u := range n.Reads {
			var b *engine.ResourceBuilder
			if u.Slot {
				b = r.ReadSlot(u.Name)
			} else {
				b = r.Read(u.Name)
			}
			applyUse(b, u)
		}
		for _, u := range n.Modifies {
			var b *engine.ResourceBuilder
			if u.Slot {
				b = r.ModifySlot(u.Name)
			} else {
				b = r.Modify(u.Name)
			}
			applyUse(b, u)
		}
		for _, u := range n.History {
			applyUse(r.HistoryFor(u.Name), u)
		}

		if p := n.Pass; p != nil {
			pass := r.RenderPass()
			for _, a := range p.Colors {
				pass.Color(a.Slot, a.Target, attachmentOptions(a)...)
			}
			if p.Depth != nil {
				if p.DepthReadOnly {
					pass.DepthReadOnly(p.Depth.Target, attachmentOptions(*p.Depth)...)
				} else {
					pass.Depth(p.Depth.Target, attachmentOptions(*p.Depth)...)
				}
			}
			for _, a := range p.Resolves {
				pass.Resolve(a.Slot, a.Target, attachmentOptions(a)...)
			}
		}

		for _, l := range n.BlockLayers {
			r.ShaderBlockLayer(l.Block, l.Layer)
		}
		if n.Wireframe {
			r.Wireframe(true)
		}
		if n.VRS != nil {
			r.VariableRateShading(n.VRS.RateX, n.VRS.RateY, n.VRS.Image)
		}
		return exec
	}
}

// importProvider hands out base plus the flat multiplexing index, so every
// iteration of a multiplexed importer sees a distinct view.
func importProvider(rt *engine.Runtime, base uint64) registry.ExternalProvider {
	return func(idx multiplex.Index) registry.View {
		return registry.View{
			Instance: registry.ExternalInstance,
			Handle:   base + uint64(multiplex.ToIR(idx, rt.Extents())),
		}
	}
}

func refine(b *engine.ResourceBuilder, usage registry.Usage, stages registry.PipelineStage) {
	if usage != registry.UsageUnknown {
		b.Usage(usage)
	}
	if stages != 0 {
		b.AtStage(stages)
	}
}

func applyUse(b *engine.ResourceBuilder, u Use) {
	refine(b, u.Usage, u.Stages)
	if u.Optional {
		b.Optional()
	}
	if u.Tag != "" {
		b.Blob(u.Tag)
	}
	if u.ShaderVar != "" {
		b.BindToShaderVar(u.ShaderVar)
	}
}

func attachmentOptions(a Attachment) []engine.AttachmentOption {
	var opts []engine.AttachmentOption
	if a.Clear != nil {
		opts = append(opts, engine.LoadClear(*a.Clear))
	}
	if a.Discard {
		opts = append(opts, engine.Store(gputypes.StoreOpDiscard))
	}
	if a.Mip != 0 || a.Layer != 0 {
		opts = append(opts, engine.MipLayer(a.Mip, a.Layer))
	}
	return opts
}
