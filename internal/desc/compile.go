package desc

import (
	"fmt"
	"math"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/gogpu/gputypes"

	"github.com/roach88/framegraph/internal/engine"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
)

// CompileError is a description error with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}

// fieldErr reports a malformed field. If v itself failed to evaluate the
// CUE error is returned instead.
func fieldErr(field string, v cue.Value, format string, args ...any) error {
	if err := v.Err(); err != nil {
		return formatCUEError(err)
	}
	return &CompileError{Field: field, Message: fmt.Sprintf(format, args...), Pos: v.Pos()}
}

// Compile parses a description. v is the root value of the loaded
// instance.
//
// Node fields, all optional:
//
//	side_effects: "none" | "internal" | "external"
//	priority:     int | "early" | "late"
//	multiplex:    [...dim]
//	after, before: [...node]
//	create:  name: {texture: {...}} | {buffer: {size: n}} | {blob: tag}
//	import:  name: {texture: handle} | {buffer: handle}
//	read, modify, history: [...name] | name: {usage, stage, optional, slot, blob, shader_var}
//	rename:  to: from | to: {from, usage, history}
//	pass:    {color: [...attachment], depth, depth_read_only, resolve: [...attachment]}
//	block_layer: block: layer
//	wireframe: bool
//	vrs: {rate: [x, y], image: name}
func Compile(v cue.Value) (*Graph, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	g := &Graph{}

	if ev := v.LookupPath(cue.ParsePath("extents")); ev.Exists() {
		iter, err := ev.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			d, ok := multiplex.ParseDim(iter.Label())
			if !ok {
				return nil, fieldErr("extents."+iter.Label(), iter.Value(), "unknown dimension")
			}
			n, err := uintValue("extents."+iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			g.Extents[d] = n
		}
	}

	var err error
	if g.Resolutions, err = parseResolutions(v, "resolution"); err != nil {
		return nil, err
	}
	if g.Dynamic, err = parseResolutions(v, "dynamic_resolution"); err != nil {
		return nil, err
	}

	if sv := v.LookupPath(cue.ParsePath("slot")); sv.Exists() {
		iter, err := sv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			target, err := iter.Value().String()
			if err != nil {
				return nil, fieldErr("slot."+iter.Label(), iter.Value(), "target must be a string")
			}
			g.Slots = append(g.Slots, Slot{Path: iter.Label(), Target: target})
		}
	}

	if nv := v.LookupPath(cue.ParsePath("node")); nv.Exists() {
		iter, err := nv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			n, err := parseNode(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			g.Nodes = append(g.Nodes, n)
		}
	}
	return g, nil
}

func parseResolutions(v cue.Value, field string) ([]Resolution, error) {
	rv := v.LookupPath(cue.ParsePath(field))
	if !rv.Exists() {
		return nil, nil
	}
	iter, err := rv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []Resolution
	for iter.Next() {
		name := field + "." + iter.Label()
		w, err := uintField(name, iter.Value(), "width")
		if err != nil {
			return nil, err
		}
		h, err := uintField(name, iter.Value(), "height")
		if err != nil {
			return nil, err
		}
		out = append(out, Resolution{Type: iter.Label(), Width: w, Height: h})
	}
	return out, nil
}

func parseNode(path string, v cue.Value) (Node, error) {
	field := "node." + path
	n := Node{Path: path, SideEffects: registry.SideEffectsInternal}
	if pos := v.Pos(); pos.IsValid() {
		n.SourceTag = fmt.Sprintf("%s:%d", pos.Filename(), pos.Line())
	}

	if s, ok, err := optString(field, v, "side_effects"); err != nil {
		return n, err
	} else if ok {
		se, known := registry.ParseSideEffects(s)
		if !known {
			return n, fieldErr(field+".side_effects", v, "unknown side effects %q", s)
		}
		n.SideEffects = se
	}

	if pv := v.LookupPath(cue.ParsePath("priority")); pv.Exists() {
		p, err := parsePriority(field+".priority", pv)
		if err != nil {
			return n, err
		}
		n.Priority = p
	}

	dims, err := stringList(field+".multiplex", v.LookupPath(cue.ParsePath("multiplex")))
	if err != nil {
		return n, err
	}
	for _, d := range dims {
		dim, ok := multiplex.ParseDim(d)
		if !ok {
			return n, fieldErr(field+".multiplex", v, "unknown dimension %q", d)
		}
		n.Multiplex |= 1 << dim
	}

	if n.After, err = stringList(field+".after", v.LookupPath(cue.ParsePath("after"))); err != nil {
		return n, err
	}
	if n.Before, err = stringList(field+".before", v.LookupPath(cue.ParsePath("before"))); err != nil {
		return n, err
	}
	if n.Creates, err = parseCreates(field+".create", v.LookupPath(cue.ParsePath("create"))); err != nil {
		return n, err
	}
	if n.Imports, err = parseImports(field+".import", v.LookupPath(cue.ParsePath("import"))); err != nil {
		return n, err
	}
	if n.Reads, err = parseUses(field+".read", v.LookupPath(cue.ParsePath("read"))); err != nil {
		return n, err
	}
	if n.Modifies, err = parseUses(field+".modify", v.LookupPath(cue.ParsePath("modify"))); err != nil {
		return n, err
	}
	if n.History, err = parseUses(field+".history", v.LookupPath(cue.ParsePath("history"))); err != nil {
		return n, err
	}
	if n.Renames, err = parseRenames(field+".rename", v.LookupPath(cue.ParsePath("rename"))); err != nil {
		return n, err
	}
	if pv := v.LookupPath(cue.ParsePath("pass")); pv.Exists() {
		if n.Pass, err = parsePass(field+".pass", pv); err != nil {
			return n, err
		}
	}

	if bv := v.LookupPath(cue.ParsePath("block_layer")); bv.Exists() {
		iter, err := bv.Fields()
		if err != nil {
			return n, formatCUEError(err)
		}
		for iter.Next() {
			layer, err := iter.Value().Int64()
			if err != nil || layer < math.MinInt32 || layer > math.MaxInt32 {
				return n, fieldErr(field+".block_layer."+iter.Label(), iter.Value(), "layer must be an int32")
			}
			n.BlockLayers = append(n.BlockLayers, registry.BlockLayer{Block: iter.Label(), Layer: int32(layer)})
		}
	}

	if wv := v.LookupPath(cue.ParsePath("wireframe")); wv.Exists() {
		if n.Wireframe, err = wv.Bool(); err != nil {
			return n, fieldErr(field+".wireframe", wv, "must be a bool")
		}
	}

	if vv := v.LookupPath(cue.ParsePath("vrs")); vv.Exists() {
		if n.VRS, err = parseVRS(field+".vrs", vv); err != nil {
			return n, err
		}
	}
	return n, nil
}

func parsePriority(field string, v cue.Value) (int32, error) {
	if s, err := v.String(); err == nil {
		switch s {
		case "early":
			return registry.PrioAsEarlyAsPossible, nil
		case "late":
			return registry.PrioAsLateAsPossible, nil
		case "default":
			return registry.PrioDefault, nil
		}
		return 0, fieldErr(field, v, "unknown priority %q", s)
	}
	p, err := v.Int64()
	if err != nil || p < math.MinInt32 || p > math.MaxInt32 {
		return 0, fieldErr(field, v, "must be an int32, \"early\" or \"late\"")
	}
	return int32(p), nil
}

func parseCreates(field string, v cue.Value) ([]Create, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []Create
	for iter.Next() {
		name := iter.Label()
		cv := iter.Value()
		cf := field + "." + name
		c := Create{Name: name}

		switch {
		case cv.LookupPath(cue.ParsePath("texture")).Exists():
			c.Kind = registry.KindTexture
			if c.Texture, err = parseTexture(cf+".texture", cv.LookupPath(cue.ParsePath("texture"))); err != nil {
				return nil, err
			}
		case cv.LookupPath(cue.ParsePath("buffer")).Exists():
			c.Kind = registry.KindBuffer
			bv := cv.LookupPath(cue.ParsePath("buffer"))
			size, err := uint64Field(cf+".buffer", bv, "size")
			if err != nil {
				return nil, err
			}
			c.Buffer = registry.BufferDesc{Size: size}
		case cv.LookupPath(cue.ParsePath("blob")).Exists():
			c.Kind = registry.KindBlob
			bv := cv.LookupPath(cue.ParsePath("blob"))
			if c.Tag, err = bv.String(); err != nil {
				return nil, fieldErr(cf+".blob", bv, "blob tag must be a string")
			}
		default:
			return nil, fieldErr(cf, cv, "one of texture, buffer or blob is required")
		}

		if c.Usage, c.Stages, err = parseUsageStages(cf, cv); err != nil {
			return nil, err
		}
		if s, ok, err := optString(cf, cv, "history"); err != nil {
			return nil, err
		} else if ok {
			h, known := registry.ParseHistory(s)
			if !known {
				return nil, fieldErr(cf+".history", cv, "unknown history policy %q", s)
			}
			c.History = h
		}
		if c.ShaderVar, _, err = optString(cf, cv, "shader_var"); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

var textureFormats = func() map[string]gputypes.TextureFormat {
	m := make(map[string]gputypes.TextureFormat)
	for f := gputypes.TextureFormat(1); f <= 0x80; f++ {
		if s := f.String(); s != "Unknown" && s != "Undefined" {
			m[strings.ToLower(s)] = f
		}
	}
	return m
}()

var textureDims = map[string]gputypes.TextureDimension{
	"1d": gputypes.TextureDimension1D,
	"2d": gputypes.TextureDimension2D,
	"3d": gputypes.TextureDimension3D,
}

func parseTexture(field string, v cue.Value) (engine.TextureSpec, error) {
	var spec engine.TextureSpec
	format, err := v.LookupPath(cue.ParsePath("format")).String()
	if err != nil {
		return spec, fieldErr(field+".format", v, "format is required")
	}
	f, ok := textureFormats[strings.ToLower(format)]
	if !ok {
		return spec, fieldErr(field+".format", v, "unknown texture format %q", format)
	}
	spec.Format = f

	if s, ok, err := optString(field, v, "dimension"); err != nil {
		return spec, err
	} else if ok {
		d, known := textureDims[strings.ToLower(s)]
		if !known {
			return spec, fieldErr(field+".dimension", v, "unknown dimension %q", s)
		}
		spec.Dimension = d
	}

	if spec.AutoRes, _, err = optString(field, v, "auto_res"); err != nil {
		return spec, err
	}
	if sv := v.LookupPath(cue.ParsePath("scale")); sv.Exists() {
		s, err := sv.Float64()
		if err != nil || s <= 0 {
			return spec, fieldErr(field+".scale", sv, "scale must be a positive number")
		}
		spec.Scale = float32(s)
	}

	if spec.AutoRes == "" {
		if spec.Size.Width, err = uintField(field, v, "width"); err != nil {
			return spec, err
		}
		if spec.Size.Height, err = uintField(field, v, "height"); err != nil {
			return spec, err
		}
	}
	spec.Size.DepthOrArrayLayers = 1
	if dv := v.LookupPath(cue.ParsePath("layers")); dv.Exists() {
		if spec.Size.DepthOrArrayLayers, err = uintValue(field+".layers", dv); err != nil {
			return spec, err
		}
	}
	if mv := v.LookupPath(cue.ParsePath("mips")); mv.Exists() {
		if spec.MipLevels, err = uintValue(field+".mips", mv); err != nil {
			return spec, err
		}
	}
	return spec, nil
}

func parseImports(field string, v cue.Value) ([]Import, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []Import
	for iter.Next() {
		iv := iter.Value()
		imf := field + "." + iter.Label()
		im := Import{Name: iter.Label()}
		var hv cue.Value
		switch {
		case iv.LookupPath(cue.ParsePath("texture")).Exists():
			im.Kind = registry.KindTexture
			hv = iv.LookupPath(cue.ParsePath("texture"))
		case iv.LookupPath(cue.ParsePath("buffer")).Exists():
			im.Kind = registry.KindBuffer
			hv = iv.LookupPath(cue.ParsePath("buffer"))
		default:
			return nil, fieldErr(imf, iv, "one of texture or buffer is required")
		}
		h, err := hv.Uint64()
		if err != nil {
			return nil, fieldErr(imf, hv, "handle must be an unsigned integer")
		}
		im.Handle = h
		if im.Usage, _, err = parseUsageStages(imf, iv); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, nil
}

// parseUses accepts a list of names or a struct of name to options.
func parseUses(field string, v cue.Value) ([]Use, error) {
	if !v.Exists() {
		return nil, nil
	}
	if v.IncompleteKind() == cue.ListKind {
		names, err := stringList(field, v)
		if err != nil {
			return nil, err
		}
		out := make([]Use, 0, len(names))
		for _, n := range names {
			out = append(out, Use{Name: n})
		}
		return out, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []Use
	for iter.Next() {
		uv := iter.Value()
		uf := field + "." + iter.Label()
		u := Use{Name: iter.Label()}
		if u.Usage, u.Stages, err = parseUsageStages(uf, uv); err != nil {
			return nil, err
		}
		if u.Optional, err = optBool(uf, uv, "optional"); err != nil {
			return nil, err
		}
		if u.Slot, err = optBool(uf, uv, "slot"); err != nil {
			return nil, err
		}
		if u.Tag, _, err = optString(uf, uv, "blob"); err != nil {
			return nil, err
		}
		if u.ShaderVar, _, err = optString(uf, uv, "shader_var"); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func parseRenames(field string, v cue.Value) ([]Rename, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []Rename
	for iter.Next() {
		rv := iter.Value()
		rf := field + "." + iter.Label()
		r := Rename{To: iter.Label()}
		if from, err := rv.String(); err == nil {
			r.From = from
			out = append(out, r)
			continue
		}
		from, ok, err := optString(rf, rv, "from")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fieldErr(rf, rv, "from is required")
		}
		r.From = from
		if r.Usage, _, err = parseUsageStages(rf, rv); err != nil {
			return nil, err
		}
		if s, ok, err := optString(rf, rv, "history"); err != nil {
			return nil, err
		} else if ok {
			h, known := registry.ParseHistory(s)
			if !known {
				return nil, fieldErr(rf+".history", rv, "unknown history policy %q", s)
			}
			r.History = h
		}
		out = append(out, r)
	}
	return out, nil
}

func parsePass(field string, v cue.Value) (*Pass, error) {
	p := &Pass{}
	if cv := v.LookupPath(cue.ParsePath("color")); cv.Exists() {
		list, err := cv.List()
		if err != nil {
			return nil, fieldErr(field+".color", cv, "must be a list")
		}
		for slot := uint32(0); list.Next(); slot++ {
			a, err := parseAttachment(fmt.Sprintf("%s.color[%d]", field, slot), list.Value())
			if err != nil {
				return nil, err
			}
			a.Slot = slot
			p.Colors = append(p.Colors, a)
		}
	}
	if dv := v.LookupPath(cue.ParsePath("depth")); dv.Exists() {
		a, err := parseAttachment(field+".depth", dv)
		if err != nil {
			return nil, err
		}
		p.Depth = &a
	}
	var err error
	if p.DepthReadOnly, err = optBool(field, v, "depth_read_only"); err != nil {
		return nil, err
	}
	if rv := v.LookupPath(cue.ParsePath("resolve")); rv.Exists() {
		list, err := rv.List()
		if err != nil {
			return nil, fieldErr(field+".resolve", rv, "must be a list")
		}
		for slot := uint32(0); list.Next(); slot++ {
			a, err := parseAttachment(fmt.Sprintf("%s.resolve[%d]", field, slot), list.Value())
			if err != nil {
				return nil, err
			}
			a.Slot = slot
			p.Resolves = append(p.Resolves, a)
		}
	}
	return p, nil
}

// parseAttachment accepts a bare target name or
// {target, clear: [r, g, b, a], discard, mip, layer}.
func parseAttachment(field string, v cue.Value) (Attachment, error) {
	var a Attachment
	if s, err := v.String(); err == nil {
		a.Target = s
		return a, nil
	}
	target, ok, err := optString(field, v, "target")
	if err != nil {
		return a, err
	}
	if !ok {
		return a, fieldErr(field, v, "target is required")
	}
	a.Target = target

	if cv := v.LookupPath(cue.ParsePath("clear")); cv.Exists() {
		list, err := cv.List()
		if err != nil {
			return a, fieldErr(field+".clear", cv, "clear must be [r, g, b, a]")
		}
		var rgba []float64
		for list.Next() {
			f, err := list.Value().Float64()
			if err != nil {
				return a, fieldErr(field+".clear", cv, "clear must be [r, g, b, a]")
			}
			rgba = append(rgba, f)
		}
		if len(rgba) != 4 {
			return a, fieldErr(field+".clear", cv, "clear must be [r, g, b, a]")
		}
		a.Clear = &gputypes.Color{R: rgba[0], G: rgba[1], B: rgba[2], A: rgba[3]}
	}
	if a.Discard, err = optBool(field, v, "discard"); err != nil {
		return a, err
	}
	if mv := v.LookupPath(cue.ParsePath("mip")); mv.Exists() {
		if a.Mip, err = uintValue(field+".mip", mv); err != nil {
			return a, err
		}
	}
	if lv := v.LookupPath(cue.ParsePath("layer")); lv.Exists() {
		if a.Layer, err = uintValue(field+".layer", lv); err != nil {
			return a, err
		}
	}
	return a, nil
}

func parseVRS(field string, v cue.Value) (*VRS, error) {
	vrs := &VRS{RateX: 1, RateY: 1}
	if rv := v.LookupPath(cue.ParsePath("rate")); rv.Exists() {
		list, err := rv.List()
		if err != nil {
			return nil, fieldErr(field+".rate", rv, "rate must be [x, y]")
		}
		var rates []uint32
		for list.Next() {
			r, err := uintValue(field+".rate", list.Value())
			if err != nil {
				return nil, err
			}
			rates = append(rates, r)
		}
		if len(rates) != 2 {
			return nil, fieldErr(field+".rate", rv, "rate must be [x, y]")
		}
		vrs.RateX, vrs.RateY = rates[0], rates[1]
	}
	var err error
	if vrs.Image, _, err = optString(field, v, "image"); err != nil {
		return nil, err
	}
	return vrs, nil
}

// parseUsageStages reads the optional usage and stage fields of v.
func parseUsageStages(field string, v cue.Value) (registry.Usage, registry.PipelineStage, error) {
	usage := registry.UsageUnknown
	if s, ok, err := optString(field, v, "usage"); err != nil {
		return usage, 0, err
	} else if ok {
		u, known := registry.ParseUsage(s)
		if !known {
			return usage, 0, fieldErr(field+".usage", v, "unknown usage %q", s)
		}
		usage = u
	}
	names, err := stringList(field+".stage", v.LookupPath(cue.ParsePath("stage")))
	if err != nil {
		return usage, 0, err
	}
	var stages registry.PipelineStage
	for _, n := range names {
		s, ok := registry.ParseStage(n)
		if !ok {
			return usage, 0, fieldErr(field+".stage", v, "unknown stage %q", n)
		}
		stages |= s
	}
	return usage, stages, nil
}

// stringList accepts a single string or a list of strings. A missing
// value yields nil.
func stringList(field string, v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	if s, err := v.String(); err == nil {
		return []string{s}, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, fieldErr(field, v, "must be a string or list of strings")
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, fieldErr(field, iter.Value(), "must be a string")
		}
		out = append(out, s)
	}
	return out, nil
}

func optString(field string, v cue.Value, name string) (string, bool, error) {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return "", false, nil
	}
	s, err := sv.String()
	if err != nil {
		return "", false, fieldErr(field+"."+name, sv, "must be a string")
	}
	return s, true, nil
}

func optBool(field string, v cue.Value, name string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(name))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, fieldErr(field+"."+name, bv, "must be a bool")
	}
	return b, nil
}

func uintField(field string, v cue.Value, name string) (uint32, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return 0, fieldErr(field+"."+name, v, "%s is required", name)
	}
	return uintValue(field+"."+name, fv)
}

func uint64Field(field string, v cue.Value, name string) (uint64, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return 0, fieldErr(field+"."+name, v, "%s is required", name)
	}
	n, err := fv.Uint64()
	if err != nil {
		return 0, fieldErr(field+"."+name, fv, "must be an unsigned integer")
	}
	return n, nil
}

func uintValue(field string, v cue.Value) (uint32, error) {
	n, err := v.Uint64()
	if err != nil || n > math.MaxUint32 {
		return 0, fieldErr(field, v, "must be an unsigned 32-bit integer")
	}
	return uint32(n), nil
}
