package desc

import (
	"fmt"
	"strconv"
	"strings"
)

// Structural error codes (E120-E129). These are problems Compile accepts
// because every field is well formed on its own, but that no frame graph
// can satisfy.
const (
	ErrDuplicateNode      = "E120" // two labels name the same node
	ErrDuplicateProducer  = "E121" // a name is created, imported or renamed to twice
	ErrSelfRename         = "E122" // rename to its own source
	ErrSelfOrdering       = "E123" // after/before names the node itself
	ErrReadModifyConflict = "E124" // a name is both read and modified
	ErrDuplicateConsumer  = "E125" // two renames consume the same name
	ErrDuplicateTarget    = "E126" // a pass attaches the same target twice
	ErrEmptyResolution    = "E127" // zero width or height
	ErrEmptySlotTarget    = "E128" // slot with no target
)

// ValidationError is one structural problem in a description.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks g for structural problems. All problems are returned,
// in description order.
func Validate(g *Graph) []ValidationError {
	var errs []ValidationError

	for _, r := range g.Resolutions {
		errs = append(errs, validateResolution("resolution."+r.Type, r)...)
	}
	for _, r := range g.Dynamic {
		errs = append(errs, validateResolution("dynamic_resolution."+r.Type, r)...)
	}
	for _, s := range g.Slots {
		if strings.TrimSpace(s.Target) == "" {
			errs = append(errs, ValidationError{
				Field:   "slot." + s.Path,
				Message: "slot target must be non-empty",
				Code:    ErrEmptySlotTarget,
			})
		}
	}

	seen := make(map[string]string, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		key := strings.TrimPrefix(n.Path, "/")
		if first, ok := seen[key]; ok {
			errs = append(errs, ValidationError{
				Field:   "node." + n.Path,
				Message: fmt.Sprintf("duplicates node %q", first),
				Code:    ErrDuplicateNode,
				Line:    sourceLine(n.SourceTag),
			})
			continue
		}
		seen[key] = n.Path
		errs = append(errs, validateNode(n)...)
	}
	return errs
}

func validateResolution(field string, r Resolution) []ValidationError {
	if r.Width > 0 && r.Height > 0 {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Message: fmt.Sprintf("resolution %dx%d is empty", r.Width, r.Height),
		Code:    ErrEmptyResolution,
	}}
}

func validateNode(n *Node) []ValidationError {
	var errs []ValidationError
	field := "node." + n.Path
	line := sourceLine(n.SourceTag)
	add := func(sub, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field + "." + sub,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
			Line:    line,
		})
	}

	produced := map[string]string{}
	produce := func(sub, name string) {
		if prev, ok := produced[name]; ok {
			add(sub+"."+name, ErrDuplicateProducer, "%q is already produced by %s", name, prev)
			return
		}
		produced[name] = sub
	}
	for _, c := range n.Creates {
		produce("create", c.Name)
	}
	for _, im := range n.Imports {
		produce("import", im.Name)
	}
	consumed := map[string]string{}
	for _, rn := range n.Renames {
		if rn.From == rn.To {
			add("rename."+rn.To, ErrSelfRename, "renames %q to itself", rn.From)
			continue
		}
		if prev, ok := consumed[rn.From]; ok {
			add("rename."+rn.To, ErrDuplicateConsumer, "%q is already renamed to %q", rn.From, prev)
		} else {
			consumed[rn.From] = rn.To
		}
		produce("rename", rn.To)
	}

	read := map[string]bool{}
	for _, u := range n.Reads {
		read[u.Name] = true
	}
	for _, u := range n.Modifies {
		if read[u.Name] {
			add("modify."+u.Name, ErrReadModifyConflict, "%q is both read and modified", u.Name)
		}
	}

	leaf := n.Path[strings.LastIndex(n.Path, "/")+1:]
	self := strings.TrimPrefix(n.Path, "/")
	for _, list := range []struct {
		sub   string
		names []string
	}{{"after", n.After}, {"before", n.Before}} {
		for _, name := range list.names {
			if name == leaf || strings.TrimPrefix(name, "/") == self {
				add(list.sub, ErrSelfOrdering, "node cannot be ordered relative to itself")
			}
		}
	}

	if p := n.Pass; p != nil {
		attached := map[string]string{}
		attach := func(sub string, a Attachment) {
			if prev, ok := attached[a.Target]; ok {
				add(sub, ErrDuplicateTarget, "%q is already attached as %s", a.Target, prev)
				return
			}
			attached[a.Target] = sub
		}
		for _, a := range p.Colors {
			attach(fmt.Sprintf("pass.color[%d]", a.Slot), a)
		}
		if p.Depth != nil {
			attach("pass.depth", *p.Depth)
		}
		for _, a := range p.Resolves {
			attach(fmt.Sprintf("pass.resolve[%d]", a.Slot), a)
		}
	}
	return errs
}

// sourceLine extracts the line from a "file:line" source tag.
func sourceLine(tag string) int {
	i := strings.LastIndex(tag, ":")
	if i < 0 {
		return 0
	}
	line, err := strconv.Atoi(tag[i+1:])
	if err != nil {
		return 0
	}
	return line
}
