package executor

import (
	"fmt"

	"github.com/roach88/framegraph/internal/registry"
)

// ReportKind is the kind of binding a report is about.
type ReportKind string

const (
	ReportShaderVar    ReportKind = "shader_var"
	ReportRenderTarget ReportKind = "render_target"
)

// Report is one binding a node was expected to leave in place but did not.
// Observed is the zero View and ObservedName is empty when nothing was
// bound.
type Report struct {
	Frame        uint32
	Node         string
	Kind         ReportKind
	Slot         string
	Expected     registry.View
	ExpectedName string
	Observed     registry.View
	ObservedName string
	Bound        bool
}

func (r Report) String() string {
	observed := "nothing"
	if r.Bound {
		observed = describe(r.ObservedName, r.Observed)
	}
	return fmt.Sprintf("node %s left %s %s bound to %s, expected %s",
		r.Node, r.Kind, r.Slot, observed, describe(r.ExpectedName, r.Expected))
}

func describe(name string, v registry.View) string {
	return fmt.Sprintf("%s (mip %d, layer %d)", name, v.Mip, v.Layer)
}

// ReportSink receives every validation report.
type ReportSink func(Report)
