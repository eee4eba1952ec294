package testutil

import (
	"fmt"
	"strings"

	"github.com/roach88/framegraph/internal/executor"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/registry"
)

// RecordingDevice is an executor.Device that records every call as a line
// of text and tracks what is bound.
//
// Views are written as "#<handle>" so traces stay stable across runs that
// allocate in the same order.
type RecordingDevice struct {
	Calls []string

	vars    map[string]registry.View
	targets map[executor.Slot]registry.View
}

// NewRecordingDevice creates an empty recording device.
func NewRecordingDevice() *RecordingDevice {
	return &RecordingDevice{
		vars:    make(map[string]registry.View),
		targets: make(map[executor.Slot]registry.View),
	}
}

// Reset drops recorded calls and bindings.
func (d *RecordingDevice) Reset() {
	d.Calls = nil
	clear(d.vars)
	clear(d.targets)
}

// Count returns how many recorded calls start with prefix.
func (d *RecordingDevice) Count(prefix string) int {
	n := 0
	for _, c := range d.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (d *RecordingDevice) record(format string, args ...any) {
	d.Calls = append(d.Calls, fmt.Sprintf(format, args...))
}

// ViewString formats a view the way the device records it.
func ViewString(v registry.View) string {
	s := fmt.Sprintf("#%d", v.Handle)
	if v.Mip != 0 || v.Layer != 0 {
		s += fmt.Sprintf("@%d.%d", v.Mip, v.Layer)
	}
	return s
}

func (d *RecordingDevice) BeginRenderPass(pass executor.RenderPass) {
	clear(d.targets)
	parts := []string{}
	for _, a := range pass.Attachments() {
		d.targets[a.Slot] = a.View
		parts = append(parts, fmt.Sprintf("%s=%s:%s", a.Slot, ViewString(a.View), a.Load))
	}
	d.record("begin_pass %s", strings.Join(parts, " "))
}

func (d *RecordingDevice) EndRenderPass() {
	clear(d.targets)
	d.record("end_pass")
}

func (d *RecordingDevice) BindRenderTarget(slot executor.Slot, view registry.View) {
	d.targets[slot] = view
	d.record("bind_target %s=%s", slot, ViewString(view))
}

func (d *RecordingDevice) RenderTarget(slot executor.Slot) (registry.View, bool) {
	v, ok := d.targets[slot]
	return v, ok
}

func (d *RecordingDevice) BindShaderVar(name string, view registry.View) {
	d.vars[name] = view
	d.record("bind %s=%s", name, ViewString(view))
}

func (d *RecordingDevice) ShaderVar(name string) (registry.View, bool) {
	v, ok := d.vars[name]
	return v, ok
}

// Drift rebinds a shader variable without recording it, the way a node
// that touches device state directly would.
func (d *RecordingDevice) Drift(name string, view registry.View) {
	d.vars[name] = view
}

func (d *RecordingDevice) SetWireframe(on bool) {
	d.record("wireframe %t", on)
}

func (d *RecordingDevice) SetVRS(vrs *executor.VRS) {
	if vrs == nil {
		d.record("vrs default")
		return
	}
	rate := "none"
	if vrs.Rate != nil {
		rate = ViewString(*vrs.Rate)
	}
	d.record("vrs %dx%d rate=%s", vrs.RateX, vrs.RateY, rate)
}

func (d *RecordingDevice) PushBlockLayer(block string, layer int32) {
	d.record("push %s=%d", block, layer)
}

func (d *RecordingDevice) PopBlockLayer(block string) {
	d.record("pop %s", block)
}

func (d *RecordingDevice) Barrier(view registry.View, from, to ir.UsageState) {
	d.record("barrier %s %s/%s -> %s/%s", ViewString(view), from.Usage, from.Access, to.Usage, to.Access)
}

func (d *RecordingDevice) Clear(view registry.View) {
	d.record("clear %s", ViewString(view))
}

// Allocator is an executor.Allocator handing out sequential handles
// starting at 1.
type Allocator struct {
	next     uint64
	Live     map[uint64]ir.PhysicalResource
	Released []uint64
}

// NewAllocator creates an allocator with nothing allocated.
func NewAllocator() *Allocator {
	return &Allocator{Live: make(map[uint64]ir.PhysicalResource)}
}

func (a *Allocator) Allocate(res ir.PhysicalResource) registry.View {
	a.next++
	a.Live[a.next] = res
	return registry.View{Instance: res.Index, Handle: a.next}
}

func (a *Allocator) Release(view registry.View) {
	delete(a.Live, view.Handle)
	a.Released = append(a.Released, view.Handle)
}
