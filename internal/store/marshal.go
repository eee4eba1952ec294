package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/framegraph/internal/executor"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
)

// marshalNames converts a name list to canonical JSON TEXT.
func marshalNames(names []string) (string, error) {
	arr := make(ir.Array, 0, len(names))
	for _, n := range names {
		arr = append(arr, ir.String(n))
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal names: %w", err)
	}
	return string(data), nil
}

// unmarshalNames parses a stored name list. An empty list reads back as an
// empty slice, not nil.
func unmarshalNames(data string) ([]string, error) {
	names := []string{}
	if data == "" || data == "[]" {
		return names, nil
	}
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("unmarshal names: %w", err)
	}
	return names, nil
}

func marshalExtents(e multiplex.Extents) (string, error) {
	arr := make(ir.Array, 0, len(e))
	for _, n := range e {
		arr = append(arr, ir.Int(n))
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal extents: %w", err)
	}
	return string(data), nil
}

func unmarshalExtents(data string) (multiplex.Extents, error) {
	var e multiplex.Extents
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return e, fmt.Errorf("unmarshal extents: %w", err)
	}
	return e, nil
}

// NewFrameRecord builds the record of frame f executed as frame number n.
func NewFrameRecord(runID string, n uint32, f *ir.Frame) (FrameRecord, error) {
	hash, err := f.Hash()
	if err != nil {
		return FrameRecord{}, err
	}
	canonical, err := ir.MarshalCanonical(f.Canonical())
	if err != nil {
		return FrameRecord{}, fmt.Errorf("marshal frame: %w", err)
	}
	return FrameRecord{
		RunID:     runID,
		Frame:     n,
		Hash:      hash,
		Scheduled: f.ScheduledLabels(),
		Culled:    f.Culled,
		Pruned:    f.Pruned,
		Canonical: string(canonical),
	}, nil
}

// reportRecord flattens an executor report for storage.
func reportRecord(runID string, seq int64, r executor.Report) ReportRecord {
	rec := ReportRecord{
		RunID:    runID,
		Frame:    r.Frame,
		Seq:      seq,
		Node:     r.Node,
		Kind:     string(r.Kind),
		Slot:     r.Slot,
		Expected: viewName(r.ExpectedName, r.Expected),
	}
	if r.Bound {
		rec.Observed = viewName(r.ObservedName, r.Observed)
	}
	return rec
}

func viewName(name string, v registry.View) string {
	if name == "" {
		name = fmt.Sprintf("#%d", v.Handle)
	}
	if v.Mip != 0 || v.Layer != 0 {
		return fmt.Sprintf("%s@%d.%d", name, v.Mip, v.Layer)
	}
	return name
}
