package store

import (
	"github.com/roach88/framegraph/internal/multiplex"
)

// Run is one process driving a runtime over a description.
type Run struct {
	ID string
	// Source is the description the run was loaded from.
	Source        string
	Extents       multiplex.Extents
	EngineVersion string
	IRVersion     string
}

// FrameRecord is one executed frame.
type FrameRecord struct {
	RunID string
	Frame uint32
	// Hash is the compiled frame's hash. Consecutive frames share it until
	// something recompiles.
	Hash      string
	Scheduled []string
	Culled    []string
	Pruned    []string
	// Canonical is the frame's canonical JSON, kept for trace, compare and
	// replay. It is never loaded back as graph state.
	Canonical string
}

// ReportRecord is a stored validation report.
type ReportRecord struct {
	RunID    string
	Frame    uint32
	Seq      int64
	Node     string
	Kind     string
	Slot     string
	Expected string
	// Observed is empty when nothing was bound.
	Observed string
}

// DiagnosticRecord is a stored compile diagnostic.
type DiagnosticRecord struct {
	RunID    string
	Frame    uint32
	Seq      int64
	Code     string
	Severity string
	Message  string
	Node     string
	Resource string
}
