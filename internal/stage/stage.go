// Package stage tracks which compilation stages must re-run after an edit.
package stage

import "fmt"

// Stage is one step of the recompilation pipeline. Stages are ordered from
// most invalidating to least; re-running a stage re-runs every later one.
type Stage int

const (
	NodeDeclarationUpdate Stage = iota
	NameResolution
	DependencyDataCalculation
	IRGraphBuild
	NodeScheduling
	StateDeltaRecalculation
	ResourceScheduling
	HistoryInitialization
	UpToDate
)

var names = [...]string{
	"node_declaration_update",
	"name_resolution",
	"dependency_data_calculation",
	"ir_graph_build",
	"node_scheduling",
	"state_delta_recalculation",
	"resource_scheduling",
	"history_initialization",
	"up_to_date",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(names) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return names[s]
}

// Tracker holds the earliest dirty stage.
type Tracker struct {
	dirty Stage
}

// NewTracker starts fully dirty so the first compile runs every stage.
func NewTracker() *Tracker {
	return &Tracker{dirty: NodeDeclarationUpdate}
}

// MarkDirty records that s and everything after it must re-run. An earlier
// mark dominates.
func (t *Tracker) MarkDirty(s Stage) {
	if s < t.dirty {
		t.dirty = s
	}
}

// Dirty returns the earliest stage that must re-run, or UpToDate.
func (t *Tracker) Dirty() Stage {
	return t.dirty
}

// UpToDate reports whether nothing needs to re-run.
func (t *Tracker) UpToDate() bool {
	return t.dirty == UpToDate
}

// Run calls fn for every stage from the dirty mark through the last real
// stage, then marks the tracker up to date. fn may mark an earlier stage
// dirty again; the loop then restarts from that stage.
func (t *Tracker) Run(fn func(Stage)) {
	for t.dirty < UpToDate {
		s := t.dirty
		t.dirty = s + 1
		fn(s)
	}
}
