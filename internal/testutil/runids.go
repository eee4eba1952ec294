package testutil

// FixedRunIDs returns the same run id every time.
//
// Scenario runs stamp every stored frame and report with the run id, so a
// fixed id keeps golden traces byte-identical.
//
// Thread-safety: FixedRunIDs is stateless and safe for concurrent use.
type FixedRunIDs struct {
	id string
}

// NewFixedRunIDs creates a generator returning id. An empty id becomes
// "test-run-default".
func NewFixedRunIDs(id string) *FixedRunIDs {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDs{id: id}
}

// Generate returns the fixed run id.
//
// Implements engine.RunIDGenerator.
func (g *FixedRunIDs) Generate() string {
	return g.id
}
