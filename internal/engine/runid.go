package engine

import "github.com/google/uuid"

// RunIDGenerator names a runtime's run. Stored frames and reports are keyed
// by it. Implemented by UUIDv7Generator (production) and
// testutil.FixedRunIDs (tests).
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids, so runs listed by
// id come back in creation order.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
