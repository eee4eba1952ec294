// Package store provides SQLite-backed storage for framegraph run logs.
//
// A run is one process driving a runtime over a description. For every
// executed frame the store keeps:
//   - Frames: the compiled frame's hash, schedule and canonical form
//   - Reports: validation reports raised while the frame ran
//   - Diagnostics: compile diagnostics the frame carried
//
// # Ordering
//
// Rows are ordered by frame number then seq, never by timestamps, so two
// runs over the same description read back identically.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Frame hashes come from ir.Frame.Hash.
package store
