// Package ir holds the compiled form of a frame graph.
//
// A Frame is what the compiler produces and the executor consumes: the
// multiplexed node instances, their execution order, the state deltas and
// barriers between them, the physical resource assignment, and the history
// events for the next frame. Frames are plain data and can be serialized,
// hashed and diffed.
//
// Key design constraints:
//   - Canonical JSON carries no floats; floats are rendered as strings
//   - All JSON tags use snake_case
//   - Frame hashes ignore diagnostics, so warnings never change identity
package ir
