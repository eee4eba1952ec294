package engine

import "sync/atomic"

// Clock hands out frame indices. The executor reads history from the
// previous index's instance and writes the current one, so consecutive
// indices must alternate parity.
type Clock interface {
	Next() uint32
	Current() uint32
}

// FrameClock is a monotonic frame counter.
//
// Thread-safety: FrameClock is safe for concurrent use (atomic operations),
// though a runtime only advances it from RunNodes.
type FrameClock struct {
	frame atomic.Uint32
}

// NewFrameClock creates a clock whose first Next returns 1.
func NewFrameClock() *FrameClock {
	return &FrameClock{}
}

// NewFrameClockAt creates a clock whose first Next returns start+1.
func NewFrameClockAt(start uint32) *FrameClock {
	c := &FrameClock{}
	c.frame.Store(start)
	return c
}

// Next advances to the next frame and returns its index.
func (c *FrameClock) Next() uint32 {
	return c.frame.Add(1)
}

// Current returns the index of the last frame without advancing.
func (c *FrameClock) Current() uint32 {
	return c.frame.Load()
}
