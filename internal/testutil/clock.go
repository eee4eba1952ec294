package testutil

import "sync"

// DeterministicClock counts frames from a fixed start.
//
// Unlike engine.FrameClock it can be reset, so one scenario can run several
// times and see the same frame indices, and with them the same history
// parities.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start uint32
	frame uint32
}

// NewDeterministicClock creates a clock whose first Next returns start+1.
func NewDeterministicClock(start uint32) *DeterministicClock {
	return &DeterministicClock{start: start, frame: start}
}

// Next advances to the next frame and returns its index.
func (c *DeterministicClock) Next() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame++
	return c.frame
}

// Current returns the index of the last frame without advancing.
func (c *DeterministicClock) Current() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = c.start
}
