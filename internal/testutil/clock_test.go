package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtStart(t *testing.T) {
	clock := NewDeterministicClock(10)
	assert.Equal(t, uint32(10), clock.Current())
	assert.Equal(t, uint32(11), clock.Next())
}

func TestDeterministicClock_NextAlternatesParity(t *testing.T) {
	clock := NewDeterministicClock(0)
	prev := clock.Current()
	for range 5 {
		curr := clock.Next()
		assert.NotEqual(t, prev%2, curr%2)
		prev = curr
	}
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(3)
	clock.Next()
	clock.Next()
	assert.Equal(t, uint32(5), clock.Current())

	clock.Reset()
	assert.Equal(t, uint32(3), clock.Current())
	assert.Equal(t, uint32(4), clock.Next())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(0)
	const goroutines = 20
	const calls = 50

	var wg sync.WaitGroup
	results := make([][]uint32, goroutines)
	for i := range goroutines {
		results[i] = make([]uint32, calls)
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := range calls {
				results[idx][j] = clock.Next()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[uint32]bool)
	for _, row := range results {
		for _, v := range row {
			require.False(t, seen[v], "duplicate frame %d", v)
			seen[v] = true
		}
	}
	assert.Len(t, seen, goroutines*calls)
}
