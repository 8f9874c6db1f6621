// Package clock provides Lamport-style logical clocks used to order
// causally related operations across sessions and nodes.
//
// Every event ticks the clock; every timestamp received from elsewhere is
// merged with max(local, remote)+1. Two operations A and B issued through
// the same clock with A before B always satisfy A < B.
package clock

import (
	"strconv"
	"sync"
)

// Timestamp is a logical time value. Zero means "nothing observed yet".
type Timestamp uint64

// Compare returns -1, 0 or +1 depending on whether t is before, equal to
// or after other.
func (t Timestamp) Compare(other Timestamp) int {
	switch {
	case t < other:
		return -1
	case t > other:
		return 1
	default:
		return 0
	}
}

// Before reports whether t happened before other.
func (t Timestamp) Before(other Timestamp) bool {
	return t < other
}

// String returns the decimal representation of the timestamp
func (t Timestamp) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// LogicalClock is a concurrency-safe Lamport clock.
type LogicalClock struct {
	mu  sync.Mutex
	now Timestamp
}

// New creates a clock starting at zero.
func New() *LogicalClock {
	return &LogicalClock{}
}

// Tick advances the clock by one and returns the new value.
func (c *LogicalClock) Tick() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now++
	return c.now
}

// Merge folds a remote timestamp into the clock and returns
// max(local, remote)+1.
func (c *LogicalClock) Merge(remote Timestamp) Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote > c.now {
		c.now = remote
	}
	c.now++
	return c.now
}

// Observe raises the clock to remote without ticking past it. Used when
// replaying history that has already been ordered elsewhere.
func (c *LogicalClock) Observe(remote Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote > c.now {
		c.now = remote
	}
}

// Now returns the current value without advancing it.
func (c *LogicalClock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}
