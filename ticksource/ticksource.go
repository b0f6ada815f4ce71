// Package ticksource supplies the engine's time base: a monotonically
// increasing tick counter owned by the host environment (e.g. a chain's block
// number). The engine never advances a tick itself.
package ticksource

import (
	"fmt"
	"sync/atomic"
)

// Source reports the host's current tick.
type Source interface {
	Latest() uint64
}

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Manual is a settable tick source for tests and tools. It enforces
// monotonicity: ticks never move backwards.
type Manual struct {
	latest atomic.Uint64
}

// NewManual creates a manual source starting at the given tick.
func NewManual(start uint64) *Manual {
	m := &Manual{}
	m.latest.Store(start)
	return m
}

// Latest implements Source.
func (m *Manual) Latest() uint64 {
	return m.latest.Load()
}

// Set moves the tick to t. Moving backwards is rejected.
func (m *Manual) Set(t uint64) error {
	for {
		current := m.latest.Load()
		if t < current {
			return fmt.Errorf("tick must not decrease: %d < %d", t, current)
		}
		if m.latest.CompareAndSwap(current, t) {
			return nil
		}
	}
}

// Advance moves the tick forward by n and returns the new value.
func (m *Manual) Advance(n uint64) uint64 {
	return m.latest.Add(n)
}
