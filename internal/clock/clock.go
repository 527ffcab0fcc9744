// Package clock provides the injected notion of "now" used by the engine and
// the cache, so tests can advance time without real timers.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current instant in epoch milliseconds.
type Clock func() int64

// System is the wall clock.
func System() int64 {
	return time.Now().UnixMilli()
}

// Manual is a clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now int64
}

// NewManual creates a manual clock starting at nowMs.
func NewManual(nowMs int64) *Manual {
	return &Manual{now: nowMs}
}

// Now returns the current manual instant.
func (m *Manual) Now() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to nowMs.
func (m *Manual) Set(nowMs int64) {
	m.mu.Lock()
	m.now = nowMs
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d.Milliseconds()
	return m.now
}

// Clock returns the manual clock as a Clock func.
func (m *Manual) Clock() Clock {
	return m.Now
}
