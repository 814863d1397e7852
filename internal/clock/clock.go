// Package clock supplies the logical clock read by the hedge engine.
// Season boundaries are expressed in clock units (block heights).
package clock

import (
	"sync"
	"time"
)

// Clock reports the current logical time. Implementations must never go
// backwards.
type Clock interface {
	Now() int64
}

// Manual is a clock that only moves when told to. Used in tests and for
// local development.
type Manual struct {
	mu  sync.RWMutex
	now int64
}

// NewManual creates a manual clock starting at height.
func NewManual(height int64) *Manual {
	return &Manual{now: height}
}

func (m *Manual) Now() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set moves the clock to height. Attempts to move backwards are ignored.
func (m *Manual) Set(height int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if height > m.now {
		m.now = height
	}
}

// Advance moves the clock forward by n units.
func (m *Manual) Advance(n int64) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.now += n
	m.mu.Unlock()
}

// Blocks derives a height from wall time: one unit per Interval since
// Genesis. Heights before genesis read as zero.
type Blocks struct {
	Genesis  time.Time
	Interval time.Duration
	now      func() time.Time
}

// NewBlocks creates a wall-time backed clock. A non-positive interval
// defaults to ten minutes.
func NewBlocks(genesis time.Time, interval time.Duration) *Blocks {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Blocks{Genesis: genesis, Interval: interval, now: time.Now}
}

func (b *Blocks) Now() int64 {
	elapsed := b.now().Sub(b.Genesis)
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed / b.Interval)
}
