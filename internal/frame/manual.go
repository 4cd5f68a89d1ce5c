package frame

import (
	"sync"
	"time"
)

// Manual is a Scheduler whose clock only moves when Advance is called. It is
// used by tests and for rendering a replay faster than real time.
type Manual struct {
	queue

	clockMu sync.Mutex
	now     time.Time
}

// NewManual creates a Manual scheduler starting at start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the manual clock time
func (m *Manual) Now() time.Time {
	m.clockMu.Lock()
	defer m.clockMu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and runs one frame. It returns the
// number of callbacks that ran.
func (m *Manual) Advance(d time.Duration) int {
	m.clockMu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	m.clockMu.Unlock()

	return m.queue.run(now)
}

// Step runs one frame without moving the clock
func (m *Manual) Step() int {
	return m.Advance(0)
}

// RunFor advances the clock in steps of step until total has elapsed or
// nothing is pending any more. It returns the number of frames run.
func (m *Manual) RunFor(total, step time.Duration) int {
	if step <= 0 {
		return 0
	}
	frames := 0
	for elapsed := time.Duration(0); elapsed < total && m.Pending() > 0; elapsed += step {
		m.Advance(step)
		frames++
	}
	return frames
}
