// Package frame provides the per-frame callback scheduling that drives
// playback: a real-time Loop for running players and a Manual scheduler
// whose clock only moves when told to.
package frame

import (
	"sync"
	"time"
)

// Handle identifies a pending frame request. The zero Handle is never issued.
type Handle uint64

// Scheduler runs callbacks once on the next frame.
//
// Callbacks requested while a frame is running run on the following frame.
// A cancelled handle never runs, even if its frame has already started.
type Scheduler interface {
	// Request registers fn to run on the next frame with that frame's time.
	Request(fn func(now time.Time)) Handle

	// Cancel drops a pending request. Unknown or already-run handles are ignored.
	Cancel(h Handle)

	// Now returns the scheduler's current time.
	Now() time.Time
}

// queue holds pending frame requests in request order
type queue struct {
	mu      sync.Mutex
	counter uint64
	order   []Handle
	pending map[Handle]func(time.Time)
}

func (q *queue) Request(fn func(now time.Time)) Handle {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending == nil {
		q.pending = make(map[Handle]func(time.Time))
	}
	q.counter++
	h := Handle(q.counter)
	q.pending[h] = fn
	q.order = append(q.order, h)
	return h
}

func (q *queue) Cancel(h Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, h)
}

// Pending returns the number of requests waiting for a frame
func (q *queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// run executes every request made before the frame started and returns how
// many ran. Callbacks run without the lock held.
func (q *queue) run(now time.Time) int {
	q.mu.Lock()
	batch := q.order
	q.order = nil
	q.mu.Unlock()

	ran := 0
	for _, h := range batch {
		q.mu.Lock()
		fn, ok := q.pending[h]
		delete(q.pending, h)
		q.mu.Unlock()

		if ok {
			fn(now)
			ran++
		}
	}
	return ran
}
