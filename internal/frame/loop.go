package frame

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFPS is the frame rate used when none is configured
const DefaultFPS = 60

// Loop is a real-time Scheduler that runs a frame every 1/fps seconds on a
// single goroutine.
type Loop struct {
	queue

	interval time.Duration
	frames   atomic.Uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop creates a Loop; fps <= 0 selects DefaultFPS
func NewLoop(fps int) *Loop {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Loop{interval: time.Second / time.Duration(fps)}
}

// Now returns the wall clock time
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Interval returns the time between frames
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Frames returns the number of frames run so far
func (l *Loop) Frames() uint64 {
	return l.frames.Load()
}

// Start runs frames in the background until ctx is done or Stop is called.
// Calling Start on a running Loop does nothing.
func (l *Loop) Start(ctx context.Context) {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	if l.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

// Stop halts the loop and waits for the current frame to finish. It must
// not be called from a frame callback.
func (l *Loop) Stop() {
	l.runMu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.runMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.queue.run(now)
			l.frames.Add(1)
		}
	}
}
