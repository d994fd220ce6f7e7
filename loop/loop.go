// Package loop provides the single logical thread the engine runs on.
//
// Every engine mutation, timer tick and fetch completion is executed by one
// goroutine, in the order it was posted.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler runs callbacks on one logical thread
type Scheduler interface {
	// Post queues fn to run on the loop
	Post(fn func())
	// Every runs fn on the loop every d until the returned Timer is stopped
	Every(d time.Duration, fn func()) Timer
}

// Timer is a cancellable periodic callback
type Timer interface {
	// Stop cancels the timer. After Stop returns on the loop, fn never runs again.
	Stop()
}

// Loop is a Scheduler backed by a goroutine draining an unbounded queue
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	active atomic.Int64
}

// New creates a loop; call Run to start processing
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
	}
}

func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes posted callbacks until ctx is done
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// ActiveTimers returns how many timers are currently scheduled
func (l *Loop) ActiveTimers() int {
	return int(l.active.Load())
}

type loopTimer struct {
	loop    *Loop
	ticker  *time.Ticker
	done    chan struct{}
	stopped atomic.Bool
}

func (l *Loop) Every(d time.Duration, fn func()) Timer {
	t := &loopTimer{
		loop:   l,
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	l.active.Add(1)

	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				l.Post(func() {
					// a tick may already be queued when Stop runs
					if t.stopped.Load() {
						return
					}
					fn()
				})
			}
		}
	}()
	return t
}

func (t *loopTimer) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	t.ticker.Stop()
	close(t.done)
	t.loop.active.Add(-1)
}
