package loop

import (
	"sync"
	"time"
)

// Manual is a deterministic Scheduler: nothing runs until Drain or Fire is called.
// Post may be called from any goroutine; Drain and Fire belong to the test goroutine.
type Manual struct {
	mu      sync.Mutex
	queue   []func()
	timers  []*manualTimer
	created int
	posted  chan struct{}
}

// NewManual creates an idle manual scheduler
func NewManual() *Manual {
	return &Manual{posted: make(chan struct{}, 1)}
}

type manualTimer struct {
	interval time.Duration
	fn       func()
	stopped  bool
}

func (t *manualTimer) Stop() {
	t.stopped = true
}

func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()

	select {
	case m.posted <- struct{}{}:
	default:
	}
}

func (m *Manual) Every(d time.Duration, fn func()) Timer {
	t := &manualTimer{interval: d, fn: fn}
	m.mu.Lock()
	m.timers = append(m.timers, t)
	m.created++
	m.mu.Unlock()
	return t
}

// Drain runs queued callbacks, including ones queued while draining
func (m *Manual) Drain() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return n
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		fn()
		n++
	}
}

// Wait blocks until a callback is queued or the timeout expires.
// It reports whether the queue is non-empty.
func (m *Manual) Wait(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		m.mu.Lock()
		n := len(m.queue)
		m.mu.Unlock()
		if n > 0 {
			return true
		}
		select {
		case <-m.posted:
		case <-deadline.C:
			return false
		}
	}
}

// Fire runs one tick of every active timer, then drains the queue.
// It returns how many timer callbacks ran.
func (m *Manual) Fire() int {
	m.mu.Lock()
	timers := append([]*manualTimer(nil), m.timers...)
	m.mu.Unlock()

	fired := 0
	for _, t := range timers {
		if t.stopped {
			continue
		}
		t.fn()
		fired++
	}
	m.mu.Lock()
	m.compact()
	m.mu.Unlock()
	m.Drain()
	return fired
}

// ActiveTimers returns the number of scheduled, non-stopped timers
func (m *Manual) ActiveTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compact()
	return len(m.timers)
}

// TimersCreated counts every Every call
func (m *Manual) TimersCreated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

// Interval returns the interval of the first active timer, or 0
func (m *Manual) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compact()
	if len(m.timers) == 0 {
		return 0
	}
	return m.timers[0].interval
}

func (m *Manual) compact() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
}
