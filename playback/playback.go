// Package playback steps a time-indexed field through its time axis.
package playback

import (
	"fmt"
	"time"

	"github.com/MetropolisTHEMA/metroviz/loop"
	"github.com/MetropolisTHEMA/metroviz/scale"
)

// DefaultInterval matches the pace of the original slider animation
const DefaultInterval = 1500 * time.Millisecond

// Status is the controller state
type Status int

const (
	Stopped Status = iota
	Running
	Paused
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StepFunc recomputes and paints one time step
type StepFunc func(index int)

// State is a snapshot of the controller
type State struct {
	Status Status
	Index  int
	Length int
}

// Controller is the playback state machine. It owns at most one timer.
// All methods must be called from the scheduler's loop.
type Controller struct {
	sched    loop.Scheduler
	interval time.Duration
	loop     bool

	status Status
	index  int
	length int
	step   StepFunc
	timer  loop.Timer
	gen    uint64

	// OnStop is called when playback reaches the end of a non-looping series
	OnStop func()
	// OnTick is called after every timer-driven step
	OnTick func(index int)
}

// New creates a stopped controller. A non-positive interval uses DefaultInterval.
func New(sched loop.Scheduler, interval time.Duration, loopPlayback bool) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Controller{
		sched:    sched,
		interval: interval,
		loop:     loopPlayback,
	}
}

// State returns the current status, index and series length
func (c *Controller) State() State {
	return State{Status: c.status, Index: c.index, Length: c.length}
}

// Status returns the current status
func (c *Controller) Status() Status {
	return c.status
}

// Index returns the step the next tick will paint
func (c *Controller) Index() int {
	return c.index
}

// Length returns the series length
func (c *Controller) Length() int {
	return c.length
}

// Interval returns the tick interval
func (c *Controller) Interval() time.Duration {
	return c.interval
}

// SetLoop toggles wrap-around at the end of the series
func (c *Controller) SetLoop(v bool) {
	c.loop = v
}

// Loop reports whether playback wraps around
func (c *Controller) Loop() bool {
	return c.loop
}

// Start cancels any running playback and starts ticking a series of n steps from index 0
func (c *Controller) Start(n int, step StepFunc) error {
	c.Stop()
	if n <= 0 {
		c.length = 0
		c.step = nil
		return fmt.Errorf("start playback: %w", scale.ErrEmptyDomain)
	}

	c.length = n
	c.step = step
	c.index = 0
	c.status = Running
	c.arm()
	return nil
}

// Tick paints the current step and advances. Calling it while not Running is a programming error.
func (c *Controller) Tick() {
	if c.status != Running {
		panic(fmt.Sprintf("playback: tick while %s", c.status))
	}

	current := c.index
	c.step(current)

	next := current + 1
	if next >= c.length {
		if !c.loop {
			c.Stop()
			if c.OnTick != nil {
				c.OnTick(current)
			}
			if c.OnStop != nil {
				c.OnStop()
			}
			return
		}
		next = 0
	}
	c.index = next
	if c.OnTick != nil {
		c.OnTick(current)
	}
}

// Seek paints step i (clamped to the series) without changing the status.
// The next tick continues from i.
func (c *Controller) Seek(i int) error {
	if c.length == 0 || c.step == nil {
		return fmt.Errorf("seek: %w", scale.ErrEmptyDomain)
	}
	if i < 0 {
		i = 0
	}
	if i > c.length-1 {
		i = c.length - 1
	}
	c.index = i
	c.step(i)
	return nil
}

// Pause stops ticking but keeps the position. It reports whether the status changed.
func (c *Controller) Pause() bool {
	if c.status != Running {
		return false
	}
	c.disarm()
	c.status = Paused
	return true
}

// Resume restarts ticking from the paused position. It reports whether the status changed.
func (c *Controller) Resume() bool {
	if c.status != Paused {
		return false
	}
	c.status = Running
	c.arm()
	return true
}

// Stop cancels the timer and rewinds to index 0. The series stays loaded for Seek.
func (c *Controller) Stop() {
	c.disarm()
	c.index = 0
	c.status = Stopped
}

// Active reports whether a timer is currently owned
func (c *Controller) Active() bool {
	return c.timer != nil
}

func (c *Controller) arm() {
	c.disarm()
	c.gen++
	gen := c.gen
	c.timer = c.sched.Every(c.interval, func() {
		// callbacks of a replaced timer are stale
		if gen != c.gen || c.status != Running {
			return
		}
		c.Tick()
	})
}

func (c *Controller) disarm() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}
