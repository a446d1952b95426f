// Package schedule provides cancelable deferred tasks on top of a
// swappable clock. The session controller owns at most one outstanding
// compile task and one outstanding timer task at a time; both are handles
// from this package.
package schedule

import (
	"sync"
	"time"
)

// Scheduler schedules one-shot tasks against a Clock.
type Scheduler struct {
	clock Clock
}

// NewScheduler creates a Scheduler on the given clock.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Handle is an outstanding scheduled task. Cancel prevents the task from
// running if it has not fired yet; after Cancel returns the callback will
// not start.
type Handle struct {
	mu       sync.Mutex
	timer    Timer
	canceled bool
	fired    bool
}

// Schedule runs fn once after delay. The returned handle cancels it.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) *Handle {
	h := &Handle{}
	h.timer = s.clock.AfterFunc(delay, func() {
		h.mu.Lock()
		if h.canceled {
			h.mu.Unlock()
			return
		}
		h.fired = true
		h.mu.Unlock()
		fn()
	})
	return h
}

// Cancel stops the task. Calling Cancel more than once is safe. It reports
// whether the task was prevented from firing.
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled || h.fired {
		return false
	}
	h.canceled = true
	h.timer.Stop()
	return true
}

// Fired reports whether the callback has started.
func (h *Handle) Fired() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired
}
