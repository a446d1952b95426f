// Package timer implements the session countdown clock.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/praxislabs/codelab-engine/internal/schedule"
)

// Countdown is a single one-second-resolution countdown. On reaching zero
// it fires the expiry callback exactly once and never decrements again.
// Stop is deterministic: once it returns, no further tick or expiry
// callback will run.
type Countdown struct {
	mu        sync.Mutex
	sched     *schedule.Scheduler
	duration  int // declared duration, seconds
	remaining int
	pending   *schedule.Handle
	stopped   bool
	expired   bool

	onTick   func(remaining int)
	onExpire func()
}

// New creates a countdown of durationSeconds. onTick fires after every
// elapsed second with the remaining count; onExpire fires exactly once when
// the countdown reaches zero. Either callback may be nil.
func New(sched *schedule.Scheduler, durationSeconds int, onTick func(remaining int), onExpire func()) *Countdown {
	return &Countdown{
		sched:     sched,
		duration:  durationSeconds,
		remaining: durationSeconds,
		onTick:    onTick,
		onExpire:  onExpire,
	}
}

// Start begins ticking. Starting an already started or stopped countdown is
// a no-op.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.pending != nil {
		return
	}
	if c.remaining <= 0 {
		// Degenerate configuration; treat as immediately expired without
		// firing callbacks from Start.
		c.stopped = true
		c.expired = true
		return
	}
	c.pending = c.sched.Schedule(time.Second, c.tick)
}

// Stop cancels the countdown. Safe to call multiple times and from any
// state; a dangling tick after Stop is a correctness bug, not cosmetic.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.pending.Cancel()
	c.pending = nil
}

// Remaining returns the remaining seconds.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Spent returns elapsed seconds, computed verbatim as declared duration
// minus remaining. This value feeds the submission payload.
func (c *Countdown) Spent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration - c.remaining
}

// Expired reports whether the countdown reached zero.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

func (c *Countdown) tick() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.remaining--
	remaining := c.remaining
	tickFn := c.onTick

	var expireFn func()
	if remaining <= 0 {
		c.expired = true
		c.stopped = true
		c.pending = nil
		expireFn = c.onExpire
	} else {
		c.pending = c.sched.Schedule(time.Second, c.tick)
	}
	c.mu.Unlock()

	// Callbacks run outside the lock: expiry triggers a forced submission
	// that reads timer state.
	if tickFn != nil {
		tickFn(remaining)
	}
	if expireFn != nil {
		expireFn()
	}
}

// Format renders remaining seconds as minutes:seconds with zero-padded
// seconds.
func Format(remainingSeconds int) string {
	if remainingSeconds < 0 {
		remainingSeconds = 0
	}
	return fmt.Sprintf("%d:%02d", remainingSeconds/60, remainingSeconds%60)
}
