package compiler

import (
	"sync"
	"time"

	"github.com/praxislabs/codelab-engine/internal/schedule"
)

// DefaultSettleWindow is the settling delay after the last edit before a
// recompilation fires.
const DefaultSettleWindow = 800 * time.Millisecond

// Debouncer coalesces buffer-edit bursts into a single compilation. At most
// one regeneration is pending at a time; a newer edit supersedes (cancels)
// the pending one, it is never queued behind it. The last edit always
// eventually produces a fresh document — no edit is silently dropped.
type Debouncer struct {
	mu      sync.Mutex
	sched   *schedule.Scheduler
	window  time.Duration
	pending *schedule.Handle
	closed  bool
}

// NewDebouncer creates a debouncer with the given settling window.
func NewDebouncer(sched *schedule.Scheduler, window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultSettleWindow
	}
	return &Debouncer{sched: sched, window: window}
}

// Trigger restarts the settling window and arranges for fn to run when it
// elapses. fn reads the buffers at fire time, so the compilation always
// uses the content of the last edit.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pending.Cancel()
	d.pending = d.sched.Schedule(d.window, fn)
}

// Close cancels any pending compilation and makes further triggers no-ops.
// Called on navigation away or any transition into a terminal state.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.pending.Cancel()
	d.pending = nil
}
