package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxislabs/codelab-engine/internal/courseapi"
	"github.com/praxislabs/codelab-engine/internal/model"
	"github.com/praxislabs/codelab-engine/internal/pipeline"
	"github.com/praxislabs/codelab-engine/internal/schedule"
)

// ─── Test doubles ───────────────────────────────────────────────────

type fakeStatusAPI struct {
	status *courseapi.ExerciseStatus
	err    error
}

func (f *fakeStatusAPI) GetExerciseStatus(context.Context, model.ExerciseDescriptor) (*courseapi.ExerciseStatus, error) {
	return f.status, f.err
}

type fakeSubmitAPI struct {
	mu       sync.Mutex
	calls    int
	err      error
	onSubmit func()
}

func (f *fakeSubmitAPI) SubmitAnswer(context.Context, *model.SubmissionPayload) error {
	f.mu.Lock()
	f.calls++
	hook := f.onSubmit
	err := f.err
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeSubmitAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type testHarness struct {
	ctrl   *Controller
	clock  *schedule.FakeClock
	submit *fakeSubmitAPI
	status *fakeStatusAPI
	events *eventRecorder
}

func assessmentDescriptor() model.ExerciseDescriptor {
	return model.ExerciseDescriptor{
		CourseID:   "course-1",
		ExerciseID: "ex-1",
		EntityID:   "inst-1",
		EntityType: "institution",
		Category:   "assessment",
	}
}

func twoQuestions() []model.Question {
	return []model.Question{
		{ID: "q1", Title: "Card layout", Difficulty: model.DifficultyEasy, Score: 10},
		{ID: "q2", Title: "Live counter", Difficulty: model.DifficultyMedium, Score: 20},
	}
}

func newHarness(t *testing.T, mutate func(*Config)) *testHarness {
	t.Helper()

	clock := schedule.NewFakeClock()
	submit := &fakeSubmitAPI{}
	status := &fakeStatusAPI{status: &courseapi.ExerciseStatus{}}
	events := &eventRecorder{}

	cfg := Config{
		StudentID:           7,
		Descriptor:          assessmentDescriptor(),
		Questions:           twoQuestions(),
		AttemptLimitEnabled: true,
		MaxAttempts:         1,
		StatusAPI:           status,
		SubmitAPI:           submit,
		Clock:               clock,
		Scheduler:           schedule.NewScheduler(clock),
		OnEvent:             events.record,
		Log:                 zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	return &testHarness{
		ctrl:   New(cfg),
		clock:  clock,
		submit: submit,
		status: status,
		events: events,
	}
}

func startInProgress(t *testing.T, h *testHarness) {
	t.Helper()
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.NoError(t, h.ctrl.Begin())
	require.NoError(t, h.ctrl.Consent())
	require.Equal(t, model.StateInProgress, h.ctrl.Snapshot().State)
}

// ─── State machine ──────────────────────────────────────────────────

func TestAssessmentRequiresConsent(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, model.StateNotStarted, h.ctrl.Snapshot().State)

	// No way into InProgress without the acknowledgement.
	assert.ErrorIs(t, h.ctrl.Consent(), ErrInvalidTransition)

	require.NoError(t, h.ctrl.Begin())
	assert.Equal(t, model.StateAwaitingConsent, h.ctrl.Snapshot().State)

	require.NoError(t, h.ctrl.Consent())
	assert.Equal(t, model.StateInProgress, h.ctrl.Snapshot().State)
}

func TestPracticeSkipsConsent(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Descriptor.Category = "practice"
	})

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, model.StateInProgress, h.ctrl.Snapshot().State)
	assert.Equal(t, model.ModePractice, h.ctrl.Mode())
}

func TestStatusCheckLocksSession(t *testing.T) {
	h := newHarness(t, nil)
	h.status.status = &courseapi.ExerciseStatus{Status: courseapi.StatusTerminated, Reason: "terminated by proctor"}

	require.NoError(t, h.ctrl.Start(context.Background()))

	vm := h.ctrl.Snapshot()
	assert.Equal(t, model.StateLocked, vm.State)
	assert.Equal(t, "terminated by proctor", vm.LockReason)
	assert.Equal(t, 1, h.events.count(EventLocked))
}

func TestStatusCheckFailsOpen(t *testing.T) {
	h := newHarness(t, nil)
	h.status.status = nil
	h.status.err = errors.New("network down")

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, model.StateNotStarted, h.ctrl.Snapshot().State)
}

func TestStatusCheckToleratesMissingBody(t *testing.T) {
	h := newHarness(t, nil)
	h.status.status = nil
	h.status.err = nil

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, model.StateNotStarted, h.ctrl.Snapshot().State)
}

func TestPracticeSkipsStatusCheck(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Descriptor.Category = "practice"
	})
	// Even a blocking status must not be consulted in practice mode.
	h.status.status = &courseapi.ExerciseStatus{IsLocked: true}

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, model.StateInProgress, h.ctrl.Snapshot().State)
}

// ─── End-to-end scenario ────────────────────────────────────────────

func TestTwoQuestionScenario(t *testing.T) {
	// Exercise with 2 questions, maxAttempts=1, assessment mode, timer
	// disabled.
	h := newHarness(t, nil)
	startInProgress(t, h)

	// Submit question 1.
	res, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeAccepted, res.Outcome)

	vm := h.ctrl.Snapshot()
	assert.Equal(t, model.StateInProgress, vm.State)
	assert.Equal(t, 50, vm.ProgressPercent)
	assert.Equal(t, 1, vm.AttemptsUsed)
	assert.False(t, vm.CanSubmit, "maxAttempts=1 exhausts q1")

	// Submit question 2.
	require.NoError(t, h.ctrl.Navigate(1))
	res, err = h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeAccepted, res.Outcome)
	assert.True(t, res.FinalQuestion)

	vm = h.ctrl.Snapshot()
	assert.Equal(t, model.StateCompleted, vm.State)
	assert.Equal(t, 100, vm.ProgressPercent)
	assert.Equal(t, 1, h.events.count(EventCompleted))

	// Redirect countdown fires exactly once after the fixed delay.
	h.clock.Advance(DefaultRedirectDelay)
	assert.Equal(t, 1, h.events.count(EventRedirect))
	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.events.count(EventRedirect))

	// No further submission is accepted.
	_, err = h.ctrl.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSessionTerminal)
	assert.Equal(t, 2, h.submit.callCount())
}

func TestAttemptCapRejectsLocallyAfterExhaustion(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.MaxAttempts = 3 })
	startInProgress(t, h)

	for i := 0; i < 3; i++ {
		_, err := h.ctrl.Submit(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, 3, h.submit.callCount())

	_, err := h.ctrl.Submit(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrAttemptCapReached)
	assert.Equal(t, 3, h.submit.callCount(), "4th attempt must not reach the network")
}

func TestServerAttemptLimitKeepsSessionAlive(t *testing.T) {
	h := newHarness(t, nil)
	startInProgress(t, h)

	h.submit.err = courseapi.ErrAttemptLimit
	res, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeAttemptLimit, res.Outcome)

	// Fatal for the question, not the session.
	vm := h.ctrl.Snapshot()
	assert.Equal(t, model.StateInProgress, vm.State)
	assert.Equal(t, 0, vm.AttemptsUsed)

	// Other questions remain submittable.
	require.NoError(t, h.ctrl.Navigate(1))
	h.submit.err = nil
	res, err = h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeAccepted, res.Outcome)
}

func TestGenericFailureIsRetryable(t *testing.T) {
	h := newHarness(t, nil)
	startInProgress(t, h)

	buffers := model.SourceBuffers{HTML: "<p>draft</p>"}
	require.NoError(t, h.ctrl.UpdateBuffers(buffers))

	h.submit.err = errors.New("bad gateway")
	res, err := h.ctrl.Submit(context.Background())
	assert.Error(t, err)
	assert.Equal(t, pipeline.OutcomeRetryable, res.Outcome)

	// Buffers and ledger are exactly as before the attempt.
	vm := h.ctrl.Snapshot()
	assert.Equal(t, model.StateInProgress, vm.State)
	assert.Equal(t, buffers, vm.Buffers)
	assert.Equal(t, 0, vm.AttemptsUsed)
	assert.True(t, vm.CanSubmit)

	h.submit.err = nil
	res, err = h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeAccepted, res.Outcome)
}

// ─── Timer ──────────────────────────────────────────────────────────

func TestTimerExpiryForcesSingleSubmission(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.RawSettings = model.SecuritySettings{TimerEnabled: true, TimerDurationMinutes: 1}
	})
	startInProgress(t, h)

	vm := h.ctrl.Snapshot()
	require.True(t, vm.TimerEnabled)
	require.Equal(t, 60, vm.Remaining)
	assert.Equal(t, "1:00", vm.RemainingDisplay)

	// Advance to expiry: exactly one forced submission of the current
	// question, zero further decrements.
	h.clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, h.submit.callCount())
	assert.Equal(t, 60, h.events.count(EventTick))

	vm = h.ctrl.Snapshot()
	assert.Equal(t, 50, vm.ProgressPercent, "only the displayed question is force-submitted")
	assert.Equal(t, model.StateInProgress, vm.State)
}

func TestTimerSpentTimeInPayload(t *testing.T) {
	var remainingAt int
	h := newHarness(t, func(cfg *Config) {
		cfg.RawSettings = model.SecuritySettings{TimerEnabled: true, TimerDurationMinutes: 2}
	})
	h.submit.onSubmit = func() { remainingAt = h.ctrl.Snapshot().Remaining }
	startInProgress(t, h)

	h.clock.Advance(45 * time.Second)
	_, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 75, remainingAt, "remaining seconds at submission time")
}

func TestTimerExpiryCollapsesIntoInFlightSubmission(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.RawSettings = model.SecuritySettings{TimerEnabled: true, TimerDurationMinutes: 1}
	})
	// The timer expires while the manual submission is on the wire; the
	// in-flight call satisfies the expiry.
	h.submit.onSubmit = func() { h.clock.Advance(2 * time.Minute) }
	startInProgress(t, h)

	res, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeAccepted, res.Outcome)

	assert.Equal(t, 1, h.submit.callCount())
	assert.Equal(t, 50, h.ctrl.Snapshot().ProgressPercent)
}

func TestTimerExpiryRedispatchesAfterRetryableFailure(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.RawSettings = model.SecuritySettings{TimerEnabled: true, TimerDurationMinutes: 1}
	})
	h.submit.err = errors.New("bad gateway")
	first := true
	h.submit.onSubmit = func() {
		if first {
			first = false
			// Expire the timer while this attempt is on the wire, then let
			// the next attempt succeed.
			h.clock.Advance(2 * time.Minute)
			h.submit.err = nil
		}
	}
	startInProgress(t, h)

	// The manual attempt fails retryable; the submission owed to expiry is
	// re-dispatched and lands.
	_, err := h.ctrl.Submit(context.Background())
	assert.Error(t, err)

	assert.Equal(t, 2, h.submit.callCount())
	vm := h.ctrl.Snapshot()
	assert.Equal(t, 50, vm.ProgressPercent)
	assert.Equal(t, 1, vm.AttemptsUsed)
	assert.Equal(t, model.StateInProgress, vm.State)
}

func TestLockStopsTimer(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.RawSettings = model.SecuritySettings{TimerEnabled: true, TimerDurationMinutes: 1}
	})
	startInProgress(t, h)

	h.clock.Advance(10 * time.Second)
	h.ctrl.Lock("terminated by admin")

	ticksAtLock := h.events.count(EventTick)
	h.clock.Advance(5 * time.Minute)

	assert.Equal(t, ticksAtLock, h.events.count(EventTick), "no dangling ticks after lock")
	assert.Equal(t, 0, h.submit.callCount(), "expired timer must not fire a submission after lock")
}

// ─── Lockout precedence ─────────────────────────────────────────────

func TestLockoutWinsOverInFlightSubmission(t *testing.T) {
	h := newHarness(t, nil)
	startInProgress(t, h)

	// The lockout signal arrives while the submission is in flight.
	h.submit.onSubmit = func() { h.ctrl.Lock("locked mid-flight") }

	res, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, pipeline.OutcomeAccepted, res.Outcome)

	vm := h.ctrl.Snapshot()
	assert.Equal(t, model.StateLocked, vm.State)
	assert.Equal(t, "locked mid-flight", vm.LockReason)

	// Ledger side effects are kept for historical accuracy.
	assert.Equal(t, 1, vm.AttemptsUsed)

	// But nothing transitions the session out of Locked.
	_, err = h.ctrl.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

func TestLockFromCompletedIsNoOp(t *testing.T) {
	h := newHarness(t, nil)
	startInProgress(t, h)

	require.NoError(t, h.ctrl.Navigate(1))
	_, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.StateCompleted, h.ctrl.Snapshot().State)

	h.ctrl.Lock("late lockout")
	assert.Equal(t, model.StateCompleted, h.ctrl.Snapshot().State)
}

// ─── Compilation ────────────────────────────────────────────────────

func TestEditBurstCompilesOnceWithLastContent(t *testing.T) {
	h := newHarness(t, nil)
	startInProgress(t, h)

	compiledBefore := h.events.count(EventCompiled)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.ctrl.UpdateBuffers(model.SourceBuffers{HTML: "<p>draft</p>", JS: "let x = " + string(rune('0'+i)) + ";"}))
		h.clock.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, compiledBefore, h.events.count(EventCompiled))

	h.clock.Advance(time.Second)
	assert.Equal(t, compiledBefore+1, h.events.count(EventCompiled))
	assert.Contains(t, h.ctrl.CompiledDocument(), "let x = 4;")
}

func TestCloseCancelsPendingCompile(t *testing.T) {
	h := newHarness(t, nil)
	startInProgress(t, h)

	require.NoError(t, h.ctrl.UpdateBuffers(model.SourceBuffers{HTML: "<p>edit</p>"}))
	h.ctrl.Close()
	h.clock.Advance(time.Minute)

	assert.Equal(t, 0, h.events.count(EventCompiled))
	assert.ErrorIs(t, h.ctrl.UpdateBuffers(model.SourceBuffers{}), ErrSessionClosed)
	_, err := h.ctrl.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

// ─── Navigation ─────────────────────────────────────────────────────

func TestNavigateBounds(t *testing.T) {
	h := newHarness(t, nil)
	startInProgress(t, h)

	assert.ErrorIs(t, h.ctrl.Navigate(-1), ErrIndexOutOfRange)
	assert.ErrorIs(t, h.ctrl.Navigate(2), ErrIndexOutOfRange)
	require.NoError(t, h.ctrl.Navigate(1))
	assert.Equal(t, 1, h.ctrl.Snapshot().CurrentIndex)
}

// ─── Proctoring ─────────────────────────────────────────────────────

func TestTabSwitchBudget(t *testing.T) {
	var reported []model.ProctorEventType
	h := newHarness(t, func(cfg *Config) {
		cfg.RawSettings = model.SecuritySettings{TabSwitchAllowed: true, MaxTabSwitches: 2}
		cfg.OnProctor = func(et model.ProctorEventType, _ string) { reported = append(reported, et) }
	})
	startInProgress(t, h)

	require.NoError(t, h.ctrl.ReportProctorEvent(model.ProctorTabSwitch, ""))
	require.NoError(t, h.ctrl.ReportProctorEvent(model.ProctorTabSwitch, ""))
	assert.Equal(t, model.StateInProgress, h.ctrl.Snapshot().State)

	require.NoError(t, h.ctrl.ReportProctorEvent(model.ProctorTabSwitch, ""))
	vm := h.ctrl.Snapshot()
	assert.Equal(t, model.StateLocked, vm.State)
	assert.Equal(t, 3, vm.TabSwitchesUsed)
	assert.Len(t, reported, 3)
}

func TestPracticeIgnoresProctorEvents(t *testing.T) {
	reported := 0
	h := newHarness(t, func(cfg *Config) {
		cfg.Descriptor.Category = "practice"
		cfg.OnProctor = func(model.ProctorEventType, string) { reported++ }
	})
	require.NoError(t, h.ctrl.Start(context.Background()))

	for i := 0; i < 20; i++ {
		require.NoError(t, h.ctrl.ReportProctorEvent(model.ProctorTabSwitch, ""))
	}
	assert.Equal(t, model.StateInProgress, h.ctrl.Snapshot().State)
	assert.Equal(t, 0, reported)
}

// ─── View model ─────────────────────────────────────────────────────

func TestSnapshotSanitizesDescription(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Questions = []model.Question{{
			ID:          "q1",
			Title:       "XSS bait",
			Description: `<p>Build a card.</p><script>alert(1)</script>`,
		}}
	})
	startInProgress(t, h)

	vm := h.ctrl.Snapshot()
	assert.Contains(t, vm.Question.Description, "<p>Build a card.</p>")
	assert.NotContains(t, vm.Question.Description, "<script>")
}
