// Package session implements the assessment session state machine. The
// controller composes the policy evaluator, timer, sandbox compiler,
// attempt ledger, progress tracker and submission pipeline, and exposes
// the single surface the transport layer binds to.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/praxislabs/codelab-engine/internal/compiler"
	"github.com/praxislabs/codelab-engine/internal/courseapi"
	"github.com/praxislabs/codelab-engine/internal/ledger"
	"github.com/praxislabs/codelab-engine/internal/model"
	"github.com/praxislabs/codelab-engine/internal/pipeline"
	"github.com/praxislabs/codelab-engine/internal/policy"
	"github.com/praxislabs/codelab-engine/internal/schedule"
	"github.com/praxislabs/codelab-engine/internal/timer"
)

// DefaultRedirectDelay is the fixed countdown before the UI is told to
// redirect after completion.
const DefaultRedirectDelay = 5 * time.Second

// genericLockMessage is shown when the backend reports a lockout without a
// reason of its own.
const genericLockMessage = "This exercise has been locked. Please contact your instructor."

// tabSwitchLockMessage is used when the tab-switch budget is exhausted.
const tabSwitchLockMessage = "Tab switch limit exceeded. The exercise has been terminated."

// State-machine errors.
var (
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrSessionTerminal   = errors.New("session is in a terminal state")
	ErrSessionClosed     = errors.New("session is closed")
	ErrIndexOutOfRange   = errors.New("question index out of range")
)

// StatusChecker is the slice of the course API used for the mount-time
// lockout check.
type StatusChecker interface {
	GetExerciseStatus(ctx context.Context, desc model.ExerciseDescriptor) (*courseapi.ExerciseStatus, error)
}

// Config assembles a session controller. Auth token and institution
// identifiers arrive through the descriptor and the API clients — the
// controller performs no ambient lookups.
type Config struct {
	StudentID           int
	Descriptor          model.ExerciseDescriptor
	Questions           []model.Question
	RawSettings         model.SecuritySettings
	AttemptLimitEnabled bool
	MaxAttempts         int
	UseToolkit          bool

	StatusAPI StatusChecker
	SubmitAPI pipeline.Submitter

	Scheduler     *schedule.Scheduler
	Clock         schedule.Clock
	SettleWindow  time.Duration
	RedirectDelay time.Duration
	SmokeRunner   *compiler.SmokeRunner

	// OnEvent receives push events for the UI stream.
	OnEvent func(Event)
	// OnAttempt receives every acknowledged attempt for the durable trail.
	OnAttempt func(model.AttemptRecord)
	// OnProctor receives accepted proctoring events.
	OnProctor func(model.ProctorEventType, string)
	// OnTerminal fires once when the session reaches Locked or Completed.
	OnTerminal func(state model.SessionState, reason string)

	Log zerolog.Logger
}

// Controller is the top-level session state machine. All mutations are
// serialized behind one mutex, reproducing the single-threaded event model
// of the original host: asynchronous operations (status check, debounce
// firings, timer ticks, in-flight submissions) suspend outside the lock
// and re-enter through it.
type Controller struct {
	mu sync.Mutex

	id        uuid.UUID
	studentID int
	desc      model.ExerciseDescriptor
	mode      model.SessionMode
	state     model.SessionState
	questions []model.Question
	current   int
	startedAt time.Time

	settings model.SecuritySettings
	toolkit  bool

	buffers  model.SourceBuffers
	compiled string
	smoke    *compiler.SmokeResult

	countdown *timer.Countdown
	debounce  *compiler.Debouncer
	sched     *schedule.Scheduler
	clock     schedule.Clock
	runner    *compiler.SmokeRunner

	attempts *ledger.AttemptLedger
	progress *ledger.ProgressTracker
	pipe     *pipeline.Pipeline

	statusAPI StatusChecker

	lockReason      string
	tabSwitches     int
	redirectDelay   time.Duration
	redirectStarted bool
	redirectTask    *schedule.Handle
	expiryPending   bool
	closed          bool

	onEvent    func(Event)
	onProctor  func(model.ProctorEventType, string)
	onTerminal func(model.SessionState, string)

	log zerolog.Logger
}

// New creates a session controller in CheckingStatus. The security policy
// is resolved exactly once, here; a session cannot enter InProgress without
// it.
func New(cfg Config) *Controller {
	mode := policy.Mode(cfg.Descriptor.Category)
	settings := policy.Evaluate(cfg.Descriptor.Category, cfg.RawSettings)

	if cfg.RedirectDelay <= 0 {
		cfg.RedirectDelay = DefaultRedirectDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = schedule.NewClock()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = schedule.NewScheduler(cfg.Clock)
	}

	c := &Controller{
		id:            uuid.New(),
		studentID:     cfg.StudentID,
		desc:          cfg.Descriptor,
		mode:          mode,
		state:         model.StateCheckingStatus,
		questions:     cfg.Questions,
		settings:      settings,
		toolkit:       cfg.UseToolkit,
		sched:         cfg.Scheduler,
		clock:         cfg.Clock,
		runner:        cfg.SmokeRunner,
		statusAPI:     cfg.StatusAPI,
		redirectDelay: cfg.RedirectDelay,
		onEvent:       cfg.OnEvent,
		onProctor:     cfg.OnProctor,
		onTerminal:    cfg.OnTerminal,
		log: cfg.Log.With().
			Str("component", "session").
			Str("exercise_id", cfg.Descriptor.ExerciseID).
			Int("student_id", cfg.StudentID).
			Logger(),
	}

	c.debounce = compiler.NewDebouncer(cfg.Scheduler, cfg.SettleWindow)
	c.attempts = ledger.NewAttemptLedger(mode, cfg.AttemptLimitEnabled, cfg.MaxAttempts, cfg.Clock.Now)
	c.progress = ledger.NewProgressTracker(len(cfg.Questions))
	c.pipe = pipeline.New(pipeline.Config{
		API:                 cfg.SubmitAPI,
		Ledger:              c.attempts,
		Progress:            c.progress,
		Descriptor:          cfg.Descriptor,
		AttemptLimitEnabled: cfg.AttemptLimitEnabled && mode == model.ModeAssessment,
		MaxAttempts:         cfg.MaxAttempts,
		OnAttempt:           cfg.OnAttempt,
		Log:                 cfg.Log,
	})

	return c
}

// ID returns the controller's session ID.
func (c *Controller) ID() uuid.UUID { return c.id }

// StudentID returns the owning student.
func (c *Controller) StudentID() int { return c.studentID }

// Mode returns the resolved session mode.
func (c *Controller) Mode() model.SessionMode { return c.mode }

// Descriptor returns the exercise identifiers this session was opened for.
func (c *Controller) Descriptor() model.ExerciseDescriptor { return c.desc }

// Start performs the mount-time transition out of CheckingStatus. In
// assessment mode it queries the exercise-status collaborator: a blocking
// status locks the session; an unusable response is non-fatal and the
// session proceeds (fail-open — the server stays authoritative at
// submission time). Practice mode starts immediately, consent implied.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != model.StateCheckingStatus {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	mode := c.mode
	desc := c.desc
	c.mu.Unlock()

	if mode == model.ModeAssessment && c.statusAPI != nil {
		status, err := c.statusAPI.GetExerciseStatus(ctx, desc)
		if err != nil {
			c.log.Warn().Err(err).Msg("Status check failed, proceeding")
		} else if status != nil && status.Blocking() {
			reason := status.Reason
			if reason == "" {
				reason = genericLockMessage
			}
			c.Lock(reason)
			return nil
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.StateCheckingStatus {
		// A lockout raced the status check; it wins.
		return nil
	}
	if mode == model.ModePractice {
		c.enterInProgressLocked()
		return nil
	}
	c.state = model.StateNotStarted
	return nil
}

// Begin moves an assessment session to the consent screen.
func (c *Controller) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	if c.state != model.StateNotStarted {
		return ErrInvalidTransition
	}
	c.state = model.StateAwaitingConsent
	return nil
}

// Consent is the explicit user acknowledgement that starts the attempt.
// This is the only way into InProgress for an assessment session, and the
// point where the timer is initialized from the configured duration.
func (c *Controller) Consent() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	if c.state != model.StateAwaitingConsent {
		return ErrInvalidTransition
	}
	c.enterInProgressLocked()
	return nil
}

func (c *Controller) enterInProgressLocked() {
	c.state = model.StateInProgress
	c.startedAt = c.clock.Now()
	c.compiled = compiler.Compile(c.buffers, c.toolkit)

	if c.settings.TimerEnabled && c.settings.TimerDurationMinutes > 0 {
		c.countdown = timer.New(
			c.sched,
			c.settings.TimerDurationMinutes*60,
			c.emitTick,
			c.onTimerExpired,
		)
		c.countdown.Start()
	}

	c.log.Info().
		Str("mode", string(c.mode)).
		Bool("timer", c.countdown != nil).
		Int("questions", len(c.questions)).
		Msg("Session in progress")
}

func (c *Controller) emitTick(remaining int) {
	c.emit(Event{
		Type:             EventTick,
		Remaining:        remaining,
		RemainingDisplay: timer.Format(remaining),
	})
}

// onTimerExpired forces exactly one submission of the currently displayed
// question. The pipeline's in-flight guard collapses a race with a manual
// submission in the same tick into a single network call; if that in-flight
// submission later resolves as retryable, Submit re-dispatches the forced
// one so expiry is never silently dropped.
func (c *Controller) onTimerExpired() {
	c.log.Info().Msg("Timer expired, forcing submission")
	if _, err := c.Submit(context.Background()); err != nil {
		if errors.Is(err, pipeline.ErrSubmissionInFlight) {
			c.mu.Lock()
			c.expiryPending = true
			c.mu.Unlock()
			return
		}
		c.log.Warn().Err(err).Msg("Forced submission did not go through")
	}
}

// UpdateBuffers replaces the source buffers and restarts the settling
// window. Editing stays possible while a submission is in flight so a
// retry never loses buffer contents.
func (c *Controller) UpdateBuffers(b model.SourceBuffers) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.state != model.StateInProgress && c.state != model.StateSubmitting {
		c.mu.Unlock()
		if c.state.IsTerminal() {
			return ErrSessionTerminal
		}
		return ErrInvalidTransition
	}
	c.buffers = b
	c.mu.Unlock()

	c.debounce.Trigger(c.recompile)
	return nil
}

// recompile regenerates the compiled document from the buffers as they are
// at fire time, so a burst of edits compiles once with the last content.
func (c *Controller) recompile() {
	c.mu.Lock()
	if c.closed || c.state.IsTerminal() {
		c.mu.Unlock()
		return
	}
	buffers := c.buffers
	toolkit := c.toolkit
	c.mu.Unlock()

	doc := compiler.Compile(buffers, toolkit)

	var smoke *compiler.SmokeResult
	if c.runner != nil && buffers.JS != "" {
		result := c.runner.Run(buffers.JS)
		smoke = &result
	}

	c.mu.Lock()
	c.compiled = doc
	c.smoke = smoke
	c.mu.Unlock()

	c.emit(Event{Type: EventCompiled})
}

// CompiledDocument returns the current compiled preview document.
func (c *Controller) CompiledDocument() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compiled
}

// Navigate moves the cursor to another question.
func (c *Controller) Navigate(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	if c.state != model.StateInProgress {
		return ErrInvalidTransition
	}
	if index < 0 || index >= len(c.questions) {
		return ErrIndexOutOfRange
	}
	c.current = index
	return nil
}

// Submit sends the current question's buffers through the pipeline. Both
// the manual path and the timer-expiry path land here.
//
// Lockout precedence: if a lockout arrives while the submission is in
// flight, its ledger side effects are kept for historical accuracy but the
// session does not leave Locked.
func (c *Controller) Submit(ctx context.Context) (*pipeline.Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if c.state != model.StateInProgress {
		c.mu.Unlock()
		if c.state.IsTerminal() {
			return nil, ErrSessionTerminal
		}
		if c.state == model.StateSubmitting {
			return nil, pipeline.ErrSubmissionInFlight
		}
		return nil, ErrInvalidTransition
	}

	index := c.current
	question := c.questions[index]

	release, err := c.pipe.Begin(question.ID)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	c.state = model.StateSubmitting
	buffers := c.buffers
	spent := c.spentSecondsLocked()
	c.mu.Unlock()

	result, submitErr := c.pipe.Submit(ctx, question, index, c.questions, buffers, spent)

	c.mu.Lock()
	release()

	if c.state == model.StateLocked {
		c.mu.Unlock()
		return result, submitErr
	}

	completed := false
	redispatch := false
	if result != nil && result.Outcome == pipeline.OutcomeAccepted && result.FinalQuestion {
		c.completeLocked()
		completed = true
	} else {
		c.state = model.StateInProgress
		if c.expiryPending {
			// An accepted outcome satisfies the expiry; only a retryable
			// failure leaves the forced submission still owed.
			c.expiryPending = false
			redispatch = result == nil || result.Outcome == pipeline.OutcomeRetryable
		}
	}
	c.mu.Unlock()

	if completed {
		c.emit(Event{Type: EventCompleted})
		if c.onTerminal != nil {
			c.onTerminal(model.StateCompleted, "")
		}
	}
	if redispatch {
		c.log.Info().Msg("Re-dispatching submission owed to timer expiry")
		if _, rerr := c.Submit(ctx); rerr != nil {
			c.log.Warn().Err(rerr).Msg("Forced submission did not go through")
		}
	}
	return result, submitErr
}

func (c *Controller) spentSecondsLocked() int {
	if c.countdown != nil {
		return c.countdown.Spent()
	}
	return int(c.clock.Now().Sub(c.startedAt).Seconds())
}

// completeLocked enters Completed exactly once: the timer and debounce are
// torn down and the redirect countdown starts. Repeated events cannot
// restart the countdown.
func (c *Controller) completeLocked() {
	c.state = model.StateCompleted
	c.teardownLocked()

	if !c.redirectStarted {
		c.redirectStarted = true
		c.redirectTask = c.sched.Schedule(c.redirectDelay, func() {
			c.emit(Event{Type: EventRedirect})
		})
	}

	c.log.Info().Msg("Session completed")
}

// Lock transitions the session to Locked on a server-reported lockout or
// proctoring violation. It invalidates the timer and the pending compile
// task and blocks all further submission dispatch. Completed sessions stay
// completed.
func (c *Controller) Lock(reason string) {
	c.mu.Lock()
	if c.state == model.StateLocked || c.state == model.StateCompleted {
		c.mu.Unlock()
		return
	}
	if reason == "" {
		reason = genericLockMessage
	}
	c.state = model.StateLocked
	c.lockReason = reason
	c.teardownLocked()
	c.mu.Unlock()

	c.log.Warn().Str("reason", reason).Msg("Session locked")
	c.emit(Event{Type: EventLocked, Reason: reason})
	if c.onTerminal != nil {
		c.onTerminal(model.StateLocked, reason)
	}
}

// ReportProctorEvent records a proctoring event from the UI. Practice mode
// ignores them entirely. A tab switch beyond the configured budget
// terminates the session.
func (c *Controller) ReportProctorEvent(eventType model.ProctorEventType, details string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.mode != model.ModeAssessment {
		c.mu.Unlock()
		return nil
	}
	if c.state != model.StateInProgress && c.state != model.StateSubmitting {
		c.mu.Unlock()
		return ErrInvalidTransition
	}

	exceeded := false
	if eventType == model.ProctorTabSwitch {
		c.tabSwitches++
		budget := c.settings.MaxTabSwitches
		if !c.settings.TabSwitchAllowed {
			budget = 0
		}
		exceeded = c.tabSwitches > budget
	}
	c.mu.Unlock()

	if c.onProctor != nil {
		c.onProctor(eventType, details)
	}
	if exceeded {
		c.Lock(tabSwitchLockMessage)
	}
	return nil
}

// Close tears the session down on navigation away. The timer interval and
// the debounce task are cancelled deterministically; further submit and
// compile calls become no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.teardownLocked()
	c.mu.Unlock()

	c.log.Info().Msg("Session closed")
}

func (c *Controller) teardownLocked() {
	if c.countdown != nil {
		c.countdown.Stop()
	}
	c.debounce.Close()
	c.redirectTask.Cancel()
}

func (c *Controller) emit(e Event) {
	if c.onEvent != nil {
		c.onEvent(e)
	}
}
