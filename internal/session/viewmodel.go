package session

import (
	"github.com/microcosm-cc/bluemonday"

	"github.com/praxislabs/codelab-engine/internal/compiler"
	"github.com/praxislabs/codelab-engine/internal/model"
	"github.com/praxislabs/codelab-engine/internal/timer"
)

// descriptionPolicy sanitizes question descriptions. They arrive as rich
// text from the course-data collaborator and are untrusted.
var descriptionPolicy = bluemonday.UGCPolicy()

// QuestionView is the display form of the current question.
type QuestionView struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Difficulty  model.Difficulty `json:"difficulty"`
	Score       int              `json:"score"`
}

// ViewModel is the single derived snapshot the UI renders from. Rendering
// code consumes only this; it never reads controller internals.
type ViewModel struct {
	SessionID string             `json:"session_id"`
	State     model.SessionState `json:"state"`
	Mode      model.SessionMode  `json:"mode"`

	LockReason string `json:"lock_reason,omitempty"`

	QuestionCount int          `json:"question_count"`
	CurrentIndex  int          `json:"current_index"`
	Question      QuestionView `json:"question"`
	FinalQuestion bool         `json:"final_question"`

	ProgressPercent int `json:"progress_percent"`
	CompletedCount  int `json:"completed_count"`

	AttemptLimitEnabled bool `json:"attempt_limit_enabled"`
	MaxAttempts         int  `json:"max_attempts"`
	AttemptsUsed        int  `json:"attempts_used"`
	CanSubmit           bool `json:"can_submit"`

	TimerEnabled     bool   `json:"timer_enabled"`
	Remaining        int    `json:"remaining,omitempty"`
	RemainingDisplay string `json:"remaining_display,omitempty"`

	Settings        model.SecuritySettings `json:"settings"`
	TabSwitchesUsed int                    `json:"tab_switches_used"`

	Buffers model.SourceBuffers   `json:"buffers"`
	Smoke   *compiler.SmokeResult `json:"smoke,omitempty"`
}

// Snapshot computes the current view model.
func (c *Controller) Snapshot() ViewModel {
	c.mu.Lock()
	defer c.mu.Unlock()

	vm := ViewModel{
		SessionID:           c.id.String(),
		State:               c.state,
		Mode:                c.mode,
		LockReason:          c.lockReason,
		QuestionCount:       len(c.questions),
		CurrentIndex:        c.current,
		ProgressPercent:     c.progress.Percent(),
		CompletedCount:      c.progress.CompletedCount(),
		AttemptLimitEnabled: c.attempts.LimitEnabled(),
		MaxAttempts:         c.attempts.MaxAttempts(),
		Settings:            c.settings,
		TabSwitchesUsed:     c.tabSwitches,
		Buffers:             c.buffers,
		Smoke:               c.smoke,
	}

	if len(c.questions) > 0 {
		q := c.questions[c.current]
		vm.Question = QuestionView{
			ID:          q.ID,
			Title:       q.Title,
			Description: descriptionPolicy.Sanitize(q.Description),
			Difficulty:  q.Difficulty,
			Score:       q.Score,
		}
		vm.FinalQuestion = model.IsFinalQuestion(c.current, c.questions)
		vm.AttemptsUsed = c.attempts.AttemptsUsed(q.ID)
		vm.CanSubmit = c.state == model.StateInProgress && c.attempts.CanSubmit(q.ID)
	}

	if c.countdown != nil {
		vm.TimerEnabled = true
		vm.Remaining = c.countdown.Remaining()
		vm.RemainingDisplay = timer.Format(vm.Remaining)
	}

	return vm
}
