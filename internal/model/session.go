package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionMode distinguishes proctored assessments from unproctored practice.
type SessionMode string

const (
	ModeAssessment SessionMode = "assessment"
	ModePractice   SessionMode = "practice"
)

// SessionState enumerates the states of the session state machine.
type SessionState string

const (
	StateCheckingStatus  SessionState = "CHECKING_STATUS"
	StateLocked          SessionState = "LOCKED"
	StateNotStarted      SessionState = "NOT_STARTED"
	StateAwaitingConsent SessionState = "AWAITING_CONSENT"
	StateInProgress      SessionState = "IN_PROGRESS"
	StateSubmitting      SessionState = "SUBMITTING"
	StateCompleted       SessionState = "COMPLETED"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s SessionState) IsTerminal() bool {
	return s == StateLocked || s == StateCompleted
}

// Session is the durable record of an assessment attempt. The live state
// machine is held in memory by the session controller; this row is the
// persisted trail.
type Session struct {
	ID          uuid.UUID    `json:"id"`
	StudentID   int          `json:"student_id"`
	CourseID    string       `json:"course_id"`
	ExerciseID  string       `json:"exercise_id"`
	Mode        SessionMode  `json:"mode"`
	Status      SessionState `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	LockReason  *string      `json:"lock_reason,omitempty"`
}

// ExerciseDescriptor identifies the exercise within the course catalog.
// These identifiers travel unchanged into every submission payload.
type ExerciseDescriptor struct {
	CourseID    string `json:"course_id" binding:"required"`
	ExerciseID  string `json:"exercise_id" binding:"required"`
	EntityID    string `json:"entity_id" binding:"required"`
	EntityType  string `json:"entity_type" binding:"required"`
	Category    string `json:"category" binding:"required"`
	Subcategory string `json:"subcategory"`
}

// StartSessionRequest is the payload for opening a session. The exercise
// snapshot (questions, raw security settings) comes from the course-data
// collaborator; the engine treats it as read-only input.
type StartSessionRequest struct {
	ExerciseDescriptor
	Questions   []Question       `json:"questions" binding:"required,min=1,dive"`
	Settings    SecuritySettings `json:"settings"`
	UseToolkit  bool             `json:"use_toolkit"`
	MaxAttempts int              `json:"max_attempts" binding:"omitempty,min=1,max=50"`

	// AttemptLimitEnabled only has effect in assessment mode.
	AttemptLimitEnabled bool `json:"attempt_limit_enabled"`
}

// NavigateRequest moves the session to another question.
type NavigateRequest struct {
	Index int `json:"index" binding:"min=0"`
}

// UpdateBuffersRequest replaces the three source buffers.
type UpdateBuffersRequest struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
	JS   string `json:"js"`
}
