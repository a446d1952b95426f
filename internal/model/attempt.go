package model

import "time"

// AttemptRecord tracks submissions for one question. AttemptsUsed is never
// decremented; only the submission pipeline mutates it.
type AttemptRecord struct {
	QuestionID      string    `json:"question_id"`
	AttemptsUsed    int       `json:"attempts_used"`
	LastSubmittedAt time.Time `json:"last_submitted_at"`
}

// ProctorEventType enumerates proctoring violations reported by the UI.
type ProctorEventType string

const (
	ProctorTabSwitch      ProctorEventType = "tab_switch"
	ProctorFullscreenExit ProctorEventType = "fullscreen_exit"
	ProctorMinimize       ProctorEventType = "minimize"
	ProctorClipboard      ProctorEventType = "clipboard"
)

// ProctorEventRequest is the payload for reporting a proctoring event.
type ProctorEventRequest struct {
	Type    ProctorEventType `json:"type" binding:"required,oneof=tab_switch fullscreen_exit minimize clipboard"`
	Details string           `json:"details"`
}
