package session

// EventType enumerates events the controller pushes to the UI stream.
type EventType string

const (
	EventTick      EventType = "tick"
	EventCompiled  EventType = "compiled"
	EventLocked    EventType = "locked"
	EventCompleted EventType = "completed"
	EventRedirect  EventType = "redirect"
)

// Event is a single push event. Fields are populated per type: Remaining
// and RemainingDisplay for ticks, Reason for lockouts.
type Event struct {
	Type             EventType `json:"type"`
	Remaining        int       `json:"remaining,omitempty"`
	RemainingDisplay string    `json:"remaining_display,omitempty"`
	Reason           string    `json:"reason,omitempty"`
}
