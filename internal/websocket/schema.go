package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionEdit    Action = "edit"
	ActionProctor Action = "proctor"
	ActionPing    Action = "ping"
)

// RequestEnvelope carries every client action. Edits dominate the stream,
// so one flat shape avoids a second parse per message.
type RequestEnvelope struct {
	Action Action `json:"action"`

	// Edit fields.
	HTML string `json:"html,omitempty"`
	CSS  string `json:"css,omitempty"`
	JS   string `json:"js,omitempty"`

	// Proctor fields.
	Type    string `json:"type,omitempty"`
	Details string `json:"details,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventTick      Event = "tick"
	EventCompiled  Event = "compiled"
	EventLocked    Event = "locked"
	EventCompleted Event = "completed"
	EventRedirect  Event = "redirect"
	EventSaved     Event = "saved"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

type TickResponse struct {
	Event     Event  `json:"event"`
	Remaining int    `json:"remaining"`
	Display   string `json:"display"`
}

type CompiledResponse struct {
	Event Event `json:"event"`
}

type LockedResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

type CompletedResponse struct {
	Event Event `json:"event"`
}

type RedirectResponse struct {
	Event Event `json:"event"`
}

type SavedResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
