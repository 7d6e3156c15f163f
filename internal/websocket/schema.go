package websocket

import "github.com/stemsi/exstem-assessment/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is one client message. Fields not used by the action are ignored.
//   - autosave: answers and/or remaining_seconds
//   - submit: optional final answers
type RequestPayload struct {
	Action           Action         `json:"action"`
	Answers          map[string]any `json:"answers,omitempty"`
	RemainingSeconds *int           `json:"remaining_seconds,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventSaved  Event = "saved"
	EventGraded Event = "graded"
	EventPong   Event = "pong"
)

type SavedResponse struct {
	Event Event `json:"event"`
}

type GradedResponse struct {
	Event  Event                `json:"event"`
	Result *model.SessionResult `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
