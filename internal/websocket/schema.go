package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer    Action = "answer"
	ActionViolation Action = "violation"
	ActionPause     Action = "pause"
	ActionResume    Action = "resume"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestPayload is the single client frame shape; unused fields are empty
// for actions that do not need them.
type RequestPayload struct {
	Action   Action   `json:"action"`
	QID      string   `json:"q_id,omitempty"`
	Selected []string `json:"selected,omitempty"`
	Text     string   `json:"text,omitempty"`
	Kind     string   `json:"kind,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError      Event = "error"
	EventSaved      Event = "saved"
	EventViolation  Event = "violation_recorded"
	EventPaused     Event = "paused"
	EventResumed    Event = "resumed"
	EventGraded     Event = "graded"
	EventTerminated Event = "terminated"
	EventPong       Event = "pong"
)

type SavedResponse struct {
	Event Event  `json:"event"`
	QID   string `json:"q_id"`
}

type ViolationResponse struct {
	Event Event  `json:"event"`
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

type StateResponse struct {
	Event            Event  `json:"event"`
	State            string `json:"state"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type GradedResponse struct {
	Event      Event  `json:"event"`
	Reason     string `json:"reason"`
	Percentage int    `json:"percentage"`
	Passed     bool   `json:"passed"`
}

// TerminatedResponse tells the client why its attempt ended without a
// user-requested submit: "time_expired" or "violation_threshold". The two
// are deliberately distinct so the UI can present different messages.
type TerminatedResponse struct {
	Event      Event  `json:"event"`
	Reason     string `json:"reason"`
	Percentage int    `json:"percentage"`
	Passed     bool   `json:"passed"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
