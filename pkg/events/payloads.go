package events

import (
	"github.com/groundquery/groundquery/pkg/models"
)

// MetaPayload is the payload for meta events, emitted once at stream open.
type MetaPayload struct {
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
}

// StatusPayload is the payload for status events. Stage is one of the
// Stage* constants.
type StatusPayload struct {
	Stage string `json:"stage"`
}

// PlanPayload is the payload for plan events, emitted once the plan has
// passed schema validation.
type PlanPayload struct {
	Plan models.Plan `json:"plan"`
}

// ToolCallStartPayload is the payload for tool_call_start events.
type ToolCallStartPayload struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ToolCallEndPayload is the payload for tool_call_end events. RowCount is
// nil when the tool does not report rows (or the call failed).
type ToolCallEndPayload struct {
	Tool       string `json:"tool"`
	Status     string `json:"status"` // success, error, blocked
	DurationMs int64  `json:"duration_ms"`
	RowCount   *int64 `json:"row_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// VerificationPayload is the payload for verification events.
type VerificationPayload struct {
	Report models.VerifierReport `json:"report"`
}

// TokenPayload is the payload for token events, one per streamed answer
// fragment. High frequency, not persisted.
type TokenPayload struct {
	Token string `json:"token"`
}

// AnswerPayload is the payload for answer events, carrying the final
// schema-validated answer.
type AnswerPayload struct {
	Answer models.Answer `json:"answer"`
}

// ErrorPayload is the payload for terminal error events. Code is a stable
// machine code from the pipeline error taxonomy.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// DonePayload is the payload for done events. Always empty; present so the
// wire format stays uniform.
type DonePayload struct{}
