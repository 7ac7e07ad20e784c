package models

// ToolCall status values. A call is created as running at dispatch and
// transitions to success or error at completion. Blocked calls are produced
// by the policy engine and never dispatched.
const (
	ToolCallStatusPending = "pending"
	ToolCallStatusRunning = "running"
	ToolCallStatusSuccess = "success"
	ToolCallStatusError   = "error"
	ToolCallStatusBlocked = "blocked"
)

// ToolCall is the audit record of one tool dispatch.
type ToolCall struct {
	ID           string         `json:"id"`
	MessageID    string         `json:"message_id"`
	ThreadID     string         `json:"thread_id"`
	WorkspaceID  string         `json:"workspace_id"`
	ToolName     string         `json:"tool_name"`
	ToolArgs     map[string]any `json:"tool_args"`
	Status       string         `json:"status"`
	StartedAt    string         `json:"started_at,omitempty"`
	FinishedAt   string         `json:"finished_at,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// ToolResult is the structured output of a successful tool call. Data is
// opaque JSON; Checksum is the 16-hex-character prefix of the SHA-256 over
// its canonical serialization.
type ToolResult struct {
	ID          string           `json:"id"`
	ToolCallID  string           `json:"tool_call_id"`
	ThreadID    string           `json:"thread_id"`
	WorkspaceID string           `json:"workspace_id"`
	Data        map[string]any   `json:"data"`
	RowCount    *int64           `json:"row_count,omitempty"`
	Checksum    string           `json:"checksum,omitempty"`
	PreviewRows []map[string]any `json:"preview_rows,omitempty"`
}

// ToolExecutionResult pairs a tool call with its result. Result is nil
// unless the call succeeded.
type ToolExecutionResult struct {
	ToolCall   ToolCall    `json:"tool_call"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// Succeeded reports whether the execution produced usable evidence.
func (r ToolExecutionResult) Succeeded() bool {
	return r.ToolCall.Status == ToolCallStatusSuccess && r.ToolResult != nil
}
