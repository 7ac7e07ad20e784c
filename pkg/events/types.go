// Package events defines the ordered stream of typed events a pipeline run
// emits, and the emitter the coordinator pushes them through. The HTTP edge
// consumes the stream and translates each event into SSE wire format.
//
// Every run emits events in this order:
//
//	meta, status(planning), plan, status(policy),
//	status(toolsRunning), [tool_call_start, tool_call_end]*,
//	status(verifying), verification,
//	status(answering), token*, answer, done
//
// Failures replace the remainder of the sequence with a terminal error
// event followed by done. done is emitted exactly once, always last.
package events

// Stream event types, in emission order.
const (
	EventTypeMeta          = "meta"
	EventTypeStatus        = "status"
	EventTypePlan          = "plan"
	EventTypeToolCallStart = "tool_call_start"
	EventTypeToolCallEnd   = "tool_call_end"
	EventTypeVerification  = "verification"
	EventTypeToken         = "token"
	EventTypeAnswer        = "answer"
	EventTypeError         = "error"
	EventTypeDone          = "done"
)

// Pipeline stage names carried by status events.
const (
	StagePlanning     = "planning"
	StagePolicy       = "policy"
	StageToolsRunning = "toolsRunning"
	StageVerifying    = "verifying"
	StageAnswering    = "answering"
)

// StreamEvent is one tagged record in a run's event stream. Payload is one
// of the typed payload structs in payloads.go.
type StreamEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
