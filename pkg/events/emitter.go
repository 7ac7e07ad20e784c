package events

import (
	"context"
	"sync"
)

// Emitter is a per-run event producer. One emitter serves exactly one
// request; the channel is never shared across runs. Sends block until the
// consumer drains the channel, which is how HTTP back-pressure reaches the
// coordinator.
type Emitter struct {
	ch     chan StreamEvent
	closed bool
	mu     sync.Mutex
}

// NewEmitter creates an emitter with the given channel buffer.
func NewEmitter(buffer int) *Emitter {
	if buffer < 0 {
		buffer = 0
	}
	return &Emitter{ch: make(chan StreamEvent, buffer)}
}

// Events returns the receive side of the stream.
func (e *Emitter) Events() <-chan StreamEvent {
	return e.ch
}

// Close closes the stream. Safe to call more than once. No emit may follow.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// Emit pushes one event, giving up when the context is cancelled.
func (e *Emitter) Emit(ctx context.Context, event StreamEvent) error {
	select {
	case e.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Meta emits the stream-open meta event.
func (e *Emitter) Meta(ctx context.Context, threadID, messageID string) error {
	return e.Emit(ctx, StreamEvent{Type: EventTypeMeta, Payload: MetaPayload{ThreadID: threadID, MessageID: messageID}})
}

// Status emits a stage transition.
func (e *Emitter) Status(ctx context.Context, stage string) error {
	return e.Emit(ctx, StreamEvent{Type: EventTypeStatus, Payload: StatusPayload{Stage: stage}})
}

// Plan emits the validated plan.
func (e *Emitter) Plan(ctx context.Context, payload PlanPayload) error {
	return e.Emit(ctx, StreamEvent{Type: EventTypePlan, Payload: payload})
}

// ToolCallStart emits the start of one tool invocation.
func (e *Emitter) ToolCallStart(ctx context.Context, payload ToolCallStartPayload) error {
	return e.Emit(ctx, StreamEvent{Type: EventTypeToolCallStart, Payload: payload})
}

// ToolCallEnd emits the outcome of one tool invocation.
func (e *Emitter) ToolCallEnd(ctx context.Context, payload ToolCallEndPayload) error {
	return e.Emit(ctx, StreamEvent{Type: EventTypeToolCallEnd, Payload: payload})
}

// Verification emits the verifier report.
func (e *Emitter) Verification(ctx context.Context, payload VerificationPayload) error {
	return e.Emit(ctx, StreamEvent{Type: EventTypeVerification, Payload: payload})
}

// Token emits one streamed answer fragment.
func (e *Emitter) Token(ctx context.Context, token string) error {
	return e.Emit(ctx, StreamEvent{Type: EventTypeToken, Payload: TokenPayload{Token: token}})
}

// Answer emits the final answer.
func (e *Emitter) Answer(ctx context.Context, payload AnswerPayload) error {
	return e.Emit(ctx, StreamEvent{Type: EventTypeAnswer, Payload: payload})
}

// Error emits a terminal error event.
func (e *Emitter) Error(ctx context.Context, payload ErrorPayload) error {
	return e.Emit(ctx, StreamEvent{Type: EventTypeError, Payload: payload})
}

// Done emits the terminal done event.
func (e *Emitter) Done(ctx context.Context) error {
	return e.Emit(ctx, StreamEvent{Type: EventTypeDone, Payload: DonePayload{}})
}
