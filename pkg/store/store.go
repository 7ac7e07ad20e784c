// Package store persists the audit trail of a pipeline run: tool calls,
// tool results, and final messages. Persistence is best-effort; callers
// log and continue when a write fails, the run never aborts on a store
// error.
package store

import (
	"context"

	"github.com/groundquery/groundquery/pkg/models"
)

// EvidenceStore is the audit persistence contract.
type EvidenceStore interface {
	InsertToolCall(ctx context.Context, call models.ToolCall) error
	InsertToolResult(ctx context.Context, result models.ToolResult) error
	InsertMessage(ctx context.Context, msg models.CreateMessageRequest) error
}

// NopStore discards all writes. Used in tests and when no database is
// configured.
type NopStore struct{}

// InsertToolCall implements EvidenceStore.
func (NopStore) InsertToolCall(context.Context, models.ToolCall) error { return nil }

// InsertToolResult implements EvidenceStore.
func (NopStore) InsertToolResult(context.Context, models.ToolResult) error { return nil }

// InsertMessage implements EvidenceStore.
func (NopStore) InsertMessage(context.Context, models.CreateMessageRequest) error { return nil }

// RecordingStore captures writes in memory for tests.
type RecordingStore struct {
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
	Messages    []models.CreateMessageRequest
	Err         error
}

// InsertToolCall implements EvidenceStore.
func (s *RecordingStore) InsertToolCall(_ context.Context, call models.ToolCall) error {
	if s.Err != nil {
		return s.Err
	}
	s.ToolCalls = append(s.ToolCalls, call)
	return nil
}

// InsertToolResult implements EvidenceStore.
func (s *RecordingStore) InsertToolResult(_ context.Context, result models.ToolResult) error {
	if s.Err != nil {
		return s.Err
	}
	s.ToolResults = append(s.ToolResults, result)
	return nil
}

// InsertMessage implements EvidenceStore.
func (s *RecordingStore) InsertMessage(_ context.Context, msg models.CreateMessageRequest) error {
	if s.Err != nil {
		return s.Err
	}
	s.Messages = append(s.Messages, msg)
	return nil
}
