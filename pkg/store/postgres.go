package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/groundquery/groundquery/pkg/models"
)

// PostgresStore persists audit records to Postgres. Writes are plain
// inserts; the tables are append-only from the pipeline's point of view.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type toolCallRow struct {
	ID           string  `db:"id"`
	MessageID    string  `db:"message_id"`
	ThreadID     string  `db:"thread_id"`
	WorkspaceID  string  `db:"workspace_id"`
	ToolName     string  `db:"tool_name"`
	ToolArgs     []byte  `db:"tool_args"`
	Status       string  `db:"status"`
	StartedAt    *string `db:"started_at"`
	FinishedAt   *string `db:"finished_at"`
	DurationMs   int64   `db:"duration_ms"`
	ErrorMessage string  `db:"error_message"`
}

type toolResultRow struct {
	ID          string `db:"id"`
	ToolCallID  string `db:"tool_call_id"`
	ThreadID    string `db:"thread_id"`
	WorkspaceID string `db:"workspace_id"`
	Data        []byte `db:"data"`
	RowCount    *int64 `db:"row_count"`
	Checksum    string `db:"checksum"`
	PreviewRows []byte `db:"preview_rows"`
}

type messageRow struct {
	ID          string `db:"id"`
	ThreadID    string `db:"thread_id"`
	WorkspaceID string `db:"workspace_id"`
	Role        string `db:"role"`
	Content     string `db:"content"`
	CitationIDs []byte `db:"citation_ids"`
}

// InsertToolCall implements EvidenceStore.
func (s *PostgresStore) InsertToolCall(ctx context.Context, call models.ToolCall) error {
	args, err := json.Marshal(call.ToolArgs)
	if err != nil {
		return fmt.Errorf("marshal tool args: %w", err)
	}
	row := toolCallRow{
		ID:           call.ID,
		MessageID:    call.MessageID,
		ThreadID:     call.ThreadID,
		WorkspaceID:  call.WorkspaceID,
		ToolName:     call.ToolName,
		ToolArgs:     args,
		Status:       call.Status,
		StartedAt:    nullable(call.StartedAt),
		FinishedAt:   nullable(call.FinishedAt),
		DurationMs:   call.DurationMs,
		ErrorMessage: call.ErrorMessage,
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO tool_calls (id, message_id, thread_id, workspace_id, tool_name, tool_args,
		                        status, started_at, finished_at, duration_ms, error_message)
		VALUES (:id, :message_id, :thread_id, :workspace_id, :tool_name, :tool_args,
		        :status, :started_at, :finished_at, :duration_ms, :error_message)`, row)
	if err != nil {
		return fmt.Errorf("insert tool call %s: %w", call.ID, err)
	}
	return nil
}

// nullable maps an unset timestamp to NULL; blocked calls never start.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// InsertToolResult implements EvidenceStore.
func (s *PostgresStore) InsertToolResult(ctx context.Context, result models.ToolResult) error {
	data, err := json.Marshal(result.Data)
	if err != nil {
		return fmt.Errorf("marshal tool result data: %w", err)
	}
	preview, err := json.Marshal(result.PreviewRows)
	if err != nil {
		return fmt.Errorf("marshal preview rows: %w", err)
	}
	row := toolResultRow{
		ID:          result.ID,
		ToolCallID:  result.ToolCallID,
		ThreadID:    result.ThreadID,
		WorkspaceID: result.WorkspaceID,
		Data:        data,
		RowCount:    result.RowCount,
		Checksum:    result.Checksum,
		PreviewRows: preview,
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO tool_results (id, tool_call_id, thread_id, workspace_id, data,
		                          row_count, checksum, preview_rows)
		VALUES (:id, :tool_call_id, :thread_id, :workspace_id, :data,
		        :row_count, :checksum, :preview_rows)`, row)
	if err != nil {
		return fmt.Errorf("insert tool result %s: %w", result.ID, err)
	}
	return nil
}

// InsertMessage implements EvidenceStore.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg models.CreateMessageRequest) error {
	citations, err := json.Marshal(msg.CitationIDs)
	if err != nil {
		return fmt.Errorf("marshal citation ids: %w", err)
	}
	row := messageRow{
		ID:          msg.ID,
		ThreadID:    msg.ThreadID,
		WorkspaceID: msg.WorkspaceID,
		Role:        msg.Role,
		Content:     msg.Content,
		CitationIDs: citations,
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO messages (id, thread_id, workspace_id, role, content, citation_ids)
		VALUES (:id, :thread_id, :workspace_id, :role, :content, :citation_ids)`, row)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	return nil
}
