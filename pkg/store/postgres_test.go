package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundquery/groundquery/pkg/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return NewPostgresStore(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func TestInsertToolCall(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO tool_calls`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.InsertToolCall(context.Background(), models.ToolCall{
		ID:          "tc-1",
		MessageID:   "m-1",
		ThreadID:    "th-1",
		WorkspaceID: "ws-1",
		ToolName:    "sql.query",
		ToolArgs:    map[string]any{"sql": "SELECT 1 LIMIT 1"},
		Status:      models.ToolCallStatusSuccess,
		StartedAt:   "2026-08-24T10:00:00Z",
		FinishedAt:  "2026-08-24T10:00:01Z",
		DurationMs:  1000,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertToolResult(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO tool_results`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rowCount := int64(1)
	err := s.InsertToolResult(context.Background(), models.ToolResult{
		ID:          "tr-1",
		ToolCallID:  "tc-1",
		ThreadID:    "th-1",
		WorkspaceID: "ws-1",
		Data:        map[string]any{"rows": []any{map[string]any{"count": 2}}},
		RowCount:    &rowCount,
		Checksum:    "0123456789abcdef",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMessage(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO messages`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.InsertMessage(context.Background(), models.CreateMessageRequest{
		ID:          "m-2",
		ThreadID:    "th-1",
		WorkspaceID: "ws-1",
		Role:        "assistant",
		Content:     "There are 2 workspaces.",
		CitationIDs: []string{"tr-1"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertToolCallPropagatesError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO tool_calls`).
		WillReturnError(assert.AnError)

	err := s.InsertToolCall(context.Background(), models.ToolCall{ID: "tc-err"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tc-err")
}
