package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundquery/groundquery/pkg/connector"
	"github.com/groundquery/groundquery/pkg/events"
	"github.com/groundquery/groundquery/pkg/models"
	"github.com/groundquery/groundquery/pkg/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func testRunContext() models.RunContext {
	return models.RunContext{
		WorkspaceID: "ws-1",
		ThreadID:    "th-1",
		MessageID:   "m-1",
		UserMessage: "How many workspaces are there?",
	}
}

func approvedSQLDecision(sql string) models.PolicyDecision {
	return models.PolicyDecision{
		Action:        models.PlanAction{Tool: "sql.query", Args: map[string]any{"sql": sql}},
		Approved:      true,
		SanitizedArgs: map[string]any{"sql": sql, "max_rows": int64(200)},
	}
}

func collect(t *testing.T, e *events.Emitter) []events.StreamEvent {
	t.Helper()
	e.Close()
	var got []events.StreamEvent
	for ev := range e.Events() {
		got = append(got, ev)
	}
	return got
}

func TestExecuteSQLSuccess(t *testing.T) {
	queryResult := &connector.QueryResult{
		Columns:  []string{"count"},
		Rows:     []map[string]any{{"count": int64(2)}},
		RowCount: 1,
		Checksum: "0123456789abcdef",
	}
	sql := &connector.StubSQL{Result: queryResult}
	recording := &store.RecordingStore{}
	rt := New(sql, nil, recording, Config{ToolTimeout: time.Second}, quiet)
	emitter := events.NewEmitter(16)

	results, err := rt.Execute(context.Background(), testRunContext(),
		[]models.PolicyDecision{approvedSQLDecision("SELECT COUNT(*) FROM workspaces LIMIT 200")}, emitter)
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results[0]
	assert.True(t, result.Succeeded())
	assert.Equal(t, models.ToolCallStatusSuccess, result.ToolCall.Status)
	assert.Equal(t, "sql.query", result.ToolCall.ToolName)
	require.NotNil(t, result.ToolResult)
	assert.Equal(t, result.ToolCall.ID, result.ToolResult.ToolCallID)
	assert.Equal(t, "0123456789abcdef", result.ToolResult.Checksum)
	require.NotNil(t, result.ToolResult.RowCount)
	assert.Equal(t, int64(1), *result.ToolResult.RowCount)
	assert.Len(t, result.ToolResult.PreviewRows, 1)

	// Connector received the sanitized arguments.
	require.Len(t, sql.Calls, 1)
	assert.Equal(t, int64(200), sql.Calls[0].MaxRows)
	assert.Equal(t, "ws-1", sql.Calls[0].WorkspaceID)

	// Audit trail persisted.
	require.Len(t, recording.ToolCalls, 1)
	require.Len(t, recording.ToolResults, 1)
	assert.Equal(t, result.ToolCall.ID, recording.ToolResults[0].ToolCallID)

	got := collect(t, emitter)
	require.Len(t, got, 2)
	assert.Equal(t, events.EventTypeToolCallStart, got[0].Type)
	assert.Equal(t, events.EventTypeToolCallEnd, got[1].Type)
	end := got[1].Payload.(events.ToolCallEndPayload)
	assert.Equal(t, models.ToolCallStatusSuccess, end.Status)
	require.NotNil(t, end.RowCount)
	assert.Equal(t, int64(1), *end.RowCount)
}

func TestExecuteRAGNotConfigured(t *testing.T) {
	rt := New(&connector.StubSQL{}, nil, &store.RecordingStore{}, Config{}, quiet)
	emitter := events.NewEmitter(16)

	decision := models.PolicyDecision{
		Action:        models.PlanAction{Tool: "rag.search", Args: map[string]any{"query": "release notes"}},
		Approved:      true,
		SanitizedArgs: map[string]any{"query": "release notes"},
	}
	results, err := rt.Execute(context.Background(), testRunContext(), []models.PolicyDecision{decision}, emitter)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.False(t, results[0].Succeeded())
	assert.Equal(t, models.ToolCallStatusError, results[0].ToolCall.Status)
	assert.Contains(t, results[0].ToolCall.ErrorMessage, "no rag connector configured")
	assert.Nil(t, results[0].ToolResult)

	got := collect(t, emitter)
	require.Len(t, got, 2)
	end := got[1].Payload.(events.ToolCallEndPayload)
	assert.Equal(t, models.ToolCallStatusError, end.Status)
	assert.NotEmpty(t, end.Error)
}

func TestExecuteRAGSuccess(t *testing.T) {
	rag := &connector.StubRAG{Result: &connector.SearchResult{
		Chunks: []connector.Chunk{{ChunkID: "ch-1", DocumentID: "doc-1", Content: "release notes", Score: 0.92}},
	}}
	rt := New(nil, rag, store.NopStore{}, Config{}, quiet)
	emitter := events.NewEmitter(16)

	decision := models.PolicyDecision{
		Action:        models.PlanAction{Tool: "rag.search", Args: map[string]any{}},
		Approved:      true,
		SanitizedArgs: map[string]any{"top_k": float64(5)},
	}
	results, err := rt.Execute(context.Background(), testRunContext(), []models.PolicyDecision{decision}, emitter)
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.True(t, results[0].Succeeded())
	require.NotNil(t, results[0].ToolResult.RowCount)
	assert.Equal(t, int64(1), *results[0].ToolResult.RowCount)
	assert.Len(t, results[0].ToolResult.Checksum, 16)

	// Query falls back to the user message when the plan omits one.
	require.Len(t, rag.Calls, 1)
	assert.Equal(t, "How many workspaces are there?", rag.Calls[0].Query)
	assert.Equal(t, 5, rag.Calls[0].TopK)
}

func TestExecuteBlockedDecision(t *testing.T) {
	recording := &store.RecordingStore{}
	rt := New(&connector.StubSQL{}, nil, recording, Config{}, quiet)
	emitter := events.NewEmitter(16)

	decision := models.PolicyDecision{
		Action: models.PlanAction{Tool: "sql.query", Args: map[string]any{"sql": "UPDATE users SET x = 1"}},
		Errors: []string{"only SELECT statements are permitted"},
	}
	results, err := rt.Execute(context.Background(), testRunContext(), []models.PolicyDecision{decision}, emitter)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, models.ToolCallStatusBlocked, results[0].ToolCall.Status)
	assert.Contains(t, results[0].ToolCall.ErrorMessage, "SELECT")

	// Blocked calls are audited but never dispatched.
	require.Len(t, recording.ToolCalls, 1)
	assert.Equal(t, models.ToolCallStatusBlocked, recording.ToolCalls[0].Status)
	assert.Empty(t, recording.ToolResults)

	got := collect(t, emitter)
	require.Len(t, got, 2)
	end := got[1].Payload.(events.ToolCallEndPayload)
	assert.Equal(t, models.ToolCallStatusBlocked, end.Status)
}

func TestExecuteUnknownTool(t *testing.T) {
	rt := New(&connector.StubSQL{}, &connector.StubRAG{}, store.NopStore{}, Config{}, quiet)
	emitter := events.NewEmitter(16)

	decision := models.PolicyDecision{
		Action:        models.PlanAction{Tool: "shell.exec", Args: map[string]any{}},
		Approved:      true,
		SanitizedArgs: map[string]any{},
	}
	results, err := rt.Execute(context.Background(), testRunContext(), []models.PolicyDecision{decision}, emitter)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, models.ToolCallStatusError, results[0].ToolCall.Status)
	assert.Contains(t, results[0].ToolCall.ErrorMessage, "unknown tool")
}

func TestExecuteSequentialPairs(t *testing.T) {
	sql := &connector.StubSQL{Result: &connector.QueryResult{
		Columns: []string{"n"}, Rows: []map[string]any{{"n": int64(1)}}, RowCount: 1, Checksum: "abcdefabcdefabcd",
	}}
	rt := New(sql, nil, store.NopStore{}, Config{}, quiet)
	emitter := events.NewEmitter(16)

	decisions := []models.PolicyDecision{
		approvedSQLDecision("SELECT n FROM a LIMIT 200"),
		approvedSQLDecision("SELECT n FROM b LIMIT 200"),
	}
	results, err := rt.Execute(context.Background(), testRunContext(), decisions, emitter)
	require.NoError(t, err)
	require.Len(t, results, 2)

	got := collect(t, emitter)
	require.Len(t, got, 4)
	assert.Equal(t, events.EventTypeToolCallStart, got[0].Type)
	assert.Equal(t, events.EventTypeToolCallEnd, got[1].Type)
	assert.Equal(t, events.EventTypeToolCallStart, got[2].Type)
	assert.Equal(t, events.EventTypeToolCallEnd, got[3].Type)
}

func TestExecuteStoreFailureDoesNotAbort(t *testing.T) {
	sql := &connector.StubSQL{Result: &connector.QueryResult{
		Columns: []string{"n"}, Rows: []map[string]any{}, RowCount: 0, Checksum: "abcdefabcdefabcd",
	}}
	failing := &store.RecordingStore{Err: errors.New("db unavailable")}
	rt := New(sql, nil, failing, Config{}, quiet)
	emitter := events.NewEmitter(16)

	results, err := rt.Execute(context.Background(), testRunContext(),
		[]models.PolicyDecision{approvedSQLDecision("SELECT n FROM a LIMIT 200")}, emitter)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Succeeded())
}

// hangingSQL blocks its first call until the per-call deadline fires, then
// answers normally.
type hangingSQL struct {
	calls int
}

func (s *hangingSQL) Query(ctx context.Context, _ connector.QueryRequest) (*connector.QueryResult, error) {
	s.calls++
	if s.calls == 1 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &connector.QueryResult{
		Columns: []string{"n"}, Rows: []map[string]any{{"n": int64(1)}}, RowCount: 1, Checksum: "abcdefabcdefabcd",
	}, nil
}

func (s *hangingSQL) TestConnection(context.Context) error { return nil }

func (s *hangingSQL) Disconnect() {}

func TestExecuteToolTimeoutFailsCallOnly(t *testing.T) {
	sql := &hangingSQL{}
	recording := &store.RecordingStore{}
	rt := New(sql, nil, recording, Config{ToolTimeout: 20 * time.Millisecond}, quiet)
	emitter := events.NewEmitter(16)

	decisions := []models.PolicyDecision{
		approvedSQLDecision("SELECT n FROM a LIMIT 200"),
		approvedSQLDecision("SELECT n FROM b LIMIT 200"),
	}
	results, err := rt.Execute(context.Background(), testRunContext(), decisions, emitter)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The deadline fails the call, not the run.
	assert.Equal(t, models.ToolCallStatusError, results[0].ToolCall.Status)
	assert.Contains(t, results[0].ToolCall.ErrorMessage, "timed out after")
	assert.Nil(t, results[0].ToolResult)

	// The next action still runs with a fresh deadline.
	assert.True(t, results[1].Succeeded())
	assert.Equal(t, 2, sql.calls)

	got := collect(t, emitter)
	require.Len(t, got, 4)
	end := got[1].Payload.(events.ToolCallEndPayload)
	assert.Equal(t, models.ToolCallStatusError, end.Status)
	assert.Contains(t, end.Error, "timed out after")
}

func TestExecuteCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rt := New(&connector.StubSQL{}, nil, store.NopStore{}, Config{}, quiet)
	emitter := events.NewEmitter(16)

	results, err := rt.Execute(ctx, testRunContext(),
		[]models.PolicyDecision{approvedSQLDecision("SELECT 1 LIMIT 1")}, emitter)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
