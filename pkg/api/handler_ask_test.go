package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundquery/groundquery/pkg/answer"
	"github.com/groundquery/groundquery/pkg/connector"
	"github.com/groundquery/groundquery/pkg/llm"
	"github.com/groundquery/groundquery/pkg/pipeline"
	"github.com/groundquery/groundquery/pkg/planner"
	"github.com/groundquery/groundquery/pkg/policy"
	"github.com/groundquery/groundquery/pkg/runtime"
	"github.com/groundquery/groundquery/pkg/schema"
	"github.com/groundquery/groundquery/pkg/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T, adapter *llm.ScriptedAdapter, sql connector.SQLQuerier) *Server {
	t.Helper()
	validator := schema.MustNewValidator()

	engine := policy.NewEngine(
		policy.NewToolGate(policy.ToolGateConfig{
			AllowedTools:        []string{"sql.query", "rag.search"},
			MaxToolCallsPerPlan: 10,
		}),
		policy.NewSQLGate(policy.SQLPolicyConfig{MaxRows: 200}, quiet),
		quiet,
	)
	coord := pipeline.New(
		planner.New(adapter, validator, planner.DefaultOptions(), quiet),
		engine,
		runtime.New(sql, nil, store.NopStore{}, runtime.Config{}, quiet),
		answer.New(adapter, validator, answer.Options{}, quiet),
		store.NopStore{},
		pipeline.Config{AllowedTools: []string{"sql.query", "rag.search"}},
		quiet,
	)
	return NewServer(coord, nil, quiet)
}

func postAsk(t *testing.T, server *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestAskStreamsSSE(t *testing.T) {
	adapter := llm.NewScriptedAdapter().AddPlan(`{
		"intent": "count workspaces",
		"actions": [{"tool": "sql.query", "args": {"sql": "SELECT COUNT(*) FROM workspaces"}}]
	}`)
	adapter.AddAnswerEntry(llm.ScriptEntry{AnswerFunc: func(req llm.AnswerRequest) json.RawMessage {
		return json.RawMessage(fmt.Sprintf(`{
			"content": "There are 2 workspaces [1].",
			"citations": [{"index": 1, "evidence_id": %q, "evidence_type": "tool_result"}]
		}`, req.ToolResults[0].ID))
	}})

	sql := &connector.StubSQL{Result: &connector.QueryResult{
		Columns:  []string{"count"},
		Rows:     []map[string]any{{"count": int64(2)}},
		RowCount: 1,
		Checksum: "0123456789abcdef",
	}}
	server := newTestServer(t, adapter, sql)

	rec := postAsk(t, server, `{"workspace_id": "ws-1", "user_message": "How many workspaces are there?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	// Wire format: "event: <tag>\ndata: <json>\n\n" per event.
	assert.Contains(t, body, "event: meta\n")
	assert.Contains(t, body, "event: plan\n")
	assert.Contains(t, body, "event: tool_call_start\n")
	assert.Contains(t, body, "event: tool_call_end\n")
	assert.Contains(t, body, "event: verification\n")
	assert.Contains(t, body, "event: answer\n")
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: {}\n\n"))

	// done appears exactly once, as the final event.
	assert.Equal(t, 1, strings.Count(body, "event: done\n"))
}

func TestAskPolicyBlockedStream(t *testing.T) {
	adapter := llm.NewScriptedAdapter().AddPlan(`{
		"intent": "mutate",
		"actions": [{"tool": "sql.query", "args": {"sql": "DROP TABLE users"}}]
	}`)
	server := newTestServer(t, adapter, &connector.StubSQL{})

	rec := postAsk(t, server, `{"workspace_id": "ws-1", "user_message": "drop it"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, "POLICY_BLOCKED")
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: {}\n\n"))
}

func TestAskRejectsMissingFields(t *testing.T) {
	server := newTestServer(t, llm.NewScriptedAdapter(), &connector.StubSQL{})

	rec := postAsk(t, server, `{"workspace_id": "ws-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskRejectsOverlongMessage(t *testing.T) {
	server := newTestServer(t, llm.NewScriptedAdapter(), &connector.StubSQL{})

	long := strings.Repeat("x", schema.MaxUserMessageLen+1)
	rec := postAsk(t, server, fmt.Sprintf(`{"workspace_id": "ws-1", "user_message": %q}`, long))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "exceeds")
}

func TestHealthWithoutDatabase(t *testing.T) {
	server := newTestServer(t, llm.NewScriptedAdapter(), &connector.StubSQL{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.Contains(t, rec.Body.String(), "not configured")
}
