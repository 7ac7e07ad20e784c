package planner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundquery/groundquery/pkg/llm"
	"github.com/groundquery/groundquery/pkg/models"
	"github.com/groundquery/groundquery/pkg/schema"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const validPlanJSON = `{
	"intent": "count workspaces",
	"actions": [{"tool": "sql.query", "args": {"sql": "SELECT COUNT(*) FROM workspaces"}}]
}`

func testRunContext() models.RunContext {
	return models.RunContext{
		WorkspaceID: "ws-1",
		ThreadID:    "th-1",
		MessageID:   "m-1",
		UserMessage: "How many workspaces are there?",
	}
}

func TestCreatePlanHappyPath(t *testing.T) {
	adapter := llm.NewScriptedAdapter().AddPlan(validPlanJSON)
	p := New(adapter, schema.MustNewValidator(), DefaultOptions(), quiet)

	plan, err := p.CreatePlan(context.Background(), testRunContext(), []string{"sql.query", "rag.search"})
	require.NoError(t, err)
	assert.Equal(t, "count workspaces", plan.Intent)
	require.Len(t, plan.Actions, 1)

	reqs := adapter.PlanRequests()
	require.Len(t, reqs, 1)
	assert.InDelta(t, 0.1, reqs[0].Temperature, 1e-6)
	assert.Equal(t, []string{"sql.query", "rag.search"}, reqs[0].AllowedTools)
}

func TestCreatePlanRetriesOnInvalidOutput(t *testing.T) {
	adapter := llm.NewScriptedAdapter().
		AddPlan(`{"intent": "", "actions": []}`).
		AddPlan(validPlanJSON)
	p := New(adapter, schema.MustNewValidator(), DefaultOptions(), quiet)

	plan, err := p.CreatePlan(context.Background(), testRunContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, "count workspaces", plan.Intent)
	assert.Len(t, adapter.PlanRequests(), 2)
}

func TestCreatePlanExhaustsRetries(t *testing.T) {
	adapter := llm.NewScriptedAdapter().
		AddPlan(`not json`).
		AddPlan(`not json`).
		AddPlan(`not json`)
	p := New(adapter, schema.MustNewValidator(), DefaultOptions(), quiet)

	_, err := p.CreatePlan(context.Background(), testRunContext(), nil)
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.Attempts) // maxRetries 2 → 3 attempts
	require.NotEmpty(t, perr.Issues)
	assert.Contains(t, perr.Issues[0], "not valid JSON")
}

func TestCreatePlanAdapterErrorRetried(t *testing.T) {
	adapter := llm.NewScriptedAdapter()
	adapter.AddPlanEntry(llm.ScriptEntry{Err: errors.New("upstream 503")})
	adapter.AddPlan(validPlanJSON)
	p := New(adapter, schema.MustNewValidator(), DefaultOptions(), quiet)

	plan, err := p.CreatePlan(context.Background(), testRunContext(), nil)
	require.NoError(t, err)
	assert.Len(t, plan.Actions, 1)
}

func TestCreatePlanClarificationPassesThrough(t *testing.T) {
	adapter := llm.NewScriptedAdapter().AddPlan(`{
		"intent": "ambiguous",
		"actions": [],
		"needs_clarification": true,
		"clarification_question": "Which workspace?"
	}`)
	p := New(adapter, schema.MustNewValidator(), DefaultOptions(), quiet)

	plan, err := p.CreatePlan(context.Background(), testRunContext(), nil)
	require.NoError(t, err)
	assert.True(t, plan.NeedsClarification)
	assert.Equal(t, "Which workspace?", plan.ClarificationQuestion)
	assert.Empty(t, plan.Actions)
}

func TestCreatePlanCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapter := llm.NewScriptedAdapter().AddPlan(validPlanJSON)
	p := New(adapter, schema.MustNewValidator(), DefaultOptions(), quiet)

	_, err := p.CreatePlan(ctx, testRunContext(), nil)
	require.ErrorIs(t, err, context.Canceled)
}
