package answer

import (
	"context"
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

func testRunContext() models.RunContext {
	return models.RunContext{
		WorkspaceID: "ws-1",
		ThreadID:    "th-1",
		MessageID:   "m-1",
		UserMessage: "How many workspaces are there?",
	}
}

func sqlResults() []models.ToolExecutionResult {
	rowCount := int64(1)
	return []models.ToolExecutionResult{{
		ToolCall: models.ToolCall{ID: "tc-1", ToolName: "sql.query", Status: models.ToolCallStatusSuccess},
		ToolResult: &models.ToolResult{
			ID:       "tr-1",
			RowCount: &rowCount,
			Data:     map[string]any{"columns": []any{"count"}, "rows": []any{map[string]any{"count": float64(2)}}},
		},
	}}
}

const citedAnswer = `{
	"content": "There are 2 workspaces [1].",
	"citations": [{"index": 1, "evidence_id": "tr-1", "evidence_type": "tool_result"}]
}`

func TestGenerateHappyPath(t *testing.T) {
	adapter := llm.NewScriptedAdapter().AddAnswer(citedAnswer)
	g := New(adapter, schema.MustNewValidator(), Options{}, quiet)

	var tokens []string
	answer, err := g.Generate(context.Background(), testRunContext(), sqlResults(),
		models.VerifierReport{Approved: true},
		func(tok string) error { tokens = append(tokens, tok); return nil })
	require.NoError(t, err)

	assert.Equal(t, "There are 2 workspaces [1].", answer.Content)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "tr-1", answer.Citations[0].EvidenceID)
	assert.NotEmpty(t, tokens)

	// Only successful tool results reach the adapter.
	reqs := adapter.AnswerRequests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].ToolResults, 1)
	assert.Equal(t, "tr-1", reqs[0].ToolResults[0].ID)
}

func TestGenerateRejectsUnknownEvidence(t *testing.T) {
	adapter := llm.NewScriptedAdapter().AddAnswer(`{
		"content": "Made up [1].",
		"citations": [{"index": 1, "evidence_id": "tr-unknown", "evidence_type": "tool_result"}]
	}`)
	g := New(adapter, schema.MustNewValidator(), Options{}, quiet)

	_, err := g.Generate(context.Background(), testRunContext(), sqlResults(),
		models.VerifierReport{Approved: true}, nil)
	require.Error(t, err)

	var cerr *CitationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "tr-unknown", cerr.EvidenceID)
}

func TestGenerateChunkCitation(t *testing.T) {
	chunkCount := int64(1)
	results := []models.ToolExecutionResult{{
		ToolCall: models.ToolCall{ID: "tc-2", ToolName: "rag.search", Status: models.ToolCallStatusSuccess},
		ToolResult: &models.ToolResult{
			ID:       "tr-2",
			RowCount: &chunkCount,
			Data: map[string]any{"chunks": []any{
				map[string]any{"chunk_id": "ch-1", "document_id": "doc-1", "content": "release notes"},
			}},
		},
	}}
	adapter := llm.NewScriptedAdapter().AddAnswer(`{
		"content": "Per the release notes [1].",
		"citations": [{"index": 1, "evidence_id": "ch-1", "evidence_type": "chunk"}]
	}`)
	g := New(adapter, schema.MustNewValidator(), Options{}, quiet)

	answer, err := g.Generate(context.Background(), testRunContext(), results,
		models.VerifierReport{Approved: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.EvidenceTypeChunk, answer.Citations[0].EvidenceType)
}

func TestGenerateRejectsUnknownChunk(t *testing.T) {
	adapter := llm.NewScriptedAdapter().AddAnswer(`{
		"content": "Per nothing [1].",
		"citations": [{"index": 1, "evidence_id": "ch-missing", "evidence_type": "chunk"}]
	}`)
	g := New(adapter, schema.MustNewValidator(), Options{}, quiet)

	_, err := g.Generate(context.Background(), testRunContext(), sqlResults(),
		models.VerifierReport{Approved: true}, nil)
	var cerr *CitationError
	require.ErrorAs(t, err, &cerr)
}

func TestGenerateNoEvidenceAllowsEmptyCitations(t *testing.T) {
	adapter := llm.NewScriptedAdapter().AddAnswer(`{
		"content": "No data was available to answer this question.",
		"citations": []
	}`)
	g := New(adapter, schema.MustNewValidator(), Options{}, quiet)

	answer, err := g.Generate(context.Background(), testRunContext(), nil,
		models.VerifierReport{Approved: false}, nil)
	require.NoError(t, err)
	assert.Empty(t, answer.Citations)
}

func TestGenerateInvalidAnswerFails(t *testing.T) {
	adapter := llm.NewScriptedAdapter().AddAnswer(`{"content": ""}`)
	g := New(adapter, schema.MustNewValidator(), Options{}, quiet)

	_, err := g.Generate(context.Background(), testRunContext(), sqlResults(),
		models.VerifierReport{Approved: true}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestGenerateTokenCallbackError(t *testing.T) {
	adapter := llm.NewScriptedAdapter().AddAnswer(citedAnswer)
	g := New(adapter, schema.MustNewValidator(), Options{}, quiet)

	_, err := g.Generate(context.Background(), testRunContext(), sqlResults(),
		models.VerifierReport{Approved: true},
		func(string) error { return context.Canceled })
	require.ErrorIs(t, err, context.Canceled)
}
