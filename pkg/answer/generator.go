// Package answer produces the final cited answer. The adapter's output is
// schema-validated and its citations are cross-checked against the run's
// actual evidence before anything reaches the stream.
package answer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/groundquery/groundquery/pkg/llm"
	"github.com/groundquery/groundquery/pkg/models"
	"github.com/groundquery/groundquery/pkg/schema"
)

// CitationError marks an answer that cites evidence the run never produced.
type CitationError struct {
	EvidenceID   string
	EvidenceType string
}

func (e *CitationError) Error() string {
	return fmt.Sprintf("answer cites unknown %s evidence %q", e.EvidenceType, e.EvidenceID)
}

// Options tunes generator behaviour.
type Options struct {
	SystemContext string
}

// Generator wraps the adapter's answer calls with validation and citation
// enforcement.
type Generator struct {
	adapter   llm.Adapter
	validator *schema.Validator
	opts      Options
	logger    *slog.Logger
}

// New creates a generator.
func New(adapter llm.Adapter, validator *schema.Validator, opts Options, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{adapter: adapter, validator: validator, opts: opts, logger: logger}
}

// Generate streams answer fragments through onToken, then obtains and
// validates the final Answer. Tokens are forwarded best-effort preview
// text; only the validated Answer is authoritative.
func (g *Generator) Generate(
	ctx context.Context,
	rc models.RunContext,
	results []models.ToolExecutionResult,
	report models.VerifierReport,
	onToken func(string) error,
) (models.Answer, error) {
	toolResults := successfulResults(results)
	req := llm.AnswerRequest{
		UserMessage:    rc.UserMessage,
		ToolResults:    toolResults,
		VerifierReport: report,
		SystemContext:  g.opts.SystemContext,
	}

	if onToken != nil {
		stream, err := g.adapter.StreamAnswer(ctx, req)
		if err != nil {
			// Streaming is a presentation concern; fall through to the
			// non-streaming call.
			g.logger.Warn("Answer streaming unavailable",
				"message_id", rc.MessageID, "error", err)
		} else {
			for token := range stream {
				if err := onToken(token); err != nil {
					return models.Answer{}, err
				}
			}
			if err := ctx.Err(); err != nil {
				return models.Answer{}, err
			}
		}
	}

	raw, err := g.adapter.GenerateAnswer(ctx, req)
	if err != nil {
		return models.Answer{}, fmt.Errorf("answer generation failed: %w", err)
	}

	answer, err := g.validator.ValidateAnswer(raw)
	if err != nil {
		return models.Answer{}, fmt.Errorf("answer failed validation: %w", err)
	}

	if err := checkCitations(answer, toolResults); err != nil {
		return models.Answer{}, err
	}
	return answer, nil
}

// checkCitations enforces the evidence subset rule: tool_result citations
// must name a ToolResult id from this run, chunk citations must name a
// chunk id present in one of this run's results.
func checkCitations(answer models.Answer, toolResults []models.ToolResult) error {
	resultIDs := make(map[string]struct{}, len(toolResults))
	chunkIDs := map[string]struct{}{}
	for _, tr := range toolResults {
		resultIDs[tr.ID] = struct{}{}
		for _, id := range chunkIDsFromData(tr.Data) {
			chunkIDs[id] = struct{}{}
		}
	}

	for _, citation := range answer.Citations {
		switch citation.EvidenceType {
		case models.EvidenceTypeToolResult:
			if _, ok := resultIDs[citation.EvidenceID]; !ok {
				return &CitationError{EvidenceID: citation.EvidenceID, EvidenceType: citation.EvidenceType}
			}
		case models.EvidenceTypeChunk:
			if _, ok := chunkIDs[citation.EvidenceID]; !ok {
				return &CitationError{EvidenceID: citation.EvidenceID, EvidenceType: citation.EvidenceType}
			}
		default:
			return &CitationError{EvidenceID: citation.EvidenceID, EvidenceType: citation.EvidenceType}
		}
	}
	return nil
}

func successfulResults(results []models.ToolExecutionResult) []models.ToolResult {
	out := make([]models.ToolResult, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			out = append(out, *r.ToolResult)
		}
	}
	return out
}

// chunkIDsFromData digs chunk ids out of a rag result's data. The data has
// been through JSON marshalling at most once, so both the typed and the
// decoded generic shapes occur.
func chunkIDsFromData(data map[string]any) []string {
	raw, ok := data["chunks"]
	if !ok {
		return nil
	}
	var ids []string
	switch chunks := raw.(type) {
	case []any:
		for _, c := range chunks {
			if m, ok := c.(map[string]any); ok {
				if id, ok := m["chunk_id"].(string); ok && id != "" {
					ids = append(ids, id)
				}
			}
		}
	case []map[string]any:
		for _, m := range chunks {
			if id, ok := m["chunk_id"].(string); ok && id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
