// Package runtime dispatches approved plan actions to their connectors,
// sequentially and in plan order. Per-action failures never abort the run;
// they become error-status tool calls that the verifier reasons about.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/groundquery/groundquery/pkg/connector"
	"github.com/groundquery/groundquery/pkg/events"
	"github.com/groundquery/groundquery/pkg/models"
	"github.com/groundquery/groundquery/pkg/policy"
	"github.com/groundquery/groundquery/pkg/store"
)

// ToolRAGSearch is the semantic search tool name.
const ToolRAGSearch = "rag.search"

// DefaultPreviewRows caps the rows copied into ToolResult.PreviewRows.
const DefaultPreviewRows = 10

// Config tunes runtime behaviour.
type Config struct {
	// ToolTimeout is the per-call deadline.
	ToolTimeout time.Duration

	// PreviewRows caps preview size; zero means DefaultPreviewRows.
	PreviewRows int
}

// Runtime executes gated tool calls against the configured connectors and
// records the audit trail.
type Runtime struct {
	sql    connector.SQLQuerier
	rag    connector.RAGSearcher
	store  store.EvidenceStore
	cfg    Config
	logger *slog.Logger
}

// New creates a runtime. Either connector may be nil; dispatching to a nil
// connector yields an error-status tool call, not a panic.
func New(sql connector.SQLQuerier, rag connector.RAGSearcher, evidence store.EvidenceStore, cfg Config, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if evidence == nil {
		evidence = store.NopStore{}
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = DefaultPreviewRows
	}
	return &Runtime{sql: sql, rag: rag, store: evidence, cfg: cfg, logger: logger}
}

// Execute runs every decision in order, emitting a tool_call_start and
// tool_call_end pair per action. Pairs never interleave. The returned error
// is non-nil only on cancellation; tool failures are carried in the results.
func (r *Runtime) Execute(ctx context.Context, rc models.RunContext, decisions []models.PolicyDecision, emitter *events.Emitter) ([]models.ToolExecutionResult, error) {
	results := make([]models.ToolExecutionResult, 0, len(decisions))

	for _, decision := range decisions {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		var result models.ToolExecutionResult
		var err error
		if decision.Approved {
			result, err = r.executeAction(ctx, rc, decision, emitter)
		} else {
			result, err = r.recordBlocked(ctx, rc, decision, emitter)
		}
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *Runtime) executeAction(ctx context.Context, rc models.RunContext, decision models.PolicyDecision, emitter *events.Emitter) (models.ToolExecutionResult, error) {
	call := models.ToolCall{
		ID:          uuid.NewString(),
		MessageID:   rc.MessageID,
		ThreadID:    rc.ThreadID,
		WorkspaceID: rc.WorkspaceID,
		ToolName:    decision.Action.Tool,
		ToolArgs:    decision.SanitizedArgs,
		Status:      models.ToolCallStatusRunning,
	}

	if err := emitter.ToolCallStart(ctx, events.ToolCallStartPayload{
		Tool: call.ToolName,
		Args: decision.SanitizedArgs,
	}); err != nil {
		return models.ToolExecutionResult{}, err
	}

	started := time.Now().UTC()
	call.StartedAt = started.Format(time.RFC3339)

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.ToolTimeout)
	result, dispatchErr := r.dispatch(callCtx, rc, decision)
	cancel()

	finished := time.Now().UTC()
	call.FinishedAt = finished.Format(time.RFC3339)
	call.DurationMs = finished.Sub(started).Milliseconds()

	// Parent cancellation aborts the run; a per-call deadline is just a
	// failed tool call.
	if dispatchErr != nil && ctx.Err() != nil && errors.Is(dispatchErr, context.Canceled) {
		call.Status = models.ToolCallStatusError
		call.ErrorMessage = "cancelled"
		r.persistCall(ctx, call)
		return models.ToolExecutionResult{}, ctx.Err()
	}

	execution := models.ToolExecutionResult{}
	if dispatchErr != nil {
		call.Status = models.ToolCallStatusError
		call.ErrorMessage = dispatchErr.Error()
		if errors.Is(dispatchErr, context.DeadlineExceeded) {
			call.ErrorMessage = fmt.Sprintf("tool %s timed out after %s", call.ToolName, r.cfg.ToolTimeout)
		}
		r.logger.Warn("Tool call failed",
			"tool", call.ToolName, "tool_call_id", call.ID, "error", call.ErrorMessage)
	} else {
		call.Status = models.ToolCallStatusSuccess
		result.ToolCallID = call.ID
		result.ThreadID = rc.ThreadID
		result.WorkspaceID = rc.WorkspaceID
		execution.ToolResult = result
	}
	execution.ToolCall = call

	r.persistCall(ctx, call)
	if execution.ToolResult != nil {
		if err := r.store.InsertToolResult(ctx, *execution.ToolResult); err != nil {
			r.logger.Warn("Failed to persist tool result",
				"tool_call_id", call.ID, "error", err)
		}
	}

	end := events.ToolCallEndPayload{
		Tool:       call.ToolName,
		Status:     call.Status,
		DurationMs: call.DurationMs,
		Error:      call.ErrorMessage,
	}
	if execution.ToolResult != nil {
		end.RowCount = execution.ToolResult.RowCount
	}
	if err := emitter.ToolCallEnd(ctx, end); err != nil {
		return models.ToolExecutionResult{}, err
	}
	return execution, nil
}

// recordBlocked audits a policy-blocked action without dispatching it. The
// start/end pair is still emitted so the stream mirrors the plan.
func (r *Runtime) recordBlocked(ctx context.Context, rc models.RunContext, decision models.PolicyDecision, emitter *events.Emitter) (models.ToolExecutionResult, error) {
	call := models.ToolCall{
		ID:           uuid.NewString(),
		MessageID:    rc.MessageID,
		ThreadID:     rc.ThreadID,
		WorkspaceID:  rc.WorkspaceID,
		ToolName:     decision.Action.Tool,
		ToolArgs:     decision.Action.Args,
		Status:       models.ToolCallStatusBlocked,
		ErrorMessage: joinErrors(decision.Errors),
	}

	if err := emitter.ToolCallStart(ctx, events.ToolCallStartPayload{
		Tool: call.ToolName,
		Args: decision.Action.Args,
	}); err != nil {
		return models.ToolExecutionResult{}, err
	}

	r.persistCall(ctx, call)

	if err := emitter.ToolCallEnd(ctx, events.ToolCallEndPayload{
		Tool:   call.ToolName,
		Status: call.Status,
		Error:  call.ErrorMessage,
	}); err != nil {
		return models.ToolExecutionResult{}, err
	}
	return models.ToolExecutionResult{ToolCall: call}, nil
}

func (r *Runtime) dispatch(ctx context.Context, rc models.RunContext, decision models.PolicyDecision) (*models.ToolResult, error) {
	switch decision.Action.Tool {
	case policy.ToolSQLQuery:
		return r.runSQL(ctx, rc, decision.SanitizedArgs)
	case ToolRAGSearch:
		return r.runRAG(ctx, rc, decision.SanitizedArgs)
	default:
		return nil, fmt.Errorf("unknown tool %q", decision.Action.Tool)
	}
}

func (r *Runtime) runSQL(ctx context.Context, rc models.RunContext, args map[string]any) (*models.ToolResult, error) {
	if r.sql == nil {
		return nil, &connector.NotConfiguredError{Kind: "sql"}
	}
	sql, _ := args["sql"].(string)
	if sql == "" {
		return nil, fmt.Errorf("sql.query dispatched without sql argument")
	}

	maxRows := int64Arg(args, "max_rows", -1)
	result, err := r.sql.Query(ctx, connector.QueryRequest{
		SQL:         sql,
		SourceID:    stringArg(args, "source_id"),
		WorkspaceID: rc.WorkspaceID,
		MaxRows:     maxRows,
	})
	if err != nil {
		return nil, err
	}

	// Defence in depth: the connector already applies max_rows, truncate
	// again in case it did not.
	if maxRows >= 0 && int64(len(result.Rows)) > maxRows {
		result.Rows = result.Rows[:maxRows]
		result.RowCount = maxRows
		result.Truncated = true
	}

	preview := result.Rows
	if len(preview) > r.cfg.PreviewRows {
		preview = preview[:r.cfg.PreviewRows]
	}
	rowCount := result.RowCount
	return &models.ToolResult{
		ID: uuid.NewString(),
		Data: map[string]any{
			"columns":   result.Columns,
			"rows":      result.Rows,
			"truncated": result.Truncated,
		},
		RowCount:    &rowCount,
		Checksum:    result.Checksum,
		PreviewRows: preview,
	}, nil
}

func (r *Runtime) runRAG(ctx context.Context, rc models.RunContext, args map[string]any) (*models.ToolResult, error) {
	if r.rag == nil {
		return nil, &connector.NotConfiguredError{Kind: "rag"}
	}
	query := stringArg(args, "query")
	if query == "" {
		query = rc.UserMessage
	}
	sourceIDs := stringSliceArg(args, "source_ids")
	if len(sourceIDs) == 0 {
		sourceIDs = rc.AllowedSources
	}

	result, err := r.rag.Search(ctx, connector.SearchRequest{
		Query:       query,
		WorkspaceID: rc.WorkspaceID,
		SourceIDs:   sourceIDs,
		TopK:        int(int64Arg(args, "top_k", 0)),
	})
	if err != nil {
		return nil, err
	}

	// Data is kept JSON-generic so downstream consumers (verifier, answer
	// generator, store) see one shape regardless of marshalling round trips.
	chunks := make([]map[string]any, 0, len(result.Chunks))
	for _, c := range result.Chunks {
		m := map[string]any{
			"chunk_id":    c.ChunkID,
			"document_id": c.DocumentID,
			"content":     c.Content,
			"score":       c.Score,
		}
		if c.Metadata != nil {
			m["metadata"] = c.Metadata
		}
		chunks = append(chunks, m)
	}
	data := map[string]any{"chunks": chunks}
	checksum, err := models.Checksum(data)
	if err != nil {
		return nil, fmt.Errorf("checksum search result: %w", err)
	}
	chunkCount := int64(len(result.Chunks))
	return &models.ToolResult{
		ID:       uuid.NewString(),
		Data:     data,
		RowCount: &chunkCount,
		Checksum: checksum,
	}, nil
}

func (r *Runtime) persistCall(ctx context.Context, call models.ToolCall) {
	if err := r.store.InsertToolCall(ctx, call); err != nil {
		r.logger.Warn("Failed to persist tool call",
			"tool_call_id", call.ID, "error", err)
	}
}

func joinErrors(errs []string) string {
	switch len(errs) {
	case 0:
		return "blocked by policy"
	case 1:
		return errs[0]
	default:
		msg := errs[0]
		for _, e := range errs[1:] {
			msg += "; " + e
		}
		return msg
	}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func int64Arg(args map[string]any, key string, fallback int64) int64 {
	switch v := args[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return fallback
	}
}

func stringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
