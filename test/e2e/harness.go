// Package e2e drives the full pipeline (planner, policy, runtime, verifier,
// answer generator) end to end with a scripted LLM adapter and stub
// connectors, asserting the exact event stream each scenario produces.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groundquery/groundquery/pkg/answer"
	"github.com/groundquery/groundquery/pkg/connector"
	"github.com/groundquery/groundquery/pkg/events"
	"github.com/groundquery/groundquery/pkg/llm"
	"github.com/groundquery/groundquery/pkg/models"
	"github.com/groundquery/groundquery/pkg/pipeline"
	"github.com/groundquery/groundquery/pkg/planner"
	"github.com/groundquery/groundquery/pkg/policy"
	"github.com/groundquery/groundquery/pkg/runtime"
	"github.com/groundquery/groundquery/pkg/schema"
	"github.com/groundquery/groundquery/pkg/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var allowedTools = []string{"sql.query", "rag.search"}

// Harness holds the scripted adapter, stub connectors, and recording store
// for one end-to-end run. Configure the fields, then call Run.
type Harness struct {
	Adapter *llm.ScriptedAdapter
	SQL     *connector.StubSQL
	RAG     connector.RAGSearcher
	Store   *store.RecordingStore

	MaxRows int64
}

// NewHarness creates a harness with default policy limits and empty stubs.
func NewHarness() *Harness {
	return &Harness{
		Adapter: llm.NewScriptedAdapter(),
		SQL:     &connector.StubSQL{},
		Store:   &store.RecordingStore{},
		MaxRows: 200,
	}
}

func (h *Harness) coordinator() *pipeline.Coordinator {
	validator := schema.MustNewValidator()
	engine := policy.NewEngine(
		policy.NewToolGate(policy.ToolGateConfig{
			AllowedTools:        allowedTools,
			MaxToolCallsPerPlan: 10,
		}),
		policy.NewSQLGate(policy.SQLPolicyConfig{MaxRows: h.MaxRows}, quiet),
		quiet,
	)
	return pipeline.New(
		planner.New(h.Adapter, validator, planner.DefaultOptions(), quiet),
		engine,
		runtime.New(h.SQL, h.RAG, h.Store, runtime.Config{}, quiet),
		answer.New(h.Adapter, validator, answer.Options{}, quiet),
		h.Store,
		pipeline.Config{AllowedTools: allowedTools},
		quiet,
	)
}

// Run drives one run to stream completion and returns every emitted event.
func (h *Harness) Run(t *testing.T, userMessage string) []events.StreamEvent {
	t.Helper()
	rc := models.RunContext{
		WorkspaceID: "ws-e2e",
		ThreadID:    "thread-e2e",
		MessageID:   "msg-e2e",
		UserMessage: userMessage,
	}
	var collected []events.StreamEvent
	for event := range h.coordinator().Process(context.Background(), rc) {
		collected = append(collected, event)
	}
	return collected
}

// eventTags flattens the stream into comparable tags, status events carrying
// their stage ("status:planning").
func eventTags(evs []events.StreamEvent) []string {
	tags := make([]string, 0, len(evs))
	for _, ev := range evs {
		if ev.Type == events.EventTypeStatus {
			tags = append(tags, ev.Type+":"+ev.Payload.(events.StatusPayload).Stage)
			continue
		}
		tags = append(tags, ev.Type)
	}
	return tags
}

// requireTerminal asserts done is emitted exactly once, as the last event.
func requireTerminal(t *testing.T, evs []events.StreamEvent) {
	t.Helper()
	require.NotEmpty(t, evs)
	require.Equal(t, events.EventTypeDone, evs[len(evs)-1].Type)
	count := 0
	for _, ev := range evs {
		if ev.Type == events.EventTypeDone {
			count++
		}
	}
	require.Equal(t, 1, count, "done must be emitted exactly once")
}

func findPayload[T any](t *testing.T, evs []events.StreamEvent, eventType string) T {
	t.Helper()
	for _, ev := range evs {
		if ev.Type == eventType {
			payload, ok := ev.Payload.(T)
			require.True(t, ok, "unexpected payload type for %s", eventType)
			return payload
		}
	}
	t.Fatalf("no %s event in stream", eventType)
	var zero T
	return zero
}

func collectPayloads[T any](evs []events.StreamEvent, eventType string) []T {
	var payloads []T
	for _, ev := range evs {
		if ev.Type == eventType {
			if payload, ok := ev.Payload.(T); ok {
				payloads = append(payloads, payload)
			}
		}
	}
	return payloads
}

// citeFirstResult builds an answer citing the first tool result the
// generator was handed, with [1] resolving to that evidence.
func citeFirstResult(content string) llm.ScriptEntry {
	return llm.ScriptEntry{AnswerFunc: func(req llm.AnswerRequest) json.RawMessage {
		if len(req.ToolResults) == 0 {
			return json.RawMessage(fmt.Sprintf(`{"content": %q, "citations": []}`, content))
		}
		return json.RawMessage(fmt.Sprintf(`{
			"content": %q,
			"citations": [{"index": 1, "evidence_id": %q, "evidence_type": "tool_result"}]
		}`, content, req.ToolResults[0].ID))
	}}
}

// singleRowResult is a canned one-row SQL result.
func singleRowResult(column string, value any) *connector.QueryResult {
	return &connector.QueryResult{
		Columns:  []string{column},
		Rows:     []map[string]any{{column: value}},
		RowCount: 1,
		Checksum: "0123456789abcdef",
	}
}
