// Package llm defines the language-model contract the pipeline depends on.
// The model is untrusted: adapters return raw JSON, and the planner and
// answer generator validate it before anything leaves their stage.
package llm

import (
	"context"
	"encoding/json"

	"github.com/groundquery/groundquery/pkg/models"
)

// PlanRequest carries the planner's inputs to the adapter.
type PlanRequest struct {
	UserMessage   string
	SystemContext string
	AllowedTools  []string
	Temperature   float32
}

// AnswerRequest carries ONLY tool results and the verifier report alongside
// the user message. Nothing else may inform the answer.
type AnswerRequest struct {
	UserMessage    string
	ToolResults    []models.ToolResult
	VerifierReport models.VerifierReport
	SystemContext  string
}

// Adapter is the opaque language model. Implementations may be remote,
// local, or scripted; the pipeline assumes nothing beyond this contract and
// that independent requests may invoke it concurrently.
type Adapter interface {
	// GeneratePlan produces a raw candidate Plan for the user message.
	GeneratePlan(ctx context.Context, req PlanRequest) (json.RawMessage, error)

	// GenerateAnswer produces a raw candidate Answer grounded in the
	// request's tool results.
	GenerateAnswer(ctx context.Context, req AnswerRequest) (json.RawMessage, error)

	// StreamAnswer yields answer text fragments. The channel is closed when
	// the stream ends; a final validated Answer must still be obtained via
	// GenerateAnswer.
	StreamAnswer(ctx context.Context, req AnswerRequest) (<-chan string, error)
}
