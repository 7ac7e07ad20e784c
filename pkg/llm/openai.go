package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/groundquery/groundquery/pkg/models"
)

// OpenAIConfig configures the OpenAI-compatible adapter. BaseURL may point
// at any compatible endpoint (vLLM, Ollama, a gateway).
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIAdapter implements Adapter over the chat completions API, using
// JSON-object response format for structured outputs.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIAdapter creates an adapter for the configured endpoint.
func NewOpenAIAdapter(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai adapter requires an API key")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai adapter requires a model name")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// GeneratePlan implements Adapter.
func (a *OpenAIAdapter) GeneratePlan(ctx context.Context, req PlanRequest) (json.RawMessage, error) {
	system := planSystemPrompt(req)
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: req.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: req.UserMessage},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("plan generation returned no choices")
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}

// GenerateAnswer implements Adapter.
func (a *OpenAIAdapter) GenerateAnswer(ctx context.Context, req AnswerRequest) (json.RawMessage, error) {
	system, user, err := answerPrompt(req)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("answer generation returned no choices")
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}

// StreamAnswer implements Adapter. The fragments are free-form answer
// prose; the validated Answer still comes from GenerateAnswer.
func (a *OpenAIAdapter) StreamAnswer(ctx context.Context, req AnswerRequest) (<-chan string, error) {
	system, user, err := answerPrompt(req)
	if err != nil {
		return nil, err
	}
	stream, err := a.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system + "\nRespond in plain prose, not JSON."},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("answer streaming failed: %w", err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer func() { _ = stream.Close() }()
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				a.logger.Warn("Answer stream interrupted", "error", err)
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func planSystemPrompt(req PlanRequest) string {
	var b strings.Builder
	b.WriteString("You are a query planner for a data assistant. ")
	b.WriteString("Produce a JSON object with fields: intent (string), actions (array of {tool, args, reason}), ")
	b.WriteString("optional constraints {max_rows, source_ids, allowed_tables}, ")
	b.WriteString("needs_clarification (bool) and clarification_question (string).\n")
	b.WriteString("Only the following tools exist: ")
	b.WriteString(strings.Join(req.AllowedTools, ", "))
	b.WriteString(".\nIf the question cannot be answered with these tools, set needs_clarification ")
	b.WriteString("and ask one precise question instead of planning actions.\n")
	if req.SystemContext != "" {
		b.WriteString("\nContext:\n")
		b.WriteString(req.SystemContext)
	}
	return b.String()
}

func answerPrompt(req AnswerRequest) (system string, user string, err error) {
	evidence, err := json.Marshal(struct {
		ToolResults    []models.ToolResult   `json:"tool_results"`
		VerifierReport models.VerifierReport `json:"verifier_report"`
	}{req.ToolResults, req.VerifierReport})
	if err != nil {
		return "", "", fmt.Errorf("marshal answer evidence: %w", err)
	}

	var b strings.Builder
	b.WriteString("You answer questions strictly from the provided tool evidence. ")
	b.WriteString("Produce a JSON object {content, citations: [{index, evidence_id, evidence_type, label}], follow_ups}.\n")
	b.WriteString("Every factual statement must carry a [index] marker resolving to a citation whose ")
	b.WriteString("evidence_id is one of the provided tool result ids. Never state a fact without evidence. ")
	b.WriteString("If no evidence is available, say so plainly and cite nothing.\n")
	if req.SystemContext != "" {
		b.WriteString("\nContext:\n")
		b.WriteString(req.SystemContext)
	}

	return b.String(), fmt.Sprintf("Question: %s\n\nEvidence:\n%s", req.UserMessage, evidence), nil
}
