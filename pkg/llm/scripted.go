package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ScriptEntry defines a single scripted adapter response. Exactly one of
// Raw and Err should be set.
type ScriptEntry struct {
	Raw json.RawMessage // response returned verbatim
	Err error           // error returned from the call

	// AnswerFunc, when set on an answer entry, builds the response from the
	// actual request. Lets tests cite tool result ids generated at runtime.
	AnswerFunc func(AnswerRequest) json.RawMessage

	// Test control
	BlockUntilCancelled bool            // block the call until ctx is cancelled
	OnBlock             chan<- struct{} // notified when the call enters its blocking path
}

// ScriptedAdapter implements Adapter with pre-scripted responses, consumed
// in order per method. It backs planner, generator, and end-to-end tests.
type ScriptedAdapter struct {
	mu          sync.Mutex
	plans       []ScriptEntry
	answers     []ScriptEntry
	planIndex   int
	answerIndex int

	// StreamChunks overrides the token stream; when nil, StreamAnswer
	// splits the next answer's content into single chunks per call.
	StreamChunks []string

	capturedPlanReqs   []PlanRequest
	capturedAnswerReqs []AnswerRequest
}

// NewScriptedAdapter creates an empty scripted adapter.
func NewScriptedAdapter() *ScriptedAdapter {
	return &ScriptedAdapter{}
}

// AddPlan queues a raw plan response.
func (s *ScriptedAdapter) AddPlan(raw string) *ScriptedAdapter {
	s.plans = append(s.plans, ScriptEntry{Raw: json.RawMessage(raw)})
	return s
}

// AddPlanEntry queues a full script entry for GeneratePlan.
func (s *ScriptedAdapter) AddPlanEntry(entry ScriptEntry) *ScriptedAdapter {
	s.plans = append(s.plans, entry)
	return s
}

// AddAnswer queues a raw answer response.
func (s *ScriptedAdapter) AddAnswer(raw string) *ScriptedAdapter {
	s.answers = append(s.answers, ScriptEntry{Raw: json.RawMessage(raw)})
	return s
}

// AddAnswerEntry queues a full script entry for GenerateAnswer.
func (s *ScriptedAdapter) AddAnswerEntry(entry ScriptEntry) *ScriptedAdapter {
	s.answers = append(s.answers, entry)
	return s
}

// GeneratePlan implements Adapter.
func (s *ScriptedAdapter) GeneratePlan(ctx context.Context, req PlanRequest) (json.RawMessage, error) {
	s.mu.Lock()
	s.capturedPlanReqs = append(s.capturedPlanReqs, req)
	entry, err := nextEntry(s.plans, &s.planIndex, "plan")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return runEntry(ctx, entry)
}

// GenerateAnswer implements Adapter.
func (s *ScriptedAdapter) GenerateAnswer(ctx context.Context, req AnswerRequest) (json.RawMessage, error) {
	s.mu.Lock()
	s.capturedAnswerReqs = append(s.capturedAnswerReqs, req)
	entry, err := nextEntry(s.answers, &s.answerIndex, "answer")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if entry.AnswerFunc != nil {
		return entry.AnswerFunc(req), nil
	}
	return runEntry(ctx, entry)
}

// StreamAnswer implements Adapter. It peeks at the next queued answer
// without consuming it and yields its content as token fragments.
func (s *ScriptedAdapter) StreamAnswer(ctx context.Context, _ AnswerRequest) (<-chan string, error) {
	s.mu.Lock()
	chunks := s.StreamChunks
	if chunks == nil && s.answerIndex < len(s.answers) && s.answers[s.answerIndex].Raw != nil {
		var peek struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(s.answers[s.answerIndex].Raw, &peek); err == nil && peek.Content != "" {
			chunks = []string{peek.Content}
		}
	}
	s.mu.Unlock()

	out := make(chan string, len(chunks))
	go func() {
		defer close(out)
		for _, chunk := range chunks {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// PlanRequests returns the captured GeneratePlan inputs.
func (s *ScriptedAdapter) PlanRequests() []PlanRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PlanRequest(nil), s.capturedPlanReqs...)
}

// AnswerRequests returns the captured GenerateAnswer inputs.
func (s *ScriptedAdapter) AnswerRequests() []AnswerRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AnswerRequest(nil), s.capturedAnswerReqs...)
}

func nextEntry(entries []ScriptEntry, index *int, kind string) (ScriptEntry, error) {
	if *index >= len(entries) {
		return ScriptEntry{}, errors.New("scripted adapter: no " + kind + " entries left")
	}
	entry := entries[*index]
	*index++
	return entry, nil
}

func runEntry(ctx context.Context, entry ScriptEntry) (json.RawMessage, error) {
	if entry.BlockUntilCancelled {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if entry.Err != nil {
		return nil, entry.Err
	}
	return entry.Raw, nil
}
