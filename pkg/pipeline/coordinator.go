// Package pipeline sequences the five stages of a run and emits the
// ordered event stream: plan, policy, execution, verification, answer.
// The coordinator is logically single-threaded; one goroutine drives all
// stages and the consumer cannot influence control flow.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/groundquery/groundquery/pkg/answer"
	"github.com/groundquery/groundquery/pkg/events"
	"github.com/groundquery/groundquery/pkg/metrics"
	"github.com/groundquery/groundquery/pkg/models"
	"github.com/groundquery/groundquery/pkg/planner"
	"github.com/groundquery/groundquery/pkg/policy"
	"github.com/groundquery/groundquery/pkg/runtime"
	"github.com/groundquery/groundquery/pkg/store"
	"github.com/groundquery/groundquery/pkg/verifier"
)

// DefaultEmitterBuffer absorbs terminal events on cancelled runs so the
// producer can always finish its error/done sequence.
const DefaultEmitterBuffer = 32

// Config tunes coordinator behaviour.
type Config struct {
	// AllowedTools is forwarded to the planner as the tool vocabulary.
	AllowedTools []string

	// EmitterBuffer is the event channel buffer; zero means
	// DefaultEmitterBuffer.
	EmitterBuffer int
}

// Coordinator drives one run per Process call. It is safe for concurrent
// use; each run gets its own emitter.
type Coordinator struct {
	planner   *planner.Planner
	engine    *policy.Engine
	runtime   *runtime.Runtime
	generator *answer.Generator
	store     store.EvidenceStore
	cfg       Config
	logger    *slog.Logger
}

// New creates a coordinator.
func New(
	p *planner.Planner,
	engine *policy.Engine,
	rt *runtime.Runtime,
	generator *answer.Generator,
	evidence store.EvidenceStore,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if evidence == nil {
		evidence = store.NopStore{}
	}
	if cfg.EmitterBuffer <= 0 {
		cfg.EmitterBuffer = DefaultEmitterBuffer
	}
	return &Coordinator{
		planner: p, engine: engine, runtime: rt, generator: generator,
		store: evidence, cfg: cfg, logger: logger,
	}
}

// Process starts a run and returns its event stream. The channel is closed
// after the terminal done event. The caller must drain the channel fully;
// cancelling ctx stops the run.
func (c *Coordinator) Process(ctx context.Context, rc models.RunContext) <-chan events.StreamEvent {
	emitter := events.NewEmitter(c.cfg.EmitterBuffer)
	go c.run(ctx, rc, emitter)
	return emitter.Events()
}

func (c *Coordinator) run(ctx context.Context, rc models.RunContext, emitter *events.Emitter) {
	defer emitter.Close()

	logger := c.logger.With("thread_id", rc.ThreadID, "message_id", rc.MessageID)

	if err := emitter.Meta(ctx, rc.ThreadID, rc.MessageID); err != nil {
		return
	}

	// PLAN
	if err := emitter.Status(ctx, events.StagePlanning); err != nil {
		return
	}
	planStart := time.Now()
	plan, err := c.planner.CreatePlan(ctx, rc, c.cfg.AllowedTools)
	metrics.ObserveStage(events.StagePlanning, time.Since(planStart))
	if err != nil {
		c.fail(ctx, emitter, logger, Classify(err, events.StagePlanning))
		return
	}
	if err := emitter.Plan(ctx, events.PlanPayload{Plan: plan}); err != nil {
		return
	}

	if plan.NeedsClarification {
		c.finishClarification(ctx, rc, plan, emitter, logger)
		return
	}

	// POLICY
	if err := emitter.Status(ctx, events.StagePolicy); err != nil {
		return
	}
	decisions, err := c.engine.Evaluate(ctx, plan)
	if err != nil {
		c.fail(ctx, emitter, logger, Classify(err, events.StagePolicy))
		return
	}
	if !policy.AnyApproved(decisions) {
		c.fail(ctx, emitter, logger, &Error{
			Code:    CodePolicyBlocked,
			Message: blockedMessage(decisions),
			Stage:   events.StagePolicy,
		})
		return
	}

	// EXEC
	if err := emitter.Status(ctx, events.StageToolsRunning); err != nil {
		return
	}
	execStart := time.Now()
	results, err := c.runtime.Execute(ctx, rc, decisions, emitter)
	metrics.ObserveStage(events.StageToolsRunning, time.Since(execStart))
	for _, r := range results {
		metrics.RecordToolCall(r.ToolCall.ToolName, r.ToolCall.Status)
	}
	if err != nil {
		c.fail(ctx, emitter, logger, Classify(err, events.StageToolsRunning))
		return
	}

	// VERIFY
	if err := emitter.Status(ctx, events.StageVerifying); err != nil {
		return
	}
	report, verifyErr := verifier.Check(results, rc.UserMessage)
	if err := emitter.Verification(ctx, events.VerificationPayload{Report: report}); err != nil {
		return
	}
	if verifyErr != nil {
		c.fail(ctx, emitter, logger, Classify(verifyErr, events.StageVerifying))
		return
	}

	// ANSWER
	if err := emitter.Status(ctx, events.StageAnswering); err != nil {
		return
	}
	answerStart := time.Now()
	final, err := c.generator.Generate(ctx, rc, results, report, func(token string) error {
		return emitter.Token(ctx, token)
	})
	metrics.ObserveStage(events.StageAnswering, time.Since(answerStart))
	if err != nil {
		c.fail(ctx, emitter, logger, Classify(err, events.StageAnswering))
		return
	}

	c.persistAnswer(ctx, rc, final, logger)

	if err := emitter.Answer(ctx, events.AnswerPayload{Answer: final}); err != nil {
		return
	}
	if err := emitter.Done(ctx); err != nil {
		return
	}
	metrics.RecordRun("ok")
	logger.Info("Run completed", "actions", len(plan.Actions), "citations", len(final.Citations))
}

// finishClarification short-circuits the run: the clarification question is
// the answer, with no citations, and no policy or tool stage runs.
func (c *Coordinator) finishClarification(ctx context.Context, rc models.RunContext, plan models.Plan, emitter *events.Emitter, logger *slog.Logger) {
	clarification := models.Answer{
		Content:   plan.ClarificationQuestion,
		Citations: []models.Citation{},
	}
	c.persistAnswer(ctx, rc, clarification, logger)

	if err := emitter.Answer(ctx, events.AnswerPayload{Answer: clarification}); err != nil {
		return
	}
	if err := emitter.Done(ctx); err != nil {
		return
	}
	metrics.RecordRun("clarification")
	logger.Info("Run ended with clarification request")
}

// fail emits the terminal error and done events. Emission uses a detached
// context so a cancelled run still closes its stream in order; the emitter
// buffer absorbs the two events if the consumer is gone.
func (c *Coordinator) fail(ctx context.Context, emitter *events.Emitter, logger *slog.Logger, perr *Error) {
	metrics.RecordRun(perr.Code)
	logger.Warn("Run failed", "code", perr.Code, "stage", perr.Stage, "error", perr.Message)

	detached := context.WithoutCancel(ctx)
	_ = emitter.Error(detached, events.ErrorPayload{
		Code:    perr.Code,
		Message: perr.Message,
		Stage:   perr.Stage,
	})
	_ = emitter.Done(detached)
}

func (c *Coordinator) persistAnswer(ctx context.Context, rc models.RunContext, final models.Answer, logger *slog.Logger) {
	citationIDs := make([]string, 0, len(final.Citations))
	for _, citation := range final.Citations {
		citationIDs = append(citationIDs, citation.EvidenceID)
	}
	msg := models.CreateMessageRequest{
		ID:          uuid.NewString(),
		ThreadID:    rc.ThreadID,
		WorkspaceID: rc.WorkspaceID,
		Role:        "assistant",
		Content:     final.Content,
		CitationIDs: citationIDs,
	}
	if err := c.store.InsertMessage(context.WithoutCancel(ctx), msg); err != nil {
		logger.Warn("Failed to persist answer message", "error", err)
	}
}

func blockedMessage(decisions []models.PolicyDecision) string {
	var reasons []string
	for _, d := range decisions {
		reasons = append(reasons, d.Errors...)
	}
	if len(reasons) == 0 {
		return "no plan action was approved by policy"
	}
	return "no plan action was approved by policy: " + strings.Join(reasons, "; ")
}
