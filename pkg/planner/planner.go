// Package planner turns a user message into a schema-validated Plan via the
// language model adapter, retrying on validation failure.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/groundquery/groundquery/pkg/llm"
	"github.com/groundquery/groundquery/pkg/metrics"
	"github.com/groundquery/groundquery/pkg/models"
	"github.com/groundquery/groundquery/pkg/schema"
)

// Error is raised after the planner exhausts its retries. Issues carries
// the validation problems from the last attempt.
type Error struct {
	Attempts int
	Issues   []string
	Cause    error
}

func (e *Error) Error() string {
	if len(e.Issues) > 0 {
		return fmt.Sprintf("planner failed after %d attempts: %s",
			e.Attempts, strings.Join(e.Issues, "; "))
	}
	return fmt.Sprintf("planner failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Options tunes planner behaviour. Temperature near zero biases toward
// deterministic output.
type Options struct {
	Temperature   float32
	MaxRetries    int
	SystemContext string
}

// DefaultOptions returns the documented planner defaults.
func DefaultOptions() Options {
	return Options{Temperature: 0.1, MaxRetries: 2}
}

// Planner invokes the adapter and validates its output against the Plan
// schema before anything downstream sees it.
type Planner struct {
	adapter   llm.Adapter
	validator *schema.Validator
	opts      Options
	logger    *slog.Logger
}

// New creates a planner.
func New(adapter llm.Adapter, validator *schema.Validator, opts Options, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Planner{adapter: adapter, validator: validator, opts: opts, logger: logger}
}

// CreatePlan produces a validated Plan for the run, retrying adapter calls
// whose output fails schema validation. A plan with NeedsClarification set
// is returned unchanged; the coordinator short-circuits on it.
func (p *Planner) CreatePlan(ctx context.Context, rc models.RunContext, allowedTools []string) (models.Plan, error) {
	attempts := p.opts.MaxRetries + 1
	var lastIssues []string
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.Plan{}, err
		}

		metrics.RecordPlannerAttempt()
		raw, err := p.adapter.GeneratePlan(ctx, llm.PlanRequest{
			UserMessage:   rc.UserMessage,
			SystemContext: p.opts.SystemContext,
			AllowedTools:  allowedTools,
			Temperature:   p.opts.Temperature,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return models.Plan{}, err
			}
			lastErr = err
			lastIssues = nil
			p.logger.Warn("Plan generation failed",
				"attempt", attempt, "message_id", rc.MessageID, "error", err)
			continue
		}

		plan, err := p.validator.ValidatePlan(raw)
		if err != nil {
			var invalid *schema.InvalidError
			if errors.As(err, &invalid) {
				lastIssues = invalid.Issues
			} else {
				lastIssues = []string{err.Error()}
			}
			lastErr = err
			p.logger.Warn("Plan failed schema validation",
				"attempt", attempt, "message_id", rc.MessageID, "issues", lastIssues)
			continue
		}

		return plan, nil
	}

	return models.Plan{}, &Error{Attempts: attempts, Issues: lastIssues, Cause: lastErr}
}
