package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/groundquery/groundquery/pkg/models"
)

// ToolSQLQuery is the tool name routed through the SQL safety gate.
const ToolSQLQuery = "sql.query"

// Engine composes the whole-plan tool gate with per-action validation and
// sanitization. It produces exactly one PolicyDecision per plan action.
type Engine struct {
	toolGate *ToolGate
	sqlGate  *SQLGate
	logger   *slog.Logger
}

// NewEngine creates a policy engine from the two gates.
func NewEngine(toolGate *ToolGate, sqlGate *SQLGate, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{toolGate: toolGate, sqlGate: sqlGate, logger: logger}
}

// Evaluate runs the tool gate first, then validates each action. A
// BlockedError return means the whole plan is rejected and nothing may be
// dispatched. Per-action violations are recorded on the decisions, not
// raised, so the pipeline keeps running with the approved subset.
func (e *Engine) Evaluate(ctx context.Context, plan models.Plan) ([]models.PolicyDecision, error) {
	if err := e.toolGate.CheckPlan(plan); err != nil {
		return nil, err
	}

	decisions := make([]models.PolicyDecision, 0, len(plan.Actions))
	for _, action := range plan.Actions {
		decisions = append(decisions, e.evaluateAction(ctx, plan, action))
	}
	return decisions, nil
}

func (e *Engine) evaluateAction(_ context.Context, plan models.Plan, action models.PlanAction) models.PolicyDecision {
	decision := models.PolicyDecision{Action: action, Errors: []string{}}

	if action.Tool != ToolSQLQuery {
		// Non-SQL tools pass through unchanged; connector-side validation
		// applies at dispatch.
		decision.Approved = true
		decision.SanitizedArgs = cloneArgs(action.Args)
		return decision
	}

	sql, ok := action.Args["sql"].(string)
	if !ok || sql == "" {
		decision.Errors = append(decision.Errors, "sql.query action is missing a sql argument")
		return decision
	}

	gate := e.sqlGate
	if plan.Constraints != nil && plan.Constraints.MaxRows != nil &&
		*plan.Constraints.MaxRows >= 0 && *plan.Constraints.MaxRows < gate.cfg.MaxRows {
		cfg := gate.cfg
		cfg.MaxRows = *plan.Constraints.MaxRows
		gate = NewSQLGate(cfg, e.logger)
	}

	result, err := gate.Check(sql)
	if err != nil {
		decision.Errors = append(decision.Errors, err.Error())
		return decision
	}
	if !result.Valid {
		decision.Errors = append(decision.Errors, result.Errors...)
		return decision
	}

	// A plan's own table constraint can only tighten policy, never widen
	// it: referenced tables must also be members of the plan's list.
	if plan.Constraints != nil && len(plan.Constraints.AllowedTables) > 0 {
		planTables := make(map[string]struct{}, len(plan.Constraints.AllowedTables))
		for _, t := range plan.Constraints.AllowedTables {
			planTables[strings.ToLower(t)] = struct{}{}
		}
		for _, table := range result.ReferencedTables {
			if _, ok := planTables[strings.ToLower(table)]; !ok {
				decision.Errors = append(decision.Errors, fmt.Sprintf(
					"table %q is outside the plan's allowed_tables constraint", table))
			}
		}
		if len(decision.Errors) > 0 {
			return decision
		}
	}

	decision.Approved = true
	decision.SanitizedArgs = cloneArgs(action.Args)
	decision.SanitizedArgs["sql"] = result.SanitizedSQL
	decision.SanitizedArgs["max_rows"] = result.EffectiveLimit
	return decision
}

// AnyApproved reports whether the plan is executable: at least one decision
// must be approved.
func AnyApproved(decisions []models.PolicyDecision) bool {
	for _, d := range decisions {
		if d.Approved {
			return true
		}
	}
	return false
}

func cloneArgs(args map[string]any) map[string]any {
	cloned := make(map[string]any, len(args))
	for k, v := range args {
		cloned[k] = v
	}
	return cloned
}
