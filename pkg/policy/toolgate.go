package policy

import (
	"fmt"

	"github.com/groundquery/groundquery/pkg/models"
)

// BlockedError rejects a whole plan. It is a stage-level failure: no action
// of the plan is dispatched.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string { return "plan blocked by policy: " + e.Reason }

// ToolGateConfig configures the whole-plan gate.
type ToolGateConfig struct {
	AllowedTools        []string
	MaxToolCallsPerPlan int
}

// ToolGate rejects plans that exceed the per-plan action cap or name a tool
// outside the allowlist. An empty allowlist is permissive.
type ToolGate struct {
	cfg     ToolGateConfig
	allowed map[string]struct{}
}

// NewToolGate creates a tool gate for the given config.
func NewToolGate(cfg ToolGateConfig) *ToolGate {
	allowed := make(map[string]struct{}, len(cfg.AllowedTools))
	for _, tool := range cfg.AllowedTools {
		allowed[tool] = struct{}{}
	}
	return &ToolGate{cfg: cfg, allowed: allowed}
}

// CheckPlan returns a BlockedError if the plan as a whole is not
// executable.
func (g *ToolGate) CheckPlan(plan models.Plan) error {
	if g.cfg.MaxToolCallsPerPlan > 0 && len(plan.Actions) > g.cfg.MaxToolCallsPerPlan {
		return &BlockedError{Reason: fmt.Sprintf(
			"plan has %d actions, limit is %d", len(plan.Actions), g.cfg.MaxToolCallsPerPlan)}
	}
	if len(g.allowed) == 0 {
		return nil
	}
	for _, action := range plan.Actions {
		if _, ok := g.allowed[action.Tool]; !ok {
			return &BlockedError{Reason: fmt.Sprintf("tool %q is not in the allowlist", action.Tool)}
		}
	}
	return nil
}
