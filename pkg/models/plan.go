// Package models defines the immutable entities that flow through the
// pipeline: Plan, PolicyDecision, ToolCall, ToolResult, VerifierReport,
// Answer, and the per-request RunContext. Entities are produced by exactly
// one stage and consumed by reference downstream.
package models

// Plan is the planner's structured output: a statement of intent plus the
// ordered tool actions required to fulfil it. Either at least one action is
// present, or NeedsClarification is set with a question for the user.
type Plan struct {
	Intent                string           `json:"intent"`
	Actions               []PlanAction     `json:"actions"`
	Constraints           *PlanConstraints `json:"constraints,omitempty"`
	NeedsClarification    bool             `json:"needs_clarification,omitempty"`
	ClarificationQuestion string           `json:"clarification_question,omitempty"`
}

// PlanAction is one planned tool invocation.
type PlanAction struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Reason string         `json:"reason,omitempty"`
}

// PlanConstraints carries optional planner-level restrictions that the
// policy engine folds into per-action decisions.
type PlanConstraints struct {
	MaxRows       *int64   `json:"max_rows,omitempty"`
	SourceIDs     []string `json:"source_ids,omitempty"`
	AllowedTables []string `json:"allowed_tables,omitempty"`
}

// PolicyDecision is the approval verdict for one action. When Approved is
// true, SanitizedArgs holds the exact arguments that will be dispatched;
// otherwise Errors explains the rejection.
type PolicyDecision struct {
	Action        PlanAction     `json:"action"`
	Approved      bool           `json:"approved"`
	SanitizedArgs map[string]any `json:"sanitized_args,omitempty"`
	Errors        []string       `json:"errors"`
}
