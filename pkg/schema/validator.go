// Package schema enforces the shape of every entity that crosses a trust
// boundary. LLM-produced and client-provided JSON must pass through a
// validator here before it reaches the rest of the pipeline.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/groundquery/groundquery/pkg/models"
)

//go:embed schemas
var schemasFS embed.FS

// MaxUserMessageLen is the accepted length of an inbound user message.
const MaxUserMessageLen = 10000

// MaxToolNameLen is the accepted length of a tool name.
const MaxToolNameLen = 128

// InvalidError reports why a raw entity failed validation.
type InvalidError struct {
	Entity string
	Issues []string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(e.Issues, "; "))
}

// Validator validates raw JSON against the compiled entity schemas and the
// structural invariants the schemas cannot express.
type Validator struct {
	plan       *jsonschema.Schema
	answer     *jsonschema.Schema
	report     *jsonschema.Schema
	toolCall   *jsonschema.Schema
	toolResult *jsonschema.Schema
}

// NewValidator compiles the embedded entity schemas.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	names := []string{"plan", "answer", "verifier_report", "tool_call", "tool_result"}
	for _, name := range names {
		data, err := schemasFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("read embedded schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", name, err)
		}
		if err := c.AddResource(name+".json", doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
	}

	v := &Validator{}
	for name, dst := range map[string]**jsonschema.Schema{
		"plan":            &v.plan,
		"answer":          &v.answer,
		"verifier_report": &v.report,
		"tool_call":       &v.toolCall,
		"tool_result":     &v.toolResult,
	} {
		sch, err := c.Compile(name + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		*dst = sch
	}
	return v, nil
}

// MustNewValidator panics on schema compilation failure. The schemas are
// embedded, so failure is a build defect, not a runtime condition.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// ValidatePlan checks raw planner output and decodes it into a Plan.
func (v *Validator) ValidatePlan(raw json.RawMessage) (models.Plan, error) {
	var plan models.Plan
	if err := v.validate("plan", v.plan, raw, &plan); err != nil {
		return models.Plan{}, err
	}

	var issues []string
	if plan.NeedsClarification {
		if strings.TrimSpace(plan.ClarificationQuestion) == "" {
			issues = append(issues, "needs_clarification is true but clarification_question is empty")
		}
	} else if len(plan.Actions) == 0 {
		issues = append(issues, "plan has no actions and does not request clarification")
	}
	if len(issues) > 0 {
		return models.Plan{}, &InvalidError{Entity: "plan", Issues: issues}
	}
	return plan, nil
}

// ValidateAnswer checks raw adapter output and decodes it into an Answer.
func (v *Validator) ValidateAnswer(raw json.RawMessage) (models.Answer, error) {
	var answer models.Answer
	if err := v.validate("answer", v.answer, raw, &answer); err != nil {
		return models.Answer{}, err
	}
	return answer, nil
}

// ValidateVerifierReport checks a raw verifier report.
func (v *Validator) ValidateVerifierReport(raw json.RawMessage) (models.VerifierReport, error) {
	var report models.VerifierReport
	if err := v.validate("verifier_report", v.report, raw, &report); err != nil {
		return models.VerifierReport{}, err
	}
	return report, nil
}

// ValidateToolCall checks a raw tool call audit record.
func (v *Validator) ValidateToolCall(raw json.RawMessage) (models.ToolCall, error) {
	var call models.ToolCall
	if err := v.validate("tool_call", v.toolCall, raw, &call); err != nil {
		return models.ToolCall{}, err
	}
	return call, nil
}

// ValidateToolResult checks a raw tool result record.
func (v *Validator) ValidateToolResult(raw json.RawMessage) (models.ToolResult, error) {
	var result models.ToolResult
	if err := v.validate("tool_result", v.toolResult, raw, &result); err != nil {
		return models.ToolResult{}, err
	}
	return result, nil
}

func (v *Validator) validate(entity string, sch *jsonschema.Schema, raw json.RawMessage, dst any) error {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &InvalidError{Entity: entity, Issues: []string{"not valid JSON: " + err.Error()}}
	}
	if err := sch.Validate(instance); err != nil {
		return &InvalidError{Entity: entity, Issues: schemaIssues(err)}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &InvalidError{Entity: entity, Issues: []string{"decode: " + err.Error()}}
	}
	return nil
}

// schemaIssues flattens a jsonschema validation error into leaf messages.
func schemaIssues(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	leaves := collectLeaves(ve)
	issues := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		issues = append(issues, leaf.Error())
	}
	return issues
}

func collectLeaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var leaves []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		leaves = append(leaves, collectLeaves(cause)...)
	}
	return leaves
}
