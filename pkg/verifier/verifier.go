// Package verifier performs structural grounding checks over a run's tool
// executions. Grounding is a count of usable evidence items; the verifier
// never parses answer text or matches claims linguistically.
package verifier

import (
	"fmt"

	"github.com/groundquery/groundquery/pkg/models"
)

// VerificationError is raised only by Check, and only when every attempted
// tool failed. A rejection with mixed successes is non-fatal; the answer
// generator acknowledges the missing data instead.
type VerificationError struct {
	Report models.VerifierReport
}

func (e *VerificationError) Error() string {
	return "verification failed: every attempted tool execution failed"
}

// BuildReport is a pure function of the execution results. It produces the
// coverage check, one check per successful result, and one per failed
// result. Blocked calls were never dispatched and count as failures here.
func BuildReport(results []models.ToolExecutionResult, userMessage string) models.VerifierReport {
	report := models.VerifierReport{Checks: []models.EvidenceCheck{}}

	anySucceeded := false
	for _, r := range results {
		if r.Succeeded() {
			anySucceeded = true
			break
		}
	}
	report.Checks = append(report.Checks, models.EvidenceCheck{
		Claim:     "at least one tool execution succeeded",
		Supported: anySucceeded,
	})

	for _, r := range results {
		if r.Succeeded() {
			report.Checks = append(report.Checks, dataCheck(r))
			continue
		}
		reason := r.ToolCall.ErrorMessage
		if reason == "" {
			reason = "tool call did not complete"
		}
		report.Checks = append(report.Checks, models.EvidenceCheck{
			Claim:     fmt.Sprintf("tool %s executed successfully", r.ToolCall.ToolName),
			Supported: false,
			Reason:    reason,
		})
		report.SuggestedActions = append(report.SuggestedActions,
			fmt.Sprintf("inspect the %s failure: %s", r.ToolCall.ToolName, reason))
	}

	report.Approved = anySucceeded
	for _, check := range report.Checks {
		if check.EvidenceType != "" && !check.Supported {
			report.Approved = false
		}
	}
	if !report.Approved {
		report.Summary = summarize(results, userMessage)
	}
	return report
}

// Check is the fatal-shortcut variant: it returns the report plus a
// VerificationError iff at least one tool was attempted and all attempts
// failed.
func Check(results []models.ToolExecutionResult, userMessage string) (models.VerifierReport, error) {
	report := BuildReport(results, userMessage)

	attempted, succeeded := 0, 0
	for _, r := range results {
		switch r.ToolCall.Status {
		case models.ToolCallStatusSuccess:
			attempted++
			succeeded++
		case models.ToolCallStatusError:
			attempted++
		}
	}
	if attempted > 0 && succeeded == 0 {
		return report, &VerificationError{Report: report}
	}
	return report, nil
}

// dataCheck verifies a successful result actually carries evidence: either
// rows were returned or the data object is non-empty. A zero row count with
// non-empty data (an aggregate, for instance) still counts as evidence.
func dataCheck(r models.ToolExecutionResult) models.EvidenceCheck {
	check := models.EvidenceCheck{
		Claim: fmt.Sprintf("tool %s returned data", r.ToolCall.ToolName),
	}
	hasRows := r.ToolResult.RowCount != nil && *r.ToolResult.RowCount > 0
	if hasRows || len(r.ToolResult.Data) > 0 {
		check.Supported = true
		check.EvidenceID = r.ToolResult.ID
		check.EvidenceType = models.EvidenceTypeToolResult
	} else {
		check.Reason = "tool returned an empty result"
	}
	return check
}

func summarize(results []models.ToolExecutionResult, userMessage string) string {
	failed := 0
	for _, r := range results {
		if !r.Succeeded() {
			failed++
		}
	}
	if len(results) == 0 {
		return "no tool executions were attempted for this question"
	}
	return fmt.Sprintf("%d of %d tool executions produced no usable evidence for %q",
		failed, len(results), userMessage)
}
