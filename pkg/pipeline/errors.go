package pipeline

import (
	"context"
	"errors"
	"net/http"

	"github.com/groundquery/groundquery/pkg/answer"
	"github.com/groundquery/groundquery/pkg/connector"
	"github.com/groundquery/groundquery/pkg/planner"
	"github.com/groundquery/groundquery/pkg/policy"
	"github.com/groundquery/groundquery/pkg/schema"
	"github.com/groundquery/groundquery/pkg/verifier"
)

// Stable machine codes for terminal pipeline failures.
const (
	CodePlannerError   = "PLANNER_ERROR"
	CodePolicyBlocked  = "POLICY_BLOCKED"
	CodeSQLSafety      = "SQL_SAFETY_ERROR"
	CodeToolExecution  = "TOOL_EXECUTION_ERROR"
	CodeVerification   = "VERIFICATION_ERROR"
	CodeSourceNotFound = "SOURCE_NOT_FOUND"
	CodeAnswerError    = "ANSWER_ERROR"
	CodeCancelled      = "CANCELLED"
	CodeInternal       = "INTERNAL_ERROR"
)

// Error is the terminal failure of a run: a stable code, a human message,
// and the stage that failed.
type Error struct {
	Code    string
	Message string
	Stage   string
	Cause   error
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus maps the code to the HTTP status the edge responds with when
// the failure occurs before any event has been written.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodePlannerError, CodeVerification, CodeAnswerError:
		return http.StatusUnprocessableEntity
	case CodePolicyBlocked, CodeSQLSafety:
		return http.StatusForbidden
	case CodeSourceNotFound:
		return http.StatusNotFound
	case CodeCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// Classify wraps a stage failure with its taxonomy code.
func Classify(err error, stage string) *Error {
	if err == nil {
		return nil
	}

	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeCancelled, Message: "cancelled", Stage: stage, Cause: err}
	}

	var plannerErr *planner.Error
	if errors.As(err, &plannerErr) {
		return &Error{Code: CodePlannerError, Message: plannerErr.Error(), Stage: stage, Cause: err}
	}

	var blocked *policy.BlockedError
	if errors.As(err, &blocked) {
		return &Error{Code: CodePolicyBlocked, Message: blocked.Error(), Stage: stage, Cause: err}
	}

	var safety *policy.SafetyError
	if errors.As(err, &safety) {
		return &Error{Code: CodeSQLSafety, Message: safety.Error(), Stage: stage, Cause: err}
	}

	var verification *verifier.VerificationError
	if errors.As(err, &verification) {
		return &Error{Code: CodeVerification, Message: verification.Error(), Stage: stage, Cause: err}
	}

	var citation *answer.CitationError
	if errors.As(err, &citation) {
		return &Error{Code: CodeAnswerError, Message: citation.Error(), Stage: stage, Cause: err}
	}

	var invalid *schema.InvalidError
	if errors.As(err, &invalid) {
		return &Error{Code: CodeAnswerError, Message: invalid.Error(), Stage: stage, Cause: err}
	}

	var notConfigured *connector.NotConfiguredError
	if errors.As(err, &notConfigured) {
		return &Error{Code: CodeSourceNotFound, Message: notConfigured.Error(), Stage: stage, Cause: err}
	}

	return &Error{Code: CodeInternal, Message: err.Error(), Stage: stage, Cause: err}
}
