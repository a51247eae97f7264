// Package stageerr defines the normalized error taxonomy shared by all
// pipeline stages. Provider skips, provider failures, and exhausted budgets
// are distinct values so callers can tell degraded paths apart.
package stageerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a stage error for fallback decisions and gateway mapping.
type Code string

const (
	// CodeConfigAbsent marks a provider skipped for missing configuration.
	CodeConfigAbsent Code = "CONFIG_ABSENT"
	// CodeProviderFailure marks a network, status, or payload failure from one provider.
	CodeProviderFailure Code = "PROVIDER_FAILURE"
	// CodeBadPayload marks an upstream response that normalized to nothing usable.
	CodeBadPayload Code = "BAD_PAYLOAD"
	// CodeBudgetExhausted marks a stage whose remaining budget hit zero before an attempt.
	CodeBudgetExhausted Code = "BUDGET_EXHAUSTED"
	// CodeAllProvidersFailed is the synthetic result when no provider was attempted.
	CodeAllProvidersFailed Code = "ALL_PROVIDERS_FAILED"
	// CodeScoreUnavailable is the only stage-fatal code: total score-stage exhaustion.
	CodeScoreUnavailable Code = "SCORE_UNAVAILABLE"
	// CodeDeadlineExceeded marks the global deadline firing with work in flight.
	CodeDeadlineExceeded Code = "DEADLINE_EXCEEDED"
)

// Error tags a failure with its originating stage and provider.
type Error struct {
	Code     Code
	Stage    string
	Provider string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	switch {
	case e.Provider != "":
		return fmt.Sprintf("%s (stage=%s provider=%s)", msg, e.Stage, e.Provider)
	case e.Stage != "":
		return fmt.Sprintf("%s (stage=%s)", msg, e.Stage)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a tagged stage error.
func New(code Code, stage, provider string, err error) *Error {
	return &Error{Code: code, Stage: stage, Provider: provider, Err: err}
}

// CodeOf extracts the taxonomy code, defaulting unknown errors to provider failure.
func CodeOf(err error) Code {
	var se *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.Code
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDeadlineExceeded
	default:
		return CodeProviderFailure
	}
}

// StageOf extracts the stage tag when present.
func StageOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// IsSkip reports whether the error means "provider not configured", which
// advances fallback without counting as a failure.
func IsSkip(err error) bool {
	return CodeOf(err) == CodeConfigAbsent
}

// HTTPStatus maps taxonomy codes onto gateway response statuses.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case "":
		return http.StatusOK
	case CodeDeadlineExceeded, CodeBudgetExhausted:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
