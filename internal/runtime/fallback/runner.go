// Package fallback implements the ordered provider-attempt runner shared by
// the scoring and advice stages. Providers are tried strictly in the given
// order; the first success wins and the last tagged failure is carried.
package fallback

import (
	"context"
	"errors"

	"github.com/tiger/pose-feedback-pipeline/internal/observability/telemetry"
	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
)

// Attempt is one named provider attempt for a stage.
type Attempt[T any] struct {
	// Provider identifies the upstream implementation, e.g. "local" or "remote".
	Provider string
	// Configured gates the attempt. An unconfigured provider is skipped
	// without counting as a failure.
	Configured bool
	// Run executes the attempt. It must observe ctx at every network boundary.
	Run func(ctx context.Context) (T, error)
}

// Outcome reports how a fallback chain resolved.
type Outcome[T any] struct {
	Value    T
	Provider string
}

// Run tries attempts in order and returns the first success. On total
// exhaustion it returns the last tagged failure, or a synthetic
// all-providers-failed error when nothing was attempted. There are no retries
// within a single attempt.
func Run[T any](ctx context.Context, stage string, attempts []Attempt[T]) (Outcome[T], error) {
	var lastErr error
	attempted := 0

	for _, attempt := range attempts {
		if !attempt.Configured {
			telemetry.DefaultEmitter().EmitLog(
				"provider_skipped",
				"info",
				"provider skipped: not configured",
				map[string]string{"stage": stage, "provider": attempt.Provider},
				telemetry.Correlation{Stage: stage, Provider: attempt.Provider},
			)
			continue
		}
		if err := ctx.Err(); err != nil {
			lastErr = stageerr.New(stageerr.CodeDeadlineExceeded, stage, attempt.Provider, err)
			break
		}

		attempted++
		value, err := attempt.Run(ctx)
		if err == nil {
			telemetry.DefaultEmitter().EmitMetric(
				telemetry.MetricProviderAttempts,
				float64(attempted),
				"attempts",
				map[string]string{"stage": stage, "provider": attempt.Provider, "outcome": "success"},
				telemetry.Correlation{Stage: stage, Provider: attempt.Provider},
			)
			return Outcome[T]{Value: value, Provider: attempt.Provider}, nil
		}

		lastErr = tag(err, stage, attempt.Provider)
		telemetry.DefaultEmitter().EmitLog(
			"provider_attempt_failed",
			"warn",
			lastErr.Error(),
			map[string]string{"stage": stage, "provider": attempt.Provider},
			telemetry.Correlation{Stage: stage, Provider: attempt.Provider},
		)
	}

	var zero Outcome[T]
	if lastErr == nil {
		return zero, stageerr.New(stageerr.CodeAllProvidersFailed, stage, "", errors.New("no provider configured"))
	}
	return zero, lastErr
}

// tag wraps a plain error with provider and stage identity, preserving an
// existing taxonomy code.
func tag(err error, stage, provider string) error {
	var se *stageerr.Error
	if errors.As(err, &se) {
		if se.Stage == "" {
			se.Stage = stage
		}
		if se.Provider == "" {
			se.Provider = provider
		}
		return err
	}
	return stageerr.New(stageerr.CodeProviderFailure, stage, provider, err)
}
