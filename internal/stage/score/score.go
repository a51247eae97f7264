// Package score runs the pose-scoring stage: an ordered fallback over the
// local and remote scoring backends. Total exhaustion here is fatal to the
// whole pipeline.
package score

import (
	"context"
	"fmt"

	"github.com/tiger/pose-feedback-pipeline/internal/config"
	"github.com/tiger/pose-feedback-pipeline/internal/normalize"
	"github.com/tiger/pose-feedback-pipeline/internal/runtime/budget"
	"github.com/tiger/pose-feedback-pipeline/internal/runtime/fallback"
	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
	"github.com/tiger/pose-feedback-pipeline/providers/score/httpscore"
)

// StageTag identifies this stage in errors and telemetry.
const StageTag = "score"

const (
	providerLocal  = "local"
	providerRemote = "remote"
)

// Input carries the request slice this stage needs.
type Input struct {
	Image    []byte
	MimeType string
	PoseID   string
}

// Stage holds the configured scoring providers in fallback order.
type Stage struct {
	local      *httpscore.Client
	remote     *httpscore.Client
	localFirst bool
}

// New wires the scoring providers from configuration. The remote provider
// requires both the enabled flag and an endpoint.
func New(cfg config.ScoreConfig, localFirst bool) (*Stage, error) {
	local, err := httpscore.New(httpscore.Config{
		Endpoint: cfg.LocalURL,
		Token:    cfg.LocalToken,
		Timeout:  cfg.LocalTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("local scorer: %w", err)
	}
	var remote *httpscore.Client
	if cfg.RemoteEnabled {
		remote, err = httpscore.New(httpscore.Config{
			Endpoint: cfg.RemoteURL,
			Token:    cfg.RemoteToken,
			Timeout:  cfg.RemoteTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("remote scorer: %w", err)
		}
	}
	return &Stage{local: local, remote: remote, localFirst: localFirst}, nil
}

// Run scores the image through the fallback chain. Each attempt's timeout is
// re-evaluated immediately before the call, since a preceding failed attempt
// consumes wall-clock time too.
func (s *Stage) Run(ctx context.Context, alloc *budget.Allocator, in Input) (normalize.ScoreResult, error) {
	attempts := s.orderedAttempts(alloc, in)
	outcome, err := fallback.Run(ctx, StageTag, attempts)
	if err != nil {
		if stageerr.CodeOf(err) == stageerr.CodeDeadlineExceeded {
			return normalize.ScoreResult{}, err
		}
		return normalize.ScoreResult{}, stageerr.New(stageerr.CodeScoreUnavailable, StageTag, "", err)
	}
	result := outcome.Value
	result.Provider = outcome.Provider
	return result, nil
}

func (s *Stage) orderedAttempts(alloc *budget.Allocator, in Input) []fallback.Attempt[normalize.ScoreResult] {
	attempt := func(name string, client *httpscore.Client) fallback.Attempt[normalize.ScoreResult] {
		return fallback.Attempt[normalize.ScoreResult]{
			Provider:   name,
			Configured: client.Configured(),
			Run: func(ctx context.Context) (normalize.ScoreResult, error) {
				timeout := alloc.ScoreAttemptTimeout(client.DefaultTimeout())
				if timeout <= 0 {
					return normalize.ScoreResult{}, stageerr.New(stageerr.CodeBudgetExhausted, StageTag, name, fmt.Errorf("score budget spent"))
				}
				return client.Score(ctx, timeout, in.Image, in.MimeType, in.PoseID)
			},
		}
	}
	local := attempt(providerLocal, s.local)
	remote := attempt(providerRemote, s.remote)
	if s.localFirst {
		return []fallback.Attempt[normalize.ScoreResult]{local, remote}
	}
	return []fallback.Attempt[normalize.ScoreResult]{remote, local}
}
