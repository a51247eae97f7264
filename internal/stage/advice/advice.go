// Package advice runs the advice-generation stage: an ordered fallback over
// the local and remote language models, terminating in a static template
// that never fails.
package advice

import (
	"context"
	"fmt"
	"strings"

	"github.com/tiger/pose-feedback-pipeline/internal/config"
	"github.com/tiger/pose-feedback-pipeline/internal/observability/telemetry"
	"github.com/tiger/pose-feedback-pipeline/internal/runtime/budget"
	"github.com/tiger/pose-feedback-pipeline/internal/runtime/fallback"
	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
	"github.com/tiger/pose-feedback-pipeline/providers/llm/chatcompat"
)

// StageTag identifies this stage in errors and telemetry.
const StageTag = "advice"

// Source values reported in the result envelope.
const (
	SourceLocalLLM     = "local-llm"
	SourceRemoteLLM    = "remote-llm"
	SourceTemplate     = "fallback-template"
	sourceScoreBackend = "score_backend"
)

// Input carries the scored context the prompt is built from.
type Input struct {
	Score          float64
	PoseID         string
	PoseName       string
	Detections     any
	ExistingAdvice []string
}

// Pack is the stage output: ordered advice plus a one-line summary. Advice
// and summary are never both empty.
type Pack struct {
	Advice  []string
	Summary string
	Source  string
}

// Stage holds the configured language models in fallback order.
type Stage struct {
	local      *chatcompat.Client
	remote     *chatcompat.Client
	localFirst bool
}

// New wires the LLM providers from configuration. The remote provider
// requires both the enabled flag and an endpoint.
func New(cfg config.LLMConfig, localFirst bool) (*Stage, error) {
	local, err := chatcompat.New(chatcompat.Config{
		Endpoint:    joinBase(cfg.LocalBase, cfg.LocalPath),
		Model:       cfg.LocalModel,
		Temperature: 0.3,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("local llm: %w", err)
	}
	var remote *chatcompat.Client
	if cfg.RemoteEnabled {
		remote, err = chatcompat.New(chatcompat.Config{
			Endpoint:    cfg.RemoteURL,
			APIKey:      cfg.RemoteKey,
			Model:       cfg.RemoteModel,
			Temperature: 0.2,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("remote llm: %w", err)
		}
	}
	return &Stage{local: local, remote: remote, localFirst: localFirst}, nil
}

// Run produces the advice pack. When the scorer already supplied advice it
// stays the primary list; the model is still consulted for the summary and
// the source records both contributors. This stage cannot fail: the static
// template is its guaranteed terminal fallback.
func (s *Stage) Run(ctx context.Context, alloc *budget.Allocator, in Input) Pack {
	pack := s.generate(ctx, alloc, in)

	if len(in.ExistingAdvice) > 0 {
		pack.Advice = in.ExistingAdvice
		if pack.Source != "" {
			pack.Source = sourceScoreBackend + "+" + pack.Source
		} else {
			pack.Source = sourceScoreBackend
		}
	}
	return pack
}

func (s *Stage) generate(ctx context.Context, alloc *budget.Allocator, in Input) Pack {
	messages := buildMessages(in)
	outcome, err := fallback.Run(ctx, StageTag, s.orderedAttempts(alloc, messages))
	if err != nil {
		telemetry.DefaultEmitter().EmitLog(
			"advice_degraded",
			"warn",
			err.Error(),
			map[string]string{"stage": StageTag},
			telemetry.Correlation{Stage: StageTag},
		)
		return templatePack(in.Score)
	}

	pack := Pack{
		Advice:  outcome.Value.Advice,
		Summary: outcome.Value.Summary,
		Source:  SourceLocalLLM,
	}
	if outcome.Provider == providerRemote {
		pack.Source = SourceRemoteLLM
	}
	return pack
}

const (
	providerLocal  = "local"
	providerRemote = "remote"
)

func (s *Stage) orderedAttempts(alloc *budget.Allocator, messages []chatcompat.Message) []fallback.Attempt[llmAdvice] {
	attempt := func(name string, client *chatcompat.Client) fallback.Attempt[llmAdvice] {
		return fallback.Attempt[llmAdvice]{
			Provider:   name,
			Configured: client.Configured(),
			Run: func(ctx context.Context) (llmAdvice, error) {
				timeout := alloc.AttemptTimeout(client.DefaultTimeout())
				if timeout <= 0 {
					return llmAdvice{}, stageerr.New(stageerr.CodeBudgetExhausted, StageTag, name, fmt.Errorf("advice budget spent"))
				}
				text, err := client.Complete(ctx, timeout, messages)
				if err != nil {
					return llmAdvice{}, err
				}
				parsed, err := parseCompletion(text)
				if err != nil {
					return llmAdvice{}, stageerr.New(stageerr.CodeBadPayload, StageTag, name, err)
				}
				return parsed, nil
			},
		}
	}
	local := attempt(providerLocal, s.local)
	remote := attempt(providerRemote, s.remote)
	if s.localFirst {
		return []fallback.Attempt[llmAdvice]{local, remote}
	}
	return []fallback.Attempt[llmAdvice]{remote, local}
}

func joinBase(base, path string) string {
	if base == "" {
		return ""
	}
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
