// Package speech runs the optional text-to-speech stage. Speech is strictly
// best-effort: any failure degrades to absent audio and never touches the
// rest of the result.
package speech

import (
	"context"
	"strings"
	"time"

	"github.com/tiger/pose-feedback-pipeline/internal/config"
	"github.com/tiger/pose-feedback-pipeline/internal/observability/telemetry"
	"github.com/tiger/pose-feedback-pipeline/internal/runtime/budget"
	"github.com/tiger/pose-feedback-pipeline/internal/runtime/fallback"
	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
	"github.com/tiger/pose-feedback-pipeline/providers/tts/httptts"
	"github.com/tiger/pose-feedback-pipeline/providers/tts/polly"
)

// StageTag identifies this stage in errors and telemetry.
const StageTag = "speech"

// Synthesizer is one speech provider.
type Synthesizer interface {
	Configured() bool
	DefaultTimeout() time.Duration
	Synthesize(ctx context.Context, timeout time.Duration, text string) (string, error)
}

// Result carries synthesized audio; absence is a valid terminal state.
type Result struct {
	AudioBase64 string
	Source      string
}

type provider struct {
	name   string
	synth  Synthesizer
	config bool
}

// Stage holds the configured speech providers in order.
type Stage struct {
	enabled   bool
	providers []provider
}

// New wires the speech providers: the HTTP TTS service first, Amazon Polly
// as the alternative.
func New(ttsCfg config.TTSConfig, pollyCfg config.PollyConfig) (*Stage, error) {
	stage := &Stage{enabled: ttsCfg.Enabled}
	if !ttsCfg.Enabled {
		return stage, nil
	}

	local, err := httptts.New(ttsCfg)
	if err != nil {
		return nil, err
	}
	stage.providers = append(stage.providers, provider{name: httptts.ProviderID, synth: local, config: local.Configured()})

	aws := polly.New(pollyCfg)
	stage.providers = append(stage.providers, provider{name: polly.ProviderID, synth: aws, config: aws.Configured()})
	return stage, nil
}

// NewWithProviders injects explicit providers; used by tests.
func NewWithProviders(enabled bool, named map[string]Synthesizer, order []string) *Stage {
	stage := &Stage{enabled: enabled}
	for _, name := range order {
		synth := named[name]
		stage.providers = append(stage.providers, provider{name: name, synth: synth, config: synth != nil && synth.Configured()})
	}
	return stage
}

// Enabled reports whether the stage runs at all. When disabled it is
// skipped, not reported as failed.
func (s *Stage) Enabled() bool {
	return s.enabled
}

// Run synthesizes the spoken feedback. All failures degrade silently to an
// empty result.
func (s *Stage) Run(ctx context.Context, alloc *budget.Allocator, summary string, adviceList []string) Result {
	if !s.enabled {
		return Result{}
	}
	text := BuildText(summary, adviceList)
	if text == "" {
		return Result{}
	}

	attempts := make([]fallback.Attempt[Result], 0, len(s.providers))
	for _, p := range s.providers {
		p := p
		attempts = append(attempts, fallback.Attempt[Result]{
			Provider:   p.name,
			Configured: p.config,
			Run: func(ctx context.Context) (Result, error) {
				timeout := alloc.AttemptTimeout(p.synth.DefaultTimeout())
				if timeout <= 0 {
					return Result{}, stageerr.New(stageerr.CodeBudgetExhausted, StageTag, p.name, context.DeadlineExceeded)
				}
				audio, err := p.synth.Synthesize(ctx, timeout, text)
				if err != nil {
					return Result{}, err
				}
				return Result{AudioBase64: audio, Source: p.name}, nil
			},
		})
	}

	outcome, err := fallback.Run(ctx, StageTag, attempts)
	if err != nil {
		telemetry.DefaultEmitter().EmitLog(
			"speech_degraded",
			"info",
			err.Error(),
			map[string]string{"stage": StageTag},
			telemetry.Correlation{Stage: StageTag},
		)
		return Result{}
	}
	return outcome.Value
}

// BuildText joins the summary and advice items into the spoken script.
func BuildText(summary string, adviceList []string) string {
	parts := make([]string, 0, 2)
	if strings.TrimSpace(summary) != "" {
		parts = append(parts, strings.TrimSpace(summary))
	}
	if len(adviceList) > 0 {
		parts = append(parts, strings.Join(adviceList, "; "))
	}
	return strings.Join(parts, ". ")
}
