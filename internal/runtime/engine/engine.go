// Package engine composes the feedback pipeline: score, skeleton, advice,
// and speech run strictly in sequence under one shared wall-clock deadline.
// Score failure is the only fatal outcome; every later stage degrades in
// place and never re-enters an earlier one.
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tiger/pose-feedback-pipeline/api/feedback"
	"github.com/tiger/pose-feedback-pipeline/internal/config"
	"github.com/tiger/pose-feedback-pipeline/internal/observability/telemetry"
	"github.com/tiger/pose-feedback-pipeline/internal/runtime/budget"
	"github.com/tiger/pose-feedback-pipeline/internal/stage/advice"
	"github.com/tiger/pose-feedback-pipeline/internal/stage/score"
	"github.com/tiger/pose-feedback-pipeline/internal/stage/skeleton"
	"github.com/tiger/pose-feedback-pipeline/internal/stage/speech"
	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
)

// Engine drives one orchestration run per request. It is safe for concurrent
// use: all shared state is read-only configuration and pooled HTTP clients.
type Engine struct {
	cfg      *config.Config
	score    *score.Stage
	skeleton *skeleton.Stage
	advice   *advice.Stage
	speech   *speech.Stage
	now      func() time.Time
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithClock injects a deterministic clock; used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSkeletonStage replaces the skeleton stage collaborators.
func WithSkeletonStage(stage *skeleton.Stage) Option {
	return func(e *Engine) { e.skeleton = stage }
}

// WithSpeechStage replaces the speech stage providers.
func WithSpeechStage(stage *speech.Stage) Option {
	return func(e *Engine) { e.speech = stage }
}

// New wires the four stages from configuration. The store may be nil,
// meaning skeleton overlays are always inlined.
func New(cfg *config.Config, store skeleton.Store, opts ...Option) (*Engine, error) {
	scoreStage, err := score.New(cfg.Score, cfg.LocalFirst)
	if err != nil {
		return nil, fmt.Errorf("score stage: %w", err)
	}
	adviceStage, err := advice.New(cfg.LLM, cfg.LocalFirst)
	if err != nil {
		return nil, fmt.Errorf("advice stage: %w", err)
	}
	speechStage, err := speech.New(cfg.TTS, cfg.Polly)
	if err != nil {
		return nil, fmt.Errorf("speech stage: %w", err)
	}

	engine := &Engine{
		cfg:      cfg,
		score:    scoreStage,
		skeleton: skeleton.New(nil, store),
		advice:   adviceStage,
		speech:   speechStage,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Run executes one orchestration run. The returned error is non-nil only for
// the two fatal outcomes: total score-provider exhaustion and the global
// deadline firing.
func (e *Engine) Run(ctx context.Context, req feedback.Request) (feedback.Result, error) {
	deadlineMS := req.GlobalDeadlineMS
	if deadlineMS <= 0 {
		deadlineMS = e.cfg.GlobalDeadlineMS
	}
	alloc, err := budget.NewAllocator(deadlineMS, e.now)
	if err != nil {
		return feedback.Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(deadlineMS)*time.Millisecond)
	defer cancel()

	poseID := req.PoseID
	if poseID == "" {
		poseID = e.cfg.DefaultPoseID
	}

	// Score: fatal on total exhaustion; nothing later runs.
	scored, err := e.score.Run(runCtx, alloc, score.Input{
		Image:    req.Image,
		MimeType: req.MimeType,
		PoseID:   poseID,
	})
	if err != nil {
		e.emitStage(req.RequestID, score.StageTag, alloc, "failed")
		return feedback.Result{}, err
	}
	e.emitStage(req.RequestID, score.StageTag, alloc, "ok")

	numericScore := roundScore(scored.Score)
	result := feedback.Result{
		OK:          true,
		Score:       numericScore,
		SkeletonURL: scored.SkeletonURL,
		Sources:     feedback.Sources{Score: scored.Provider},
	}

	// Skeleton: only when the scorer gave no URL and keypoints exist.
	if result.SkeletonURL == "" {
		overlay := e.skeleton.Run(runCtx, req.Image, req.MimeType, scored.Keypoints)
		result.SkeletonURL = overlay.URL
		result.SkeletonInline = overlay.Inline
		e.emitStage(req.RequestID, skeleton.StageTag, alloc, "ok")
	}

	// Advice: cannot fail; the template is its terminal fallback.
	pack := e.advice.Run(runCtx, alloc, advice.Input{
		Score:          numericScore,
		PoseID:         firstNonEmpty(scored.PoseID, poseID),
		PoseName:       scored.PoseName,
		Detections:     scored.Detections,
		ExistingAdvice: scored.AdviceHint,
	})
	result.AdviceList = pack.Advice
	result.Advice = feedback.JoinAdvice(pack.Advice)
	result.Summary = pack.Summary
	result.Sources.Text = pack.Source
	e.emitStage(req.RequestID, advice.StageTag, alloc, "ok")

	// Speech: best-effort; absence of audio is a valid terminal state.
	if e.speech.Enabled() {
		spoken := e.speech.Run(runCtx, alloc, pack.Summary, pack.Advice)
		result.AudioBase64 = spoken.AudioBase64
		result.Sources.TTS = spoken.Source
		e.emitStage(req.RequestID, speech.StageTag, alloc, "ok")
	}

	result.Timing = feedback.Timing{TotalMS: alloc.ElapsedMS()}
	return result, nil
}

func (e *Engine) emitStage(requestID, stage string, alloc *budget.Allocator, outcome string) {
	telemetry.DefaultEmitter().EmitMetric(
		telemetry.MetricStageLatencyMS,
		float64(alloc.ElapsedMS()),
		"ms",
		map[string]string{"stage": stage, "outcome": outcome},
		telemetry.Correlation{RequestID: requestID, Stage: stage},
	)
}

// roundScore keeps one decimal, matching what the frontends display.
func roundScore(score float64) float64 {
	return math.Round(score*10) / 10
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ErrorEnvelope renders a fatal run error as the wire-stable non-ok body.
func ErrorEnvelope(err error) feedback.ErrorBody {
	code := stageerr.CodeOf(err)
	if code == "" {
		code = stageerr.CodeScoreUnavailable
	}
	detail := ""
	if err != nil {
		detail = shortDetail(err)
	}
	return feedback.ErrorBody{OK: false, Error: string(code), Detail: detail}
}

// shortDetail keeps the stage tag but never leaks upstream bodies or stack
// traces into the caller-facing message.
func shortDetail(err error) string {
	stage := stageerr.StageOf(err)
	if stage == "" {
		return "pipeline failed"
	}
	return fmt.Sprintf("pipeline failed (%s)", stage)
}
