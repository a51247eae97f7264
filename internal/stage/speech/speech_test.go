package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tiger/pose-feedback-pipeline/internal/runtime/budget"
)

type fakeSynth struct {
	configured bool
	audio      string
	err        error
	calls      int
	gotText    string
}

func (f *fakeSynth) Configured() bool              { return f.configured }
func (f *fakeSynth) DefaultTimeout() time.Duration { return 5 * time.Second }

func (f *fakeSynth) Synthesize(_ context.Context, _ time.Duration, text string) (string, error) {
	f.calls++
	f.gotText = text
	return f.audio, f.err
}

func newTestAllocator(t *testing.T) *budget.Allocator {
	t.Helper()
	alloc, err := budget.NewAllocator(28000, nil)
	if err != nil {
		t.Fatalf("NewAllocator: %v", err)
	}
	return alloc
}

func TestRunDisabledStageIsSkipped(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{configured: true, audio: "QUJD"}
	stage := NewWithProviders(false, map[string]Synthesizer{"local-tts": synth}, []string{"local-tts"})
	result := stage.Run(context.Background(), newTestAllocator(t), "good hold", []string{"Engage core"})
	if result.AudioBase64 != "" || synth.calls != 0 {
		t.Fatalf("disabled stage must not synthesize: result=%+v calls=%d", result, synth.calls)
	}
}

func TestRunFirstProviderWins(t *testing.T) {
	t.Parallel()

	local := &fakeSynth{configured: true, audio: "QUJD"}
	aws := &fakeSynth{configured: true, audio: "WFla"}
	stage := NewWithProviders(true, map[string]Synthesizer{"local-tts": local, "polly-tts": aws}, []string{"local-tts", "polly-tts"})

	result := stage.Run(context.Background(), newTestAllocator(t), "good hold", []string{"Engage core", "Relax shoulders"})
	if result.AudioBase64 != "QUJD" || result.Source != "local-tts" {
		t.Fatalf("result = %+v, want local-tts audio", result)
	}
	if aws.calls != 0 {
		t.Fatalf("polly attempted after local success")
	}
	if local.gotText != "good hold. Engage core; Relax shoulders" {
		t.Fatalf("spoken text = %q", local.gotText)
	}
}

func TestRunFallsBackToSecondProvider(t *testing.T) {
	t.Parallel()

	local := &fakeSynth{configured: true, err: errors.New("tts 503")}
	aws := &fakeSynth{configured: true, audio: "WFla"}
	stage := NewWithProviders(true, map[string]Synthesizer{"local-tts": local, "polly-tts": aws}, []string{"local-tts", "polly-tts"})

	result := stage.Run(context.Background(), newTestAllocator(t), "close", nil)
	if result.AudioBase64 != "WFla" || result.Source != "polly-tts" {
		t.Fatalf("result = %+v, want polly fallback", result)
	}
	if local.calls != 1 {
		t.Fatalf("local attempted %d times, want exactly 1", local.calls)
	}
}

func TestRunAllFailuresDegradeToEmpty(t *testing.T) {
	t.Parallel()

	local := &fakeSynth{configured: true, err: errors.New("tts 503")}
	aws := &fakeSynth{configured: true, err: errors.New("throttled")}
	stage := NewWithProviders(true, map[string]Synthesizer{"local-tts": local, "polly-tts": aws}, []string{"local-tts", "polly-tts"})

	result := stage.Run(context.Background(), newTestAllocator(t), "close", []string{"Breathe"})
	if result.AudioBase64 != "" || result.Source != "" {
		t.Fatalf("result = %+v, want empty degradation", result)
	}
}

func TestRunEmptyScriptSkipsSynthesis(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{configured: true, audio: "QUJD"}
	stage := NewWithProviders(true, map[string]Synthesizer{"local-tts": synth}, []string{"local-tts"})
	result := stage.Run(context.Background(), newTestAllocator(t), "   ", nil)
	if result.AudioBase64 != "" || synth.calls != 0 {
		t.Fatalf("empty script must not synthesize: calls=%d", synth.calls)
	}
}

func TestBuildText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		summary string
		advice  []string
		want    string
	}{
		{summary: "good hold", advice: []string{"a", "b"}, want: "good hold. a; b"},
		{summary: "", advice: []string{"a"}, want: "a"},
		{summary: "good hold", advice: nil, want: "good hold"},
		{summary: "", advice: nil, want: ""},
	}
	for _, tc := range cases {
		if got := BuildText(tc.summary, tc.advice); got != tc.want {
			t.Fatalf("BuildText(%q, %v) = %q, want %q", tc.summary, tc.advice, got, tc.want)
		}
	}
}
