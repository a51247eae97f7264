package polly

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	awspolly "github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/tiger/pose-feedback-pipeline/internal/config"
	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
)

type fakeSynthClient struct {
	audio []byte
	err   error
	input *awspolly.SynthesizeSpeechInput
}

func (f *fakeSynthClient) SynthesizeSpeech(_ context.Context, params *awspolly.SynthesizeSpeechInput, _ ...func(*awspolly.Options)) (*awspolly.SynthesizeSpeechOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &awspolly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(strings.NewReader(string(f.audio)))}, nil
}

func TestNewDisabledIsUnconfigured(t *testing.T) {
	t.Parallel()

	adapter := New(config.PollyConfig{})
	if adapter.Configured() {
		t.Fatal("disabled config must yield an unconfigured adapter")
	}
	if adapter.DefaultTimeout() != 0 {
		t.Fatal("unconfigured adapter must report zero timeout")
	}
}

func TestSynthesizeEncodesAudio(t *testing.T) {
	t.Parallel()

	client := &fakeSynthClient{audio: []byte("mp3-bytes")}
	adapter := NewWithClient(config.PollyConfig{Enabled: true, VoiceID: "Joanna", Engine: "neural"}, client)

	audio, err := adapter.Synthesize(context.Background(), time.Second, "good hold")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if audio != base64.StdEncoding.EncodeToString([]byte("mp3-bytes")) {
		t.Fatalf("audio = %q", audio)
	}
	if client.input.Engine != pollytypes.EngineNeural {
		t.Fatalf("engine = %v, want neural", client.input.Engine)
	}
	if client.input.OutputFormat != pollytypes.OutputFormatMp3 {
		t.Fatalf("output format = %v", client.input.OutputFormat)
	}
	if client.input.VoiceId != pollytypes.VoiceId("Joanna") {
		t.Fatalf("voice = %v", client.input.VoiceId)
	}
	if client.input.Text == nil || *client.input.Text != "good hold" {
		t.Fatalf("text = %v", client.input.Text)
	}
}

func TestSynthesizeStandardEngineDefault(t *testing.T) {
	t.Parallel()

	client := &fakeSynthClient{audio: []byte("x")}
	adapter := NewWithClient(config.PollyConfig{Enabled: true}, client)
	if _, err := adapter.Synthesize(context.Background(), time.Second, "x"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if client.input.Engine != pollytypes.EngineStandard {
		t.Fatalf("engine = %v, want standard", client.input.Engine)
	}
}

func TestSynthesizeRejectsSpentBudget(t *testing.T) {
	t.Parallel()

	adapter := NewWithClient(config.PollyConfig{Enabled: true}, &fakeSynthClient{audio: []byte("x")})
	_, err := adapter.Synthesize(context.Background(), 0, "x")
	if stageerr.CodeOf(err) != stageerr.CodeBudgetExhausted {
		t.Fatalf("code = %s, want BUDGET_EXHAUSTED", stageerr.CodeOf(err))
	}
}

func TestSynthesizeEmptyAudioIsBadPayload(t *testing.T) {
	t.Parallel()

	adapter := NewWithClient(config.PollyConfig{Enabled: true}, &fakeSynthClient{audio: nil})
	_, err := adapter.Synthesize(context.Background(), time.Second, "x")
	if stageerr.CodeOf(err) != stageerr.CodeBadPayload {
		t.Fatalf("code = %s, want BAD_PAYLOAD", stageerr.CodeOf(err))
	}
}

type apiError struct{ code string }

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestSynthesizeAPIErrorCarriesCode(t *testing.T) {
	t.Parallel()

	adapter := NewWithClient(config.PollyConfig{Enabled: true}, &fakeSynthClient{err: &apiError{code: "ThrottlingException"}})
	_, err := adapter.Synthesize(context.Background(), time.Second, "x")
	if err == nil || !strings.Contains(err.Error(), "ThrottlingException") {
		t.Fatalf("err = %v, want throttling code", err)
	}
}

func TestSynthesizeGlobalDeadlineSurfaces(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	adapter := NewWithClient(config.PollyConfig{Enabled: true}, &fakeSynthClient{err: errors.New("canceled")})
	_, err := adapter.Synthesize(ctx, time.Second, "x")
	if stageerr.CodeOf(err) != stageerr.CodeDeadlineExceeded {
		t.Fatalf("code = %s, want DEADLINE_EXCEEDED", stageerr.CodeOf(err))
	}
}
