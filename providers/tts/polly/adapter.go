// Package polly adapts Amazon Polly as an alternative speech provider.
package polly

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/tiger/pose-feedback-pipeline/internal/config"
	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
)

// ProviderID identifies this adapter in result sources.
const ProviderID = "polly-tts"

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Adapter synthesizes speech through Amazon Polly. The AWS client is lazily
// resolved and reused across requests.
type Adapter struct {
	mu     sync.Mutex
	client synthClient
	cfg    config.PollyConfig
}

// New builds a Polly adapter; a disabled configuration yields a nil
// (unconfigured) adapter.
func New(cfg config.PollyConfig) *Adapter {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = "Joanna"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	return &Adapter{cfg: cfg}
}

// NewWithClient injects a synthesis client; used by tests.
func NewWithClient(cfg config.PollyConfig, client synthClient) *Adapter {
	adapter := New(cfg)
	if adapter != nil {
		adapter.client = client
	}
	return adapter
}

// Configured reports whether this provider can be attempted.
func (a *Adapter) Configured() bool {
	return a != nil
}

// DefaultTimeout returns the provider's default per-attempt timeout.
func (a *Adapter) DefaultTimeout() time.Duration {
	if a == nil {
		return 0
	}
	return a.cfg.Timeout
}

// Synthesize returns base64 MP3 audio for the given text.
func (a *Adapter) Synthesize(ctx context.Context, timeout time.Duration, text string) (string, error) {
	if a == nil {
		return "", stageerr.New(stageerr.CodeConfigAbsent, "", "", fmt.Errorf("polly disabled"))
	}
	if timeout <= 0 {
		return "", stageerr.New(stageerr.CodeBudgetExhausted, "", "", fmt.Errorf("no time left for polly"))
	}
	client, err := a.resolveClient(ctx)
	if err != nil {
		return "", fmt.Errorf("polly client: %w", err)
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(a.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := client.SynthesizeSpeech(callCtx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(a.cfg.VoiceID),
	})
	if err != nil {
		return "", normalizePollyError(ctx, err)
	}
	if output == nil || output.AudioStream == nil {
		return "", stageerr.New(stageerr.CodeBadPayload, "", "", fmt.Errorf("polly returned no audio stream"))
	}
	defer output.AudioStream.Close()

	audio, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return "", fmt.Errorf("read polly audio: %w", err)
	}
	if len(audio) == 0 {
		return "", stageerr.New(stageerr.CodeBadPayload, "", "", fmt.Errorf("polly returned empty audio"))
	}
	return base64.StdEncoding.EncodeToString(audio), nil
}

func normalizePollyError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return stageerr.New(stageerr.CodeDeadlineExceeded, "", "", parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("polly timeout: %w", err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("polly %s: %w", apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("polly transport: %w", err)
}

func (a *Adapter) resolveClient(ctx context.Context) (synthClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	a.client = polly.NewFromConfig(awsCfg)
	return a.client, nil
}
