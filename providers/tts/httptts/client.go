// Package httptts is the HTTP speech-synthesis provider adapter. The backend
// takes {text, voice, speed, format} and answers with base64 audio, possibly
// nested under "result".
package httptts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tiger/pose-feedback-pipeline/internal/config"
	"github.com/tiger/pose-feedback-pipeline/internal/normalize"
	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
	"github.com/tiger/pose-feedback-pipeline/providers/common/httpadapter"
)

// ProviderID identifies this adapter in result sources.
const ProviderID = "local-tts"

// Client posts synthesis requests to a single TTS backend.
type Client struct {
	adapter *httpadapter.Adapter
	cfg     config.TTSConfig
}

// New builds a TTS client; an empty base URL yields a nil (unconfigured)
// client.
func New(cfg config.TTSConfig) (*Client, error) {
	if cfg.Base == "" {
		return nil, nil
	}
	adapterCfg := httpadapter.Config{
		Endpoint: composeURL(cfg.Base, cfg.Path),
		Timeout:  cfg.Timeout,
	}
	if cfg.AuthMode == config.TTSAuthHeader {
		adapterCfg.APIKey = cfg.Token
	}
	adapter, err := httpadapter.New(adapterCfg)
	if err != nil {
		return nil, fmt.Errorf("tts adapter: %w", err)
	}
	return &Client{adapter: adapter, cfg: cfg}, nil
}

// Configured reports whether this provider can be attempted.
func (c *Client) Configured() bool {
	return c != nil && c.adapter != nil
}

// DefaultTimeout returns the backend's default per-attempt timeout.
func (c *Client) DefaultTimeout() time.Duration {
	if !c.Configured() {
		return 0
	}
	return c.adapter.DefaultTimeout()
}

// Synthesize returns base64 audio for the given text.
func (c *Client) Synthesize(ctx context.Context, timeout time.Duration, text string) (string, error) {
	if !c.Configured() {
		return "", stageerr.New(stageerr.CodeConfigAbsent, "", "", fmt.Errorf("tts base unset"))
	}
	payload := map[string]any{
		"text":   text,
		"voice":  c.cfg.Voice,
		"speed":  c.cfg.Speed,
		"format": c.cfg.Format,
	}
	if c.cfg.AuthMode == config.TTSAuthBody && c.cfg.Token != "" {
		payload["token"] = c.cfg.Token
	}
	raw, err := c.adapter.PostJSON(ctx, timeout, payload)
	if err != nil {
		return "", err
	}
	audio := normalize.ProbeString(raw, "audio_base64", "audioBase64", "audio")
	if audio == "" {
		return "", stageerr.New(stageerr.CodeBadPayload, "", "", fmt.Errorf("tts response has no audio"))
	}
	// Some backends answer with a data URI; only the payload is kept.
	if strings.HasPrefix(audio, "data:") {
		if idx := strings.IndexByte(audio, ','); idx >= 0 {
			audio = audio[idx+1:]
		}
	}
	return audio, nil
}

func composeURL(base, path string) string {
	left := strings.TrimRight(base, "/")
	if path == "" {
		return left
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return left + "/" + strings.TrimLeft(path, "/")
}
