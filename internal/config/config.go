// Package config loads the immutable process configuration consumed by the
// feedback pipeline. The configuration is built once at startup and passed by
// reference; stage logic never reads the environment directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures every recognized option for the pipeline and its providers.
type Config struct {
	ListenAddr string

	// LocalFirst selects local-before-remote ordering for scoring and advice
	// fallback chains uniformly.
	LocalFirst       bool
	GlobalDeadlineMS int64
	DefaultPoseID    string

	Score  ScoreConfig
	LLM    LLMConfig
	TTS    TTSConfig
	Polly  PollyConfig
	Bucket BucketConfig
}

// ScoreConfig configures the local and remote pose scorers.
type ScoreConfig struct {
	LocalURL      string
	LocalToken    string
	LocalTimeout  time.Duration
	RemoteEnabled bool
	RemoteURL     string
	RemoteToken   string
	RemoteTimeout time.Duration
}

// LLMConfig configures the local and remote chat-completion providers.
type LLMConfig struct {
	LocalBase     string
	LocalPath     string
	LocalModel    string
	RemoteEnabled bool
	RemoteURL     string
	RemoteKey     string
	RemoteModel   string
	Timeout       time.Duration
}

// TTSAuthMode selects where the TTS token travels.
type TTSAuthMode string

const (
	TTSAuthHeader TTSAuthMode = "header"
	TTSAuthBody   TTSAuthMode = "body"
)

// TTSConfig configures the HTTP speech synthesis provider.
type TTSConfig struct {
	Enabled  bool
	Base     string
	Path     string
	Token    string
	AuthMode TTSAuthMode
	Voice    string
	Speed    float64
	Format   string
	Timeout  time.Duration
}

// PollyConfig configures the Amazon Polly speech provider.
type PollyConfig struct {
	Enabled bool
	Region  string
	VoiceID string
	Engine  string
	Timeout time.Duration
}

// BucketConfig configures skeleton-overlay object storage. An empty bucket
// means storage is not configured, which is an expected state.
type BucketConfig struct {
	Bucket string
	Region string
	Prefix string
}

// Load reads the full configuration from the process environment.
func Load() *Config {
	return &Config{
		ListenAddr:       envString("LISTEN_ADDR", ":8080"),
		LocalFirst:       envBool("LOCAL_FIRST", true),
		GlobalDeadlineMS: envInt64("GLOBAL_DEADLINE_MS", 28000),
		DefaultPoseID:    os.Getenv("DEFAULT_POSE_ID"),
		Score: ScoreConfig{
			LocalURL:      os.Getenv("SCORE_URL"),
			LocalToken:    ResolveEnvValue("SCORE_TOKEN", "SCORE_TOKEN_REF", ""),
			LocalTimeout:  envDurationMS("SCORE_TIMEOUT_MS", 10*time.Second),
			RemoteEnabled: envBool("REMOTE_MODEL_ENABLED", false),
			RemoteURL:     os.Getenv("REMOTE_MODEL_URL"),
			RemoteToken:   ResolveEnvValue("REMOTE_MODEL_TOKEN", "REMOTE_MODEL_TOKEN_REF", ""),
			RemoteTimeout: envDurationMS("REMOTE_MODEL_TIMEOUT_MS", 10*time.Second),
		},
		LLM: LLMConfig{
			LocalBase:     envString("LLM_LOCAL_BASE", os.Getenv("LOCAL_LLM_BASE")),
			LocalPath:     envString("LOCAL_LLM_PATH", "/v1/chat/completions"),
			LocalModel:    envString("LOCAL_LLM_MODEL", "qwen"),
			RemoteEnabled: envBool("REMOTE_LLM_ENABLED", os.Getenv("REMOTE_LLM_URL") != ""),
			RemoteURL:     os.Getenv("REMOTE_LLM_URL"),
			RemoteKey:     ResolveEnvValue("REMOTE_LLM_KEY", "REMOTE_LLM_KEY_REF", ""),
			RemoteModel:   envString("REMOTE_LLM_MODEL", "hunyuan-t1"),
			Timeout:       envDurationMS("LLM_TIMEOUT_MS", 12*time.Second),
		},
		TTS: TTSConfig{
			Enabled:  envBool("ENABLE_TTS", true),
			Base:     os.Getenv("TTS_BASE"),
			Path:     envString("TTS_HTTP_PATH", "/v1/tts"),
			Token:    ResolveEnvValue("TTS_TOKEN", "TTS_TOKEN_REF", ""),
			AuthMode: ttsAuthMode(os.Getenv("TTS_HTTP_AUTH_MODE")),
			Voice:    envString("VOICE", "default"),
			Speed:    envFloat("SPEED", 0.9),
			Format:   envString("RETURN_AUDIO_FORMAT", "mp3"),
			Timeout:  envDurationMS("TTS_TIMEOUT_MS", 8*time.Second),
		},
		Polly: PollyConfig{
			Enabled: envBool("TTS_POLLY_ENABLED", false),
			Region:  envString("TTS_POLLY_REGION", envString("AWS_REGION", "us-east-1")),
			VoiceID: envString("TTS_POLLY_VOICE", "Joanna"),
			Engine:  envString("TTS_POLLY_ENGINE", "neural"),
			Timeout: envDurationMS("TTS_POLLY_TIMEOUT_MS", 8*time.Second),
		},
		Bucket: BucketConfig{
			Bucket: os.Getenv("SKELETON_BUCKET"),
			Region: envString("SKELETON_BUCKET_REGION", envString("AWS_REGION", "us-east-1")),
			Prefix: envString("SKELETON_BUCKET_PREFIX", "skeletons"),
		},
	}
}

// Summary renders the effective configuration for startup logging. Secret
// material is redacted, never printed.
func (c *Config) Summary() string {
	return fmt.Sprintf(
		"listen=%s local_first=%t global_deadline_ms=%d score_local=%s score_local_token=%s score_remote_enabled=%t score_remote=%s score_remote_token=%s llm_local=%s llm_remote_enabled=%t llm_remote=%s llm_remote_key=%s tts_enabled=%t tts_base=%s tts_token=%s polly_enabled=%t bucket=%s",
		c.ListenAddr,
		c.LocalFirst,
		c.GlobalDeadlineMS,
		c.Score.LocalURL,
		RedactSecret(c.Score.LocalToken),
		c.Score.RemoteEnabled,
		c.Score.RemoteURL,
		RedactSecret(c.Score.RemoteToken),
		c.LLM.LocalBase,
		c.LLM.RemoteEnabled,
		c.LLM.RemoteURL,
		RedactSecret(c.LLM.RemoteKey),
		c.TTS.Enabled,
		c.TTS.Base,
		RedactSecret(c.TTS.Token),
		c.Polly.Enabled,
		c.Bucket.Bucket,
	)
}

func ttsAuthMode(raw string) TTSAuthMode {
	if strings.EqualFold(strings.TrimSpace(raw), string(TTSAuthHeader)) {
		return TTSAuthHeader
	}
	return TTSAuthBody
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func envInt64(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(os.Getenv(key)), 10, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envDurationMS(key string, fallback time.Duration) time.Duration {
	v, err := strconv.ParseInt(strings.TrimSpace(os.Getenv(key)), 10, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Millisecond
}
