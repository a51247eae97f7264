// Package chatcompat is the chat-completion LLM provider adapter. Both the
// local and remote language models expose the OpenAI-compatible shape:
// {model, messages, temperature, max_tokens} in, choices[0].message.content
// out.
package chatcompat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
	"github.com/tiger/pose-feedback-pipeline/providers/common/httpadapter"
)

// maxCompletionTokens caps advice generation; the expected output is a small
// JSON object.
const maxCompletionTokens = 220

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config configures one chat-completion backend.
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client posts chat completions to a single backend.
type Client struct {
	adapter     *httpadapter.Adapter
	model       string
	temperature float64
}

// New builds an LLM client; an empty endpoint yields a nil (unconfigured)
// client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	adapter, err := httpadapter.New(httpadapter.Config{
		Endpoint: cfg.Endpoint,
		APIKey:   cfg.APIKey,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("llm adapter: %w", err)
	}
	return &Client{adapter: adapter, model: cfg.Model, temperature: cfg.Temperature}, nil
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

// Complete issues one chat completion and returns the assistant content.
func (c *Client) Complete(ctx context.Context, timeout time.Duration, messages []Message) (string, error) {
	if !c.Configured() {
		return "", stageerr.New(stageerr.CodeConfigAbsent, "", "", fmt.Errorf("llm endpoint unset"))
	}
	raw, err := c.adapter.PostJSON(ctx, timeout, map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
		"max_tokens":  maxCompletionTokens,
	})
	if err != nil {
		return "", err
	}
	content := extractContent(raw)
	if content == "" {
		return "", stageerr.New(stageerr.CodeBadPayload, "", "", fmt.Errorf("completion has no message content"))
	}
	return content, nil
}

func extractContent(raw map[string]any) string {
	choices, ok := raw["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	first, ok := choices[0].(map[string]any)
	if !ok {
		return ""
	}
	message, ok := first["message"].(map[string]any)
	if !ok {
		return ""
	}
	content, _ := message["content"].(string)
	return strings.TrimSpace(content)
}
