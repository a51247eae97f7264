// Package httpscore is the pose-scoring provider adapter. Both the local and
// remote scoring backends speak the same contract: a multipart image upload
// answered by a loosely-shaped JSON body that is normalized before use.
package httpscore

import (
	"context"
	"fmt"
	"time"

	"github.com/tiger/pose-feedback-pipeline/internal/normalize"
	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
	"github.com/tiger/pose-feedback-pipeline/providers/common/httpadapter"
)

// Config configures one scoring backend.
type Config struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

// Client posts pose images to a single scoring backend.
type Client struct {
	adapter *httpadapter.Adapter
}

// New builds a scoring client. A nil client is returned for an empty
// endpoint so the caller can treat the provider as unconfigured.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	adapter, err := httpadapter.New(httpadapter.Config{
		Endpoint: cfg.Endpoint,
		APIKey:   cfg.Token,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("score adapter: %w", err)
	}
	return &Client{adapter: adapter}, nil
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

// Score uploads the image and normalizes the response. A payload without a
// numeric score is a provider failure, not a zero score.
func (c *Client) Score(ctx context.Context, timeout time.Duration, image []byte, mimeType, poseID string) (normalize.ScoreResult, error) {
	if !c.Configured() {
		return normalize.ScoreResult{}, stageerr.New(stageerr.CodeConfigAbsent, "", "", fmt.Errorf("score endpoint unset"))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	fields := map[string]string{}
	if poseID != "" {
		fields["poseId"] = poseID
	}
	raw, err := c.adapter.PostMultipart(ctx, timeout, httpadapter.MultipartFile{
		Field:    "file",
		Filename: "pose.jpg",
		MimeType: mimeType,
		Data:     image,
	}, fields)
	if err != nil {
		return normalize.ScoreResult{}, err
	}
	result, err := normalize.Score(raw)
	if err != nil {
		return normalize.ScoreResult{}, stageerr.New(stageerr.CodeBadPayload, "", "", err)
	}
	return result, nil
}
