// Package httpadapter is the generic JSON-over-HTTP client shared by the
// provider adapters. It owns auth-header wiring, context deadlines, and the
// normalization of transport failures into the stage error taxonomy.
package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
)

// maxResponseBytes bounds upstream bodies so a misbehaving provider cannot
// exhaust memory.
const maxResponseBytes = 8 << 20

// Config configures one provider endpoint.
type Config struct {
	Endpoint     string
	APIKey       string
	APIKeyHeader string
	APIKeyPrefix string
	Timeout      time.Duration
}

// Adapter posts payloads to a single provider endpoint. The underlying
// http.Client is safe to share across concurrent requests.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New constructs an adapter; the shared client carries no global timeout
// because every call receives an explicit context deadline.
func New(cfg Config) (*Adapter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "Authorization"
	}
	if cfg.APIKeyPrefix == "" && cfg.APIKeyHeader == "Authorization" {
		cfg.APIKeyPrefix = "Bearer "
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Adapter{cfg: cfg, client: &http.Client{}}, nil
}

// Endpoint returns the configured endpoint.
func (a *Adapter) Endpoint() string {
	return a.cfg.Endpoint
}

// DefaultTimeout returns the provider's default per-attempt timeout.
func (a *Adapter) DefaultTimeout() time.Duration {
	return a.cfg.Timeout
}

// PostJSON sends a JSON body and decodes the JSON response object.
func (a *Adapter) PostJSON(ctx context.Context, timeout time.Duration, body any) (map[string]any, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return a.post(ctx, timeout, "application/json", bytes.NewReader(encoded))
}

// MultipartFile describes one file part of a multipart upload.
type MultipartFile struct {
	Field    string
	Filename string
	MimeType string
	Data     []byte
}

// PostMultipart sends a multipart form with one file part plus text fields.
func (a *Adapter) PostMultipart(ctx context.Context, timeout time.Duration, file MultipartFile, fields map[string]string) (map[string]any, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Filename)}
	header["Content-Type"] = []string{file.MimeType}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("write form part: %w", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}
	return a.post(ctx, timeout, writer.FormDataContentType(), &buf)
}

func (a *Adapter) post(ctx context.Context, timeout time.Duration, contentType string, body io.Reader) (map[string]any, error) {
	if timeout <= 0 {
		return nil, stageerr.New(stageerr.CodeBudgetExhausted, "", "", fmt.Errorf("no time left for %s", a.cfg.Endpoint))
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.cfg.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if a.cfg.APIKey != "" {
		req.Header.Set(a.cfg.APIKeyHeader, a.cfg.APIKeyPrefix+a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, normalizeNetworkError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, stageerr.New(stageerr.CodeBadPayload, "", "", fmt.Errorf("decode response: %w", err))
	}
	return decoded, nil
}

// normalizeNetworkError separates a per-attempt timeout, which the fallback
// chain absorbs, from the global deadline firing, which must surface as such.
func normalizeNetworkError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return stageerr.New(stageerr.CodeDeadlineExceeded, "", "", parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("provider timeout: %w", err)
	}
	return fmt.Errorf("provider transport: %w", err)
}
