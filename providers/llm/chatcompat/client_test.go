package chatcompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
)

func TestCompleteSendsCompletionRequest(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["model"] != "qwen" || body["temperature"] != 0.3 || body["max_tokens"] != float64(220) {
			t.Errorf("request = %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "  hello  "}}},
		})
	}))
	defer server.Close()

	client, err := New(Config{Endpoint: server.URL, Model: "qwen", Temperature: 0.3, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	content, err := client.Complete(context.Background(), time.Second, []Message{
		{Role: "system", Content: "coach"},
		{Role: "user", Content: "score 70"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if content != "hello" {
		t.Fatalf("content = %q, want trimmed", content)
	}
}

func TestCompleteEmptyChoicesIsBadPayload(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client, err := New(Config{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.Complete(context.Background(), time.Second, nil)
	if stageerr.CodeOf(err) != stageerr.CodeBadPayload {
		t.Fatalf("code = %s, want BAD_PAYLOAD", stageerr.CodeOf(err))
	}
}

func TestUnconfiguredClient(t *testing.T) {
	t.Parallel()

	client, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if client.Configured() {
		t.Fatal("empty endpoint must yield an unconfigured client")
	}
	_, err = client.Complete(context.Background(), time.Second, nil)
	if !stageerr.IsSkip(err) {
		t.Fatalf("err = %v, want config-absent skip", err)
	}
}
