package score

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tiger/pose-feedback-pipeline/internal/config"
	"github.com/tiger/pose-feedback-pipeline/internal/runtime/budget"
	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
)

func scoreHandler(t *testing.T, payload map[string]any, calls *int) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, _ *http.Request) {
		if calls != nil {
			*calls++
		}
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func newTestAllocator(t *testing.T) *budget.Allocator {
	t.Helper()
	alloc, err := budget.NewAllocator(28000, nil)
	if err != nil {
		t.Fatalf("NewAllocator: %v", err)
	}
	return alloc
}

func TestRunLocalScorerWins(t *testing.T) {
	t.Parallel()

	local := httptest.NewServer(scoreHandler(t, map[string]any{"result": map[string]any{"score": 72.5}}, nil))
	defer local.Close()

	stage, err := New(config.ScoreConfig{LocalURL: local.URL, LocalTimeout: 2 * time.Second}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := stage.Run(context.Background(), newTestAllocator(t), Input{Image: []byte("img"), MimeType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Score != 72.5 || result.Provider != "local" {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunRemoteFallbackAttemptedExactlyOnce(t *testing.T) {
	t.Parallel()

	localCalls, remoteCalls := 0, 0
	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		localCalls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer local.Close()
	remote := httptest.NewServer(scoreHandler(t, map[string]any{"score": 61}, &remoteCalls))
	defer remote.Close()

	stage, err := New(config.ScoreConfig{
		LocalURL:      local.URL,
		LocalTimeout:  2 * time.Second,
		RemoteEnabled: true,
		RemoteURL:     remote.URL,
		RemoteTimeout: 2 * time.Second,
	}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := stage.Run(context.Background(), newTestAllocator(t), Input{Image: []byte("img")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Provider != "remote" || result.Score != 61 {
		t.Fatalf("result = %+v", result)
	}
	if localCalls != 1 || remoteCalls != 1 {
		t.Fatalf("calls local=%d remote=%d, want 1/1", localCalls, remoteCalls)
	}
}

func TestRunRemoteDisabledIsSkipped(t *testing.T) {
	t.Parallel()

	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer local.Close()

	// RemoteURL set but the enabled flag off: the remote scorer must not
	// even be constructed.
	stage, err := New(config.ScoreConfig{
		LocalURL:     local.URL,
		LocalTimeout: time.Second,
		RemoteURL:    "http://example.invalid",
	}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = stage.Run(context.Background(), newTestAllocator(t), Input{Image: []byte("img")})
	if stageerr.CodeOf(err) != stageerr.CodeScoreUnavailable {
		t.Fatalf("code = %s, want SCORE_UNAVAILABLE", stageerr.CodeOf(err))
	}
}

func TestRunNoScorerConfiguredIsFatal(t *testing.T) {
	t.Parallel()

	stage, err := New(config.ScoreConfig{}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = stage.Run(context.Background(), newTestAllocator(t), Input{Image: []byte("img")})
	if stageerr.CodeOf(err) != stageerr.CodeScoreUnavailable {
		t.Fatalf("code = %s, want SCORE_UNAVAILABLE", stageerr.CodeOf(err))
	}
	if stageerr.StageOf(err) != StageTag {
		t.Fatalf("stage = %q, want %q", stageerr.StageOf(err), StageTag)
	}
}

func TestRunRemoteFirstOrdering(t *testing.T) {
	t.Parallel()

	localCalls := 0
	local := httptest.NewServer(scoreHandler(t, map[string]any{"score": 50}, &localCalls))
	defer local.Close()
	remote := httptest.NewServer(scoreHandler(t, map[string]any{"score": 90}, nil))
	defer remote.Close()

	stage, err := New(config.ScoreConfig{
		LocalURL:      local.URL,
		RemoteEnabled: true,
		RemoteURL:     remote.URL,
	}, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := stage.Run(context.Background(), newTestAllocator(t), Input{Image: []byte("img")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Provider != "remote" || result.Score != 90 {
		t.Fatalf("result = %+v, want remote first", result)
	}
	if localCalls != 0 {
		t.Fatal("local must not run when remote-first succeeds")
	}
}

func TestRunGlobalDeadlinePassesThrough(t *testing.T) {
	t.Parallel()

	local := httptest.NewServer(scoreHandler(t, map[string]any{"score": 70}, nil))
	defer local.Close()

	stage, err := New(config.ScoreConfig{LocalURL: local.URL}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = stage.Run(ctx, newTestAllocator(t), Input{Image: []byte("img")})
	if stageerr.CodeOf(err) != stageerr.CodeDeadlineExceeded {
		t.Fatalf("code = %s, want DEADLINE_EXCEEDED", stageerr.CodeOf(err))
	}
}
