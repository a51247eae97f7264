package advice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/tiger/pose-feedback-pipeline/internal/config"
	"github.com/tiger/pose-feedback-pipeline/internal/runtime/budget"
)

func completionHandler(t *testing.T, content string, calls *int) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode completion request: %v", err)
		}
		if messages, ok := body["messages"].([]any); !ok || len(messages) != 2 {
			t.Errorf("completion request carries %v messages, want 2", body["messages"])
		}
		if body["max_tokens"] != float64(220) {
			t.Errorf("max_tokens = %v, want 220", body["max_tokens"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
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

func TestRunLocalModelWins(t *testing.T) {
	t.Parallel()

	local := httptest.NewServer(completionHandler(t, `{"advice":["Engage core"],"summary":"good hold"}`, nil))
	defer local.Close()

	stage, err := New(config.LLMConfig{LocalBase: local.URL, LocalModel: "qwen", Timeout: 2 * time.Second}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pack := stage.Run(context.Background(), newTestAllocator(t), Input{Score: 72})
	if pack.Source != SourceLocalLLM {
		t.Fatalf("source = %q, want %q", pack.Source, SourceLocalLLM)
	}
	if !reflect.DeepEqual(pack.Advice, []string{"Engage core"}) || pack.Summary != "good hold" {
		t.Fatalf("pack = %+v", pack)
	}
}

func TestRunFallsBackToRemoteModel(t *testing.T) {
	t.Parallel()

	localCalls := 0
	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		localCalls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer local.Close()
	remote := httptest.NewServer(completionHandler(t, `{"advice":["Square hips"],"summary":"close"}`, nil))
	defer remote.Close()

	stage, err := New(config.LLMConfig{
		LocalBase:     local.URL,
		LocalModel:    "qwen",
		RemoteEnabled: true,
		RemoteURL:     remote.URL,
		RemoteModel:   "hunyuan-t1",
		Timeout:       2 * time.Second,
	}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pack := stage.Run(context.Background(), newTestAllocator(t), Input{Score: 66})
	if pack.Source != SourceRemoteLLM {
		t.Fatalf("source = %q, want %q", pack.Source, SourceRemoteLLM)
	}
	if localCalls != 1 {
		t.Fatalf("local attempted %d times, want exactly 1", localCalls)
	}
}

func TestRunTemplateWhenAllModelsFail(t *testing.T) {
	t.Parallel()

	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer local.Close()

	stage, err := New(config.LLMConfig{LocalBase: local.URL, LocalModel: "qwen", Timeout: 2 * time.Second}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pack := stage.Run(context.Background(), newTestAllocator(t), Input{Score: 90})
	if pack.Source != SourceTemplate {
		t.Fatalf("source = %q, want %q", pack.Source, SourceTemplate)
	}
	if pack.Summary != summaryStable {
		t.Fatalf("summary = %q, want %q for score 90", pack.Summary, summaryStable)
	}
}

func TestRunTemplateWhenNoModelConfigured(t *testing.T) {
	t.Parallel()

	stage, err := New(config.LLMConfig{}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pack := stage.Run(context.Background(), newTestAllocator(t), Input{Score: 40})
	if pack.Source != SourceTemplate || pack.Summary != summaryFoundation {
		t.Fatalf("pack = %+v, want template/foundation", pack)
	}
}

func TestRunScorerAdviceStaysPrimary(t *testing.T) {
	t.Parallel()

	local := httptest.NewServer(completionHandler(t, `{"advice":["Model tip"],"summary":"balanced"}`, nil))
	defer local.Close()

	stage, err := New(config.LLMConfig{LocalBase: local.URL, LocalModel: "qwen", Timeout: 2 * time.Second}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pack := stage.Run(context.Background(), newTestAllocator(t), Input{
		Score:          80,
		ExistingAdvice: []string{"lift chest", "soften knees"},
	})
	if !reflect.DeepEqual(pack.Advice, []string{"lift chest", "soften knees"}) {
		t.Fatalf("advice = %v, scorer hints must stay primary", pack.Advice)
	}
	if pack.Source != "score_backend+"+SourceLocalLLM {
		t.Fatalf("source = %q, want score_backend+%s", pack.Source, SourceLocalLLM)
	}
	if pack.Summary != "balanced" {
		t.Fatalf("summary = %q, model summary must survive", pack.Summary)
	}
}

func TestRunRemoteFirstOrdering(t *testing.T) {
	t.Parallel()

	order := []string{}
	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "local")
		completionHandler(t, `{"advice":["Local tip"],"summary":"l"}`, nil)(w, r)
	}))
	defer local.Close()
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "remote")
		completionHandler(t, `{"advice":["Remote tip"],"summary":"r"}`, nil)(w, r)
	}))
	defer remote.Close()

	stage, err := New(config.LLMConfig{
		LocalBase:     local.URL,
		RemoteEnabled: true,
		RemoteURL:     remote.URL,
		Timeout:       2 * time.Second,
	}, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pack := stage.Run(context.Background(), newTestAllocator(t), Input{Score: 70})
	if pack.Source != SourceRemoteLLM {
		t.Fatalf("source = %q, want remote first", pack.Source)
	}
	if !reflect.DeepEqual(order, []string{"remote"}) {
		t.Fatalf("call order = %v, want [remote]", order)
	}
}
