// Package feedback defines the request and result envelopes exchanged
// between the gateway and the orchestration engine.
package feedback

import "strings"

// Request is one orchestration run's input. It is immutable once created by
// the gateway and owned exclusively by that run.
type Request struct {
	RequestID        string
	Image            []byte
	MimeType         string
	PoseID           string
	GlobalDeadlineMS int64
}

// Timing reports wall-clock accounting for one run.
type Timing struct {
	TotalMS int64 `json:"total"`
}

// Sources records which provider served each stage.
type Sources struct {
	Score string `json:"score,omitempty"`
	Text  string `json:"text,omitempty"`
	TTS   string `json:"tts,omitempty"`
}

// Result is the final envelope. Exactly one of SkeletonURL and
// SkeletonInline is set when an overlay was produced; AdviceList and Summary
// are never both empty on success.
type Result struct {
	OK             bool     `json:"ok"`
	Score          float64  `json:"score"`
	Advice         string   `json:"advice"`
	AdviceList     []string `json:"adviceList"`
	Summary        string   `json:"summary"`
	AudioBase64    string   `json:"audio_base64,omitempty"`
	SkeletonURL    string   `json:"skeletonUrl,omitempty"`
	SkeletonInline string   `json:"skeletonInline,omitempty"`
	Timing         Timing   `json:"timing_ms"`
	Sources        Sources  `json:"sources"`
}

// ErrorBody is the non-ok envelope the gateway serializes for fatal runs.
type ErrorBody struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// JoinAdvice renders the advice list into the legacy single-string field.
func JoinAdvice(list []string) string {
	return strings.Join(list, "; ")
}
