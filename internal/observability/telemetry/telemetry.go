// Package telemetry provides the process-local emitter used by the feedback
// pipeline for structured logs and metrics. Emission is best-effort and must
// never block or fail a request.
package telemetry

import (
	"context"
	"sync/atomic"
	"time"
)

const (
	// MetricStageLatencyMS captures per-stage elapsed time observations.
	MetricStageLatencyMS = "stage_latency_ms"
	// MetricProviderAttempts captures provider attempts per stage.
	MetricProviderAttempts = "provider_attempts"
)

// Correlation carries request-scoped correlation fields.
type Correlation struct {
	RequestID string `json:"request_id,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

// EventKind defines telemetry payload kind.
type EventKind string

const (
	EventKindMetric EventKind = "metric"
	EventKindLog    EventKind = "log"
)

// MetricEvent captures a metric sample payload.
type MetricEvent struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// LogEvent captures a telemetry log payload.
type LogEvent struct {
	Name       string            `json:"name"`
	Severity   string            `json:"severity"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Event is the normalized telemetry emission envelope.
type Event struct {
	Kind        EventKind    `json:"kind"`
	TimestampMS int64        `json:"timestamp_ms"`
	Correlation Correlation  `json:"correlation"`
	Metric      *MetricEvent `json:"metric,omitempty"`
	Log         *LogEvent    `json:"log,omitempty"`
}

// Sink exports normalized telemetry events.
type Sink interface {
	Export(context.Context, Event) error
}

// Emitter defines a non-blocking telemetry emission handle.
type Emitter interface {
	EmitMetric(name string, value float64, unit string, attributes map[string]string, correlation Correlation)
	EmitLog(name, severity, message string, attributes map[string]string, correlation Correlation)
}

type noopEmitter struct{}

func (noopEmitter) EmitMetric(string, float64, string, map[string]string, Correlation) {}
func (noopEmitter) EmitLog(string, string, string, map[string]string, Correlation)     {}

type emitterHolder struct {
	emitter Emitter
}

var globalEmitter atomic.Value

func init() {
	globalEmitter.Store(emitterHolder{emitter: noopEmitter{}})
}

// SetDefaultEmitter replaces the process-local default telemetry emitter.
func SetDefaultEmitter(emitter Emitter) {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	globalEmitter.Store(emitterHolder{emitter: emitter})
}

// DefaultEmitter returns the process-local default telemetry emitter.
func DefaultEmitter() Emitter {
	holder, ok := globalEmitter.Load().(emitterHolder)
	if !ok || holder.emitter == nil {
		return noopEmitter{}
	}
	return holder.emitter
}

// SinkEmitter is a synchronous emitter exporting directly into a sink.
// Export errors are dropped; telemetry never propagates failure.
type SinkEmitter struct {
	sink Sink
	now  func() time.Time
}

// NewSinkEmitter builds an emitter over the given sink.
func NewSinkEmitter(sink Sink) *SinkEmitter {
	return &SinkEmitter{sink: sink, now: time.Now}
}

// EmitMetric exports one metric event.
func (e *SinkEmitter) EmitMetric(name string, value float64, unit string, attributes map[string]string, correlation Correlation) {
	if e.sink == nil {
		return
	}
	_ = e.sink.Export(context.Background(), Event{
		Kind:        EventKindMetric,
		TimestampMS: e.now().UnixMilli(),
		Correlation: correlation,
		Metric:      &MetricEvent{Name: name, Value: value, Unit: unit, Attributes: attributes},
	})
}

// EmitLog exports one log event.
func (e *SinkEmitter) EmitLog(name, severity, message string, attributes map[string]string, correlation Correlation) {
	if e.sink == nil {
		return
	}
	_ = e.sink.Export(context.Background(), Event{
		Kind:        EventKindLog,
		TimestampMS: e.now().UnixMilli(),
		Correlation: correlation,
		Log:         &LogEvent{Name: name, Severity: severity, Message: message, Attributes: attributes},
	})
}
