package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// WriterSink exports events as JSON lines to an io.Writer.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink builds a sink over the given writer.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Export writes one event as a single JSON line.
func (s *WriterSink) Export(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	return enc.Encode(event)
}
