// Package events fans pipeline events out to the configured sinks. Sink
// failures are logged and never reach the pipeline.
package events

import (
	"context"
	"log/slog"
	"time"

	"docxingest/internal/domain"
	"docxingest/internal/logging"
	"docxingest/internal/port"
)

const defaultEmitTimeout = 5 * time.Second

// NamedSink pairs a sink with the name used in logs.
type NamedSink struct {
	Name string
	Sink port.EventSink
}

// Multi emits to every sink in order.
type Multi struct {
	sinks   []NamedSink
	timeout time.Duration
	log     *slog.Logger
}

// NewMulti creates a fan-out sink. timeout bounds each sink's Emit.
func NewMulti(timeout time.Duration, sinks ...NamedSink) *Multi {
	if timeout <= 0 {
		timeout = defaultEmitTimeout
	}
	return &Multi{sinks: sinks, timeout: timeout, log: logging.For("events")}
}

// Emit always returns nil. It detaches from ctx cancellation so terminal
// events of a canceled run are still delivered.
func (m *Multi) Emit(ctx context.Context, event domain.PipelineEvent) error {
	base := context.WithoutCancel(ctx)
	for _, s := range m.sinks {
		sctx, cancel := context.WithTimeout(base, m.timeout)
		if err := s.Sink.Emit(sctx, event); err != nil {
			m.log.Warn("event sink failed", "sink", s.Name, "event_id", event.ID, "error", err)
		}
		cancel()
	}
	return nil
}

// Names lists the configured sinks.
func (m *Multi) Names() []string {
	out := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		out[i] = s.Name
	}
	return out
}

// Reader returns the first sink that can replay events, or nil.
func (m *Multi) Reader() port.EventReader {
	for _, s := range m.sinks {
		if r, ok := s.Sink.(port.EventReader); ok {
			return r
		}
	}
	return nil
}
