package events

import (
	"context"
	"log/slog"

	"docxingest/internal/domain"
	"docxingest/internal/logging"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{log: logging.For("events")}
}

func (s *LogSink) Emit(ctx context.Context, event domain.PipelineEvent) error {
	level := slog.LevelInfo
	if event.Status == domain.EventFailed {
		level = slog.LevelWarn
	}
	s.log.Log(ctx, level, "pipeline event",
		"batch_id", event.BatchID,
		"message_id", event.MessageID,
		"payload_hash", event.PayloadHash,
		"stage", event.Stage,
		"status", event.Status,
		"detail", event.Detail,
	)
	return nil
}
