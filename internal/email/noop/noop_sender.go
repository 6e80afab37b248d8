package noop

import (
	"context"
	"log/slog"

	"docxingest/internal/domain"
	"docxingest/internal/email"
	"docxingest/internal/logging"
	"docxingest/internal/port"
)

type noopSender struct {
	log *slog.Logger
}

// NewNoopSender creates a Notifier that logs the summary instead of mailing it.
func NewNoopSender() port.Notifier {
	return &noopSender{log: logging.For("email.noop")}
}

func (s *noopSender) SendBatchSummary(_ context.Context, summary *domain.BatchSummary) error {
	s.log.Info("batch summary", "subject", email.Subject(summary), "batch_id", summary.BatchID, "report_url", summary.ReportURL)
	return nil
}
