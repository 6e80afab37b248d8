package port

import (
	"context"

	"docxingest/internal/domain"
)

// Notifier delivers the end-of-batch summary to operators.
type Notifier interface {
	SendBatchSummary(ctx context.Context, summary *domain.BatchSummary) error
}
