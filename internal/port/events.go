package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"docxingest/internal/domain"
)

// EventSink receives pipeline events. Emit must not block the pipeline for long.
type EventSink interface {
	Emit(ctx context.Context, event domain.PipelineEvent) error
}

// EventFilter narrows an event listing. Zero values match everything.
type EventFilter struct {
	BatchID uuid.UUID
	Since   time.Time
	Limit   int
}

// EventReader is implemented by sinks that can replay what they stored.
type EventReader interface {
	ListEvents(ctx context.Context, filter EventFilter) ([]domain.PipelineEvent, error)
}
