package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"docxingest/internal/domain"
	"docxingest/internal/port"
)

const defaultEventLimit = 200

// EventStore appends pipeline events to the pipeline_events table and can
// list them back for the operator API.
type EventStore struct {
	db *sqlx.DB
}

var (
	_ port.EventSink   = (*EventStore)(nil)
	_ port.EventReader = (*EventStore)(nil)
)

// NewEventStore creates a SQL-backed event sink.
func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Emit(ctx context.Context, event domain.PipelineEvent) error {
	query := s.db.Rebind(`INSERT INTO pipeline_events
		(id, occurred_at, batch_id, message_id, payload_hash, stage, status, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		event.ID.String(), event.Timestamp.UTC(), event.BatchID.String(), event.MessageID,
		event.PayloadHash, string(event.Stage), string(event.Status), event.Detail)
	if err != nil {
		return fmt.Errorf("EventStore.Emit: %w", err)
	}
	return nil
}

func (s *EventStore) ListEvents(ctx context.Context, filter port.EventFilter) ([]domain.PipelineEvent, error) {
	var (
		where []string
		args  []any
	)
	if filter.BatchID != uuid.Nil {
		where = append(where, "batch_id = ?")
		args = append(args, filter.BatchID.String())
	}
	if !filter.Since.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}

	query := `SELECT id, occurred_at, batch_id, message_id, payload_hash, stage, status, detail
		FROM pipeline_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at ASC LIMIT ?"
	args = append(args, limit)

	var events []domain.PipelineEvent
	if err := s.db.SelectContext(ctx, &events, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("EventStore.ListEvents: %w", err)
	}
	return events, nil
}
