package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"docxingest/internal/domain"
	"docxingest/internal/port"
)

// EventStream appends pipeline events to a capped redis stream so dashboards
// can follow them with XREAD.
type EventStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

var (
	_ port.EventSink   = (*EventStream)(nil)
	_ port.EventReader = (*EventStream)(nil)
)

// NewEventStream creates a stream sink. maxLen caps the stream approximately.
func NewEventStream(client *redis.Client, stream string, maxLen int64) *EventStream {
	return &EventStream{client: client, stream: stream, maxLen: maxLen}
}

func (s *EventStream) Emit(ctx context.Context, event domain.PipelineEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("EventStream.Emit marshal: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"batch_id": event.BatchID.String(),
			"stage":    string(event.Stage),
			"status":   string(event.Status),
			"event":    string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("EventStream.Emit: %w", err)
	}
	return nil
}

func (s *EventStream) ListEvents(ctx context.Context, filter port.EventFilter) ([]domain.PipelineEvent, error) {
	start := "-"
	if !filter.Since.IsZero() {
		start = strconv.FormatInt(filter.Since.UnixMilli(), 10)
	}
	msgs, err := s.client.XRange(ctx, s.stream, start, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("EventStream.ListEvents: %w", err)
	}

	var events []domain.PipelineEvent
	for _, msg := range msgs {
		raw, ok := msg.Values["event"].(string)
		if !ok {
			continue
		}
		var e domain.PipelineEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("EventStream.ListEvents decode %s: %w", msg.ID, err)
		}
		if filter.BatchID != uuid.Nil && e.BatchID != filter.BatchID {
			continue
		}
		events = append(events, e)
		if filter.Limit > 0 && len(events) == filter.Limit {
			break
		}
	}
	return events, nil
}
