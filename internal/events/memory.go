package events

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"docxingest/internal/domain"
	"docxingest/internal/port"
)

const defaultBufferSize = 1000

// MemorySink keeps the most recent events in a fixed-size ring.
type MemorySink struct {
	mu    sync.RWMutex
	buf   []domain.PipelineEvent
	next  int
	count int
}

// NewMemorySink creates a ring holding up to size events.
func NewMemorySink(size int) *MemorySink {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &MemorySink{buf: make([]domain.PipelineEvent, size)}
}

func (s *MemorySink) Emit(_ context.Context, event domain.PipelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = event
	s.next = (s.next + 1) % len(s.buf)
	if s.count < len(s.buf) {
		s.count++
	}
	return nil
}

// ListEvents returns matching events oldest first. A positive Limit keeps
// the most recent matches.
func (s *MemorySink) ListEvents(_ context.Context, filter port.EventFilter) ([]domain.PipelineEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := (s.next - s.count + len(s.buf)) % len(s.buf)
	out := make([]domain.PipelineEvent, 0, s.count)
	for i := 0; i < s.count; i++ {
		e := s.buf[(start+i)%len(s.buf)]
		if Matches(e, filter) {
			out = append(out, e)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

// Matches reports whether e passes filter's batch and time bounds.
func Matches(e domain.PipelineEvent, filter port.EventFilter) bool {
	if filter.BatchID != uuid.Nil && e.BatchID != filter.BatchID {
		return false
	}
	if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
		return false
	}
	return true
}
