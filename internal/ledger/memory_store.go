package ledger

import (
	"context"
	"sync"

	"docxingest/internal/domain"
)

// MemoryStore is an in-process LedgerStore used by tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]domain.LedgerEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]domain.LedgerEntry)}
}

func (s *MemoryStore) Insert(_ context.Context, entry *domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[entry.ContentHash]; ok {
		return &domain.DuplicateCommitError{Hash: entry.ContentHash, Location: existing.Location}
	}
	s.entries[entry.ContentHash] = *entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, hash string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
