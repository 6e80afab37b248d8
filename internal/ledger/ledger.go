// Package ledger records which document contents have been committed, keyed by
// content hash, and serializes work on the same hash within a process.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docxingest/internal/domain"
	"docxingest/internal/port"
)

// Ledger wraps a durable LedgerStore with per-hash locking.
type Ledger struct {
	store port.LedgerStore
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*hashLock
}

type hashLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a Ledger over store.
func New(store port.LedgerStore) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
		locks: make(map[string]*hashLock),
	}
}

// IsProcessed reports whether hash has a ledger entry. Store failures are
// fatal: running without a readable ledger risks double commits.
func (l *Ledger) IsProcessed(ctx context.Context, hash string) (bool, error) {
	_, err := l.store.Get(ctx, hash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		return false, &domain.FatalError{Op: "ledger.IsProcessed", Err: err}
	}
}

// Record inserts the entry for hash. It returns *domain.DuplicateCommitError
// when another writer got there first.
func (l *Ledger) Record(ctx context.Context, hash, location string) error {
	entry := &domain.LedgerEntry{
		ContentHash: hash,
		CommittedAt: l.now().UTC(),
		Location:    location,
	}
	if err := l.store.Insert(ctx, entry); err != nil {
		var dup *domain.DuplicateCommitError
		if errors.As(err, &dup) {
			return dup
		}
		return fmt.Errorf("ledger.Record: %w", err)
	}
	return nil
}

// Get returns the entry for hash or domain.ErrNotFound.
func (l *Ledger) Get(ctx context.Context, hash string) (*domain.LedgerEntry, error) {
	return l.store.Get(ctx, hash)
}

// Count returns the number of committed hashes.
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	return l.store.Count(ctx)
}

// Ping checks that the backing store is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// Lock blocks until the caller holds the lock for hash and returns the
// release func. Different hashes never contend.
func (l *Ledger) Lock(hash string) (unlock func()) {
	l.mu.Lock()
	hl, ok := l.locks[hash]
	if !ok {
		hl = &hashLock{}
		l.locks[hash] = hl
	}
	hl.refs++
	l.mu.Unlock()

	hl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			hl.mu.Unlock()
			l.mu.Lock()
			hl.refs--
			if hl.refs == 0 {
				delete(l.locks, hash)
			}
			l.mu.Unlock()
		})
	}
}
