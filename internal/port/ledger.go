package port

import (
	"context"

	"docxingest/internal/domain"
)

// LedgerStore is the durable backing of the dedup ledger.
type LedgerStore interface {
	// Insert stores entry. It returns *domain.DuplicateCommitError when the hash exists.
	Insert(ctx context.Context, entry *domain.LedgerEntry) error
	// Get returns domain.ErrNotFound when the hash is absent.
	Get(ctx context.Context, hash string) (*domain.LedgerEntry, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}
