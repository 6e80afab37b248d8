package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"docxingest/internal/domain"
	"docxingest/internal/port"
)

type ledgerStore struct {
	db *sqlx.DB
}

// NewLedgerStore creates a SQL-backed LedgerStore. Queries are written with ?
// placeholders and rebound for the connected driver.
func NewLedgerStore(db *sqlx.DB) port.LedgerStore {
	return &ledgerStore{db: db}
}

func (s *ledgerStore) Insert(ctx context.Context, entry *domain.LedgerEntry) error {
	query := s.db.Rebind(`INSERT INTO ledger_entries (content_hash, committed_at, location)
		VALUES (?, ?, ?)
		ON CONFLICT (content_hash) DO NOTHING`)

	res, err := s.db.ExecContext(ctx, query, entry.ContentHash, entry.CommittedAt.UTC(), entry.Location)
	if err != nil {
		return fmt.Errorf("ledgerStore.Insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledgerStore.Insert rows: %w", err)
	}
	if n == 0 {
		existing, err := s.Get(ctx, entry.ContentHash)
		if err != nil {
			return fmt.Errorf("ledgerStore.Insert lookup: %w", err)
		}
		return &domain.DuplicateCommitError{Hash: entry.ContentHash, Location: existing.Location}
	}
	return nil
}

func (s *ledgerStore) Get(ctx context.Context, hash string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := s.db.GetContext(ctx, &entry,
		s.db.Rebind("SELECT content_hash, committed_at, location FROM ledger_entries WHERE content_hash = ?"), hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("ledgerStore.Get: %w", err)
	}
	return &entry, nil
}

func (s *ledgerStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM ledger_entries"); err != nil {
		return 0, fmt.Errorf("ledgerStore.Count: %w", err)
	}
	return n, nil
}

func (s *ledgerStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
