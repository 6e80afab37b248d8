package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docxingest/db/migrations"
	"docxingest/internal/config"
	"docxingest/internal/domain"
	"docxingest/internal/port"
	"docxingest/internal/repository/sqlstore"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	cfg := &config.DBConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpen:    4,
		MaxIdle:    2,
	}
	db, err := sqlstore.NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(db.DB, "sqlite"))
	return db
}

func TestLedgerStore_InsertAndGet(t *testing.T) {
	store := sqlstore.NewLedgerStore(newTestDB(t))
	ctx := context.Background()
	hash := domain.ContentHash([]byte("invoice"))

	_, err := store.Get(ctx, hash)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	committed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, &domain.LedgerEntry{
		ContentHash: hash, CommittedAt: committed, Location: "s3://archive/b1/abc/",
	}))

	got, err := store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, hash, got.ContentHash)
	assert.Equal(t, "s3://archive/b1/abc/", got.Location)
	assert.True(t, committed.Equal(got.CommittedAt))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLedgerStore_InsertDuplicate(t *testing.T) {
	store := sqlstore.NewLedgerStore(newTestDB(t))
	ctx := context.Background()
	hash := domain.ContentHash([]byte("same bytes"))

	require.NoError(t, store.Insert(ctx, &domain.LedgerEntry{ContentHash: hash, CommittedAt: time.Now(), Location: "first"}))
	err := store.Insert(ctx, &domain.LedgerEntry{ContentHash: hash, CommittedAt: time.Now(), Location: "second"})

	var dup *domain.DuplicateCommitError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "first", dup.Location)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLedgerStore_Ping(t *testing.T) {
	store := sqlstore.NewLedgerStore(newTestDB(t))
	assert.NoError(t, store.Ping(context.Background()))
}

func TestEventStore_EmitAndList(t *testing.T) {
	store := sqlstore.NewEventStore(newTestDB(t))
	ctx := context.Background()
	batchA, batchB := uuid.New(), uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	events := []domain.PipelineEvent{
		{ID: uuid.New(), Timestamp: base, BatchID: batchA, MessageID: "m1", Stage: domain.StageDiscovered, Status: domain.EventStarted},
		{ID: uuid.New(), Timestamp: base.Add(time.Second), BatchID: batchA, MessageID: "m1", PayloadHash: "h1", Stage: domain.StageCommitted, Status: domain.EventSucceeded, Detail: "ok"},
		{ID: uuid.New(), Timestamp: base.Add(2 * time.Second), BatchID: batchB, MessageID: "m2", Stage: domain.StageFailed, Status: domain.EventFailed},
	}
	for _, e := range events {
		require.NoError(t, store.Emit(ctx, e))
	}

	got, err := store.ListEvents(ctx, port.EventFilter{BatchID: batchA})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.StageDiscovered, got[0].Stage)
	assert.Equal(t, domain.StageCommitted, got[1].Stage)
	assert.Equal(t, "h1", got[1].PayloadHash)
	assert.Equal(t, batchA, got[1].BatchID)

	got, err = store.ListEvents(ctx, port.EventFilter{Since: base.Add(time.Second), Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.StageCommitted, got[0].Stage)
}
