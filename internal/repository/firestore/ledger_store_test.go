package firestore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docxingest/internal/domain"
	fsstore "docxingest/internal/repository/firestore"
)

// Runs only against the Firestore emulator.
func TestLedgerStore_Emulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()

	client, err := fsstore.NewClient(ctx, "docxingest-test")
	require.NoError(t, err)
	defer client.Close()

	store := fsstore.NewLedgerStore(client, "ledger-"+uuid.NewString())
	hash := domain.ContentHash([]byte(uuid.NewString()))

	_, err = store.Get(ctx, hash)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Insert(ctx, &domain.LedgerEntry{ContentHash: hash, CommittedAt: time.Now().UTC(), Location: "gs://b/x/"}))

	err = store.Insert(ctx, &domain.LedgerEntry{ContentHash: hash, CommittedAt: time.Now().UTC(), Location: "gs://b/y/"})
	var dup *domain.DuplicateCommitError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "gs://b/x/", dup.Location)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNewClient_RequiresProject(t *testing.T) {
	_, err := fsstore.NewClient(context.Background(), "")
	assert.Error(t, err)
}
