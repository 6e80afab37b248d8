package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"docxingest/internal/domain"
	"docxingest/internal/port"
)

// NewClient creates a Firestore client for projectID.
func NewClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// ledgerStore keys documents by content hash. Create fails with AlreadyExists
// when the hash is taken, which gives first-writer-wins semantics.
type ledgerStore struct {
	client     *firestore.Client
	collection string
}

// NewLedgerStore creates a Firestore-backed LedgerStore.
func NewLedgerStore(client *firestore.Client, collection string) port.LedgerStore {
	return &ledgerStore{client: client, collection: collection}
}

func (s *ledgerStore) Insert(ctx context.Context, entry *domain.LedgerEntry) error {
	_, err := s.client.Collection(s.collection).Doc(entry.ContentHash).Create(ctx, entry)
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.AlreadyExists {
		existing, getErr := s.Get(ctx, entry.ContentHash)
		if getErr != nil {
			return fmt.Errorf("firestore ledgerStore.Insert lookup: %w", getErr)
		}
		return &domain.DuplicateCommitError{Hash: entry.ContentHash, Location: existing.Location}
	}
	return fmt.Errorf("firestore ledgerStore.Insert: %w", err)
}

func (s *ledgerStore) Get(ctx context.Context, hash string) (*domain.LedgerEntry, error) {
	snap, err := s.client.Collection(s.collection).Doc(hash).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("firestore ledgerStore.Get: %w", err)
	}
	var entry domain.LedgerEntry
	if err := snap.DataTo(&entry); err != nil {
		return nil, fmt.Errorf("firestore ledgerStore.Get decode %s: %w", hash, err)
	}
	return &entry, nil
}

func (s *ledgerStore) Count(ctx context.Context) (int64, error) {
	res, err := s.client.Collection(s.collection).NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("firestore ledgerStore.Count: %w", err)
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("firestore ledgerStore.Count: unexpected aggregation result %T", res["all"])
	}
	return v.GetIntegerValue(), nil
}

func (s *ledgerStore) Ping(ctx context.Context) error {
	if _, err := s.client.Collection(s.collection).Limit(1).Documents(ctx).GetAll(); err != nil {
		return fmt.Errorf("firestore ledgerStore.Ping: %w", err)
	}
	return nil
}
