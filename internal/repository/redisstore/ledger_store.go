package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"docxingest/internal/domain"
	"docxingest/internal/port"
)

// ledgerStore keeps every entry as a field of one redis hash. HSETNX gives
// first-writer-wins across processes; HLEN gives the count.
type ledgerStore struct {
	client *redis.Client
	key    string
}

// NewLedgerStore creates a redis-backed LedgerStore under keyPrefix.
func NewLedgerStore(client *redis.Client, keyPrefix string) port.LedgerStore {
	return &ledgerStore{client: client, key: keyPrefix + "entries"}
}

func (s *ledgerStore) Insert(ctx context.Context, entry *domain.LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis ledgerStore.Insert marshal: %w", err)
	}
	ok, err := s.client.HSetNX(ctx, s.key, entry.ContentHash, data).Result()
	if err != nil {
		return fmt.Errorf("redis ledgerStore.Insert: %w", err)
	}
	if !ok {
		existing, err := s.Get(ctx, entry.ContentHash)
		if err != nil {
			return fmt.Errorf("redis ledgerStore.Insert lookup: %w", err)
		}
		return &domain.DuplicateCommitError{Hash: entry.ContentHash, Location: existing.Location}
	}
	return nil
}

func (s *ledgerStore) Get(ctx context.Context, hash string) (*domain.LedgerEntry, error) {
	raw, err := s.client.HGet(ctx, s.key, hash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis ledgerStore.Get: %w", err)
	}
	var entry domain.LedgerEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("redis ledgerStore.Get decode %s: %w", hash, err)
	}
	return &entry, nil
}

func (s *ledgerStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.HLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ledgerStore.Count: %w", err)
	}
	return n, nil
}

func (s *ledgerStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
