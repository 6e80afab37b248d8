package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docxingest/internal/domain"
)

// MockLedgerStore is a mock implementation of port.LedgerStore.
type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) Insert(ctx context.Context, entry *domain.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerStore) Get(ctx context.Context, hash string) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerEntry), args.Error(1)
}

func (m *MockLedgerStore) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
