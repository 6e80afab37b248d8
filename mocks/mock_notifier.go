package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docxingest/internal/domain"
)

// MockNotifier is a mock implementation of port.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendBatchSummary(ctx context.Context, summary *domain.BatchSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}
