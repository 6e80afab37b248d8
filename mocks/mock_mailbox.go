package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"docxingest/internal/domain"
)

// MockMailbox is a mock implementation of port.Mailbox.
type MockMailbox struct {
	mock.Mock
}

func (m *MockMailbox) ListUnprocessedMessages(ctx context.Context, since time.Time) ([]domain.SourceMessage, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SourceMessage), args.Error(1)
}
