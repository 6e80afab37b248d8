package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docxingest/internal/domain"
)

// MockEventSink is a mock implementation of port.EventSink.
type MockEventSink struct {
	mock.Mock
}

func (m *MockEventSink) Emit(ctx context.Context, event domain.PipelineEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
