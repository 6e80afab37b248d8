package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docxingest/internal/domain"
)

// MockPipelineService is a mock implementation of service.PipelineService.
type MockPipelineService struct {
	mock.Mock
}

func (m *MockPipelineService) RunBatch(ctx context.Context) (*domain.BatchSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BatchSummary), args.Error(1)
}

func (m *MockPipelineService) Latest() (*domain.BatchSummary, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BatchSummary), args.Error(1)
}

func (m *MockPipelineService) Running() bool {
	args := m.Called()
	return args.Bool(0)
}
