package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docxingest/internal/domain"
)

// MockRecognizer is a mock implementation of port.Recognizer.
type MockRecognizer struct {
	mock.Mock
}

func (m *MockRecognizer) Recognize(ctx context.Context, page domain.PageImage) (string, float64, error) {
	args := m.Called(ctx, page)
	return args.String(0), args.Get(1).(float64), args.Error(2)
}
