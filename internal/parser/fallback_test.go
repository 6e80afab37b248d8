package parser_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docxingest/internal/domain"
	"docxingest/internal/parser"
	"docxingest/internal/port"
	"docxingest/mocks"
)

func fallbackOutput(model string) *port.ExtractOutput {
	return &port.ExtractOutput{
		StructuredData: json.RawMessage(`{"data":{}}`),
		ModelUsed:      model,
		PromptUsed:     "test prompt",
	}
}

var testInput = port.ExtractInput{OCRText: "--- page 1 ---\nINVOICE", SchemaVersion: "invoice.v1"}

func TestFallbackExtractor_FirstSucceeds(t *testing.T) {
	p1 := new(mocks.MockFieldExtractor)
	p2 := new(mocks.MockFieldExtractor)
	p1.On("ExtractFields", mock.Anything, testInput).Return(fallbackOutput("claude"), nil)

	fe := parser.NewFallbackExtractor([]port.FieldExtractor{p1, p2}, []string{"claude", "gemini"})

	out, err := fe.ExtractFields(context.Background(), testInput)
	require.NoError(t, err)
	assert.Equal(t, "claude", out.ModelUsed)
	p2.AssertNotCalled(t, "ExtractFields", mock.Anything, mock.Anything)
}

func TestFallbackExtractor_FirstFails_SecondSucceeds(t *testing.T) {
	p1 := new(mocks.MockFieldExtractor)
	p2 := new(mocks.MockFieldExtractor)
	p1.On("ExtractFields", mock.Anything, testInput).Return(nil, errors.New("generic error"))
	p2.On("ExtractFields", mock.Anything, testInput).Return(fallbackOutput("gemini"), nil)

	fe := parser.NewFallbackExtractor([]port.FieldExtractor{p1, p2}, []string{"claude", "gemini"})

	out, err := fe.ExtractFields(context.Background(), testInput)
	require.NoError(t, err)
	assert.Equal(t, "gemini", out.ModelUsed)
}

func TestFallbackExtractor_RateLimitOpensCircuit(t *testing.T) {
	p1 := new(mocks.MockFieldExtractor)
	p2 := new(mocks.MockFieldExtractor)
	p1.On("ExtractFields", mock.Anything, testInput).Return(nil, parser.NewRateLimitError("claude", errors.New("429"), 60)).Once()
	p2.On("ExtractFields", mock.Anything, testInput).Return(fallbackOutput("gemini"), nil).Twice()

	fe := parser.NewFallbackExtractor([]port.FieldExtractor{p1, p2}, []string{"claude", "gemini"})

	_, err := fe.ExtractFields(context.Background(), testInput)
	require.NoError(t, err)
	_, err = fe.ExtractFields(context.Background(), testInput)
	require.NoError(t, err)

	p1.AssertNumberOfCalls(t, "ExtractFields", 1)
	p2.AssertNumberOfCalls(t, "ExtractFields", 2)
}

func TestFallbackExtractor_AllRateLimited(t *testing.T) {
	p1 := new(mocks.MockFieldExtractor)
	p2 := new(mocks.MockFieldExtractor)
	p1.On("ExtractFields", mock.Anything, testInput).Return(nil, parser.NewRateLimitError("claude", errors.New("429"), 60))
	p2.On("ExtractFields", mock.Anything, testInput).Return(nil, parser.NewRateLimitError("gemini", errors.New("429"), 30))

	fe := parser.NewFallbackExtractor([]port.FieldExtractor{p1, p2}, []string{"claude", "gemini"})

	_, err := fe.ExtractFields(context.Background(), testInput)

	var rlErr *parser.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "all", rlErr.Provider)
	assert.InDelta(t, 30, rlErr.RetryAfter.Seconds(), 1)
	assert.True(t, domain.IsTransient(err))

	// Both circuits are open now; the second call never reaches a provider.
	_, err = fe.ExtractFields(context.Background(), testInput)
	require.True(t, errors.As(err, &rlErr))
	p1.AssertNumberOfCalls(t, "ExtractFields", 1)
	p2.AssertNumberOfCalls(t, "ExtractFields", 1)
}

func TestFallbackExtractor_AllFailedKeepsLastError(t *testing.T) {
	p1 := new(mocks.MockFieldExtractor)
	p2 := new(mocks.MockFieldExtractor)
	p1.On("ExtractFields", mock.Anything, testInput).Return(nil, errors.New("bad request"))
	p2.On("ExtractFields", mock.Anything, testInput).Return(nil, &domain.TransientError{Op: "gemini", Err: errors.New("503")})

	fe := parser.NewFallbackExtractor([]port.FieldExtractor{p1, p2}, []string{"claude", "gemini"})

	_, err := fe.ExtractFields(context.Background(), testInput)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers failed")
	assert.True(t, domain.IsTransient(err))
}

func TestRateLimitError_UnwrapsToTransient(t *testing.T) {
	underlying := errors.New("rate limited")
	rlErr := parser.NewRateLimitError("claude", underlying, 0)

	assert.Equal(t, 60*time.Second, rlErr.RetryAfter)
	var transient *domain.TransientError
	require.True(t, errors.As(rlErr, &transient))
	assert.Equal(t, 60*time.Second, transient.RetryAfter)
	assert.ErrorIs(t, rlErr, underlying)
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		header    map[string]string
		rateLimit bool
		transient bool
	}{
		{"too many requests", 429, map[string]string{"Retry-After": "12"}, true, true},
		{"server error", 503, nil, false, true},
		{"request timeout", 408, nil, false, true},
		{"bad request", 400, nil, false, false},
		{"unauthorized", 401, nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := make(map[string][]string)
			for k, v := range tt.header {
				h[k] = []string{v}
			}
			err := parser.StatusError("claude", tt.status, h, []byte("body"))

			var rlErr *parser.RateLimitError
			assert.Equal(t, tt.rateLimit, errors.As(err, &rlErr))
			assert.Equal(t, tt.transient, domain.IsTransient(err))
			if tt.rateLimit {
				assert.Equal(t, 12*time.Second, rlErr.RetryAfter)
			}
		})
	}
}

func TestParseRetryAfterHeader(t *testing.T) {
	assert.Equal(t, 0, parser.ParseRetryAfterHeader(""))
	assert.Equal(t, 0, parser.ParseRetryAfterHeader("soon"))
	assert.Equal(t, 45, parser.ParseRetryAfterHeader("45"))
}
