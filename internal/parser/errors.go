package parser

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"docxingest/internal/domain"
)

// RateLimitError indicates a provider returned HTTP 429.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
	Provider   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
}

// Unwrap exposes the rate limit as a *domain.TransientError.
func (e *RateLimitError) Unwrap() error {
	return &domain.TransientError{Op: e.Provider, RetryAfter: e.RetryAfter, Err: e.Err}
}

// NewRateLimitError creates a RateLimitError. If retryAfterSecs is 0, defaults to 60s.
func NewRateLimitError(provider string, err error, retryAfterSecs int) *RateLimitError {
	if retryAfterSecs <= 0 {
		retryAfterSecs = 60
	}
	return &RateLimitError{
		Err:        err,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
		Provider:   provider,
	}
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}

// StatusError converts a non-2xx provider response into a typed error:
// 429 is a *RateLimitError, 408 and 5xx are *domain.TransientError, anything
// else is permanent.
func StatusError(provider string, status int, header http.Header, body []byte) error {
	baseErr := fmt.Errorf("%s API error (status %d): %s", provider, status, Truncate(string(body), 500))
	switch {
	case status == http.StatusTooManyRequests:
		return NewRateLimitError(provider, baseErr, ParseRetryAfterHeader(header.Get("Retry-After")))
	case status == http.StatusRequestTimeout || status >= 500:
		return &domain.TransientError{Op: provider, Err: baseErr}
	default:
		return baseErr
	}
}

// TransportError marks a failed round trip (timeout, reset, refused) as transient.
func TransportError(provider string, err error) error {
	return &domain.TransientError{Op: provider, Err: fmt.Errorf("calling %s API: %w", provider, err)}
}

// Truncate shortens s to maxLen bytes for log and error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
