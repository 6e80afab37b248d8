package port

import (
	"context"

	"docxingest/internal/domain"
)

// Recognizer turns one page image into text. Confidence is in [0, 1].
// Retryable failures are returned as *domain.TransientError.
type Recognizer interface {
	Recognize(ctx context.Context, page domain.PageImage) (text string, confidence float64, err error)
}
