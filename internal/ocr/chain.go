package ocr

import (
	"context"
	"errors"
	"strings"

	"docxingest/internal/domain"
	"docxingest/internal/port"
)

// Chain prefers the PDF text layer and falls back to OCR when the page has
// none or the layer cannot be read.
type Chain struct {
	textLayer port.Recognizer
	ocr       port.Recognizer
}

// NewChain creates a Chain.
func NewChain(textLayer, ocr port.Recognizer) *Chain {
	return &Chain{textLayer: textLayer, ocr: ocr}
}

func (c *Chain) Recognize(ctx context.Context, page domain.PageImage) (string, float64, error) {
	text, conf, err := c.textLayer.Recognize(ctx, page)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, conf, nil
	}
	if err != nil && domain.IsTransient(err) && !errors.Is(err, ErrNoTextLayer) {
		return "", 0, err
	}
	return c.ocr.Recognize(ctx, page)
}
