package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dslipak/pdf"

	"docxingest/internal/domain"
)

// ErrNoTextLayer means the page carries no embedded text.
var ErrNoTextLayer = errors.New("page has no text layer")

// Embedded text is exact, so it is not scored like engine output.
const textLayerConfidence = 0.98

// TextLayerRecognizer reads the embedded text of digital PDF pages.
type TextLayerRecognizer struct{}

// NewTextLayerRecognizer creates a TextLayerRecognizer.
func NewTextLayerRecognizer() *TextLayerRecognizer { return &TextLayerRecognizer{} }

func (TextLayerRecognizer) Recognize(ctx context.Context, page domain.PageImage) (string, float64, error) {
	if page.MediaType != domain.MediaTypePDF {
		return "", 0, ErrNoTextLayer
	}

	type result struct {
		text string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		text, err := extractText(page.Data)
		resCh <- result{text, err}
	}()

	select {
	case r := <-resCh:
		if r.err != nil {
			return "", 0, r.err
		}
		if strings.TrimSpace(r.text) == "" {
			return "", 0, ErrNoTextLayer
		}
		return r.text, textLayerConfidence, nil
	case <-ctx.Done():
		return "", 0, &domain.TransientError{Op: "textlayer", Err: ctx.Err()}
	}
}

func extractText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("textlayer: pdf reader panicked: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("textlayer: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("textlayer: page %d: %w", i, err)
		}
		b.WriteString(content)
	}
	return b.String(), nil
}
