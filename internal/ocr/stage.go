// Package ocr recognizes page text with bounded concurrency and per-page retries.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"docxingest/internal/domain"
	"docxingest/internal/logging"
	"docxingest/internal/port"
)

// Options configures a Stage.
type Options struct {
	Concurrency            int
	MaxAttempts            int
	BackoffBase            time.Duration
	RatePerSecond          float64
	Timeout                time.Duration
	LowConfidenceThreshold float64
}

// Stage runs a Recognizer over every page of a payload.
type Stage struct {
	rec     port.Recognizer
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewStage creates a Stage.
func NewStage(rec port.Recognizer, opts Options) *Stage {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Stage{
		rec:     rec,
		opts:    opts,
		limiter: rate.NewLimiter(limit, opts.Concurrency),
		log:     logging.For("ocr"),
	}
}

// Document is the recognized text of all pages of one payload, in page order.
type Document struct {
	Pages []domain.PageText
}

// Text joins page texts in order, each preceded by a 1-based page marker.
func (d *Document) Text() string {
	var b strings.Builder
	for i, p := range d.Pages {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "--- page %d ---\n", p.Index+1)
		b.WriteString(p.Text)
	}
	return b.String()
}

// LowConfidence reports whether any page is low-confidence.
func (d *Document) LowConfidence() bool {
	for _, p := range d.Pages {
		if p.LowConfidence {
			return true
		}
	}
	return false
}

// Confidence is the mean page confidence.
func (d *Document) Confidence() float64 {
	if len(d.Pages) == 0 {
		return 0
	}
	var sum float64
	for _, p := range d.Pages {
		sum += p.Confidence
	}
	return sum / float64(len(d.Pages))
}

// Recognize processes pages concurrently and returns their text by index.
// A failing page is marked low-confidence with empty text and never aborts
// the others. Only cancellation of ctx returns an error.
func (s *Stage) Recognize(ctx context.Context, pages []domain.PageImage) (*Document, error) {
	results := make([]domain.PageText, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i := range pages {
		g.Go(func() error {
			results[i] = s.recognizePage(gctx, pages[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, &domain.TransientError{Op: "ocr.Recognize", Err: err}
	}
	return &Document{Pages: results}, nil
}

func (s *Stage) recognizePage(ctx context.Context, page domain.PageImage) domain.PageText {
	var lastErr error
	attempt := 0
	for attempt < s.opts.MaxAttempts {
		attempt++
		if err := s.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		pctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		text, conf, err := s.rec.Recognize(pctx, page)
		cancel()
		if err == nil {
			return domain.PageText{
				Index:         page.Index,
				Text:          text,
				Confidence:    conf,
				LowConfidence: conf < s.opts.LowConfidenceThreshold,
				Attempts:      attempt,
			}
		}

		lastErr = err
		if !domain.IsTransient(err) || attempt == s.opts.MaxAttempts {
			break
		}
		if !sleepCtx(ctx, s.backoff(attempt)) {
			break
		}
	}

	s.log.Warn("page recognition failed",
		"payload_hash", page.PayloadHash,
		"page", page.Index+1,
		"attempts", attempt,
		"error", lastErr,
	)
	return domain.PageText{
		Index:         page.Index,
		LowConfidence: true,
		Attempts:      attempt,
		Error:         lastErr.Error(),
	}
}

func (s *Stage) backoff(attempt int) time.Duration {
	return s.opts.BackoffBase << (attempt - 1)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
