package ocr_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docxingest/internal/domain"
	"docxingest/internal/ocr"
)

type recognizerFunc func(ctx context.Context, page domain.PageImage) (string, float64, error)

func (f recognizerFunc) Recognize(ctx context.Context, page domain.PageImage) (string, float64, error) {
	return f(ctx, page)
}

func makePages(n int) []domain.PageImage {
	pages := make([]domain.PageImage, n)
	for i := range pages {
		pages[i] = domain.PageImage{PayloadHash: "h", Index: i, MediaType: domain.MediaTypePNG}
	}
	return pages
}

func testOptions() ocr.Options {
	return ocr.Options{
		Concurrency:            4,
		MaxAttempts:            3,
		BackoffBase:            time.Millisecond,
		Timeout:                time.Second,
		LowConfidenceThreshold: 0.5,
	}
}

func TestStage_PreservesPageOrderUnderConcurrency(t *testing.T) {
	const n = 6
	rec := recognizerFunc(func(_ context.Context, page domain.PageImage) (string, float64, error) {
		// Later pages finish first.
		time.Sleep(time.Duration(n-page.Index) * 3 * time.Millisecond)
		return fmt.Sprintf("text %d", page.Index), 0.9, nil
	})
	stage := ocr.NewStage(rec, testOptions())

	doc, err := stage.Recognize(context.Background(), makePages(n))
	require.NoError(t, err)
	require.Len(t, doc.Pages, n)
	for i, p := range doc.Pages {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, fmt.Sprintf("text %d", i), p.Text)
	}

	text := doc.Text()
	for i := 0; i < n; i++ {
		marker := fmt.Sprintf("--- page %d ---\ntext %d", i+1, i)
		assert.Contains(t, text, marker)
	}
	assert.Less(t, strings.Index(text, "--- page 1 ---"), strings.Index(text, "--- page 2 ---"))
}

func TestStage_BoundedConcurrency(t *testing.T) {
	var inFlight, maxSeen int32
	rec := recognizerFunc(func(_ context.Context, _ domain.PageImage) (string, float64, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			m := atomic.LoadInt32(&maxSeen)
			if cur <= m || atomic.CompareAndSwapInt32(&maxSeen, m, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return "x", 0.9, nil
	})
	opts := testOptions()
	opts.Concurrency = 2
	stage := ocr.NewStage(rec, opts)

	_, err := stage.Recognize(context.Background(), makePages(8))
	require.NoError(t, err)
	assert.LessOrEqual(t, maxSeen, int32(2))
}

func TestStage_RetryThenSucceed(t *testing.T) {
	var calls int32
	rec := recognizerFunc(func(_ context.Context, _ domain.PageImage) (string, float64, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", 0, &domain.TransientError{Op: "ocr", Err: errors.New("busy")}
		}
		return "Invoice 42", 0.9, nil
	})
	stage := ocr.NewStage(rec, testOptions())

	doc, err := stage.Recognize(context.Background(), makePages(1))
	require.NoError(t, err)
	assert.Equal(t, "Invoice 42", doc.Pages[0].Text)
	assert.Equal(t, 3, doc.Pages[0].Attempts)
	assert.False(t, doc.Pages[0].LowConfidence)
	assert.False(t, doc.LowConfidence())
}

func TestStage_ExhaustedRetriesMarksLowConfidence(t *testing.T) {
	var calls int32
	rec := recognizerFunc(func(_ context.Context, _ domain.PageImage) (string, float64, error) {
		atomic.AddInt32(&calls, 1)
		return "", 0, &domain.TransientError{Op: "ocr", Err: errors.New("timeout")}
	})
	stage := ocr.NewStage(rec, testOptions())

	doc, err := stage.Recognize(context.Background(), makePages(1))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls)
	assert.True(t, doc.Pages[0].LowConfidence)
	assert.Empty(t, doc.Pages[0].Text)
	assert.Contains(t, doc.Pages[0].Error, "timeout")
}

func TestStage_PermanentFailureIsolatedToPage(t *testing.T) {
	var mu sync.Mutex
	calls := map[int]int{}
	rec := recognizerFunc(func(_ context.Context, page domain.PageImage) (string, float64, error) {
		mu.Lock()
		calls[page.Index]++
		mu.Unlock()
		if page.Index == 1 {
			return "", 0, errors.New("unreadable image")
		}
		return "ok", 0.8, nil
	})
	stage := ocr.NewStage(rec, testOptions())

	doc, err := stage.Recognize(context.Background(), makePages(3))
	require.NoError(t, err)
	assert.Equal(t, "ok", doc.Pages[0].Text)
	assert.True(t, doc.Pages[1].LowConfidence)
	assert.Equal(t, "ok", doc.Pages[2].Text)
	assert.Equal(t, 1, calls[1], "permanent errors are not retried")
	assert.True(t, doc.LowConfidence())
}

func TestStage_LowConfidenceThreshold(t *testing.T) {
	rec := recognizerFunc(func(_ context.Context, _ domain.PageImage) (string, float64, error) {
		return "smudged", 0.3, nil
	})
	stage := ocr.NewStage(rec, testOptions())

	doc, err := stage.Recognize(context.Background(), makePages(1))
	require.NoError(t, err)
	assert.True(t, doc.Pages[0].LowConfidence)
	assert.Equal(t, "smudged", doc.Pages[0].Text)
	assert.InDelta(t, 0.3, doc.Confidence(), 1e-9)
}

func TestStage_CanceledContext(t *testing.T) {
	rec := recognizerFunc(func(ctx context.Context, _ domain.PageImage) (string, float64, error) {
		<-ctx.Done()
		return "", 0, &domain.TransientError{Op: "ocr", Err: ctx.Err()}
	})
	stage := ocr.NewStage(rec, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stage.Recognize(ctx, makePages(2))
	assert.True(t, domain.IsTransient(err))
}
