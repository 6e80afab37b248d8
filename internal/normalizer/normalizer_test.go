package normalizer_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docxingest/internal/domain"
	"docxingest/internal/normalizer"
	"docxingest/internal/testutil"
)

func payload(mediaType string, data []byte) *domain.AttachmentPayload {
	return domain.NewAttachmentPayload("m1", 0, "doc", mediaType, data)
}

func TestNormalize_MultiPagePDFInOrder(t *testing.T) {
	n := normalizer.New(normalizer.Options{TempDir: t.TempDir()})
	p := payload(domain.MediaTypePDF, testutil.PDF("page one", "page two", "page three"))

	pages, err := n.Normalize(p)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, page := range pages {
		assert.Equal(t, i, page.Index)
		assert.Equal(t, p.ContentHash, page.PayloadHash)
		assert.Equal(t, domain.MediaTypePDF, page.MediaType)
		assert.True(t, bytes.HasPrefix(page.Data, []byte("%PDF")))
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	n := normalizer.New(normalizer.Options{TempDir: t.TempDir()})
	p := payload(domain.MediaTypePDF, testutil.PDF("a", "b"))

	first, err := n.Normalize(p)
	require.NoError(t, err)
	second, err := n.Normalize(p)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Index, second[i].Index)
		assert.True(t, bytes.Equal(first[i].Data, second[i].Data), "page %d differs between runs", i+1)
	}
}

func TestNormalize_DeterministicAcrossSeconds(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the clock to change")
	}
	n := normalizer.New(normalizer.Options{TempDir: t.TempDir()})
	p := payload(domain.MediaTypePDF, testutil.PDF("a", "b", "c"))

	first, err := n.Normalize(p)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	second, err := n.Normalize(p)
	require.NoError(t, err)

	require.Len(t, second, 3)
	for i := range first {
		assert.True(t, bytes.Equal(first[i].Data, second[i].Data), "page %d differs between runs", i+1)
	}

	// Pinned pages still parse.
	for _, page := range second {
		count, err := api.PageCount(bytes.NewReader(page.Data), model.NewDefaultConfiguration())
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	}
}

func TestNormalize_SinglePagePDFKeepsBytes(t *testing.T) {
	n := normalizer.New(normalizer.Options{TempDir: t.TempDir()})
	data := testutil.PDF("only page")

	pages, err := n.Normalize(payload(domain.MediaTypePDF, data))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, data, pages[0].Data)
}

func TestNormalize_PageLimit(t *testing.T) {
	n := normalizer.New(normalizer.Options{MaxPages: 2, TempDir: t.TempDir()})

	_, err := n.Normalize(payload(domain.MediaTypePDF, testutil.PDF("1", "2", "3")))

	var unsupported *domain.UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))
	assert.Contains(t, unsupported.Reason, "limit is 2")
}

func TestNormalize_CorruptPDF(t *testing.T) {
	n := normalizer.New(normalizer.Options{TempDir: t.TempDir()})

	_, err := n.Normalize(payload(domain.MediaTypePDF, []byte("%PDF-1.4 this is not really a pdf")))

	var unsupported *domain.UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, domain.ClassStructural, domain.Classify(err))
}

func TestNormalize_Images(t *testing.T) {
	tests := []struct {
		name      string
		mediaType string
		data      []byte
	}{
		{"png", domain.MediaTypePNG, testutil.PNG(4, 3)},
		{"jpeg", domain.MediaTypeJPEG, testutil.JPEG(4, 3)},
		{"tiff", domain.MediaTypeTIFF, testutil.TIFF(4, 3)},
	}
	n := normalizer.New(normalizer.Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := n.Normalize(payload(tt.mediaType, tt.data))
			require.NoError(t, err)
			require.Len(t, pages, 1)
			assert.Equal(t, 0, pages[0].Index)
			assert.Equal(t, tt.mediaType, pages[0].MediaType)
			assert.Equal(t, tt.data, pages[0].Data)
		})
	}
}

func TestNormalize_ImageContentMismatch(t *testing.T) {
	n := normalizer.New(normalizer.Options{})

	_, err := n.Normalize(payload(domain.MediaTypeJPEG, testutil.PNG(2, 2)))

	var unsupported *domain.UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))
	assert.Contains(t, unsupported.Reason, "content is png")
}

func TestNormalize_GarbageImage(t *testing.T) {
	n := normalizer.New(normalizer.Options{})

	_, err := n.Normalize(payload(domain.MediaTypePNG, []byte("not an image")))

	var unsupported *domain.UnsupportedFormatError
	assert.True(t, errors.As(err, &unsupported))
}

func TestNormalize_UnknownMediaType(t *testing.T) {
	n := normalizer.New(normalizer.Options{})

	_, err := n.Normalize(payload("application/zip", []byte("PK")))

	var unsupported *domain.UnsupportedFormatError
	assert.True(t, errors.As(err, &unsupported))
}
