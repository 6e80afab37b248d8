// Package normalizer turns an attachment payload into an ordered list of
// single-page images ready for OCR.
package normalizer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/tiff"

	"docxingest/internal/domain"
)

const defaultMaxPages = 50

// Options configures a Normalizer.
type Options struct {
	MaxPages int
	// TempDir is where PDFs are split. Empty means os.TempDir().
	TempDir string
}

// Normalizer renders payloads into pages.
type Normalizer struct {
	maxPages int
	tempDir  string
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	return &Normalizer{maxPages: opts.MaxPages, tempDir: opts.TempDir}
}

// Normalize returns one PageImage per page, in page order. The result is never
// empty. Content that cannot be rendered is a *domain.UnsupportedFormatError.
func (n *Normalizer) Normalize(payload *domain.AttachmentPayload) ([]domain.PageImage, error) {
	switch payload.MediaType {
	case domain.MediaTypePDF:
		return n.splitPDF(payload)
	case domain.MediaTypeJPEG, domain.MediaTypePNG, domain.MediaTypeTIFF:
		return n.singleImage(payload)
	default:
		return nil, &domain.UnsupportedFormatError{MediaType: payload.MediaType, Reason: "no renderer for media type"}
	}
}

var imageFormats = map[string]string{
	domain.MediaTypeJPEG: "jpeg",
	domain.MediaTypePNG:  "png",
	domain.MediaTypeTIFF: "tiff",
}

// singleImage validates the image header. Multi-frame TIFFs are treated as a
// single page; the recognizer reads the first frame.
func (n *Normalizer) singleImage(payload *domain.AttachmentPayload) ([]domain.PageImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(payload.Data))
	if err != nil {
		return nil, &domain.UnsupportedFormatError{MediaType: payload.MediaType, Reason: "unreadable image header", Err: err}
	}
	if want := imageFormats[payload.MediaType]; format != want {
		return nil, &domain.UnsupportedFormatError{
			MediaType: payload.MediaType,
			Reason:    fmt.Sprintf("content is %s, not %s", format, want),
		}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &domain.UnsupportedFormatError{MediaType: payload.MediaType, Reason: "image has no pixels"}
	}
	return []domain.PageImage{{
		PayloadHash: payload.ContentHash,
		Index:       0,
		MediaType:   payload.MediaType,
		Data:        payload.Data,
	}}, nil
}

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// splitConfig writes split pages without object or xref streams so the info
// dictionary and trailer stay uncompressed and can be pinned in place.
func splitConfig() *model.Configuration {
	conf := pdfConfig()
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

var (
	infoDate  = regexp.MustCompile(`/(?:CreationDate|ModDate)\s*\(D:(\d{14})`)
	trailerID = regexp.MustCompile(`/ID\s*\[\s*<([0-9A-Fa-f]+)>\s*<([0-9A-Fa-f]+)>\s*\]`)
)

const pinnedDate = "20000101000000"

// pinVolatile overwrites the write-time dates and the file identifier that
// pdfcpu stamps on every output with values derived from the payload, so the
// same input always yields the same page bytes. Replacements keep their
// length and the xref offsets stay valid.
func pinVolatile(data []byte, contentHash string, page int) []byte {
	out := bytes.Clone(data)
	for _, m := range infoDate.FindAllSubmatchIndex(out, -1) {
		copy(out[m[2]:m[3]], pinnedDate)
	}

	sum := sha256.Sum256([]byte(contentHash + ":" + strconv.Itoa(page)))
	id := hex.EncodeToString(sum[:])
	for _, m := range trailerID.FindAllSubmatchIndex(out, -1) {
		for g := 2; g < len(m); g += 2 {
			n := m[g+1] - m[g]
			copy(out[m[g]:m[g+1]], strings.Repeat(id, n/len(id)+1)[:n])
		}
	}
	return out
}

func (n *Normalizer) splitPDF(payload *domain.AttachmentPayload) (pages []domain.PageImage, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = &domain.UnsupportedFormatError{MediaType: domain.MediaTypePDF, Reason: fmt.Sprintf("pdf processing panicked: %v", r)}
		}
	}()

	workDir, err := os.MkdirTemp(n.tempDir, "normalize-*")
	if err != nil {
		return nil, fmt.Errorf("normalizer.splitPDF: creating work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	base := "doc"
	if len(payload.ContentHash) >= 12 {
		base = payload.ContentHash[:12]
	}
	inPath := filepath.Join(workDir, base+".pdf")
	if err := os.WriteFile(inPath, payload.Data, 0o600); err != nil {
		return nil, fmt.Errorf("normalizer.splitPDF: writing input: %w", err)
	}

	conf := pdfConfig()
	count, err := api.PageCount(bytes.NewReader(payload.Data), conf)
	if err != nil {
		return nil, &domain.UnsupportedFormatError{MediaType: domain.MediaTypePDF, Reason: "unreadable pdf", Err: err}
	}
	if count < 1 {
		return nil, &domain.UnsupportedFormatError{MediaType: domain.MediaTypePDF, Reason: "pdf has no pages"}
	}
	if count > n.maxPages {
		return nil, &domain.UnsupportedFormatError{
			MediaType: domain.MediaTypePDF,
			Reason:    fmt.Sprintf("pdf has %d pages, limit is %d", count, n.maxPages),
		}
	}

	if count == 1 {
		return []domain.PageImage{{
			PayloadHash: payload.ContentHash,
			Index:       0,
			MediaType:   domain.MediaTypePDF,
			Data:        payload.Data,
		}}, nil
	}

	outDir := filepath.Join(workDir, "pages")
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("normalizer.splitPDF: creating out dir: %w", err)
	}
	if err := api.SplitFile(inPath, outDir, 1, splitConfig()); err != nil {
		return nil, &domain.UnsupportedFormatError{MediaType: domain.MediaTypePDF, Reason: "pdf split failed", Err: err}
	}

	files, err := pageFiles(outDir)
	if err != nil {
		return nil, fmt.Errorf("normalizer.splitPDF: %w", err)
	}

	pages = make([]domain.PageImage, 0, count)
	for i := 1; i <= count; i++ {
		name, ok := files[i]
		if !ok {
			return nil, &domain.UnsupportedFormatError{MediaType: domain.MediaTypePDF, Reason: fmt.Sprintf("page %d missing after split", i)}
		}
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("normalizer.splitPDF: reading page %d: %w", i, err)
		}
		pages = append(pages, domain.PageImage{
			PayloadHash: payload.ContentHash,
			Index:       i - 1,
			MediaType:   domain.MediaTypePDF,
			Data:        pinVolatile(data, payload.ContentHash, i),
		})
	}
	return pages, nil
}

// pageFiles maps page numbers to the files written by a span-1 split, which
// are named <base>_<page>.pdf.
func pageFiles(dir string) (map[int]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[int]string, len(entries))
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".pdf")
		idx := strings.LastIndex(name, "_")
		if idx < 0 {
			continue
		}
		page, err := strconv.Atoi(name[idx+1:])
		if err != nil {
			continue
		}
		out[page] = filepath.Join(dir, e.Name())
	}
	return out, nil
}
