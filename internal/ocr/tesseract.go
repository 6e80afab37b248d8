package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"docxingest/internal/domain"
)

// TesseractOptions configures a TesseractRecognizer.
type TesseractOptions struct {
	Binary   string
	Pdftoppm string
	Language string
	DPI      int
	TempDir  string
}

// TesseractRecognizer runs the tesseract CLI. PDF pages are rasterized with
// pdftoppm first.
type TesseractRecognizer struct {
	runner Runner
	opts   TesseractOptions
}

// NewTesseractRecognizer creates a recognizer. A nil runner means ExecRunner.
func NewTesseractRecognizer(runner Runner, opts TesseractOptions) *TesseractRecognizer {
	if runner == nil {
		runner = ExecRunner{}
	}
	if opts.Binary == "" {
		opts.Binary = "tesseract"
	}
	if opts.Pdftoppm == "" {
		opts.Pdftoppm = "pdftoppm"
	}
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.DPI <= 0 {
		opts.DPI = 300
	}
	return &TesseractRecognizer{runner: runner, opts: opts}
}

func (t *TesseractRecognizer) Recognize(ctx context.Context, page domain.PageImage) (string, float64, error) {
	dir, err := os.MkdirTemp(t.opts.TempDir, "ocr-*")
	if err != nil {
		return "", 0, fmt.Errorf("tesseract: creating work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "page"+domain.ExtensionForMediaType(page.MediaType))
	if err := os.WriteFile(input, page.Data, 0o600); err != nil {
		return "", 0, fmt.Errorf("tesseract: writing page: %w", err)
	}

	if page.MediaType == domain.MediaTypePDF {
		base := filepath.Join(dir, "raster")
		_, errb, err := t.runner.Run(ctx, t.opts.Pdftoppm,
			"-r", strconv.Itoa(t.opts.DPI), "-png", "-singlefile", input, base)
		if err != nil {
			return "", 0, classifyExecError(ctx, "pdftoppm", err, errb)
		}
		input = base + ".png"
	}

	// tesseract <file> stdout -l <lang> tsv
	out, errb, err := t.runner.Run(ctx, t.opts.Binary, input, "stdout", "-l", t.opts.Language, "tsv")
	if err != nil {
		return "", 0, classifyExecError(ctx, "tesseract", err, errb)
	}

	text, engineConf := parseTSV(string(out))
	return text, blend(engineConf, heuristicConfidence(text)), nil
}

// classifyExecError marks timeouts and killed processes as transient. A
// missing binary or a non-zero exit on bad input will not improve on retry.
func classifyExecError(ctx context.Context, op string, err error, stderr []byte) error {
	wrapped := fmt.Errorf("%s: %w: %s", op, err, truncate(strings.TrimSpace(string(stderr)), 512))
	if errors.Is(err, exec.ErrNotFound) {
		return wrapped
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return &domain.TransientError{Op: op, Err: wrapped}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && !exitErr.Exited() {
		return &domain.TransientError{Op: op, Err: wrapped}
	}
	return wrapped
}

// parseTSV rebuilds line text from tesseract TSV output and returns the mean
// word confidence in [0, 1].
func parseTSV(tsv string) (string, float64) {
	var (
		b        strings.Builder
		lastLine string
		sum      float64
		n        int
	)
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}
		lineKey := cols[2] + "/" + cols[3] + "/" + cols[4]
		switch {
		case b.Len() == 0:
		case lineKey != lastLine:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
		b.WriteString(word)
		lastLine = lineKey

		if conf, err := strconv.ParseFloat(cols[10], 64); err == nil && conf >= 0 {
			sum += conf
			n++
		}
	}
	if n == 0 {
		return b.String(), 0
	}
	return b.String(), sum / float64(n) / 100.0
}
