// Package fieldextract turns OCR text into a schema-checked invoice record.
//
// The model call is retried with capped exponential backoff while the
// collaborator reports transient failures. A schema-violating answer gets one
// repair round; if that also fails, the violating fields are nulled and the
// result is flagged low-confidence instead of failing the payload.
package fieldextract

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"docxingest/internal/domain"
	"docxingest/internal/logging"
	"docxingest/internal/ocr"
	"docxingest/internal/port"
)

// Options configures an Extractor.
type Options struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	RatePerSecond float64
}

// Extractor wraps a port.FieldExtractor with schema validation and retries.
type Extractor struct {
	fe      port.FieldExtractor
	schema  *Schema
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates an Extractor for the invoice.v1 schema.
func New(fe port.FieldExtractor, opts Options) (*Extractor, error) {
	schema, err := LoadSchema(domain.SchemaVersionV1)
	if err != nil {
		return nil, err
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffCap < opts.BackoffBase {
		opts.BackoffCap = opts.BackoffBase
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Extractor{
		fe:      fe,
		schema:  schema,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     logging.For("fieldextract"),
	}, nil
}

// Extract produces the structured record for one payload. The only errors it
// returns are *domain.ExtractionUnavailableError and context errors wrapped in
// it; bad model output never escapes as an error.
func (e *Extractor) Extract(ctx context.Context, payloadHash string, doc *ocr.Document) (*domain.ExtractionResult, error) {
	input := port.ExtractInput{
		OCRText:       doc.Text(),
		SchemaVersion: e.schema.Version,
		Schema:        e.schema.Source,
	}

	out, err := e.call(ctx, input)
	if err != nil {
		return nil, err
	}
	parsed, violations := e.parse(out.StructuredData)
	repaired := false

	if len(violations) > 0 {
		e.log.Info("schema violations, requesting repair",
			"payload_hash", payloadHash,
			"violations", len(violations),
		)
		input.Correction = describe(violations)
		retryOut, err := e.call(ctx, input)
		if err != nil {
			return nil, err
		}
		retryParsed, retryViolations := e.parse(retryOut.StructuredData)
		// Keep whichever answer is closer to valid.
		if retryParsed != nil && len(retryViolations) <= len(violations) {
			out, parsed, violations = retryOut, retryParsed, retryViolations
		}
		repaired = len(violations) == 0
	}

	result := e.build(payloadHash, parsed, violations)
	result.Repaired = repaired
	result.Model = out.ModelUsed
	result.RawText = input.OCRText
	result.LowConfidence = result.LowConfidence || doc.LowConfidence()

	if len(violations) > 0 {
		e.log.Warn("returning partial result after repair",
			"payload_hash", payloadHash,
			"null_fields", result.NullFields,
			"violations", describe(violations),
		)
	}
	return result, nil
}

// call invokes the collaborator with capped exponential backoff on transient
// failures. Permanent failures are not retried.
func (e *Extractor) call(ctx context.Context, input port.ExtractInput) (*port.ExtractOutput, error) {
	var lastErr error
	attempt := 0
	for attempt < e.opts.MaxAttempts {
		attempt++
		if err := e.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}
		out, err := e.fe.ExtractFields(ctx, input)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || !domain.IsTransient(err) || attempt == e.opts.MaxAttempts {
			break
		}
		delay := e.backoff(attempt, err)
		e.log.Debug("extraction call failed, backing off", "attempt", attempt, "delay", delay, "error", err)
		if !sleepCtx(ctx, delay) {
			lastErr = ctx.Err()
			break
		}
	}
	return nil, &domain.ExtractionUnavailableError{Attempts: attempt, Err: lastErr}
}

// backoff doubles from BackoffBase up to BackoffCap. A provider's Retry-After
// hint wins when it is longer, still bounded by the cap.
func (e *Extractor) backoff(attempt int, err error) time.Duration {
	d := e.opts.BackoffBase
	for i := 1; i < attempt && d < e.opts.BackoffCap; i++ {
		d *= 2
	}
	var transient *domain.TransientError
	if errors.As(err, &transient) && transient.RetryAfter > d {
		d = transient.RetryAfter
	}
	if d > e.opts.BackoffCap {
		d = e.opts.BackoffCap
	}
	return d
}

// parse decodes and schema-checks a raw answer. A nil document means the
// answer held no usable JSON.
func (e *Extractor) parse(raw json.RawMessage) (map[string]any, []Violation) {
	doc, err := decodeResponse(raw)
	if err != nil {
		return nil, []Violation{{Message: "response is not a JSON object: " + err.Error()}}
	}
	return doc, e.schema.Check(doc)
}

// build converts a cleaned document into a result, nulling every field that
// still violates the schema.
func (e *Extractor) build(payloadHash string, doc map[string]any, violations []Violation) *domain.ExtractionResult {
	result := &domain.ExtractionResult{
		PayloadHash:   payloadHash,
		SchemaVersion: e.schema.Version,
		Confidence:    make(map[string]float64, len(domain.FieldOrder)),
		LowConfidence: len(violations) > 0,
	}

	data, _ := doc["data"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	clean := make(map[string]any, len(data))
	for k, v := range data {
		clean[k] = v
	}
	for _, v := range violations {
		if f := v.Field(); f != "" {
			clean[f] = nil
		}
	}

	if b, err := json.Marshal(clean); err == nil {
		if err := json.Unmarshal(b, &result.Fields); err != nil {
			// A type still off after nulling; fall back to an empty record.
			result.Fields = domain.InvoiceFields{}
			result.LowConfidence = true
		}
	}

	scores, _ := doc["confidence_scores"].(map[string]any)
	for _, name := range domain.FieldOrder {
		if isNull(result.Fields, name) {
			result.NullFields = append(result.NullFields, name)
			result.Confidence[name] = 0
			continue
		}
		if f, ok := scores[name].(float64); ok {
			result.Confidence[name] = f
		}
	}
	return result
}

func isNull(f domain.InvoiceFields, name string) bool {
	switch name {
	case domain.FieldInvoiceNumber:
		return f.InvoiceNumber == nil
	case domain.FieldInvoiceDate:
		return f.InvoiceDate == nil
	case domain.FieldVendor:
		return f.Vendor == nil
	case domain.FieldCurrency:
		return f.Currency == nil
	case domain.FieldLineItems:
		return f.LineItems == nil
	case domain.FieldTotal:
		return f.Total == nil
	default:
		return true
	}
}

func describe(violations []Violation) string {
	lines := make([]string, len(violations))
	for i, v := range violations {
		lines[i] = "- " + v.String()
	}
	return strings.Join(lines, "\n")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
