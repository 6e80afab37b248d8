// Package upload commits a validated record with its audit text and the
// original document, then marks the ledger.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"docxingest/internal/domain"
	"docxingest/internal/logging"
	"docxingest/internal/storage"
	"docxingest/internal/validator"
)

const (
	defaultMaxAttempts     = 3
	defaultBackoffBase     = time.Second
	defaultStatusThreshold = 0.5
)

// Recorder is the ledger write the orchestrator performs after a full commit.
type Recorder interface {
	Record(ctx context.Context, hash, location string) error
}

// Options configures an Orchestrator.
type Options struct {
	Prefix      string
	MaxAttempts int
	BackoffBase time.Duration
	// ConfidenceThreshold marks fields at or below it as unsure in record.json.
	ConfidenceThreshold float64
}

// Orchestrator writes the three payload artifacts into one container.
type Orchestrator struct {
	committer *storage.Committer
	ledger    Recorder
	opts      Options
	now       func() time.Time
	log       *slog.Logger
}

// New creates an Orchestrator.
func New(committer *storage.Committer, ledger Recorder, opts Options) *Orchestrator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = defaultStatusThreshold
	}
	return &Orchestrator{
		committer: committer,
		ledger:    ledger,
		opts:      opts,
		now:       time.Now,
		log:       logging.For("upload"),
	}
}

// Record is the content of record.json.
type Record struct {
	BatchID       uuid.UUID                         `json:"batch_id"`
	ContentHash   string                            `json:"content_hash"`
	MessageID     string                            `json:"message_id"`
	Filename      string                            `json:"filename"`
	MediaType     string                            `json:"media_type"`
	Extraction    *domain.ExtractionResult          `json:"extraction"`
	Verdict       domain.ValidationVerdict          `json:"verdict"`
	FieldStatuses map[string]*validator.FieldStatus `json:"field_statuses"`
	Message       *domain.MessageMetadata           `json:"message,omitempty"`
	CreatedAt     time.Time                         `json:"created_at"`
}

// BatchContainer returns the container every payload of batch is written under.
func (o *Orchestrator) BatchContainer(batch uuid.UUID) string {
	return path.Join(o.opts.Prefix, batch.String())
}

// Container returns the per-payload container path.
func (o *Orchestrator) Container(batch uuid.UUID, hash string) string {
	short := hash
	if len(short) > 12 {
		short = short[:12]
	}
	return path.Join(o.BatchContainer(batch), short)
}

// Commit writes record.json, audit.txt and the original document, retrying
// only the artifacts that failed. The ledger is recorded once, after every
// artifact is stored. An exhausted retry budget returns *domain.CommitError
// and leaves the ledger untouched.
func (o *Orchestrator) Commit(
	ctx context.Context,
	batch uuid.UUID,
	result *domain.ExtractionResult,
	verdict domain.ValidationVerdict,
	payload *domain.AttachmentPayload,
	meta *domain.MessageMetadata,
) (string, error) {
	if verdict.IsRejected() {
		return "", fmt.Errorf("upload.Commit: refusing rejected payload %s", payload.ContentHash)
	}

	container := o.Container(batch, payload.ContentHash)
	artifacts, err := o.artifacts(batch, result, verdict, payload, meta)
	if err != nil {
		return "", fmt.Errorf("upload.Commit: %w", err)
	}

	pending := artifacts
	for attempt := 1; ; attempt++ {
		results := o.committer.Commit(ctx, container, pending)

		var failed []storage.Artifact
		var lastErr error
		for i, r := range results {
			if r.Err != nil {
				failed = append(failed, pending[i])
				lastErr = r.Err
			}
		}
		if len(failed) == 0 {
			break
		}
		if attempt >= o.opts.MaxAttempts || ctx.Err() != nil {
			o.log.Error("commit incomplete",
				"container", container,
				"attempts", attempt,
				"missing", len(failed),
				"error", lastErr,
			)
			return "", &domain.CommitError{Container: container, Missing: kinds(failed), Err: lastErr}
		}

		o.log.Warn("retrying missing artifacts",
			"container", container,
			"attempt", attempt,
			"missing", kinds(failed),
			"error", lastErr,
		)
		if err := sleepCtx(ctx, o.opts.BackoffBase<<(attempt-1)); err != nil {
			return "", &domain.CommitError{Container: container, Missing: kinds(failed), Err: err}
		}
		pending = failed
	}

	location := o.committer.Bucket() + "/" + container
	if err := o.ledger.Record(ctx, payload.ContentHash, location); err != nil {
		var dup *domain.DuplicateCommitError
		if errors.As(err, &dup) {
			o.log.Info("payload committed concurrently by a peer",
				"content_hash", payload.ContentHash,
				"ledger_location", dup.Location,
			)
			return dup.Location, nil
		}
		return "", &domain.TransientError{Op: "upload.Commit: recording ledger", Err: err}
	}

	o.log.Info("payload committed", "content_hash", payload.ContentHash, "location", location)
	return location, nil
}

// PutBatchFile uploads a batch-level file such as the report and returns a
// presigned link when expirySeconds is positive, else its storage location.
func (o *Orchestrator) PutBatchFile(ctx context.Context, batch uuid.UUID, name, contentType string, data []byte, expirySeconds int64) (string, error) {
	container := o.BatchContainer(batch)
	res := o.committer.Commit(ctx, container, []storage.Artifact{{
		Kind: domain.ArtifactKind("report"), Name: name, ContentType: contentType, Data: data, Replace: true,
	}})[0]
	if res.Err != nil {
		return "", fmt.Errorf("upload.PutBatchFile: %w", res.Err)
	}
	if expirySeconds <= 0 {
		return res.Location, nil
	}
	url, err := o.committer.PresignedURL(ctx, path.Join(container, name), expirySeconds)
	if err != nil {
		o.log.Warn("presigning batch file failed", "name", name, "error", err)
		return res.Location, nil
	}
	return url, nil
}

func (o *Orchestrator) artifacts(
	batch uuid.UUID,
	result *domain.ExtractionResult,
	verdict domain.ValidationVerdict,
	payload *domain.AttachmentPayload,
	meta *domain.MessageMetadata,
) ([]storage.Artifact, error) {
	rec := Record{
		BatchID:       batch,
		ContentHash:   payload.ContentHash,
		MessageID:     payload.MessageID,
		Filename:      payload.Filename,
		MediaType:     payload.MediaType,
		Extraction:    result,
		Verdict:       verdict,
		FieldStatuses: validator.ComputeFieldStatuses(verdict.Issues, result.NullFields, result.Confidence, o.opts.ConfidenceThreshold),
		Message:       meta,
		CreatedAt:     o.now().UTC(),
	}
	recordJSON, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling record: %w", err)
	}

	byKind := map[domain.ArtifactKind]storage.Artifact{
		domain.ArtifactOriginal: {
			Kind:        domain.ArtifactOriginal,
			Name:        "original" + domain.ExtensionForMediaType(payload.MediaType),
			ContentType: payload.MediaType,
			Data:        payload.Data,
		},
		domain.ArtifactAudit: {
			Kind:        domain.ArtifactAudit,
			Name:        "audit.txt",
			ContentType: "text/plain; charset=utf-8",
			Data:        []byte(AuditText(result, verdict, payload, meta)),
		},
		domain.ArtifactRecord: {
			Kind:        domain.ArtifactRecord,
			Name:        "record.json",
			ContentType: "application/json",
			Data:        recordJSON,
		},
	}
	objMeta := map[string]string{"content-hash": payload.ContentHash, "batch-id": batch.String()}
	out := make([]storage.Artifact, 0, len(domain.ArtifactKinds))
	for _, k := range domain.ArtifactKinds {
		a := byKind[k]
		a.Metadata = objMeta
		out = append(out, a)
	}
	return out, nil
}

// AuditText renders the human-readable audit artifact: message metadata,
// verdict issues, then the OCR text with its page markers.
func AuditText(
	result *domain.ExtractionResult,
	verdict domain.ValidationVerdict,
	payload *domain.AttachmentPayload,
	meta *domain.MessageMetadata,
) string {
	var b strings.Builder
	fmt.Fprintf(&b, "content_hash: %s\n", payload.ContentHash)
	fmt.Fprintf(&b, "filename: %s\n", payload.Filename)
	fmt.Fprintf(&b, "media_type: %s\n", payload.MediaType)
	if meta != nil {
		fmt.Fprintf(&b, "message_id: %s\n", meta.MessageID)
		fmt.Fprintf(&b, "from: %s\n", meta.From)
		fmt.Fprintf(&b, "to: %s\n", meta.To)
		if meta.Cc != "" {
			fmt.Fprintf(&b, "cc: %s\n", meta.Cc)
		}
		fmt.Fprintf(&b, "subject: %s\n", meta.Subject)
		if !meta.Date.IsZero() {
			fmt.Fprintf(&b, "date: %s\n", meta.Date.Format(time.RFC3339))
		}
	}
	fmt.Fprintf(&b, "model: %s\n", result.Model)
	fmt.Fprintf(&b, "verdict: %s\n", verdict.Outcome)
	if len(verdict.Issues) > 0 {
		b.WriteString("\nwarnings:\n")
		for _, is := range verdict.Issues {
			fmt.Fprintf(&b, "- [%s] %s\n", is.Severity, is.Message)
		}
	}
	if meta != nil && meta.Body != "" {
		b.WriteString("\nmessage body:\n")
		b.WriteString(meta.Body)
		b.WriteString("\n")
	}
	b.WriteString("\nocr text:\n")
	b.WriteString(result.RawText)
	if !strings.HasSuffix(result.RawText, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func kinds(artifacts []storage.Artifact) []domain.ArtifactKind {
	out := make([]domain.ArtifactKind, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.Kind
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
