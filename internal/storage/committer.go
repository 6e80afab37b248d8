// Package storage commits artifact sets into a single container of the
// configured object store and reports success per artifact.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"docxingest/internal/config"
	"docxingest/internal/domain"
	"docxingest/internal/logging"
	"docxingest/internal/port"
	"docxingest/internal/storage/gcs"
	"docxingest/internal/storage/s3"
)

const defaultUploadConcurrency = 3

// Artifact is one object to write under a container.
type Artifact struct {
	Kind        domain.ArtifactKind
	Name        string
	ContentType string
	Data        []byte
	Metadata    map[string]string
	// Replace overwrites an existing object. Artifacts are create-only
	// otherwise, and an object already at the key counts as written.
	Replace bool
}

// ArtifactResult is the outcome of writing one artifact.
type ArtifactResult struct {
	Kind     domain.ArtifactKind
	Location string
	Err      error
}

// Committer writes artifact sets to one bucket.
type Committer struct {
	store   port.ObjectStorage
	bucket  string
	timeout time.Duration
	log     *slog.Logger
}

// NewCommitter creates a Committer. timeout bounds each object write; zero means no bound.
func NewCommitter(store port.ObjectStorage, bucket string, timeout time.Duration) *Committer {
	return &Committer{store: store, bucket: bucket, timeout: timeout, log: logging.For("storage")}
}

// Bucket returns the bucket artifacts are written to.
func (c *Committer) Bucket() string { return c.bucket }

// Commit uploads artifacts concurrently under container. The result slice
// is parallel to artifacts; one failed artifact never cancels the others.
func (c *Committer) Commit(ctx context.Context, container string, artifacts []Artifact) []ArtifactResult {
	results := make([]ArtifactResult, len(artifacts))

	var g errgroup.Group
	g.SetLimit(defaultUploadConcurrency)
	for i, a := range artifacts {
		g.Go(func() error {
			results[i] = c.put(ctx, container, a)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Committer) put(ctx context.Context, container string, a Artifact) ArtifactResult {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	key := path.Join(container, a.Name)
	out, err := c.store.Upload(ctx, port.UploadInput{
		Bucket:      c.bucket,
		Key:         key,
		Body:        bytes.NewReader(a.Data),
		ContentType: a.ContentType,
		Size:        int64(len(a.Data)),
		Metadata:    withKind(a.Metadata, a.Kind),
		CreateOnly:  !a.Replace,
	})
	if err != nil {
		return ArtifactResult{Kind: a.Kind, Err: &domain.TransientError{Op: "storage.Upload " + key, Err: err}}
	}
	if out.Existed {
		c.log.Info("artifact already present", "key", key)
	}
	return ArtifactResult{Kind: a.Kind, Location: out.Location}
}

func withKind(meta map[string]string, kind domain.ArtifactKind) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["artifact-kind"] = string(kind)
	return out
}

// PresignedURL returns a time-limited download link for key.
func (c *Committer) PresignedURL(ctx context.Context, key string, expirySeconds int64) (string, error) {
	return c.store.GetPresignedURL(ctx, c.bucket, key, expirySeconds)
}

// NewObjectStorage builds the backend selected by storage.provider.
func NewObjectStorage(ctx context.Context, cfg *config.Config) (port.ObjectStorage, error) {
	switch cfg.Storage.Provider {
	case "s3":
		return s3.NewS3Client(&cfg.S3)
	case "gcs":
		return gcs.NewGCSClient(ctx, &cfg.GCS)
	default:
		return nil, fmt.Errorf("storage.NewObjectStorage: unknown provider %q", cfg.Storage.Provider)
	}
}
