// Package gcs stores artifacts in Google Cloud Storage. Writes are
// create-only, so a retried upload of an object that already landed is a no-op.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"docxingest/internal/config"
	"docxingest/internal/logging"
	"docxingest/internal/port"
)

type gcsClient struct {
	client *storage.Client
	log    *slog.Logger
}

// NewGCSClient creates a GCS-backed ObjectStorage implementation.
func NewGCSClient(ctx context.Context, cfg *config.GCSConfig) (port.ObjectStorage, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs.NewGCSClient: %w", err)
	}
	return NewFromClient(client), nil
}

// NewFromClient wraps an existing storage client.
func NewFromClient(client *storage.Client) port.ObjectStorage {
	return &gcsClient{client: client, log: logging.For("storage.gcs")}
}

func (c *gcsClient) Upload(ctx context.Context, input port.UploadInput) (*port.UploadOutput, error) {
	obj := c.client.Bucket(input.Bucket).Object(input.Key)
	if input.CreateOnly {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	w := obj.NewWriter(ctx)
	w.ContentType = input.ContentType
	w.Metadata = input.Metadata

	location := fmt.Sprintf("gs://%s/%s", input.Bucket, input.Key)
	existing := func() (*port.UploadOutput, error) {
		c.log.Info("object already exists", "key", input.Key)
		return &port.UploadOutput{Location: location, Existed: true}, nil
	}

	if _, err := io.Copy(w, input.Body); err != nil {
		_ = w.Close()
		if alreadyExists(err) {
			return existing()
		}
		return nil, fmt.Errorf("gcs upload: %w", err)
	}
	if err := w.Close(); err != nil {
		if alreadyExists(err) {
			return existing()
		}
		return nil, fmt.Errorf("gcs upload: finalizing: %w", err)
	}

	out := &port.UploadOutput{Location: location}
	if attrs := w.Attrs(); attrs != nil {
		out.ETag = attrs.Etag
	}
	return out, nil
}

func (c *gcsClient) GetPresignedURL(_ context.Context, bucket, key string, expirySeconds int64) (string, error) {
	url, err := c.client.Bucket(bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(time.Duration(expirySeconds) * time.Second),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("gcs presign: %w", err)
	}
	return url, nil
}

// alreadyExists reports a failed DoesNotExist precondition.
func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
