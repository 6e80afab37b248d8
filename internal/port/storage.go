package port

import (
	"context"
	"io"
)

// UploadInput describes one object write.
type UploadInput struct {
	Bucket      string
	Key         string
	Body        io.Reader
	ContentType string
	Size        int64
	// Metadata is stored as user metadata on the object.
	Metadata map[string]string
	// CreateOnly writes the object only if the key is free. An existing
	// object is reported through UploadOutput.Existed, not as an error.
	CreateOnly bool
}

// UploadOutput contains the result of a successful upload.
type UploadOutput struct {
	Location string
	ETag     string
	Existed  bool
}

// ObjectStorage is the archive the pipeline commits artifacts into.
type ObjectStorage interface {
	Upload(ctx context.Context, input UploadInput) (*UploadOutput, error)
	GetPresignedURL(ctx context.Context, bucket, key string, expirySeconds int64) (string, error)
}
