// Package s3inbox reads raw messages that an inbound mail service (such as
// SES receipt rules) drops under an S3 prefix.
package s3inbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"docxingest/internal/domain"
	"docxingest/internal/logging"
)

// API is the subset of the S3 client the inbox uses.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Inbox lists objects under Bucket/Prefix as messages.
type Inbox struct {
	api      API
	bucket   string
	prefix   string
	maxBytes int64
	log      *slog.Logger
}

// New creates an Inbox. maxBytes of zero means no size limit.
func New(api API, bucket, prefix string, maxBytes int64) *Inbox {
	return &Inbox{api: api, bucket: bucket, prefix: prefix, maxBytes: maxBytes, log: logging.For("mailbox.s3inbox")}
}

// ListUnprocessedMessages returns objects modified at or after since, oldest
// first. Objects are read only, never tagged, moved or deleted.
func (in *Inbox) ListUnprocessedMessages(ctx context.Context, since time.Time) ([]domain.SourceMessage, error) {
	p := s3.NewListObjectsV2Paginator(in.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(in.bucket),
		Prefix: aws.String(in.prefix),
	})

	var msgs []domain.SourceMessage
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, &domain.TransientError{Op: "s3inbox.List", Err: err}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			modified := aws.ToTime(obj.LastModified)
			if modified.Before(since) || aws.ToInt64(obj.Size) == 0 {
				continue
			}
			if in.maxBytes > 0 && aws.ToInt64(obj.Size) > in.maxBytes {
				in.log.Warn("skipping oversized message", "key", key, "size", aws.ToInt64(obj.Size))
				continue
			}
			raw, err := in.get(ctx, key)
			if err != nil {
				return nil, &domain.TransientError{Op: "s3inbox.Get", Err: err}
			}
			msg := domain.SourceMessage{ID: key, ArrivedAt: modified.UTC(), Raw: raw}
			if parsed, err := mail.ReadMessage(bytes.NewReader(raw)); err == nil {
				msg.Sender = parsed.Header.Get("From")
				msg.Subject = parsed.Header.Get("Subject")
			}
			msgs = append(msgs, msg)
		}
	}

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ArrivedAt.Before(msgs[j].ArrivedAt) })
	return msgs, nil
}

func (in *Inbox) get(ctx context.Context, key string) ([]byte, error) {
	out, err := in.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(in.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", key, err)
	}
	return data, nil
}
