package port

import (
	"context"
	"time"

	"docxingest/internal/domain"
)

// Mailbox lists messages that arrived since a point in time. Implementations never
// mark, move or delete messages; deduplication happens downstream on content hash.
type Mailbox interface {
	ListUnprocessedMessages(ctx context.Context, since time.Time) ([]domain.SourceMessage, error)
}

// MailboxWatcher is implemented by mailboxes that can signal new arrivals.
type MailboxWatcher interface {
	Watch(ctx context.Context, notify func()) error
}
