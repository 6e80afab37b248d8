// Package maildir reads messages from a Maildir directory (or a flat
// directory of .eml files) without ever moving or deleting them.
package maildir

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"docxingest/internal/domain"
	"docxingest/internal/logging"
)

const defaultDebounce = 500 * time.Millisecond

// Mailbox lists messages stored under Dir.
type Mailbox struct {
	dir      string
	maxBytes int64
	debounce time.Duration
	decoder  *mime.WordDecoder
	log      *slog.Logger
}

// Options configures a Mailbox.
type Options struct {
	Dir string
	// MaxMessageBytes skips larger files. Zero means no limit.
	MaxMessageBytes int64
	Debounce        time.Duration
}

// New creates a Mailbox rooted at opts.Dir.
func New(opts Options) *Mailbox {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	return &Mailbox{
		dir:      opts.Dir,
		maxBytes: opts.MaxMessageBytes,
		debounce: opts.Debounce,
		decoder:  new(mime.WordDecoder),
		log:      logging.For("mailbox.maildir"),
	}
}

// folders returns the directories holding message files: new/ and cur/
// for a Maildir, otherwise the root itself.
func (m *Mailbox) folders() []string {
	var out []string
	for _, sub := range []string{"new", "cur"} {
		p := filepath.Join(m.dir, sub)
		if fi, err := os.Stat(p); err == nil && fi.IsDir() {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = append(out, m.dir)
	}
	return out
}

// ListUnprocessedMessages returns messages whose file changed at or after
// since, oldest first. Unreadable files are logged and skipped.
func (m *Mailbox) ListUnprocessedMessages(ctx context.Context, since time.Time) ([]domain.SourceMessage, error) {
	if _, err := os.Stat(m.dir); err != nil {
		return nil, &domain.TransientError{Op: "maildir.List", Err: err}
	}

	seen := make(map[string]bool)
	var msgs []domain.SourceMessage
	for _, folder := range m.folders() {
		entries, err := os.ReadDir(folder)
		if err != nil {
			return nil, &domain.TransientError{Op: "maildir.List", Err: err}
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(since) {
				continue
			}
			if m.maxBytes > 0 && info.Size() > m.maxBytes {
				m.log.Warn("skipping oversized message", "file", e.Name(), "size", info.Size())
				continue
			}
			id := messageID(e.Name())
			if seen[id] {
				continue
			}
			msg, err := m.read(filepath.Join(folder, e.Name()), id, info)
			if err != nil {
				m.log.Warn("skipping unreadable message", "file", e.Name(), "error", err)
				continue
			}
			seen[id] = true
			msgs = append(msgs, msg)
		}
	}

	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].ArrivedAt.Equal(msgs[j].ArrivedAt) {
			return msgs[i].ArrivedAt.Before(msgs[j].ArrivedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

func (m *Mailbox) read(path, id string, info fs.FileInfo) (domain.SourceMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.SourceMessage{}, err
	}
	msg := domain.SourceMessage{ID: id, ArrivedAt: info.ModTime().UTC(), Raw: raw}
	// Header problems are reported later by the attachment extractor.
	if parsed, err := mail.ReadMessage(bytes.NewReader(raw)); err == nil {
		msg.Sender = parsed.Header.Get("From")
		msg.Subject = m.decode(parsed.Header.Get("Subject"))
	}
	return msg, nil
}

func (m *Mailbox) decode(s string) string {
	if d, err := m.decoder.DecodeHeader(s); err == nil {
		return d
	}
	return s
}

// messageID strips the Maildir info suffix so a message keeps its ID when
// a mail client moves it from new/ to cur/.
func messageID(name string) string {
	if i := strings.Index(name, ":2,"); i > 0 {
		return name[:i]
	}
	return strings.TrimSuffix(name, ".eml")
}

// Watch calls notify after new files settle in the mailbox, until ctx ends.
func (m *Mailbox) Watch(ctx context.Context, notify func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("maildir.Watch: %w", err)
	}
	defer w.Close()

	for _, folder := range m.folders() {
		if err := w.Add(folder); err != nil {
			return fmt.Errorf("maildir.Watch: adding %s: %w", folder, err)
		}
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(m.debounce, notify)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Error("watcher error", "error", err)
		}
	}
}
