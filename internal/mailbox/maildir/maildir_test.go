package maildir_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docxingest/internal/mailbox/maildir"
)

func writeMessage(t *testing.T, path, subject string, mtime time.Time) {
	t.Helper()
	raw := "From: broker@example.com\r\nSubject: " + subject + "\r\n\r\nbody\r\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestList_MaildirLayout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "new"), 0o700))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "cur"), 0o700))
	now := time.Now()
	writeMessage(t, filepath.Join(dir, "cur", "200.host:2,S"), "second", now.Add(-time.Hour))
	writeMessage(t, filepath.Join(dir, "new", "100.host"), "first", now.Add(-2*time.Hour))
	writeMessage(t, filepath.Join(dir, "new", "050.host"), "too old", now.Add(-100*time.Hour))

	mb := maildir.New(maildir.Options{Dir: dir})
	msgs, err := mb.ListUnprocessedMessages(context.Background(), now.Add(-72*time.Hour))

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "100.host", msgs[0].ID)
	assert.Equal(t, "first", msgs[0].Subject)
	assert.Equal(t, "broker@example.com", msgs[0].Sender)
	assert.Equal(t, "200.host", msgs[1].ID)
	assert.NotEmpty(t, msgs[1].Raw)
}

func TestList_FlatDirectoryAndStableIDs(t *testing.T) {
	dir := t.TempDir()
	writeMessage(t, filepath.Join(dir, "a.eml"), "=?UTF-8?Q?Pr=C3=A4mie?=", time.Now())

	mb := maildir.New(maildir.Options{Dir: dir})
	first, err := mb.ListUnprocessedMessages(context.Background(), time.Time{})
	require.NoError(t, err)
	second, err := mb.ListUnprocessedMessages(context.Background(), time.Time{})
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.Equal(t, "a", first[0].ID)
	assert.Equal(t, "Prämie", first[0].Subject)
	assert.Equal(t, first[0].ID, second[0].ID)

	// The mailbox is never mutated.
	_, err = os.Stat(filepath.Join(dir, "a.eml"))
	assert.NoError(t, err)
}

func TestList_SkipsOversized(t *testing.T) {
	dir := t.TempDir()
	writeMessage(t, filepath.Join(dir, "big.eml"), "big", time.Now())

	mb := maildir.New(maildir.Options{Dir: dir, MaxMessageBytes: 10})
	msgs, err := mb.ListUnprocessedMessages(context.Background(), time.Time{})

	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestList_MissingDirIsTransient(t *testing.T) {
	mb := maildir.New(maildir.Options{Dir: filepath.Join(t.TempDir(), "nope")})

	_, err := mb.ListUnprocessedMessages(context.Background(), time.Time{})

	assert.Error(t, err)
}

func TestWatch_NotifiesOnNewFile(t *testing.T) {
	dir := t.TempDir()
	mb := maildir.New(maildir.Options{Dir: dir, Debounce: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() { done <- mb.Watch(ctx, func() { calls.Add(1) }) }()

	require.Eventually(t, func() bool {
		writeMessage(t, filepath.Join(dir, "n.eml"), "x", time.Now())
		return calls.Load() > 0
	}, 2*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
