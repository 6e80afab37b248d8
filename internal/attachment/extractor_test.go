package attachment_test

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docxingest/internal/attachment"
	"docxingest/internal/domain"
)

type part struct {
	contentType string
	filename    string
	data        []byte
}

func buildMessage(subject string, parts ...part) []byte {
	var b strings.Builder
	b.WriteString("From: Broker <broker@example.com>\r\n")
	b.WriteString("To: ops@example.com\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: Mon, 02 Mar 2026 10:00:00 +0000\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"OUTER\"\r\n\r\n")
	b.WriteString("--OUTER\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nPlease find the premium invoice attached.\r\n")
	for _, p := range parts {
		b.WriteString("--OUTER\r\n")
		b.WriteString("Content-Type: " + p.contentType + "\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=\"%s\"\r\n\r\n", p.filename))
		b.WriteString(base64.StdEncoding.EncodeToString(p.data) + "\r\n")
	}
	b.WriteString("--OUTER--\r\n")
	return []byte(b.String())
}

func collect(t *testing.T, ex *attachment.Extractor, msg domain.SourceMessage) ([]attachment.Item, error) {
	t.Helper()
	var items []attachment.Item
	for item, err := range ex.Attachments(msg) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

func TestAttachments_YieldsAllowedInOrderAndSkipsOthers(t *testing.T) {
	raw := buildMessage("Policy renewal",
		part{"application/pdf", "invoice-a.pdf", []byte("%PDF-1.4 a")},
		part{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "notes.docx", []byte("PK docx")},
		part{"image/png", "scan.png", []byte("\x89PNG fake")},
	)
	ex := attachment.New(attachment.Options{})

	items, err := collect(t, ex, domain.SourceMessage{ID: "m1", Raw: raw})
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.NotNil(t, items[0].Payload)
	assert.Equal(t, "invoice-a.pdf", items[0].Payload.Filename)
	assert.Equal(t, domain.MediaTypePDF, items[0].Payload.MediaType)
	assert.Equal(t, 0, items[0].Payload.Index)
	assert.Equal(t, domain.ContentHash([]byte("%PDF-1.4 a")), items[0].Payload.ContentHash)

	require.NotNil(t, items[1].Skip)
	assert.Equal(t, "notes.docx", items[1].Skip.Filename)
	assert.Equal(t, 1, items[1].Skip.Index)

	require.NotNil(t, items[2].Payload)
	assert.Equal(t, domain.MediaTypePNG, items[2].Payload.MediaType)
	assert.Equal(t, 2, items[2].Payload.Index)
}

func TestAttachments_OctetStreamFallsBackToExtension(t *testing.T) {
	raw := buildMessage("claim", part{"application/octet-stream", "Invoice.PDF", []byte("%PDF-1.7")})
	ex := attachment.New(attachment.Options{})

	items, err := collect(t, ex, domain.SourceMessage{ID: "m1", Raw: raw})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Payload)
	assert.Equal(t, domain.MediaTypePDF, items[0].Payload.MediaType)
}

func TestAttachments_SameBytesSameHashAcrossMessages(t *testing.T) {
	doc := []byte("%PDF-1.4 identical")
	ex := attachment.New(attachment.Options{})

	a, err := collect(t, ex, domain.SourceMessage{ID: "m1", Raw: buildMessage("a", part{"application/pdf", "x.pdf", doc})})
	require.NoError(t, err)
	b, err := collect(t, ex, domain.SourceMessage{ID: "m2", Raw: buildMessage("b", part{"application/pdf", "y.pdf", doc})})
	require.NoError(t, err)

	assert.Equal(t, a[0].Payload.ContentHash, b[0].Payload.ContentHash)
	assert.NotEqual(t, a[0].Payload.MessageID, b[0].Payload.MessageID)
}

func TestAttachments_MalformedHeader(t *testing.T) {
	ex := attachment.New(attachment.Options{})

	_, err := collect(t, ex, domain.SourceMessage{ID: "bad", Raw: []byte("this line has no colon\r\n\r\nbody")})

	var malformed *domain.MalformedMessageError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "bad", malformed.MessageID)
	assert.Equal(t, domain.ClassStructural, domain.Classify(err))
}

func TestAttachments_MultipartWithoutBoundary(t *testing.T) {
	raw := []byte("Subject: x\r\nContent-Type: multipart/mixed\r\n\r\n--X\r\n")
	ex := attachment.New(attachment.Options{})

	_, err := collect(t, ex, domain.SourceMessage{ID: "m", Raw: raw})

	var malformed *domain.MalformedMessageError
	assert.True(t, errors.As(err, &malformed))
}

func TestAttachments_TruncatedMultipartYieldsErrorAfterGoodParts(t *testing.T) {
	raw := buildMessage("x", part{"application/pdf", "ok.pdf", []byte("%PDF ok")})
	raw = []byte(strings.TrimSuffix(string(raw), "--OUTER--\r\n") + "--OUTER\r\nContent-Type: application/pdf\r\n\r\npartial")
	ex := attachment.New(attachment.Options{})

	items, err := collect(t, ex, domain.SourceMessage{ID: "m", Raw: raw})

	require.Len(t, items, 1)
	assert.Equal(t, "ok.pdf", items[0].Payload.Filename)
	var malformed *domain.MalformedMessageError
	assert.True(t, errors.As(err, &malformed))
}

func TestAttachments_StopsWhenConsumerBreaks(t *testing.T) {
	raw := buildMessage("x",
		part{"application/pdf", "1.pdf", []byte("%PDF 1")},
		part{"application/pdf", "2.pdf", []byte("%PDF 2")},
	)
	ex := attachment.New(attachment.Options{})

	seen := 0
	for item, err := range ex.Attachments(domain.SourceMessage{ID: "m", Raw: raw}) {
		require.NoError(t, err)
		require.NotNil(t, item.Payload)
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestAttachments_NestedMultipartAndEncodedFilename(t *testing.T) {
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF nested"))
	raw := "Subject: =?UTF-8?Q?Pr=C3=A4mie?=\r\n" +
		"Content-Type: multipart/mixed; boundary=\"A\"\r\n\r\n" +
		"--A\r\nContent-Type: multipart/alternative; boundary=\"B\"\r\n\r\n" +
		"--B\r\nContent-Type: text/plain\r\n\r\nhello\r\n" +
		"--B\r\nContent-Type: text/html\r\n\r\n<p>hello</p>\r\n" +
		"--B--\r\n" +
		"--A\r\nContent-Type: application/pdf; name=\"=?UTF-8?Q?Rechnung_M=C3=A4rz.pdf?=\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n\r\n" + pdf + "\r\n" +
		"--A--\r\n"
	ex := attachment.New(attachment.Options{})

	items, err := collect(t, ex, domain.SourceMessage{ID: "m", Raw: []byte(raw)})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Rechnung März.pdf", items[0].Payload.Filename)
	assert.Equal(t, []byte("%PDF nested"), items[0].Payload.Data)
}

func TestAttachments_ConfiguredAllowList(t *testing.T) {
	raw := buildMessage("x",
		part{"application/pdf", "a.pdf", []byte("%PDF")},
		part{"image/jpeg", "b.jpg", []byte("\xff\xd8\xff")},
	)
	ex := attachment.New(attachment.Options{AllowedMediaTypes: []string{"image/jpeg"}})

	items, err := collect(t, ex, domain.SourceMessage{ID: "m", Raw: raw})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.NotNil(t, items[0].Skip)
	assert.NotNil(t, items[1].Payload)
}

func TestAttachments_OversizedPartIsSkipped(t *testing.T) {
	raw := buildMessage("x", part{"application/pdf", "big.pdf", []byte(strings.Repeat("x", 64))})
	ex := attachment.New(attachment.Options{MaxPartBytes: 16})

	items, err := collect(t, ex, domain.SourceMessage{ID: "m", Raw: raw})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Skip)
	assert.Contains(t, items[0].Skip.Reason, "larger than")
}

func TestMatchesSubject(t *testing.T) {
	ex := attachment.New(attachment.Options{SubjectKeywords: []string{"insurance", "Premium"}})

	assert.True(t, ex.MatchesSubject("Your INSURANCE renewal"))
	assert.True(t, ex.MatchesSubject("=?UTF-8?Q?premium_notice?="))
	assert.False(t, ex.MatchesSubject("Lunch on Friday"))

	all := attachment.New(attachment.Options{})
	assert.True(t, all.MatchesSubject("anything"))
}

func TestMetadata(t *testing.T) {
	raw := buildMessage("Premium invoice", part{"application/pdf", "a.pdf", []byte("%PDF")})
	ex := attachment.New(attachment.Options{})

	meta, err := ex.Metadata(domain.SourceMessage{ID: "m1", Raw: raw, ArrivedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "m1", meta.MessageID)
	assert.Equal(t, "Broker <broker@example.com>", meta.From)
	assert.Equal(t, "ops@example.com", meta.To)
	assert.Equal(t, "Premium invoice", meta.Subject)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), meta.Date)
	assert.Equal(t, "Please find the premium invoice attached.", meta.Body)
}
