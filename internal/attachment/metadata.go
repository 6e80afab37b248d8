package attachment

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/mail"
	"strings"
	"unicode/utf8"

	"docxingest/internal/domain"
)

const maxBodyChars = 10000

// Metadata returns the decoded headers and the first plain-text body of msg.
// The body is truncated to a fixed number of characters.
func (e *Extractor) Metadata(msg domain.SourceMessage) (*domain.MessageMetadata, error) {
	m, err := mail.ReadMessage(bytes.NewReader(msg.Raw))
	if err != nil {
		return nil, &domain.MalformedMessageError{MessageID: msg.ID, Err: err}
	}

	meta := &domain.MessageMetadata{
		MessageID: msg.ID,
		From:      e.decodeWords(m.Header.Get("From")),
		To:        e.decodeWords(m.Header.Get("To")),
		Cc:        e.decodeWords(m.Header.Get("Cc")),
		Subject:   e.decodeWords(m.Header.Get("Subject")),
	}
	if date, err := m.Header.Date(); err == nil {
		meta.Date = date.UTC()
	} else {
		meta.Date = msg.ArrivedAt.UTC()
	}

	body, err := firstTextBody(m.Header, m.Body, 0)
	if err != nil {
		return nil, &domain.MalformedMessageError{MessageID: msg.ID, Err: err}
	}
	meta.Body = truncate(strings.TrimSpace(body), maxBodyChars)
	return meta, nil
}

func firstTextBody(h header, body io.Reader, depth int) (string, error) {
	if depth > maxNestingDepth {
		return "", nil
	}
	mediaType, params, err := parseContentType(h.Get("Content-Type"))
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return "", nil
			}
			if err != nil {
				return "", err
			}
			text, err := firstTextBody(part.Header, part, depth+1)
			if err != nil || text != "" {
				return text, err
			}
		}
	}
	if mediaType != "text/plain" || strings.HasPrefix(strings.ToLower(h.Get("Content-Disposition")), "attachment") {
		return "", nil
	}
	data, err := io.ReadAll(io.LimitReader(decodeTransfer(h, body), maxBodyChars*4))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
