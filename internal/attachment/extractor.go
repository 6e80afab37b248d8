// Package attachment walks raw RFC 5322 messages and yields their document
// attachments one part at a time.
package attachment

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"path/filepath"
	"strings"

	"docxingest/internal/domain"
)

const (
	defaultMaxPartBytes = 25 << 20
	maxNestingDepth     = 16
)

// Item is one attachment outcome. Exactly one of Payload and Skip is set.
type Item struct {
	Payload *domain.AttachmentPayload
	Skip    *domain.SkippedPart
}

// Options configures an Extractor.
type Options struct {
	AllowedMediaTypes []string
	SubjectKeywords   []string
	MaxPartBytes      int64
}

// Extractor yields allow-listed attachments from source messages.
type Extractor struct {
	allowed      map[string]bool
	keywords     []string
	maxPartBytes int64
	decoder      *mime.WordDecoder
}

// New creates an Extractor. An empty allow-list means domain.DefaultAllowedMediaTypes.
func New(opts Options) *Extractor {
	types := opts.AllowedMediaTypes
	if len(types) == 0 {
		types = domain.DefaultAllowedMediaTypes
	}
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}
	keywords := make([]string, 0, len(opts.SubjectKeywords))
	for _, k := range opts.SubjectKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	maxPart := opts.MaxPartBytes
	if maxPart <= 0 {
		maxPart = defaultMaxPartBytes
	}
	return &Extractor{
		allowed:      allowed,
		keywords:     keywords,
		maxPartBytes: maxPart,
		decoder:      new(mime.WordDecoder),
	}
}

// MatchesSubject reports whether subject contains one of the configured
// keywords. With no keywords every subject matches.
func (e *Extractor) MatchesSubject(subject string) bool {
	if len(e.keywords) == 0 {
		return true
	}
	s := strings.ToLower(e.decodeWords(subject))
	for _, k := range e.keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Attachments returns a lazy sequence over the message's attachment parts in
// MIME order. Parts are decoded only as the sequence is consumed. A structural
// failure yields a *domain.MalformedMessageError and ends the sequence.
func (e *Extractor) Attachments(msg domain.SourceMessage) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		m, err := mail.ReadMessage(bytes.NewReader(msg.Raw))
		if err != nil {
			yield(Item{}, &domain.MalformedMessageError{MessageID: msg.ID, Err: err})
			return
		}
		w := &walker{e: e, msgID: msg.ID, yield: yield}
		if err := w.walkEntity(m.Header, m.Body, 0); err != nil && !errors.Is(err, errStopped) {
			yield(Item{}, &domain.MalformedMessageError{MessageID: msg.ID, Err: err})
		}
	}
}

var errStopped = errors.New("consumer stopped")

// header is the subset of mail.Header and textproto.MIMEHeader the walker needs.
type header interface {
	Get(key string) string
}

type walker struct {
	e     *Extractor
	msgID string
	yield func(Item, error) bool
	index int
}

func (w *walker) walkEntity(h header, body io.Reader, depth int) error {
	if depth > maxNestingDepth {
		return fmt.Errorf("multipart nesting deeper than %d", maxNestingDepth)
	}
	mediaType, params, err := parseContentType(h.Get("Content-Type"))
	if err != nil {
		return err
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return errors.New("multipart entity without boundary")
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading part: %w", err)
			}
			if err := w.walkEntity(part.Header, part, depth+1); err != nil {
				return err
			}
		}
	}

	filename := w.e.filename(h, params)
	if !isAttachment(h, mediaType, filename) {
		return nil
	}

	w.index++
	idx := w.index - 1
	resolved := resolveMediaType(mediaType, filename)

	if !w.e.allowed[resolved] {
		return w.emit(Item{Skip: &domain.SkippedPart{
			MessageID: w.msgID, Index: idx, Filename: filename, MediaType: resolved,
			Reason: "media type not allowed",
		}})
	}

	data, err := w.e.readBody(h, body)
	if err != nil {
		return fmt.Errorf("decoding %q: %w", filename, err)
	}
	if int64(len(data)) > w.e.maxPartBytes {
		return w.emit(Item{Skip: &domain.SkippedPart{
			MessageID: w.msgID, Index: idx, Filename: filename, MediaType: resolved,
			Reason: fmt.Sprintf("attachment larger than %d bytes", w.e.maxPartBytes),
		}})
	}
	if len(data) == 0 {
		return w.emit(Item{Skip: &domain.SkippedPart{
			MessageID: w.msgID, Index: idx, Filename: filename, MediaType: resolved,
			Reason: "empty attachment",
		}})
	}
	return w.emit(Item{Payload: domain.NewAttachmentPayload(w.msgID, idx, filename, resolved, data)})
}

func (w *walker) emit(item Item) error {
	if !w.yield(item, nil) {
		return errStopped
	}
	return nil
}

// readBody reads at most maxPartBytes+1 decoded bytes. mime/multipart already
// decodes quoted-printable parts and drops the header, so only top-level
// entities reach the quoted-printable branch.
func (e *Extractor) readBody(h header, body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(decodeTransfer(h, body), e.maxPartBytes+1))
}

func decodeTransfer(h header, body io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(h.Get("Content-Transfer-Encoding"))) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		return quotedprintable.NewReader(body)
	default:
		return body
	}
}

func (e *Extractor) filename(h header, ctParams map[string]string) string {
	var name string
	if cd := h.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			name = params["filename"]
		}
	}
	if name == "" {
		name = ctParams["name"]
	}
	if name == "" {
		return ""
	}
	return filepath.Base(e.decodeWords(name))
}

func (e *Extractor) decodeWords(s string) string {
	if s == "" {
		return s
	}
	decoded, err := e.decoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

func parseContentType(ct string) (string, map[string]string, error) {
	if strings.TrimSpace(ct) == "" {
		return "text/plain", map[string]string{}, nil
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		// A broken parameter list still carries a usable type.
		if errors.Is(err, mime.ErrInvalidMediaParameter) {
			return strings.ToLower(mediaType), map[string]string{}, nil
		}
		return "", nil, fmt.Errorf("content-type %q: %w", ct, err)
	}
	return strings.ToLower(mediaType), params, nil
}

// isAttachment separates document parts from message body text.
func isAttachment(h header, mediaType, filename string) bool {
	disposition := strings.ToLower(h.Get("Content-Disposition"))
	if strings.HasPrefix(disposition, "attachment") {
		return true
	}
	if filename != "" {
		return true
	}
	return !strings.HasPrefix(mediaType, "text/") && !strings.HasPrefix(mediaType, "message/")
}

func resolveMediaType(mediaType, filename string) string {
	switch mediaType {
	case "image/jpg", "image/pjpeg":
		return domain.MediaTypeJPEG
	case "image/tif":
		return domain.MediaTypeTIFF
	case "application/octet-stream", "application/x-download", "binary/octet-stream", "":
		if mt := domain.MediaTypeForExtension(strings.ToLower(filepath.Ext(filename))); mt != "" {
			return mt
		}
	}
	return mediaType
}
