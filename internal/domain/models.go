package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// SourceMessage is one raw message pulled from the mailbox. It is immutable once fetched.
type SourceMessage struct {
	ID        string    `json:"id"`
	ArrivedAt time.Time `json:"arrived_at"`
	Sender    string    `json:"sender"`
	Subject   string    `json:"subject"`
	Raw       []byte    `json:"-"`
}

// MessageMetadata is the header and body summary kept with each payload's audit artifact.
type MessageMetadata struct {
	MessageID string    `json:"message_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Cc        string    `json:"cc"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date"`
	Body      string    `json:"body"`
}

// AttachmentPayload is one candidate document extracted from a message.
type AttachmentPayload struct {
	MessageID   string `json:"message_id"`
	Index       int    `json:"index"`
	Filename    string `json:"filename"`
	MediaType   string `json:"media_type"`
	Data        []byte `json:"-"`
	ContentHash string `json:"content_hash"`
}

// NewAttachmentPayload builds a payload and computes its content hash from data.
func NewAttachmentPayload(messageID string, index int, filename, mediaType string, data []byte) *AttachmentPayload {
	return &AttachmentPayload{
		MessageID:   messageID,
		Index:       index,
		Filename:    filename,
		MediaType:   mediaType,
		Data:        data,
		ContentHash: ContentHash(data),
	}
}

// ContentHash returns the hex sha256 of data. It is the dedup key for payloads.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SkippedPart describes an attachment dropped by the media-type allow-list.
type SkippedPart struct {
	MessageID string `json:"message_id"`
	Index     int    `json:"index"`
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	Reason    string `json:"reason"`
}

// PageImage is a single rendered page of a payload. Index is 0-based.
type PageImage struct {
	PayloadHash string `json:"payload_hash"`
	Index       int    `json:"index"`
	MediaType   string `json:"media_type"`
	Data        []byte `json:"-"`
}

// PageText is the OCR output for one page.
type PageText struct {
	Index         int     `json:"index"`
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	LowConfidence bool    `json:"low_confidence"`
	Attempts      int     `json:"attempts"`
	Error         string  `json:"error,omitempty"`
}

// SchemaVersionV1 is the current field schema version.
const SchemaVersionV1 = "invoice.v1"

// Field names of the invoice schema, in record order.
const (
	FieldInvoiceNumber = "invoice_number"
	FieldInvoiceDate   = "invoice_date"
	FieldVendor        = "vendor"
	FieldCurrency      = "currency"
	FieldLineItems     = "line_items"
	FieldTotal         = "total"
)

// FieldOrder is the ordered field list of the invoice schema.
var FieldOrder = []string{
	FieldInvoiceNumber,
	FieldInvoiceDate,
	FieldVendor,
	FieldCurrency,
	FieldLineItems,
	FieldTotal,
}

// LineItem is one invoice line. Numeric fields are nil when not extracted.
type LineItem struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	Amount      *float64 `json:"amount"`
}

// InvoiceFields holds the extracted values. Nil means the field is null.
type InvoiceFields struct {
	InvoiceNumber *string    `json:"invoice_number"`
	InvoiceDate   *string    `json:"invoice_date"`
	Vendor        *string    `json:"vendor"`
	Currency      *string    `json:"currency"`
	LineItems     []LineItem `json:"line_items"`
	Total         *float64   `json:"total"`
}

// ExtractionResult is the structured record produced for one payload.
type ExtractionResult struct {
	PayloadHash   string             `json:"payload_hash"`
	SchemaVersion string             `json:"schema_version"`
	Fields        InvoiceFields      `json:"fields"`
	Confidence    map[string]float64 `json:"confidence"`
	LowConfidence bool               `json:"low_confidence"`
	NullFields    []string           `json:"null_fields,omitempty"`
	Repaired      bool               `json:"repaired"`
	RawText       string             `json:"-"`
	Model         string             `json:"model"`
}

// ValidationIssue is one failed rule.
type ValidationIssue struct {
	RuleKey   string             `json:"rule_key"`
	FieldPath string             `json:"field_path"`
	Severity  ValidationSeverity `json:"severity"`
	Message   string             `json:"message"`
}

// ValidationVerdict is the validator's advisory outcome for a result.
type ValidationVerdict struct {
	Outcome VerdictOutcome    `json:"outcome"`
	Issues  []ValidationIssue `json:"issues,omitempty"`
	Reason  string            `json:"reason,omitempty"`
}

// IsRejected reports whether the verdict blocks upload.
func (v ValidationVerdict) IsRejected() bool { return v.Outcome == VerdictRejected }

// LedgerEntry records a committed payload. It exists only after a successful commit.
type LedgerEntry struct {
	ContentHash string    `json:"content_hash" db:"content_hash" firestore:"content_hash"`
	CommittedAt time.Time `json:"committed_at" db:"committed_at" firestore:"committed_at"`
	Location    string    `json:"location" db:"location" firestore:"location"`
}

// PipelineEvent is appended to the event sink on every stage transition.
type PipelineEvent struct {
	ID          uuid.UUID   `json:"id" db:"id" yaml:"id"`
	Timestamp   time.Time   `json:"timestamp" db:"occurred_at" yaml:"timestamp"`
	BatchID     uuid.UUID   `json:"batch_id" db:"batch_id" yaml:"batch_id"`
	MessageID   string      `json:"message_id" db:"message_id" yaml:"message_id"`
	PayloadHash string      `json:"payload_hash,omitempty" db:"payload_hash" yaml:"payload_hash,omitempty"`
	Stage       Stage       `json:"stage" db:"stage" yaml:"stage"`
	Status      EventStatus `json:"status" db:"status" yaml:"status"`
	Detail      string      `json:"detail" db:"detail" yaml:"detail"`
}

// PayloadOutcome is one line of the batch summary.
type PayloadOutcome struct {
	MessageID   string         `json:"message_id"`
	PayloadHash string         `json:"payload_hash"`
	Filename    string         `json:"filename"`
	Terminal    EventStatus    `json:"terminal"`
	Stage       Stage          `json:"stage"`
	Verdict     VerdictOutcome `json:"verdict,omitempty"`
	Location    string         `json:"location,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Fields      *InvoiceFields `json:"fields,omitempty"`
}

// BatchSummary is the user-visible result of one run.
type BatchSummary struct {
	BatchID    uuid.UUID        `json:"batch_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Messages   int              `json:"messages"`
	Committed  int              `json:"committed"`
	Rejected   int              `json:"rejected"`
	Failed     int              `json:"failed"`
	Duplicates int              `json:"duplicates"`
	Skipped    int              `json:"skipped"`
	Canceled   bool             `json:"canceled"`
	Outcomes   []PayloadOutcome `json:"outcomes"`
	ReportURL  string           `json:"report_url,omitempty"`
}

// Reasons returns the reason strings of every payload that was not committed.
func (s *BatchSummary) Reasons() map[string]string {
	out := make(map[string]string)
	for _, o := range s.Outcomes {
		if o.Stage == StageCommitted {
			continue
		}
		key := o.PayloadHash
		if key == "" {
			key = o.MessageID
		}
		out[key] = o.Reason
	}
	return out
}
