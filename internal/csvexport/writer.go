// Package csvexport renders a batch summary as the per-batch CSV and XLSX
// reports of extracted invoice data.
package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"docxingest/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// columns defines the report header row.
var columns = []string{
	"Message ID",
	"Filename",
	"Content Hash",
	"Outcome",
	"Stage",
	"Verdict",
	"Invoice Number",
	"Invoice Date",
	"Vendor",
	"Currency",
	"Total",
	"Line Item Count",
	"Location",
	"Reason",
}

// Columns returns a copy of the header row.
func Columns() []string {
	return append([]string(nil), columns...)
}

// Writer wraps csv.Writer for exporting batch outcomes as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteOutcomes converts payload outcomes to CSV rows and writes them.
func (w *Writer) WriteOutcomes(outcomes []domain.PayloadOutcome) error {
	for i := range outcomes {
		if err := w.csv.Write(OutcomeToRow(&outcomes[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// OutcomeToRow converts one outcome to a row. Invoice columns stay empty
// when nothing was extracted.
func OutcomeToRow(o *domain.PayloadOutcome) []string {
	row := make([]string, len(columns))

	row[0] = o.MessageID
	row[1] = o.Filename
	row[2] = o.PayloadHash
	row[3] = string(o.Terminal)
	row[4] = string(o.Stage)
	row[5] = string(o.Verdict)
	row[12] = o.Location
	row[13] = o.Reason

	if o.Fields == nil {
		return row
	}
	f := o.Fields
	row[6] = deref(f.InvoiceNumber)
	row[7] = deref(f.InvoiceDate)
	row[8] = deref(f.Vendor)
	row[9] = deref(f.Currency)
	row[10] = formatMoney(f.Total)
	row[11] = strconv.Itoa(len(f.LineItems))
	return row
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatMoney(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename replaces non-alphanumeric chars (except - _) with _,
// collapses consecutive underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns the report base name for a batch started at t.
// Format: invoice_processing_{YYYYMMDD_HHMMSS}.{ext}
func BuildFilename(t time.Time, ext string) string {
	return fmt.Sprintf("%s.%s", SanitizeFilename("invoice_processing_"+t.UTC().Format("20060102_150405")), ext)
}
