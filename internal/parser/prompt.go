package parser

import (
	"strings"

	"docxingest/internal/port"
)

// BuildInvoicePrompt returns the extraction prompt for an invoice schema version.
// The OCR text is appended last, with page markers intact.
func BuildInvoicePrompt(input port.ExtractInput) string {
	var b strings.Builder
	b.WriteString(`You are a document data extraction assistant. The text below was recognized from an insurance invoice, possibly spanning several pages. Pages are separated by lines of the form "--- page N ---".

IMPORTANT INSTRUCTIONS:
- Extract EVERY line item from every page into a single flat "line_items" array.
- Normalize all dates to YYYY-MM-DD.
- Currency must be an ISO 4217 code (e.g., "USD", "EUR", "INR"), not a symbol.
- Numbers must be plain JSON numbers without currency symbols or thousands separators.
- If a field is not present in the document, use null. Do not guess.

Return ONLY valid JSON with no markdown formatting, no code fences, no explanation, just the raw JSON object.

Return two top-level keys: "data" and "confidence_scores".

The "data" object must follow this schema (version `)
	b.WriteString(input.SchemaVersion)
	b.WriteString("):\n")
	b.WriteString(input.Schema)
	b.WriteString(`

The "confidence_scores" object maps each top-level field name of "data" to a float between 0.0 and 1.0 indicating your confidence. Use 0.0 for fields not found in the document.
`)
	if input.Correction != "" {
		b.WriteString("\nYOUR PREVIOUS ANSWER WAS REJECTED. Fix these problems and answer again:\n")
		b.WriteString(input.Correction)
		b.WriteString("\n")
	}
	b.WriteString("\nDOCUMENT TEXT:\n")
	b.WriteString(input.OCRText)
	return b.String()
}
