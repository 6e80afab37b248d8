package port

import (
	"context"
	"encoding/json"
)

// ExtractInput carries the data needed for LLM field extraction.
type ExtractInput struct {
	OCRText       string
	SchemaVersion string
	Schema        string
	// Correction, when set, names schema violations from a previous attempt.
	Correction string
}

// ExtractOutput contains the raw structured answer from a provider.
type ExtractOutput struct {
	StructuredData json.RawMessage
	ModelUsed      string
	PromptUsed     string
}

// FieldExtractor abstracts an LLM-based field extraction call.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, input ExtractInput) (*ExtractOutput, error)
}
