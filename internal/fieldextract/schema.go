package fieldextract

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"docxingest/internal/domain"
)

//go:embed invoice.v1.json
var invoiceV1 []byte

// Schema is a compiled output schema together with its source text.
type Schema struct {
	Version  string
	Source   string
	compiled *jsonschema.Schema
}

// LoadSchema compiles the embedded schema for version.
func LoadSchema(version string) (*Schema, error) {
	if version != domain.SchemaVersionV1 {
		return nil, fmt.Errorf("fieldextract.LoadSchema: unknown schema version %q", version)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("invoice.v1.json", bytes.NewReader(invoiceV1)); err != nil {
		return nil, fmt.Errorf("fieldextract.LoadSchema: add schema: %w", err)
	}
	compiled, err := compiler.Compile("invoice.v1.json")
	if err != nil {
		return nil, fmt.Errorf("fieldextract.LoadSchema: compile schema: %w", err)
	}
	return &Schema{Version: version, Source: string(invoiceV1), compiled: compiled}, nil
}

// Violation is one schema failure, located by JSON pointer.
type Violation struct {
	Location string
	Message  string
}

func (v Violation) String() string {
	loc := v.Location
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + v.Message
}

// Field returns the top-level data field the violation points into, or "".
func (v Violation) Field() string {
	rest, ok := strings.CutPrefix(v.Location, "/data/")
	if !ok {
		return ""
	}
	field, _, _ := strings.Cut(rest, "/")
	return field
}

// Check validates a decoded document and returns its leaf violations, sorted
// by location.
func (s *Schema) Check(doc any) []Violation {
	err := s.compiled.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Violation{{Message: err.Error()}}
	}

	var out []Violation
	seen := make(map[string]bool)
	for _, be := range ve.BasicOutput().Errors {
		// Parent units only summarize their causes.
		if be.Error == "" || strings.HasPrefix(be.Error, "doesn't validate with") {
			continue
		}
		key := be.InstanceLocation + "|" + be.Error
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Violation{Location: be.InstanceLocation, Message: be.Error})
	}
	if len(out) == 0 {
		out = append(out, Violation{Location: ve.InstanceLocation, Message: ve.Message})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out
}
