package validator

import "docxingest/internal/domain"

// FieldValidationStatus is the per-field state shown next to a record.
type FieldValidationStatus string

const (
	FieldStatusValid   FieldValidationStatus = "valid"
	FieldStatusUnsure  FieldValidationStatus = "unsure"
	FieldStatusInvalid FieldValidationStatus = "invalid"
	FieldStatusMissing FieldValidationStatus = "missing"
)

// FieldStatus represents the computed validation state for a single field path.
type FieldStatus struct {
	Status   FieldValidationStatus `json:"status"`
	Messages []string              `json:"messages"`
}

// ComputeFieldStatuses derives per-field statuses from verdict issues, the
// null field list and confidence scores. Every schema field gets an entry.
func ComputeFieldStatuses(
	issues []domain.ValidationIssue,
	nullFields []string,
	confidenceMap map[string]float64,
	threshold float64,
) map[string]*FieldStatus {
	statuses := make(map[string]*FieldStatus, len(domain.FieldOrder))
	for _, f := range domain.FieldOrder {
		statuses[f] = &FieldStatus{Status: FieldStatusValid, Messages: []string{}}
	}

	for _, f := range nullFields {
		if fs, ok := statuses[f]; ok {
			fs.Status = FieldStatusMissing
		}
	}

	for f, confidence := range confidenceMap {
		fs, ok := statuses[f]
		if !ok || fs.Status != FieldStatusValid {
			continue
		}
		if confidence <= threshold {
			fs.Status = FieldStatusUnsure
		}
	}

	for _, is := range issues {
		fs, ok := statuses[topLevelField(is.FieldPath)]
		if !ok {
			continue
		}
		fs.Messages = append(fs.Messages, is.Message)
		if is.Severity == domain.ValidationSeverityError {
			fs.Status = FieldStatusInvalid
		} else if fs.Status == FieldStatusValid {
			fs.Status = FieldStatusUnsure
		}
	}
	return statuses
}

// topLevelField maps "line_items[2].amount" to "line_items".
func topLevelField(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '[' || path[i] == '.' {
			return path[:i]
		}
	}
	return path
}
