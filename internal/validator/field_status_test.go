package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docxingest/internal/domain"
	"docxingest/internal/validator"
)

func TestComputeFieldStatuses(t *testing.T) {
	issues := []domain.ValidationIssue{
		{RuleKey: "math.line_item.amount", FieldPath: "line_items[1].amount", Severity: domain.ValidationSeverityWarning, Message: "mismatch"},
		{RuleKey: "date.invoice_date.range", FieldPath: domain.FieldInvoiceDate, Severity: domain.ValidationSeverityError, Message: "out of range"},
	}
	confidence := map[string]float64{
		domain.FieldInvoiceNumber: 0.95,
		domain.FieldVendor:        0.4,
		domain.FieldTotal:         0.9,
	}

	statuses := validator.ComputeFieldStatuses(issues, []string{domain.FieldCurrency}, confidence, 0.5)

	assert.Len(t, statuses, len(domain.FieldOrder))
	assert.Equal(t, validator.FieldStatusValid, statuses[domain.FieldInvoiceNumber].Status)
	assert.Equal(t, validator.FieldStatusUnsure, statuses[domain.FieldVendor].Status)
	assert.Equal(t, validator.FieldStatusMissing, statuses[domain.FieldCurrency].Status)
	assert.Equal(t, validator.FieldStatusInvalid, statuses[domain.FieldInvoiceDate].Status)
	assert.Equal(t, []string{"out of range"}, statuses[domain.FieldInvoiceDate].Messages)
	assert.Equal(t, validator.FieldStatusUnsure, statuses[domain.FieldLineItems].Status)
	assert.Equal(t, []string{}, statuses[domain.FieldTotal].Messages)
}
