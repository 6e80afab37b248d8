package invoice

import (
	"context"
	"fmt"
	"strings"

	"docxingest/internal/domain"
)

// requiredFieldValidator checks that a required field is not empty.
type requiredFieldValidator struct {
	ruleKey   string
	ruleName  string
	fieldPath string
	present   func(*domain.InvoiceFields) (string, bool)
}

func (v *requiredFieldValidator) RuleKey() string  { return v.ruleKey }
func (v *requiredFieldValidator) RuleName() string { return v.ruleName }
func (v *requiredFieldValidator) RuleType() domain.ValidationRuleType {
	return domain.ValidationRuleRequired
}
func (v *requiredFieldValidator) Severity() domain.ValidationSeverity {
	return domain.ValidationSeverityError
}

func (v *requiredFieldValidator) Validate(_ context.Context, data *domain.InvoiceFields) []ValidationResult {
	val, ok := v.present(data)
	return []ValidationResult{{
		Passed:        ok,
		FieldPath:     v.fieldPath,
		ExpectedValue: "non-empty value",
		ActualValue:   val,
		Message:       fieldMessage(ok, v.ruleName, v.fieldPath),
	}}
}

func fieldMessage(passed bool, ruleName, fieldPath string) string {
	if passed {
		return fmt.Sprintf("%s: %s is present", ruleName, fieldPath)
	}
	return fmt.Sprintf("%s: %s is missing or empty", ruleName, fieldPath)
}

func presentString(get func(*domain.InvoiceFields) *string) func(*domain.InvoiceFields) (string, bool) {
	return func(f *domain.InvoiceFields) (string, bool) {
		v := strings.TrimSpace(deref(get(f)))
		return v, v != ""
	}
}

// RequiredFieldValidators returns the presence checks for the fields an
// invoice cannot be filed without.
func RequiredFieldValidators() []*requiredFieldValidator {
	return []*requiredFieldValidator{
		{
			ruleKey: "req.invoice_number", ruleName: "Required: Invoice Number",
			fieldPath: domain.FieldInvoiceNumber,
			present:   presentString(func(f *domain.InvoiceFields) *string { return f.InvoiceNumber }),
		},
		{
			ruleKey: "req.invoice_date", ruleName: "Required: Invoice Date",
			fieldPath: domain.FieldInvoiceDate,
			present:   presentString(func(f *domain.InvoiceFields) *string { return f.InvoiceDate }),
		},
		{
			ruleKey: "req.vendor", ruleName: "Required: Vendor",
			fieldPath: domain.FieldVendor,
			present:   presentString(func(f *domain.InvoiceFields) *string { return f.Vendor }),
		},
		{
			ruleKey: "req.total", ruleName: "Required: Total",
			fieldPath: domain.FieldTotal,
			present: func(f *domain.InvoiceFields) (string, bool) {
				if f.Total == nil {
					return "", false
				}
				return fmt.Sprintf("%.2f", *f.Total), true
			},
		},
	}
}
