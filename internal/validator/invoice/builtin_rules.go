package invoice

import (
	"context"

	"docxingest/internal/domain"
)

// BuiltinValidator wraps a validator function and its metadata for the registry.
type BuiltinValidator struct {
	key      string
	name     string
	ruleType domain.ValidationRuleType
	sev      domain.ValidationSeverity
	fn       func(context.Context, *domain.InvoiceFields) []ValidationResult
}

func (b *BuiltinValidator) Validate(ctx context.Context, data *domain.InvoiceFields) []ValidationResult {
	return b.fn(ctx, data)
}
func (b *BuiltinValidator) RuleKey() string                     { return b.key }
func (b *BuiltinValidator) RuleName() string                    { return b.name }
func (b *BuiltinValidator) RuleType() domain.ValidationRuleType { return b.ruleType }
func (b *BuiltinValidator) Severity() domain.ValidationSeverity { return b.sev }

type builtin interface {
	Validate(context.Context, *domain.InvoiceFields) []ValidationResult
	RuleKey() string
	RuleName() string
	RuleType() domain.ValidationRuleType
	Severity() domain.ValidationSeverity
}

func wrap(v builtin) *BuiltinValidator {
	return &BuiltinValidator{
		key: v.RuleKey(), name: v.RuleName(),
		ruleType: v.RuleType(), sev: v.Severity(),
		fn: v.Validate,
	}
}

// AllBuiltinValidators returns the invoice rules in evaluation order:
// required fields, date plausibility, line-item reconciliation, currency.
func AllBuiltinValidators(opts Options) []*BuiltinValidator {
	var all []*BuiltinValidator
	for _, v := range RequiredFieldValidators() {
		all = append(all, wrap(v))
	}
	for _, v := range DateValidators(opts) {
		all = append(all, wrap(v))
	}
	for _, v := range MathValidators(opts) {
		all = append(all, wrap(v))
	}
	for _, v := range CurrencyValidators(opts) {
		all = append(all, wrap(v))
	}
	return all
}
