package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docxingest/internal/domain"
)

// knownCurrencies is the ISO 4217 allow-list. Options.ExtraCurrencies extends it.
var knownCurrencies = map[string]bool{
	"INR": true, "USD": true, "EUR": true, "GBP": true, "JPY": true,
	"AUD": true, "CAD": true, "CHF": true, "CNY": true, "SGD": true,
	"AED": true, "SAR": true, "HKD": true, "MYR": true, "THB": true,
	"NZD": true, "SEK": true, "NOK": true, "DKK": true, "ZAR": true,
	"MXN": true, "BRL": true, "KRW": true, "PLN": true, "ILS": true,
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006", "2006/01/02"}

// formatValidator checks a single field's value shape or range.
type formatValidator struct {
	ruleKey  string
	ruleName string
	ruleType domain.ValidationRuleType
	severity domain.ValidationSeverity
	validate func(*domain.InvoiceFields) []ValidationResult
}

func (v *formatValidator) RuleKey() string                     { return v.ruleKey }
func (v *formatValidator) RuleName() string                    { return v.ruleName }
func (v *formatValidator) RuleType() domain.ValidationRuleType { return v.ruleType }
func (v *formatValidator) Severity() domain.ValidationSeverity { return v.severity }

func (v *formatValidator) Validate(_ context.Context, data *domain.InvoiceFields) []ValidationResult {
	return v.validate(data)
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DateValidators checks that the invoice date parses and lies within
// [now-MaxAge, now+MaxFuture]. A failure is a hard error.
func DateValidators(opts Options) []*formatValidator {
	return []*formatValidator{
		{
			ruleKey: "date.invoice_date.range", ruleName: "Date: Invoice Date",
			ruleType: domain.ValidationRuleDate, severity: domain.ValidationSeverityError,
			validate: func(f *domain.InvoiceFields) []ValidationResult {
				if f.InvoiceDate == nil {
					return nil
				}
				raw := *f.InvoiceDate
				d, ok := parseDate(raw)
				if !ok {
					return []ValidationResult{{
						FieldPath: domain.FieldInvoiceDate, ExpectedValue: "YYYY-MM-DD", ActualValue: raw,
						Message: "Date: Invoice Date: not a parseable date",
					}}
				}
				now := opts.now()
				earliest := now.Add(-opts.MaxAge).Truncate(24 * time.Hour)
				latest := now.Add(opts.MaxFuture)
				passed := !d.Before(earliest) && !d.After(latest)
				msg := "Date: Invoice Date: within plausible range"
				if !passed {
					msg = fmt.Sprintf("Date: Invoice Date: %s is outside %s..%s",
						d.Format("2006-01-02"), earliest.Format("2006-01-02"), latest.Format("2006-01-02"))
				}
				return []ValidationResult{{
					Passed: passed, FieldPath: domain.FieldInvoiceDate,
					ExpectedValue: earliest.Format("2006-01-02") + ".." + latest.Format("2006-01-02"),
					ActualValue:   raw, Message: msg,
				}}
			},
		},
	}
}

// CurrencyValidators flags currency codes outside the allow-list. Unknown
// currency is a warning; a missing one is not checked.
func CurrencyValidators(opts Options) []*formatValidator {
	allowed := make(map[string]bool, len(knownCurrencies)+len(opts.ExtraCurrencies))
	for k := range knownCurrencies {
		allowed[k] = true
	}
	for _, c := range opts.ExtraCurrencies {
		allowed[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	return []*formatValidator{
		{
			ruleKey: "fmt.currency", ruleName: "Format: Currency",
			ruleType: domain.ValidationRuleCurrency, severity: domain.ValidationSeverityWarning,
			validate: func(f *domain.InvoiceFields) []ValidationResult {
				if f.Currency == nil {
					return nil
				}
				val := strings.ToUpper(strings.TrimSpace(*f.Currency))
				passed := allowed[val]
				msg := "Format: Currency: valid ISO 4217 code"
				if !passed {
					msg = "Format: Currency: not a recognized ISO 4217 code"
				}
				return []ValidationResult{{
					Passed: passed, FieldPath: domain.FieldCurrency,
					ExpectedValue: "ISO 4217 code", ActualValue: *f.Currency, Message: msg,
				}}
			},
		},
	}
}
