package invoice

import (
	"context"
	"fmt"
	"math"

	"docxingest/internal/domain"
)

// lineItemTolerance absorbs rounding in quantity x unit price.
const lineItemTolerance = 0.01

// mathValidator checks arithmetic relationships between fields. It never
// produces a hard failure.
type mathValidator struct {
	ruleKey  string
	ruleName string
	validate func(*domain.InvoiceFields) []ValidationResult
}

func (v *mathValidator) RuleKey() string                     { return v.ruleKey }
func (v *mathValidator) RuleName() string                    { return v.ruleName }
func (v *mathValidator) RuleType() domain.ValidationRuleType { return domain.ValidationRuleSum }
func (v *mathValidator) Severity() domain.ValidationSeverity { return domain.ValidationSeverityWarning }

func (v *mathValidator) Validate(_ context.Context, data *domain.InvoiceFields) []ValidationResult {
	return v.validate(data)
}

// cents rounds to two decimals so float noise never shows up as a mismatch.
func cents(v float64) float64 {
	return math.Round(v*100) / 100
}

func approxEqual(a, b, tolerance float64) bool {
	return cents(math.Abs(a-b)) <= tolerance+1e-9
}

func mathResult(passed bool, fieldPath, expected, actual, msg string) ValidationResult {
	return ValidationResult{
		Passed: passed, FieldPath: fieldPath,
		ExpectedValue: expected, ActualValue: actual, Message: msg,
	}
}

// MathValidators reconciles line items with the stated total. Any non-zero
// difference is reported: within TotalTolerance as a rounding difference,
// beyond it as a mismatch. Both are warnings.
func MathValidators(opts Options) []*mathValidator {
	return []*mathValidator{
		{
			ruleKey: "math.total.line_items", ruleName: "Math: Line Items vs Total",
			validate: func(f *domain.InvoiceFields) []ValidationResult {
				if f.Total == nil || len(f.LineItems) == 0 {
					return nil
				}
				var sum float64
				for _, it := range f.LineItems {
					if it.Amount == nil {
						// An incomplete line cannot be reconciled.
						return nil
					}
					sum += *it.Amount
				}
				sum = cents(sum)
				total := cents(*f.Total)
				diff := cents(math.Abs(sum - total))
				expected := fmt.Sprintf("%.2f", total)
				actual := fmt.Sprintf("%.2f", sum)

				switch {
				case diff == 0:
					return []ValidationResult{mathResult(true, domain.FieldTotal, expected, actual,
						"Math: Line Items vs Total: line items match total")}
				case approxEqual(sum, total, opts.TotalTolerance):
					return []ValidationResult{mathResult(false, domain.FieldTotal, expected, actual,
						fmt.Sprintf("Math: Line Items vs Total: rounding difference %.2f within tolerance %.2f", diff, opts.TotalTolerance))}
				default:
					return []ValidationResult{mathResult(false, domain.FieldTotal, expected, actual,
						fmt.Sprintf("Math: Line Items vs Total: line items sum to %s, stated total %s (difference %.2f exceeds tolerance %.2f)",
							actual, expected, diff, opts.TotalTolerance))}
				}
			},
		},
		{
			ruleKey: "math.line_item.amount", ruleName: "Math: Line Item Amount",
			validate: func(f *domain.InvoiceFields) []ValidationResult {
				var results []ValidationResult
				for i, it := range f.LineItems {
					if it.Quantity == nil || it.UnitPrice == nil || it.Amount == nil {
						continue
					}
					want := cents(*it.Quantity * *it.UnitPrice)
					got := cents(*it.Amount)
					path := fmt.Sprintf("line_items[%d].amount", i)
					passed := approxEqual(want, got, lineItemTolerance)
					msg := fmt.Sprintf("Math: Line Item Amount: %s matches quantity x unit price", path)
					if !passed {
						msg = fmt.Sprintf("Math: Line Item Amount: %s calculation mismatch (expected %.2f, got %.2f)", path, want, got)
					}
					results = append(results, mathResult(passed, path, fmt.Sprintf("%.2f", want), fmt.Sprintf("%.2f", got), msg))
				}
				return results
			},
		},
	}
}
