// Package validator applies business rules to extracted invoice records and
// produces an advisory verdict. Extracted values are never modified.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"docxingest/internal/config"
	"docxingest/internal/domain"
	"docxingest/internal/logging"
	"docxingest/internal/validator/invoice"
)

// Engine runs registered rules in order against a result.
type Engine struct {
	registry *Registry
	log      *slog.Logger
}

// NewEngine creates a new validation engine.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry, log: logging.For("validator")}
}

// NewDefaultEngine registers every built-in invoice rule.
func NewDefaultEngine(opts invoice.Options) *Engine {
	reg := NewRegistry()
	for _, v := range invoice.AllBuiltinValidators(opts) {
		reg.Register(v)
	}
	return NewEngine(reg)
}

// OptionsFromConfig maps validation config onto rule options.
func OptionsFromConfig(cfg *config.ValidationConfig) invoice.Options {
	return invoice.Options{
		TotalTolerance:  cfg.TotalTolerance,
		MaxAge:          cfg.MaxAge,
		MaxFuture:       cfg.MaxFuture,
		ExtraCurrencies: cfg.ExtraCurrencies,
	}
}

// Validate returns the verdict for result. The first failing error-severity
// rule rejects the record and stops evaluation. Failing warning rules are
// collected into AcceptedWithWarnings.
func (e *Engine) Validate(ctx context.Context, result *domain.ExtractionResult) domain.ValidationVerdict {
	var issues []domain.ValidationIssue

	for _, v := range e.registry.All() {
		for _, vr := range v.Validate(ctx, &result.Fields) {
			if vr.Passed {
				continue
			}
			issue := domain.ValidationIssue{
				RuleKey:   v.RuleKey(),
				FieldPath: vr.FieldPath,
				Severity:  v.Severity(),
				Message:   vr.Message,
			}
			issues = append(issues, issue)

			if v.Severity() == domain.ValidationSeverityError {
				e.log.Info("record rejected",
					"payload_hash", result.PayloadHash,
					"rule", v.RuleKey(),
					"field", vr.FieldPath,
				)
				return domain.ValidationVerdict{
					Outcome: domain.VerdictRejected,
					Issues:  issues,
					Reason:  vr.Message,
				}
			}
		}
	}

	if result.LowConfidence {
		issues = append(issues, domain.ValidationIssue{
			RuleKey:  "confidence.low",
			Severity: domain.ValidationSeverityWarning,
			Message:  lowConfidenceMessage(result),
		})
	}

	if len(issues) == 0 {
		return domain.ValidationVerdict{Outcome: domain.VerdictAccepted}
	}
	return domain.ValidationVerdict{Outcome: domain.VerdictAcceptedWithWarnings, Issues: issues}
}

func lowConfidenceMessage(result *domain.ExtractionResult) string {
	if len(result.NullFields) == 0 {
		return "Confidence: extraction or OCR marked low-confidence"
	}
	return fmt.Sprintf("Confidence: low-confidence extraction, null fields: %s", strings.Join(result.NullFields, ", "))
}
