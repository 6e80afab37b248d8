package ocr

import (
	"regexp"
	"strings"
)

var (
	reDate     = regexp.MustCompile(`\b\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}\b`)
	reCurrency = regexp.MustCompile(`\b(usd|eur|gbp|cad|aud|inr|jpy|chf)\b|[$£€₹]`)
	reAmount   = regexp.MustCompile(`\b\d{1,3}(,\d{3})*(\.\d{2})\b|\b\d+\.\d{2}\b`)
	reInvoice  = regexp.MustCompile(`\b(invoice|premium|policy|total)\b`)
)

// heuristicConfidence scores recognized text by how invoice-like it looks.
func heuristicConfidence(txt string) float64 {
	txtL := strings.ToLower(txt)
	score := 0.2
	if reDate.MatchString(txtL) {
		score += 0.2
	}
	if reCurrency.MatchString(txtL) {
		score += 0.15
	}
	if reAmount.MatchString(txtL) {
		score += 0.15
	}
	if reInvoice.MatchString(txtL) {
		score += 0.1
	}
	if len(txt) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// blend weights the engine's own confidence over the heuristic when present.
func blend(engine, heuristic float64) float64 {
	if engine <= 0 {
		return heuristic
	}
	c := 0.7*engine + 0.3*heuristic
	if c > 1.0 {
		c = 1.0
	}
	return c
}
