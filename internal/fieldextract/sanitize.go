package fieldextract

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"docxingest/internal/domain"
)

var (
	reFence         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	reTrailingComma = regexp.MustCompile(`,\s*([}\]])`)
	reAmountJunk    = regexp.MustCompile(`[^0-9.,\-()]`)
)

var nullWords = map[string]bool{
	"":               true,
	"n/a":            true,
	"na":             true,
	"none":           true,
	"null":           true,
	"nil":            true,
	"-":              true,
	"--":             true,
	"unknown":        true,
	"not found":      true,
	"not available":  true,
	"value_or_n/a":   true,
	"not applicable": true,
}

var currencySymbols = map[string]string{
	"$":   "USD",
	"US$": "USD",
	"€":   "EUR",
	"£":   "GBP",
	"₹":   "INR",
	"RS":  "INR",
	"RS.": "INR",
	"¥":   "JPY",
	"C$":  "CAD",
	"A$":  "AUD",
	"CHF": "CHF",
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2006-01-02T15:04:05Z07:00",
}

var numericFields = map[string]bool{
	domain.FieldTotal: true,
	"quantity":        true,
	"unit_price":      true,
	"amount":          true,
}

var textFields = map[string]bool{
	domain.FieldInvoiceNumber: true,
	domain.FieldVendor:        true,
	"description":             true,
}

var errNoJSON = errors.New("response contains no JSON object")

// decodeResponse pulls the JSON object out of a model answer that may carry
// code fences, leading prose or trailing commas, then cleans field values.
func decodeResponse(raw []byte) (map[string]any, error) {
	text := strings.TrimSpace(string(raw))
	if m := reFence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errNoJSON
	}
	text = reTrailingComma.ReplaceAllString(text[start:end+1], "$1")

	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, err
	}

	// Some models skip the envelope and answer with the record itself.
	if _, ok := doc["data"]; !ok {
		if _, looksLikeRecord := doc[domain.FieldInvoiceNumber]; looksLikeRecord {
			doc = map[string]any{"data": doc}
		}
	}

	if data, ok := doc["data"].(map[string]any); ok {
		cleanRecord(data)
	}
	if scores, ok := doc["confidence_scores"].(map[string]any); ok {
		cleanScores(scores)
	}
	return doc, nil
}

func cleanRecord(data map[string]any) {
	for key, val := range data {
		switch key {
		case domain.FieldLineItems:
			items, ok := val.([]any)
			if !ok {
				data[key] = nullIfEmpty(val)
				continue
			}
			for _, it := range items {
				if item, ok := it.(map[string]any); ok {
					for k, v := range item {
						item[k] = cleanValue(k, v)
					}
				}
			}
		default:
			data[key] = cleanValue(key, val)
		}
	}
}

func cleanValue(key string, val any) any {
	if f, ok := val.(float64); ok && textFields[key] {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s, ok := val.(string)
	if !ok {
		return val
	}
	s = strings.TrimSpace(s)
	if nullWords[strings.ToLower(s)] {
		return nil
	}
	switch {
	case numericFields[key]:
		if f, ok := parseAmount(s); ok {
			return f
		}
	case key == domain.FieldCurrency:
		return normalizeCurrency(s)
	case key == domain.FieldInvoiceDate:
		return normalizeDate(s)
	}
	return s
}

func nullIfEmpty(val any) any {
	if s, ok := val.(string); ok && nullWords[strings.ToLower(strings.TrimSpace(s))] {
		return nil
	}
	return val
}

// parseAmount reads "$1,234.50", "1.234,50 EUR" or "(12.00)" as a number.
func parseAmount(s string) (float64, bool) {
	s = reAmountJunk.ReplaceAllString(s, "")
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.Trim(s, "()")
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma > lastDot && lastDot >= 0:
		// 1.234,50
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0 && lastDot < 0 && len(s)-lastComma-1 == 2 && strings.Count(s, ",") == 1:
		// 12,50
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		f = -f
	}
	return f, true
}

func normalizeCurrency(s string) string {
	up := strings.ToUpper(strings.TrimSpace(s))
	if code, ok := currencySymbols[up]; ok {
		return code
	}
	if code, ok := currencySymbols[s]; ok {
		return code
	}
	return up
}

// normalizeDate rewrites unambiguous layouts to YYYY-MM-DD. Day/month order
// in purely numeric dates cannot be told apart and is left for the schema to
// reject.
func normalizeDate(s string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

func cleanScores(scores map[string]any) {
	for k, v := range scores {
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
			if err != nil {
				delete(scores, k)
				continue
			}
			f = parsed
		default:
			delete(scores, k)
			continue
		}
		if f > 1 && f <= 100 {
			f /= 100
		}
		scores[k] = math.Max(0, math.Min(1, f))
	}
}
