// Package email renders batch summaries for operator notification.
package email

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"docxingest/internal/domain"
)

// Subject returns the notification subject line for summary.
func Subject(s *domain.BatchSummary) string {
	return fmt.Sprintf("Invoice processing: %d committed, %d rejected, %d failed",
		s.Committed, s.Rejected, s.Failed)
}

// TextBody renders the plain-text summary.
func TextBody(s *domain.BatchSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s\n", s.BatchID)
	fmt.Fprintf(&b, "Started:  %s\nFinished: %s\n\n", s.StartedAt.Format("2006-01-02 15:04:05 MST"), s.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Messages:   %d\n", s.Messages)
	fmt.Fprintf(&b, "Committed:  %d\n", s.Committed)
	fmt.Fprintf(&b, "Rejected:   %d\n", s.Rejected)
	fmt.Fprintf(&b, "Failed:     %d\n", s.Failed)
	fmt.Fprintf(&b, "Duplicates: %d\n", s.Duplicates)
	fmt.Fprintf(&b, "Skipped:    %d\n", s.Skipped)
	if s.Canceled {
		b.WriteString("\nThe run was canceled before every payload started.\n")
	}
	if s.ReportURL != "" {
		fmt.Fprintf(&b, "\nReport: %s\n", s.ReportURL)
	}

	reasons := s.Reasons()
	if len(reasons) > 0 {
		b.WriteString("\nNot committed:\n")
		for _, k := range sortedKeys(reasons) {
			fmt.Fprintf(&b, "- %s: %s\n", short(k), reasons[k])
		}
	}
	return b.String()
}

// HTMLBody renders the HTML summary.
func HTMLBody(s *domain.BatchSummary) string {
	var rows strings.Builder
	reasons := s.Reasons()
	for _, k := range sortedKeys(reasons) {
		fmt.Fprintf(&rows, "<tr><td style=\"padding:4px 8px;font-family:monospace\">%s</td><td style=\"padding:4px 8px\">%s</td></tr>",
			html.EscapeString(short(k)), html.EscapeString(reasons[k]))
	}
	report := ""
	if s.ReportURL != "" {
		report = fmt.Sprintf(`<p><a href="%s">Download the batch report</a></p>`, html.EscapeString(s.ReportURL))
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Invoice processing summary</h2>
  <p>Batch <code>%s</code></p>
  <table>
    <tr><td>Messages</td><td>%d</td></tr>
    <tr><td>Committed</td><td>%d</td></tr>
    <tr><td>Rejected</td><td>%d</td></tr>
    <tr><td>Failed</td><td>%d</td></tr>
    <tr><td>Duplicates</td><td>%d</td></tr>
  </table>
  %s
  <table style="border-collapse: collapse; margin-top: 16px;">%s</table>
</body>
</html>`, s.BatchID, s.Messages, s.Committed, s.Rejected, s.Failed, s.Duplicates, report, rows.String())
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
