package exporter

import (
	"time"

	"enrichdash/pkg/contracts/domain"
)

// formatTime formats timestamps for export; the zero time is blank
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// formatOptional renders a nullable string
func formatOptional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// formatReady renders the report-ready flag
func formatReady(c domain.Company) string {
	if c.HasReport() {
		return "Yes"
	}
	return "No"
}
