// Package export renders report documents into their shareable artifacts.
//
// Every completed report produces three artifacts: a self-contained HTML page
// with photos inlined, a Markdown summary, and the canonical JSON interchange
// form. Sync bookkeeping never appears in any of them.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/DukeRupert/fieldreport/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// Generator Interface
// =============================================================================

// Generator defines the interface for artifact generators.
type Generator interface {
	// Generate renders doc and writes it to w.
	// Returns the number of bytes written and any error.
	Generate(ctx context.Context, doc *domain.ReportDocument, w io.Writer) (int64, error)

	// Format returns the output format of this generator.
	Format() domain.ExportFormat
}

// NewGenerator returns the generator for a format.
func NewGenerator(format domain.ExportFormat, logger *slog.Logger) (Generator, error) {
	switch format {
	case domain.ExportFormatHTML:
		return NewHTMLGenerator(logger), nil
	case domain.ExportFormatMarkdown:
		return NewMarkdownGenerator(logger), nil
	case domain.ExportFormatJSON:
		return NewJSONGenerator(), nil
	}
	return nil, fmt.Errorf("unsupported export format: %s", format)
}

// =============================================================================
// Urgency Colors
// =============================================================================

// UrgencyColors maps urgency levels to display colors.
var UrgencyColors = map[domain.Urgency]string{
	domain.UrgencyCritical: "#DC2626",
	domain.UrgencyHigh:     "#F59E0B",
	domain.UrgencyMedium:   "#3B82F6",
	domain.UrgencyLow:      "#6B7280",
}

// UrgencyColor returns the color for an urgency level.
func UrgencyColor(u domain.Urgency) string {
	if color, ok := UrgencyColors[u]; ok {
		return color
	}
	return "#6B7280"
}

// =============================================================================
// Text Formatting Helpers
// =============================================================================

var titleCaser = cases.Title(language.English)

// Label turns a tag value ("issue_photo", "refrigeration") into display text.
func Label(v any) string {
	s := fmt.Sprint(v)
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '_' || r == '-' {
			r = ' '
		}
		out = append(out, r)
	}
	return titleCaser.String(string(out))
}

// FormatDate formats a timestamp for display in reports.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("January 2, 2006")
}

// FormatDateTime formats a timestamp with its time of day.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("January 2, 2006 at 3:04 PM MST")
}

// countingWriter tracks bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
