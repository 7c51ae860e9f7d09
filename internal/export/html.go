package export

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"

	"github.com/DukeRupert/fieldreport/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var htmlTemplate = template.Must(
	template.New("report.html.tmpl").Funcs(templateFuncs()).ParseFS(templateFS, "templates/report.html.tmpl"),
)

// =============================================================================
// HTML Generator
// =============================================================================

// HTMLGenerator renders a standalone HTML page. Image attachments with an
// encoded payload are inlined, so the page needs nothing else to display.
type HTMLGenerator struct {
	logger *slog.Logger
}

// NewHTMLGenerator creates a new HTML report generator.
func NewHTMLGenerator(logger *slog.Logger) *HTMLGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTMLGenerator{logger: logger}
}

// Format returns the output format of this generator.
func (g *HTMLGenerator) Format() domain.ExportFormat {
	return domain.ExportFormatHTML
}

// Generate renders the report and writes it to w.
func (g *HTMLGenerator) Generate(ctx context.Context, doc *domain.ReportDocument, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, buildView(doc)); err != nil {
		return 0, fmt.Errorf("render template: %w", err)
	}

	n, err := w.Write(buf.Bytes())
	if err != nil {
		return int64(n), fmt.Errorf("write output: %w", err)
	}

	g.logger.Debug("html report rendered",
		"local_id", doc.LocalID,
		"size_bytes", n,
		"issue_count", len(doc.Issues),
	)
	return int64(n), nil
}
