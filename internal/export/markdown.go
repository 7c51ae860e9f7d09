package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/template"

	"github.com/DukeRupert/fieldreport/internal/domain"
)

var markdownTemplate = template.Must(
	template.New("report.md.tmpl").Funcs(templateFuncs()).ParseFS(templateFS, "templates/report.md.tmpl"),
)

// MarkdownGenerator renders a plain-text summary. Attachments are listed by
// name; their payloads are left out.
type MarkdownGenerator struct {
	logger *slog.Logger
}

func NewMarkdownGenerator(logger *slog.Logger) *MarkdownGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarkdownGenerator{logger: logger}
}

func (g *MarkdownGenerator) Format() domain.ExportFormat {
	return domain.ExportFormatMarkdown
}

func (g *MarkdownGenerator) Generate(ctx context.Context, doc *domain.ReportDocument, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if err := markdownTemplate.Execute(&buf, buildView(doc)); err != nil {
		return 0, fmt.Errorf("render template: %w", err)
	}
	buf.WriteByte('\n')

	n, err := w.Write(buf.Bytes())
	if err != nil {
		return int64(n), fmt.Errorf("write output: %w", err)
	}

	g.logger.Debug("markdown report rendered", "local_id", doc.LocalID, "size_bytes", n)
	return int64(n), nil
}
