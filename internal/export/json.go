package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/DukeRupert/fieldreport/internal/domain"
)

// JSONGenerator writes the canonical interchange form: the document as
// indented JSON. SyncState carries no JSON tag and is never included.
type JSONGenerator struct{}

func NewJSONGenerator() *JSONGenerator {
	return &JSONGenerator{}
}

func (g *JSONGenerator) Format() domain.ExportFormat {
	return domain.ExportFormatJSON
}

func (g *JSONGenerator) Generate(ctx context.Context, doc *domain.ReportDocument, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cw := &countingWriter{w: w}
	enc := json.NewEncoder(cw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return cw.n, fmt.Errorf("encode document: %w", err)
	}
	return cw.n, nil
}

// ParseJSON reads a document back from its interchange form. The result is
// sanitized and has a fresh, clean sync state.
func ParseJSON(r io.Reader) (*domain.ReportDocument, error) {
	const op = "export.parse_json"

	var doc domain.ReportDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Report file is not valid JSON.")
	}
	if doc.LocalID == "" {
		return nil, domain.Invalid(op, "report file has no localId")
	}
	if doc.LifecycleState != "" && !doc.LifecycleState.IsValid() {
		return nil, domain.Invalid(op, fmt.Sprintf("unknown lifecycle state %q", doc.LifecycleState))
	}

	doc.Sanitize()
	doc.SyncState = domain.SyncState{PendingUploadIDs: map[string]struct{}{}}
	return &doc, nil
}
