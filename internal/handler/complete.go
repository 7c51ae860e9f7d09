package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/editor"
)

// CompleteResult is the document after completion and the status lines
// reported along the way.
type CompleteResult struct {
	ReportView
	Statuses []string `json:"statuses"`
}

// statusTrail collects progress lines.
type statusTrail struct {
	mu    sync.Mutex
	lines []string
}

func (t *statusTrail) add(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, status)
}

func (t *statusTrail) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.lines...)
}

// Complete assigns the report number and publishes the export files.
// POST /api/reports/{id}/complete
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var trail statusTrail
	doc, err := s.Complete(r.Context(), trail.add)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CompleteResult{ReportView: newReportView(doc), Statuses: trail.list()})
}

// RetryExport re-renders and re-uploads a completed report's files.
// POST /api/reports/{id}/export
func (h *Handler) RetryExport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var trail statusTrail
	if err := s.RetryExport(r.Context(), trail.add); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": trail.list()})
}

// Export renders one artifact of the current document on demand.
// GET /api/reports/{id}/export/{format}
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := domain.ParseExportFormat(r.PathValue("format"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	doc := s.Snapshot()

	artifact, err := h.renderer.Render(r.Context(), doc, format)
	if err != nil {
		h.fail(w, r, domain.ExportFailed(err, "handler.export"))
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("report-%s.%s", doc.DisplayID(), format.FileExtension())))
	_, _ = w.Write(artifact.Data)
}

// =============================================================================
// AI Enrichment
// =============================================================================

// NameplateRequest is the body of a nameplate scan.
type NameplateRequest struct {
	AttachmentID string `json:"attachmentId"`
	Hint         string `json:"hint"`
}

// Summary drafts the narrative summary.
// POST /api/reports/{id}/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	text, err := s.GenerateSummary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"narrativeSummary": text})
}

// Dictate transcribes a voice note into a text field.
// POST /api/reports/{id}/dictate
func (h *Handler) Dictate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if !h.parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, fh, err := r.FormFile("audio")
	if err != nil {
		BadRequestResponse(w, r, h.logger, "Attach the recording as \"audio\"")
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		BadRequestResponse(w, r, h.logger, "Could not read the recording")
		return
	}

	text, err := s.Dictate(r.Context(), editor.DictateRequest{
		IssueID:     r.FormValue("issueId"),
		Path:        r.FormValue("path"),
		Audio:       audio,
		ContentType: fh.Header.Get("Content-Type"),
		Language:    r.FormValue("language"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// Nameplate reads equipment fields from a nameplate photo.
// POST /api/reports/{id}/nameplate
func (h *Handler) Nameplate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in NameplateRequest
	if !h.decodeJSON(w, r, &in) {
		return
	}
	fields, err := s.ScanNameplate(r.Context(), in.AttachmentID, in.Hint)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}
