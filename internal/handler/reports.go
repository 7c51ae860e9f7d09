package handler

import (
	"net/http"
	"strconv"

	"github.com/DukeRupert/fieldreport/internal/document"
	"github.com/DukeRupert/fieldreport/internal/domain"
)

// FieldEdit is the body of a field edit.
type FieldEdit struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// ListItemInput is the body of a list add or edit.
type ListItemInput struct {
	Text string `json:"text"`
}

// ListReports returns stored and open reports, newest first.
// GET /api/reports
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	docs, err := h.manager.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	open := make(map[string]bool)
	for _, id := range h.manager.OpenIDs() {
		open[id] = true
	}

	summaries := make([]ReportSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, ReportSummary{
			LocalID:          doc.LocalID,
			DisplayID:        doc.DisplayID(),
			RemoteSequenceID: doc.RemoteSequenceID,
			State:            doc.LifecycleState,
			Title:            doc.Title(),
			OpenIssues:       doc.OpenIssueCount(),
			UpdatedAt:        doc.UpdatedAt,
			Open:             open[doc.LocalID],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": summaries})
}

// CreateReport starts a new draft for the signed-in technician.
// POST /api/reports
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Create(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReportView(s.Snapshot()))
}

// GetReport opens a report and returns it with its sync status.
// GET /api/reports/{id}
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newReportView(s.Snapshot()))
}

// EditField sets one report field.
// PATCH /api/reports/{id}/fields
func (h *Handler) EditField(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in FieldEdit
	if !h.decodeJSON(w, r, &in) {
		return
	}
	if err := s.ApplyFieldEdit(r.Context(), in.Path, in.Value); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportView(s.Snapshot()))
}

// AddListItem appends to a report list.
// POST /api/reports/{id}/lists/{list}
func (h *Handler) AddListItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	list, err := document.ParseList(r.PathValue("list"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in ListItemInput
	if !h.decodeJSON(w, r, &in) {
		return
	}
	item, err := s.AddListItem(r.Context(), list, in.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// EditListItem replaces a report list item's text.
// PUT /api/reports/{id}/lists/{list}/{itemId}
func (h *Handler) EditListItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	list, err := document.ParseList(r.PathValue("list"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in ListItemInput
	if !h.decodeJSON(w, r, &in) {
		return
	}
	if err := s.EditListItem(r.Context(), list, r.PathValue("itemId"), in.Text); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveListItem deletes a report list item.
// DELETE /api/reports/{id}/lists/{list}/{itemId}
func (h *Handler) RemoveListItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	list, err := document.ParseList(r.PathValue("list"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := s.RemoveListItem(r.Context(), list, r.PathValue("itemId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddPart appends a report-level part.
// POST /api/reports/{id}/parts
func (h *Handler) AddPart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var part domain.PartLineItem
	if !h.decodeJSON(w, r, &part) {
		return
	}
	part.LineID = ""
	added, err := s.AddPart(r.Context(), part)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// EditPart replaces a report-level part.
// PUT /api/reports/{id}/parts/{lineId}
func (h *Handler) EditPart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var part domain.PartLineItem
	if !h.decodeJSON(w, r, &part) {
		return
	}
	part.LineID = r.PathValue("lineId")
	if err := s.EditPart(r.Context(), part); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemovePart deletes a report-level part.
// DELETE /api/reports/{id}/parts/{lineId}
func (h *Handler) RemovePart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.RemovePart(r.Context(), r.PathValue("lineId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveReport persists unsaved changes.
// POST /api/reports/{id}/save
func (h *Handler) SaveReport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.SaveDraft(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportView(s.Snapshot()))
}

// CloseReport ends an open session. A dirty report is only closed with
// force=true, and its unsaved changes are discarded.
// POST /api/reports/{id}/close
func (h *Handler) CloseReport(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		var err error
		if force, err = strconv.ParseBool(raw); err != nil {
			BadRequestResponse(w, r, h.logger, "force must be true or false")
			return
		}
	}
	if err := h.manager.Close(r.Context(), r.PathValue("id"), force); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAudit returns a report's audit trail, oldest first.
// GET /api/reports/{id}/audit
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.ListAuditEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if events == nil {
		events = []*domain.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
