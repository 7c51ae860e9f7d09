package handler

import (
	"net/http"

	"github.com/DukeRupert/fieldreport/internal/document"
	"github.com/DukeRupert/fieldreport/internal/domain"
)

// IssueView is an issue being edited in a sub-editor.
type IssueView struct {
	Issue *domain.Issue `json:"issue"`
	New   bool          `json:"new"`
	Dirty bool          `json:"dirty"`
}

func newIssueView(ed *document.IssueEditor) IssueView {
	return IssueView{Issue: ed.Issue(), New: ed.IsNew(), Dirty: ed.IsDirty()}
}

// NewIssue opens a sub-editor on a new issue. The issue joins the report
// only when saved.
// POST /api/reports/{id}/issues
func (h *Handler) NewIssue(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ed, err := s.OpenIssue("")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newIssueView(ed))
}

// EditIssue opens a sub-editor on an existing issue.
// POST /api/reports/{id}/issues/{issueId}/edit
func (h *Handler) EditIssue(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ed, err := s.OpenIssue(r.PathValue("issueId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIssueView(ed))
}

// EditIssueField sets one field on the sub-editor's private copy.
// PATCH /api/reports/{id}/issues/{issueId}/fields
func (h *Handler) EditIssueField(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ed, err := s.IssueEditor(r.PathValue("issueId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in FieldEdit
	if !h.decodeJSON(w, r, &in) {
		return
	}
	if _, err := ed.ApplyFieldEdit(in.Path, in.Value); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIssueView(ed))
}

// AddIssueListItem appends to an issue list in the sub-editor.
// POST /api/reports/{id}/issues/{issueId}/lists/{list}
func (h *Handler) AddIssueListItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ed, err := s.IssueEditor(r.PathValue("issueId"))
	if err != nil {
		h.fail(w, r, err)
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
	item, err := ed.AddListItem(list, in.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// SaveIssue merges the sub-editor into the report.
// POST /api/reports/{id}/issues/{issueId}/save
func (h *Handler) SaveIssue(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	issue, err := s.SaveIssue(r.Context(), r.PathValue("issueId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// DiscardIssue closes the sub-editor without merging.
// POST /api/reports/{id}/issues/{issueId}/discard
func (h *Handler) DiscardIssue(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.DiscardIssue(r.PathValue("issueId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveIssue deletes an issue from the report.
// DELETE /api/reports/{id}/issues/{issueId}
func (h *Handler) RemoveIssue(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.RemoveIssue(r.Context(), r.PathValue("issueId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
