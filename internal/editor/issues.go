package editor

import (
	"context"

	"github.com/DukeRupert/fieldreport/internal/document"
	"github.com/DukeRupert/fieldreport/internal/domain"
)

// OpenIssue starts a sub-editor on a private copy of one issue, or on a new
// issue when issueID is empty. Opening an issue that already has an editor
// returns that editor.
func (s *Session) OpenIssue(issueID string) (*document.IssueEditor, error) {
	const op = "editor.open_issue"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkEditable(op); err != nil {
		return nil, err
	}
	if ed, ok := s.issues[issueID]; ok && issueID != "" {
		return ed, nil
	}
	ed, err := document.OpenIssue(s.doc, issueID)
	if err != nil {
		return nil, err
	}
	s.issues[ed.ID()] = ed
	return ed, nil
}

// IssueEditor returns the open sub-editor for an issue.
func (s *Session) IssueEditor(issueID string) (*document.IssueEditor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ed, ok := s.issues[issueID]
	if !ok {
		return nil, domain.NotFound("editor.issue_editor", "open issue", issueID)
	}
	return ed, nil
}

// SaveIssue merges the sub-editor's copy into the report and closes the
// sub-editor. Report edits made while it was open are kept.
func (s *Session) SaveIssue(ctx context.Context, issueID string) (*domain.Issue, error) {
	var saved *domain.Issue
	err := s.mutate(ctx, "editor.save_issue", func(doc *domain.ReportDocument) (*domain.ReportDocument, *domain.AuditEvent, error) {
		ed, ok := s.issues[issueID]
		if !ok {
			return nil, nil, domain.NotFound("editor.save_issue", "open issue", issueID)
		}
		issue := ed.Issue()
		next, err := document.MergeIssue(doc, issue)
		if err != nil {
			return nil, nil, err
		}
		delete(s.issues, issueID)
		saved = issue
		return next, s.event(domain.AuditIssueSaved).
			WithMeta("issueId", issueID).
			WithMeta("new", ed.IsNew()), nil
	})
	return saved, err
}

// DiscardIssue closes a sub-editor without merging. Previews of attachments
// that only existed in the private copy are released.
func (s *Session) DiscardIssue(issueID string) error {
	s.mu.Lock()
	ed, ok := s.issues[issueID]
	if !ok {
		s.mu.Unlock()
		return domain.NotFound("editor.discard_issue", "open issue", issueID)
	}
	delete(s.issues, issueID)

	var orphaned []string
	for _, a := range ed.Issue().Attachments {
		if s.doc.FindAttachment(a.AttachmentID) == nil && a.LocalPreviewRef != "" {
			orphaned = append(orphaned, a.LocalPreviewRef)
		}
	}
	s.mu.Unlock()

	if previews := s.deps.Pipeline.Previews(); previews != nil {
		for _, ref := range orphaned {
			previews.Release(ref)
		}
	}
	return nil
}

// RemoveIssue deletes an issue from the report. An open sub-editor for it
// is discarded.
func (s *Session) RemoveIssue(ctx context.Context, issueID string) error {
	return s.mutate(ctx, "editor.remove_issue", func(doc *domain.ReportDocument) (*domain.ReportDocument, *domain.AuditEvent, error) {
		next, err := document.RemoveIssue(doc, issueID)
		if err != nil {
			return nil, nil, err
		}
		delete(s.issues, issueID)
		return next, s.event(domain.AuditIssueRemoved).WithMeta("issueId", issueID), nil
	})
}
