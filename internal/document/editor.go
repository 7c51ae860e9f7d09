package document

import (
	"fmt"
	"sync"

	"github.com/DukeRupert/fieldreport/internal/domain"
)

// IssueEditor edits a private copy of one issue. Nothing it does is visible
// in the report until the caller merges Issue() back with MergeIssue.
//
// The editor is safe for concurrent use; ingestion results may be written
// back from background goroutines while the user keeps editing.
type IssueEditor struct {
	mu    sync.Mutex
	issue *domain.Issue
	isNew bool
	dirty bool
}

// OpenIssue deep-clones the issue with the given id. An empty id starts a
// new issue whose identity is assigned immediately.
func OpenIssue(doc *domain.ReportDocument, issueID string) (*IssueEditor, error) {
	if issueID == "" {
		return &IssueEditor{issue: domain.NewIssue(), isNew: true}, nil
	}
	existing := doc.FindIssue(issueID)
	if existing == nil {
		return nil, domain.NotFound("document.open_issue", "issue", issueID)
	}
	cp := existing.Clone()
	cp.Sanitize()
	return &IssueEditor{issue: cp}, nil
}

// ID returns the identity of the issue being edited.
func (e *IssueEditor) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.issue.IssueID
}

// IsNew returns true when the issue is not yet part of the report.
func (e *IssueEditor) IsNew() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isNew
}

// IsDirty returns true once the private copy has been changed.
func (e *IssueEditor) IsDirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// Issue returns a copy of the current working issue.
func (e *IssueEditor) Issue() *domain.Issue {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.issue.Clone()
}

// FieldValue reads one issue field from the private copy.
func (e *IssueEditor) FieldValue(path string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := issueFields[path]; !ok {
		return nil, domain.Invalid("document.issue_field_value", fmt.Sprintf("unknown issue field %q", path))
	}
	return issueFieldValue(e.issue, path), nil
}

// ApplyFieldEdit sets one issue field. It returns the previous value.
func (e *IssueEditor) ApplyFieldEdit(path string, value any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := issueFieldValue(e.issue, path)
	next := e.issue.Clone()
	if err := applyIssueFieldEdit(next, path, value); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	e.issue = next
	e.dirty = true
	return old, nil
}

// AddListItem appends to proposedFixes or troubleshootingSteps.
func (e *IssueEditor) AddListItem(list List, text string) (*domain.LineItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	items, err := issueList(e.issue, list)
	if err != nil {
		return nil, err
	}
	e.dirty = true
	return addItem(items, text), nil
}

// EditListItem replaces an item's text by id.
func (e *IssueEditor) EditListItem(list List, itemID, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	items, err := issueList(e.issue, list)
	if err != nil {
		return err
	}
	if err := editItem(*items, itemID, text); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

// RemoveListItem deletes an item by id.
func (e *IssueEditor) RemoveListItem(list List, itemID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	items, err := issueList(e.issue, list)
	if err != nil {
		return err
	}
	if err := removeItem(items, itemID); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

// AddPart appends a part to the issue.
func (e *IssueEditor) AddPart(part domain.PartLineItem) (*domain.PartLineItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	added, err := addPart(&e.issue.Parts, part)
	if err != nil {
		return nil, err
	}
	e.dirty = true
	return added, nil
}

// EditPart replaces an issue part by line id.
func (e *IssueEditor) EditPart(part domain.PartLineItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := editPart(e.issue.Parts, part); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

// RemovePart deletes an issue part by line id.
func (e *IssueEditor) RemovePart(lineID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := removePart(&e.issue.Parts, lineID); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

// AddAttachments inserts ingestion placeholders into the private copy.
func (e *IssueEditor) AddAttachments(atts []*domain.Attachment) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, a := range atts {
		e.issue.Attachments = append(e.issue.Attachments, a.Clone())
	}
	e.dirty = true
}

// RemoveAttachment deletes an attachment from the private copy.
func (e *IssueEditor) RemoveAttachment(attachmentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !removeAttachment(&e.issue.Attachments, attachmentID) {
		return domain.NotFound("document.remove_attachment", "attachment", attachmentID)
	}
	e.dirty = true
	return nil
}

// ReplaceAttachment writes an ingestion result into the private copy by id.
// It is a no-op returning false when the attachment was removed.
func (e *IssueEditor) ReplaceAttachment(att *domain.Attachment) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := indexOfAttachment(e.issue.Attachments, att.AttachmentID)
	if i < 0 {
		return false
	}
	e.issue.Attachments[i] = att.Clone()
	return true
}
