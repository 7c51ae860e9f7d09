package document

import (
	"github.com/DukeRupert/fieldreport/internal/domain"
)

// Owner identifies the collection an attachment lives in: the report itself
// when IssueID is empty, otherwise that issue.
type Owner struct {
	IssueID string
}

// ReportOwner is the report-level attachment collection.
var ReportOwner = Owner{}

// IssueOwner is the attachment collection of one issue.
func IssueOwner(issueID string) Owner {
	return Owner{IssueID: issueID}
}

// IsReport returns true for report-level attachments.
func (o Owner) IsReport() bool {
	return o.IssueID == ""
}

func (o Owner) String() string {
	if o.IsReport() {
		return "report"
	}
	return "issue:" + o.IssueID
}

// attachments returns a pointer to the owner's collection, or nil if the
// owning issue does not exist.
func (o Owner) attachments(doc *domain.ReportDocument) *[]*domain.Attachment {
	if o.IsReport() {
		return &doc.Attachments
	}
	if issue := doc.FindIssue(o.IssueID); issue != nil {
		return &issue.Attachments
	}
	return nil
}

// AddAttachments inserts placeholders into the owner's collection.
func AddAttachments(doc *domain.ReportDocument, owner Owner, atts []*domain.Attachment) (*domain.ReportDocument, error) {
	next := doc.Clone()
	coll := owner.attachments(next)
	if coll == nil {
		return nil, domain.NotFound("document.add_attachments", "issue", owner.IssueID)
	}
	for _, a := range atts {
		*coll = append(*coll, a.Clone())
	}
	refreshPending(next)
	next.MarkDirty()
	return next, nil
}

// RemoveAttachment deletes an attachment regardless of its ingestion state.
// An in-flight upload is not cancelled; its write-back will find nothing.
func RemoveAttachment(doc *domain.ReportDocument, owner Owner, attachmentID string) (*domain.ReportDocument, error) {
	next := doc.Clone()
	coll := owner.attachments(next)
	if coll == nil || !removeAttachment(coll, attachmentID) {
		return nil, domain.NotFound("document.remove_attachment", "attachment", attachmentID)
	}
	refreshPending(next)
	next.MarkDirty()
	return next, nil
}

// ReplaceAttachment writes an ingestion result back by attachment id. When
// the id is no longer in the owner's collection the input document is
// returned unchanged with ok == false.
func ReplaceAttachment(doc *domain.ReportDocument, owner Owner, att *domain.Attachment) (next *domain.ReportDocument, ok bool) {
	if probe := owner.attachments(doc); probe == nil || indexOfAttachment(*probe, att.AttachmentID) < 0 {
		return doc, false
	}

	next = doc.Clone()
	coll := owner.attachments(next)
	(*coll)[indexOfAttachment(*coll, att.AttachmentID)] = att.Clone()
	refreshPending(next)
	next.MarkDirty()
	return next, true
}

func indexOfAttachment(coll []*domain.Attachment, attachmentID string) int {
	for i, a := range coll {
		if a != nil && a.AttachmentID == attachmentID {
			return i
		}
	}
	return -1
}

func removeAttachment(coll *[]*domain.Attachment, attachmentID string) bool {
	i := indexOfAttachment(*coll, attachmentID)
	if i < 0 {
		return false
	}
	*coll = append((*coll)[:i:i], (*coll)[i+1:]...)
	return true
}

// refreshPending recomputes the set of attachments still being ingested.
func refreshPending(doc *domain.ReportDocument) {
	pending := make(map[string]struct{})
	for _, a := range doc.AllAttachments() {
		if !a.IngestionState.IsTerminal() {
			pending[a.AttachmentID] = struct{}{}
		}
	}
	doc.SyncState.PendingUploadIDs = pending
}
