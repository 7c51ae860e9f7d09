package editor

import (
	"context"

	"github.com/DukeRupert/fieldreport/internal/document"
	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/ingest"
)

// AttachRequest names the files to add and where they go.
type AttachRequest struct {
	Owner    document.Owner
	Bucket   domain.AttachmentBucket
	FieldRef string
	Files    []ingest.Source
}

// Attach inserts placeholders for the files right away and starts their
// ingestion. An issue with an open sub-editor receives them in its private
// copy; otherwise they go straight into the report. Results are written back
// by attachment id as each file settles.
func (s *Session) Attach(ctx context.Context, req AttachRequest) ([]*domain.Attachment, error) {
	const op = "editor.attach"

	s.mu.Lock()
	if err := s.checkEditable(op); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var ed *document.IssueEditor
	if !req.Owner.IsReport() {
		ed = s.issues[req.Owner.IssueID]
		if ed == nil && s.doc.FindIssue(req.Owner.IssueID) == nil {
			s.mu.Unlock()
			return nil, domain.NotFound(op, "issue", req.Owner.IssueID)
		}
	}

	// Results cannot be delivered before the placeholders are inserted:
	// deliver needs s.mu, which is held until then.
	placeholders, err := s.deps.Pipeline.Begin(ctx, ingest.Request{
		LocalID:  s.doc.LocalID,
		Owner:    req.Owner,
		Bucket:   req.Bucket,
		FieldRef: req.FieldRef,
		Files:    req.Files,
	}, s.deliver)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if ed != nil {
		ed.AddAttachments(placeholders)
	} else {
		next, err := document.AddAttachments(s.doc, req.Owner, placeholders)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		s.doc = next
	}

	ids := make([]string, len(placeholders))
	for i, a := range placeholders {
		ids[i] = a.AttachmentID
	}
	event := s.event(domain.AuditAttachmentAdded).
		WithMeta("owner", req.Owner.String()).
		WithMeta("bucket", string(req.Bucket)).
		WithMeta("attachmentIds", ids)
	s.mu.Unlock()

	s.audit(ctx, event)
	return placeholders, nil
}

// deliver applies one ingestion result. The attachment is matched by id in
// the open sub-editor and in the report; where it no longer exists the
// result is dropped.
func (s *Session) deliver(r ingest.Result) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("ingestion result after close dropped", "attachment_id", r.Attachment.AttachmentID)
		return
	}

	applied := false
	if !r.Owner.IsReport() {
		if ed := s.issues[r.Owner.IssueID]; ed != nil {
			applied = ed.ReplaceAttachment(r.Attachment)
		}
	}
	if next, ok := document.ReplaceAttachment(s.doc, r.Owner, r.Attachment); ok {
		s.doc = next
		applied = true
	}

	var event *domain.AuditEvent
	if applied {
		event = s.event(domain.AuditAttachmentSettled).
			WithField("ingestionState", domain.IngestionUploading, r.Attachment.IngestionState).
			WithMeta("attachmentId", r.Attachment.AttachmentID)
		if r.Attachment.Error != "" {
			event.WithMeta("error", r.Attachment.Error)
		}
	}
	s.mu.Unlock()

	if !applied {
		s.logger.Debug("ingestion result for removed attachment dropped",
			"attachment_id", r.Attachment.AttachmentID,
		)
		return
	}
	s.audit(context.Background(), event)
}

// RemoveAttachment deletes an attachment in any ingestion state. Its
// preview is released and its remote object, if any, is deleted on a best
// effort basis.
func (s *Session) RemoveAttachment(ctx context.Context, owner document.Owner, attachmentID string) error {
	const op = "editor.remove_attachment"

	s.mu.Lock()
	if err := s.checkEditable(op); err != nil {
		s.mu.Unlock()
		return err
	}

	var removed *domain.Attachment
	if ed := s.issues[owner.IssueID]; !owner.IsReport() && ed != nil {
		if a := ed.Issue().FindAttachment(attachmentID); a != nil {
			removed = a
		}
		if err := ed.RemoveAttachment(attachmentID); err != nil {
			s.mu.Unlock()
			return err
		}
	} else {
		removed = s.doc.FindAttachment(attachmentID)
		next, err := document.RemoveAttachment(s.doc, owner, attachmentID)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.doc = next
	}
	event := s.event(domain.AuditAttachmentRemoved).
		WithMeta("owner", owner.String()).
		WithMeta("attachmentId", attachmentID)
	s.mu.Unlock()

	if removed != nil {
		if previews := s.deps.Pipeline.Previews(); previews != nil && removed.LocalPreviewRef != "" {
			previews.Release(removed.LocalPreviewRef)
		}
		if removed.RemoteKey != "" && s.deps.Remote != nil {
			if err := s.deps.Remote.Delete(ctx, removed.RemoteKey); err != nil {
				s.logger.Warn("remote attachment not deleted",
					"key", removed.RemoteKey,
					"error", err,
				)
			}
		}
	}

	s.audit(ctx, event)
	return nil
}
