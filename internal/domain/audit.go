package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit action kinds.
const (
	AuditDocumentCreated   = "document.created"
	AuditFieldEdited       = "document.field_edited"
	AuditListItemAdded     = "document.list_item_added"
	AuditListItemEdited    = "document.list_item_edited"
	AuditListItemRemoved   = "document.list_item_removed"
	AuditIssueSaved        = "issue.saved"
	AuditIssueRemoved      = "issue.removed"
	AuditAttachmentAdded   = "attachment.added"
	AuditAttachmentSettled = "attachment.settled"
	AuditAttachmentRemoved = "attachment.removed"
	AuditDraftSaved        = "document.saved"
	AuditCompleted         = "document.completed"
	AuditExported          = "document.exported"
	AuditEnriched          = "document.enriched"
)

// AuditEvent is a write-once forensic record. Events are never updated or
// deleted and carry no foreign key to the document table.
type AuditEvent struct {
	EventID    string         `json:"eventId"`
	DocumentID string         `json:"documentId,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Actor      string         `json:"actor"`
	ActionKind string         `json:"actionKind"`
	FieldPath  string         `json:"fieldPath,omitempty"`
	OldValue   any            `json:"oldValue,omitempty"`
	NewValue   any            `json:"newValue,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewAuditEvent creates an event with a fresh id.
func NewAuditEvent(documentID, actor, actionKind string, at time.Time) *AuditEvent {
	return &AuditEvent{
		EventID:    uuid.NewString(),
		DocumentID: documentID,
		Timestamp:  at,
		Actor:      actor,
		ActionKind: actionKind,
	}
}

// WithField sets the edited path and its old and new values.
func (e *AuditEvent) WithField(path string, oldValue, newValue any) *AuditEvent {
	e.FieldPath = path
	e.OldValue = oldValue
	e.NewValue = newValue
	return e
}

// WithMeta adds one metadata entry.
func (e *AuditEvent) WithMeta(key string, value any) *AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}
