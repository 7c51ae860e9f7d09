// Package store provides durable local persistence for report documents and
// the append-only audit log.
//
// The store is the single source of truth for what exists on this device. It
// works without network access and persists whole documents only: every Put
// replaces the stored value for a local id.
package store

import (
	"context"
	"errors"

	"github.com/DukeRupert/fieldreport/internal/domain"
)

// errNotInitialized is wrapped into a StorageUnavailable error when a store
// is used before its engine was opened.
var errNotInitialized = errors.New("storage engine not initialized")

// Store persists report snapshots and audit events.
//
// Implementations must make Put atomic with respect to readers and must
// report an unusable engine as a domain error with code EUNAVAILABLE.
type Store interface {
	// Put replaces the stored document for doc.LocalID.
	Put(ctx context.Context, doc *domain.ReportDocument) error

	// Get returns the stored document or an ENOTFOUND error.
	Get(ctx context.Context, localID string) (*domain.ReportDocument, error)

	// ListAll returns every stored document in no particular order.
	ListAll(ctx context.Context) ([]*domain.ReportDocument, error)

	// AppendAuditEvent writes one event. It is independent of documents:
	// its failure never affects a Put.
	AppendAuditEvent(ctx context.Context, event *domain.AuditEvent) error

	// ListAuditEvents returns events for one document (all events when
	// documentID is empty), oldest first.
	ListAuditEvents(ctx context.Context, documentID string) ([]*domain.AuditEvent, error)
}

func validateDocument(op string, doc *domain.ReportDocument) error {
	if doc == nil {
		return domain.Invalid(op, "document is required")
	}
	if doc.LocalID == "" {
		return domain.Invalid(op, "document local id is required")
	}
	if !doc.LifecycleState.IsValid() {
		return domain.Invalid(op, "document lifecycle state is invalid")
	}
	return nil
}

func validateEvent(op string, event *domain.AuditEvent) error {
	if event == nil || event.EventID == "" {
		return domain.Invalid(op, "audit event id is required")
	}
	if event.ActionKind == "" {
		return domain.Invalid(op, "audit event action kind is required")
	}
	return nil
}
