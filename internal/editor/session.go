// Package editor owns open report documents.
//
// A Session serializes every change to one document behind a mutex. Store
// and remote I/O run outside the lock on a snapshot, and their results are
// folded back by revision or by attachment id, so a slow save never clears
// dirty on edits it did not write and a late upload never resurrects a
// removed attachment.
package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/fieldreport/internal/completion"
	"github.com/DukeRupert/fieldreport/internal/document"
	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/metrics"
)

// Save triggers, used as metric labels.
const (
	TriggerExplicit = "explicit"
	TriggerAutosave = "autosave"
	TriggerShutdown = "shutdown"
)

// Session is one open document.
type Session struct {
	deps   *Deps
	actor  domain.Identity
	logger *slog.Logger

	// saveSlot orders persistence: snapshots reach the store in the order
	// they were taken, so an older snapshot never overwrites a newer one.
	// Completion holds it for the whole sequence. It is a channel so waiters
	// can give up when their context ends.
	saveSlot chan struct{}

	mu         sync.Mutex
	doc        *domain.ReportDocument
	issues     map[string]*document.IssueEditor
	completing bool
	closed     bool
}

func newSession(deps *Deps, doc *domain.ReportDocument, actor domain.Identity) *Session {
	return &Session{
		deps:   deps,
		actor:  actor,
		logger: deps.Logger.With("local_id", doc.LocalID),
		doc:    doc,
		issues: make(map[string]*document.IssueEditor),

		saveSlot: make(chan struct{}, 1),
	}
}

// acquireSave waits for the save slot or for ctx to end.
func (s *Session) acquireSave(ctx context.Context) error {
	select {
	case s.saveSlot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) releaseSave() {
	<-s.saveSlot
}

// =============================================================================
// Read Access
// =============================================================================

// ID returns the document's local id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.LocalID
}

// Snapshot returns a copy of the current in-memory document.
func (s *Session) Snapshot() *domain.ReportDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// IsDirty reports unsaved changes.
func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.SyncState.IsDirty
}

// IsOffline reports whether the last remote mirror failed.
func (s *Session) IsOffline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.SyncState.IsOfflineHint
}

// Actor is the identity mutations are attributed to.
func (s *Session) Actor() domain.Identity {
	return s.actor
}

// =============================================================================
// Mutations
// =============================================================================

// mutation computes the next document from the current one. It runs under
// the session lock and must not block.
type mutation func(doc *domain.ReportDocument) (*domain.ReportDocument, *domain.AuditEvent, error)

func (s *Session) mutate(ctx context.Context, op string, fn mutation) error {
	s.mu.Lock()
	if err := s.checkEditable(op); err != nil {
		s.mu.Unlock()
		return err
	}
	next, event, err := fn(s.doc)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.doc = next
	s.mu.Unlock()

	s.audit(ctx, event)
	return nil
}

// checkEditable must be called with s.mu held.
func (s *Session) checkEditable(op string) error {
	switch {
	case s.closed:
		return domain.Conflict(op, "This report is no longer open.")
	case s.completing:
		return domain.Conflict(op, "This report is being completed.")
	case !s.doc.IsEditable():
		return domain.Conflict(op, "Completed reports cannot be edited.")
	}
	return nil
}

func (s *Session) event(action string) *domain.AuditEvent {
	return domain.NewAuditEvent(s.doc.LocalID, s.actor.ID, action, s.deps.Now())
}

// audit appends an event. Failures are logged and counted, never returned.
func (s *Session) audit(ctx context.Context, event *domain.AuditEvent) {
	if event == nil {
		return
	}
	if err := s.deps.Store.AppendAuditEvent(ctx, event); err != nil {
		metrics.AuditEventFailures.Inc()
		s.logger.Warn("audit event not recorded",
			"action", event.ActionKind,
			"error", err,
		)
	}
}

// ApplyFieldEdit sets one report field, e.g. "customer.companyName".
func (s *Session) ApplyFieldEdit(ctx context.Context, path string, value any) error {
	return s.mutate(ctx, "editor.apply_field_edit", func(doc *domain.ReportDocument) (*domain.ReportDocument, *domain.AuditEvent, error) {
		old, err := document.FieldValue(doc, path)
		if err != nil {
			return nil, nil, err
		}
		next, err := document.ApplyFieldEdit(doc, path, value)
		if err != nil {
			return nil, nil, err
		}
		newValue, _ := document.FieldValue(next, path)
		return next, s.event(domain.AuditFieldEdited).WithField(path, old, newValue), nil
	})
}

// AddListItem appends to a report list and returns the new item.
func (s *Session) AddListItem(ctx context.Context, list document.List, text string) (*domain.LineItem, error) {
	var added *domain.LineItem
	err := s.mutate(ctx, "editor.add_list_item", func(doc *domain.ReportDocument) (*domain.ReportDocument, *domain.AuditEvent, error) {
		next, item, err := document.AddListItem(doc, list, text)
		if err != nil {
			return nil, nil, err
		}
		added = item
		return next, s.event(domain.AuditListItemAdded).WithField(string(list), nil, text).WithMeta("itemId", item.ItemID), nil
	})
	return added, err
}

// EditListItem replaces the text of a report list item.
func (s *Session) EditListItem(ctx context.Context, list document.List, itemID, text string) error {
	return s.mutate(ctx, "editor.edit_list_item", func(doc *domain.ReportDocument) (*domain.ReportDocument, *domain.AuditEvent, error) {
		next, err := document.EditListItem(doc, list, itemID, text)
		if err != nil {
			return nil, nil, err
		}
		return next, s.event(domain.AuditListItemEdited).WithField(string(list), nil, text).WithMeta("itemId", itemID), nil
	})
}

// RemoveListItem deletes a report list item.
func (s *Session) RemoveListItem(ctx context.Context, list document.List, itemID string) error {
	return s.mutate(ctx, "editor.remove_list_item", func(doc *domain.ReportDocument) (*domain.ReportDocument, *domain.AuditEvent, error) {
		next, err := document.RemoveListItem(doc, list, itemID)
		if err != nil {
			return nil, nil, err
		}
		return next, s.event(domain.AuditListItemRemoved).WithField(string(list), nil, nil).WithMeta("itemId", itemID), nil
	})
}

// AddPart appends a report-level part.
func (s *Session) AddPart(ctx context.Context, part domain.PartLineItem) (*domain.PartLineItem, error) {
	var added *domain.PartLineItem
	err := s.mutate(ctx, "editor.add_part", func(doc *domain.ReportDocument) (*domain.ReportDocument, *domain.AuditEvent, error) {
		next, p, err := document.AddPart(doc, part)
		if err != nil {
			return nil, nil, err
		}
		added = p
		return next, s.event(domain.AuditListItemAdded).WithField("parts", nil, p).WithMeta("itemId", p.LineID), nil
	})
	return added, err
}

// EditPart replaces a report-level part by line id.
func (s *Session) EditPart(ctx context.Context, part domain.PartLineItem) error {
	return s.mutate(ctx, "editor.edit_part", func(doc *domain.ReportDocument) (*domain.ReportDocument, *domain.AuditEvent, error) {
		next, err := document.EditPart(doc, part)
		if err != nil {
			return nil, nil, err
		}
		return next, s.event(domain.AuditListItemEdited).WithField("parts", nil, part).WithMeta("itemId", part.LineID), nil
	})
}

// RemovePart deletes a report-level part.
func (s *Session) RemovePart(ctx context.Context, lineID string) error {
	return s.mutate(ctx, "editor.remove_part", func(doc *domain.ReportDocument) (*domain.ReportDocument, *domain.AuditEvent, error) {
		next, err := document.RemovePart(doc, lineID)
		if err != nil {
			return nil, nil, err
		}
		return next, s.event(domain.AuditListItemRemoved).WithField("parts", nil, nil).WithMeta("itemId", lineID), nil
	})
}

// =============================================================================
// Persistence
// =============================================================================

// persist writes the current value if it is dirty. Dirty is cleared only
// when no mutation landed while the store call was running.
func (s *Session) persist(ctx context.Context, trigger string) (saved bool, err error) {
	if err := s.acquireSave(ctx); err != nil {
		return false, err
	}
	defer s.releaseSave()

	s.mu.Lock()
	if !s.doc.SyncState.IsDirty {
		s.mu.Unlock()
		return false, nil
	}
	now := s.deps.Now()
	snap := s.doc.Clone()
	snap.UpdatedAt = now
	revision := snap.SyncState.Revision
	s.mu.Unlock()

	err = s.deps.Store.Put(ctx, snap)
	metrics.DocumentSaves.WithLabelValues(trigger, metrics.Status(err)).Inc()
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.doc.UpdatedAt = now
	if s.doc.SyncState.Revision == revision {
		s.doc.MarkPersisted(now)
	} else {
		s.doc.SyncState.LastPersistedAt = now
	}
	s.mu.Unlock()
	return true, nil
}

// SaveDraft persists unsaved changes and returns any store error.
func (s *Session) SaveDraft(ctx context.Context) error {
	saved, err := s.persist(ctx, TriggerExplicit)
	if err != nil {
		s.logger.Error("draft save failed", "error", err)
		return err
	}
	if saved {
		s.mu.Lock()
		event := s.event(domain.AuditDraftSaved)
		s.mu.Unlock()
		s.audit(ctx, event)
	}
	return nil
}

// SilentSave is the autosave step: persist if dirty, then mirror the
// artifacts remotely. Nothing is returned; failures are logged and the
// offline hint records whether the mirror reached remote storage.
func (s *Session) SilentSave(ctx context.Context) {
	s.silentSave(ctx, TriggerAutosave)
}

func (s *Session) silentSave(ctx context.Context, trigger string) {
	saved, err := s.persist(ctx, trigger)
	if err != nil {
		s.logger.Warn("autosave failed", "trigger", trigger, "error", err)
		return
	}

	s.mu.Lock()
	retryMirror := s.doc.SyncState.IsOfflineHint
	s.mu.Unlock()
	if saved || retryMirror {
		s.mirror(ctx)
	}
}

// mirror pushes the current artifacts. It never returns an error.
func (s *Session) mirror(ctx context.Context) {
	if s.deps.Publisher == nil {
		return
	}
	snap := s.Snapshot()

	_, err := s.deps.Publisher.Publish(ctx, snap)
	metrics.MirrorPushes.WithLabelValues(metrics.Status(err)).Inc()

	s.mu.Lock()
	s.doc.SyncState.IsOfflineHint = err != nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("remote mirror failed", "error", err)
		return
	}
	s.logger.Debug("remote mirror updated")
}

// =============================================================================
// Completion
// =============================================================================

// Complete runs the completion sequence on the current value. Edits are
// rejected until it returns. Whatever the sequence produced, including a
// sequence id assigned before a later failure, is kept in the session.
func (s *Session) Complete(ctx context.Context, progress completion.ProgressFunc) (*domain.ReportDocument, error) {
	const op = "editor.complete"

	if err := s.acquireSave(ctx); err != nil {
		return nil, err
	}
	defer s.releaseSave()

	s.mu.Lock()
	if s.closed || s.completing {
		s.mu.Unlock()
		return nil, domain.Conflict(op, "This report cannot be completed right now.")
	}
	s.completing = true
	snap := s.doc.Clone()
	s.mu.Unlock()

	done, err := s.deps.Committer.Complete(ctx, snap, progress)

	s.mu.Lock()
	s.completing = false
	if done != nil {
		s.fold(snap, done)
	}
	result := s.doc.Clone()
	event := s.event(domain.AuditCompleted).
		WithField("lifecycleState", snap.LifecycleState, result.LifecycleState).
		WithMeta("remoteSequenceId", result.RemoteSequenceID)
	if err != nil {
		event.WithMeta("error", domain.ErrorCode(err))
	}
	s.mu.Unlock()

	s.audit(ctx, event)
	return result, err
}

// fold applies a completion result. While completion ran only attachment
// write-backs could change the document; when one did, the completion
// fields are carried onto the newer value and it stays dirty.
// Must be called with s.mu held.
func (s *Session) fold(snap, done *domain.ReportDocument) {
	if s.doc.SyncState.Revision == snap.SyncState.Revision {
		offline := s.doc.SyncState.IsOfflineHint
		s.doc = done
		s.doc.SyncState.IsOfflineHint = offline
		return
	}
	s.doc.RemoteSequenceID = done.RemoteSequenceID
	if done.IsCompleted() {
		s.doc.LifecycleState = done.LifecycleState
		s.doc.UpdatedAt = done.UpdatedAt
	}
	s.doc.MarkDirty()
}

// RetryExport re-renders and re-uploads a completed report's artifacts.
func (s *Session) RetryExport(ctx context.Context, progress completion.ProgressFunc) error {
	snap := s.Snapshot()

	err := s.deps.Committer.RetryExport(ctx, snap, progress)

	s.mu.Lock()
	if err == nil {
		s.doc.SyncState.IsOfflineHint = false
	}
	event := s.event(domain.AuditExported).WithMeta("remoteSequenceId", snap.RemoteSequenceID)
	if err != nil {
		event.WithMeta("error", domain.ErrorCode(err))
	}
	s.mu.Unlock()

	s.audit(ctx, event)
	return err
}

// =============================================================================
// Close
// =============================================================================

// ConfirmFunc is asked whether to close a session with unsaved changes.
type ConfirmFunc func() bool

// Close ends the session. With unsaved changes, confirm decides: false keeps
// the session open and Close returns false. A nil confirm never closes a
// dirty session. Unsaved changes are discarded when the close goes ahead.
func (s *Session) Close(ctx context.Context, confirm ConfirmFunc) bool {
	if s.IsDirty() && (confirm == nil || !confirm()) {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	dirty := s.doc.SyncState.IsDirty
	s.closed = true
	s.issues = make(map[string]*document.IssueEditor)
	localID := s.doc.LocalID
	s.mu.Unlock()

	released := 0
	if previews := s.deps.Pipeline.Previews(); previews != nil {
		released = previews.ReleaseDocument(localID)
	}
	s.logger.Info("session closed",
		"discarded_changes", dirty,
		"previews_released", released,
		"last_persisted_at", s.lastPersisted(),
	)
	return true
}

// IsClosed reports whether Close went ahead.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// lastPersisted is for logging.
func (s *Session) lastPersisted() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.SyncState.LastPersistedAt
}
