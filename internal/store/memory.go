package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DukeRupert/fieldreport/internal/domain"
)

// MemoryStore is an in-process Store used for tests and for running without
// a writable data directory. Values are cloned on the way in and out.
type MemoryStore struct {
	mu          sync.RWMutex
	docs        map[string]*domain.ReportDocument
	events      []*domain.AuditEvent
	unavailable error
	now         func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*domain.ReportDocument),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetUnavailable makes every subsequent call fail with EUNAVAILABLE wrapping
// err. Passing nil restores normal operation.
func (m *MemoryStore) SetUnavailable(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = err
}

func (m *MemoryStore) Put(ctx context.Context, doc *domain.ReportDocument) error {
	const op = "store.put"

	if err := validateDocument(op, doc); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable != nil {
		return domain.Unavailable(m.unavailable, op)
	}
	cp := doc.Clone()
	cp.SyncState = domain.SyncState{
		LastPersistedAt: m.now(),
		Revision:        doc.SyncState.Revision,
	}
	m.docs[doc.LocalID] = cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, localID string) (*domain.ReportDocument, error) {
	const op = "store.get"

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unavailable != nil {
		return nil, domain.Unavailable(m.unavailable, op)
	}
	doc, ok := m.docs[localID]
	if !ok {
		return nil, domain.NotFound(op, "report", localID)
	}
	return doc.Clone(), nil
}

func (m *MemoryStore) ListAll(ctx context.Context) ([]*domain.ReportDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unavailable != nil {
		return nil, domain.Unavailable(m.unavailable, "store.list_all")
	}
	out := make([]*domain.ReportDocument, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc.Clone())
	}
	return out, nil
}

func (m *MemoryStore) AppendAuditEvent(ctx context.Context, event *domain.AuditEvent) error {
	const op = "store.append_audit_event"

	if err := validateEvent(op, event); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable != nil {
		return domain.Unavailable(m.unavailable, op)
	}
	for _, e := range m.events {
		if e.EventID == event.EventID {
			return domain.Conflict(op, "audit event already recorded")
		}
	}
	cp := *event
	m.events = append(m.events, &cp)
	return nil
}

func (m *MemoryStore) ListAuditEvents(ctx context.Context, documentID string) ([]*domain.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unavailable != nil {
		return nil, domain.Unavailable(m.unavailable, "store.list_audit_events")
	}
	var out []*domain.AuditEvent
	for _, e := range m.events {
		if documentID == "" || e.DocumentID == documentID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}
