package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DukeRupert/fieldreport/internal/auth"
	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/metrics"
)

// ErrUnsavedChanges is returned by Manager.Close for a dirty session that
// was not forced closed.
var ErrUnsavedChanges = &domain.Error{
	Code:    domain.ECONFLICT,
	Op:      "editor.close",
	Message: "This report has unsaved changes.",
}

type openSession struct {
	session   *Session
	autosaver *Autosaver
}

// Manager keeps the set of open sessions, each with its own autosaver.
type Manager struct {
	deps   *Deps
	config Config
	auth   auth.Provider
	logger *slog.Logger

	// ctx scopes every autosaver; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*openSession
}

// NewManager validates the configuration and dependencies.
func NewManager(deps Deps, config Config, authProvider auth.Provider) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if authProvider == nil {
		return nil, fmt.Errorf("editor requires an auth provider")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:     &deps,
		config:   config,
		auth:     authProvider,
		logger:   deps.Logger.With("component", "editor"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*openSession),
	}, nil
}

// Create starts a new draft authored by the signed-in technician.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	const op = "editor.create"

	identity, ok := m.auth.CurrentSession(ctx)
	if !ok {
		return nil, domain.Invalid(op, "Sign in before creating a report.")
	}

	doc := domain.NewReportDocument(identity, m.deps.Now())
	s := m.register(doc, identity)

	s.audit(ctx, domain.NewAuditEvent(doc.LocalID, identity.ID, domain.AuditDocumentCreated, doc.CreatedAt).
		WithMeta("author", identity.DisplayName))

	m.logger.Info("report created", "local_id", doc.LocalID, "author", identity.ID)
	return s, nil
}

// Open loads a stored document, or returns its session if already open.
func (m *Manager) Open(ctx context.Context, localID string) (*Session, error) {
	if s, ok := m.Get(localID); ok {
		return s, nil
	}

	doc, err := m.deps.Store.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if dropped := doc.Sanitize(); dropped > 0 {
		m.logger.Warn("dropped malformed entries on load", "local_id", localID, "dropped", dropped)
	}

	identity, ok := m.auth.CurrentSession(ctx)
	if !ok {
		identity = domain.Identity{ID: doc.AuthorIdentity, DisplayName: doc.AuthorDisplayName}
	}

	return m.register(doc, identity), nil
}

// register adds a session and starts its autosaver. When the document was
// opened concurrently, the session already registered wins.
func (m *Manager) register(doc *domain.ReportDocument, identity domain.Identity) *Session {
	s := newSession(m.deps, doc, identity)
	a := NewAutosaver(s, m.config.AutosaveInterval)

	m.mu.Lock()
	if existing, ok := m.sessions[doc.LocalID]; ok {
		m.mu.Unlock()
		return existing.session
	}
	m.sessions[doc.LocalID] = &openSession{session: s, autosaver: a}
	m.mu.Unlock()

	metrics.OpenSessions.Inc()
	a.Start(m.ctx)
	return s
}

// Get returns an open session.
func (m *Manager) Get(localID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[localID]
	if !ok {
		return nil, false
	}
	return entry.session, true
}

// OpenIDs returns the ids of open sessions, sorted.
func (m *Manager) OpenIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns every stored document, with open sessions' in-memory values
// in place of their stored copies, most recently updated first.
func (m *Manager) List(ctx context.Context) ([]*domain.ReportDocument, error) {
	stored, err := m.deps.Store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.ReportDocument, len(stored))
	for _, doc := range stored {
		byID[doc.LocalID] = doc
	}

	m.mu.Lock()
	for id, entry := range m.sessions {
		byID[id] = entry.session.Snapshot()
	}
	m.mu.Unlock()

	docs := make([]*domain.ReportDocument, 0, len(byID))
	for _, doc := range byID {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
		}
		return docs[i].LocalID < docs[j].LocalID
	})
	return docs, nil
}

// Close closes a session. A dirty session is only closed when force is
// set; otherwise ErrUnsavedChanges is returned and it stays open.
func (m *Manager) Close(ctx context.Context, localID string, force bool) error {
	m.mu.Lock()
	entry, ok := m.sessions[localID]
	m.mu.Unlock()
	if !ok {
		return domain.NotFound("editor.close", "open report", localID)
	}

	if !entry.session.Close(ctx, func() bool { return force }) {
		return ErrUnsavedChanges
	}
	entry.autosaver.Stop()

	m.mu.Lock()
	delete(m.sessions, localID)
	m.mu.Unlock()
	metrics.OpenSessions.Dec()
	return nil
}

// Shutdown stops every autosaver, waits for in-flight attachments up to
// ShutdownTimeout, and performs a final silent save of each open session.
// Sessions stay registered so their state can still be read.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("stopping editor...")

	m.mu.Lock()
	entries := make([]*openSession, 0, len(m.sessions))
	for _, entry := range m.sessions {
		entries = append(entries, entry)
	}
	m.mu.Unlock()

	for _, entry := range entries {
		entry.autosaver.Stop()
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.deps.Pipeline.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(m.config.ShutdownTimeout):
		m.logger.Warn("shutdown timeout exceeded, some attachments may still be uploading")
	case <-ctx.Done():
		m.logger.Warn("shutdown cancelled while attachments were uploading", "error", ctx.Err())
	}

	for _, entry := range entries {
		if entry.session.IsClosed() {
			continue
		}
		entry.session.silentSave(ctx, TriggerShutdown)
	}

	m.logger.Info("editor stopped", "sessions", len(entries))
	return ctx.Err()
}
