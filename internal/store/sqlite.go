package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/fieldreport/internal/domain"
)

// SQLiteStore keeps documents as JSON rows in a local SQLite database.
// The schema is created by internal.RunMigrations.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore wraps an open database handle.
func NewSQLiteStore(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Put upserts the whole document in a single statement, so a concurrent
// reader sees either the previous row or the new one.
func (s *SQLiteStore) Put(ctx context.Context, doc *domain.ReportDocument) error {
	const op = "store.put"

	if s.db == nil {
		return domain.Unavailable(errNotInitialized, op)
	}
	if err := validateDocument(op, doc); err != nil {
		return err
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return domain.Internal(err, op, "failed to encode document")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (local_id, lifecycle_state, remote_sequence_id, body, revision, created_at, updated_at, persisted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			lifecycle_state = excluded.lifecycle_state,
			remote_sequence_id = excluded.remote_sequence_id,
			body = excluded.body,
			revision = excluded.revision,
			updated_at = excluded.updated_at,
			persisted_at = excluded.persisted_at`,
		doc.LocalID,
		string(doc.LifecycleState),
		doc.RemoteSequenceID,
		string(body),
		doc.SyncState.Revision,
		formatTime(doc.CreatedAt),
		formatTime(doc.UpdatedAt),
		formatTime(s.now()),
	)
	if err != nil {
		return domain.Unavailable(err, op)
	}
	return nil
}

// Get loads one document and restores its local bookkeeping.
func (s *SQLiteStore) Get(ctx context.Context, localID string) (*domain.ReportDocument, error) {
	const op = "store.get"

	if s.db == nil {
		return nil, domain.Unavailable(errNotInitialized, op)
	}

	var (
		body        string
		revision    int64
		persistedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT body, revision, persisted_at FROM documents WHERE local_id = ?`, localID,
	).Scan(&body, &revision, &persistedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(op, "report", localID)
	}
	if err != nil {
		return nil, domain.Unavailable(err, op)
	}

	doc, err := decodeDocument(body, revision, persistedAt)
	if err != nil {
		return nil, domain.Internal(err, op, "stored document is corrupt")
	}
	return doc, nil
}

// ListAll returns every stored document. Rows that fail to decode are
// logged and skipped so one corrupt report does not hide the rest.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]*domain.ReportDocument, error) {
	const op = "store.list_all"

	if s.db == nil {
		return nil, domain.Unavailable(errNotInitialized, op)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT local_id, body, revision, persisted_at FROM documents`)
	if err != nil {
		return nil, domain.Unavailable(err, op)
	}
	defer rows.Close()

	var docs []*domain.ReportDocument
	for rows.Next() {
		var (
			localID     string
			body        string
			revision    int64
			persistedAt string
		)
		if err := rows.Scan(&localID, &body, &revision, &persistedAt); err != nil {
			return nil, domain.Unavailable(err, op)
		}
		doc, err := decodeDocument(body, revision, persistedAt)
		if err != nil {
			s.logger.Warn("skipping corrupt document", "local_id", localID, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable(err, op)
	}
	return docs, nil
}

// AppendAuditEvent inserts one event. Duplicate event ids are rejected.
func (s *SQLiteStore) AppendAuditEvent(ctx context.Context, event *domain.AuditEvent) error {
	const op = "store.append_audit_event"

	if s.db == nil {
		return domain.Unavailable(errNotInitialized, op)
	}
	if err := validateEvent(op, event); err != nil {
		return err
	}

	oldValue, err := encodeOptional(event.OldValue)
	if err != nil {
		return domain.Internal(err, op, "failed to encode old value")
	}
	newValue, err := encodeOptional(event.NewValue)
	if err != nil {
		return domain.Internal(err, op, "failed to encode new value")
	}
	var metadata any
	if len(event.Metadata) > 0 {
		metadata, err = encodeOptional(event.Metadata)
		if err != nil {
			return domain.Internal(err, op, "failed to encode metadata")
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (event_id, document_id, ts, actor, action_kind, field_path, old_value, new_value, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID,
		event.DocumentID,
		formatTime(event.Timestamp),
		event.Actor,
		event.ActionKind,
		event.FieldPath,
		oldValue,
		newValue,
		metadata,
	)
	if err != nil {
		return domain.Unavailable(err, op)
	}
	return nil
}

// ListAuditEvents returns events oldest first.
func (s *SQLiteStore) ListAuditEvents(ctx context.Context, documentID string) ([]*domain.AuditEvent, error) {
	const op = "store.list_audit_events"

	if s.db == nil {
		return nil, domain.Unavailable(errNotInitialized, op)
	}

	query := `SELECT event_id, document_id, ts, actor, action_kind, field_path, old_value, new_value, metadata
		FROM audit_events`
	var args []any
	if documentID != "" {
		query += ` WHERE document_id = ?`
		args = append(args, documentID)
	}
	query += ` ORDER BY ts, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Unavailable(err, op)
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		var (
			e                        domain.AuditEvent
			ts                       string
			oldValue, newValue, meta sql.NullString
		)
		if err := rows.Scan(&e.EventID, &e.DocumentID, &ts, &e.Actor, &e.ActionKind, &e.FieldPath, &oldValue, &newValue, &meta); err != nil {
			return nil, domain.Unavailable(err, op)
		}
		e.Timestamp = parseTime(ts)
		e.OldValue = decodeOptional(oldValue)
		e.NewValue = decodeOptional(newValue)
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				s.logger.Warn("corrupt audit metadata, keeping raw value",
					"event_id", e.EventID,
					"error", err,
				)
				e.Metadata = map[string]any{"raw": meta.String}
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable(err, op)
	}
	return events, nil
}

// =============================================================================
// Encoding helpers
// =============================================================================

func decodeDocument(body string, revision int64, persistedAt string) (*domain.ReportDocument, error) {
	var doc domain.ReportDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, err
	}
	doc.SyncState = domain.SyncState{
		LastPersistedAt: parseTime(persistedAt),
		Revision:        revision,
	}
	return &doc, nil
}

func encodeOptional(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeOptional(s sql.NullString) any {
	if !s.Valid {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return s.String
	}
	return v
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
