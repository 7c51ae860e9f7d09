// Package handler contains the HTTP handlers for the report API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/editor"
	"github.com/DukeRupert/fieldreport/internal/export"
	"github.com/DukeRupert/fieldreport/internal/ingest"
	"github.com/DukeRupert/fieldreport/internal/storage"
	"github.com/DukeRupert/fieldreport/internal/store"
)

// DefaultMaxRequestSize bounds multipart uploads when Config leaves it zero.
const DefaultMaxRequestSize = 64 << 20

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// Config holds the handler's collaborators.
type Config struct {
	Manager  *editor.Manager
	Store    store.Store
	Renderer *export.Renderer
	Previews *ingest.PreviewCache

	// Files serves mirrored artifacts under /files/. Nil disables the route.
	Files storage.Storage

	// MaxRequestSize bounds one attachment or dictation upload request.
	MaxRequestSize int64

	Logger *slog.Logger
}

// Handler serves the report API.
type Handler struct {
	manager        *editor.Manager
	store          store.Store
	renderer       *export.Renderer
	previews       *ingest.PreviewCache
	files          storage.Storage
	maxRequestSize int64
	logger         *slog.Logger
}

// New creates a Handler.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = DefaultMaxRequestSize
	}
	return &Handler{
		manager:        cfg.Manager,
		store:          cfg.Store,
		renderer:       cfg.Renderer,
		previews:       cfg.Previews,
		files:          cfg.Files,
		maxRequestSize: cfg.MaxRequestSize,
		logger:         cfg.Logger,
	}
}

// RegisterRoutes registers the API routes. aiLimit wraps the enrichment
// routes; pass nil to leave them unlimited.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, aiLimit func(http.Handler) http.Handler) {
	if aiLimit == nil {
		aiLimit = func(next http.Handler) http.Handler { return next }
	}

	// Reports
	mux.HandleFunc("GET /api/reports", h.ListReports)
	mux.HandleFunc("POST /api/reports", h.CreateReport)
	mux.HandleFunc("GET /api/reports/{id}", h.GetReport)
	mux.HandleFunc("PATCH /api/reports/{id}/fields", h.EditField)
	mux.HandleFunc("POST /api/reports/{id}/lists/{list}", h.AddListItem)
	mux.HandleFunc("PUT /api/reports/{id}/lists/{list}/{itemId}", h.EditListItem)
	mux.HandleFunc("DELETE /api/reports/{id}/lists/{list}/{itemId}", h.RemoveListItem)
	mux.HandleFunc("POST /api/reports/{id}/parts", h.AddPart)
	mux.HandleFunc("PUT /api/reports/{id}/parts/{lineId}", h.EditPart)
	mux.HandleFunc("DELETE /api/reports/{id}/parts/{lineId}", h.RemovePart)
	mux.HandleFunc("POST /api/reports/{id}/save", h.SaveReport)
	mux.HandleFunc("POST /api/reports/{id}/close", h.CloseReport)
	mux.HandleFunc("GET /api/reports/{id}/audit", h.ListAudit)

	// Issues
	mux.HandleFunc("POST /api/reports/{id}/issues", h.NewIssue)
	mux.HandleFunc("POST /api/reports/{id}/issues/{issueId}/edit", h.EditIssue)
	mux.HandleFunc("PATCH /api/reports/{id}/issues/{issueId}/fields", h.EditIssueField)
	mux.HandleFunc("POST /api/reports/{id}/issues/{issueId}/lists/{list}", h.AddIssueListItem)
	mux.HandleFunc("POST /api/reports/{id}/issues/{issueId}/save", h.SaveIssue)
	mux.HandleFunc("POST /api/reports/{id}/issues/{issueId}/discard", h.DiscardIssue)
	mux.HandleFunc("DELETE /api/reports/{id}/issues/{issueId}", h.RemoveIssue)

	// Attachments
	mux.HandleFunc("POST /api/reports/{id}/attachments", h.Attach)
	mux.HandleFunc("DELETE /api/reports/{id}/attachments/{attachmentId}", h.RemoveAttachment)
	mux.HandleFunc("GET /api/previews/{attachmentId}", h.Preview)

	// Completion and export
	mux.HandleFunc("POST /api/reports/{id}/complete", h.Complete)
	mux.HandleFunc("POST /api/reports/{id}/export", h.RetryExport)
	mux.HandleFunc("GET /api/reports/{id}/export/{format}", h.Export)

	// AI enrichment
	mux.Handle("POST /api/reports/{id}/summary", aiLimit(http.HandlerFunc(h.Summary)))
	mux.Handle("POST /api/reports/{id}/dictate", aiLimit(http.HandlerFunc(h.Dictate)))
	mux.Handle("POST /api/reports/{id}/nameplate", aiLimit(http.HandlerFunc(h.Nameplate)))

	if h.files != nil {
		mux.HandleFunc("GET /files/{key...}", h.File)
	}
}

// =============================================================================
// Response Types
// =============================================================================

// SyncView is the sync status shown next to a document.
type SyncView struct {
	Dirty           bool      `json:"dirty"`
	Offline         bool      `json:"offline"`
	Revision        int64     `json:"revision"`
	PendingUploads  int       `json:"pendingUploads"`
	LastPersistedAt time.Time `json:"lastPersistedAt,omitzero"`
}

// ReportView is a document plus its sync status.
type ReportView struct {
	Document *domain.ReportDocument `json:"document"`
	Sync     SyncView               `json:"sync"`
}

func newReportView(doc *domain.ReportDocument) ReportView {
	return ReportView{
		Document: doc,
		Sync: SyncView{
			Dirty:           doc.SyncState.IsDirty,
			Offline:         doc.SyncState.IsOfflineHint,
			Revision:        doc.SyncState.Revision,
			PendingUploads:  len(doc.SyncState.PendingUploadIDs),
			LastPersistedAt: doc.SyncState.LastPersistedAt,
		},
	}
}

// ReportSummary is one row of the report list.
type ReportSummary struct {
	LocalID          string                `json:"localId"`
	DisplayID        string                `json:"displayId"`
	RemoteSequenceID string                `json:"remoteSequenceId,omitempty"`
	State            domain.LifecycleState `json:"state"`
	Title            string                `json:"title"`
	OpenIssues       int                   `json:"openIssues"`
	UpdatedAt        time.Time             `json:"updatedAt"`
	Open             bool                  `json:"open"`
}

// =============================================================================
// Helpers
// =============================================================================

// session opens the report named by the {id} path value.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	s, err := h.manager.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	ErrorResponse(w, r, h.logger, err)
}

// decodeJSON reads a bounded JSON body into v.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, domain.Errorf(domain.ETOOLARGE, "", "Request body is too large"))
			return false
		}
		BadRequestResponse(w, r, h.logger, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

// parseMultipart reads a bounded multipart form.
func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, domain.Errorf(domain.ETOOLARGE, "", "Upload exceeds %d MB", h.maxRequestSize>>20))
			return false
		}
		BadRequestResponse(w, r, h.logger, "Expected a multipart form")
		return false
	}
	return true
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
