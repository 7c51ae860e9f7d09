package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/DukeRupert/fieldreport/internal/ai/mock"
	"github.com/DukeRupert/fieldreport/internal/auth"
	"github.com/DukeRupert/fieldreport/internal/completion"
	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/editor"
	"github.com/DukeRupert/fieldreport/internal/export"
	"github.com/DukeRupert/fieldreport/internal/ingest"
	"github.com/DukeRupert/fieldreport/internal/middleware"
	"github.com/DukeRupert/fieldreport/internal/sequence"
	"github.com/DukeRupert/fieldreport/internal/storage"
	"github.com/DukeRupert/fieldreport/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var clock = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	store    *store.MemoryStore
	pipeline *ingest.Pipeline
	ai       *mock.Provider
	manager  *editor.Manager
	mux      *http.ServeMux
}

func newFixture(t *testing.T, aiLimit int) *fixture {
	t.Helper()

	files, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()}, discardLogger())
	require.NoError(t, err)

	f := &fixture{
		store: store.NewMemoryStore(),
		ai:    mock.New(discardLogger()),
		mux:   http.NewServeMux(),
	}
	previews := ingest.NewPreviewCache(64, 80)
	f.pipeline = ingest.New(files, previews, ingest.Config{}, discardLogger())
	renderer := export.NewRenderer(discardLogger())
	publisher := export.NewPublisher(renderer, files, discardLogger())
	committer := completion.New(f.store, sequence.NewMemoryGenerator(), publisher, discardLogger()).
		WithClock(func() time.Time { return clock })

	cfg := editor.DefaultConfig()
	cfg.AutosaveInterval = time.Hour
	f.manager, err = editor.NewManager(editor.Deps{
		Store:     f.store,
		Pipeline:  f.pipeline,
		Committer: committer,
		Remote:    files,
		Publisher: publisher,
		AI:        f.ai,
		Logger:    discardLogger(),
		Now:       func() time.Time { return clock },
	}, cfg, auth.NewStaticProvider("tech-7", "Dana Ruiz"))
	require.NoError(t, err)

	h := New(Config{
		Manager:  f.manager,
		Store:    f.store,
		Renderer: renderer,
		Previews: previews,
		Files:    files,
		Logger:   discardLogger(),
	})

	var limit func(http.Handler) http.Handler
	if aiLimit > 0 {
		limiter := middleware.NewRateLimiter(aiLimit, time.Minute)
		t.Cleanup(limiter.Close)
		limit = middleware.NewRateLimitMiddleware(limiter, discardLogger()).Limit
	}
	h.RegisterRoutes(f.mux, limit)

	t.Cleanup(func() {
		f.pipeline.Wait()
		_ = f.manager.Shutdown(context.Background())
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) create(t *testing.T) string {
	t.Helper()
	rec := f.do(t, "POST", "/api/reports", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ReportView](t, rec).Document.LocalID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[JSONError](t, rec).Error.Code
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 16), G: 90, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

// =============================================================================
// Reports
// =============================================================================

func TestHandler_CreateEditAndList(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t)

	rec := f.do(t, "PATCH", "/api/reports/"+id+"/fields", FieldEdit{Path: "customer.companyName", Value: "Acme Cold Storage"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[ReportView](t, rec)
	assert.Equal(t, "Acme Cold Storage", view.Document.Customer.CompanyName)
	assert.True(t, view.Sync.Dirty)

	rec = f.do(t, "PATCH", "/api/reports/"+id+"/fields", FieldEdit{Path: "followUpRecommended", Value: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, "POST", "/api/reports/"+id+"/save", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[ReportView](t, rec).Sync.Dirty)

	rec = f.do(t, "GET", "/api/reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Reports []ReportSummary `json:"reports"`
	}](t, rec)
	require.Len(t, list.Reports, 1)
	assert.Equal(t, "Acme Cold Storage", list.Reports[0].Title)
	assert.Equal(t, domain.LifecycleDraft, list.Reports[0].State)
	assert.True(t, list.Reports[0].Open)
}

func TestHandler_ErrorStatuses(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t)

	tests := []struct {
		name     string
		method   string
		target   string
		body     any
		want     int
		wantCode string
	}{
		{"unknown report", "GET", "/api/reports/nope", nil, http.StatusNotFound, domain.ENOTFOUND},
		{"unknown field", "PATCH", "/api/reports/" + id + "/fields", FieldEdit{Path: "customer.fax", Value: "x"}, http.StatusBadRequest, domain.EINVALID},
		{"wrong value type", "PATCH", "/api/reports/" + id + "/fields", FieldEdit{Path: "followUpRecommended", Value: "maybe"}, http.StatusBadRequest, domain.EINVALID},
		{"unknown list", "POST", "/api/reports/" + id + "/lists/snacks", ListItemInput{Text: "x"}, http.StatusBadRequest, domain.EINVALID},
		{"unknown part", "DELETE", "/api/reports/" + id + "/parts/missing", nil, http.StatusNotFound, domain.ENOTFOUND},
		{"issue without editor", "PATCH", "/api/reports/" + id + "/issues/missing/fields", FieldEdit{Path: "title", Value: "x"}, http.StatusNotFound, domain.ENOTFOUND},
		{"bad export format", "GET", "/api/reports/" + id + "/export/pdf", nil, http.StatusBadRequest, domain.EINVALID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
			assert.NotContains(t, rec.Body.String(), "editor.")
		})
	}
}

func TestHandler_RejectsUnknownBodyFields(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t)

	rec := f.do(t, "PATCH", "/api/reports/"+id+"/fields", map[string]any{"path": "site.name", "value": "Dock 4", "force": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ListsAndParts(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t)

	rec := f.do(t, "POST", "/api/reports/"+id+"/lists/toolsUsed", ListItemInput{Text: "Manifold gauges"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := decode[domain.LineItem](t, rec)

	rec = f.do(t, "PUT", "/api/reports/"+id+"/lists/toolsUsed/"+item.ItemID, ListItemInput{Text: "Digital manifold"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, "POST", "/api/reports/"+id+"/parts", domain.PartLineItem{PartNumber: "CAP-45/5", Quantity: "1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	part := decode[domain.PartLineItem](t, rec)
	assert.NotEmpty(t, part.LineID)

	rec = f.do(t, "GET", "/api/reports/"+id, nil)
	doc := decode[ReportView](t, rec).Document
	require.Len(t, doc.ToolsUsed, 1)
	assert.Equal(t, "Digital manifold", doc.ToolsUsed[0].Text)
	require.Len(t, doc.Parts, 1)

	assert.Equal(t, http.StatusNoContent, f.do(t, "DELETE", "/api/reports/"+id+"/parts/"+part.LineID, nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, "DELETE", "/api/reports/"+id+"/lists/toolsUsed/"+item.ItemID, nil).Code)
}

func TestHandler_IssueSubEditor(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t)

	rec := f.do(t, "POST", "/api/reports/"+id+"/issues", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	issue := decode[IssueView](t, rec)
	assert.True(t, issue.New)
	issueID := issue.Issue.IssueID
	base := "/api/reports/" + id + "/issues/" + issueID

	rec = f.do(t, "PATCH", base+"/fields", FieldEdit{Path: "title", Value: "Condenser fan seized"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, "POST", base+"/lists/proposedFixes", ListItemInput{Text: "Replace motor"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Private until saved.
	doc := decode[ReportView](t, f.do(t, "GET", "/api/reports/"+id, nil)).Document
	assert.Empty(t, doc.Issues)

	rec = f.do(t, "POST", base+"/save", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	doc = decode[ReportView](t, f.do(t, "GET", "/api/reports/"+id, nil)).Document
	require.Len(t, doc.Issues, 1)
	assert.Equal(t, "Condenser fan seized", doc.Issues[0].Title)
	require.Len(t, doc.Issues[0].ProposedFixes, 1)

	// Editing again then discarding leaves the report unchanged.
	require.Equal(t, http.StatusOK, f.do(t, "POST", base+"/edit", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, "PATCH", base+"/fields", FieldEdit{Path: "title", Value: "Changed"}).Code)
	require.Equal(t, http.StatusNoContent, f.do(t, "POST", base+"/discard", nil).Code)
	doc = decode[ReportView](t, f.do(t, "GET", "/api/reports/"+id, nil)).Document
	assert.Equal(t, "Condenser fan seized", doc.Issues[0].Title)

	require.Equal(t, http.StatusNoContent, f.do(t, "DELETE", base, nil).Code)
	doc = decode[ReportView](t, f.do(t, "GET", "/api/reports/"+id, nil)).Document
	assert.Empty(t, doc.Issues)
}

func TestHandler_CloseReport(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t)

	rec := f.do(t, "POST", "/api/reports/"+id+"/close", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.ECONFLICT, errorCode(t, rec))

	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/reports/"+id+"/close?force=sure", nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, "POST", "/api/reports/"+id+"/close?force=true", nil).Code)
	assert.Empty(t, f.manager.OpenIDs())
}

// =============================================================================
// Attachments
// =============================================================================

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="`+fileField+`"; filename="`+fileName+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandler_AttachAndPreview(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t)

	body, contentType := multipartBody(t, map[string]string{"bucket": "nameplate_scan"}, "files", "plate.png", "image/png", pngBytes(t))
	req := httptest.NewRequest("POST", "/api/reports/"+id+"/attachments", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	placeholders := decode[struct {
		Attachments []*domain.Attachment `json:"attachments"`
	}](t, rec).Attachments
	require.Len(t, placeholders, 1)
	attID := placeholders[0].AttachmentID
	assert.Equal(t, domain.BucketNameplateScan, placeholders[0].Bucket)

	f.pipeline.Wait()

	doc := decode[ReportView](t, f.do(t, "GET", "/api/reports/"+id, nil)).Document
	require.Len(t, doc.Attachments, 1)
	assert.Equal(t, domain.IngestionReady, doc.Attachments[0].IngestionState)

	rec = f.do(t, "GET", "/api/previews/"+attID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/previews/unknown", nil).Code)

	// Nameplate scan reads the settled photo.
	f.ai.ExtractFieldsResponse = map[string]string{"manufacturer": "Carrier", "model": "50XC"}
	rec = f.do(t, "POST", "/api/reports/"+id+"/nameplate", NameplateRequest{AttachmentID: attID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc = decode[ReportView](t, f.do(t, "GET", "/api/reports/"+id, nil)).Document
	assert.Equal(t, "Carrier", doc.Asset.Manufacturer)

	assert.Equal(t, http.StatusNoContent, f.do(t, "DELETE", "/api/reports/"+id+"/attachments/"+attID, nil).Code)
	doc = decode[ReportView](t, f.do(t, "GET", "/api/reports/"+id, nil)).Document
	assert.Empty(t, doc.Attachments)
}

func TestHandler_AttachRequiresFiles(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("bucket", "other"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/reports/"+id+"/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Completion and Export
// =============================================================================

func TestHandler_CompleteExportAndFiles(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t)
	require.Equal(t, http.StatusOK, f.do(t, "PATCH", "/api/reports/"+id+"/fields", FieldEdit{Path: "site.name", Value: "Dock 4"}).Code)

	rec := f.do(t, "GET", "/api/reports/"+id+"/export/md", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".md")
	assert.Contains(t, rec.Body.String(), "Dock 4")

	rec = f.do(t, "POST", "/api/reports/"+id+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[CompleteResult](t, rec)
	assert.Equal(t, "2026-1", result.Document.RemoteSequenceID)
	assert.Equal(t, domain.LifecycleCompleted, result.Document.LifecycleState)
	require.NotEmpty(t, result.Statuses)
	assert.Equal(t, completion.StatusComplete, result.Statuses[len(result.Statuses)-1])

	// Completed reports are read-only.
	rec = f.do(t, "PATCH", "/api/reports/"+id+"/fields", FieldEdit{Path: "site.name", Value: "Dock 5"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, "GET", "/files/"+storage.ArtifactKey(id, "2026-1", "json"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2026-1")
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/files/reports/2026/2026-9/report.json", nil).Code)

	rec = f.do(t, "POST", "/api/reports/"+id+"/export", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, "GET", "/api/reports/"+id+"/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[struct {
		Events []*domain.AuditEvent `json:"events"`
	}](t, rec).Events
	var kinds []string
	for _, e := range events {
		kinds = append(kinds, e.ActionKind)
	}
	assert.Contains(t, kinds, domain.AuditCompleted)
	assert.Contains(t, kinds, domain.AuditExported)
}

// =============================================================================
// AI Enrichment
// =============================================================================

func TestHandler_SummaryRateLimited(t *testing.T) {
	f := newFixture(t, 1)
	id := f.create(t)
	f.ai.GenerateTextResponse = "Replaced the run capacitor."

	rec := f.do(t, "POST", "/api/reports/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Replaced the run capacitor.", decode[map[string]string](t, rec)["narrativeSummary"])

	rec = f.do(t, "POST", "/api/reports/"+id+"/summary", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestHandler_Dictate(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t)
	f.ai.TranscribeResponse = "Compressor short cycling."

	send := func(path string) *httptest.ResponseRecorder {
		body, contentType := multipartBody(t, map[string]string{"path": path}, "audio", "note.m4a", "audio/mp4", []byte("....ftypM4A"))
		req := httptest.NewRequest("POST", "/api/reports/"+id+"/dictate", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		f.mux.ServeHTTP(rec, req)
		return rec
	}

	rec := send("narrativeSummary")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode[ReportView](t, f.do(t, "GET", "/api/reports/"+id, nil)).Document
	assert.True(t, strings.HasPrefix(doc.NarrativeSummary, "Compressor short cycling."))

	rec = send("customer.fax")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
