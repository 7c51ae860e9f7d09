package editor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/DukeRupert/fieldreport/internal/ai/mock"
	"github.com/DukeRupert/fieldreport/internal/auth"
	"github.com/DukeRupert/fieldreport/internal/completion"
	"github.com/DukeRupert/fieldreport/internal/document"
	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/export"
	"github.com/DukeRupert/fieldreport/internal/ingest"
	"github.com/DukeRupert/fieldreport/internal/sequence"
	"github.com/DukeRupert/fieldreport/internal/storage"
	"github.com/DukeRupert/fieldreport/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var clock = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Test Doubles
// =============================================================================

// gatedStorage wraps a real storage. Put blocks while a gate is installed
// and fails while err is set.
type gatedStorage struct {
	storage.Storage
	mu   sync.Mutex
	gate chan struct{}
	err  error
}

func (g *gatedStorage) hold() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate = make(chan struct{})
}

func (g *gatedStorage) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gate != nil {
		close(g.gate)
		g.gate = nil
	}
}

func (g *gatedStorage) setErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *gatedStorage) Put(ctx context.Context, key string, data io.Reader, opts storage.PutOptions) error {
	g.mu.Lock()
	gate, err := g.gate, g.err
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return err
	}
	return g.Storage.Put(ctx, key, data, opts)
}

// gatedStore blocks the next Put until released, signalling entered first.
type gatedStore struct {
	*store.MemoryStore
	mu      sync.Mutex
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedStore) holdNextPut() (entered, release chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entered = make(chan struct{})
	g.gate = make(chan struct{})
	return g.entered, g.gate
}

func (g *gatedStore) Put(ctx context.Context, doc *domain.ReportDocument) error {
	g.mu.Lock()
	entered, gate := g.entered, g.gate
	g.entered, g.gate = nil, nil
	g.mu.Unlock()
	if entered != nil {
		close(entered)
		<-gate
	}
	return g.MemoryStore.Put(ctx, doc)
}

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	store    *gatedStore
	seq      *sequence.MemoryGenerator
	uploads  *gatedStorage
	remote   *gatedStorage
	pipeline *ingest.Pipeline
	ai       *mock.Provider
	manager  *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	newLocal := func() storage.Storage {
		s, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()}, discardLogger())
		require.NoError(t, err)
		return s
	}

	f := &fixture{
		store:   &gatedStore{MemoryStore: store.NewMemoryStore()},
		seq:     sequence.NewMemoryGenerator(),
		uploads: &gatedStorage{Storage: newLocal()},
		remote:  &gatedStorage{Storage: newLocal()},
		ai:      mock.New(discardLogger()),
	}
	f.pipeline = ingest.New(f.uploads, ingest.NewPreviewCache(64, 80), ingest.Config{}, discardLogger())
	publisher := export.NewPublisher(export.NewRenderer(discardLogger()), f.remote, discardLogger())
	committer := completion.New(f.store, f.seq, publisher, discardLogger()).
		WithClock(func() time.Time { return clock })

	cfg := DefaultConfig()
	cfg.AutosaveInterval = time.Hour
	cfg.ShutdownTimeout = 5 * time.Second

	m, err := NewManager(Deps{
		Store:     f.store,
		Pipeline:  f.pipeline,
		Committer: committer,
		Remote:    f.uploads,
		Publisher: publisher,
		AI:        f.ai,
		Logger:    discardLogger(),
		Now:       func() time.Time { return clock },
	}, cfg, auth.NewStaticProvider("tech-7", "Dana Ruiz"))
	require.NoError(t, err)
	f.manager = m

	t.Cleanup(func() {
		f.uploads.release()
		f.pipeline.Wait()
		_ = m.Shutdown(context.Background())
	})
	return f
}

func (f *fixture) create(t *testing.T) *Session {
	t.Helper()
	s, err := f.manager.Create(context.Background())
	require.NoError(t, err)
	return s
}

func (f *fixture) actions(t *testing.T, localID string) []string {
	t.Helper()
	events, err := f.store.ListAuditEvents(context.Background(), localID)
	require.NoError(t, err)
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ActionKind
	}
	return out
}

func photo(t *testing.T) ingest.Source {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 12, 12))
	for x := 0; x < 12; x++ {
		for y := 0; y < 12; y++ {
			img.Set(x, y, color.NRGBA{R: 200, G: uint8(y * 20), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return ingest.Source{FileName: "plate.png", ContentType: "image/png", Data: buf.Bytes()}
}

// =============================================================================
// Editing and Persistence
// =============================================================================

func TestSession_SaveDraftClearsDirty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	require.NoError(t, s.ApplyFieldEdit(ctx, "customer.companyName", "Acme Cold Storage"))
	assert.True(t, s.IsDirty())

	require.NoError(t, s.SaveDraft(ctx))
	assert.False(t, s.IsDirty())
	assert.Equal(t, clock, s.Snapshot().SyncState.LastPersistedAt)

	stored, err := f.store.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, "Acme Cold Storage", stored.Customer.CompanyName)
	assert.Equal(t, "tech-7", stored.AuthorIdentity)

	// A clean session does not write again.
	require.NoError(t, s.SaveDraft(ctx))
	assert.Equal(t, []string{
		domain.AuditDocumentCreated,
		domain.AuditFieldEdited,
		domain.AuditDraftSaved,
	}, f.actions(t, s.ID()))
}

func TestSession_FieldEditAuditCarriesValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	require.NoError(t, s.ApplyFieldEdit(ctx, "site.name", "North DC"))
	require.NoError(t, s.ApplyFieldEdit(ctx, "site.name", "South DC"))

	events, err := f.store.ListAuditEvents(ctx, s.ID())
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, "site.name", last.FieldPath)
	assert.Equal(t, "North DC", last.OldValue)
	assert.Equal(t, "South DC", last.NewValue)
	assert.Equal(t, "tech-7", last.Actor)
}

func TestSession_SaveFailureKeepsDirty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	f.store.SetUnavailable(errors.New("disk full"))
	err := s.SaveDraft(ctx)
	require.Error(t, err)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.True(t, s.IsDirty())

	f.store.SetUnavailable(nil)
	require.NoError(t, s.SaveDraft(ctx))
	assert.False(t, s.IsDirty())
}

func TestSession_EditDuringSaveStaysDirty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)
	require.NoError(t, s.ApplyFieldEdit(ctx, "asset.model", "RTU-40"))

	entered, release := f.store.holdNextPut()
	done := make(chan error, 1)
	go func() { done <- s.SaveDraft(ctx) }()

	<-entered
	require.NoError(t, s.ApplyFieldEdit(ctx, "asset.model", "RTU-50"))
	close(release)
	require.NoError(t, <-done)

	assert.True(t, s.IsDirty(), "edit made during the save was not persisted")
	stored, err := f.store.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, "RTU-40", stored.Asset.Model)

	require.NoError(t, s.SaveDraft(ctx))
	assert.False(t, s.IsDirty())
	stored, err = f.store.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, "RTU-50", stored.Asset.Model)
}

func TestSession_ListsAndParts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	item, err := s.AddListItem(ctx, document.ListToolsUsed, "Megger")
	require.NoError(t, err)
	require.NoError(t, s.EditListItem(ctx, document.ListToolsUsed, item.ItemID, "Megger MIT420"))

	part, err := s.AddPart(ctx, domain.PartLineItem{Description: "Contactor", Quantity: "1"})
	require.NoError(t, err)

	doc := s.Snapshot()
	require.Len(t, doc.ToolsUsed, 1)
	assert.Equal(t, "Megger MIT420", doc.ToolsUsed[0].Text)
	require.Len(t, doc.Parts, 1)

	require.NoError(t, s.RemovePart(ctx, part.LineID))
	require.NoError(t, s.RemoveListItem(ctx, document.ListToolsUsed, item.ItemID))
	assert.Empty(t, s.Snapshot().Parts)

	err = s.RemovePart(ctx, part.LineID)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

// =============================================================================
// Issue Sub-editor
// =============================================================================

func TestSession_IssueEditsStayPrivateUntilSaved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	ed, err := s.OpenIssue("")
	require.NoError(t, err)
	_, err = ed.ApplyFieldEdit("title", "Compressor short cycling")
	require.NoError(t, err)

	// Report edits while the sub-editor is open are kept on merge.
	require.NoError(t, s.ApplyFieldEdit(ctx, "visit.jobNumber", "J-1042"))
	assert.Empty(t, s.Snapshot().Issues)

	saved, err := s.SaveIssue(ctx, ed.ID())
	require.NoError(t, err)
	assert.Equal(t, "Compressor short cycling", saved.Title)

	doc := s.Snapshot()
	require.Len(t, doc.Issues, 1)
	assert.Equal(t, "Compressor short cycling", doc.Issues[0].Title)
	assert.Equal(t, "J-1042", doc.Visit.JobNumber)

	_, err = s.IssueEditor(ed.ID())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestSession_DiscardIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	ed, err := s.OpenIssue("")
	require.NoError(t, err)
	_, err = ed.ApplyFieldEdit("title", "Leaking valve")
	require.NoError(t, err)
	_, err = s.SaveIssue(ctx, ed.ID())
	require.NoError(t, err)

	ed, err = s.OpenIssue(ed.ID())
	require.NoError(t, err)
	_, err = ed.ApplyFieldEdit("title", "Changed my mind")
	require.NoError(t, err)
	require.NoError(t, s.DiscardIssue(ed.ID()))

	assert.Equal(t, "Leaking valve", s.Snapshot().Issues[0].Title)

	require.NoError(t, s.RemoveIssue(ctx, ed.ID()))
	assert.Empty(t, s.Snapshot().Issues)
}

// =============================================================================
// Attachments
// =============================================================================

func TestSession_AttachWritesBackByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	f.uploads.hold()
	placeholders, err := s.Attach(ctx, AttachRequest{
		Owner:  document.ReportOwner,
		Bucket: domain.BucketSummaryPhoto,
		Files: []ingest.Source{
			{FileName: "a.txt", ContentType: "text/plain", Data: []byte("first")},
			{FileName: "b.txt", ContentType: "text/plain", Data: []byte("second")},
		},
	})
	require.NoError(t, err)
	require.Len(t, placeholders, 2)

	doc := s.Snapshot()
	require.Len(t, doc.Attachments, 2)
	for _, a := range doc.Attachments {
		assert.Equal(t, domain.IngestionUploading, a.IngestionState)
	}
	assert.True(t, doc.SyncState.HasPendingUploads())

	// An edit made while uploads are in flight survives the write-back.
	require.NoError(t, s.ApplyFieldEdit(ctx, "narrativeSummary", "Replaced filters."))

	f.uploads.release()
	f.pipeline.Wait()

	doc = s.Snapshot()
	require.Len(t, doc.Attachments, 2)
	assert.Equal(t, "a.txt", doc.Attachments[0].DisplayFileName)
	assert.Equal(t, "b.txt", doc.Attachments[1].DisplayFileName)
	for _, a := range doc.Attachments {
		assert.Equal(t, domain.IngestionReady, a.IngestionState)
		assert.True(t, a.HasPayload())
	}
	assert.False(t, doc.SyncState.HasPendingUploads())
	assert.Equal(t, "Replaced filters.", doc.NarrativeSummary)
}

func TestSession_RemovedAttachmentIsNotResurrected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	f.uploads.hold()
	placeholders, err := s.Attach(ctx, AttachRequest{
		Owner: document.ReportOwner,
		Files: []ingest.Source{{FileName: "x.txt", Data: []byte("x")}},
	})
	require.NoError(t, err)

	require.NoError(t, s.RemoveAttachment(ctx, document.ReportOwner, placeholders[0].AttachmentID))
	f.uploads.release()
	f.pipeline.Wait()

	assert.Empty(t, s.Snapshot().Attachments)
	assert.Equal(t, 0, f.pipeline.Previews().Len())
}

func TestSession_AttachToOpenIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	ed, err := s.OpenIssue("")
	require.NoError(t, err)

	f.uploads.hold()
	_, err = s.Attach(ctx, AttachRequest{
		Owner:  document.IssueOwner(ed.ID()),
		Bucket: domain.BucketIssuePhoto,
		Files:  []ingest.Source{photo(t)},
	})
	require.NoError(t, err)
	f.uploads.release()
	f.pipeline.Wait()

	require.Len(t, ed.Issue().Attachments, 1)
	assert.Equal(t, domain.IngestionReady, ed.Issue().Attachments[0].IngestionState)

	_, err = s.SaveIssue(ctx, ed.ID())
	require.NoError(t, err)
	issue := s.Snapshot().FindIssue(ed.ID())
	require.NotNil(t, issue)
	require.Len(t, issue.Attachments, 1)
	assert.Equal(t, domain.IngestionReady, issue.Attachments[0].IngestionState)
}

func TestSession_AttachUnknownIssue(t *testing.T) {
	f := newFixture(t)
	s := f.create(t)

	_, err := s.Attach(context.Background(), AttachRequest{
		Owner: document.IssueOwner("missing"),
		Files: []ingest.Source{{FileName: "x.txt", Data: []byte("x")}},
	})
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

// =============================================================================
// Autosave and Mirror
// =============================================================================

func TestAutosaver_MirrorFailureSetsOfflineHint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)
	a := NewAutosaver(s, time.Hour)

	f.remote.setErr(errors.New("no route to host"))
	a.Tick(ctx)
	assert.False(t, s.IsDirty(), "local save succeeds without the network")
	assert.True(t, s.IsOffline())

	// A clean document is mirrored again while the hint is set.
	f.remote.setErr(nil)
	a.Tick(ctx)
	assert.False(t, s.IsOffline())

	ok, err := f.remote.Exists(ctx, storage.ArtifactKey(s.ID(), "", "json"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAutosaver_StartStop(t *testing.T) {
	f := newFixture(t)
	s := f.create(t)

	a := NewAutosaver(s, 10*time.Millisecond)
	a.Start(context.Background())
	assert.Eventually(t, func() bool { return !s.IsDirty() }, time.Second, 10*time.Millisecond)
	a.Stop()
	a.Stop()
}

// =============================================================================
// Completion
// =============================================================================

func TestSession_Complete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)
	require.NoError(t, s.ApplyFieldEdit(ctx, "customer.companyName", "Acme"))

	var statuses []string
	doc, err := s.Complete(ctx, func(status string) { statuses = append(statuses, status) })
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleCompleted, doc.LifecycleState)
	assert.Equal(t, "2026-1", doc.RemoteSequenceID)
	assert.Equal(t, completion.StatusComplete, statuses[len(statuses)-1])
	assert.False(t, s.IsDirty())

	err = s.ApplyFieldEdit(ctx, "customer.companyName", "Other")
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))

	assert.Contains(t, f.actions(t, s.ID()), domain.AuditCompleted)
}

func TestSession_CompleteUploadFailureKeepsSequenceID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	f.remote.setErr(errors.New("bucket offline"))
	doc, err := s.Complete(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, domain.EUPLOAD, domain.ErrorCode(err))
	assert.True(t, doc.IsCompleted())
	assert.Equal(t, "2026-1", doc.RemoteSequenceID)

	f.remote.setErr(nil)
	require.NoError(t, s.RetryExport(ctx, nil))
	assert.Equal(t, "2026-1", s.Snapshot().RemoteSequenceID)
	assert.Equal(t, int64(1), f.seq.Issued("2026"))
}

func TestSession_CompleteFoldsSettledAttachment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	f.uploads.hold()
	placeholders, err := s.Attach(ctx, AttachRequest{
		Owner: document.ReportOwner,
		Files: []ingest.Source{{FileName: "late.txt", Data: []byte("late")}},
	})
	require.NoError(t, err)

	entered, release := f.store.holdNextPut()
	done := make(chan error, 1)
	go func() {
		_, err := s.Complete(ctx, nil)
		done <- err
	}()

	<-entered
	f.uploads.release()
	f.pipeline.Wait()
	close(release)
	require.NoError(t, <-done)

	doc := s.Snapshot()
	assert.True(t, doc.IsCompleted())
	assert.Equal(t, "2026-1", doc.RemoteSequenceID)
	a := doc.FindAttachment(placeholders[0].AttachmentID)
	require.NotNil(t, a)
	assert.Equal(t, domain.IngestionReady, a.IngestionState)
	assert.True(t, doc.SyncState.IsDirty, "settled attachment still needs saving")
}

func TestSession_RejectsEditsWhileClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)
	require.NoError(t, s.SaveDraft(ctx))

	assert.True(t, s.Close(ctx, nil))
	err := s.ApplyFieldEdit(ctx, "site.name", "x")
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
}

// =============================================================================
// AI Enrichment
// =============================================================================

func TestSession_GenerateSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	f.ai.GenerateTextResponse = "  Serviced the rooftop unit.  "
	text, err := s.GenerateSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Serviced the rooftop unit.", text)
	assert.Equal(t, text, s.Snapshot().NarrativeSummary)

	f.ai.GenerateTextError = errors.New("rate limited")
	_, err = s.GenerateSummary(ctx)
	assert.Equal(t, domain.EENRICH, domain.ErrorCode(err))
	assert.Equal(t, text, s.Snapshot().NarrativeSummary)
}

func TestSession_Dictate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)
	audio := []byte("RIFF....WAVE")

	tests := []struct {
		name       string
		transcript string
		err        error
		wantCode   string
		want       string
	}{
		{name: "first note", transcript: "Unit was tripped.", want: "Unit was tripped."},
		{name: "appends", transcript: "Reset breaker.", want: "Unit was tripped.\nReset breaker."},
		{name: "failure leaves text", err: errors.New("timeout"), wantCode: domain.ETRANSCRIBE, want: "Unit was tripped.\nReset breaker."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.ai.TranscribeResponse = tt.transcript
			f.ai.TranscribeError = tt.err

			_, err := s.Dictate(ctx, DictateRequest{Path: "narrativeSummary", Audio: audio, ContentType: "audio/wav"})
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, domain.ErrorCode(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, s.Snapshot().NarrativeSummary)
		})
	}
}

func TestSession_DictateIntoOpenIssue(t *testing.T) {
	f := newFixture(t)
	s := f.create(t)
	ed, err := s.OpenIssue("")
	require.NoError(t, err)

	f.ai.TranscribeResponse = "Coil is iced over."
	_, err = s.Dictate(context.Background(), DictateRequest{
		IssueID: ed.ID(),
		Path:    "observationText",
		Audio:   []byte("audio"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Coil is iced over.", ed.Issue().ObservationText)
	assert.Empty(t, s.Snapshot().Issues)
}

func TestSession_ScanNameplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	placeholders, err := s.Attach(ctx, AttachRequest{
		Owner:  document.ReportOwner,
		Bucket: domain.BucketNameplateScan,
		Files:  []ingest.Source{photo(t)},
	})
	require.NoError(t, err)
	f.pipeline.Wait()

	f.ai.ExtractFieldsResponse = map[string]string{"manufacturer": "Carrier", "model": "50XC", "serialNumber": " "}
	applied, err := s.ScanNameplate(ctx, placeholders[0].AttachmentID, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"manufacturer": "Carrier", "model": "50XC"}, applied)

	doc := s.Snapshot()
	assert.Equal(t, "Carrier", doc.Asset.Manufacturer)
	assert.Equal(t, "50XC", doc.Asset.Model)
	assert.Empty(t, doc.Asset.SerialNumber)
	assert.Equal(t, 1, f.ai.ExtractFieldsCalls)
}

func TestSession_EnrichmentWithoutProvider(t *testing.T) {
	f := newFixture(t)
	deps := &Deps{Store: f.store, Pipeline: f.pipeline, Logger: discardLogger(), Now: func() time.Time { return clock }}
	s := newSession(deps, domain.NewReportDocument(domain.Identity{ID: "tech-7"}, clock), domain.Identity{ID: "tech-7"})

	_, err := s.GenerateSummary(context.Background())
	assert.Equal(t, domain.EENRICH, domain.ErrorCode(err))
	assert.Equal(t, "AI assistance is not configured.", domain.ErrorMessage(err))
}

// =============================================================================
// Manager
// =============================================================================

func TestManager_CreateRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	m, err := NewManager(*f.manager.deps, f.manager.config, auth.NewStaticProvider("", ""))
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	_, err = m.Create(context.Background())
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	ctx := auth.SetIdentity(context.Background(), domain.Identity{ID: "tech-9"})
	s, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tech-9", s.Snapshot().AuthorIdentity)
}

func TestManager_CloseWithUnsavedChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)

	err := f.manager.Close(ctx, s.ID(), false)
	assert.ErrorIs(t, err, ErrUnsavedChanges)
	_, ok := f.manager.Get(s.ID())
	assert.True(t, ok)

	require.NoError(t, f.manager.Close(ctx, s.ID(), true))
	_, ok = f.manager.Get(s.ID())
	assert.False(t, ok)
	assert.True(t, s.IsClosed())

	err = f.manager.Close(ctx, s.ID(), true)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestManager_OpenAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)
	require.NoError(t, s.ApplyFieldEdit(ctx, "customer.companyName", "Acme"))
	require.NoError(t, s.SaveDraft(ctx))
	require.NoError(t, f.manager.Close(ctx, s.ID(), false))

	reopened, err := f.manager.Open(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, "Acme", reopened.Snapshot().Customer.CompanyName)
	assert.False(t, reopened.IsDirty())

	again, err := f.manager.Open(ctx, s.ID())
	require.NoError(t, err)
	assert.Same(t, reopened, again)

	unsaved := f.create(t)
	docs, err := f.manager.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.ElementsMatch(t, []string{s.ID(), unsaved.ID()}, f.manager.OpenIDs())

	_, err = f.manager.Open(ctx, "nope")
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestManager_ShutdownSavesOpenSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)
	require.NoError(t, s.ApplyFieldEdit(ctx, "site.name", "Plant 3"))

	f.uploads.hold()
	_, err := s.Attach(ctx, AttachRequest{
		Owner: document.ReportOwner,
		Files: []ingest.Source{{FileName: "x.txt", Data: []byte("x")}},
	})
	require.NoError(t, err)
	go f.uploads.release()

	require.NoError(t, f.manager.Shutdown(ctx))
	assert.False(t, s.IsDirty())

	stored, err := f.store.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, "Plant 3", stored.Site.Name)
	require.Len(t, stored.Attachments, 1)
	assert.Equal(t, domain.IngestionReady, stored.Attachments[0].IngestionState)
}

func TestManager_ShutdownHonoursDeadlineDuringCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t)
	require.NoError(t, s.ApplyFieldEdit(ctx, "site.name", "Plant 3"))

	f.remote.hold()
	uploading := make(chan struct{})
	var once sync.Once
	done := make(chan error, 1)
	go func() {
		_, err := s.Complete(ctx, func(status string) {
			if status == completion.StatusUploading {
				once.Do(func() { close(uploading) })
			}
		})
		done <- err
	}()
	<-uploading

	shutdownCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := f.manager.Shutdown(shutdownCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	f.remote.release()
	require.NoError(t, <-done)
	assert.True(t, s.Snapshot().IsCompleted())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "zero interval", modify: func(c *Config) { c.AutosaveInterval = 0 }, wantErr: true},
		{name: "negative timeout", modify: func(c *Config) { c.ShutdownTimeout = -time.Second }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
