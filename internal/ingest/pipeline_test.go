package ingest

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

	"github.com/DukeRupert/fieldreport/internal/document"
	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/storage"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStorage records puts and can block or fail them.
type fakeStorage struct {
	mu   sync.Mutex
	objs map[string][]byte
	err  error
	gate chan struct{}
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objs: make(map[string][]byte)}
}

func (f *fakeStorage) Put(ctx context.Context, key string, data io.Reader, opts storage.PutOptions) error {
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return &storage.StorageError{Op: "Put", Key: key, Err: f.err}
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objs[key] = b
	return nil
}

func (f *fakeStorage) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objs[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), storage.ObjectInfo{Key: key, Size: int64(len(b))}, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objs, key)
	return nil
}

func (f *fakeStorage) URL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "mem://" + key, nil
}

func (f *fakeStorage) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objs[key]
	return ok, nil
}

func (f *fakeStorage) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objs {
		out = append(out, k)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func encodeImage(t *testing.T, format imaging.Format) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 16), G: 80, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

type collector struct {
	mu      sync.Mutex
	results []Result
}

func (c *collector) deliver(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *collector) byID() map[string]*domain.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*domain.Attachment)
	for _, r := range c.results {
		out[r.Attachment.AttachmentID] = r.Attachment
	}
	return out
}

func TestBegin_PlaceholdersThenReady(t *testing.T) {
	store := newFakeStorage()
	p := New(store, NewPreviewCache(64, 80), Config{JPEGQuality: 80}, discardLogger())
	c := &collector{}

	png := encodeImage(t, imaging.PNG)
	placeholders, err := p.Begin(context.Background(), Request{
		LocalID:  "doc-1",
		Owner:    document.ReportOwner,
		Bucket:   domain.BucketSummaryPhoto,
		FieldRef: "narrativeSummary",
		Files: []Source{
			{FileName: "panel.png", Data: png},
			{FileName: "manual.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.7 ...")},
		},
	}, c.deliver)
	require.NoError(t, err)
	require.Len(t, placeholders, 2)

	for _, ph := range placeholders {
		assert.Contains(t, []domain.IngestionState{domain.IngestionPending, domain.IngestionUploading}, ph.IngestionState)
		assert.Empty(t, ph.EncodedPayload)
		assert.NotEmpty(t, ph.LocalPreviewRef)
		assert.Equal(t, domain.BucketSummaryPhoto, ph.Bucket)
		assert.Equal(t, "narrativeSummary", ph.FieldRef)
	}

	p.Wait()

	settled := c.byID()
	require.Len(t, settled, 2)
	for _, ph := range placeholders {
		got := settled[ph.AttachmentID]
		require.NotNil(t, got)
		assert.Equal(t, domain.IngestionReady, got.IngestionState)
		assert.True(t, got.Uploaded)
		assert.True(t, got.HasPayload())
		assert.Equal(t, storage.AttachmentKey("doc-1", ph.AttachmentID, ph.DisplayFileName), got.RemoteKey)
		// Placeholders handed to the caller are not touched by the goroutine.
		assert.Empty(t, ph.EncodedPayload)
	}
	assert.Len(t, store.keys(), 2)
}

func TestBegin_TranscodesBMP(t *testing.T) {
	store := newFakeStorage()
	p := New(store, nil, Config{JPEGQuality: 70}, discardLogger())
	c := &collector{}

	placeholders, err := p.Begin(context.Background(), Request{
		LocalID: "doc-1",
		Owner:   document.IssueOwner("issue-1"),
		Bucket:  domain.BucketIssuePhoto,
		Files:   []Source{{FileName: "scan.BMP", Data: encodeImage(t, imaging.BMP)}},
	}, c.deliver)
	require.NoError(t, err)
	assert.Equal(t, "image/bmp", placeholders[0].MimeType)

	p.Wait()

	got := c.byID()[placeholders[0].AttachmentID]
	require.NotNil(t, got)
	assert.Equal(t, domain.IngestionReady, got.IngestionState)
	assert.Equal(t, "image/jpeg", got.MimeType)
	assert.Equal(t, "scan.jpg", got.DisplayFileName)
	assert.Equal(t, "attachments/doc-1/"+got.AttachmentID+".jpg", got.RemoteKey)

	contentType, data, err := DecodeDataURI(got.EncodedPayload)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestBegin_TranscodeFailureKeepsOriginal(t *testing.T) {
	p := New(newFakeStorage(), nil, Config{}, discardLogger())
	c := &collector{}

	placeholders, err := p.Begin(context.Background(), Request{
		LocalID: "doc-1",
		Files:   []Source{{FileName: "IMG_0042.HEIC", ContentType: "application/octet-stream", Data: []byte("ftypheic not really")}},
	}, c.deliver)
	require.NoError(t, err)
	p.Wait()

	got := c.byID()[placeholders[0].AttachmentID]
	require.NotNil(t, got)
	assert.Equal(t, domain.IngestionReady, got.IngestionState)
	assert.Equal(t, "image/heic", got.MimeType)
	assert.Equal(t, "IMG_0042.HEIC", got.DisplayFileName)
	assert.Equal(t, domain.BucketOther, got.Bucket)
}

func TestBegin_UploadFailure(t *testing.T) {
	store := newFakeStorage()
	store.err = errors.New("connection reset")
	p := New(store, nil, Config{}, discardLogger())
	c := &collector{}

	placeholders, err := p.Begin(context.Background(), Request{
		LocalID: "doc-1",
		Files:   []Source{{FileName: "a.jpg", Data: []byte{0xff, 0xd8}}},
	}, c.deliver)
	require.NoError(t, err)
	p.Wait()

	got := c.byID()[placeholders[0].AttachmentID]
	require.NotNil(t, got)
	assert.Equal(t, domain.IngestionFailed, got.IngestionState)
	assert.False(t, got.Uploaded)
	assert.Empty(t, got.EncodedPayload)
	assert.Contains(t, got.Error, "a.jpg")
}

func TestBegin_OversizedFileFailsImmediately(t *testing.T) {
	store := newFakeStorage()
	p := New(store, nil, Config{MaxSize: 4}, discardLogger())
	c := &collector{}

	placeholders, err := p.Begin(context.Background(), Request{
		LocalID: "doc-1",
		Files:   []Source{{FileName: "big.jpg", Data: []byte("0123456789")}},
	}, c.deliver)
	require.NoError(t, err)
	p.Wait()

	require.Len(t, placeholders, 1)
	assert.Equal(t, domain.IngestionFailed, placeholders[0].IngestionState)
	assert.NotEmpty(t, placeholders[0].Error)
	assert.Empty(t, c.byID())
	assert.Empty(t, store.keys())
}

func TestBegin_DetachedFromCallerContext(t *testing.T) {
	store := newFakeStorage()
	store.gate = make(chan struct{})
	p := New(store, nil, Config{}, discardLogger())
	c := &collector{}

	ctx, cancel := context.WithCancel(context.Background())
	placeholders, err := p.Begin(ctx, Request{
		LocalID: "doc-1",
		Files:   []Source{{FileName: "a.jpg", Data: []byte{1, 2, 3}}},
	}, c.deliver)
	require.NoError(t, err)

	cancel()
	close(store.gate)
	p.Wait()

	assert.Equal(t, domain.IngestionReady, c.byID()[placeholders[0].AttachmentID].IngestionState)
}

func TestBegin_Validation(t *testing.T) {
	p := New(newFakeStorage(), nil, Config{}, discardLogger())
	ctx := context.Background()

	_, err := p.Begin(ctx, Request{Files: []Source{{FileName: "a"}}}, nil)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = p.Begin(ctx, Request{LocalID: "doc-1"}, nil)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = p.Begin(ctx, Request{LocalID: "doc-1", Bucket: "album", Files: []Source{{FileName: "a"}}}, nil)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestPreviewCache(t *testing.T) {
	c := NewPreviewCache(4, 80)
	png := encodeImage(t, imaging.PNG)

	ref := c.Put("doc-1", "att-1", "image/png", png)
	c.Put("doc-1", "att-2", "application/pdf", []byte("%PDF"))
	c.Put("doc-2", "att-3", "image/png", png)

	contentType, thumb, ok := c.Thumbnail(ref)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", contentType)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.LessOrEqual(t, cfg.Width, 4)

	contentType, data, ok := c.Thumbnail(PreviewRefPrefix + "att-2")
	require.True(t, ok)
	assert.Equal(t, "application/pdf", contentType)
	assert.Equal(t, []byte("%PDF"), data)

	_, _, ok = c.Thumbnail("blob:whatever")
	assert.False(t, ok)

	assert.Equal(t, 2, c.ReleaseDocument("doc-1"))
	assert.Equal(t, 1, c.Len())
}

func TestDataURI(t *testing.T) {
	uri := EncodeDataURI("image/jpeg", []byte("abc"))
	assert.Equal(t, "data:image/jpeg;base64,YWJj", uri)

	contentType, data, err := DecodeDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	assert.Equal(t, []byte("abc"), data)

	_, _, err = DecodeDataURI("https://example.com/a.jpg")
	assert.Error(t, err)
	_, _, err = DecodeDataURI("data:text/plain,hello")
	assert.Error(t, err)
}
