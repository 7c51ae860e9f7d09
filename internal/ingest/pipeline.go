// Package ingest turns selected files into attachment records without
// blocking the editor.
//
// Begin returns placeholder attachments immediately. Each file is then
// transcoded if needed, uploaded, and encoded on its own goroutine, and the
// settled attachment is handed to a callback that writes it back by id.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/DukeRupert/fieldreport/internal/document"
	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/metrics"
	"github.com/DukeRupert/fieldreport/internal/storage"
	"github.com/google/uuid"
)

// DefaultJPEGQuality is the transcode quality when none is configured.
const DefaultJPEGQuality = 85

// Source is one selected file.
type Source struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Request describes one selection of files for one owner.
type Request struct {
	LocalID  string
	Owner    document.Owner
	Bucket   domain.AttachmentBucket
	FieldRef string
	Files    []Source
}

// Result is a settled attachment, READY or FAILED.
type Result struct {
	LocalID    string
	Owner      document.Owner
	Attachment *domain.Attachment
}

// DeliverFunc receives each result exactly once, from the file's goroutine.
type DeliverFunc func(Result)

// Config holds pipeline settings.
type Config struct {
	JPEGQuality int
	MaxSize     int64
}

// Pipeline runs ingestion. One Pipeline is shared by every open document.
type Pipeline struct {
	storage    storage.Storage
	transcoder Transcoder
	previews   *PreviewCache
	maxSize    int64
	logger     *slog.Logger

	wg sync.WaitGroup
}

// New builds a pipeline uploading to store.
func New(store storage.Storage, previews *PreviewCache, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = domain.DefaultMaxAttachmentSize
	}
	return &Pipeline{
		storage:    store,
		transcoder: NewImagingTranscoder(cfg.JPEGQuality),
		previews:   previews,
		maxSize:    cfg.MaxSize,
		logger:     logger,
	}
}

// Previews exposes the cache backing LocalPreviewRef.
func (p *Pipeline) Previews() *PreviewCache {
	return p.previews
}

// Begin validates the request and returns one UPLOADING placeholder per
// file, in selection order. Files over the size limit come back FAILED and
// are not processed further. Background work is detached from ctx, so a
// cancelled request does not abort uploads already started.
func (p *Pipeline) Begin(ctx context.Context, req Request, deliver DeliverFunc) ([]*domain.Attachment, error) {
	const op = "ingest.begin"

	if req.LocalID == "" {
		return nil, domain.Invalid(op, "report id is required")
	}
	if len(req.Files) == 0 {
		return nil, domain.Invalid(op, "no files selected")
	}
	if req.Bucket == "" {
		req.Bucket = domain.BucketOther
	}
	if !req.Bucket.IsValid() {
		return nil, domain.Invalid(op, fmt.Sprintf("unknown attachment bucket %q", req.Bucket))
	}
	if deliver == nil {
		deliver = func(Result) {}
	}

	bg := context.WithoutCancel(ctx)
	placeholders := make([]*domain.Attachment, 0, len(req.Files))

	for _, src := range req.Files {
		name := strings.TrimSpace(src.FileName)
		if name == "" {
			name = "attachment"
		}
		contentType := storage.DetectContentType(src.ContentType, name, src.Data)

		att := &domain.Attachment{
			AttachmentID:    uuid.NewString(),
			DisplayFileName: name,
			MimeType:        contentType,
			SizeBytes:       int64(len(src.Data)),
			Bucket:          req.Bucket,
			FieldRef:        req.FieldRef,
			IngestionState:  domain.IngestionPending,
		}

		if att.SizeBytes > p.maxSize {
			err := domain.IngestFailed(storage.ErrTooLarge, op, name)
			att.IngestionState = domain.IngestionFailed
			att.Error = fmt.Sprintf("%s (limit %d MB)", domain.ErrorMessage(err), p.maxSize/(1024*1024))
			metrics.Ingestions.WithLabelValues("failed").Inc()
			placeholders = append(placeholders, att)
			continue
		}

		if p.previews != nil {
			att.LocalPreviewRef = p.previews.Put(req.LocalID, att.AttachmentID, contentType, src.Data)
		}
		att.IngestionState = domain.IngestionUploading
		placeholders = append(placeholders, att)

		work := att.Clone()
		file := Source{FileName: name, ContentType: contentType, Data: src.Data}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			deliver(p.process(bg, req, work, file))
		}()
	}

	p.logger.Info("ingestion started",
		"local_id", req.LocalID,
		"owner", req.Owner.String(),
		"files", len(req.Files),
	)
	return placeholders, nil
}

// Wait blocks until every started file has been delivered.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// process runs transcode, upload and encode for one file. It owns att.
func (p *Pipeline) process(ctx context.Context, req Request, att *domain.Attachment, src Source) Result {
	const op = "ingest.process"
	start := time.Now()
	defer func() { metrics.IngestionDuration.Observe(time.Since(start).Seconds()) }()

	data, contentType, name := src.Data, src.ContentType, src.FileName

	if domain.NeedsTranscode(storage.BaseType(contentType)) {
		jpeg, err := p.transcoder.ToJPEG(data)
		if err != nil {
			metrics.Transcodes.WithLabelValues("fallback").Inc()
			p.logger.Warn("transcode failed, keeping original",
				"attachment_id", att.AttachmentID,
				"content_type", contentType,
				"error", err,
			)
		} else {
			metrics.Transcodes.WithLabelValues("ok").Inc()
			data, contentType = jpeg, "image/jpeg"
			name = storage.ReplaceExtension(name, ".jpg")
		}
	}

	key := storage.AttachmentKey(req.LocalID, att.AttachmentID, name)
	err := p.storage.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{
		ContentType: contentType,
		MaxSize:     p.maxSize,
		Overwrite:   true,
	})
	if err != nil {
		ingestErr := domain.IngestFailed(err, op, name)
		att.IngestionState = domain.IngestionFailed
		att.Error = domain.ErrorMessage(ingestErr)
		metrics.Ingestions.WithLabelValues("failed").Inc()
		p.logger.Warn("attachment upload failed",
			"local_id", req.LocalID,
			"attachment_id", att.AttachmentID,
			"permanent", storage.IsPermanent(err),
			"error", err,
		)
		return Result{LocalID: req.LocalID, Owner: req.Owner, Attachment: att}
	}

	att.IngestionState = domain.IngestionReady
	att.Uploaded = true
	att.EncodedPayload = EncodeDataURI(contentType, data)
	att.MimeType = contentType
	att.DisplayFileName = name
	att.SizeBytes = int64(len(data))
	att.RemoteKey = key
	att.Error = ""
	metrics.Ingestions.WithLabelValues("ready").Inc()

	p.logger.Debug("attachment ready",
		"local_id", req.LocalID,
		"attachment_id", att.AttachmentID,
		"key", key,
		"size", len(data),
	)
	return Result{LocalID: req.LocalID, Owner: req.Owner, Attachment: att}
}
