package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/metrics"
	"github.com/DukeRupert/fieldreport/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Artifact is one rendered file and the remote key it belongs under.
type Artifact struct {
	Format      domain.ExportFormat
	Key         string
	ContentType string
	Data        []byte
}

// =============================================================================
// Renderer
// =============================================================================

// Renderer runs a fixed set of generators over one document.
type Renderer struct {
	generators []Generator
	logger     *slog.Logger
}

// NewRenderer uses the given generators, or one per export format when none
// are passed.
func NewRenderer(logger *slog.Logger, generators ...Generator) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	if len(generators) == 0 {
		generators = []Generator{
			NewHTMLGenerator(logger),
			NewMarkdownGenerator(logger),
			NewJSONGenerator(),
		}
	}
	return &Renderer{generators: generators, logger: logger}
}

// Render produces a single format.
func (r *Renderer) Render(ctx context.Context, doc *domain.ReportDocument, format domain.ExportFormat) (Artifact, error) {
	for _, g := range r.generators {
		if g.Format() == format {
			return r.render(ctx, doc, g)
		}
	}
	return Artifact{}, fmt.Errorf("no generator for format %s", format)
}

// RenderAll produces every configured artifact. Rendering is all or
// nothing: the first failure is returned and no artifacts are.
func (r *Renderer) RenderAll(ctx context.Context, doc *domain.ReportDocument) ([]Artifact, error) {
	artifacts := make([]Artifact, 0, len(r.generators))
	for _, g := range r.generators {
		a, err := r.render(ctx, doc, g)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

func (r *Renderer) render(ctx context.Context, doc *domain.ReportDocument, g Generator) (Artifact, error) {
	var buf bytes.Buffer
	if _, err := g.Generate(ctx, doc, &buf); err != nil {
		return Artifact{}, fmt.Errorf("generate %s: %w", g.Format(), err)
	}
	metrics.ReportsGenerated.WithLabelValues(g.Format().String()).Inc()

	return Artifact{
		Format:      g.Format(),
		Key:         storage.ArtifactKey(doc.LocalID, doc.RemoteSequenceID, g.Format().FileExtension()),
		ContentType: g.Format().ContentType(),
		Data:        buf.Bytes(),
	}, nil
}

// =============================================================================
// Publisher
// =============================================================================

// Publisher renders artifacts and pushes them to remote storage.
type Publisher struct {
	renderer *Renderer
	storage  storage.Storage
	logger   *slog.Logger
}

func NewPublisher(renderer *Renderer, store storage.Storage, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{renderer: renderer, storage: store, logger: logger}
}

// Renderer returns the renderer used by Publish.
func (p *Publisher) Renderer() *Renderer {
	return p.renderer
}

// Publish renders then uploads. Render failures carry EEXPORT and upload
// failures EUPLOAD, so callers can tell which half needs retrying.
func (p *Publisher) Publish(ctx context.Context, doc *domain.ReportDocument) ([]Artifact, error) {
	const op = "export.publish"

	artifacts, err := p.renderer.RenderAll(ctx, doc)
	if err != nil {
		return nil, domain.ExportFailed(err, op)
	}
	if err := p.Upload(ctx, artifacts); err != nil {
		return artifacts, domain.UploadFailed(err, op)
	}
	return artifacts, nil
}

// Upload writes every artifact concurrently, overwriting earlier versions.
// It returns the first error after all uploads have finished.
func (p *Publisher) Upload(ctx context.Context, artifacts []Artifact) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range artifacts {
		g.Go(func() error {
			err := p.storage.Put(gctx, a.Key, bytes.NewReader(a.Data), storage.PutOptions{
				ContentType: a.ContentType,
				Overwrite:   true,
			})
			metrics.ArtifactsUploaded.WithLabelValues(a.Format.String(), metrics.Status(err)).Inc()
			if err != nil {
				return fmt.Errorf("upload %s: %w", a.Key, err)
			}
			p.logger.Debug("artifact uploaded", "key", a.Key, "size_bytes", len(a.Data))
			return nil
		})
	}
	return g.Wait()
}

// Verify reports whether every artifact for doc exists remotely. It lets a
// completed report whose export never landed be found and retried.
func (p *Publisher) Verify(ctx context.Context, doc *domain.ReportDocument) (bool, error) {
	for _, format := range domain.AllExportFormats {
		key := storage.ArtifactKey(doc.LocalID, doc.RemoteSequenceID, format.FileExtension())
		ok, err := p.storage.Exists(ctx, key)
		if err != nil {
			return false, fmt.Errorf("check %s: %w", key, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
