// Package completion runs the one-way DRAFT to COMPLETED commit sequence.
//
// The steps run strictly in order and there is no cross-step transaction:
//
//  1. sanitize the document
//  2. assign a sequence id, only if none is set yet
//  3. mark the document COMPLETED and refresh updatedAt
//  4. persist locally (the durability checkpoint)
//  5. render the export artifacts
//  6. upload the artifacts
//
// A failure in step 2 leaves nothing persisted. A failure in step 5 or 6
// leaves the document COMPLETED locally without a remote copy; RetryExport
// re-runs those two steps alone.
package completion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/export"
	"github.com/DukeRupert/fieldreport/internal/metrics"
	"github.com/DukeRupert/fieldreport/internal/sequence"
	"github.com/DukeRupert/fieldreport/internal/store"
)

// Status strings reported through ProgressFunc, in order.
const (
	StatusSanitizing = "Sanitizing report..."
	StatusAssigning  = "Assigning report number..."
	StatusFinalizing = "Finalizing..."
	StatusSaving     = "Saving locally..."
	StatusGenerating = "Generating export files..."
	StatusUploading  = "Uploading..."
	StatusComplete   = "Complete"
)

// ProgressFunc receives a status string as each step starts.
type ProgressFunc func(status string)

// Committer runs the completion sequence against its collaborators.
type Committer struct {
	store     store.Store
	sequence  sequence.Generator
	publisher *export.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Committer.
func New(st store.Store, seq sequence.Generator, publisher *export.Publisher, logger *slog.Logger) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{
		store:     st,
		sequence:  seq,
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source, for tests.
func (c *Committer) WithClock(now func() time.Time) *Committer {
	c.now = now
	return c
}

// Complete runs every step on a copy of doc. The copy is returned even on
// failure so the caller can keep whatever the completed steps produced, in
// particular an assigned sequence id.
func (c *Committer) Complete(ctx context.Context, doc *domain.ReportDocument, progress ProgressFunc) (*domain.ReportDocument, error) {
	const op = "completion.complete"

	if doc == nil {
		return nil, domain.Invalid(op, "document is required")
	}
	if progress == nil {
		progress = func(string) {}
	}
	next := doc.Clone()
	logger := c.logger.With("local_id", next.LocalID)

	// 1. Sanitize
	progress(StatusSanitizing)
	if dropped := next.Sanitize(); dropped > 0 {
		logger.Warn("dropped empty entries during sanitize", "dropped", dropped)
	}
	step(metrics.StepSanitize, nil)

	// 2. Assign the sequence id, only if absent
	if next.RemoteSequenceID == "" {
		progress(StatusAssigning)
		id, err := c.sequence.Next(ctx, sequence.YearNamespace(c.now()))
		step(metrics.StepAssign, err)
		if err != nil {
			logger.Error("sequence assignment failed", "error", err)
			return next, domain.AssignmentFailed(err, op)
		}
		next.RemoteSequenceID = id
		logger = logger.With("sequence_id", id)
		logger.Info("sequence id assigned")
	}

	// 3. Mark lifecycle
	progress(StatusFinalizing)
	if err := next.TransitionTo(domain.LifecycleCompleted); err != nil {
		return next, err
	}
	now := c.now()
	next.UpdatedAt = now
	next.MarkDirty()

	// 4. Persist locally
	progress(StatusSaving)
	err := c.store.Put(ctx, next)
	step(metrics.StepPersist, err)
	if err != nil {
		logger.Error("completed report could not be saved", "error", err)
		return next, asUnavailable(err, op)
	}
	next.MarkPersisted(now)
	logger.Info("report completed locally")

	if err := c.export(ctx, next, progress); err != nil {
		return next, err
	}

	progress(StatusComplete)
	return next, nil
}

// RetryExport re-runs artifact generation and upload for a report that is
// already COMPLETED. It never touches the store or the sequence.
func (c *Committer) RetryExport(ctx context.Context, doc *domain.ReportDocument, progress ProgressFunc) error {
	const op = "completion.retry_export"

	if doc == nil {
		return domain.Invalid(op, "document is required")
	}
	if !doc.IsCompleted() {
		return domain.Conflict(op, "Only completed reports can be exported.")
	}
	if progress == nil {
		progress = func(string) {}
	}

	if err := c.export(ctx, doc, progress); err != nil {
		return err
	}
	progress(StatusComplete)
	return nil
}

// export runs steps 5 and 6.
func (c *Committer) export(ctx context.Context, doc *domain.ReportDocument, progress ProgressFunc) error {
	const op = "completion.export"
	logger := c.logger.With("local_id", doc.LocalID, "sequence_id", doc.RemoteSequenceID)

	progress(StatusGenerating)
	artifacts, err := c.publisher.Renderer().RenderAll(ctx, doc)
	step(metrics.StepRender, err)
	if err != nil {
		logger.Error("export generation failed", "error", err)
		return domain.ExportFailed(err, op)
	}

	progress(StatusUploading)
	err = c.publisher.Upload(ctx, artifacts)
	step(metrics.StepUpload, err)
	if err != nil {
		logger.Error("export upload failed", "error", err)
		return domain.UploadFailed(err, op)
	}

	logger.Info("report exported", "artifacts", len(artifacts))
	return nil
}

func step(name string, err error) {
	metrics.CompletionSteps.WithLabelValues(name, metrics.Status(err)).Inc()
}

// asUnavailable keeps a store error's own code and wraps anything else.
func asUnavailable(err error, op string) error {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	return domain.Unavailable(err, op)
}
