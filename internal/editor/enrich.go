package editor

import (
	"context"
	"fmt"
	"strings"

	"github.com/DukeRupert/fieldreport/internal/ai"
	"github.com/DukeRupert/fieldreport/internal/document"
	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/ingest"
)

// =============================================================================
// AI Enrichment
// =============================================================================

const msgAINotConfigured = "AI assistance is not configured."

// GenerateSummary drafts the narrative summary from the report's facts and
// writes it into narrativeSummary. On failure the document is unchanged.
func (s *Session) GenerateSummary(ctx context.Context) (string, error) {
	const op = "editor.generate_summary"

	if s.deps.AI == nil {
		return "", domain.EnrichmentFailed(nil, op, msgAINotConfigured)
	}

	snap := s.Snapshot()
	if !snap.IsEditable() {
		return "", domain.Conflict(op, "Completed reports cannot be edited.")
	}

	result, err := s.deps.AI.GenerateText(ctx, ai.GenerateTextParams{
		Prompt:    ai.BuildSummaryPrompt(snap),
		System:    ai.SummarySystemPrompt,
		MaxTokens: 1024,
	})
	if err != nil {
		s.logger.Warn("summary generation failed", "provider", s.deps.AI.Name(), "error", err)
		return "", domain.EnrichmentFailed(err, op, "The summary could not be generated.")
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", domain.EnrichmentFailed(ai.EAIEmptyResponse, op, "The summary could not be generated.")
	}

	err = s.mutate(ctx, op, func(doc *domain.ReportDocument) (*domain.ReportDocument, *domain.AuditEvent, error) {
		next, err := document.ApplyFieldEdit(doc, "narrativeSummary", text)
		if err != nil {
			return nil, nil, err
		}
		return next, s.event(domain.AuditEnriched).
			WithField("narrativeSummary", doc.NarrativeSummary, text).
			WithMeta("provider", s.deps.AI.Name()).
			WithMeta("kind", "summary"), nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// DictateRequest is one recorded voice note for a text field. IssueID
// selects an open issue sub-editor; empty targets a report field.
type DictateRequest struct {
	IssueID     string
	Path        string
	Audio       []byte
	ContentType string
	Language    string
}

// Dictate transcribes a voice note and appends it to a text field.
func (s *Session) Dictate(ctx context.Context, req DictateRequest) (string, error) {
	const op = "editor.dictate"

	if s.deps.AI == nil {
		return "", domain.TranscriptionFailed(domain.Invalid(op, msgAINotConfigured), op)
	}
	if len(req.Audio) == 0 {
		return "", domain.Invalid(op, "no audio recorded")
	}

	var ed *document.IssueEditor
	if req.IssueID != "" {
		var err error
		if ed, err = s.IssueEditor(req.IssueID); err != nil {
			return "", err
		}
		if _, err := ed.FieldValue(req.Path); err != nil {
			return "", err
		}
	} else if _, err := document.FieldValue(s.Snapshot(), req.Path); err != nil {
		return "", err
	}

	result, err := s.deps.AI.Transcribe(ctx, ai.TranscribeParams{
		Audio:       req.Audio,
		ContentType: req.ContentType,
		Language:    req.Language,
	})
	if err != nil {
		s.logger.Warn("transcription failed", "provider", s.deps.AI.Name(), "error", err)
		return "", domain.TranscriptionFailed(err, op)
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", domain.TranscriptionFailed(ai.EAIEmptyResponse, op)
	}

	if ed != nil {
		s.mu.Lock()
		editable := s.checkEditable(op)
		s.mu.Unlock()
		if editable != nil {
			return "", editable
		}
		current, _ := ed.FieldValue(req.Path)
		if _, err := ed.ApplyFieldEdit(req.Path, appendText(current, text)); err != nil {
			return "", err
		}
		return text, nil
	}

	err = s.mutate(ctx, op, func(doc *domain.ReportDocument) (*domain.ReportDocument, *domain.AuditEvent, error) {
		current, err := document.FieldValue(doc, req.Path)
		if err != nil {
			return nil, nil, err
		}
		updated := appendText(current, text)
		next, err := document.ApplyFieldEdit(doc, req.Path, updated)
		if err != nil {
			return nil, nil, err
		}
		return next, s.event(domain.AuditEnriched).
			WithField(req.Path, current, updated).
			WithMeta("provider", s.deps.AI.Name()).
			WithMeta("kind", "dictation"), nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// appendText adds a transcript to existing text on a new line.
func appendText(current any, text string) string {
	existing, _ := current.(string)
	existing = strings.TrimRight(existing, " \n")
	if existing == "" {
		return text
	}
	return existing + "\n" + text
}

// ScanNameplate reads equipment details from a READY photo attachment and
// fills the matching asset fields. Values the model could not read leave
// their fields untouched. It returns the fields that were applied.
func (s *Session) ScanNameplate(ctx context.Context, attachmentID, hint string) (map[string]string, error) {
	const op = "editor.scan_nameplate"

	if s.deps.AI == nil {
		return nil, domain.EnrichmentFailed(nil, op, msgAINotConfigured)
	}

	snap := s.Snapshot()
	att := snap.FindAttachment(attachmentID)
	if att == nil {
		return nil, domain.NotFound(op, "attachment", attachmentID)
	}
	if att.IngestionState != domain.IngestionReady || !att.HasPayload() {
		return nil, domain.Invalid(op, "The photo has not finished uploading.")
	}
	if !att.IsImage() {
		return nil, domain.Invalid(op, "Nameplate scans need a photo.")
	}

	contentType, data, err := ingest.DecodeDataURI(att.EncodedPayload)
	if err != nil {
		return nil, domain.EnrichmentFailed(err, op, "The photo could not be read.")
	}

	result, err := s.deps.AI.ExtractFields(ctx, ai.ExtractFieldsParams{
		Image:       data,
		ContentType: contentType,
		Fields:      ai.NameplateFields,
		Hint:        hint,
	})
	if err != nil {
		s.logger.Warn("nameplate scan failed", "provider", s.deps.AI.Name(), "error", err)
		return nil, domain.EnrichmentFailed(err, op, "The nameplate could not be read.")
	}

	applied := make(map[string]string)
	for _, field := range ai.NameplateFields {
		if v := strings.TrimSpace(result.Fields[field]); v != "" {
			applied[field] = v
		}
	}
	if len(applied) == 0 {
		return nil, domain.EnrichmentFailed(ai.EAIEmptyResponse, op, "No nameplate details were found in the photo.")
	}

	err = s.mutate(ctx, op, func(doc *domain.ReportDocument) (*domain.ReportDocument, *domain.AuditEvent, error) {
		next := doc
		for field, v := range applied {
			var err error
			if next, err = document.ApplyFieldEdit(next, "asset."+field, v); err != nil {
				return nil, nil, fmt.Errorf("apply asset.%s: %w", field, err)
			}
		}
		return next, s.event(domain.AuditEnriched).
			WithMeta("provider", s.deps.AI.Name()).
			WithMeta("kind", "nameplate").
			WithMeta("attachmentId", attachmentID).
			WithMeta("fields", applied), nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}
