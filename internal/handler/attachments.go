package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/DukeRupert/fieldreport/internal/document"
	"github.com/DukeRupert/fieldreport/internal/domain"
	"github.com/DukeRupert/fieldreport/internal/editor"
	"github.com/DukeRupert/fieldreport/internal/ingest"
	"github.com/DukeRupert/fieldreport/internal/storage"
)

// Attach starts ingestion of the uploaded files and returns their
// placeholders. Poll the report to see them settle.
// POST /api/reports/{id}/attachments
func (h *Handler) Attach(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if !h.parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	bucket, err := domain.ParseAttachmentBucket(r.FormValue("bucket"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		BadRequestResponse(w, r, h.logger, "Select at least one file")
		return
	}
	files := make([]ingest.Source, 0, len(headers))
	for _, fh := range headers {
		src, err := readPart(fh)
		if err != nil {
			BadRequestResponse(w, r, h.logger, fmt.Sprintf("Could not read %q", fh.Filename))
			return
		}
		files = append(files, src)
	}

	owner := document.ReportOwner
	if issueID := r.FormValue("issueId"); issueID != "" {
		owner = document.IssueOwner(issueID)
	}

	placeholders, err := s.Attach(r.Context(), editor.AttachRequest{
		Owner:    owner,
		Bucket:   bucket,
		FieldRef: r.FormValue("fieldRef"),
		Files:    files,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"attachments": placeholders})
}

func readPart(fh *multipart.FileHeader) (ingest.Source, error) {
	f, err := fh.Open()
	if err != nil {
		return ingest.Source{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return ingest.Source{}, err
	}
	return ingest.Source{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// RemoveAttachment deletes an attachment from the report, or from the
// issue named by ?issueId=.
// DELETE /api/reports/{id}/attachments/{attachmentId}
func (h *Handler) RemoveAttachment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	owner := document.ReportOwner
	if issueID := r.URL.Query().Get("issueId"); issueID != "" {
		owner = document.IssueOwner(issueID)
	}
	if err := s.RemoveAttachment(r.Context(), owner, r.PathValue("attachmentId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview serves the session-scoped thumbnail of an attachment.
// GET /api/previews/{attachmentId}
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.previews == nil {
		NotFoundResponse(w, r, h.logger)
		return
	}
	contentType, data, ok := h.previews.Thumbnail(ingest.PreviewRefPrefix + r.PathValue("attachmentId"))
	if !ok {
		NotFoundResponse(w, r, h.logger)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(data)
}

// File streams a mirrored object from local storage.
// GET /files/{key...}
func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	reader, info, err := h.files.Get(r.Context(), key)
	if err != nil {
		if storage.IsNotFound(err) || storage.IsInvalidKey(err) {
			NotFoundResponse(w, r, h.logger)
			return
		}
		InternalErrorResponse(w, r, h.logger, err)
		return
	}
	defer reader.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Error("failed to stream file", "error", err, "key", key)
	}
}
