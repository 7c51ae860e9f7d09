// Package domain contains core business types and interfaces.
//
// This file defines the Attachment type and its ingestion lifecycle.
package domain

import (
	"fmt"
	"strings"
)

// =============================================================================
// Attachment Bucket
// =============================================================================

// AttachmentBucket is a flat tag naming the album an attachment belongs to.
type AttachmentBucket string

const (
	BucketIssuePhoto    AttachmentBucket = "issue_photo"
	BucketSummaryPhoto  AttachmentBucket = "summary_photo"
	BucketBeforeBackup  AttachmentBucket = "before_backup"
	BucketAfterBackup   AttachmentBucket = "after_backup"
	BucketNameplateScan AttachmentBucket = "nameplate_scan"
	BucketDocument      AttachmentBucket = "document"
	BucketOther         AttachmentBucket = "other"
)

// IsValid returns true if the bucket is a recognized value.
func (b AttachmentBucket) IsValid() bool {
	switch b {
	case BucketIssuePhoto, BucketSummaryPhoto, BucketBeforeBackup,
		BucketAfterBackup, BucketNameplateScan, BucketDocument, BucketOther:
		return true
	}
	return false
}

// Label returns a human-readable album name.
func (b AttachmentBucket) Label() string {
	switch b {
	case BucketIssuePhoto:
		return "Issue photos"
	case BucketSummaryPhoto:
		return "Summary photos"
	case BucketBeforeBackup:
		return "Before"
	case BucketAfterBackup:
		return "After"
	case BucketNameplateScan:
		return "Nameplates"
	case BucketDocument:
		return "Documents"
	default:
		return "Other"
	}
}

// ParseAttachmentBucket accepts the tag value; empty input means BucketOther.
func ParseAttachmentBucket(s string) (AttachmentBucket, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return BucketOther, nil
	}
	b := AttachmentBucket(s)
	if !b.IsValid() {
		return "", Invalid("domain.parse_attachment_bucket", fmt.Sprintf("unknown attachment bucket %q", s))
	}
	return b, nil
}

// =============================================================================
// Ingestion State
// =============================================================================

// IngestionState tracks one attachment through encode and upload.
type IngestionState string

const (
	IngestionPending   IngestionState = "PENDING"
	IngestionUploading IngestionState = "UPLOADING"
	IngestionReady     IngestionState = "READY"
	IngestionFailed    IngestionState = "FAILED"
)

// IsTerminal returns true once the pipeline has settled.
func (s IngestionState) IsTerminal() bool {
	return s == IngestionReady || s == IngestionFailed
}

// =============================================================================
// Attachment Constants
// =============================================================================

const (
	// DefaultMaxAttachmentSize is the default upload limit (25MB).
	DefaultMaxAttachmentSize = 25 * 1024 * 1024
)

// TranscodeTypes are image formats browsers cannot display directly.
// They are converted to JPEG during ingestion.
var TranscodeTypes = map[string]string{
	"image/heic": "HEIC",
	"image/heif": "HEIF",
	"image/tiff": "TIFF",
	"image/bmp":  "BMP",
}

// NeedsTranscode returns true if the content type should be converted.
func NeedsTranscode(contentType string) bool {
	_, ok := TranscodeTypes[strings.ToLower(contentType)]
	return ok
}

// =============================================================================
// Attachment Domain Type
// =============================================================================

// Attachment is one file owned by either a report or an issue, never both.
// FieldRef is a loose correlation tag; it is not checked against anything.
type Attachment struct {
	AttachmentID    string           `json:"attachmentId"`
	DisplayFileName string           `json:"displayFileName"`
	MimeType        string           `json:"mimeType"`
	SizeBytes       int64            `json:"sizeBytes"`
	LocalPreviewRef string           `json:"localPreviewRef,omitempty"`
	EncodedPayload  string           `json:"encodedPayload,omitempty"`
	Bucket          AttachmentBucket `json:"bucket"`
	FieldRef        string           `json:"fieldRef,omitempty"`
	IngestionState  IngestionState   `json:"ingestionState"`
	Uploaded        bool             `json:"uploaded"`
	RemoteKey       string           `json:"remoteKey,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// IsImage returns true for image content types.
func (a *Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// HasPayload returns true once the durable encoded form is available.
func (a *Attachment) HasPayload() bool {
	return a.EncodedPayload != ""
}

// FormatSize returns a human-readable file size.
func (a *Attachment) FormatSize() string {
	const (
		KB = 1024
		MB = KB * 1024
	)

	switch {
	case a.SizeBytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(a.SizeBytes)/MB)
	case a.SizeBytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(a.SizeBytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", a.SizeBytes)
	}
}
