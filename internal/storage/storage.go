// Package storage provides the remote object store that report artifacts and
// attachment originals are mirrored to.
//
// This package defines a Storage interface with implementations for:
// - LocalStorage: a directory on disk, for development and offline devices
// - S3Storage: any S3-compatible service (AWS S3, Cloudflare R2, MinIO)
//
// Nothing in the editing path depends on this store being reachable. Upload
// failures are reported to the caller, who decides whether to surface them.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage defines the interface for remote object operations.
//
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at the specified key with the given options.
	// Returns an error if the operation fails or if the key already exists
	// (unless overwrite is enabled in opts).
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get retrieves the data at the specified key.
	// The caller must close the returned reader. Returns ErrNotFound if the
	// key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at the specified key.
	// Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a URL for accessing the object at the specified key.
	// Private objects get a presigned URL valid for expires.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists checks if an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// Data Types
// =============================================================================

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType specifies the MIME type of the object.
	// If empty, it is detected from the key's extension.
	ContentType string

	// MaxSize specifies the maximum allowed size in bytes.
	// If the data exceeds this size, ErrTooLarge is returned.
	// A value of 0 means no limit.
	MaxSize int64

	// Overwrite allows replacing an existing object at the same key.
	// Mirrored artifacts are rewritten on every autosave, so they set this.
	Overwrite bool

	// Public requests a public-read ACL where the provider supports it.
	Public bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string    // Object key/path
	Size         int64     // Size in bytes
	ContentType  string    // MIME type
	LastModified time.Time // Last modification time
	ETag         string    // Entity tag (if available)
}

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where objects are written.
	// Example: "./storage"
	BasePath string

	// BaseURL is the URL prefix the objects are served under.
	// Example: "http://localhost:8080/files"
	BaseURL string
}

// S3Config holds configuration for S3-compatible storage.
type S3Config struct {
	// Endpoint overrides the service endpoint for R2 or MinIO.
	// Leave empty for AWS S3.
	// Example: "https://<account>.r2.cloudflarestorage.com"
	Endpoint string

	// Region is required by the SDK. R2 accepts "auto".
	Region string

	AccessKeyID     string
	SecretAccessKey string

	// Bucket is the bucket that receives every object.
	Bucket string

	// PublicURL is the public base URL of the bucket, if it has one.
	// If empty, presigned URLs are used for all access.
	PublicURL string
}

// =============================================================================
// Provider Constants
// =============================================================================

const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderS3 identifies the S3-compatible storage provider.
	ProviderS3 = "s3"
)

// New builds the configured provider.
func New(ctx context.Context, provider string, local LocalConfig, s3cfg S3Config, logger *slog.Logger) (Storage, error) {
	switch provider {
	case ProviderLocal:
		return NewLocalStorage(local, logger)
	case ProviderS3:
		return NewS3Storage(ctx, s3cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", provider)
	}
}

// =============================================================================
// Key Generation Helpers
// =============================================================================

// AttachmentKey generates the key for an attachment original.
// Format: attachments/{localID}/{attachmentID}{ext}
//
// Example: "attachments/6f1c.../a9e2....jpg"
func AttachmentKey(localID, attachmentID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("attachments/%s/%s%s", localID, attachmentID, ext)
}

// ArtifactKey generates the key for a generated report artifact.
// Completed reports are filed under their sequence id; drafts under their
// local id, so a draft mirror never collides with a completed export.
//
// Format: reports/{year}/{sequenceID}/report.{ext} or drafts/{localID}/report.{ext}
// where year is the namespace prefix of the sequence id ("2026-17" -> 2026).
func ArtifactKey(localID, sequenceID, ext string) string {
	if sequenceID != "" {
		year, _, _ := strings.Cut(sequenceID, "-")
		return fmt.Sprintf("reports/%s/%s/report.%s", year, sequenceID, ext)
	}
	return fmt.Sprintf("drafts/%s/report.%s", localID, ext)
}
