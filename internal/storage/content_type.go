package storage

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// =============================================================================
// Content Type Detection
// =============================================================================

// knownTypes covers formats that mime.TypeByExtension does not resolve on
// every platform, notably phone camera formats.
var knownTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
	".pdf":  "application/pdf",
	".html": "text/html; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".json": "application/json",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".webm": "audio/webm",
}

// DetectContentType determines the MIME type of a file.
//
// Detection priority:
// 1. If providedType is a specific type, use it directly
// 2. Look up the file extension (known table, then mime.TypeByExtension)
// 3. Sniff the first 512 bytes of data (if available)
// 4. Fall back to "application/octet-stream"
//
// Browsers report HEIC uploads as application/octet-stream, so that value
// does not count as provided.
func DetectContentType(providedType, filename string, data []byte) string {
	if base := BaseType(providedType); base != "" && base != "application/octet-stream" {
		return providedType
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if contentType, ok := knownTypes[ext]; ok {
		return contentType
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	if len(data) > 0 {
		n := len(data)
		if n > 512 {
			n = 512
		}
		return http.DetectContentType(data[:n])
	}

	return "application/octet-stream"
}

// BaseType strips parameters and normalizes case ("Image/JPEG; q=1" -> "image/jpeg").
func BaseType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(strings.ToLower(base))
}

// IsImage returns true if the content type is any image format.
func IsImage(contentType string) bool {
	return strings.HasPrefix(BaseType(contentType), "image/")
}

// IsAudio returns true for dictation recordings.
func IsAudio(contentType string) bool {
	return strings.HasPrefix(BaseType(contentType), "audio/")
}

// =============================================================================
// File Extension Helpers
// =============================================================================

// ExtensionForContentType returns a common file extension for a MIME type.
func ExtensionForContentType(contentType string) string {
	base := BaseType(contentType)
	for ext, known := range map[string]string{
		".jpg":  "image/jpeg",
		".png":  "image/png",
		".webp": "image/webp",
		".heic": "image/heic",
		".heif": "image/heif",
		".tiff": "image/tiff",
		".bmp":  "image/bmp",
		".pdf":  "application/pdf",
	} {
		if base == known {
			return ext
		}
	}

	exts, err := mime.ExtensionsByType(base)
	if err == nil && len(exts) > 0 {
		return exts[0]
	}

	return ".bin"
}

// ReplaceExtension swaps a file name's extension, e.g. after transcoding.
func ReplaceExtension(filename, ext string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}
