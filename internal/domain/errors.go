package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID  = "invalid"   // Invalid input or validation failure
	ENOTFOUND = "not_found" // Resource not found
	ECONFLICT = "conflict"  // Resource conflict (e.g., completed report)
	ETOOLARGE = "too_large" // Attachment exceeds the size limit
	EINTERNAL = "internal"  // Internal error

	EUNAVAILABLE = "storage_unavailable" // Local document store inaccessible
	EINGEST      = "ingestion_failure"   // One attachment failed to encode or upload
	ESEQUENCE    = "remote_assignment"   // Sequence id fetch failed during completion
	EEXPORT      = "export_generation"   // Artifact rendering failed after local commit
	EUPLOAD      = "remote_upload"       // Artifacts rendered but not pushed
	ETRANSCRIBE  = "transcription"       // Dictation could not be transcribed
	EENRICH      = "ai_enrichment"       // AI enrichment failed
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "store.put")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		// For internal errors, return generic message
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Unavailable reports that the local document store could not be used.
// Work continues in memory but will not survive a restart.
func Unavailable(err error, op string) *Error {
	return &Error{
		Code:    EUNAVAILABLE,
		Op:      op,
		Message: "Local storage is unavailable. Changes are kept in memory only.",
		Err:     err,
	}
}

// IngestFailed is scoped to a single attachment.
func IngestFailed(err error, op, fileName string) *Error {
	return &Error{
		Code:    EINGEST,
		Op:      op,
		Message: fmt.Sprintf("Could not process %q", fileName),
		Err:     err,
	}
}

// AssignmentFailed reports a failed sequence id fetch. Nothing was persisted.
func AssignmentFailed(err error, op string) *Error {
	return &Error{
		Code:    ESEQUENCE,
		Op:      op,
		Message: "Could not assign a report number. The report was not completed; try again.",
		Err:     err,
	}
}

// ExportFailed reports that the report is completed locally but no artifacts exist.
func ExportFailed(err error, op string) *Error {
	return &Error{
		Code:    EEXPORT,
		Op:      op,
		Message: "The report is completed and saved, but its export files could not be generated. Retry the export.",
		Err:     err,
	}
}

// UploadFailed reports that artifacts were generated but not pushed.
func UploadFailed(err error, op string) *Error {
	return &Error{
		Code:    EUPLOAD,
		Op:      op,
		Message: "The report is completed and saved, but its export files could not be uploaded. Retry the export.",
		Err:     err,
	}
}

// TranscriptionFailed is a non-blocking notice for dictation.
func TranscriptionFailed(err error, op string) *Error {
	return &Error{
		Code:    ETRANSCRIBE,
		Op:      op,
		Message: "Dictation could not be transcribed.",
		Err:     err,
	}
}

// EnrichmentFailed is a non-blocking notice for AI assistance.
func EnrichmentFailed(err error, op, message string) *Error {
	return &Error{
		Code:    EENRICH,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
