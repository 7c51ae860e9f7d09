package storage

import (
	"errors"
	"fmt"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrNotFound is returned when a requested object doesn't exist.
	ErrNotFound = errors.New("object not found")

	// ErrKeyExists is returned when Put would replace an object and
	// overwrite is disabled.
	ErrKeyExists = errors.New("object already exists at this key")

	// ErrInvalidKey is returned for empty keys and path traversal attempts.
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrTooLarge is returned when an object exceeds the maximum allowed size.
	ErrTooLarge = errors.New("object exceeds maximum size")

	// ErrAccessDenied is returned when the provider rejects the credentials
	// or the bucket policy forbids the operation.
	ErrAccessDenied = errors.New("access denied")
)

// =============================================================================
// Structured Error Type
// =============================================================================

// StorageError records the operation and key that failed.
// It supports errors.Is for the sentinel errors above.
type StorageError struct {
	// Op is the operation that failed (e.g., "Put", "Get", "Delete").
	Op string

	// Key is the storage key involved in the operation.
	Key string

	// Err is the underlying error that occurred.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Helper Functions
// =============================================================================

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidKey returns true if the error indicates an invalid storage key.
func IsInvalidKey(err error) bool {
	return errors.Is(err, ErrInvalidKey)
}

// IsTooLarge returns true if the error indicates an object was too large.
func IsTooLarge(err error) bool {
	return errors.Is(err, ErrTooLarge)
}

// IsPermanent returns true for failures that retrying cannot fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrAccessDenied)
}
