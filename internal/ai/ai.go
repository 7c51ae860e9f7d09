// Package ai defines the enrichment collaborator used while editing a report:
// drafting the narrative summary, transcribing dictation, and reading
// equipment nameplates from photos.
//
// Enrichment is best-effort. Callers treat an error or an empty result as
// "no enrichment" and carry on with the document unchanged.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider is implemented by each AI backend.
type Provider interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// GenerateText answers a free-text prompt.
	GenerateText(ctx context.Context, params GenerateTextParams) (*TextResult, error)

	// Transcribe converts recorded audio to text.
	// Backends without speech support return EAIUnsupported.
	Transcribe(ctx context.Context, params TranscribeParams) (*TextResult, error)

	// ExtractFields reads structured values from an image.
	ExtractFields(ctx context.Context, params ExtractFieldsParams) (*FieldsResult, error)
}

// GenerateTextParams contains parameters for text generation
type GenerateTextParams struct {
	Prompt      string // User prompt
	System      string // Optional system instructions
	MaxTokens   int    // Response cap; providers pick a default when zero
	Temperature float32
}

// TranscribeParams contains parameters for audio transcription
type TranscribeParams struct {
	Audio       []byte // Raw audio bytes
	ContentType string // MIME type (e.g., "audio/webm")
	Language    string // Optional BCP-47 hint
}

// ExtractFieldsParams contains parameters for structured extraction
type ExtractFieldsParams struct {
	Image       []byte   // Raw image bytes
	ContentType string   // MIME type (e.g., "image/jpeg")
	Fields      []string // Field names to extract; the prompt lists them
	Hint        string   // Optional context from the technician
}

// TextResult is the output of GenerateText and Transcribe.
type TextResult struct {
	Text  string
	Usage UsageInfo
}

// FieldsResult maps requested field names to extracted values. Fields the
// model could not read are absent.
type FieldsResult struct {
	Fields map[string]string
	Usage  UsageInfo
}

// UsageInfo tracks API usage for monitoring
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// WithDefaults fills zero values.
func (c ProviderConfig) WithDefaults() ProviderConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	return c
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidInput indicates the audio, image or prompt was rejected
	EAIInvalidInput = errors.New("invalid input for ai request")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")

	// EAIUnsupported indicates the backend cannot perform the operation
	EAIUnsupported = errors.New("operation not supported by ai provider")

	// EAIEmptyResponse indicates the model returned nothing usable
	EAIEmptyResponse = errors.New("ai provider returned an empty response")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}

// Backoff returns the delay before retry attempt n (1-based): base * 2^(n-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<(attempt-1))
}
