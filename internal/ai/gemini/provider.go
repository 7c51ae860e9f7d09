// Package gemini implements ai.Provider on the Gemini API. Gemini accepts
// audio and image parts inline, so it is the backend that supports dictation.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/fieldreport/internal/ai"
	"github.com/DukeRupert/fieldreport/internal/metrics"
	"google.golang.org/genai"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// MaxInlineSize is the request size limit for inline media (20MB).
const MaxInlineSize = 20 * 1024 * 1024

// Config contains configuration for the Gemini provider
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string // Overrides the API endpoint, for tests
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.Provider using google.golang.org/genai.
type Provider struct {
	client *genai.Client
	config Config
	logger *slog.Logger
}

// New creates the genai client.
func New(ctx context.Context, config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	config.ProviderConfig = config.ProviderConfig.WithDefaults()

	cc := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: config.ProviderConfig.RequestTimeout},
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Provider{client: client, config: config, logger: logger}, nil
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) GenerateText(ctx context.Context, params ai.GenerateTextParams) (*ai.TextResult, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, ai.WrapError("generate text", fmt.Errorf("%w: prompt is empty", ai.EAIInvalidInput))
	}

	cfg := &genai.GenerateContentConfig{}
	if params.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(params.System, genai.RoleUser)
	}
	if params.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(params.MaxTokens)
	}
	if params.Temperature > 0 {
		cfg.Temperature = genai.Ptr(params.Temperature)
	}

	contents := []*genai.Content{genai.NewContentFromText(params.Prompt, genai.RoleUser)}
	text, usage, err := p.generate(ctx, "generate_text", contents, cfg)
	if err != nil {
		return nil, ai.WrapError("generate text", err)
	}
	return &ai.TextResult{Text: text, Usage: usage}, nil
}

func (p *Provider) Transcribe(ctx context.Context, params ai.TranscribeParams) (*ai.TextResult, error) {
	if len(params.Audio) == 0 {
		return nil, ai.WrapError("transcribe", fmt.Errorf("%w: audio is empty", ai.EAIInvalidInput))
	}
	if len(params.Audio) > MaxInlineSize {
		return nil, ai.WrapError("transcribe", fmt.Errorf("%w: audio exceeds %d bytes", ai.EAIInvalidInput, MaxInlineSize))
	}

	prompt := ai.TranscriptionPrompt
	if params.Language != "" {
		prompt += " The speaker's language is " + params.Language + "."
	}
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(params.Audio, params.ContentType),
		genai.NewPartFromText(prompt),
	}, genai.RoleUser)}

	text, usage, err := p.generate(ctx, "transcribe", contents, &genai.GenerateContentConfig{})
	if err != nil {
		return nil, ai.WrapError("transcribe", err)
	}
	return &ai.TextResult{Text: text, Usage: usage}, nil
}

func (p *Provider) ExtractFields(ctx context.Context, params ai.ExtractFieldsParams) (*ai.FieldsResult, error) {
	if len(params.Image) == 0 {
		return nil, ai.WrapError("extract fields", fmt.Errorf("%w: image is empty", ai.EAIInvalidInput))
	}
	if len(params.Image) > MaxInlineSize {
		return nil, ai.WrapError("extract fields", fmt.Errorf("%w: image exceeds %d bytes", ai.EAIInvalidInput, MaxInlineSize))
	}

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(params.Image, params.ContentType),
		genai.NewPartFromText(ai.BuildExtractionPrompt(params.Fields, params.Hint)),
	}, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	text, usage, err := p.generate(ctx, "extract_fields", contents, cfg)
	if err != nil {
		return nil, ai.WrapError("extract fields", err)
	}
	fields, err := ai.ParseFields(text, params.Fields)
	if err != nil {
		return nil, ai.WrapError("extract fields", err)
	}
	return &ai.FieldsResult{Fields: fields, Usage: usage}, nil
}

// generate calls GenerateContent with retries on transient failures.
func (p *Provider) generate(ctx context.Context, operation string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, ai.UsageInfo, error) {
	start := time.Now()
	maxRetries := p.config.ProviderConfig.MaxRetries

	var (
		resp    *genai.GenerateContentResponse
		lastErr error
	)
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, lastErr = p.client.Models.GenerateContent(ctx, p.config.Model, contents, cfg)
		if lastErr == nil {
			break
		}
		lastErr = mapError(ctx, lastErr)
		if !ai.IsRetryable(lastErr) || attempt >= maxRetries {
			break
		}

		delay := ai.Backoff(p.config.ProviderConfig.RetryBaseDelay, attempt)
		p.logger.Info("retrying AI request", "provider", p.Name(), "attempt", attempt, "delay", delay, "error", lastErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ai.UsageInfo{}, ctx.Err()
		}
	}

	metrics.AIAPICalls.WithLabelValues(p.Name(), operation, metrics.Status(lastErr)).Inc()
	if lastErr != nil {
		return "", ai.UsageInfo{}, lastErr
	}

	usage := ai.UsageInfo{Model: p.config.Model, Duration: time.Since(start)}
	if md := resp.UsageMetadata; md != nil {
		usage.InputTokens = int(md.PromptTokenCount)
		usage.OutputTokens = int(md.CandidatesTokenCount)
		metrics.AITokensTotal.WithLabelValues(p.Name(), "input").Add(float64(md.PromptTokenCount))
		metrics.AITokensTotal.WithLabelValues(p.Name(), "output").Add(float64(md.CandidatesTokenCount))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", usage, ai.EAIEmptyResponse
	}
	return text, usage, nil
}

// mapError translates genai API errors to the ai sentinels.
func mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return fmt.Errorf("%w: %v", ai.EAIUnavailable, err)
	}

	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", ai.EAIUnauthorized, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ai.EAIRateLimit, err)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %v", ai.EAITimeout, err)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %v", ai.EAIInvalidInput, err)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %v", ai.EAIUnavailable, err)
	default:
		return err
	}
}
