package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/fieldreport/internal/ai"
	"github.com/DukeRupert/fieldreport/internal/metrics"
)

const (
	// APIBaseURL is the base URL for the Anthropic API
	APIBaseURL = "https://api.anthropic.com/v1/messages"

	// APIVersion is the Anthropic API version
	APIVersion = "2023-06-01"

	// DefaultModel is the default Claude model to use
	DefaultModel = "claude-3-5-sonnet-20241022"

	// MaxImageSize is the maximum image size in bytes (20MB)
	MaxImageSize = 20 * 1024 * 1024
)

// Config contains configuration for the Anthropic provider
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string // Overrides APIBaseURL, for tests
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.Provider using the Messages API. The API has no
// speech input, so Transcribe is unsupported.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Anthropic AI provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = APIBaseURL
	}
	config.ProviderConfig = config.ProviderConfig.WithDefaults()

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) GenerateText(ctx context.Context, params ai.GenerateTextParams) (*ai.TextResult, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, ai.WrapError("generate text", fmt.Errorf("%w: prompt is empty", ai.EAIInvalidInput))
	}

	req := apiRequest{
		Model:       p.config.Model,
		MaxTokens:   maxTokens(params.MaxTokens, 1024),
		System:      params.System,
		Temperature: params.Temperature,
		Messages: []apiMessage{{
			Role:    "user",
			Content: []apiContent{{Type: "text", Text: params.Prompt}},
		}},
	}

	text, usage, err := p.complete(ctx, "generate_text", req)
	if err != nil {
		return nil, ai.WrapError("generate text", err)
	}
	return &ai.TextResult{Text: text, Usage: usage}, nil
}

func (p *Provider) Transcribe(ctx context.Context, params ai.TranscribeParams) (*ai.TextResult, error) {
	metrics.AIAPICalls.WithLabelValues(p.Name(), "transcribe", "unsupported").Inc()
	return nil, ai.WrapError("transcribe", ai.EAIUnsupported)
}

func (p *Provider) ExtractFields(ctx context.Context, params ai.ExtractFieldsParams) (*ai.FieldsResult, error) {
	if err := validateImage(params); err != nil {
		return nil, ai.WrapError("extract fields", err)
	}

	req := apiRequest{
		Model:     p.config.Model,
		MaxTokens: 1024,
		Messages: []apiMessage{{
			Role: "user",
			Content: []apiContent{
				{
					Type: "image",
					Source: &apiImageSource{
						Type:      "base64",
						MediaType: params.ContentType,
						Data:      base64.StdEncoding.EncodeToString(params.Image),
					},
				},
				{
					Type: "text",
					Text: ai.BuildExtractionPrompt(params.Fields, params.Hint),
				},
			},
		}},
	}

	text, usage, err := p.complete(ctx, "extract_fields", req)
	if err != nil {
		return nil, ai.WrapError("extract fields", err)
	}
	fields, err := ai.ParseFields(text, params.Fields)
	if err != nil {
		return nil, ai.WrapError("extract fields", err)
	}
	return &ai.FieldsResult{Fields: fields, Usage: usage}, nil
}

// complete sends one Messages request with retries and returns the first
// text block.
func (p *Provider) complete(ctx context.Context, operation string, reqBody apiRequest) (string, ai.UsageInfo, error) {
	start := time.Now()

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", ai.UsageInfo{}, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := p.executeWithRetry(ctx, body)
	metrics.AIAPICalls.WithLabelValues(p.Name(), operation, metrics.Status(err)).Inc()
	if err != nil {
		return "", ai.UsageInfo{}, err
	}

	metrics.AITokensTotal.WithLabelValues(p.Name(), "input").Add(float64(resp.Usage.InputTokens))
	metrics.AITokensTotal.WithLabelValues(p.Name(), "output").Add(float64(resp.Usage.OutputTokens))

	usage := ai.UsageInfo{
		Model:        p.config.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Duration:     time.Since(start),
	}

	for _, content := range resp.Content {
		if content.Type == "text" && strings.TrimSpace(content.Text) != "" {
			return strings.TrimSpace(content.Text), usage, nil
		}
	}
	return "", usage, ai.EAIEmptyResponse
}

// executeWithRetry retries transient failures with exponential backoff. The
// request is rebuilt from body on every attempt.
func (p *Provider) executeWithRetry(ctx context.Context, body []byte) (*apiResponse, error) {
	var lastErr error
	maxRetries := p.config.ProviderConfig.MaxRetries

	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := p.executeRequest(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !ai.IsRetryable(err) || attempt >= maxRetries {
			break
		}

		delay := ai.Backoff(p.config.ProviderConfig.RetryBaseDelay, attempt)
		p.logger.Info("retrying AI request", "provider", p.Name(), "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (p *Provider) executeRequest(ctx context.Context, body []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", APIVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ai.EAIUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, respBody)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to ai errors
func mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusRequestTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ai.EAIInvalidInput, errResp.Error.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout, 529:
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

func validateImage(params ai.ExtractFieldsParams) error {
	if len(params.Image) == 0 {
		return fmt.Errorf("%w: image is empty", ai.EAIInvalidInput)
	}
	if len(params.Image) > MaxImageSize {
		return fmt.Errorf("%w: image size %d exceeds maximum %d", ai.EAIInvalidInput, len(params.Image), MaxImageSize)
	}
	switch params.ContentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return nil
	default:
		return fmt.Errorf("%w: unsupported content type %q", ai.EAIInvalidInput, params.ContentType)
	}
}

func maxTokens(requested, fallback int) int {
	if requested > 0 {
		return requested
	}
	return fallback
}

// API request/response types

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system,omitempty"`
	Temperature float32      `json:"temperature,omitempty"`
	Messages    []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *apiImageSource `json:"source,omitempty"`
}

type apiImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type apiResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []apiContentOutput `json:"content"`
	Model   string             `json:"model"`
	Usage   apiUsage           `json:"usage"`
}

type apiContentOutput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiErrorResponse struct {
	Type  string   `json:"type"`
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
