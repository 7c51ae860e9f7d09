package mock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/fieldreport/internal/ai"
)

// Provider is a mock AI provider for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	GenerateTextResponse  string
	GenerateTextError     error
	TranscribeResponse    string
	TranscribeError       error
	ExtractFieldsResponse map[string]string
	ExtractFieldsError    error

	// Call tracking for testing
	GenerateTextCalls  int
	TranscribeCalls    int
	ExtractFieldsCalls int
	LastPrompt         string
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

func (p *Provider) Name() string { return "mock" }

// GenerateText echoes a canned summary unless a response or error is set.
func (p *Provider) GenerateText(ctx context.Context, params ai.GenerateTextParams) (*ai.TextResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.GenerateTextCalls++
	p.LastPrompt = params.Prompt

	if p.GenerateTextError != nil {
		return nil, p.GenerateTextError
	}
	text := p.GenerateTextResponse
	if text == "" {
		text = "The technician attended site and completed the scheduled service. Findings and corrective actions are listed in the issues section of this report."
	}
	p.logger.Debug("mock generate text", "prompt_len", len(params.Prompt))
	return &ai.TextResult{Text: text, Usage: usage(len(params.Prompt), len(text))}, nil
}

func (p *Provider) Transcribe(ctx context.Context, params ai.TranscribeParams) (*ai.TextResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.TranscribeCalls++

	if p.TranscribeError != nil {
		return nil, p.TranscribeError
	}
	text := p.TranscribeResponse
	if text == "" {
		text = "Checked contactor coil, measured 24 volts at the terminals."
	}
	return &ai.TextResult{Text: text, Usage: usage(len(params.Audio)/100, len(text))}, nil
}

func (p *Provider) ExtractFields(ctx context.Context, params ai.ExtractFieldsParams) (*ai.FieldsResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ExtractFieldsCalls++

	if p.ExtractFieldsError != nil {
		return nil, p.ExtractFieldsError
	}
	fields := p.ExtractFieldsResponse
	if fields == nil {
		fields = map[string]string{
			"manufacturer": "Trane",
			"model":        "4TTR6036J1000AA",
			"serialNumber": "21234ABCDE",
			"voltage":      "208-230",
			"phase":        "1",
		}
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return &ai.FieldsResult{Fields: out, Usage: usage(1200, 60)}, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.GenerateTextCalls = 0
	p.TranscribeCalls = 0
	p.ExtractFieldsCalls = 0
	p.LastPrompt = ""
	p.GenerateTextResponse = ""
	p.GenerateTextError = nil
	p.TranscribeResponse = ""
	p.TranscribeError = nil
	p.ExtractFieldsResponse = nil
	p.ExtractFieldsError = nil
}

func usage(in, out int) ai.UsageInfo {
	return ai.UsageInfo{
		Model:        "mock-ai-v1",
		InputTokens:  in,
		OutputTokens: out,
		Duration:     5 * time.Millisecond,
	}
}
