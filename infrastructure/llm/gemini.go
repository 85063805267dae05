package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"notemesh/application/ports"
	pkgerrors "notemesh/pkg/errors"
)

// GeminiProvider calls Gemini models through the Google Generative AI SDK.
type GeminiProvider struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiProvider creates a Gemini provider for the given API key
func NewGeminiProvider(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiProvider{client: client, logger: logger}, nil
}

// Name implements ports.LLMProvider
func (p *GeminiProvider) Name() string { return "gemini" }

// Complete implements ports.LLMProvider
func (p *GeminiProvider) Complete(ctx context.Context, prompt string, opts ports.CompletionOptions) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.SystemPrompt, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, opts.Model, genai.Text(prompt), cfg)
	if err != nil {
		return "", geminiError(err)
	}
	text := resp.Text()
	p.logger.Debug("Gemini completion", zap.String("model", opts.Model), zap.Int("length", len(text)))
	return text, nil
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return pkgerrors.FromStatus("gemini", apiErr.Code, apiErr.Message)
	}
	return pkgerrors.NewExternalError("gemini", err)
}
