// Package llm provides the language model providers behind clustering and
// note improvement.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"notemesh/application/ports"
	pkgerrors "notemesh/pkg/errors"
)

// DefaultGatewayURL is the chat completions endpoint of the AI gateway
const DefaultGatewayURL = "https://ai.gateway.lovable.dev/v1/chat/completions"

const (
	gatewayRateLimitMessage = "Rate limit exceeded. Please wait and try again."
	gatewayCreditsMessage   = "AI credits depleted. Please add credits to continue."
)

// GatewayConfig configures a GatewayProvider
type GatewayConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// GatewayProvider talks to an OpenAI compatible chat completions gateway.
type GatewayProvider struct {
	url    string
	apiKey string
	client *http.Client
	logger *zap.Logger
}

// NewGatewayProvider creates a gateway provider
func NewGatewayProvider(cfg GatewayConfig, logger *zap.Logger) *GatewayProvider {
	if cfg.URL == "" {
		cfg.URL = DefaultGatewayURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GatewayProvider{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Name implements ports.LLMProvider
func (p *GatewayProvider) Name() string { return "gateway" }

// Complete implements ports.LLMProvider
func (p *GatewayProvider) Complete(ctx context.Context, prompt string, opts ports.CompletionOptions) (string, error) {
	if p.apiKey == "" {
		return "", pkgerrors.NewUnavailableError("llm gateway").WithDetail("reason", "api key not configured")
	}

	var messages []chatMessage
	if opts.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", pkgerrors.NewInternalError("failed to encode completion request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", pkgerrors.NewInternalError("failed to build completion request").WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", pkgerrors.NewTimeoutError("llm completion").WithCause(err)
		}
		return "", pkgerrors.NewExternalError("llm gateway", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", pkgerrors.NewExternalError("llm gateway", err)
	}

	p.logger.Debug("Gateway completion",
		zap.String("model", opts.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", pkgerrors.FromStatus("llm gateway", resp.StatusCode, gatewayRateLimitMessage)
	case resp.StatusCode == http.StatusPaymentRequired:
		return "", pkgerrors.FromStatus("llm gateway", resp.StatusCode, gatewayCreditsMessage)
	case resp.StatusCode >= 300:
		p.logger.Warn("Gateway error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(raw), 512)),
		)
		return "", pkgerrors.FromStatus("llm gateway", resp.StatusCode, "")
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", pkgerrors.NewMalformedResponseError("llm gateway", err)
	}
	if len(decoded.Choices) == 0 {
		return "", pkgerrors.NewMalformedResponseError("llm gateway", fmt.Errorf("no choices in response"))
	}
	return decoded.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
