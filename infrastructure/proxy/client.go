// Package proxy calls the cluster-nodes and improve-note functions over HTTP.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"notemesh/application/ports"
	pkgerrors "notemesh/pkg/errors"
)

// Config configures a function client
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Breaker settings
	MaxRequests      uint32
	Interval         time.Duration
	OpenTimeout      time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultConfig returns breaker settings tuned for slow LLM backed functions
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:          baseURL,
		APIKey:           apiKey,
		Timeout:          60 * time.Second,
		MaxRequests:      2,
		Interval:         60 * time.Second,
		OpenTimeout:      30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// caller is the transport shared by both clients.
type caller struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
	logger  *zap.Logger
}

func newCaller(name string, cfg Config, logger *zap.Logger) *caller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Caller mistakes and throttling say nothing about the function's health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			switch pkgerrors.TypeOf(err) {
			case pkgerrors.ErrorTypeValidation, pkgerrors.ErrorTypeRateLimit, pkgerrors.ErrorTypeQuota,
				pkgerrors.ErrorTypeUnauthorized, pkgerrors.ErrorTypeMalformedResponse:
				return true
			}
			return false
		},
	})
	return &caller{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		tracer:  otel.Tracer("notemesh/proxy"),
		logger:  logger,
	}
}

// post sends body to the named function and decodes a 2xx answer into out.
func (c *caller) post(ctx context.Context, function string, body, out any, attrs ...attribute.KeyValue) error {
	ctx, span := c.tracer.Start(ctx, "proxy."+function, trace.WithAttributes(attrs...))
	defer span.End()

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, function, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = pkgerrors.NewUnavailableError(function).WithCause(err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *caller) do(ctx context.Context, function string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.NewInternalError("failed to encode request").WithCause(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+function, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.NewInternalError("failed to build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return pkgerrors.NewTimeoutError(function).WithCause(err)
		}
		return pkgerrors.NewExternalError(function, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.NewExternalError(function, err)
	}
	c.logger.Debug("Function call",
		zap.String("function", function),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		appErr := pkgerrors.FromStatus(function, resp.StatusCode, eb.Error)
		if eb.Code != "" {
			appErr = appErr.WithCode(eb.Code)
		}
		return appErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.NewMalformedResponseError(function, err)
	}
	return nil
}

// ClusteringClient implements ports.ClusteringProvider against the
// cluster-nodes function.
type ClusteringClient struct {
	caller *caller
}

// NewClusteringClient creates a clustering client
func NewClusteringClient(cfg Config, logger *zap.Logger) *ClusteringClient {
	return &ClusteringClient{caller: newCaller("cluster-nodes", cfg, logger)}
}

// ProposeClusters implements ports.ClusteringProvider
func (c *ClusteringClient) ProposeClusters(ctx context.Context, req ports.ClusterRequest) (*ports.ClusterResponse, error) {
	var resp ports.ClusterResponse
	if err := c.caller.post(ctx, "cluster-nodes", req, &resp, attribute.Int("nodes", len(req.Nodes))); err != nil {
		return nil, err
	}
	if resp.Clusters == nil {
		return nil, pkgerrors.NewMalformedResponseError("cluster-nodes", fmt.Errorf("response has no clusters field"))
	}
	return &resp, nil
}

// ImprovementClient implements ports.NoteImprover against the improve-note
// function.
type ImprovementClient struct {
	caller *caller
}

// NewImprovementClient creates an improvement client
func NewImprovementClient(cfg Config, logger *zap.Logger) *ImprovementClient {
	return &ImprovementClient{caller: newCaller("improve-note", cfg, logger)}
}

// ImproveNote implements ports.NoteImprover
func (c *ImprovementClient) ImproveNote(ctx context.Context, content string) (string, error) {
	var resp ports.ImproveResponse
	err := c.caller.post(ctx, "improve-note", ports.ImproveRequest{Content: content}, &resp,
		attribute.Int("content.length", len(content)))
	if err != nil {
		return "", err
	}
	if resp.ImprovedContent == "" {
		return content, nil
	}
	return resp.ImprovedContent, nil
}
