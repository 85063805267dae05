package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"notemesh/application/ports"
	pkgerrors "notemesh/pkg/errors"
)

// ClusteringService answers clustering requests with an LLM and meters them
// per user and day. It backs the cluster-nodes function and the in-process
// provider used when no remote function is configured.
type ClusteringService struct {
	llm        ports.LLMProvider
	usage      ports.UsageTracker
	dailyLimit int
	model      string
	logger     *zap.Logger
	now        func() time.Time
}

// NewClusteringService creates a clustering service. A nil usage tracker or
// a non-positive limit disables metering.
func NewClusteringService(llm ports.LLMProvider, usage ports.UsageTracker, dailyLimit int, logger *zap.Logger) *ClusteringService {
	return &ClusteringService{
		llm:        llm,
		usage:      usage,
		dailyLimit: dailyLimit,
		model:      ClusterModel,
		logger:     logger,
		now:        time.Now,
	}
}

// WithModel overrides the model used for clustering prompts
func (s *ClusteringService) WithModel(model string) *ClusteringService {
	if model != "" {
		s.model = model
	}
	return s
}

// ProposeClusters implements ports.ClusteringProvider
func (s *ClusteringService) ProposeClusters(ctx context.Context, req ports.ClusterRequest) (*ports.ClusterResponse, error) {
	if len(req.Nodes) == 0 {
		return nil, pkgerrors.NewValidationError("No nodes provided")
	}

	day := s.now().UTC()
	metered := s.usage != nil && s.dailyLimit > 0 && req.UserID != ""
	if metered {
		count, err := s.usage.Count(ctx, req.UserID, day)
		if err != nil {
			return nil, err
		}
		if count >= s.dailyLimit {
			return nil, dailyLimitError(count, s.dailyLimit)
		}
	}

	s.logger.Info("Clustering nodes",
		zap.Int("nodes", len(req.Nodes)),
		zap.String("provider", s.llm.Name()),
	)
	answer, err := s.llm.Complete(ctx, BuildClusterPrompt(req.Nodes), ports.CompletionOptions{
		Operation:    "cluster",
		Model:        s.model,
		SystemPrompt: clusterSystemPrompt,
		Temperature:  ClusterTemperature,
	})
	if err != nil {
		return nil, err
	}

	proposal, err := ParseClusterProposal(answer)
	if err != nil {
		s.logger.Warn("Unparseable clustering answer", zap.Int("length", len(answer)), zap.Error(err))
		return nil, err
	}
	resp := &ports.ClusterResponse{Clusters: proposal.Clusters}

	if metered {
		count, allowed, err := s.usage.Increment(ctx, req.UserID, day, s.dailyLimit)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, dailyLimitError(count, s.dailyLimit)
		}
		resetAt := nextUTCMidnight(day)
		resp.Usage = &ports.ClusterUsage{Count: count, Limit: s.dailyLimit, ResetAt: &resetAt}
	}
	return resp, nil
}

// ImprovementService rewrites notes with an LLM.
type ImprovementService struct {
	llm    ports.LLMProvider
	model  string
	logger *zap.Logger
}

// NewImprovementService creates an improvement service
func NewImprovementService(llm ports.LLMProvider, logger *zap.Logger) *ImprovementService {
	return &ImprovementService{llm: llm, model: ImproveModel, logger: logger}
}

// WithModel overrides the model used for improvement prompts
func (s *ImprovementService) WithModel(model string) *ImprovementService {
	if model != "" {
		s.model = model
	}
	return s
}

// ImproveNote implements ports.NoteImprover. An empty answer yields the
// original content.
func (s *ImprovementService) ImproveNote(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", pkgerrors.NewValidationError("Missing note content").WithCode(pkgerrors.CodeEmptyNoteContent)
	}
	answer, err := s.llm.Complete(ctx, BuildImprovePrompt(content), ports.CompletionOptions{
		Operation:   "improve",
		Model:       s.model,
		Temperature: ImproveTemperature,
		MaxTokens:   ImproveMaxTokens,
	})
	if err != nil {
		return "", err
	}
	improved := strings.TrimSpace(answer)
	if improved == "" {
		s.logger.Debug("Empty improvement answer, keeping original content")
		return content, nil
	}
	return improved, nil
}

func dailyLimitError(count, limit int) error {
	return pkgerrors.NewRateLimitError("Daily clustering limit reached. Please try again tomorrow.").
		WithCode(pkgerrors.CodeDailyClusterCap).
		WithDetail("count", count).
		WithDetail("limit", limit)
}

func nextUTCMidnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
