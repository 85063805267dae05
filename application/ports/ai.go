package ports

import (
	"context"
	"time"

	"notemesh/domain/canvas"
)

// ClusterNode is the part of a node sent out for clustering
type ClusterNode struct {
	ID   string   `json:"id" validate:"required"`
	Text string   `json:"text"`
	Tags []string `json:"tags"`
}

// ClusterRequest is the clustering contract's request body
type ClusterRequest struct {
	Nodes  []ClusterNode `json:"nodes" validate:"required,min=1,dive"`
	UserID string        `json:"userId,omitempty"`
}

// ClusterUsage reports the caller's daily clustering allowance
type ClusterUsage struct {
	Count   int        `json:"count"`
	Limit   int        `json:"limit"`
	ResetAt *time.Time `json:"resetAt,omitempty"`
}

// ClusterResponse is the clustering contract's success body
type ClusterResponse struct {
	Clusters []canvas.ProposedCluster `json:"clusters"`
	Usage    *ClusterUsage            `json:"usage,omitempty"`
}

// Proposal converts the response into a reconciler proposal
func (r ClusterResponse) Proposal() canvas.Proposal {
	return canvas.Proposal{Clusters: r.Clusters}
}

// ImproveRequest is the note-improvement contract's request body
type ImproveRequest struct {
	Content string `json:"content" validate:"required"`
}

// ImproveResponse is the note-improvement contract's success body
type ImproveResponse struct {
	ImprovedContent string `json:"improvedContent"`
}

// ClusteringProvider proposes a grouping for a set of nodes
type ClusteringProvider interface {
	ProposeClusters(ctx context.Context, req ClusterRequest) (*ClusterResponse, error)
}

// NoteImprover rewrites note text for clarity
type NoteImprover interface {
	ImproveNote(ctx context.Context, content string) (string, error)
}

// CompletionOptions tunes a single LLM call
type CompletionOptions struct {
	// Operation names the feature making the call, e.g. "cluster"
	Operation    string
	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
}

// LLMProvider completes a prompt with a language model
type LLMProvider interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
	Name() string
}
