package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"notemesh/application/ports"
	"notemesh/domain/canvas"
	pkgerrors "notemesh/pkg/errors"
)

// Model settings of the two AI features.
const (
	ClusterModel       = "google/gemini-2.5-flash"
	ClusterTemperature = 0.3
	ImproveModel       = "gemini-2.5-flash"
	ImproveTemperature = 0.4
	ImproveMaxTokens   = 2048
)

const clusterSystemPrompt = "You are a clustering expert. Always respond with valid JSON only."

const clusterPromptTemplate = `Analyze these nodes and group them into meaningful clusters (2-5 clusters max).
Return JSON with this structure:
{
  "clusters": [
    {
      "name": "Cluster Name",
      "color": "#HEX",
      "nodeIds": ["node1", "node2"]
    }
  ]
}

Nodes:
%s

Rules:
- Create 2-5 clusters based on semantic similarity
- Each node should belong to exactly one cluster
- Choose descriptive names (2-3 words)
- Use distinct, vibrant colors
- Include ALL node IDs`

const improvePromptTemplate = `Improve and format this note for clarity, grammar, and style. Return only the improved note as plain text without any explanations or markdown formatting.

Note:
%s`

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// BuildClusterPrompt renders one "[id] text tags" line per node.
func BuildClusterPrompt(nodes []ports.ClusterNode) string {
	lines := make([]string, len(nodes))
	for i, n := range nodes {
		lines[i] = fmt.Sprintf("[%s] %s %s", n.ID, n.Text, strings.Join(n.Tags, " "))
	}
	return fmt.Sprintf(clusterPromptTemplate, strings.Join(lines, "\n"))
}

// BuildImprovePrompt wraps note content in the improvement instruction.
func BuildImprovePrompt(content string) string {
	return fmt.Sprintf(improvePromptTemplate, content)
}

// ParseClusterProposal pulls the outermost JSON object out of a model answer
// and decodes it as a clustering proposal.
func ParseClusterProposal(raw string) (canvas.Proposal, error) {
	match := jsonObjectPattern.FindString(raw)
	if match == "" {
		return canvas.Proposal{}, pkgerrors.NewMalformedResponseError("llm", fmt.Errorf("no JSON found in AI response"))
	}
	var proposal canvas.Proposal
	if err := json.Unmarshal([]byte(match), &proposal); err != nil {
		return canvas.Proposal{}, pkgerrors.NewMalformedResponseError("llm", err)
	}
	return proposal, nil
}
