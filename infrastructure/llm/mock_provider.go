package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"notemesh/application/ports"
)

var promptNodeLine = regexp.MustCompile(`^\[([^\]]+)\]\s*(.*)$`)

// MockProvider answers clustering and improvement prompts without a model.
// Clustering groups nodes by the last word of their prompt line, which is
// their last tag when they have one. Improvement tidies whitespace and
// capitalizes sentences.
type MockProvider struct {
	available bool
}

// NewMockProvider creates a new mock LLM provider
func NewMockProvider() *MockProvider {
	return &MockProvider{available: true}
}

// Name implements ports.LLMProvider
func (m *MockProvider) Name() string { return "mock" }

// Complete implements ports.LLMProvider
func (m *MockProvider) Complete(ctx context.Context, prompt string, opts ports.CompletionOptions) (string, error) {
	if !m.available {
		return "", fmt.Errorf("mock provider is not available")
	}

	if strings.Contains(prompt, "group them into meaningful clusters") {
		return m.mockClusters(prompt)
	}
	if idx := strings.LastIndex(prompt, "Note:\n"); idx >= 0 {
		return m.mockImprovement(prompt[idx+len("Note:\n"):]), nil
	}
	return "", fmt.Errorf("unsupported prompt type")
}

func (m *MockProvider) mockClusters(prompt string) (string, error) {
	section := prompt
	if start := strings.Index(section, "Nodes:\n"); start >= 0 {
		section = section[start+len("Nodes:\n"):]
	}
	if end := strings.Index(section, "\n\nRules:"); end >= 0 {
		section = section[:end]
	}

	groups := make(map[string][]string)
	var order []string
	for _, line := range strings.Split(section, "\n") {
		match := promptNodeLine.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}
		key := "General"
		if fields := strings.Fields(match[2]); len(fields) > 0 {
			key = capitalize(strings.ToLower(fields[len(fields)-1]))
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], match[1])
	}
	sort.Strings(order)

	type cluster struct {
		Name    string   `json:"name"`
		NodeIDs []string `json:"nodeIds"`
	}
	out := struct {
		Clusters []cluster `json:"clusters"`
	}{Clusters: []cluster{}}
	for _, key := range order {
		out.Clusters = append(out.Clusters, cluster{Name: key, NodeIDs: groups[key]})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *MockProvider) mockImprovement(content string) string {
	sentences := strings.Split(strings.Join(strings.Fields(content), " "), ". ")
	for i, s := range sentences {
		sentences[i] = capitalize(s)
	}
	out := strings.Join(sentences, ". ")
	if out != "" && !strings.HasSuffix(out, ".") {
		out += "."
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
