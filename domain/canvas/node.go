// Package canvas holds the graph state of a single NoteMesh canvas: nodes,
// edges and clusters, the bounded undo/redo history over them, and the
// reconciler that folds an AI clustering proposal back into the graph.
package canvas

import (
	"slices"
	"time"
)

// Position is a node's location on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dimensions is the measured size reported by the rendering layer.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Task is a checklist entry attached to a node.
type Task struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// NodeData is the content of a node. Cluster fields are all-or-nothing and
// are owned by the reconciler.
type NodeData struct {
	ID           string         `json:"id"`
	Text         string         `json:"text"`
	Tags         []string       `json:"tags"`
	Tasks        []Task         `json:"tasks"`
	ClusterID    string         `json:"clusterId,omitempty"`
	ClusterName  string         `json:"clusterName,omitempty"`
	ClusterColor string         `json:"clusterColor,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	Extensions   map[string]any `json:"extensions,omitempty"`
}

// Node is a thought placed on the canvas.
type Node struct {
	ID         string      `json:"id"`
	Position   Position    `json:"position"`
	Dimensions *Dimensions `json:"dimensions,omitempty"`
	Data       NodeData    `json:"data"`
}

// HasTag reports whether the node carries tag.
func (d NodeData) HasTag(tag string) bool {
	return slices.Contains(d.Tags, tag)
}

// HasCluster reports whether the node is assigned to a cluster.
func (d NodeData) HasCluster() bool {
	return d.ClusterID != ""
}

func (d *NodeData) clearCluster() {
	d.ClusterID = ""
	d.ClusterName = ""
	d.ClusterColor = ""
}

func (d *NodeData) assignCluster(c Cluster) {
	d.ClusterID = c.ID
	d.ClusterName = c.Name
	d.ClusterColor = c.Color
}

// NodePatch is a partial update of node content. Nil fields are left as they
// are; an empty, non-nil slice clears the field. A nil value in Extensions
// removes that key.
type NodePatch struct {
	Text       *string        `json:"text,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Tasks      []Task         `json:"tasks,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p NodePatch) IsEmpty() bool {
	return p.Text == nil && p.Tags == nil && p.Tasks == nil && p.Extensions == nil
}

func (p NodePatch) apply(d *NodeData) {
	if p.Text != nil {
		d.Text = *p.Text
	}
	if p.Tags != nil {
		d.Tags = dedupeTags(p.Tags)
	}
	if p.Tasks != nil {
		d.Tasks = slices.Clone(p.Tasks)
	}
	if p.Extensions != nil {
		if d.Extensions == nil {
			d.Extensions = make(map[string]any, len(p.Extensions))
		}
		for k, v := range p.Extensions {
			if v == nil {
				delete(d.Extensions, k)
				continue
			}
			d.Extensions[k] = cloneValue(v)
		}
		if len(d.Extensions) == 0 {
			d.Extensions = nil
		}
	}
}

// dedupeTags keeps the first occurrence of every tag, preserving order.
func dedupeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
