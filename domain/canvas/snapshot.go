package canvas

import (
	"slices"
	"time"
)

// Snapshot is a fully independent copy of a canvas graph.
type Snapshot struct {
	Nodes    []Node    `json:"nodes"`
	Edges    []Edge    `json:"edges"`
	Clusters []Cluster `json:"clusters"`
}

// Clone returns a deep copy that shares no mutable state with s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Nodes:    cloneNodes(s.Nodes),
		Edges:    cloneEdges(s.Edges),
		Clusters: cloneClusters(s.Clusters),
	}
}

// NodeIDs returns the ids of all nodes in order.
func (s Snapshot) NodeIDs() []string {
	ids := make([]string, len(s.Nodes))
	for i, n := range s.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	if n.Dimensions != nil {
		d := *n.Dimensions
		out.Dimensions = &d
	}
	out.Data = n.Data.Clone()
	return out
}

// Clone returns a deep copy of the node data.
func (d NodeData) Clone() NodeData {
	out := d
	out.Tags = slices.Clone(d.Tags)
	out.Tasks = slices.Clone(d.Tasks)
	if d.Extensions != nil {
		out.Extensions = cloneMap(d.Extensions)
	}
	return out
}

// The top-level collections are never nil so snapshots compare and encode
// consistently.
func cloneNodes(in []Node) []Node {
	out := make([]Node, len(in))
	for i, n := range in {
		out[i] = n.Clone()
	}
	return out
}

func cloneEdges(in []Edge) []Edge {
	out := make([]Edge, len(in))
	copy(out, in)
	return out
}

func cloneClusters(in []Cluster) []Cluster {
	out := make([]Cluster, len(in))
	copy(out, in)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies the container shapes produced by encoding/json.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	case []float64:
		return slices.Clone(val)
	case []int:
		return slices.Clone(val)
	case *time.Time:
		if val == nil {
			return val
		}
		t := *val
		return &t
	default:
		return v
	}
}
