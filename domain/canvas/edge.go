package canvas

// EdgeKind classifies an edge. Any value other than EdgeKindCluster is a
// user-authored ("manual") edge.
type EdgeKind string

const (
	EdgeKindCluster EdgeKind = "cluster"
	EdgeKindUntyped EdgeKind = "untyped"
)

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   EdgeKind `json:"edgeType"`
	Label  string   `json:"label,omitempty"`
}

// IsManual reports whether the edge was drawn by a user.
func (e Edge) IsManual() bool {
	return e.Kind != EdgeKindCluster
}

// Touches reports whether nodeID is one of the edge's endpoints.
func (e Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}

// pairKey identifies the unordered pair {a, b}.
type pairKey struct {
	lo, hi string
}

func newPairKey(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}
