package canvas

import "slices"

// ChangeKind is the kind of a batched change coming from direct manipulation
// of the canvas.
type ChangeKind string

const (
	ChangeAdd        ChangeKind = "add"
	ChangeRemove     ChangeKind = "remove"
	ChangePosition   ChangeKind = "position"
	ChangeSelect     ChangeKind = "select"
	ChangeDimensions ChangeKind = "dimensions"
)

// NodeChange is one entry of a node change batch. Item is required for add,
// Position for position and Dimensions for dimensions.
type NodeChange struct {
	Type       ChangeKind  `json:"type" validate:"required,oneof=add remove position select dimensions"`
	ID         string      `json:"id"`
	Item       *Node       `json:"item,omitempty"`
	Position   *Position   `json:"position,omitempty"`
	Dimensions *Dimensions `json:"dimensions,omitempty"`
	Selected   bool        `json:"selected,omitempty"`
}

// EdgeChange is one entry of an edge change batch. Item is required for add.
type EdgeChange struct {
	Type     ChangeKind `json:"type" validate:"required,oneof=add remove select"`
	ID       string     `json:"id"`
	Item     *Edge      `json:"item,omitempty"`
	Selected bool       `json:"selected,omitempty"`
}

// Significant reports whether the change is worth an undo entry.
func (c NodeChange) Significant() bool {
	switch c.Type {
	case ChangeAdd, ChangeRemove, ChangePosition:
		return true
	}
	return false
}

// Significant reports whether the change is worth an undo entry.
func (c EdgeChange) Significant() bool {
	return c.Type == ChangeAdd || c.Type == ChangeRemove
}

// ApplyNodeChanges applies a batch of node changes. The batch records one
// history entry if at least one add, remove or position change was applied;
// selection and dimension changes never do. Changes naming unknown nodes are
// skipped. It reports whether history was recorded.
func (s *Store) ApplyNodeChanges(changes []NodeChange) bool {
	var (
		significant bool
		applied     bool
		nodeIDs     []string
		edgeIDs     []string
	)

	for _, c := range changes {
		switch c.Type {
		case ChangeAdd:
			if c.Item == nil {
				continue
			}
			n := s.prepareAddedNode(c)
			if s.nodeIndex(n.ID) >= 0 {
				continue
			}
			s.nodes = append(s.nodes, n)
			nodeIDs = append(nodeIDs, n.ID)

		case ChangeRemove:
			idx := s.nodeIndex(c.ID)
			if idx < 0 {
				continue
			}
			edgeIDs = append(edgeIDs, s.removeNodeAt(idx)...)
			nodeIDs = append(nodeIDs, c.ID)

		case ChangePosition:
			idx := s.nodeIndex(c.ID)
			if idx < 0 || c.Position == nil {
				continue
			}
			s.nodes[idx].Position = *c.Position
			nodeIDs = append(nodeIDs, c.ID)

		case ChangeSelect:
			if s.nodeIndex(c.ID) < 0 {
				continue
			}
			if c.Selected {
				s.selectedNodeID = c.ID
			} else if s.selectedNodeID == c.ID {
				s.selectedNodeID = ""
			}

		case ChangeDimensions:
			idx := s.nodeIndex(c.ID)
			if idx < 0 || c.Dimensions == nil {
				continue
			}
			d := *c.Dimensions
			s.nodes[idx].Dimensions = &d

		default:
			continue
		}

		applied = true
		significant = significant || c.Significant()
	}

	switch {
	case significant:
		s.record(EventNodesChanged, nodeIDs, edgeIDs)
	case applied:
		s.emit(EventNodesChanged, nodeIDs, edgeIDs, false)
	}
	return significant
}

// ApplyEdgeChanges applies a batch of edge changes with the same recording
// rule as ApplyNodeChanges. Added edges must reference existing nodes.
func (s *Store) ApplyEdgeChanges(changes []EdgeChange) bool {
	var (
		significant bool
		applied     bool
		edgeIDs     []string
	)

	for _, c := range changes {
		switch c.Type {
		case ChangeAdd:
			if c.Item == nil || s.nodeIndex(c.Item.Source) < 0 || s.nodeIndex(c.Item.Target) < 0 {
				continue
			}
			e := *c.Item
			if e.ID == "" {
				e.ID = c.ID
			}
			if e.ID == "" {
				e.ID = s.newID()
			}
			if e.Kind == "" {
				e.Kind = EdgeKindUntyped
			}
			if s.edgeIndex(e.ID) >= 0 {
				continue
			}
			s.edges = append(s.edges, e)
			edgeIDs = append(edgeIDs, e.ID)

		case ChangeRemove:
			idx := s.edgeIndex(c.ID)
			if idx < 0 {
				continue
			}
			s.edges = slices.Delete(s.edges, idx, idx+1)
			if s.selectedEdgeID == c.ID {
				s.selectedEdgeID = ""
			}
			edgeIDs = append(edgeIDs, c.ID)

		case ChangeSelect:
			if s.edgeIndex(c.ID) < 0 {
				continue
			}
			if c.Selected {
				s.selectedEdgeID = c.ID
			} else if s.selectedEdgeID == c.ID {
				s.selectedEdgeID = ""
			}

		default:
			continue
		}

		applied = true
		significant = significant || c.Significant()
	}

	switch {
	case significant:
		s.record(EventEdgesChanged, nil, edgeIDs)
	case applied:
		s.emit(EventEdgesChanged, nil, edgeIDs, false)
	}
	return significant
}

func (s *Store) prepareAddedNode(c NodeChange) Node {
	n := c.Item.Clone()
	if n.ID == "" {
		n.ID = c.ID
	}
	if n.ID == "" {
		n.ID = s.newID()
	}
	n.Data.ID = n.ID
	if n.Data.Tags == nil {
		n.Data.Tags = []string{}
	}
	if n.Data.Tasks == nil {
		n.Data.Tasks = []Task{}
	}
	if n.Data.CreatedAt.IsZero() {
		n.Data.CreatedAt = s.now()
	}
	if n.Data.ClusterID == "" || n.Data.ClusterName == "" || n.Data.ClusterColor == "" {
		n.Data.clearCluster()
	}
	return n
}
