package canvas

import (
	"errors"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	pkgerrors "notemesh/pkg/errors"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrEdgeNotFound = errors.New("edge not found")
)

// New nodes land in [positionOrigin, positionOrigin+positionSpan) on both axes.
const (
	positionOrigin = 100.0
	positionSpan   = 300.0
)

// Store owns the live graph of one canvas and records one history entry per
// logical user action. A Store is not safe for concurrent use; callers that
// share one must serialize access.
type Store struct {
	nodes          []Node
	edges          []Edge
	clusters       []Cluster
	selectedNodeID string
	selectedEdgeID string
	canvasID       string
	notebookID     string
	history        *History

	now      func() time.Time
	newID    func() string
	random   func() float64
	listener ChangeListener
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the time source used for CreatedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets the generator for node and edge ids.
func WithIDGenerator(newID func() string) StoreOption {
	return func(s *Store) { s.newID = newID }
}

// WithRandom sets the source of values in [0,1) used to place new nodes.
func WithRandom(random func() float64) StoreOption {
	return func(s *Store) { s.random = random }
}

// WithListener registers the listener notified after every mutation.
func WithListener(l ChangeListener) StoreOption {
	return func(s *Store) { s.listener = l }
}

// NewStore creates an empty store whose history holds one empty snapshot.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		now:    time.Now,
		newID:  uuid.NewString,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

// Reset returns the store to its initial state. Injected dependencies are kept.
func (s *Store) Reset() {
	s.nodes = []Node{}
	s.edges = []Edge{}
	s.clusters = []Cluster{}
	s.selectedNodeID = ""
	s.selectedEdgeID = ""
	s.canvasID = ""
	s.notebookID = ""
	s.history = NewHistory()
}

// SetListener replaces the change listener.
func (s *Store) SetListener(l ChangeListener) {
	s.listener = l
}

// AddNode places a new node at a random position and returns its id.
func (s *Store) AddNode(text string, tags []string) string {
	id := s.newID()
	s.nodes = append(s.nodes, Node{
		ID: id,
		Position: Position{
			X: positionOrigin + s.random()*positionSpan,
			Y: positionOrigin + s.random()*positionSpan,
		},
		Data: NodeData{
			ID:        id,
			Text:      text,
			Tags:      dedupeTags(tags),
			Tasks:     []Task{},
			CreatedAt: s.now(),
		},
	})
	s.record(EventNodeAdded, []string{id}, nil)
	return id
}

// AddEdge connects two existing nodes. An empty kind means EdgeKindUntyped.
func (s *Store) AddEdge(source, target string, kind EdgeKind, label string) (string, error) {
	for _, id := range []string{source, target} {
		if s.nodeIndex(id) < 0 {
			return "", nodeNotFound(id)
		}
	}
	if kind == "" {
		kind = EdgeKindUntyped
	}

	id := s.newID()
	s.edges = append(s.edges, Edge{
		ID:     id,
		Source: source,
		Target: target,
		Kind:   kind,
		Label:  label,
	})
	s.record(EventEdgeAdded, []string{source, target}, []string{id})
	return id, nil
}

// UpdateNode merges patch into the node's data.
func (s *Store) UpdateNode(id string, patch NodePatch) error {
	idx := s.nodeIndex(id)
	if idx < 0 {
		return nodeNotFound(id)
	}
	patch.apply(&s.nodes[idx].Data)
	s.record(EventNodeUpdated, []string{id}, nil)
	return nil
}

// DeleteNode removes a node together with every edge touching it.
func (s *Store) DeleteNode(id string) error {
	idx := s.nodeIndex(id)
	if idx < 0 {
		return nodeNotFound(id)
	}
	removedEdges := s.removeNodeAt(idx)
	s.record(EventNodeDeleted, []string{id}, removedEdges)
	return nil
}

// DeleteEdge removes a single edge.
func (s *Store) DeleteEdge(id string) error {
	idx := s.edgeIndex(id)
	if idx < 0 {
		return pkgerrors.NewNotFoundError("edge").
			WithCause(ErrEdgeNotFound).
			WithDetail("edge_id", id)
	}
	edge := s.edges[idx]
	s.edges = slices.Delete(s.edges, idx, idx+1)
	if s.selectedEdgeID == id {
		s.selectedEdgeID = ""
	}
	s.record(EventEdgeDeleted, []string{edge.Source, edge.Target}, []string{id})
	return nil
}

// ClearCanvas empties the graph and the selection.
func (s *Store) ClearCanvas() {
	s.nodes = []Node{}
	s.edges = []Edge{}
	s.clusters = []Cluster{}
	s.selectedNodeID = ""
	s.selectedEdgeID = ""
	s.record(EventCanvasCleared, nil, nil)
}

// ApplyClustering reconciles proposal against the live graph and swaps in
// the result as one undoable step. Nothing changes on error.
func (s *Store) ApplyClustering(proposal Proposal) (*ReconcileResult, error) {
	result, err := Reconcile(s.nodes, s.edges, proposal)
	if err != nil {
		return nil, err
	}
	s.nodes = cloneNodes(result.Nodes)
	s.edges = cloneEdges(result.Edges)
	s.clusters = cloneClusters(result.Clusters)

	nodeIDs := make([]string, 0, len(result.Assignments))
	for _, n := range s.nodes {
		if _, ok := result.Assignments[n.ID]; ok {
			nodeIDs = append(nodeIDs, n.ID)
		}
	}
	edgeIDs := make([]string, len(result.Generated))
	for i, e := range result.Generated {
		edgeIDs[i] = e.ID
	}
	s.record(EventCanvasCluster, nodeIDs, edgeIDs)
	return result, nil
}

// Load replaces the live graph with a persisted one. Loading is not an
// undoable action: history restarts with the loaded state as its only entry.
func (s *Store) Load(snapshot Snapshot) {
	s.restore(snapshot.Clone())
	s.history.Reset(snapshot)
	s.emit(EventCanvasLoaded, snapshot.NodeIDs(), nil, false)
}

// Checkpoint captures the graph, selection and history of a store so a
// caller can take back a mutation it failed to persist.
type Checkpoint struct {
	graph          Snapshot
	selectedNodeID string
	selectedEdgeID string
	history        historyMark
}

// Checkpoint returns the current state for a later Rollback.
func (s *Store) Checkpoint() Checkpoint {
	return Checkpoint{
		graph:          s.Snapshot(),
		selectedNodeID: s.selectedNodeID,
		selectedEdgeID: s.selectedEdgeID,
		history:        s.history.mark(),
	}
}

// Rollback returns the store to cp, history included. No event is emitted.
func (s *Store) Rollback(cp Checkpoint) {
	s.restore(cp.graph.Clone())
	s.selectedNodeID = cp.selectedNodeID
	s.selectedEdgeID = cp.selectedEdgeID
	s.history.rewind(cp.history)
}

// Undo restores the previous history entry.
func (s *Store) Undo() bool {
	snap, ok := s.history.Undo()
	if !ok {
		return false
	}
	s.restore(snap)
	s.emit(EventHistoryUndo, nil, nil, false)
	return true
}

// Redo restores the next history entry.
func (s *Store) Redo() bool {
	snap, ok := s.history.Redo()
	if !ok {
		return false
	}
	s.restore(snap)
	s.emit(EventHistoryRedo, nil, nil, false)
	return true
}

func (s *Store) CanUndo() bool     { return s.history.CanUndo() }
func (s *Store) CanRedo() bool     { return s.history.CanRedo() }
func (s *Store) HistoryLen() int   { return s.history.Len() }
func (s *Store) HistoryIndex() int { return s.history.Index() }

// Setters replace state without recording history.

func (s *Store) SetNodes(nodes []Node)          { s.nodes = cloneNodes(nodes) }
func (s *Store) SetEdges(edges []Edge)          { s.edges = cloneEdges(edges) }
func (s *Store) SetClusters(clusters []Cluster) { s.clusters = cloneClusters(clusters) }
func (s *Store) SetCanvasID(id string)          { s.canvasID = id }
func (s *Store) SetNotebookID(id string)        { s.notebookID = id }

// SetSelectedNodeID selects a node, or clears the selection when id is empty.
func (s *Store) SetSelectedNodeID(id string) {
	s.selectedNodeID = id
	s.emit(EventSelectionMoved, nonEmpty(id), nil, false)
}

// Readers return copies.

func (s *Store) Nodes() []Node          { return cloneNodes(s.nodes) }
func (s *Store) Edges() []Edge          { return cloneEdges(s.edges) }
func (s *Store) Clusters() []Cluster    { return cloneClusters(s.clusters) }
func (s *Store) SelectedNodeID() string { return s.selectedNodeID }
func (s *Store) SelectedEdgeID() string { return s.selectedEdgeID }
func (s *Store) CanvasID() string       { return s.canvasID }
func (s *Store) NotebookID() string     { return s.notebookID }

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	idx := s.nodeIndex(id)
	if idx < 0 {
		return Node{}, false
	}
	return s.nodes[idx].Clone(), true
}

// Snapshot returns a copy of the live graph.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{Nodes: s.nodes, Edges: s.edges, Clusters: s.clusters}.Clone()
}

func (s *Store) record(t EventType, nodeIDs, edgeIDs []string) {
	s.history.Save(Snapshot{Nodes: s.nodes, Edges: s.edges, Clusters: s.clusters})
	s.emit(t, nodeIDs, edgeIDs, true)
}

func (s *Store) emit(t EventType, nodeIDs, edgeIDs []string, recorded bool) {
	if s.listener == nil {
		return
	}
	s.listener(ChangeEvent{
		Type:         t,
		CanvasID:     s.canvasID,
		NodeIDs:      nodeIDs,
		EdgeIDs:      edgeIDs,
		HistoryIndex: s.history.Index(),
		Recorded:     recorded,
	})
}

// restore swaps in snap, which must already be a private copy.
func (s *Store) restore(snap Snapshot) {
	s.nodes = snap.Nodes
	s.edges = snap.Edges
	s.clusters = snap.Clusters
	if s.nodes == nil {
		s.nodes = []Node{}
	}
	if s.edges == nil {
		s.edges = []Edge{}
	}
	if s.clusters == nil {
		s.clusters = []Cluster{}
	}
	if s.selectedNodeID != "" && s.nodeIndex(s.selectedNodeID) < 0 {
		s.selectedNodeID = ""
	}
	if s.selectedEdgeID != "" && s.edgeIndex(s.selectedEdgeID) < 0 {
		s.selectedEdgeID = ""
	}
}

// removeNodeAt deletes the node at idx and its incident edges, returning the
// ids of the removed edges.
func (s *Store) removeNodeAt(idx int) []string {
	id := s.nodes[idx].ID
	s.nodes = slices.Delete(s.nodes, idx, idx+1)

	var removed []string
	s.edges = slices.DeleteFunc(s.edges, func(e Edge) bool {
		if e.Touches(id) {
			removed = append(removed, e.ID)
			return true
		}
		return false
	})
	if s.selectedNodeID == id {
		s.selectedNodeID = ""
	}
	if s.selectedEdgeID != "" && slices.Contains(removed, s.selectedEdgeID) {
		s.selectedEdgeID = ""
	}
	return removed
}

func (s *Store) nodeIndex(id string) int {
	return slices.IndexFunc(s.nodes, func(n Node) bool { return n.ID == id })
}

func (s *Store) edgeIndex(id string) int {
	return slices.IndexFunc(s.edges, func(e Edge) bool { return e.ID == id })
}

func nodeNotFound(id string) error {
	return pkgerrors.NewNotFoundError("node").
		WithCause(ErrNodeNotFound).
		WithDetail("node_id", id)
}

func nonEmpty(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}
