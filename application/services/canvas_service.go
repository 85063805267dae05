package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notemesh/application/ports"
	"notemesh/domain/canvas"
	"notemesh/domain/events"
	pkgerrors "notemesh/pkg/errors"
)

// MinClusterNodes is the smallest canvas that can be auto-clustered.
const MinClusterNodes = 2

// CanvasView is the state of a canvas session returned to callers.
type CanvasView struct {
	Canvas         canvas.Canvas   `json:"canvas"`
	Graph          canvas.Snapshot `json:"graph"`
	SelectedNodeID string          `json:"selectedNodeId,omitempty"`
	SelectedEdgeID string          `json:"selectedEdgeId,omitempty"`
	CanUndo        bool            `json:"canUndo"`
	CanRedo        bool            `json:"canRedo"`
	HistoryIndex   int             `json:"historyIndex"`
	HistoryLen     int             `json:"historyLength"`
}

// ClusterOutcome is the result of an auto-cluster request.
type ClusterOutcome struct {
	Clusters       []canvas.Cluster    `json:"clusters"`
	GeneratedEdges int                 `json:"generatedEdges"`
	DroppedNodeIDs int                 `json:"droppedNodeIds"`
	Usage          *ports.ClusterUsage `json:"usage,omitempty"`
	View           *CanvasView         `json:"canvas"`
}

// session serializes every operation on one canvas store.
type session struct {
	mu      sync.Mutex
	canvas  canvas.Canvas
	store   *canvas.Store
	pending []canvas.ChangeEvent
}

// CanvasService owns one canvas.Store per open canvas and persists the graph
// after every mutation.
type CanvasService struct {
	repo      ports.CanvasRepository
	clusterer ports.ClusteringProvider
	publisher ports.EventPublisher
	notifier  ports.ChangeNotifier
	logger    *zap.Logger
	now       func() time.Time
	storeOpts []canvas.StoreOption

	mu       sync.Mutex
	sessions map[string]*session
	seq      *Sequencer
}

// NewCanvasService creates a new canvas service. publisher and notifier may be nil.
func NewCanvasService(
	repo ports.CanvasRepository,
	clusterer ports.ClusteringProvider,
	publisher ports.EventPublisher,
	notifier ports.ChangeNotifier,
	logger *zap.Logger,
	storeOpts ...canvas.StoreOption,
) *CanvasService {
	return &CanvasService{
		repo:      repo,
		clusterer: clusterer,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		storeOpts: storeOpts,
		sessions:  make(map[string]*session),
		seq:       NewSequencer(),
	}
}

// Open loads a canvas into a session. An empty canvasID opens the user's
// default canvas, creating it on first use.
func (s *CanvasService) Open(ctx context.Context, userID, canvasID string) (*CanvasView, error) {
	if canvasID == "" {
		c, err := s.defaultCanvas(ctx, userID)
		if err != nil {
			return nil, err
		}
		canvasID = c.ID
	}

	sess, err := s.session(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// ListCanvases returns the user's canvases
func (s *CanvasService) ListCanvases(ctx context.Context, userID string) ([]*canvas.Canvas, error) {
	return s.repo.ListCanvases(ctx, userID)
}

// CreateCanvas creates an empty canvas
func (s *CanvasService) CreateCanvas(ctx context.Context, userID, title, notebookID string) (*canvas.Canvas, error) {
	if title == "" {
		title = canvas.DefaultTitle
	}
	now := s.now()
	c := &canvas.Canvas{
		ID:         uuid.NewString(),
		UserID:     userID,
		Title:      title,
		NotebookID: notebookID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateCanvas(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("Canvas created", zap.String("canvasID", c.ID), zap.String("userID", userID))
	return c, nil
}

// DeleteCanvas removes a canvas and drops its session
func (s *CanvasService) DeleteCanvas(ctx context.Context, userID, canvasID string) error {
	if _, err := s.repo.GetCanvas(ctx, userID, canvasID); err != nil {
		return err
	}
	if err := s.repo.DeleteCanvas(ctx, userID, canvasID); err != nil {
		return err
	}
	s.Close(canvasID)
	return nil
}

// Close drops the in-memory session of a canvas.
func (s *CanvasService) Close(canvasID string) {
	s.mu.Lock()
	delete(s.sessions, canvasID)
	s.mu.Unlock()
}

// SubmitChat turns a chat box message into a node.
func (s *CanvasService) SubmitChat(ctx context.Context, userID, canvasID, message string) (*canvas.Node, error) {
	text, tags, ok := canvas.ParseChatMessage(message)
	if !ok {
		return nil, pkgerrors.NewValidationError("Message has no text besides tags")
	}
	return s.AddNode(ctx, userID, canvasID, text, tags)
}

// AddNode adds a node
func (s *CanvasService) AddNode(ctx context.Context, userID, canvasID, text string, tags []string) (*canvas.Node, error) {
	var node canvas.Node
	_, err := s.mutate(ctx, userID, canvasID, func(st *canvas.Store) error {
		node, _ = st.Node(st.AddNode(text, tags))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// AddEdge connects two nodes
func (s *CanvasService) AddEdge(ctx context.Context, userID, canvasID, source, target string, kind canvas.EdgeKind, label string) (*canvas.Edge, error) {
	var edge canvas.Edge
	_, err := s.mutate(ctx, userID, canvasID, func(st *canvas.Store) error {
		id, err := st.AddEdge(source, target, kind, label)
		if err != nil {
			return err
		}
		for _, e := range st.Edges() {
			if e.ID == id {
				edge = e
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

// UpdateNode patches a node's content
func (s *CanvasService) UpdateNode(ctx context.Context, userID, canvasID, nodeID string, patch canvas.NodePatch) (*canvas.Node, error) {
	var node canvas.Node
	_, err := s.mutate(ctx, userID, canvasID, func(st *canvas.Store) error {
		if err := st.UpdateNode(nodeID, patch); err != nil {
			return err
		}
		node, _ = st.Node(nodeID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// DeleteNode removes a node and its edges
func (s *CanvasService) DeleteNode(ctx context.Context, userID, canvasID, nodeID string) (*CanvasView, error) {
	return s.mutate(ctx, userID, canvasID, func(st *canvas.Store) error {
		return st.DeleteNode(nodeID)
	})
}

// DeleteEdge removes an edge
func (s *CanvasService) DeleteEdge(ctx context.Context, userID, canvasID, edgeID string) (*CanvasView, error) {
	return s.mutate(ctx, userID, canvasID, func(st *canvas.Store) error {
		return st.DeleteEdge(edgeID)
	})
}

// ApplyNodeChanges applies a batch of node changes from the canvas UI
func (s *CanvasService) ApplyNodeChanges(ctx context.Context, userID, canvasID string, changes []canvas.NodeChange) (*CanvasView, error) {
	return s.mutate(ctx, userID, canvasID, func(st *canvas.Store) error {
		st.ApplyNodeChanges(changes)
		return nil
	})
}

// ApplyEdgeChanges applies a batch of edge changes from the canvas UI
func (s *CanvasService) ApplyEdgeChanges(ctx context.Context, userID, canvasID string, changes []canvas.EdgeChange) (*CanvasView, error) {
	return s.mutate(ctx, userID, canvasID, func(st *canvas.Store) error {
		st.ApplyEdgeChanges(changes)
		return nil
	})
}

// SelectNode sets or clears the selected node
func (s *CanvasService) SelectNode(ctx context.Context, userID, canvasID, nodeID string) (*CanvasView, error) {
	return s.mutate(ctx, userID, canvasID, func(st *canvas.Store) error {
		if nodeID != "" {
			if _, ok := st.Node(nodeID); !ok {
				return pkgerrors.NewNotFoundError("node").WithCause(canvas.ErrNodeNotFound).WithDetail("node_id", nodeID)
			}
		}
		st.SetSelectedNodeID(nodeID)
		return nil
	})
}

// Undo steps the canvas back one action
func (s *CanvasService) Undo(ctx context.Context, userID, canvasID string) (*CanvasView, error) {
	return s.mutate(ctx, userID, canvasID, func(st *canvas.Store) error {
		st.Undo()
		return nil
	})
}

// Redo re-applies the next undone action
func (s *CanvasService) Redo(ctx context.Context, userID, canvasID string) (*CanvasView, error) {
	return s.mutate(ctx, userID, canvasID, func(st *canvas.Store) error {
		st.Redo()
		return nil
	})
}

// Clear empties the canvas
func (s *CanvasService) Clear(ctx context.Context, userID, canvasID string) (*CanvasView, error) {
	return s.mutate(ctx, userID, canvasID, func(st *canvas.Store) error {
		st.ClearCanvas()
		return nil
	})
}

// AutoCluster asks the clustering provider for a grouping of the canvas and
// reconciles it into the graph. The outbound call runs without holding the
// session; if another clustering request for the same canvas was issued in
// the meantime, this response is discarded.
func (s *CanvasService) AutoCluster(ctx context.Context, userID, canvasID string) (*ClusterOutcome, error) {
	sess, err := s.session(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	nodes := sess.store.Nodes()
	if len(nodes) < MinClusterNodes {
		sess.mu.Unlock()
		return nil, pkgerrors.NewValidationError("Need at least 2 nodes to cluster").
			WithCode(pkgerrors.CodeNotEnoughNodes).
			WithDetail("nodes", len(nodes))
	}
	seq := s.seq.Next(canvasID)
	sess.mu.Unlock()

	req := ports.ClusterRequest{UserID: userID, Nodes: make([]ports.ClusterNode, len(nodes))}
	for i, n := range nodes {
		req.Nodes[i] = ports.ClusterNode{ID: n.ID, Text: n.Data.Text, Tags: n.Data.Tags}
	}

	s.logger.Info("Requesting clusters",
		zap.String("canvasID", canvasID),
		zap.Int("nodes", len(nodes)),
		zap.Uint64("seq", seq),
	)
	resp, err := s.clusterer.ProposeClusters(ctx, req)
	if err != nil {
		s.logger.Warn("Clustering request failed", zap.String("canvasID", canvasID), zap.Error(err))
		return nil, err
	}

	var result *canvas.ReconcileResult
	view, err := s.mutate(ctx, userID, canvasID, func(st *canvas.Store) error {
		if !s.seq.IsLatest(canvasID, seq) {
			return staleResponseError("canvas_id", canvasID)
		}
		var err error
		result, err = st.ApplyClustering(resp.Proposal())
		return err
	})
	if err != nil {
		s.logger.Warn("Clustering result not applied", zap.String("canvasID", canvasID), zap.Error(err))
		return nil, err
	}

	s.publish(ctx, events.NewClustersApplied(userID, canvasID, result, s.now()))
	s.logger.Info("Clusters applied",
		zap.String("canvasID", canvasID),
		zap.Int("clusters", len(result.Clusters)),
		zap.Int("generatedEdges", len(result.Generated)),
		zap.Int("droppedNodeIDs", result.DroppedNodeIDs),
	)
	return &ClusterOutcome{
		Clusters:       result.Clusters,
		GeneratedEdges: len(result.Generated),
		DroppedNodeIDs: result.DroppedNodeIDs,
		Usage:          resp.Usage,
		View:           view,
	}, nil
}

// mutate runs fn against the canvas store under the session lock, persists
// the graph when fn changed it and then fans the changes out. If fn or the
// save fails the store is rolled back, so a failed call changes nothing.
func (s *CanvasService) mutate(ctx context.Context, userID, canvasID string, fn func(*canvas.Store) error) (*CanvasView, error) {
	sess, err := s.session(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	sess.pending = sess.pending[:0]
	checkpoint := sess.store.Checkpoint()
	if err := fn(sess.store); err != nil {
		sess.store.Rollback(checkpoint)
		sess.mu.Unlock()
		return nil, err
	}
	changes := append([]canvas.ChangeEvent(nil), sess.pending...)
	if needsPersist(changes) {
		if err := s.repo.SaveGraph(ctx, userID, canvasID, sess.store.Snapshot()); err != nil {
			sess.store.Rollback(checkpoint)
			sess.mu.Unlock()
			s.logger.Error("Failed to persist canvas", zap.String("canvasID", canvasID), zap.Error(err))
			return nil, err
		}
	}
	view := sess.view()
	sess.mu.Unlock()

	s.fanOut(ctx, userID, changes)
	return view, nil
}

// needsPersist reports whether the graph changed: a recorded action or a
// step through history. Measured dimensions are written with the next save.
func needsPersist(changes []canvas.ChangeEvent) bool {
	for _, c := range changes {
		switch {
		case c.Recorded:
			return true
		case c.Type == canvas.EventHistoryUndo, c.Type == canvas.EventHistoryRedo:
			return true
		}
	}
	return false
}

func (s *CanvasService) fanOut(ctx context.Context, userID string, changes []canvas.ChangeEvent) {
	if len(changes) == 0 {
		return
	}
	now := s.now()
	batch := make([]events.DomainEvent, 0, len(changes))
	for _, c := range changes {
		batch = append(batch, events.NewCanvasChanged(userID, c, now))
		if s.notifier != nil {
			if err := s.notifier.NotifyCanvasChange(ctx, userID, c); err != nil {
				s.logger.Warn("Failed to notify clients", zap.String("canvasID", c.CanvasID), zap.Error(err))
			}
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishBatch(ctx, batch); err != nil {
			s.logger.Warn("Failed to publish canvas events", zap.Int("count", len(batch)), zap.Error(err))
		}
	}
}

func (s *CanvasService) publish(ctx context.Context, event events.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event", zap.String("type", event.GetEventType()), zap.Error(err))
	}
}

// session returns the open session for canvasID, loading it on first use.
func (s *CanvasService) session(ctx context.Context, userID, canvasID string) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[canvasID]
	s.mu.Unlock()
	if ok {
		if sess.canvas.UserID != userID {
			return nil, pkgerrors.NewNotFoundError("canvas").WithDetail("canvas_id", canvasID)
		}
		return sess, nil
	}

	c, err := s.repo.GetCanvas(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}
	graph, err := s.repo.LoadGraph(ctx, userID, canvasID)
	if err != nil {
		return nil, err
	}

	sess = &session{canvas: *c}
	opts := append([]canvas.StoreOption{}, s.storeOpts...)
	opts = append(opts, canvas.WithListener(func(e canvas.ChangeEvent) {
		sess.pending = append(sess.pending, e)
	}))
	sess.store = canvas.NewStore(opts...)
	sess.store.SetCanvasID(c.ID)
	sess.store.SetNotebookID(c.NotebookID)
	sess.store.Load(graph)
	sess.pending = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[canvasID]; ok {
		return existing, nil
	}
	s.sessions[canvasID] = sess
	s.logger.Debug("Canvas session opened",
		zap.String("canvasID", canvasID),
		zap.Int("nodes", len(graph.Nodes)),
	)
	return sess, nil
}

func (s *CanvasService) defaultCanvas(ctx context.Context, userID string) (*canvas.Canvas, error) {
	c, err := s.repo.GetDefaultCanvas(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !pkgerrors.IsNotFound(err) {
		return nil, err
	}
	return s.CreateCanvas(ctx, userID, canvas.DefaultTitle, "")
}

func (sess *session) view() *CanvasView {
	return &CanvasView{
		Canvas:         sess.canvas,
		Graph:          sess.store.Snapshot(),
		SelectedNodeID: sess.store.SelectedNodeID(),
		SelectedEdgeID: sess.store.SelectedEdgeID(),
		CanUndo:        sess.store.CanUndo(),
		CanRedo:        sess.store.CanRedo(),
		HistoryIndex:   sess.store.HistoryIndex(),
		HistoryLen:     sess.store.HistoryLen(),
	}
}
