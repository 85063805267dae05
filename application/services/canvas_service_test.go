package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notemesh/application/ports"
	"notemesh/domain/canvas"
	"notemesh/domain/events"
	"notemesh/infrastructure/persistence/memory"
	pkgerrors "notemesh/pkg/errors"
)

type fakeClusterer struct {
	calls atomic.Int32
	fn    func(call int32, req ports.ClusterRequest) (*ports.ClusterResponse, error)
}

func (f *fakeClusterer) ProposeClusters(ctx context.Context, req ports.ClusterRequest) (*ports.ClusterResponse, error) {
	return f.fn(f.calls.Add(1), req)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	for _, e := range batch {
		_ = p.Publish(ctx, e)
	}
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.GetEventType()
	}
	return out
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []canvas.ChangeEvent
}

func (n *recordingNotifier) NotifyCanvasChange(ctx context.Context, userID string, change canvas.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
	return nil
}

type canvasFixture struct {
	svc       *CanvasService
	repo      *memory.CanvasRepository
	clusterer *fakeClusterer
	publisher *recordingPublisher
	notifier  *recordingNotifier
}

func newCanvasFixture(t *testing.T) *canvasFixture {
	t.Helper()
	f := &canvasFixture{
		repo:      memory.NewCanvasRepository(),
		clusterer: &fakeClusterer{},
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
	}
	f.svc = NewCanvasService(f.repo, f.clusterer, f.publisher, f.notifier, zap.NewNop())
	return f
}

func groupAll(call int32, req ports.ClusterRequest) (*ports.ClusterResponse, error) {
	ids := make([]string, len(req.Nodes))
	for i, n := range req.Nodes {
		ids[i] = n.ID
	}
	return &ports.ClusterResponse{
		Clusters: []canvas.ProposedCluster{{Name: "All", NodeIDs: ids}},
		Usage:    &ports.ClusterUsage{Count: int(call), Limit: 10},
	}, nil
}

func TestCanvasService_OpenCreatesDefaultCanvas(t *testing.T) {
	f := newCanvasFixture(t)
	ctx := context.Background()

	view, err := f.svc.Open(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, canvas.DefaultTitle, view.Canvas.Title)
	assert.Empty(t, view.Graph.Nodes)
	assert.Equal(t, 1, view.HistoryLen)

	again, err := f.svc.Open(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, view.Canvas.ID, again.Canvas.ID, "the default canvas is created once")
}

func TestCanvasService_OpenRejectsForeignCanvas(t *testing.T) {
	f := newCanvasFixture(t)
	ctx := context.Background()
	view, err := f.svc.Open(ctx, "owner", "")
	require.NoError(t, err)

	_, err = f.svc.Open(ctx, "intruder", view.Canvas.ID)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCanvasService_MutationsPersistAndFanOut(t *testing.T) {
	f := newCanvasFixture(t)
	ctx := context.Background()
	view, err := f.svc.Open(ctx, "u", "")
	require.NoError(t, err)
	id := view.Canvas.ID

	a, err := f.svc.SubmitChat(ctx, "u", id, "Buy milk #home")
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", a.Data.Text)
	assert.Equal(t, []string{"home"}, a.Data.Tags)

	b, err := f.svc.AddNode(ctx, "u", id, "Call bank", nil)
	require.NoError(t, err)
	_, err = f.svc.AddEdge(ctx, "u", id, a.ID, b.ID, "", "")
	require.NoError(t, err)

	graph, err := f.repo.LoadGraph(ctx, "u", id)
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, 2)
	assert.Len(t, graph.Edges, 1)
	assert.Equal(t, 3, f.repo.SaveCount())

	assert.Equal(t, []string{"canvas.node.added", "canvas.node.added", "canvas.edge.added"}, f.publisher.types())
	assert.Len(t, f.notifier.changes, 3)
}

func TestCanvasService_SelectionIsNotPersisted(t *testing.T) {
	f := newCanvasFixture(t)
	ctx := context.Background()
	view, _ := f.svc.Open(ctx, "u", "")
	n, err := f.svc.AddNode(ctx, "u", view.Canvas.ID, "a", nil)
	require.NoError(t, err)
	saves := f.repo.SaveCount()

	got, err := f.svc.SelectNode(ctx, "u", view.Canvas.ID, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.SelectedNodeID)
	assert.Equal(t, saves, f.repo.SaveCount())

	_, err = f.svc.SelectNode(ctx, "u", view.Canvas.ID, "ghost")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCanvasService_SubmitChatWithOnlyTags(t *testing.T) {
	f := newCanvasFixture(t)
	ctx := context.Background()
	view, _ := f.svc.Open(ctx, "u", "")

	_, err := f.svc.SubmitChat(ctx, "u", view.Canvas.ID, "#just #tags")

	assert.True(t, pkgerrors.IsValidation(err))
	reopened, _ := f.svc.Open(ctx, "u", view.Canvas.ID)
	assert.Empty(t, reopened.Graph.Nodes)
}

func TestCanvasService_UndoRedo(t *testing.T) {
	f := newCanvasFixture(t)
	ctx := context.Background()
	view, _ := f.svc.Open(ctx, "u", "")
	id := view.Canvas.ID
	_, _ = f.svc.AddNode(ctx, "u", id, "a", nil)

	undone, err := f.svc.Undo(ctx, "u", id)
	require.NoError(t, err)
	assert.Empty(t, undone.Graph.Nodes)
	assert.True(t, undone.CanRedo)

	redone, err := f.svc.Redo(ctx, "u", id)
	require.NoError(t, err)
	assert.Len(t, redone.Graph.Nodes, 1)

	graph, _ := f.repo.LoadGraph(ctx, "u", id)
	assert.Len(t, graph.Nodes, 1, "undo and redo are persisted")
}

func TestCanvasService_AutoCluster(t *testing.T) {
	tests := []struct {
		name      string
		nodes     int
		fn        func(int32, ports.ClusterRequest) (*ports.ClusterResponse, error)
		checkErr  func(t *testing.T, err error)
		wantEdges int
	}{
		{
			name:  "applies proposal",
			nodes: 3,
			fn:    groupAll,
			checkErr: func(t *testing.T, err error) {
				require.NoError(t, err)
			},
			wantEdges: 2,
		},
		{
			name:  "needs two nodes",
			nodes: 1,
			fn:    groupAll,
			checkErr: func(t *testing.T, err error) {
				assert.True(t, pkgerrors.IsValidation(err))
				assert.Equal(t, pkgerrors.CodeNotEnoughNodes, pkgerrors.GetAppError(err).Code)
			},
		},
		{
			name:  "provider rate limit leaves canvas untouched",
			nodes: 2,
			fn: func(int32, ports.ClusterRequest) (*ports.ClusterResponse, error) {
				return nil, pkgerrors.NewRateLimitError("")
			},
			checkErr: func(t *testing.T, err error) {
				assert.True(t, pkgerrors.IsRateLimit(err))
			},
		},
		{
			name:  "proposal without known nodes",
			nodes: 2,
			fn: func(int32, ports.ClusterRequest) (*ports.ClusterResponse, error) {
				return &ports.ClusterResponse{Clusters: []canvas.ProposedCluster{{NodeIDs: []string{"ghost"}}}}, nil
			},
			checkErr: func(t *testing.T, err error) {
				assert.True(t, pkgerrors.IsReconciliation(err))
				assert.True(t, errors.Is(err, canvas.ErrNoValidClusters))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCanvasFixture(t)
			f.clusterer.fn = tt.fn
			ctx := context.Background()
			view, _ := f.svc.Open(ctx, "u", "")
			id := view.Canvas.ID
			for i := 0; i < tt.nodes; i++ {
				_, err := f.svc.AddNode(ctx, "u", id, "n", nil)
				require.NoError(t, err)
			}
			before, _ := f.svc.Open(ctx, "u", id)

			outcome, err := f.svc.AutoCluster(ctx, "u", id)
			tt.checkErr(t, err)

			after, _ := f.svc.Open(ctx, "u", id)
			if err != nil {
				assert.Nil(t, outcome)
				assert.Equal(t, before.Graph, after.Graph)
				assert.Equal(t, before.HistoryLen, after.HistoryLen)
				return
			}
			assert.Len(t, outcome.Clusters, 1)
			assert.Equal(t, tt.wantEdges, outcome.GeneratedEdges)
			require.NotNil(t, outcome.Usage)
			assert.Len(t, after.Graph.Edges, tt.wantEdges)
			assert.Equal(t, before.HistoryLen+1, after.HistoryLen)
			assert.Contains(t, f.publisher.types(), "canvas.clusters_applied")
		})
	}
}

func TestCanvasService_AutoClusterDiscardsStaleResponse(t *testing.T) {
	f := newCanvasFixture(t)
	ctx := context.Background()
	view, _ := f.svc.Open(ctx, "u", "")
	id := view.Canvas.ID
	a, _ := f.svc.AddNode(ctx, "u", id, "a", nil)
	b, _ := f.svc.AddNode(ctx, "u", id, "b", nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.clusterer.fn = func(call int32, req ports.ClusterRequest) (*ports.ClusterResponse, error) {
		if call == 1 {
			close(entered)
			<-release
			return &ports.ClusterResponse{Clusters: []canvas.ProposedCluster{{Name: "Old", NodeIDs: []string{a.ID, b.ID}}}}, nil
		}
		return &ports.ClusterResponse{Clusters: []canvas.ProposedCluster{{Name: "New", NodeIDs: []string{a.ID, b.ID}}}}, nil
	}

	var slowErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, slowErr = f.svc.AutoCluster(ctx, "u", id)
	}()

	<-entered
	fresh, err := f.svc.AutoCluster(ctx, "u", id)
	require.NoError(t, err)
	assert.Equal(t, "New", fresh.Clusters[0].Name)

	close(release)
	<-done

	require.Error(t, slowErr)
	assert.True(t, errors.Is(slowErr, ErrStaleResponse))
	assert.True(t, pkgerrors.IsConflict(slowErr))

	current, _ := f.svc.Open(ctx, "u", id)
	require.Len(t, current.Graph.Clusters, 1)
	assert.Equal(t, "New", current.Graph.Clusters[0].Name)
}

func TestCanvasService_ConcurrentMutationsAreSerialized(t *testing.T) {
	f := newCanvasFixture(t)
	ctx := context.Background()
	view, _ := f.svc.Open(ctx, "u", "")
	id := view.Canvas.ID

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AddNode(ctx, "u", id, "n", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	current, _ := f.svc.Open(ctx, "u", id)
	assert.Len(t, current.Graph.Nodes, 20)
	assert.Equal(t, 21, current.HistoryLen)
}

// flakyCanvasRepository fails SaveGraph while down is set
type flakyCanvasRepository struct {
	*memory.CanvasRepository
	down atomic.Bool
}

func (r *flakyCanvasRepository) SaveGraph(ctx context.Context, userID, canvasID string, graph canvas.Snapshot) error {
	if r.down.Load() {
		return errors.New("backend down")
	}
	return r.CanvasRepository.SaveGraph(ctx, userID, canvasID, graph)
}

func TestCanvasService_FailedSaveLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		call func(svc *CanvasService, canvasID string, nodes []*canvas.Node) error
	}{
		{
			name: "auto cluster",
			call: func(svc *CanvasService, canvasID string, _ []*canvas.Node) error {
				_, err := svc.AutoCluster(ctx, "u", canvasID)
				return err
			},
		},
		{
			name: "add node",
			call: func(svc *CanvasService, canvasID string, _ []*canvas.Node) error {
				_, err := svc.AddNode(ctx, "u", canvasID, "lost", nil)
				return err
			},
		},
		{
			name: "delete node",
			call: func(svc *CanvasService, canvasID string, nodes []*canvas.Node) error {
				_, err := svc.DeleteNode(ctx, "u", canvasID, nodes[0].ID)
				return err
			},
		},
		{
			name: "clear",
			call: func(svc *CanvasService, canvasID string, _ []*canvas.Node) error {
				_, err := svc.Clear(ctx, "u", canvasID)
				return err
			},
		},
		{
			name: "undo",
			call: func(svc *CanvasService, canvasID string, _ []*canvas.Node) error {
				_, err := svc.Undo(ctx, "u", canvasID)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &flakyCanvasRepository{CanvasRepository: memory.NewCanvasRepository()}
			publisher := &recordingPublisher{}
			svc := NewCanvasService(repo, &fakeClusterer{fn: groupAll}, publisher, nil, zap.NewNop())

			view, err := svc.Open(ctx, "u", "")
			require.NoError(t, err)
			id := view.Canvas.ID
			a, err := svc.AddNode(ctx, "u", id, "a", []string{"x"})
			require.NoError(t, err)
			b, err := svc.AddNode(ctx, "u", id, "b", []string{"x"})
			require.NoError(t, err)
			_, err = svc.SelectNode(ctx, "u", id, b.ID)
			require.NoError(t, err)

			before, err := svc.Open(ctx, "u", id)
			require.NoError(t, err)
			published := len(publisher.types())

			repo.down.Store(true)
			err = tt.call(svc, id, []*canvas.Node{a, b})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "backend down")

			after, err := svc.Open(ctx, "u", id)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Len(t, publisher.types(), published, "nothing is published for a failed call")

			repo.down.Store(false)
			redo, err := svc.Redo(ctx, "u", id)
			require.NoError(t, err)
			assert.False(t, redo.CanRedo)
			assert.Equal(t, before.Graph, redo.Graph, "the failed action left no redo entry")
		})
	}
}

func TestCanvasService_CosmeticChangesAreNotPersisted(t *testing.T) {
	f := newCanvasFixture(t)
	ctx := context.Background()
	view, err := f.svc.Open(ctx, "u", "")
	require.NoError(t, err)
	id := view.Canvas.ID
	a, err := f.svc.AddNode(ctx, "u", id, "a", nil)
	require.NoError(t, err)
	b, err := f.svc.AddNode(ctx, "u", id, "b", nil)
	require.NoError(t, err)
	e, err := f.svc.AddEdge(ctx, "u", id, a.ID, b.ID, "", "")
	require.NoError(t, err)
	saves := f.repo.SaveCount()

	got, err := f.svc.ApplyNodeChanges(ctx, "u", id, []canvas.NodeChange{
		{Type: canvas.ChangeDimensions, ID: a.ID, Dimensions: &canvas.Dimensions{Width: 120, Height: 40}},
		{Type: canvas.ChangeSelect, ID: a.ID, Selected: true},
	})
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.SelectedNodeID)

	got, err = f.svc.ApplyEdgeChanges(ctx, "u", id, []canvas.EdgeChange{
		{Type: canvas.ChangeSelect, ID: e.ID, Selected: true},
	})
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.SelectedEdgeID)
	assert.Equal(t, saves, f.repo.SaveCount())

	_, err = f.svc.ApplyNodeChanges(ctx, "u", id, []canvas.NodeChange{
		{Type: canvas.ChangePosition, ID: a.ID, Position: &canvas.Position{X: 10, Y: 20}},
	})
	require.NoError(t, err)
	assert.Equal(t, saves+1, f.repo.SaveCount())
}
