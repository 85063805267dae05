package canvas

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "notemesh/pkg/errors"
)

var fixedNow = time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestStore(opts ...StoreOption) *Store {
	base := []StoreOption{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs("id")),
		WithRandom(func() float64 { return 0.5 }),
	}
	return NewStore(append(base, opts...)...)
}

func TestStore_AddNode(t *testing.T) {
	s := newTestStore()

	id := s.AddNode("Buy milk", []string{"home", "home", "errands"})

	n, ok := s.Node(id)
	require.True(t, ok)
	assert.Equal(t, id, n.Data.ID)
	assert.Equal(t, "Buy milk", n.Data.Text)
	assert.Equal(t, []string{"home", "errands"}, n.Data.Tags)
	assert.Empty(t, n.Data.Tasks)
	assert.Equal(t, fixedNow, n.Data.CreatedAt)
	assert.Equal(t, Position{X: 250, Y: 250}, n.Position)
	assert.False(t, n.Data.HasCluster())
	assert.Equal(t, 2, s.HistoryLen())
	assert.True(t, s.CanUndo())
}

func TestStore_AddNodePositionIsBounded(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	s := NewStore(WithRandom(r.Float64))

	for i := 0; i < 200; i++ {
		s.AddNode("n", nil)
	}
	for _, n := range s.Nodes() {
		assert.GreaterOrEqual(t, n.Position.X, 100.0)
		assert.Less(t, n.Position.X, 400.0)
		assert.GreaterOrEqual(t, n.Position.Y, 100.0)
		assert.Less(t, n.Position.Y, 400.0)
	}
}

func TestStore_AddEdge(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		target   string
		kind     EdgeKind
		wantKind EdgeKind
		wantErr  bool
	}{
		{name: "defaults to untyped", source: "id-1", target: "id-2", wantKind: EdgeKindUntyped},
		{name: "keeps user label kind", source: "id-1", target: "id-2", kind: "depends-on", wantKind: "depends-on"},
		{name: "missing source", source: "nope", target: "id-2", wantErr: true},
		{name: "missing target", source: "id-1", target: "nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			s.AddNode("a", nil)
			s.AddNode("b", nil)
			before := s.HistoryLen()

			id, err := s.AddEdge(tt.source, tt.target, tt.kind, "")

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrNodeNotFound))
				assert.True(t, pkgerrors.IsNotFound(err))
				assert.Empty(t, s.Edges())
				assert.Equal(t, before, s.HistoryLen())
				return
			}
			require.NoError(t, err)
			edges := s.Edges()
			require.Len(t, edges, 1)
			assert.Equal(t, id, edges[0].ID)
			assert.Equal(t, tt.wantKind, edges[0].Kind)
			assert.Equal(t, before+1, s.HistoryLen())
		})
	}
}

func TestStore_UpdateNode(t *testing.T) {
	s := newTestStore()
	id := s.AddNode("draft", []string{"a"})
	text := "final"

	err := s.UpdateNode(id, NodePatch{
		Text:       &text,
		Tasks:      []Task{{Text: "review", Done: true}},
		Extensions: map[string]any{"priority": 2},
	})
	require.NoError(t, err)

	n, _ := s.Node(id)
	assert.Equal(t, "final", n.Data.Text)
	assert.Equal(t, []string{"a"}, n.Data.Tags, "tags untouched by a nil patch field")
	assert.Equal(t, []Task{{Text: "review", Done: true}}, n.Data.Tasks)
	assert.Equal(t, 2, n.Data.Extensions["priority"])
	assert.Equal(t, 3, s.HistoryLen())

	require.NoError(t, s.UpdateNode(id, NodePatch{Extensions: map[string]any{"priority": nil}}))
	n, _ = s.Node(id)
	assert.Nil(t, n.Data.Extensions)
}

func TestStore_UpdateUnknownNodeRecordsNothing(t *testing.T) {
	s := newTestStore()
	s.AddNode("a", nil)
	before := s.Snapshot()
	text := "x"

	err := s.UpdateNode("missing", NodePatch{Text: &text})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNodeNotFound))
	assert.Equal(t, 2, s.HistoryLen())
	assert.Equal(t, before, s.Snapshot())
}

func TestStore_DeleteNodeCascadesEdges(t *testing.T) {
	s := newTestStore()
	a := s.AddNode("a", nil)
	b := s.AddNode("b", nil)
	c := s.AddNode("c", nil)
	_, err := s.AddEdge(a, b, "", "")
	require.NoError(t, err)
	keep, err := s.AddEdge(b, c, "", "")
	require.NoError(t, err)
	_, err = s.AddEdge(c, a, "", "")
	require.NoError(t, err)
	s.SetSelectedNodeID(a)

	require.NoError(t, s.DeleteNode(a))

	edges := s.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, keep, edges[0].ID)
	assert.Empty(t, s.SelectedNodeID())

	err = s.DeleteNode(a)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestStore_DeleteEdge(t *testing.T) {
	s := newTestStore()
	a := s.AddNode("a", nil)
	b := s.AddNode("b", nil)
	e, _ := s.AddEdge(a, b, "", "")
	before := s.HistoryLen()

	require.NoError(t, s.DeleteEdge(e))
	assert.Empty(t, s.Edges())
	assert.Equal(t, before+1, s.HistoryLen())

	err := s.DeleteEdge(e)
	assert.True(t, errors.Is(err, ErrEdgeNotFound))
	assert.Equal(t, before+1, s.HistoryLen())
}

func TestStore_NoDanglingEdges(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	s := NewStore()
	var ids []string

	for step := 0; step < 500; step++ {
		switch op := r.IntN(4); {
		case op == 0 || len(ids) < 2:
			ids = append(ids, s.AddNode("n", nil))
		case op == 1:
			i := r.IntN(len(ids))
			_ = s.DeleteNode(ids[i])
			ids = append(ids[:i], ids[i+1:]...)
		case op == 2:
			_, _ = s.AddEdge(ids[r.IntN(len(ids))], ids[r.IntN(len(ids))], "", "")
		default:
			if edges := s.Edges(); len(edges) > 0 {
				_ = s.DeleteEdge(edges[r.IntN(len(edges))].ID)
			}
		}

		live := make(map[string]bool)
		for _, n := range s.Nodes() {
			live[n.ID] = true
		}
		for _, e := range s.Edges() {
			require.True(t, live[e.Source], "dangling source at step %d", step)
			require.True(t, live[e.Target], "dangling target at step %d", step)
		}
	}
}

func TestStore_UndoRestoresPriorState(t *testing.T) {
	type op func(t *testing.T, s *Store)

	tests := []struct {
		name string
		op   op
	}{
		{"add node", func(t *testing.T, s *Store) { s.AddNode("c", []string{"t"}) }},
		{"add edge", func(t *testing.T, s *Store) {
			_, err := s.AddEdge("id-1", "id-2", "", "label")
			require.NoError(t, err)
		}},
		{"update node", func(t *testing.T, s *Store) {
			text := "changed"
			require.NoError(t, s.UpdateNode("id-1", NodePatch{Text: &text, Tags: []string{}}))
		}},
		{"delete node", func(t *testing.T, s *Store) { require.NoError(t, s.DeleteNode("id-2")) }},
		{"delete edge", func(t *testing.T, s *Store) { require.NoError(t, s.DeleteEdge("id-3")) }},
		{"clear canvas", func(t *testing.T, s *Store) { s.ClearCanvas() }},
		{"apply clustering", func(t *testing.T, s *Store) {
			_, err := s.ApplyClustering(Proposal{Clusters: []ProposedCluster{{NodeIDs: []string{"id-1", "id-2"}}}})
			require.NoError(t, err)
		}},
		{"move node", func(t *testing.T, s *Store) {
			s.ApplyNodeChanges([]NodeChange{{Type: ChangePosition, ID: "id-1", Position: &Position{X: 1, Y: 2}}})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			s.AddNode("a", []string{"x"})
			s.AddNode("b", nil)
			_, err := s.AddEdge("id-1", "id-2", "", "")
			require.NoError(t, err)
			before := s.Snapshot()
			beforeLen := s.HistoryLen()

			tt.op(t, s)
			require.Equal(t, beforeLen+1, s.HistoryLen(), "exactly one save per action")
			after := s.Snapshot()

			require.True(t, s.Undo())
			assert.Equal(t, before, s.Snapshot())

			require.True(t, s.Redo())
			assert.Equal(t, after, s.Snapshot())

			require.True(t, s.Undo())
			require.True(t, s.Redo())
			assert.Equal(t, after, s.Snapshot(), "undo then redo is the identity")
		})
	}
}

func TestStore_NewActionAfterUndoDiscardsRedo(t *testing.T) {
	s := newTestStore()
	s.AddNode("a", nil)
	s.AddNode("b", nil)
	s.Undo()
	require.True(t, s.CanRedo())

	s.AddNode("c", nil)

	assert.False(t, s.CanRedo())
	assert.False(t, s.Redo())
}

func TestStore_HistoryNeverExceedsMax(t *testing.T) {
	s := newTestStore()
	for i := 0; i < 120; i++ {
		s.AddNode("n", nil)
		require.LessOrEqual(t, s.HistoryLen(), MaxHistory)
	}
	assert.Equal(t, MaxHistory-1, s.HistoryIndex())
}

func TestStore_SettersDoNotRecordHistory(t *testing.T) {
	s := newTestStore()

	s.SetNodes([]Node{{ID: "a", Data: NodeData{ID: "a"}}})
	s.SetEdges([]Edge{{ID: "e", Source: "a", Target: "a"}})
	s.SetClusters([]Cluster{{ID: "cluster-0", Name: "X", Color: "#fff"}})
	s.SetSelectedNodeID("a")
	s.SetCanvasID("canvas-1")
	s.SetNotebookID("nb-1")

	assert.Equal(t, 1, s.HistoryLen())
	assert.Len(t, s.Nodes(), 1)
	assert.Equal(t, "a", s.SelectedNodeID())
	assert.Equal(t, "canvas-1", s.CanvasID())
	assert.Equal(t, "nb-1", s.NotebookID())
}

func TestStore_ReadersReturnCopies(t *testing.T) {
	s := newTestStore()
	id := s.AddNode("a", []string{"x"})

	nodes := s.Nodes()
	nodes[0].Data.Tags[0] = "mutated"
	nodes[0].Data.Text = "mutated"

	n, _ := s.Node(id)
	assert.Equal(t, "a", n.Data.Text)
	assert.Equal(t, []string{"x"}, n.Data.Tags)
}

func TestStore_ClearCanvas(t *testing.T) {
	s := newTestStore()
	a := s.AddNode("a", nil)
	b := s.AddNode("b", nil)
	_, _ = s.AddEdge(a, b, "", "")
	s.SetSelectedNodeID(a)

	s.ClearCanvas()

	assert.Empty(t, s.Nodes())
	assert.Empty(t, s.Edges())
	assert.Empty(t, s.Clusters())
	assert.Empty(t, s.SelectedNodeID())
	assert.True(t, s.CanUndo())
}

func TestStore_LoadResetsHistory(t *testing.T) {
	s := newTestStore()
	s.AddNode("scratch", nil)

	s.Load(Snapshot{
		Nodes: []Node{{ID: "p1", Data: NodeData{ID: "p1", Text: "persisted"}}},
	})

	assert.Equal(t, 1, s.HistoryLen())
	assert.False(t, s.CanUndo())
	require.Len(t, s.Nodes(), 1)
	assert.Equal(t, "persisted", s.Nodes()[0].Data.Text)
	assert.NotNil(t, s.Edges())
}

func TestStore_ResetReturnsToInitialState(t *testing.T) {
	s := newTestStore()
	s.SetCanvasID("c")
	s.AddNode("a", nil)

	s.Reset()

	assert.Empty(t, s.Nodes())
	assert.Empty(t, s.CanvasID())
	assert.Equal(t, 1, s.HistoryLen())
	assert.Equal(t, 0, s.HistoryIndex())
}

func TestStore_ListenerSeesEveryMutation(t *testing.T) {
	var events []ChangeEvent
	s := newTestStore(WithListener(func(e ChangeEvent) { events = append(events, e) }))
	s.SetCanvasID("canvas-1")

	a := s.AddNode("a", nil)
	b := s.AddNode("b", nil)
	_, _ = s.AddEdge(a, b, "", "")
	s.Undo()
	s.ApplyNodeChanges([]NodeChange{{Type: ChangeSelect, ID: a, Selected: true}})

	types := make([]EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
		assert.Equal(t, "canvas-1", e.CanvasID)
	}
	assert.Equal(t, []EventType{
		EventNodeAdded, EventNodeAdded, EventEdgeAdded, EventHistoryUndo, EventNodesChanged,
	}, types)
	assert.True(t, events[2].Recorded)
	assert.Equal(t, 3, events[2].HistoryIndex)
	assert.False(t, events[4].Recorded)
}

func TestStore_Rollback(t *testing.T) {
	s := newTestStore()
	a := s.AddNode("a", nil)
	b := s.AddNode("b", nil)
	s.Undo()
	s.SetSelectedNodeID(a)

	cp := s.Checkpoint()
	before := s.Snapshot()

	var events []ChangeEvent
	s.SetListener(func(e ChangeEvent) { events = append(events, e) })

	require.NoError(t, s.DeleteNode(a))
	s.AddNode("c", nil)
	s.ClearCanvas()
	require.Len(t, events, 3)
	events = nil

	s.Rollback(cp)

	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, a, s.SelectedNodeID())
	assert.Equal(t, 3, s.HistoryLen(), "entries added after the checkpoint are dropped")
	assert.Equal(t, 1, s.HistoryIndex())
	assert.True(t, s.CanRedo(), "the redo entry discarded by the later save is back")
	assert.Empty(t, events)

	require.True(t, s.Redo())
	_, ok := s.Node(b)
	assert.True(t, ok)
}
