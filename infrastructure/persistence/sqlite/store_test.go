package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notemesh/application/ports"
	"notemesh/domain/canvas"
	"notemesh/domain/notebook"
	pkgerrors "notemesh/pkg/errors"
)

var (
	_ ports.CanvasRepository   = (*Store)(nil)
	_ ports.NotebookRepository = (*Store)(nil)
	_ ports.UsageTracker       = (*Store)(nil)
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "notemesh.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testCanvas(id, userID string, created time.Time) *canvas.Canvas {
	return &canvas.Canvas{ID: id, UserID: userID, Title: "Canvas " + id, CreatedAt: created, UpdatedAt: created}
}

func TestStore_Canvases(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateCanvas(ctx, testCanvas("c2", "u1", base.Add(time.Hour))))
	require.NoError(t, s.CreateCanvas(ctx, testCanvas("c1", "u1", base)))
	require.NoError(t, s.CreateCanvas(ctx, testCanvas("c3", "u2", base)))

	list, err := s.ListCanvases(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c1", list[0].ID)
	assert.True(t, base.Equal(list[0].CreatedAt))

	def, err := s.GetDefaultCanvas(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "c1", def.ID)

	_, err = s.GetCanvas(ctx, "u1", "c3")
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = s.GetDefaultCanvas(ctx, "nobody")
	assert.True(t, pkgerrors.IsNotFound(err))

	require.NoError(t, s.DeleteCanvas(ctx, "u1", "c1"))
	_, err = s.GetCanvas(ctx, "u1", "c1")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestStore_GraphRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateCanvas(ctx, testCanvas("c1", "u1", created)))

	graph := canvas.Snapshot{
		Nodes: []canvas.Node{
			{
				ID:         "z-node",
				Position:   canvas.Position{X: 10.5, Y: -3},
				Dimensions: &canvas.Dimensions{Width: 150, Height: 40},
				Data: canvas.NodeData{
					ID:           "z-node",
					Text:         "Buy milk",
					Tags:         []string{"home", "errand"},
					Tasks:        []canvas.Task{{Text: "go to shop", Done: true}},
					ClusterID:    "cluster-0",
					ClusterName:  "Home",
					ClusterColor: "#8B5CF6",
					CreatedAt:    created,
					Extensions:   map[string]any{"pinned": true},
				},
			},
			{ID: "a-node", Data: canvas.NodeData{ID: "a-node", Text: "Call bank", CreatedAt: created}},
		},
		Edges: []canvas.Edge{
			{ID: "e-1", Source: "z-node", Target: "a-node", Kind: canvas.EdgeKindCluster},
		},
		Clusters: []canvas.Cluster{{ID: "cluster-0", Name: "Home", Color: "#8B5CF6"}},
	}
	require.NoError(t, s.SaveGraph(ctx, "u1", "c1", graph))

	loaded, err := s.LoadGraph(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"z-node", "a-node"}, loaded.NodeIDs())
	assert.Equal(t, graph.Nodes[0].Dimensions, loaded.Nodes[0].Dimensions)
	assert.Equal(t, graph.Nodes[0].Data.Tasks, loaded.Nodes[0].Data.Tasks)
	assert.Equal(t, graph.Nodes[0].Data.Tags, loaded.Nodes[0].Data.Tags)
	assert.Equal(t, true, loaded.Nodes[0].Data.Extensions["pinned"])
	assert.Equal(t, "Home", loaded.Nodes[0].Data.ClusterName)
	assert.Nil(t, loaded.Nodes[1].Dimensions)
	assert.Empty(t, loaded.Nodes[1].Data.Tags)
	assert.Equal(t, graph.Edges, loaded.Edges)
	assert.Equal(t, graph.Clusters, loaded.Clusters)

	// Saving a smaller graph drops what is gone.
	graph.Nodes = graph.Nodes[1:]
	graph.Edges = nil
	graph.Clusters = nil
	require.NoError(t, s.SaveGraph(ctx, "u1", "c1", graph))
	loaded, err = s.LoadGraph(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a-node"}, loaded.NodeIDs())
	assert.Empty(t, loaded.Edges)
	assert.Empty(t, loaded.Clusters)
}

func TestStore_SaveGraphRequiresOwner(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateCanvas(ctx, testCanvas("c1", "u1", time.Now())))

	err := s.SaveGraph(ctx, "u2", "c1", canvas.Snapshot{})
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = s.LoadGraph(ctx, "u2", "c1")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestStore_NotebooksAndNotes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	nb := notebook.Notebook{ID: "nb1", UserID: "u1", Title: "Ideas", Color: "#fff", Icon: "bulb", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.SaveNotebook(ctx, nb))
	nb.Title = "Better ideas"
	require.NoError(t, s.SaveNotebook(ctx, nb))

	books, err := s.ListNotebooks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Better ideas", books[0].Title)

	require.NoError(t, s.SaveNote(ctx, "u1", notebook.Note{ID: "n1", NotebookID: "nb1", Content: "first", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.SaveNote(ctx, "u1", notebook.Note{ID: "n2", NotebookID: "nb1", Content: "second", CreatedAt: now.Add(time.Minute), UpdatedAt: now}))
	require.NoError(t, s.SaveNote(ctx, "u1", notebook.Note{ID: "n1", NotebookID: "nb1", Content: "first", FormattedContent: "First.", CreatedAt: now, UpdatedAt: now}))

	notes, err := s.ListNotes(ctx, "u1", "nb1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "First.", notes[0].FormattedContent)

	foreign, err := s.ListNotes(ctx, "u2", "nb1")
	require.NoError(t, err)
	assert.Empty(t, foreign)

	require.NoError(t, s.DeleteNote(ctx, "u1", "nb1", "n2"))
	notes, err = s.ListNotes(ctx, "u1", "nb1")
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	require.NoError(t, s.DeleteNotebook(ctx, "u1", "nb1"))
	notes, err = s.ListNotes(ctx, "u1", "nb1")
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestStore_Usage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	day := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)

	for want := 1; want <= 2; want++ {
		count, allowed, err := s.Increment(ctx, "u1", day, 2)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, want, count)
	}

	count, allowed, err := s.Increment(ctx, "u1", day, 2)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 2, count)

	next, err := s.Count(ctx, "u1", day.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, next)

	count, allowed, err = s.Increment(ctx, "u1", day, 0)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 3, count)
}
