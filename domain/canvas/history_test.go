package canvas

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotWithNodes(n int) Snapshot {
	s := Snapshot{}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("n%d", i)
		s.Nodes = append(s.Nodes, Node{ID: id, Data: NodeData{ID: id, Text: id}})
	}
	return s
}

func TestHistory_StartsWithOneEmptyEntry(t *testing.T) {
	h := NewHistory()

	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 0, h.Index())
	assert.False(t, h.CanUndo())
	assert.False(t, h.CanRedo())
	assert.Empty(t, h.Current().Nodes)
}

func TestHistory_UndoRedoBoundaries(t *testing.T) {
	h := NewHistory()
	h.Save(snapshotWithNodes(1))
	h.Save(snapshotWithNodes(2))

	snap, ok := h.Undo()
	require.True(t, ok)
	assert.Len(t, snap.Nodes, 1)

	snap, ok = h.Undo()
	require.True(t, ok)
	assert.Empty(t, snap.Nodes)

	_, ok = h.Undo()
	assert.False(t, ok, "undo at the oldest entry is a no-op")
	assert.Equal(t, 0, h.Index())

	h.Redo()
	snap, ok = h.Redo()
	require.True(t, ok)
	assert.Len(t, snap.Nodes, 2)

	_, ok = h.Redo()
	assert.False(t, ok, "redo at the newest entry is a no-op")
	assert.Equal(t, 2, h.Index())
}

func TestHistory_SaveAfterUndoDiscardsRedo(t *testing.T) {
	h := NewHistory()
	h.Save(snapshotWithNodes(1))
	h.Save(snapshotWithNodes(2))
	h.Save(snapshotWithNodes(3))

	h.Undo()
	h.Undo()
	require.True(t, h.CanRedo())

	h.Save(snapshotWithNodes(5))

	assert.False(t, h.CanRedo())
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 2, h.Index())
	assert.Len(t, h.Current().Nodes, 5)
}

func TestHistory_BoundedToMaxEntries(t *testing.T) {
	h := NewHistory()
	for i := 1; i <= MaxHistory*2+3; i++ {
		h.Save(snapshotWithNodes(i % 7))
		require.LessOrEqual(t, h.Len(), MaxHistory)
		require.Equal(t, h.Len()-1, h.Index())
	}

	assert.Equal(t, MaxHistory, h.Len())
	assert.Equal(t, MaxHistory-1, h.Index())

	undos := 0
	for h.CanUndo() {
		h.Undo()
		undos++
	}
	assert.Equal(t, MaxHistory-1, undos)
}

func TestHistory_EntriesDoNotAlias(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	live := Snapshot{
		Nodes: []Node{{
			ID: "a",
			Data: NodeData{
				ID:         "a",
				Tags:       []string{"x"},
				Tasks:      []Task{{Text: "t"}},
				CreatedAt:  created,
				Extensions: map[string]any{"meta": map[string]any{"k": "v"}},
			},
		}},
	}

	h := NewHistory()
	h.Save(live)

	live.Nodes[0].Data.Tags[0] = "mutated"
	live.Nodes[0].Data.Tasks[0].Done = true
	live.Nodes[0].Data.Extensions["meta"].(map[string]any)["k"] = "changed"

	saved := h.Current()
	assert.Equal(t, []string{"x"}, saved.Nodes[0].Data.Tags)
	assert.False(t, saved.Nodes[0].Data.Tasks[0].Done)
	assert.Equal(t, "v", saved.Nodes[0].Data.Extensions["meta"].(map[string]any)["k"])
	assert.True(t, saved.Nodes[0].Data.CreatedAt.Equal(created))

	restored := h.Current()
	restored.Nodes[0].Data.Tags[0] = "again"
	assert.Equal(t, "x", h.Current().Nodes[0].Data.Tags[0])
}
