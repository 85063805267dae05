package notebook

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	return NewStore(func() time.Time { return testNow })
}

func strPtr(s string) *string { return &s }

func TestStore_NotebookCap(t *testing.T) {
	s := newTestStore()

	for i := 0; i < MaxNotebooks; i++ {
		require.True(t, s.CanAddNotebook())
		require.True(t, s.AddNotebook(Notebook{ID: fmt.Sprintf("nb-%d", i)}))
	}

	assert.False(t, s.CanAddNotebook())
	assert.False(t, s.AddNotebook(Notebook{ID: "nb-8"}), "the 8th notebook is rejected")
	assert.Len(t, s.Notebooks(), MaxNotebooks)

	require.True(t, s.DeleteNotebook("nb-0"))
	assert.True(t, s.CanAddNotebook())
}

func TestStore_UpdateNotebook(t *testing.T) {
	s := newTestStore()
	s.AddNotebook(Notebook{ID: "nb", Title: "Work", Color: "#fff"})
	s.SetCurrentNotebook("nb")

	assert.True(t, s.UpdateNotebook("nb", NotebookPatch{Title: strPtr("Projects")}))
	assert.False(t, s.UpdateNotebook("missing", NotebookPatch{Title: strPtr("x")}))

	current, ok := s.CurrentNotebook()
	require.True(t, ok)
	assert.Equal(t, "Projects", current.Title)
	assert.Equal(t, "#fff", current.Color)
	assert.Equal(t, testNow, current.UpdatedAt)
}

func TestStore_DeleteNotebookCascades(t *testing.T) {
	tests := []struct {
		name            string
		openNotebook    string
		openNote        *Note
		wantNotebookSel bool
		wantNoteSel     bool
	}{
		{
			name:         "selections inside the deleted notebook are cleared",
			openNotebook: "a",
			openNote:     &Note{ID: "a1", NotebookID: "a"},
		},
		{
			name:            "selections elsewhere survive",
			openNotebook:    "b",
			openNote:        &Note{ID: "b1", NotebookID: "b"},
			wantNotebookSel: true,
			wantNoteSel:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			s.AddNotebook(Notebook{ID: "a"})
			s.AddNotebook(Notebook{ID: "b"})
			s.AddNoteToNotebook("a", Note{ID: "a1"})
			s.AddNoteToNotebook("b", Note{ID: "b1"})
			s.SetCurrentNotebook(tt.openNotebook)
			s.SetCurrentNote(tt.openNote)

			require.True(t, s.DeleteNotebook("a"))

			assert.Empty(t, s.NotesForNotebook("a"))
			assert.Len(t, s.NotesForNotebook("b"), 1)
			_, ok := s.CurrentNotebook()
			assert.Equal(t, tt.wantNotebookSel, ok)
			_, ok = s.CurrentNote()
			assert.Equal(t, tt.wantNoteSel, ok)
		})
	}
}

func TestStore_UpdateNoteKeepsMappingConsistent(t *testing.T) {
	s := newTestStore()
	s.AddNotebook(Notebook{ID: "nb"})
	s.SetNotesForNotebook("nb", []Note{
		{ID: "n1", NotebookID: "nb", Content: "first"},
		{ID: "n2", NotebookID: "nb", Content: "second"},
	})

	_, ok := s.UpdateNote(NotePatch{Content: strPtr("nothing open")})
	assert.False(t, ok, "no current note is a no-op")

	s.SetCurrentNote(&Note{ID: "n2", NotebookID: "nb", Content: "second"})
	updated, ok := s.UpdateNote(NotePatch{Content: strPtr("edited")})
	require.True(t, ok)

	assert.Equal(t, "edited", updated.Content)
	current, _ := s.CurrentNote()
	assert.Equal(t, "edited", current.Content)
	notes := s.NotesForNotebook("nb")
	assert.Equal(t, "first", notes[0].Content)
	assert.Equal(t, "edited", notes[1].Content)
	assert.Equal(t, testNow, notes[1].UpdatedAt)
}

func TestStore_DeleteNote(t *testing.T) {
	s := newTestStore()
	s.AddNoteToNotebook("nb", Note{ID: "n1"})
	s.AddNoteToNotebook("nb", Note{ID: "n2"})
	s.SetCurrentNote(&Note{ID: "n1", NotebookID: "nb"})

	assert.True(t, s.DeleteNote("n1"))
	assert.False(t, s.DeleteNote("n1"))

	_, open := s.CurrentNote()
	assert.False(t, open)
	notes := s.NotesForNotebook("nb")
	require.Len(t, notes, 1)
	assert.Equal(t, "n2", notes[0].ID)
}

func TestStore_NotesForUnknownNotebook(t *testing.T) {
	s := newTestStore()
	notes := s.NotesForNotebook("nope")
	assert.NotNil(t, notes)
	assert.Empty(t, notes)
}
