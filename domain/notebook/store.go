package notebook

import (
	"slices"
	"time"
)

// Store keeps a user's notebooks, the notes of each notebook and the current
// selections. It is not safe for concurrent use.
type Store struct {
	notebooks       []Notebook
	notesByNotebook map[string][]Note
	currentNotebook string
	currentNote     *Note
	now             func() time.Time
}

// NewStore returns an empty store. A nil clock means time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{now: now}
	s.Reset()
	return s
}

// Reset empties the store.
func (s *Store) Reset() {
	s.notebooks = []Notebook{}
	s.notesByNotebook = make(map[string][]Note)
	s.currentNotebook = ""
	s.currentNote = nil
}

// CanAddNotebook reports whether another notebook fits under MaxNotebooks.
func (s *Store) CanAddNotebook() bool {
	return len(s.notebooks) < MaxNotebooks
}

// AddNotebook appends nb unless the cap is reached.
func (s *Store) AddNotebook(nb Notebook) bool {
	if !s.CanAddNotebook() {
		return false
	}
	s.notebooks = append(s.notebooks, nb.clone())
	return true
}

// UpdateNotebook applies patch to the notebook with the given id.
func (s *Store) UpdateNotebook(id string, patch NotebookPatch) bool {
	idx := s.notebookIndex(id)
	if idx < 0 {
		return false
	}
	patch.apply(&s.notebooks[idx])
	s.notebooks[idx].UpdatedAt = s.now()
	return true
}

// DeleteNotebook removes a notebook and its notes and clears any selection
// pointing into it.
func (s *Store) DeleteNotebook(id string) bool {
	idx := s.notebookIndex(id)
	if idx < 0 {
		return false
	}
	s.notebooks = slices.Delete(s.notebooks, idx, idx+1)
	delete(s.notesByNotebook, id)
	if s.currentNotebook == id {
		s.currentNotebook = ""
	}
	if s.currentNote != nil && s.currentNote.NotebookID == id {
		s.currentNote = nil
	}
	return true
}

// SetNotebooks replaces the notebook list.
func (s *Store) SetNotebooks(notebooks []Notebook) {
	s.notebooks = make([]Notebook, len(notebooks))
	for i, nb := range notebooks {
		s.notebooks[i] = nb.clone()
	}
}

// SetCurrentNotebook selects a notebook; an empty id clears the selection.
func (s *Store) SetCurrentNotebook(id string) {
	s.currentNotebook = id
}

// SetNotesForNotebook replaces the notes of one notebook.
func (s *Store) SetNotesForNotebook(notebookID string, notes []Note) {
	s.notesByNotebook[notebookID] = slices.Clone(notes)
}

// AddNoteToNotebook appends a note to a notebook.
func (s *Store) AddNoteToNotebook(notebookID string, note Note) {
	note.NotebookID = notebookID
	s.notesByNotebook[notebookID] = append(s.notesByNotebook[notebookID], note)
}

// NotesForNotebook returns the notes of a notebook, or an empty slice.
func (s *Store) NotesForNotebook(notebookID string) []Note {
	notes := slices.Clone(s.notesByNotebook[notebookID])
	if notes == nil {
		return []Note{}
	}
	return notes
}

// SetCurrentNote opens a note; nil closes it.
func (s *Store) SetCurrentNote(note *Note) {
	if note == nil {
		s.currentNote = nil
		return
	}
	n := *note
	s.currentNote = &n
}

// UpdateNote patches the current note and its entry in the notebook
// mapping. It returns false when no note is open.
func (s *Store) UpdateNote(patch NotePatch) (Note, bool) {
	if s.currentNote == nil {
		return Note{}, false
	}
	updated := *s.currentNote
	patch.apply(&updated)
	updated.UpdatedAt = s.now()

	notes := s.notesByNotebook[updated.NotebookID]
	for i := range notes {
		if notes[i].ID == updated.ID {
			notes[i] = updated
		}
	}
	s.currentNote = &updated
	return updated, true
}

// DeleteNote removes a note from the first notebook holding it and closes
// it if it was open.
func (s *Store) DeleteNote(noteID string) bool {
	found := false
	for notebookID, notes := range s.notesByNotebook {
		idx := slices.IndexFunc(notes, func(n Note) bool { return n.ID == noteID })
		if idx < 0 {
			continue
		}
		s.notesByNotebook[notebookID] = slices.Delete(notes, idx, idx+1)
		found = true
		break
	}
	if s.currentNote != nil && s.currentNote.ID == noteID {
		s.currentNote = nil
	}
	return found
}

// Notebooks returns a copy of the notebook list.
func (s *Store) Notebooks() []Notebook {
	out := make([]Notebook, len(s.notebooks))
	for i, nb := range s.notebooks {
		out[i] = nb.clone()
	}
	return out
}

// Notebook returns the notebook with the given id.
func (s *Store) Notebook(id string) (Notebook, bool) {
	idx := s.notebookIndex(id)
	if idx < 0 {
		return Notebook{}, false
	}
	return s.notebooks[idx].clone(), true
}

// CurrentNotebook returns the selected notebook, if it still exists.
func (s *Store) CurrentNotebook() (Notebook, bool) {
	if s.currentNotebook == "" {
		return Notebook{}, false
	}
	return s.Notebook(s.currentNotebook)
}

// CurrentNote returns the open note.
func (s *Store) CurrentNote() (Note, bool) {
	if s.currentNote == nil {
		return Note{}, false
	}
	return *s.currentNote, true
}

// FindNote looks a note up across all notebooks.
func (s *Store) FindNote(noteID string) (Note, bool) {
	for _, notes := range s.notesByNotebook {
		for _, n := range notes {
			if n.ID == noteID {
				return n, true
			}
		}
	}
	return Note{}, false
}

func (s *Store) notebookIndex(id string) int {
	return slices.IndexFunc(s.notebooks, func(nb Notebook) bool { return nb.ID == id })
}
