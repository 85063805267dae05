package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notemesh/application/ports"
	"notemesh/domain/events"
	"notemesh/domain/notebook"
	pkgerrors "notemesh/pkg/errors"
)

// CreateNotebookInput holds the fields of a new notebook
type CreateNotebookInput struct {
	Title string `json:"title" validate:"required,min=1,max=120"`
	Color string `json:"color" validate:"omitempty,max=32"`
	Icon  string `json:"icon" validate:"omitempty,max=64"`
}

type userNotes struct {
	mu     sync.Mutex
	store  *notebook.Store
	loaded map[string]bool
}

// NoteService keeps one notebook.Store per user in front of the notebook
// repository and runs note improvement.
type NoteService struct {
	repo      ports.NotebookRepository
	improver  ports.NoteImprover
	publisher ports.EventPublisher
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	users map[string]*userNotes
	seq   *Sequencer
}

// NewNoteService creates a new note service. publisher may be nil.
func NewNoteService(
	repo ports.NotebookRepository,
	improver ports.NoteImprover,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *NoteService {
	return &NoteService{
		repo:      repo,
		improver:  improver,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		users:     make(map[string]*userNotes),
		seq:       NewSequencer(),
	}
}

// ListNotebooks returns the user's notebooks
func (s *NoteService) ListNotebooks(ctx context.Context, userID string) ([]notebook.Notebook, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.store.Notebooks(), nil
}

// CreateNotebook adds a notebook unless the user already has MaxNotebooks
func (s *NoteService) CreateNotebook(ctx context.Context, userID string, in CreateNotebookInput) (*notebook.Notebook, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.store.CanAddNotebook() {
		return nil, pkgerrors.NewValidationError("You can have at most 7 notebooks").
			WithCode(pkgerrors.CodeNotebookLimit).
			WithDetail("limit", notebook.MaxNotebooks)
	}

	now := s.now()
	nb := notebook.Notebook{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     in.Title,
		Color:     in.Color,
		Icon:      in.Icon,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.SaveNotebook(ctx, nb); err != nil {
		return nil, err
	}
	u.store.AddNotebook(nb)
	u.loaded[nb.ID] = true
	return &nb, nil
}

// UpdateNotebook patches a notebook
func (s *NoteService) UpdateNotebook(ctx context.Context, userID, notebookID string, patch notebook.NotebookPatch) (*notebook.Notebook, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	previous := u.store.Notebooks()
	if !u.store.UpdateNotebook(notebookID, patch) {
		return nil, pkgerrors.NewNotFoundError("notebook").WithDetail("notebook_id", notebookID)
	}
	nb, _ := u.store.Notebook(notebookID)
	if err := s.repo.SaveNotebook(ctx, nb); err != nil {
		u.store.SetNotebooks(previous)
		return nil, err
	}
	return &nb, nil
}

// DeleteNotebook removes a notebook with its notes
func (s *NoteService) DeleteNotebook(ctx context.Context, userID, notebookID string) error {
	u, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.store.Notebook(notebookID); !ok {
		return pkgerrors.NewNotFoundError("notebook").WithDetail("notebook_id", notebookID)
	}
	if err := s.repo.DeleteNotebook(ctx, userID, notebookID); err != nil {
		return err
	}
	u.store.DeleteNotebook(notebookID)
	delete(u.loaded, notebookID)
	s.publish(ctx, events.NewNotebookDeleted(userID, notebookID, s.now()))
	return nil
}

// SelectNotebook makes a notebook current and returns its notes
func (s *NoteService) SelectNotebook(ctx context.Context, userID, notebookID string) ([]notebook.Note, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := s.ensureNotes(ctx, userID, u, notebookID); err != nil {
		return nil, err
	}
	u.store.SetCurrentNotebook(notebookID)
	return u.store.NotesForNotebook(notebookID), nil
}

// ListNotes returns the notes of a notebook
func (s *NoteService) ListNotes(ctx context.Context, userID, notebookID string) ([]notebook.Note, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := s.ensureNotes(ctx, userID, u, notebookID); err != nil {
		return nil, err
	}
	return u.store.NotesForNotebook(notebookID), nil
}

// CreateNote adds a note to a notebook and opens it
func (s *NoteService) CreateNote(ctx context.Context, userID, notebookID, content string) (*notebook.Note, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := s.ensureNotes(ctx, userID, u, notebookID); err != nil {
		return nil, err
	}
	now := s.now()
	note := notebook.Note{
		ID:         uuid.NewString(),
		NotebookID: notebookID,
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.SaveNote(ctx, userID, note); err != nil {
		return nil, err
	}
	u.store.AddNoteToNotebook(notebookID, note)
	u.store.SetCurrentNote(&note)
	return &note, nil
}

// OpenNote makes a note current
func (s *NoteService) OpenNote(ctx context.Context, userID, noteID string) (*notebook.Note, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	note, err := s.findNote(ctx, userID, u, noteID)
	if err != nil {
		return nil, err
	}
	u.store.SetCurrentNote(&note)
	return &note, nil
}

// UpdateNote opens a note and patches it
func (s *NoteService) UpdateNote(ctx context.Context, userID, noteID string, patch notebook.NotePatch) (*notebook.Note, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	note, err := s.findNote(ctx, userID, u, noteID)
	if err != nil {
		return nil, err
	}
	restore := keepNotes(u, note.NotebookID)
	u.store.SetCurrentNote(&note)
	updated, _ := u.store.UpdateNote(patch)
	if err := s.repo.SaveNote(ctx, userID, updated); err != nil {
		restore()
		return nil, err
	}
	return &updated, nil
}

// DeleteNote removes a note
func (s *NoteService) DeleteNote(ctx context.Context, userID, noteID string) error {
	u, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	note, err := s.findNote(ctx, userID, u, noteID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteNote(ctx, userID, note.NotebookID, noteID); err != nil {
		return err
	}
	u.store.DeleteNote(noteID)
	return nil
}

// ImproveNote sends a note to the improver and stores the answer as the
// note's formatted content. Only the newest request per note is applied.
func (s *NoteService) ImproveNote(ctx context.Context, userID, noteID string) (*notebook.Note, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	note, err := s.findNote(ctx, userID, u, noteID)
	if err != nil {
		u.mu.Unlock()
		return nil, err
	}
	if strings.TrimSpace(note.Content) == "" {
		u.mu.Unlock()
		return nil, pkgerrors.NewValidationError("Missing note content").WithCode(pkgerrors.CodeEmptyNoteContent)
	}
	seq := s.seq.Next(noteID)
	u.mu.Unlock()

	improved, err := s.improver.ImproveNote(ctx, note.Content)
	if err != nil {
		s.logger.Warn("Note improvement failed", zap.String("noteID", noteID), zap.Error(err))
		return nil, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if !s.seq.IsLatest(noteID, seq) {
		return nil, staleResponseError("note_id", noteID)
	}
	current, err := s.findNote(ctx, userID, u, noteID)
	if err != nil {
		return nil, err
	}
	restore := keepNotes(u, current.NotebookID)
	u.store.SetCurrentNote(&current)
	updated, _ := u.store.UpdateNote(notebook.NotePatch{FormattedContent: &improved})
	if err := s.repo.SaveNote(ctx, userID, updated); err != nil {
		restore()
		return nil, err
	}
	s.publish(ctx, events.NewNoteImproved(userID, noteID, updated.NotebookID, s.now()))
	return &updated, nil
}

func (s *NoteService) publish(ctx context.Context, event events.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event", zap.String("type", event.GetEventType()), zap.Error(err))
	}
}

// user returns the notes state of a user, loading the notebook list on
// first use.
func (s *NoteService) user(ctx context.Context, userID string) (*userNotes, error) {
	s.mu.Lock()
	u, ok := s.users[userID]
	s.mu.Unlock()
	if ok {
		return u, nil
	}

	notebooks, err := s.repo.ListNotebooks(ctx, userID)
	if err != nil {
		return nil, err
	}
	u = &userNotes{store: notebook.NewStore(s.now), loaded: make(map[string]bool)}
	u.store.SetNotebooks(notebooks)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[userID]; ok {
		return existing, nil
	}
	s.users[userID] = u
	return u, nil
}

// ensureNotes loads the notes of a notebook once. Callers hold u.mu.
func (s *NoteService) ensureNotes(ctx context.Context, userID string, u *userNotes, notebookID string) error {
	if _, ok := u.store.Notebook(notebookID); !ok {
		return pkgerrors.NewNotFoundError("notebook").WithDetail("notebook_id", notebookID)
	}
	if u.loaded[notebookID] {
		return nil
	}
	notes, err := s.repo.ListNotes(ctx, userID, notebookID)
	if err != nil {
		return err
	}
	u.store.SetNotesForNotebook(notebookID, notes)
	u.loaded[notebookID] = true
	return nil
}

// keepNotes captures the notes of a notebook and the open note; the returned
// func puts them back after a failed save. Callers hold u.mu.
func keepNotes(u *userNotes, notebookID string) func() {
	notes := u.store.NotesForNotebook(notebookID)
	current, open := u.store.CurrentNote()
	return func() {
		u.store.SetNotesForNotebook(notebookID, notes)
		if !open {
			u.store.SetCurrentNote(nil)
			return
		}
		u.store.SetCurrentNote(&current)
	}
}

// findNote looks a note up, loading unloaded notebooks as needed. Callers hold u.mu.
func (s *NoteService) findNote(ctx context.Context, userID string, u *userNotes, noteID string) (notebook.Note, error) {
	if note, ok := u.store.FindNote(noteID); ok {
		return note, nil
	}
	for _, nb := range u.store.Notebooks() {
		if u.loaded[nb.ID] {
			continue
		}
		if err := s.ensureNotes(ctx, userID, u, nb.ID); err != nil {
			return notebook.Note{}, err
		}
		if note, ok := u.store.FindNote(noteID); ok {
			return note, nil
		}
	}
	return notebook.Note{}, pkgerrors.NewNotFoundError("note").WithDetail("note_id", noteID)
}
