package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notemesh/domain/notebook"
	"notemesh/infrastructure/persistence/memory"
	pkgerrors "notemesh/pkg/errors"
)

type fakeImprover struct {
	calls atomic.Int32
	fn    func(call int32, content string) (string, error)
}

func (f *fakeImprover) ImproveNote(ctx context.Context, content string) (string, error) {
	return f.fn(f.calls.Add(1), content)
}

func newNoteFixture(t *testing.T) (*NoteService, *memory.NotebookRepository, *fakeImprover, *recordingPublisher) {
	t.Helper()
	repo := memory.NewNotebookRepository()
	improver := &fakeImprover{fn: func(_ int32, content string) (string, error) {
		return "Improved: " + content, nil
	}}
	publisher := &recordingPublisher{}
	return NewNoteService(repo, improver, publisher, zap.NewNop()), repo, improver, publisher
}

func TestNoteService_NotebookLimit(t *testing.T) {
	svc, _, _, _ := newNoteFixture(t)
	ctx := context.Background()

	for i := 0; i < notebook.MaxNotebooks; i++ {
		_, err := svc.CreateNotebook(ctx, "u", CreateNotebookInput{Title: fmt.Sprintf("nb %d", i)})
		require.NoError(t, err)
	}

	_, err := svc.CreateNotebook(ctx, "u", CreateNotebookInput{Title: "one too many"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Equal(t, pkgerrors.CodeNotebookLimit, pkgerrors.GetAppError(err).Code)

	list, _ := svc.ListNotebooks(ctx, "u")
	assert.Len(t, list, notebook.MaxNotebooks)

	other, err := svc.CreateNotebook(ctx, "someone-else", CreateNotebookInput{Title: "mine"})
	require.NoError(t, err)
	assert.Equal(t, "someone-else", other.UserID)
}

func TestNoteService_NotesSurviveReload(t *testing.T) {
	svc, repo, improver, publisher := newNoteFixture(t)
	ctx := context.Background()
	nb, err := svc.CreateNotebook(ctx, "u", CreateNotebookInput{Title: "Work"})
	require.NoError(t, err)
	note, err := svc.CreateNote(ctx, "u", nb.ID, "first draft")
	require.NoError(t, err)

	fresh := NewNoteService(repo, improver, publisher, zap.NewNop())
	notes, err := fresh.SelectNotebook(ctx, "u", nb.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, note.ID, notes[0].ID)

	content := "second draft"
	updated, err := fresh.UpdateNote(ctx, "u", note.ID, notebook.NotePatch{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "second draft", updated.Content)
}

func TestNoteService_DeleteNotebookCascades(t *testing.T) {
	svc, repo, _, publisher := newNoteFixture(t)
	ctx := context.Background()
	nb, _ := svc.CreateNotebook(ctx, "u", CreateNotebookInput{Title: "Work"})
	note, _ := svc.CreateNote(ctx, "u", nb.ID, "x")

	require.NoError(t, svc.DeleteNotebook(ctx, "u", nb.ID))

	_, err := svc.OpenNote(ctx, "u", note.ID)
	assert.True(t, pkgerrors.IsNotFound(err))
	stored, _ := repo.ListNotes(ctx, "u", nb.ID)
	assert.Empty(t, stored)
	assert.Contains(t, publisher.types(), "notebook.deleted")

	assert.True(t, pkgerrors.IsNotFound(svc.DeleteNotebook(ctx, "u", nb.ID)))
}

func TestNoteService_ImproveNote(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		improve  func(int32, string) (string, error)
		check    func(t *testing.T, note *notebook.Note, err error)
		wantSent int32
	}{
		{
			name:    "stores formatted content",
			content: "teh plan",
			improve: func(_ int32, c string) (string, error) { return "The plan.", nil },
			check: func(t *testing.T, note *notebook.Note, err error) {
				require.NoError(t, err)
				assert.Equal(t, "teh plan", note.Content)
				assert.Equal(t, "The plan.", note.FormattedContent)
			},
			wantSent: 1,
		},
		{
			name:    "blank content is rejected before the call",
			content: "   ",
			improve: func(_ int32, c string) (string, error) { return c, nil },
			check: func(t *testing.T, note *notebook.Note, err error) {
				assert.True(t, pkgerrors.IsValidation(err))
				assert.Equal(t, pkgerrors.CodeEmptyNoteContent, pkgerrors.GetAppError(err).Code)
			},
			wantSent: 0,
		},
		{
			name:    "provider error is surfaced",
			content: "draft",
			improve: func(int32, string) (string, error) {
				return "", pkgerrors.NewQuotaError("AI credits depleted")
			},
			check: func(t *testing.T, note *notebook.Note, err error) {
				assert.True(t, pkgerrors.IsQuota(err))
				assert.Nil(t, note)
			},
			wantSent: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, improver, _ := newNoteFixture(t)
			improver.fn = tt.improve
			ctx := context.Background()
			nb, _ := svc.CreateNotebook(ctx, "u", CreateNotebookInput{Title: "nb"})
			note, _ := svc.CreateNote(ctx, "u", nb.ID, tt.content)

			got, err := svc.ImproveNote(ctx, "u", note.ID)

			tt.check(t, got, err)
			assert.Equal(t, tt.wantSent, improver.calls.Load())
		})
	}
}

func TestNoteService_ImproveNoteDiscardsStaleResponse(t *testing.T) {
	svc, _, improver, _ := newNoteFixture(t)
	ctx := context.Background()
	nb, _ := svc.CreateNotebook(ctx, "u", CreateNotebookInput{Title: "nb"})
	note, _ := svc.CreateNote(ctx, "u", nb.ID, "draft")

	entered := make(chan struct{})
	release := make(chan struct{})
	improver.fn = func(call int32, content string) (string, error) {
		if call == 1 {
			close(entered)
			<-release
			return "old answer", nil
		}
		return "new answer", nil
	}

	var slowErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, slowErr = svc.ImproveNote(ctx, "u", note.ID)
	}()

	<-entered
	fresh, err := svc.ImproveNote(ctx, "u", note.ID)
	require.NoError(t, err)
	assert.Equal(t, "new answer", fresh.FormattedContent)

	close(release)
	<-done
	assert.True(t, errors.Is(slowErr, ErrStaleResponse))

	current, err := svc.OpenNote(ctx, "u", note.ID)
	require.NoError(t, err)
	assert.Equal(t, "new answer", current.FormattedContent)
}

// flakyNotebookRepository fails every save while down is set
type flakyNotebookRepository struct {
	*memory.NotebookRepository
	down atomic.Bool
}

func (r *flakyNotebookRepository) SaveNote(ctx context.Context, userID string, note notebook.Note) error {
	if r.down.Load() {
		return errors.New("backend down")
	}
	return r.NotebookRepository.SaveNote(ctx, userID, note)
}

func (r *flakyNotebookRepository) SaveNotebook(ctx context.Context, nb notebook.Notebook) error {
	if r.down.Load() {
		return errors.New("backend down")
	}
	return r.NotebookRepository.SaveNotebook(ctx, nb)
}

func TestNoteService_FailedSaveKeepsNotes(t *testing.T) {
	ctx := context.Background()
	content := "rewritten"
	title := "Renamed"

	tests := []struct {
		name string
		call func(svc *NoteService, notebookID, noteID string) error
	}{
		{
			name: "update note",
			call: func(svc *NoteService, _, noteID string) error {
				_, err := svc.UpdateNote(ctx, "u", noteID, notebook.NotePatch{Content: &content})
				return err
			},
		},
		{
			name: "improve note",
			call: func(svc *NoteService, _, noteID string) error {
				_, err := svc.ImproveNote(ctx, "u", noteID)
				return err
			},
		},
		{
			name: "update notebook",
			call: func(svc *NoteService, notebookID, _ string) error {
				_, err := svc.UpdateNotebook(ctx, "u", notebookID, notebook.NotebookPatch{Title: &title})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &flakyNotebookRepository{NotebookRepository: memory.NewNotebookRepository()}
			improver := &fakeImprover{fn: func(_ int32, c string) (string, error) { return "Improved: " + c, nil }}
			svc := NewNoteService(repo, improver, nil, zap.NewNop())

			nb, err := svc.CreateNotebook(ctx, "u", CreateNotebookInput{Title: "Work"})
			require.NoError(t, err)
			note, err := svc.CreateNote(ctx, "u", nb.ID, "first draft")
			require.NoError(t, err)

			repo.down.Store(true)
			err = tt.call(svc, nb.ID, note.ID)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "backend down")

			got, err := svc.OpenNote(ctx, "u", note.ID)
			require.NoError(t, err)
			assert.Equal(t, *note, *got)

			list, err := svc.ListNotebooks(ctx, "u")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "Work", list[0].Title)
		})
	}
}
