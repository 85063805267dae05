package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"notemesh/application/services"
	"notemesh/domain/notebook"
	"notemesh/pkg/common"
	pkgerrors "notemesh/pkg/errors"
)

// NotebookHandler handles notebook and note requests
type NotebookHandler struct {
	notes  *services.NoteService
	errs   *pkgerrors.ErrorHandler
	logger *zap.Logger
}

// NewNotebookHandler creates a new notebook handler
func NewNotebookHandler(notes *services.NoteService, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *NotebookHandler {
	return &NotebookHandler{notes: notes, errs: errs, logger: logger}
}

// CreateNoteRequest represents the request body for creating a note
type CreateNoteRequest struct {
	Content string `json:"content" validate:"max=100000"`
}

// ListNotebooks handles GET /notebooks
func (h *NotebookHandler) ListNotebooks(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	list, err := h.notes.ListNotebooks(r.Context(), user.UserID)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	respondList(h.errs, w, r, list)
}

// CreateNotebook handles POST /notebooks
func (h *NotebookHandler) CreateNotebook(w http.ResponseWriter, r *http.Request) {
	var req services.CreateNotebookInput
	if !decodeAndValidate(h.errs, w, r, &req) {
		return
	}
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	nb, err := h.notes.CreateNotebook(r.Context(), user.UserID, req)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusCreated, nb)
}

// UpdateNotebook handles PATCH /notebooks/{notebookID}
func (h *NotebookHandler) UpdateNotebook(w http.ResponseWriter, r *http.Request) {
	var patch notebook.NotebookPatch
	if !decodeAndValidate(h.errs, w, r, &patch) {
		return
	}
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	nb, err := h.notes.UpdateNotebook(r.Context(), user.UserID, chi.URLParam(r, "notebookID"), patch)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusOK, nb)
}

// DeleteNotebook handles DELETE /notebooks/{notebookID}
func (h *NotebookHandler) DeleteNotebook(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	if err := h.notes.DeleteNotebook(r.Context(), user.UserID, chi.URLParam(r, "notebookID")); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.NoContent(w)
}

// SelectNotebook handles PUT /notebooks/{notebookID}/selection and returns
// the notebook's notes
func (h *NotebookHandler) SelectNotebook(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	notes, err := h.notes.SelectNotebook(r.Context(), user.UserID, chi.URLParam(r, "notebookID"))
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	respondList(h.errs, w, r, notes)
}

// ListNotes handles GET /notebooks/{notebookID}/notes
func (h *NotebookHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	notes, err := h.notes.ListNotes(r.Context(), user.UserID, chi.URLParam(r, "notebookID"))
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	respondList(h.errs, w, r, notes)
}

// CreateNote handles POST /notebooks/{notebookID}/notes
func (h *NotebookHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeAndValidate(h.errs, w, r, &req) {
		return
	}
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	note, err := h.notes.CreateNote(r.Context(), user.UserID, chi.URLParam(r, "notebookID"), req.Content)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusCreated, note)
}

// GetNote handles GET /notes/{noteID}
func (h *NotebookHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	note, err := h.notes.OpenNote(r.Context(), user.UserID, chi.URLParam(r, "noteID"))
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusOK, note)
}

// UpdateNote handles PATCH /notes/{noteID}
func (h *NotebookHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var patch notebook.NotePatch
	if !decodeAndValidate(h.errs, w, r, &patch) {
		return
	}
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	note, err := h.notes.UpdateNote(r.Context(), user.UserID, chi.URLParam(r, "noteID"), patch)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusOK, note)
}

// DeleteNote handles DELETE /notes/{noteID}
func (h *NotebookHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	if err := h.notes.DeleteNote(r.Context(), user.UserID, chi.URLParam(r, "noteID")); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.NoContent(w)
}

// ImproveNote handles POST /notes/{noteID}/improve
func (h *NotebookHandler) ImproveNote(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	note, err := h.notes.ImproveNote(r.Context(), user.UserID, chi.URLParam(r, "noteID"))
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusOK, note)
}
