package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"notemesh/application/services"
	"notemesh/pkg/auth"
	"notemesh/pkg/common"
	pkgerrors "notemesh/pkg/errors"
	"notemesh/pkg/observability"
	"notemesh/pkg/utils"
)

// CanvasHandler handles canvas-level HTTP requests
type CanvasHandler struct {
	canvases *services.CanvasService
	errs     *pkgerrors.ErrorHandler
	metrics  *observability.Collector
	logger   *zap.Logger
}

// NewCanvasHandler creates a new canvas handler. metrics may be nil.
func NewCanvasHandler(
	canvases *services.CanvasService,
	errs *pkgerrors.ErrorHandler,
	metrics *observability.Collector,
	logger *zap.Logger,
) *CanvasHandler {
	return &CanvasHandler{
		canvases: canvases,
		errs:     errs,
		metrics:  metrics,
		logger:   logger,
	}
}

// CreateCanvasRequest represents the request body for creating a canvas
type CreateCanvasRequest struct {
	Title      string `json:"title" validate:"omitempty,max=200"`
	NotebookID string `json:"notebookId" validate:"omitempty,max=64"`
}

// ChatRequest represents a chat box submission
type ChatRequest struct {
	Message string `json:"message" validate:"required,max=10000"`
}

// SelectRequest sets the selected node; an empty id clears it
type SelectRequest struct {
	NodeID string `json:"nodeId"`
}

// ListCanvases handles GET /canvases
func (h *CanvasHandler) ListCanvases(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	list, err := h.canvases.ListCanvases(r.Context(), user.UserID)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	respondList(h.errs, w, r, list)
}

// CreateCanvas handles POST /canvases
func (h *CanvasHandler) CreateCanvas(w http.ResponseWriter, r *http.Request) {
	var req CreateCanvasRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	c, err := h.canvases.CreateCanvas(r.Context(), user.UserID, req.Title, req.NotebookID)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusCreated, c)
}

// OpenDefault handles GET /canvases/default
func (h *CanvasHandler) OpenDefault(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r, func(userID, _ string) (*services.CanvasView, error) {
		return h.canvases.Open(r.Context(), userID, "")
	})
}

// OpenCanvas handles GET /canvases/{canvasID}
func (h *CanvasHandler) OpenCanvas(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r, func(userID, canvasID string) (*services.CanvasView, error) {
		return h.canvases.Open(r.Context(), userID, canvasID)
	})
}

// DeleteCanvas handles DELETE /canvases/{canvasID}
func (h *CanvasHandler) DeleteCanvas(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.canvases.DeleteCanvas(r.Context(), user.UserID, chi.URLParam(r, "canvasID")); err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.NoContent(w)
}

// Chat handles POST /canvases/{canvasID}/chat
func (h *CanvasHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	node, err := h.canvases.SubmitChat(r.Context(), user.UserID, chi.URLParam(r, "canvasID"), req.Message)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusCreated, node)
}

// Select handles PUT /canvases/{canvasID}/selection
func (h *CanvasHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondView(w, r, func(userID, canvasID string) (*services.CanvasView, error) {
		return h.canvases.SelectNode(r.Context(), userID, canvasID, req.NodeID)
	})
}

// Undo handles POST /canvases/{canvasID}/undo
func (h *CanvasHandler) Undo(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r, func(userID, canvasID string) (*services.CanvasView, error) {
		return h.canvases.Undo(r.Context(), userID, canvasID)
	})
}

// Redo handles POST /canvases/{canvasID}/redo
func (h *CanvasHandler) Redo(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r, func(userID, canvasID string) (*services.CanvasView, error) {
		return h.canvases.Redo(r.Context(), userID, canvasID)
	})
}

// Clear handles POST /canvases/{canvasID}/clear
func (h *CanvasHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.respondView(w, r, func(userID, canvasID string) (*services.CanvasView, error) {
		return h.canvases.Clear(r.Context(), userID, canvasID)
	})
}

// Cluster handles POST /canvases/{canvasID}/cluster
func (h *CanvasHandler) Cluster(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	canvasID := chi.URLParam(r, "canvasID")

	outcome, err := h.canvases.AutoCluster(r.Context(), user.UserID, canvasID)
	if err != nil {
		h.countCluster(clusterOutcomeLabel(err))
		h.errs.Handle(w, r, err)
		return
	}
	h.countCluster("applied")
	if h.metrics != nil {
		h.metrics.GeneratedEdges.Add(float64(outcome.GeneratedEdges))
	}
	common.RespondJSON(w, r, http.StatusOK, outcome)
}

func (h *CanvasHandler) countCluster(outcome string) {
	if h.metrics != nil {
		h.metrics.ClusterRuns.WithLabelValues(outcome).Inc()
	}
}

func clusterOutcomeLabel(err error) string {
	if appErr := pkgerrors.GetAppError(err); appErr != nil && appErr.Code != "" {
		return appErr.Code
	}
	return string(pkgerrors.TypeOf(err))
}

func (h *CanvasHandler) respondView(w http.ResponseWriter, r *http.Request, fn func(userID, canvasID string) (*services.CanvasView, error)) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	view, err := fn(user.UserID, chi.URLParam(r, "canvasID"))
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusOK, view)
}

func (h *CanvasHandler) user(w http.ResponseWriter, r *http.Request) (*auth.UserContext, bool) {
	return requireUser(h.errs, w, r)
}

func (h *CanvasHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return decodeAndValidate(h.errs, w, r, v)
}

// requireUser reads the authenticated user placed by the auth middleware
func requireUser(errs *pkgerrors.ErrorHandler, w http.ResponseWriter, r *http.Request) (*auth.UserContext, bool) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		errs.Handle(w, r, pkgerrors.NewUnauthorizedError("Unauthorized"))
		return nil, false
	}
	return user, true
}

func decodeAndValidate(errs *pkgerrors.ErrorHandler, w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := common.DecodeJSON(w, r, v); err != nil {
		errs.Handle(w, r, err)
		return false
	}
	if err := utils.ValidateStruct(v); err != nil {
		errs.Handle(w, r, err)
		return false
	}
	return true
}

// respondList pages items when the request asks for it
func respondList[T any](errs *pkgerrors.ErrorHandler, w http.ResponseWriter, r *http.Request, items []T) {
	params, paged, err := common.ParsePage(r)
	if err != nil {
		errs.Handle(w, r, err)
		return
	}
	if !paged {
		common.RespondList(w, r, items, len(items))
		return
	}
	window, info := common.Paginate(items, params)
	common.RespondPage(w, r, window, len(window), info)
}
