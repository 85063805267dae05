package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"notemesh/application/services"
	"notemesh/domain/canvas"
	"notemesh/pkg/common"
	pkgerrors "notemesh/pkg/errors"
)

// NodeHandler handles node and edge requests on an open canvas
type NodeHandler struct {
	canvases *services.CanvasService
	errs     *pkgerrors.ErrorHandler
	logger   *zap.Logger
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(canvases *services.CanvasService, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *NodeHandler {
	return &NodeHandler{canvases: canvases, errs: errs, logger: logger}
}

// CreateNodeRequest represents the request body for creating a node
type CreateNodeRequest struct {
	Text string   `json:"text" validate:"max=10000"`
	Tags []string `json:"tags,omitempty" validate:"omitempty,max=32,dive,min=1,max=64"`
}

// UpdateNodeRequest represents the request body for patching a node
type UpdateNodeRequest struct {
	Text       *string        `json:"text,omitempty" validate:"omitempty,max=10000"`
	Tags       []string       `json:"tags,omitempty" validate:"omitempty,max=32,dive,min=1,max=64"`
	Tasks      []canvas.Task  `json:"tasks,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// CreateEdgeRequest represents the request body for connecting two nodes
type CreateEdgeRequest struct {
	Source   string `json:"source" validate:"required"`
	Target   string `json:"target" validate:"required"`
	EdgeType string `json:"edgeType" validate:"omitempty,oneof=cluster untyped"`
	Label    string `json:"label" validate:"omitempty,max=200"`
}

// ChangesRequest carries a batch of canvas UI changes
type ChangesRequest struct {
	Nodes []canvas.NodeChange `json:"nodes" validate:"dive"`
	Edges []canvas.EdgeChange `json:"edges" validate:"dive"`
}

// CreateNode handles POST /canvases/{canvasID}/nodes
func (h *NodeHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if !decodeAndValidate(h.errs, w, r, &req) {
		return
	}
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	node, err := h.canvases.AddNode(r.Context(), user.UserID, chi.URLParam(r, "canvasID"), req.Text, req.Tags)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusCreated, node)
}

// UpdateNode handles PATCH /canvases/{canvasID}/nodes/{nodeID}
func (h *NodeHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var req UpdateNodeRequest
	if !decodeAndValidate(h.errs, w, r, &req) {
		return
	}
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	patch := canvas.NodePatch{
		Text:       req.Text,
		Tags:       req.Tags,
		Tasks:      req.Tasks,
		Extensions: req.Extensions,
	}
	if patch.IsEmpty() {
		h.errs.Handle(w, r, pkgerrors.NewValidationError("No fields to update"))
		return
	}

	node, err := h.canvases.UpdateNode(r.Context(), user.UserID, chi.URLParam(r, "canvasID"), chi.URLParam(r, "nodeID"), patch)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusOK, node)
}

// DeleteNode handles DELETE /canvases/{canvasID}/nodes/{nodeID}
func (h *NodeHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	view, err := h.canvases.DeleteNode(r.Context(), user.UserID, chi.URLParam(r, "canvasID"), chi.URLParam(r, "nodeID"))
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusOK, view)
}

// CreateEdge handles POST /canvases/{canvasID}/edges
func (h *NodeHandler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	var req CreateEdgeRequest
	if !decodeAndValidate(h.errs, w, r, &req) {
		return
	}
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	edge, err := h.canvases.AddEdge(r.Context(), user.UserID, chi.URLParam(r, "canvasID"),
		req.Source, req.Target, canvas.EdgeKind(req.EdgeType), req.Label)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusCreated, edge)
}

// DeleteEdge handles DELETE /canvases/{canvasID}/edges/{edgeID}
func (h *NodeHandler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	view, err := h.canvases.DeleteEdge(r.Context(), user.UserID, chi.URLParam(r, "canvasID"), chi.URLParam(r, "edgeID"))
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusOK, view)
}

// ApplyChanges handles POST /canvases/{canvasID}/changes. Node changes are
// applied before edge changes.
func (h *NodeHandler) ApplyChanges(w http.ResponseWriter, r *http.Request) {
	var req ChangesRequest
	if !decodeAndValidate(h.errs, w, r, &req) {
		return
	}
	if len(req.Nodes) == 0 && len(req.Edges) == 0 {
		h.errs.Handle(w, r, pkgerrors.NewValidationError("No changes provided"))
		return
	}
	user, ok := requireUser(h.errs, w, r)
	if !ok {
		return
	}
	canvasID := chi.URLParam(r, "canvasID")

	var (
		view *services.CanvasView
		err  error
	)
	if len(req.Nodes) > 0 {
		if view, err = h.canvases.ApplyNodeChanges(r.Context(), user.UserID, canvasID, req.Nodes); err != nil {
			h.errs.Handle(w, r, err)
			return
		}
	}
	if len(req.Edges) > 0 {
		if view, err = h.canvases.ApplyEdgeChanges(r.Context(), user.UserID, canvasID, req.Edges); err != nil {
			h.errs.Handle(w, r, err)
			return
		}
	}
	common.RespondJSON(w, r, http.StatusOK, view)
}
