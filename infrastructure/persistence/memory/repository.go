// Package memory provides in-process repositories for development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"notemesh/domain/canvas"
	"notemesh/domain/notebook"
	pkgerrors "notemesh/pkg/errors"
)

// CanvasRepository keeps canvases and their graphs in memory
type CanvasRepository struct {
	mu       sync.RWMutex
	canvases map[string]canvas.Canvas
	graphs   map[string]canvas.Snapshot
	saves    int
}

// NewCanvasRepository creates an empty canvas repository
func NewCanvasRepository() *CanvasRepository {
	return &CanvasRepository{
		canvases: make(map[string]canvas.Canvas),
		graphs:   make(map[string]canvas.Snapshot),
	}
}

func (r *CanvasRepository) CreateCanvas(ctx context.Context, c *canvas.Canvas) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.canvases[c.ID]; exists {
		return pkgerrors.NewConflictError("canvas already exists").WithDetail("canvas_id", c.ID)
	}
	r.canvases[c.ID] = *c
	return nil
}

func (r *CanvasRepository) GetCanvas(ctx context.Context, userID, canvasID string) (*canvas.Canvas, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.canvases[canvasID]
	if !ok || c.UserID != userID {
		return nil, pkgerrors.NewNotFoundError("canvas").WithDetail("canvas_id", canvasID)
	}
	return &c, nil
}

func (r *CanvasRepository) GetDefaultCanvas(ctx context.Context, userID string) (*canvas.Canvas, error) {
	list, _ := r.ListCanvases(ctx, userID)
	if len(list) == 0 {
		return nil, pkgerrors.NewNotFoundError("canvas").WithDetail("user_id", userID)
	}
	return list[0], nil
}

func (r *CanvasRepository) ListCanvases(ctx context.Context, userID string) ([]*canvas.Canvas, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*canvas.Canvas
	for _, c := range r.canvases {
		if c.UserID == userID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *CanvasRepository) LoadGraph(ctx context.Context, userID, canvasID string) (canvas.Snapshot, error) {
	if _, err := r.GetCanvas(ctx, userID, canvasID); err != nil {
		return canvas.Snapshot{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graphs[canvasID].Clone(), nil
}

func (r *CanvasRepository) SaveGraph(ctx context.Context, userID, canvasID string, graph canvas.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.canvases[canvasID]
	if !ok || c.UserID != userID {
		return pkgerrors.NewNotFoundError("canvas").WithDetail("canvas_id", canvasID)
	}
	r.graphs[canvasID] = graph.Clone()
	c.UpdatedAt = time.Now()
	r.canvases[canvasID] = c
	r.saves++
	return nil
}

func (r *CanvasRepository) DeleteCanvas(ctx context.Context, userID, canvasID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.canvases, canvasID)
	delete(r.graphs, canvasID)
	return nil
}

// SaveCount reports how many times a graph was saved
func (r *CanvasRepository) SaveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

// NotebookRepository keeps notebooks and notes in memory
type NotebookRepository struct {
	mu        sync.RWMutex
	notebooks map[string]notebook.Notebook
	notes     map[string]notebook.Note
}

// NewNotebookRepository creates an empty notebook repository
func NewNotebookRepository() *NotebookRepository {
	return &NotebookRepository{
		notebooks: make(map[string]notebook.Notebook),
		notes:     make(map[string]notebook.Note),
	}
}

func (r *NotebookRepository) ListNotebooks(ctx context.Context, userID string) ([]notebook.Notebook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []notebook.Notebook{}
	for _, nb := range r.notebooks {
		if nb.UserID == userID {
			out = append(out, nb)
		}
	}
	slices.SortFunc(out, func(a, b notebook.Notebook) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *NotebookRepository) SaveNotebook(ctx context.Context, nb notebook.Notebook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notebooks[nb.ID] = nb
	return nil
}

func (r *NotebookRepository) DeleteNotebook(ctx context.Context, userID, notebookID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notebooks, notebookID)
	for id, n := range r.notes {
		if n.NotebookID == notebookID {
			delete(r.notes, id)
		}
	}
	return nil
}

func (r *NotebookRepository) ListNotes(ctx context.Context, userID, notebookID string) ([]notebook.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []notebook.Note{}
	for _, n := range r.notes {
		if n.NotebookID == notebookID {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b notebook.Note) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *NotebookRepository) SaveNote(ctx context.Context, userID string, note notebook.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes[note.ID] = note
	return nil
}

func (r *NotebookRepository) DeleteNote(ctx context.Context, userID, notebookID, noteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notes, noteID)
	return nil
}

// UsageTracker counts uses per user and day in memory
type UsageTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewUsageTracker creates an empty usage tracker
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{counts: make(map[string]int)}
}

func usageKey(userID string, day time.Time) string {
	return userID + "#" + day.UTC().Format(time.DateOnly)
}

func (u *UsageTracker) Increment(ctx context.Context, userID string, day time.Time, limit int) (int, bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	key := usageKey(userID, day)
	if limit > 0 && u.counts[key] >= limit {
		return u.counts[key], false, nil
	}
	u.counts[key]++
	return u.counts[key], true, nil
}

func (u *UsageTracker) Count(ctx context.Context, userID string, day time.Time) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[usageKey(userID, day)], nil
}

// ConnectionRegistry keeps websocket connection ids in memory
type ConnectionRegistry struct {
	mu    sync.Mutex
	users map[string]string
}

// NewConnectionRegistry creates an empty registry
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{users: make(map[string]string)}
}

func (c *ConnectionRegistry) Register(ctx context.Context, userID, connectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[connectionID] = userID
	return nil
}

func (c *ConnectionRegistry) Unregister(ctx context.Context, connectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, connectionID)
	return nil
}

func (c *ConnectionRegistry) Connections(ctx context.Context, userID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for conn, uid := range c.users {
		if uid == userID {
			out = append(out, conn)
		}
	}
	sort.Strings(out)
	return out, nil
}
