package ports

import (
	"context"
	"time"

	"notemesh/domain/canvas"
	"notemesh/domain/events"
	"notemesh/domain/notebook"
)

// CanvasRepository defines the interface for canvas persistence
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type CanvasRepository interface {
	// CreateCanvas persists a new canvas header
	CreateCanvas(ctx context.Context, c *canvas.Canvas) error

	// GetCanvas retrieves a canvas owned by userID; NotFound otherwise
	GetCanvas(ctx context.Context, userID, canvasID string) (*canvas.Canvas, error)

	// GetDefaultCanvas returns the user's oldest canvas; NotFound when the user has none
	GetDefaultCanvas(ctx context.Context, userID string) (*canvas.Canvas, error)

	// ListCanvases returns every canvas of a user, oldest first
	ListCanvases(ctx context.Context, userID string) ([]*canvas.Canvas, error)

	// LoadGraph returns the stored nodes, edges and clusters of a canvas
	LoadGraph(ctx context.Context, userID, canvasID string) (canvas.Snapshot, error)

	// SaveGraph replaces the stored graph of a canvas
	SaveGraph(ctx context.Context, userID, canvasID string, graph canvas.Snapshot) error

	// DeleteCanvas removes a canvas and its graph
	DeleteCanvas(ctx context.Context, userID, canvasID string) error
}

// NotebookRepository defines the interface for notebook and note persistence
type NotebookRepository interface {
	// ListNotebooks returns a user's notebooks, oldest first
	ListNotebooks(ctx context.Context, userID string) ([]notebook.Notebook, error)

	// SaveNotebook creates or updates a notebook
	SaveNotebook(ctx context.Context, nb notebook.Notebook) error

	// DeleteNotebook removes a notebook and all of its notes
	DeleteNotebook(ctx context.Context, userID, notebookID string) error

	// ListNotes returns the notes of a notebook, oldest first
	ListNotes(ctx context.Context, userID, notebookID string) ([]notebook.Note, error)

	// SaveNote creates or updates a note
	SaveNote(ctx context.Context, userID string, note notebook.Note) error

	// DeleteNote removes a single note
	DeleteNote(ctx context.Context, userID, notebookID, noteID string) error
}

// UsageTracker counts metered operations per user and day
type UsageTracker interface {
	// Increment adds one use for day unless limit is already reached.
	// It returns the count after the call and whether the use was allowed.
	Increment(ctx context.Context, userID string, day time.Time, limit int) (count int, allowed bool, err error)

	// Count returns the uses recorded for day
	Count(ctx context.Context, userID string, day time.Time) (int, error)
}

// ConnectionRegistry tracks open websocket connections per user
type ConnectionRegistry interface {
	Register(ctx context.Context, userID, connectionID string) error
	Unregister(ctx context.Context, connectionID string) error
	Connections(ctx context.Context, userID string) ([]string, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// ChangeNotifier pushes canvas changes to a user's live clients
type ChangeNotifier interface {
	NotifyCanvasChange(ctx context.Context, userID string, change canvas.ChangeEvent) error
}
