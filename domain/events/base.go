package events

import (
	"time"

	"notemesh/domain/canvas"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
	GetUserID() string
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	UserID      string    `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }
func (e BaseEvent) GetUserID() string       { return e.UserID }

// Canvas Events

// CanvasChanged is raised for every store mutation of a canvas
type CanvasChanged struct {
	BaseEvent
	CanvasID     string   `json:"canvas_id"`
	Change       string   `json:"change"`
	NodeIDs      []string `json:"node_ids,omitempty"`
	EdgeIDs      []string `json:"edge_ids,omitempty"`
	HistoryIndex int      `json:"history_index"`
	Recorded     bool     `json:"recorded"`
}

// NewCanvasChanged wraps a store change event
func NewCanvasChanged(userID string, change canvas.ChangeEvent, timestamp time.Time) CanvasChanged {
	return CanvasChanged{
		BaseEvent: BaseEvent{
			AggregateID: change.CanvasID,
			EventType:   "canvas." + string(change.Type),
			UserID:      userID,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID:     change.CanvasID,
		Change:       string(change.Type),
		NodeIDs:      change.NodeIDs,
		EdgeIDs:      change.EdgeIDs,
		HistoryIndex: change.HistoryIndex,
		Recorded:     change.Recorded,
	}
}

// ToChange rebuilds the store change the event was raised for
func (e CanvasChanged) ToChange() canvas.ChangeEvent {
	return canvas.ChangeEvent{
		Type:         canvas.EventType(e.Change),
		CanvasID:     e.CanvasID,
		NodeIDs:      e.NodeIDs,
		EdgeIDs:      e.EdgeIDs,
		HistoryIndex: e.HistoryIndex,
		Recorded:     e.Recorded,
	}
}

// ClustersApplied is raised after an AI clustering proposal was reconciled
type ClustersApplied struct {
	BaseEvent
	CanvasID       string           `json:"canvas_id"`
	Clusters       []canvas.Cluster `json:"clusters"`
	GeneratedEdges int              `json:"generated_edges"`
	DroppedNodeIDs int              `json:"dropped_node_ids"`
}

// NewClustersApplied creates a ClustersApplied event
func NewClustersApplied(userID, canvasID string, result *canvas.ReconcileResult, timestamp time.Time) ClustersApplied {
	return ClustersApplied{
		BaseEvent: BaseEvent{
			AggregateID: canvasID,
			EventType:   "canvas.clusters_applied",
			UserID:      userID,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID:       canvasID,
		Clusters:       result.Clusters,
		GeneratedEdges: len(result.Generated),
		DroppedNodeIDs: result.DroppedNodeIDs,
	}
}

// Note Events

// NoteImproved is raised when an improved version of a note was stored
type NoteImproved struct {
	BaseEvent
	NoteID     string `json:"note_id"`
	NotebookID string `json:"notebook_id"`
}

// NewNoteImproved creates a NoteImproved event
func NewNoteImproved(userID, noteID, notebookID string, timestamp time.Time) NoteImproved {
	return NoteImproved{
		BaseEvent: BaseEvent{
			AggregateID: noteID,
			EventType:   "note.improved",
			UserID:      userID,
			Timestamp:   timestamp,
			Version:     1,
		},
		NoteID:     noteID,
		NotebookID: notebookID,
	}
}

// NotebookDeleted is raised when a notebook and its notes were removed
type NotebookDeleted struct {
	BaseEvent
	NotebookID string `json:"notebook_id"`
}

// NewNotebookDeleted creates a NotebookDeleted event
func NewNotebookDeleted(userID, notebookID string, timestamp time.Time) NotebookDeleted {
	return NotebookDeleted{
		BaseEvent: BaseEvent{
			AggregateID: notebookID,
			EventType:   "notebook.deleted",
			UserID:      userID,
			Timestamp:   timestamp,
			Version:     1,
		},
		NotebookID: notebookID,
	}
}
