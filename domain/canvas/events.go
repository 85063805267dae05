package canvas

// EventType names a kind of store mutation.
type EventType string

const (
	EventNodeAdded      EventType = "node.added"
	EventNodeUpdated    EventType = "node.updated"
	EventNodeDeleted    EventType = "node.deleted"
	EventEdgeAdded      EventType = "edge.added"
	EventEdgeDeleted    EventType = "edge.deleted"
	EventNodesChanged   EventType = "nodes.changed"
	EventEdgesChanged   EventType = "edges.changed"
	EventCanvasCleared  EventType = "canvas.cleared"
	EventCanvasCluster  EventType = "canvas.clustered"
	EventCanvasLoaded   EventType = "canvas.loaded"
	EventHistoryUndo    EventType = "history.undo"
	EventHistoryRedo    EventType = "history.redo"
	EventSelectionMoved EventType = "selection.changed"
)

// ChangeEvent describes one store mutation.
type ChangeEvent struct {
	Type         EventType `json:"type"`
	CanvasID     string    `json:"canvasId"`
	NodeIDs      []string  `json:"nodeIds,omitempty"`
	EdgeIDs      []string  `json:"edgeIds,omitempty"`
	HistoryIndex int       `json:"historyIndex"`
	Recorded     bool      `json:"recorded"`
}

// ChangeListener receives store mutations synchronously, after the state
// change and its history save have completed.
type ChangeListener func(ChangeEvent)
