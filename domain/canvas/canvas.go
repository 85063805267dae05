package canvas

import "time"

// DefaultTitle is the title of the canvas created for a user without one.
const DefaultTitle = "My First Canvas"

// Canvas is the persisted header of a canvas; its graph is stored apart.
type Canvas struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Title      string         `json:"title"`
	NotebookID string         `json:"notebook_id,omitempty"`
	Settings   map[string]any `json:"settings,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
