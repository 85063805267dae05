// Package notebook holds the notebooks and notes of one user together with
// the currently open notebook and note.
package notebook

import (
	"maps"
	"time"
)

// MaxNotebooks caps how many notebooks a user may keep.
const MaxNotebooks = 7

// Notebook groups notes under a title, color and icon.
type Notebook struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Title     string         `json:"title"`
	Color     string         `json:"color"`
	Icon      string         `json:"icon"`
	Settings  map[string]any `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Note is a free-text page within a notebook.
type Note struct {
	ID               string    `json:"id"`
	NotebookID       string    `json:"notebook_id"`
	Content          string    `json:"content"`
	FormattedContent string    `json:"formatted_content,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NotebookPatch is a partial notebook update; nil fields are kept.
type NotebookPatch struct {
	Title    *string        `json:"title,omitempty" validate:"omitempty,min=1,max=120"`
	Color    *string        `json:"color,omitempty" validate:"omitempty,max=32"`
	Icon     *string        `json:"icon,omitempty" validate:"omitempty,max=64"`
	Settings map[string]any `json:"settings,omitempty"`
}

// NotePatch is a partial note update; nil fields are kept.
type NotePatch struct {
	Content          *string `json:"content,omitempty"`
	FormattedContent *string `json:"formatted_content,omitempty"`
}

func (p NotebookPatch) apply(nb *Notebook) {
	if p.Title != nil {
		nb.Title = *p.Title
	}
	if p.Color != nil {
		nb.Color = *p.Color
	}
	if p.Icon != nil {
		nb.Icon = *p.Icon
	}
	if p.Settings != nil {
		nb.Settings = maps.Clone(p.Settings)
	}
}

func (p NotePatch) apply(n *Note) {
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.FormattedContent != nil {
		n.FormattedContent = *p.FormattedContent
	}
}

func (nb Notebook) clone() Notebook {
	out := nb
	if nb.Settings != nil {
		out.Settings = maps.Clone(nb.Settings)
	}
	return out
}
