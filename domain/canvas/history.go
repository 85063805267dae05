package canvas

// MaxHistory is the number of snapshots kept for undo.
const MaxHistory = 50

// History is a bounded, linear undo log. The entry at Index always equals
// the live state right after a Save.
type History struct {
	entries []Snapshot
	index   int
}

// NewHistory returns a log holding a single empty snapshot.
func NewHistory() *History {
	h := &History{}
	h.Reset(Snapshot{})
	return h
}

// Reset discards every entry and starts over from initial.
func (h *History) Reset(initial Snapshot) {
	h.entries = []Snapshot{initial.Clone()}
	h.index = 0
}

// Save drops any redo entries, appends a copy of s and trims the log to
// MaxHistory entries.
func (h *History) Save(s Snapshot) {
	entries := append(h.entries[:h.index+1:h.index+1], s.Clone())
	if len(entries) > MaxHistory {
		entries = append([]Snapshot(nil), entries[len(entries)-MaxHistory:]...)
	}
	h.entries = entries
	h.index = min(len(entries)-1, MaxHistory-1)
}

// Undo steps back one entry and returns a copy of it.
func (h *History) Undo() (Snapshot, bool) {
	if !h.CanUndo() {
		return Snapshot{}, false
	}
	h.index--
	return h.entries[h.index].Clone(), true
}

// Redo steps forward one entry and returns a copy of it.
func (h *History) Redo() (Snapshot, bool) {
	if !h.CanRedo() {
		return Snapshot{}, false
	}
	h.index++
	return h.entries[h.index].Clone(), true
}

func (h *History) CanUndo() bool { return h.index > 0 }
func (h *History) CanRedo() bool { return h.index < len(h.entries)-1 }
func (h *History) Len() int      { return len(h.entries) }
func (h *History) Index() int    { return h.index }

// Current returns a copy of the entry under the cursor.
func (h *History) Current() Snapshot {
	return h.entries[h.index].Clone()
}

// historyMark is a saved cursor position. Entries are never modified in
// place, so holding the slice keeps the log as it was.
type historyMark struct {
	entries []Snapshot
	index   int
}

func (h *History) mark() historyMark {
	return historyMark{entries: h.entries, index: h.index}
}

func (h *History) rewind(m historyMark) {
	h.entries = m.entries
	h.index = m.index
}
