package timeline

// DefaultHistoryLimit is the number of undo steps kept.
const DefaultHistoryLimit = 50

// History records clip collection snapshots for undo and redo.
type History struct {
	limit  int
	past   [][]Clip
	future [][]Clip
}

// NewHistory creates a History holding up to limit snapshots.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Record saves clips as the state before an edit and clears the redo stack.
func (h *History) Record(clips []Clip) {
	h.past = append(h.past, CloneClips(clips))
	if len(h.past) > h.limit {
		h.past = append(h.past[:0], h.past[len(h.past)-h.limit:]...)
	}
	h.future = nil
}

// Undo returns the previous state given the current one.
func (h *History) Undo(current []Clip) ([]Clip, bool) {
	if len(h.past) == 0 {
		return current, false
	}
	prev := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append(h.future, CloneClips(current))
	return CloneClips(prev), true
}

// Redo reapplies the last undone state given the current one.
func (h *History) Redo(current []Clip) ([]Clip, bool) {
	if len(h.future) == 0 {
		return current, false
	}
	next := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.past = append(h.past, CloneClips(current))
	return CloneClips(next), true
}

// CanUndo reports whether Undo would change anything.
func (h *History) CanUndo() bool { return len(h.past) > 0 }

// CanRedo reports whether Redo would change anything.
func (h *History) CanRedo() bool { return len(h.future) > 0 }
