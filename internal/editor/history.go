package editor

import "pixelworld.dev/internal/worldcfg"

// Snapshot is the editable subset of a world draft covered by undo/redo.
type Snapshot struct {
	Slots               []worldcfg.SlotConfig
	TextElements        []worldcfg.TextElement
	BackgroundImagePath string
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Slots:               worldcfg.CloneSlots(s.Slots),
		TextElements:        worldcfg.CloneTextElements(s.TextElements),
		BackgroundImagePath: s.BackgroundImagePath,
	}
}

const maxHistory = 50

// History is a bounded snapshot stack. The entry at the pointer always equals
// the last committed state, so undo restores the previous commit and redo
// restores the next one.
type History struct {
	stack []Snapshot
	idx   int
}

// Reset discards everything and installs a single baseline entry. The first
// undo after a reset is a no-op.
func (h *History) Reset(baseline Snapshot) {
	h.stack = []Snapshot{baseline.clone()}
	h.idx = 0
}

// Commit truncates the redo tail, appends a deep copy of the post-mutation
// state, and evicts the oldest entry past the cap.
func (h *History) Commit(s Snapshot) {
	h.stack = append(h.stack[:h.idx+1], s.clone())
	if len(h.stack) > maxHistory {
		h.stack = h.stack[len(h.stack)-maxHistory:]
	}
	h.idx = len(h.stack) - 1
}

// Undo moves the pointer back one entry. At the bottom it is a no-op.
func (h *History) Undo() (Snapshot, bool) {
	if h.idx <= 0 {
		return Snapshot{}, false
	}
	h.idx--
	return h.stack[h.idx].clone(), true
}

// Redo moves the pointer forward one entry. At the tip it is a no-op.
func (h *History) Redo() (Snapshot, bool) {
	if h.idx >= len(h.stack)-1 {
		return Snapshot{}, false
	}
	h.idx++
	return h.stack[h.idx].clone(), true
}

func (h *History) Len() int { return len(h.stack) }
