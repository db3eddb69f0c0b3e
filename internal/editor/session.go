package editor

import (
	"github.com/google/uuid"

	"pixelworld.dev/internal/worldcfg"
)

// Tool is the exclusive active editing mode.
type Tool string

const (
	ToolSelect  Tool = "select"
	ToolMove    Tool = "move"
	ToolResize  Tool = "resize"
	ToolAddText Tool = "add-text"
	ToolAddSlot Tool = "add-slot"
)

// Kind tells a slot selection apart from a text selection.
type Kind string

const (
	KindSlot Kind = "slot"
	KindText Kind = "text"
)

// SaveStatus is the transient save indicator. A failed save keeps the draft.
type SaveStatus string

const (
	StatusIdle   SaveStatus = "idle"
	StatusSaving SaveStatus = "saving"
	StatusSaved  SaveStatus = "saved"
	StatusError  SaveStatus = "error"
)

// Drag positions stay clear of the world edges.
const (
	dragMin = 0.05
	dragMax = 0.95
)

type selection struct {
	id   string
	kind Kind
	set  bool
}

type dragState struct {
	id     string
	kind   Kind
	moved  bool
	active bool
}

// Session owns one user's draft world exclusively. All mutations go through
// its methods; the rendered scene receives changes only via one-way commands,
// never by sharing this state.
type Session struct {
	username string
	loadGen  uint64

	draft worldcfg.WorldConfig

	tool   Tool
	sel    selection
	drag   dragState
	dirty  bool
	status SaveStatus

	history History
}

func NewSession() *Session {
	s := &Session{tool: ToolSelect, status: StatusIdle}
	s.install("", nil)
	return s
}

// LoadToken keys an in-flight configuration load. A completing load whose
// token no longer matches the session is stale and must be discarded.
type LoadToken struct {
	username string
	gen      uint64
}

// BeginLoad records that a load for username is in flight and returns the
// token its completion must present.
func (s *Session) BeginLoad(username string) LoadToken {
	s.loadGen++
	s.username = username
	return LoadToken{username: username, gen: s.loadGen}
}

// CompleteLoad installs the fetched record. A stale token (superseded by a
// newer BeginLoad) is ignored and the method reports false.
func (s *Session) CompleteLoad(tok LoadToken, rec *worldcfg.WorldConfig) bool {
	if tok.username != s.username || tok.gen != s.loadGen {
		return false
	}
	s.install(tok.username, rec)
	return true
}

func (s *Session) install(username string, rec *worldcfg.WorldConfig) {
	s.draft = Import(username, rec)
	s.sel = selection{}
	s.drag = dragState{}
	s.dirty = false
	s.status = StatusIdle
	s.history.Reset(s.snapshot())
}

func (s *Session) Username() string   { return s.username }
func (s *Session) Dirty() bool        { return s.dirty }
func (s *Session) Status() SaveStatus { return s.status }
func (s *Session) Tool() Tool         { return s.tool }

// Draft returns a deep copy of the current draft.
func (s *Session) Draft() worldcfg.WorldConfig {
	cfg := s.draft
	cfg.Slots = worldcfg.CloneSlots(s.draft.Slots)
	cfg.TextElements = worldcfg.CloneTextElements(s.draft.TextElements)
	return cfg
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		Slots:               s.draft.Slots,
		TextElements:        s.draft.TextElements,
		BackgroundImagePath: s.draft.BackgroundImagePath,
	}
}

func (s *Session) commit() {
	s.history.Commit(s.snapshot())
	s.dirty = true
}

func (s *Session) restore(snap Snapshot) {
	s.draft.Slots = snap.Slots
	s.draft.TextElements = snap.TextElements
	s.draft.BackgroundImagePath = snap.BackgroundImagePath
	if s.sel.set && !s.entityExists(s.sel.id, s.sel.kind) {
		s.sel = selection{}
	}
	s.dirty = true
}

// ActivateTool switches the exclusive mode. Switching to add-text is a
// compound operation: it creates a text overlay at a default position and
// selects it.
func (s *Session) ActivateTool(t Tool) {
	s.tool = t
	if t == ToolAddText {
		s.addText()
	}
}

func (s *Session) Select(id string, kind Kind) bool {
	if !s.entityExists(id, kind) {
		return false
	}
	s.sel = selection{id: id, kind: kind, set: true}
	return true
}

func (s *Session) ClearSelection() { s.sel = selection{} }

func (s *Session) Selection() (id string, kind Kind, ok bool) {
	return s.sel.id, s.sel.kind, s.sel.set
}

func (s *Session) entityExists(id string, kind Kind) bool {
	switch kind {
	case KindSlot:
		return s.slotIndex(id) >= 0
	case KindText:
		return s.textIndex(id) >= 0
	}
	return false
}

func (s *Session) slotIndex(id string) int {
	for i := range s.draft.Slots {
		if s.draft.Slots[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) textIndex(id string) int {
	for i := range s.draft.TextElements {
		if s.draft.TextElements[i].ID == id {
			return i
		}
	}
	return -1
}

// AddSlot places a new zone marker at the given normalized position.
func (s *Session) AddSlot(x, y float64) worldcfg.SlotConfig {
	slot := worldcfg.SlotConfig{
		ID:           uuid.NewString(),
		X:            clampDrag(x),
		Y:            clampDrag(y),
		Width:        1,
		Height:       1,
		Label:        "New Project",
		BuildingType: worldcfg.BuildingTreehouse,
	}
	s.draft.Slots = append(s.draft.Slots, slot)
	s.sel = selection{id: slot.ID, kind: KindSlot, set: true}
	s.commit()
	return slot
}

func (s *Session) addText() worldcfg.TextElement {
	el := worldcfg.TextElement{
		ID:         uuid.NewString(),
		X:          0.5,
		Y:          0.5,
		Content:    "New text",
		FontSize:   24,
		FontFamily: "monospace",
		Color:      "#ffffff",
		Scale:      1,
	}
	s.draft.TextElements = append(s.draft.TextElements, el)
	s.sel = selection{id: el.ID, kind: KindText, set: true}
	s.commit()
	return el
}

// RemoveSlot deletes a zone marker. Removing the home anchor is silently
// ignored.
func (s *Session) RemoveSlot(id string) bool {
	if id == worldcfg.AnchorSlotID {
		return false
	}
	i := s.slotIndex(id)
	if i < 0 {
		return false
	}
	s.draft.Slots = append(s.draft.Slots[:i], s.draft.Slots[i+1:]...)
	if s.sel.set && s.sel.kind == KindSlot && s.sel.id == id {
		s.sel = selection{}
	}
	s.commit()
	return true
}

func (s *Session) RemoveText(id string) bool {
	i := s.textIndex(id)
	if i < 0 {
		return false
	}
	s.draft.TextElements = append(s.draft.TextElements[:i], s.draft.TextElements[i+1:]...)
	if s.sel.set && s.sel.kind == KindText && s.sel.id == id {
		s.sel = selection{}
	}
	s.commit()
	return true
}

// UpdateSlot replaces a slot's fields in place, keyed by id. Label edits and
// the like mark the draft dirty without a history snapshot.
func (s *Session) UpdateSlot(slot worldcfg.SlotConfig) bool {
	i := s.slotIndex(slot.ID)
	if i < 0 || !slot.BuildingType.Valid() {
		return false
	}
	s.draft.Slots[i] = slot
	s.dirty = true
	return true
}

// UpdateText replaces a text overlay's fields in place, keyed by id.
func (s *Session) UpdateText(el worldcfg.TextElement) bool {
	i := s.textIndex(el.ID)
	if i < 0 {
		return false
	}
	s.draft.TextElements[i] = el
	s.dirty = true
	return true
}

func (s *Session) SetBackground(path string) {
	s.draft.BackgroundImagePath = path
	s.commit()
}

func (s *Session) SetWorldScale(v float64) {
	s.draft.WorldScale = worldcfg.ClampWorldScale(v)
	s.commit()
}

func (s *Session) SetTheme(id string) {
	if id == "" {
		id = worldcfg.DefaultThemeID
	}
	s.draft.BaseThemeID = id
	s.dirty = true
}

func (s *Session) SetPublished(v bool) {
	s.draft.IsPublished = v
	s.dirty = true
}

// BeginDrag starts a continuous move of a slot or overlay. Movement updates
// the position directly; exactly one history commit happens at EndDrag.
func (s *Session) BeginDrag(id string, kind Kind) bool {
	if s.drag.active || !s.entityExists(id, kind) {
		return false
	}
	s.drag = dragState{id: id, kind: kind, active: true}
	s.sel = selection{id: id, kind: kind, set: true}
	return true
}

// DragTo moves the dragged entity to a normalized position, clamped so
// markers stay away from the world edges.
func (s *Session) DragTo(x, y float64) bool {
	if !s.drag.active {
		return false
	}
	x, y = clampDrag(x), clampDrag(y)
	switch s.drag.kind {
	case KindSlot:
		i := s.slotIndex(s.drag.id)
		if i < 0 {
			return false
		}
		s.draft.Slots[i].X = x
		s.draft.Slots[i].Y = y
	case KindText:
		i := s.textIndex(s.drag.id)
		if i < 0 {
			return false
		}
		s.draft.TextElements[i].X = x
		s.draft.TextElements[i].Y = y
	}
	s.drag.moved = true
	return true
}

// EndDrag releases the drag and, if the entity moved, commits a single
// snapshot for the whole gesture.
func (s *Session) EndDrag() {
	moved := s.drag.active && s.drag.moved
	s.drag = dragState{}
	if moved {
		s.commit()
	}
}

func (s *Session) Undo() bool {
	snap, ok := s.history.Undo()
	if !ok {
		return false
	}
	s.restore(snap)
	return true
}

func (s *Session) Redo() bool {
	snap, ok := s.history.Redo()
	if !ok {
		return false
	}
	s.restore(snap)
	return true
}

// MarkSaving flips the transient status indicator to saving.
func (s *Session) MarkSaving() { s.status = StatusSaving }

// MarkSaved records a successful save and clears the dirty flag.
func (s *Session) MarkSaved() {
	s.status = StatusSaved
	s.dirty = false
}

// MarkSaveFailed records a failed save. The draft is kept; edits are never
// lost to a failed save.
func (s *Session) MarkSaveFailed() { s.status = StatusError }

// AckStatus returns the indicator to idle after the UI has shown the
// saved/error state.
func (s *Session) AckStatus() { s.status = StatusIdle }

func clampDrag(v float64) float64 {
	if v < dragMin {
		return dragMin
	}
	if v > dragMax {
		return dragMax
	}
	return v
}
