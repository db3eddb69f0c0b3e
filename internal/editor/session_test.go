package editor

import (
	"fmt"
	"testing"

	"pixelworld.dev/internal/worldcfg"
)

func loadedSession(t *testing.T, rec *worldcfg.WorldConfig) *Session {
	t.Helper()
	s := NewSession()
	tok := s.BeginLoad("alice")
	if !s.CompleteLoad(tok, rec) {
		t.Fatalf("load discarded")
	}
	return s
}

func TestSession_UndoRestoresPreOpState(t *testing.T) {
	s := loadedSession(t, nil)
	before := s.Draft()

	s.SetBackground("alice/background-123.png")
	if s.Draft().BackgroundImagePath == before.BackgroundImagePath {
		t.Fatalf("mutation did not apply")
	}

	if !s.Undo() {
		t.Fatalf("undo should succeed after a mutation")
	}
	if got := s.Draft().BackgroundImagePath; got != before.BackgroundImagePath {
		t.Fatalf("undo restored %q, want %q", got, before.BackgroundImagePath)
	}
	if !s.Dirty() {
		t.Fatalf("any restore marks the draft dirty")
	}

	if !s.Redo() {
		t.Fatalf("redo should succeed after undo")
	}
	if got := s.Draft().BackgroundImagePath; got != "alice/background-123.png" {
		t.Fatalf("redo restored %q, want post-op state", got)
	}
}

func TestSession_UndoAtBaselineIsNoop(t *testing.T) {
	s := loadedSession(t, nil)
	if s.Undo() {
		t.Fatalf("undo right after load must be a no-op")
	}
	if s.Redo() {
		t.Fatalf("redo at the tip must be a no-op")
	}
	if s.Dirty() {
		t.Fatalf("no-op navigation must not dirty the draft")
	}
}

func TestSession_HistoryCap(t *testing.T) {
	s := loadedSession(t, nil)
	for i := 0; i < 60; i++ {
		s.SetBackground(fmt.Sprintf("alice/background-%d.png", i))
	}
	if got := s.history.Len(); got != 50 {
		t.Fatalf("history holds %d entries, want 50", got)
	}

	// Walk all the way back: the oldest surviving entry is push #10.
	var undos int
	for s.Undo() {
		undos++
	}
	if undos != 49 {
		t.Fatalf("%d undos before bottom, want 49", undos)
	}
	if got := s.Draft().BackgroundImagePath; got != "alice/background-10.png" {
		t.Fatalf("oldest surviving state %q, want background-10", got)
	}
}

func TestSession_AnchorRemovalIsNoop(t *testing.T) {
	s := loadedSession(t, nil)
	n := len(s.Draft().Slots)
	if s.RemoveSlot(worldcfg.AnchorSlotID) {
		t.Fatalf("anchor removal must report a no-op")
	}
	if got := len(s.Draft().Slots); got != n {
		t.Fatalf("anchor removal changed slot count %d -> %d", n, got)
	}
	if s.Dirty() {
		t.Fatalf("no-op removal must not dirty the draft")
	}
}

func TestSession_RemoveSlotClearsSelection(t *testing.T) {
	s := loadedSession(t, nil)
	if !s.Select("slot-1", KindSlot) {
		t.Fatalf("select slot-1")
	}
	if !s.RemoveSlot("slot-1") {
		t.Fatalf("remove slot-1")
	}
	if _, _, ok := s.Selection(); ok {
		t.Fatalf("deleting the selected entity must clear the selection")
	}
}

func TestSession_DragClampsAndCommitsOnce(t *testing.T) {
	s := loadedSession(t, nil)
	before := s.history.Len()

	if !s.BeginDrag("slot-1", KindSlot) {
		t.Fatalf("begin drag")
	}
	s.DragTo(0.5, 0.5)
	s.DragTo(-2.0, 1.7)
	s.EndDrag()

	slots := s.Draft().Slots
	var slot worldcfg.SlotConfig
	for _, sl := range slots {
		if sl.ID == "slot-1" {
			slot = sl
		}
	}
	if slot.X != 0.05 || slot.Y != 0.95 {
		t.Fatalf("drag position (%v,%v), want clamped (0.05,0.95)", slot.X, slot.Y)
	}
	if got := s.history.Len() - before; got != 1 {
		t.Fatalf("drag produced %d commits, want exactly 1", got)
	}

	// Undo restores the pre-drag position in one step.
	if !s.Undo() {
		t.Fatalf("undo after drag")
	}
	for _, sl := range s.Draft().Slots {
		if sl.ID == "slot-1" && (sl.X != 0.17 || sl.Y != 0.36) {
			t.Fatalf("undo left slot-1 at (%v,%v)", sl.X, sl.Y)
		}
	}
}

func TestSession_StationaryDragDoesNotCommit(t *testing.T) {
	s := loadedSession(t, nil)
	before := s.history.Len()
	if !s.BeginDrag("slot-2", KindSlot) {
		t.Fatalf("begin drag")
	}
	s.EndDrag()
	if got := s.history.Len(); got != before {
		t.Fatalf("press-release without movement must not commit")
	}
}

func TestSession_AddTextIsCompound(t *testing.T) {
	s := loadedSession(t, nil)
	s.ActivateTool(ToolAddText)

	if s.Tool() != ToolAddText {
		t.Fatalf("tool not activated")
	}
	id, kind, ok := s.Selection()
	if !ok || kind != KindText {
		t.Fatalf("add-text must select the created overlay")
	}
	texts := s.Draft().TextElements
	if len(texts) != 1 || texts[0].ID != id {
		t.Fatalf("created overlay missing from draft")
	}

	// The creation is one undoable step.
	if !s.Undo() {
		t.Fatalf("undo add-text")
	}
	if len(s.Draft().TextElements) != 0 {
		t.Fatalf("undo did not remove the created overlay")
	}
	if _, _, ok := s.Selection(); ok {
		t.Fatalf("selection must clear when the selected entity vanishes")
	}
}

func TestSession_UpdateInPlaceSkipsHistory(t *testing.T) {
	s := loadedSession(t, nil)
	before := s.history.Len()

	slot := s.Draft().Slots[0]
	slot.Label = "Renamed"
	if !s.UpdateSlot(slot) {
		t.Fatalf("update slot")
	}
	if s.history.Len() != before {
		t.Fatalf("in-place update must not snapshot")
	}
	if !s.Dirty() {
		t.Fatalf("in-place update must dirty the draft")
	}

	slot.BuildingType = worldcfg.BuildingType("bogus")
	if s.UpdateSlot(slot) {
		t.Fatalf("invalid building type must be rejected")
	}
}

func TestSession_StaleLoadDiscarded(t *testing.T) {
	s := NewSession()
	old := s.BeginLoad("alice")
	fresh := s.BeginLoad("bob")

	aliceRec := &worldcfg.WorldConfig{BaseThemeID: "woody", WorldScale: 2.0}
	if s.CompleteLoad(old, aliceRec) {
		t.Fatalf("superseded load must be discarded")
	}
	if !s.CompleteLoad(fresh, nil) {
		t.Fatalf("current load must land")
	}
	if s.Draft().Username != "bob" {
		t.Fatalf("draft belongs to %q, want bob", s.Draft().Username)
	}
}

func TestSession_SaveStatusLifecycle(t *testing.T) {
	s := loadedSession(t, nil)
	s.SetWorldScale(2.0)

	s.MarkSaving()
	if s.Status() != StatusSaving {
		t.Fatalf("status %q, want saving", s.Status())
	}

	draftBefore := s.Draft()
	s.MarkSaveFailed()
	if s.Status() != StatusError {
		t.Fatalf("status %q, want error", s.Status())
	}
	if !s.Dirty() {
		t.Fatalf("failed save must keep the draft dirty")
	}
	if s.Draft().WorldScale != draftBefore.WorldScale {
		t.Fatalf("failed save must not touch the draft")
	}

	s.MarkSaving()
	s.MarkSaved()
	if s.Status() != StatusSaved || s.Dirty() {
		t.Fatalf("successful save must clear dirty")
	}
	s.AckStatus()
	if s.Status() != StatusIdle {
		t.Fatalf("ack returns indicator to idle")
	}
}

func TestSession_WorldScaleClamped(t *testing.T) {
	s := loadedSession(t, nil)
	s.SetWorldScale(9.0)
	if got := s.Draft().WorldScale; got != worldcfg.MaxWorldScale {
		t.Fatalf("scale %v, want clamped to %v", got, worldcfg.MaxWorldScale)
	}
	s.SetWorldScale(0.1)
	if got := s.Draft().WorldScale; got != worldcfg.MinWorldScale {
		t.Fatalf("scale %v, want clamped to %v", got, worldcfg.MinWorldScale)
	}
}
