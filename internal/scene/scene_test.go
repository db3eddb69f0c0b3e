package scene

import (
	"context"
	"testing"
	"time"

	"pixelworld.dev/internal/worldcfg"
)

func testScene(t *testing.T, out chan Frame) *Scene {
	t.Helper()
	reg := testRegistry(t)
	s, err := New(Config{
		ID:                "scene_test",
		TickRateHz:        30,
		Width:             1000,
		Height:            1000,
		PlayerSpeed:       280,
		InteractionRadius: 70,
	}, reg, out)
	if err != nil {
		t.Fatalf("new scene: %v", err)
	}
	return s
}

func TestScene_StepOnce_MovesAndEngages(t *testing.T) {
	s := testScene(t, nil)

	// Spawn is (500,600); the anchor sits at (500,470). Walk up until the
	// anchor engages.
	var engaged bool
	for i := 0; i < 600; i++ {
		f := s.StepOnce(Input{Up: true}, nil, nil)
		if f.ActiveZoneID != "" {
			if f.ActiveZoneID != worldcfg.AnchorSlotID {
				t.Fatalf("engaged %q, want anchor", f.ActiveZoneID)
			}
			if !f.ActionBarOpen {
				t.Fatalf("action bar must open with an active zone")
			}
			engaged = true
			break
		}
	}
	if !engaged {
		t.Fatalf("actor never engaged the anchor")
	}
}

func TestScene_StepOnce_DismissSuppressesReEntry(t *testing.T) {
	s := testScene(t, nil)

	var f Frame
	for i := 0; i < 600; i++ {
		f = s.StepOnce(Input{Up: true}, nil, nil)
		if f.ActiveZoneID != "" {
			break
		}
	}
	if f.ActiveZoneID == "" {
		t.Fatalf("setup: no zone engaged")
	}

	f = s.StepOnce(Input{}, []Act{{Kind: ActDismiss}}, nil)
	if f.ActiveZoneID != "" || f.ActionBarOpen {
		t.Fatalf("dismiss should close the surface: %+v", f)
	}

	// Standing still inside the radius must not re-engage.
	for i := 0; i < 10; i++ {
		f = s.StepOnce(Input{}, nil, nil)
		if f.ActiveZoneID != "" {
			t.Fatalf("dismissed zone re-engaged without leaving radius")
		}
	}
}

func TestScene_SetBuildingCommand(t *testing.T) {
	s := testScene(t, nil)

	f := s.StepOnce(Input{}, nil, []Command{{SlotID: "slot-2", BuildingType: worldcfg.BuildingWindmill}})
	if f.Zones == nil {
		t.Fatalf("zone change should publish a zone snapshot")
	}
	var found bool
	for _, z := range f.Zones {
		if z.ID == "slot-2" {
			found = true
			if z.BuildingType != worldcfg.BuildingWindmill {
				t.Fatalf("building type not applied: %+v", z)
			}
		}
	}
	if !found {
		t.Fatalf("slot-2 missing from snapshot")
	}

	// No change: no snapshot.
	f = s.StepOnce(Input{}, nil, []Command{{SlotID: "slot-2", BuildingType: worldcfg.BuildingType("bogus")}})
	if f.Zones != nil {
		t.Fatalf("invalid command must not publish zones")
	}
}

func TestScene_RunEmitsFrames(t *testing.T) {
	out := make(chan Frame, 4)
	s := testScene(t, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	s.Input() <- Input{Right: true}

	deadline := time.After(2 * time.Second)
	var first, later Frame
	select {
	case first = <-out:
	case <-deadline:
		t.Fatalf("no frame within deadline")
	}
	for i := 0; i < 5; i++ {
		select {
		case later = <-out:
		case <-deadline:
			t.Fatalf("frames stopped")
		}
	}
	if later.Tick <= first.Tick {
		t.Fatalf("ticks must advance: %d then %d", first.Tick, later.Tick)
	}
	if later.PlayerX <= first.PlayerX {
		t.Fatalf("held right input should move the player: %v then %v", first.PlayerX, later.PlayerX)
	}
	if later.Pulse < 0 || later.Pulse > 1 {
		t.Fatalf("pulse out of range: %v", later.Pulse)
	}
}
