package worldcfg

import "testing"

func TestClampWorldScale(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, DefaultWorldScale},
		{1.0, MinWorldScale},
		{1.8, 1.8},
		{9.9, MaxWorldScale},
	}
	for _, c := range cases {
		if got := ClampWorldScale(c.in); got != c.want {
			t.Fatalf("ClampWorldScale(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestBuildingTypeValid(t *testing.T) {
	for _, bt := range []BuildingType{BuildingTreehouse, BuildingMushroomHouse, BuildingCottage, BuildingTower, BuildingWindmill, BuildingPortal} {
		if !bt.Valid() {
			t.Fatalf("%q must be valid", bt)
		}
	}
	if BuildingType("skyscraper").Valid() {
		t.Fatalf("unknown variant accepted")
	}
}

func TestDefaultSlotsHaveOneAnchor(t *testing.T) {
	anchors := 0
	for _, s := range DefaultSlots() {
		if s.ID == AnchorSlotID {
			anchors++
		}
	}
	if anchors != 1 {
		t.Fatalf("anchor count %d", anchors)
	}
}
