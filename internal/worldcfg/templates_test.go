package worldcfg

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemplates(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadTemplates_MissingFileKeepsDefault(t *testing.T) {
	tpls, err := LoadTemplates(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tpls.Order) != 1 || tpls.Order[0] != DefaultThemeID {
		t.Fatalf("order %v", tpls.Order)
	}
	def := tpls.Get(DefaultThemeID)
	if len(def.Slots) != 5 {
		t.Fatalf("default slots %d", len(def.Slots))
	}
}

func TestLoadTemplates_StarGating(t *testing.T) {
	path := writeTemplates(t, `
templates:
  - id: crystal-cove
    name: Crystal Cove
    background_key: bg-crystal-cove
    required_stars: 500
  - id: sky-citadel
    name: Sky Citadel
    background_key: bg-sky-citadel
    required_stars: 5000
`)
	tpls, err := LoadTemplates(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	got := tpls.Available(600)
	if len(got) != 2 || got[0].ID != DefaultThemeID || got[1].ID != "crystal-cove" {
		t.Fatalf("available at 600 stars: %+v", got)
	}
	if all := tpls.Available(5000); len(all) != 3 {
		t.Fatalf("available at 5000 stars: %d", len(all))
	}
}

func TestLoadTemplates_RejectsMissingAnchor(t *testing.T) {
	path := writeTemplates(t, `
templates:
  - id: broken
    name: Broken
    slots:
      - id: slot-1
        x: 0.2
        y: 0.3
        building_type: cottage
        label: A
`)
	if _, err := LoadTemplates(path); err == nil {
		t.Fatalf("template without anchor slot must fail to load")
	}
}

func TestLoadTemplates_UnknownIDFallsBack(t *testing.T) {
	tpls, err := LoadTemplates("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := tpls.Get("nope"); got.ID != DefaultThemeID {
		t.Fatalf("fallback id %q", got.ID)
	}
}
