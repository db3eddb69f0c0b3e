package worlddb

import (
	"context"
	"path/filepath"
	"testing"

	"pixelworld.dev/internal/worldcfg"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "worlds.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleConfig() worldcfg.WorldConfig {
	return worldcfg.WorldConfig{
		BaseThemeID: worldcfg.DefaultThemeID,
		WorldScale:  1.8,
		Slots:       worldcfg.DefaultSlots(),
		TextElements: []worldcfg.TextElement{
			{ID: "t1", X: 0.3, Y: 0.4, Content: "hello", FontSize: 24, Color: "#fff", Scale: 1},
			{ID: "t2", X: 0.6, Y: 0.2, Content: "world", FontSize: 16, Color: "#000", Scale: 1, ZIndex: 2},
		},
		IsPublished: true,
	}
}

func TestStore_GetWorldAbsent(t *testing.T) {
	s := openStore(t)
	cfg, err := s.GetWorld(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetWorld: %v", err)
	}
	if cfg != nil {
		t.Fatalf("absent identity must return nil, got %+v", cfg)
	}
}

func TestStore_UpsertRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.EnsureUser(ctx, "u1", "Alice", "https://example.com/a.png"); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	stored, err := s.UpsertWorld(ctx, "u1", "Alice", sampleConfig())
	if err != nil {
		t.Fatalf("UpsertWorld: %v", err)
	}
	if stored.Username != "alice" {
		t.Fatalf("username stored as %q, want lowercase", stored.Username)
	}
	if stored.ID == "" {
		t.Fatalf("world id not assigned")
	}

	// Reads are keyed case-insensitively.
	got, err := s.GetWorld(ctx, "ALICE")
	if err != nil {
		t.Fatalf("GetWorld: %v", err)
	}
	if got == nil {
		t.Fatalf("world not found after upsert")
	}
	if got.ID != stored.ID || !got.IsPublished || got.WorldScale != 1.8 {
		t.Fatalf("row mismatch: %+v", got)
	}
	if len(got.Slots) != 5 {
		t.Fatalf("slots: got %d, want 5", len(got.Slots))
	}
	if len(got.TextElements) != 2 || got.TextElements[0].Content != "hello" {
		t.Fatalf("text elements mismatch: %+v", got.TextElements)
	}
}

func TestStore_UpsertReplacesTextElements(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first, err := s.UpsertWorld(ctx, "u1", "alice", sampleConfig())
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	cfg := sampleConfig()
	cfg.TextElements = []worldcfg.TextElement{
		{ID: "t9", X: 0.1, Y: 0.1, Content: "only", FontSize: 12, Scale: 1},
	}
	second, err := s.UpsertWorld(ctx, "u1", "alice", cfg)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert must keep the original world id: %s vs %s", second.ID, first.ID)
	}

	got, err := s.GetWorld(ctx, "alice")
	if err != nil {
		t.Fatalf("GetWorld: %v", err)
	}
	if len(got.TextElements) != 1 || got.TextElements[0].ID != "t9" {
		t.Fatalf("old overlays must be fully replaced: %+v", got.TextElements)
	}
}

func TestStore_ElementsAssignedIDs(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	cfg := sampleConfig()
	cfg.TextElements = []worldcfg.TextElement{{X: 0.5, Y: 0.5, Content: "no id", FontSize: 14, Scale: 1}}
	if _, err := s.UpsertWorld(ctx, "u1", "alice", cfg); err != nil {
		t.Fatalf("UpsertWorld: %v", err)
	}
	got, err := s.GetWorld(ctx, "alice")
	if err != nil {
		t.Fatalf("GetWorld: %v", err)
	}
	if len(got.TextElements) != 1 || got.TextElements[0].ID == "" {
		t.Fatalf("overlay without id must get one on save: %+v", got.TextElements)
	}
}
