package editor

import (
	"github.com/google/uuid"

	"pixelworld.dev/internal/worldcfg"
)

// Import populates a draft from a persisted record. A nil record yields the
// default world; an empty slot list is replaced by the default template's
// slots so a world is never empty.
func Import(username string, rec *worldcfg.WorldConfig) worldcfg.WorldConfig {
	if rec == nil {
		return worldcfg.WorldConfig{
			Username:     username,
			BaseThemeID:  worldcfg.DefaultThemeID,
			WorldScale:   worldcfg.DefaultWorldScale,
			Slots:        worldcfg.DefaultSlots(),
			TextElements: nil,
		}
	}
	cfg := *rec
	cfg.Username = username
	if cfg.BaseThemeID == "" {
		cfg.BaseThemeID = worldcfg.DefaultThemeID
	}
	if cfg.WorldScale == 0 {
		cfg.WorldScale = worldcfg.DefaultWorldScale
	} else {
		cfg.WorldScale = worldcfg.ClampWorldScale(cfg.WorldScale)
	}
	if len(cfg.Slots) == 0 {
		cfg.Slots = worldcfg.DefaultSlots()
	} else {
		cfg.Slots = worldcfg.CloneSlots(cfg.Slots)
	}
	cfg.TextElements = worldcfg.CloneTextElements(cfg.TextElements)
	return cfg
}

// Export reads the draft into a persistence-shaped record. Entities that were
// created without an id get one here; unset optional fields stay empty and
// are omitted by the record's encoding.
func Export(draft worldcfg.WorldConfig) worldcfg.WorldConfig {
	out := draft
	out.Slots = worldcfg.CloneSlots(draft.Slots)
	out.TextElements = worldcfg.CloneTextElements(draft.TextElements)
	for i := range out.Slots {
		if out.Slots[i].ID == "" {
			out.Slots[i].ID = uuid.NewString()
		}
	}
	for i := range out.TextElements {
		if out.TextElements[i].ID == "" {
			out.TextElements[i].ID = uuid.NewString()
		}
	}
	return out
}
