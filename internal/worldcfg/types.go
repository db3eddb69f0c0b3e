package worldcfg

// BuildingType is an enumerated building variant a slot can render as.
type BuildingType string

const (
	BuildingTreehouse     BuildingType = "treehouse"
	BuildingMushroomHouse BuildingType = "mushroom-house"
	BuildingCottage       BuildingType = "cottage"
	BuildingTower         BuildingType = "tower"
	BuildingWindmill      BuildingType = "windmill"
	BuildingPortal        BuildingType = "portal"
)

var knownBuildingTypes = map[BuildingType]struct{}{
	BuildingTreehouse:     {},
	BuildingMushroomHouse: {},
	BuildingCottage:       {},
	BuildingTower:         {},
	BuildingWindmill:      {},
	BuildingPortal:        {},
}

func (b BuildingType) Valid() bool {
	_, ok := knownBuildingTypes[b]
	return ok
}

// AnchorSlotID is the reserved id of the non-deletable "home" slot. Exactly one
// slot per world carries it.
const AnchorSlotID = "home-portal"

const (
	DefaultThemeID    = "woody"
	DefaultWorldScale = 1.8

	// WorldScale is clamped to this range on import and in the editor.
	MinWorldScale = 1.2
	MaxWorldScale = 2.5
)

// SlotConfig is a placed interactive slot. X/Y are normalized fractions (0-1)
// of the world size; Width/Height are relative to the building's default size.
type SlotConfig struct {
	ID           string       `json:"id" yaml:"id"`
	X            float64      `json:"x" yaml:"x"`
	Y            float64      `json:"y" yaml:"y"`
	Width        float64      `json:"width" yaml:"width"`
	Height       float64      `json:"height" yaml:"height"`
	Label        string       `json:"label" yaml:"label"`
	BuildingType BuildingType `json:"buildingType" yaml:"building_type"`
}

// TextElement is a free-text overlay. Paint order is ascending ZIndex.
type TextElement struct {
	ID              string  `json:"id"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Content         string  `json:"content"`
	FontSize        int     `json:"fontSize"`
	FontFamily      string  `json:"fontFamily"`
	Color           string  `json:"color"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	Rotation        float64 `json:"rotation"`
	Scale           float64 `json:"scale"`
	ZIndex          int     `json:"zIndex"`
}

// WorldConfig is the persisted configuration record for one identity.
type WorldConfig struct {
	ID                  string        `json:"id,omitempty"`
	Username            string        `json:"username,omitempty"`
	BaseThemeID         string        `json:"baseThemeId"`
	BackgroundImagePath string        `json:"backgroundImagePath,omitempty"`
	WorldScale          float64       `json:"worldScale"`
	Slots               []SlotConfig  `json:"slots"`
	TextElements        []TextElement `json:"textElements"`
	IsPublished         bool          `json:"isPublished"`
	CreatedAt           int64         `json:"createdAt,omitempty"`
	UpdatedAt           int64         `json:"updatedAt,omitempty"`
}

// CloneSlots returns a deep copy. Snapshot-based undo depends on it.
func CloneSlots(in []SlotConfig) []SlotConfig {
	if in == nil {
		return nil
	}
	out := make([]SlotConfig, len(in))
	copy(out, in)
	return out
}

func CloneTextElements(in []TextElement) []TextElement {
	if in == nil {
		return nil
	}
	out := make([]TextElement, len(in))
	copy(out, in)
	return out
}

// DefaultSlots is the built-in template used when an identity has no stored
// configuration (or a stored configuration with an empty slot list).
func DefaultSlots() []SlotConfig {
	return []SlotConfig{
		{ID: "slot-1", X: 0.17, Y: 0.36, Width: 1, Height: 1, Label: "Project 1", BuildingType: BuildingTreehouse},
		{ID: "slot-2", X: 0.83, Y: 0.36, Width: 1, Height: 1, Label: "Project 2", BuildingType: BuildingTreehouse},
		{ID: "slot-3", X: 0.14, Y: 0.70, Width: 1, Height: 1, Label: "Project 3", BuildingType: BuildingMushroomHouse},
		{ID: "slot-4", X: 0.86, Y: 0.70, Width: 1, Height: 1, Label: "Project 4", BuildingType: BuildingMushroomHouse},
		{ID: AnchorSlotID, X: 0.50, Y: 0.47, Width: 1, Height: 1, Label: "Home", BuildingType: BuildingPortal},
	}
}

// ClampWorldScale bounds a scale factor to the editor's allowed range. A zero
// (unset) scale maps to the default.
func ClampWorldScale(s float64) float64 {
	if s == 0 {
		return DefaultWorldScale
	}
	if s < MinWorldScale {
		return MinWorldScale
	}
	if s > MaxWorldScale {
		return MaxWorldScale
	}
	return s
}
