package worldcfg

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Template is a base world layout: an ordered list of normalized slot
// positions with default building types and labels. Templates beyond the
// default unlock by total star count.
type Template struct {
	ID            string       `yaml:"id"`
	Name          string       `yaml:"name"`
	BackgroundKey string       `yaml:"background_key"`
	RequiredStars int          `yaml:"required_stars"`
	Slots         []SlotConfig `yaml:"slots"`
}

type Templates struct {
	ByID  map[string]Template
	Order []string
}

type templatesFile struct {
	Templates []Template `yaml:"templates"`
}

// DefaultTemplate is always available, independent of any templates file.
func DefaultTemplate() Template {
	return Template{
		ID:            DefaultThemeID,
		Name:          "Enchanted Forest",
		BackgroundKey: "bg-" + DefaultThemeID,
		RequiredStars: 0,
		Slots:         DefaultSlots(),
	}
}

// LoadTemplates reads templates.yaml and validates each entry. A template
// whose slot list is non-empty must carry exactly one anchor slot; violating
// that is a configuration error, not recoverable at runtime.
func LoadTemplates(path string) (*Templates, error) {
	t := &Templates{ByID: map[string]Template{}}
	add := func(tpl Template) error {
		if tpl.ID == "" {
			return fmt.Errorf("template with empty id")
		}
		if _, dup := t.ByID[tpl.ID]; dup {
			return fmt.Errorf("duplicate template id %q", tpl.ID)
		}
		if err := validateTemplate(tpl); err != nil {
			return err
		}
		t.ByID[tpl.ID] = tpl
		t.Order = append(t.Order, tpl.ID)
		return nil
	}

	if err := add(DefaultTemplate()); err != nil {
		return nil, err
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return t, nil
			}
			return nil, err
		}
		var f templatesFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("templates.yaml: %w", err)
		}
		for _, tpl := range f.Templates {
			if tpl.ID == DefaultThemeID {
				continue
			}
			if err := add(tpl); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func validateTemplate(tpl Template) error {
	if len(tpl.Slots) == 0 {
		// Placeholder templates (locked, not yet designed) ship without slots.
		return nil
	}
	anchors := 0
	seen := map[string]struct{}{}
	for _, s := range tpl.Slots {
		if s.ID == "" {
			return fmt.Errorf("template %q: slot with empty id", tpl.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("template %q: duplicate slot id %q", tpl.ID, s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.ID == AnchorSlotID {
			anchors++
		}
		if !s.BuildingType.Valid() {
			return fmt.Errorf("template %q: slot %q: unknown building type %q", tpl.ID, s.ID, s.BuildingType)
		}
	}
	if anchors != 1 {
		return fmt.Errorf("template %q: expected exactly one %q slot, found %d", tpl.ID, AnchorSlotID, anchors)
	}
	return nil
}

// Get falls back to the default template for unknown ids.
func (t *Templates) Get(id string) Template {
	if t != nil {
		if tpl, ok := t.ByID[id]; ok {
			return tpl
		}
	}
	return DefaultTemplate()
}

// Available lists templates unlocked at the given total star count, cheapest
// requirement first.
func (t *Templates) Available(totalStars int) []Template {
	if t == nil {
		return []Template{DefaultTemplate()}
	}
	var out []Template
	for _, id := range t.Order {
		tpl := t.ByID[id]
		if tpl.RequiredStars <= totalStars {
			out = append(out, tpl)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RequiredStars < out[j].RequiredStars })
	return out
}
