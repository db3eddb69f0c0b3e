package scene

import (
	"fmt"

	"pixelworld.dev/internal/worldcfg"
)

// Zone is a placed interactive marker at absolute world coordinates, bound to
// a building variant and, for non-anchor zones, optionally a repository.
type Zone struct {
	ID           string
	X            float64
	Y            float64
	BuildingType worldcfg.BuildingType
	Label        string

	Description  string
	RepoURL      string
	RepoFullName string
	Stars        int
	Forks        int
	Language     string
}

// RepoMeta is the linked-entity metadata bound onto a zone. Callers pass repos
// in descending-star order.
type RepoMeta struct {
	Name        string
	FullName    string
	Description string
	URL         string
	Stars       int
	Forks       int
	Language    string
}

// Registry holds a world's zones in placement order. Registry order is the tie
// break for proximity and the binding order for repositories.
type Registry struct {
	zones []*Zone
	byID  map[string]*Zone
}

// PlaceZones converts normalized slot positions into absolute-coordinate
// zones for a world of the given pixel size. A slot set without exactly one
// anchor is a configuration error at load time.
func PlaceZones(slots []worldcfg.SlotConfig, worldW, worldH float64) (*Registry, error) {
	if worldW <= 0 || worldH <= 0 {
		return nil, fmt.Errorf("invalid world size %gx%g", worldW, worldH)
	}
	anchors := 0
	r := &Registry{byID: make(map[string]*Zone, len(slots))}
	for _, s := range slots {
		if s.ID == "" {
			return nil, fmt.Errorf("slot with empty id")
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate slot id %q", s.ID)
		}
		if s.ID == worldcfg.AnchorSlotID {
			anchors++
		}
		z := &Zone{
			ID:           s.ID,
			X:            s.X * worldW,
			Y:            s.Y * worldH,
			BuildingType: s.BuildingType,
			Label:        s.Label,
		}
		r.zones = append(r.zones, z)
		r.byID[z.ID] = z
	}
	if anchors != 1 {
		return nil, fmt.Errorf("expected exactly one %q slot, found %d", worldcfg.AnchorSlotID, anchors)
	}
	return r, nil
}

// BindRepos binds repositories to non-anchor zones in registry order,
// overwriting label and linked metadata. The anchor keeps its defaults;
// surplus zones keep theirs; excess repos are dropped.
func (r *Registry) BindRepos(repos []RepoMeta) {
	i := 0
	for _, z := range r.zones {
		if z.ID == worldcfg.AnchorSlotID {
			continue
		}
		if i >= len(repos) {
			break
		}
		repo := repos[i]
		i++
		z.Label = repo.Name
		z.Description = repo.Description
		if z.Description == "" {
			z.Description = "No description available"
		}
		z.RepoURL = repo.URL
		z.RepoFullName = repo.FullName
		z.Stars = repo.Stars
		z.Forks = repo.Forks
		z.Language = repo.Language
	}
}

func (r *Registry) Zones() []*Zone { return r.zones }

func (r *Registry) Get(id string) *Zone { return r.byID[id] }

// SetBuildingType applies a customization command. Unknown slot ids and
// invalid variants are ignored.
func (r *Registry) SetBuildingType(slotID string, bt worldcfg.BuildingType) bool {
	z := r.byID[slotID]
	if z == nil || !bt.Valid() {
		return false
	}
	z.BuildingType = bt
	return true
}
