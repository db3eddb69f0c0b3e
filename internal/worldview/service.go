package worldview

import (
	"context"
	"errors"
	"log"
	"strings"

	"pixelworld.dev/internal/editor"
	"pixelworld.dev/internal/github"
	"pixelworld.dev/internal/protocol"
	"pixelworld.dev/internal/scene"
	"pixelworld.dev/internal/transport/ws"
	"pixelworld.dev/internal/tuning"
	"pixelworld.dev/internal/worldcfg"
)

// WorldStore is the slice of the persistence layer the viewer needs. A nil
// store is a valid deployment (read-only, default worlds only).
type WorldStore interface {
	GetWorld(ctx context.Context, username string) (*worldcfg.WorldConfig, error)
}

// ProfileSource provides repository metadata for zone binding.
type ProfileSource interface {
	GetProfile(ctx context.Context, handle string) (github.Profile, error)
}

// URLResolver maps a stored object key to its public URL.
type URLResolver func(key string) string

// Service assembles runnable scenes: stored configuration (or the default
// template) bound to the identity's repository metadata.
type Service struct {
	store    WorldStore
	profiles ProfileSource
	tun      tuning.Tuning
	resolve  URLResolver
	log      *log.Logger
}

func New(store WorldStore, profiles ProfileSource, tun tuning.Tuning, resolve URLResolver, logger *log.Logger) *Service {
	return &Service{store: store, profiles: profiles, tun: tun, resolve: resolve, log: logger}
}

// OpenScene builds a fresh scene for one websocket connection. Unpublished
// configurations are visible only to their owner; everyone else explores the
// default world for that profile. An unknown profile is a not-found.
func (s *Service) OpenScene(ctx context.Context, username, viewer string) (*ws.SceneSession, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	owner := viewer != "" && strings.EqualFold(viewer, username)

	profile, err := s.profiles.GetProfile(ctx, username)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			return nil, protocol.Errorf(protocol.ErrNotFound, "profile %s not found", username)
		}
		return nil, protocol.Errorf(protocol.ErrUpstream, "profile %s: %v", username, err)
	}

	cfg, err := s.loadConfig(ctx, username, owner)
	if err != nil {
		return nil, err
	}

	worldW := s.tun.BaseWorldWidth * cfg.WorldScale
	worldH := s.tun.BaseWorldHeight * cfg.WorldScale

	reg, err := scene.PlaceZones(cfg.Slots, worldW, worldH)
	if err != nil {
		return nil, protocol.Errorf(protocol.ErrValidation, "world %s: %v", username, err)
	}
	reg.BindRepos(repoMeta(profile.Repos))

	frames := make(chan scene.Frame, 8)
	sc, err := scene.New(scene.Config{
		ID:                "scene-" + username,
		TickRateHz:        s.tun.TickRateHz,
		Width:             worldW,
		Height:            worldH,
		PlayerSpeed:       s.tun.PlayerSpeed,
		InteractionRadius: s.tun.InteractionRadius,
	}, reg, frames)
	if err != nil {
		return nil, protocol.Errorf(protocol.ErrInternal, "scene %s: %v", username, err)
	}

	px, py := sc.Player()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SceneID:         "scene-" + username,
		World: protocol.WorldParams{
			TickRateHz:        s.tun.TickRateHz,
			Width:             worldW,
			Height:            worldH,
			PlayerSpeed:       s.tun.PlayerSpeed,
			InteractionRadius: s.tun.InteractionRadius,
		},
		Player: protocol.Vec2{X: px, Y: py},
	}
	for _, z := range sc.SnapshotZones() {
		welcome.Zones = append(welcome.Zones, ws.ZoneInfo(z))
	}
	for _, el := range cfg.TextElements {
		welcome.TextElements = append(welcome.TextElements, textInfo(el))
	}
	if cfg.BackgroundImagePath != "" && s.resolve != nil {
		welcome.BackgroundURL = s.resolve(cfg.BackgroundImagePath)
	}

	return &ws.SceneSession{
		Scene:         sc,
		Frames:        frames,
		Welcome:       welcome,
		OwnerControls: owner,
	}, nil
}

// loadConfig returns the stored record when the viewer may see it, falling
// back to the default world. Storage being absent or failing degrades to the
// default world rather than refusing the scene.
func (s *Service) loadConfig(ctx context.Context, username string, owner bool) (worldcfg.WorldConfig, error) {
	if s.store == nil {
		return editor.Import(username, nil), nil
	}
	rec, err := s.store.GetWorld(ctx, username)
	if err != nil {
		if s.log != nil {
			s.log.Printf("[worldview] load %s failed, serving default: %v", username, err)
		}
		return editor.Import(username, nil), nil
	}
	if rec == nil || (!rec.IsPublished && !owner) {
		return editor.Import(username, nil), nil
	}
	return editor.Import(username, rec), nil
}

func repoMeta(repos []github.Repo) []scene.RepoMeta {
	out := make([]scene.RepoMeta, 0, len(repos))
	for _, r := range repos {
		out = append(out, scene.RepoMeta{
			Name:        r.Name,
			FullName:    r.FullName,
			Description: r.Description,
			URL:         r.HTMLURL,
			Stars:       r.Stars,
			Forks:       r.Forks,
			Language:    r.Language,
		})
	}
	return out
}

func textInfo(el worldcfg.TextElement) protocol.TextInfo {
	return protocol.TextInfo{
		ID:              el.ID,
		X:               el.X,
		Y:               el.Y,
		Content:         el.Content,
		FontSize:        el.FontSize,
		FontFamily:      el.FontFamily,
		Color:           el.Color,
		BackgroundColor: el.BackgroundColor,
		Rotation:        el.Rotation,
		Scale:           el.Scale,
		ZIndex:          el.ZIndex,
	}
}
