package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"pixelworld.dev/internal/auth"
	"pixelworld.dev/internal/editor"
	"pixelworld.dev/internal/github"
	"pixelworld.dev/internal/persistence/r2s3"
	"pixelworld.dev/internal/persistence/worlddb"
	"pixelworld.dev/internal/protocol"
	"pixelworld.dev/internal/tuning"
	"pixelworld.dev/internal/worldcfg"
)

// WorldStore is the persistence surface the API writes through. Nil in
// deployments without a database binding; the API then degrades to read-only.
type WorldStore interface {
	GetWorld(ctx context.Context, username string) (*worldcfg.WorldConfig, error)
	UpsertWorld(ctx context.Context, userID, username string, cfg worldcfg.WorldConfig) (*worldcfg.WorldConfig, error)
	EnsureUser(ctx context.Context, id, login, avatarURL string) error
}

// Uploader stores background images. Nil when no object-store binding exists.
type Uploader interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
	PublicURL(key string) string
}

// Exporter mirrors saved configurations. Optional.
type Exporter interface {
	Enqueue(username string, cfg worldcfg.WorldConfig)
}

// MetadataSource serves profile and readme lookups.
type MetadataSource interface {
	GetProfile(ctx context.Context, handle string) (github.Profile, error)
	GetReadme(ctx context.Context, owner, repo string) (string, error)
}

type Config struct {
	Store    WorldStore
	Objects  Uploader
	Exports  Exporter
	Metadata MetadataSource
	Auth     *auth.Service
	Tuning   tuning.Tuning
	Logger   *log.Logger

	// Templates gates base world layouts by total star count. Nil means only
	// the built-in default layout is offered.
	Templates *worldcfg.Templates

	// SaveSchemaPath points at the world_save JSON schema.
	SaveSchemaPath string
}

// Server is the HTTP surface in front of the editor and persistence layers.
type Server struct {
	cfg        Config
	log        *log.Logger
	saveSchema *jsonschema.Schema
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Metadata == nil {
		return nil, fmt.Errorf("metadata source required")
	}
	schema, err := jsonschema.Compile(cfg.SaveSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("compile save schema: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		cfg:        cfg,
		log:        logger,
		saveSchema: schema,
	}, nil
}

// Register installs the API routes on a mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/world/", s.handleWorldGet)
	mux.HandleFunc("/api/world/save", s.handleWorldSave)
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/templates/", s.handleTemplates)
	mux.HandleFunc("/api/profile/", s.handleProfile)
	mux.HandleFunc("/api/readme/", s.handleReadme)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/auth/callback", s.handleCallback)
	mux.HandleFunc("/api/auth/session", s.handleSession)
	mux.HandleFunc("/api/auth/logout", s.handleLogout)
}

func (s *Server) writeError(w http.ResponseWriter, code, msg string) {
	s.writeErrorStatus(w, protocol.HTTPStatus(code), code, msg)
}

// writeErrorStatus is for the cases where one code maps to two statuses:
// E_UNAUTHORIZED is 401 without a session, 403 for a wrong-owner session.
func (s *Server) writeErrorStatus(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/world/{username} returns the published configuration, or
// {"world":null}. Drafts are visible only to their owner via ?draft=1.
func (s *Server) handleWorldGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	username := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/world/"), "/")
	if username == "" || strings.Contains(username, "/") {
		s.writeError(w, protocol.ErrProtoBadRequest, "username required")
		return
	}
	if s.cfg.Store == nil {
		writeJSON(w, map[string]any{"world": nil})
		return
	}

	cfg, err := s.cfg.Store.GetWorld(r.Context(), username)
	if err != nil {
		s.log.Printf("[httpapi] get world %s: %v", username, err)
		s.writeError(w, protocol.ErrStorage, "world store unavailable")
		return
	}
	if cfg == nil {
		writeJSON(w, map[string]any{"world": nil})
		return
	}
	if !cfg.IsPublished {
		id := s.viewer(r)
		wantDraft := r.URL.Query().Get("draft") == "1"
		if !wantDraft || !id.Owns(username) {
			writeJSON(w, map[string]any{"world": nil})
			return
		}
	}
	writeJSON(w, map[string]any{"world": cfg})
}

type savePayload struct {
	Username string               `json:"username"`
	Config   worldcfg.WorldConfig `json:"config"`
}

// POST /api/world/save persists the authenticated owner's draft. Identity
// mismatch rejects before anything is written.
func (s *Server) handleWorldSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := s.viewer(r)
	if id == nil {
		s.writeErrorStatus(w, http.StatusUnauthorized, protocol.ErrUnauthorized, "sign in to save")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, protocol.ErrProtoBadRequest, "read body")
		return
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		s.writeError(w, protocol.ErrValidation, "malformed json")
		return
	}
	if err := s.saveSchema.Validate(raw); err != nil {
		s.writeError(w, protocol.ErrValidation, err.Error())
		return
	}

	var payload savePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, protocol.ErrValidation, "malformed payload")
		return
	}
	if !id.Owns(payload.Username) {
		s.writeError(w, protocol.ErrUnauthorized, "cannot save another identity's world")
		return
	}
	if err := validateSlots(payload.Config.Slots); err != nil {
		s.writeError(w, protocol.ErrValidation, err.Error())
		return
	}
	if s.cfg.Store == nil {
		s.writeError(w, protocol.ErrStorage, "read-only deployment")
		return
	}

	// Normalize before persisting: clamp scale, fill defaults for empties.
	cfg := editor.Import(payload.Username, &payload.Config)

	if err := s.cfg.Store.EnsureUser(r.Context(), id.UserID, id.Login, id.AvatarURL); err != nil {
		s.log.Printf("[httpapi] ensure user %s: %v", id.Login, err)
		s.writeError(w, protocol.ErrStorage, "store user")
		return
	}
	stored, err := s.cfg.Store.UpsertWorld(r.Context(), id.UserID, payload.Username, cfg)
	if err != nil {
		s.log.Printf("[httpapi] save world %s: %v", payload.Username, err)
		s.writeError(w, protocol.ErrStorage, "save world")
		return
	}
	if s.cfg.Exports != nil {
		s.cfg.Exports.Enqueue(stored.Username, *stored)
	}
	writeJSON(w, map[string]any{"world": stored})
}

// validateSlots enforces the placement invariants a persisted world must
// satisfy to ever open a scene again: unique slot ids and exactly one
// home-portal anchor. An empty list is fine; the importer substitutes the
// default layout.
func validateSlots(slots []worldcfg.SlotConfig) error {
	if len(slots) == 0 {
		return nil
	}
	anchors := 0
	seen := make(map[string]struct{}, len(slots))
	for _, sl := range slots {
		if _, dup := seen[sl.ID]; dup {
			return fmt.Errorf("duplicate slot id %q", sl.ID)
		}
		seen[sl.ID] = struct{}{}
		if sl.ID == worldcfg.AnchorSlotID {
			anchors++
		}
	}
	if anchors != 1 {
		return fmt.Errorf("expected exactly one %q slot, found %d", worldcfg.AnchorSlotID, anchors)
	}
	return nil
}

// POST /api/upload stores a background image under the owner's namespace.
// The size ceiling is enforced before anything reaches storage.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := s.viewer(r)
	if id == nil {
		s.writeErrorStatus(w, http.StatusUnauthorized, protocol.ErrUnauthorized, "sign in to upload")
		return
	}
	if s.cfg.Objects == nil {
		s.writeError(w, protocol.ErrStorage, "object storage not configured")
		return
	}

	maxBytes := s.cfg.Tuning.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	// Slack for the multipart envelope; the file itself is checked exactly.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(64<<10))

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, protocol.ErrValidation, "multipart file field required")
		return
	}
	defer file.Close()

	if header.Size > maxBytes {
		s.writeError(w, protocol.ErrValidation,
			fmt.Sprintf("file exceeds %d byte limit", maxBytes))
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		s.writeError(w, protocol.ErrProtoBadRequest, "read upload")
		return
	}
	if int64(len(data)) > maxBytes {
		s.writeError(w, protocol.ErrValidation,
			fmt.Sprintf("file exceeds %d byte limit", maxBytes))
		return
	}

	contentType := sniffImageType(header, data)
	if !strings.HasPrefix(contentType, "image/") {
		s.writeError(w, protocol.ErrValidation, "only image uploads are accepted")
		return
	}

	key := r2s3.BuildKey(id.Login, "background", extFor(contentType))
	if err := s.cfg.Objects.PutObject(r.Context(), key, contentType, data); err != nil {
		s.log.Printf("[httpapi] upload %s: %v", key, err)
		s.writeError(w, protocol.ErrStorage, "store upload")
		return
	}
	writeJSON(w, map[string]any{"path": key, "url": s.cfg.Objects.PublicURL(key)})
}

// GET /api/profile/{username}
type templateInfo struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	BackgroundKey string                `json:"backgroundKey"`
	RequiredStars int                   `json:"requiredStars"`
	Slots         []worldcfg.SlotConfig `json:"slots,omitempty"`
}

// GET /api/templates/{username} lists the base layouts unlocked by that
// user's total star count. Unknown profiles still get the default layout.
func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	username := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/templates/"), "/")
	if username == "" || strings.Contains(username, "/") {
		s.writeError(w, protocol.ErrProtoBadRequest, "username required")
		return
	}

	stars := 0
	if p, err := s.cfg.Metadata.GetProfile(r.Context(), username); err == nil {
		stars = p.TotalStars
	} else if !errors.Is(err, github.ErrNotFound) {
		s.log.Printf("[httpapi] templates %s: %v", username, err)
	}

	avail := s.cfg.Templates.Available(stars)
	out := make([]templateInfo, 0, len(avail))
	for _, t := range avail {
		out = append(out, templateInfo{
			ID:            t.ID,
			Name:          t.Name,
			BackgroundKey: t.BackgroundKey,
			RequiredStars: t.RequiredStars,
			Slots:         worldcfg.CloneSlots(t.Slots),
		})
	}
	writeJSON(w, map[string]any{"templates": out, "totalStars": stars})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	username := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/profile/"), "/")
	if username == "" || strings.Contains(username, "/") {
		s.writeError(w, protocol.ErrProtoBadRequest, "username required")
		return
	}
	p, err := s.cfg.Metadata.GetProfile(r.Context(), username)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			s.writeError(w, protocol.ErrNotFound, "profile not found")
			return
		}
		s.log.Printf("[httpapi] profile %s: %v", username, err)
		s.writeError(w, protocol.ErrUpstream, "metadata provider unavailable")
		return
	}
	writeJSON(w, map[string]any{
		"profile":             p,
		"totalStarsFormatted": github.FormatStars(p.TotalStars),
	})
}

// GET /api/readme/{owner}/{repo}
func (s *Server) handleReadme(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/readme/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		s.writeError(w, protocol.ErrProtoBadRequest, "owner and repo required")
		return
	}
	md, err := s.cfg.Metadata.GetReadme(r.Context(), parts[0], parts[1])
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			s.writeError(w, protocol.ErrNotFound, "readme not found")
			return
		}
		s.log.Printf("[httpapi] readme %s/%s: %v", parts[0], parts[1], err)
		s.writeError(w, protocol.ErrUpstream, "metadata provider unavailable")
		return
	}
	writeJSON(w, map[string]any{"markdown": md})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Auth == nil {
		s.writeError(w, protocol.ErrStorage, "auth not configured")
		return
	}
	url, state := s.cfg.Auth.LoginURL()
	http.SetCookie(w, &http.Cookie{
		Name: "pw_oauth_state", Value: state, Path: "/", HttpOnly: true, MaxAge: 600,
	})
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Auth == nil {
		s.writeError(w, protocol.ErrStorage, "auth not configured")
		return
	}
	state := r.URL.Query().Get("state")
	ck, err := r.Cookie("pw_oauth_state")
	if err != nil || state == "" || ck.Value != state {
		s.writeError(w, protocol.ErrUnauthorized, "state mismatch")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		s.writeError(w, protocol.ErrProtoBadRequest, "code required")
		return
	}
	id, err := s.cfg.Auth.Exchange(r.Context(), code)
	if err != nil {
		s.log.Printf("[httpapi] oauth exchange: %v", err)
		s.writeError(w, protocol.ErrUpstream, "identity provider unavailable")
		return
	}
	if s.cfg.Store != nil {
		if err := s.cfg.Store.EnsureUser(r.Context(), id.UserID, id.Login, id.AvatarURL); err != nil {
			s.log.Printf("[httpapi] ensure user %s: %v", id.Login, err)
		}
	}
	s.cfg.Auth.Issue(w, id)
	http.Redirect(w, r, "/"+strings.ToLower(id.Login), http.StatusFound)
}

// GET /api/auth/session returns the viewer, {"user":null} for anonymous.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := s.viewer(r)
	if id == nil {
		writeJSON(w, map[string]any{"user": nil})
		return
	}
	writeJSON(w, map[string]any{"user": map[string]string{
		"id":     id.UserID,
		"login":  id.Login,
		"avatar": id.AvatarURL,
	}})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.Auth != nil {
		s.cfg.Auth.Destroy(w)
	}
	writeJSON(w, map[string]any{"ok": true})
}

// viewer returns the authenticated identity, nil for anonymous.
func (s *Server) viewer(r *http.Request) *auth.Identity {
	if s.cfg.Auth == nil {
		return nil
	}
	return s.cfg.Auth.Current(r)
}

// ViewerLogin adapts the session check for the websocket upgrade path.
func (s *Server) ViewerLogin(r *http.Request) string {
	if id := s.viewer(r); id != nil {
		return id.Login
	}
	return ""
}

func sniffImageType(header *multipart.FileHeader, data []byte) string {
	if ct := header.Header.Get("Content-Type"); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return http.DetectContentType(data)
}

func extFor(contentType string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "img"
	}
}

// WorldStoreOrNil keeps wiring terse at the call site: a nil *worlddb.Store
// must become a nil interface, not a typed nil.
func WorldStoreOrNil(s *worlddb.Store) WorldStore {
	if s == nil {
		return nil
	}
	return s
}
