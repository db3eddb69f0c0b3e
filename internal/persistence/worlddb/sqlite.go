package worlddb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"pixelworld.dev/internal/worldcfg"
)

// Store persists user world configurations. One record per identity, keyed by
// the lowercase username; text overlays live in a child table that is fully
// replaced on every save.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			login TEXT NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS user_worlds (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL UNIQUE,
			base_theme_id TEXT NOT NULL,
			background_image_path TEXT NOT NULL DEFAULT '',
			world_scale REAL NOT NULL,
			slots_json TEXT NOT NULL,
			is_published INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_user_worlds_user ON user_worlds(user_id);`,
		`CREATE TABLE IF NOT EXISTS text_elements (
			id TEXT PRIMARY KEY,
			world_id TEXT NOT NULL REFERENCES user_worlds(id) ON DELETE CASCADE,
			x REAL NOT NULL,
			y REAL NOT NULL,
			content TEXT NOT NULL,
			font_size INTEGER NOT NULL,
			font_family TEXT NOT NULL DEFAULT '',
			color TEXT NOT NULL DEFAULT '',
			background_color TEXT NOT NULL DEFAULT '',
			rotation REAL NOT NULL DEFAULT 0,
			scale REAL NOT NULL DEFAULT 1,
			z_index INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_text_elements_world ON text_elements(world_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// NormalizeUsername is the canonical identity key: lowercase, trimmed.
func NormalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// EnsureUser upserts the identity row for a logged-in user.
func (s *Store) EnsureUser(ctx context.Context, id, login, avatarURL string) error {
	if id == "" || login == "" {
		return fmt.Errorf("user id and login required")
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users(id, login, avatar_url, created_at, updated_at)
		VALUES(?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			login=excluded.login,
			avatar_url=excluded.avatar_url,
			updated_at=excluded.updated_at`,
		id, NormalizeUsername(login), avatarURL, now, now)
	return err
}

// GetWorld returns the stored configuration for a username, or nil when the
// identity has no record. Absence is not an error.
func (s *Store) GetWorld(ctx context.Context, username string) (*worldcfg.WorldConfig, error) {
	username = NormalizeUsername(username)

	var (
		cfg       worldcfg.WorldConfig
		slotsJSON string
		published int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, base_theme_id, background_image_path, world_scale,
		       slots_json, is_published, created_at, updated_at
		FROM user_worlds WHERE username = ?`, username).Scan(
		&cfg.ID, &cfg.Username, &cfg.BaseThemeID, &cfg.BackgroundImagePath,
		&cfg.WorldScale, &slotsJSON, &published, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.IsPublished = published != 0
	if err := json.Unmarshal([]byte(slotsJSON), &cfg.Slots); err != nil {
		return nil, fmt.Errorf("world %s: bad slots json: %w", cfg.ID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, x, y, content, font_size, font_family, color,
		       background_color, rotation, scale, z_index
		FROM text_elements WHERE world_id = ? ORDER BY z_index, id`, cfg.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var el worldcfg.TextElement
		if err := rows.Scan(&el.ID, &el.X, &el.Y, &el.Content, &el.FontSize,
			&el.FontFamily, &el.Color, &el.BackgroundColor, &el.Rotation,
			&el.Scale, &el.ZIndex); err != nil {
			return nil, err
		}
		cfg.TextElements = append(cfg.TextElements, el)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpsertWorld stores a configuration atomically: the world row is upserted and
// the text-overlay child rows are deleted and reinserted in the same
// transaction. Overlays are never incrementally diffed.
func (s *Store) UpsertWorld(ctx context.Context, userID, username string, cfg worldcfg.WorldConfig) (*worldcfg.WorldConfig, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, fmt.Errorf("empty username")
	}

	slotsJSON, err := json.Marshal(cfg.Slots)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	worldID := cfg.ID
	if worldID == "" {
		worldID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_worlds(id, user_id, username, base_theme_id,
			background_image_path, world_scale, slots_json, is_published,
			created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(username) DO UPDATE SET
			base_theme_id=excluded.base_theme_id,
			background_image_path=excluded.background_image_path,
			world_scale=excluded.world_scale,
			slots_json=excluded.slots_json,
			is_published=excluded.is_published,
			updated_at=excluded.updated_at`,
		worldID, userID, username, cfg.BaseThemeID, cfg.BackgroundImagePath,
		cfg.WorldScale, string(slotsJSON), boolInt(cfg.IsPublished), now, now); err != nil {
		return nil, err
	}

	// The conflict path keeps the original row id; read it back.
	var storedID string
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM user_worlds WHERE username = ?`, username).Scan(&storedID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM text_elements WHERE world_id = ?`, storedID); err != nil {
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO text_elements(id, world_id, x, y, content, font_size,
			font_family, color, background_color, rotation, scale, z_index)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	for _, el := range cfg.TextElements {
		id := el.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, storedID, el.X, el.Y, el.Content,
			el.FontSize, el.FontFamily, el.Color, el.BackgroundColor,
			el.Rotation, el.Scale, el.ZIndex); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out := cfg
	out.ID = storedID
	out.Username = username
	out.UpdatedAt = now
	return &out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
