package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the scene and service constants that operators may override.
// Values left at zero in the file fall back to Defaults.
type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz"`

	// Player movement speed in world units per second. Diagonal movement is
	// normalized so the magnitude never exceeds this.
	PlayerSpeed float64 `yaml:"player_speed"`

	// Radius within which a zone can become active.
	InteractionRadius float64 `yaml:"interaction_radius"`

	// Base (unscaled) world size; the effective world is base * world_scale.
	BaseWorldWidth  float64 `yaml:"base_world_width"`
	BaseWorldHeight float64 `yaml:"base_world_height"`

	// Upload ceiling in bytes.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Profile metadata cache TTL in seconds.
	ProfileCacheTTLSec int `yaml:"profile_cache_ttl_sec"`

	// Bound on queued export-mirror uploads.
	ExportQueueSize int `yaml:"export_queue_size"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         30,
		PlayerSpeed:        280,
		InteractionRadius:  70,
		BaseWorldWidth:     1024,
		BaseWorldHeight:    1024,
		MaxUploadBytes:     5 << 20,
		ProfileCacheTTLSec: 300,
		ExportQueueSize:    256,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	var f Tuning
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	merge(&t, f)
	return t, nil
}

func merge(dst *Tuning, src Tuning) {
	if src.TickRateHz > 0 {
		dst.TickRateHz = src.TickRateHz
	}
	if src.PlayerSpeed > 0 {
		dst.PlayerSpeed = src.PlayerSpeed
	}
	if src.InteractionRadius > 0 {
		dst.InteractionRadius = src.InteractionRadius
	}
	if src.BaseWorldWidth > 0 {
		dst.BaseWorldWidth = src.BaseWorldWidth
	}
	if src.BaseWorldHeight > 0 {
		dst.BaseWorldHeight = src.BaseWorldHeight
	}
	if src.MaxUploadBytes > 0 {
		dst.MaxUploadBytes = src.MaxUploadBytes
	}
	if src.ProfileCacheTTLSec > 0 {
		dst.ProfileCacheTTLSec = src.ProfileCacheTTLSec
	}
	if src.ExportQueueSize > 0 {
		dst.ExportQueueSize = src.ExportQueueSize
	}
}
