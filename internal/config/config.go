// Package config implements room-wide configuration (spec's ambient
// stack): YAML on disk plus environment overrides. Grounded on
// policy.Config/DefaultConfig/LoadConfig, renamed and trimmed to the
// settings the MASC core actually reads (room feature modes, retention,
// rate limits, transport limits); the teacher's driver/worker
// orchestration and worktree settings are out of scope (spec Non-goals).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FeatureMode names one of the spec §6 "modes" bitsets.
type FeatureMode string

const (
	ModeMinimal FeatureMode = "minimal"
	ModeStandard FeatureMode = "standard"
	ModeFull     FeatureMode = "full"
	ModeSolo     FeatureMode = "solo"
	ModeCustom   FeatureMode = "custom"
)

// RetentionConfig bounds message and audit-log growth during GC sweeps.
type RetentionConfig struct {
	MessageRetentionMax  int `yaml:"message_retention_max"`
	MessageRetentionDays int `yaml:"message_retention_days"`
	TaskArchiveDays      int `yaml:"task_archive_days"`
	PubSubMaxMessages    int `yaml:"pubsub_max_messages"`
	PubSubMaxAgeDays     int `yaml:"pubsub_max_age_days"`
}

// PresenceConfig bounds agent liveness.
type PresenceConfig struct {
	TTLSeconds         int `yaml:"presence_ttl_seconds"`
	ZombieAfterSeconds int `yaml:"zombie_after_seconds"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Port         int    `yaml:"port"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
	CORSOrigin   string `yaml:"cors_origin"`
}

// Config holds room-wide configuration, loaded from YAML with environment
// overrides applied on top.
type Config struct {
	RoomDir  string      `yaml:"room_dir"`
	LogFile  string      `yaml:"log_file"`
	Features FeatureMode `yaml:"features"`
	// CustomCategories is consulted only when Features == ModeCustom,
	// naming the enabled tool categories from spec §6.
	CustomCategories []string `yaml:"custom_categories"`

	Retention RetentionConfig `yaml:"retention"`
	Presence  PresenceConfig  `yaml:"presence"`
	HTTP      HTTPConfig      `yaml:"http"`

	AuditEnabled bool `yaml:"audit_enabled"`
}

// GlobalStateDir returns ~/.config/masc, the default root for files the
// config doesn't pin to a specific room.
func GlobalStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "masc")
}

// Default returns sensible defaults, matching policy.DefaultConfig's
// shape but scoped to MASC's settings.
func Default() *Config {
	return &Config{
		Features: ModeStandard,
		Retention: RetentionConfig{
			MessageRetentionMax:  1000,
			MessageRetentionDays: 30,
			TaskArchiveDays:      14,
			PubSubMaxMessages:    500,
			PubSubMaxAgeDays:     7,
		},
		Presence: PresenceConfig{
			TTLSeconds:         300,
			ZombieAfterSeconds: 600,
		},
		HTTP: HTTPConfig{
			Port:         8765,
			MaxBodyBytes: 20 * 1024 * 1024,
		},
		AuditEnabled: true,
	}
}

// Load reads configuration from a YAML file and applies environment
// overrides, mirroring policy.LoadConfig's "defaults, then YAML" merge.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides lets operators override the handful of settings that
// matter most at deploy time without editing YAML, per spec §4.11's
// MASC_MCP_MAX_BODY_BYTES requirement.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MASC_ROOM_DIR"); v != "" {
		cfg.RoomDir = v
	}
	if v := os.Getenv("MASC_MCP_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.HTTP.MaxBodyBytes = n
		}
	}
	if v := os.Getenv("MASC_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = n
		}
	}
	if v := os.Getenv("MASC_FEATURES"); v != "" {
		cfg.Features = FeatureMode(v)
	}
	if v := os.Getenv("MASC_AUDIT_ENABLED"); v != "" {
		cfg.AuditEnabled = v != "0" && v != "false"
	}
}
