// Package config loads and validates the sync engine's configuration file.
package config

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed example.yaml
var exampleConfig embed.FS

// Config represents the complete nip65sync configuration.
type Config struct {
	Identity Identity   `yaml:"identity"`
	Relays   Relays     `yaml:"relays"`
	Sync     SyncConfig `yaml:"sync"`
	Storage  Storage    `yaml:"storage"`
	Logging  Logging    `yaml:"logging"`
}

// Identity holds the operator's Nostr public key.
type Identity struct {
	Npub string `yaml:"npub"`
}

// Relays holds seed relays used to discover the operator's own NIP-65
// document, and a relay connection policy. Policy is loaded and defaulted,
// but no relay transport or pool reads it.
type Relays struct {
	Seeds  []string    `yaml:"seeds"`
	Policy RelayPolicy `yaml:"policy"`
}

// RelayPolicy contains relay connection policies.
type RelayPolicy struct {
	ConnectTimeoutMs  int `yaml:"connect_timeout_ms"`
	MaxConcurrentSubs int `yaml:"max_concurrent_subs"`
}

// SyncConfig mirrors the engine's policy knobs (spec §6) so operators can
// tune them without recompiling. Defaults match the spec's constants.
type SyncConfig struct {
	BatchSize         int `yaml:"batch_size"`
	BatchTimeoutMs    int `yaml:"batch_timeout_ms"`
	PublishTimeoutMs  int `yaml:"publish_timeout_ms"`
	InterEventDelayMs int `yaml:"inter_event_delay_ms"`
	InterBatchDelayMs int `yaml:"inter_batch_delay_ms"`
	MaxWriteRelays    int `yaml:"max_write_relays"`
	MaxReadRelays     int `yaml:"max_read_relays"`
}

// Storage holds the resume-checkpoint database location.
type Storage struct {
	CheckpointPath string `yaml:"checkpoint_path"`
}

// Logging controls the ops logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses a configuration file, applying defaults, env
// overrides, and validation in that order.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Relays.Policy.ConnectTimeoutMs == 0 {
		cfg.Relays.Policy.ConnectTimeoutMs = defaults.Relays.Policy.ConnectTimeoutMs
	}
	if cfg.Relays.Policy.MaxConcurrentSubs == 0 {
		cfg.Relays.Policy.MaxConcurrentSubs = defaults.Relays.Policy.MaxConcurrentSubs
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = defaults.Sync.BatchSize
	}
	if cfg.Sync.BatchTimeoutMs == 0 {
		cfg.Sync.BatchTimeoutMs = defaults.Sync.BatchTimeoutMs
	}
	if cfg.Sync.PublishTimeoutMs == 0 {
		cfg.Sync.PublishTimeoutMs = defaults.Sync.PublishTimeoutMs
	}
	if cfg.Sync.InterEventDelayMs == 0 {
		cfg.Sync.InterEventDelayMs = defaults.Sync.InterEventDelayMs
	}
	if cfg.Sync.InterBatchDelayMs == 0 {
		cfg.Sync.InterBatchDelayMs = defaults.Sync.InterBatchDelayMs
	}
	if cfg.Sync.MaxWriteRelays == 0 {
		cfg.Sync.MaxWriteRelays = defaults.Sync.MaxWriteRelays
	}
	if cfg.Sync.MaxReadRelays == 0 {
		cfg.Sync.MaxReadRelays = defaults.Sync.MaxReadRelays
	}
	if cfg.Storage.CheckpointPath == "" {
		cfg.Storage.CheckpointPath = defaults.Storage.CheckpointPath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
}

// applyEnvOverrides applies NIP65SYNC_-prefixed environment variable
// overrides to config.
func applyEnvOverrides(cfg *Config) error {
	if npub := os.Getenv("NIP65SYNC_NPUB"); npub != "" {
		cfg.Identity.Npub = npub
	}
	if path := os.Getenv("NIP65SYNC_CHECKPOINT_PATH"); path != "" {
		cfg.Storage.CheckpointPath = path
	}
	if level := os.Getenv("NIP65SYNC_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	return nil
}

// GetExampleConfig returns the embedded example configuration.
func GetExampleConfig() ([]byte, error) {
	return exampleConfig.ReadFile("example.yaml")
}

// Default returns a configuration with sensible defaults, matching the
// engine's own policy constants.
func Default() *Config {
	return &Config{
		Identity: Identity{},
		Relays: Relays{
			Seeds: []string{"wss://relay.damus.io", "wss://nos.lol"},
			Policy: RelayPolicy{
				ConnectTimeoutMs:  10000,
				MaxConcurrentSubs: 10,
			},
		},
		Sync: SyncConfig{
			BatchSize:         20,
			BatchTimeoutMs:    15000,
			PublishTimeoutMs:  5000,
			InterEventDelayMs: 10000,
			InterBatchDelayMs: 10000,
			MaxWriteRelays:    5,
			MaxReadRelays:     5,
		},
		Storage: Storage{
			CheckpointPath: "./nip65sync-checkpoint.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"text": true, "json": true,
}

// Validate checks a loaded configuration for internal consistency.
func Validate(cfg *Config) error {
	if cfg.Identity.Npub == "" {
		return fmt.Errorf("identity.npub is required")
	}
	if !strings.HasPrefix(cfg.Identity.Npub, "npub1") {
		return fmt.Errorf("identity.npub must be a valid npub (got %q)", cfg.Identity.Npub)
	}

	if len(cfg.Relays.Seeds) == 0 {
		return fmt.Errorf("relays.seeds must contain at least one relay")
	}
	for _, seed := range cfg.Relays.Seeds {
		if !strings.HasPrefix(seed, "wss://") && !strings.HasPrefix(seed, "ws://") {
			return fmt.Errorf("relays.seeds entry %q must start with ws:// or wss://", seed)
		}
	}

	if cfg.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	if cfg.Sync.BatchTimeoutMs <= 0 {
		return fmt.Errorf("sync.batch_timeout_ms must be positive")
	}
	if cfg.Sync.PublishTimeoutMs <= 0 {
		return fmt.Errorf("sync.publish_timeout_ms must be positive")
	}
	if cfg.Sync.MaxWriteRelays <= 0 {
		return fmt.Errorf("sync.max_write_relays must be positive")
	}
	if cfg.Sync.MaxReadRelays <= 0 {
		return fmt.Errorf("sync.max_read_relays must be positive")
	}

	if cfg.Storage.CheckpointPath == "" {
		return fmt.Errorf("storage.checkpoint_path is required")
	}

	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug/info/warn/error (got %q)", cfg.Logging.Level)
	}
	if !validLogFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be one of text/json (got %q)", cfg.Logging.Format)
	}

	return nil
}
