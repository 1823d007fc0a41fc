// Package config loads the governance engine's configuration from an
// optional YAML file and environment variables, the same two-layer
// resolution the platform's own config package uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StoreConfig selects and tunes the persistence backend.
type StoreConfig struct {
	Path            string `yaml:"path" env:"GOVERNANCE_STORE_PATH"` // "memory" or a postgres DSN
	MaxOpenConns    int    `yaml:"max_open_conns" env:"GOVERNANCE_STORE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"GOVERNANCE_STORE_MAX_IDLE_CONNS"`
	MigrateOnStart  bool   `yaml:"migrate_on_start" env:"GOVERNANCE_STORE_MIGRATE_ON_START"`
}

// ServerConfig controls the debug HTTP surface.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" env:"GOVERNANCE_LISTEN_ADDR"`
	ListenPort int    `yaml:"listen_port" env:"GOVERNANCE_LISTEN_PORT"`
}

// IdentityConfig controls how agent passphrases are sourced. PassphraseSource
// is one of "env" (read GOVERNANCE_AGENT_PASSPHRASE), "file" (read
// PassphraseFile), or "prompt" (interactive, governctl only).
type IdentityConfig struct {
	PassphraseSource string `yaml:"passphrase_source" env:"GOVERNANCE_PASSPHRASE_SOURCE"`
	PassphraseFile   string `yaml:"passphrase_file" env:"GOVERNANCE_PASSPHRASE_FILE"`
}

// SentinelConfig tunes the verification pipeline's Tier 3 dispatch.
type SentinelConfig struct {
	Tier3Backend string `yaml:"tier3_backend" env:"GOVERNANCE_TIER3_BACKEND"` // external command; empty forces CONDITIONAL
	Tier3Depth   int    `yaml:"tier3_depth" env:"GOVERNANCE_TIER3_DEPTH"`
}

// ModeConfig tunes the operational mode controller's triggers, and
// optionally forces a fixed mode regardless of load.
type ModeConfig struct {
	CPUHighWatermark float64 `yaml:"cpu_high_watermark" env:"GOVERNANCE_CPU_HIGH_WATERMARK"`
	CPULowWatermark  float64 `yaml:"cpu_low_watermark" env:"GOVERNANCE_CPU_LOW_WATERMARK"`
	QueueSoft        int     `yaml:"queue_soft" env:"GOVERNANCE_QUEUE_SOFT"`
	QueueHard        int     `yaml:"queue_hard" env:"GOVERNANCE_QUEUE_HARD"`
	QueueCapacity    int     `yaml:"queue_capacity" env:"GOVERNANCE_QUEUE_CAPACITY"`
	Override         string  `yaml:"mode_override" env:"GOVERNANCE_MODE_OVERRIDE"` // "", NORMAL, LEAN, SURGE, SAFE
}

// SweepConfig tunes the periodic reconciliation schedule.
type SweepConfig struct {
	Schedule      string `yaml:"schedule" env:"GOVERNANCE_SWEEP_SCHEDULE"`
	DailySchedule string `yaml:"daily_schedule" env:"GOVERNANCE_SWEEP_DAILY_SCHEDULE"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"GOVERNANCE_LOG_LEVEL"`
	Format string `yaml:"format" env:"GOVERNANCE_LOG_FORMAT"`
}

// Config is the top-level configuration structure.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	Identity IdentityConfig `yaml:"identity"`
	Sentinel SentinelConfig `yaml:"sentinel"`
	Mode     ModeConfig     `yaml:"mode"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// New returns a Config populated with defaults matching spec §4.6's
// threshold table and §6's default ports.
func New() *Config {
	return &Config{
		Store: StoreConfig{Path: "memory", MaxOpenConns: 20, MaxIdleConns: 5, MigrateOnStart: true},
		Server: ServerConfig{ListenAddr: "0.0.0.0", ListenPort: 8090},
		Identity: IdentityConfig{PassphraseSource: "env"},
		Sentinel: SentinelConfig{Tier3Depth: 8},
		Mode: ModeConfig{
			CPUHighWatermark: 70, CPULowWatermark: 50,
			QueueSoft: 40, QueueHard: 50, QueueCapacity: 50,
		},
		Sweep:   SweepConfig{Schedule: "*/5 * * * *", DailySchedule: "0 3 * * *"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load resolves configuration the same way the teacher platform does:
// an optional .env file, an optional YAML file (GOVERNANCE_CONFIG_FILE
// or ./configs/governance.yaml), then environment variable overrides on
// top of both.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("GOVERNANCE_CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/governance.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors when no tagged field has a matching env var set;
		// that just means "no overrides", not a failure.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate rejects configurations that would leave the engine unable to
// honor its own invariants (e.g. a queue capacity too small to carve out
// the 25% L3 reserve, or soft >= hard backpressure thresholds).
func (c *Config) Validate() error {
	if c.Mode.QueueCapacity < 4 {
		return fmt.Errorf("mode.queue_capacity must be at least 4 to carve out a non-empty L3 reserve")
	}
	if c.Mode.QueueSoft >= c.Mode.QueueHard {
		return fmt.Errorf("mode.queue_soft (%d) must be below mode.queue_hard (%d)", c.Mode.QueueSoft, c.Mode.QueueHard)
	}
	if c.Mode.QueueHard > c.Mode.QueueCapacity {
		return fmt.Errorf("mode.queue_hard (%d) must not exceed mode.queue_capacity (%d)", c.Mode.QueueHard, c.Mode.QueueCapacity)
	}
	switch c.Identity.PassphraseSource {
	case "env", "file", "prompt":
	default:
		return fmt.Errorf("identity.passphrase_source must be env, file, or prompt, got %q", c.Identity.PassphraseSource)
	}
	return nil
}

// ResolvePassphrase reads the agent passphrase per PassphraseSource.
// "prompt" is handled by the caller (governctl's interactive path); it
// is an error to call ResolvePassphrase with PassphraseSource=="prompt".
func (c *Config) ResolvePassphrase() (string, error) {
	switch c.Identity.PassphraseSource {
	case "env":
		p := os.Getenv("GOVERNANCE_AGENT_PASSPHRASE")
		if p == "" {
			return "", fmt.Errorf("GOVERNANCE_AGENT_PASSPHRASE is not set")
		}
		return p, nil
	case "file":
		data, err := os.ReadFile(c.Identity.PassphraseFile)
		if err != nil {
			return "", fmt.Errorf("read passphrase file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("passphrase source %q requires caller-side resolution", c.Identity.PassphraseSource)
	}
}
