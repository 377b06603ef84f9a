// Package config loads the enforcement configuration: a YAML file with
// NUDGE_* environment overrides applied on top.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nudge-project/nudge/pkg/errclass"
	"github.com/nudge-project/nudge/pkg/fsutil"
	"github.com/nudge-project/nudge/pkg/logging"
	"github.com/nudge-project/nudge/pkg/model"
)

// Ledger backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config represents the nudge configuration.
type Config struct {
	Deadline            time.Time       `yaml:"deadline" env:"NUDGE_DEADLINE"`
	ImminentWindowHours int             `yaml:"imminent_window_hours" env:"NUDGE_IMMINENT_WINDOW_HOURS"`
	DemoMode            bool            `yaml:"demo_mode" env:"NUDGE_DEMO_MODE"`
	AllowButtons        bool            `yaml:"allow_buttons" env:"NUDGE_ALLOW_BUTTONS"`
	AllowedDeferrals    int             `yaml:"allowed_deferrals" env:"NUDGE_ALLOWED_DEFERRALS"`
	ImminentRounding    string          `yaml:"imminent_rounding" env:"NUDGE_IMMINENT_ROUNDING"`
	TickInterval        time.Duration   `yaml:"tick_interval" env:"NUDGE_TICK_INTERVAL"`
	Language            string          `yaml:"language" env:"NUDGE_LANGUAGE"`
	Ledger              LedgerConfig    `yaml:"ledger"`
	Audit               AuditConfig     `yaml:"audit"`
	Updater             UpdaterConfig   `yaml:"updater"`
	Logging             LoggingConfig   `yaml:"logging"`
	Webhooks            []WebhookConfig `yaml:"webhooks,omitempty" envPrefix:"NUDGE_WEBHOOK_"`
}

// LedgerConfig selects where deferral counts persist.
type LedgerConfig struct {
	Backend string `yaml:"backend" env:"NUDGE_LEDGER_BACKEND"` // file, sqlite
	Path    string `yaml:"path" env:"NUDGE_LEDGER_PATH"`
}

// AuditConfig configures the hash-chained event log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" env:"NUDGE_AUDIT_ENABLED"`
	Path    string `yaml:"path" env:"NUDGE_AUDIT_PATH"`
}

// UpdaterConfig names the command that starts the update.
type UpdaterConfig struct {
	Command string        `yaml:"command" env:"NUDGE_UPDATER_COMMAND"`
	Args    []string      `yaml:"args" env:"NUDGE_UPDATER_ARGS" envSeparator:","`
	Timeout time.Duration `yaml:"timeout" env:"NUDGE_UPDATER_TIMEOUT"`
}

// WebhookConfig is one endpoint notified of enforcement events. Events
// filters by type; empty or "*" sends everything.
type WebhookConfig struct {
	URL     string        `yaml:"url" env:"URL"`
	Secret  string        `yaml:"secret,omitempty" env:"SECRET"`
	Events  []string      `yaml:"events,omitempty" env:"EVENTS" envSeparator:","`
	Timeout time.Duration `yaml:"timeout,omitempty" env:"TIMEOUT"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"NUDGE_LOG_LEVEL"`
	Format string `yaml:"format" env:"NUDGE_LOG_FORMAT"` // json, text
}

// Default returns the default configuration. Deadline has no default.
func Default() *Config {
	return &Config{
		ImminentWindowHours: 24,
		AllowButtons:        true,
		ImminentRounding:    "floor",
		TickInterval:        time.Minute,
		Language:            "en",
		Ledger: LedgerConfig{
			Backend: BackendFile,
		},
		Audit: AuditConfig{
			Enabled: true,
		},
		Updater: UpdaterConfig{
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath is the per-user config file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "nudge", "config.yaml")
}

// DefaultStateDir is where the ledger and audit log live unless configured.
func DefaultStateDir() string {
	return filepath.Join(xdg.StateHome, "nudge")
}

// Load reads configuration from path and applies environment overrides.
// A missing file yields defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg fields from NUDGE_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes configuration to path atomically.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := fsutil.AtomicWrite(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects configurations the scheduler cannot enforce safely.
func (c *Config) Validate() error {
	invalid := errclass.ErrConfigurationInvalid
	switch {
	case c.Deadline.IsZero():
		return invalid.WithMessage("deadline is required")
	case c.ImminentWindowHours < 0:
		return invalid.WithMessagef("imminent_window_hours must not be negative: %d", c.ImminentWindowHours)
	case c.AllowedDeferrals < 0:
		return invalid.WithMessagef("allowed_deferrals must not be negative: %d", c.AllowedDeferrals)
	case c.TickInterval <= 0:
		return invalid.WithMessagef("tick_interval must be positive: %s", c.TickInterval)
	case c.Updater.Timeout < 0:
		return invalid.WithMessagef("updater.timeout must not be negative: %s", c.Updater.Timeout)
	}

	switch c.ImminentRounding {
	case "", "floor", "ceil":
	default:
		return invalid.WithMessagef("imminent_rounding must be floor or ceil: %q", c.ImminentRounding)
	}

	switch c.Ledger.Backend {
	case BackendFile, BackendSQLite:
	default:
		return invalid.WithMessagef("ledger.backend must be %s or %s: %q", BackendFile, BackendSQLite, c.Ledger.Backend)
	}

	for i, hook := range c.Webhooks {
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid.WithMessagef("webhooks[%d].url must be an http(s) URL: %q", i, hook.URL)
		}
		for _, ev := range hook.Events {
			if ev != "*" && !model.EventType(ev).Valid() {
				return invalid.WithMessagef("webhooks[%d]: unknown event %q", i, ev)
			}
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return invalid.WithMessage(err.Error())
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return invalid.WithMessage(err.Error())
	}
	return nil
}

// LedgerPath resolves the ledger location for the backend.
func (c *Config) LedgerPath(stateDir string) string {
	if c.Ledger.Path != "" {
		return c.Ledger.Path
	}
	if c.Ledger.Backend == BackendSQLite {
		return filepath.Join(stateDir, "ledger.db")
	}
	return stateDir
}

// AuditPath resolves the audit log location.
func (c *Config) AuditPath(stateDir string) string {
	if c.Audit.Path != "" {
		return c.Audit.Path
	}
	return filepath.Join(stateDir, "audit.jsonl")
}
