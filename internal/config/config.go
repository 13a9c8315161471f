package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Workflow contains daemon timing and interval configuration. Intervals are
// expressed in seconds unless the field name says otherwise.
type Workflow struct {
	SLASweepInterval        int `toml:"sla_sweep_interval"`
	RetentionSweepInterval  int `toml:"retention_sweep_interval"`
	AnalyticsSweepInterval  int `toml:"analytics_sweep_interval"`
	AnalyticsErrorBackoff   int `toml:"analytics_error_backoff"`
	EmitterTickInterval     int `toml:"emitter_tick_interval"`
	EmitterLookbackWindow   int `toml:"emitter_lookback_window"`
	StaleBreachWindowHours  int `toml:"stale_breach_window_hours"`
	StaleBreachResultLimit  int `toml:"stale_breach_result_limit"`
	AnalyticsSweepBatchSize int `toml:"analytics_sweep_batch_size"`
}

// SLAPolicy holds per-stage duration thresholds in minutes.
type SLAPolicy struct {
	IdealMinutes      int `toml:"ideal_minutes"`
	MaxMinutes        int `toml:"max_minutes"`
	EscalationMinutes int `toml:"escalation_minutes"`
}

// Notifications contains escalation channel configuration.
type Notifications struct {
	WebhookURL     string `toml:"webhook_url"`
	EmailGateway   string `toml:"email_gateway"`
	RequestTimeout int    `toml:"request_timeout"`
	RetentionDays  int    `toml:"retention_days"`
}

// Realtime contains broadcast hub and event stream configuration.
type Realtime struct {
	MaxConnections int `toml:"max_connections"`
	WriteTimeout   int `toml:"write_timeout"`
	PingInterval   int `toml:"ping_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Directory contains the static worker directory used by small deployments
// that do not run an external worker directory service.
type DirectoryEntry struct {
	ID                 string `toml:"id"`
	Name               string `toml:"name"`
	ManagerID          string `toml:"manager_id"`
	SecondaryManagerID string `toml:"secondary_manager_id"`
	Contact            string `toml:"contact"`
}

// Config encapsulates all configuration values for docflow.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - SLA: per-stage duration thresholds driving breach detection
//   - Notifications: escalation channel endpoints and retention
//   - Realtime: broadcast hub limits and keepalive timing
//   - Workflow: sweep and emitter intervals
//   - Logging: log format and level
//   - Directory: optional static worker directory
type Config struct {
	Paths         Paths                `toml:"paths"`
	SLA           map[string]SLAPolicy `toml:"sla"`
	Notifications Notifications        `toml:"notifications"`
	Realtime      Realtime             `toml:"realtime"`
	Workflow      Workflow             `toml:"workflow"`
	Logging       Logging              `toml:"logging"`
	Directory     []DirectoryEntry     `toml:"directory"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/docflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was found on disk (false means defaults were used).
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	candidate := strings.TrimSpace(path)
	if candidate == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		candidate = defaultPath
	} else {
		expanded, err := expandPath(candidate)
		if err != nil {
			return "", false, err
		}
		candidate = expanded
	}

	info, err := os.Stat(candidate)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", candidate)
	}
	return candidate, true, nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the data and log directories when missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "docflow.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "docflowd.lock")
}
