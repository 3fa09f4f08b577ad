package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables holding backend secrets. They are never written to
// the YAML file.
const (
	EnvAnonKey     = "BOOKCAL_BACKEND_ANON_KEY"
	EnvAccessToken = "BOOKCAL_BACKEND_ACCESS_TOKEN"
)

const (
	defaultListen         = "127.0.0.1:8080"
	defaultTimezone       = "Europe/Stockholm"
	defaultTimezoneAlias  = "CET"
	defaultWeekStart      = "monday"
	defaultView           = "week"
	defaultRefresh        = "*/5 * * * *"
	defaultLogLevel       = "info"
	defaultBackendTimeout = 15
	defaultCaptureOutput  = "./cache/calendar.png"
)

// BackendConfig points at the hosted Postgres REST endpoint.
type BackendConfig struct {
	// URL is the project base URL, e.g. "https://example.supabase.co".
	URL            string `yaml:"url" json:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`

	AnonKey     string `yaml:"-" json:"-"`
	AccessToken string `yaml:"-" json:"-"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP surface.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// CaptureConfig controls the headless screenshot of the grid page.
type CaptureConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Output  string `yaml:"output" json:"output"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the grid API and page.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone bookings are displayed in.
	Timezone string `yaml:"timezone" json:"timezone"`
	// TimezoneAlias is tried when Timezone cannot be resolved.
	TimezoneAlias string `yaml:"timezone_alias" json:"timezone_alias"`

	// WeekStart is kept for config compatibility; weeks always start on
	// Monday and any other value is normalized to "monday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// DefaultView is "week" or "month".
	DefaultView string `yaml:"default_view" json:"default_view"`

	// RefreshCron schedules reloads of the displayed period.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Backend BackendConfig `yaml:"backend" json:"backend"`

	// BasicAuth, if non-nil, protects every endpoint except /health and /metrics.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Capture CaptureConfig `yaml:"capture" json:"capture"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		Timezone:      defaultTimezone,
		TimezoneAlias: defaultTimezoneAlias,
		WeekStart:     defaultWeekStart,
		DefaultView:   defaultView,
		RefreshCron:   defaultRefresh,
		LogLevel:      defaultLogLevel,
		Backend: BackendConfig{
			TimeoutSeconds: defaultBackendTimeout,
		},
		Capture: CaptureConfig{
			Output: defaultCaptureOutput,
		},
	}
}

// Normalize fills in missing values and pins the Monday week start.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.TimezoneAlias == "" {
		c.TimezoneAlias = defaultTimezoneAlias
	}
	// Only Monday-anchored weeks are supported.
	c.WeekStart = defaultWeekStart

	switch strings.ToLower(strings.TrimSpace(c.DefaultView)) {
	case "week", "month":
		c.DefaultView = strings.ToLower(strings.TrimSpace(c.DefaultView))
	default:
		c.DefaultView = defaultView
	}

	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	c.Backend.URL = strings.TrimRight(strings.TrimSpace(c.Backend.URL), "/")
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = defaultBackendTimeout
	}
	if c.Capture.Output == "" {
		c.Capture.Output = defaultCaptureOutput
	}
}

// Validate reports configuration that cannot work at all.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend url is required")
	}
	if !strings.HasPrefix(c.Backend.URL, "http://") && !strings.HasPrefix(c.Backend.URL, "https://") {
		return fmt.Errorf("backend url must be http(s): %q", c.Backend.URL)
	}
	if c.Backend.AnonKey == "" {
		return fmt.Errorf("%s is not set", EnvAnonKey)
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - A .env file next to the config, if present, is loaded into the
//     environment first (existing variables win).
//   - If the config file does not exist, a default config is written with
//     0600 perms and returned.
//   - Otherwise the YAML is read and normalized.
//   - Backend secrets are always taken from the environment.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			saveErr := Save(path, cfg)
			cfg.applyEnv()
			// Even if save fails, return cfg with error so caller can decide.
			return cfg, saveErr
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.applyEnv()

	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Backend.AnonKey = strings.TrimSpace(os.Getenv(EnvAnonKey))
	c.Backend.AccessToken = strings.TrimSpace(os.Getenv(EnvAccessToken))
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory with 0700 if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".bookcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
