// Package config handles TOML configuration loading with environment variable substitution.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Database      DatabaseConfig      `toml:"database"`
	Catalog       CatalogConfig       `toml:"catalog"`
	Plex          *PlexConfig         `toml:"plex"`
	Sync          SyncConfig          `toml:"sync"`
	Requests      RequestsConfig      `toml:"requests"`
	Notifications NotificationsConfig `toml:"notifications"`
}

type ServerConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// CatalogConfig points at the metadata provider used for search,
// title lookups and external-id resolution.
type CatalogConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// PlexConfig enables media-server presence checks.
type PlexConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

type SyncConfig struct {
	Interval Duration `toml:"interval"`
}

// RequestsConfig carries the legacy request limits. They are the
// lowest-priority permission layer: database defaults and per-user
// overrides take precedence field by field.
type RequestsConfig struct {
	MovieLimit  *int `toml:"movie_limit"`
	MovieDays   *int `toml:"movie_days"`
	TVLimit     *int `toml:"tv_limit"`
	TVDays      *int `toml:"tv_days"`
	SeasonLimit *int `toml:"season_limit"`
	SeasonDays  *int `toml:"season_days"`

	Movie4KLimit  *int `toml:"movie_4k_limit"`
	Movie4KDays   *int `toml:"movie_4k_days"`
	TV4KLimit     *int `toml:"tv_4k_limit"`
	TV4KDays      *int `toml:"tv_4k_days"`
	Season4KLimit *int `toml:"season_4k_limit"`
	Season4KDays  *int `toml:"season_4k_days"`

	AutoApproveMovies *bool `toml:"auto_approve_movies"`
	AutoApproveTV     *bool `toml:"auto_approve_tv"`
	Allow4K           *bool `toml:"allow_4k"`
}

type NotificationsConfig struct {
	Webhooks []WebhookConfig `toml:"webhook"`
}

// WebhookConfig is one outbound notification endpoint. Admin endpoints
// additionally receive new-request and failure notifications.
type WebhookConfig struct {
	Name  string `toml:"name"`
	URL   string `toml:"url"`
	Admin bool   `toml:"admin"`
}

// Duration wraps time.Duration so TOML can parse values like "30m".
type Duration time.Duration

// UnmarshalText implements toml decoding for duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements toml encoding for duration strings.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Load reads, substitutes, parses and validates the configuration
// file. Missing environment variables and validation failures are
// aggregated into a *ConfigError.
func Load(path string) (*Config, error) {
	cfg, missing, err := load(path)
	if err != nil {
		return nil, err
	}

	cerr := &ConfigError{Path: path, Missing: missing, Errors: cfg.Validate()}
	if cerr.HasErrors() {
		return nil, cerr
	}
	return cfg, nil
}

// LoadWithoutValidation parses the file but skips env-var and
// validation checks. Used by tooling that edits partial configs.
func LoadWithoutValidation(path string) (*Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

func load(path string) (*Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}

	// Substitute environment variables
	content, missing := substituteEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(content, &cfg); err != nil {
		return nil, nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5055
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/streamarr.db"
	}
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = Duration(30 * time.Minute)
	}

	return &cfg, missing, nil
}

// substituteEnvVars replaces ${VAR} references with environment
// variable values. ${VAR:-default} falls back when the variable is
// unset or empty; ${VAR:?message} records the message as a missing-var
// error. Plain ${VAR} references to unset variables are left unchanged
// and reported.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(content string) (string, []string) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		expr := match[2 : len(match)-1] // Strip ${ and }

		name := expr
		op, arg := "", ""
		if i := strings.Index(expr, ":-"); i >= 0 {
			name, op, arg = expr[:i], ":-", expr[i+2:]
		} else if i := strings.Index(expr, ":?"); i >= 0 {
			name, op, arg = expr[:i], ":?", expr[i+2:]
		}

		if value := os.Getenv(name); value != "" {
			return value
		}
		switch op {
		case ":-":
			return arg
		case ":?":
			missing = append(missing, name+": "+strings.TrimSpace(arg))
			return match
		default:
			missing = append(missing, name)
			return match
		}
	})
	return out, missing
}
