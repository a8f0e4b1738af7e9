package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseTestConfig is a helper that writes content to a temp file and loads it without validation.
func parseTestConfig(t *testing.T, content string) (*Config, error) {
	t.Helper()
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.toml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return LoadWithoutValidation(cfgPath)
}

func TestConfig_AllSections(t *testing.T) {
	content := `
[server]
host = "127.0.0.1"
port = 5056
log_level = "debug"

[database]
path = "/var/lib/streamarr/streamarr.db"

[catalog]
api_key = "tmdb-key"
base_url = "https://api.example.org/3"

[plex]
url = "http://localhost:32400"
token = "plex-token"

[sync]
interval = "15m"

[requests]
movie_limit = 10
movie_days = 7
tv_limit = 5
tv_days = 14
season_limit = 20
season_days = 14
auto_approve_movies = true
allow_4k = true

[[notifications.webhook]]
name = "ops"
url = "https://hooks.example.com/a"
admin = true

[[notifications.webhook]]
name = "users"
url = "https://hooks.example.com/b"
`
	cfg, err := parseTestConfig(t, content)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 5056, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "/var/lib/streamarr/streamarr.db", cfg.Database.Path)
	assert.Equal(t, "tmdb-key", cfg.Catalog.APIKey)
	assert.Equal(t, "https://api.example.org/3", cfg.Catalog.BaseURL)

	require.NotNil(t, cfg.Plex)
	assert.Equal(t, "plex-token", cfg.Plex.Token)

	assert.Equal(t, 15*time.Minute, time.Duration(cfg.Sync.Interval))

	require.NotNil(t, cfg.Requests.MovieLimit)
	assert.Equal(t, 10, *cfg.Requests.MovieLimit)
	require.NotNil(t, cfg.Requests.AutoApproveMovies)
	assert.True(t, *cfg.Requests.AutoApproveMovies)
	assert.Nil(t, cfg.Requests.AutoApproveTV)

	require.Len(t, cfg.Notifications.Webhooks, 2)
	assert.True(t, cfg.Notifications.Webhooks[0].Admin)
	assert.False(t, cfg.Notifications.Webhooks[1].Admin)
}

func TestConfig_OmittedLimitsNil(t *testing.T) {
	content := `
[catalog]
api_key = "k"
`
	cfg, err := parseTestConfig(t, content)
	require.NoError(t, err)

	// Unset limits stay nil so lower permission layers are consulted.
	assert.Nil(t, cfg.Requests.MovieLimit)
	assert.Nil(t, cfg.Requests.TVLimit)
	assert.Nil(t, cfg.Requests.SeasonLimit)
	assert.Nil(t, cfg.Requests.Allow4K)
	assert.Nil(t, cfg.Plex)
}

func TestLegacyPermissions_Empty(t *testing.T) {
	r := &RequestsConfig{}
	assert.Nil(t, r.LegacyPermissions(), "empty limits should produce no permission layer")
}

func TestLegacyPermissions_Mapped(t *testing.T) {
	limit, days := 5, 7
	allow := true
	r := &RequestsConfig{
		MovieLimit: &limit,
		MovieDays:  &days,
		Allow4K:    &allow,
	}
	p := r.LegacyPermissions()
	require.NotNil(t, p)
	assert.Equal(t, 5, *p.MovieLimit)
	assert.Equal(t, 7, *p.MovieDays)
	assert.True(t, *p.CanRequestMovies4K)
	assert.True(t, *p.CanRequestTV4K)
	assert.Nil(t, p.TVLimit)
}

func TestDuration_Roundtrip(t *testing.T) {
	d := Duration(90 * time.Second)
	text, err := d.MarshalText()
	require.NoError(t, err)

	var back Duration
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, d, back)
}

func TestDuration_Invalid(t *testing.T) {
	var d Duration
	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
