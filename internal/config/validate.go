// internal/config/validate.go
package config

import (
	"fmt"
	"net/url"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	// Server validation
	if c.Server.Port != 0 && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port: must be between 1 and 65535, got %d", c.Server.Port))
	}
	if !validLogLevels[c.Server.LogLevel] {
		errs = append(errs, fmt.Sprintf("server.log_level: must be one of debug, info, warn, error; got %q", c.Server.LogLevel))
	}

	// Catalog validation
	if c.Catalog.APIKey == "" {
		errs = append(errs, "catalog.api_key: required")
	}
	if c.Catalog.BaseURL != "" {
		if _, err := url.Parse(c.Catalog.BaseURL); err != nil {
			errs = append(errs, fmt.Sprintf("catalog.base_url: invalid url: %v", err))
		}
	}

	// Plex validation
	if c.Plex != nil {
		if c.Plex.URL == "" {
			errs = append(errs, "plex.url: required when plex is configured")
		}
		if c.Plex.Token == "" {
			errs = append(errs, "plex.token: required when plex is configured")
		}
	}

	// Request limits must come in limit/days pairs
	pairs := []struct {
		name  string
		limit *int
		days  *int
	}{
		{"movie", c.Requests.MovieLimit, c.Requests.MovieDays},
		{"tv", c.Requests.TVLimit, c.Requests.TVDays},
		{"season", c.Requests.SeasonLimit, c.Requests.SeasonDays},
		{"movie_4k", c.Requests.Movie4KLimit, c.Requests.Movie4KDays},
		{"tv_4k", c.Requests.TV4KLimit, c.Requests.TV4KDays},
		{"season_4k", c.Requests.Season4KLimit, c.Requests.Season4KDays},
	}
	for _, p := range pairs {
		if p.limit != nil && *p.limit < 0 {
			errs = append(errs, fmt.Sprintf("requests.%s_limit: must not be negative, got %d", p.name, *p.limit))
		}
		if p.days != nil && *p.days < 1 {
			errs = append(errs, fmt.Sprintf("requests.%s_days: must be at least 1, got %d", p.name, *p.days))
		}
	}

	// Notification webhooks
	for i, wh := range c.Notifications.Webhooks {
		if wh.URL == "" {
			errs = append(errs, fmt.Sprintf("notifications.webhook[%d].url: required", i))
		}
	}

	return errs
}
