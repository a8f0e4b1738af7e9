// Package cache mirrors the libraries of the configured download-manager
// servers. Rows are keyed by (server id, TMDB id) and are fully owned by
// the library sync job: entries missing from a server's latest full pull
// are evicted, and a server only ever evicts its own rows.
package cache

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested entry doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("duplicate entry")
)

// MovieEntry is one movie as known to a movie download-manager server.
type MovieEntry struct {
	ServerID       int64
	TMDBID         int64
	ServiceID      int64 // id of the movie on the remote server
	Title          string
	HasFile        bool
	Monitored      bool
	QualityProfile int
	UpdatedAt      time.Time
}

// SeriesEntry is one series as known to a series download-manager
// server. Episode counts come from the server's own statistics and
// drive the partial-availability classification.
type SeriesEntry struct {
	ServerID         int64
	TMDBID           int64
	TVDBID           int64
	ServiceID        int64
	Title            string
	EpisodeCount     int
	EpisodeFileCount int
	Monitored        bool
	QualityProfile   int
	UpdatedAt        time.Time
}

// FullyDownloaded reports whether every known episode has a file.
func (e *SeriesEntry) FullyDownloaded() bool {
	return e.EpisodeCount > 0 && e.EpisodeFileCount >= e.EpisodeCount
}

// PartiallyDownloaded reports whether some but not all episodes have
// files.
func (e *SeriesEntry) PartiallyDownloaded() bool {
	return e.EpisodeFileCount > 0 && !e.FullyDownloaded()
}
