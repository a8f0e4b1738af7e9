// Package dlm talks to download-manager servers (Radarr-style for
// movies, Sonarr-style for series) and persists their configuration.
//
// The rest of the system consumes the MovieService and SeriesService
// capability interfaces; the concrete HTTP clients here are one
// binding.
package dlm

import (
	"context"
	"errors"
	"time"

	"github.com/streamarr/streamarr/internal/media"
)

var (
	// ErrNotFound indicates the requested entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrNoServer indicates no configured server matches the request
	// (e.g. a 4K request with no 4K server).
	ErrNoServer = errors.New("no matching server configured")
)

// Server is one configured download-manager server row.
type Server struct {
	ID              int64
	Name            string
	Type            media.Type // movie servers vs series servers
	URL             string
	APIKey          string
	QualityProfile  int
	RootFolder      string
	Active          bool
	IsDefault       bool
	Is4K            bool
	Tags            []int
	SearchOnAdd     bool
	LastLibrarySync *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Movie is a title as reported by a movie server.
type Movie struct {
	ServiceID      int64
	TMDBID         int64
	Title          string
	HasFile        bool
	Monitored      bool
	QualityProfile int
}

// SeasonStats is per-season episode accounting from a series detail
// response.
type SeasonStats struct {
	SeasonNumber     int
	EpisodeCount     int
	EpisodeFileCount int
	Monitored        bool
}

// Series is a title as reported by a series server, with per-season
// statistics when fetched as a detail.
type Series struct {
	ServiceID        int64
	TMDBID           int64
	TVDBID           int64
	Title            string
	EpisodeCount     int
	EpisodeFileCount int
	Monitored        bool
	QualityProfile   int
	Seasons          []SeasonStats
}

// AddMovieInput describes a movie to add to a server.
type AddMovieInput struct {
	TMDBID         int64
	Title          string
	QualityProfile int
	RootFolder     string
	Tags           []int
	SearchOnAdd    bool
}

// AddSeriesInput describes a series to add to a server.
type AddSeriesInput struct {
	TVDBID         int64
	Title          string
	Seasons        []int // nil = all seasons
	QualityProfile int
	RootFolder     string
	Tags           []int
	SearchOnAdd    bool
}

// MovieService is the capability interface for movie servers.
type MovieService interface {
	// AddMovie adds a movie; if the movie already exists on the server
	// the existing entry is returned.
	AddMovie(ctx context.Context, in AddMovieInput) (*Movie, error)
	// ListMovies returns the server's full library.
	ListMovies(ctx context.Context) ([]*Movie, error)
	// GetMovie returns one movie by TMDB id.
	GetMovie(ctx context.Context, tmdbID int64) (*Movie, error)
}

// SeriesService is the capability interface for series servers.
type SeriesService interface {
	// AddSeries adds a series with the chosen seasons monitored.
	AddSeries(ctx context.Context, in AddSeriesInput) (*Series, error)
	// ListSeries returns the server's full library (no season detail).
	ListSeries(ctx context.Context) ([]*Series, error)
	// GetSeries returns one series with per-season statistics.
	GetSeries(ctx context.Context, tvdbID int64) (*Series, error)
}
