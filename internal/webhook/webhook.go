// Package webhook processes import notifications pushed by
// download-manager servers. Notifications can arrive before the next
// library sync; the handler merges their evidence into media records so
// availability shows up as soon as a file is imported.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/streamarr/streamarr/internal/catalog"
	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/internal/reconcile"
	"github.com/streamarr/streamarr/internal/writer"
	"github.com/streamarr/streamarr/pkg/titles"
)

// Payload is the notification body sent by movie and series servers.
// Only the fields the handler consumes are declared.
type Payload struct {
	EventType string    `json:"eventType"`
	Movie     *Movie    `json:"movie,omitempty"`
	Series    *Series   `json:"series,omitempty"`
	Episodes  []Episode `json:"episodes,omitempty"`
	Release   *Release  `json:"release,omitempty"`
	MovieFile *File     `json:"movieFile,omitempty"`
}

// Movie identifies the movie a notification is about.
type Movie struct {
	TMDBID int64  `json:"tmdbId"`
	Title  string `json:"title"`
	Year   int    `json:"year"`
}

// Series identifies the series a notification is about.
type Series struct {
	TVDBID int64  `json:"tvdbId"`
	TMDBID int64  `json:"tmdbId"`
	Title  string `json:"title"`
	Year   int    `json:"year"`
}

// Episode is one imported episode.
type Episode struct {
	SeasonNumber  int `json:"seasonNumber"`
	EpisodeNumber int `json:"episodeNumber"`
}

// Release carries quality information about the grabbed release.
type Release struct {
	Quality string `json:"quality"`
}

// File carries quality information about the imported file.
type File struct {
	Quality string `json:"quality"`
	Width   int    `json:"width"`
}

const eventDownload = "Download"
const eventTest = "Test"

// is4K classifies the notification's variant from whatever quality
// evidence the payload carries.
func (p *Payload) is4K() bool {
	quality := ""
	if p.Release != nil {
		quality = p.Release.Quality
	}
	if quality == "" && p.MovieFile != nil {
		quality = p.MovieFile.Quality
	}
	q := strings.ToLower(quality)
	if strings.Contains(q, "2160p") || strings.Contains(q, "4k") {
		return true
	}
	return p.MovieFile != nil && p.MovieFile.Width >= 3840
}

// Handler applies import notifications to media records.
type Handler struct {
	engine  *reconcile.Engine
	mediaDB *media.Store
	catalog *catalog.Client // nil disables id resolution by title
	serial  *writer.Serializer
	logger  *slog.Logger
}

// NewHandler creates a webhook handler. catalogClient is optional.
func NewHandler(engine *reconcile.Engine, mediaDB *media.Store,
	catalogClient *catalog.Client, serial *writer.Serializer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:  engine,
		mediaDB: mediaDB,
		catalog: catalogClient,
		serial:  serial,
		logger:  logger.With("component", "webhook"),
	}
}

// Handle processes one notification. Test pings and event types other
// than Download succeed as no-ops; a notification for a title that
// cannot be identified is logged and dropped rather than failed, since
// the server will not retry.
func (h *Handler) Handle(ctx context.Context, p *Payload) error {
	switch p.EventType {
	case eventTest:
		h.logger.Info("webhook test received")
		return nil
	case eventDownload:
	default:
		h.logger.Debug("ignoring webhook event", "event_type", p.EventType)
		return nil
	}

	switch {
	case p.Movie != nil:
		return h.handleMovie(ctx, p)
	case p.Series != nil:
		return h.handleSeries(ctx, p)
	default:
		h.logger.Debug("download webhook without movie or series, skipping")
		return nil
	}
}

func (h *Handler) handleMovie(ctx context.Context, p *Payload) error {
	tmdbID := p.Movie.TMDBID
	if tmdbID == 0 {
		var err error
		tmdbID, err = h.resolveMovie(ctx, p.Movie.Title, p.Movie.Year)
		if err != nil {
			return err
		}
		if tmdbID == 0 {
			h.logger.Warn("movie not found, skipping", "title", p.Movie.Title, "year", p.Movie.Year)
			return nil
		}
	}

	is4k := p.is4K()
	if _, err := h.engine.ApplyMedia(ctx, media.TypeMovie, tmdbID, media.StatusAvailable, is4k); err != nil {
		return fmt.Errorf("movie import %d: %w", tmdbID, err)
	}
	h.logger.Info("movie import applied", "tmdb_id", tmdbID, "is_4k", is4k)
	return h.engine.MarkRequestsAvailable(ctx, media.TypeMovie, tmdbID, is4k)
}

func (h *Handler) handleSeries(ctx context.Context, p *Payload) error {
	tmdbID := p.Series.TMDBID
	if tmdbID == 0 {
		var err error
		tmdbID, err = h.resolveSeries(ctx, p.Series.TVDBID, p.Series.Title, p.Series.Year)
		if err != nil {
			return err
		}
		if tmdbID == 0 {
			h.logger.Warn("series not found, skipping",
				"title", p.Series.Title, "tvdb_id", p.Series.TVDBID)
			return nil
		}
	}

	is4k := p.is4K()

	// An episode import proves partial availability at most; full
	// availability waits for library-sync episode counts.
	rec, err := h.engine.ApplyMedia(ctx, media.TypeTV, tmdbID, media.StatusPartiallyAvailable, is4k)
	if err != nil {
		return fmt.Errorf("series import %d: %w", tmdbID, err)
	}
	if p.Series.TVDBID != 0 && rec.TVDBID == nil {
		if err := h.serial.Do(ctx, "webhook.tvdb_id", func() error {
			return h.mediaDB.SetTVDBID(rec.ID, p.Series.TVDBID)
		}); err != nil {
			return err
		}
	}

	seen := map[int]bool{}
	for _, ep := range p.Episodes {
		if seen[ep.SeasonNumber] {
			continue
		}
		seen[ep.SeasonNumber] = true
		if err := h.engine.ApplySeason(ctx, rec.ID, ep.SeasonNumber, media.StatusPartiallyAvailable, is4k); err != nil {
			return err
		}
	}
	h.logger.Info("series import applied", "tmdb_id", tmdbID, "seasons", len(seen), "is_4k", is4k)

	// Like the movie path: a Download event means the server delivered
	// what the dispatched request asked for, so the matching
	// processing/approved requests are fulfilled even though the media
	// record itself waits for the sync's episode totals.
	return h.engine.MarkRequestsAvailable(ctx, media.TypeTV, tmdbID, is4k)
}

// resolveMovie finds a TMDB id for a payload that did not carry one,
// matching search results on normalized title plus year.
func (h *Handler) resolveMovie(ctx context.Context, title string, year int) (int64, error) {
	if h.catalog == nil || title == "" {
		return 0, nil
	}
	results, err := h.catalog.SearchMovie(ctx, title, year)
	if err != nil {
		return 0, fmt.Errorf("search movie %q: %w", title, err)
	}
	for i := range results {
		if !titles.Match(title, results[i].Title) {
			continue
		}
		if year != 0 && results[i].Year() != 0 && results[i].Year() != year {
			continue
		}
		return results[i].ID, nil
	}
	return 0, nil
}

// resolveSeries prefers an exact external-id match on the payload's
// TVDB id, falling back to fuzzy title matching.
func (h *Handler) resolveSeries(ctx context.Context, tvdbID int64, title string, year int) (int64, error) {
	if h.catalog == nil || title == "" {
		return 0, nil
	}
	results, err := h.catalog.SearchTV(ctx, title, year)
	if err != nil {
		return 0, fmt.Errorf("search series %q: %w", title, err)
	}

	if tvdbID != 0 {
		for i := range results {
			ext, err := h.catalog.GetTVExternalIDs(ctx, results[i].ID)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return 0, err
				}
				continue
			}
			if ext.TVDBID == tvdbID {
				return results[i].ID, nil
			}
		}
	}

	for i := range results {
		if !titles.Match(title, results[i].Name) {
			continue
		}
		if year != 0 && results[i].Year() != 0 && results[i].Year() != year {
			continue
		}
		return results[i].ID, nil
	}
	return 0, nil
}
