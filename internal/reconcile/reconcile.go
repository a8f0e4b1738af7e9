// Package reconcile computes the canonical availability status of media
// items and seasons from the request table, the library cache, and
// media-server presence.
//
// Every writer (webhook handler, sync job, lifecycle controller)
// computes a proposed status from its own evidence and merges it here;
// nothing overwrites a status directly, so convergence is monotonic no
// matter which source reports first.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/streamarr/streamarr/internal/cache"
	"github.com/streamarr/streamarr/internal/dlm"
	"github.com/streamarr/streamarr/internal/events"
	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/internal/presence"
	"github.com/streamarr/streamarr/internal/request"
	"github.com/streamarr/streamarr/internal/writer"
)

// Engine merges availability evidence into media and season records.
type Engine struct {
	mediaStore *media.Store
	cacheStore *cache.Store
	requests   *request.Store
	checker    presence.Checker // may be nil when no media server is configured
	serial     *writer.Serializer
	bus        *events.Bus
	logger     *slog.Logger
}

// NewEngine creates a reconciliation engine. checker and bus are
// optional.
func NewEngine(mediaStore *media.Store, cacheStore *cache.Store, requests *request.Store,
	checker presence.Checker, serial *writer.Serializer, bus *events.Bus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		mediaStore: mediaStore,
		cacheStore: cacheStore,
		requests:   requests,
		checker:    checker,
		serial:     serial,
		bus:        bus,
		logger:     logger.With("component", "reconcile"),
	}
}

// FromMovieEntry maps a movie cache entry to its evidence status.
func FromMovieEntry(e *cache.MovieEntry) media.Status {
	switch {
	case e.HasFile:
		return media.StatusAvailable
	case e.Monitored:
		return media.StatusProcessing
	default:
		return media.StatusUnknown
	}
}

// FromSeriesEntry maps a series cache entry to its evidence status.
func FromSeriesEntry(e *cache.SeriesEntry) media.Status {
	switch {
	case e.FullyDownloaded():
		return media.StatusAvailable
	case e.PartiallyDownloaded():
		return media.StatusPartiallyAvailable
	case e.Monitored:
		return media.StatusProcessing
	default:
		return media.StatusUnknown
	}
}

// fromSeasonStats maps live per-season statistics to evidence.
func fromSeasonStats(s dlm.SeasonStats) media.Status {
	switch {
	case s.EpisodeCount > 0 && s.EpisodeFileCount >= s.EpisodeCount:
		return media.StatusAvailable
	case s.EpisodeFileCount > 0:
		return media.StatusPartiallyAvailable
	case s.Monitored:
		return media.StatusProcessing
	default:
		return media.StatusUnknown
	}
}

// ApplyMedia merges proposed evidence into the record for
// (mediaType, tmdbID), creating the record if needed, and returns it
// with the post-merge status. Emits a media.available event when the
// merge crosses into full availability.
func (e *Engine) ApplyMedia(ctx context.Context, mediaType media.Type, tmdbID int64, proposed media.Status, is4k bool) (*media.Record, error) {
	var rec *media.Record
	err := e.serial.Do(ctx, "reconcile.apply_media", func() error {
		var err error
		rec, err = e.mediaStore.Ensure(mediaType, tmdbID)
		if err != nil {
			return err
		}
		before := rec.Status
		if is4k {
			before = rec.Status4k
		}
		after, err := e.mediaStore.ApplyStatus(rec.ID, proposed, is4k)
		if err != nil {
			return err
		}
		if is4k {
			rec.Status4k = after
		} else {
			rec.Status = after
		}
		if after == media.StatusAvailable && before != media.StatusAvailable && e.bus != nil {
			_ = e.bus.Publish(ctx, events.NewMediaAvailable(rec.ID, tmdbID, string(mediaType), is4k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply media %s/%d: %w", mediaType, tmdbID, err)
	}
	return rec, nil
}

// ApplySeason merges proposed evidence into one season of a record.
func (e *Engine) ApplySeason(ctx context.Context, mediaID int64, seasonNumber int, proposed media.Status, is4k bool) error {
	err := e.serial.Do(ctx, "reconcile.apply_season", func() error {
		_, err := e.mediaStore.ApplySeasonStatus(mediaID, seasonNumber, proposed, is4k)
		return err
	})
	if err != nil {
		return fmt.Errorf("apply season %d/%d: %w", mediaID, seasonNumber, err)
	}
	return nil
}

// SeasonStatus is the reconciled status of one season.
type SeasonStatus struct {
	SeasonNumber int
	Status       media.Status
	Status4k     media.Status
}

// ReconcileSeasons computes per-season statuses for a series by
// consulting, in priority order: existing season rows, season lists
// embedded in active requests (requests predating season tracking
// imply every season), and live per-season statistics from the series
// detail. A later signal only wins a column when its ordinal is
// strictly higher. The merged result is persisted back to the season
// rows.
func (e *Engine) ReconcileSeasons(ctx context.Context, rec *media.Record, live []dlm.SeasonStats, liveIs4k bool) ([]SeasonStatus, error) {
	tracked, err := e.mediaStore.ListSeasons(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("list seasons: %w", err)
	}

	merged := make(map[int]*SeasonStatus)
	for _, se := range tracked {
		merged[se.SeasonNumber] = &SeasonStatus{
			SeasonNumber: se.SeasonNumber,
			Status:       se.Status,
			Status4k:     se.Status4k,
		}
	}

	// Requests carry season lists; a pending/approved request is
	// "requested" evidence for each listed season.
	for _, is4k := range []bool{false, true} {
		active, err := e.requests.ActiveByMedia(rec.TMDBID, media.TypeTV, is4k)
		if err != nil {
			return nil, fmt.Errorf("list active requests: %w", err)
		}
		for _, req := range active {
			if req.Seasons == nil {
				continue
			}
			for _, n := range req.Seasons {
				s := seasonEntry(merged, n)
				if is4k {
					s.Status4k = media.Merge(s.Status4k, media.StatusRequested)
				} else {
					s.Status = media.Merge(s.Status, media.StatusRequested)
				}
			}
		}
	}

	for _, stats := range live {
		proposed := fromSeasonStats(stats)
		if proposed == media.StatusUnknown {
			continue
		}
		s := seasonEntry(merged, stats.SeasonNumber)
		if liveIs4k {
			s.Status4k = media.Merge(s.Status4k, proposed)
		} else {
			s.Status = media.Merge(s.Status, proposed)
		}
	}

	results := make([]SeasonStatus, 0, len(merged))
	for _, s := range merged {
		results = append(results, *s)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].SeasonNumber < results[j].SeasonNumber
	})

	// Persist: ApplySeasonStatus re-merges, so persisting the computed
	// view can only move rows forward.
	err = e.serial.Do(ctx, "reconcile.seasons", func() error {
		for _, s := range results {
			if s.Status != media.StatusUnknown {
				if _, err := e.mediaStore.ApplySeasonStatus(rec.ID, s.SeasonNumber, s.Status, false); err != nil {
					return err
				}
			}
			if s.Status4k != media.StatusUnknown {
				if _, err := e.mediaStore.ApplySeasonStatus(rec.ID, s.SeasonNumber, s.Status4k, true); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist seasons: %w", err)
	}
	return results, nil
}

func seasonEntry(m map[int]*SeasonStatus, n int) *SeasonStatus {
	if s, ok := m[n]; ok {
		return s
	}
	s := &SeasonStatus{SeasonNumber: n}
	m[n] = s
	return s
}

// BatchStatus returns a status per TMDB id for one media type and
// variant. Records are consulted first; ids still unknown fall back to
// a live cache classification. The fallback exists because records are
// created lazily and can lag behind the cache.
func (e *Engine) BatchStatus(ctx context.Context, mediaType media.Type, tmdbIDs []int64, is4k bool) (map[int64]media.Status, error) {
	records, err := e.mediaStore.BatchByTMDB(mediaType, tmdbIDs)
	if err != nil {
		return nil, fmt.Errorf("batch records: %w", err)
	}

	results := make(map[int64]media.Status, len(tmdbIDs))
	for _, id := range tmdbIDs {
		status := media.StatusUnknown
		if rec, ok := records[id]; ok {
			if is4k {
				status = rec.Status4k
			} else {
				status = rec.Status
			}
		}
		if status == media.StatusUnknown {
			status, err = e.cacheStatus(mediaType, id)
			if err != nil {
				return nil, err
			}
		}
		results[id] = status
	}
	return results, nil
}

// cacheStatus classifies one id straight from the library cache.
func (e *Engine) cacheStatus(mediaType media.Type, tmdbID int64) (media.Status, error) {
	if mediaType == media.TypeMovie {
		entries, err := e.cacheStore.MoviesByTMDB(tmdbID)
		if err != nil {
			return media.StatusUnknown, fmt.Errorf("movie cache %d: %w", tmdbID, err)
		}
		best := media.StatusUnknown
		for _, entry := range entries {
			best = media.Merge(best, FromMovieEntry(entry))
		}
		if best == media.StatusUnknown && len(entries) > 0 {
			best = media.StatusProcessing
		}
		return best, nil
	}

	entries, err := e.cacheStore.SeriesByTMDB(tmdbID)
	if err != nil {
		return media.StatusUnknown, fmt.Errorf("series cache %d: %w", tmdbID, err)
	}
	best := media.StatusUnknown
	for _, entry := range entries {
		switch {
		case entry.FullyDownloaded():
			best = media.Merge(best, media.StatusAvailable)
		case entry.PartiallyDownloaded():
			best = media.Merge(best, media.StatusPartiallyAvailable)
		default:
			best = media.Merge(best, media.StatusProcessing)
		}
	}
	return best, nil
}

// CheckPresence asks the media server for the title and, when found,
// merges full availability and stores the presence key. Presence
// overrides an un-synced cache miss because the media-server scan can
// run ahead of the next library sync.
func (e *Engine) CheckPresence(ctx context.Context, rec *media.Record, title string, year int) (bool, error) {
	if e.checker == nil {
		return false, nil
	}
	found, key, err := e.checker.HasMedia(ctx, rec.Type, rec.TMDBID, title, year)
	if err != nil {
		return false, fmt.Errorf("presence check %s/%d: %w", rec.Type, rec.TMDBID, err)
	}
	if !found {
		return false, nil
	}

	if _, err := e.ApplyMedia(ctx, rec.Type, rec.TMDBID, media.StatusAvailable, false); err != nil {
		return true, err
	}
	if key != "" {
		err := e.serial.Do(ctx, "reconcile.plex_key", func() error {
			return e.mediaStore.SetPlexKey(rec.ID, key)
		})
		if err != nil && !errors.Is(err, media.ErrNotFound) {
			return true, err
		}
	}
	return true, nil
}

// MarkRequestsAvailable moves the active processing/approved requests
// for (tmdb, type, 4k) to available. Called when evidence shows full
// coverage.
func (e *Engine) MarkRequestsAvailable(ctx context.Context, mediaType media.Type, tmdbID int64, is4k bool) error {
	active, err := e.requests.ActiveByMedia(tmdbID, mediaType, is4k)
	if err != nil {
		return fmt.Errorf("list active requests: %w", err)
	}
	for _, req := range active {
		if req.Status != request.StatusProcessing && req.Status != request.StatusApproved {
			continue
		}
		id := req.ID
		err := e.serial.Do(ctx, "reconcile.request_available", func() error {
			return e.requests.SetStatus(id, request.StatusAvailable)
		})
		if err != nil {
			return fmt.Errorf("mark request %d available: %w", id, err)
		}
		e.logger.Info("request fulfilled", "request_id", id, "tmdb_id", tmdbID, "is_4k", is4k)
	}
	return nil
}
