// Package syncer pulls download-manager libraries into the local cache
// on a schedule and reconciles request and media statuses afterwards.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/streamarr/streamarr/internal/cache"
	"github.com/streamarr/streamarr/internal/dlm"
	"github.com/streamarr/streamarr/internal/events"
	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/internal/reconcile"
	"github.com/streamarr/streamarr/internal/request"
	"github.com/streamarr/streamarr/internal/writer"
)

// ErrSyncInProgress is returned when a sync is requested while one is
// already running. The caller should treat it as "your work is being
// done", not as a failure.
var ErrSyncInProgress = errors.New("library sync already in progress")

// DefaultInterval is how often the background loop syncs when the
// config does not say otherwise.
const DefaultInterval = 30 * time.Minute

// Result summarizes one completed sync pass.
type Result struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Servers    int
	Failed     int
	Movies     int
	Series     int
	Evicted    int64
}

// Syncer owns the library sync loop. All cache and status writes go
// through the serializer.
type Syncer struct {
	servers    *dlm.ServerStore
	cacheStore *cache.Store
	mediaStore *media.Store
	requests   *request.Store
	engine     *reconcile.Engine
	serial     *writer.Serializer
	bus        *events.Bus
	logger     *slog.Logger

	interval time.Duration
	trigger  chan struct{}
	running  atomic.Bool
	last     atomic.Pointer[Result]

	// replaceable for tests
	movieClient  func(*dlm.Server) dlm.MovieService
	seriesClient func(*dlm.Server) dlm.SeriesService
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithInterval sets the background sync interval.
func WithInterval(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMovieClient overrides the movie-server client constructor.
func WithMovieClient(fn func(*dlm.Server) dlm.MovieService) Option {
	return func(s *Syncer) { s.movieClient = fn }
}

// WithSeriesClient overrides the series-server client constructor.
func WithSeriesClient(fn func(*dlm.Server) dlm.SeriesService) Option {
	return func(s *Syncer) { s.seriesClient = fn }
}

// New creates a Syncer. bus is optional.
func New(servers *dlm.ServerStore, cacheStore *cache.Store, mediaStore *media.Store,
	requests *request.Store, engine *reconcile.Engine, serial *writer.Serializer,
	bus *events.Bus, logger *slog.Logger, opts ...Option) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Syncer{
		servers:    servers,
		cacheStore: cacheStore,
		mediaStore: mediaStore,
		requests:   requests,
		engine:     engine,
		serial:     serial,
		bus:        bus,
		logger:     logger.With("component", "syncer"),
		interval:   DefaultInterval,
		trigger:    make(chan struct{}, 1),
		movieClient: func(srv *dlm.Server) dlm.MovieService {
			return dlm.NewRadarrClient(srv, logger)
		},
		seriesClient: func(srv *dlm.Server) dlm.SeriesService {
			return dlm.NewSonarrClient(srv, logger)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether a sync pass is currently in flight.
func (s *Syncer) Running() bool { return s.running.Load() }

// LastResult returns the most recent completed pass, or nil.
func (s *Syncer) LastResult() *Result { return s.last.Load() }

// Trigger asks the background loop to start a pass now. Returns
// ErrSyncInProgress when one is already running.
func (s *Syncer) Trigger() error {
	if s.running.Load() {
		return ErrSyncInProgress
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Run is the background loop: one pass at startup, then on every tick
// or manual trigger until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("initial library sync failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.trigger:
		}
		if err := s.Sync(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			if !errors.Is(err, ErrSyncInProgress) {
				s.logger.Error("library sync failed", "error", err)
			}
		}
	}
}

// Sync runs one full pass: pull every active server, then reconcile.
// Only one pass runs at a time; concurrent callers get
// ErrSyncInProgress.
func (s *Syncer) Sync(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer s.running.Store(false)

	res := Result{StartedAt: time.Now().UTC()}

	movieServers, err := s.servers.ListActive(media.TypeMovie)
	if err != nil {
		return fmt.Errorf("list movie servers: %w", err)
	}
	seriesServers, err := s.servers.ListActive(media.TypeTV)
	if err != nil {
		return fmt.Errorf("list series servers: %w", err)
	}
	res.Servers = len(movieServers) + len(seriesServers)

	// A failing server must not block the others; its cache keeps the
	// last successful snapshot.
	for _, srv := range movieServers {
		n, evicted, err := s.syncMovieServer(ctx, srv)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			res.Failed++
			s.logger.Error("movie server sync failed", "server", srv.Name, "error", err)
			continue
		}
		res.Movies += n
		res.Evicted += evicted
	}
	for _, srv := range seriesServers {
		n, evicted, err := s.syncSeriesServer(ctx, srv)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			res.Failed++
			s.logger.Error("series server sync failed", "server", srv.Name, "error", err)
			continue
		}
		res.Series += n
		res.Evicted += evicted
	}

	if err := s.reconcileRequests(ctx, seriesServers); err != nil {
		s.logger.Error("request reconciliation failed", "error", err)
	}
	if err := s.availabilitySweep(ctx); err != nil {
		s.logger.Error("availability sweep failed", "error", err)
	}

	res.FinishedAt = time.Now().UTC()
	s.last.Store(&res)
	s.logger.Info("library sync complete",
		"servers", res.Servers, "failed", res.Failed,
		"movies", res.Movies, "series", res.Series, "evicted", res.Evicted,
		"elapsed", res.FinishedAt.Sub(res.StartedAt))

	if s.bus != nil {
		_ = s.bus.Publish(ctx, events.NewSyncCompleted(res.Servers, res.Failed, res.FinishedAt.Sub(res.StartedAt)))
	}
	return nil
}

// syncMovieServer pulls one server's library and replaces its cache
// slice atomically: upserts plus eviction of ids the server no longer
// reports, in a single transaction.
func (s *Syncer) syncMovieServer(ctx context.Context, srv *dlm.Server) (int, int64, error) {
	movies, err := s.movieClient(srv).ListMovies(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("pull library: %w", err)
	}

	var evicted int64
	err = s.serial.Do(ctx, "syncer.movies", func() error {
		tx, err := s.cacheStore.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		seen := make([]int64, 0, len(movies))
		for _, m := range movies {
			entry := &cache.MovieEntry{
				ServerID:       srv.ID,
				TMDBID:         m.TMDBID,
				ServiceID:      m.ServiceID,
				Title:          m.Title,
				HasFile:        m.HasFile,
				Monitored:      m.Monitored,
				QualityProfile: m.QualityProfile,
			}
			if err := tx.UpsertMovie(entry); err != nil {
				return err
			}
			seen = append(seen, m.TMDBID)
		}
		evicted, err = tx.EvictStaleMovies(srv.ID, seen)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, 0, err
	}

	if err := s.serial.Do(ctx, "syncer.movies_mark", func() error {
		return s.servers.SetLastLibrarySync(srv.ID, time.Now().UTC())
	}); err != nil {
		return 0, 0, err
	}
	return len(movies), evicted, nil
}

func (s *Syncer) syncSeriesServer(ctx context.Context, srv *dlm.Server) (int, int64, error) {
	series, err := s.seriesClient(srv).ListSeries(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("pull library: %w", err)
	}

	var evicted int64
	err = s.serial.Do(ctx, "syncer.series", func() error {
		tx, err := s.cacheStore.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		seen := make([]int64, 0, len(series))
		for _, sr := range series {
			entry := &cache.SeriesEntry{
				ServerID:         srv.ID,
				TMDBID:           sr.TMDBID,
				TVDBID:           sr.TVDBID,
				ServiceID:        sr.ServiceID,
				Title:            sr.Title,
				EpisodeCount:     sr.EpisodeCount,
				EpisodeFileCount: sr.EpisodeFileCount,
				Monitored:        sr.Monitored,
				QualityProfile:   sr.QualityProfile,
			}
			if err := tx.UpsertSeries(entry); err != nil {
				return err
			}
			seen = append(seen, sr.TMDBID)
		}
		evicted, err = tx.EvictStaleSeries(srv.ID, seen)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, 0, err
	}

	if err := s.serial.Do(ctx, "syncer.series_mark", func() error {
		return s.servers.SetLastLibrarySync(srv.ID, time.Now().UTC())
	}); err != nil {
		return 0, 0, err
	}
	return len(series), evicted, nil
}

// reconcileRequests walks requests still waiting on files and merges
// fresh cache evidence into their media records, marking requests
// available when the evidence covers them.
func (s *Syncer) reconcileRequests(ctx context.Context, seriesServers []*dlm.Server) error {
	for _, status := range []request.Status{request.StatusApproved, request.StatusProcessing} {
		st := status
		reqs, _, err := s.requests.List(request.Filter{Status: &st})
		if err != nil {
			return fmt.Errorf("list %s requests: %w", status, err)
		}
		for _, req := range reqs {
			var err error
			if req.Type == media.TypeMovie {
				err = s.reconcileMovieRequest(ctx, req)
			} else {
				err = s.reconcileSeriesRequest(ctx, req, seriesServers)
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				s.logger.Warn("request reconciliation skipped", "request_id", req.ID, "error", err)
			}
		}
	}
	return nil
}

func (s *Syncer) reconcileMovieRequest(ctx context.Context, req *request.Request) error {
	entries, err := s.cacheStore.MoviesByTMDB(req.TMDBID)
	if err != nil {
		return err
	}
	best := media.StatusUnknown
	for _, e := range entries {
		best = media.Merge(best, reconcile.FromMovieEntry(e))
	}
	if best == media.StatusUnknown {
		return nil
	}
	if _, err := s.engine.ApplyMedia(ctx, media.TypeMovie, req.TMDBID, best, req.Is4K); err != nil {
		return err
	}
	if best == media.StatusAvailable {
		return s.engine.MarkRequestsAvailable(ctx, media.TypeMovie, req.TMDBID, req.Is4K)
	}
	return nil
}

func (s *Syncer) reconcileSeriesRequest(ctx context.Context, req *request.Request, seriesServers []*dlm.Server) error {
	entries, err := s.cacheStore.SeriesByTMDB(req.TMDBID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	best := media.StatusUnknown
	var tvdbID int64
	for _, e := range entries {
		best = media.Merge(best, reconcile.FromSeriesEntry(e))
		if e.TVDBID != 0 {
			tvdbID = e.TVDBID
		}
	}

	rec, err := s.engine.ApplyMedia(ctx, media.TypeTV, req.TMDBID, best, req.Is4K)
	if err != nil {
		return err
	}
	if tvdbID != 0 && rec.TVDBID == nil {
		if err := s.serial.Do(ctx, "syncer.tvdb_id", func() error {
			return s.mediaStore.SetTVDBID(rec.ID, tvdbID)
		}); err != nil {
			return err
		}
	}

	// Per-season accounting needs the series detail; list responses
	// only carry totals.
	var live []dlm.SeasonStats
	if tvdbID != 0 {
		if srv := pickSeriesServer(seriesServers, req.Is4K); srv != nil {
			detail, err := s.seriesClient(srv).GetSeries(ctx, tvdbID)
			if err != nil {
				s.logger.Warn("series detail fetch failed", "tvdb_id", tvdbID, "server", srv.Name, "error", err)
			} else {
				live = detail.Seasons
			}
		}
	}
	seasons, err := s.engine.ReconcileSeasons(ctx, rec, live, req.Is4K)
	if err != nil {
		return err
	}

	if requestCovered(req, best, seasons) {
		id := req.ID
		if err := s.serial.Do(ctx, "syncer.request_available", func() error {
			return s.requests.SetStatus(id, request.StatusAvailable)
		}); err != nil {
			return err
		}
		s.logger.Info("request fulfilled", "request_id", id, "tmdb_id", req.TMDBID, "is_4k", req.Is4K)
	}
	return nil
}

// requestCovered reports whether the evidence satisfies every season
// the request asked for. An all-seasons request needs the whole series
// available.
func requestCovered(req *request.Request, overall media.Status, seasons []reconcile.SeasonStatus) bool {
	if req.Seasons == nil {
		return overall == media.StatusAvailable
	}
	for _, n := range req.Seasons {
		ok := false
		for _, s := range seasons {
			if s.SeasonNumber != n {
				continue
			}
			st := s.Status
			if req.Is4K {
				st = s.Status4k
			}
			ok = st == media.StatusAvailable
			break
		}
		if !ok {
			return false
		}
	}
	return true
}

func pickSeriesServer(servers []*dlm.Server, is4k bool) *dlm.Server {
	var fallback *dlm.Server
	for _, srv := range servers {
		if srv.Is4K != is4k {
			continue
		}
		if srv.IsDefault {
			return srv
		}
		if fallback == nil {
			fallback = srv
		}
	}
	return fallback
}

// availabilitySweep demotes records whose files have vanished from
// every server of their variant. The demotion is explicit: Merge never
// lowers a status, so disappearance has its own write path.
func (s *Syncer) availabilitySweep(ctx context.Context) error {
	all, err := s.servers.ListAll()
	if err != nil {
		return fmt.Errorf("list servers: %w", err)
	}
	is4kServer := make(map[int64]bool, len(all))
	hasVariant := map[bool]bool{}
	for _, srv := range all {
		is4kServer[srv.ID] = srv.Is4K
		if srv.Active {
			hasVariant[srv.Is4K] = true
		}
	}

	for _, mediaType := range []media.Type{media.TypeMovie, media.TypeTV} {
		records, err := s.mediaStore.ListByMinStatus(mediaType, media.StatusPartiallyAvailable)
		if err != nil {
			return fmt.Errorf("list %s records: %w", mediaType, err)
		}
		for _, rec := range records {
			if err := s.sweepRecord(ctx, rec, is4kServer, hasVariant); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				s.logger.Warn("availability sweep skipped record", "media_id", rec.ID, "error", err)
			}
		}
	}
	return nil
}

func (s *Syncer) sweepRecord(ctx context.Context, rec *media.Record, is4kServer map[int64]bool, hasVariant map[bool]bool) error {
	present := map[bool]bool{}
	if rec.Type == media.TypeMovie {
		entries, err := s.cacheStore.MoviesByTMDB(rec.TMDBID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.HasFile {
				present[is4kServer[e.ServerID]] = true
			}
		}
	} else {
		entries, err := s.cacheStore.SeriesByTMDB(rec.TMDBID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.EpisodeFileCount > 0 {
				present[is4kServer[e.ServerID]] = true
			}
		}
	}

	for _, is4k := range []bool{false, true} {
		status := rec.Status
		if is4k {
			status = rec.Status4k
		}
		if status != media.StatusAvailable && status != media.StatusPartiallyAvailable {
			continue
		}
		// Only demote when a server of this variant actually reported;
		// an offline server is not evidence of deletion.
		if present[is4k] || !hasVariant[is4k] {
			continue
		}
		if err := s.serial.Do(ctx, "syncer.mark_deleted", func() error {
			return s.mediaStore.SetDeleted(rec.ID, is4k)
		}); err != nil {
			return err
		}
		s.logger.Info("media no longer present, marked deleted",
			"media_id", rec.ID, "tmdb_id", rec.TMDBID, "type", rec.Type, "is_4k", is4k)
	}

	return s.serial.Do(ctx, "syncer.touch_check", func() error {
		return s.mediaStore.TouchAvailabilityCheck(rec.ID)
	})
}
