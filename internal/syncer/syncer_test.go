package syncer

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	_ "modernc.org/sqlite"

	"github.com/streamarr/streamarr/internal/cache"
	"github.com/streamarr/streamarr/internal/dlm"
	"github.com/streamarr/streamarr/internal/dlm/mocks"
	"github.com/streamarr/streamarr/internal/events"
	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/internal/migrations"
	"github.com/streamarr/streamarr/internal/reconcile"
	"github.com/streamarr/streamarr/internal/request"
	"github.com/streamarr/streamarr/internal/writer"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(migrations.InitialSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

type syncFixture struct {
	syncer   *Syncer
	servers  *dlm.ServerStore
	cache    *cache.Store
	media    *media.Store
	requests *request.Store
	bus      *events.Bus
	movies   *mocks.MockMovieService
	series   *mocks.MockSeriesService
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	db := setupTestDB(t)
	ctrl := gomock.NewController(t)

	serial := writer.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = serial.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	f := &syncFixture{
		servers:  dlm.NewServerStore(db),
		cache:    cache.NewStore(db),
		media:    media.NewStore(db),
		requests: request.NewStore(db),
		bus:      events.NewBus(nil, nil),
		movies:   mocks.NewMockMovieService(ctrl),
		series:   mocks.NewMockSeriesService(ctrl),
	}
	t.Cleanup(f.bus.Close)

	engine := reconcile.NewEngine(f.media, f.cache, f.requests, nil, serial, f.bus, nil)
	f.syncer = New(f.servers, f.cache, f.media, f.requests, engine, serial, f.bus, nil,
		WithMovieClient(func(*dlm.Server) dlm.MovieService { return f.movies }),
		WithSeriesClient(func(*dlm.Server) dlm.SeriesService { return f.series }),
	)
	return f
}

func (f *syncFixture) addMovieServer(t *testing.T, name string) *dlm.Server {
	t.Helper()
	srv := &dlm.Server{Name: name, Type: media.TypeMovie, URL: "http://" + name, Active: true}
	require.NoError(t, f.servers.Add(srv))
	return srv
}

func (f *syncFixture) addSeriesServer(t *testing.T, name string) *dlm.Server {
	t.Helper()
	srv := &dlm.Server{Name: name, Type: media.TypeTV, URL: "http://" + name, Active: true, IsDefault: true}
	require.NoError(t, f.servers.Add(srv))
	return srv
}

func TestSync_PullsLibraryAndEvicts(t *testing.T) {
	f := newSyncFixture(t)
	srv := f.addMovieServer(t, "radarr")

	// A previously cached title the server no longer reports.
	require.NoError(t, f.cache.UpsertMovie(&cache.MovieEntry{
		ServerID: srv.ID, TMDBID: 550, ServiceID: 1, Title: "Fight Club", HasFile: true,
	}))

	f.movies.EXPECT().ListMovies(gomock.Any()).Return([]*dlm.Movie{
		{ServiceID: 2, TMDBID: 603, Title: "The Matrix", HasFile: true},
		{ServiceID: 3, TMDBID: 604, Title: "The Matrix Reloaded", Monitored: true},
	}, nil)

	done := f.bus.Subscribe(events.EventSyncCompleted, 1)
	require.NoError(t, f.syncer.Sync(context.Background()))

	entries, err := f.cache.MoviesByTMDB(603)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].HasFile)

	stale, err := f.cache.MoviesByTMDB(550)
	require.NoError(t, err)
	assert.Empty(t, stale)

	res := f.syncer.LastResult()
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Servers)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 2, res.Movies)
	assert.Equal(t, int64(1), res.Evicted)

	got, err := f.servers.Get(srv.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastLibrarySync)

	select {
	case evt := <-done:
		assert.Equal(t, events.EventSyncCompleted, evt.EventType())
	case <-time.After(time.Second):
		t.Fatal("sync completion event not published")
	}
}

func TestSync_Idempotent(t *testing.T) {
	f := newSyncFixture(t)
	f.addMovieServer(t, "radarr")

	library := []*dlm.Movie{{ServiceID: 2, TMDBID: 603, Title: "The Matrix", HasFile: true}}
	f.movies.EXPECT().ListMovies(gomock.Any()).Return(library, nil).Times(2)

	require.NoError(t, f.syncer.Sync(context.Background()))
	require.NoError(t, f.syncer.Sync(context.Background()))

	entries, err := f.cache.MoviesByTMDB(603)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(0), f.syncer.LastResult().Evicted)
}

func TestSync_FulfillsMovieRequest(t *testing.T) {
	f := newSyncFixture(t)
	f.addMovieServer(t, "radarr")

	req := &request.Request{UserID: 1, TMDBID: 603, Type: media.TypeMovie, Status: request.StatusProcessing}
	require.NoError(t, f.requests.Add(req))

	f.movies.EXPECT().ListMovies(gomock.Any()).Return([]*dlm.Movie{
		{ServiceID: 2, TMDBID: 603, Title: "The Matrix", HasFile: true},
	}, nil)

	require.NoError(t, f.syncer.Sync(context.Background()))

	got, err := f.requests.Get(req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusAvailable, got.Status)

	rec, err := f.media.GetByTMDB(media.TypeMovie, 603)
	require.NoError(t, err)
	assert.Equal(t, media.StatusAvailable, rec.Status)
}

func TestSync_SeriesSeasonCoverage(t *testing.T) {
	f := newSyncFixture(t)
	f.addSeriesServer(t, "sonarr")

	// Request covers season 1 only; the series as a whole is partial.
	req := &request.Request{
		UserID: 1, TMDBID: 1396, Type: media.TypeTV,
		Seasons: []int{1}, Status: request.StatusProcessing,
	}
	require.NoError(t, f.requests.Add(req))

	f.series.EXPECT().ListSeries(gomock.Any()).Return([]*dlm.Series{
		{ServiceID: 3, TMDBID: 1396, TVDBID: 81189, Title: "Breaking Bad", EpisodeCount: 20, EpisodeFileCount: 7},
	}, nil)
	f.series.EXPECT().GetSeries(gomock.Any(), int64(81189)).Return(&dlm.Series{
		ServiceID: 3, TMDBID: 1396, TVDBID: 81189,
		Seasons: []dlm.SeasonStats{
			{SeasonNumber: 1, EpisodeCount: 7, EpisodeFileCount: 7},
			{SeasonNumber: 2, EpisodeCount: 13, EpisodeFileCount: 0, Monitored: true},
		},
	}, nil)

	require.NoError(t, f.syncer.Sync(context.Background()))

	got, err := f.requests.Get(req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusAvailable, got.Status)

	rec, err := f.media.GetByTMDB(media.TypeTV, 1396)
	require.NoError(t, err)
	assert.Equal(t, media.StatusPartiallyAvailable, rec.Status)
	require.NotNil(t, rec.TVDBID)

	se, err := f.media.GetSeason(rec.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, media.StatusAvailable, se.Status)
	se, err = f.media.GetSeason(rec.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, media.StatusProcessing, se.Status)
}

func TestSync_FailingServerDoesNotBlockOthers(t *testing.T) {
	f := newSyncFixture(t)
	f.addMovieServer(t, "broken")
	f.addMovieServer(t, "healthy")

	gomock.InOrder(
		f.movies.EXPECT().ListMovies(gomock.Any()).Return(nil, errors.New("connection refused")),
		f.movies.EXPECT().ListMovies(gomock.Any()).Return([]*dlm.Movie{
			{ServiceID: 2, TMDBID: 603, Title: "The Matrix", HasFile: true},
		}, nil),
	)

	require.NoError(t, f.syncer.Sync(context.Background()))

	res := f.syncer.LastResult()
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Servers)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Movies)

	entries, err := f.cache.MoviesByTMDB(603)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSync_SingleFlight(t *testing.T) {
	f := newSyncFixture(t)
	f.addMovieServer(t, "radarr")

	release := make(chan struct{})
	f.movies.EXPECT().ListMovies(gomock.Any()).DoAndReturn(func(context.Context) ([]*dlm.Movie, error) {
		<-release
		return nil, nil
	})

	first := make(chan error, 1)
	go func() { first <- f.syncer.Sync(context.Background()) }()

	require.Eventually(t, func() bool { return f.syncer.Running() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, f.syncer.Sync(context.Background()), ErrSyncInProgress)
	assert.ErrorIs(t, f.syncer.Trigger(), ErrSyncInProgress)

	close(release)
	require.NoError(t, <-first)
	assert.False(t, f.syncer.Running())
}

func TestSync_AvailabilitySweep(t *testing.T) {
	f := newSyncFixture(t)
	f.addMovieServer(t, "radarr")

	rec, err := f.media.Ensure(media.TypeMovie, 603)
	require.NoError(t, err)
	_, err = f.media.ApplyStatus(rec.ID, media.StatusAvailable, false)
	require.NoError(t, err)
	// 4K variant available too, but no 4K server is configured.
	_, err = f.media.ApplyStatus(rec.ID, media.StatusAvailable, true)
	require.NoError(t, err)

	// The server no longer reports the title at all.
	f.movies.EXPECT().ListMovies(gomock.Any()).Return([]*dlm.Movie{}, nil)

	require.NoError(t, f.syncer.Sync(context.Background()))

	got, err := f.media.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, media.StatusDeleted, got.Status)
	// No 4K server reported, so its absence is not evidence of deletion.
	assert.Equal(t, media.StatusAvailable, got.Status4k)
	assert.NotNil(t, got.LastAvailabilityCheck)
}

func TestRequestCovered(t *testing.T) {
	seasons := []reconcile.SeasonStatus{
		{SeasonNumber: 1, Status: media.StatusAvailable},
		{SeasonNumber: 2, Status: media.StatusPartiallyAvailable, Status4k: media.StatusAvailable},
	}

	all := &request.Request{}
	assert.False(t, requestCovered(all, media.StatusPartiallyAvailable, seasons))
	assert.True(t, requestCovered(all, media.StatusAvailable, nil))

	one := &request.Request{Seasons: []int{1}}
	assert.True(t, requestCovered(one, media.StatusPartiallyAvailable, seasons))

	two := &request.Request{Seasons: []int{1, 2}}
	assert.False(t, requestCovered(two, media.StatusPartiallyAvailable, seasons))

	two4k := &request.Request{Seasons: []int{2}, Is4K: true}
	assert.True(t, requestCovered(two4k, media.StatusPartiallyAvailable, seasons))

	missing := &request.Request{Seasons: []int{9}}
	assert.False(t, requestCovered(missing, media.StatusAvailable, seasons))
}

func TestPickSeriesServer(t *testing.T) {
	a := &dlm.Server{ID: 1}
	b := &dlm.Server{ID: 2, IsDefault: true}
	uhd := &dlm.Server{ID: 3, Is4K: true}

	assert.Equal(t, b, pickSeriesServer([]*dlm.Server{a, b, uhd}, false))
	assert.Equal(t, uhd, pickSeriesServer([]*dlm.Server{a, b, uhd}, true))
	assert.Equal(t, a, pickSeriesServer([]*dlm.Server{a}, false))
	assert.Nil(t, pickSeriesServer([]*dlm.Server{a}, true))
}

func TestRun_InitialSyncAndShutdown(t *testing.T) {
	f := newSyncFixture(t)
	f.addMovieServer(t, "radarr")

	f.movies.EXPECT().ListMovies(gomock.Any()).Return([]*dlm.Movie{}, nil).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.syncer.Run(ctx) }()

	require.Eventually(t, func() bool { return f.syncer.LastResult() != nil }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
