package cache

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/streamarr/streamarr/internal/migrations"
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

func TestStore_UpsertMovie(t *testing.T) {
	store := NewStore(setupTestDB(t))

	e := &MovieEntry{ServerID: 1, TMDBID: 603, ServiceID: 10, Title: "The Matrix", Monitored: true}
	require.NoError(t, store.UpsertMovie(e))

	got, err := store.GetMovie(1, 603)
	require.NoError(t, err)
	assert.Equal(t, "The Matrix", got.Title)
	assert.False(t, got.HasFile)

	// Second upsert updates mutable fields in place.
	e.HasFile = true
	require.NoError(t, store.UpsertMovie(e))

	got, err = store.GetMovie(1, 603)
	require.NoError(t, err)
	assert.True(t, got.HasFile)

	n, err := store.CountForServer("movie_cache", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_UpsertSeries(t *testing.T) {
	store := NewStore(setupTestDB(t))

	e := &SeriesEntry{ServerID: 2, TMDBID: 1396, TVDBID: 81189, ServiceID: 5,
		Title: "Breaking Bad", EpisodeCount: 62, EpisodeFileCount: 30, Monitored: true}
	require.NoError(t, store.UpsertSeries(e))

	got, err := store.GetSeries(2, 1396)
	require.NoError(t, err)
	assert.Equal(t, 30, got.EpisodeFileCount)
	assert.True(t, got.PartiallyDownloaded())
	assert.False(t, got.FullyDownloaded())

	e.EpisodeFileCount = 62
	require.NoError(t, store.UpsertSeries(e))
	got, err = store.GetSeries(2, 1396)
	require.NoError(t, err)
	assert.True(t, got.FullyDownloaded())
}

func TestSeriesEntry_Classification(t *testing.T) {
	none := &SeriesEntry{EpisodeCount: 10, EpisodeFileCount: 0}
	assert.False(t, none.FullyDownloaded())
	assert.False(t, none.PartiallyDownloaded())

	// A series with no known episodes is never "fully downloaded".
	empty := &SeriesEntry{EpisodeCount: 0, EpisodeFileCount: 0}
	assert.False(t, empty.FullyDownloaded())
}

func TestStore_EvictStaleMovies(t *testing.T) {
	store := NewStore(setupTestDB(t))

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, store.UpsertMovie(&MovieEntry{ServerID: 1, TMDBID: id, ServiceID: id}))
	}
	// A different server's row must never be evicted.
	require.NoError(t, store.UpsertMovie(&MovieEntry{ServerID: 2, TMDBID: 1, ServiceID: 1}))

	evicted, err := store.EvictStaleMovies(1, []int64{1, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), evicted)

	_, err = store.GetMovie(1, 2)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetMovie(2, 1)
	assert.NoError(t, err, "other server's rows untouched")
}

func TestStore_EvictStaleMovies_EmptySeenClearsServer(t *testing.T) {
	store := NewStore(setupTestDB(t))

	require.NoError(t, store.UpsertMovie(&MovieEntry{ServerID: 1, TMDBID: 1, ServiceID: 1}))
	require.NoError(t, store.UpsertMovie(&MovieEntry{ServerID: 1, TMDBID: 2, ServiceID: 2}))

	evicted, err := store.EvictStaleMovies(1, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), evicted)
}

func TestStore_MoviesByTMDB_AcrossServers(t *testing.T) {
	store := NewStore(setupTestDB(t))

	require.NoError(t, store.UpsertMovie(&MovieEntry{ServerID: 1, TMDBID: 603, ServiceID: 1}))
	require.NoError(t, store.UpsertMovie(&MovieEntry{ServerID: 2, TMDBID: 603, ServiceID: 2, HasFile: true}))
	require.NoError(t, store.UpsertMovie(&MovieEntry{ServerID: 1, TMDBID: 700, ServiceID: 3}))

	got, err := store.MoviesByTMDB(603)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ServerID)
	assert.Equal(t, int64(2), got[1].ServerID)
}

func TestStore_TxAtomicity(t *testing.T) {
	store := NewStore(setupTestDB(t))

	tx, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.UpsertSeries(&SeriesEntry{ServerID: 1, TMDBID: 1396, ServiceID: 1}))
	require.NoError(t, tx.Rollback())

	_, err = store.GetSeries(1, 1396)
	assert.ErrorIs(t, err, ErrNotFound)

	tx, err = store.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.UpsertSeries(&SeriesEntry{ServerID: 1, TMDBID: 1396, ServiceID: 1}))
	_, err = tx.EvictStaleSeries(1, []int64{1396})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = store.GetSeries(1, 1396)
	assert.NoError(t, err)
}
