package request

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/streamarr/streamarr/internal/media"
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

func addRequestRow(t *testing.T, store *Store, r *Request) *Request {
	t.Helper()
	if r.Status == "" {
		r.Status = StatusPending
	}
	require.NoError(t, store.Add(r))
	return r
}

func TestStore_AddAndGet(t *testing.T) {
	store := NewStore(setupTestDB(t))

	r := addRequestRow(t, store, &Request{
		UserID: 1, TMDBID: 603, Type: media.TypeMovie,
	})
	assert.NotZero(t, r.ID)
	assert.False(t, r.RequestedAt.IsZero())

	got, err := store.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(603), got.TMDBID)
	assert.Nil(t, got.Seasons)
	assert.Equal(t, StatusPending, got.Status)
}

func TestStore_SeasonsRoundTrip(t *testing.T) {
	store := NewStore(setupTestDB(t))

	r := addRequestRow(t, store, &Request{
		UserID: 1, TMDBID: 1396, Type: media.TypeTV, Seasons: []int{1, 3, 5},
	})
	got, err := store.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, got.Seasons)

	// nil (all seasons) stays nil, not an empty list.
	all := addRequestRow(t, store, &Request{UserID: 1, TMDBID: 1399, Type: media.TypeTV})
	got, err = store.Get(all.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Seasons)
}

func TestStore_Get_NotFound(t *testing.T) {
	store := NewStore(setupTestDB(t))
	_, err := store.Get(99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_List_Filters(t *testing.T) {
	store := NewStore(setupTestDB(t))

	addRequestRow(t, store, &Request{UserID: 1, TMDBID: 1, Type: media.TypeMovie})
	addRequestRow(t, store, &Request{UserID: 1, TMDBID: 2, Type: media.TypeMovie, Is4K: true})
	addRequestRow(t, store, &Request{UserID: 2, TMDBID: 3, Type: media.TypeTV, Status: StatusDeclined})

	all, total, err := store.List(Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 3, total)

	is4k := true
	got, _, err := store.List(Filter{Is4K: &is4k})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].TMDBID)

	active, _, err := store.List(Filter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	userID := int64(2)
	got, _, err = store.List(Filter{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StatusDeclined, got[0].Status)
}

func TestStore_List_Pagination(t *testing.T) {
	store := NewStore(setupTestDB(t))
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		addRequestRow(t, store, &Request{
			UserID: 1, TMDBID: int64(i + 1), Type: media.TypeMovie,
			RequestedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	page, total, err := store.List(Filter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	// Newest first.
	assert.Equal(t, int64(3), page[0].TMDBID)
	assert.Equal(t, int64(2), page[1].TMDBID)
}

func TestStore_StatusTransitions(t *testing.T) {
	store := NewStore(setupTestDB(t))
	r := addRequestRow(t, store, &Request{UserID: 1, TMDBID: 603, Type: media.TypeMovie})

	require.NoError(t, store.SetStatus(r.ID, StatusApproved))
	require.NoError(t, store.SetApprover(r.ID, 9))
	require.NoError(t, store.SetDispatched(r.ID, 4, 77))

	got, err := store.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
	require.NotNil(t, got.ApproverID)
	assert.Equal(t, int64(9), *got.ApproverID)
	require.NotNil(t, got.ServerID)
	assert.Equal(t, int64(4), *got.ServerID)
	require.NotNil(t, got.ServiceID)
	assert.Equal(t, int64(77), *got.ServiceID)
}

func TestStore_SetFailed(t *testing.T) {
	store := NewStore(setupTestDB(t))
	r := addRequestRow(t, store, &Request{UserID: 1, TMDBID: 603, Type: media.TypeMovie})

	require.NoError(t, store.SetFailed(r.ID, "no download server configured"))
	got, err := store.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.Message)
	assert.Equal(t, "no download server configured", *got.Message)
}

func TestStore_SetStatus_NotFound(t *testing.T) {
	store := NewStore(setupTestDB(t))
	err := store.SetStatus(42, StatusApproved)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CountSince_StrictlyAfter(t *testing.T) {
	store := NewStore(setupTestDB(t))
	cutoff := time.Now().Add(-7 * 24 * time.Hour)

	// Exactly at the boundary: aged out.
	addRequestRow(t, store, &Request{
		UserID: 1, TMDBID: 1, Type: media.TypeMovie, RequestedAt: cutoff,
	})
	// Just inside the window.
	addRequestRow(t, store, &Request{
		UserID: 1, TMDBID: 2, Type: media.TypeMovie, RequestedAt: cutoff.Add(time.Second),
	})
	// Different variant doesn't count.
	addRequestRow(t, store, &Request{
		UserID: 1, TMDBID: 3, Type: media.TypeMovie, Is4K: true, RequestedAt: cutoff.Add(time.Second),
	})

	n, err := store.CountSince(1, media.TypeMovie, false, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_SumSeasonsSince(t *testing.T) {
	store := NewStore(setupTestDB(t))
	since := time.Now().Add(-24 * time.Hour)

	addRequestRow(t, store, &Request{UserID: 1, TMDBID: 1, Type: media.TypeTV, Seasons: []int{1, 2, 3}})
	// nil season list weighs 1.
	addRequestRow(t, store, &Request{UserID: 1, TMDBID: 2, Type: media.TypeTV})
	// Movies never contribute.
	addRequestRow(t, store, &Request{UserID: 1, TMDBID: 3, Type: media.TypeMovie})

	n, err := store.SumSeasonsSince(1, false, since)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestStore_ActiveByMedia(t *testing.T) {
	store := NewStore(setupTestDB(t))

	addRequestRow(t, store, &Request{UserID: 1, TMDBID: 603, Type: media.TypeMovie})
	addRequestRow(t, store, &Request{UserID: 2, TMDBID: 603, Type: media.TypeMovie, Status: StatusRemoved})
	addRequestRow(t, store, &Request{UserID: 3, TMDBID: 603, Type: media.TypeMovie, Is4K: true})

	got, err := store.ActiveByMedia(603, media.TypeMovie, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].UserID)

	// The ledger view carries the same rows, trimmed down.
	summaries, err := store.ActiveSummaries(603, media.TypeMovie, false)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, got[0].ID, summaries[0].RequestID)
	assert.Equal(t, int64(1), summaries[0].UserID)
	assert.Nil(t, summaries[0].Seasons)
}

func TestRequest_SeasonHelpers(t *testing.T) {
	all := &Request{}
	assert.Equal(t, 1, all.SeasonWeight())
	assert.True(t, all.HasSeason(7))

	some := &Request{Seasons: []int{1, 2}}
	assert.Equal(t, 2, some.SeasonWeight())
	assert.True(t, some.HasSeason(2))
	assert.False(t, some.HasSeason(3))
}

func TestStatus_Active(t *testing.T) {
	assert.True(t, StatusPending.Active())
	assert.True(t, StatusAvailable.Active())
	assert.False(t, StatusDeclined.Active())
	assert.False(t, StatusFailed.Active())
	assert.False(t, StatusRemoved.Active())
}
