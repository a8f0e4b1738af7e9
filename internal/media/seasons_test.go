package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ApplySeasonStatus_CreatesOnFirstObservation(t *testing.T) {
	store := NewStore(setupTestDB(t))
	rec, err := store.Ensure(TypeTV, 1396)
	require.NoError(t, err)

	got, err := store.ApplySeasonStatus(rec.ID, 1, StatusRequested, false)
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, got)

	se, err := store.GetSeason(rec.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, se.Status)
	assert.Equal(t, StatusUnknown, se.Status4k)
}

func TestStore_ApplySeasonStatus_Monotonic(t *testing.T) {
	store := NewStore(setupTestDB(t))
	rec, err := store.Ensure(TypeTV, 1396)
	require.NoError(t, err)

	_, err = store.ApplySeasonStatus(rec.ID, 2, StatusAvailable, false)
	require.NoError(t, err)

	got, err := store.ApplySeasonStatus(rec.ID, 2, StatusProcessing, false)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, got, "season status never regresses")
}

func TestStore_ApplySeasonStatus_VariantsIndependent(t *testing.T) {
	store := NewStore(setupTestDB(t))
	rec, err := store.Ensure(TypeTV, 1396)
	require.NoError(t, err)

	_, err = store.ApplySeasonStatus(rec.ID, 3, StatusAvailable, true)
	require.NoError(t, err)

	se, err := store.GetSeason(rec.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, se.Status)
	assert.Equal(t, StatusAvailable, se.Status4k)
}

func TestStore_ListSeasons_Ordered(t *testing.T) {
	store := NewStore(setupTestDB(t))
	rec, err := store.Ensure(TypeTV, 1396)
	require.NoError(t, err)

	for _, n := range []int{3, 1, 2} {
		_, err := store.ApplySeasonStatus(rec.ID, n, StatusRequested, false)
		require.NoError(t, err)
	}

	seasons, err := store.ListSeasons(rec.ID)
	require.NoError(t, err)
	require.Len(t, seasons, 3)
	for i, se := range seasons {
		assert.Equal(t, i+1, se.SeasonNumber)
	}
}

func TestStore_GetSeason_NotFound(t *testing.T) {
	store := NewStore(setupTestDB(t))
	rec, err := store.Ensure(TypeTV, 1396)
	require.NoError(t, err)

	_, err = store.GetSeason(rec.ID, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}
