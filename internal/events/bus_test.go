package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeByType(t *testing.T) {
	bus := NewBus(nil, nil)
	defer bus.Close()

	created := bus.Subscribe(EventRequestCreated, 4)
	approved := bus.Subscribe(EventRequestApproved, 4)

	e := NewRequestEvent(EventRequestCreated, 1, 2, 603, "movie", false)
	require.NoError(t, bus.Publish(context.Background(), e))

	select {
	case got := <-created:
		assert.Equal(t, EventRequestCreated, got.EventType())
		assert.Equal(t, int64(1), got.EntityID())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case <-approved:
		t.Fatal("event delivered to wrong subscription")
	default:
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus(nil, nil)
	defer bus.Close()

	all := bus.SubscribeAll(4)

	require.NoError(t, bus.Publish(context.Background(), NewRequestEvent(EventRequestCreated, 1, 2, 603, "movie", false)))
	require.NoError(t, bus.Publish(context.Background(), NewMediaAvailable(5, 603, "movie", false)))

	assert.Equal(t, EventRequestCreated, (<-all).EventType())
	assert.Equal(t, EventMediaAvailable, (<-all).EventType())
}

func TestBus_FullChannelDropsEvent(t *testing.T) {
	bus := NewBus(nil, nil)
	defer bus.Close()

	ch := bus.Subscribe(EventRequestCreated, 1)

	// Second publish finds the buffer full; Publish must not block.
	for i := 0; i < 2; i++ {
		require.NoError(t, bus.Publish(context.Background(),
			NewRequestEvent(EventRequestCreated, int64(i+1), 2, 603, "movie", false)))
	}

	got := <-ch
	assert.Equal(t, int64(1), got.EntityID())
	select {
	case <-ch:
		t.Fatal("overflow event should have been dropped")
	default:
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil, nil)
	defer bus.Close()

	ch := bus.Subscribe(EventRequestCreated, 4)
	bus.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	require.NoError(t, bus.Publish(context.Background(), NewRequestEvent(EventRequestCreated, 1, 2, 603, "movie", false)))
}

func TestBus_CloseIdempotent(t *testing.T) {
	bus := NewBus(nil, nil)
	ch := bus.SubscribeAll(4)

	bus.Close()
	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after close is a no-op.
	require.NoError(t, bus.Publish(context.Background(), NewRequestEvent(EventRequestCreated, 1, 2, 603, "movie", false)))
}

func TestBus_PersistsToLog(t *testing.T) {
	db := setupTestDB(t)
	log := NewEventLog(db)
	bus := NewBus(log, nil)
	defer bus.Close()

	require.NoError(t, bus.Publish(context.Background(), NewRequestEvent(EventRequestCreated, 1, 2, 603, "movie", false)))

	stored, err := log.ForEntity("request", 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, EventRequestCreated, stored[0].EventType)
	assert.Contains(t, stored[0].Payload, `"tmdb_id":603`)
}
