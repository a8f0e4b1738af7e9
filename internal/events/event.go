// Package events provides the pub/sub bus and persistent event log for
// request lifecycle and availability changes.
package events

import "time"

// Event is the base interface all events implement.
type Event interface {
	EventType() string
	EntityType() string // "request", "media"
	EntityID() int64
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Type      string    `json:"type"`
	Entity    string    `json:"entity_type"`
	ID        int64     `json:"entity_id"`
	Timestamp time.Time `json:"occurred_at"`
}

func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) EntityType() string    { return e.Entity }
func (e BaseEvent) EntityID() int64       { return e.ID }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent creates a BaseEvent with the current timestamp.
func NewBaseEvent(eventType, entityType string, entityID int64) BaseEvent {
	return BaseEvent{
		Type:      eventType,
		Entity:    entityType,
		ID:        entityID,
		Timestamp: time.Now(),
	}
}

// Event type names.
const (
	EventRequestCreated      = "request.created"
	EventRequestApproved     = "request.approved"
	EventRequestAutoApproved = "request.auto_approved"
	EventRequestDeclined     = "request.declined"
	EventRequestFailed       = "request.failed"
	EventMediaAvailable      = "media.available"
	EventSyncCompleted       = "sync.completed"
)

// RequestEvent covers the request lifecycle transitions. Kind is one of
// the EventRequest* constants.
type RequestEvent struct {
	BaseEvent
	RequestID int64  `json:"request_id"`
	UserID    int64  `json:"user_id"`
	TMDBID    int64  `json:"tmdb_id"`
	MediaType string `json:"media_type"`
	Is4K      bool   `json:"is_4k"`
	Seasons   []int  `json:"seasons,omitempty"`
	Message   string `json:"message,omitempty"`
}

// NewRequestEvent creates a request lifecycle event.
func NewRequestEvent(kind string, requestID, userID, tmdbID int64, mediaType string, is4k bool) RequestEvent {
	return RequestEvent{
		BaseEvent: NewBaseEvent(kind, "request", requestID),
		RequestID: requestID,
		UserID:    userID,
		TMDBID:    tmdbID,
		MediaType: mediaType,
		Is4K:      is4k,
	}
}

// MediaAvailable is emitted when a media item reaches full
// availability.
type MediaAvailable struct {
	BaseEvent
	MediaID   int64  `json:"media_id"`
	TMDBID    int64  `json:"tmdb_id"`
	MediaType string `json:"media_type"`
	Is4K      bool   `json:"is_4k"`
}

// NewMediaAvailable creates a media availability event.
func NewMediaAvailable(mediaID, tmdbID int64, mediaType string, is4k bool) MediaAvailable {
	return MediaAvailable{
		BaseEvent: NewBaseEvent(EventMediaAvailable, "media", mediaID),
		MediaID:   mediaID,
		TMDBID:    tmdbID,
		MediaType: mediaType,
		Is4K:      is4k,
	}
}

// SyncCompleted is emitted after a full library sync run.
type SyncCompleted struct {
	BaseEvent
	Servers  int   `json:"servers"`
	Failures int   `json:"failures"`
	Duration int64 `json:"duration_ms"`
}

// NewSyncCompleted creates a sync completion event.
func NewSyncCompleted(servers, failures int, duration time.Duration) SyncCompleted {
	return SyncCompleted{
		BaseEvent: NewBaseEvent(EventSyncCompleted, "sync", 0),
		Servers:   servers,
		Failures:  failures,
		Duration:  duration.Milliseconds(),
	}
}
