// Package media tracks the canonical availability status of movies and
// series, including per-season tracking for series.
package media

import (
	"fmt"
	"time"
)

// Type distinguishes movies from series.
type Type string

const (
	TypeMovie Type = "movie"
	TypeTV    Type = "tv"
)

// Status is the availability of a media item or season. The ordinal
// order is total: a merge of two statuses keeps the higher one, which is
// how evidence from independent sources (library sync, webhooks, media
// server scans) converges without ever regressing.
//
// Deleted is special: it is set only by the availability sweep when a
// title is found on no backend, and is the one sanctioned reset of an
// otherwise monotonic field.
type Status int

const (
	StatusUnknown            Status = 0
	StatusRequested          Status = 1
	StatusProcessing         Status = 2
	StatusPartiallyAvailable Status = 3
	StatusAvailable          Status = 4
	StatusDeleted            Status = 5
)

// Merge returns the more advanced of two statuses. It is the only way
// writers combine a proposed status with a stored one; literal
// overwrites are not exposed.
func Merge(current, proposed Status) Status {
	if proposed > current {
		return proposed
	}
	return current
}

// Valid reports whether s is a defined status ordinal.
func (s Status) Valid() bool {
	return s >= StatusUnknown && s <= StatusDeleted
}

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusRequested:
		return "requested"
	case StatusProcessing:
		return "processing"
	case StatusPartiallyAvailable:
		return "partially_available"
	case StatusAvailable:
		return "available"
	case StatusDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus converts an API/CLI string to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "unknown":
		return StatusUnknown, nil
	case "requested":
		return StatusRequested, nil
	case "processing":
		return StatusProcessing, nil
	case "partially_available":
		return StatusPartiallyAvailable, nil
	case "available":
		return StatusAvailable, nil
	case "deleted":
		return StatusDeleted, nil
	default:
		return StatusUnknown, fmt.Errorf("unknown status %q", s)
	}
}

// Record is the canonical row for one (tmdb id, media type) pair.
// Status and Status4k evolve independently; both are monotonic under
// Merge. Records are created lazily on first request, webhook, or cache
// hit and never hard-deleted except by explicit admin clear.
type Record struct {
	ID                    int64
	TMDBID                int64
	Type                  Type
	TVDBID                *int64
	Status                Status
	Status4k              Status
	PlexKey               *string // media server rating key, set when presence is confirmed
	MediaAddedAt          *time.Time
	LastAvailabilityCheck *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Season is per-season tracking state owned by a Record. Same dual
// status model and the same monotonic rule as the parent.
type Season struct {
	ID           int64
	MediaID      int64
	SeasonNumber int
	Status       Status
	Status4k     Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
