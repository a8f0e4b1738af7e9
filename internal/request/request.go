// Package request manages the lifecycle of media requests: admission,
// approval, dispatch to a download-manager server, and terminal states.
package request

import (
	"time"

	"github.com/streamarr/streamarr/internal/media"
)

// Status is the lifecycle state of a request, distinct from the
// availability status of the media it points at.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusProcessing Status = "processing"
	StatusAvailable  Status = "available"
	StatusDeclined   Status = "declined"
	StatusFailed     Status = "failed"
	StatusRemoved    Status = "removed"
)

// Active reports whether the request still occupies its
// (tmdb, type, 4k) slot for duplicate detection and season coverage.
func (s Status) Active() bool {
	switch s {
	case StatusDeclined, StatusFailed, StatusRemoved:
		return false
	default:
		return true
	}
}

// Request is one admission event. Seasons is nil for movies and for
// "all seasons" series requests; otherwise it lists the requested
// season numbers.
type Request struct {
	ID          int64
	UserID      int64
	TMDBID      int64
	Type        media.Type
	Is4K        bool
	Seasons     []int
	Status      Status
	RequestedAt time.Time
	ApproverID  *int64
	ServiceID   *int64 // id assigned by the download-manager server on dispatch
	ServerID    *int64 // which configured server the request was dispatched to
	Message     *string
	UpdatedAt   time.Time
}

// SeasonWeight is the request's contribution to the tv-season quota
// dimension. An absent season list implies "all seasons" and counts as
// one, matching how requests predating season tracking were stored.
func (r *Request) SeasonWeight() int {
	if r.Seasons == nil {
		return 1
	}
	return len(r.Seasons)
}

// HasSeason reports whether the request covers the given season. A nil
// season list covers every season.
func (r *Request) HasSeason(n int) bool {
	if r.Seasons == nil {
		return true
	}
	for _, s := range r.Seasons {
		if s == n {
			return true
		}
	}
	return false
}

// Filter selects requests in List queries.
type Filter struct {
	UserID     *int64
	TMDBID     *int64
	Type       *media.Type
	Is4K       *bool
	Status     *Status
	ActiveOnly bool
	Since      *time.Time
	Limit      int
	Offset     int
}
