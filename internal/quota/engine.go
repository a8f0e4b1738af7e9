package quota

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/streamarr/streamarr/internal/media"
)

// RequestLedger is the read-side view of request storage the engine
// evaluates windows and duplicates against.
type RequestLedger interface {
	CountSince(userID int64, mediaType media.Type, is4k bool, since time.Time) (int, error)
	SumSeasonsSince(userID int64, is4k bool, since time.Time) (int, error)
	ActiveSummaries(tmdbID int64, mediaType media.Type, is4k bool) ([]RequestSummary, error)
}

// RequestSummary is the slice of an active request the duplicate check
// needs: enough to name the request and the seasons it covers.
type RequestSummary struct {
	RequestID int64
	UserID    int64
	Seasons   []int // nil means all seasons
}

// Code classifies an admission decision.
type Code string

const (
	CodeAdmitted   Code = "admitted"
	CodeCapability Code = "capability_missing"
	CodeQuota      Code = "quota_exceeded"
	CodeDuplicate  Code = "already_requested"
)

// Decision is the outcome of evaluating a prospective request.
// Rejections carry a descriptive, user-facing Reason and are never
// retried automatically. For tv requests with explicit seasons, Admit
// may succeed with a reduced Seasons slice (already-covered seasons
// filtered out rather than rejecting the whole request).
type Decision struct {
	Admit    bool
	Code     Code
	Reason   string
	Seasons  []int           // seasons actually admitted (tv only)
	Blocked  []int           // seasons filtered out as already covered
	Existing *RequestSummary // populated on duplicate rejections
}

// Engine evaluates admission for new requests.
type Engine struct {
	requests RequestLedger
	mediaDB  *media.Store
	perms    *PermissionStore
	legacy   *PermissionSet // lowest-priority layer, from config
	now      func() time.Time
}

// NewEngine creates an admission engine. legacy carries the config-file
// fallback values and may be nil.
func NewEngine(requests RequestLedger, mediaDB *media.Store, perms *PermissionStore, legacy *PermissionSet) *Engine {
	return &Engine{
		requests: requests,
		mediaDB:  mediaDB,
		perms:    perms,
		legacy:   legacy,
		now:      time.Now,
	}
}

// ResolverFor builds the layered permission resolver for a user:
// override row (only if has_custom_permissions) → defaults row → legacy
// config settings. Each field falls through independently.
func (e *Engine) ResolverFor(userID int64) (*Resolver, error) {
	var override *PermissionSet
	up, err := e.perms.GetUser(userID)
	switch {
	case err == nil && up.HasCustomPermissions:
		override = &up.PermissionSet
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, err
	}

	defaults, err := e.perms.GetDefaults()
	if err != nil {
		return nil, err
	}

	return NewResolver(override, defaults, e.legacy), nil
}

// AutoApprove reports whether a user's requests of the given media type
// skip the pending state. This is decided after admission and is
// independent of the quota outcome.
func (e *Engine) AutoApprove(userID int64, mediaType media.Type) (bool, error) {
	r, err := e.ResolverFor(userID)
	if err != nil {
		return false, err
	}
	return r.AutoApprove(mediaType == media.TypeMovie), nil
}

// Evaluate runs the full admission check for a prospective request.
// seasons is nil for movies and for "all seasons" tv requests.
func (e *Engine) Evaluate(userID, tmdbID int64, mediaType media.Type, is4k bool, seasons []int) (*Decision, error) {
	resolver, err := e.ResolverFor(userID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}

	isMovie := mediaType == media.TypeMovie

	// Capability gates come first: no point counting quotas for a user
	// who cannot request this media type at all.
	if !resolver.CanRequest(isMovie, false) {
		kind := "series"
		if isMovie {
			kind = "movies"
		}
		return &Decision{Code: CodeCapability, Reason: "you are not allowed to request " + kind}, nil
	}
	if is4k && !resolver.CanRequest(isMovie, true) {
		kind := "series"
		if isMovie {
			kind = "movies"
		}
		return &Decision{Code: CodeCapability, Reason: "you are not allowed to request 4K " + kind}, nil
	}

	if isMovie {
		if d, err := e.checkCountWindow(userID, mediaType, is4k, resolver.MovieWindow(is4k), "movie"); err != nil || d != nil {
			return d, err
		}
	} else {
		if d, err := e.checkCountWindow(userID, mediaType, is4k, resolver.TVWindow(is4k), "series"); err != nil || d != nil {
			return d, err
		}
		if d, err := e.checkSeasonWindow(userID, is4k, resolver.SeasonWindow(is4k), seasons); err != nil || d != nil {
			return d, err
		}
	}

	return e.checkDuplicate(userID, tmdbID, mediaType, is4k, seasons)
}

// checkCountWindow enforces the movie / tv-show sliding-window count.
// Returns a rejection decision, or nil if the dimension passes.
func (e *Engine) checkCountWindow(userID int64, mediaType media.Type, is4k bool, w Window, kind string) (*Decision, error) {
	if w.Limit <= 0 {
		return nil, nil
	}
	since := e.now().AddDate(0, 0, -w.Days)
	count, err := e.requests.CountSince(userID, mediaType, is4k, since)
	if err != nil {
		return nil, fmt.Errorf("count %s window: %w", kind, err)
	}
	if count >= w.Limit {
		return &Decision{
			Code: CodeQuota,
			Reason: fmt.Sprintf("%s request limit reached: %d of %d used in the last %d days",
				kind, count, w.Limit, w.Days),
		}, nil
	}
	return nil, nil
}

// checkSeasonWindow enforces the tv-season sliding-window sum. The new
// request's own season weight counts against the remaining capacity.
func (e *Engine) checkSeasonWindow(userID int64, is4k bool, w Window, seasons []int) (*Decision, error) {
	if w.Limit <= 0 {
		return nil, nil
	}
	since := e.now().AddDate(0, 0, -w.Days)
	used, err := e.requests.SumSeasonsSince(userID, is4k, since)
	if err != nil {
		return nil, fmt.Errorf("sum season window: %w", err)
	}
	weight := 1
	if seasons != nil {
		weight = len(seasons)
	}
	if used+weight > w.Limit {
		remaining := w.Limit - used
		if remaining < 0 {
			remaining = 0
		}
		return &Decision{
			Code: CodeQuota,
			Reason: fmt.Sprintf("season request limit reached: %d season(s) remaining of %d in the last %d days",
				remaining, w.Limit, w.Days),
		}, nil
	}
	return nil, nil
}

// checkDuplicate rejects requests already covered by an active request
// or by tracked availability. For tv requests with explicit seasons the
// already-covered seasons are filtered out instead; only an empty
// remainder rejects.
func (e *Engine) checkDuplicate(userID, tmdbID int64, mediaType media.Type, is4k bool, seasons []int) (*Decision, error) {
	active, err := e.requests.ActiveSummaries(tmdbID, mediaType, is4k)
	if err != nil {
		return nil, fmt.Errorf("list active requests: %w", err)
	}

	if mediaType == media.TypeMovie || seasons == nil {
		if len(active) > 0 {
			return &Decision{
				Code:     CodeDuplicate,
				Reason:   "this title was already requested",
				Existing: &active[0],
			}, nil
		}
		// Tracked availability covers the title even with no active
		// request, e.g. media synced in without ever being requested.
		rec, err := e.mediaDB.GetByTMDB(mediaType, tmdbID)
		if err != nil && !errors.Is(err, media.ErrNotFound) {
			return nil, fmt.Errorf("get media record: %w", err)
		}
		if rec != nil {
			status := rec.Status
			if is4k {
				status = rec.Status4k
			}
			if status >= media.StatusPartiallyAvailable && status != media.StatusDeleted {
				return &Decision{Code: CodeDuplicate, Reason: "this title is already available"}, nil
			}
		}
		return &Decision{Admit: true, Code: CodeAdmitted}, nil
	}

	covered := make(map[int]bool)
	for i := range active {
		// A nil season list on an active request means all seasons.
		if active[i].Seasons == nil {
			return &Decision{
				Code:     CodeDuplicate,
				Reason:   "all seasons of this series were already requested",
				Existing: &active[i],
			}, nil
		}
		for _, s := range active[i].Seasons {
			covered[s] = true
		}
	}

	// Seasons already tracked with any status beyond unknown (for the
	// matching 4K variant) are covered too.
	rec, err := e.mediaDB.GetByTMDB(mediaType, tmdbID)
	if err != nil && !errors.Is(err, media.ErrNotFound) {
		return nil, fmt.Errorf("get media record: %w", err)
	}
	if rec != nil {
		tracked, err := e.mediaDB.ListSeasons(rec.ID)
		if err != nil {
			return nil, fmt.Errorf("list seasons: %w", err)
		}
		for _, se := range tracked {
			status := se.Status
			if is4k {
				status = se.Status4k
			}
			if status != media.StatusUnknown {
				covered[se.SeasonNumber] = true
			}
		}
	}

	var admit []int
	var blocked []int
	for _, s := range seasons {
		if covered[s] {
			blocked = append(blocked, s)
			continue
		}
		admit = append(admit, s)
	}
	sort.Ints(admit)

	if len(admit) == 0 {
		d := &Decision{
			Code:   CodeDuplicate,
			Reason: "all requested seasons were already requested or are available",
		}
		if len(active) > 0 {
			d.Existing = &active[0]
		}
		return d, nil
	}
	return &Decision{Admit: true, Code: CodeAdmitted, Seasons: admit, Blocked: blocked}, nil
}
