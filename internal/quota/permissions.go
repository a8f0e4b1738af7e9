// Package quota gates admission of new requests: capability flags,
// sliding-window limits, and duplicate/partial-season handling.
package quota

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates the requested row doesn't exist.
var ErrNotFound = errors.New("not found")

// PermissionSet is one layer of request permissions. Every field is
// optional: a nil field defers to the next layer. A user override row,
// the defaults row, and the legacy config settings all share this
// shape, so resolution is uniform per field instead of per object.
type PermissionSet struct {
	CanRequestMovies   *bool
	CanRequestTV       *bool
	CanRequestMovies4K *bool
	CanRequestTV4K     *bool
	AutoApproveMovies  *bool
	AutoApproveTV      *bool

	MovieLimit  *int
	MovieDays   *int
	TVLimit     *int
	TVDays      *int
	SeasonLimit *int
	SeasonDays  *int

	Movie4KLimit  *int
	Movie4KDays   *int
	TV4KLimit     *int
	TV4KDays      *int
	Season4KLimit *int
	Season4KDays  *int
}

// Window is one quota dimension's resolved configuration. Limit 0 means
// unlimited.
type Window struct {
	Limit int
	Days  int
}

// Resolver answers permission lookups through an ordered chain of
// layers. The first layer with a non-nil value for a field wins; every
// field resolves independently.
type Resolver struct {
	layers []*PermissionSet
}

// NewResolver builds a resolver from highest-priority layer to lowest.
// Nil layers are skipped.
func NewResolver(layers ...*PermissionSet) *Resolver {
	r := &Resolver{}
	for _, l := range layers {
		if l != nil {
			r.layers = append(r.layers, l)
		}
	}
	return r
}

func (r *Resolver) boolField(get func(*PermissionSet) *bool, fallback bool) bool {
	for _, l := range r.layers {
		if v := get(l); v != nil {
			return *v
		}
	}
	return fallback
}

func (r *Resolver) intField(get func(*PermissionSet) *int, fallback int) int {
	for _, l := range r.layers {
		if v := get(l); v != nil {
			return *v
		}
	}
	return fallback
}

// CanRequest reports the capability flag for a media type and variant.
func (r *Resolver) CanRequest(isMovie, is4k bool) bool {
	switch {
	case isMovie && is4k:
		return r.boolField(func(p *PermissionSet) *bool { return p.CanRequestMovies4K }, false)
	case isMovie:
		return r.boolField(func(p *PermissionSet) *bool { return p.CanRequestMovies }, true)
	case is4k:
		return r.boolField(func(p *PermissionSet) *bool { return p.CanRequestTV4K }, false)
	default:
		return r.boolField(func(p *PermissionSet) *bool { return p.CanRequestTV }, true)
	}
}

// AutoApprove reports the auto-approval flag for a media type.
func (r *Resolver) AutoApprove(isMovie bool) bool {
	if isMovie {
		return r.boolField(func(p *PermissionSet) *bool { return p.AutoApproveMovies }, false)
	}
	return r.boolField(func(p *PermissionSet) *bool { return p.AutoApproveTV }, false)
}

// MovieWindow returns the movie dimension's limit and window.
func (r *Resolver) MovieWindow(is4k bool) Window {
	if is4k {
		return Window{
			Limit: r.intField(func(p *PermissionSet) *int { return p.Movie4KLimit }, 0),
			Days:  r.intField(func(p *PermissionSet) *int { return p.Movie4KDays }, 7),
		}
	}
	return Window{
		Limit: r.intField(func(p *PermissionSet) *int { return p.MovieLimit }, 0),
		Days:  r.intField(func(p *PermissionSet) *int { return p.MovieDays }, 7),
	}
}

// TVWindow returns the tv-show dimension's limit and window.
func (r *Resolver) TVWindow(is4k bool) Window {
	if is4k {
		return Window{
			Limit: r.intField(func(p *PermissionSet) *int { return p.TV4KLimit }, 0),
			Days:  r.intField(func(p *PermissionSet) *int { return p.TV4KDays }, 7),
		}
	}
	return Window{
		Limit: r.intField(func(p *PermissionSet) *int { return p.TVLimit }, 0),
		Days:  r.intField(func(p *PermissionSet) *int { return p.TVDays }, 7),
	}
}

// SeasonWindow returns the tv-season dimension's limit and window.
func (r *Resolver) SeasonWindow(is4k bool) Window {
	if is4k {
		return Window{
			Limit: r.intField(func(p *PermissionSet) *int { return p.Season4KLimit }, 0),
			Days:  r.intField(func(p *PermissionSet) *int { return p.Season4KDays }, 7),
		}
	}
	return Window{
		Limit: r.intField(func(p *PermissionSet) *int { return p.SeasonLimit }, 0),
		Days:  r.intField(func(p *PermissionSet) *int { return p.SeasonDays }, 7),
	}
}

// UserPermissions is a user's override row. The PermissionSet fields
// only take effect when HasCustomPermissions is set.
type UserPermissions struct {
	UserID               int64
	HasCustomPermissions bool
	PermissionSet
	UpdatedAt time.Time
}

// PermissionStore persists per-user override rows and the defaults
// singleton.
type PermissionStore struct {
	db *sql.DB
}

// NewPermissionStore creates a new permission store.
func NewPermissionStore(db *sql.DB) *PermissionStore {
	return &PermissionStore{db: db}
}

const permFields = `can_request_movies, can_request_tv, can_request_movies_4k, can_request_tv_4k,
	auto_approve_movies, auto_approve_tv,
	movie_limit, movie_days, tv_limit, tv_days, season_limit, season_days,
	movie_4k_limit, movie_4k_days, tv_4k_limit, tv_4k_days, season_4k_limit, season_4k_days`

func permArgs(p *PermissionSet) []any {
	return []any{
		p.CanRequestMovies, p.CanRequestTV, p.CanRequestMovies4K, p.CanRequestTV4K,
		p.AutoApproveMovies, p.AutoApproveTV,
		p.MovieLimit, p.MovieDays, p.TVLimit, p.TVDays, p.SeasonLimit, p.SeasonDays,
		p.Movie4KLimit, p.Movie4KDays, p.TV4KLimit, p.TV4KDays, p.Season4KLimit, p.Season4KDays,
	}
}

func permDests(p *PermissionSet) []any {
	return []any{
		&p.CanRequestMovies, &p.CanRequestTV, &p.CanRequestMovies4K, &p.CanRequestTV4K,
		&p.AutoApproveMovies, &p.AutoApproveTV,
		&p.MovieLimit, &p.MovieDays, &p.TVLimit, &p.TVDays, &p.SeasonLimit, &p.SeasonDays,
		&p.Movie4KLimit, &p.Movie4KDays, &p.TV4KLimit, &p.TV4KDays, &p.Season4KLimit, &p.Season4KDays,
	}
}

// GetUser returns a user's override row, or ErrNotFound if the user has
// no row.
func (s *PermissionStore) GetUser(userID int64) (*UserPermissions, error) {
	up := &UserPermissions{UserID: userID}
	dests := append([]any{&up.HasCustomPermissions}, permDests(&up.PermissionSet)...)
	dests = append(dests, &up.UpdatedAt)
	err := s.db.QueryRow(
		"SELECT has_custom_permissions, "+permFields+", updated_at FROM user_permissions WHERE user_id = ?",
		userID,
	).Scan(dests...)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d permissions: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d permissions: %w", userID, err)
	}
	return up, nil
}

// SetUser upserts a user's override row.
func (s *PermissionStore) SetUser(up *UserPermissions) error {
	args := append([]any{up.UserID, up.HasCustomPermissions}, permArgs(&up.PermissionSet)...)
	args = append(args, time.Now())
	_, err := s.db.Exec(`
		INSERT INTO user_permissions (user_id, has_custom_permissions, `+permFields+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			has_custom_permissions = excluded.has_custom_permissions,
			can_request_movies = excluded.can_request_movies,
			can_request_tv = excluded.can_request_tv,
			can_request_movies_4k = excluded.can_request_movies_4k,
			can_request_tv_4k = excluded.can_request_tv_4k,
			auto_approve_movies = excluded.auto_approve_movies,
			auto_approve_tv = excluded.auto_approve_tv,
			movie_limit = excluded.movie_limit,
			movie_days = excluded.movie_days,
			tv_limit = excluded.tv_limit,
			tv_days = excluded.tv_days,
			season_limit = excluded.season_limit,
			season_days = excluded.season_days,
			movie_4k_limit = excluded.movie_4k_limit,
			movie_4k_days = excluded.movie_4k_days,
			tv_4k_limit = excluded.tv_4k_limit,
			tv_4k_days = excluded.tv_4k_days,
			season_4k_limit = excluded.season_4k_limit,
			season_4k_days = excluded.season_4k_days,
			updated_at = excluded.updated_at`,
		args...)
	if err != nil {
		return fmt.Errorf("set user %d permissions: %w", up.UserID, err)
	}
	return nil
}

// GetDefaults returns the defaults singleton, or an empty set if it was
// never written.
func (s *PermissionStore) GetDefaults() (*PermissionSet, error) {
	p := &PermissionSet{}
	err := s.db.QueryRow("SELECT " + permFields + " FROM default_permissions WHERE id = 1").Scan(permDests(p)...)
	if err == sql.ErrNoRows {
		return &PermissionSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get default permissions: %w", err)
	}
	return p, nil
}

// SetDefaults upserts the defaults singleton.
func (s *PermissionStore) SetDefaults(p *PermissionSet) error {
	args := append(permArgs(p), time.Now())
	_, err := s.db.Exec(`
		INSERT INTO default_permissions (id, `+permFields+`, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			can_request_movies = excluded.can_request_movies,
			can_request_tv = excluded.can_request_tv,
			can_request_movies_4k = excluded.can_request_movies_4k,
			can_request_tv_4k = excluded.can_request_tv_4k,
			auto_approve_movies = excluded.auto_approve_movies,
			auto_approve_tv = excluded.auto_approve_tv,
			movie_limit = excluded.movie_limit,
			movie_days = excluded.movie_days,
			tv_limit = excluded.tv_limit,
			tv_days = excluded.tv_days,
			season_limit = excluded.season_limit,
			season_days = excluded.season_days,
			movie_4k_limit = excluded.movie_4k_limit,
			movie_4k_days = excluded.movie_4k_days,
			tv_4k_limit = excluded.tv_4k_limit,
			tv_4k_days = excluded.tv_4k_days,
			season_4k_limit = excluded.season_4k_limit,
			season_4k_days = excluded.season_4k_days,
			updated_at = excluded.updated_at`,
		args...)
	if err != nil {
		return fmt.Errorf("set default permissions: %w", err)
	}
	return nil
}
