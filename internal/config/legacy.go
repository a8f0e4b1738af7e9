package config

import "github.com/streamarr/streamarr/internal/quota"

// LegacyPermissions maps the config-file request limits onto a
// permission set usable as the lowest-priority resolver layer. Returns
// nil when no limit is set, so the resolver can skip the layer
// entirely.
func (r *RequestsConfig) LegacyPermissions() *quota.PermissionSet {
	p := &quota.PermissionSet{
		MovieLimit:  r.MovieLimit,
		MovieDays:   r.MovieDays,
		TVLimit:     r.TVLimit,
		TVDays:      r.TVDays,
		SeasonLimit: r.SeasonLimit,
		SeasonDays:  r.SeasonDays,

		Movie4KLimit:  r.Movie4KLimit,
		Movie4KDays:   r.Movie4KDays,
		TV4KLimit:     r.TV4KLimit,
		TV4KDays:      r.TV4KDays,
		Season4KLimit: r.Season4KLimit,
		Season4KDays:  r.Season4KDays,

		AutoApproveMovies: r.AutoApproveMovies,
		AutoApproveTV:     r.AutoApproveTV,

		CanRequestMovies4K: r.Allow4K,
		CanRequestTV4K:     r.Allow4K,
	}
	if *p == (quota.PermissionSet{}) {
		return nil
	}
	return p
}
