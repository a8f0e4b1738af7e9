package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/internal/quota"
)

type quotaDimension struct {
	Limit     int  `json:"limit"` // 0 = unlimited
	Days      int  `json:"days"`
	Used      int  `json:"used"`
	Remaining *int `json:"remaining,omitempty"` // absent when unlimited
}

type quotaResponse struct {
	UserID   int64          `json:"user_id"`
	Movie    quotaDimension `json:"movie"`
	TV       quotaDimension `json:"tv"`
	Season   quotaDimension `json:"season"`
	Movie4K  quotaDimension `json:"movie_4k"`
	TV4K     quotaDimension `json:"tv_4k"`
	Season4K quotaDimension `json:"season_4k"`
}

func dimension(w quota.Window, used int) quotaDimension {
	d := quotaDimension{Limit: w.Limit, Days: w.Days, Used: used}
	if w.Limit > 0 {
		remaining := w.Limit - used
		if remaining < 0 {
			remaining = 0
		}
		d.Remaining = &remaining
	}
	return d
}

// getQuota reports a user's resolved windows and current usage in each
// of the six dimensions.
func (s *Server) getQuota(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}

	resolver, err := s.deps.Quota.ResolverFor(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "QUOTA_ERROR", err.Error())
		return
	}

	resp := quotaResponse{UserID: userID}
	now := time.Now()

	fill := func(win quota.Window, mediaType media.Type, is4k bool) (quotaDimension, error) {
		since := now.AddDate(0, 0, -win.Days)
		used, err := s.deps.Requests.CountSince(userID, mediaType, is4k, since)
		if err != nil {
			return quotaDimension{}, err
		}
		return dimension(win, used), nil
	}
	fillSeasons := func(win quota.Window, is4k bool) (quotaDimension, error) {
		since := now.AddDate(0, 0, -win.Days)
		used, err := s.deps.Requests.SumSeasonsSince(userID, is4k, since)
		if err != nil {
			return quotaDimension{}, err
		}
		return dimension(win, used), nil
	}

	steps := []func() error{
		func() (e error) { resp.Movie, e = fill(resolver.MovieWindow(false), media.TypeMovie, false); return },
		func() (e error) { resp.TV, e = fill(resolver.TVWindow(false), media.TypeTV, false); return },
		func() (e error) { resp.Season, e = fillSeasons(resolver.SeasonWindow(false), false); return },
		func() (e error) { resp.Movie4K, e = fill(resolver.MovieWindow(true), media.TypeMovie, true); return },
		func() (e error) { resp.TV4K, e = fill(resolver.TVWindow(true), media.TypeTV, true); return },
		func() (e error) { resp.Season4K, e = fillSeasons(resolver.SeasonWindow(true), true); return },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			writeError(w, http.StatusInternalServerError, "QUOTA_ERROR", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// permissionSetBody mirrors quota.PermissionSet for the API. Absent
// fields stay nil, deferring to the next permission layer.
type permissionSetBody struct {
	CanRequestMovies   *bool `json:"can_request_movies,omitempty"`
	CanRequestTV       *bool `json:"can_request_tv,omitempty"`
	CanRequestMovies4K *bool `json:"can_request_movies_4k,omitempty"`
	CanRequestTV4K     *bool `json:"can_request_tv_4k,omitempty"`
	AutoApproveMovies  *bool `json:"auto_approve_movies,omitempty"`
	AutoApproveTV      *bool `json:"auto_approve_tv,omitempty"`

	MovieLimit  *int `json:"movie_limit,omitempty"`
	MovieDays   *int `json:"movie_days,omitempty"`
	TVLimit     *int `json:"tv_limit,omitempty"`
	TVDays      *int `json:"tv_days,omitempty"`
	SeasonLimit *int `json:"season_limit,omitempty"`
	SeasonDays  *int `json:"season_days,omitempty"`

	Movie4KLimit  *int `json:"movie_4k_limit,omitempty"`
	Movie4KDays   *int `json:"movie_4k_days,omitempty"`
	TV4KLimit     *int `json:"tv_4k_limit,omitempty"`
	TV4KDays      *int `json:"tv_4k_days,omitempty"`
	Season4KLimit *int `json:"season_4k_limit,omitempty"`
	Season4KDays  *int `json:"season_4k_days,omitempty"`
}

func (b *permissionSetBody) toSet() quota.PermissionSet {
	return quota.PermissionSet{
		CanRequestMovies:   b.CanRequestMovies,
		CanRequestTV:       b.CanRequestTV,
		CanRequestMovies4K: b.CanRequestMovies4K,
		CanRequestTV4K:     b.CanRequestTV4K,
		AutoApproveMovies:  b.AutoApproveMovies,
		AutoApproveTV:      b.AutoApproveTV,
		MovieLimit:         b.MovieLimit,
		MovieDays:          b.MovieDays,
		TVLimit:            b.TVLimit,
		TVDays:             b.TVDays,
		SeasonLimit:        b.SeasonLimit,
		SeasonDays:         b.SeasonDays,
		Movie4KLimit:       b.Movie4KLimit,
		Movie4KDays:        b.Movie4KDays,
		TV4KLimit:          b.TV4KLimit,
		TV4KDays:           b.TV4KDays,
		Season4KLimit:      b.Season4KLimit,
		Season4KDays:       b.Season4KDays,
	}
}

func fromSet(p *quota.PermissionSet) permissionSetBody {
	return permissionSetBody{
		CanRequestMovies:   p.CanRequestMovies,
		CanRequestTV:       p.CanRequestTV,
		CanRequestMovies4K: p.CanRequestMovies4K,
		CanRequestTV4K:     p.CanRequestTV4K,
		AutoApproveMovies:  p.AutoApproveMovies,
		AutoApproveTV:      p.AutoApproveTV,
		MovieLimit:         p.MovieLimit,
		MovieDays:          p.MovieDays,
		TVLimit:            p.TVLimit,
		TVDays:             p.TVDays,
		SeasonLimit:        p.SeasonLimit,
		SeasonDays:         p.SeasonDays,
		Movie4KLimit:       p.Movie4KLimit,
		Movie4KDays:        p.Movie4KDays,
		TV4KLimit:          p.TV4KLimit,
		TV4KDays:           p.TV4KDays,
		Season4KLimit:      p.Season4KLimit,
		Season4KDays:       p.Season4KDays,
	}
}

type userPermissionsBody struct {
	HasCustomPermissions bool `json:"has_custom_permissions"`
	permissionSetBody
}

func (s *Server) getUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}
	up, err := s.deps.Perms.GetUser(userID)
	if err != nil {
		if errors.Is(err, quota.ErrNotFound) {
			// No override row: the user runs on defaults.
			writeJSON(w, http.StatusOK, userPermissionsBody{})
			return
		}
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, userPermissionsBody{
		HasCustomPermissions: up.HasCustomPermissions,
		permissionSetBody:    fromSet(&up.PermissionSet),
	})
}

func (s *Server) setUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}
	var body userPermissionsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}

	up := &quota.UserPermissions{
		UserID:               userID,
		HasCustomPermissions: body.HasCustomPermissions,
		PermissionSet:        body.toSet(),
	}
	err = s.deps.Serial.Do(r.Context(), "api.set_user_permissions", func() error {
		return s.deps.Perms.SetUser(up)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) getDefaultPermissions(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Perms.GetDefaults()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fromSet(p))
}

func (s *Server) setDefaultPermissions(w http.ResponseWriter, r *http.Request) {
	var body permissionSetBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	set := body.toSet()
	err := s.deps.Serial.Do(r.Context(), "api.set_default_permissions", func() error {
		return s.deps.Perms.SetDefaults(&set)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}
