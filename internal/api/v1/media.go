package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/internal/webhook"
)

type seasonResponse struct {
	SeasonNumber int    `json:"season_number"`
	Status       string `json:"status"`
	Status4K     string `json:"status_4k"`
}

type mediaResponse struct {
	ID                    int64            `json:"id"`
	TMDBID                int64            `json:"tmdb_id"`
	Type                  string           `json:"media_type"`
	TVDBID                *int64           `json:"tvdb_id,omitempty"`
	Status                string           `json:"status"`
	Status4K              string           `json:"status_4k"`
	PlexKey               *string          `json:"plex_key,omitempty"`
	MediaAddedAt          *time.Time       `json:"media_added_at,omitempty"`
	LastAvailabilityCheck *time.Time       `json:"last_availability_check,omitempty"`
	Seasons               []seasonResponse `json:"seasons,omitempty"`
}

func mediaToResponse(rec *media.Record, seasons []*media.Season) mediaResponse {
	resp := mediaResponse{
		ID:                    rec.ID,
		TMDBID:                rec.TMDBID,
		Type:                  string(rec.Type),
		TVDBID:                rec.TVDBID,
		Status:                rec.Status.String(),
		Status4K:              rec.Status4k.String(),
		PlexKey:               rec.PlexKey,
		MediaAddedAt:          rec.MediaAddedAt,
		LastAvailabilityCheck: rec.LastAvailabilityCheck,
	}
	for _, se := range seasons {
		resp.Seasons = append(resp.Seasons, seasonResponse{
			SeasonNumber: se.SeasonNumber,
			Status:       se.Status.String(),
			Status4K:     se.Status4k.String(),
		})
	}
	return resp
}

func (s *Server) getMedia(w http.ResponseWriter, r *http.Request) {
	mediaType, err := pathMediaType(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_TYPE", err.Error())
		return
	}
	tmdbID, err := pathID(r, "tmdbId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}

	rec, err := s.deps.Media.GetByTMDB(mediaType, tmdbID)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Media not tracked")
			return
		}
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	var seasons []*media.Season
	if mediaType == media.TypeTV {
		seasons, err = s.deps.Media.ListSeasons(rec.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, mediaToResponse(rec, seasons))
}

type batchStatusBody struct {
	Type    string  `json:"media_type"`
	TMDBIDs []int64 `json:"tmdb_ids"`
	Is4K    bool    `json:"is_4k"`
}

type batchStatusResponse struct {
	Statuses map[int64]string `json:"statuses"`
}

// batchStatus answers discovery-page status badges: one lookup for a
// whole page of titles.
func (s *Server) batchStatus(w http.ResponseWriter, r *http.Request) {
	var body batchStatusBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	mediaType := media.Type(body.Type)
	if mediaType != media.TypeMovie && mediaType != media.TypeTV {
		writeError(w, http.StatusBadRequest, "INVALID_TYPE", "media_type must be 'movie' or 'tv'")
		return
	}
	const maxBatch = 500
	if len(body.TMDBIDs) == 0 || len(body.TMDBIDs) > maxBatch {
		writeError(w, http.StatusBadRequest, "INVALID_BATCH", "tmdb_ids must contain between 1 and 500 ids")
		return
	}

	statuses, err := s.deps.Reconcile.BatchStatus(r.Context(), mediaType, body.TMDBIDs, body.Is4K)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STATUS_ERROR", err.Error())
		return
	}

	resp := batchStatusResponse{Statuses: make(map[int64]string, len(statuses))}
	for id, st := range statuses {
		resp.Statuses[id] = st.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// clearMedia is the admin reset: marks both variants deleted so the
// title can be re-requested from scratch.
func (s *Server) clearMedia(w http.ResponseWriter, r *http.Request) {
	mediaType, err := pathMediaType(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_TYPE", err.Error())
		return
	}
	tmdbID, err := pathID(r, "tmdbId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}

	rec, err := s.deps.Media.GetByTMDB(mediaType, tmdbID)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Media not tracked")
			return
		}
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	err = s.deps.Serial.Do(r.Context(), "api.clear_media", func() error {
		if err := s.deps.Media.SetDeleted(rec.ID, false); err != nil {
			return err
		}
		return s.deps.Media.SetDeleted(rec.ID, true)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhook.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if err := s.deps.Webhook.Handle(r.Context(), &payload); err != nil {
		writeError(w, http.StatusInternalServerError, "WEBHOOK_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sync.Trigger(); err != nil {
		// A sync already in flight will pick up the caller's intent.
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "already_running"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

type syncStatusResponse struct {
	Running    bool       `json:"running"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Servers    int        `json:"servers"`
	Failed     int        `json:"failed"`
	Movies     int        `json:"movies"`
	Series     int        `json:"series"`
	Evicted    int64      `json:"evicted"`
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	resp := syncStatusResponse{Running: s.deps.Sync.Running()}
	if last := s.deps.Sync.LastResult(); last != nil {
		resp.StartedAt = &last.StartedAt
		resp.FinishedAt = &last.FinishedAt
		resp.Servers = last.Servers
		resp.Failed = last.Failed
		resp.Movies = last.Movies
		resp.Series = last.Series
		resp.Evicted = last.Evicted
	}
	writeJSON(w, http.StatusOK, resp)
}
