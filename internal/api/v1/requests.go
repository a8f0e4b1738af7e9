package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/internal/request"
)

type submitRequestBody struct {
	UserID  int64  `json:"user_id"`
	TMDBID  int64  `json:"tmdb_id"`
	Type    string `json:"media_type"`
	Is4K    bool   `json:"is_4k"`
	Seasons []int  `json:"seasons,omitempty"`
}

type requestResponse struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	TMDBID      int64     `json:"tmdb_id"`
	Type        string    `json:"media_type"`
	Is4K        bool      `json:"is_4k"`
	Seasons     []int     `json:"seasons,omitempty"`
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requested_at"`
	ApproverID  *int64    `json:"approver_id,omitempty"`
	ServerID    *int64    `json:"server_id,omitempty"`
	ServiceID   *int64    `json:"service_id,omitempty"`
	Message     *string   `json:"message,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type submitResponse struct {
	Request  *requestResponse `json:"request,omitempty"`
	Admitted bool             `json:"admitted"`
	Code     string           `json:"code"`
	Reason   string           `json:"reason,omitempty"`
	Seasons  []int            `json:"seasons,omitempty"`
	Blocked  []int            `json:"blocked_seasons,omitempty"`
}

type listRequestsResponse struct {
	Items  []requestResponse `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

func requestToResponse(r *request.Request) requestResponse {
	return requestResponse{
		ID:          r.ID,
		UserID:      r.UserID,
		TMDBID:      r.TMDBID,
		Type:        string(r.Type),
		Is4K:        r.Is4K,
		Seasons:     r.Seasons,
		Status:      string(r.Status),
		RequestedAt: r.RequestedAt,
		ApproverID:  r.ApproverID,
		ServerID:    r.ServerID,
		ServiceID:   r.ServiceID,
		Message:     r.Message,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (s *Server) submitRequest(w http.ResponseWriter, r *http.Request) {
	var body submitRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}

	mediaType := media.Type(body.Type)
	if mediaType != media.TypeMovie && mediaType != media.TypeTV {
		writeError(w, http.StatusBadRequest, "INVALID_TYPE", "media_type must be 'movie' or 'tv'")
		return
	}
	if body.UserID == 0 || body.TMDBID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "user_id and tmdb_id are required")
		return
	}
	if mediaType == media.TypeMovie && body.Seasons != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "seasons only apply to tv requests")
		return
	}

	req, decision, err := s.deps.Controller.Submit(r.Context(), request.SubmitInput{
		UserID:  body.UserID,
		TMDBID:  body.TMDBID,
		Type:    mediaType,
		Is4K:    body.Is4K,
		Seasons: body.Seasons,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SUBMIT_ERROR", err.Error())
		return
	}

	resp := submitResponse{
		Admitted: decision.Admit,
		Code:     string(decision.Code),
		Reason:   decision.Reason,
		Seasons:  decision.Seasons,
		Blocked:  decision.Blocked,
	}
	if !decision.Admit {
		// Rejections are a normal outcome, not a server error. A
		// duplicate rejection carries the request already holding the
		// slot so the caller can show it.
		if decision.Existing != nil {
			if existing, err := s.deps.Requests.Get(decision.Existing.RequestID); err == nil {
				rr := requestToResponse(existing)
				resp.Request = &rr
			}
		}
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	rr := requestToResponse(req)
	resp.Request = &rr
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	filter := request.Filter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if v := queryString(r, "status"); v != nil {
		st := request.Status(*v)
		filter.Status = &st
	}
	if v := queryString(r, "media_type"); v != nil {
		t := media.Type(*v)
		filter.Type = &t
	}
	if v := queryBool(r, "is_4k"); v != nil {
		filter.Is4K = v
	}
	if v := queryInt(r, "user_id", 0); v != 0 {
		id := int64(v)
		filter.UserID = &id
	}
	if v := queryBool(r, "active"); v != nil && *v {
		filter.ActiveOnly = true
	}

	items, total, err := s.deps.Requests.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	resp := listRequestsResponse{
		Items:  make([]requestResponse, len(items)),
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for i, req := range items {
		resp.Items[i] = requestToResponse(req)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}
	req, err := s.deps.Requests.Get(id)
	if err != nil {
		if errors.Is(err, request.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Request not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, requestToResponse(req))
}

type reviewBody struct {
	ApproverID int64 `json:"approver_id"`
}

func (s *Server) approveRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}
	var body reviewBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}

	req, err := s.deps.Controller.Approve(r.Context(), id, body.ApproverID)
	if err != nil {
		switch {
		case errors.Is(err, request.ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Request not found")
		case errors.Is(err, request.ErrNotPending):
			writeError(w, http.StatusConflict, "NOT_PENDING", "Request is not pending")
		default:
			writeError(w, http.StatusInternalServerError, "APPROVE_ERROR", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, requestToResponse(req))
}

func (s *Server) declineRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}
	var body reviewBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}

	req, err := s.deps.Controller.Decline(r.Context(), id, body.ApproverID)
	if err != nil {
		switch {
		case errors.Is(err, request.ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Request not found")
		case errors.Is(err, request.ErrNotPending):
			writeError(w, http.StatusConflict, "NOT_PENDING", "Request is not pending")
		default:
			writeError(w, http.StatusInternalServerError, "DECLINE_ERROR", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, requestToResponse(req))
}

func (s *Server) removeRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}

	if err := s.deps.Controller.Remove(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, request.ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Request not found")
		case errors.Is(err, request.ErrNotActive):
			writeError(w, http.StatusConflict, "NOT_ACTIVE", "Request is not active")
		default:
			writeError(w, http.StatusInternalServerError, "REMOVE_ERROR", err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
