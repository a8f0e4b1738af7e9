package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/streamarr/streamarr/internal/dlm"
	"github.com/streamarr/streamarr/internal/media"
)

type serverBody struct {
	Name           string `json:"name"`
	Type           string `json:"server_type"`
	URL            string `json:"url"`
	APIKey         string `json:"api_key"`
	QualityProfile int    `json:"quality_profile"`
	RootFolder     string `json:"root_folder"`
	Active         *bool  `json:"active,omitempty"`
	IsDefault      bool   `json:"is_default"`
	Is4K           bool   `json:"is_4k"`
	Tags           []int  `json:"tags,omitempty"`
	SearchOnAdd    bool   `json:"search_on_add"`
}

type serverResponse struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Type            string     `json:"server_type"`
	URL             string     `json:"url"`
	QualityProfile  int        `json:"quality_profile"`
	RootFolder      string     `json:"root_folder"`
	Active          bool       `json:"active"`
	IsDefault       bool       `json:"is_default"`
	Is4K            bool       `json:"is_4k"`
	Tags            []int      `json:"tags,omitempty"`
	SearchOnAdd     bool       `json:"search_on_add"`
	LastLibrarySync *time.Time `json:"last_library_sync,omitempty"`
}

// The API key is write-only: it never appears in responses.
func serverToResponse(srv *dlm.Server) serverResponse {
	return serverResponse{
		ID:              srv.ID,
		Name:            srv.Name,
		Type:            string(srv.Type),
		URL:             srv.URL,
		QualityProfile:  srv.QualityProfile,
		RootFolder:      srv.RootFolder,
		Active:          srv.Active,
		IsDefault:       srv.IsDefault,
		Is4K:            srv.Is4K,
		Tags:            srv.Tags,
		SearchOnAdd:     srv.SearchOnAdd,
		LastLibrarySync: srv.LastLibrarySync,
	}
}

func (s *Server) listServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.deps.Servers.ListAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	resp := make([]serverResponse, len(servers))
	for i, srv := range servers {
		resp[i] = serverToResponse(srv)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) addServer(w http.ResponseWriter, r *http.Request) {
	var body serverBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}

	serverType := media.Type(body.Type)
	if serverType != media.TypeMovie && serverType != media.TypeTV {
		writeError(w, http.StatusBadRequest, "INVALID_TYPE", "server_type must be 'movie' or 'tv'")
		return
	}
	if body.Name == "" || body.URL == "" || body.APIKey == "" {
		writeError(w, http.StatusBadRequest, "INVALID_SERVER", "name, url and api_key are required")
		return
	}

	active := true
	if body.Active != nil {
		active = *body.Active
	}
	srv := &dlm.Server{
		Name:           body.Name,
		Type:           serverType,
		URL:            body.URL,
		APIKey:         body.APIKey,
		QualityProfile: body.QualityProfile,
		RootFolder:     body.RootFolder,
		Active:         active,
		IsDefault:      body.IsDefault,
		Is4K:           body.Is4K,
		Tags:           body.Tags,
		SearchOnAdd:    body.SearchOnAdd,
	}

	err := s.deps.Serial.Do(r.Context(), "api.add_server", func() error {
		if err := s.deps.Servers.Add(srv); err != nil {
			return err
		}
		if srv.IsDefault {
			return s.deps.Servers.SetDefault(srv.ID)
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, serverToResponse(srv))
}

func (s *Server) getServer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}
	srv, err := s.deps.Servers.Get(id)
	if err != nil {
		if errors.Is(err, dlm.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Server not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, serverToResponse(srv))
}

func (s *Server) updateServer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}
	srv, err := s.deps.Servers.Get(id)
	if err != nil {
		if errors.Is(err, dlm.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Server not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	var body serverBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}

	if body.Name != "" {
		srv.Name = body.Name
	}
	if body.URL != "" {
		srv.URL = body.URL
	}
	if body.APIKey != "" {
		srv.APIKey = body.APIKey
	}
	if body.QualityProfile != 0 {
		srv.QualityProfile = body.QualityProfile
	}
	if body.RootFolder != "" {
		srv.RootFolder = body.RootFolder
	}
	if body.Active != nil {
		srv.Active = *body.Active
	}
	if body.Tags != nil {
		srv.Tags = body.Tags
	}
	srv.SearchOnAdd = body.SearchOnAdd

	err = s.deps.Serial.Do(r.Context(), "api.update_server", func() error {
		return s.deps.Servers.Update(srv)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, serverToResponse(srv))
}

func (s *Server) deleteServer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}
	err = s.deps.Serial.Do(r.Context(), "api.delete_server", func() error {
		return s.deps.Servers.Delete(id)
	})
	if err != nil {
		if errors.Is(err, dlm.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Server not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setDefaultServer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}
	err = s.deps.Serial.Do(r.Context(), "api.set_default_server", func() error {
		return s.deps.Servers.SetDefault(id)
	})
	if err != nil {
		if errors.Is(err, dlm.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Server not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
