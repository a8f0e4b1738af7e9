// Package v1 implements the native REST API.
package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/streamarr/streamarr/internal/media"
)

// Server is the v1 API server.
type Server struct {
	deps   ServerDeps
	logger *slog.Logger
}

// New creates a new v1 API server.
func New(deps ServerDeps, logger *slog.Logger) (*Server, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingDependency, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, logger: logger.With("component", "api")}, nil
}

// RegisterRoutes registers API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Requests
	mux.HandleFunc("POST /api/v1/requests", s.submitRequest)
	mux.HandleFunc("GET /api/v1/requests", s.listRequests)
	mux.HandleFunc("GET /api/v1/requests/{id}", s.getRequest)
	mux.HandleFunc("POST /api/v1/requests/{id}/approve", s.approveRequest)
	mux.HandleFunc("POST /api/v1/requests/{id}/decline", s.declineRequest)
	mux.HandleFunc("DELETE /api/v1/requests/{id}", s.removeRequest)

	// Media status
	mux.HandleFunc("GET /api/v1/media/{type}/{tmdbId}", s.getMedia)
	mux.HandleFunc("POST /api/v1/media/status", s.batchStatus)
	mux.HandleFunc("DELETE /api/v1/media/{type}/{tmdbId}", s.clearMedia)

	// Inbound notifications
	mux.HandleFunc("POST /api/v1/webhooks/dlm", s.requireWebhook(s.handleWebhook))

	// Library sync
	mux.HandleFunc("POST /api/v1/sync", s.requireSync(s.triggerSync))
	mux.HandleFunc("GET /api/v1/sync/status", s.requireSync(s.syncStatus))

	// Quota & permissions
	mux.HandleFunc("GET /api/v1/users/{id}/quota", s.getQuota)
	mux.HandleFunc("GET /api/v1/users/{id}/permissions", s.getUserPermissions)
	mux.HandleFunc("PUT /api/v1/users/{id}/permissions", s.setUserPermissions)
	mux.HandleFunc("GET /api/v1/settings/permissions", s.getDefaultPermissions)
	mux.HandleFunc("PUT /api/v1/settings/permissions", s.setDefaultPermissions)

	// Download-manager servers
	mux.HandleFunc("GET /api/v1/servers", s.listServers)
	mux.HandleFunc("POST /api/v1/servers", s.addServer)
	mux.HandleFunc("GET /api/v1/servers/{id}", s.getServer)
	mux.HandleFunc("PUT /api/v1/servers/{id}", s.updateServer)
	mux.HandleFunc("DELETE /api/v1/servers/{id}", s.deleteServer)
	mux.HandleFunc("POST /api/v1/servers/{id}/default", s.setDefaultServer)

	// Events & system
	mux.HandleFunc("GET /api/v1/events", s.listEvents)
	mux.HandleFunc("GET /api/v1/status", s.getStatus)
	mux.HandleFunc("GET /api/v1/verify", s.verify)
}

// Error response
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message, Code: errCode})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// pathID extracts an integer ID from the URL path.
func pathID(r *http.Request, name string) (int64, error) {
	idStr := r.PathValue(name)
	if idStr == "" {
		return 0, fmt.Errorf("missing path parameter: %s", name)
	}
	return strconv.ParseInt(idStr, 10, 64)
}

// pathMediaType extracts and validates the media type path segment.
func pathMediaType(r *http.Request) (media.Type, error) {
	t := media.Type(r.PathValue("type"))
	if t != media.TypeMovie && t != media.TypeTV {
		return "", fmt.Errorf("media type must be 'movie' or 'tv', got %q", string(t))
	}
	return t, nil
}

// queryInt extracts an optional integer from query string.
func queryInt(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

// queryString extracts an optional string from query string.
func queryString(r *http.Request, name string) *string {
	val := r.URL.Query().Get(name)
	if val == "" {
		return nil
	}
	return &val
}

// queryBool extracts an optional boolean from query string.
func queryBool(r *http.Request, name string) *bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil
	}
	return &b
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
