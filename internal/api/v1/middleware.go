package v1

import "net/http"

// requireSync wraps a handler and returns 503 if the sync service is not configured.
func (s *Server) requireSync(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Sync == nil {
			writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Library sync not configured")
			return
		}
		next(w, r)
	}
}

// requireWebhook wraps a handler and returns 503 if the webhook processor is not configured.
func (s *Server) requireWebhook(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Webhook == nil {
			writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Webhook processing not configured")
			return
		}
		next(w, r)
	}
}
