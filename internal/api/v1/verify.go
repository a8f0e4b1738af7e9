package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/internal/request"
)

// VerifyProblem describes a problem found during verification.
type VerifyProblem struct {
	RequestID int64    `json:"request_id,omitempty"`
	ServerID  int64    `json:"server_id,omitempty"`
	Status    string   `json:"status,omitempty"`
	Title     string   `json:"title,omitempty"`
	Since     string   `json:"since,omitempty"`
	Issue     string   `json:"issue"`
	Likely    string   `json:"likely_cause"`
	Fixes     []string `json:"suggested_fixes"`
}

// VerifyResponse is the response for GET /verify.
type VerifyResponse struct {
	Checked  int             `json:"checked"`
	Passed   int             `json:"passed"`
	Problems []VerifyProblem `json:"problems"`
}

// Requests dispatched longer than this ago with no library evidence
// are flagged.
const stalledAfter = 6 * time.Hour

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	resp := VerifyResponse{}

	// Stale server syncs first: a server that has not synced recently
	// makes every other signal unreliable.
	servers, err := s.deps.Servers.ListAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", "list servers: "+err.Error())
		return
	}
	for _, srv := range servers {
		if !srv.Active {
			continue
		}
		resp.Checked++
		if srv.LastLibrarySync == nil || time.Since(*srv.LastLibrarySync) > 2*time.Hour {
			resp.Problems = append(resp.Problems, VerifyProblem{
				ServerID: srv.ID,
				Title:    srv.Name,
				Issue:    "Library has not synced recently",
				Likely:   "Server unreachable or the sync loop is not running",
				Fixes:    []string{"streamarr sync", "Check the server URL and API key"},
			})
			continue
		}
		resp.Passed++
	}

	// Processing requests with no sign of files.
	st := request.StatusProcessing
	reqs, _, err := s.deps.Requests.List(request.Filter{Status: &st})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "DB_ERROR", "list requests: "+err.Error())
		return
	}
	for _, req := range reqs {
		resp.Checked++
		problem := s.verifyRequest(req)
		if problem != nil {
			resp.Problems = append(resp.Problems, *problem)
			continue
		}
		resp.Passed++
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) verifyRequest(req *request.Request) *VerifyProblem {
	if time.Since(req.UpdatedAt) < stalledAfter {
		return nil
	}

	rec, err := s.deps.Media.GetByTMDB(req.Type, req.TMDBID)
	if err != nil {
		return nil
	}
	status := rec.Status
	if req.Is4K {
		status = rec.Status4k
	}
	if status >= media.StatusPartiallyAvailable {
		return nil
	}

	id := strconv.FormatInt(req.ID, 10)
	return &VerifyProblem{
		RequestID: req.ID,
		Status:    string(req.Status),
		Since:     time.Since(req.UpdatedAt).Round(time.Minute).String(),
		Issue:     "No files seen since dispatch",
		Likely:    "The download stalled, or the server dropped the title",
		Fixes:     []string{"streamarr sync", "streamarr requests remove " + id},
	}
}
