package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client wraps HTTP calls to the streamarr server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new streamarr API client.
func NewClient(serverURL string) *Client {
	return &Client{
		baseURL: serverURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) get(path string, result any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

func (c *Client) send(method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
	case http.StatusConflict:
		// Quota rejections come back 409 with a decodable body; let
		// the caller read the decision.
		if result != nil {
			return json.NewDecoder(resp.Body).Decode(result)
		}
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("conflict: %s", string(respBody))
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func (c *Client) post(path string, body any, result any) error {
	return c.send(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.send(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	return c.send(http.MethodDelete, path, nil, nil)
}

// API response types (mirror server types)

type StatusResponse struct {
	Status string `json:"status"`
}

type RequestResponse struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	TMDBID      int64   `json:"tmdb_id"`
	Type        string  `json:"media_type"`
	Is4K        bool    `json:"is_4k"`
	Seasons     []int   `json:"seasons,omitempty"`
	Status      string  `json:"status"`
	RequestedAt string  `json:"requested_at"`
	ApproverID  *int64  `json:"approver_id,omitempty"`
	ServerID    *int64  `json:"server_id,omitempty"`
	ServiceID   *int64  `json:"service_id,omitempty"`
	Message     *string `json:"message,omitempty"`
	UpdatedAt   string  `json:"updated_at"`
}

type SubmitResponse struct {
	Request  *RequestResponse `json:"request,omitempty"`
	Admitted bool             `json:"admitted"`
	Code     string           `json:"code"`
	Reason   string           `json:"reason,omitempty"`
	Seasons  []int            `json:"seasons,omitempty"`
	Blocked  []int            `json:"blocked_seasons,omitempty"`
}

type ListRequestsResponse struct {
	Items  []RequestResponse `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type SeasonResponse struct {
	SeasonNumber int    `json:"season_number"`
	Status       string `json:"status"`
	Status4K     string `json:"status_4k"`
}

type MediaResponse struct {
	ID       int64            `json:"id"`
	TMDBID   int64            `json:"tmdb_id"`
	Type     string           `json:"media_type"`
	TVDBID   *int64           `json:"tvdb_id,omitempty"`
	Status   string           `json:"status"`
	Status4K string           `json:"status_4k"`
	Seasons  []SeasonResponse `json:"seasons,omitempty"`
}

type SyncStatusResponse struct {
	Running    bool    `json:"running"`
	StartedAt  *string `json:"started_at,omitempty"`
	FinishedAt *string `json:"finished_at,omitempty"`
	Servers    int     `json:"servers"`
	Failed     int     `json:"failed"`
	Movies     int     `json:"movies"`
	Series     int     `json:"series"`
	Evicted    int64   `json:"evicted"`
}

type QuotaDimension struct {
	Limit     int  `json:"limit"`
	Days      int  `json:"days"`
	Used      int  `json:"used"`
	Remaining *int `json:"remaining,omitempty"`
}

type QuotaResponse struct {
	UserID   int64          `json:"user_id"`
	Movie    QuotaDimension `json:"movie"`
	TV       QuotaDimension `json:"tv"`
	Season   QuotaDimension `json:"season"`
	Movie4K  QuotaDimension `json:"movie_4k"`
	TV4K     QuotaDimension `json:"tv_4k"`
	Season4K QuotaDimension `json:"season_4k"`
}

type ServerResponse struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Type            string  `json:"server_type"`
	URL             string  `json:"url"`
	QualityProfile  int     `json:"quality_profile"`
	RootFolder      string  `json:"root_folder"`
	Active          bool    `json:"active"`
	IsDefault       bool    `json:"is_default"`
	Is4K            bool    `json:"is_4k"`
	LastLibrarySync *string `json:"last_library_sync,omitempty"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	EventType  string `json:"event_type"`
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	OccurredAt string `json:"occurred_at"`
}

type ListEventsResponse struct {
	Items  []EventResponse `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

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

type VerifyResponse struct {
	Checked  int             `json:"checked"`
	Passed   int             `json:"passed"`
	Problems []VerifyProblem `json:"problems"`
}

// API methods

func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.get("/api/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type SubmitRequestInput struct {
	UserID  int64  `json:"user_id"`
	TMDBID  int64  `json:"tmdb_id"`
	Type    string `json:"media_type"`
	Is4K    bool   `json:"is_4k"`
	Seasons []int  `json:"seasons,omitempty"`
}

func (c *Client) SubmitRequest(in SubmitRequestInput) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.post("/api/v1/requests", in, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Requests(status string, activeOnly bool, limit int) (*ListRequestsResponse, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprint(limit))
	if status != "" {
		params.Set("status", status)
	}
	if activeOnly {
		params.Set("active", "true")
	}
	var resp ListRequestsResponse
	if err := c.get("/api/v1/requests?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Request(id int64) (*RequestResponse, error) {
	var resp RequestResponse
	if err := c.get(fmt.Sprintf("/api/v1/requests/%d", id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ApproveRequest(id, approverID int64) (*RequestResponse, error) {
	var resp RequestResponse
	body := map[string]any{"approver_id": approverID}
	if err := c.post(fmt.Sprintf("/api/v1/requests/%d/approve", id), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) DeclineRequest(id, approverID int64) (*RequestResponse, error) {
	var resp RequestResponse
	body := map[string]any{"approver_id": approverID}
	if err := c.post(fmt.Sprintf("/api/v1/requests/%d/decline", id), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) RemoveRequest(id int64) error {
	return c.delete(fmt.Sprintf("/api/v1/requests/%d", id))
}

func (c *Client) Media(mediaType string, tmdbID int64) (*MediaResponse, error) {
	var resp MediaResponse
	if err := c.get(fmt.Sprintf("/api/v1/media/%s/%d", mediaType, tmdbID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ClearMedia(mediaType string, tmdbID int64) error {
	return c.delete(fmt.Sprintf("/api/v1/media/%s/%d", mediaType, tmdbID))
}

func (c *Client) TriggerSync() (string, error) {
	var resp map[string]string
	if err := c.post("/api/v1/sync", nil, &resp); err != nil {
		return "", err
	}
	return resp["status"], nil
}

func (c *Client) SyncStatus() (*SyncStatusResponse, error) {
	var resp SyncStatusResponse
	if err := c.get("/api/v1/sync/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Quota(userID int64) (*QuotaResponse, error) {
	var resp QuotaResponse
	if err := c.get(fmt.Sprintf("/api/v1/users/%d/quota", userID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Servers() ([]ServerResponse, error) {
	var resp []ServerResponse
	if err := c.get("/api/v1/servers", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) AddServer(body map[string]any) (*ServerResponse, error) {
	var resp ServerResponse
	if err := c.post("/api/v1/servers", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) RemoveServer(id int64) error {
	return c.delete(fmt.Sprintf("/api/v1/servers/%d", id))
}

func (c *Client) SetDefaultServer(id int64) error {
	return c.post(fmt.Sprintf("/api/v1/servers/%d/default", id), nil, nil)
}

func (c *Client) Events(limit int) (*ListEventsResponse, error) {
	var resp ListEventsResponse
	if err := c.get(fmt.Sprintf("/api/v1/events?limit=%d", limit), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Verify() (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.get("/api/v1/verify", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
