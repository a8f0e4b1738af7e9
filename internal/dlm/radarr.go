package dlm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RadarrClient implements MovieService against a Radarr-style v3 API.
type RadarrClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewRadarrClient creates a client for one movie server.
func NewRadarrClient(srv *Server, log *slog.Logger) *RadarrClient {
	if log == nil {
		log = slog.Default()
	}
	return &RadarrClient{
		baseURL: strings.TrimSuffix(srv.URL, "/"),
		apiKey:  srv.APIKey,
		log:     log.With("component", "radarr", "server", srv.Name),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// radarrMovie is the wire shape of a Radarr movie resource.
type radarrMovie struct {
	ID               int64  `json:"id"`
	TMDBID           int64  `json:"tmdbId"`
	Title            string `json:"title"`
	HasFile          bool   `json:"hasFile"`
	Monitored        bool   `json:"monitored"`
	QualityProfileID int    `json:"qualityProfileId"`
}

func (m *radarrMovie) toMovie() *Movie {
	return &Movie{
		ServiceID:      m.ID,
		TMDBID:         m.TMDBID,
		Title:          m.Title,
		HasFile:        m.HasFile,
		Monitored:      m.Monitored,
		QualityProfile: m.QualityProfileID,
	}
}

func (c *RadarrClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("radarr API error: %s", resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ListMovies returns the server's full library.
func (c *RadarrClient) ListMovies(ctx context.Context) ([]*Movie, error) {
	var raw []radarrMovie
	if err := c.do(ctx, http.MethodGet, "/api/v3/movie", nil, &raw); err != nil {
		return nil, err
	}
	movies := make([]*Movie, 0, len(raw))
	for i := range raw {
		movies = append(movies, raw[i].toMovie())
	}
	return movies, nil
}

// GetMovie returns one movie by TMDB id.
func (c *RadarrClient) GetMovie(ctx context.Context, tmdbID int64) (*Movie, error) {
	var raw []radarrMovie
	path := fmt.Sprintf("/api/v3/movie?tmdbId=%d", tmdbID)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	return raw[0].toMovie(), nil
}

// AddMovie adds a movie to the server. If the movie already exists the
// server's existing entry is returned instead of an error, so dispatch
// is idempotent.
func (c *RadarrClient) AddMovie(ctx context.Context, in AddMovieInput) (*Movie, error) {
	payload := map[string]any{
		"tmdbId":           in.TMDBID,
		"title":            in.Title,
		"qualityProfileId": in.QualityProfile,
		"rootFolderPath":   in.RootFolder,
		"monitored":        true,
		"tags":             in.Tags,
		"addOptions": map[string]any{
			"searchForMovie": in.SearchOnAdd,
		},
	}

	var raw radarrMovie
	err := c.do(ctx, http.MethodPost, "/api/v3/movie", payload, &raw)
	if err == nil {
		c.log.Info("movie added", "tmdb_id", in.TMDBID, "service_id", raw.ID)
		return raw.toMovie(), nil
	}

	// A conflict means the movie is already on the server; fall back to
	// the existing entry.
	existing, getErr := c.GetMovie(ctx, in.TMDBID)
	if getErr == nil {
		c.log.Debug("movie already on server", "tmdb_id", in.TMDBID, "service_id", existing.ServiceID)
		return existing, nil
	}
	return nil, fmt.Errorf("add movie %d: %w", in.TMDBID, err)
}
