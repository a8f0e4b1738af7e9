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

// SonarrClient implements SeriesService against a Sonarr-style v3 API.
type SonarrClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewSonarrClient creates a client for one series server.
func NewSonarrClient(srv *Server, log *slog.Logger) *SonarrClient {
	if log == nil {
		log = slog.Default()
	}
	return &SonarrClient{
		baseURL: strings.TrimSuffix(srv.URL, "/"),
		apiKey:  srv.APIKey,
		log:     log.With("component", "sonarr", "server", srv.Name),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sonarrSeasonStats struct {
	EpisodeCount      int `json:"episodeCount"`
	EpisodeFileCount  int `json:"episodeFileCount"`
	TotalEpisodeCount int `json:"totalEpisodeCount"`
}

type sonarrSeason struct {
	SeasonNumber int                `json:"seasonNumber"`
	Monitored    bool               `json:"monitored"`
	Statistics   *sonarrSeasonStats `json:"statistics,omitempty"`
}

type sonarrSeries struct {
	ID               int64              `json:"id"`
	TVDBID           int64              `json:"tvdbId"`
	TMDBID           int64              `json:"tmdbId"`
	Title            string             `json:"title"`
	Monitored        bool               `json:"monitored"`
	QualityProfileID int                `json:"qualityProfileId"`
	Seasons          []sonarrSeason     `json:"seasons"`
	Statistics       *sonarrSeasonStats `json:"statistics,omitempty"`
}

func (s *sonarrSeries) toSeries() *Series {
	out := &Series{
		ServiceID:      s.ID,
		TMDBID:         s.TMDBID,
		TVDBID:         s.TVDBID,
		Title:          s.Title,
		Monitored:      s.Monitored,
		QualityProfile: s.QualityProfileID,
	}
	if s.Statistics != nil {
		out.EpisodeCount = s.Statistics.EpisodeCount
		out.EpisodeFileCount = s.Statistics.EpisodeFileCount
	}
	for _, season := range s.Seasons {
		// Season 0 is specials; it never drives availability.
		if season.SeasonNumber == 0 {
			continue
		}
		stats := SeasonStats{SeasonNumber: season.SeasonNumber, Monitored: season.Monitored}
		if season.Statistics != nil {
			stats.EpisodeCount = season.Statistics.EpisodeCount
			stats.EpisodeFileCount = season.Statistics.EpisodeFileCount
		}
		out.Seasons = append(out.Seasons, stats)
	}
	return out
}

func (c *SonarrClient) do(ctx context.Context, method, path string, body, out any) error {
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
		return fmt.Errorf("sonarr API error: %s", resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ListSeries returns the server's full library.
func (c *SonarrClient) ListSeries(ctx context.Context) ([]*Series, error) {
	var raw []sonarrSeries
	if err := c.do(ctx, http.MethodGet, "/api/v3/series", nil, &raw); err != nil {
		return nil, err
	}
	series := make([]*Series, 0, len(raw))
	for i := range raw {
		series = append(series, raw[i].toSeries())
	}
	return series, nil
}

// GetSeries returns one series with per-season statistics.
func (c *SonarrClient) GetSeries(ctx context.Context, tvdbID int64) (*Series, error) {
	var raw []sonarrSeries
	path := fmt.Sprintf("/api/v3/series?tvdbId=%d&includeSeasonImages=false", tvdbID)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	return raw[0].toSeries(), nil
}

// AddSeries adds a series with the requested seasons monitored. A nil
// season list monitors everything. If the series already exists on the
// server the existing entry is returned.
func (c *SonarrClient) AddSeries(ctx context.Context, in AddSeriesInput) (*Series, error) {
	monitor := "all"
	seasons := []map[string]any{}
	if in.Seasons != nil {
		monitor = "none"
		wanted := make(map[int]bool, len(in.Seasons))
		for _, s := range in.Seasons {
			wanted[s] = true
		}
		for s := range wanted {
			seasons = append(seasons, map[string]any{"seasonNumber": s, "monitored": true})
		}
	}

	payload := map[string]any{
		"tvdbId":           in.TVDBID,
		"title":            in.Title,
		"qualityProfileId": in.QualityProfile,
		"rootFolderPath":   in.RootFolder,
		"monitored":        true,
		"tags":             in.Tags,
		"addOptions": map[string]any{
			"monitor":                  monitor,
			"searchForMissingEpisodes": in.SearchOnAdd,
		},
	}
	if len(seasons) > 0 {
		payload["seasons"] = seasons
	}

	var raw sonarrSeries
	err := c.do(ctx, http.MethodPost, "/api/v3/series", payload, &raw)
	if err == nil {
		c.log.Info("series added", "tvdb_id", in.TVDBID, "service_id", raw.ID)
		return raw.toSeries(), nil
	}

	existing, getErr := c.GetSeries(ctx, in.TVDBID)
	if getErr == nil {
		c.log.Debug("series already on server", "tvdb_id", in.TVDBID, "service_id", existing.ServiceID)
		return existing, nil
	}
	return nil, fmt.Errorf("add series %d: %w", in.TVDBID, err)
}
