// Package catalog looks up title metadata and cross-reference ids from
// a TMDB-style provider. It is a pure read dependency with its own
// caching: 24 hours for metadata, 1 hour for secondary rating lookups.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://api.themoviedb.org"
const defaultMetadataTTL = 24 * time.Hour
const defaultRatingsTTL = time.Hour

// ErrNotFound is returned when a title doesn't exist in the catalog.
var ErrNotFound = errors.New("title not found")

// Client is a catalog API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	movies    *cache[*Movie]
	tv        *cache[*TV]
	externals *cache[*ExternalIDs]
	ratings   *cache[*Ratings]
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTTLs overrides the metadata and ratings cache TTLs.
func WithTTLs(metadata, ratings time.Duration) Option {
	return func(c *Client) {
		c.movies = newCache[*Movie](metadata)
		c.tv = newCache[*TV](metadata)
		c.externals = newCache[*ExternalIDs](metadata)
		c.ratings = newCache[*Ratings](ratings)
	}
}

// NewClient creates a new catalog client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		movies:    newCache[*Movie](defaultMetadataTTL),
		tv:        newCache[*TV](defaultMetadataTTL),
		externals: newCache[*ExternalIDs](defaultMetadataTTL),
		ratings:   newCache[*Ratings](defaultRatingsTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog API error: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetMovie fetches movie metadata by TMDB ID.
func (c *Client) GetMovie(ctx context.Context, tmdbID int64) (*Movie, error) {
	key := fmt.Sprintf("/3/movie/%d", tmdbID)
	if m, ok := c.movies.get(key); ok {
		return m, nil
	}
	var movie Movie
	if err := c.get(ctx, key, nil, &movie); err != nil {
		return nil, err
	}
	c.movies.set(key, &movie)
	return &movie, nil
}

// GetTV fetches series metadata (including the season list) by TMDB ID.
func (c *Client) GetTV(ctx context.Context, tmdbID int64) (*TV, error) {
	key := fmt.Sprintf("/3/tv/%d", tmdbID)
	if t, ok := c.tv.get(key); ok {
		return t, nil
	}
	var tv TV
	if err := c.get(ctx, key, nil, &tv); err != nil {
		return nil, err
	}
	c.tv.set(key, &tv)
	return &tv, nil
}

// GetTVExternalIDs resolves a series' cross-reference ids (notably the
// TVDB id that series download-manager servers key on).
func (c *Client) GetTVExternalIDs(ctx context.Context, tmdbID int64) (*ExternalIDs, error) {
	key := fmt.Sprintf("/3/tv/%d/external_ids", tmdbID)
	if e, ok := c.externals.get(key); ok {
		return e, nil
	}
	var ids ExternalIDs
	if err := c.get(ctx, key, nil, &ids); err != nil {
		return nil, err
	}
	c.externals.set(key, &ids)
	return &ids, nil
}

// GetRatings fetches the secondary rating data for a movie. Cached for
// one hour; invalidated on expiry only.
func (c *Client) GetRatings(ctx context.Context, mediaPath string, tmdbID int64) (*Ratings, error) {
	key := fmt.Sprintf("/3/%s/%d", mediaPath, tmdbID)
	if r, ok := c.ratings.get(key); ok {
		return r, nil
	}
	var ratings Ratings
	if err := c.get(ctx, key, nil, &ratings); err != nil {
		return nil, err
	}
	c.ratings.set(key, &ratings)
	return &ratings, nil
}

// SearchMovie looks up movies by title and optional year.
func (c *Client) SearchMovie(ctx context.Context, title string, year int) ([]Movie, error) {
	query := url.Values{"query": {title}}
	if year > 0 {
		query.Set("year", fmt.Sprintf("%d", year))
	}
	var result searchResult[Movie]
	if err := c.get(ctx, "/3/search/movie", query, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// SearchTV looks up series by title and optional first-air year.
func (c *Client) SearchTV(ctx context.Context, title string, year int) ([]TV, error) {
	query := url.Values{"query": {title}}
	if year > 0 {
		query.Set("first_air_date_year", fmt.Sprintf("%d", year))
	}
	var result searchResult[TV]
	if err := c.get(ctx, "/3/search/tv", query, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}
