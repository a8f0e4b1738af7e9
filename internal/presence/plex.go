// Package presence reports whether a title is visible on the media
// server. Presence is a stronger availability signal than the library
// cache because the media-server scan can run ahead of the next cache
// sync.
package presence

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/streamarr/streamarr/internal/media"
	"github.com/streamarr/streamarr/pkg/titles"
)

// Checker is the capability interface consumed by the reconciliation
// engine. The returned key is the server's opaque identifier for the
// item, stored on the media record once presence is confirmed.
type Checker interface {
	HasMedia(ctx context.Context, mediaType media.Type, tmdbID int64, title string, year int) (found bool, key string, err error)
}

// Client talks to a Plex-style media server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a new media server client.
func NewClient(baseURL, token string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		log:     log.With("component", "plex"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Section represents a media server library section.
type Section struct {
	Key  string `xml:"key,attr"`
	Type string `xml:"type,attr"` // "movie" or "show"
}

type sectionsResponse struct {
	XMLName  xml.Name  `xml:"MediaContainer"`
	Sections []Section `xml:"Directory"`
}

// Item is one title in a library section.
type Item struct {
	RatingKey string      `xml:"ratingKey,attr"`
	Title     string      `xml:"title,attr"`
	Year      int         `xml:"year,attr"`
	GUIDs     []guidEntry `xml:"Guid"`
}

type guidEntry struct {
	ID string `xml:"id,attr"`
}

type itemsResponse struct {
	XMLName xml.Name `xml:"MediaContainer"`
	Videos  []Item   `xml:"Video"`
	Shows   []Item   `xml:"Directory"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Plex-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("plex API error: %s", resp.Status)
	}
	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetSections lists the server's library sections.
func (c *Client) GetSections(ctx context.Context) ([]Section, error) {
	var resp sectionsResponse
	if err := c.get(ctx, "/library/sections", &resp); err != nil {
		return nil, err
	}
	return resp.Sections, nil
}

// ListSectionItems lists all titles in one section.
func (c *Client) ListSectionItems(ctx context.Context, sectionKey string) ([]Item, error) {
	var resp itemsResponse
	path := "/library/sections/" + sectionKey + "/all?includeGuids=1"
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	items := resp.Videos
	items = append(items, resp.Shows...)
	return items, nil
}

// tmdbID extracts the TMDB id from an item's GUID list, or 0.
func (i *Item) tmdbID() int64 {
	for _, g := range i.GUIDs {
		if rest, ok := strings.CutPrefix(g.ID, "tmdb://"); ok {
			id, err := strconv.ParseInt(rest, 10, 64)
			if err == nil {
				return id
			}
		}
	}
	return 0
}

// HasMedia reports whether the server carries the given title. Matching
// prefers the TMDB GUID; items without GUID metadata fall back to fuzzy
// title matching with a year check.
func (c *Client) HasMedia(ctx context.Context, mediaType media.Type, tmdbID int64, title string, year int) (bool, string, error) {
	wantType := "movie"
	if mediaType == media.TypeTV {
		wantType = "show"
	}

	sections, err := c.GetSections(ctx)
	if err != nil {
		return false, "", fmt.Errorf("list sections: %w", err)
	}

	for _, section := range sections {
		if section.Type != wantType {
			continue
		}
		items, err := c.ListSectionItems(ctx, section.Key)
		if err != nil {
			return false, "", fmt.Errorf("list section %s: %w", section.Key, err)
		}
		for i := range items {
			item := &items[i]
			if id := item.tmdbID(); id != 0 {
				if id == tmdbID {
					return true, item.RatingKey, nil
				}
				continue
			}
			if title == "" {
				continue
			}
			if year != 0 && item.Year != 0 && item.Year != year {
				continue
			}
			if titles.Match(title, item.Title) {
				c.log.Debug("presence matched by title", "title", title, "plex_title", item.Title)
				return true, item.RatingKey, nil
			}
		}
	}
	return false, "", nil
}
