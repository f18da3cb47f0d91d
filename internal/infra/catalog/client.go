// Package catalog provides a client for the music catalog REST API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/domain/playlist"
	"github.com/osa030/playdeck/internal/domain/track"
	"github.com/osa030/playdeck/internal/infra/store"
)

var (
	ErrNotFound     = errors.New("not found in catalog")
	ErrInvalidInput = errors.New("invalid catalog request")
)

const (
	// pageLimit is the largest page the catalog serves.
	pageLimit      = 50
	maxScanPages   = 200
	defaultTimeout = 10 * time.Second
)

// Config represents catalog client configuration.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	CacheSize  int
	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client // Optional, for tests
}

// Client is a catalog API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration

	// Tracks seen in any response, by ID
	tracks *lru.Cache[string, track.Track]
}

// SongPage is one page of the song listing.
type SongPage struct {
	Songs []track.Track
	Page  int
	Limit int
	Total int
}

// PlaylistSummary is a playlist as returned by search.
type PlaylistSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

// SearchResult is the result of a catalog search.
type SearchResult struct {
	Songs     []track.Track
	Playlists []PlaylistSummary
	Total     int
}

// StatusError is returned for non-2xx catalog responses.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("catalog returned status %d: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("catalog returned status %d", e.Code)
}

type listResponse struct {
	Songs []track.Track `json:"songs"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Total int           `json:"total"`
}

type searchResponse struct {
	Songs     []track.Track     `json:"songs"`
	Playlists []PlaylistSummary `json:"playlists"`
	Total     int               `json:"total"`
}

type playlistResponse struct {
	Playlist struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		IsPublic    bool   `json:"is_public"`
		Users       *struct {
			Name string `json:"name"`
		} `json:"users"`
	} `json:"playlist"`
	Songs []track.Track `json:"songs"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrap(err, "invalid catalog base url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	tracks, err := lru.New[string, track.Track](cfg.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create track cache")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		tracks:     tracks,
	}, nil
}

// ListSongs retrieves one page of songs.
func (c *Client) ListSongs(ctx context.Context, page, limit int) (*SongPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > pageLimit {
		limit = pageLimit
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))

	var resp listResponse
	if err := c.get(ctx, "/api/v1/songs", params, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to list songs")
	}
	c.remember(resp.Songs)

	return &SongPage{
		Songs: resp.Songs,
		Page:  resp.Page,
		Limit: resp.Limit,
		Total: resp.Total,
	}, nil
}

// Search searches songs and playlists.
func (c *Client) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Wrap(ErrInvalidInput, "search query is required")
	}
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	var resp searchResponse
	if err := c.get(ctx, "/api/v1/songs/search", params, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}
	c.remember(resp.Songs)

	return &SearchResult{
		Songs:     resp.Songs,
		Playlists: resp.Playlists,
		Total:     resp.Total,
	}, nil
}

// Playlist retrieves a playlist with its songs.
func (c *Client) Playlist(ctx context.Context, id string) (*playlist.Playlist, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.Wrap(ErrInvalidInput, "playlist id is required")
	}

	var resp playlistResponse
	if err := c.get(ctx, "/api/v1/playlists/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to get playlist %s", id)
	}
	c.remember(resp.Songs)

	pl := &playlist.Playlist{
		ID:          resp.Playlist.ID,
		Name:        resp.Playlist.Name,
		Description: resp.Playlist.Description,
		IsPublic:    resp.Playlist.IsPublic,
		Tracks:      resp.Songs,
	}
	if pl.ID == "" {
		pl.ID = id
	}
	if resp.Playlist.Users != nil {
		pl.OwnerName = resp.Playlist.Users.Name
	}
	if pl.Tracks == nil {
		pl.Tracks = []track.Track{}
	}
	return pl, nil
}

// Track returns the track with the given ID. The catalog has no single
// track endpoint, so cache misses page through the song listing.
func (c *Client) Track(ctx context.Context, id string) (track.Track, error) {
	if t, ok := c.tracks.Get(id); ok {
		return t, nil
	}

	for page := 1; page <= maxScanPages; page++ {
		p, err := c.ListSongs(ctx, page, pageLimit)
		if err != nil {
			return track.Track{}, err
		}
		if i := track.IndexOf(p.Songs, id); i >= 0 {
			return p.Songs[i], nil
		}
		if len(p.Songs) == 0 || page*pageLimit >= p.Total {
			break
		}
	}

	return track.Track{}, errors.Wrapf(ErrNotFound, "track %s", id)
}

// ResolveSnapshot rebuilds a stored queue. Tracks that no longer exist are
// skipped.
func (c *Client) ResolveSnapshot(ctx context.Context, snap store.PlaylistSnapshot) ([]track.Track, error) {
	if snap.PlaylistID != "" {
		pl, err := c.Playlist(ctx, snap.PlaylistID)
		if err != nil {
			return nil, err
		}
		return pl.OrderBy(snap.TrackIDs), nil
	}

	tracks := make([]track.Track, 0, len(snap.TrackIDs))
	for _, id := range snap.TrackIDs {
		t, err := c.Track(ctx, id)
		if errors.Is(err, ErrNotFound) {
			zlog.Debug().Msgf("catalog: snapshot track no longer exists: track_id=%s", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (c *Client) remember(tracks []track.Track) {
	for _, t := range tracks {
		c.tracks.Add(t.ID, t)
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	return c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return errors.Wrap(err, "failed to create request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "failed to send request")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "failed to read response body")
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var apiErr errorResponse
			_ = json.Unmarshal(body, &apiErr)
			statusErr := &StatusError{Code: resp.StatusCode, Detail: apiErr.Detail}
			if resp.StatusCode == http.StatusNotFound {
				return errors.Mark(statusErr, ErrNotFound)
			}
			return statusErr
		}

		if err := json.Unmarshal(body, out); err != nil {
			return errors.Wrap(err, "failed to parse response")
		}
		return nil
	})
}

// retry executes fn with retry logic.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			zlog.Debug().Err(err).Msgf("catalog: retrying request: attempt=%d", i+1)
			select {
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "request cancelled")
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	return false
}
