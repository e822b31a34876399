// Package youtube provides a client for the YouTube Data API v3.
package youtube

import (
	"context"
	"encoding/json"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/osa030/tubebox/internal/domain/playlist"
	"github.com/osa030/tubebox/internal/domain/track"
)

// ScopeReadOnly is the OAuth scope needed for reading the user's playlists.
const ScopeReadOnly = "https://www.googleapis.com/auth/youtube.readonly"

const (
	defaultBaseURL   = "https://www.googleapis.com/youtube/v3"
	maxPageSize      = 50
	maxPlaylistPages = 20
)

// Errors
var (
	ErrNotFound     = errors.New("not found")
	ErrAuthRequired = errors.New("oauth credentials required")
)

// Config represents YouTube client configuration.
type Config struct {
	APIKey          string
	ClientID        string
	ClientSecret    string
	RefreshToken    string
	PageSize        int  // playlistItems page size (max 50)
	SearchLimit     int  // search maxResults (max 50)
	EnrichDurations bool // look up durations for each playlist page
}

// Client is a YouTube Data API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	oauth      bool

	pageSize        int
	searchLimit     int
	enrichDurations bool

	maxRetries int
	retryDelay time.Duration

	// Cache for video durations
	durationCache map[string]time.Duration
	cacheMu       sync.RWMutex
}

// New creates a new YouTube client. OAuth credentials take precedence over
// the API key.
func New(ctx context.Context, cfg Config) (*Client, error) {
	hasOAuth := cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.RefreshToken != ""
	if !hasOAuth && cfg.APIKey == "" {
		return nil, errors.New("youtube API key or oauth credentials are required")
	}

	var httpClient *http.Client
	if hasOAuth {
		conf := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoints.Google,
			Scopes:       []string{ScopeReadOnly},
		}
		// Get HTTP client with auto-refresh capability
		httpClient = conf.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	} else {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = 10 * time.Second

	return &Client{
		apiKey:          cfg.APIKey,
		baseURL:         defaultBaseURL,
		httpClient:      httpClient,
		oauth:           hasOAuth,
		pageSize:        clampPageSize(cfg.PageSize),
		searchLimit:     clampPageSize(cfg.SearchLimit),
		enrichDurations: cfg.EnrichDurations,
		maxRetries:      3,
		retryDelay:      time.Second,
		durationCache:   make(map[string]time.Duration),
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "youtube"
}

// GetPlaylistItemsPage retrieves one page of a playlist.
// An empty pageToken requests the first page.
// Reference: https://developers.google.com/youtube/v3/docs/playlistItems/list
func (c *Client) GetPlaylistItemsPage(ctx context.Context, playlistID, pageToken string) (playlist.Page, error) {
	id := ExtractPlaylistID(playlistID)
	if id == "" {
		return playlist.Page{}, errors.New("playlist id is required")
	}

	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("playlistId", id)
	params.Set("maxResults", strconv.Itoa(c.pageSize))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var response playlistItemsResponse
	if err := c.get(ctx, "/playlistItems", params, &response); err != nil {
		return playlist.Page{}, errors.Wrap(err, "failed to get playlist items")
	}

	items := make([]track.Track, 0, len(response.Items))
	for _, item := range response.Items {
		videoID := item.ContentDetails.VideoID
		if videoID == "" {
			videoID = item.Snippet.ResourceID.VideoID
		}
		if videoID == "" || isUnavailable(item.Snippet.Title) {
			continue
		}
		artist := item.Snippet.VideoOwnerChannelTitle
		if artist == "" {
			artist = item.Snippet.ChannelTitle
		}
		t := track.Track{
			ID:           videoID,
			Title:        html.UnescapeString(item.Snippet.Title),
			Artist:       html.UnescapeString(artist),
			ThumbnailURL: item.Snippet.Thumbnails.best(),
		}
		if d, err := track.ParseISODuration(item.ContentDetails.Duration); err == nil {
			t.Duration = d
		}
		items = append(items, t)
	}

	if c.enrichDurations {
		c.fillDurations(ctx, items)
	}

	return playlist.Page{Items: items, NextPageToken: response.NextPageToken}, nil
}

// Search searches videos and playlists.
// Reference: https://developers.google.com/youtube/v3/docs/search/list
func (c *Client) Search(ctx context.Context, query string) ([]playlist.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is required")
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", query)
	params.Set("type", "video,playlist")
	params.Set("maxResults", strconv.Itoa(c.searchLimit))

	var response searchResponse
	if err := c.get(ctx, "/search", params, &response); err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	results := make([]playlist.SearchResult, 0, len(response.Items))
	for _, item := range response.Items {
		title := html.UnescapeString(item.Snippet.Title)
		channel := html.UnescapeString(item.Snippet.ChannelTitle)
		thumb := item.Snippet.Thumbnails.best()

		switch {
		case item.ID.Kind == KindPlaylist && item.ID.PlaylistID != "":
			results = append(results, playlist.SearchResult{
				Kind: playlist.KindPlaylist,
				Playlist: &playlist.Playlist{
					ID:           item.ID.PlaylistID,
					Title:        title,
					Description:  html.UnescapeString(item.Snippet.Description),
					ThumbnailURL: thumb,
					ChannelTitle: channel,
				},
			})
		default:
			videoID := item.ID.VideoID
			if videoID == "" {
				videoID = item.VideoID
			}
			if videoID == "" {
				continue
			}
			results = append(results, playlist.SearchResult{
				Kind: playlist.KindVideo,
				Track: &track.Track{
					ID:           videoID,
					Title:        title,
					Artist:       channel,
					ThumbnailURL: thumb,
				},
			})
		}
	}

	return results, nil
}

// GetTrack retrieves a single video including its duration.
// Reference: https://developers.google.com/youtube/v3/docs/videos/list
func (c *Client) GetTrack(ctx context.Context, videoID string) (*track.Track, error) {
	if videoID == "" {
		return nil, errors.New("video id is required")
	}

	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("id", videoID)

	var response videosResponse
	if err := c.get(ctx, "/videos", params, &response); err != nil {
		return nil, errors.Wrap(err, "failed to get video")
	}
	if len(response.Items) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "video %s", videoID)
	}

	item := response.Items[0]
	t := &track.Track{
		ID:           item.ID,
		Title:        html.UnescapeString(item.Snippet.Title),
		Artist:       html.UnescapeString(item.Snippet.ChannelTitle),
		ThumbnailURL: item.Snippet.Thumbnails.best(),
	}
	if d, err := track.ParseISODuration(item.ContentDetails.Duration); err == nil {
		t.Duration = d
		c.cacheDuration(item.ID, d)
	}
	return t, nil
}

// GetUserPlaylists retrieves the authenticated user's playlists.
// Reference: https://developers.google.com/youtube/v3/docs/playlists/list
func (c *Client) GetUserPlaylists(ctx context.Context) ([]playlist.Playlist, error) {
	if !c.oauth {
		return nil, ErrAuthRequired
	}

	var playlists []playlist.Playlist
	pageToken := ""
	for page := 0; page < maxPlaylistPages; page++ {
		params := url.Values{}
		params.Set("part", "snippet,contentDetails")
		params.Set("mine", "true")
		params.Set("maxResults", strconv.Itoa(maxPageSize))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var response playlistsResponse
		if err := c.get(ctx, "/playlists", params, &response); err != nil {
			return nil, errors.Wrap(err, "failed to get playlists")
		}

		for _, item := range response.Items {
			playlists = append(playlists, playlist.Playlist{
				ID:           item.ID,
				Title:        html.UnescapeString(item.Snippet.Title),
				Description:  html.UnescapeString(item.Snippet.Description),
				ThumbnailURL: item.Snippet.Thumbnails.best(),
				ItemCount:    item.ContentDetails.ItemCount,
				ChannelTitle: html.UnescapeString(item.Snippet.ChannelTitle),
			})
		}

		if response.NextPageToken == "" {
			break
		}
		pageToken = response.NextPageToken
	}

	return playlists, nil
}

// fillDurations sets known durations on tracks, looking up missing ones in
// batches. Lookup failures leave durations unknown.
func (c *Client) fillDurations(ctx context.Context, tracks []track.Track) {
	var missing []string
	for i := range tracks {
		if tracks[i].HasDuration() {
			continue
		}
		if d, ok := c.cachedDuration(tracks[i].ID); ok {
			tracks[i].Duration = d
			continue
		}
		missing = append(missing, tracks[i].ID)
	}

	for start := 0; start < len(missing); start += maxPageSize {
		end := min(start+maxPageSize, len(missing))

		params := url.Values{}
		params.Set("part", "contentDetails")
		params.Set("id", strings.Join(missing[start:end], ","))

		var response videosResponse
		if err := c.get(ctx, "/videos", params, &response); err != nil {
			zlog.Warn().Err(err).Msg("youtube: duration lookup failed")
			return
		}
		for _, item := range response.Items {
			if d, err := track.ParseISODuration(item.ContentDetails.Duration); err == nil {
				c.cacheDuration(item.ID, d)
			}
		}
	}

	for i := range tracks {
		if d, ok := c.cachedDuration(tracks[i].ID); ok && !tracks[i].HasDuration() {
			tracks[i].Duration = d
		}
	}
}

func (c *Client) cachedDuration(id string) (time.Duration, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	d, ok := c.durationCache[id]
	return d, ok
}

func (c *Client) cacheDuration(id string, d time.Duration) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.durationCache[id] = d
}

// get performs a GET request with retry and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if c.apiKey != "" && !c.oauth {
		params.Set("key", c.apiKey)
	}
	reqURL := c.baseURL + path + "?" + params.Encode()

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

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			var er errorResponse
			if json.Unmarshal(body, &er) == nil && er.Error.Message != "" {
				apiErr.Message = er.Error.Message
				if len(er.Error.Errors) > 0 {
					apiErr.Reason = er.Error.Errors[0].Reason
				}
			}
			return apiErr
		}

		if err := json.Unmarshal(body, out); err != nil {
			return errors.Wrap(err, "failed to parse response")
		}
		return nil
	})
}

// retry retries an operation with linear backoff.
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
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}

// ExtractPlaylistID extracts the playlist ID from a YouTube URL, or returns
// the input unchanged when it is already an ID.
func ExtractPlaylistID(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "://") {
		return input
	}
	u, err := url.Parse(input)
	if err != nil {
		return ""
	}
	return u.Query().Get("list")
}

func clampPageSize(n int) int {
	if n <= 0 || n > maxPageSize {
		return maxPageSize
	}
	return n
}

