// Package spotify provides a catalog client for the Spotify Web API.
package spotify

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/tubebox/internal/domain/playlist"
	"github.com/osa030/tubebox/internal/domain/track"
)

const maxPageSize = 50

// Client is a Spotify API client exposing the catalog operations.
type Client struct {
	client      *spotify.Client
	market      string
	pageSize    int
	searchLimit int
	maxRetries  int
	retryDelay  time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
	PageSize     int
	SearchLimit  int
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistReadCollaborative,
		),
	)

	// Get HTTP client with auto-refresh capability
	httpClient := auth.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	return newWithHTTPClient(httpClient, cfg), nil
}

func newWithHTTPClient(httpClient *http.Client, cfg Config, opts ...spotify.ClientOption) *Client {
	market := cfg.Market
	if market == "" {
		market = "JP"
	}
	return &Client{
		client:      spotify.New(httpClient, opts...),
		market:      market,
		pageSize:    clampPageSize(cfg.PageSize),
		searchLimit: clampPageSize(cfg.SearchLimit),
		maxRetries:  3,
		retryDelay:  time.Second,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "spotify"
}

// GetPlaylistItemsPage retrieves one page of a playlist. Page tokens are
// item offsets; an empty token requests the first page.
func (c *Client) GetPlaylistItemsPage(ctx context.Context, playlistURL, pageToken string) (playlist.Page, error) {
	playlistID := extractPlaylistID(playlistURL)
	if playlistID == "" {
		return playlist.Page{}, errors.New("invalid playlist URL")
	}
	offset, err := parsePageToken(pageToken)
	if err != nil {
		return playlist.Page{}, err
	}

	var page *spotify.PlaylistItemPage
	err = c.retry(ctx, func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(c.pageSize),
			spotify.Offset(offset),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return playlist.Page{}, errors.Wrap(err, "failed to get playlist items")
	}

	items := make([]track.Track, 0, len(page.Items))
	for _, item := range page.Items {
		// Only process tracks (exclude episodes)
		if item.Track.Track != nil && item.Track.Track.ID != "" {
			items = append(items, convertTrack(item.Track.Track))
		}
	}

	next := offset + len(page.Items)
	result := playlist.Page{Items: items}
	if len(page.Items) > 0 && next < int(page.Total) {
		result.NextPageToken = strconv.Itoa(next)
	}
	return result, nil
}

// Search searches tracks and playlists.
func (c *Client) Search(ctx context.Context, query string) ([]playlist.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is required")
	}

	var result *spotify.SearchResult
	err := c.retry(ctx, func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack|spotify.SearchTypePlaylist,
			spotify.Limit(c.searchLimit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	var results []playlist.SearchResult
	if result.Tracks != nil {
		for i := range result.Tracks.Tracks {
			t := convertTrack(&result.Tracks.Tracks[i])
			results = append(results, playlist.SearchResult{Kind: playlist.KindVideo, Track: &t})
		}
	}
	if result.Playlists != nil {
		for _, p := range result.Playlists.Playlists {
			if p.ID == "" {
				continue
			}
			pl := convertPlaylist(p)
			results = append(results, playlist.SearchResult{Kind: playlist.KindPlaylist, Playlist: &pl})
		}
	}
	return results, nil
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*track.Track, error) {
	id := extractTrackID(trackID)

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	t := convertTrack(result)
	return &t, nil
}

// GetUserPlaylists retrieves the current user's playlists.
func (c *Client) GetUserPlaylists(ctx context.Context) ([]playlist.Playlist, error) {
	var playlists []playlist.Playlist
	offset := 0

	for {
		var page *spotify.SimplePlaylistPage
		err := c.retry(ctx, func() error {
			p, err := c.client.CurrentUsersPlaylists(ctx, spotify.Limit(maxPageSize), spotify.Offset(offset))
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlists")
		}

		for _, p := range page.Playlists {
			playlists = append(playlists, convertPlaylist(p))
		}

		if len(page.Playlists) < maxPageSize {
			break
		}
		offset += maxPageSize
	}

	return playlists, nil
}

// convertTrack converts a Spotify FullTrack to a domain Track.
func convertTrack(t *spotify.FullTrack) track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var albumArt string
	if len(t.Album.Images) > 0 {
		albumArt = t.Album.Images[0].URL
	}

	return track.Track{
		ID:           string(t.ID),
		Title:        t.Name,
		Artist:       strings.Join(artists, ", "),
		ThumbnailURL: albumArt,
		Duration:     time.Duration(t.Duration) * time.Millisecond,
	}
}

func convertPlaylist(p spotify.SimplePlaylist) playlist.Playlist {
	var image string
	if len(p.Images) > 0 {
		image = p.Images[0].URL
	}
	return playlist.Playlist{
		ID:           string(p.ID),
		Title:        p.Name,
		Description:  p.Description,
		ThumbnailURL: image,
		ItemCount:    int(p.Tracks.Total),
		ChannelTitle: p.Owner.DisplayName,
	}
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
	if err == nil {
		return false
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

func parsePageToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(token)
	if err != nil || offset < 0 {
		return 0, errors.Newf("invalid page token %q", token)
	}
	return offset, nil
}

func clampPageSize(n int) int {
	if n <= 0 || n > maxPageSize {
		return maxPageSize
	}
	return n
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

// extractID handles "spotify:<kind>:ID", "https://open.spotify.com/[intl-xx/]<kind>/ID"
// and bare IDs.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	if prefix := "spotify:" + kind + ":"; strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	if segment := "/" + kind + "/"; strings.Contains(input, "open.spotify.com") && strings.Contains(input, segment) {
		parts := strings.Split(input, segment)
		// Remove query parameters and trailing slashes
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Assume it's already an ID
	return input
}
