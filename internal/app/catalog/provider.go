// Package catalog abstracts the remote media catalog that playlists,
// searches and track metadata come from.
package catalog

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tubebox/internal/domain/playlist"
	"github.com/osa030/tubebox/internal/domain/track"
)

// Provider is the interface for catalog backends.
type Provider interface {
	// Name returns the provider name (used in config).
	Name() string

	// GetPlaylistItemsPage fetches one page of a playlist. An empty token
	// requests the first page; the returned page carries the next token.
	GetPlaylistItemsPage(ctx context.Context, playlistID, pageToken string) (playlist.Page, error)

	// Search returns mixed track and playlist results.
	Search(ctx context.Context, query string) ([]playlist.SearchResult, error)

	// GetTrack resolves a single track.
	GetTrack(ctx context.Context, trackID string) (*track.Track, error)

	// GetUserPlaylists lists the authenticated user's playlists.
	GetUserPlaylists(ctx context.Context) ([]playlist.Playlist, error)
}

// maxDrainPages bounds Drain against providers that never stop returning tokens.
const maxDrainPages = 200

// Drain fetches every page after startToken, calling onPage for each one.
// delay is slept between requests. Returning an error from onPage stops the
// walk and is returned as is.
func Drain(ctx context.Context, p Provider, playlistID, startToken string, delay time.Duration, onPage func(playlist.Page) error) error {
	token := startToken
	for i := 0; i < maxDrainPages; i++ {
		page, err := p.GetPlaylistItemsPage(ctx, playlistID, token)
		if err != nil {
			return errors.Wrapf(err, "failed to fetch page %d of playlist %s", i+1, playlistID)
		}
		if err := onPage(page); err != nil {
			return err
		}
		if !page.HasMore() || page.NextPageToken == token {
			return nil
		}
		token = page.NextPageToken

		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}
	return errors.Newf("playlist %s exceeded %d pages", playlistID, maxDrainPages)
}

// FetchAll drains the whole playlist into memory.
func FetchAll(ctx context.Context, p Provider, playlistID string) ([]track.Track, error) {
	var tracks []track.Track
	err := Drain(ctx, p, playlistID, "", 0, func(page playlist.Page) error {
		tracks = append(tracks, page.Items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}
