package catalog

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tubebox/internal/domain/playlist"
	"github.com/osa030/tubebox/internal/domain/track"
	"github.com/osa030/tubebox/internal/infra/config"
)

// pagedProvider serves a fixed track list in pages of size per.
type pagedProvider struct {
	tracks []track.Track
	per    int
	failAt string
	calls  []string
}

func (p *pagedProvider) Name() string { return "paged" }

func (p *pagedProvider) GetPlaylistItemsPage(_ context.Context, _ string, token string) (playlist.Page, error) {
	p.calls = append(p.calls, token)
	if token == p.failAt && p.failAt != "" {
		return playlist.Page{}, errors.New("boom")
	}
	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := min(start+p.per, len(p.tracks))
	page := playlist.Page{Items: p.tracks[start:end]}
	if end < len(p.tracks) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (p *pagedProvider) Search(context.Context, string) ([]playlist.SearchResult, error) {
	return nil, nil
}

func (p *pagedProvider) GetTrack(context.Context, string) (*track.Track, error) {
	return nil, nil
}

func (p *pagedProvider) GetUserPlaylists(context.Context) ([]playlist.Playlist, error) {
	return nil, nil
}

func makeTracks(n int) []track.Track {
	out := make([]track.Track, n)
	for i := range out {
		out[i] = track.Track{ID: "v" + strconv.Itoa(i)}
	}
	return out
}

func TestDrain(t *testing.T) {
	p := &pagedProvider{tracks: makeTracks(7), per: 3}

	var sizes []int
	err := Drain(context.Background(), p, "pl", "3", 0, func(page playlist.Page) error {
		sizes = append(sizes, len(page.Items))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, sizes)
	assert.Equal(t, []string{"3", "6"}, p.calls)
}

func TestDrainStopsOnCallbackError(t *testing.T) {
	p := &pagedProvider{tracks: makeTracks(9), per: 3}
	stop := errors.New("stale")

	err := Drain(context.Background(), p, "pl", "", 0, func(playlist.Page) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Len(t, p.calls, 1)
}

func TestDrainProviderError(t *testing.T) {
	p := &pagedProvider{tracks: makeTracks(9), per: 3, failAt: "6"}

	var got int
	err := Drain(context.Background(), p, "pl", "", 0, func(page playlist.Page) error {
		got += len(page.Items)
		return nil
	})
	assert.Error(t, err)
	assert.Equal(t, 6, got)
}

func TestDrainCancelledDuringDelay(t *testing.T) {
	p := &pagedProvider{tracks: makeTracks(9), per: 3}
	ctx, cancel := context.WithCancel(context.Background())

	err := Drain(ctx, p, "pl", "", time.Hour, func(playlist.Page) error {
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, p.calls, 1)
}

func TestFetchAll(t *testing.T) {
	p := &pagedProvider{tracks: makeTracks(5), per: 2}

	tracks, err := FetchAll(context.Background(), p, "pl")
	require.NoError(t, err)
	assert.Equal(t, track.IDs(makeTracks(5)), track.IDs(tracks))
}

func TestNewProviderFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.CatalogConfig
		wantName string
		wantErr  bool
	}{
		{
			name:     "youtube with api key",
			cfg:      config.CatalogConfig{Type: "youtube", Settings: map[string]any{"api_key": "k"}},
			wantName: "youtube",
		},
		{
			name:     "youtube with string page size",
			cfg:      config.CatalogConfig{Type: "youtube", Settings: map[string]any{"api_key": "k", "page_size": "25"}},
			wantName: "youtube",
		},
		{
			name:    "youtube without credentials",
			cfg:     config.CatalogConfig{Type: "youtube"},
			wantErr: true,
		},
		{
			name:    "youtube page size out of range",
			cfg:     config.CatalogConfig{Type: "youtube", Settings: map[string]any{"api_key": "k", "page_size": 500}},
			wantErr: true,
		},
		{
			name: "spotify",
			cfg: config.CatalogConfig{Type: "spotify", Settings: map[string]any{
				"client_id": "id", "client_secret": "secret", "refresh_token": "rt",
			}},
			wantName: "spotify",
		},
		{
			name:    "spotify missing refresh token",
			cfg:     config.CatalogConfig{Type: "spotify", Settings: map[string]any{"client_id": "id", "client_secret": "secret"}},
			wantErr: true,
		},
		{
			name:    "unknown type",
			cfg:     config.CatalogConfig{Type: "soundcloud"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProviderFromConfig(context.Background(), tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestDecodeSettingsDefaults(t *testing.T) {
	var s YouTubeSettings
	require.NoError(t, decodeSettings(map[string]any{"api_key": "k"}, &s))
	assert.Equal(t, 50, s.PageSize)
	assert.Equal(t, 10, s.SearchLimit)
	require.NotNil(t, s.EnrichDurations)
	assert.True(t, *s.EnrichDurations)

	s = YouTubeSettings{}
	require.NoError(t, decodeSettings(map[string]any{"api_key": "k", "enrich_durations": false}, &s))
	require.NotNil(t, s.EnrichDurations)
	assert.False(t, *s.EnrichDurations)
}
