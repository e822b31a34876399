package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tubebox/internal/app/notification"
	"github.com/osa030/tubebox/internal/app/playback"
	"github.com/osa030/tubebox/internal/app/player"
	"github.com/osa030/tubebox/internal/app/session/state"
	"github.com/osa030/tubebox/internal/domain/playlist"
	"github.com/osa030/tubebox/internal/domain/track"
	"github.com/osa030/tubebox/internal/infra/audio"
	"github.com/osa030/tubebox/internal/infra/config"
	"github.com/osa030/tubebox/internal/infra/store"
)

// fakeCatalog serves playlists in pages of per items. Pages after the first
// wait on gate when it is set.
type fakeCatalog struct {
	mu        sync.Mutex
	playlists map[string][]track.Track
	per       int
	gate      chan struct{}
	pageErr   error
	results   []playlist.SearchResult
	tracks    map[string]track.Track
	userLists []playlist.Playlist
}

func newFakeCatalog(per int) *fakeCatalog {
	return &fakeCatalog{
		playlists: make(map[string][]track.Track),
		tracks:    make(map[string]track.Track),
		per:       per,
	}
}

func (f *fakeCatalog) Name() string { return "fake" }

func (f *fakeCatalog) GetPlaylistItemsPage(ctx context.Context, id, token string) (playlist.Page, error) {
	f.mu.Lock()
	items, ok := f.playlists[id]
	gate, pageErr := f.gate, f.pageErr
	f.mu.Unlock()

	if !ok {
		return playlist.Page{}, errors.Newf("playlist %s not found", id)
	}
	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
		if pageErr != nil {
			return playlist.Page{}, pageErr
		}
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return playlist.Page{}, ctx.Err()
			}
		}
	}
	end := min(start+f.per, len(items))
	page := playlist.Page{Items: track.Clone(items[start:end])}
	if end < len(items) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeCatalog) Search(ctx context.Context, query string) ([]playlist.SearchResult, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	return f.results, nil
}

func (f *fakeCatalog) GetTrack(ctx context.Context, id string) (*track.Track, error) {
	t, ok := f.tracks[id]
	if !ok {
		return nil, errors.Newf("track %s not found", id)
	}
	return &t, nil
}

func (f *fakeCatalog) GetUserPlaylists(ctx context.Context) ([]playlist.Playlist, error) {
	return f.userLists, nil
}

func makeTracks(prefix string, n int) []track.Track {
	out := make([]track.Track, n)
	for i := range out {
		out[i] = track.Track{
			ID:       fmt.Sprintf("%s%d", prefix, i),
			Title:    fmt.Sprintf("Song %d", i),
			Duration: time.Hour,
		}
	}
	return out
}

type testSession struct {
	*Manager
	catalog *fakeCatalog
	backend *audio.Simulated
	store   *store.Store
}

func newTestSession(t *testing.T, cfg Config, cat *fakeCatalog) *testSession {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "session.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	backend := audio.NewSimulated(audio.SimulatedConfig{DefaultDuration: time.Hour, Tick: 5 * time.Millisecond}, nil)
	adapter := player.NewAdapter(backend, player.Config{FallbackStartDelay: 50 * time.Millisecond})
	t.Cleanup(func() { _ = adapter.Close() })

	rng := rand.New(rand.NewPCG(1, 2))
	controller := playback.NewController(adapter, st, playback.Config{
		PollInterval: 20 * time.Millisecond,
		IntN:         rng.IntN,
	})

	m := NewManager(cfg, cat, controller, notification.NewManager(), st)
	backend.SetDurationLookup(m.KnownDuration)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Close)

	return &testSession{Manager: m, catalog: cat, backend: backend, store: st}
}

func currentID(s playback.Snapshot) string {
	if s.CurrentTrack == nil {
		return ""
	}
	return s.CurrentTrack.ID
}

func TestPlayPlaylistLoadsAllPages(t *testing.T) {
	cat := newFakeCatalog(2)
	cat.playlists["PL"] = makeTracks("v", 5)
	s := newTestSession(t, Config{}, cat)

	require.NoError(t, s.PlayPlaylist(context.Background(), "PL"))

	require.Eventually(t, func() bool {
		return !s.GetStatus().Context.Loading
	}, 2*time.Second, 5*time.Millisecond)

	snap := s.Playback().Snapshot()
	assert.Equal(t, "v0", currentID(snap))
	assert.Equal(t, []string{"v1", "v2", "v3", "v4"}, track.IDs(snap.Queue))
	assert.Equal(t, 5, snap.FullPlaylistSize)
	assert.Equal(t, []string{"v0", "v1", "v2", "v3", "v4"}, track.IDs(snap.OriginalOrder))

	ctxState := s.GetStatus().Context
	assert.Equal(t, state.KindPlaylist, ctxState.Kind)
	assert.Equal(t, "PL", ctxState.ID)
	assert.Equal(t, 5, ctxState.LoadedCount)
	assert.Empty(t, ctxState.Error)

	d, ok := s.KnownDuration("v3")
	assert.True(t, ok)
	assert.Equal(t, time.Hour, d)
}

func TestPlayPlaylistSinglePage(t *testing.T) {
	cat := newFakeCatalog(10)
	cat.playlists["PL"] = makeTracks("v", 3)
	s := newTestSession(t, Config{}, cat)

	require.NoError(t, s.PlayPlaylist(context.Background(), "PL"))
	assert.False(t, s.GetStatus().Context.Loading)
	assert.Equal(t, []string{"v1", "v2"}, track.IDs(s.Playback().Snapshot().Queue))
}

func TestPlayPlaylistErrors(t *testing.T) {
	cat := newFakeCatalog(2)
	cat.playlists["EMPTY"] = nil
	s := newTestSession(t, Config{}, cat)

	err := s.PlayPlaylist(context.Background(), "MISSING")
	assert.Error(t, err)
	assert.NotEmpty(t, s.GetStatus().Context.Error)
	assert.Nil(t, s.Playback().Snapshot().CurrentTrack)

	err = s.PlayPlaylist(context.Background(), "EMPTY")
	assert.ErrorIs(t, err, ErrEmptyPlaylist)
	assert.Nil(t, s.Playback().Snapshot().CurrentTrack)
}

func TestBackgroundPageFailureKeepsPlayback(t *testing.T) {
	cat := newFakeCatalog(2)
	cat.playlists["PL"] = makeTracks("v", 5)
	cat.pageErr = errors.New("quota exceeded")
	s := newTestSession(t, Config{}, cat)

	require.NoError(t, s.PlayPlaylist(context.Background(), "PL"))
	require.Eventually(t, func() bool {
		return !s.GetStatus().Context.Loading
	}, 2*time.Second, 5*time.Millisecond)

	assert.Contains(t, s.GetStatus().Context.Error, "quota exceeded")
	snap := s.Playback().Snapshot()
	assert.Equal(t, "v0", currentID(snap))
	assert.Equal(t, []string{"v1"}, track.IDs(snap.Queue))
}

func TestStalePagesAreDropped(t *testing.T) {
	cat := newFakeCatalog(2)
	cat.playlists["A"] = makeTracks("a", 5)
	cat.playlists["B"] = makeTracks("b", 2)
	cat.gate = make(chan struct{})
	s := newTestSession(t, Config{}, cat)

	require.NoError(t, s.PlayPlaylist(context.Background(), "A"))
	require.NoError(t, s.PlayPlaylist(context.Background(), "B"))
	close(cat.gate)

	time.Sleep(50 * time.Millisecond)
	snap := s.Playback().Snapshot()
	assert.Equal(t, "b0", currentID(snap))
	assert.Equal(t, []string{"b1"}, track.IDs(snap.Queue))
	assert.Equal(t, 2, snap.FullPlaylistSize)
	assert.Equal(t, "B", s.GetStatus().Context.ID)
}

func TestToggleShuffleFullPoolWaitsForPages(t *testing.T) {
	cat := newFakeCatalog(2)
	cat.playlists["PL"] = makeTracks("v", 6)
	cat.gate = make(chan struct{})
	s := newTestSession(t, Config{ShufflePool: config.ShufflePoolFull}, cat)

	require.NoError(t, s.PlayPlaylist(context.Background(), "PL"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err := s.ToggleShuffle(ctx)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.Playback().Snapshot().Shuffle)

	close(cat.gate)
	on, err := s.ToggleShuffle(context.Background())
	require.NoError(t, err)
	assert.True(t, on)

	snap := s.Playback().Snapshot()
	assert.ElementsMatch(t, []string{"v1", "v2", "v3", "v4", "v5"}, track.IDs(snap.Queue))
	assert.NotContains(t, track.IDs(snap.Queue), "v0")
}

func TestToggleShufflePartialPool(t *testing.T) {
	cat := newFakeCatalog(2)
	cat.playlists["PL"] = makeTracks("v", 6)
	cat.gate = make(chan struct{})
	s := newTestSession(t, Config{ShufflePool: config.ShufflePoolPartial}, cat)

	require.NoError(t, s.PlayPlaylist(context.Background(), "PL"))
	on, err := s.ToggleShuffle(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, []string{"v1"}, track.IDs(s.Playback().Snapshot().Queue))

	// Pages arriving after shuffle is on join the queue.
	close(cat.gate)
	require.Eventually(t, func() bool {
		return len(s.Playback().Snapshot().Queue) == 5
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSearchAndPlayResult(t *testing.T) {
	cat := newFakeCatalog(10)
	a := track.Track{ID: "a", Title: "A"}
	b := track.Track{ID: "b", Title: "B"}
	c := track.Track{ID: "c", Title: "C", Duration: time.Minute}
	cat.results = []playlist.SearchResult{
		{Kind: playlist.KindVideo, Track: &a},
		{Kind: playlist.KindPlaylist, Playlist: &playlist.Playlist{ID: "PL", Title: "Mix"}},
		{Kind: playlist.KindVideo, Track: &b},
		{Kind: playlist.KindVideo, Track: &c},
	}
	cat.tracks["a"] = track.Track{ID: "a", Title: "A", Duration: 3 * time.Minute}
	cat.playlists["PL"] = makeTracks("p", 2)
	s := newTestSession(t, Config{}, cat)
	ctx := context.Background()

	results, err := s.Search(ctx, "lofi")
	require.NoError(t, err)
	assert.Len(t, results, 4)

	require.NoError(t, s.PlaySearchResult(ctx, 0))
	snap := s.Playback().Snapshot()
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, "a", snap.CurrentTrack.ID)
	assert.Equal(t, 3*time.Minute, snap.CurrentTrack.Duration)
	assert.Equal(t, []string{"b", "c"}, track.IDs(snap.Queue))
	assert.Equal(t, 3, snap.FullPlaylistSize)
	assert.Equal(t, state.KindSearch, s.GetStatus().Context.Kind)

	require.NoError(t, s.PlaySearchResult(ctx, 1))
	assert.Equal(t, "p0", currentID(s.Playback().Snapshot()))

	assert.ErrorIs(t, s.PlaySearchResult(ctx, 9), ErrResultIndex)

	history, err := s.SearchHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lofi"}, history)
}

func TestPlaySearchResultWithoutSearch(t *testing.T) {
	s := newTestSession(t, Config{}, newFakeCatalog(10))
	assert.ErrorIs(t, s.PlaySearchResult(context.Background(), 0), ErrNoSearchResults)
}

func TestSearchFailure(t *testing.T) {
	s := newTestSession(t, Config{}, newFakeCatalog(10))
	_, err := s.Search(context.Background(), "")
	assert.Error(t, err)

	history, err := s.SearchHistory(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPlayTrackResolvesAndRecords(t *testing.T) {
	cat := newFakeCatalog(10)
	cat.tracks["x"] = track.Track{ID: "x", Title: "Resolved", Artist: "Someone", Duration: 2 * time.Minute}
	s := newTestSession(t, Config{}, cat)
	ctx := context.Background()

	require.NoError(t, s.PlayTrack(ctx, track.Track{ID: "x"}))
	snap := s.Playback().Snapshot()
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, "Resolved", snap.CurrentTrack.Title)
	assert.Equal(t, state.KindTrack, s.GetStatus().Context.Kind)

	require.Eventually(t, func() bool {
		entries, err := s.RecentlyPlayed(ctx)
		return err == nil && len(entries) == 1 && entries[0].Track.ID == "x"
	}, 2*time.Second, 5*time.Millisecond)

	// The simulated backend picks up the catalog duration.
	require.Eventually(t, func() bool {
		return s.Playback().Snapshot().IsPlaying
	}, 2*time.Second, 5*time.Millisecond)
	d, err := s.backend.Duration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120.0, d)

	assert.ErrorIs(t, s.PlayTrack(ctx, track.Track{}), playback.ErrInvalidTrack)
}

func TestPlayTrackUnknownToCatalog(t *testing.T) {
	s := newTestSession(t, Config{}, newFakeCatalog(10))
	require.NoError(t, s.PlayTrack(context.Background(), track.Track{ID: "local"}))
	assert.Equal(t, "local", currentID(s.Playback().Snapshot()))
}

func TestEnqueue(t *testing.T) {
	cat := newFakeCatalog(10)
	cat.tracks["y"] = track.Track{ID: "y", Title: "Y"}
	s := newTestSession(t, Config{}, cat)

	s.Enqueue(context.Background(), []track.Track{{ID: "y"}, {}, {ID: "z", Title: "Z"}})
	q := s.Playback().Snapshot().Queue
	assert.Equal(t, []string{"y", "z"}, track.IDs(q))
	assert.Equal(t, "Y", q[0].Title)
}

func TestListPlaylists(t *testing.T) {
	cat := newFakeCatalog(10)
	cat.userLists = []playlist.Playlist{{ID: "PL1", Title: "Favourites"}}
	s := newTestSession(t, Config{}, cat)

	lists, err := s.ListPlaylists(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cat.userLists, lists)
	assert.Equal(t, "fake", s.CatalogName())
}

type captureStream struct {
	mu  sync.Mutex
	got []playback.EventType
}

func (c *captureStream) Send(n *notification.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n.Type)
	return nil
}

func (c *captureStream) types() []playback.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]playback.EventType(nil), c.got...)
}

func TestEventsFanOut(t *testing.T) {
	s := newTestSession(t, Config{}, newFakeCatalog(10))
	stream := &captureStream{}
	s.GetNotificationManager().Subscribe(stream)

	require.NoError(t, s.PlayTrack(context.Background(), track.Track{ID: "v", Title: "V", Duration: time.Hour}))

	require.Eventually(t, func() bool {
		types := stream.types()
		return len(types) >= 2 &&
			types[0] == playback.EventTrackStarted &&
			containsType(types, playback.EventStateChanged)
	}, 2*time.Second, 5*time.Millisecond)
}

func containsType(types []playback.EventType, want playback.EventType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}
