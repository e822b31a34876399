// Package session composes the catalog, the playback engine and the local
// history into the operations exposed to remote controllers.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tubebox/internal/app/catalog"
	"github.com/osa030/tubebox/internal/app/notification"
	"github.com/osa030/tubebox/internal/app/playback"
	"github.com/osa030/tubebox/internal/app/session/state"
	"github.com/osa030/tubebox/internal/domain/playlist"
	"github.com/osa030/tubebox/internal/domain/track"
	"github.com/osa030/tubebox/internal/infra/config"
	"github.com/osa030/tubebox/internal/infra/store"
)

var (
	ErrEmptyPlaylist   = errors.New("playlist has no playable items")
	ErrNoSearchResults = errors.New("no search results")
	ErrResultIndex     = errors.New("search result index out of range")
	ErrStaleContext    = errors.New("browsing context superseded")
)

// HistoryStore persists listening and search history.
type HistoryStore interface {
	AddRecentlyPlayed(ctx context.Context, t track.Track) error
	RecentlyPlayed(ctx context.Context) ([]store.RecentEntry, error)
	AddSearch(ctx context.Context, query string) error
	SearchHistory(ctx context.Context) ([]string, error)
}

// Config holds session configuration.
type Config struct {
	ShufflePool    string        // config.ShufflePoolPartial or config.ShufflePoolFull
	PageFetchDelay time.Duration // Pause between background page fetches
}

// Manager manages the listening session.
type Manager struct {
	mu sync.RWMutex

	config Config

	// Components
	catalog      catalog.Provider
	playback     *playback.Controller
	notification *notification.Manager
	history      HistoryStore
	stateMgr     *state.Manager

	// Last search
	searchQuery   string
	searchResults []playlist.SearchResult

	// Durations seen in catalog responses, keyed by track ID
	durations map[string]time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewManager creates a new session manager.
func NewManager(
	cfg Config,
	provider catalog.Provider,
	controller *playback.Controller,
	notifications *notification.Manager,
	history HistoryStore,
) *Manager {
	if cfg.ShufflePool == "" {
		cfg.ShufflePool = config.ShufflePoolPartial
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:       cfg,
		catalog:      provider,
		playback:     controller,
		notification: notifications,
		history:      history,
		stateMgr:     state.New(),
		durations:    make(map[string]time.Duration),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Start starts the playback engine and the event fan-out loop.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.playback.Start(ctx); err != nil {
		zlog.Warn().Err(err).Msg("session: starting with default volume")
	}
	go m.playbackLoop()
	zlog.Info().Msgf("session started: catalog=%s shuffle_pool=%s", m.catalog.Name(), m.config.ShufflePool)
	return nil
}

// Done is closed when the event loop exits.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Playback returns the playback controller.
func (m *Manager) Playback() *playback.Controller {
	return m.playback
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// CatalogName returns the catalog provider name.
func (m *Manager) CatalogName() string {
	return m.catalog.Name()
}

// Status represents the current session status with all information.
type Status struct {
	Playback playback.Snapshot
	Context  state.Context
}

// GetStatus returns the current session status.
func (m *Manager) GetStatus() *Status {
	return &Status{
		Playback: m.playback.Snapshot(),
		Context:  m.stateMgr.Get(),
	}
}

// PlayTrack plays a single track and clears the browsing context. Tracks
// given by ID alone are resolved through the catalog.
func (m *Manager) PlayTrack(ctx context.Context, t track.Track) error {
	if t.ID == "" {
		return playback.ErrInvalidTrack
	}
	t = m.resolve(ctx, t)

	gen, _ := m.stateMgr.Begin(m.ctx, state.KindTrack, t.ID)
	defer m.stateMgr.Finish(gen, nil)

	return m.playback.PlayTrack(ctx, t)
}

// Enqueue resolves and appends tracks to the queue.
func (m *Manager) Enqueue(ctx context.Context, tracks []track.Track) {
	resolved := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		resolved = append(resolved, m.resolve(ctx, t))
	}
	m.playback.Enqueue(resolved...)
}

// PlayPlaylist plays the first item of a playlist, queues the rest of the
// first page and loads the remaining pages in the background.
func (m *Manager) PlayPlaylist(ctx context.Context, playlistID string) error {
	gen, loadCtx := m.stateMgr.Begin(m.ctx, state.KindPlaylist, playlistID)

	page, err := m.catalog.GetPlaylistItemsPage(ctx, playlistID, "")
	if err != nil {
		zlog.Error().Err(err).Msgf("session: failed to load playlist: id=%s", playlistID)
		m.stateMgr.Finish(gen, err)
		return errors.Wrapf(err, "failed to load playlist %s", playlistID)
	}
	if !m.stateMgr.IsCurrent(gen) {
		return ErrStaleContext
	}
	m.rememberDurations(page.Items)
	m.stateMgr.AddLoaded(gen, len(page.Items), page.NextPageToken)

	if len(page.Items) == 0 {
		m.stateMgr.Finish(gen, ErrEmptyPlaylist)
		return ErrEmptyPlaylist
	}

	zlog.Info().Msgf("session: playing playlist: id=%s first_page=%d more=%v", playlistID, len(page.Items), page.HasMore())

	playErr := m.playback.PlayTrack(ctx, page.Items[0])
	m.playback.SetQueue(page.Items[1:])
	m.playback.SetFullPlaylist(page.Items)

	if page.HasMore() {
		m.wg.Add(1)
		go m.loadRemaining(loadCtx, gen, playlistID, page.NextPageToken)
	} else {
		m.stateMgr.Finish(gen, nil)
	}
	return playErr
}

// loadRemaining appends the pages after startToken to the playback context.
func (m *Manager) loadRemaining(ctx context.Context, gen uint64, playlistID, startToken string) {
	defer m.wg.Done()

	err := catalog.Drain(ctx, m.catalog, playlistID, startToken, m.config.PageFetchDelay, func(page playlist.Page) error {
		appended := m.stateMgr.CommitPage(gen, len(page.Items), page.NextPageToken, func() {
			m.playback.AppendToContext(page.Items)
		})
		if !appended {
			return ErrStaleContext
		}
		m.rememberDurations(page.Items)
		zlog.Debug().Msgf("session: appended page: playlist=%s items=%d next=%q", playlistID, len(page.Items), page.NextPageToken)
		return nil
	})

	switch {
	case err == nil:
		m.stateMgr.Finish(gen, nil)
	case errors.Is(err, ErrStaleContext), errors.Is(err, context.Canceled):
		zlog.Debug().Msgf("session: dropped stale page load: playlist=%s", playlistID)
		m.stateMgr.Finish(gen, nil)
	default:
		zlog.Error().Err(err).Msgf("session: background page load failed: playlist=%s", playlistID)
		m.stateMgr.Finish(gen, err)
	}
}

// Search runs a catalog search and records the query.
func (m *Manager) Search(ctx context.Context, query string) ([]playlist.SearchResult, error) {
	results, err := m.catalog.Search(ctx, query)
	if err != nil {
		zlog.Error().Err(err).Msgf("session: search failed: query=%q", query)
		return nil, errors.Wrap(err, "search failed")
	}
	if err := m.history.AddSearch(ctx, query); err != nil {
		zlog.Warn().Err(err).Msg("session: failed to record search history")
	}
	m.rememberDurations(playlist.Videos(results))

	m.mu.Lock()
	m.searchQuery = query
	m.searchResults = results
	m.mu.Unlock()
	return results, nil
}

// SearchResults returns the results of the last search.
func (m *Manager) SearchResults() (string, []playlist.SearchResult) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.searchQuery, append([]playlist.SearchResult(nil), m.searchResults...)
}

// PlaySearchResult plays the result at index of the last search. A playlist
// result plays that playlist; a video result is played with the following
// video results queued after it.
func (m *Manager) PlaySearchResult(ctx context.Context, index int) error {
	query, results := m.SearchResults()
	if len(results) == 0 {
		return ErrNoSearchResults
	}
	if index < 0 || index >= len(results) {
		return errors.Wrapf(ErrResultIndex, "index %d of %d", index, len(results))
	}

	r := results[index]
	if r.Kind == playlist.KindPlaylist {
		return m.PlayPlaylist(ctx, r.Playlist.ID)
	}

	gen, _ := m.stateMgr.Begin(m.ctx, state.KindSearch, query)
	defer m.stateMgr.Finish(gen, nil)

	selected := *r.Track
	if !selected.HasDuration() {
		if full, err := m.catalog.GetTrack(ctx, selected.ID); err != nil {
			zlog.Warn().Err(err).Msgf("session: duration lookup failed: id=%s", selected.ID)
		} else if full.HasDuration() {
			selected = selected.WithDuration(full.Duration)
			m.rememberDurations([]track.Track{selected})
		}
	}

	playErr := m.playback.PlayTrack(ctx, selected)
	m.playback.SetQueue(playlist.Videos(results[index+1:]))
	m.playback.SetFullPlaylist(playlist.Videos(results))
	m.stateMgr.AddLoaded(gen, len(results), "")
	return playErr
}

// ToggleShuffle toggles shuffle. With the full shuffle pool policy, turning
// shuffle on first waits for the browsing context to finish loading.
func (m *Manager) ToggleShuffle(ctx context.Context) (bool, error) {
	if m.config.ShufflePool == config.ShufflePoolFull && !m.playback.Snapshot().Shuffle {
		if err := m.stateMgr.Wait(ctx); err != nil {
			return false, errors.Wrap(err, "interrupted while loading shuffle pool")
		}
	}
	return m.playback.ToggleShuffle(), nil
}

// ListPlaylists returns the user's playlists.
func (m *Manager) ListPlaylists(ctx context.Context) ([]playlist.Playlist, error) {
	playlists, err := m.catalog.GetUserPlaylists(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list playlists")
	}
	return playlists, nil
}

// RecentlyPlayed returns the recently played tracks, most recent first.
func (m *Manager) RecentlyPlayed(ctx context.Context) ([]store.RecentEntry, error) {
	return m.history.RecentlyPlayed(ctx)
}

// SearchHistory returns past queries, most recent first.
func (m *Manager) SearchHistory(ctx context.Context) ([]string, error) {
	return m.history.SearchHistory(ctx)
}

// KnownDuration returns a duration seen in a catalog response for id.
func (m *Manager) KnownDuration(id string) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.durations[id]
	return d, ok
}

// Close stops background work and the playback engine.
func (m *Manager) Close() {
	m.stateMgr.Close()
	m.cancel()
	m.wg.Wait()
	m.playback.Close()
	m.notification.Close()
}

// resolve fills in metadata for tracks given by ID only.
func (m *Manager) resolve(ctx context.Context, t track.Track) track.Track {
	if t.Title != "" {
		m.rememberDurations([]track.Track{t})
		return t
	}
	full, err := m.catalog.GetTrack(ctx, t.ID)
	if err != nil {
		zlog.Warn().Err(err).Msgf("session: track lookup failed, playing by ID: id=%s", t.ID)
		return t
	}
	m.rememberDurations([]track.Track{*full})
	return *full
}

func (m *Manager) rememberDurations(tracks []track.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tracks {
		if t.HasDuration() {
			m.durations[t.ID] = t.Duration
		}
	}
}

// playbackLoop forwards playback events to subscribers and records history.
func (m *Manager) playbackLoop() {
	defer close(m.done)
	events := m.playback.Events()
	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			m.handlePlaybackEvent(event)
		}
	}
}

// handlePlaybackEvent handles playback events.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	if event.Type != playback.EventProgress {
		zlog.Debug().Msgf("playback event: type=%s status=%s", event.Type, event.State.Status)
	}

	if event.Type == playback.EventTrackStarted && event.State.CurrentTrack != nil {
		t := *event.State.CurrentTrack
		if err := m.history.AddRecentlyPlayed(m.ctx, t); err != nil {
			zlog.Warn().Err(err).Msgf("session: failed to record recently played: id=%s", t.ID)
		}
	}

	m.notification.Publish(event)
}
