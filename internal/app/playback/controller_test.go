package playback

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tubebox/internal/app/player"
	"github.com/osa030/tubebox/internal/domain/track"
)

type fakePlayer struct {
	mu       sync.Mutex
	loads    []string
	volumes  []int
	seeks    []float64
	pauses   int
	toggles  int
	current  float64
	duration float64
	loadErr  error
	events   chan player.Event
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{events: make(chan player.Event, 16)}
}

func (f *fakePlayer) LoadAndPlay(ctx context.Context, id string, volume int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loads = append(f.loads, id)
	f.volumes = append(f.volumes, volume)
	return nil
}

func (f *fakePlayer) Pause(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	return nil
}

func (f *fakePlayer) Toggle(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	return nil
}

func (f *fakePlayer) Seek(ctx context.Context, seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, seconds)
	return nil
}

func (f *fakePlayer) SetVolume(ctx context.Context, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, percent)
	return nil
}

func (f *fakePlayer) CurrentTime(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakePlayer) Duration(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration, nil
}

func (f *fakePlayer) Events() <-chan player.Event { return f.events }

func (f *fakePlayer) Loads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loads...)
}

func (f *fakePlayer) set(fn func(f *fakePlayer)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type memVolumeStore struct {
	mu     sync.Mutex
	volume int
	saved  bool
}

func (m *memVolumeStore) LoadVolume(ctx context.Context) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume, m.saved, nil
}

func (m *memVolumeStore) SaveVolume(ctx context.Context, v int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume, m.saved = v, true
	return nil
}

func newTestController(t *testing.T, p *fakePlayer, store VolumeStore) *Controller {
	t.Helper()
	c := NewController(p, store, Config{
		DefaultVolume:         100,
		PollInterval:          20 * time.Millisecond,
		SeekDebounce:          800 * time.Millisecond,
		DurationProbeInterval: 10 * time.Millisecond,
		IntN:                  rand.New(rand.NewPCG(1, 2)).IntN,
	})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)
	return c
}

func tracks(n int) []track.Track {
	out := make([]track.Track, n)
	for i := range out {
		out[i] = track.Track{
			ID:       fmt.Sprintf("v%d", i),
			Title:    fmt.Sprintf("Track %d", i),
			Duration: 100 * time.Second,
		}
	}
	return out
}

func currentID(s Snapshot) string {
	if s.CurrentTrack == nil {
		return ""
	}
	return s.CurrentTrack.ID
}

func emit(p *fakePlayer, typ player.EventType, id string) {
	p.events <- player.Event{Type: typ, TrackID: id}
}

func TestController_PlayTrack(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)
	ctx := context.Background()
	ts := tracks(2)

	require.NoError(t, c.PlayTrack(ctx, ts[0]))
	require.NoError(t, c.PlayTrack(ctx, ts[1]))

	s := c.Snapshot()
	assert.Equal(t, "v1", currentID(s))
	assert.False(t, s.IsPlaying)
	assert.Equal(t, StatusLoading, s.Status)
	assert.Zero(t, s.ProgressPercent)
	assert.Equal(t, 100.0, s.DurationSeconds)
	assert.Equal(t, []string{"v0"}, track.IDs(s.PlayedHistory))
	assert.Equal(t, []string{"v0", "v1"}, p.Loads())
	assert.Equal(t, []int{100, 100}, p.volumes)
}

func TestController_PlayTrack_RejectsEmptyID(t *testing.T) {
	c := newTestController(t, newFakePlayer(), nil)
	assert.ErrorIs(t, c.PlayTrack(context.Background(), track.Track{}), ErrInvalidTrack)
}

func TestController_PlayTrack_LoadFailureKeepsTrackLoading(t *testing.T) {
	p := newFakePlayer()
	p.loadErr = errors.New("player not ready")
	c := newTestController(t, p, nil)

	err := c.PlayTrack(context.Background(), tracks(1)[0])
	require.Error(t, err)

	s := c.Snapshot()
	assert.Equal(t, "v0", currentID(s))
	assert.Equal(t, StatusLoading, s.Status)
	assert.False(t, s.IsPlaying)
}

func TestController_HistoryDedupesOnlyLastEntry(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)
	ctx := context.Background()
	a, b, x := tracks(3)[0], tracks(3)[1], tracks(3)[2]

	for _, tr := range []track.Track{a, a, b, a, x} {
		require.NoError(t, c.PlayTrack(ctx, tr))
	}

	assert.Equal(t, []string{"v0", "v1", "v0"}, track.IDs(c.Snapshot().PlayedHistory))
}

func TestController_QueueNeverContainsCurrent(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)
	ctx := context.Background()
	ts := tracks(4)

	require.NoError(t, c.PlayTrack(ctx, ts[1]))
	c.SetQueue(ts)
	assert.Equal(t, []string{"v0", "v2", "v3"}, track.IDs(c.Snapshot().Queue))

	require.NoError(t, c.PlayTrack(ctx, ts[2]))
	assert.Equal(t, []string{"v0", "v3"}, track.IDs(c.Snapshot().Queue))

	c.Enqueue(ts[2], ts[1])
	assert.Equal(t, []string{"v0", "v3", "v1"}, track.IDs(c.Snapshot().Queue))
}

func TestController_PlayPauseEvents(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)
	require.NoError(t, c.PlayTrack(context.Background(), tracks(1)[0]))

	emit(p, player.EventPlay, "v0")
	assert.Eventually(t, func() bool { return c.Snapshot().IsPlaying }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusPlaying, c.Snapshot().Status)

	emit(p, player.EventPause, "v0")
	assert.Eventually(t, func() bool { return !c.Snapshot().IsPlaying }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusPaused, c.Snapshot().Status)
}

func TestController_StaleEventsIgnored(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)
	ctx := context.Background()
	ts := tracks(2)

	require.NoError(t, c.PlayTrack(ctx, ts[0]))
	require.NoError(t, c.PlayTrack(ctx, ts[1]))

	emit(p, player.EventPlay, "v0")
	emit(p, player.EventEnded, "v0")
	// Marker event proves the stale ones were consumed.
	emit(p, player.EventPause, "v1")

	assert.Eventually(t, func() bool { return c.Snapshot().Status == StatusPaused }, time.Second, 5*time.Millisecond)
	s := c.Snapshot()
	assert.Equal(t, "v1", currentID(s))
	assert.False(t, s.IsPlaying)
	assert.Equal(t, []string{"v0", "v1"}, p.Loads())
}

func TestController_TogglePlayAndPauseDelegate(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)
	ctx := context.Background()

	assert.ErrorIs(t, c.TogglePlay(ctx), ErrNoTrack)
	assert.ErrorIs(t, c.Pause(ctx), ErrNoTrack)

	require.NoError(t, c.PlayTrack(ctx, tracks(1)[0]))
	require.NoError(t, c.TogglePlay(ctx))
	require.NoError(t, c.Pause(ctx))

	assert.Equal(t, 1, p.toggles)
	assert.Equal(t, 1, p.pauses)
	// No optimistic update.
	assert.False(t, c.Snapshot().IsPlaying)
}

func TestController_Ended(t *testing.T) {
	tests := []struct {
		name          string
		repeat        RepeatMode
		queue         []int
		endings       int
		wantCurrent   string
		wantQueue     []string
		wantLoads     []string
		wantIsPlaying bool
	}{
		{
			name:        "empty queue without repeat stops",
			repeat:      RepeatNone,
			endings:     1,
			wantCurrent: "v0",
			wantQueue:   []string{},
			wantLoads:   []string{"v0"},
		},
		{
			name:        "advances to queue head",
			repeat:      RepeatNone,
			queue:       []int{1, 2},
			endings:     1,
			wantCurrent: "v1",
			wantQueue:   []string{"v2"},
			wantLoads:   []string{"v0", "v1"},
		},
		{
			name:        "repeat one replays regardless of queue",
			repeat:      RepeatOne,
			queue:       []int{1},
			endings:     3,
			wantCurrent: "v0",
			wantQueue:   []string{"v1"},
			wantLoads:   []string{"v0", "v0", "v0", "v0"},
		},
		{
			name:        "repeat all restarts the cycle",
			repeat:      RepeatAll,
			queue:       []int{1},
			endings:     2,
			wantCurrent: "v0",
			wantQueue:   []string{"v1"},
			wantLoads:   []string{"v0", "v1", "v0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePlayer()
			c := newTestController(t, p, nil)
			ctx := context.Background()
			ts := tracks(3)

			require.NoError(t, c.PlayTrack(ctx, ts[0]))
			var q []track.Track
			for _, i := range tt.queue {
				q = append(q, ts[i])
			}
			c.SetQueue(q)
			c.SetRepeatMode(tt.repeat)

			for i := 0; i < tt.endings; i++ {
				loads := len(p.Loads())
				emit(p, player.EventPlay, currentID(c.Snapshot()))
				emit(p, player.EventEnded, currentID(c.Snapshot()))
				if i < len(tt.wantLoads)-1 {
					require.Eventually(t, func() bool { return len(p.Loads()) > loads }, time.Second, 5*time.Millisecond)
				}
			}

			if len(tt.wantLoads) == 1 {
				require.Eventually(t, func() bool { return c.Snapshot().Status == StatusIdle }, time.Second, 5*time.Millisecond)
			}

			s := c.Snapshot()
			assert.Equal(t, tt.wantCurrent, currentID(s))
			assert.Equal(t, tt.wantQueue, track.IDs(s.Queue))
			assert.Equal(t, tt.wantLoads, p.Loads())
			assert.Equal(t, tt.wantIsPlaying, s.IsPlaying)
		})
	}
}

func TestController_ShuffleIsPermutation(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)
	ts := tracks(6)

	require.NoError(t, c.PlayTrack(context.Background(), ts[0]))
	c.SetQueue(ts[1:])
	c.SetFullPlaylist(ts)

	assert.True(t, c.ToggleShuffle())

	s := c.Snapshot()
	assert.True(t, s.Shuffle)
	assert.Len(t, s.Queue, len(ts)-1)
	assert.ElementsMatch(t, track.IDs(ts[1:]), track.IDs(s.Queue))
	assert.Equal(t, track.IDs(ts[1:]), track.IDs(s.OriginalOrder))
	assert.NotContains(t, track.IDs(s.Queue), "v0")
}

func TestController_ShufflePoolWithoutFullPlaylist(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)
	ctx := context.Background()
	ts := tracks(5)

	require.NoError(t, c.PlayTrack(ctx, ts[0]))
	require.NoError(t, c.PlayTrack(ctx, ts[1]))
	c.SetQueue([]track.Track{ts[2], ts[3], ts[0]})

	c.ToggleShuffle()

	s := c.Snapshot()
	assert.ElementsMatch(t, []string{"v0", "v2", "v3"}, track.IDs(s.Queue))
	assert.Equal(t, []string{"v0", "v2", "v3"}, track.IDs(s.OriginalOrder))
}

func TestController_ShuffleRestore(t *testing.T) {
	t.Run("queue seeded from playlist", func(t *testing.T) {
		p := newFakePlayer()
		c := newTestController(t, p, nil)
		ts := tracks(5)

		require.NoError(t, c.PlayTrack(context.Background(), ts[0]))
		c.SetQueue(ts[1:])

		c.ToggleShuffle()
		assert.False(t, c.ToggleShuffle())

		s := c.Snapshot()
		assert.False(t, s.Shuffle)
		assert.Equal(t, track.IDs(ts[1:]), track.IDs(s.Queue))
	})

	t.Run("full playlist with current in the middle", func(t *testing.T) {
		p := newFakePlayer()
		c := newTestController(t, p, nil)
		ts := tracks(6)

		require.NoError(t, c.PlayTrack(context.Background(), ts[2]))
		c.SetFullPlaylist(ts)

		c.ToggleShuffle()
		c.ToggleShuffle()

		assert.Equal(t, []string{"v3", "v4", "v5"}, track.IDs(c.Snapshot().Queue))
	})

	t.Run("after advancing while shuffled", func(t *testing.T) {
		p := newFakePlayer()
		c := newTestController(t, p, nil)
		ctx := context.Background()
		ts := tracks(5)

		require.NoError(t, c.PlayTrack(ctx, ts[0]))
		c.SetQueue(ts[1:])
		c.ToggleShuffle()

		require.NoError(t, c.Next(ctx))
		cur := currentID(c.Snapshot())
		c.ToggleShuffle()

		idx := indexOfID(ts, cur)
		require.GreaterOrEqual(t, idx, 1)
		assert.Equal(t, track.IDs(ts[idx+1:]), track.IDs(c.Snapshot().Queue))
	})
}

func TestController_AppendToContext(t *testing.T) {
	t.Run("sequential", func(t *testing.T) {
		p := newFakePlayer()
		c := newTestController(t, p, nil)
		ts := tracks(6)

		require.NoError(t, c.PlayTrack(context.Background(), ts[0]))
		c.SetQueue(ts[1:3])
		c.SetFullPlaylist(ts[:3])
		c.AppendToContext(ts[3:])

		s := c.Snapshot()
		assert.Equal(t, []string{"v1", "v2", "v3", "v4", "v5"}, track.IDs(s.Queue))
		assert.Equal(t, 6, s.FullPlaylistSize)
		assert.Equal(t, track.IDs(ts), track.IDs(s.OriginalOrder))
	})

	t.Run("shuffled", func(t *testing.T) {
		p := newFakePlayer()
		c := newTestController(t, p, nil)
		ts := tracks(6)

		require.NoError(t, c.PlayTrack(context.Background(), ts[0]))
		c.SetQueue(ts[1:3])
		c.SetFullPlaylist(ts[:3])
		c.ToggleShuffle()
		c.AppendToContext(ts[3:])

		s := c.Snapshot()
		assert.ElementsMatch(t, track.IDs(ts[1:]), track.IDs(s.Queue))
		assert.ElementsMatch(t, track.IDs(ts[1:]), track.IDs(s.OriginalOrder))
	})
}

func TestController_SetQueueWhileShuffled(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)
	ts := tracks(6)

	require.NoError(t, c.PlayTrack(context.Background(), ts[0]))
	c.SetQueue(ts[1:4])
	c.ToggleShuffle()

	// Reordering the same tracks keeps the given order.
	c.SetQueue([]track.Track{ts[3], ts[2], ts[1]})
	assert.Equal(t, []string{"v3", "v2", "v1"}, track.IDs(c.Snapshot().Queue))

	// New content becomes the new pool and is shuffled.
	c.SetQueue(ts[4:])
	s := c.Snapshot()
	assert.ElementsMatch(t, []string{"v4", "v5"}, track.IDs(s.Queue))
	assert.Equal(t, []string{"v4", "v5"}, track.IDs(s.OriginalOrder))
}

func TestController_CycleRepeat(t *testing.T) {
	c := newTestController(t, newFakePlayer(), nil)

	assert.Equal(t, RepeatAll, c.CycleRepeat())
	assert.Equal(t, RepeatOne, c.CycleRepeat())
	assert.Equal(t, RepeatNone, c.CycleRepeat())
}

func TestController_ChangeVolume(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{input: -10, expected: 0},
		{input: 150, expected: 100},
		{input: 42, expected: 42},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.input), func(t *testing.T) {
			p := newFakePlayer()
			store := &memVolumeStore{}
			c := newTestController(t, p, store)
			ctx := context.Background()
			require.NoError(t, c.PlayTrack(ctx, tracks(1)[0]))

			require.NoError(t, c.ChangeVolume(ctx, tt.input))

			assert.Equal(t, tt.expected, c.Snapshot().Volume)
			assert.Equal(t, tt.expected, store.volume)
			assert.Equal(t, tt.expected, p.volumes[len(p.volumes)-1])
		})
	}
}

func TestController_AdjustVolumeWithoutTrack(t *testing.T) {
	p := newFakePlayer()
	store := &memVolumeStore{volume: 50, saved: true}
	c := newTestController(t, p, store)
	ctx := context.Background()

	assert.Equal(t, 50, c.Snapshot().Volume)
	require.NoError(t, c.AdjustVolume(ctx, -VolumeStep))
	assert.Equal(t, 45, c.Snapshot().Volume)
	assert.Empty(t, p.volumes)

	require.NoError(t, c.PlayTrack(ctx, tracks(1)[0]))
	assert.Equal(t, []int{45}, p.volumes)
}

func TestController_SeekDebounce(t *testing.T) {
	p := newFakePlayer()
	p.current = 10
	p.duration = 100
	c := newTestController(t, p, nil)
	ctx := context.Background()

	require.NoError(t, c.PlayTrack(ctx, tracks(1)[0]))
	emit(p, player.EventPlay, "v0")
	require.Eventually(t, func() bool { return c.Snapshot().ProgressPercent == 10 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Seek(ctx, 40))
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 40.0, c.Snapshot().ProgressPercent)
	assert.Equal(t, []float64{40}, p.seeks)
}

func TestController_Seek(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)
	ctx := context.Background()

	assert.ErrorIs(t, c.Seek(ctx, 10), ErrNoTrack)

	require.NoError(t, c.PlayTrack(ctx, track.Track{ID: "v9"}))
	assert.ErrorIs(t, c.Seek(ctx, 10), ErrUnknownDuration)

	p.set(func(f *fakePlayer) { f.duration = 200 })
	require.NoError(t, c.Seek(ctx, 150))
	assert.Equal(t, 100.0, c.Snapshot().ProgressPercent)
	assert.Equal(t, []float64{200}, p.seeks)

	require.NoError(t, c.Previous(ctx))
	assert.Equal(t, []float64{200, 0}, p.seeks)
	assert.Zero(t, c.Snapshot().ProgressPercent)
}

func TestController_DurationProbe(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)

	require.NoError(t, c.PlayTrack(context.Background(), track.Track{ID: "v9"}))
	assert.Zero(t, c.Snapshot().DurationSeconds)

	p.set(func(f *fakePlayer) { f.duration = 215 })
	assert.Eventually(t, func() bool { return c.Snapshot().DurationSeconds == 215 }, time.Second, 5*time.Millisecond)
}

func TestController_Next(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)
	ctx := context.Background()
	ts := tracks(3)

	require.NoError(t, c.PlayTrack(ctx, ts[0]))
	assert.ErrorIs(t, c.Next(ctx), ErrQueueEmpty)

	c.SetQueue(ts[1:])
	c.SetRepeatMode(RepeatOne)
	require.NoError(t, c.Next(ctx))

	s := c.Snapshot()
	assert.Equal(t, "v1", currentID(s))
	assert.Equal(t, []string{"v2"}, track.IDs(s.Queue))
}

func TestController_EmitsEvents(t *testing.T) {
	p := newFakePlayer()
	c := newTestController(t, p, nil)

	require.NoError(t, c.PlayTrack(context.Background(), tracks(1)[0]))

	select {
	case e := <-c.Events():
		assert.Equal(t, EventTrackStarted, e.Type)
		assert.Equal(t, "v0", currentID(e.State))
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestController_FullEventChannelDropsOnlyProgress(t *testing.T) {
	p := newFakePlayer()
	c := NewController(p, nil, Config{
		DefaultVolume: 100,
		PollInterval:  time.Hour,
		SeekDebounce:  800 * time.Millisecond,
		EventBuffer:   1,
	})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)
	ctx := context.Background()
	ts := tracks(2)

	require.NoError(t, c.PlayTrack(ctx, ts[0]))
	require.NoError(t, c.Seek(ctx, 50))
	c.SetRepeatMode(RepeatAll)
	require.NoError(t, c.PlayTrack(ctx, ts[1]))

	tests := []struct {
		typ EventType
		id  string
	}{
		{typ: EventTrackStarted, id: "v0"},
		{typ: EventModeChanged, id: "v0"},
		{typ: EventTrackStarted, id: "v1"},
	}
	for _, tt := range tests {
		select {
		case e := <-c.Events():
			assert.Equal(t, tt.typ, e.Type)
			assert.Equal(t, tt.id, currentID(e.State))
		case <-time.After(time.Second):
			t.Fatalf("missing %s event", tt.typ)
		}
	}

	select {
	case e := <-c.Events():
		t.Fatalf("unexpected %s event", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestController_CloseWithBacklog(t *testing.T) {
	p := newFakePlayer()
	c := NewController(p, nil, Config{EventBuffer: 1})
	require.NoError(t, c.Start(context.Background()))

	c.SetRepeatMode(RepeatAll)
	c.SetRepeatMode(RepeatOne)
	c.SetRepeatMode(RepeatNone)

	c.Close()
	c.Close()

	var got []EventType
	for e := range c.Events() {
		got = append(got, e.Type)
	}
	assert.Equal(t, []EventType{EventModeChanged}, got)
}
