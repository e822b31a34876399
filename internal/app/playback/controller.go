package playback

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tubebox/internal/app/player"
	"github.com/osa030/tubebox/internal/domain/track"
)

// Errors
var (
	ErrNoTrack         = errors.New("no track playing")
	ErrQueueEmpty      = errors.New("queue is empty")
	ErrInvalidTrack    = errors.New("track has no id")
	ErrUnknownDuration = errors.New("track duration unknown")
)

const (
	MinVolume  = 0
	MaxVolume  = 100
	VolumeStep = 5
)

// Player is the adapter surface the controller drives.
type Player interface {
	LoadAndPlay(ctx context.Context, trackID string, volume int) error
	Pause(ctx context.Context) error
	Toggle(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SetVolume(ctx context.Context, percent int) error
	CurrentTime(ctx context.Context) (float64, error)
	Duration(ctx context.Context) (float64, error)
	Events() <-chan player.Event
}

// VolumeStore persists the volume across sessions.
type VolumeStore interface {
	LoadVolume(ctx context.Context) (int, bool, error)
	SaveVolume(ctx context.Context, volume int) error
}

// Config holds controller configuration.
type Config struct {
	DefaultVolume         int           // Volume used when nothing is persisted
	PollInterval          time.Duration // Progress polling period while playing
	SeekDebounce          time.Duration // Poller suppression window after a seek
	DurationProbeInterval time.Duration // Retry period when asking the player for an unknown duration
	DurationProbeAttempts int
	EventBuffer           int
	IntN                  func(n int) int // Random source for shuffling
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.SeekDebounce <= 0 {
		c.SeekDebounce = 800 * time.Millisecond
	}
	if c.DurationProbeInterval <= 0 {
		c.DurationProbeInterval = 250 * time.Millisecond
	}
	if c.DurationProbeAttempts <= 0 {
		c.DurationProbeAttempts = 20
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 32
	}
	if c.IntN == nil {
		c.IntN = rand.IntN
	}
	c.DefaultVolume = clampVolume(c.DefaultVolume)
}

// Controller owns the playback state. It is the only writer of that state.
// Commands are serialised; reads return copies.
type Controller struct {
	opMu sync.Mutex
	mu   sync.RWMutex

	player  Player
	volumes VolumeStore
	config  Config

	// Current track state
	current    *track.Track
	status     Status
	isPlaying  bool
	progress   float64
	duration   float64
	volume     int
	generation uint64

	// Queue management
	queue         []track.Track
	history       []track.Track
	fullPlaylist  []track.Track
	originalOrder []track.Track
	shuffle       bool
	repeat        RepeatMode

	// Current track while shuffled: it is kept out of originalOrder but its
	// position is remembered so turning shuffle off can resume after it.
	anchorTrack *track.Track
	anchorIndex int

	// Timers
	pollerCancel  func()
	suppressUntil time.Time

	// Events. backlog holds events that did not fit in eventCh; they are
	// delivered in order by flushBacklog before any newer event.
	eventCh  chan Event
	backlog  []Event
	flushing bool
	flushWG  sync.WaitGroup
	closed   bool

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewController creates a new playback controller. volumes may be nil.
func NewController(p Player, volumes VolumeStore, config Config) *Controller {
	config.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		player:      p,
		volumes:     volumes,
		config:      config,
		status:      StatusIdle,
		volume:      config.DefaultVolume,
		queue:       make([]track.Track, 0),
		history:     make([]track.Track, 0),
		anchorIndex: -1,
		eventCh:     make(chan Event, config.EventBuffer),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start restores the persisted volume and begins consuming player events.
func (c *Controller) Start(ctx context.Context) error {
	var err error
	c.startOnce.Do(func() {
		if c.volumes != nil {
			v, ok, loadErr := c.volumes.LoadVolume(ctx)
			if loadErr != nil {
				err = errors.Wrap(loadErr, "failed to load volume")
			} else if ok {
				c.mu.Lock()
				c.volume = clampVolume(v)
				c.mu.Unlock()
			}
		}
		go c.run()
	})
	return err
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// PlayTrack makes t the current track and asks the player to load it.
// A later call always wins over an earlier one.
func (c *Controller) PlayTrack(ctx context.Context, t track.Track) error {
	if t.ID == "" {
		return ErrInvalidTrack
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.playTrackOp(ctx, t)
}

// playTrackOp must be called with opMu held.
func (c *Controller) playTrackOp(ctx context.Context, t track.Track) error {
	c.mu.Lock()
	c.stopPollerLocked()
	if c.current != nil {
		c.pushHistoryLocked(*c.current)
	}
	c.progress = 0
	c.duration = t.DurationSeconds()
	c.isPlaying = false
	c.current = t.Ptr()
	c.status = StatusLoading
	c.queue = removeID(c.queue, t.ID)
	c.suppressUntil = time.Time{}
	c.generation++
	gen := c.generation
	volume := c.volume
	c.sendEventLocked(EventTrackStarted)
	c.mu.Unlock()

	zlog.Debug().Msgf("playback: play track: id=%s title=%q duration=%v gen=%d", t.ID, t.Title, t.Duration, gen)

	if err := c.player.LoadAndPlay(ctx, t.ID, volume); err != nil {
		zlog.Error().Err(err).Msgf("playback: load failed: id=%s", t.ID)
		return errors.Wrapf(err, "failed to load track %s", t.ID)
	}

	if !t.HasDuration() {
		go c.probeDuration(gen)
	}
	return nil
}

// TogglePlay toggles play/pause. State changes when the player reports them.
func (c *Controller) TogglePlay(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.hasCurrent() {
		return ErrNoTrack
	}
	return c.player.Toggle(ctx)
}

// Pause pauses playback. State changes when the player reports it.
func (c *Controller) Pause(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.hasCurrent() {
		return ErrNoTrack
	}
	return c.player.Pause(ctx)
}

// Seek moves to percent (clamped to [0,100]) of the current track.
func (c *Controller) Seek(ctx context.Context, percent float64) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.seekOp(ctx, percent)
}

// seekOp must be called with opMu held.
func (c *Controller) seekOp(ctx context.Context, percent float64) error {
	percent = max(0, min(100, percent))

	c.mu.RLock()
	hasCurrent := c.current != nil
	duration := c.duration
	c.mu.RUnlock()

	if !hasCurrent {
		return ErrNoTrack
	}
	if duration <= 0 {
		d, err := c.player.Duration(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to read duration")
		}
		duration = d
	}
	if duration <= 0 {
		return ErrUnknownDuration
	}

	c.mu.Lock()
	c.suppressUntil = time.Now().Add(c.config.SeekDebounce)
	c.progress = percent
	c.duration = duration
	c.sendEventLocked(EventProgress)
	c.mu.Unlock()

	return c.player.Seek(ctx, percent/100*duration)
}

// Next skips to the head of the queue. With repeat ALL and an empty queue
// the cycle restarts.
func (c *Controller) Next(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	next, ok := c.nextLocked(false)
	c.mu.Unlock()
	if !ok {
		return ErrQueueEmpty
	}
	return c.playTrackOp(ctx, next)
}

// Previous restarts the current track.
func (c *Controller) Previous(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.seekOp(ctx, 0)
}

// SetQueue replaces the queue. The current track is never queued.
// While shuffled, a reorder of the same tracks is kept as given; new
// content becomes the new shuffle pool and is shuffled.
func (c *Controller) SetQueue(tracks []track.Track) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	filtered := removeID(track.Clone(tracks), c.currentID())

	switch {
	case c.shuffle && sameMembers(filtered, c.queue):
		c.queue = filtered
	case c.shuffle:
		c.originalOrder = track.Clone(filtered)
		c.anchorTrack = nil
		c.anchorIndex = -1
		if c.current != nil {
			c.anchorTrack = c.current.Ptr()
			c.anchorIndex = 0
		}
		c.shuffleTracks(filtered)
		c.queue = filtered
	default:
		c.queue = filtered
		c.resetOriginalOrderLocked()
	}

	c.sendEventLocked(EventQueueChanged)
}

// Enqueue appends tracks to the end of the queue.
func (c *Controller) Enqueue(tracks ...track.Track) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	added := removeID(track.Clone(tracks), c.currentID())
	c.queue = append(c.queue, added...)
	c.originalOrder = append(c.originalOrder, added...)
	c.sendEventLocked(EventQueueChanged)
}

// SetFullPlaylist records the complete track list of the browsing context.
func (c *Controller) SetFullPlaylist(tracks []track.Track) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fullPlaylist = track.Clone(tracks)
	c.sendEventLocked(EventQueueChanged)
}

// AppendToContext adds an incrementally loaded page to the browsing context.
// The tracks also extend the queue: in order when sequential, at random
// positions when shuffled.
func (c *Controller) AppendToContext(tracks []track.Track) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fullPlaylist = append(c.fullPlaylist, tracks...)

	added := removeID(track.Clone(tracks), c.currentID())
	c.originalOrder = append(c.originalOrder, added...)
	if !c.shuffle {
		c.queue = append(c.queue, added...)
	} else {
		for _, t := range added {
			c.queue = insertAt(c.queue, c.config.IntN(len(c.queue)+1), t)
		}
	}
	c.sendEventLocked(EventQueueChanged)
}

// ToggleShuffle switches shuffle and returns the new setting.
func (c *Controller) ToggleShuffle() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shuffle {
		c.shuffleOffLocked()
	} else {
		c.shuffleOnLocked()
	}
	zlog.Debug().Msgf("playback: shuffle=%v queue=%d pool=%d", c.shuffle, len(c.queue), len(c.originalOrder))
	c.sendEventLocked(EventModeChanged)
	return c.shuffle
}

// CycleRepeat advances NONE -> ALL -> ONE -> NONE and returns the new mode.
func (c *Controller) CycleRepeat() RepeatMode {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.repeat = c.repeat.Next()
	c.sendEventLocked(EventModeChanged)
	return c.repeat
}

// SetRepeatMode sets the repeat mode directly.
func (c *Controller) SetRepeatMode(mode RepeatMode) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.repeat = mode % 3
	c.sendEventLocked(EventModeChanged)
}

// ChangeVolume clamps, persists and applies the volume.
func (c *Controller) ChangeVolume(ctx context.Context, volume int) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.changeVolumeOp(ctx, volume)
}

// AdjustVolume changes the volume by delta.
func (c *Controller) AdjustVolume(ctx context.Context, delta int) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	volume := c.volume + delta
	c.mu.RUnlock()
	return c.changeVolumeOp(ctx, volume)
}

func (c *Controller) changeVolumeOp(ctx context.Context, volume int) error {
	volume = clampVolume(volume)

	c.mu.Lock()
	c.volume = volume
	hasCurrent := c.current != nil
	c.sendEventLocked(EventVolumeChanged)
	c.mu.Unlock()

	if c.volumes != nil {
		if err := c.volumes.SaveVolume(ctx, volume); err != nil {
			zlog.Warn().Err(err).Msg("playback: failed to persist volume")
		}
	}
	if !hasCurrent {
		return nil
	}
	return c.player.SetVolume(ctx, volume)
}

// Close stops background work and closes the event channel.
func (c *Controller) Close() {
	c.cancel()

	c.mu.Lock()
	c.stopPollerLocked()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.backlog = nil
	c.mu.Unlock()

	c.flushWG.Wait()
	close(c.eventCh)
}

func (c *Controller) run() {
	events := c.player.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			c.handlePlayerEvent(e)
		}
	}
}

func (c *Controller) handlePlayerEvent(e player.Event) {
	c.mu.Lock()
	if c.current == nil || c.current.ID != e.TrackID {
		c.mu.Unlock()
		zlog.Debug().Msgf("playback: ignoring %s for stale track %s", e.Type, e.TrackID)
		return
	}

	switch e.Type {
	case player.EventPlay:
		c.isPlaying = true
		c.status = StatusPlaying
		c.startPollerLocked(c.generation)
		c.sendEventLocked(EventStateChanged)
		c.mu.Unlock()

	case player.EventPause:
		c.isPlaying = false
		c.status = StatusPaused
		c.stopPollerLocked()
		c.sendEventLocked(EventStateChanged)
		c.mu.Unlock()

	case player.EventEnded:
		c.isPlaying = false
		c.status = StatusEnded
		c.stopPollerLocked()
		gen := c.generation
		c.sendEventLocked(EventTrackEnded)
		c.mu.Unlock()
		c.advance(gen)

	default:
		c.mu.Unlock()
	}
}

// advance picks what plays after the track of generation gen ended.
func (c *Controller) advance(gen uint64) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	next, ok := c.nextLocked(true)
	if !ok {
		c.status = StatusIdle
		zlog.Debug().Msg("playback: nothing left to play")
		c.sendEventLocked(EventQueueFinished)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.playTrackOp(c.ctx, next); err != nil {
		zlog.Warn().Err(err).Msg("playback: auto-advance failed")
	}
}

// nextLocked decides the next track and updates the queue accordingly.
// Must be called with lock held.
func (c *Controller) nextLocked(honourRepeatOne bool) (track.Track, bool) {
	switch {
	case honourRepeatOne && c.repeat == RepeatOne && c.current != nil:
		return *c.current, true

	case len(c.queue) > 0:
		head := c.queue[0]
		c.queue = track.Clone(c.queue[1:])
		return head, true

	case c.repeat == RepeatAll && len(c.originalOrder) > 0:
		return c.restartCycleLocked(), true

	default:
		return track.Track{}, false
	}
}

func (c *Controller) hasCurrent() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current != nil
}

// currentID must be called with lock held.
func (c *Controller) currentID() string {
	if c.current == nil {
		return ""
	}
	return c.current.ID
}

// pushHistoryLocked appends t unless it equals the most recent entry.
// Must be called with lock held.
func (c *Controller) pushHistoryLocked(t track.Track) {
	if n := len(c.history); n > 0 && c.history[n-1].ID == t.ID {
		return
	}
	c.history = append(c.history, t)
}

// resetOriginalOrderLocked snapshots the sequential order: current track
// followed by the queue. Must be called with lock held.
func (c *Controller) resetOriginalOrderLocked() {
	order := make([]track.Track, 0, len(c.queue)+1)
	if c.current != nil {
		order = append(order, *c.current)
	}
	c.originalOrder = append(order, c.queue...)
	c.anchorTrack = nil
	c.anchorIndex = -1
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Status:           c.status,
		IsPlaying:        c.isPlaying,
		ProgressPercent:  c.progress,
		DurationSeconds:  c.duration,
		Volume:           c.volume,
		Queue:            track.Clone(c.queue),
		Shuffle:          c.shuffle,
		RepeatMode:       c.repeat,
		OriginalOrder:    track.Clone(c.originalOrder),
		PlayedHistory:    track.Clone(c.history),
		FullPlaylistSize: len(c.fullPlaylist),
	}
	if c.current != nil {
		s.CurrentTrack = c.current.Ptr()
	}
	return s
}

// sendEventLocked sends an event without blocking. When the channel is full
// only EventProgress is dropped; other events wait in the backlog.
// Must be called with lock held.
func (c *Controller) sendEventLocked(t EventType) {
	if c.closed {
		return
	}
	e := Event{Type: t, State: c.snapshotLocked()}
	if len(c.backlog) == 0 {
		select {
		case c.eventCh <- e:
			return
		default:
		}
	}
	if t == EventProgress {
		zlog.Debug().Msg("playback: event channel full, dropping progress")
		return
	}
	c.backlog = append(c.backlog, e)
	if !c.flushing {
		c.flushing = true
		c.flushWG.Add(1)
		go c.flushBacklog()
	}
}

// flushBacklog blocks on eventCh until the backlog is empty or the controller
// is closed.
func (c *Controller) flushBacklog() {
	defer c.flushWG.Done()
	for {
		c.mu.Lock()
		if c.closed || len(c.backlog) == 0 {
			c.flushing = false
			c.mu.Unlock()
			return
		}
		e := c.backlog[0]
		c.mu.Unlock()

		select {
		case c.eventCh <- e:
		case <-c.ctx.Done():
			return
		}

		c.mu.Lock()
		if len(c.backlog) > 0 {
			c.backlog = c.backlog[1:]
		}
		c.mu.Unlock()
	}
}

func clampVolume(v int) int {
	return max(MinVolume, min(MaxVolume, v))
}
