package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned for commands issued after Close.
var ErrClosed = errors.New("player adapter closed")

const defaultFallbackStartDelay = 500 * time.Millisecond

// Config holds adapter configuration.
type Config struct {
	FallbackStartDelay time.Duration // Forced play after cue when no CUED state arrives
	EventBuffer        int           // Event channel capacity
}

// Adapter owns the single backend instance and turns its state changes into
// play/pause/ended events for the latest requested track.
type Adapter struct {
	backend Backend
	config  Config

	initGroup singleflight.Group
	watchOnce sync.Once

	mu              sync.Mutex
	ready           bool
	lastRequestedID string
	pendingVolume   int
	hasPending      bool
	loadSeq         uint64
	fallback        *time.Timer
	fallbackSeq     uint64

	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAdapter creates an adapter. The backend is initialised lazily by the
// first command.
func NewAdapter(backend Backend, config Config) *Adapter {
	if config.FallbackStartDelay <= 0 {
		config.FallbackStartDelay = defaultFallbackStartDelay
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		backend: backend,
		config:  config,
		eventCh: make(chan Event, config.EventBuffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Events returns the adapter event channel.
func (a *Adapter) Events() <-chan Event {
	return a.eventCh
}

// Ready reports whether the backend has been initialised.
func (a *Adapter) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// ensureInit initialises the backend once. Concurrent callers share the same
// in-flight initialisation and all observe its error. A failed init is retried
// by the next command.
func (a *Adapter) ensureInit(ctx context.Context) error {
	if a.ctx.Err() != nil {
		return ErrClosed
	}
	if a.Ready() {
		return nil
	}

	ch := a.initGroup.DoChan("init", func() (any, error) {
		if a.Ready() {
			return nil, nil
		}
		zlog.Debug().Msg("player: initialising backend")
		if err := a.backend.Init(a.ctx); err != nil {
			return nil, errors.Wrap(err, "failed to initialise player backend")
		}
		a.mu.Lock()
		a.ready = true
		a.mu.Unlock()
		a.watchOnce.Do(func() {
			go a.watch(a.backend.StateChanges())
		})
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadAndPlay cues the track muted and starts it. The requested volume is
// applied on the first PLAYING state of that track.
func (a *Adapter) LoadAndPlay(ctx context.Context, trackID string, volume int) error {
	if err := a.ensureInit(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	a.lastRequestedID = trackID
	a.pendingVolume = clampPercent(volume)
	a.hasPending = true
	a.loadSeq++
	seq := a.loadSeq
	a.stopFallbackLocked()
	// Armed before cueing: a CUED or PLAYING reported during Cue must find
	// the timer and stop it.
	a.fallbackSeq = seq
	a.fallback = time.AfterFunc(a.config.FallbackStartDelay, func() {
		a.fallbackStart(seq, trackID)
	})
	a.mu.Unlock()

	zlog.Debug().Msgf("player: load requested: id=%s volume=%d seq=%d", trackID, volume, seq)

	if err := a.backend.SetVolume(ctx, 0); err != nil {
		a.cancelFallback(seq)
		return errors.Wrap(err, "failed to mute before load")
	}
	if err := a.backend.Cue(ctx, trackID); err != nil {
		a.cancelFallback(seq)
		return errors.Wrapf(err, "failed to cue %s", trackID)
	}
	return nil
}

func (a *Adapter) cancelFallback(seq uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fallbackSeq == seq {
		a.stopFallbackLocked()
	}
}

func (a *Adapter) fallbackStart(seq uint64, trackID string) {
	a.mu.Lock()
	if a.fallbackSeq != seq || a.lastRequestedID != trackID {
		a.mu.Unlock()
		return
	}
	a.fallback = nil
	a.fallbackSeq = 0
	a.mu.Unlock()

	zlog.Debug().Msgf("player: fallback start: id=%s", trackID)
	if err := a.backend.Play(a.ctx); err != nil {
		zlog.Warn().Err(err).Msgf("player: fallback start failed: id=%s", trackID)
	}
}

// Pause pauses playback.
func (a *Adapter) Pause(ctx context.Context) error {
	if err := a.ensureInit(ctx); err != nil {
		return err
	}
	return a.backend.Pause(ctx)
}

// Toggle pauses when the backend reports PLAYING, and plays otherwise.
// It is a no-op when nothing is loaded.
func (a *Adapter) Toggle(ctx context.Context) error {
	if err := a.ensureInit(ctx); err != nil {
		return err
	}
	if a.backend.LoadedID() == "" {
		return nil
	}
	state, err := a.backend.State(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read player state")
	}
	if state == MediaPlaying {
		return a.backend.Pause(ctx)
	}
	return a.backend.Play(ctx)
}

// Seek moves the playhead, clamped to [0, duration].
func (a *Adapter) Seek(ctx context.Context, seconds float64) error {
	if err := a.ensureInit(ctx); err != nil {
		return err
	}
	if a.backend.LoadedID() == "" {
		return nil
	}
	duration, err := a.backend.Duration(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read duration")
	}
	if seconds < 0 {
		seconds = 0
	}
	if duration > 0 && seconds > duration {
		seconds = duration
	}
	return a.backend.Seek(ctx, seconds)
}

// SetVolume applies the volume immediately. A volume still pending from a
// load is replaced so the later value wins.
func (a *Adapter) SetVolume(ctx context.Context, percent int) error {
	if err := a.ensureInit(ctx); err != nil {
		return err
	}
	percent = clampPercent(percent)

	a.mu.Lock()
	if a.hasPending {
		a.pendingVolume = percent
	}
	a.mu.Unlock()

	return a.backend.SetVolume(ctx, percent)
}

// CurrentTime returns the playhead position in seconds, 0 when not initialised
// or nothing is loaded.
func (a *Adapter) CurrentTime(ctx context.Context) (float64, error) {
	if !a.Ready() || a.backend.LoadedID() == "" {
		return 0, nil
	}
	return a.backend.CurrentTime(ctx)
}

// Duration returns the loaded media duration in seconds, 0 when not
// initialised or nothing is loaded.
func (a *Adapter) Duration(ctx context.Context) (float64, error) {
	if !a.Ready() || a.backend.LoadedID() == "" {
		return 0, nil
	}
	return a.backend.Duration(ctx)
}

// Close stops the watcher and releases the backend.
func (a *Adapter) Close() error {
	a.mu.Lock()
	a.stopFallbackLocked()
	ready := a.ready
	a.mu.Unlock()

	a.cancel()
	if !ready {
		return nil
	}
	<-a.done
	return a.backend.Close()
}

func (a *Adapter) watch(changes <-chan StateChange) {
	defer close(a.done)
	for {
		select {
		case <-a.ctx.Done():
			return
		case sc, ok := <-changes:
			if !ok {
				return
			}
			a.handleStateChange(sc)
		}
	}
}

func (a *Adapter) handleStateChange(sc StateChange) {
	a.mu.Lock()
	if sc.MediaID != a.lastRequestedID {
		a.mu.Unlock()
		zlog.Debug().Msgf("player: dropping stale state: state=%s id=%s latest=%s", sc.State, sc.MediaID, a.lastRequestedID)
		return
	}

	switch sc.State {
	case MediaCued:
		a.stopFallbackLocked()
		a.mu.Unlock()
		if err := a.backend.Play(a.ctx); err != nil {
			zlog.Warn().Err(err).Msgf("player: play after cue failed: id=%s", sc.MediaID)
		}

	case MediaPlaying:
		a.stopFallbackLocked()
		volume, pending := a.pendingVolume, a.hasPending
		a.hasPending = false
		a.mu.Unlock()
		if pending {
			if err := a.backend.SetVolume(a.ctx, volume); err != nil {
				zlog.Warn().Err(err).Msg("player: failed to apply pending volume")
			}
		}
		a.emit(Event{Type: EventPlay, TrackID: sc.MediaID})

	case MediaPaused:
		a.mu.Unlock()
		a.emit(Event{Type: EventPause, TrackID: sc.MediaID})

	case MediaEnded:
		a.mu.Unlock()
		a.emit(Event{Type: EventEnded, TrackID: sc.MediaID})

	default:
		a.mu.Unlock()
	}
}

func (a *Adapter) emit(e Event) {
	select {
	case a.eventCh <- e:
	case <-a.ctx.Done():
	}
}

// stopFallbackLocked must be called with lock held.
func (a *Adapter) stopFallbackLocked() {
	if a.fallback != nil {
		a.fallback.Stop()
		a.fallback = nil
	}
	a.fallbackSeq = 0
}

func clampPercent(v int) int {
	return max(0, min(100, v))
}
