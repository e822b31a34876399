package audio

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tubebox/internal/app/player"
)

var _ player.Backend = (*Simulated)(nil)

// DurationLookup returns the known duration of a media ID.
type DurationLookup func(mediaID string) (time.Duration, bool)

// SimulatedConfig configures the simulated backend.
type SimulatedConfig struct {
	DefaultDuration time.Duration // used when the lookup has no answer
	Tick            time.Duration // wall clock resolution
}

// Simulated is a backend that plays nothing and keeps a wall-clock playhead.
// It is used on hosts without audio output and in tests.
type Simulated struct {
	mu sync.Mutex

	config   SimulatedConfig
	lookup   DurationLookup
	notifier *notifier

	loadedID  string
	duration  time.Duration
	state     player.MediaState
	offset    time.Duration // playhead when last started, paused or seeked
	startedAt time.Time     // wall time of the last start
	volume    int

	seq         uint64 // bumped whenever the running timer is replaced
	timerCancel func()
}

// NewSimulated creates a simulated backend.
func NewSimulated(config SimulatedConfig, lookup DurationLookup) *Simulated {
	if config.DefaultDuration <= 0 {
		config.DefaultDuration = 3 * time.Minute
	}
	if config.Tick <= 0 {
		config.Tick = 100 * time.Millisecond
	}
	return &Simulated{
		config: config,
		lookup: lookup,
		state:  player.MediaUnstarted,
		volume: 100,
	}
}

// SetDurationLookup replaces the duration lookup used for subsequent cues.
func (s *Simulated) SetDurationLookup(lookup DurationLookup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookup = lookup
}

func (s *Simulated) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifier == nil {
		s.notifier = newNotifier()
	}
	return nil
}

func (s *Simulated) Cue(ctx context.Context, mediaID string) error {
	if mediaID == "" {
		return errors.Wrap(ErrInvalidMediaID, "empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifier == nil {
		return errors.New("backend not initialised")
	}

	s.stopTimerLocked()
	s.loadedID = mediaID
	s.duration = s.config.DefaultDuration
	if s.lookup != nil {
		if d, ok := s.lookup(mediaID); ok && d > 0 {
			s.duration = d
		}
	}
	s.offset = 0
	s.setStateLocked(player.MediaCued)
	zlog.Debug().Msgf("simulated: cued id=%s duration=%s", mediaID, s.duration)
	return nil
}

func (s *Simulated) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadedID == "" || s.state == player.MediaPlaying {
		return nil
	}
	if s.state == player.MediaEnded {
		s.offset = 0
	}
	s.startLocked()
	s.setStateLocked(player.MediaPlaying)
	return nil
}

func (s *Simulated) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != player.MediaPlaying {
		return nil
	}
	s.offset = s.positionLocked()
	s.stopTimerLocked()
	s.setStateLocked(player.MediaPaused)
	return nil
}

func (s *Simulated) Seek(ctx context.Context, seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadedID == "" {
		return nil
	}
	pos := time.Duration(seconds * float64(time.Second))
	pos = max(0, min(pos, s.duration))
	s.offset = pos
	if s.state == player.MediaPlaying {
		s.stopTimerLocked()
		s.startLocked()
	}
	return nil
}

func (s *Simulated) SetVolume(ctx context.Context, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = percent
	return nil
}

// Volume returns the last volume set.
func (s *Simulated) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Simulated) CurrentTime(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked().Seconds(), nil
}

func (s *Simulated) Duration(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadedID == "" {
		return 0, nil
	}
	return s.duration.Seconds(), nil
}

func (s *Simulated) State(ctx context.Context) (player.MediaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *Simulated) LoadedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadedID
}

func (s *Simulated) StateChanges() <-chan player.StateChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifier == nil {
		return nil
	}
	return s.notifier.out
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	if s.notifier != nil {
		s.notifier.close()
	}
	return nil
}

// startLocked must be called with lock held.
func (s *Simulated) startLocked() {
	s.startedAt = toWallTime(time.Now())
	s.seq++
	seq := s.seq
	remaining := s.duration - s.offset
	s.timerCancel = startWallClockTimer(remaining, s.config.Tick, func() {
		s.onEnded(seq)
	})
}

func (s *Simulated) onEnded(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return
	}
	s.timerCancel = nil
	s.offset = s.duration
	s.setStateLocked(player.MediaEnded)
}

// positionLocked must be called with lock held.
func (s *Simulated) positionLocked() time.Duration {
	if s.state != player.MediaPlaying {
		return s.offset
	}
	elapsed := toWallTime(time.Now()).Sub(s.startedAt)
	return min(s.offset+elapsed, s.duration)
}

// stopTimerLocked must be called with lock held.
func (s *Simulated) stopTimerLocked() {
	s.seq++
	if s.timerCancel != nil {
		s.timerCancel()
		s.timerCancel = nil
	}
}

// setStateLocked must be called with lock held.
func (s *Simulated) setStateLocked(state player.MediaState) {
	s.state = state
	if s.notifier != nil {
		s.notifier.emit(player.StateChange{State: state, MediaID: s.loadedID})
	}
}

// startWallClockTimer starts a timer that triggers callback after duration,
// checked against the wall clock every tick. Returns a cancel function.
func startWallClockTimer(duration, tick time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())
	endTime := toWallTime(time.Now()).Add(duration)

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
