//go:build (linux && cgo) || windows || darwin

package audio

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tubebox/internal/app/player"
)

// BeepAvailable indicates whether speaker output is supported in this build.
const BeepAvailable = true

var _ player.Backend = (*Beep)(nil)

// Beep plays library files through the system speaker.
type Beep struct {
	mu sync.Mutex

	library    *Library
	sampleRate beep.SampleRate
	buffer     time.Duration
	notifier   *notifier

	loadedID  string
	streamer  beep.StreamSeekCloser
	format    beep.Format
	ctrl      *beep.Ctrl
	volume    *effects.Volume
	volumePct int
	state     player.MediaState
	seq       uint64
}

// NewBeep creates a speaker backend reading from library.
func NewBeep(library *Library, sampleRate int, buffer time.Duration) *Beep {
	return &Beep{
		library:    library,
		sampleRate: beep.SampleRate(sampleRate),
		buffer:     buffer,
		volumePct:  100,
		state:      player.MediaUnstarted,
	}
}

func newBeepBackend(library *Library, sampleRate int, buffer time.Duration) (player.Backend, error) {
	return NewBeep(library, sampleRate, buffer), nil
}

func (b *Beep) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.notifier != nil {
		return nil
	}
	if err := speaker.Init(b.sampleRate, b.sampleRate.N(b.buffer)); err != nil {
		return errors.Wrap(err, "failed to initialise speaker")
	}
	b.notifier = newNotifier()
	zlog.Info().Msgf("beep: speaker ready: sample_rate=%d buffer=%s", b.sampleRate, b.buffer)
	return nil
}

func (b *Beep) Cue(ctx context.Context, mediaID string) error {
	path, err := b.library.Path(mediaID)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to decode %s", path)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.notifier == nil {
		streamer.Close()
		return errors.New("backend not initialised")
	}

	b.stopLocked()
	b.loadedID = mediaID
	b.streamer = streamer
	b.format = format
	b.startStreamLocked(true)
	b.setStateLocked(player.MediaCued)
	return nil
}

// startStreamLocked must be called with lock held.
func (b *Beep) startStreamLocked(paused bool) {
	b.seq++
	seq := b.seq
	id := b.loadedID

	resampled := beep.Resample(4, b.format.SampleRate, b.sampleRate, b.streamer)
	b.volume = &effects.Volume{
		Streamer: resampled,
		Base:     2,
		Volume:   percentToExponent(b.volumePct),
		Silent:   b.volumePct == 0,
	}
	b.ctrl = &beep.Ctrl{Streamer: b.volume, Paused: paused}

	speaker.Play(beep.Seq(b.ctrl, beep.Callback(func() {
		// Runs on the speaker goroutine with the speaker lock held.
		go b.onEnded(seq, id)
	})))
}

func (b *Beep) onEnded(seq uint64, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seq != b.seq || id != b.loadedID {
		return
	}
	b.setStateLocked(player.MediaEnded)
}

func (b *Beep) Play(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamer == nil || b.state == player.MediaPlaying {
		return nil
	}
	if b.state == player.MediaEnded {
		speaker.Lock()
		err := b.streamer.Seek(0)
		speaker.Unlock()
		if err != nil {
			return errors.Wrap(err, "failed to rewind")
		}
		b.startStreamLocked(false)
	} else {
		speaker.Lock()
		b.ctrl.Paused = false
		speaker.Unlock()
	}
	b.setStateLocked(player.MediaPlaying)
	return nil
}

func (b *Beep) Pause(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctrl == nil || b.state != player.MediaPlaying {
		return nil
	}
	speaker.Lock()
	b.ctrl.Paused = true
	speaker.Unlock()
	b.setStateLocked(player.MediaPaused)
	return nil
}

func (b *Beep) Seek(ctx context.Context, seconds float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamer == nil {
		return nil
	}

	speaker.Lock()
	defer speaker.Unlock()

	n := b.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	n = max(0, min(n, b.streamer.Len()-1))
	if err := b.streamer.Seek(n); err != nil {
		return errors.Wrap(err, "failed to seek")
	}
	return nil
}

func (b *Beep) SetVolume(ctx context.Context, percent int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volumePct = percent
	if b.volume == nil {
		return nil
	}
	speaker.Lock()
	b.volume.Volume = percentToExponent(percent)
	b.volume.Silent = percent == 0
	speaker.Unlock()
	return nil
}

func (b *Beep) CurrentTime(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamer == nil {
		return 0, nil
	}
	speaker.Lock()
	pos := b.streamer.Position()
	speaker.Unlock()
	return b.format.SampleRate.D(pos).Seconds(), nil
}

func (b *Beep) Duration(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streamer == nil {
		return 0, nil
	}
	return b.format.SampleRate.D(b.streamer.Len()).Seconds(), nil
}

func (b *Beep) State(ctx context.Context) (player.MediaState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, nil
}

func (b *Beep) LoadedID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadedID
}

func (b *Beep) StateChanges() <-chan player.StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.notifier == nil {
		return nil
	}
	return b.notifier.out
}

func (b *Beep) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	if b.notifier != nil {
		b.notifier.close()
		speaker.Close()
	}
	return nil
}

// stopLocked must be called with lock held.
func (b *Beep) stopLocked() {
	b.seq++
	speaker.Clear()
	if b.streamer != nil {
		if err := b.streamer.Close(); err != nil {
			zlog.Warn().Err(err).Msgf("beep: failed to close stream: id=%s", b.loadedID)
		}
		b.streamer = nil
	}
	b.ctrl = nil
	b.volume = nil
	b.loadedID = ""
}

// setStateLocked must be called with lock held.
func (b *Beep) setStateLocked(state player.MediaState) {
	b.state = state
	b.notifier.emit(player.StateChange{State: state, MediaID: b.loadedID})
}
