// Package player adapts an embeddable media backend into the small command and
// event surface the playback engine drives.
package player

import "context"

// MediaState is the lifecycle state reported by a backend.
// Values mirror the embedded YouTube player's numeric states.
type MediaState int

const (
	MediaUnstarted MediaState = -1
	MediaEnded     MediaState = 0
	MediaPlaying   MediaState = 1
	MediaPaused    MediaState = 2
	MediaBuffering MediaState = 3
	MediaCued      MediaState = 5
)

// String returns the string representation of the media state.
func (s MediaState) String() string {
	switch s {
	case MediaUnstarted:
		return "unstarted"
	case MediaEnded:
		return "ended"
	case MediaPlaying:
		return "playing"
	case MediaPaused:
		return "paused"
	case MediaBuffering:
		return "buffering"
	case MediaCued:
		return "cued"
	default:
		return "unknown"
	}
}

// StateChange is a state transition reported by the backend, tagged with the
// media it concerns.
type StateChange struct {
	State   MediaState
	MediaID string
}

// Backend is the underlying media player. Implementations must be safe for
// concurrent use. Only one backend instance should exist per process.
type Backend interface {
	// Init prepares the backend. It is called once per successful initialisation.
	Init(ctx context.Context) error
	// Cue loads media without starting playback.
	Cue(ctx context.Context, mediaID string) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	// SetVolume sets the output volume in percent (0-100).
	SetVolume(ctx context.Context, percent int) error
	CurrentTime(ctx context.Context) (float64, error)
	Duration(ctx context.Context) (float64, error)
	State(ctx context.Context) (MediaState, error)
	// LoadedID returns the cued media ID, or "" when nothing is loaded.
	LoadedID() string
	// StateChanges delivers state transitions. It is valid after Init.
	StateChanges() <-chan StateChange
	Close() error
}
