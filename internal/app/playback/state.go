// Package playback provides the queue engine: the single owner of playback
// state, driven by commands and by player adapter events.
package playback

import "github.com/osa030/tubebox/internal/domain/track"

// Status is the lifecycle status of the current track.
type Status int

const (
	StatusIdle    Status = iota // No track loaded, or nothing left to play
	StatusLoading               // Load requested, waiting for play event
	StatusPlaying               // Track is playing
	StatusPaused                // Track is paused
	StatusEnded                 // Track finished; advance moves on to the next track or StatusIdle
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// RepeatMode is the replay policy applied when a track ends.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatAll
	RepeatOne
)

// Next returns the mode that follows m in the NONE, ALL, ONE cycle.
func (m RepeatMode) Next() RepeatMode {
	return (m + 1) % 3
}

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}

// ParseRepeatMode parses the string form of a repeat mode.
func ParseRepeatMode(s string) (RepeatMode, bool) {
	switch s {
	case "none":
		return RepeatNone, true
	case "all":
		return RepeatAll, true
	case "one":
		return RepeatOne, true
	default:
		return RepeatNone, false
	}
}

// Snapshot is a read-only copy of the playback state.
type Snapshot struct {
	CurrentTrack     *track.Track
	Status           Status
	IsPlaying        bool
	ProgressPercent  float64
	DurationSeconds  float64
	Volume           int
	Queue            []track.Track
	Shuffle          bool
	RepeatMode       RepeatMode
	OriginalOrder    []track.Track
	PlayedHistory    []track.Track
	FullPlaylistSize int
}

// PositionSeconds returns the playhead position derived from progress.
func (s Snapshot) PositionSeconds() float64 {
	return s.ProgressPercent / 100 * s.DurationSeconds
}
