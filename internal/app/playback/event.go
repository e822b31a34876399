package playback

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted  EventType = iota // Load issued for a new current track
	EventStateChanged                   // Play/pause state changed
	EventTrackEnded                     // Track finished playing
	EventQueueChanged                   // Queue or context changed
	EventModeChanged                    // Shuffle or repeat changed
	EventProgress                       // Progress or duration updated
	EventVolumeChanged                  // Volume changed
	EventQueueFinished                  // Track ended with nothing left to play
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventStateChanged:
		return "state_changed"
	case EventTrackEnded:
		return "track_ended"
	case EventQueueChanged:
		return "queue_changed"
	case EventModeChanged:
		return "mode_changed"
	case EventProgress:
		return "progress"
	case EventVolumeChanged:
		return "volume_changed"
	case EventQueueFinished:
		return "queue_finished"
	default:
		return "unknown"
	}
}

// Event represents a playback event together with the state it produced.
type Event struct {
	Type  EventType
	State Snapshot
}
