package player

// EventType represents an adapter event type.
type EventType int

const (
	EventPlay  EventType = iota // Requested media started playing
	EventPause                  // Requested media paused
	EventEnded                  // Requested media reached its end
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Event is emitted for the most recently requested media only.
type Event struct {
	Type    EventType
	TrackID string
}
