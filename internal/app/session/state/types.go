// Package state tracks the browsing context the queue was built from.
package state

// Kind represents the source of the current browsing context.
type Kind int

const (
	KindNone     Kind = iota // Nothing selected yet
	KindPlaylist             // A catalog playlist
	KindSearch               // A search result list
	KindTrack                // A single track played directly
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPlaylist:
		return "playlist"
	case KindSearch:
		return "search"
	case KindTrack:
		return "track"
	default:
		return "unknown"
	}
}

// Context is a read-only copy of the browsing context.
type Context struct {
	Kind          Kind
	ID            string // playlist ID or search query
	Generation    uint64
	NextPageToken string
	LoadedCount   int
	Loading       bool
	Error         string // last catalog failure for this context, "" when none
}
