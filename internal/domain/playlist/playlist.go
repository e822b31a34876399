// Package playlist provides the Playlist domain entity and catalog result shapes.
package playlist

import (
	"time"

	"github.com/osa030/tubebox/internal/domain/track"
)

// Playlist represents a catalog playlist.
type Playlist struct {
	ID           string        // Catalog playlist ID
	Title        string        // Playlist title
	Description  string        // Playlist description
	ThumbnailURL string        // Artwork URL
	ItemCount    int           // Item count reported by the catalog (0 if unknown)
	ChannelTitle string        // Owner name
	Tracks       []track.Track // Loaded tracks (may be partial)
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	return track.IDs(p.Tracks)
}

// TotalDuration returns the total known duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return total
}

// Page is one page of playlist items.
// An empty NextPageToken means there are no more pages.
type Page struct {
	Items         []track.Track
	NextPageToken string
}

// HasMore reports whether another page can be fetched.
func (p Page) HasMore() bool {
	return p.NextPageToken != ""
}

// Kind discriminates search results.
type Kind int

const (
	KindVideo    Kind = iota // Playable track
	KindPlaylist             // Playlist
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindPlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

// SearchResult is a single search hit. Exactly one of Track or Playlist is set,
// according to Kind.
type SearchResult struct {
	Kind     Kind
	Track    *track.Track
	Playlist *Playlist
}

// ID returns the catalog ID of the hit.
func (r SearchResult) ID() string {
	switch {
	case r.Kind == KindVideo && r.Track != nil:
		return r.Track.ID
	case r.Kind == KindPlaylist && r.Playlist != nil:
		return r.Playlist.ID
	default:
		return ""
	}
}

// Title returns the display title of the hit.
func (r SearchResult) Title() string {
	switch {
	case r.Kind == KindVideo && r.Track != nil:
		return r.Track.Title
	case r.Kind == KindPlaylist && r.Playlist != nil:
		return r.Playlist.Title
	default:
		return ""
	}
}

// Videos returns the playable tracks among results, in order.
func Videos(results []SearchResult) []track.Track {
	out := make([]track.Track, 0, len(results))
	for _, r := range results {
		if r.Kind == KindVideo && r.Track != nil {
			out = append(out, *r.Track)
		}
	}
	return out
}
