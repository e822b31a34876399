package connect

import "time"

// Track is the wire form of a track.
type Track struct {
	ID              string  `json:"id"`
	Title           string  `json:"title,omitempty"`
	Artist          string  `json:"artist,omitempty"`
	ThumbnailURL    string  `json:"thumbnail_url,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Playlist is the wire form of a playlist summary.
type Playlist struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	ItemCount    int    `json:"item_count"`
	ChannelTitle string `json:"channel_title,omitempty"`
}

// SearchResult is a video or playlist search hit.
type SearchResult struct {
	Kind     string    `json:"kind"`
	Track    *Track    `json:"track,omitempty"`
	Playlist *Playlist `json:"playlist,omitempty"`
}

// PlaybackState is the wire form of a playback snapshot.
type PlaybackState struct {
	CurrentTrack      *Track  `json:"current_track,omitempty"`
	Status            string  `json:"status"`
	IsPlaying         bool    `json:"is_playing"`
	ProgressPercent   float64 `json:"progress_percent"`
	PositionSeconds   float64 `json:"position_seconds"`
	DurationSeconds   float64 `json:"duration_seconds"`
	Volume            int     `json:"volume"`
	Queue             []Track `json:"queue"`
	Shuffle           bool    `json:"shuffle"`
	RepeatMode        string  `json:"repeat_mode"`
	PlayedHistory     []Track `json:"played_history"`
	OriginalOrderSize int     `json:"original_order_size"`
	FullPlaylistSize  int     `json:"full_playlist_size"`
}

// BrowsingContext describes where the queue came from.
type BrowsingContext struct {
	Kind          string `json:"kind"`
	ID            string `json:"id,omitempty"`
	Loading       bool   `json:"loading"`
	LoadedCount   int    `json:"loaded_count"`
	NextPageToken string `json:"next_page_token,omitempty"`
	Error         string `json:"error,omitempty"`
}

// RecentEntry is a recently played track.
type RecentEntry struct {
	Track    Track     `json:"track"`
	PlayedAt time.Time `json:"played_at"`
}

// Notification is a streamed playback event.
type Notification struct {
	SequenceNo uint64        `json:"sequence_no"`
	Type       string        `json:"type"`
	State      PlaybackState `json:"state"`
	Time       time.Time     `json:"time"`
}

// Empty is used for requests and responses without fields.
type Empty struct{}

type GetStateResponse struct {
	State   PlaybackState   `json:"state"`
	Context BrowsingContext `json:"context"`
	Catalog string          `json:"catalog"`
}

type PlayTrackRequest struct {
	Track Track `json:"track"`
}

type PlayPlaylistRequest struct {
	PlaylistID string `json:"playlist_id"`
}

type SearchRequest struct {
	Query string `json:"query"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

type PlaySearchResultRequest struct {
	Index int `json:"index"`
}

type ListPlaylistsResponse struct {
	Playlists []Playlist `json:"playlists"`
}

type TracksRequest struct {
	Tracks []Track `json:"tracks"`
}

type SeekRequest struct {
	Percent float64 `json:"percent"`
}

// SetVolumeRequest sets an absolute volume, or adjusts by Delta when
// Volume is nil.
type SetVolumeRequest struct {
	Volume *int `json:"volume,omitempty"`
	Delta  int  `json:"delta,omitempty"`
}

type SetVolumeResponse struct {
	Volume int `json:"volume"`
}

type ToggleShuffleResponse struct {
	Shuffle bool `json:"shuffle"`
}

// CycleRepeatRequest cycles the repeat mode, or sets Mode when given.
type CycleRepeatRequest struct {
	Mode string `json:"mode,omitempty"`
}

type CycleRepeatResponse struct {
	RepeatMode string `json:"repeat_mode"`
}

type RecentlyPlayedResponse struct {
	Entries []RecentEntry `json:"entries"`
}

type SearchHistoryResponse struct {
	Queries []string `json:"queries"`
}
