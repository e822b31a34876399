package connect

import (
	"time"

	"github.com/osa030/tubebox/internal/app/notification"
	"github.com/osa030/tubebox/internal/app/playback"
	"github.com/osa030/tubebox/internal/app/session/state"
	"github.com/osa030/tubebox/internal/domain/playlist"
	"github.com/osa030/tubebox/internal/domain/track"
	"github.com/osa030/tubebox/internal/infra/store"
)

func toTrack(t track.Track) Track {
	return Track{
		ID:              t.ID,
		Title:           t.Title,
		Artist:          t.Artist,
		ThumbnailURL:    t.ThumbnailURL,
		DurationSeconds: t.DurationSeconds(),
	}
}

func toTracks(tracks []track.Track) []Track {
	out := make([]Track, len(tracks))
	for i, t := range tracks {
		out[i] = toTrack(t)
	}
	return out
}

func fromTrack(t Track) track.Track {
	return track.Track{
		ID:           t.ID,
		Title:        t.Title,
		Artist:       t.Artist,
		ThumbnailURL: t.ThumbnailURL,
		Duration:     time.Duration(t.DurationSeconds * float64(time.Second)),
	}
}

func fromTracks(tracks []Track) []track.Track {
	out := make([]track.Track, len(tracks))
	for i, t := range tracks {
		out[i] = fromTrack(t)
	}
	return out
}

func toPlaylist(p playlist.Playlist) Playlist {
	return Playlist{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		ThumbnailURL: p.ThumbnailURL,
		ItemCount:    p.ItemCount,
		ChannelTitle: p.ChannelTitle,
	}
}

func toSearchResults(results []playlist.SearchResult) []SearchResult {
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		sr := SearchResult{Kind: r.Kind.String()}
		if r.Track != nil {
			t := toTrack(*r.Track)
			sr.Track = &t
		}
		if r.Playlist != nil {
			p := toPlaylist(*r.Playlist)
			sr.Playlist = &p
		}
		out = append(out, sr)
	}
	return out
}

func toPlaybackState(s playback.Snapshot) PlaybackState {
	ps := PlaybackState{
		Status:            s.Status.String(),
		IsPlaying:         s.IsPlaying,
		ProgressPercent:   s.ProgressPercent,
		PositionSeconds:   s.PositionSeconds(),
		DurationSeconds:   s.DurationSeconds,
		Volume:            s.Volume,
		Queue:             toTracks(s.Queue),
		Shuffle:           s.Shuffle,
		RepeatMode:        s.RepeatMode.String(),
		PlayedHistory:     toTracks(s.PlayedHistory),
		OriginalOrderSize: len(s.OriginalOrder),
		FullPlaylistSize:  s.FullPlaylistSize,
	}
	if s.CurrentTrack != nil {
		t := toTrack(*s.CurrentTrack)
		ps.CurrentTrack = &t
	}
	return ps
}

func toBrowsingContext(c state.Context) BrowsingContext {
	return BrowsingContext{
		Kind:          c.Kind.String(),
		ID:            c.ID,
		Loading:       c.Loading,
		LoadedCount:   c.LoadedCount,
		NextPageToken: c.NextPageToken,
		Error:         c.Error,
	}
}

func toRecentEntries(entries []store.RecentEntry) []RecentEntry {
	out := make([]RecentEntry, len(entries))
	for i, e := range entries {
		out[i] = RecentEntry{Track: toTrack(e.Track), PlayedAt: e.PlayedAt}
	}
	return out
}

func toNotification(n *notification.Notification) *Notification {
	return &Notification{
		SequenceNo: n.SequenceNo,
		Type:       n.Type.String(),
		State:      toPlaybackState(n.State),
		Time:       n.Time,
	}
}
