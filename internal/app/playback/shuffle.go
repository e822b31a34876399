package playback

import (
	"slices"

	"github.com/samber/lo"

	"github.com/osa030/tubebox/internal/domain/track"
)

// shuffleOnLocked builds the shuffle pool, snapshots it into originalOrder and
// then replaces the queue with a permutation of it.
// Must be called with lock held.
func (c *Controller) shuffleOnLocked() {
	var pool []track.Track
	if len(c.fullPlaylist) > 0 {
		pool = track.Clone(c.fullPlaylist)
	} else {
		pool = make([]track.Track, 0, len(c.history)+len(c.queue)+1)
		pool = append(pool, c.history...)
		if c.current != nil {
			pool = append(pool, *c.current)
		}
		pool = append(pool, c.queue...)
	}
	pool = lo.Filter(pool, func(t track.Track, _ int) bool { return t.ID != "" })
	pool = lo.UniqBy(pool, func(t track.Track) string { return t.ID })

	c.anchorTrack = nil
	c.anchorIndex = -1
	if c.current != nil {
		id := c.current.ID
		if _, idx, ok := lo.FindIndexOf(pool, func(t track.Track) bool { return t.ID == id }); ok {
			c.anchorIndex = idx
		}
		c.anchorTrack = c.current.Ptr()
		pool = lo.Reject(pool, func(t track.Track, _ int) bool { return t.ID == id })
	}

	c.originalOrder = pool
	shuffled := track.Clone(pool)
	c.shuffleTracks(shuffled)
	c.queue = shuffled
	c.shuffle = true
}

// shuffleOffLocked restores sequential order: the part of originalOrder after
// the current track, or all of it when the current track has no position.
// Must be called with lock held.
func (c *Controller) shuffleOffLocked() {
	queue := track.Clone(c.originalOrder)
	if c.current != nil {
		id := c.current.ID
		switch idx := indexOfID(c.originalOrder, id); {
		case idx >= 0:
			queue = track.Clone(c.originalOrder[idx+1:])
		case c.anchorTrack != nil && c.anchorTrack.ID == id && c.anchorIndex >= 0:
			queue = track.Clone(c.originalOrder[min(c.anchorIndex, len(c.originalOrder)):])
		}
	}

	c.originalOrder = c.cycleLocked()
	c.anchorTrack = nil
	c.anchorIndex = -1
	c.queue = removeID(queue, c.currentID())
	c.shuffle = false
}

// cycleLocked returns the full play order for repeat ALL: originalOrder with
// the shuffle anchor put back at its position.
// Must be called with lock held.
func (c *Controller) cycleLocked() []track.Track {
	cycle := track.Clone(c.originalOrder)
	if c.anchorTrack != nil && indexOfID(cycle, c.anchorTrack.ID) < 0 {
		idx := max(0, min(c.anchorIndex, len(cycle)))
		cycle = slices.Insert(cycle, idx, *c.anchorTrack)
	}
	return cycle
}

// restartCycleLocked starts the repeat ALL cycle over and returns its head.
// The rest of the cycle becomes the queue, reshuffled when shuffle is on.
// Must be called with lock held.
func (c *Controller) restartCycleLocked() track.Track {
	cycle := c.cycleLocked()

	if !c.shuffle {
		c.originalOrder = cycle
		c.anchorTrack = nil
		c.anchorIndex = -1
		c.queue = track.Clone(cycle[1:])
		return cycle[0]
	}

	order := track.Clone(cycle)
	c.shuffleTracks(order)
	head := order[0]
	c.anchorTrack = head.Ptr()
	c.anchorIndex = indexOfID(cycle, head.ID)
	c.originalOrder = removeID(cycle, head.ID)
	c.queue = track.Clone(order[1:])
	return head
}

// shuffleTracks permutes tracks in place (Fisher-Yates, last index down to 1).
func (c *Controller) shuffleTracks(tracks []track.Track) {
	for i := len(tracks) - 1; i > 0; i-- {
		j := c.config.IntN(i + 1)
		tracks[i], tracks[j] = tracks[j], tracks[i]
	}
}

func indexOfID(tracks []track.Track, id string) int {
	return slices.IndexFunc(tracks, func(t track.Track) bool { return t.ID == id })
}

// removeID returns tracks without entries matching id. The input is reused.
func removeID(tracks []track.Track, id string) []track.Track {
	if id == "" {
		return tracks
	}
	return slices.DeleteFunc(tracks, func(t track.Track) bool { return t.ID == id })
}

func insertAt(tracks []track.Track, idx int, t track.Track) []track.Track {
	return slices.Insert(tracks, idx, t)
}

// sameMembers reports whether a and b hold the same track IDs, ignoring order.
func sameMembers(a, b []track.Track) bool {
	if len(a) != len(b) {
		return false
	}
	ids := track.IDs(b)
	return lo.Every(ids, track.IDs(a)) && lo.Every(track.IDs(a), ids)
}
