package playback

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// startPollerLocked starts progress polling for the track of generation gen.
// Must be called with lock held.
func (c *Controller) startPollerLocked(gen uint64) {
	c.stopPollerLocked()

	ctx, cancel := context.WithCancel(c.ctx)
	c.pollerCancel = cancel

	go func() {
		ticker := time.NewTicker(c.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.pollProgress(ctx, gen)
			}
		}
	}()
}

// stopPollerLocked must be called with lock held.
func (c *Controller) stopPollerLocked() {
	if c.pollerCancel != nil {
		c.pollerCancel()
		c.pollerCancel = nil
	}
}

func (c *Controller) pollProgress(ctx context.Context, gen uint64) {
	if c.pollSuppressed(gen) {
		return
	}

	position, err := c.player.CurrentTime(ctx)
	if err != nil {
		zlog.Debug().Err(err).Msg("playback: poll current time failed")
		return
	}
	duration, err := c.player.Duration(ctx)
	if err != nil {
		zlog.Debug().Err(err).Msg("playback: poll duration failed")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check: a seek or a new track may have happened during the reads.
	if ctx.Err() != nil || c.generation != gen || time.Now().Before(c.suppressUntil) {
		return
	}
	if duration > 0 {
		c.duration = duration
	}
	if c.duration > 0 {
		c.progress = max(0, min(100, position/c.duration*100))
	}
	c.sendEventLocked(EventProgress)
}

func (c *Controller) pollSuppressed(gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation != gen || time.Now().Before(c.suppressUntil)
}

// probeDuration asks the player for the duration of a track loaded without
// one. The result is dropped if another track took over meanwhile.
func (c *Controller) probeDuration(gen uint64) {
	ticker := time.NewTicker(c.config.DurationProbeInterval)
	defer ticker.Stop()

	for range c.config.DurationProbeAttempts {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.RLock()
		stale := c.generation != gen
		known := c.duration > 0
		c.mu.RUnlock()
		if stale || known {
			return
		}

		d, err := c.player.Duration(c.ctx)
		if err != nil || d <= 0 {
			continue
		}

		c.mu.Lock()
		if c.generation == gen && c.duration <= 0 {
			c.duration = d
			c.sendEventLocked(EventProgress)
		}
		c.mu.Unlock()
		return
	}
	zlog.Debug().Msgf("playback: duration still unknown after %d probes", c.config.DurationProbeAttempts)
}
