// Package track provides the Track domain entity.
package track

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrInvalidDuration is returned when a duration string cannot be parsed.
var ErrInvalidDuration = errors.New("invalid duration")

// Track represents a playable catalog item.
// Tracks are values: the engine copies them, it never mutates one in place.
type Track struct {
	ID           string        // Catalog video ID
	Title        string        // Display title
	Artist       string        // Channel or artist name
	ThumbnailURL string        // Artwork URL
	Duration     time.Duration // Zero until known
}

// HasDuration reports whether the track duration is known.
func (t Track) HasDuration() bool {
	return t.Duration > 0
}

// DurationSeconds returns the duration in seconds (0 when unknown).
func (t Track) DurationSeconds() float64 {
	return t.Duration.Seconds()
}

// WithDuration returns a copy of the track with the given duration.
func (t Track) WithDuration(d time.Duration) Track {
	t.Duration = d
	return t
}

// Ptr returns a pointer to a copy of the track.
func (t Track) Ptr() *Track {
	return &t
}

// IDs returns the IDs of the given tracks, in order.
func IDs(tracks []Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}

// Clone returns a copy of the slice. A nil slice clones to an empty one.
func Clone(tracks []Track) []Track {
	out := make([]Track, len(tracks))
	copy(out, tracks)
	return out
}

var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseISODuration parses an ISO-8601 duration as returned by the YouTube API
// (e.g. "PT4M13S", "PT1H2M", "P1DT2S").
func ParseISODuration(s string) (time.Duration, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	m := isoDurationPattern.FindStringSubmatch(u)
	if m == nil || u == "P" || strings.HasSuffix(u, "T") {
		return 0, errors.Wrapf(ErrInvalidDuration, "%q", s)
	}

	var d time.Duration
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute}
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidDuration, "%q", s)
		}
		d += time.Duration(n) * unit
	}
	if m[4] != "" {
		secs, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidDuration, "%q", s)
		}
		d += time.Duration(secs * float64(time.Second))
	}
	return d, nil
}

// ParseClock parses "m:ss" or "h:mm:ss".
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errors.Wrapf(ErrInvalidDuration, "%q", s)
	}

	var total int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, errors.Wrapf(ErrInvalidDuration, "%q", s)
		}
		if i > 0 && n >= 60 {
			return 0, errors.Wrapf(ErrInvalidDuration, "%q", s)
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}

// FormatClock renders a duration as "m:ss", or "h:mm:ss" past an hour.
// Unknown (zero) durations render as "--:--".
func FormatClock(d time.Duration) string {
	if d <= 0 {
		return "--:--"
	}
	secs := int(d.Round(time.Second).Seconds())
	h, m, s := secs/3600, (secs/60)%60, secs%60
	if h > 0 {
		return strconv.Itoa(h) + ":" + pad2(m) + ":" + pad2(s)
	}
	return strconv.Itoa(m) + ":" + pad2(s)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
