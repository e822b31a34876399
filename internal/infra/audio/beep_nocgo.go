//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tubebox/internal/app/player"
)

// BeepAvailable indicates whether speaker output is supported in this build.
// Speaker output requires cgo on this platform.
const BeepAvailable = false

func newBeepBackend(*Library, int, time.Duration) (player.Backend, error) {
	return nil, errors.New("beep backend requires a cgo build; use the simulated backend")
}
