package audio

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tubebox/internal/app/player"
	"github.com/osa030/tubebox/internal/infra/config"
)

// NewBackend creates the configured media backend. lookup supplies known
// durations to the simulated backend and may be nil.
func NewBackend(cfg config.AudioConfig, lookup DurationLookup) (player.Backend, error) {
	switch cfg.Backend {
	case config.AudioBackendBeep:
		if cfg.LibraryDir == "" {
			return nil, errors.New("audio.library_dir is required for the beep backend")
		}
		zlog.Info().Msgf("audio backend: beep library=%s", cfg.LibraryDir)
		return newBeepBackend(NewLibrary(cfg.LibraryDir), cfg.SampleRate, cfg.Buffer())

	case config.AudioBackendSimulated, "":
		zlog.Info().Msgf("audio backend: simulated default_duration=%s", cfg.DefaultDuration())
		return NewSimulated(SimulatedConfig{DefaultDuration: cfg.DefaultDuration()}, lookup), nil

	default:
		return nil, errors.Newf("unsupported audio backend: %s", cfg.Backend)
	}
}
