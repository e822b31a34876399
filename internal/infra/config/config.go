// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Shuffle pool policies.
const (
	ShufflePoolPartial = "partial" // Shuffle whatever pages are loaded so far
	ShufflePoolFull    = "full"    // Finish pagination before shuffling
)

// Audio backends.
const (
	AudioBackendBeep      = "beep"
	AudioBackendSimulated = "simulated"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Control  ControlConfig  `yaml:"control"`
	Playback PlaybackConfig `yaml:"playback"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Audio    AudioConfig    `yaml:"audio"`
	Store    StoreConfig    `yaml:"store"`
	Library  LibraryConfig  `yaml:"library"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// ControlConfig represents remote control configuration.
type ControlConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// PlaybackConfig represents playback engine configuration.
type PlaybackConfig struct {
	DefaultVolume    int    `yaml:"default_volume" default:"100" validate:"gte=0,lte=100"`
	PollIntervalMs   int    `yaml:"poll_interval_ms" default:"1000" validate:"gte=100,lte=10000"`
	SeekDebounceMs   int    `yaml:"seek_debounce_ms" default:"800" validate:"gte=0,lte=5000"`
	FallbackStartMs  int    `yaml:"fallback_start_ms" default:"500" validate:"gte=50,lte=5000"`
	ShufflePool      string `yaml:"shuffle_pool" default:"partial" validate:"oneof=partial full"`
	PageFetchDelayMs int    `yaml:"page_fetch_delay_ms" default:"0" validate:"gte=0,lte=10000"`
}

// PollInterval returns the progress polling period.
func (p PlaybackConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// SeekDebounce returns the poller suppression window after a seek.
func (p PlaybackConfig) SeekDebounce() time.Duration {
	return time.Duration(p.SeekDebounceMs) * time.Millisecond
}

// FallbackStart returns the forced-play delay after cueing.
func (p PlaybackConfig) FallbackStart() time.Duration {
	return time.Duration(p.FallbackStartMs) * time.Millisecond
}

// PageFetchDelay returns the pause between background page fetches.
func (p PlaybackConfig) PageFetchDelay() time.Duration {
	return time.Duration(p.PageFetchDelayMs) * time.Millisecond
}

// CatalogConfig selects and configures the catalog provider.
type CatalogConfig struct {
	Type        string         `yaml:"type" default:"youtube" validate:"oneof=youtube spotify"`
	DisplayName string         `yaml:"display_name" default:"YouTube"`
	Settings    map[string]any `yaml:"settings"`
}

// AudioConfig represents media backend configuration.
type AudioConfig struct {
	Backend            string `yaml:"backend" default:"beep" validate:"oneof=beep simulated"`
	LibraryDir         string `yaml:"library_dir" validate:"required_if=Backend beep"`
	SampleRate         int    `yaml:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	BufferMs           int    `yaml:"buffer_ms" default:"100" validate:"gte=10,lte=1000"`
	DefaultDurationSec int    `yaml:"default_duration_sec" default:"180" validate:"gte=1"`
}

// Buffer returns the speaker buffer length.
func (a AudioConfig) Buffer() time.Duration {
	return time.Duration(a.BufferMs) * time.Millisecond
}

// DefaultDuration returns the duration assumed for media of unknown length.
func (a AudioConfig) DefaultDuration() time.Duration {
	return time.Duration(a.DefaultDurationSec) * time.Second
}

// StoreConfig represents local persistence configuration.
type StoreConfig struct {
	Path string `yaml:"path" default:"tubebox.db"`
}

// LibraryConfig represents history retention.
type LibraryConfig struct {
	RecentlyPlayedLimit int `yaml:"recently_played_limit" default:"50" validate:"gte=1,lte=1000"`
	SearchHistoryLimit  int `yaml:"search_history_limit" default:"10" validate:"gte=1,lte=100"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	cfg.Audio.LibraryDir = expandHome(cfg.Audio.LibraryDir)
	cfg.Store.Path = expandHome(cfg.Store.Path)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("TUBEBOX_CONTROL_TOKEN"); v != "" {
		c.Control.Token = v
	}

	var envKeys map[string]string
	switch c.Catalog.Type {
	case "spotify":
		envKeys = map[string]string{
			"SPOTIFY_CLIENT_ID":     "client_id",
			"SPOTIFY_CLIENT_SECRET": "client_secret",
			"SPOTIFY_REFRESH_TOKEN": "refresh_token",
		}
	default:
		envKeys = map[string]string{
			"YOUTUBE_API_KEY":       "api_key",
			"YOUTUBE_CLIENT_ID":     "client_id",
			"YOUTUBE_CLIENT_SECRET": "client_secret",
			"YOUTUBE_REFRESH_TOKEN": "refresh_token",
		}
	}
	for env, key := range envKeys {
		if v := os.Getenv(env); v != "" {
			if c.Catalog.Settings == nil {
				c.Catalog.Settings = make(map[string]any)
			}
			c.Catalog.Settings[key] = v
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
