package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tubebox/internal/infra/config"
	"github.com/osa030/tubebox/internal/infra/spotify"
	"github.com/osa030/tubebox/internal/infra/youtube"
)

// YouTubeSettings are the catalog.settings keys for the youtube provider.
type YouTubeSettings struct {
	APIKey          string `mapstructure:"api_key" validate:"required_without=RefreshToken"`
	ClientID        string `mapstructure:"client_id" validate:"required_with=RefreshToken"`
	ClientSecret    string `mapstructure:"client_secret" validate:"required_with=RefreshToken"`
	RefreshToken    string `mapstructure:"refresh_token"`
	PageSize        int    `mapstructure:"page_size" default:"50" validate:"gte=1,lte=50"`
	SearchLimit     int    `mapstructure:"search_limit" default:"10" validate:"gte=1,lte=50"`
	EnrichDurations *bool  `mapstructure:"enrich_durations" default:"true"`
}

// SpotifySettings are the catalog.settings keys for the spotify provider.
type SpotifySettings struct {
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	RefreshToken string `mapstructure:"refresh_token" validate:"required"`
	Market       string `mapstructure:"market" default:"JP" validate:"len=2"`
	PageSize     int    `mapstructure:"page_size" default:"50" validate:"gte=1,lte=50"`
	SearchLimit  int    `mapstructure:"search_limit" default:"10" validate:"gte=1,lte=50"`
}

// NewProviderFromConfig creates the configured catalog provider.
func NewProviderFromConfig(ctx context.Context, cfg config.CatalogConfig) (Provider, error) {
	zlog.Debug().Msgf("creating catalog provider: type=%s", cfg.Type)

	switch cfg.Type {
	case "youtube", "":
		var s YouTubeSettings
		if err := decodeSettings(cfg.Settings, &s); err != nil {
			return nil, errors.Wrap(err, "invalid youtube settings")
		}
		c, err := youtube.New(ctx, youtube.Config{
			APIKey:          s.APIKey,
			ClientID:        s.ClientID,
			ClientSecret:    s.ClientSecret,
			RefreshToken:    s.RefreshToken,
			PageSize:        s.PageSize,
			SearchLimit:     s.SearchLimit,
			EnrichDurations: s.EnrichDurations != nil && *s.EnrichDurations,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create youtube client")
		}
		zlog.Info().Msgf("registered catalog provider: type=youtube display_name=%s", cfg.DisplayName)
		return c, nil

	case "spotify":
		var s SpotifySettings
		if err := decodeSettings(cfg.Settings, &s); err != nil {
			return nil, errors.Wrap(err, "invalid spotify settings")
		}
		c, err := spotify.New(ctx, spotify.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			RefreshToken: s.RefreshToken,
			Market:       s.Market,
			PageSize:     s.PageSize,
			SearchLimit:  s.SearchLimit,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create spotify client")
		}
		zlog.Info().Msgf("registered catalog provider: type=spotify display_name=%s", cfg.DisplayName)
		return c, nil

	default:
		return nil, errors.Newf("unsupported catalog type: %s", cfg.Type)
	}
}

func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.WeakDecode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
