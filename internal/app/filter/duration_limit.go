package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/domain/track"
)

// DurationLimitConfig represents the configuration for DurationLimitFilter.
// A zero MaxMinutes means no upper bound.
type DurationLimitConfig struct {
	MinMinutes float64 `mapstructure:"min_minutes" default:"1" validate:"gte=1"`
	MaxMinutes float64 `mapstructure:"max_minutes" validate:"gte=0"`
}

// DurationLimitFilter rejects tracks outside the configured length window.
type DurationLimitFilter struct {
	config *DurationLimitConfig
}

// NewDurationLimitFilter creates a new duration limit filter.
// It accepts everything until ValidateConfig succeeds.
func NewDurationLimitFilter() *DurationLimitFilter {
	return &DurationLimitFilter{}
}

func (f *DurationLimitFilter) Name() string {
	return "duration_limit_filter"
}

func (f *DurationLimitFilter) Description() string {
	return "Rejects tracks shorter than min_minutes or longer than max_minutes"
}

func (f *DurationLimitFilter) ReturnCodes() []string {
	return []string{"duration_limit_exceeded"}
}

func (f *DurationLimitFilter) ValidateConfig(settings map[string]any) error {
	var config DurationLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}

	if config.MaxMinutes > 0 && config.MinMinutes > config.MaxMinutes {
		return errors.Newf("min_minutes (%.1f) cannot be greater than max_minutes (%.1f)", config.MinMinutes, config.MaxMinutes)
	}

	f.config = &config
	zlog.Info().Msgf("filter: duration limit: min=%.1fm max=%.1fm", config.MinMinutes, config.MaxMinutes)
	return nil
}

func (f *DurationLimitFilter) Check(ctx context.Context, req Request, t track.Track) Result {
	if f.config == nil {
		return Accept()
	}

	minutes := t.Duration.Minutes()
	if minutes < f.config.MinMinutes {
		return Reject("duration_limit_exceeded")
	}
	if f.config.MaxMinutes > 0 && minutes > f.config.MaxMinutes {
		return Reject("duration_limit_exceeded")
	}
	return Accept()
}

func init() {
	Register("duration_limit_filter", func() Filter {
		return NewDurationLimitFilter()
	})
}
