// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Playback PlaybackConfig          `yaml:"playback"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Messages MessagesConfig          `yaml:"messages"`
	Log      LogConfig               `yaml:"log"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Token string      `yaml:"token"` // Shared secret chat integrations send as X-Bot-Token; empty disables the check
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	ProviderTimeoutMs     int  `yaml:"provider_timeout_ms" default:"5000" validate:"gte=100,lte=60000"`
	MirrorProviderQueue   bool `yaml:"mirror_provider_queue"`
	EventBuffer           int  `yaml:"event_buffer" default:"64" validate:"gte=1,lte=4096"`
	NotificationTimeoutMs int  `yaml:"notification_timeout_ms" default:"1000" validate:"gte=0,lte=30000"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RefreshToken string `yaml:"refresh_token" validate:"required"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
	DeviceID     string `yaml:"device_id"`
	SearchLimit  int    `yaml:"search_limit" default:"5" validate:"gte=1,lte=50"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// LogConfig represents log file rotation. Used only with --logfile.
type LogConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb" default:"10" validate:"gte=1"`
	MaxBackups int  `yaml:"max_backups" default:"3" validate:"gte=0"`
	MaxAgeDays int  `yaml:"max_age_days" default:"28" validate:"gte=0"`
	Compress   bool `yaml:"compress"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	Started               string `yaml:"started" default:"Now playing"`
	Queued                string `yaml:"queued" default:"Added to the queue"`
	Skipped               string `yaml:"skipped" default:"Skipped"`
	QueueExhausted        string `yaml:"queue_exhausted" default:"Skipped. Nothing left in the queue, playback stopped"`
	Stopped               string `yaml:"stopped" default:"Stopped and cleared the queue"`
	Paused                string `yaml:"paused" default:"Paused"`
	Resumed               string `yaml:"resumed" default:"Resumed"`
	QueueEmpty            string `yaml:"queue_empty" default:"The queue is empty"`
	TrackNotFound         string `yaml:"track_not_found" default:"No track found"`
	NotPlaying            string `yaml:"not_playing" default:"Nothing is playing"`
	NotPaused             string `yaml:"not_paused" default:"Playback is not paused"`
	MissingQuery          string `yaml:"missing_query" default:"Tell me what to play: play <song name or Spotify link>"`
	UnknownCommand        string `yaml:"unknown_command" default:"Unknown command, try help"`
	ProviderFailure       string `yaml:"provider_failure" default:"Spotify did not accept the request, try again"`
	Timeout               string `yaml:"timeout" default:"Spotify did not answer in time, try again"`
	MarketRestriction     string `yaml:"market_restriction" default:"That track is not available here"`
	DuplicateTrack        string `yaml:"duplicate_track" default:"That track is already playing or queued"`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"That track is too short or too long"`
	DefaultError          string `yaml:"default_error" default:"Something went wrong"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
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

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Server.Token = v
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

// ProviderTimeout returns the bound for a single provider call.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Playback.ProviderTimeoutMs) * time.Millisecond
}

// NotificationTimeout returns how long a broadcast waits on a slow subscriber.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Playback.NotificationTimeoutMs) * time.Millisecond
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	var msg string
	switch code {
	case "started":
		msg = c.Messages.Started
	case "queued":
		msg = c.Messages.Queued
	case "skipped":
		msg = c.Messages.Skipped
	case "queue_exhausted":
		msg = c.Messages.QueueExhausted
	case "stopped":
		msg = c.Messages.Stopped
	case "paused":
		msg = c.Messages.Paused
	case "resumed":
		msg = c.Messages.Resumed
	case "queue_empty":
		msg = c.Messages.QueueEmpty
	case "track_not_found":
		msg = c.Messages.TrackNotFound
	case "not_playing":
		msg = c.Messages.NotPlaying
	case "not_paused":
		msg = c.Messages.NotPaused
	case "missing_query":
		msg = c.Messages.MissingQuery
	case "unknown_command":
		msg = c.Messages.UnknownCommand
	case "provider_failure":
		msg = c.Messages.ProviderFailure
	case "timeout":
		msg = c.Messages.Timeout
	case "market_restriction":
		msg = c.Messages.MarketRestriction
	case "duplicate_track":
		msg = c.Messages.DuplicateTrack
	case "duration_limit_exceeded":
		msg = c.Messages.DurationLimitExceeded
	}
	if msg == "" {
		return c.Messages.DefaultError
	}
	return msg
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetFilterSettings returns the settings for a filter.
func (c *Config) GetFilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
