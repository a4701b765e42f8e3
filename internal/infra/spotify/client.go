// Package spotify provides a client for the Spotify Web API.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/jukebot/internal/domain/track"
)

// Scopes required to search and control the user's player.
var Scopes = []string{
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
}

// Client is a Spotify API client.
// It implements playback.Provider and the dispatcher's search interface.
type Client struct {
	client     *spotify.Client
	market     string
	deviceID   string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
	DeviceID     string // Target device; empty means the user's active device
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(Scopes...),
	)

	// Get HTTP client with auto-refresh capability
	httpClient := auth.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	return newWithClient(spotify.New(httpClient), cfg), nil
}

func newWithClient(client *spotify.Client, cfg Config) *Client {
	market := cfg.Market
	if market == "" {
		market = "JP"
	}

	return &Client{
		client:     client,
		market:     market,
		deviceID:   cfg.DeviceID,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Market returns the market used for search and availability.
func (c *Client) Market() string {
	return c.market
}

// GetTrack retrieves track information by ID, URL, or URI.
// A track that does not exist yields (nil, nil).
func (c *Client) GetTrack(ctx context.Context, trackID string) (*track.Track, error) {
	id := ExtractTrackID(trackID)
	if id == "" {
		return nil, errors.New("track id is required")
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		var apiErr spotify.Error
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusBadRequest) {
			zlog.Debug().Msgf("spotify: track not found: id=%s status=%d", id, apiErr.Status)
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get track")
	}

	return c.convertTrack(result), nil
}

// Search searches for tracks on Spotify, best match first.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is required")
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	var result *spotify.SearchResult
	err := c.retry(ctx, func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	if result.Tracks == nil {
		return []track.Track{}, nil
	}

	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, *c.convertTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// StartPlayback replaces whatever is playing with t.
// Playback control is never retried: a failure surfaces to the caller immediately.
func (c *Client) StartPlayback(ctx context.Context, t track.Track) error {
	opt := c.playOptions()
	opt.URIs = []spotify.URI{spotify.URI(trackURI(t))}

	if err := c.client.PlayOpt(ctx, opt); err != nil {
		return errors.Wrapf(err, "failed to start playback of %s", t.ID)
	}
	zlog.Debug().Msgf("spotify: playback started: uri=%s device=%s", opt.URIs[0], c.deviceID)
	return nil
}

// PausePlayback pauses the player.
func (c *Client) PausePlayback(ctx context.Context) error {
	if err := c.client.PauseOpt(ctx, c.playOptions()); err != nil {
		return errors.Wrap(err, "failed to pause playback")
	}
	return nil
}

// ResumePlayback resumes the player where it was paused.
func (c *Client) ResumePlayback(ctx context.Context) error {
	if err := c.client.PlayOpt(ctx, c.playOptions()); err != nil {
		return errors.Wrap(err, "failed to resume playback")
	}
	return nil
}

// AddToQueue appends t to the player's own queue.
func (c *Client) AddToQueue(ctx context.Context, t track.Track) error {
	if err := c.client.QueueSongOpt(ctx, spotify.ID(t.ID), c.playOptions()); err != nil {
		return errors.Wrapf(err, "failed to queue %s", t.ID)
	}
	return nil
}

// Device is a Spotify Connect device the player can target.
type Device struct {
	ID     string
	Name   string
	Type   string
	Active bool
}

// Devices lists the user's available playback devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var result []spotify.PlayerDevice
	err := c.retry(ctx, func() error {
		d, err := c.client.PlayerDevices(ctx)
		if err != nil {
			return err
		}
		result = d
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}

	devices := make([]Device, len(result))
	for i, d := range result {
		devices[i] = Device{
			ID:     string(d.ID),
			Name:   d.Name,
			Type:   d.Type,
			Active: d.Active,
		}
	}
	return devices, nil
}

func (c *Client) playOptions() *spotify.PlayOptions {
	opt := &spotify.PlayOptions{}
	if c.deviceID != "" {
		id := spotify.ID(c.deviceID)
		opt.DeviceID = &id
	}
	return opt
}

// convertTrack converts a Spotify FullTrack to domain Track.
func (c *Client) convertTrack(t *spotify.FullTrack) *track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var albumArt string
	if len(t.Album.Images) > 0 {
		albumArt = t.Album.Images[0].URL
	}

	markets := make([]string, len(t.AvailableMarkets))
	for i, m := range t.AvailableMarkets {
		markets[i] = string(m)
	}

	// Results requested with a market omit available_markets; the market itself applies.
	if len(markets) == 0 && c.market != "" {
		markets = append(markets, c.market)
	}

	uri := string(t.URI)
	if uri == "" {
		uri = "spotify:track:" + string(t.ID)
	}

	return &track.Track{
		ID:          string(t.ID),
		URI:         uri,
		Name:        t.Name,
		Artists:     artists,
		Album:       t.Album.Name,
		AlbumArtURL: albumArt,
		Duration:    time.Duration(t.Duration) * time.Millisecond,
		URL:         GetTrackURL(string(t.ID)),
		Explicit:    t.Explicit,
		Markets:     markets,
		IsPlayable:  t.IsPlayable,
	}
}

// GetTrackURL returns the Spotify URL for a track.
func GetTrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

func trackURI(t track.Track) string {
	if t.URI != "" {
		return t.URI
	}
	return "spotify:track:" + t.ID
}

// retry retries a read-only operation while the error is a rate limit or server error.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			delay := c.retryDelay * time.Duration(i+1)
			zlog.Debug().Msgf("spotify: retrying in %v after: %v", delay, err)
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), lastErr.Error())
			case <-time.After(delay):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// IsTrackReference reports whether input is a Spotify track URI or URL rather than a search query.
func IsTrackReference(input string) bool {
	input = strings.TrimSpace(input)
	return strings.HasPrefix(input, "spotify:track:") ||
		(strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/"))
}

// ExtractTrackID extracts the track ID from a Spotify track URL or URI.
func ExtractTrackID(input string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:track:TRACK_ID
	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}

	// Handle URL format: https://open.spotify.com/track/TRACK_ID or https://open.spotify.com/intl-XX/track/TRACK_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Assume it's already a track ID
	return input
}
