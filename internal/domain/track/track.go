// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"time"
)

// Track represents a playable Spotify track.
// Built only from provider search results and never mutated afterwards.
type Track struct {
	ID          string        // Spotify Track ID
	URI         string        // Spotify URI (spotify:track:ID), used to start playback
	Name        string        // Track name
	Artists     []string      // Artist names, primary artist first
	Album       string        // Album name
	AlbumArtURL string        // Album art URL
	Duration    time.Duration // Track duration
	URL         string        // Spotify URL
	Explicit    bool          // Explicit content flag
	Markets     []string      // Available markets
	IsPlayable  *bool         // Playable in the requested market (nil if market not specified)
}

// PrimaryArtist returns the first credited artist, or "" when unknown.
func (t *Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// Title renders the track as "Name by Artist".
func (t *Track) Title() string {
	if artist := t.PrimaryArtist(); artist != "" {
		return fmt.Sprintf("%s by %s", t.Name, artist)
	}
	return t.Name
}

// IsAvailableInMarket checks if the track is available in the specified market.
func (t *Track) IsAvailableInMarket(market string) bool {
	// If IsPlayable is set, it takes precedence (Track Relinking support)
	if t.IsPlayable != nil {
		return *t.IsPlayable
	}

	for _, m := range t.Markets {
		if m == market {
			return true
		}
	}
	return false
}

// FormatDuration renders a duration as m:ss.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
