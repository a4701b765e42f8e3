package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/jukebot/internal/domain/track"
)

// QueueManager exposes the tracks currently held by playback.
type QueueManager interface {
	GetAllTracks() []track.Track
}

// DuplicateTrackConfig represents the configuration for DuplicateTrackFilter.
type DuplicateTrackConfig struct {
	// MatchRemasters also rejects remasters/edits of a held track by the same artist.
	// Defaults to true when the key is absent.
	MatchRemasters bool `mapstructure:"match_remasters"`
}

// DuplicateTrackFilter rejects a track already playing or queued.
// Covers (same name, different artist) are never treated as duplicates.
type DuplicateTrackFilter struct {
	queueManager QueueManager
	config       DuplicateTrackConfig
}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter(queueManager QueueManager) *DuplicateTrackFilter {
	return &DuplicateTrackFilter{
		queueManager: queueManager,
		config:       DuplicateTrackConfig{MatchRemasters: true},
	}
}

func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks already playing or queued, remasters included; covers are allowed"
}

func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

func (f *DuplicateTrackFilter) ValidateConfig(settings map[string]any) error {
	var config DuplicateTrackConfig
	if _, ok := settings["match_remasters"]; !ok {
		config.MatchRemasters = true
	}
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = config
	return nil
}

func (f *DuplicateTrackFilter) Check(ctx context.Context, req Request, requested track.Track) Result {
	if f.queueManager == nil {
		return Accept()
	}

	for _, held := range f.queueManager.GetAllTracks() {
		if held.ID == requested.ID {
			return Reject("duplicate_track")
		}
		if f.config.MatchRemasters && isRemaster(held, requested) {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
		regexp.MustCompile(`\s*-\s*live\b`),            // "- Live"
		regexp.MustCompile(`\s*\(live\)`),              // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
	}
	whitespace = regexp.MustCompile(`\s+`)
)

// isRemaster reports whether a and b are versions of the same song by the same main artist.
func isRemaster(a, b track.Track) bool {
	if normalizeTrackName(a.Name) != normalizeTrackName(b.Name) {
		return false
	}
	artistA, artistB := a.PrimaryArtist(), b.PrimaryArtist()
	if artistA == "" || artistB == "" {
		return false
	}
	return strings.EqualFold(artistA, artistB)
}

// normalizeTrackName strips remaster and version decorations from a track name.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = whitespace.ReplaceAllString(strings.TrimSpace(normalized), " ")
	return strings.TrimRight(normalized, " -")
}

func init() {
	// Needs the playback controller; listed here for list-filters only.
	Register("duplicate_track_filter", func() Filter {
		return NewDuplicateTrackFilter(nil)
	})
}
