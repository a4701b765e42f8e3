package playback

import "github.com/osa030/jukebot/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted EventType = iota // Provider started a track
	EventTrackQueued                   // Track appended to the queue
	EventTrackSkipped                  // Current track was skipped
	EventStateChanged                  // Pause/resume
	EventQueueEmpty                    // Skip found nothing upcoming, playback went idle
	EventQueueCleared                  // Stop cleared the queue
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackQueued:
		return "track_queued"
	case EventTrackSkipped:
		return "track_skipped"
	case EventStateChanged:
		return "state_changed"
	case EventQueueEmpty:
		return "queue_empty"
	case EventQueueCleared:
		return "queue_cleared"
	default:
		return "unknown"
	}
}

// Event represents a committed playback transition.
type Event struct {
	Type      EventType
	Track     *track.Track // Track the event is about (nil for some events)
	State     State        // Playback state after the transition
	QueueSize int          // Upcoming tracks after the transition
}
