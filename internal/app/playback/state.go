// Package playback provides the playback state machine and its upcoming-track queue.
package playback

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // Nothing rendering on the provider
	StatePlaying              // Current track is playing
	StatePaused               // Current track is held by the provider
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Active reports whether the provider holds a current track.
func (s State) Active() bool {
	return s == StatePlaying || s == StatePaused
}
