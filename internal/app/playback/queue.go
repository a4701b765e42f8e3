package playback

import (
	"time"

	"github.com/osa030/jukebot/internal/domain/track"
)

// Queue is a strict FIFO of upcoming tracks.
// It is not safe for concurrent use; Controller guards it with its own lock.
type Queue struct {
	tracks []track.Track
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		tracks: make([]track.Track, 0),
	}
}

// Enqueue appends a track to the tail.
func (q *Queue) Enqueue(t track.Track) {
	q.tracks = append(q.tracks, t)
}

// Peek returns the head without removing it.
func (q *Queue) Peek() (track.Track, bool) {
	if len(q.tracks) == 0 {
		return track.Track{}, false
	}
	return q.tracks[0], true
}

// DequeueHead removes and returns the head.
// The bool is false when the queue is empty.
func (q *Queue) DequeueHead() (track.Track, bool) {
	if len(q.tracks) == 0 {
		return track.Track{}, false
	}
	head := q.tracks[0]
	q.tracks[0] = track.Track{}
	q.tracks = q.tracks[1:]
	return head, true
}

// PeekAll returns a copy of the queued tracks in play order.
func (q *Queue) PeekAll() []track.Track {
	result := make([]track.Track, len(q.tracks))
	copy(result, q.tracks)
	return result
}

// Clear removes all entries.
func (q *Queue) Clear() {
	q.tracks = make([]track.Track, 0)
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// TotalDuration returns the summed duration of all queued tracks.
func (q *Queue) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range q.tracks {
		total += t.Duration
	}
	return total
}
