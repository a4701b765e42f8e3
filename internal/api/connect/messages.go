package connect

import (
	"time"

	"github.com/osa030/jukebot/internal/app/command"
	"github.com/osa030/jukebot/internal/app/notification"
	"github.com/osa030/jukebot/internal/app/playback"
	"github.com/osa030/jukebot/internal/domain/track"
)

// NotificationTypeInitialState is sent once when a subscription opens.
const NotificationTypeInitialState = "initial_state"

// DispatchRequest carries one chat command.
type DispatchRequest struct {
	Command string `json:"command"`
	Args    string `json:"args,omitempty"`
	User    string `json:"user,omitempty"`
}

// DispatchResponse is the rendered outcome of a command.
type DispatchResponse struct {
	Kind       string      `json:"kind"`
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Track      *TrackInfo  `json:"track,omitempty"`
	Position   int         `json:"position,omitempty"`
	State      string      `json:"state"`
	NowPlaying *TrackInfo  `json:"now_playing,omitempty"`
	Queue      []TrackInfo `json:"queue,omitempty"`
}

// SubscribeEventsRequest opens a notification stream.
type SubscribeEventsRequest struct{}

// Notification is one playback event on the wire.
type Notification struct {
	SequenceNo uint64     `json:"sequence_no"`
	Type       string     `json:"type"`
	State      string     `json:"state"`
	Track      *TrackInfo `json:"track,omitempty"`
	QueueSize  int        `json:"queue_size"`
	Time       time.Time  `json:"time"`
}

// TrackInfo is a track on the wire.
type TrackInfo struct {
	ID          string   `json:"id"`
	URI         string   `json:"uri"`
	Name        string   `json:"name"`
	Artists     []string `json:"artists"`
	Album       string   `json:"album,omitempty"`
	AlbumArtURL string   `json:"album_art_url,omitempty"`
	URL         string   `json:"url,omitempty"`
	DurationMs  int64    `json:"duration_ms"`
}

func toTrackInfo(t *track.Track) *TrackInfo {
	if t == nil {
		return nil
	}
	return &TrackInfo{
		ID:          t.ID,
		URI:         t.URI,
		Name:        t.Name,
		Artists:     t.Artists,
		Album:       t.Album,
		AlbumArtURL: t.AlbumArtURL,
		URL:         t.URL,
		DurationMs:  t.Duration.Milliseconds(),
	}
}

func toDispatchResponse(reply command.Reply, status playback.Snapshot) *DispatchResponse {
	resp := &DispatchResponse{
		Kind:       string(reply.Kind),
		Code:       reply.Code,
		Message:    reply.Message,
		Track:      toTrackInfo(reply.Track),
		Position:   reply.Position,
		State:      status.State.String(),
		NowPlaying: toTrackInfo(status.Current),
	}
	for i := range status.Upcoming {
		resp.Queue = append(resp.Queue, *toTrackInfo(&status.Upcoming[i]))
	}
	return resp
}

func toNotification(n notification.Notification) *Notification {
	return &Notification{
		SequenceNo: n.SequenceNo,
		Type:       n.Type.String(),
		State:      n.State.String(),
		Track:      toTrackInfo(n.Track),
		QueueSize:  n.QueueSize,
		Time:       n.Time,
	}
}
