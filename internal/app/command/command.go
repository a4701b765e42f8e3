// Package command maps chat commands onto the playback controller.
package command

import (
	"strings"

	"github.com/osa030/jukebot/internal/app/playback"
	"github.com/osa030/jukebot/internal/domain/track"
)

// Command names.
const (
	Play   = "play"
	Queue  = "queue"
	Skip   = "skip"
	Stop   = "stop"
	Pause  = "pause"
	Resume = "resume"
	Help   = "help"
)

// Definition describes a command for help output and CLI registration.
type Definition struct {
	Name        string
	Arg         string // Argument placeholder, empty when the command takes none
	Description string
}

// Definitions lists the recognized commands in help order.
var Definitions = []Definition{
	{Name: Play, Arg: "query", Description: "Play a track on Spotify, or queue it if something is playing"},
	{Name: Queue, Description: "View the current queue"},
	{Name: Skip, Description: "Skip the currently playing track"},
	{Name: Stop, Description: "Stop the music and clear the queue"},
	{Name: Pause, Description: "Pause the currently playing track"},
	{Name: Resume, Description: "Resume the paused track"},
	{Name: Help, Description: "List the available commands"},
}

// Kind classifies a reply for rendering.
type Kind string

const (
	KindOK       Kind = "ok"       // Command applied
	KindInfo     Kind = "info"     // Nothing to do, e.g. no search result
	KindRejected Kind = "rejected" // A filter refused the track
	KindInvalid  Kind = "invalid"  // Wrong state or bad input
	KindError    Kind = "error"    // Provider failed or timed out
)

// Request is a parsed chat command.
type Request struct {
	Command string
	Args    string
	User    string // Display name of the chat user
}

// Reply is what the chat integration renders back to the user.
type Reply struct {
	Kind    Kind
	Code    string // Message code, e.g. "queued", "not_playing"
	Message string

	Track    *track.Track       // Track started, queued or skipped to
	Position int                // 1-based queue position for a queued track
	Status   *playback.Snapshot // Set for queue and after state changes
}

// OK reports whether the command was applied.
func (r Reply) OK() bool {
	return r.Kind == KindOK
}

// Parse splits a raw chat line such as "!play never gonna" into a Request.
// A leading "!" or "/" is ignored and the command name is case-insensitive.
func Parse(line, user string) Request {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "!/")

	name, args, _ := strings.Cut(line, " ")
	return Request{
		Command: strings.ToLower(name),
		Args:    strings.TrimSpace(args),
		User:    user,
	}
}
