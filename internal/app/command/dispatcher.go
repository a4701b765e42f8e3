package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/app/filter"
	"github.com/osa030/jukebot/internal/app/playback"
	"github.com/osa030/jukebot/internal/domain/track"
)

// Errors. Returned marked with playback.ErrEmptyResult.
var (
	ErrTrackNotFound = errors.New("track not found")
	ErrQueueEmpty    = errors.New("queue empty")
)

// Searcher resolves a query to tracks.
// GetTrack returns (nil, nil) for a track that does not exist.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
	GetTrack(ctx context.Context, trackID string) (*track.Track, error)
}

// Player is the part of playback.Controller the dispatcher drives.
type Player interface {
	RequestPlay(ctx context.Context, t track.Track) (playback.PlayResult, error)
	Skip(ctx context.Context) (*track.Track, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() playback.Snapshot
}

// Messages resolves a message code to user-facing text.
type Messages interface {
	GetMessage(code string) string
}

// IsTrackReference reports whether a play argument names a track directly.
type IsTrackReference func(query string) bool

// Config holds dispatcher configuration.
type Config struct {
	SearchLimit   int           // Results fetched per search
	SearchTimeout time.Duration // Bound for a search call (0 = no bound)
	IsReference   IsTrackReference
}

// Dispatcher turns chat commands into controller calls and replies.
type Dispatcher struct {
	player   Player
	searcher Searcher
	filters  *filter.Chain
	messages Messages
	config   Config
}

// NewDispatcher creates a new dispatcher. A nil chain accepts every track.
func NewDispatcher(player Player, searcher Searcher, filters *filter.Chain, messages Messages, config Config) *Dispatcher {
	if filters == nil {
		filters = filter.NewChain()
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = 5
	}
	return &Dispatcher{
		player:   player,
		searcher: searcher,
		filters:  filters,
		messages: messages,
		config:   config,
	}
}

// Dispatch runs one command. Every failure is classified into the reply.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Reply {
	name := strings.ToLower(strings.TrimSpace(req.Command))

	var reply Reply
	switch name {
	case Play:
		reply = d.play(ctx, req)
	case Queue:
		reply = d.queue()
	case Skip:
		reply = d.skip(ctx)
	case Stop:
		reply = d.apply(d.player.Stop(ctx), "stopped")
	case Pause:
		reply = d.apply(d.player.Pause(ctx), "paused")
	case Resume:
		reply = d.apply(d.player.Resume(ctx), "resumed")
	case Help:
		reply = Reply{Kind: KindOK, Code: "help", Message: HelpText()}
	default:
		reply = d.reply(KindInvalid, "unknown_command")
	}

	zlog.Info().Msgf("command: user=%s command=%s args=%q kind=%s code=%s", req.User, name, req.Args, reply.Kind, reply.Code)
	return reply
}

func (d *Dispatcher) play(ctx context.Context, req Request) Reply {
	query := strings.TrimSpace(req.Args)
	if query == "" {
		return d.reply(KindInvalid, "missing_query")
	}

	t, err := d.resolve(ctx, query)
	if err != nil {
		return d.failure(err)
	}

	result := d.filters.Execute(ctx, filter.Request{User: req.User, Query: query}, t)
	if !result.Accepted {
		zlog.Info().Msgf("command: track rejected: user=%s track=%s code=%s", req.User, t.ID, result.Code)
		reply := d.reply(KindRejected, result.Code)
		reply.Track = &t
		return reply
	}

	res, err := d.player.RequestPlay(ctx, t)
	if err != nil {
		return d.failure(err)
	}

	var reply Reply
	if res.Started {
		reply = d.reply(KindOK, "started")
		reply.Message = fmt.Sprintf("%s: %s", reply.Message, t.Title())
	} else {
		reply = d.reply(KindOK, "queued")
		reply.Message = fmt.Sprintf("%s: %s (#%d)", reply.Message, t.Title(), res.Position)
		reply.Position = res.Position
	}
	reply.Track = &t
	return reply
}

// resolve finds the track to play: a direct lookup for Spotify links,
// otherwise the first playable search result.
func (d *Dispatcher) resolve(ctx context.Context, query string) (track.Track, error) {
	var found []track.Track
	err := playback.CallProvider(ctx, d.config.SearchTimeout, "search", func(ctx context.Context) error {
		if d.config.IsReference != nil && d.config.IsReference(query) {
			t, err := d.searcher.GetTrack(ctx, query)
			if err != nil || t == nil {
				return err
			}
			found = []track.Track{*t}
			return nil
		}

		results, err := d.searcher.Search(ctx, query, d.config.SearchLimit)
		if err != nil {
			return err
		}
		found = results
		return nil
	})
	if err != nil {
		return track.Track{}, err
	}

	if len(found) == 0 {
		return track.Track{}, errors.Mark(errors.Wrapf(ErrTrackNotFound, "query %q", query), playback.ErrEmptyResult)
	}
	for _, t := range found {
		if t.IsPlayable == nil || *t.IsPlayable {
			return t, nil
		}
	}
	return found[0], nil
}

func (d *Dispatcher) queue() Reply {
	status := d.player.Status()
	if len(status.Upcoming) == 0 {
		err := errors.Mark(ErrQueueEmpty, playback.ErrEmptyResult)
		reply := d.failure(err)
		if status.Current != nil {
			reply.Message = fmt.Sprintf("%s\n%s", reply.Message, FormatQueue(status))
		}
		reply.Status = &status
		return reply
	}

	reply := Reply{Kind: KindOK, Code: "queue", Message: FormatQueue(status), Status: &status}
	return reply
}

func (d *Dispatcher) skip(ctx context.Context) Reply {
	next, err := d.player.Skip(ctx)
	if err != nil {
		return d.failure(err)
	}

	if next == nil {
		return d.reply(KindOK, "queue_exhausted")
	}
	reply := d.reply(KindOK, "skipped")
	reply.Message = fmt.Sprintf("%s. %s: %s", reply.Message, d.messages.GetMessage("started"), next.Title())
	reply.Track = next
	return reply
}

// apply renders the result of a command that returns no value.
func (d *Dispatcher) apply(err error, code string) Reply {
	if err != nil {
		return d.failure(err)
	}
	reply := d.reply(KindOK, code)
	status := d.player.Status()
	reply.Status = &status
	return reply
}

// failure classifies err into a reply.
func (d *Dispatcher) failure(err error) Reply {
	switch {
	case errors.Is(err, playback.ErrNotPlaying), errors.Is(err, playback.ErrNothingPlaying):
		return d.reply(KindInvalid, "not_playing")
	case errors.Is(err, playback.ErrNotPaused):
		return d.reply(KindInvalid, "not_paused")
	case errors.Is(err, playback.ErrInvalidTransition):
		return d.reply(KindInvalid, "default_error")
	case errors.Is(err, ErrQueueEmpty):
		return d.reply(KindInfo, "queue_empty")
	case errors.Is(err, playback.ErrEmptyResult):
		return d.reply(KindInfo, "track_not_found")
	case errors.Is(err, playback.ErrTimeout):
		zlog.Warn().Err(err).Msg("command: provider timed out")
		return d.reply(KindError, "timeout")
	case errors.Is(err, playback.ErrProviderFailure):
		zlog.Warn().Err(err).Msg("command: provider failed")
		return d.reply(KindError, "provider_failure")
	default:
		zlog.Error().Err(err).Msg("command: unexpected error")
		return d.reply(KindError, "default_error")
	}
}

func (d *Dispatcher) reply(kind Kind, code string) Reply {
	return Reply{Kind: kind, Code: code, Message: d.messages.GetMessage(code)}
}

// HelpText lists the available commands.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Available commands:")
	for _, def := range Definitions {
		usage := def.Name
		if def.Arg != "" {
			usage += " <" + def.Arg + ">"
		}
		fmt.Fprintf(&b, "\n  %-14s %s", usage, def.Description)
	}
	return b.String()
}

// FormatQueue renders the current track followed by the numbered upcoming tracks.
func FormatQueue(status playback.Snapshot) string {
	var b strings.Builder
	if status.Current != nil {
		fmt.Fprintf(&b, "%s: %s [%s]", status.State, status.Current.Title(), track.FormatDuration(status.Current.Duration))
	} else {
		fmt.Fprintf(&b, "%s", status.State)
	}

	if len(status.Upcoming) == 0 {
		return b.String()
	}

	fmt.Fprintf(&b, "\nUp next (%d, %s):", len(status.Upcoming), track.FormatDuration(status.TotalDuration))
	for i, t := range status.Upcoming {
		fmt.Fprintf(&b, "\n%d. %s [%s]", i+1, t.Title(), track.FormatDuration(t.Duration))
	}
	return b.String()
}
