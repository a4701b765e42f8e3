package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/domain/track"
)

// Error classes. Use errors.Is against these to decide how to report a failure.
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrEmptyResult       = errors.New("empty result")
	ErrProviderFailure   = errors.New("provider failure")
	ErrTimeout           = errors.New("provider timeout")
)

// Errors. Returned marked with ErrInvalidTransition.
var (
	ErrNotPlaying     = errors.New("not playing")
	ErrNotPaused      = errors.New("not paused")
	ErrNothingPlaying = errors.New("nothing playing")
)

// Config holds controller configuration.
type Config struct {
	ProviderTimeout     time.Duration // Bound for a single provider call (0 = no bound)
	MirrorProviderQueue bool          // Also push queued tracks to the provider's own queue
	EventBuffer         int           // Event channel capacity
}

// PlayResult describes what RequestPlay did with the track.
type PlayResult struct {
	Started  bool // Track started immediately
	Position int  // 1-based queue position when not started
}

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	State         State
	Current       *track.Track
	Upcoming      []track.Track
	TotalDuration time.Duration // Sum of upcoming track durations
}

// Controller owns the playback state and the queue of upcoming tracks.
// Every public operation runs under one lock, provider call included,
// and commits its mutation only after the provider call succeeded.
type Controller struct {
	mu sync.Mutex

	queue   *Queue
	state   State
	current *track.Track

	provider Provider
	config   Config

	// Events
	eventCh chan Event

	// Context
	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a new playback controller in the idle state.
func NewController(provider Provider, config Config) *Controller {
	if config.EventBuffer <= 0 {
		config.EventBuffer = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		queue:    NewQueue(),
		state:    StateIdle,
		provider: provider,
		config:   config,
		eventCh:  make(chan Event, config.EventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// RequestPlay starts t when idle, otherwise appends it to the queue.
func (c *Controller) RequestPlay(ctx context.Context, t track.Track) (PlayResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		if err := c.call(ctx, "start playback", func(ctx context.Context) error {
			return c.provider.StartPlayback(ctx, t)
		}); err != nil {
			return PlayResult{}, err
		}

		c.current = &t
		c.state = StatePlaying
		zlog.Info().Msgf("playback: started: track=%s id=%s", t.Name, t.ID)
		c.sendEventLocked(EventTrackStarted, c.current)
		return PlayResult{Started: true}, nil
	}

	if c.config.MirrorProviderQueue {
		if err := c.call(ctx, "add to queue", func(ctx context.Context) error {
			return c.provider.AddToQueue(ctx, t)
		}); err != nil {
			return PlayResult{}, err
		}
	}

	c.queue.Enqueue(t)
	zlog.Info().Msgf("playback: queued: track=%s id=%s position=%d", t.Name, t.ID, c.queue.Len())
	c.sendEventLocked(EventTrackQueued, &t)
	return PlayResult{Position: c.queue.Len()}, nil
}

// Skip abandons the current track and starts the next queued one.
// It returns the started track, or nil when the queue was exhausted and playback went idle.
// Exhausting the queue while paused does not call the provider.
func (c *Controller) Skip(ctx context.Context) (*track.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		return nil, invalidTransition(ErrNothingPlaying)
	}

	skipped := c.current

	next, ok := c.queue.Peek()
	if !ok {
		// A paused provider is already silent
		if c.state == StatePlaying {
			if err := c.call(ctx, "pause playback", c.provider.PausePlayback); err != nil {
				return nil, err
			}
		}

		c.current = nil
		c.state = StateIdle
		zlog.Info().Msg("playback: skipped last track, queue exhausted")
		c.sendEventLocked(EventTrackSkipped, skipped)
		c.sendEventLocked(EventQueueEmpty, nil)
		return nil, nil
	}

	if err := c.call(ctx, "start playback", func(ctx context.Context) error {
		return c.provider.StartPlayback(ctx, next)
	}); err != nil {
		return nil, err
	}

	c.queue.DequeueHead()
	c.current = &next
	c.state = StatePlaying
	zlog.Info().Msgf("playback: skipped to: track=%s id=%s remaining=%d", next.Name, next.ID, c.queue.Len())
	c.sendEventLocked(EventTrackSkipped, skipped)
	c.sendEventLocked(EventTrackStarted, c.current)

	started := next
	return &started, nil
}

// Pause pauses the current playback.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlaying {
		return invalidTransition(ErrNotPlaying)
	}

	if err := c.call(ctx, "pause playback", c.provider.PausePlayback); err != nil {
		return err
	}

	c.state = StatePaused
	zlog.Info().Msg("playback: paused")
	c.sendEventLocked(EventStateChanged, c.current)
	return nil
}

// Resume resumes paused playback.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePaused {
		return invalidTransition(ErrNotPaused)
	}

	if err := c.call(ctx, "resume playback", c.provider.ResumePlayback); err != nil {
		return err
	}

	c.state = StatePlaying
	zlog.Info().Msg("playback: resumed")
	c.sendEventLocked(EventStateChanged, c.current)
	return nil
}

// Stop clears the queue and pauses the provider.
// From idle the provider is not called; only the queue is cleared.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Active() {
		if err := c.call(ctx, "pause playback", c.provider.PausePlayback); err != nil {
			return err
		}
	}

	removed := c.queue.Len()
	c.queue.Clear()
	c.current = nil
	c.state = StateIdle
	zlog.Info().Msgf("playback: stopped: cleared=%d", removed)
	c.sendEventLocked(EventQueueCleared, nil)
	return nil
}

// InspectQueue returns a copy of the upcoming tracks in play order.
func (c *Controller) InspectQueue() []track.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.PeekAll()
}

// Status returns a consistent snapshot of state, current track and queue.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current *track.Track
	if c.current != nil {
		cp := *c.current
		current = &cp
	}
	return Snapshot{
		State:         c.state,
		Current:       current,
		Upcoming:      c.queue.PeekAll(),
		TotalDuration: c.queue.TotalDuration(),
	}
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentTrack returns the track held by the provider.
func (c *Controller) CurrentTrack() (*track.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil, false
	}
	cp := *c.current
	return &cp, true
}

// GetAllTracks returns the current track followed by the queued tracks.
// Implements filter.QueueManager interface.
func (c *Controller) GetAllTracks() []track.Track {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]track.Track, 0, c.queue.Len()+1)
	if c.current != nil {
		result = append(result, *c.current)
	}
	return append(result, c.queue.PeekAll()...)
}

// Close stops event delivery and releases resources.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.ctx.Done():
		return
	default:
	}
	c.cancel()
	close(c.eventCh)
}

func invalidTransition(err error) error {
	return errors.Mark(err, ErrInvalidTransition)
}

// call wraps a provider call with the configured timeout and logs failures.
// Must be called with lock held.
func (c *Controller) call(ctx context.Context, op string, fn func(context.Context) error) error {
	err := CallProvider(ctx, c.config.ProviderTimeout, op, fn)
	if err != nil {
		zlog.Warn().Err(err).Msgf("playback: %s failed, state kept at %s", op, c.state)
	}
	return err
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(typ EventType, t *track.Track) {
	select {
	case <-c.ctx.Done():
		// Closed, don't send
		return
	default:
	}

	var tr *track.Track
	if t != nil {
		cp := *t
		tr = &cp
	}

	select {
	case c.eventCh <- Event{Type: typ, Track: tr, State: c.state, QueueSize: c.queue.Len()}:
	default:
		zlog.Debug().Msgf("playback: event channel full, dropping %s", typ)
	}
}
