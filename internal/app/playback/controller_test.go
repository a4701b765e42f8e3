package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/jukebot/internal/domain/track"
)

// fakeProvider records provider calls and fails the ops listed in failOn.
type fakeProvider struct {
	mu      sync.Mutex
	calls   []string
	failOn  map[string]error
	blockOn map[string]bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		failOn:  make(map[string]error),
		blockOn: make(map[string]bool),
	}
}

func (p *fakeProvider) do(ctx context.Context, op string) error {
	p.mu.Lock()
	p.calls = append(p.calls, op)
	err := p.failOn[op]
	block := p.blockOn[op]
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (p *fakeProvider) StartPlayback(ctx context.Context, t track.Track) error {
	return p.do(ctx, "start:"+t.ID)
}

func (p *fakeProvider) PausePlayback(ctx context.Context) error {
	return p.do(ctx, "pause")
}

func (p *fakeProvider) ResumePlayback(ctx context.Context) error {
	return p.do(ctx, "resume")
}

func (p *fakeProvider) AddToQueue(ctx context.Context, t track.Track) error {
	return p.do(ctx, "queue:"+t.ID)
}

func (p *fakeProvider) fail(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOn[op] = err
}

func (p *fakeProvider) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func newTestController(t *testing.T) (*Controller, *fakeProvider) {
	t.Helper()
	p := newFakeProvider()
	c := NewController(p, Config{ProviderTimeout: time.Second, EventBuffer: 64})
	t.Cleanup(c.Close)
	return c, p
}

func ctx() context.Context {
	return context.Background()
}

func TestController_RequestPlayFromIdleStarts(t *testing.T) {
	c, p := newTestController(t)

	result, err := c.RequestPlay(ctx(), newTrack("a"))
	require.NoError(t, err)

	assert.True(t, result.Started)
	assert.Equal(t, StatePlaying, c.State())
	assert.Empty(t, c.InspectQueue(), "the started track must not be queued")
	assert.Equal(t, []string{"start:a"}, p.recorded())

	current, ok := c.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "a", current.ID)
}

func TestController_RequestPlayWhileActiveQueues(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *Controller)
		state State
	}{
		{
			name:  "playing",
			setup: func(c *Controller) {},
			state: StatePlaying,
		},
		{
			name:  "paused",
			setup: func(c *Controller) { _ = c.Pause(ctx()) },
			state: StatePaused,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, p := newTestController(t)
			_, err := c.RequestPlay(ctx(), newTrack("a"))
			require.NoError(t, err)
			tt.setup(c)
			callsBefore := len(p.recorded())

			result, err := c.RequestPlay(ctx(), newTrack("b"))
			require.NoError(t, err)
			assert.False(t, result.Started)
			assert.Equal(t, 1, result.Position)

			result, err = c.RequestPlay(ctx(), newTrack("c"))
			require.NoError(t, err)
			assert.Equal(t, 2, result.Position)

			assert.Equal(t, tt.state, c.State())
			assert.Equal(t, []string{"b", "c"}, trackIDs(c.InspectQueue()))
			assert.Len(t, p.recorded(), callsBefore, "queueing must not call the provider")
		})
	}
}

func TestController_MirrorProviderQueue(t *testing.T) {
	p := newFakeProvider()
	c := NewController(p, Config{MirrorProviderQueue: true})
	defer c.Close()

	_, err := c.RequestPlay(ctx(), newTrack("a"))
	require.NoError(t, err)
	_, err = c.RequestPlay(ctx(), newTrack("b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"start:a", "queue:b"}, p.recorded())

	p.fail("queue:c", errors.New("503 Service Unavailable"))
	_, err = c.RequestPlay(ctx(), newTrack("c"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderFailure))
	assert.Equal(t, []string{"b"}, trackIDs(c.InspectQueue()), "failed mirror must not enqueue")
}

func TestController_Skip(t *testing.T) {
	t.Run("non-empty queue starts head", func(t *testing.T) {
		c, p := newTestController(t)
		_, _ = c.RequestPlay(ctx(), newTrack("a"))
		_, _ = c.RequestPlay(ctx(), newTrack("b"))
		_, _ = c.RequestPlay(ctx(), newTrack("c"))

		next, err := c.Skip(ctx())
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, "b", next.ID)
		assert.Equal(t, StatePlaying, c.State())
		assert.Equal(t, []string{"c"}, trackIDs(c.InspectQueue()))
		assert.Equal(t, []string{"start:a", "start:b"}, p.recorded())
	})

	t.Run("empty queue goes idle", func(t *testing.T) {
		c, p := newTestController(t)
		_, _ = c.RequestPlay(ctx(), newTrack("a"))

		next, err := c.Skip(ctx())
		require.NoError(t, err)
		assert.Nil(t, next)
		assert.Equal(t, StateIdle, c.State())
		assert.Empty(t, c.InspectQueue())
		assert.Equal(t, []string{"start:a", "pause"}, p.recorded())

		_, ok := c.CurrentTrack()
		assert.False(t, ok)
	})

	t.Run("from paused resumes with next track", func(t *testing.T) {
		c, _ := newTestController(t)
		_, _ = c.RequestPlay(ctx(), newTrack("a"))
		_, _ = c.RequestPlay(ctx(), newTrack("b"))
		require.NoError(t, c.Pause(ctx()))

		next, err := c.Skip(ctx())
		require.NoError(t, err)
		assert.Equal(t, "b", next.ID)
		assert.Equal(t, StatePlaying, c.State())
	})

	t.Run("from paused with empty queue goes idle without provider call", func(t *testing.T) {
		c, p := newTestController(t)
		_, _ = c.RequestPlay(ctx(), newTrack("a"))
		require.NoError(t, c.Pause(ctx()))
		p.fail("pause", errors.New("player command failed: restriction violated"))
		callsBefore := len(p.recorded())

		next, err := c.Skip(ctx())
		require.NoError(t, err)
		assert.Nil(t, next)
		assert.Equal(t, StateIdle, c.State())
		assert.Len(t, p.recorded(), callsBefore)

		_, ok := c.CurrentTrack()
		assert.False(t, ok)
	})

	t.Run("idle is invalid", func(t *testing.T) {
		c, p := newTestController(t)

		_, err := c.Skip(ctx())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		assert.True(t, errors.Is(err, ErrNothingPlaying))
		assert.Equal(t, StateIdle, c.State())
		assert.Empty(t, p.recorded())
	})
}

func TestController_PauseResume(t *testing.T) {
	c, p := newTestController(t)
	_, _ = c.RequestPlay(ctx(), newTrack("a"))

	require.NoError(t, c.Pause(ctx()))
	assert.Equal(t, StatePaused, c.State())

	require.NoError(t, c.Resume(ctx()))
	assert.Equal(t, StatePlaying, c.State())

	assert.Equal(t, []string{"start:a", "pause", "resume"}, p.recorded())
}

func TestController_PauseOnlyFromPlaying(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *Controller)
		state State
	}{
		{name: "idle", setup: func(c *Controller) {}, state: StateIdle},
		{
			name: "paused",
			setup: func(c *Controller) {
				_, _ = c.RequestPlay(ctx(), newTrack("a"))
				_ = c.Pause(ctx())
			},
			state: StatePaused,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, p := newTestController(t)
			tt.setup(c)
			callsBefore := len(p.recorded())

			err := c.Pause(ctx())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.True(t, errors.Is(err, ErrNotPlaying))
			assert.False(t, errors.Is(err, ErrNotPaused))
			assert.Equal(t, tt.state, c.State())
			assert.Len(t, p.recorded(), callsBefore)
		})
	}
}

func TestController_ResumeOnlyFromPaused(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *Controller)
		state State
	}{
		{name: "idle", setup: func(c *Controller) {}, state: StateIdle},
		{
			name:  "playing",
			setup: func(c *Controller) { _, _ = c.RequestPlay(ctx(), newTrack("a")) },
			state: StatePlaying,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, p := newTestController(t)
			tt.setup(c)
			callsBefore := len(p.recorded())

			err := c.Resume(ctx())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.True(t, errors.Is(err, ErrNotPaused))
			assert.Equal(t, tt.state, c.State())
			assert.Len(t, p.recorded(), callsBefore)
		})
	}
}

func TestController_Stop(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(c *Controller)
		wantPause bool
	}{
		{name: "idle", setup: func(c *Controller) {}, wantPause: false},
		{
			name: "playing with queue",
			setup: func(c *Controller) {
				_, _ = c.RequestPlay(ctx(), newTrack("a"))
				_, _ = c.RequestPlay(ctx(), newTrack("b"))
			},
			wantPause: true,
		},
		{
			name: "paused with queue",
			setup: func(c *Controller) {
				_, _ = c.RequestPlay(ctx(), newTrack("a"))
				_, _ = c.RequestPlay(ctx(), newTrack("b"))
				_ = c.Pause(ctx())
			},
			wantPause: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, p := newTestController(t)
			tt.setup(c)
			callsBefore := len(p.recorded())

			require.NoError(t, c.Stop(ctx()))
			assert.Equal(t, StateIdle, c.State())
			assert.Empty(t, c.InspectQueue())

			calls := p.recorded()[callsBefore:]
			if tt.wantPause {
				assert.Equal(t, []string{"pause"}, calls)
			} else {
				assert.Empty(t, calls)
			}
		})
	}
}

func TestController_StopIsIdempotent(t *testing.T) {
	once, _ := newTestController(t)
	twice, _ := newTestController(t)
	for _, c := range []*Controller{once, twice} {
		_, _ = c.RequestPlay(ctx(), newTrack("a"))
		_, _ = c.RequestPlay(ctx(), newTrack("b"))
	}

	require.NoError(t, once.Stop(ctx()))
	require.NoError(t, twice.Stop(ctx()))
	require.NoError(t, twice.Stop(ctx()))

	assert.Equal(t, once.Status(), twice.Status())
}

func TestController_Scenario(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.RequestPlay(ctx(), newTrack("A"))
	require.NoError(t, err)
	assert.Equal(t, StatePlaying, c.State())
	assert.Empty(t, c.InspectQueue())

	_, err = c.RequestPlay(ctx(), newTrack("B"))
	require.NoError(t, err)
	assert.Equal(t, StatePlaying, c.State())
	assert.Equal(t, []string{"B"}, trackIDs(c.InspectQueue()))

	next, err := c.Skip(ctx())
	require.NoError(t, err)
	assert.Equal(t, "B", next.ID)
	assert.Equal(t, StatePlaying, c.State())
	assert.Empty(t, c.InspectQueue())
	current, _ := c.CurrentTrack()
	assert.Equal(t, "B", current.ID)

	next, err = c.Skip(ctx())
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.InspectQueue())
}

func TestController_ProviderFailureRollsBack(t *testing.T) {
	providerErr := errors.New("401 The access token expired")

	t.Run("request play from idle", func(t *testing.T) {
		c, p := newTestController(t)
		p.fail("start:a", providerErr)

		_, err := c.RequestPlay(ctx(), newTrack("a"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrProviderFailure))
		assert.False(t, errors.Is(err, ErrTimeout))
		assert.Equal(t, StateIdle, c.State())
		assert.Empty(t, c.InspectQueue())
		_, ok := c.CurrentTrack()
		assert.False(t, ok)
	})

	t.Run("skip keeps head queued", func(t *testing.T) {
		c, p := newTestController(t)
		_, _ = c.RequestPlay(ctx(), newTrack("a"))
		_, _ = c.RequestPlay(ctx(), newTrack("b"))
		p.fail("start:b", providerErr)

		_, err := c.Skip(ctx())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrProviderFailure))
		assert.Equal(t, StatePlaying, c.State())
		assert.Equal(t, []string{"b"}, trackIDs(c.InspectQueue()))
		current, _ := c.CurrentTrack()
		assert.Equal(t, "a", current.ID)
	})

	t.Run("skip on empty queue stays playing", func(t *testing.T) {
		c, p := newTestController(t)
		_, _ = c.RequestPlay(ctx(), newTrack("a"))
		p.fail("pause", providerErr)

		_, err := c.Skip(ctx())
		require.Error(t, err)
		assert.Equal(t, StatePlaying, c.State())
	})

	t.Run("pause", func(t *testing.T) {
		c, p := newTestController(t)
		_, _ = c.RequestPlay(ctx(), newTrack("a"))
		p.fail("pause", providerErr)

		require.Error(t, c.Pause(ctx()))
		assert.Equal(t, StatePlaying, c.State())
	})

	t.Run("resume", func(t *testing.T) {
		c, p := newTestController(t)
		_, _ = c.RequestPlay(ctx(), newTrack("a"))
		_ = c.Pause(ctx())
		p.fail("resume", providerErr)

		require.Error(t, c.Resume(ctx()))
		assert.Equal(t, StatePaused, c.State())
	})

	t.Run("stop keeps queue", func(t *testing.T) {
		c, p := newTestController(t)
		_, _ = c.RequestPlay(ctx(), newTrack("a"))
		_, _ = c.RequestPlay(ctx(), newTrack("b"))
		p.fail("pause", providerErr)

		require.Error(t, c.Stop(ctx()))
		assert.Equal(t, StatePlaying, c.State())
		assert.Equal(t, []string{"b"}, trackIDs(c.InspectQueue()))
	})
}

func TestController_ProviderTimeout(t *testing.T) {
	p := newFakeProvider()
	p.blockOn["start:a"] = true
	c := NewController(p, Config{ProviderTimeout: 20 * time.Millisecond})
	defer c.Close()

	start := time.Now()
	_, err := c.RequestPlay(ctx(), newTrack("a"))
	require.Error(t, err)
	assert.True(t, time.Since(start) < 5*time.Second)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, errors.Is(err, ErrProviderFailure))
	assert.Equal(t, StateIdle, c.State())

	// The controller is usable again after a timeout.
	_, err = c.RequestPlay(ctx(), newTrack("b"))
	require.NoError(t, err)
	assert.Equal(t, StatePlaying, c.State())
}

func TestController_Events(t *testing.T) {
	c, _ := newTestController(t)

	_, _ = c.RequestPlay(ctx(), newTrack("a"))
	_, _ = c.RequestPlay(ctx(), newTrack("b"))
	_ = c.Pause(ctx())
	_, _ = c.Skip(ctx())
	_ = c.Stop(ctx())

	expected := []EventType{
		EventTrackStarted,
		EventTrackQueued,
		EventStateChanged,
		EventTrackSkipped,
		EventTrackStarted,
		EventQueueCleared,
	}
	for i, want := range expected {
		select {
		case e := <-c.Events():
			assert.Equal(t, want, e.Type, "event %d", i)
		case <-time.After(time.Second):
			t.Fatalf("missing event %d (%s)", i, want)
		}
	}
}

func TestController_ConcurrentCommands(t *testing.T) {
	c, _ := newTestController(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0, 1:
				_, _ = c.RequestPlay(ctx(), newTrack("x"))
			case 2:
				_, _ = c.Skip(ctx())
			case 3:
				_ = c.InspectQueue()
			}
		}(i)
	}
	wg.Wait()

	status := c.Status()
	if status.State == StateIdle {
		assert.Nil(t, status.Current)
	} else {
		assert.NotNil(t, status.Current)
	}
}

func TestController_CloseIsIdempotent(t *testing.T) {
	c := NewController(newFakeProvider(), Config{})
	c.Close()
	c.Close()

	_, err := c.RequestPlay(ctx(), newTrack("a"))
	require.NoError(t, err, "commands still work after close, events are just not delivered")
}
