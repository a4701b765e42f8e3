package command

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/jukebot/internal/app/filter"
	"github.com/osa030/jukebot/internal/app/playback"
	"github.com/osa030/jukebot/internal/domain/track"
)

// fakeProvider fails the ops listed in failOn and blocks on those in blockOn.
type fakeProvider struct {
	mu      sync.Mutex
	failOn  map[string]error
	blockOn map[string]bool
}

func (p *fakeProvider) do(ctx context.Context, op string) error {
	p.mu.Lock()
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
	return p.do(ctx, "start")
}

func (p *fakeProvider) PausePlayback(ctx context.Context) error {
	return p.do(ctx, "pause")
}

func (p *fakeProvider) ResumePlayback(ctx context.Context) error {
	return p.do(ctx, "resume")
}

func (p *fakeProvider) AddToQueue(ctx context.Context, t track.Track) error {
	return p.do(ctx, "queue")
}

// fakeSearcher resolves queries from a fixed catalog keyed by lower-case name.
type fakeSearcher struct {
	catalog   map[string]track.Track
	err       error
	block     bool
	lastLimit int
	lookups   []string
}

func (s *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	s.lastLimit = limit
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	var out []track.Track
	for name, t := range s.catalog {
		if strings.Contains(name, strings.ToLower(query)) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeSearcher) GetTrack(ctx context.Context, trackID string) (*track.Track, error) {
	s.lookups = append(s.lookups, trackID)
	for _, t := range s.catalog {
		if "spotify:track:"+t.ID == trackID {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

// codeMessages renders every message as its code.
type codeMessages struct{}

func (codeMessages) GetMessage(code string) string {
	return code
}

// rejectFilter rejects every track with a fixed code.
type rejectFilter struct{ code string }

func (f rejectFilter) Name() string                        { return "reject" }
func (f rejectFilter) Description() string                 { return "rejects everything" }
func (f rejectFilter) ReturnCodes() []string               { return []string{f.code} }
func (f rejectFilter) ValidateConfig(map[string]any) error { return nil }
func (f rejectFilter) Check(context.Context, filter.Request, track.Track) filter.Result {
	return filter.Reject(f.code)
}

func newTrack(id, name string) track.Track {
	return track.Track{
		ID:       id,
		URI:      "spotify:track:" + id,
		Name:     name,
		Artists:  []string{"Artist " + id},
		Duration: 3 * time.Minute,
	}
}

type fixture struct {
	dispatcher *Dispatcher
	controller *playback.Controller
	provider   *fakeProvider
	searcher   *fakeSearcher
}

func newFixture(t *testing.T, filters ...filter.Filter) *fixture {
	t.Helper()
	p := &fakeProvider{failOn: map[string]error{}, blockOn: map[string]bool{}}
	c := playback.NewController(p, playback.Config{ProviderTimeout: time.Second})
	t.Cleanup(c.Close)

	s := &fakeSearcher{catalog: map[string]track.Track{
		"never gonna give you up": newTrack("rick", "Never Gonna Give You Up"),
		"take on me":              newTrack("aha", "Take On Me"),
		"africa":                  newTrack("toto", "Africa"),
	}}

	d := NewDispatcher(c, s, filter.NewChain(filters...), codeMessages{}, Config{
		SearchLimit:   3,
		SearchTimeout: time.Second,
		IsReference:   func(q string) bool { return strings.HasPrefix(q, "spotify:track:") },
	})
	return &fixture{dispatcher: d, controller: c, provider: p, searcher: s}
}

func (f *fixture) run(line string) Reply {
	return f.dispatcher.Dispatch(context.Background(), Parse(line, "tester"))
}

func TestParse(t *testing.T) {
	tests := []struct {
		line    string
		command string
		args    string
	}{
		{"play take on me", "play", "take on me"},
		{"!PLAY   Take On Me  ", "play", "Take On Me"},
		{"/skip", "skip", ""},
		{"  queue", "queue", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			req := Parse(tt.line, "alice")
			assert.Equal(t, tt.command, req.Command)
			assert.Equal(t, tt.args, req.Args)
			assert.Equal(t, "alice", req.User)
		})
	}
}

func TestDispatch_PlayStartsThenQueues(t *testing.T) {
	f := newFixture(t)

	reply := f.run("play take on me")
	require.Equal(t, KindOK, reply.Kind)
	assert.Equal(t, "started", reply.Code)
	require.NotNil(t, reply.Track)
	assert.Equal(t, "aha", reply.Track.ID)
	assert.Contains(t, reply.Message, "Take On Me by Artist aha")
	assert.Equal(t, 3, f.searcher.lastLimit)

	reply = f.run("play africa")
	require.Equal(t, KindOK, reply.Kind)
	assert.Equal(t, "queued", reply.Code)
	assert.Equal(t, 1, reply.Position)
	assert.Contains(t, reply.Message, "(#1)")

	assert.Equal(t, playback.StatePlaying, f.controller.State())
	require.Len(t, f.controller.InspectQueue(), 1)
	assert.Equal(t, "toto", f.controller.InspectQueue()[0].ID)
}

func TestDispatch_PlayByTrackReference(t *testing.T) {
	f := newFixture(t)

	reply := f.run("play spotify:track:rick")
	require.Equal(t, KindOK, reply.Kind)
	assert.Equal(t, "rick", reply.Track.ID)
	assert.Equal(t, []string{"spotify:track:rick"}, f.searcher.lookups)

	reply = f.run("play spotify:track:missing")
	assert.Equal(t, KindInfo, reply.Kind)
	assert.Equal(t, "track_not_found", reply.Code)
}

func TestDispatch_PlaySkipsUnplayableResults(t *testing.T) {
	f := newFixture(t)
	unplayable := false
	blocked := newTrack("blocked", "Song A")
	blocked.IsPlayable = &unplayable
	f.searcher.catalog = map[string]track.Track{"song a": blocked}

	reply := f.run("play song")
	require.Equal(t, KindOK, reply.Kind, "falls back to the first result when none is playable")
	assert.Equal(t, "blocked", reply.Track.ID)
}

func TestDispatch_PlayErrors(t *testing.T) {
	t.Run("missing query", func(t *testing.T) {
		f := newFixture(t)
		reply := f.run("play   ")
		assert.Equal(t, KindInvalid, reply.Kind)
		assert.Equal(t, "missing_query", reply.Code)
	})

	t.Run("no results", func(t *testing.T) {
		f := newFixture(t)
		reply := f.run("play nothing matches this")
		assert.Equal(t, KindInfo, reply.Kind)
		assert.Equal(t, "track_not_found", reply.Code)
		assert.Equal(t, playback.StateIdle, f.controller.State())
	})

	t.Run("search failure", func(t *testing.T) {
		f := newFixture(t)
		f.searcher.err = errors.New("401 unauthorized")
		reply := f.run("play africa")
		assert.Equal(t, KindError, reply.Kind)
		assert.Equal(t, "provider_failure", reply.Code)
	})

	t.Run("search timeout", func(t *testing.T) {
		f := newFixture(t)
		f.dispatcher.config.SearchTimeout = 20 * time.Millisecond
		f.searcher.block = true
		reply := f.run("play africa")
		assert.Equal(t, KindError, reply.Kind)
		assert.Equal(t, "timeout", reply.Code)
	})

	t.Run("start failure leaves controller idle", func(t *testing.T) {
		f := newFixture(t)
		f.provider.failOn["start"] = errors.New("no active device")
		reply := f.run("play africa")
		assert.Equal(t, KindError, reply.Kind)
		assert.Equal(t, "provider_failure", reply.Code)
		assert.Equal(t, playback.StateIdle, f.controller.State())
		assert.Empty(t, f.controller.InspectQueue())
	})

	t.Run("filter rejection", func(t *testing.T) {
		f := newFixture(t, rejectFilter{code: "duplicate_track"})
		reply := f.run("play africa")
		assert.Equal(t, KindRejected, reply.Kind)
		assert.Equal(t, "duplicate_track", reply.Code)
		require.NotNil(t, reply.Track)
		assert.Equal(t, playback.StateIdle, f.controller.State())
	})
}

func TestDispatch_Queue(t *testing.T) {
	f := newFixture(t)

	reply := f.run("queue")
	assert.Equal(t, KindInfo, reply.Kind)
	assert.Equal(t, "queue_empty", reply.Code)

	f.run("play take on me")

	reply = f.run("queue")
	assert.Equal(t, KindInfo, reply.Kind, "nothing queued behind the current track")
	assert.Equal(t, "queue_empty", reply.Code)
	require.NotNil(t, reply.Status)
	require.NotNil(t, reply.Status.Current)
	assert.Equal(t, "aha", reply.Status.Current.ID)
	assert.Empty(t, reply.Status.Upcoming)
	assert.Contains(t, reply.Message, "playing: Take On Me by Artist aha [3:00]")

	f.run("play africa")
	f.run("play never gonna")

	reply = f.run("queue")
	require.Equal(t, KindOK, reply.Kind)
	require.NotNil(t, reply.Status)
	assert.Equal(t, "aha", reply.Status.Current.ID)
	require.Len(t, reply.Status.Upcoming, 2)

	lines := strings.Split(reply.Message, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "playing: Take On Me by Artist aha [3:00]", lines[0])
	assert.Equal(t, "Up next (2, 6:00):", lines[1])
	assert.Equal(t, "1. Africa by Artist toto [3:00]", lines[2])
	assert.Equal(t, "2. Never Gonna Give You Up by Artist rick [3:00]", lines[3])
}

func TestDispatch_Skip(t *testing.T) {
	f := newFixture(t)

	reply := f.run("skip")
	assert.Equal(t, KindInvalid, reply.Kind)
	assert.Equal(t, "not_playing", reply.Code)

	f.run("play take on me")
	f.run("play africa")

	reply = f.run("skip")
	require.Equal(t, KindOK, reply.Kind)
	assert.Equal(t, "skipped", reply.Code)
	assert.Equal(t, "toto", reply.Track.ID)

	reply = f.run("skip")
	assert.Equal(t, KindOK, reply.Kind)
	assert.Equal(t, "queue_exhausted", reply.Code)
	assert.Equal(t, playback.StateIdle, f.controller.State())
}

func TestDispatch_PauseResumeStop(t *testing.T) {
	f := newFixture(t)

	reply := f.run("pause")
	assert.Equal(t, KindInvalid, reply.Kind)
	assert.Equal(t, "not_playing", reply.Code)

	reply = f.run("resume")
	assert.Equal(t, KindInvalid, reply.Kind)
	assert.Equal(t, "not_paused", reply.Code)

	f.run("play take on me")
	f.run("play africa")

	reply = f.run("pause")
	require.Equal(t, KindOK, reply.Kind)
	assert.Equal(t, playback.StatePaused, reply.Status.State)

	reply = f.run("resume")
	require.Equal(t, KindOK, reply.Kind)
	assert.Equal(t, playback.StatePlaying, reply.Status.State)

	f.provider.failOn["pause"] = errors.New("502 bad gateway")
	reply = f.run("stop")
	assert.Equal(t, KindError, reply.Kind)
	assert.Len(t, f.controller.InspectQueue(), 1, "failed stop keeps the queue")

	delete(f.provider.failOn, "pause")
	reply = f.run("stop")
	require.Equal(t, KindOK, reply.Kind)
	assert.Equal(t, "stopped", reply.Code)
	assert.Equal(t, playback.StateIdle, reply.Status.State)
	assert.Empty(t, reply.Status.Upcoming)

	reply = f.run("stop")
	assert.Equal(t, KindOK, reply.Kind, "stop is idempotent")
}

func TestDispatch_HelpAndUnknown(t *testing.T) {
	f := newFixture(t)

	reply := f.run("help")
	require.Equal(t, KindOK, reply.Kind)
	for _, def := range Definitions {
		assert.Contains(t, reply.Message, def.Name)
	}
	assert.Contains(t, reply.Message, "play <query>")

	reply = f.run("dance")
	assert.Equal(t, KindInvalid, reply.Kind)
	assert.Equal(t, "unknown_command", reply.Code)
}

func TestFormatQueue_IdleWithUpcoming(t *testing.T) {
	msg := FormatQueue(playback.Snapshot{
		State:         playback.StateIdle,
		Upcoming:      []track.Track{newTrack("a", "A")},
		TotalDuration: 3 * time.Minute,
	})
	assert.Equal(t, "idle\nUp next (1, 3:00):\n1. A by Artist a [3:00]", msg)
}
