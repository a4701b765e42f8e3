package playback

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/jukebot/internal/domain/track"
)

// Provider is the external service that actually renders audio.
// Every call may fail with an auth, rate-limit or network error.
type Provider interface {
	StartPlayback(ctx context.Context, t track.Track) error
	PausePlayback(ctx context.Context) error
	ResumePlayback(ctx context.Context) error
	AddToQueue(ctx context.Context, t track.Track) error
}

// CallProvider runs fn under a timeout and classifies its failure.
// Any error is marked ErrProviderFailure; a hit deadline is also marked ErrTimeout.
func CallProvider(ctx context.Context, timeout time.Duration, op string, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := fn(ctx)
	if err == nil {
		return nil
	}

	wrapped := errors.Mark(errors.Wrapf(err, "provider %s", op), ErrProviderFailure)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		wrapped = errors.Mark(wrapped, ErrTimeout)
	}
	return wrapped
}
