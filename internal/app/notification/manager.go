// Package notification provides the notification manager for broadcasting events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/app/playback"
	"github.com/osa030/jukebot/internal/domain/track"
)

// Notification is a playback event as delivered to subscribers.
type Notification struct {
	SequenceNo uint64
	Type       playback.EventType
	State      playback.State
	Track      *track.Track
	QueueSize  int
	Time       time.Time
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sendTimeout   time.Duration

	sequenceNo   uint64
	sequenceNoMu sync.Mutex

	done     chan struct{}
	doneOnce sync.Once
}

// NewManager creates a new notification manager.
// sendTimeout bounds how long a broadcast waits on one subscriber (0 = 500ms).
func NewManager(sendTimeout time.Duration) *Manager {
	if sendTimeout <= 0 {
		sendTimeout = 500 * time.Millisecond
	}
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   sendTimeout,
		done:          make(chan struct{}),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	zlog.Debug().Msgf("notification: subscribed: id=%s total=%d", id, len(m.subscriptions))
	return id
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast stamps n with the next sequence number and sends it to all subscribers.
// Sends run in parallel, each bounded by the send timeout.
// A subscriber whose send fails is dropped.
func (m *Manager) Broadcast(n Notification) {
	n.SequenceNo = m.NextSequenceNo()
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: dropping subscriber %s: %v", s.id, err)
					m.Unsubscribe(s.id)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send to %s timed out, seq=%d skipped", s.id, n.SequenceNo)
			}
		}(sub)
	}

	wg.Wait()
}

// Forward broadcasts every controller event until ctx is cancelled or events is closed.
// Done is closed when Forward returns.
func (m *Manager) Forward(ctx context.Context, events <-chan playback.Event) {
	defer m.doneOnce.Do(func() { close(m.done) })

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.Broadcast(Notification{
				Type:      ev.Type,
				State:     ev.State,
				Track:     ev.Track,
				QueueSize: ev.QueueSize,
			})
		}
	}
}

// Done is closed once Forward has stopped delivering events.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
	m.doneOnce.Do(func() { close(m.done) })
}
