// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/app/command"
	"github.com/osa030/jukebot/internal/app/notification"
	"github.com/osa030/jukebot/internal/app/playback"
)

const (
	// CommandServiceName is the fully-qualified name of the CommandService service.
	CommandServiceName = "jukebot.v1.CommandService"

	// CommandServiceDispatchProcedure is the procedure name of CommandService.Dispatch.
	CommandServiceDispatchProcedure = "/jukebot.v1.CommandService/Dispatch"
	// CommandServiceSubscribeEventsProcedure is the procedure name of CommandService.SubscribeEvents.
	CommandServiceSubscribeEventsProcedure = "/jukebot.v1.CommandService/SubscribeEvents"
)

// Dispatcher runs chat commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request) command.Reply
}

// StatusSource exposes the playback snapshot.
type StatusSource interface {
	Status() playback.Snapshot
}

// CommandService implements the CommandService RPC.
type CommandService struct {
	dispatcher    Dispatcher
	status        StatusSource
	notifications *notification.Manager
}

// NewCommandService creates a new CommandService.
func NewCommandService(dispatcher Dispatcher, status StatusSource, notifications *notification.Manager) *CommandService {
	return &CommandService{
		dispatcher:    dispatcher,
		status:        status,
		notifications: notifications,
	}
}

// Dispatch handles one chat command.
// Command outcomes, failures included, travel in the response; RPC errors mean bad input.
func (s *CommandService) Dispatch(
	ctx context.Context,
	req *connect.Request[DispatchRequest],
) (*connect.Response[DispatchResponse], error) {
	if strings.TrimSpace(req.Msg.Command) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, nil)
	}

	reply := s.dispatcher.Dispatch(ctx, command.Request{
		Command: req.Msg.Command,
		Args:    req.Msg.Args,
		User:    req.Msg.User,
	})

	status := s.status.Status()
	if reply.Status != nil {
		status = *reply.Status
	}
	return connect.NewResponse(toDispatchResponse(reply, status)), nil
}

// SubscribeEvents streams playback notifications, starting with the current state.
func (s *CommandService) SubscribeEvents(
	ctx context.Context,
	req *connect.Request[SubscribeEventsRequest],
	stream *connect.ServerStream[Notification],
) error {
	status := s.status.Status()
	initial := &Notification{
		SequenceNo: s.notifications.NextSequenceNo(),
		Type:       NotificationTypeInitialState,
		State:      status.State.String(),
		Track:      toTrackInfo(status.Current),
		QueueSize:  len(status.Upcoming),
		Time:       time.Now(),
	}
	if err := stream.Send(initial); err != nil {
		return err
	}

	adapter := &notificationStreamAdapter{stream: stream}
	subscriptionID := s.notifications.Subscribe(adapter)
	zlog.Info().Msgf("subscriber connected: id=%s peer=%s", subscriptionID, req.Peer().Addr)

	// Wait for the client to leave or event delivery to end
	select {
	case <-ctx.Done():
	case <-s.notifications.Done():
	}

	s.notifications.Unsubscribe(subscriptionID)
	// A broadcast send that outlived its timeout must not write after the handler returns
	adapter.close()
	zlog.Info().Msgf("subscriber disconnected: id=%s", subscriptionID)
	return nil
}

// NewCommandServiceHandler builds an HTTP handler for the service and returns the path to mount it on.
func NewCommandServiceHandler(svc *CommandService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	dispatch := connect.NewUnaryHandler(
		CommandServiceDispatchProcedure,
		svc.Dispatch,
		opts...,
	)
	subscribe := connect.NewServerStreamHandler(
		CommandServiceSubscribeEventsProcedure,
		svc.SubscribeEvents,
		opts...,
	)

	return "/" + CommandServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case CommandServiceDispatchProcedure:
			dispatch.ServeHTTP(w, r)
		case CommandServiceSubscribeEventsProcedure:
			subscribe.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// errStreamClosed is returned by sends after the subscriber's handler has returned.
var errStreamClosed = errors.New("notification stream closed")

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// A send that outlived its broadcast timeout may still be running, so sends are
// serialized with each other and with close.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[Notification]
	closed bool
}

func (a *notificationStreamAdapter) Send(n notification.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errStreamClosed
	}
	return a.stream.Send(toNotification(n))
}

// close waits for an in-flight send and rejects later ones.
func (a *notificationStreamAdapter) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}
