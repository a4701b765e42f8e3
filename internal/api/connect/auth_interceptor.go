package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
)

const (
	// BotTokenHeader is the header name for the bot authentication token.
	BotTokenHeader = "X-Bot-Token"
)

// botTokenInterceptor rejects requests that do not carry the shared bot token.
// It covers unary calls and the event stream alike.
type botTokenInterceptor struct {
	token string
}

// NewBotTokenInterceptor creates an interceptor that validates the bot token
// from request headers. An empty token disables the check.
func NewBotTokenInterceptor(token string) connect.Interceptor {
	return &botTokenInterceptor{token: token}
}

func (i *botTokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if err := i.check(req.Header().Get(BotTokenHeader)); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *botTokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *botTokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := i.check(conn.RequestHeader().Get(BotTokenHeader)); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *botTokenInterceptor) check(token string) error {
	if i.token == "" {
		return nil
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) != 1 {
		return connect.NewError(connect.CodeUnauthenticated, nil)
	}
	return nil
}
