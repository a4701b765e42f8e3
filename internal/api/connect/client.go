package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// CommandServiceClient is a client for the CommandService service.
type CommandServiceClient struct {
	dispatch  *connect.Client[DispatchRequest, DispatchResponse]
	subscribe *connect.Client[SubscribeEventsRequest, Notification]
	token     string
}

// NewCommandServiceClient constructs a client for the CommandService service.
// baseURL is the server root, e.g. http://localhost:8080. token is sent as X-Bot-Token when set.
func NewCommandServiceClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *CommandServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return &CommandServiceClient{
		dispatch: connect.NewClient[DispatchRequest, DispatchResponse](
			httpClient,
			baseURL+CommandServiceDispatchProcedure,
			opts...,
		),
		subscribe: connect.NewClient[SubscribeEventsRequest, Notification](
			httpClient,
			baseURL+CommandServiceSubscribeEventsProcedure,
			opts...,
		),
		token: token,
	}
}

// Dispatch calls jukebot.v1.CommandService.Dispatch.
func (c *CommandServiceClient) Dispatch(ctx context.Context, msg *DispatchRequest) (*DispatchResponse, error) {
	req := connect.NewRequest(msg)
	c.authorize(req.Header())
	resp, err := c.dispatch.CallUnary(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// SubscribeEvents calls jukebot.v1.CommandService.SubscribeEvents.
func (c *CommandServiceClient) SubscribeEvents(ctx context.Context) (*connect.ServerStreamForClient[Notification], error) {
	req := connect.NewRequest(&SubscribeEventsRequest{})
	c.authorize(req.Header())
	return c.subscribe.CallServerStream(ctx, req)
}

func (c *CommandServiceClient) authorize(header http.Header) {
	if c.token != "" {
		header.Set(BotTokenHeader, c.token)
	}
}
