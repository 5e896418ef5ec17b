package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps a connection to the daemon's control socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket. The connection is lazy;
// the first call reports an unreachable daemon.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

func call[T any](ctx context.Context, c *Client, method string, in any) (*T, error) {
	out := new(T)
	if err := c.invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListAccounts(ctx context.Context) (*ListAccountsResponse, error) {
	return call[ListAccountsResponse](ctx, c, "ListAccounts", &Empty{})
}

func (c *Client) CreateAccount(ctx context.Context, id string, name *string) (*AccountResponse, error) {
	return call[AccountResponse](ctx, c, "CreateAccount", &CreateAccountRequest{AccountID: id, Name: name})
}

func (c *Client) DeleteAccount(ctx context.Context, id string) error {
	return c.invoke(ctx, "DeleteAccount", &AccountRequest{AccountID: id}, new(Empty))
}

func (c *Client) StartAccount(ctx context.Context, id string) error {
	return c.invoke(ctx, "StartAccount", &AccountRequest{AccountID: id}, new(Empty))
}

func (c *Client) StopAccount(ctx context.Context, id string) error {
	return c.invoke(ctx, "StopAccount", &AccountRequest{AccountID: id}, new(Empty))
}

func (c *Client) RequestQrCode(ctx context.Context, id string) error {
	return c.invoke(ctx, "RequestQrCode", &AccountRequest{AccountID: id}, new(Empty))
}

func (c *Client) RefreshAccount(ctx context.Context, id string) error {
	return c.invoke(ctx, "RefreshAccount", &AccountRequest{AccountID: id}, new(Empty))
}

func (c *Client) RequestHistory(ctx context.Context, req *HistoryRequest) error {
	return c.invoke(ctx, "RequestHistory", req, new(Empty))
}

func (c *Client) GetContacts(ctx context.Context, id string) (*ContactsResponse, error) {
	return call[ContactsResponse](ctx, c, "GetContacts", &AccountRequest{AccountID: id})
}

func (c *Client) GetGroups(ctx context.Context, id string) (*GroupsResponse, error) {
	return call[GroupsResponse](ctx, c, "GetGroups", &AccountRequest{AccountID: id})
}

func (c *Client) GetMessages(ctx context.Context, req *GetMessagesRequest) (*MessagesResponse, error) {
	return call[MessagesResponse](ctx, c, "GetMessages", req)
}

func (c *Client) GetChats(ctx context.Context, id string) (*ChatsResponse, error) {
	return call[ChatsResponse](ctx, c, "GetChats", &AccountRequest{AccountID: id})
}

func (c *Client) GetChatPreviews(ctx context.Context, id string, limit int) (*ChatPreviewsResponse, error) {
	return call[ChatPreviewsResponse](ctx, c, "GetChatPreviews", &ChatPreviewsRequest{AccountID: id, Limit: limit})
}

func (c *Client) GetChatName(ctx context.Context, id, chatJID string) (*ChatNameResponse, error) {
	return call[ChatNameResponse](ctx, c, "GetChatName", &ChatNameRequest{AccountID: id, ChatJID: chatJID})
}

func (c *Client) SendMessage(ctx context.Context, id, to, content string) error {
	return c.invoke(ctx, "SendMessage", &SendMessageRequest{AccountID: id, To: to, Content: content}, new(Empty))
}

func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	return call[StatusResponse](ctx, c, "GetStatus", &Empty{})
}

// EventStream receives WatchEvents results.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event. It returns io.EOF when the daemon closes
// the stream.
func (s *EventStream) Recv() (*WatchEvent, error) {
	e := new(WatchEvent)
	if err := s.stream.RecvMsg(e); err != nil {
		return nil, err
	}
	return e, nil
}

// WatchEvents subscribes to daemon events whose kind starts with prefix.
// Cancel ctx to end the subscription.
func (c *Client) WatchEvents(ctx context.Context, prefix string) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &ControlServiceDesc.Streams[0], "/"+ServiceName+"/WatchEvents")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&WatchRequest{Prefix: prefix}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}
