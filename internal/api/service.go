// Package api is the daemon's gRPC control plane, served over a Unix socket
// with a JSON codec.
package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tina.v1.Control"

// ControlServer is implemented by the daemon.
type ControlServer interface {
	ListAccounts(context.Context, *Empty) (*ListAccountsResponse, error)
	CreateAccount(context.Context, *CreateAccountRequest) (*AccountResponse, error)
	DeleteAccount(context.Context, *AccountRequest) (*Empty, error)
	StartAccount(context.Context, *AccountRequest) (*Empty, error)
	StopAccount(context.Context, *AccountRequest) (*Empty, error)
	RequestQrCode(context.Context, *AccountRequest) (*Empty, error)
	RefreshAccount(context.Context, *AccountRequest) (*Empty, error)
	RequestHistory(context.Context, *HistoryRequest) (*Empty, error)
	GetContacts(context.Context, *AccountRequest) (*ContactsResponse, error)
	GetGroups(context.Context, *AccountRequest) (*GroupsResponse, error)
	GetMessages(context.Context, *GetMessagesRequest) (*MessagesResponse, error)
	GetChats(context.Context, *AccountRequest) (*ChatsResponse, error)
	GetChatPreviews(context.Context, *ChatPreviewsRequest) (*ChatPreviewsResponse, error)
	GetChatName(context.Context, *ChatNameRequest) (*ChatNameResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*Empty, error)
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	WatchEvents(*WatchRequest, EventSender) error
}

// EventSender is the server side of a WatchEvents stream.
type EventSender interface {
	Send(*WatchEvent) error
	Context() context.Context
}

type eventSender struct {
	grpc.ServerStream
}

func (s *eventSender) Send(e *WatchEvent) error { return s.SendMsg(e) }

// unary builds the method descriptor of a request/response RPC.
func unary[Req, Resp any](name string, call func(ControlServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(*Req))
			})
		},
	}
}

// ControlServiceDesc describes tina.v1.Control for grpc.Server.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListAccounts", ControlServer.ListAccounts),
		unary("CreateAccount", ControlServer.CreateAccount),
		unary("DeleteAccount", ControlServer.DeleteAccount),
		unary("StartAccount", ControlServer.StartAccount),
		unary("StopAccount", ControlServer.StopAccount),
		unary("RequestQrCode", ControlServer.RequestQrCode),
		unary("RefreshAccount", ControlServer.RefreshAccount),
		unary("RequestHistory", ControlServer.RequestHistory),
		unary("GetContacts", ControlServer.GetContacts),
		unary("GetGroups", ControlServer.GetGroups),
		unary("GetMessages", ControlServer.GetMessages),
		unary("GetChats", ControlServer.GetChats),
		unary("GetChatPreviews", ControlServer.GetChatPreviews),
		unary("GetChatName", ControlServer.GetChatName),
		unary("SendMessage", ControlServer.SendMessage),
		unary("GetStatus", ControlServer.GetStatus),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ControlServer).WatchEvents(in, &eventSender{stream})
			},
		},
	},
	Metadata: "tina/v1/control",
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}
