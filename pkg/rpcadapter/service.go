package rpcadapter

import (
	"context"

	"github.com/raftchat/raftchatd/pkg/consensus"
	"github.com/raftchat/raftchatd/pkg/rpcproto"
	"google.golang.org/grpc"
)

// ServiceDesc is the hand-written grpc.ServiceDesc for the RaftChat
// service: no protoc-generated stub is used (pkg/rpcadapter/codec.go
// explains why), so method registration is written out the way grpc-go's
// own low-level examples do it.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: rpcproto.ServiceName,
	HandlerType: (*raftChatServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestVote", Handler: requestVoteHandler},
		{MethodName: "AppendEntries", Handler: appendEntriesHandler},
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "CreateAccount", Handler: createAccountHandler},
		{MethodName: "Authenticate", Handler: authenticateHandler},
		{MethodName: "ListAccounts", Handler: listAccountsHandler},
		{MethodName: "DeleteAccount", Handler: deleteAccountHandler},
		{MethodName: "SendMessage", Handler: sendMessageHandler},
		{MethodName: "GetMessages", Handler: getMessagesHandler},
		{MethodName: "MarkRead", Handler: markReadHandler},
		{MethodName: "DeleteMessages", Handler: deleteMessagesHandler},
		{MethodName: "GetUnreadCount", Handler: getUnreadCountHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rpcadapter.proto",
}

// raftChatServer is the interface grpc's reflection-free ServiceDesc binds
// against; *Server implements it.
type raftChatServer interface {
	RequestVote(context.Context, *consensus.RequestVoteArgs) (*consensus.RequestVoteReply, error)
	AppendEntries(context.Context, *consensus.AppendEntriesArgs) (*consensus.AppendEntriesReply, error)
	Status(context.Context, *rpcproto.StatusRequest) (*consensus.StatusReply, error)
	CreateAccount(context.Context, *rpcproto.CreateAccountRequest) (*rpcproto.CreateAccountResponse, error)
	Authenticate(context.Context, *rpcproto.AuthenticateRequest) (*rpcproto.AuthenticateResponse, error)
	ListAccounts(context.Context, *rpcproto.ListAccountsRequest) (*rpcproto.ListAccountsResponse, error)
	DeleteAccount(context.Context, *rpcproto.DeleteAccountRequest) (*rpcproto.DeleteAccountResponse, error)
	SendMessage(context.Context, *rpcproto.SendMessageRequest) (*rpcproto.SendMessageResponse, error)
	GetMessages(context.Context, *rpcproto.GetMessagesRequest) (*rpcproto.GetMessagesResponse, error)
	MarkRead(context.Context, *rpcproto.MarkReadRequest) (*rpcproto.MarkReadResponse, error)
	DeleteMessages(context.Context, *rpcproto.DeleteMessagesRequest) (*rpcproto.DeleteMessagesResponse, error)
	GetUnreadCount(context.Context, *rpcproto.GetUnreadCountRequest) (*rpcproto.GetUnreadCountResponse, error)
}

func requestVoteHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(consensus.RequestVoteArgs)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftChatServer).RequestVote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpcproto.MethodRequestVote}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftChatServer).RequestVote(ctx, req.(*consensus.RequestVoteArgs))
	}
	return interceptor(ctx, in, info, handler)
}

func appendEntriesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(consensus.AppendEntriesArgs)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftChatServer).AppendEntries(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpcproto.MethodAppendEntries}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftChatServer).AppendEntries(ctx, req.(*consensus.AppendEntriesArgs))
	}
	return interceptor(ctx, in, info, handler)
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(rpcproto.StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftChatServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpcproto.MethodStatus}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftChatServer).Status(ctx, req.(*rpcproto.StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func createAccountHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(rpcproto.CreateAccountRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftChatServer).CreateAccount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpcproto.MethodCreateAccount}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftChatServer).CreateAccount(ctx, req.(*rpcproto.CreateAccountRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func authenticateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(rpcproto.AuthenticateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftChatServer).Authenticate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpcproto.MethodAuthenticate}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftChatServer).Authenticate(ctx, req.(*rpcproto.AuthenticateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listAccountsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(rpcproto.ListAccountsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftChatServer).ListAccounts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpcproto.MethodListAccounts}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftChatServer).ListAccounts(ctx, req.(*rpcproto.ListAccountsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func deleteAccountHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(rpcproto.DeleteAccountRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftChatServer).DeleteAccount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpcproto.MethodDeleteAccount}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftChatServer).DeleteAccount(ctx, req.(*rpcproto.DeleteAccountRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func sendMessageHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(rpcproto.SendMessageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftChatServer).SendMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpcproto.MethodSendMessage}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftChatServer).SendMessage(ctx, req.(*rpcproto.SendMessageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getMessagesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(rpcproto.GetMessagesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftChatServer).GetMessages(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpcproto.MethodGetMessages}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftChatServer).GetMessages(ctx, req.(*rpcproto.GetMessagesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func markReadHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(rpcproto.MarkReadRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftChatServer).MarkRead(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpcproto.MethodMarkRead}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftChatServer).MarkRead(ctx, req.(*rpcproto.MarkReadRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func deleteMessagesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(rpcproto.DeleteMessagesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftChatServer).DeleteMessages(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpcproto.MethodDeleteMessages}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftChatServer).DeleteMessages(ctx, req.(*rpcproto.DeleteMessagesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getUnreadCountHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(rpcproto.GetUnreadCountRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(raftChatServer).GetUnreadCount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpcproto.MethodGetUnreadCount}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(raftChatServer).GetUnreadCount(ctx, req.(*rpcproto.GetUnreadCountRequest))
	}
	return interceptor(ctx, in, info, handler)
}
