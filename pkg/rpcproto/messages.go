// Package rpcproto defines the wire messages and method names shared by
// pkg/rpcadapter (server side) and pkg/rpcclient (client side), so neither
// package needs to import the other. The peer protocol reuses
// pkg/consensus's plain request/reply structs directly; this package adds
// only the client (chat) protocol's request/response shapes.
//
// spec.md §4.4/§6 treats the chat RPC surface's concrete shape as opaque to
// the core and out of scope for the spec itself; these types are this
// module's own concrete choice for that opaque surface.
package rpcproto

import "github.com/raftchat/raftchatd/pkg/types"

// Service and method names for the hand-written grpc.ServiceDesc. Kept as
// plain constants (no protoc) since the wire codec is JSON, not protobuf
// wire format — see pkg/rpcadapter/codec.go.
const (
	ServiceName = "raftchat.RaftChat"

	MethodRequestVote   = "/raftchat.RaftChat/RequestVote"
	MethodAppendEntries = "/raftchat.RaftChat/AppendEntries"
	MethodStatus        = "/raftchat.RaftChat/Status"

	MethodCreateAccount  = "/raftchat.RaftChat/CreateAccount"
	MethodAuthenticate   = "/raftchat.RaftChat/Authenticate"
	MethodListAccounts   = "/raftchat.RaftChat/ListAccounts"
	MethodDeleteAccount  = "/raftchat.RaftChat/DeleteAccount"
	MethodSendMessage    = "/raftchat.RaftChat/SendMessage"
	MethodGetMessages    = "/raftchat.RaftChat/GetMessages"
	MethodMarkRead       = "/raftchat.RaftChat/MarkRead"
	MethodDeleteMessages = "/raftchat.RaftChat/DeleteMessages"
	MethodGetUnreadCount = "/raftchat.RaftChat/GetUnreadCount"
)

// CallerMetadataKey is the gRPC metadata key carrying the trusted
// caller-username for authenticated client calls (spec.md §4.4, §6: "no
// session tokens"; the RPC layer trusts an out-of-band-verified identity
// attached per call).
const CallerMetadataKey = "x-raftchat-caller"

// StatusRequest carries no fields; Status takes no arguments.
type StatusRequest struct{}

// CreateAccountRequest is the CreateAccount client RPC request.
type CreateAccountRequest struct {
	Username       string `json:"username"`
	CredentialHash []byte `json:"credential_hash"`
}

// CreateAccountResponse reports whether the account was newly created.
type CreateAccountResponse struct {
	Created bool `json:"created"`
}

// AuthenticateRequest is the Authenticate client RPC request.
type AuthenticateRequest struct {
	Username       string `json:"username"`
	CredentialHash []byte `json:"credential_hash"`
}

// AuthenticateResponse reports whether the credentials matched.
type AuthenticateResponse struct {
	Authenticated bool `json:"authenticated"`
}

// ListAccountsRequest is the ListAccounts client RPC request. Pattern is
// matched as a case-insensitive substring (spec.md §9, resolved in
// DESIGN.md); an empty Pattern matches every account.
type ListAccountsRequest struct {
	Pattern string `json:"pattern"`
}

// ListAccountsResponse carries the matching usernames.
type ListAccountsResponse struct {
	Usernames []string `json:"usernames"`
}

// DeleteAccountRequest is the DeleteAccount client RPC request.
type DeleteAccountRequest struct {
	Username string `json:"username"`
}

// DeleteAccountResponse reports whether the account existed.
type DeleteAccountResponse struct {
	Existed bool `json:"existed"`
}

// SendMessageRequest is the SendMessage client RPC request. Sender is not
// part of the request body — it is taken from the trusted caller-username
// metadata (CallerMetadataKey) by the server, matching spec.md §4.4's
// trusted-caller-identity model.
type SendMessageRequest struct {
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

// SendMessageResponse carries the message id assigned by the leader.
// Success is false if the recipient no longer existed when the command was
// applied (spec.md §4.2); MessageID is only meaningful when Success is true.
type SendMessageResponse struct {
	MessageID uint64 `json:"message_id"`
	Success   bool   `json:"success"`
}

// GetMessagesRequest is the GetMessages client RPC request.
type GetMessagesRequest struct {
	IncludeRead bool `json:"include_read"`
}

// GetMessagesResponse carries the caller's inbox.
type GetMessagesResponse struct {
	Messages []*types.Message `json:"messages"`
}

// MarkReadRequest is the MarkRead client RPC request.
type MarkReadRequest struct {
	MessageIDs []uint64 `json:"message_ids"`
}

// MarkReadResponse reports whether any id matched.
type MarkReadResponse struct {
	Matched bool `json:"matched"`
}

// DeleteMessagesRequest is the DeleteMessages client RPC request.
type DeleteMessagesRequest struct {
	MessageIDs []uint64 `json:"message_ids"`
}

// DeleteMessagesResponse reports whether any id matched.
type DeleteMessagesResponse struct {
	Matched bool `json:"matched"`
}

// GetUnreadCountRequest is the GetUnreadCount client RPC request.
type GetUnreadCountRequest struct{}

// GetUnreadCountResponse carries the caller's unread message count.
type GetUnreadCountResponse struct {
	Count int `json:"count"`
}
