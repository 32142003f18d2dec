package rpcadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/raftchat/raftchatd/pkg/consensus"
	"github.com/raftchat/raftchatd/pkg/rpcclient"
	"github.com/raftchat/raftchatd/pkg/rpcproto"
	"github.com/raftchat/raftchatd/pkg/storage"
	"github.com/raftchat/raftchatd/pkg/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Server implements raftChatServer: it answers the Raft peer protocol
// directly from the local consensus.Engine, answers chat reads directly
// from the local storage.Store, and forwards chat writes that arrive at a
// non-leader to the current leader (spec.md §4.4's leader-forwarding
// boundary), so a client may address any node.
type Server struct {
	engine    *consensus.Engine
	store     storage.Store
	peerAddrs map[string]string // nodeID -> address, for forwarding
}

// NewServer builds a Server bound to a running consensus engine and its
// store. peerAddrs must contain every other node's address so a non-leader
// can forward writes to whichever node currently claims leadership.
func NewServer(engine *consensus.Engine, store storage.Store, peerAddrs map[string]string) *Server {
	return &Server{engine: engine, store: store, peerAddrs: peerAddrs}
}

// --- Peer protocol: answered locally, never forwarded. ---

func (s *Server) RequestVote(ctx context.Context, args *consensus.RequestVoteArgs) (*consensus.RequestVoteReply, error) {
	return s.engine.HandleRequestVote(args)
}

func (s *Server) AppendEntries(ctx context.Context, args *consensus.AppendEntriesArgs) (*consensus.AppendEntriesReply, error) {
	return s.engine.HandleAppendEntries(args)
}

func (s *Server) Status(ctx context.Context, _ *rpcproto.StatusRequest) (*consensus.StatusReply, error) {
	reply := s.engine.Status()
	return &reply, nil
}

// --- Chat protocol: reads answered locally; writes go through Raft and
// are forwarded to the leader on ErrNotLeader. ---

func (s *Server) CreateAccount(ctx context.Context, req *rpcproto.CreateAccountRequest) (*rpcproto.CreateAccountResponse, error) {
	result, err := s.engine.AppendCommand(types.CreateAccountCmd, types.CreateAccountPayload{
		Username:       req.Username,
		CredentialHash: req.CredentialHash,
	})
	if notLeader, ok := asNotLeader(err); ok {
		if fwd, ferr := s.forward(notLeader); ferr == nil {
			defer fwd.Close()
			return fwd.CreateAccount(ctx, req)
		}
		return nil, notLeaderStatus(notLeader)
	}
	if err != nil {
		return nil, wireError(err)
	}
	if result.Err != nil {
		return nil, wireError(result.Err)
	}
	return &rpcproto.CreateAccountResponse{Created: result.Created}, nil
}

func (s *Server) Authenticate(ctx context.Context, req *rpcproto.AuthenticateRequest) (*rpcproto.AuthenticateResponse, error) {
	ok, err := s.store.AuthenticateUser(req.Username, req.CredentialHash)
	if err != nil {
		return nil, wireError(err)
	}
	return &rpcproto.AuthenticateResponse{Authenticated: ok}, nil
}

func (s *Server) ListAccounts(ctx context.Context, req *rpcproto.ListAccountsRequest) (*rpcproto.ListAccountsResponse, error) {
	usernames, err := s.store.ListUsers(req.Pattern)
	if err != nil {
		return nil, wireError(err)
	}
	return &rpcproto.ListAccountsResponse{Usernames: usernames}, nil
}

func (s *Server) DeleteAccount(ctx context.Context, req *rpcproto.DeleteAccountRequest) (*rpcproto.DeleteAccountResponse, error) {
	result, err := s.engine.AppendCommand(types.DeleteAccountCmd, types.DeleteAccountPayload{
		Username: req.Username,
	})
	if notLeader, ok := asNotLeader(err); ok {
		if fwd, ferr := s.forward(notLeader); ferr == nil {
			defer fwd.Close()
			return fwd.DeleteAccount(ctx, req)
		}
		return nil, notLeaderStatus(notLeader)
	}
	if err != nil {
		return nil, wireError(err)
	}
	if result.Err != nil {
		return nil, wireError(result.Err)
	}
	return &rpcproto.DeleteAccountResponse{Existed: result.Created}, nil
}

func (s *Server) SendMessage(ctx context.Context, req *rpcproto.SendMessageRequest) (*rpcproto.SendMessageResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.AppendCommand(types.SendMessageCmd, types.SendMessagePayload{
		Sender:    caller,
		Recipient: req.Recipient,
		Content:   req.Content,
		Timestamp: time.Now().Unix(),
	})
	if notLeader, ok := asNotLeader(err); ok {
		if fwd, ferr := s.forward(notLeader); ferr == nil {
			defer fwd.Close()
			return fwd.SendMessage(ctx, req, caller)
		}
		return nil, notLeaderStatus(notLeader)
	}
	if err != nil {
		return nil, wireError(err)
	}
	if result.Err != nil {
		return nil, wireError(result.Err)
	}
	return &rpcproto.SendMessageResponse{MessageID: result.MessageID, Success: result.Success}, nil
}

func (s *Server) GetMessages(ctx context.Context, req *rpcproto.GetMessagesRequest) (*rpcproto.GetMessagesResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessages(caller, req.IncludeRead)
	if err != nil {
		return nil, wireError(err)
	}
	return &rpcproto.GetMessagesResponse{Messages: messages}, nil
}

func (s *Server) MarkRead(ctx context.Context, req *rpcproto.MarkReadRequest) (*rpcproto.MarkReadResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.AppendCommand(types.MarkReadCmd, types.MarkReadPayload{
		Username:   caller,
		MessageIDs: req.MessageIDs,
	})
	if notLeader, ok := asNotLeader(err); ok {
		if fwd, ferr := s.forward(notLeader); ferr == nil {
			defer fwd.Close()
			return fwd.MarkRead(ctx, req, caller)
		}
		return nil, notLeaderStatus(notLeader)
	}
	if err != nil {
		return nil, wireError(err)
	}
	if result.Err != nil {
		return nil, wireError(result.Err)
	}
	return &rpcproto.MarkReadResponse{Matched: result.Created}, nil
}

func (s *Server) DeleteMessages(ctx context.Context, req *rpcproto.DeleteMessagesRequest) (*rpcproto.DeleteMessagesResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.AppendCommand(types.DeleteMessagesCmd, types.DeleteMessagesPayload{
		Username:   caller,
		MessageIDs: req.MessageIDs,
	})
	if notLeader, ok := asNotLeader(err); ok {
		if fwd, ferr := s.forward(notLeader); ferr == nil {
			defer fwd.Close()
			return fwd.DeleteMessages(ctx, req, caller)
		}
		return nil, notLeaderStatus(notLeader)
	}
	if err != nil {
		return nil, wireError(err)
	}
	if result.Err != nil {
		return nil, wireError(result.Err)
	}
	return &rpcproto.DeleteMessagesResponse{Matched: result.Created}, nil
}

func (s *Server) GetUnreadCount(ctx context.Context, req *rpcproto.GetUnreadCountRequest) (*rpcproto.GetUnreadCountResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	count, err := s.store.GetUnreadCount(caller)
	if err != nil {
		return nil, wireError(err)
	}
	return &rpcproto.GetUnreadCountResponse{Count: count}, nil
}

// forward opens a one-shot connection to the leader hinted by notLeader and
// returns it for the caller to issue the forwarded call on.
func (s *Server) forward(notLeader *consensus.ErrNotLeader) (*rpcclient.ForwardClient, error) {
	if notLeader.LeaderID == "" || notLeader.LeaderID == s.engine.NodeID() {
		return nil, fmt.Errorf("rpcadapter: no usable leader hint")
	}
	addr, ok := s.peerAddrs[notLeader.LeaderID]
	if !ok {
		return nil, fmt.Errorf("rpcadapter: no address known for leader %s", notLeader.LeaderID)
	}
	return rpcclient.DialForward(addr)
}

func asNotLeader(err error) (*consensus.ErrNotLeader, bool) {
	notLeader, ok := err.(*consensus.ErrNotLeader)
	return notLeader, ok
}

// notLeaderStatus carries the leaderId hint in the status message itself
// (spec.md §4.4, §7): a client or the forwarding logic above can parse it,
// but plain prose is all a non-protobuf wire format needs here.
func notLeaderStatus(notLeader *consensus.ErrNotLeader) error {
	return status.Error(codes.FailedPrecondition, notLeader.Error())
}

func wireError(err error) error {
	if err == consensus.ErrCommitUncertain {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// callerFromContext extracts the trusted caller-username metadata item
// (spec.md §4.4: no session tokens, a trusted per-call identity).
func callerFromContext(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing caller metadata")
	}
	values := md.Get(rpcproto.CallerMetadataKey)
	if len(values) == 0 || values[0] == "" {
		return "", status.Error(codes.Unauthenticated, "missing caller-username metadata")
	}
	return values[0], nil
}
