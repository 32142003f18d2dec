// Package rpcclient is the outbound half of the RPC Adapter (spec.md
// §4.4): it dials peer nodes over gRPC and implements pkg/consensus's
// Transport interface, and it forwards client-protocol write calls from a
// non-leader node to the current leader. spec.md scopes mTLS/session-token
// auth out (§13); connections here are plaintext gRPC, matching the
// teacher's non-mTLS CLI dial path.
package rpcclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/raftchat/raftchatd/pkg/consensus"
	"github.com/raftchat/raftchatd/pkg/rpcproto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// PeerPool lazily dials and caches one gRPC connection per peer, keyed by
// the logical node id (not address) so pkg/consensus.Engine can address
// peers the way it already does internally. It implements
// consensus.Transport.
type PeerPool struct {
	mu    sync.Mutex
	addrs map[string]string
	conns map[string]*grpc.ClientConn
}

// NewPeerPool builds a pool from a nodeID -> network address map (the same
// shape as pkg/config.Config.Peers).
func NewPeerPool(addrs map[string]string) *PeerPool {
	return &PeerPool{
		addrs: addrs,
		conns: make(map[string]*grpc.ClientConn),
	}
}

func (p *PeerPool) conn(peerID string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[peerID]; ok {
		return c, nil
	}
	addr, ok := p.addrs[peerID]
	if !ok {
		return nil, fmt.Errorf("rpcclient: unknown peer %q", peerID)
	}
	c, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("rpcclient: dial %s: %w", peerID, err)
	}
	p.conns[peerID] = c
	return c, nil
}

// Close tears down every cached connection.
func (p *PeerPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for id, c := range p.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.conns, id)
	}
	return firstErr
}

func (p *PeerPool) SendRequestVote(ctx context.Context, peerID string, args *consensus.RequestVoteArgs) (*consensus.RequestVoteReply, error) {
	c, err := p.conn(peerID)
	if err != nil {
		return nil, err
	}
	reply := &consensus.RequestVoteReply{}
	if err := c.Invoke(ctx, rpcproto.MethodRequestVote, args, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (p *PeerPool) SendAppendEntries(ctx context.Context, peerID string, args *consensus.AppendEntriesArgs) (*consensus.AppendEntriesReply, error) {
	c, err := p.conn(peerID)
	if err != nil {
		return nil, err
	}
	reply := &consensus.AppendEntriesReply{}
	if err := c.Invoke(ctx, rpcproto.MethodAppendEntries, args, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (p *PeerPool) SendStatus(ctx context.Context, peerID string) (*consensus.StatusReply, error) {
	c, err := p.conn(peerID)
	if err != nil {
		return nil, err
	}
	reply := &consensus.StatusReply{}
	if err := c.Invoke(ctx, rpcproto.MethodStatus, &rpcproto.StatusRequest{}, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// ForwardClient issues client-protocol calls against a single known
// address. pkg/rpcadapter uses it to forward a write that arrived at a
// non-leader to the current leader (spec.md §4.4's leader-forwarding
// requirement), keyed by address rather than node id since the forwarding
// server only knows the leaderId hint, not necessarily a warm pool entry.
type ForwardClient struct {
	conn *grpc.ClientConn
}

// DialForward opens a connection to addr for one-shot forwarding.
func DialForward(addr string) (*ForwardClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("rpcclient: dial leader %s: %w", addr, err)
	}
	return &ForwardClient{conn: conn}, nil
}

// Close releases the underlying connection.
func (f *ForwardClient) Close() error {
	return f.conn.Close()
}

// Status queries the node at the other end of this connection directly
// (used by the CLI's status subcommand, and available to a forwarding
// server as well).
func (f *ForwardClient) Status(ctx context.Context) (*consensus.StatusReply, error) {
	resp := &consensus.StatusReply{}
	err := f.conn.Invoke(ctx, rpcproto.MethodStatus, &rpcproto.StatusRequest{}, resp)
	return resp, err
}

func (f *ForwardClient) CreateAccount(ctx context.Context, req *rpcproto.CreateAccountRequest) (*rpcproto.CreateAccountResponse, error) {
	resp := &rpcproto.CreateAccountResponse{}
	err := f.conn.Invoke(ctx, rpcproto.MethodCreateAccount, req, resp)
	return resp, err
}

func (f *ForwardClient) DeleteAccount(ctx context.Context, req *rpcproto.DeleteAccountRequest) (*rpcproto.DeleteAccountResponse, error) {
	resp := &rpcproto.DeleteAccountResponse{}
	err := f.conn.Invoke(ctx, rpcproto.MethodDeleteAccount, req, resp)
	return resp, err
}

func (f *ForwardClient) SendMessage(ctx context.Context, req *rpcproto.SendMessageRequest, callerUsername string) (*rpcproto.SendMessageResponse, error) {
	resp := &rpcproto.SendMessageResponse{}
	ctx = withCaller(ctx, callerUsername)
	err := f.conn.Invoke(ctx, rpcproto.MethodSendMessage, req, resp)
	return resp, err
}

func (f *ForwardClient) MarkRead(ctx context.Context, req *rpcproto.MarkReadRequest, callerUsername string) (*rpcproto.MarkReadResponse, error) {
	resp := &rpcproto.MarkReadResponse{}
	ctx = withCaller(ctx, callerUsername)
	err := f.conn.Invoke(ctx, rpcproto.MethodMarkRead, req, resp)
	return resp, err
}

func (f *ForwardClient) DeleteMessages(ctx context.Context, req *rpcproto.DeleteMessagesRequest, callerUsername string) (*rpcproto.DeleteMessagesResponse, error) {
	resp := &rpcproto.DeleteMessagesResponse{}
	ctx = withCaller(ctx, callerUsername)
	err := f.conn.Invoke(ctx, rpcproto.MethodDeleteMessages, req, resp)
	return resp, err
}
