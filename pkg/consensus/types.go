package consensus

import (
	"context"
	"errors"
	"fmt"

	"github.com/raftchat/raftchatd/pkg/types"
)

// Role is re-exported here for callers that only import pkg/consensus.
type Role = types.Role

const (
	Follower  = types.Follower
	Candidate = types.Candidate
	Leader    = types.Leader
)

// RequestVoteArgs is the RequestVote RPC request (spec.md §6).
type RequestVoteArgs struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
}

// RequestVoteReply is the RequestVote RPC response.
type RequestVoteReply struct {
	Term        uint64
	VoteGranted bool
}

// AppendEntriesArgs is the AppendEntries RPC request (spec.md §6). It also
// serves as the heartbeat when Entries is empty.
type AppendEntriesArgs struct {
	Term         uint64
	LeaderID     string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []*types.LogEntry
	LeaderCommit uint64
}

// AppendEntriesReply is the AppendEntries RPC response.
type AppendEntriesReply struct {
	Term       uint64
	Success    bool
	MatchIndex uint64
}

// StatusReply is the Status RPC response (spec.md §4.4, §6).
type StatusReply struct {
	NodeID      string
	Role        Role
	CurrentTerm uint64
	LeaderID    string
	CommitIndex uint64
	LastApplied uint64
}

// Transport abstracts the peer protocol so the consensus engine never
// depends on a concrete RPC library. pkg/rpcclient supplies the real
// implementation; tests supply an in-memory one.
type Transport interface {
	SendRequestVote(ctx context.Context, peerID string, args *RequestVoteArgs) (*RequestVoteReply, error)
	SendAppendEntries(ctx context.Context, peerID string, args *AppendEntriesArgs) (*AppendEntriesReply, error)
	SendStatus(ctx context.Context, peerID string) (*StatusReply, error)
}

// ErrNotLeader is returned by AppendCommand when this node is not the
// leader. LeaderID is the current best guess (possibly empty) so the
// caller can redirect (spec.md §4.3.7, §7).
type ErrNotLeader struct {
	LeaderID string
}

func (e *ErrNotLeader) Error() string {
	if e.LeaderID == "" {
		return "not leader: leader unknown"
	}
	return fmt.Sprintf("not leader: current leader is %s", e.LeaderID)
}

// ErrCommitUncertain is returned by AppendCommand when the submission
// timeout elapses before the entry is known to be committed. The canonical
// Raft source this spec is adapted from returns success in this case; this
// implementation follows the spec's own recommendation (§9) that a
// commit-uncertain error is the safe behavior, leaving idempotent retry to
// the caller.
var ErrCommitUncertain = errors.New("commit uncertain: submission timed out before majority replication was confirmed")

// ErrShuttingDown is returned by AppendCommand when the engine is stopping.
var ErrShuttingDown = errors.New("consensus engine is shutting down")
