// Package consensus is the hand-written Raft consensus engine: role state
// machine, election and heartbeat timers, RequestVote and AppendEntries
// handling, commit-index advancement, and the background applier. This is
// "the core" (spec.md §1): every invariant in spec.md §3/§4.3/§5 is enforced
// here, not delegated to a third-party Raft library.
package consensus

import (
	"fmt"
	"sync"
	"time"

	"github.com/raftchat/raftchatd/pkg/log"
	"github.com/raftchat/raftchatd/pkg/metrics"
	"github.com/raftchat/raftchatd/pkg/statemachine"
	"github.com/raftchat/raftchatd/pkg/storage"
	"github.com/raftchat/raftchatd/pkg/types"
)

const (
	electionTimeoutMin = 500 * time.Millisecond
	electionTimeoutMax = 1000 * time.Millisecond
	heartbeatPeriod    = 50 * time.Millisecond
	applierPeriod      = 100 * time.Millisecond
	discoveryPeriod    = 5 * time.Second
	rpcDeadline        = 2 * time.Second
	commitWaitTimeout  = 5 * time.Second
)

// peerState is the leader's volatile bookkeeping for one peer (spec.md §3
// "Volatile Leader State").
type peerState struct {
	nextIndex   uint64
	matchIndex  uint64
	reachable   bool
}

// Engine is a single node's consensus engine. All mutable Raft state is
// guarded by mu (the "state lock", spec.md §5); mu is never held across a
// peer RPC.
type Engine struct {
	nodeID  string
	cluster *clusterInfo
	store   storage.Store
	sm      *statemachine.StateMachine
	trans   Transport

	mu          sync.Mutex
	role        Role
	currentTerm uint64
	votedFor    string
	leaderID    string
	commitIndex uint64
	lastApplied uint64
	peers       map[string]*peerState
	voteTally   map[string]bool

	electionResetCh chan struct{}
	stopCh          chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup

	commitCond *sync.Cond

	// applyMu serializes applyCommittedEntries across the background
	// applier goroutine and concurrent AppendCommand callers, so a given
	// log entry is never applied to the state machine more than once.
	applyMu sync.Mutex

	// resultCache holds the Result of the most recently applied entries so
	// AppendCommand can retrieve the result for the index it just
	// committed even when that index was actually applied by a different
	// applyCommittedEntries call (e.g. the background applier's periodic
	// tick winning the race against AppendCommand's own call). Bounded and
	// FIFO-evicted: entries only need to survive the brief window between
	// commit and the waiting AppendCommand call reading them back.
	resultCacheMu sync.Mutex
	resultCache   map[uint64]statemachine.Result
	resultOrder   []uint64
}

const resultCacheCap = 1024

func (e *Engine) cacheResult(index uint64, result statemachine.Result) {
	e.resultCacheMu.Lock()
	defer e.resultCacheMu.Unlock()

	e.resultCache[index] = result
	e.resultOrder = append(e.resultOrder, index)
	for len(e.resultOrder) > resultCacheCap {
		oldest := e.resultOrder[0]
		e.resultOrder = e.resultOrder[1:]
		delete(e.resultCache, oldest)
	}
}

func (e *Engine) cachedResult(index uint64) (statemachine.Result, bool) {
	e.resultCacheMu.Lock()
	defer e.resultCacheMu.Unlock()
	result, ok := e.resultCache[index]
	return result, ok
}

// New constructs an Engine for nodeID with the given static peer set
// (peerID -> address, spec.md §6 Configuration). Raft metadata is loaded
// from store; if this is a fresh store, currentTerm/votedFor/commitIndex/
// lastApplied all start at their zero values.
func New(nodeID string, peers map[string]string, store storage.Store, trans Transport) (*Engine, error) {
	cluster, err := newClusterInfo(nodeID, peers)
	if err != nil {
		return nil, fmt.Errorf("failed to build cluster info: %w", err)
	}

	currentTerm, err := store.CurrentTerm()
	if err != nil {
		return nil, fmt.Errorf("failed to load current term: %w", err)
	}
	votedFor, err := store.VotedFor()
	if err != nil {
		return nil, fmt.Errorf("failed to load voted-for: %w", err)
	}
	commitIndex, err := store.CommitIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load commit index: %w", err)
	}
	lastApplied, err := store.LastApplied()
	if err != nil {
		return nil, fmt.Errorf("failed to load last applied: %w", err)
	}

	e := &Engine{
		nodeID:          nodeID,
		cluster:         cluster,
		store:           store,
		sm:              statemachine.New(store),
		trans:           trans,
		role:            Follower,
		currentTerm:     currentTerm,
		votedFor:        votedFor,
		commitIndex:     commitIndex,
		lastApplied:     lastApplied,
		peers:           make(map[string]*peerState),
		electionResetCh: make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
		resultCache:     make(map[uint64]statemachine.Result),
	}
	e.commitCond = sync.NewCond(&e.mu)

	for _, id := range cluster.peerIDs {
		e.peers[id] = &peerState{reachable: true}
	}

	return e, nil
}

// Start launches the engine's background goroutines: the election timer,
// the applier, and the peer-discovery hint task. Heartbeats are only
// started once this node becomes leader (startHeartbeats).
func (e *Engine) Start() {
	e.wg.Add(3)
	go e.runElectionTimer()
	go e.runApplier()
	go e.runDiscovery()
}

// Stop signals every background goroutine to exit and waits for them.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	e.wg.Wait()
}

// NodeID returns this node's configured id.
func (e *Engine) NodeID() string { return e.nodeID }

// Status returns a snapshot of this node's externally-visible Raft state
// (spec.md §4.4 Status RPC, §6).
func (e *Engine) Status() StatusReply {
	e.mu.Lock()
	defer e.mu.Unlock()
	return StatusReply{
		NodeID:      e.nodeID,
		Role:        e.role,
		CurrentTerm: e.currentTerm,
		LeaderID:    e.leaderID,
		CommitIndex: e.commitIndex,
		LastApplied: e.lastApplied,
	}
}

// IsLeader reports whether this node currently believes it is the leader.
func (e *Engine) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.role == Leader
}

// publishMetricsLocked updates the prometheus gauges from the current state.
// Caller must hold mu.
func (e *Engine) publishMetricsLocked() {
	metrics.RaftTerm.Set(float64(e.currentTerm))
	metrics.RaftRole.Set(float64(e.role))
	metrics.RaftCommitIndex.Set(float64(e.commitIndex))
	metrics.RaftLastApplied.Set(float64(e.lastApplied))
}

// resetElectionTimer signals the election timer goroutine to re-arm with a
// fresh randomized timeout (spec.md §4.3.2: every valid AppendEntries and
// every affirmative vote resets it).
func (e *Engine) resetElectionTimer() {
	select {
	case e.electionResetCh <- struct{}{}:
	default:
	}
}

// becomeFollowerLocked transitions to FOLLOWER, adopting newTerm as
// currentTerm and clearing votedFor (spec.md §4.3.1). Caller must hold mu
// and must persist before any externally-visible side effect occurs
// (persist-before-send, spec.md §5) — this method itself persists.
func (e *Engine) becomeFollowerLocked(newTerm uint64, leaderID string) error {
	if newTerm > e.currentTerm {
		if err := e.store.SetCurrentTerm(newTerm); err != nil {
			return fmt.Errorf("failed to persist current term: %w", err)
		}
		if err := e.store.SetVotedFor(""); err != nil {
			return fmt.Errorf("failed to clear voted-for: %w", err)
		}
		e.currentTerm = newTerm
		e.votedFor = ""
	}
	wasLeader := e.role == Leader
	e.role = Follower
	e.leaderID = leaderID
	e.publishMetricsLocked()
	l := log.WithTerm(log.WithNodeID(log.WithComponent("consensus"), e.nodeID), e.currentTerm)
	l.Info().Bool("was_leader", wasLeader).Msg("became follower")
	return nil
}

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
