package consensus

import (
	"context"
	"math/rand"
	"time"

	"github.com/raftchat/raftchatd/pkg/log"
	"github.com/raftchat/raftchatd/pkg/metrics"
)

// randomElectionTimeout returns a timeout drawn freshly from the bounded
// window spec.md §4.3.2 requires, each time the timer is armed.
func randomElectionTimeout() time.Duration {
	span := electionTimeoutMax - electionTimeoutMin
	return electionTimeoutMin + time.Duration(rand.Int63n(int64(span)))
}

// runElectionTimer is the election timer firer goroutine (spec.md §5): it
// waits for either the timeout to elapse (start an election) or a reset
// signal (valid AppendEntries / affirmative vote), and exits on stopCh.
func (e *Engine) runElectionTimer() {
	defer e.wg.Done()

	timer := time.NewTimer(randomElectionTimeout())
	defer timer.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-e.electionResetCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(randomElectionTimeout())
		case <-timer.C:
			e.startElection()
			timer.Reset(randomElectionTimeout())
		}
	}
}

// startElection implements spec.md §4.3.3's "on election timeout" steps.
// The election timer keeps firing after this node becomes leader; those
// fires are ignored because startElection returns immediately while
// role==Leader.
func (e *Engine) startElection() {
	e.mu.Lock()
	if e.role == Leader {
		e.mu.Unlock()
		return
	}

	e.currentTerm++
	e.role = Candidate
	e.votedFor = e.nodeID
	e.voteTally = map[string]bool{e.nodeID: true}
	term := e.currentTerm

	if err := e.store.SetCurrentTerm(term); err != nil {
		log.WithComponent("consensus").Error().Err(err).Msg("failed to persist current term before election")
		e.mu.Unlock()
		return
	}
	if err := e.store.SetVotedFor(e.nodeID); err != nil {
		log.WithComponent("consensus").Error().Err(err).Msg("failed to persist voted-for before election")
		e.mu.Unlock()
		return
	}

	lastIndex, lastTerm, err := e.store.LastLogIndexAndTerm()
	if err != nil {
		log.WithComponent("consensus").Error().Err(err).Msg("failed to read last log index/term before election")
		e.mu.Unlock()
		return
	}
	quorum := e.cluster.quorum
	e.publishMetricsLocked()
	e.mu.Unlock()

	metrics.RaftElectionCount.Inc()
	log.WithTerm(log.WithNodeID(log.WithComponent("consensus"), e.nodeID), term).Info().Msg("starting election")

	// Single-node cluster: self-vote alone is already a majority.
	e.maybePromoteToLeader(term, quorum)

	e.cluster.forEachPeer(func(peerID string) {
		go e.requestVoteFromPeer(peerID, term, lastIndex, lastTerm, quorum)
	})
}

func (e *Engine) requestVoteFromPeer(peerID string, term, lastIndex, lastTerm uint64, quorum int) {
	ctx, cancel := context.WithTimeout(context.Background(), rpcDeadline)
	defer cancel()

	reply, err := e.trans.SendRequestVote(ctx, peerID, &RequestVoteArgs{
		Term:         term,
		CandidateID:  e.nodeID,
		LastLogIndex: lastIndex,
		LastLogTerm:  lastTerm,
	})
	if err != nil {
		log.WithComponent("consensus").Debug().Str("peer", peerID).Err(err).Msg("RequestVote transport error")
		return
	}

	e.mu.Lock()
	if reply.Term > e.currentTerm {
		_ = e.becomeFollowerLocked(reply.Term, "")
		e.mu.Unlock()
		return
	}
	if e.role != Candidate || term != e.currentTerm {
		// Stale reply for an election we've since abandoned.
		e.mu.Unlock()
		return
	}
	if !reply.VoteGranted {
		e.mu.Unlock()
		return
	}
	if e.voteTally == nil {
		e.voteTally = map[string]bool{}
	}
	e.voteTally[peerID] = true
	e.mu.Unlock()

	e.maybePromoteToLeader(term, quorum)
}

// maybePromoteToLeader promotes this node to LEADER if it is still a
// candidate in term, unchanged, and holds a quorum of votes (spec.md
// §4.3.3 step 3 / §4.3.1 CANDIDATE -> LEADER transition).
func (e *Engine) maybePromoteToLeader(term uint64, quorum int) {
	e.mu.Lock()
	if e.role != Candidate || e.currentTerm != term {
		e.mu.Unlock()
		return
	}
	if len(e.voteTally) < quorum {
		e.mu.Unlock()
		return
	}

	e.role = Leader
	e.leaderID = e.nodeID

	lastIndex, _, err := e.store.LastLogIndexAndTerm()
	if err != nil {
		log.WithComponent("consensus").Error().Err(err).Msg("failed to read last log index on promotion")
		lastIndex = 0
	}
	for _, ps := range e.peers {
		ps.nextIndex = lastIndex + 1
		ps.matchIndex = 0
		ps.reachable = true
	}
	e.publishMetricsLocked()
	l := log.WithTerm(log.WithNodeID(log.WithComponent("consensus"), e.nodeID), term)
	l.Info().Msg("became leader")
	e.mu.Unlock()

	e.startHeartbeats(term)
}

// HandleRequestVote processes an inbound RequestVote RPC (spec.md §4.3.3
// "On receiving RequestVote"). This is the peer-facing handler invoked by
// pkg/rpcadapter.
func (e *Engine) HandleRequestVote(args *RequestVoteArgs) (*RequestVoteReply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if args.Term < e.currentTerm {
		return &RequestVoteReply{Term: e.currentTerm, VoteGranted: false}, nil
	}

	if args.Term > e.currentTerm {
		if err := e.becomeFollowerLocked(args.Term, ""); err != nil {
			return nil, err
		}
	}

	lastIndex, lastTerm, err := e.store.LastLogIndexAndTerm()
	if err != nil {
		return nil, err
	}

	candidateUpToDate := args.LastLogTerm > lastTerm ||
		(args.LastLogTerm == lastTerm && args.LastLogIndex >= lastIndex)

	grant := (e.votedFor == "" || e.votedFor == args.CandidateID) && candidateUpToDate
	if grant {
		if e.votedFor == "" {
			if err := e.store.SetVotedFor(args.CandidateID); err != nil {
				return nil, err
			}
			e.votedFor = args.CandidateID
		}
		e.resetElectionTimer()
	}

	return &RequestVoteReply{Term: e.currentTerm, VoteGranted: grant}, nil
}
