package consensus

import (
	"context"
	"time"

	"github.com/raftchat/raftchatd/pkg/log"
	"github.com/raftchat/raftchatd/pkg/metrics"
	"github.com/raftchat/raftchatd/pkg/types"
)

// startHeartbeats launches the leader's heartbeat/replication loop for the
// given term. It is a no-op goroutine once this node steps down or a
// higher term supersedes it — the loop checks role/term on every tick
// (spec.md §4.3.1 "On becoming LEADER: ... Begin periodic heartbeats
// immediately").
func (e *Engine) startHeartbeats(term uint64) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(heartbeatPeriod)
		defer ticker.Stop()

		// The first heartbeat establishes authority immediately, rather
		// than waiting for the first tick.
		e.replicateToAllPeers(term)

		for {
			select {
			case <-e.stopCh:
				return
			case <-ticker.C:
				e.mu.Lock()
				stillLeader := e.role == Leader && e.currentTerm == term
				e.mu.Unlock()
				if !stillLeader {
					return
				}
				e.replicateToAllPeers(term)
			}
		}
	}()
}

func (e *Engine) replicateToAllPeers(term uint64) {
	e.cluster.forEachPeer(func(peerID string) {
		go e.replicateToPeer(peerID, term)
	})
}

// replicateToPeer implements one iteration of the leader's per-peer
// replication loop (spec.md §4.3.4).
func (e *Engine) replicateToPeer(peerID string, term uint64) {
	e.mu.Lock()
	if e.role != Leader || e.currentTerm != term {
		e.mu.Unlock()
		return
	}
	ps, ok := e.peers[peerID]
	if !ok {
		e.mu.Unlock()
		return
	}
	nextIndex := ps.nextIndex
	if nextIndex == 0 {
		nextIndex = 1
	}
	prevLogIndex := nextIndex - 1
	commitIndex := e.commitIndex
	e.mu.Unlock()

	var prevLogTerm uint64
	if prevLogIndex > 0 {
		entry, err := e.store.GetLogEntry(prevLogIndex)
		if err != nil {
			log.WithComponent("consensus").Error().Err(err).Msg("failed to read prevLogTerm entry")
			return
		}
		if entry != nil {
			prevLogTerm = entry.Term
		}
	}

	lastIndex, _, err := e.store.LastLogIndexAndTerm()
	if err != nil {
		log.WithComponent("consensus").Error().Err(err).Msg("failed to read last log index/term for replication")
		return
	}

	var entries []*types.LogEntry
	if lastIndex >= nextIndex {
		entries, err = e.store.GetLogEntries(nextIndex, lastIndex)
		if err != nil {
			log.WithComponent("consensus").Error().Err(err).Msg("failed to read log entries for replication")
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), rpcDeadline)
	defer cancel()

	reply, err := e.trans.SendAppendEntries(ctx, peerID, &AppendEntriesArgs{
		Term:         term,
		LeaderID:     e.nodeID,
		PrevLogIndex: prevLogIndex,
		PrevLogTerm:  prevLogTerm,
		Entries:      entries,
		LeaderCommit: commitIndex,
	})
	if err != nil {
		e.mu.Lock()
		if ps, ok := e.peers[peerID]; ok {
			ps.reachable = false
		}
		e.mu.Unlock()
		log.WithComponent("consensus").Debug().Str("peer", peerID).Err(err).Msg("AppendEntries transport error")
		metrics.RaftAppendEntriesTotal.WithLabelValues("transport_error").Inc()
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if reply.Term > e.currentTerm {
		_ = e.becomeFollowerLocked(reply.Term, "")
		return
	}
	if e.role != Leader || e.currentTerm != term {
		return
	}
	ps, ok = e.peers[peerID]
	if !ok {
		return
	}
	ps.reachable = true

	if reply.Success {
		ps.matchIndex = maxUint64(ps.matchIndex, reply.MatchIndex)
		ps.nextIndex = ps.matchIndex + 1
		metrics.RaftAppendEntriesTotal.WithLabelValues("success").Inc()
		e.advanceCommitIndexLocked()
	} else {
		if ps.nextIndex > 1 {
			ps.nextIndex--
		}
		metrics.RaftAppendEntriesTotal.WithLabelValues("rejected").Inc()
	}
}

// advanceCommitIndexLocked implements spec.md §4.3.5's commit-advancement
// rule, which explicitly forbids gating advancement on "entry n is from
// currentTerm" (spec.md §4.3.5 MUST NOT; the original source's
// replication/consensus.py _update_commit_index deliberately drops that
// constraint with a comment warning the canonical gate "leads to entries
// not being committed"). Any index reaching quorum match is committed,
// regardless of which term its entry was written in. Caller must hold mu.
func (e *Engine) advanceCommitIndexLocked() {
	lastIndex, _, err := e.store.LastLogIndexAndTerm()
	if err != nil {
		log.WithComponent("consensus").Error().Err(err).Msg("failed to read last log index during commit advancement")
		return
	}

	quorum := e.cluster.quorum
	for n := lastIndex; n > e.commitIndex; n-- {
		entry, err := e.store.GetLogEntry(n)
		if err != nil || entry == nil {
			continue
		}
		count := 1 // self
		for _, ps := range e.peers {
			if ps.matchIndex >= n {
				count++
			}
		}
		if count >= quorum {
			if err := e.store.SetCommitIndex(n); err != nil {
				log.WithComponent("consensus").Error().Err(err).Msg("failed to persist commit index")
				return
			}
			e.commitIndex = n
			e.publishMetricsLocked()
			e.commitCond.Broadcast()
			break
		}
	}
}

// HandleAppendEntries processes an inbound AppendEntries RPC, including
// empty-entries heartbeats (spec.md §4.3.4 "Follower handling of
// AppendEntries").
func (e *Engine) HandleAppendEntries(args *AppendEntriesArgs) (*AppendEntriesReply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fail := func() (*AppendEntriesReply, error) {
		return &AppendEntriesReply{Term: e.currentTerm, Success: false, MatchIndex: 0}, nil
	}

	if args.Term < e.currentTerm {
		return fail()
	}

	e.resetElectionTimer()

	if args.Term > e.currentTerm || e.role == Candidate {
		if err := e.becomeFollowerLocked(args.Term, args.LeaderID); err != nil {
			return nil, err
		}
	} else {
		e.role = Follower
	}
	e.leaderID = args.LeaderID

	if args.PrevLogIndex > 0 {
		entry, err := e.store.GetLogEntry(args.PrevLogIndex)
		if err != nil {
			return nil, err
		}
		if entry == nil || entry.Term != args.PrevLogTerm {
			return fail()
		}
	}

	for _, newEntry := range args.Entries {
		existing, err := e.store.GetLogEntry(newEntry.Index)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Term == newEntry.Term {
			continue
		}
		if existing != nil {
			if err := e.store.DeleteLogsFrom(newEntry.Index); err != nil {
				return nil, err
			}
		}
		if err := e.store.OverwriteAtIndex(newEntry.Index, newEntry.Term, newEntry.CommandType, newEntry.CommandData); err != nil {
			return nil, err
		}
	}

	lastIndex, _, err := e.store.LastLogIndexAndTerm()
	if err != nil {
		return nil, err
	}

	if args.LeaderCommit > e.commitIndex {
		newCommit := minUint64(args.LeaderCommit, lastIndex)
		if err := e.store.SetCommitIndex(newCommit); err != nil {
			return nil, err
		}
		e.commitIndex = newCommit
		e.commitCond.Broadcast()
	}
	e.publishMetricsLocked()

	return &AppendEntriesReply{Term: e.currentTerm, Success: true, MatchIndex: lastIndex}, nil
}
