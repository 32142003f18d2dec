package consensus

import (
	"context"
	"time"

	"github.com/raftchat/raftchatd/pkg/log"
)

// runDiscovery is the peer reachability / discovery hint task (spec.md
// §4.3.8): periodically probes every peer with a cheap Status call. A peer
// that reports LEADER in a term at or above ours becomes our adopted
// leaderId hint, shortening detection of leadership changes after a
// network partition heals. This never bypasses the safety rules in
// election.go/replication.go — it only updates the leaderId hint used for
// client redirection and re-arms the election timer when a new leader is
// adopted.
func (e *Engine) runDiscovery() {
	defer e.wg.Done()

	ticker := time.NewTicker(discoveryPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.probeAllPeers()
		}
	}
}

func (e *Engine) probeAllPeers() {
	e.cluster.forEachPeer(func(peerID string) {
		go e.probePeer(peerID)
	})
}

func (e *Engine) probePeer(peerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), rpcDeadline)
	defer cancel()

	status, err := e.trans.SendStatus(ctx, peerID)
	if err != nil {
		e.mu.Lock()
		if ps, ok := e.peers[peerID]; ok {
			ps.reachable = false
		}
		e.mu.Unlock()
		log.WithComponent("consensus").Debug().Str("peer", peerID).Err(err).Msg("discovery probe failed")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if ps, ok := e.peers[peerID]; ok {
		ps.reachable = true
	}

	if status.Role == Leader && status.CurrentTerm >= e.currentTerm && e.role != Leader {
		if e.leaderID != status.NodeID {
			e.leaderID = status.NodeID
			e.resetElectionTimer()
			log.WithComponent("consensus").Debug().Str("leader_id", status.NodeID).Msg("adopted leader hint from discovery probe")
		}
	}
}
