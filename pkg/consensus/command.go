package consensus

import (
	"time"

	"github.com/raftchat/raftchatd/pkg/metrics"
	"github.com/raftchat/raftchatd/pkg/statemachine"
	"github.com/raftchat/raftchatd/pkg/types"
)

// AppendCommand submits a new command for replication (spec.md §4.3.7).
// Only the leader may submit; a non-leader call fails with ErrNotLeader
// carrying the current leaderId hint. On success it returns the state
// machine's apply result for the committed entry.
func (e *Engine) AppendCommand(cmdType types.CommandType, payload interface{}) (statemachine.Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftCommitDuration)

	select {
	case <-e.stopCh:
		return statemachine.Result{}, ErrShuttingDown
	default:
	}

	data, err := statemachine.Encode(payload)
	if err != nil {
		return statemachine.Result{}, err
	}

	e.mu.Lock()
	if e.role != Leader {
		leaderID := e.leaderID
		e.mu.Unlock()
		return statemachine.Result{}, &ErrNotLeader{LeaderID: leaderID}
	}
	term := e.currentTerm
	e.mu.Unlock()

	index, err := e.store.AppendAtNextIndex(term, cmdType, data)
	if err != nil {
		return statemachine.Result{}, err
	}

	e.replicateToAllPeers(term)

	if err := e.waitForCommit(index, term, commitWaitTimeout); err != nil {
		return statemachine.Result{}, err
	}

	e.applyCommittedEntries()

	result, ok := e.cachedResult(index)
	if !ok {
		// Shouldn't happen: waitForCommit confirmed commitIndex >= index,
		// and applyCommittedEntries only returns once lastApplied has
		// caught up to commitIndex, so index must have been applied and
		// cached by this call or a prior one.
		return statemachine.Result{}, ErrCommitUncertain
	}
	return result, nil
}

// waitForCommit blocks until commitIndex >= index, this node is no longer
// leader, or timeout elapses (spec.md §4.3.7 step 3). On timeout it
// returns ErrCommitUncertain rather than the source's unsafe false-success
// behavior (spec.md §9, resolved in DESIGN.md).
func (e *Engine) waitForCommit(index, term uint64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	done := make(chan struct{})
	stopWaiter := make(chan struct{})
	go func() {
		defer close(done)
		e.mu.Lock()
		defer e.mu.Unlock()
		for e.commitIndex < index && e.role == Leader && e.currentTerm == term {
			select {
			case <-stopWaiter:
				return
			default:
			}
			if time.Now().After(deadline) {
				return
			}
			e.commitCond.Wait()
		}
	}()

	select {
	case <-done:
	case <-e.stopCh:
		close(stopWaiter)
		e.commitCond.Broadcast() // wake the waiter so it can observe stopWaiter and exit
		<-done
		return ErrShuttingDown
	case <-time.After(timeout):
		close(stopWaiter)
		e.commitCond.Broadcast() // wake the waiter so it can observe stopWaiter and exit
		<-done
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.role != Leader || e.currentTerm != term {
		return &ErrNotLeader{LeaderID: e.leaderID}
	}
	if e.commitIndex >= index {
		return nil
	}
	return ErrCommitUncertain
}
