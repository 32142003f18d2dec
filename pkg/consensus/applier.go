package consensus

import (
	"time"

	"github.com/raftchat/raftchatd/pkg/log"
	"github.com/raftchat/raftchatd/pkg/metrics"
)

// runApplier is the background applier task (spec.md §4.3.6): while
// lastApplied < commitIndex, apply the next entry to the state machine and
// advance lastApplied. A single failed apply does not halt the loop —
// determinism is preserved by treating the entry as applied regardless of
// its application-level success/failure (spec.md §4.2, §9).
func (e *Engine) runApplier() {
	defer e.wg.Done()

	ticker := time.NewTicker(applierPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.applyCommittedEntries()
		}
	}
}

// applyCommittedEntries applies every entry with lastApplied < index <=
// commitIndex, advancing lastApplied and caching each entry's Result
// (resultCache, engine.go) as it goes (spec.md §4.3.6). applyMu serializes
// this against concurrent callers (the background applier tick and any
// number of AppendCommand calls) so a given log entry is never applied to
// the state machine more than once — AppendCommand retrieves its entry's
// Result from resultCache afterward rather than calling sm.Apply again,
// since a second Apply would run against already-mutated storage state and
// silently report e.g. Created/Existed/Matched as false.
func (e *Engine) applyCommittedEntries() {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	for {
		e.mu.Lock()
		if e.lastApplied >= e.commitIndex {
			e.mu.Unlock()
			return
		}
		nextIndex := e.lastApplied + 1
		e.mu.Unlock()

		entry, err := e.store.GetLogEntry(nextIndex)
		if err != nil {
			log.WithComponent("applier").Error().Err(err).Uint64("index", nextIndex).Msg("failed to read entry to apply")
			return
		}
		if entry == nil {
			// Shouldn't happen (commitIndex never exceeds lastLogIndex), but
			// don't spin if it does.
			log.WithComponent("applier").Warn().Uint64("index", nextIndex).Msg("missing log entry at index <= commitIndex")
			return
		}

		timer := metrics.NewTimer()
		applied := e.sm.Apply(entry)
		timer.ObserveDuration(metrics.RaftApplyDuration)
		if applied.Err != nil {
			log.WithComponent("applier").Error().Err(applied.Err).Uint64("index", nextIndex).Msg("apply failed; advancing lastApplied anyway")
		}
		e.cacheResult(nextIndex, applied)

		e.mu.Lock()
		if err := e.store.SetLastApplied(nextIndex); err != nil {
			e.mu.Unlock()
			log.WithComponent("applier").Error().Err(err).Uint64("index", nextIndex).Msg("failed to persist last applied")
			return
		}
		e.lastApplied = nextIndex
		e.publishMetricsLocked()
		e.commitCond.Broadcast()
		e.mu.Unlock()
	}
}
