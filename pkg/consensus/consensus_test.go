package consensus

import (
	"testing"
	"time"

	"github.com/raftchat/raftchatd/pkg/statemachine"
	"github.com/raftchat/raftchatd/pkg/storage"
	"github.com/raftchat/raftchatd/pkg/types"
	"github.com/stretchr/testify/require"
)

// testCluster builds n in-process engines wired together by a shared
// fakeTransport, each backed by its own temp-dir BoltStore.
type testCluster struct {
	t          *testing.T
	transport  *fakeTransport
	engines    []*Engine
	stores     []storage.Store
	storePaths []string
	peerSets   []map[string]string
	ids        []string
}

func newTestCluster(t *testing.T, n int) *testCluster {
	t.Helper()

	ids := make([]string, n)
	for i := range ids {
		ids[i] = nodeName(i)
	}

	transport := newFakeTransport()
	tc := &testCluster{t: t, transport: transport, ids: ids}

	for i := 0; i < n; i++ {
		peers := make(map[string]string)
		for j, id := range ids {
			if j != i {
				peers[id] = "unused"
			}
		}
		tc.peerSets = append(tc.peerSets, peers)

		path := t.TempDir()
		tc.storePaths = append(tc.storePaths, path)

		store, err := storage.NewBoltStore(path)
		require.NoError(t, err)
		tc.stores = append(tc.stores, store)

		e, err := New(ids[i], peers, store, transport)
		require.NoError(t, err)
		transport.register(ids[i], e)
		tc.engines = append(tc.engines, e)
	}

	return tc
}

// kill stops node i's background goroutines and removes it from the
// transport's routing table, simulating a crashed process rather than a
// graceful stop: remaining nodes see every RPC to it fail as unreachable.
func (tc *testCluster) kill(i int) {
	tc.t.Helper()
	tc.engines[i].Stop()
	tc.transport.unregister(tc.ids[i])
}

// restart stops node i, closes its store, and rebuilds both from the same
// on-disk path — simulating a process restart without losing persisted
// Raft state (currentTerm, votedFor, log, commitIndex). The new Engine
// replaces the old one in tc.engines and the shared transport's routing
// table; the caller is responsible for calling Start() on it.
func (tc *testCluster) restart(i int) *Engine {
	tc.t.Helper()

	tc.engines[i].Stop()
	require.NoError(tc.t, tc.stores[i].Close())

	store, err := storage.NewBoltStore(tc.storePaths[i])
	require.NoError(tc.t, err)
	tc.stores[i] = store

	e, err := New(tc.ids[i], tc.peerSets[i], store, tc.transport)
	require.NoError(tc.t, err)
	tc.transport.register(tc.ids[i], e)
	tc.engines[i] = e
	return e
}

func nodeName(i int) string {
	return string(rune('a' + i))
}

func (tc *testCluster) startAll() {
	for _, e := range tc.engines {
		e.Start()
	}
}

func (tc *testCluster) stopAll() {
	for _, e := range tc.engines {
		e.Stop()
	}
	for _, s := range tc.stores {
		_ = s.Close()
	}
}

// waitForLeader polls until exactly one engine believes it is leader, or the
// timeout elapses. The leader's term is not checked.
func (tc *testCluster) waitForLeader(timeout time.Duration) *Engine {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var leaders []*Engine
		for _, e := range tc.engines {
			if e.IsLeader() {
				leaders = append(leaders, e)
			}
		}
		if len(leaders) == 1 {
			return leaders[0]
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func TestSingleNodeClusterElectsItself(t *testing.T) {
	tc := newTestCluster(t, 1)
	defer tc.stopAll()
	tc.startAll()

	leader := tc.waitForLeader(2 * time.Second)
	require.NotNil(t, leader, "single-node cluster must elect itself leader")
}

func TestThreeNodeClusterElectsExactlyOneLeader(t *testing.T) {
	tc := newTestCluster(t, 3)
	defer tc.stopAll()
	tc.startAll()

	leader := tc.waitForLeader(3 * time.Second)
	require.NotNil(t, leader, "three-node cluster must elect a single leader")

	followerCount := 0
	for _, e := range tc.engines {
		if e != leader {
			require.False(t, e.IsLeader())
			followerCount++
		}
	}
	require.Equal(t, 2, followerCount)
}

func TestLeaderReplicatesCommandToFollowers(t *testing.T) {
	tc := newTestCluster(t, 3)
	defer tc.stopAll()
	tc.startAll()

	leader := tc.waitForLeader(3 * time.Second)
	require.NotNil(t, leader)

	result, err := leader.AppendCommand(types.CreateAccountCmd, types.CreateAccountPayload{
		Username:       "alice",
		CredentialHash: []byte("hash"),
	})
	require.NoError(t, err)
	require.True(t, result.Created)

	require.Eventually(t, func() bool {
		for _, s := range tc.stores {
			users, err := s.ListUsers("")
			if err != nil || len(users) != 1 || users[0] != "alice" {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond, "all replicas must eventually apply the committed command")
}

func TestNonLeaderRejectsAppendCommand(t *testing.T) {
	tc := newTestCluster(t, 3)
	defer tc.stopAll()
	tc.startAll()

	leader := tc.waitForLeader(3 * time.Second)
	require.NotNil(t, leader)

	var follower *Engine
	for _, e := range tc.engines {
		if e != leader {
			follower = e
			break
		}
	}
	require.NotNil(t, follower)

	_, err := follower.AppendCommand(types.CreateAccountCmd, types.CreateAccountPayload{Username: "bob"})
	require.Error(t, err)
	var notLeaderErr *ErrNotLeader
	require.ErrorAs(t, err, &notLeaderErr)
}

func TestQuorumSizeForClusterSize(t *testing.T) {
	cases := []struct {
		size, quorum int
	}{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
	}
	for _, c := range cases {
		require.Equal(t, c.quorum, quorumSizeForClusterSize(c.size))
	}
}

func TestHandleAppendEntriesRejectsStaleTerm(t *testing.T) {
	tc := newTestCluster(t, 1)
	defer tc.stopAll()
	e := tc.engines[0]
	require.NoError(t, e.store.SetCurrentTerm(5))
	e.currentTerm = 5

	reply, err := e.HandleAppendEntries(&AppendEntriesArgs{Term: 3, LeaderID: "ghost"})
	require.NoError(t, err)
	require.False(t, reply.Success)
	require.Equal(t, uint64(5), reply.Term)
}

func TestHandleAppendEntriesConsistencyCheckRejectsGap(t *testing.T) {
	tc := newTestCluster(t, 1)
	defer tc.stopAll()
	e := tc.engines[0]

	reply, err := e.HandleAppendEntries(&AppendEntriesArgs{
		Term:         1,
		LeaderID:     "leader",
		PrevLogIndex: 5,
		PrevLogTerm:  1,
	})
	require.NoError(t, err)
	require.False(t, reply.Success, "must reject when prevLogIndex has no corresponding entry")
}

func TestHandleAppendEntriesAppliesEntriesAndAdvancesCommit(t *testing.T) {
	tc := newTestCluster(t, 1)
	defer tc.stopAll()
	e := tc.engines[0]

	payload, err := statemachine.Encode(types.CreateAccountPayload{Username: "alice"})
	require.NoError(t, err)

	reply, err := e.HandleAppendEntries(&AppendEntriesArgs{
		Term:     1,
		LeaderID: "leader",
		Entries: []*types.LogEntry{
			{Index: 1, Term: 1, CommandType: types.CreateAccountCmd, CommandData: payload},
		},
		LeaderCommit: 1,
	})
	require.NoError(t, err)
	require.True(t, reply.Success)
	require.Equal(t, uint64(1), reply.MatchIndex)

	commitIndex, err := e.store.CommitIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(1), commitIndex)
}

// TestLeaderFailoverElectsNewLeaderAndContinuesCommitting covers spec.md
// §8 seed scenario 2: after killing the leader, the surviving majority
// elects a new leader with a strictly higher term and keeps committing.
func TestLeaderFailoverElectsNewLeaderAndContinuesCommitting(t *testing.T) {
	tc := newTestCluster(t, 3)
	defer tc.stopAll()
	tc.startAll()

	leader := tc.waitForLeader(3 * time.Second)
	require.NotNil(t, leader)

	_, err := leader.AppendCommand(types.CreateAccountCmd, types.CreateAccountPayload{Username: "alice"})
	require.NoError(t, err)
	firstTerm := leader.Status().CurrentTerm

	var killedIdx int
	for i, e := range tc.engines {
		if e == leader {
			killedIdx = i
			break
		}
	}
	tc.kill(killedIdx)

	var newLeader *Engine
	require.Eventually(t, func() bool {
		var leaders []*Engine
		for i, e := range tc.engines {
			if i == killedIdx {
				continue
			}
			if e.IsLeader() {
				leaders = append(leaders, e)
			}
		}
		if len(leaders) == 1 {
			newLeader = leaders[0]
			return true
		}
		return false
	}, 5*time.Second, 20*time.Millisecond, "surviving majority must elect a new leader")

	require.Greater(t, newLeader.Status().CurrentTerm, firstTerm)

	_, err = newLeader.AppendCommand(types.CreateAccountCmd, types.CreateAccountPayload{Username: "bob"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for i, s := range tc.stores {
			if i == killedIdx {
				continue
			}
			users, err := s.ListUsers("")
			if err != nil || len(users) != 2 {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond, "both survivors must see {alice, bob}")
}

// TestRestartPersistsStateAcrossProcessRestart covers spec.md §8 seed
// scenario 3: after a fail-over, restarting both survivors must not lose
// previously-committed state, and each node's currentTerm after restart
// must be at least what it observed before restarting.
func TestRestartPersistsStateAcrossProcessRestart(t *testing.T) {
	tc := newTestCluster(t, 3)
	defer tc.stopAll()
	tc.startAll()

	leader := tc.waitForLeader(3 * time.Second)
	require.NotNil(t, leader)
	_, err := leader.AppendCommand(types.CreateAccountCmd, types.CreateAccountPayload{Username: "alice"})
	require.NoError(t, err)

	var leaderIdx int
	for i, e := range tc.engines {
		if e == leader {
			leaderIdx = i
		}
	}
	tc.kill(leaderIdx)

	require.Eventually(t, func() bool {
		for i, e := range tc.engines {
			if i != leaderIdx && e.IsLeader() {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	var survivors []int
	for i := range tc.engines {
		if i != leaderIdx {
			survivors = append(survivors, i)
		}
	}

	termsBeforeRestart := make(map[int]uint64)
	for _, i := range survivors {
		termsBeforeRestart[i] = tc.engines[i].Status().CurrentTerm
	}

	for _, i := range survivors {
		e := tc.restart(i)
		e.Start()
	}

	require.Eventually(t, func() bool {
		var leaders []*Engine
		for _, i := range survivors {
			if tc.engines[i].IsLeader() {
				leaders = append(leaders, tc.engines[i])
			}
		}
		return len(leaders) == 1
	}, 5*time.Second, 20*time.Millisecond, "two-node majority must re-elect after both restart")

	for _, i := range survivors {
		require.GreaterOrEqual(t, tc.engines[i].Status().CurrentTerm, termsBeforeRestart[i])
		users, err := tc.stores[i].ListUsers("")
		require.NoError(t, err)
		require.Equal(t, []string{"alice"}, users)
	}
}

// TestSendMessageTimestampIsDeterministicAcrossReplicas covers spec.md §8
// seed scenario 4: the leader-embedded timestamp, not an apply-time clock
// read, is what every replica persists.
func TestSendMessageTimestampIsDeterministicAcrossReplicas(t *testing.T) {
	tc := newTestCluster(t, 3)
	defer tc.stopAll()
	tc.startAll()

	leader := tc.waitForLeader(3 * time.Second)
	require.NotNil(t, leader)

	_, err := leader.AppendCommand(types.CreateAccountCmd, types.CreateAccountPayload{Username: "alice"})
	require.NoError(t, err)
	_, err = leader.AppendCommand(types.CreateAccountCmd, types.CreateAccountPayload{Username: "bob"})
	require.NoError(t, err)

	const sentAt int64 = 1700000000
	result, err := leader.AppendCommand(types.SendMessageCmd, types.SendMessagePayload{
		Sender: "alice", Recipient: "bob", Content: "hello", Timestamp: sentAt,
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	require.Eventually(t, func() bool {
		for _, s := range tc.stores {
			msgs, err := s.GetMessages("bob", true)
			if err != nil || len(msgs) != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond)

	for _, s := range tc.stores {
		msgs, err := s.GetMessages("bob", true)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Equal(t, "alice", msgs[0].Sender)
		require.Equal(t, "hello", msgs[0].Content)
		require.Equal(t, sentAt, msgs[0].Timestamp)
		require.False(t, msgs[0].IsRead)
	}
}

// TestPartitionHealRepairsFollowerLog covers spec.md §8 seed scenario 5:
// a follower cut off from the leader falls behind, but once the partition
// heals it catches its log up to match the other nodes.
func TestPartitionHealRepairsFollowerLog(t *testing.T) {
	tc := newTestCluster(t, 3)
	defer tc.stopAll()
	tc.startAll()

	leader := tc.waitForLeader(3 * time.Second)
	require.NotNil(t, leader)

	_, err := leader.AppendCommand(types.CreateAccountCmd, types.CreateAccountPayload{Username: "alice"})
	require.NoError(t, err)
	_, err = leader.AppendCommand(types.CreateAccountCmd, types.CreateAccountPayload{Username: "bob"})
	require.NoError(t, err)

	var partitionedIdx int
	for i, e := range tc.engines {
		if e != leader {
			partitionedIdx = i
			break
		}
	}
	partitionedID := tc.ids[partitionedIdx]
	tc.transport.setDropped(partitionedID, true)

	result, err := leader.AppendCommand(types.SendMessageCmd, types.SendMessagePayload{
		Sender: "alice", Recipient: "bob", Content: "m1", Timestamp: 1,
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	committedIndex := leader.Status().CommitIndex

	msgs, err := tc.stores[partitionedIdx].GetMessages("bob", true)
	require.NoError(t, err)
	require.Len(t, msgs, 0, "partitioned follower must not see the entry while cut off")

	tc.transport.setDropped(partitionedID, false)

	require.Eventually(t, func() bool {
		commitIndex, err := tc.stores[partitionedIdx].CommitIndex()
		return err == nil && commitIndex >= committedIndex
	}, 5*time.Second, 20*time.Millisecond, "healed follower must catch its log up to the leader")

	require.Eventually(t, func() bool {
		msgs, err := tc.stores[partitionedIdx].GetMessages("bob", true)
		return err == nil && len(msgs) == 1 && msgs[0].Content == "m1"
	}, 2*time.Second, 20*time.Millisecond, "healed follower must apply the repaired entry")
}

// TestSplitVoteEventuallyConverges covers spec.md §8 seed scenario 6:
// symmetric packet loss during the first election round can leave no
// leader elected, but randomized election timeouts eventually break the
// tie and exactly one node wins a later term.
func TestSplitVoteEventuallyConverges(t *testing.T) {
	tc := newTestCluster(t, 3)
	defer tc.stopAll()

	// Drop every peer's traffic for one election timeout so the first
	// round of RequestVote RPCs cannot form a quorum for anyone.
	for _, id := range tc.ids {
		tc.transport.setDropped(id, true)
	}
	tc.startAll()
	time.Sleep(electionTimeoutMax + 20*time.Millisecond)
	require.Nil(t, tc.waitForLeader(50*time.Millisecond), "a fully dropped first round must not elect a leader")

	for _, id := range tc.ids {
		tc.transport.setDropped(id, false)
	}

	leader := tc.waitForLeader(5 * time.Second)
	require.NotNil(t, leader, "cluster must eventually converge on a single leader")
	require.Greater(t, leader.Status().CurrentTerm, uint64(1))
}
