/*
Package metrics provides Prometheus metrics collection and exposition for
raftchatd.

Metrics are defined and registered at package init using the Prometheus
client library: consensus engine gauges/counters (term, role, commit
index, last applied, election count, AppendEntries outcomes), apply/commit
latency histograms, and RPC adapter request counters. All are exposed at
/metrics via Handler() for scraping.

# Metrics Catalog

raftchat_raft_term:
  - Type: Gauge
  - Description: Current Raft term on this node

raftchat_raft_role:
  - Type: Gauge
  - Description: Current Raft role on this node (0=follower, 1=candidate, 2=leader)

raftchat_raft_commit_index / raftchat_raft_last_applied:
  - Type: Gauge
  - Description: Current commit index / last applied log index on this node

raftchat_raft_election_count_total:
  - Type: Counter
  - Description: Total number of elections this node has started

raftchat_raft_append_entries_total{result}:
  - Type: Counter
  - Description: Total AppendEntries RPCs processed, by result
    (success, rejected, transport_error)

raftchat_raft_apply_duration_seconds / raftchat_raft_commit_duration_seconds:
  - Type: Histogram
  - Description: Time to apply a committed entry to the state machine /
    time for AppendCommand to observe its entry committed

raftchat_rpcadapter_requests_total{method, status}:
  - Type: Counter
  - Description: Total RPC adapter requests by method and gRPC status code

raftchat_rpcadapter_request_duration_seconds{method}:
  - Type: Histogram
  - Description: RPC adapter request duration by method

# Usage

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.RaftApplyDuration)

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.RPCRequestDuration, "SendMessage")

# Integration Points

This package integrates with:

  - pkg/consensus: updates term/role/commit/apply gauges and histograms
  - pkg/rpcadapter: instruments request counts and latency per method
  - Prometheus: scrapes /metrics endpoint
*/
package metrics
