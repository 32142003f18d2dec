// Package metrics exposes the node's Prometheus instrumentation: consensus
// engine gauges/counters, persistence/apply latency histograms, and RPC
// adapter request counters.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Consensus engine metrics

	RaftTerm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftchat_raft_term",
			Help: "Current Raft term on this node",
		},
	)

	RaftRole = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftchat_raft_role",
			Help: "Current Raft role on this node (0=follower, 1=candidate, 2=leader)",
		},
	)

	RaftCommitIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftchat_raft_commit_index",
			Help: "Current Raft commit index on this node",
		},
	)

	RaftLastApplied = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftchat_raft_last_applied",
			Help: "Last applied Raft log index on this node",
		},
	)

	RaftElectionCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raftchat_raft_election_count_total",
			Help: "Total number of elections this node has started",
		},
	)

	RaftAppendEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raftchat_raft_append_entries_total",
			Help: "Total number of AppendEntries RPCs processed, by result",
		},
		[]string{"result"},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raftchat_raft_apply_duration_seconds",
			Help:    "Time taken to apply a committed log entry to the state machine",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raftchat_raft_commit_duration_seconds",
			Help:    "Time taken for AppendCommand to observe its entry committed",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RPC adapter metrics

	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raftchat_rpcadapter_requests_total",
			Help: "Total number of RPC adapter requests by method and status",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raftchat_rpcadapter_request_duration_seconds",
			Help:    "RPC adapter request duration in seconds by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Chat application metrics, refreshed periodically by Collector since
	// they are not naturally event-driven (unlike the Raft gauges above,
	// which the consensus engine sets inline on every state transition).

	ChatUsersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftchat_chat_users_total",
			Help: "Total number of registered chat accounts",
		},
	)
)

func init() {
	prometheus.MustRegister(RaftTerm)
	prometheus.MustRegister(RaftRole)
	prometheus.MustRegister(RaftCommitIndex)
	prometheus.MustRegister(RaftLastApplied)
	prometheus.MustRegister(RaftElectionCount)
	prometheus.MustRegister(RaftAppendEntriesTotal)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(RaftCommitDuration)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
	prometheus.MustRegister(ChatUsersTotal)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
