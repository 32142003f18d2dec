// Package node wires one process's storage, state machine, consensus
// engine, and RPC adapter together and owns their lifecycle — the
// per-process supervisor the teacher calls a Manager, adapted to this
// module's layering (spec.md §2, §4).
package node

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/raftchat/raftchatd/pkg/config"
	"github.com/raftchat/raftchatd/pkg/consensus"
	"github.com/raftchat/raftchatd/pkg/log"
	"github.com/raftchat/raftchatd/pkg/metrics"
	"github.com/raftchat/raftchatd/pkg/rpcadapter"
	"github.com/raftchat/raftchatd/pkg/rpcclient"
	"github.com/raftchat/raftchatd/pkg/storage"
	"google.golang.org/grpc"
)

// chatMetricsRefreshInterval is how often the Collector refreshes
// store-derived gauges (e.g. registered account counts) that have no
// natural event hook, unlike the Raft gauges the engine updates inline.
const chatMetricsRefreshInterval = 10 * time.Second

// Node is a single cluster member: its store, consensus engine, gRPC
// server, and (optional) metrics HTTP server.
type Node struct {
	cfg *config.Config

	store  storage.Store
	peers  *rpcclient.PeerPool
	engine *consensus.Engine

	grpcServer    *grpc.Server
	metricsServer *http.Server
	collector     *metrics.Collector
}

// New constructs a Node from cfg but does not start anything yet.
func New(cfg *config.Config) (*Node, error) {
	store, err := storage.NewBoltStore(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	peers := rpcclient.NewPeerPool(cfg.Peers)

	engine, err := consensus.New(cfg.NodeID, cfg.Peers, store, peers)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build consensus engine: %w", err)
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(rpcadapter.LoggingInterceptor()))
	server := rpcadapter.NewServer(engine, store, cfg.Peers)
	grpcServer.RegisterService(&rpcadapter.ServiceDesc, server)

	n := &Node{
		cfg:        cfg,
		store:      store,
		peers:      peers,
		engine:     engine,
		grpcServer: grpcServer,
	}

	metrics.RegisterComponent("storage", true, "")
	metrics.RegisterComponent("consensus", false, "not started")

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		n.metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		n.collector = metrics.NewCollector(store, n.refreshConsensusHealth, chatMetricsRefreshInterval)
	}

	return n, nil
}

// refreshConsensusHealth updates the "consensus" health component from the
// engine's current Raft status: healthy once the node knows of a leader
// (itself or another member), unhealthy while a leader election is still
// outstanding. Passed to the Collector as its onTick hook so pkg/metrics
// never needs to import pkg/consensus (engine.go already imports
// pkg/metrics for the Raft gauges, and the reverse import would cycle).
func (n *Node) refreshConsensusHealth() {
	status := n.engine.Status()
	if status.LeaderID != "" {
		metrics.UpdateComponent("consensus", true, "")
		return
	}
	metrics.UpdateComponent("consensus", false, "no leader elected")
}

// Serve starts the consensus engine's background goroutines and blocks
// serving gRPC on cfg.ListenAddr until Shutdown is called (or the listener
// fails). The metrics server, if configured, runs in the background.
func (n *Node) Serve() error {
	n.engine.Start()

	if n.collector != nil {
		n.collector.Start()
	}

	if n.metricsServer != nil {
		go func() {
			if err := n.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithComponent("node").Error().Err(err).Msg("metrics server exited")
			}
		}()
	}

	lis, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.ListenAddr, err)
	}

	log.WithNodeID(log.WithComponent("node"), n.cfg.NodeID).Info().Str("addr", n.cfg.ListenAddr).Msg("serving")
	return n.grpcServer.Serve(lis)
}

// Shutdown stops the gRPC server, the consensus engine, and closes the
// store, in that order (stop accepting new work before tearing down what
// it depends on).
func (n *Node) Shutdown() error {
	n.grpcServer.GracefulStop()
	n.engine.Stop()
	if n.collector != nil {
		n.collector.Stop()
	}
	if err := n.peers.Close(); err != nil {
		log.WithComponent("node").Error().Err(err).Msg("closing peer pool")
	}
	if n.metricsServer != nil {
		_ = n.metricsServer.Close()
	}
	if err := n.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

// Engine exposes the consensus engine for the status CLI subcommand and
// for tests.
func (n *Node) Engine() *consensus.Engine { return n.engine }
