package node

import (
	"testing"
	"time"

	"github.com/raftchat/raftchatd/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestSingleNodeServesAndElectsItself(t *testing.T) {
	cfg := &config.Config{
		NodeID:      "solo",
		ListenAddr:  "127.0.0.1:0",
		StoragePath: t.TempDir(),
		Peers:       map[string]string{},
	}

	n, err := New(cfg)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- n.Serve() }()

	require.Eventually(t, func() bool {
		return n.Engine().IsLeader()
	}, 2*time.Second, 20*time.Millisecond, "a single-node cluster must elect itself")

	require.NoError(t, n.Shutdown())

	select {
	case err := <-errCh:
		require.NoError(t, err, "Serve returns nil once GracefulStop completes")
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}
