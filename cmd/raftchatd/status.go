package main

import (
	"context"
	"fmt"
	"time"

	"github.com/raftchat/raftchatd/pkg/rpcclient"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a node's Raft status over its gRPC listener",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("addr", "", "address of the node to query (host:port)")
	_ = statusCmd.MarkFlagRequired("addr")
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	client, err := rpcclient.DialForward(addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("status query failed: %w", err)
	}

	fmt.Printf("node_id:      %s\n", reply.NodeID)
	fmt.Printf("role:         %s\n", reply.Role)
	fmt.Printf("current_term: %d\n", reply.CurrentTerm)
	fmt.Printf("leader_id:    %s\n", reply.LeaderID)
	fmt.Printf("commit_index: %d\n", reply.CommitIndex)
	fmt.Printf("last_applied: %d\n", reply.LastApplied)
	return nil
}
