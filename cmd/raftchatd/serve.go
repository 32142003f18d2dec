package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raftchat/raftchatd/pkg/config"
	"github.com/raftchat/raftchatd/pkg/log"
	"github.com/raftchat/raftchatd/pkg/node"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start this node and join its configured cluster",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "path to the node's YAML config file")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	n, err := node.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct node: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.WithComponent("cmd").Info().Msg("received shutdown signal")
		if err := n.Shutdown(); err != nil {
			log.WithComponent("cmd").Error().Err(err).Msg("error during shutdown")
		}
	}()

	return n.Serve()
}
