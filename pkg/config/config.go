// Package config loads the per-node startup configuration (spec.md §6):
// node_id, listen_address, storage_path, and the static peer set.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is a node's startup configuration. The peer set is static for the
// life of the process (spec.md §1 — membership reconfiguration is a
// non-goal).
type Config struct {
	NodeID       string            `yaml:"node_id"`
	ListenAddr   string            `yaml:"listen_address"`
	StoragePath  string            `yaml:"storage_path"`
	Peers        map[string]string `yaml:"peers"` // peer node_id -> address
	LogLevel     string            `yaml:"log_level"`
	LogJSON      bool              `yaml:"log_json"`
	MetricsAddr  string            `yaml:"metrics_address"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the required fields are present and self-consistent.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_address is required")
	}
	if c.StoragePath == "" {
		return fmt.Errorf("storage_path is required")
	}
	if _, isSelfPeer := c.Peers[c.NodeID]; isSelfPeer {
		return fmt.Errorf("peers must not contain this node's own node_id (%s)", c.NodeID)
	}
	return nil
}

// ClusterSize returns the total number of voting members: this node plus its
// configured peers.
func (c *Config) ClusterSize() int {
	return len(c.Peers) + 1
}
