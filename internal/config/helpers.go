package config

import (
	"net"
	"os"
	"path/filepath"
)

// EnsureStateDir ensures the durable state directory exists
func (c *Config) EnsureStateDir() error {
	return os.MkdirAll(c.State.Dir, 0755)
}

// SnapshotPath returns the full path of the workload snapshot file
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.State.Dir, c.State.SnapshotFile)
}

// LockPath returns the full path of the shutdown lock marker
func (c *Config) LockPath() string {
	return filepath.Join(c.State.Dir, c.State.LockFile)
}

// NodeTarget returns the probe address for a node, defaulting to the node
// name on the SSH port when none is configured
func (c *NetworkConfig) NodeTarget(node string) string {
	if addr, ok := c.NodeAddrs[node]; ok {
		return addr
	}
	return net.JoinHostPort(node, "22")
}

// IsExcluded reports whether a node is in the configured exclusion set
func (c *ClusterConfig) IsExcluded(node string) bool {
	for _, n := range c.ExcludeNodes {
		if n == node {
			return true
		}
	}
	return false
}
