// Package state owns the two pieces of durable shared state: the workload
// snapshot that carries running guests across a power cycle, and the
// advisory lock that serializes a shutdown against a startup. Both live on
// the local disk of the UPS-attached host and are replaced atomically so a
// reader never observes a torn file.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// NodeWorkloads records the guests observed running on one node at capture
// time, ordered as the API reported them.
type NodeWorkloads struct {
	VMs        []int `json:"qemu"`
	Containers []int `json:"lxc"`
}

// Workloads maps node name to its captured running guests
type Workloads map[string]NodeWorkloads

// Total returns the number of captured guests across all nodes
func (w Workloads) Total() int {
	total := 0
	for _, nw := range w {
		total += len(nw.VMs) + len(nw.Containers)
	}
	return total
}

// SnapshotStore persists a Workloads snapshot as a single JSON file.
// A snapshot is either fully absent or fully present: writes go to a
// temporary file in the same directory, are fsynced, then renamed over
// the target.
type SnapshotStore struct {
	path string
}

// NewSnapshotStore creates a store backed by the given file path
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Save atomically replaces the snapshot
func (s *SnapshotStore) Save(w Workloads) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding workload snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("syncing snapshot: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing snapshot temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. Returns (nil, nil) when no snapshot exists,
// meaning no prior shutdown was captured or a completed startup consumed it.
func (s *SnapshotStore) Load() (Workloads, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading workload snapshot: %w", err)
	}

	var w Workloads
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding workload snapshot: %w", err)
	}
	return w, nil
}

// Delete removes the snapshot. Deleting an absent snapshot is not an error.
func (s *SnapshotStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting workload snapshot: %w", err)
	}
	return nil
}

// Exists reports whether a snapshot is currently present
func (s *SnapshotStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
