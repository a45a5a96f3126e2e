package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *SnapshotStore {
	t.Helper()
	return NewSnapshotStore(filepath.Join(t.TempDir(), "workloads.json"))
}

func TestSnapshot_SaveLoadDelete(t *testing.T) {
	store := testStore(t)

	want := Workloads{
		"pve1": {VMs: []int{100, 101}, Containers: []int{200}},
		"pve2": {VMs: []int{110}, Containers: []int{}},
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if !store.Exists() {
		t.Fatal("Expected snapshot to exist after save")
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(got))
	}

	if got["pve1"].VMs[0] != 100 || got["pve1"].VMs[1] != 101 {
		t.Errorf("VM order not preserved: %v", got["pve1"].VMs)
	}

	if got.Total() != 4 {
		t.Errorf("Expected total 4, got %d", got.Total())
	}

	if err := store.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if store.Exists() {
		t.Error("Expected snapshot gone after delete")
	}
}

func TestSnapshot_LoadAbsent(t *testing.T) {
	store := testStore(t)

	w, err := store.Load()
	if err != nil {
		t.Fatalf("Load of absent snapshot failed: %v", err)
	}

	if w != nil {
		t.Errorf("Expected nil workloads for absent snapshot, got %v", w)
	}
}

func TestSnapshot_DeleteAbsent(t *testing.T) {
	store := testStore(t)

	if err := store.Delete(); err != nil {
		t.Errorf("Delete of absent snapshot should be a no-op, got %v", err)
	}
}

func TestSnapshot_WireFormat(t *testing.T) {
	store := testStore(t)

	if err := store.Save(Workloads{"pve1": {VMs: []int{100}, Containers: []int{200}}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(store.path)
	if err != nil {
		t.Fatalf("Reading snapshot file: %v", err)
	}

	var raw map[string]map[string][]int
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Snapshot is not the expected JSON shape: %v", err)
	}

	if raw["pve1"]["qemu"][0] != 100 {
		t.Errorf("Expected qemu key in wire format, got %v", raw)
	}

	if raw["pve1"]["lxc"][0] != 200 {
		t.Errorf("Expected lxc key in wire format, got %v", raw)
	}
}

func TestSnapshot_NoTempFileSurvives(t *testing.T) {
	store := testStore(t)

	if err := store.Save(Workloads{"pve1": {VMs: []int{100}}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(store.path))
	if err != nil {
		t.Fatalf("Reading state dir: %v", err)
	}

	if len(entries) != 1 {
		t.Errorf("Expected only the snapshot file, found %d entries", len(entries))
	}
}
