package state

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestFileLock_AcquireReleaseCycle(t *testing.T) {
	lock := NewFileLock(filepath.Join(t.TempDir(), "shutdown.lock"))

	held, err := lock.IsHeld()
	if err != nil || held {
		t.Fatalf("Expected fresh lock unheld, held=%v err=%v", held, err)
	}

	ok, err := lock.TryAcquire()
	if err != nil || !ok {
		t.Fatalf("Expected acquire to succeed, ok=%v err=%v", ok, err)
	}

	held, err = lock.IsHeld()
	if err != nil || !held {
		t.Fatalf("Expected lock held after acquire, held=%v err=%v", held, err)
	}

	// Second acquire must fail without error
	ok, err = lock.TryAcquire()
	if err != nil {
		t.Fatalf("Second acquire errored: %v", err)
	}
	if ok {
		t.Fatal("Expected second acquire to be refused")
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	held, err = lock.IsHeld()
	if err != nil || held {
		t.Fatalf("Expected lock unheld after release, held=%v err=%v", held, err)
	}
}

func TestFileLock_MarkerCarriesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shutdown.lock")
	lock := NewFileLock(path)

	if ok, err := lock.TryAcquire(); !ok || err != nil {
		t.Fatalf("Acquire failed: ok=%v err=%v", ok, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Reading marker: %v", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("Marker content is not a PID: %q", data)
	}

	if pid != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), pid)
	}
}

func TestFileLock_ReleaseUnheld(t *testing.T) {
	lock := NewFileLock(filepath.Join(t.TempDir(), "shutdown.lock"))

	if err := lock.Release(); err != nil {
		t.Errorf("Releasing an unheld lock should be a no-op, got %v", err)
	}
}

func TestMemoryLock(t *testing.T) {
	lock := NewMemoryLock()

	ok, _ := lock.TryAcquire()
	if !ok {
		t.Fatal("Expected acquire to succeed")
	}

	ok, _ = lock.TryAcquire()
	if ok {
		t.Fatal("Expected second acquire refused")
	}

	held, _ := lock.IsHeld()
	if !held {
		t.Fatal("Expected held")
	}

	_ = lock.Release()
	held, _ = lock.IsHeld()
	if held {
		t.Fatal("Expected unheld after release")
	}
}
