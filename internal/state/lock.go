package state

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

// Lock is the advisory mutual-exclusion marker between one shutdown and one
// startup workflow. Presence of the marker, not its content, gates mutual
// exclusion; the lock is advisory, so callers tolerate benign races at
// creation and removal.
type Lock interface {
	// TryAcquire attempts to take the lock. Returns false, without error,
	// when another holder already has it.
	TryAcquire() (bool, error)

	// Release removes the marker. Releasing an unheld lock is not an error.
	Release() error

	// IsHeld reports whether any process currently holds the lock.
	IsHeld() (bool, error)
}

// FileLock persists the marker as a PID-bearing sentinel file
type FileLock struct {
	path string
}

// NewFileLock creates a lock backed by the given marker path
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (l *FileLock) TryAcquire() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("creating lock marker: %w", err)
	}

	_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(l.path)
		return false, fmt.Errorf("writing lock marker: %w", werr)
	}
	return true, nil
}

func (l *FileLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock marker: %w", err)
	}
	return nil
}

func (l *FileLock) IsHeld() (bool, error) {
	_, err := os.Stat(l.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking lock marker: %w", err)
}

// MemoryLock is an in-process Lock for tests
type MemoryLock struct {
	mu   sync.Mutex
	held bool
}

// NewMemoryLock creates an unheld in-memory lock
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{}
}

func (l *MemoryLock) TryAcquire() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *MemoryLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

func (l *MemoryLock) IsHeld() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held, nil
}
