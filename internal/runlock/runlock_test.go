package runlock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestLock(t *testing.T) *FileLock {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "run.lock"))
}

func TestAcquireRelease(t *testing.T) {
	lock := newTestLock(t)

	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if _, err := os.Stat(lock.Path()); err != nil {
		t.Errorf("lock file missing after Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Error("lock file still present after Release")
	}
}

func TestAcquireContention(t *testing.T) {
	lock := newTestLock(t)

	if err := lock.Acquire(); err != nil {
		t.Fatalf("first Acquire() error: %v", err)
	}

	// A second acquire while the first handle is outstanding must fail
	// with ErrLocked, whether from the same lock or another instance
	// pointed at the same file.
	if err := lock.Acquire(); !errors.Is(err, ErrLocked) {
		t.Errorf("second Acquire() = %v, want ErrLocked", err)
	}
	other := New(lock.Path())
	if err := other.Acquire(); !errors.Is(err, ErrLocked) {
		t.Errorf("other process Acquire() = %v, want ErrLocked", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if err := lock.Acquire(); err != nil {
		t.Errorf("Acquire() after Release() error: %v", err)
	}
}

func TestHolder(t *testing.T) {
	lock := newTestLock(t)

	if _, held, err := lock.Holder(); err != nil || held {
		t.Fatalf("Holder() before Acquire = held %v, err %v; want false, nil", held, err)
	}

	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	pid, held, err := lock.Holder()
	if err != nil {
		t.Fatalf("Holder() error: %v", err)
	}
	if !held {
		t.Fatal("Holder() = not held, want held")
	}
	if pid != os.Getpid() {
		t.Errorf("Holder() pid = %d, want %d", pid, os.Getpid())
	}
}

// A crash leaves the lock file behind; it must still block acquisition
// until explicitly cleared. No TTL, no auto-expiry.
func TestStaleLockBlocksUntilCleared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	if err := os.WriteFile(path, []byte("99999\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	lock := New(path)
	if err := lock.Acquire(); !errors.Is(err, ErrLocked) {
		t.Fatalf("Acquire() with stale lock = %v, want ErrLocked", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release() of stale lock error: %v", err)
	}
	if err := lock.Acquire(); err != nil {
		t.Errorf("Acquire() after clearing stale lock error: %v", err)
	}
}
