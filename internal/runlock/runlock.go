// Package runlock provides the mutual-exclusion marker that prevents
// overlapping poll cycles. The lock is a plain file created with
// O_EXCL, so acquisition is atomic with respect to concurrent
// processes and the marker survives a crash.
//
// There is deliberately no TTL: if the owning process dies while
// holding the lock, the file stays behind and every subsequent cycle
// is skipped until an operator clears it (`spacewatch unlock`).
// Auto-expiry would allow two cycles to overlap after a slow but alive
// cycle outlives the TTL.
package runlock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// ErrLocked is returned by Acquire when the lock file already exists,
// meaning another cycle is (or was, before a crash) running.
var ErrLocked = errors.New("run lock already held")

// FileLock guards a single resource via an exclusive-create lock file.
type FileLock struct {
	path string
}

func New(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.path
}

// Acquire creates the lock file, failing with ErrLocked if it already
// exists. The owning pid is written into the file for diagnostics.
func (l *FileLock) Acquire() error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrLocked
		}
		return fmt.Errorf("create lock file %s: %w", l.path, err)
	}
	_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("write lock file %s: %w", l.path, werr)
	}
	if cerr != nil {
		return fmt.Errorf("close lock file %s: %w", l.path, cerr)
	}
	return nil
}

// Release removes the lock file. Only the cycle that acquired the lock
// should call this; it runs on every exit path, success or failure.
func (l *FileLock) Release() error {
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("remove lock file %s: %w", l.path, err)
	}
	return nil
}

// Holder reports the pid recorded in an existing lock file. Returns
// false when no lock file is present.
func (l *FileLock) Holder() (pid int, held bool, err error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read lock file %s: %w", l.path, err)
	}
	pid, _ = strconv.Atoi(strings.TrimSpace(string(data)))
	return pid, true, nil
}
