package startup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"cabplanner/internal/debug"
)

// lockFileName is the per-user single-instance lock file.
const lockFileName = "cabplanner.lock"

// InstanceLock enforces one running cabplanner per user via an advisory
// file lock. The OS releases the lock when the process dies, so a crash
// never leaves the lock stuck.
type InstanceLock struct {
	lock *flock.Flock
}

// AcquireInstanceLock tries to take the per-user lock without blocking.
// It returns (nil, false, nil) when another instance already holds it.
func AcquireInstanceLock() (*InstanceLock, bool, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, false, fmt.Errorf("determine user home: %w", err)
	}
	return acquireInstanceLockAt(filepath.Join(home, debug.LogDirName, lockFileName))
}

func acquireInstanceLockAt(path string) (*InstanceLock, bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("create lock directory: %w", err)
	}

	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		debug.Logf("instance lock held by another process: %s", path)
		return nil, false, nil
	}

	debug.Logf("acquired instance lock: %s", path)
	return &InstanceLock{lock: lock}, true, nil
}

// Release gives up the lock. Safe to call on a nil receiver so callers
// can defer it unconditionally.
func (l *InstanceLock) Release() {
	if l == nil || l.lock == nil {
		return
	}
	_ = l.lock.Unlock()
}
