// Package lock provides the cross-process locks that serialize launcher
// mutations. Locks are advisory flock(2)/LockFileEx locks via gofrs/flock,
// so they are released automatically if the holder dies.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/steveyegge/pawlaunch/internal/exitcode"
)

// Lock is a held lock. Release is safe to call more than once.
type Lock struct {
	fl *flock.Flock
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Release unlocks and closes the lock file. The file itself is left in
// place; removing it would let a waiter lock an unlinked inode.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

func newFlock(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	return flock.New(path), nil
}

// AcquireOperation takes the install/upgrade/reset lock without waiting.
// If another process (or another caller in this process) holds it, the
// returned error has code exitcode.ErrOperationInProgress.
func AcquireOperation(path, operation string) (*Lock, error) {
	fl, err := newFlock(path)
	if err != nil {
		return nil, err
	}

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring operation lock: %w", err)
	}
	if !locked {
		return nil, exitcode.OperationInProgress(operation)
	}
	return &Lock{fl: fl}, nil
}

// WaitOperation is like AcquireOperation but polls until ctx is done.
// Uninstall uses it to wait out an install that is finishing.
func WaitOperation(ctx context.Context, path, operation string) (*Lock, error) {
	fl, err := newFlock(path)
	if err != nil {
		return nil, err
	}

	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		if ctx.Err() != nil {
			return nil, exitcode.OperationInProgress(operation)
		}
		return nil, fmt.Errorf("acquiring operation lock: %w", err)
	}
	if !locked {
		return nil, exitcode.OperationInProgress(operation)
	}
	return &Lock{fl: fl}, nil
}

// AcquireInstance takes the single-launcher lock. A second launcher for the
// same home gets an error naming the lock file.
func AcquireInstance(path string) (*Lock, error) {
	fl, err := newFlock(path)
	if err != nil {
		return nil, err
	}

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring instance lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("launcher already running (lock held: %s)", path)
	}
	return &Lock{fl: fl}, nil
}

// InstanceHeld reports whether a launcher currently holds the instance
// lock at path. It briefly takes the lock itself when it is free.
func InstanceHeld(path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("probing instance lock: %w", err)
	}
	if locked {
		_ = fl.Unlock()
		return false, nil
	}
	return true, nil
}
