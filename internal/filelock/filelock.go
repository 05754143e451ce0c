// Package filelock serializes report writes between concurrent runs. Every
// destination is guarded by a sibling ".lock" file and replaced atomically,
// so readers see either the previous report or the complete new one.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultRetryDelay is how often a blocked writer retries the lock
const DefaultRetryDelay = 50 * time.Millisecond

// ErrLockTimeout is returned when the lock is still held when ctx expires
var ErrLockTimeout = errors.New("timed out waiting for file lock")

// Lock is an exclusive advisory lock held on a lock file
type Lock struct {
	flock *flock.Flock
	path  string
}

// LockPath returns the lock file guarding path
func LockPath(path string) string {
	return path + ".lock"
}

// Acquire takes the lock at lockPath, retrying every retryDelay until ctx is
// done.
func Acquire(ctx context.Context, lockPath string, retryDelay time.Duration) (*Lock, error) {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
		}
		return nil, fmt.Errorf("failed to acquire lock on %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
	}
	return &Lock{flock: fl, path: lockPath}, nil
}

// Release unlocks. The lock file is left in place for the next writer.
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// AtomicWrite replaces path with data via a temp file in the same directory
// and a rename. On failure the previous content is left untouched.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	committed := false
	defer func() {
		if !committed {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	committed = true
	return nil
}

// LockAndWrite writes data to path while holding LockPath(path), waiting as
// long as it takes.
func LockAndWrite(path string, data []byte) error {
	return LockAndWriteContext(context.Background(), path, data)
}

// LockAndWriteContext is LockAndWrite bounded by ctx
func LockAndWriteContext(ctx context.Context, path string, data []byte) error {
	lock, err := Acquire(ctx, LockPath(path), DefaultRetryDelay)
	if err != nil {
		return err
	}
	defer lock.Release()

	return AtomicWrite(path, data)
}
