// Package lock serializes hostkeep applies on one host.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the lock past the timeout.
var ErrLocked = errors.New("another hostkeep apply holds the lock")

const retryDelay = 100 * time.Millisecond

// Lock is an exclusive advisory file lock.
type Lock struct {
	path string
	lock *flock.Flock
}

// New returns a lock backed by path. The file is created on Acquire.
func New(path string) *Lock {
	return &Lock{path: path, lock: flock.New(path)}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire takes the lock, waiting up to timeout. A zero timeout tries once.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	var (
		ok  bool
		err error
	)
	if timeout <= 0 {
		ok, err = l.lock.TryLock()
	} else {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ok, err = l.lock.TryLockContext(ctx, retryDelay)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			err = nil
		}
	}
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (%s)", ErrLocked, l.path)
	}
	return nil
}

// Release drops the lock. The file is left in place.
func (l *Lock) Release() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
