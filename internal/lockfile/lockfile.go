// Package lockfile provides a workspace-level exclusive file lock guarding
// ledger-mutating batch operations (digest, draft apply, gc).
package lockfile

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// DefaultTimeout and DefaultPollInterval match the workspace lock contract:
// poll every 100ms, give up after 2s.
const (
	DefaultTimeout      = 2 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Handle is a held exclusive lock. Release it with Release (typically via
// defer) as soon as the guarded section completes.
type Handle struct {
	fl *flock.Flock
}

// newFlockFn exists so tests can substitute a fake locker without touching
// the filesystem.
var newFlockFn = flock.New

// Acquire tries to take an exclusive lock on path, polling every interval
// until timeout elapses. It returns ErrTimeout if the lock could not be
// acquired in time.
func Acquire(path string, timeout, interval time.Duration) (*Handle, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	fl := newFlockFn(path)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, interval)
	if err != nil {
		return nil, fmt.Errorf("lockfile: acquire %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lockfile: acquire %s: %w", path, ErrTimeout)
	}

	return &Handle{fl: fl}, nil
}

// Release drops the OS-level lock. A leaked lock blocks every other
// session from acquiring it, so callers must always release via defer.
func (h *Handle) Release() error {
	if h == nil || h.fl == nil {
		return nil
	}
	return h.fl.Unlock()
}
