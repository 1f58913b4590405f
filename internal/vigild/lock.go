package vigild

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrSessionLocked is returned when another vigild already controls the
// session on this host.
var ErrSessionLocked = errors.New("session already controlled on this host")

// SessionLock guarantees a single controller per session per host.
type SessionLock struct {
	path string
	lock *flock.Flock
}

// LockPath returns the lock file for session under dir. An empty dir uses
// $XDG_RUNTIME_DIR/vigil, falling back to the temp dir.
func LockPath(dir, session string) string {
	if dir == "" {
		if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
			dir = filepath.Join(runtime, "vigil")
		} else {
			dir = filepath.Join(os.TempDir(), "vigil")
		}
	}
	return filepath.Join(dir, session+".lock")
}

// AcquireSessionLock takes the session lock without blocking.
func AcquireSessionLock(dir, session string) (*SessionLock, error) {
	if session == "" {
		return nil, errors.New("session required")
	}
	path := LockPath(dir, session)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionLocked, path)
	}
	return &SessionLock{path: path, lock: lock}, nil
}

// Path returns the lock file path.
func (l *SessionLock) Path() string {
	return l.path
}

// Release drops the lock.
func (l *SessionLock) Release() error {
	return l.lock.Unlock()
}
