// Package userpaths resolves the storage root and its derived subpaths, and
// provides the daemon's single-instance advisory lock. The storage root is
// read-once process-wide state: a later call with a different path must
// fail, so already-derived subpaths are never silently repointed.
package userpaths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
)

var (
	resolveOnce sync.Once
	resolved    atomic.Pointer[string]
	resolveErr  error
)

// DefaultRoot returns "~/.config/compressarr", the storage root used when
// -U/--user-storage-path is not given.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "compressarr"), nil
}

// Resolve sets the process-wide storage root on first call and returns it on
// every call. A later call with a path that differs from the first returns
// an error instead of silently repointing already-derived subpaths.
func Resolve(path string) (string, error) {
	resolveOnce.Do(func() {
		abs, err := filepath.Abs(path)
		if err != nil {
			resolveErr = fmt.Errorf("resolve storage root: %w", err)
			return
		}
		resolved.Store(&abs)
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	current := resolved.Load()
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve storage root: %w", err)
	}
	if current != nil && *current != abs {
		return "", fmt.Errorf("storage root already set to %q, cannot change to %q", *current, abs)
	}
	return *current, nil
}

// resetForTest clears the sync.Once guard. Only called from this package's
// own tests.
func resetForTest() {
	resolveOnce = sync.Once{}
	resolved.Store(nil)
	resolveErr = nil
}

// Root holds the storage root plus its conventional subpaths.
type Root struct {
	Storage    string
	JobRoot    string
	Persist    string
	JobActions string
	ConfigPath string
}

// Derive computes Root's subpaths from storage, applying jobRootOverride
// (the -J flag) when non-empty.
func Derive(storage, jobRootOverride string) Root {
	jobRoot := filepath.Join(storage, "jobs")
	if jobRootOverride != "" {
		jobRoot = jobRootOverride
	}
	return Root{
		Storage:    storage,
		JobRoot:    jobRoot,
		Persist:    filepath.Join(storage, "persist"),
		JobActions: filepath.Join(storage, "job actions"),
		ConfigPath: filepath.Join(storage, "config.json"),
	}
}

// EnsureDirectories creates the job root, persist, and job-actions
// directories under the storage root. Failure to create the job root is
// fatal; the other two are best-effort, since neither blocks startup.
func (r Root) EnsureDirectories() error {
	if err := os.MkdirAll(r.JobRoot, 0o755); err != nil {
		return fmt.Errorf("ensure job root %s: %w", r.JobRoot, err)
	}
	if err := checkReadWriteAccess(r.JobRoot); err != nil {
		return fmt.Errorf("job root %s: %w", r.JobRoot, err)
	}
	_ = os.MkdirAll(r.Persist, 0o755)
	_ = os.MkdirAll(r.JobActions, 0o755)
	return nil
}

// InstanceLock is the daemon's advisory single-instance guard, held for the
// lifetime of the process at <storage>/compressarrd.lock.
type InstanceLock struct {
	path string
	lock *flock.Flock
}

// NewInstanceLock constructs (but does not acquire) the lock for root.
func NewInstanceLock(root Root) *InstanceLock {
	path := filepath.Join(root.Storage, "compressarrd.lock")
	return &InstanceLock{path: path, lock: flock.New(path)}
}

// Acquire attempts to take the lock. ok is false if another process already
// holds it.
func (l *InstanceLock) Acquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire instance lock: %w", err)
	}
	return ok, nil
}

// Release unlocks the instance lock. Safe to call even if Acquire never
// succeeded.
func (l *InstanceLock) Release() error {
	if l.lock == nil {
		return nil
	}
	if !l.lock.Locked() {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release instance lock: %w", err)
	}
	return nil
}

// ErrAlreadyRunning is returned by callers wrapping a failed Acquire.
var ErrAlreadyRunning = errors.New("userpaths: another instance already holds the storage root lock")
