// Package joblock keeps mvdown invocations on one machine from streaming two
// jobs at once and remembers the most recent job for "mvdown watch".
package joblock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

const (
	lockFileName    = "mvdown.lock"
	lastJobFileName = "last_job"
)

// ErrBusy is returned by Acquire when another process holds the lock.
var ErrBusy = errors.New("another mvdown download is already streaming")

// Lock is a cross-process lock rooted in the state directory.
type Lock struct {
	dir  string
	path string
	lock *flock.Flock
}

// New prepares a lock in stateDir. Nothing is created until Acquire.
func New(stateDir string) *Lock {
	path := filepath.Join(stateDir, lockFileName)
	return &Lock{dir: stateDir, path: path, lock: flock.New(path)}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrBusy
	}
	return nil
}

// Release drops the lock. It is safe to call when the lock is not held.
func (l *Lock) Release() error {
	if !l.lock.Locked() {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// RecordJob remembers jobID as the most recent job.
func RecordJob(stateDir, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	target := filepath.Join(stateDir, lastJobFileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte(jobID+"\n"), 0o644); err != nil {
		return fmt.Errorf("write last job: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("write last job: %w", err)
	}
	return nil
}

// LastJob returns the most recently recorded job id, or "" when none exists.
func LastJob(stateDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, lastJobFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read last job: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
