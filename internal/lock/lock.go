// Package lock serializes mutating commands on one run-directory with an
// advisory flock(2) on <run>/.lock.
//
// The lock is advisory: it only excludes other playbookctl processes. The
// kernel releases it when the holder exits, so a crash never leaves a stale
// lock behind, although the file itself remains.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"playbookctl/internal/core"
)

// FileName is the lock file inside the run-directory.
const FileName = ".lock"

// ErrLocked reports a run-directory held by another process.
var ErrLocked = errors.New("run directory is locked")

// LockedError names the contended lock and, when known, its holder.
type LockedError struct {
	Path string
	PID  int
}

func (e *LockedError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("%s: %s (held by PID %d)", ErrLocked, e.Path, e.PID)
	}
	return fmt.Sprintf("%s: %s", ErrLocked, e.Path)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// RunDirLock is a held lock. It is not safe for concurrent use.
type RunDirLock struct {
	path string
	file *os.File
}

// Acquire takes the exclusive lock without blocking. Contention fails fast
// with a *LockedError.
func Acquire(runDir string) (*RunDirLock, error) {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, &core.IOError{Op: "create run dir", Path: runDir, Err: err}
	}
	path := filepath.Join(runDir, FileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, &core.IOError{Op: "open lock", Path: path, Err: err}
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, &LockedError{Path: path, PID: readPID(path)}
		}
		return nil, &core.IOError{Op: "flock", Path: path, Err: err}
	}

	// The PID is informational only.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &RunDirLock{path: path, file: f}, nil
}

// Path is the lock file.
func (l *RunDirLock) Path() string {
	return l.path
}

// Release drops the lock. Releasing twice is a no-op.
func (l *RunDirLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = l.file.Truncate(0)
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return closeErr
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
