//go:build windows

package storage

import (
	"os"
	"time"

	"golang.org/x/sys/windows"
)

const lockPollInterval = 10 * time.Millisecond

// FileLock guards the ledger file against a second clipsync process via an
// exclusive LockFileEx region on a sidecar ".lock" file.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock prepares a lock next to path. Nothing is acquired until Lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path + ".lock"}
}

// Lock polls for an exclusive lock until timeout, then returns
// ErrLockTimeout.
func (l *FileLock) Lock(timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return &StorageError{Op: "lock", Entity: "file", ID: l.path, Err: err}
	}

	deadline := time.Now().Add(timeout)
	for {
		var ov windows.Overlapped
		err := windows.LockFileEx(
			windows.Handle(f.Fd()),
			windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
			0, 1, 0, &ov)
		if err == nil {
			l.file = f
			return nil
		}
		if !time.Now().Add(lockPollInterval).Before(deadline) {
			f.Close()
			return ErrLockTimeout
		}
		time.Sleep(lockPollInterval)
	}
}

// Unlock releases the lock and removes the sidecar file. Unlocking an
// unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	var ov windows.Overlapped
	windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, &ov)
	l.file.Close()
	os.Remove(l.path)
	l.file = nil
	return nil
}
