package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileLock is an exclusive advisory lock held on a dedicated lock file.
// Lock files are never renamed over, so the lock survives AtomicWrite
// replacing the data file it protects.
type FileLock struct {
	file *os.File
}

// Lock opens (creating if needed) the lock file at path and blocks until an
// exclusive lock is held. Locks are per open file, so two goroutines in one
// process exclude each other as well as separate processes.
func Lock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("flock %s: %w", filepath.Base(path), err)
	}
	return &FileLock{file: file}, nil
}

// Unlock releases the lock and closes the lock file.
func (l *FileLock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return fmt.Errorf("unlock: %w", unlockErr)
	}
	return closeErr
}
