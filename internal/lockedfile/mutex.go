// Package lockedfile provides a cross-process mutex backed by a lock file.
package lockedfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked is returned by TryLock when another process holds the mutex.
var ErrLocked = errors.New("lock held by another process")

// Mutex is a mutual exclusion lock over the file at Path.
type Mutex struct {
	Path string
}

// MutexAt returns a Mutex over the file at path.
func MutexAt(path string) *Mutex {
	return &Mutex{Path: path}
}

func (mu *Mutex) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(mu.Path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(mu.Path, os.O_RDWR|os.O_CREATE, 0o644)
}

// Lock blocks until the mutex is acquired and returns the unlock function.
func (mu *Mutex) Lock() (unlock func(), err error) {
	return mu.lock(true)
}

// TryLock acquires the mutex without waiting. It returns ErrLocked when the
// mutex is held elsewhere.
func (mu *Mutex) TryLock() (unlock func(), err error) {
	return mu.lock(false)
}

func (mu *Mutex) lock(wait bool) (func(), error) {
	f, err := mu.open()
	if err != nil {
		return nil, err
	}
	if err := lockFile(f, wait); err != nil {
		f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, fmt.Errorf("%s: %w", mu.Path, ErrLocked)
		}
		return nil, fmt.Errorf("lock %s: %w", mu.Path, err)
	}
	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}
