package locking

import (
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Locker provides file locking facilities.
type Locker struct {
	// file is the underlying file object to be locked.
	file *os.File
	// lock serializes access to held.
	lock sync.Mutex
	// held indicates whether or not the lock is currently held.
	held bool
}

// NewLocker attempts to create a lock with the file at the specified path,
// creating the file if necessary. The lock is returned in an unlocked state.
func NewLocker(path string, permissions os.FileMode) (*Locker, error) {
	mode := os.O_RDWR | os.O_CREATE | os.O_APPEND
	if file, err := os.OpenFile(path, mode, permissions); err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	} else {
		return &Locker{file: file}, nil
	}
}

// Held returns whether or not the lock is currently held by this Locker.
func (l *Locker) Held() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.held
}

// Close releases the underlying lock file handle. If the lock is still held,
// it is released first.
func (l *Locker) Close() error {
	l.lock.Lock()
	held := l.held
	l.lock.Unlock()
	if held {
		if err := l.Unlock(); err != nil {
			return errors.Wrap(err, "unable to release lock before closing")
		}
	}
	return l.file.Close()
}
