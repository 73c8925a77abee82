// Package lockedfile provides a mutex backed by an exclusive lock on a file,
// shared between processes.
package lockedfile

import (
	"io/fs"
	"os"
)

// A Mutex provides mutual exclusion within and across processes by locking
// a well-known file.
//
// The zero Mutex is not valid; use MutexAt.
type Mutex struct {
	Path string
}

// MutexAt returns a new Mutex with Path set to the given non-empty path.
func MutexAt(path string) *Mutex {
	if path == "" {
		panic("lockedfile.MutexAt: path must be non-empty")
	}
	return &Mutex{Path: path}
}

// Lock attempts to lock the Mutex, creating the lock file if needed, and
// blocks until it is held. On success it returns the function releasing
// the lock.
func (mu *Mutex) Lock() (unlock func(), err error) {
	f, err := os.OpenFile(mu.Path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, &fs.PathError{Op: "lock", Path: mu.Path, Err: err}
	}
	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}
