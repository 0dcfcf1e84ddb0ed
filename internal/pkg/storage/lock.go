package storage

import (
	"errors"
	"os"

	"github.com/spf13/afero"
)

const lockSuffix = ".lock"

// ErrLocked is returned when another worker already holds the lock for a
// target path.
var ErrLocked = errors.New("storage: path already locked")

// Lock guards a target path during download. It is a sibling file created
// with O_EXCL, so exactly one worker can win it, and a crash leaves a
// visible stale lock instead of a silent half-written file.
type Lock struct {
	fs   afero.Fs
	path string
}

// AcquireLock takes the exclusive lock for target. ErrLocked means another
// worker got there first and the caller must drop the item.
func AcquireLock(fs afero.Fs, target string) (*Lock, error) {
	lockPath := target + lockSuffix

	f, err := fs.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrLocked
		}
		return nil, err
	}
	f.Close()

	return &Lock{fs: fs, path: lockPath}, nil
}

// Release removes the lock file. Safe to call once per lock.
func (l *Lock) Release() error {
	return l.fs.Remove(l.path)
}
