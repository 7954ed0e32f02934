package blockchain

import (
	"os"
	"path/filepath"

	"github.com/bitcoin-sv/chaincore/errors"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
	"golang.org/x/sys/unix"
)

// FileLock is an advisory exclusive lock on a file, held for the life of the
// process that owns the store.
type FileLock struct {
	path string
	file *os.File
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// TryLock creates the lock file if needed and takes the lock without blocking.
// It returns false when another holder has it.
func (l *FileLock) TryLock() (bool, error) {
	if l.file != nil {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, errors.NewStorageError("failed to create lock folder for %s", l.path, err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, errors.NewStorageError("failed to open lock file %s", l.path, err)
	}

	fd, err := safeconversion.UintptrToInt(file.Fd())
	if err != nil {
		_ = file.Close()
		return false, errors.NewStorageError("invalid descriptor for lock file %s", l.path, err)
	}

	if err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return false, nil
		}

		return false, errors.NewStorageError("failed to lock %s", l.path, err)
	}

	l.file = file

	return true, nil
}

func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	fd, err := safeconversion.UintptrToInt(l.file.Fd())
	if err == nil {
		err = unix.Flock(fd, unix.LOCK_UN)
	}

	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return errors.NewStorageError("failed to unlock %s", l.path, err)
	}

	if closeErr != nil {
		return errors.NewStorageError("failed to close lock file %s", l.path, closeErr)
	}

	return nil
}
