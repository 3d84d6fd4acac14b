//go:build unix

package metastore

import (
	"golang.org/x/sys/unix"
)

// lockDir takes an exclusive advisory lock on the directory, blocking until the lock is
// acquired. The lock is held until the returned func is called. Every semq process
// operating on the same queue directory honors this lock.
func lockDir(dir string) (func() error, error) {
	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}

	for {
		err = unix.Flock(fd, unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return func() error {
		_ = unix.Flock(fd, unix.LOCK_UN)
		return unix.Close(fd)
	}, nil
}
