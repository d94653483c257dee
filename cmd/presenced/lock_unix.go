// Unix file locking using flock(2).
//
// Compiled on all non-Windows platforms. The PID file lock enforces a single
// daemon per data directory.

//go:build !windows

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ///////////////////////////////////////////////
// File Locking
// ///////////////////////////////////////////////

// lockFile acquires an exclusive, non-blocking advisory lock on f. It fails
// immediately with EWOULDBLOCK when another process holds the lock.
func lockFile(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return fmt.Errorf("lock file %s: %w", f.Name(), err)
	}
	return nil
}

// unlockFile releases the advisory lock held on f. Closing the descriptor
// releases it as well.
func unlockFile(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("unlock file %s: %w", f.Name(), err)
	}
	return nil
}
