//go:build !windows

package pager

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockExclusive takes an advisory, non-blocking exclusive lock on f. It
// guards against the common mistake of opening the same data file twice
// in one process, or from a second process, while the single-writer
// model is in effect — not a substitute for it.
func lockExclusive(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return fmt.Errorf("pager: %s is already open elsewhere: %w", f.Name(), err)
	}
	return nil
}

func unlock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
