//go:build windows

package pager

import "os"

// lockExclusive is a no-op on platforms without flock; the single-writer
// model still holds, it is just not enforced at the OS level here.
func lockExclusive(f *os.File) error {
	return nil
}

func unlock(f *os.File) {}
