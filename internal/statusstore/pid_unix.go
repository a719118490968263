//go:build !windows

package statusstore

import "syscall"

// pidAlive sends signal 0 to pid, which performs existence/permission
// checks without actually signaling the process (SPEC_FULL.md §4.1).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	// ESRCH means no such process; any other errno (e.g. EPERM) means the
	// process exists but we can't signal it, which still counts as alive.
	return err != syscall.ESRCH
}
