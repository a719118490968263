//go:build windows

package statusstore

import (
	"os"
)

// pidAlive approximates liveness on Windows: it reports whether
// os.FindProcess can open pid, so a PID that has been reused by an
// unrelated process still counts as alive.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
