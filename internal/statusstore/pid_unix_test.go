//go:build !windows

package statusstore

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPidAliveSelf(t *testing.T) {
	assert.True(t, pidAlive(os.Getpid()))
}

func TestPidAliveZeroOrNegative(t *testing.T) {
	assert.False(t, pidAlive(0))
	assert.False(t, pidAlive(-5))
}

func TestPidAliveUnlikelyPid(t *testing.T) {
	// A PID far beyond any plausible live process on the test host.
	assert.False(t, pidAlive(1<<30))
}
