package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrNotFoundMessage(t *testing.T) {
	assert.Equal(t, "agent config not found", ErrNotFound.Error())
}
