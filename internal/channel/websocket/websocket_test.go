package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/centerfire/agent-orchestrator/internal/bus"
)

func TestToInputEnvelope(t *testing.T) {
	f := ClientFrame{Text: "hi", ThreadID: "t1"}
	env := f.ToInputEnvelope("agent-1")
	assert.Equal(t, "hi", env.Text)
	assert.Equal(t, "t1", env.ChatID)
	assert.Equal(t, "agent-1", env.PlatformUserID)
	assert.Equal(t, "websocket", env.Channel)
}

func TestEncodeOutput(t *testing.T) {
	blob, err := EncodeOutput(bus.OutputEnvelope{Response: "hello"})
	assert.NoError(t, err)
	assert.Contains(t, string(blob), "hello")
}
