// Package websocket is the control plane's own channel shell
// (SPEC_FULL.md §4.11): the `/ws/agents/{id}` endpoint doubles as a
// first-class channel, publishing operator/client input and relaying
// agent output over the same connection the control plane's websocket
// hub manages (internal/controlplane owns connection lifecycle; this
// package only defines the envelope translation).
package websocket

import (
	"encoding/json"

	"github.com/centerfire/agent-orchestrator/internal/bus"
)

// ClientFrame is what a browser/API client sends over the websocket.
type ClientFrame struct {
	Text     string         `json:"text"`
	ThreadID string         `json:"thread_id"`
	UserData map[string]any `json:"user_data,omitempty"`
}

// ToInputEnvelope translates a client frame into the agent's input
// envelope, given the agentID the connection is scoped to.
func (f ClientFrame) ToInputEnvelope(agentID string) bus.InputEnvelope {
	return bus.InputEnvelope{
		Text:           f.Text,
		ChatID:         f.ThreadID,
		PlatformUserID: agentID,
		ThreadID:       f.ThreadID,
		UserData:       f.UserData,
		Channel:        "websocket",
	}
}

// EncodeOutput serializes an output envelope for direct relay to the
// connected client.
func EncodeOutput(out bus.OutputEnvelope) ([]byte, error) {
	return json.Marshal(out)
}
