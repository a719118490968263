// Package whatsapp is the WhatsApp channel adapter shell (SPEC_FULL.md
// §4.11), grounded on original_source/app/integrations/whatsapp's event
// handling translated into bus envelopes. The pack carries no native
// Socket.IO client, so this shell speaks the wppconnect server's
// Socket.IO-flavored event protocol directly over
// github.com/gorilla/websocket (already a teacher/pack dependency via
// internal/controlplane) rather than pulling in an unrelated dependency.
package whatsapp

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/centerfire/agent-orchestrator/internal/bus"
	"github.com/centerfire/agent-orchestrator/internal/channel"
)

// incomingMessageEvent is the subset of a wppconnect "onmessage" Socket.IO
// event payload this shell understands.
type incomingMessageEvent struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// Shell adapts a wppconnect server's websocket event stream onto the
// agent bus.
type Shell struct {
	*channel.Bus
	conn *websocket.Conn
}

// New builds a Shell around an already-dialed wppconnect websocket
// connection.
func New(conn *websocket.Conn, bus *channel.Bus) *Shell {
	return &Shell{Bus: bus, conn: conn}
}

// Run reads wppconnect events off the websocket, publishing each incoming
// message onto the agent's input channel, and writes the agent's
// responses back as outgoing-message events.
func (s *Shell) Run(ctx context.Context) error {
	out, err := s.Subscribe(ctx)
	if err != nil {
		return err
	}
	go s.forwardOutput(ctx, out)

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}

		var evt incomingMessageEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			s.Logger.Warn("whatsapp: dropping malformed event", "error", err)
			continue
		}
		if evt.Body == "" {
			continue
		}

		in := bus.InputEnvelope{
			Text:           evt.Body,
			ChatID:         evt.From,
			PlatformUserID: evt.From,
			ThreadID:       evt.From,
			Channel:        "whatsapp",
		}
		if err := s.Publish(ctx, in); err != nil {
			s.Logger.Error("whatsapp: failed to publish input envelope", "error", err)
		}
	}
}

type outgoingMessageEvent struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *Shell) forwardOutput(ctx context.Context, out <-chan bus.OutputEnvelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-out:
			if !ok {
				return
			}
			if env.Response == "" {
				continue
			}
			blob, err := json.Marshal(outgoingMessageEvent{To: env.ChatID, Body: env.Response})
			if err != nil {
				s.Logger.Error("whatsapp: failed to encode outgoing event", "error", err)
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, blob); err != nil {
				s.Logger.Error("whatsapp: failed to send message", "error", err)
			}
		}
	}
}
