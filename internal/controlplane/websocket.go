package controlplane

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/centerfire/agent-orchestrator/internal/bus"
	wschannel "github.com/centerfire/agent-orchestrator/internal/channel/websocket"
)

// outboundBufferSize bounds each connection's outbound frame queue (Open
// Question §9: buffer with bound). A connection that cannot keep up is
// disconnected once the buffer fills rather than blocking the Redis
// subscription goroutine or silently dropping frames for every client.
const outboundBufferSize = 64

// Upgrader is the subset of *websocket.Upgrader the control plane depends
// on, narrow enough to fake in tests without a real HTTP connection.
type Upgrader interface {
	Upgrade(w http.ResponseWriter, r *http.Request, responseHeader http.Header) (*websocket.Conn, error)
}

var defaultUpgrader = &websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket implements spec.md §4.7's WS /ws/agents/{id}: incoming
// text is JSON-decoded and published on the agent's input channel;
// outgoing messages are forwarded from a subscription to the agent's
// output channel, on a bounded per-connection buffer.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	upgrader := s.Upgrader
	if upgrader == nil {
		upgrader = defaultUpgrader
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Error("websocket upgrade failed", "agent_id", agentID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan []byte, outboundBufferSize)
	sub := s.Redis.Subscribe(ctx, bus.OutputChannel(agentID))
	defer sub.Close()

	go s.pumpRedisToBuffer(ctx, cancel, sub.Channel(), outbound)
	go s.pumpBufferToConn(ctx, conn, outbound)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.pumpConnToRedis(ctx, conn, agentID)
}

// pumpRedisToBuffer relays every message from the agent's Redis output
// channel into outbound. A connection that cannot drain its buffer in
// time is disconnected: cancel tears down the whole handler rather than
// dropping frames for every other, well-behaved client.
func (s *Server) pumpRedisToBuffer(ctx context.Context, cancel context.CancelFunc, raw <-chan *redis.Message, outbound chan<- []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-raw:
			if !ok {
				return
			}
			select {
			case outbound <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			default:
				s.Metrics.WSDroppedFrames.Inc()
				cancel()
				return
			}
		}
	}
}

func (s *Server) pumpBufferToConn(ctx context.Context, conn *websocket.Conn, outbound <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-outbound:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}

func (s *Server) pumpConnToRedis(ctx context.Context, conn *websocket.Conn, agentID string) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame wschannel.ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.Logger.Warn("websocket: dropping malformed client frame", "agent_id", agentID, "error", err)
			continue
		}
		in := frame.ToInputEnvelope(agentID)
		blob, err := json.Marshal(in)
		if err != nil {
			continue
		}
		if err := s.Redis.Publish(ctx, bus.InputChannel(agentID), blob).Err(); err != nil {
			s.Logger.Error("websocket: failed to publish input envelope", "agent_id", agentID, "error", err)
		}
	}
}
