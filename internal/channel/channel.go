// Package channel defines the shared contract every channel adapter shell
// implements (SPEC_FULL.md C11/§4.11), plus the Redis publish/subscribe
// Bus the shells compose. The control-channel listener shared with the
// Child Runtime is runtime.ListenControl.
package channel

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/centerfire/agent-orchestrator/internal/bus"
)

// Shell is implemented by each platform-specific channel adapter: publish
// a turn's input onto the bus, and receive the agent's streamed output.
type Shell interface {
	Publish(ctx context.Context, in bus.InputEnvelope) error
	Subscribe(ctx context.Context) (<-chan bus.OutputEnvelope, error)
}

// Bus wraps a Redis client with the publish/subscribe primitives every
// Shell implementation composes, so concrete shells only add platform
// wire-format translation.
type Bus struct {
	Redis   *redis.Client
	AgentID string
	Logger  *slog.Logger
}

// Publish sends an input envelope to the agent's input channel.
func (b *Bus) Publish(ctx context.Context, in bus.InputEnvelope) error {
	blob, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return b.Redis.Publish(ctx, bus.InputChannel(b.AgentID), blob).Err()
}

// Subscribe returns a channel of decoded output envelopes from the
// agent's output channel, closed when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context) (<-chan bus.OutputEnvelope, error) {
	sub := b.Redis.Subscribe(ctx, bus.OutputChannel(b.AgentID))
	raw := sub.Channel()
	out := make(chan bus.OutputEnvelope)

	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var env bus.OutputEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.Logger.Warn("dropping malformed output envelope", "error", err)
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
