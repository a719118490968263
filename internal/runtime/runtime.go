// Package runtime is the Child Runtime bootstrap run by the agentrunner
// binary (SPEC_FULL.md C9); the integrationrunner binary uses only its
// ListenControl helper. Grounded on
// original_source/agent_runner/runner.py's main_loop/control_listener.
package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/centerfire/agent-orchestrator/internal/bus"
	"github.com/centerfire/agent-orchestrator/internal/errs"
	"github.com/centerfire/agent-orchestrator/internal/reasoning"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
)

// configFetchTimeout bounds the internal HTTP call the runtime makes to
// the control plane for its agent configuration before it will give up
// and report error_start_failed.
const configFetchTimeout = 10 * time.Second

// heartbeatInterval is how often the heartbeat goroutine refreshes
// last_active, matching spec.md §6's "~every 30 s" idle cadence.
const heartbeatInterval = 30 * time.Second

// Runtime drives one agent or integration worker process through the
// initializing -> running lifecycle, then the input-listener and
// control-listener loops, until told to stop or restart.
type Runtime struct {
	AgentID    string
	StatusKey  string
	ConfigURL  string
	Redis      *redis.Client
	Engine     reasoning.Engine
	Logger     *slog.Logger
	HTTPClient *http.Client

	running      atomic.Bool
	needsRestart atomic.Bool
}

// Config is the agent/integration configuration fetched from the control
// plane's internal endpoint at startup.
type Config struct {
	AgentID  string         `json:"agent_id"`
	Settings map[string]any `json:"settings"`
}

// Run executes one full bootstrap-to-shutdown cycle. It returns
// (restart=true, nil) if the control channel requested a restart, so the
// caller's cmd/ main can loop; any other return means the process should
// exit.
func (rt *Runtime) Run(ctx context.Context) (restart bool, err error) {
	if rt.Engine == nil {
		rt.Engine = reasoning.Stub{}
	}
	if rt.HTTPClient == nil {
		rt.HTTPClient = &http.Client{Timeout: configFetchTimeout}
	}
	store := statusstore.New(rt.Redis)

	rt.running.Store(true)
	rt.needsRestart.Store(false)

	if err := store.SetFields(ctx, rt.StatusKey, map[string]any{
		"status": string(statusstore.StatusInitializing),
	}); err != nil {
		return false, err
	}

	cfg, err := rt.fetchConfig(ctx)
	if err != nil {
		werr := errs.Wrap(errs.KindConfigMissing, err)
		_ = store.SetFields(ctx, rt.StatusKey, map[string]any{
			"status":       string(statusstore.StatusErrorStartFailed),
			"error_detail": errs.Detail(werr),
		})
		return false, werr
	}
	// cfg is the seam a real reasoning.Engine constructor would consume;
	// the stub and any test-injected Engine ignore it.
	_ = cfg

	if err := store.SetFields(ctx, rt.StatusKey, map[string]any{
		"status":      string(statusstore.StatusRunning),
		"pid":         os.Getpid(),
		"last_active": time.Now().UTC().Unix(),
	}); err != nil {
		return false, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			rt.Logger.Info("received shutdown signal")
			rt.running.Store(false)
			rt.needsRestart.Store(false)
			cancel()
		case <-runCtx.Done():
		}
	}()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return rt.inputListener(groupCtx) })
	group.Go(func() error {
		// A shutdown/restart command ends the control listener; cancelling
		// here makes the input listener and heartbeat return as well.
		defer cancel()
		return rt.controlListener(groupCtx)
	})
	group.Go(func() error { return rt.heartbeat(groupCtx) })

	if werr := group.Wait(); werr != nil && groupCtx.Err() == nil {
		rt.Logger.Error("worker loop exited with error", "error", werr)
	}

	if rt.needsRestart.Load() {
		if err := store.SetFields(ctx, rt.StatusKey, map[string]any{
			"status": string(statusstore.StatusRestarting),
		}); err != nil {
			rt.Logger.Error("failed to record restarting status", "error", err)
		}
		return true, nil
	}

	if err := store.SetFields(ctx, rt.StatusKey, map[string]any{"status": string(statusstore.StatusStopped)}); err != nil {
		rt.Logger.Error("failed to record stopped status", "error", err)
	}
	return false, nil
}

func (rt *Runtime) fetchConfig(ctx context.Context) (Config, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rt.ConfigURL, nil)
	if err != nil {
		return Config{}, err
	}
	resp, err := rt.HTTPClient.Do(req)
	if err != nil {
		return Config{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Config{}, errs.New(errs.KindConfigMissing, "config endpoint returned non-200")
	}
	var cfg Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// inputListener subscribes to the agent's input channel and drives each
// incoming envelope through the reasoning engine, publishing its output
// back on the agent's output channel.
func (rt *Runtime) inputListener(ctx context.Context) error {
	sub := rt.Redis.Subscribe(ctx, bus.InputChannel(rt.AgentID))
	defer sub.Close()
	ch := sub.Channel()

	for rt.running.Load() && !rt.needsRestart.Load() {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			rt.touchLastActive(ctx)
			rt.handleInput(ctx, msg.Payload)
		}
	}
	return nil
}

// heartbeat refreshes last_active on heartbeatInterval while the runtime
// is idle, so the Inactivity Sweeper sees a recent timestamp for agents
// that never receive input rather than treating them as eligible for
// cleanup the instant they start.
func (rt *Runtime) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rt.touchLastActive(ctx)
		}
	}
}

func (rt *Runtime) touchLastActive(ctx context.Context) {
	store := statusstore.New(rt.Redis)
	if err := store.SetFields(ctx, rt.StatusKey, map[string]any{
		"last_active": time.Now().UTC().Unix(),
	}); err != nil {
		rt.Logger.Error("failed to refresh last_active", "error", err)
	}
}

func (rt *Runtime) handleInput(ctx context.Context, payload string) {
	var in bus.InputEnvelope
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		rt.Logger.Warn("dropping malformed input envelope", "error", err)
		return
	}
	if !in.Valid() {
		rt.Logger.Error("dropping input envelope missing thread_id or chat_id")
		return
	}

	events, err := rt.Engine.RunTurn(ctx, reasoning.Input{
		ChatID:         in.ChatID,
		PlatformUserID: in.PlatformUserID,
		Text:           in.Text,
		Channel:        in.Channel,
	})
	if err != nil {
		rt.Logger.Error("reasoning engine turn failed", "error", err)
		rt.publishError(ctx, in, err.Error())
		return
	}

	for ev := range events {
		switch ev.Kind {
		case reasoning.EventKindFinal:
			out := bus.OutputEnvelope{ThreadID: in.ThreadID, ChatID: in.ChatID, Channel: in.Channel, Response: ev.Text}
			rt.publish(ctx, out)
		case reasoning.EventKindError:
			detail := ev.Text
			if detail == "" && ev.Err != nil {
				detail = ev.Err.Error()
			}
			rt.publishError(ctx, in, detail)
		}
	}
}

// publishError sends a {thread_id, error} output envelope for a turn that
// failed outright or streamed an error event, matching spec.md §7's
// turn-failure contract.
func (rt *Runtime) publishError(ctx context.Context, in bus.InputEnvelope, detail string) {
	rt.publish(ctx, bus.OutputEnvelope{ThreadID: in.ThreadID, ChatID: in.ChatID, Channel: in.Channel, Error: detail})
}

func (rt *Runtime) publish(ctx context.Context, out bus.OutputEnvelope) {
	blob, err := json.Marshal(out)
	if err != nil {
		rt.Logger.Error("failed to encode output envelope", "error", err)
		return
	}
	if err := rt.Redis.Publish(ctx, bus.OutputChannel(rt.AgentID), blob).Err(); err != nil {
		rt.Logger.Error("failed to publish output envelope", "error", err)
	}
}

// controlListener watches this agent's control channel for stop/restart
// commands, flipping the running/needsRestart flags exactly as the
// Python control_listener does.
func (rt *Runtime) controlListener(ctx context.Context) error {
	keepGoing := func() bool { return rt.running.Load() && !rt.needsRestart.Load() }
	return ListenControl(ctx, rt.Redis, rt.AgentID, rt.Logger, keepGoing, rt.onControlShutdown, rt.onControlRestart)
}

// onControlShutdown and onControlRestart are the flag transitions
// dispatchControl invokes for a decoded shutdown/restart command; factored
// out so tests can drive the same transitions ListenControl uses.
func (rt *Runtime) onControlShutdown() {
	rt.running.Store(false)
	rt.needsRestart.Store(false)
}

func (rt *Runtime) onControlRestart() {
	rt.running.Store(false)
	rt.needsRestart.Store(true)
}

// ListenControl watches agentID's control channel until ctx is cancelled,
// keepGoing returns false, or the channel closes, invoking onShutdown or
// onRestart for each decoded command. It is shared by the Child Runtime
// and by channel adapter shells so both observe agent_control:{agent_id}
// identically.
func ListenControl(ctx context.Context, rdb *redis.Client, agentID string, logger *slog.Logger, keepGoing func() bool, onShutdown, onRestart func()) error {
	sub := rdb.Subscribe(ctx, bus.ControlChannel(agentID))
	defer sub.Close()
	ch := sub.Channel()

	for keepGoing() {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			dispatchControl(logger, msg.Payload, onShutdown, onRestart)
		}
	}
	return nil
}

// dispatchControl decodes one control channel payload and invokes
// onShutdown or onRestart for it. It is the single decode/switch used by
// ListenControl for every live agent and channel adapter, and directly by
// tests, so there is no second copy of this logic to drift out of sync.
func dispatchControl(logger *slog.Logger, payload string, onShutdown, onRestart func()) {
	var cmd bus.ControlEnvelope
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		logger.Warn("dropping malformed control envelope", "error", err)
		return
	}
	switch cmd.Command {
	case bus.CommandShutdown:
		logger.Info("control channel requested shutdown")
		onShutdown()
	case bus.CommandRestart:
		logger.Info("control channel requested restart")
		onRestart()
	default:
		logger.Warn("unknown control command", "command", cmd.Command)
	}
}
