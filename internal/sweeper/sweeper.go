// Package sweeper is the Inactivity Sweeper (SPEC_FULL.md C8): a
// ticker-driven background loop that force-stops agents whose last_active
// timestamp has aged past a configured threshold.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/centerfire/agent-orchestrator/internal/agentmgr"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
)

// errorPause is how long the sweep backs off after a Redis error, matching
// the Python background task's minute-long pause on scan failure.
const errorPause = time.Minute

// Sweeper periodically scans agent status records and stops any whose
// last_active timestamp exceeds Timeout.
type Sweeper struct {
	store    *statusstore.Store
	agents   *agentmgr.Manager
	logger   *slog.Logger
	Interval time.Duration
	Timeout  time.Duration
}

// New builds a Sweeper with the given check interval and inactivity
// threshold (cmd/controlplane's --inactivity-check-interval /
// --inactivity-timeout flags; the AGENT_INACTIVITY_* environment variables
// are not read).
func New(store *statusstore.Store, agents *agentmgr.Manager, logger *slog.Logger, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{store: store, agents: agents, logger: logger, Interval: interval, Timeout: timeout}
}

// Run blocks, sweeping every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	keys, err := s.store.ScanAgentStatuses(ctx)
	if err != nil {
		s.logger.Error("inactivity sweep: scan failed, backing off", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(errorPause):
		}
		return
	}

	now := time.Now().UTC()
	for _, key := range keys {
		rec, err := s.store.Get(ctx, key)
		if err != nil {
			s.logger.Error("inactivity sweep: status read failed", "key", key, "error", err)
			continue
		}
		if !rec.IsLive() || rec.LastActive.IsZero() {
			continue
		}
		if now.Sub(rec.LastActive) < s.Timeout {
			continue
		}

		agentID := agentIDFromKey(key)
		s.logger.Info("inactivity sweep: stopping idle agent", "agent_id", agentID, "idle_for", now.Sub(rec.LastActive))
		if err := s.agents.Stop(ctx, agentID, true); err != nil {
			s.logger.Error("inactivity sweep: stop failed", "agent_id", agentID, "error", err)
		}
	}
}

// agentIDFromKey extracts the id segment from an "agent_process:{id}:status"
// key, the inverse of statusstore.AgentStatusKey.
func agentIDFromKey(key string) string {
	const prefix = "agent_process:"
	const suffix = ":status"
	if len(key) <= len(prefix)+len(suffix) {
		return key
	}
	return key[len(prefix) : len(key)-len(suffix)]
}
