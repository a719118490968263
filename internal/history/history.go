// Package history is the History Persister (SPEC_FULL.md C10), grounded
// 1:1 on original_source/agent_manager/history_saver.py: a worker that
// blocks on the chat_history_queue list and inserts validated events into
// Postgres, and a supervisor that restarts the worker after a crash.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/centerfire/agent-orchestrator/internal/bus"
	"github.com/centerfire/agent-orchestrator/internal/telemetry"
)

// RestartDelay is how long the supervisor waits before relaunching the
// worker after it exits, matching the Python RESTART_DELAY constant.
const RestartDelay = 5 * time.Second

// idleSleep matches the Python worker's 0.01s pause between BRPOP
// iterations so a burst of history events doesn't spin the CPU.
const idleSleep = 10 * time.Millisecond

// Worker drains bus.HistoryQueueName and persists valid events to
// Postgres, dropping (and logging, and counting) anything malformed or
// that fails to insert.
type Worker struct {
	Redis   *redis.Client
	DB      *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Run blocks, processing events until ctx is cancelled or a Redis error
// occurs. A Redis error is returned to the caller so the Supervisor can
// restart the worker, matching the Python worker re-raising RedisError.
func (w *Worker) Run(ctx context.Context) error {
	w.Logger.Info("history persister worker started", "queue", bus.HistoryQueueName)
	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := w.Redis.BRPop(ctx, 0, bus.HistoryQueueName).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if len(res) != 2 {
			continue
		}

		w.handle(ctx, res[1])
		time.Sleep(idleSleep)
	}
}

func (w *Worker) handle(ctx context.Context, raw string) {
	var evt bus.ChatEvent
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		w.Logger.Error("dropping malformed history event: invalid JSON", "error", err)
		w.Metrics.HistoryDropped.Inc()
		return
	}
	if !evt.Valid() {
		w.Logger.Error("dropping malformed history event: missing fields", "agent_id", evt.AgentID, "thread_id", evt.ThreadID)
		w.Metrics.HistoryDropped.Inc()
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	evt.Timestamp = evt.Timestamp.UTC()

	const insert = `INSERT INTO chat_messages (agent_id, thread_id, sender_type, content, channel, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := w.DB.Exec(ctx, insert, evt.AgentID, evt.ThreadID, string(evt.SenderType), evt.Content, nullableChannel(evt.Channel), evt.Timestamp); err != nil {
		w.Logger.Error("dropping history event: db insert failed", "agent_id", evt.AgentID, "thread_id", evt.ThreadID, "error", err)
		w.Metrics.HistoryDropped.Inc()
		return
	}
	w.Metrics.HistoryPersisted.Inc()
}

func nullableChannel(channel string) any {
	if channel == "" {
		return nil
	}
	return channel
}

// Supervisor runs Worker in a loop, restarting it RestartDelay after any
// exit that isn't due to ctx cancellation, and recovering from a worker
// panic the same way.
type Supervisor struct {
	Worker *Worker
	Logger *slog.Logger
}

// Run blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	s.Logger.Info("history persister supervisor started")
	for ctx.Err() == nil {
		s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		s.Logger.Warn("history persister worker exited, restarting", "delay", RestartDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(RestartDelay):
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("history persister worker panicked", "panic", r)
		}
	}()
	if err := s.Worker.Run(ctx); err != nil {
		s.Logger.Error("history persister worker error", "error", err)
	}
}
