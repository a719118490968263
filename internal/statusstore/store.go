package statusstore

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/centerfire/agent-orchestrator/internal/errs"
)

// Store wraps a Redis client with typed get/set/delete operations over the
// status hashes defined in SPEC_FULL.md §3.2, reconciling PID liveness on
// every read the way the Python ProcessStatusManager.validate_process_status_unified
// does.
type Store struct {
	rdb RedisClient
}

// New builds a Store around an existing Redis client.
func New(rdb RedisClient) *Store {
	return &Store{rdb: rdb}
}

// Get fetches the status record at key, reconciling PID liveness: a live
// status with a PID the OS no longer recognizes is rewritten in place to
// error_process_lost with the PID cleared before being returned, so no
// caller ever observes a stale "running" record (SPEC_FULL.md §4.1).
func (s *Store) Get(ctx context.Context, key string) (Record, error) {
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Record{}, errs.Wrap(errs.KindBusUnavailable, err)
	}
	if len(raw) == 0 {
		return Record{Status: StatusNotFound}, nil
	}

	rec := decode(raw)
	if rec.PID != 0 && rec.IsLive() && !pidAlive(rec.PID) {
		lost := rec.PID
		rec.Status = StatusErrorProcessLost
		rec.PID = 0
		rec.ErrorDetail = "process PID " + strconv.Itoa(lost) + " not found"
		if err := s.SetFields(ctx, key, map[string]any{
			"status":       string(StatusErrorProcessLost),
			"pid":          "",
			"error_detail": rec.ErrorDetail,
		}); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// GetWithLegacyFallback reads key; if it is empty, it retries at
// legacyKey before reporting not_found, so in-flight runners still writing
// the pre-migration key form remain observable (SPEC_FULL.md §3.2, §9).
func (s *Store) GetWithLegacyFallback(ctx context.Context, key, legacyKey string) (Record, error) {
	rec, err := s.Get(ctx, key)
	if err != nil {
		return rec, err
	}
	if rec.Status != StatusNotFound {
		return rec, nil
	}
	return s.Get(ctx, legacyKey)
}

// SetFields applies a partial hash update; it never creates orphan fields
// beyond what the caller supplies.
func (s *Store) SetFields(ctx context.Context, key string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.rdb.HSet(ctx, key, args...).Err(); err != nil {
		return errs.Wrap(errs.KindBusUnavailable, errors.Wrapf(err, "hset %s", key))
	}
	return nil
}

// ClearPID removes the pid and last_active fields, used on the transition
// to stopped/error states.
func (s *Store) ClearPID(ctx context.Context, key string) error {
	if err := s.rdb.HDel(ctx, key, "pid", "last_active").Err(); err != nil {
		return errs.Wrap(errs.KindBusUnavailable, errors.Wrapf(err, "hdel %s", key))
	}
	return nil
}

// Delete removes the status key entirely (deletion cascade, SPEC_FULL.md §3).
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return errs.Wrap(errs.KindBusUnavailable, errors.Wrapf(err, "del %s", key))
	}
	return nil
}

// ScanAgentStatuses yields every agent_process:*:status key, used by the
// Inactivity Sweeper (C8) to enumerate running agents without blocking on
// a full KEYS scan.
func (s *Store) ScanAgentStatuses(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, "agent_process:*:status", 200).Result()
		if err != nil {
			return nil, errs.Wrap(errs.KindBusUnavailable, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func decode(raw map[string]string) Record {
	rec := Record{Status: Status(raw["status"])}
	if rec.Status == "" {
		rec.Status = StatusNotFound
	}
	if pidStr := raw["pid"]; pidStr != "" {
		if pid, err := strconv.Atoi(pidStr); err == nil {
			rec.PID = pid
		}
	}
	if la := raw["last_active"]; la != "" {
		if secs, err := strconv.ParseFloat(la, 64); err == nil {
			rec.LastActive = time.Unix(int64(secs), 0).UTC()
		}
	}
	rec.ErrorDetail = raw["error_detail"]
	if sa := raw["start_attempt_utc"]; sa != "" {
		if t, err := time.Parse(time.RFC3339, sa); err == nil {
			rec.StartAttemptUTC = t
		}
	}
	return rec
}
