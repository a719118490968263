package sweeper

import (
	"context"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/centerfire/agent-orchestrator/internal/agentmgr"
	"github.com/centerfire/agent-orchestrator/internal/launcher"
	"github.com/centerfire/agent-orchestrator/internal/lifecycle"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
)

// fakeRedis serves a single fixed status hash for every key and records
// which keys were written back, enough to drive one sweep without a live
// Redis instance.
type fakeRedis struct {
	hash    map[string]string
	scanned []string
	written map[string]map[string]string
}

func (f *fakeRedis) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(ctx)
	cmd.SetVal(f.hash)
	return cmd
}

func (f *fakeRedis) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	if f.written == nil {
		f.written = map[string]map[string]string{}
	}
	fields := f.written[key]
	if fields == nil {
		fields = map[string]string{}
	}
	for i := 0; i+1 < len(values); i += 2 {
		k := values[i].(string)
		fields[k] = toString(values[i+1])
	}
	f.written[key] = fields
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(0)
	return cmd
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

func (f *fakeRedis) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(0)
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(0)
	return cmd
}

func (f *fakeRedis) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	cmd.SetVal(nil)
	return cmd
}

func (f *fakeRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	cmd.SetVal(f.scanned, 0)
	return cmd
}

func newManager(rdb statusstore.RedisClient) *agentmgr.Manager {
	store := statusstore.New(rdb)
	lm := lifecycle.New(store, launcher.New())
	return agentmgr.New(lm, "/bin/true", "")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(noopWriter{}, nil))
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestSweepOnceSkipsLiveAgentWithinTimeout(t *testing.T) {
	rdb := &fakeRedis{
		scanned: []string{"agent_process:a1:status"},
		hash: map[string]string{
			"status":      "running",
			"pid":         "",
			"last_active": strconv.FormatInt(time.Now().Add(-time.Minute).Unix(), 10),
		},
	}
	s := New(statusstore.New(rdb), newManager(rdb), discardLogger(), time.Second, time.Hour)
	s.sweepOnce(context.Background())

	assert.Nil(t, rdb.written["agent_process:a1:status"])
}

func TestSweepOnceStopsAgentPastTimeout(t *testing.T) {
	rdb := &fakeRedis{
		scanned: []string{"agent_process:a1:status"},
		hash: map[string]string{
			"status":      "running",
			"pid":         "",
			"last_active": strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10),
		},
	}
	s := New(statusstore.New(rdb), newManager(rdb), discardLogger(), time.Second, time.Minute)
	s.sweepOnce(context.Background())

	assert.Equal(t, "stopped", rdb.written["agent_process:a1:status"]["status"])
}

func TestSweepOnceIgnoresNeverActiveAgent(t *testing.T) {
	rdb := &fakeRedis{
		scanned: []string{"agent_process:a1:status"},
		hash:    map[string]string{"status": "running"},
	}
	s := New(statusstore.New(rdb), newManager(rdb), discardLogger(), time.Second, time.Minute)
	s.sweepOnce(context.Background())

	assert.Nil(t, rdb.written["agent_process:a1:status"])
}

func TestAgentIDFromKey(t *testing.T) {
	assert.Equal(t, "a1", agentIDFromKey("agent_process:a1:status"))
}
