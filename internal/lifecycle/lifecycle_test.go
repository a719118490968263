package lifecycle

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centerfire/agent-orchestrator/internal/launcher"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
)

// fakeRedis is an in-memory hash store implementing statusstore.RedisClient,
// enough to drive Manager.Start/Stop/Restart without a live Redis instance.
type fakeRedis struct {
	mu    sync.Mutex
	hashes map[string]map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: make(map[string]map[string]string)}
}

func (f *fakeRedis) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewMapStringStringCmd(ctx)
	h := f.hashes[key]
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	cmd.SetVal(out)
	return cmd
}

func (f *fakeRedis) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		k := values[i].(string)
		h[k] = toStr(values[i+1])
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func (f *fakeRedis) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.hashes[key]
	for _, field := range fields {
		delete(h, field)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(fields)))
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.hashes, k)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func (f *fakeRedis) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	cmd.SetVal(nil)
	return cmd
}

func (f *fakeRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	cmd.SetVal(nil, 0)
	return cmd
}

func toStr(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return itoa(t)
	default:
		return ""
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

func newTestManager() (*Manager, *fakeRedis) {
	fr := newFakeRedis()
	store := statusstore.New(fr)
	l := launcher.New()
	l.PollInterval = 10 * time.Millisecond
	return New(store, l), fr
}

func sleepSpec(key string) Spec {
	return Spec{
		StatusKey: key,
		BuildCommand: func() ([]string, string, []string) {
			return []string{"sleep", "30"}, "", os.Environ()
		},
	}
}

func TestStartWritesRunningWithPID(t *testing.T) {
	mgr, fr := newTestManager()
	spec := sleepSpec("agent_process:a1:status")

	rec, err := mgr.Start(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, statusstore.StatusRunning, rec.Status)
	assert.Greater(t, rec.PID, 0)

	require.NoError(t, mgr.Stop(context.Background(), spec, true))
	assert.Equal(t, string(statusstore.StatusStopped), fr.hashes["agent_process:a1:status"]["status"])
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	mgr, _ := newTestManager()
	spec := sleepSpec("agent_process:a2:status")

	first, err := mgr.Start(context.Background(), spec)
	require.NoError(t, err)

	second, err := mgr.Start(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, first.PID, second.PID)

	require.NoError(t, mgr.Stop(context.Background(), spec, true))
}

func TestStartValidationFailureSetsErrorStartFailed(t *testing.T) {
	mgr, fr := newTestManager()
	spec := sleepSpec("agent_process:a3:status")
	spec.Validate = func() error { return assertError("script missing") }

	_, err := mgr.Start(context.Background(), spec)
	assert.Error(t, err)
	assert.Equal(t, string(statusstore.StatusErrorStartFailed), fr.hashes["agent_process:a3:status"]["status"])
}

func TestStopOnNotFoundIsNoop(t *testing.T) {
	mgr, _ := newTestManager()
	spec := sleepSpec("agent_process:a4:status")
	assert.NoError(t, mgr.Stop(context.Background(), spec, false))
}

func TestRestartSpawnsNewPID(t *testing.T) {
	mgr, _ := newTestManager()
	key := "agent_process:a5:status"
	spec := Spec{
		StatusKey:       key,
		GracefulTimeout: 200 * time.Millisecond,
		BuildCommand: func() ([]string, string, []string) {
			return []string{"sleep", "30"}, "", os.Environ()
		},
	}

	first, err := mgr.Start(context.Background(), spec)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	second, err := mgr.Restart(ctx, spec)
	require.NoError(t, err)
	assert.NotEqual(t, first.PID, second.PID)

	require.NoError(t, mgr.Stop(context.Background(), spec, true))
}

func TestRestartWritesRestartingDuringSettleWindow(t *testing.T) {
	mgr, fr := newTestManager()
	key := "agent_process:a6:status"
	spec := sleepSpec(key)
	spec.GracefulTimeout = 50 * time.Millisecond

	_, err := mgr.Start(context.Background(), spec)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := mgr.Restart(context.Background(), spec)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return fr.hashes[key]["status"] == string(statusstore.StatusRestarting)
	}, time.Second, 5*time.Millisecond, "expected status=restarting during the settle window")

	require.NoError(t, <-done)
	assert.Equal(t, string(statusstore.StatusRunning), fr.hashes[key]["status"])

	require.NoError(t, mgr.Stop(context.Background(), spec, true))
}

type testError string

func (e testError) Error() string { return string(e) }

func assertError(msg string) error { return testError(msg) }
