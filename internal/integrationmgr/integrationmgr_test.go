package integrationmgr

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centerfire/agent-orchestrator/internal/launcher"
	"github.com/centerfire/agent-orchestrator/internal/lifecycle"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
)

type emptyRedis struct{}

func (emptyRedis) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(ctx)
	cmd.SetVal(map[string]string{})
	return cmd
}

func (emptyRedis) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(0)
	return cmd
}

func (emptyRedis) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(0)
	return cmd
}

func (emptyRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(0)
	return cmd
}

func (emptyRedis) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	cmd.SetVal(nil)
	return cmd
}

func (emptyRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	cmd.SetVal(nil, 0)
	return cmd
}

func newManager(runnerPaths map[string]string) *Manager {
	lm := lifecycle.New(statusstore.New(emptyRedis{}), launcher.New())
	return New(lm, runnerPaths, "/work")
}

func TestStartRejectsUnknownIntegrationType(t *testing.T) {
	m := newManager(map[string]string{"telegram": "/bin/true"})
	_, err := m.Start(context.Background(), "whatsapp", "agent-1", nil)
	assert.Error(t, err)
}

func TestStartRejectsEmptyIDs(t *testing.T) {
	m := newManager(map[string]string{"telegram": "/bin/true"})
	_, err := m.Start(context.Background(), "", "agent-1", nil)
	assert.Error(t, err)
	_, err = m.Start(context.Background(), "telegram", "", nil)
	assert.Error(t, err)
}

func TestSpecBuildsIntegrationFlags(t *testing.T) {
	m := newManager(map[string]string{"telegram": "/bin/true"})
	spec, err := m.spec("telegram", "agent-9", map[string]any{"k": "v"})
	require.NoError(t, err)
	argv, dir, _ := spec.BuildCommand()
	assert.Equal(t, "/work", dir)
	assert.Contains(t, argv, "--agent-id")
	assert.Contains(t, argv, "agent-9")
	assert.Contains(t, argv, "--integration-type")
	assert.Contains(t, argv, "telegram")
	assert.Contains(t, argv, "--integration-settings")
	assert.Equal(t, statusstore.IntegrationStatusKey("telegram", "agent-9"), spec.StatusKey)
}
