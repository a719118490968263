package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centerfire/agent-orchestrator/internal/agentmgr"
	"github.com/centerfire/agent-orchestrator/internal/config"
	"github.com/centerfire/agent-orchestrator/internal/coordinator"
	"github.com/centerfire/agent-orchestrator/internal/integrationmgr"
	"github.com/centerfire/agent-orchestrator/internal/lifecycle"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
	"github.com/centerfire/agent-orchestrator/internal/telemetry"
)

// emptyRedis satisfies statusstore.RedisClient with empty results for
// every call, enough to exercise handlers that never reach a live
// process lifecycle.
type emptyRedis struct{}

func (emptyRedis) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	return redis.NewMapStringStringCmd(ctx, map[string]string{})
}
func (emptyRedis) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}
func (emptyRedis) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}
func (emptyRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}
func (emptyRedis) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	return redis.NewStringSliceCmd(ctx)
}
func (emptyRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	return cmd
}

// fakeRepo is an in-memory config.Repository.
type fakeRepo struct {
	rows map[string]config.AgentConfig
}

func newFakeRepo() *fakeRepo { return &fakeRepo{rows: map[string]config.AgentConfig{}} }

func (f *fakeRepo) Get(ctx context.Context, agentID string) (config.AgentConfig, error) {
	cfg, ok := f.rows[agentID]
	if !ok {
		return config.AgentConfig{}, config.ErrNotFound
	}
	return cfg, nil
}

func (f *fakeRepo) List(ctx context.Context, ownerID string) ([]config.AgentConfig, error) {
	var out []config.AgentConfig
	for _, cfg := range f.rows {
		if ownerID == "" || cfg.OwnerID == ownerID {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (f *fakeRepo) Upsert(ctx context.Context, cfg config.AgentConfig) error {
	f.rows[cfg.ID] = cfg
	return nil
}

func (f *fakeRepo) Delete(ctx context.Context, agentID string) error {
	delete(f.rows, agentID)
	return nil
}

func newTestServer(repo config.Repository) *Server {
	store := statusstore.New(emptyRedis{})
	lm := lifecycle.New(store, nil)
	agents := agentmgr.New(lm, "/bin/true", "/tmp")
	integrations := integrationmgr.New(lm, map[string]string{}, "/tmp")
	return &Server{
		Repo:         repo,
		Status:       store,
		Coordinator:  coordinator.New(agents, integrations),
		Integrations: integrations,
		Redis:        nil,
		Logger:       telemetry.NewLogger("test", "error"),
		Metrics:      telemetry.NewMetrics(),
	}
}

func TestHandleCreateAgentWritesRowAndSeedsStoppedStatus(t *testing.T) {
	repo := newFakeRepo()
	s := newTestServer(repo)
	body, _ := json.Marshal(createAgentRequest{ID: "a1", Name: "Agent One", OwnerID: "owner-1"})

	req := httptest.NewRequest(http.MethodPost, "/agents", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	_, ok := repo.rows["a1"]
	assert.True(t, ok)
}

func TestHandleCreateAgentRejectsMissingID(t *testing.T) {
	s := newTestServer(newFakeRepo())
	body, _ := json.Marshal(createAgentRequest{Name: "No ID"})

	req := httptest.NewRequest(http.MethodPost, "/agents", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetAgentConfigNotFound(t *testing.T) {
	s := newTestServer(newFakeRepo())

	req := httptest.NewRequest(http.MethodGet, "/agents/missing/config", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleAgentStatusReportsStoppedWhenNoStatusKey(t *testing.T) {
	repo := newFakeRepo()
	repo.rows["a1"] = config.AgentConfig{ID: "a1"}
	s := newTestServer(repo)

	req := httptest.NewRequest(http.MethodGet, "/agents/a1/status", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var rec statusstore.Record
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rec))
	assert.Equal(t, statusstore.StatusStopped, rec.Status)
}

func TestHandleDeleteAgentRemovesRow(t *testing.T) {
	repo := newFakeRepo()
	repo.rows["a1"] = config.AgentConfig{ID: "a1"}
	s := newTestServer(repo)

	req := httptest.NewRequest(http.MethodDelete, "/agents/a1", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	_, ok := repo.rows["a1"]
	assert.False(t, ok)
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(newFakeRepo())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
