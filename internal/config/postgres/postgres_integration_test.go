//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/centerfire/agent-orchestrator/internal/config"
	"github.com/centerfire/agent-orchestrator/internal/config/postgres"
	"github.com/centerfire/agent-orchestrator/migrations"
)

func TestUpsertGetRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("orchestrator"),
		tcpostgres.WithUsername("orchestrator"),
		tcpostgres.WithPassword("orchestrator"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	require.NoError(t, err)
	defer container.Terminate(ctx)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, postgres.Migrate(dsn))
	_ = migrations.FS

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	repo := postgres.New(pool)
	cfg := config.AgentConfig{
		ID:       "agent-1",
		Name:     "Test Agent",
		OwnerID:  "owner-1",
		Settings: map[string]any{"model": "gpt-test"},
	}
	require.NoError(t, repo.Upsert(ctx, cfg))

	got, err := repo.Get(ctx, "agent-1")
	require.NoError(t, err)
	require.Equal(t, "Test Agent", got.Name)
	require.Equal(t, "gpt-test", got.Settings["model"])

	require.NoError(t, repo.Delete(ctx, "agent-1"))
	_, err = repo.Get(ctx, "agent-1")
	require.ErrorIs(t, err, config.ErrNotFound)
}
