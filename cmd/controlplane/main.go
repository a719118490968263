// Command controlplane is the orchestration core's HTTP/WebSocket control
// surface (SPEC_FULL.md C7): agent CRUD, start/stop/restart, and the
// duplex-streaming websocket endpoint, grounded on
// 88lin-divinesense's cmd/divinesense cobra+viper bootstrap.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/centerfire/agent-orchestrator/internal/agentmgr"
	pgrepo "github.com/centerfire/agent-orchestrator/internal/config/postgres"
	"github.com/centerfire/agent-orchestrator/internal/controlplane"
	"github.com/centerfire/agent-orchestrator/internal/coordinator"
	"github.com/centerfire/agent-orchestrator/internal/integrationmgr"
	"github.com/centerfire/agent-orchestrator/internal/launcher"
	"github.com/centerfire/agent-orchestrator/internal/lifecycle"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
	"github.com/centerfire/agent-orchestrator/internal/sweeper"
	"github.com/centerfire/agent-orchestrator/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "controlplane",
	Short: "HTTP/WebSocket control surface for the agent orchestration platform",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("addr", ":8080", "address the HTTP server listens on")
	flags.String("redis-addr", "localhost:6379", "redis address")
	flags.String("postgres-dsn", "", "postgres DSN for agent_configs/chat_messages")
	flags.String("agent-runner-path", "./bin/agentrunner", "path to the agent runner binary")
	flags.String("integration-runner-path", "./bin/integrationrunner", "path to the integration runner binary")
	flags.Duration("inactivity-check-interval", 60*time.Second, "how often the inactivity sweeper scans agent statuses")
	flags.Duration("inactivity-timeout", 30*time.Minute, "how long an agent may sit idle before the sweeper force-stops it")
	flags.String("rate-limit-config", "", "path to a YAML per-client rate limit policy (disabled if unset)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	for _, name := range []string{"addr", "redis-addr", "postgres-dsn", "agent-runner-path", "integration-runner-path", "inactivity-check-interval", "inactivity-timeout", "rate-limit-config", "log-level"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("orchestrator")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := telemetry.NewLogger("controlplane", viper.GetString("log-level"))
	metrics := telemetry.NewMetrics()

	dsn := viper.GetString("postgres-dsn")
	if dsn == "" {
		logger.Error("postgres-dsn is required")
		os.Exit(1)
	}
	if err := pgrepo.Migrate(dsn); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: viper.GetString("redis-addr")})
	defer rdb.Close()

	store := statusstore.New(rdb)
	lm := lifecycle.New(store, launcher.New())
	agents := agentmgr.New(lm, viper.GetString("agent-runner-path"), ".")
	runnerPath := viper.GetString("integration-runner-path")
	integrations := integrationmgr.New(lm, map[string]string{
		"telegram":  runnerPath,
		"whatsapp":  runnerPath,
		"websocket": runnerPath,
	}, ".")
	coord := coordinator.New(agents, integrations)

	sw := sweeper.New(store, agents, logger.With("component", "sweeper"),
		viper.GetDuration("inactivity-check-interval"), viper.GetDuration("inactivity-timeout"))
	go sw.Run(ctx)

	var limiter *controlplane.RateLimiter
	if path := viper.GetString("rate-limit-config"); path != "" {
		policy, err := controlplane.LoadRateLimitPolicy(path)
		if err != nil {
			logger.Error("failed to load rate limit policy", "path", path, "error", err)
			os.Exit(1)
		}
		limiter = controlplane.NewRateLimiter(policy)
	}

	srv := &controlplane.Server{
		Repo:         pgrepo.New(pool),
		Status:       store,
		Coordinator:  coord,
		Integrations: integrations,
		Redis:        rdb,
		Logger:       logger,
		Metrics:      metrics,
		RateLimiter:  limiter,
	}

	httpServer := &http.Server{Addr: viper.GetString("addr"), Handler: srv.Router()}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	logger.Info("controlplane listening", "addr", viper.GetString("addr"))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("http server failed", "error", err)
		return err
	}
	return nil
}
