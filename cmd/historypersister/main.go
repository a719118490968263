// Command historypersister drains chat_history_queue and persists valid
// events to Postgres (SPEC_FULL.md C10), grounded on
// original_source/agent_manager/history_saver.py's main() and on
// 88lin-divinesense's cobra+viper bootstrap.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pgrepo "github.com/centerfire/agent-orchestrator/internal/config/postgres"
	"github.com/centerfire/agent-orchestrator/internal/history"
	"github.com/centerfire/agent-orchestrator/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "historypersister",
	Short: "Drain chat_history_queue into Postgres",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("redis-addr", "localhost:6379", "redis address")
	flags.String("postgres-dsn", "", "postgres DSN for chat_messages")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	for _, name := range []string{"redis-addr", "postgres-dsn", "log-level"} {
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
	logger := telemetry.NewLogger("historypersister", viper.GetString("log-level"))
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

	sup := &history.Supervisor{
		Worker: &history.Worker{Redis: rdb, DB: pool, Logger: logger, Metrics: metrics},
		Logger: logger,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	sup.Run(ctx)
	return nil
}
