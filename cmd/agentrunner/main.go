// Command agentrunner is the Child Runtime entrypoint for a single agent
// process (SPEC_FULL.md C9, spec.md §6's `--agent-id`/`--agent-settings`
// CLI contract), grounded on original_source/agent_runner/runner.py's
// main() and on 88lin-divinesense's cobra+viper bootstrap.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/centerfire/agent-orchestrator/internal/reasoning"
	"github.com/centerfire/agent-orchestrator/internal/runtime"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
	"github.com/centerfire/agent-orchestrator/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "agentrunner",
	Short: "Run one agent's Child Runtime process",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("agent-id", "", "agent id this process runs")
	flags.String("agent-settings", "", "JSON-encoded agent settings (unused by the reasoning stub)")
	flags.String("redis-addr", "localhost:6379", "redis address")
	flags.String("config-url", "", "control plane URL to fetch this agent's configuration from")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	for _, name := range []string{"agent-id", "agent-settings", "redis-addr", "config-url", "log-level"} {
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
	agentID := viper.GetString("agent-id")
	if agentID == "" {
		return fmt.Errorf("--agent-id is required")
	}

	logger := telemetry.NewLogger("agentrunner", viper.GetString("log-level")).With("agent_id", agentID)
	rdb := redis.NewClient(&redis.Options{Addr: viper.GetString("redis-addr")})
	defer rdb.Close()

	rt := &runtime.Runtime{
		AgentID:   agentID,
		StatusKey: statusstore.AgentStatusKey(agentID),
		ConfigURL: viper.GetString("config-url"),
		Redis:     rdb,
		Engine:    reasoning.Stub{},
		Logger:    logger,
	}

	ctx := context.Background()
	for {
		restart, err := rt.Run(ctx)
		if err != nil {
			logger.Error("runtime exited with error", "error", err)
			return err
		}
		if !restart {
			return nil
		}
		logger.Info("control channel requested restart, relaunching runtime loop")
	}
}
