// Command integrationrunner is the Channel Adapter Shell entrypoint
// (SPEC_FULL.md C11, spec.md §6's `--agent-id --integration-type
// --integration-settings` CLI contract): it dials the named platform and
// relays turns onto the agent bus until told to stop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/centerfire/agent-orchestrator/internal/channel"
	"github.com/centerfire/agent-orchestrator/internal/channel/telegram"
	"github.com/centerfire/agent-orchestrator/internal/channel/whatsapp"
	"github.com/centerfire/agent-orchestrator/internal/runtime"
	"github.com/centerfire/agent-orchestrator/internal/statusstore"
	"github.com/centerfire/agent-orchestrator/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "integrationrunner",
	Short: "Run one agent's channel adapter shell (telegram, whatsapp)",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("agent-id", "", "agent id this process relays messages for")
	flags.String("integration-type", "", "telegram or whatsapp")
	flags.String("integration-settings", "", "JSON-encoded integration settings")
	flags.String("redis-addr", "localhost:6379", "redis address")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	for _, name := range []string{"agent-id", "integration-type", "integration-settings", "redis-addr", "log-level"} {
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

type integrationSettings struct {
	BotToken  string `json:"bot_token"`
	SocketURL string `json:"socket_url"`
}

func run(cmd *cobra.Command, args []string) error {
	agentID := viper.GetString("agent-id")
	integrationType := viper.GetString("integration-type")
	if agentID == "" || integrationType == "" {
		return fmt.Errorf("--agent-id and --integration-type are required")
	}

	logger := telemetry.NewLogger("integrationrunner", viper.GetString("log-level")).
		With("agent_id", agentID, "integration_type", integrationType)

	var settings integrationSettings
	if raw := viper.GetString("integration-settings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			return fmt.Errorf("invalid --integration-settings: %w", err)
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: viper.GetString("redis-addr")})
	defer rdb.Close()

	store := statusstore.New(rdb)
	statusKey := statusstore.IntegrationStatusKey(integrationType, agentID)
	if err := store.SetFields(context.Background(), statusKey, map[string]any{
		"status": string(statusstore.StatusRunning),
		"pid":    os.Getpid(),
	}); err != nil {
		logger.Error("failed to record running status", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := &channel.Bus{Redis: rdb, AgentID: agentID, Logger: logger}

	var shell interface{ Run(context.Context) error }
	switch integrationType {
	case "telegram":
		if settings.BotToken == "" {
			return fmt.Errorf("telegram integration requires a bot_token setting")
		}
		bot, err := tgbotapi.NewBotAPI(settings.BotToken)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram bot: %w", err)
		}
		shell = telegram.New(bot, bus)
	case "whatsapp":
		if settings.SocketURL == "" {
			return fmt.Errorf("whatsapp integration requires a socket_url setting")
		}
		u, err := url.Parse(settings.SocketURL)
		if err != nil {
			return fmt.Errorf("invalid socket_url: %w", err)
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return fmt.Errorf("failed to dial wppconnect socket: %w", err)
		}
		defer conn.Close()
		shell = whatsapp.New(conn, bus)
	default:
		return fmt.Errorf("unsupported integration type %q", integrationType)
	}

	go func() {
		keepGoing := func() bool { return ctx.Err() == nil }
		if err := runtime.ListenControl(ctx, rdb, agentID, logger, keepGoing, cancel, cancel); err != nil {
			logger.Error("control listener exited with error", "error", err)
		}
	}()

	err := shell.Run(ctx)
	_ = store.SetFields(context.Background(), statusKey, map[string]any{"status": string(statusstore.StatusStopped)})
	if err != nil && ctx.Err() == nil {
		logger.Error("channel adapter exited with error", "error", err)
		return err
	}
	return nil
}
