// Package telegram is the Telegram channel adapter shell (SPEC_FULL.md
// §4.11), grounded on original_source/app/integrations/telegram's
// bot-update handling translated into bus envelopes, built on
// github.com/go-telegram-bot-api/telegram-bot-api/v5 (present in both
// 88lin-divinesense and zkoranges-go-claw's go.mod).
package telegram

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/centerfire/agent-orchestrator/internal/bus"
	"github.com/centerfire/agent-orchestrator/internal/channel"
)

// Shell adapts a Telegram bot's update stream onto the agent bus.
type Shell struct {
	*channel.Bus
	bot *tgbotapi.BotAPI
}

// New builds a Shell around an authenticated bot API client.
func New(bot *tgbotapi.BotAPI, bus *channel.Bus) *Shell {
	return &Shell{Bus: bus, bot: bot}
}

// Run drives the Telegram long-poll update loop, publishing each text
// message onto the agent's input channel, and forwards the agent's
// output back to the originating chat.
func (s *Shell) Run(ctx context.Context) error {
	out, err := s.Subscribe(ctx)
	if err != nil {
		return err
	}
	go s.forwardOutput(ctx, out)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := s.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			in := bus.InputEnvelope{
				Text:           update.Message.Text,
				ChatID:         strconv.FormatInt(update.Message.Chat.ID, 10),
				PlatformUserID: strconv.FormatInt(update.Message.From.ID, 10),
				ThreadID:       strconv.FormatInt(update.Message.Chat.ID, 10),
				Channel:        "telegram",
			}
			if err := s.Publish(ctx, in); err != nil {
				s.Logger.Error("telegram: failed to publish input envelope", "error", err)
			}
		}
	}
}

func (s *Shell) forwardOutput(ctx context.Context, out <-chan bus.OutputEnvelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-out:
			if !ok {
				return
			}
			if env.Response == "" {
				continue
			}
			chatID, err := strconv.ParseInt(env.ChatID, 10, 64)
			if err != nil {
				s.Logger.Warn("telegram: output envelope has non-numeric chat_id", "chat_id", env.ChatID)
				continue
			}
			msg := tgbotapi.NewMessage(chatID, env.Response)
			if _, err := s.bot.Send(msg); err != nil {
				s.Logger.Error("telegram: failed to send message", "error", err)
			}
		}
	}
}
