// File: internal/infra/adapters/alert/telegram_alerter.go
package alert

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"saas-billing-core/internal/config"
	"saas-billing-core/internal/domain/ports/adapter"
)

var _ adapter.AdminAlerter = (*TelegramAlerter)(nil)

// TelegramAlerter pushes compensation and reconciliation alerts to an ops chat.
// It is best-effort on purpose: a send failure is returned to the caller, but
// every caller in this codebase logs and swallows it.
type TelegramAlerter struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramAlerter(cfg *config.AlertConfig, logger *zerolog.Logger) (*TelegramAlerter, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram alerter: %w", err)
	}
	return &TelegramAlerter{bot: bot, chatID: cfg.TelegramChatID, logger: logger}, nil
}

func (a *TelegramAlerter) Alert(ctx context.Context, subject, body string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := tgbotapi.NewMessage(a.chatID, fmt.Sprintf("🚨 %s\n\n%s", subject, body))
	if _, err := a.bot.Send(msg); err != nil {
		a.logger.Warn().Err(err).Str("subject", subject).Msg("telegram alert send failed")
		return err
	}
	return nil
}

// NoopAlerter is used when no alert channel is configured (dev, tests).
type NoopAlerter struct{}

var _ adapter.AdminAlerter = (*NoopAlerter)(nil)

func (NoopAlerter) Alert(ctx context.Context, subject, body string) error { return nil }
