package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"alerthub/internal/config"
	"alerthub/internal/domain"
)

// TelegramSender delivers messages through the Telegram Bot API with
// Markdown formatting.
// Params: bot token and API base URL from config.
// Returns: Telegram channel sender.
type TelegramSender struct {
	client  *tgbot.Bot
	log     *slog.Logger
	initErr error
}

// NewTelegramSender creates the Telegram sender.
// Params: Telegram config and logger.
// Returns: initialized sender; a bad token surfaces on first send.
func NewTelegramSender(cfg config.TelegramConfig, log *slog.Logger) *TelegramSender {
	sender := &TelegramSender{log: log}
	if strings.TrimSpace(cfg.BotToken) == "" {
		sender.initErr = errors.New("telegram bot token is required")
		return sender
	}
	options := []tgbot.Option{
		tgbot.WithSkipGetMe(),
		tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")),
	}
	client, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		sender.initErr = fmt.Errorf("init telegram bot: %w", err)
		return sender
	}
	sender.client = client
	return sender
}

// Channel returns the sender channel.
func (s *TelegramSender) Channel() domain.NotifyChannel {
	return domain.ChannelTelegram
}

// SendRaw posts one plain message to a chat.
// Params: numeric chat id and message text.
// Returns: transport error.
func (s *TelegramSender) SendRaw(ctx context.Context, target, text string) error {
	if s.initErr != nil {
		return s.initErr
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q is not numeric", target)
	}
	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeMarkdownV1,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("telegram send returned empty message id")
	}
	return nil
}

// SendAlert renders the template against the alert record and posts it.
// Params: chat id, template body, alert record.
// Returns: rendering or transport error.
func (s *TelegramSender) SendAlert(ctx context.Context, target, templateText string, record map[string]any) error {
	text, err := Render("telegram", templateText, record)
	if err != nil {
		return err
	}
	return s.SendRaw(ctx, target, text)
}
