// Package notify delivers rendered alert messages through the configured
// outbound channels.
package notify

import (
	"context"
	"log/slog"

	"alerthub/internal/config"
	"alerthub/internal/domain"
)

// Sender delivers messages through one notification channel.
// Params: delivery target (chat id, topic, or URI), message or template
// text, and the alert record for rendering.
// Returns: transport or rendering error; both count as delivery failure.
type Sender interface {
	Channel() domain.NotifyChannel
	SendRaw(ctx context.Context, target, text string) error
	SendAlert(ctx context.Context, target, templateText string, record map[string]any) error
}

// Set holds the configured channel senders keyed by channel.
// Params: per-channel sender implementations.
// Returns: lookup used by the pipeline builtins.
type Set struct {
	senders map[domain.NotifyChannel]Sender
}

// NewSet builds senders for every configured channel.
// Params: notify config, external base URL for alert links, logger.
// Returns: sender set; channels without configuration are absent.
func NewSet(cfg config.NotifyConfig, baseURL string, log *slog.Logger) *Set {
	senders := make(map[domain.NotifyChannel]Sender)
	if cfg.Telegram.BotToken != "" {
		senders[domain.ChannelTelegram] = NewTelegramSender(cfg.Telegram, log)
	}
	if cfg.Ntfy.Server != "" {
		senders[domain.ChannelNtfy] = NewNtfySender(cfg.Ntfy, baseURL, log)
	}
	if cfg.Apprise.Server != "" {
		senders[domain.ChannelApprise] = NewAppriseSender(cfg.Apprise, log)
	}
	return &Set{senders: senders}
}

// NewSetFromSenders wires explicit senders, for tests.
// Params: sender list.
// Returns: sender set.
func NewSetFromSenders(senders ...Sender) *Set {
	set := &Set{senders: make(map[domain.NotifyChannel]Sender)}
	for _, sender := range senders {
		set.senders[sender.Channel()] = sender
	}
	return set
}

// Sender returns the sender for one channel.
// Params: channel selector.
// Returns: sender and whether the channel is configured.
func (s *Set) Sender(channel domain.NotifyChannel) (Sender, bool) {
	sender, ok := s.senders[channel]
	return sender, ok
}
