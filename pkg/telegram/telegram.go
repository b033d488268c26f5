// Package telegram sends messages through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
)

// Sender wraps one bot token. The underlying client is created once and
// reused across sends.
type Sender struct {
	bot *bot.Bot
}

func NewSender(token string) (*Sender, error) {
	if token == "" {
		return nil, fmt.Errorf("missing telegram bot token")
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	return &Sender{bot: b}, nil
}

func (s *Sender) Send(ctx context.Context, chatID int64, message string) error {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   message,
	}
	if _, err := s.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send telegram message to chat_id %d: %w", chatID, err)
	}
	return nil
}
