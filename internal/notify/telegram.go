package notify

import (
	"context"
	"fmt"
	"html"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender delivers notifications as Telegram messages. The address is
// the chat ID in decimal form.
type TelegramSender struct {
	api *tgbotapi.BotAPI
}

func NewTelegramSender(token string) (*TelegramSender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramSender{api: api}, nil
}

func (s *TelegramSender) Channel() string { return ChannelTelegram }

func (s *TelegramSender) Send(_ context.Context, to string, payload Payload) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return Permanent(fmt.Errorf("bad chat id %q: %w", to, err))
	}

	text := fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(payload.Title), html.EscapeString(payload.Body))
	if payload.DeepLink != "" {
		text += fmt.Sprintf("\n<a href=%q>Open your plan</a>", payload.DeepLink)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
