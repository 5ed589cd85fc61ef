package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender delivers notifications through a Telegram bot.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender authenticates the bot token against the Bot API.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	return NewTelegramSenderWithEndpoint(token, chatID, tgbotapi.APIEndpoint)
}

// NewTelegramSenderWithEndpoint is NewTelegramSender against a custom API
// endpoint of the form "https://host/bot%s/%s".
func NewTelegramSenderWithEndpoint(token string, chatID int64, endpoint string) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// Send posts a MarkdownV2 message with the title in bold.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, "*"+escapeMarkdownV2(title)+"*\n"+escapeMarkdownV2(message))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		if strings.ContainsRune(`_*[]()~`+"`"+`>#+-=|{}.!\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
