package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"slotkeeper/internal/reminders"
)

// BotAPI is the part of *tgbotapi.BotAPI the sender uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender delivers reminders as bot messages.
type TelegramSender struct {
	bot BotAPI
}

func NewTelegramSender(bot BotAPI) *TelegramSender {
	return &TelegramSender{bot: bot}
}

func (t *TelegramSender) Send(ctx context.Context, b reminders.Booking, lead int) error {
	if b.Recipient.TelegramChatID == 0 {
		return &reminders.DeliveryError{
			Channel: reminders.ChannelTelegram,
			Code:    http.StatusBadRequest,
			Message: "customer has no telegram chat",
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := Compose(b, lead)
	msg := tgbotapi.NewMessage(b.Recipient.TelegramChatID, m.Body)
	if _, err := t.bot.Send(msg); err != nil {
		return telegramError(err)
	}
	return nil
}

// telegramError turns API refusals into DeliveryErrors so the dispatcher can
// tell rate limiting from a blocked bot.
func telegramError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &reminders.DeliveryError{
			Channel:    reminders.ChannelTelegram,
			Code:       apiErr.Code,
			Message:    apiErr.Message,
			RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
		}
	}
	return fmt.Errorf("telegram send: %w", err)
}
