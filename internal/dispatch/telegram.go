package dispatch

import (
	"context"
	"fmt"
	"html"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramPusher delivers push notifications as Telegram messages. The device
// token is the chat id.
type TelegramPusher struct {
	api *tgbotapi.BotAPI
}

func NewTelegramPusher(api *tgbotapi.BotAPI) *TelegramPusher {
	return &TelegramPusher{api: api}
}

// SendPush returns when the message is sent or ctx is done, whichever comes
// first. The client's own timeout bounds the abandoned request.
func (p *TelegramPusher) SendPush(ctx context.Context, deviceToken, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(deviceToken, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad chat id %q", ErrNoDestination, deviceToken)
	}
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("🔔 <b>%s</b>\n%s", html.EscapeString(title), html.EscapeString(body)))
	msg.ParseMode = tgbotapi.ModeHTML

	done := make(chan error, 1)
	go func() {
		_, err := p.api.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: telegram chat %d: %v", ErrTransport, chatID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: telegram chat %d: %v", ErrTransport, chatID, ctx.Err())
	}
}
