package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/stockdesk/internal/domain/users"
)

// Sender is the part of *tgbotapi.BotAPI the sink uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink messages every recipient with a linked Telegram account and,
// when set, the admin chat.
type TelegramSink struct {
	api       Sender
	adminChat int64
}

func NewTelegramSink(api Sender, adminChatID int64) *TelegramSink {
	return &TelegramSink{api: api, adminChat: adminChatID}
}

func (s *TelegramSink) Deliver(ctx context.Context, to []users.User, n Notice) error {
	text := n.Title
	if n.Body != "" {
		text += "\n\n" + n.Body
	}

	chats := make([]int64, 0, len(to)+1)
	sent := map[int64]bool{}
	for _, u := range to {
		if u.TelegramID == nil || sent[*u.TelegramID] {
			continue
		}
		sent[*u.TelegramID] = true
		chats = append(chats, *u.TelegramID)
	}
	if s.adminChat != 0 && !sent[s.adminChat] {
		chats = append(chats, s.adminChat)
	}

	var errList []error
	for _, chatID := range chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			errList = append(errList, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errList...)
}
