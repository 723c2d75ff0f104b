package notify

import (
	"fmt"
	"log"
	"time"

	tele "gopkg.in/telebot.v3"
)

// Announcer broadcasts solve events. Implementations must be safe for
// concurrent use; announcements are best-effort and never block scoring.
type Announcer interface {
	AnnounceSolve(team, problem string, points int)
}

type NopAnnouncer struct{}

func (NopAnnouncer) AnnounceSolve(team, problem string, points int) {}

// TelegramAnnouncer posts solve messages to a channel or group chat.
type TelegramAnnouncer struct {
	bot  *tele.Bot
	chat tele.Recipient
}

func NewTelegramAnnouncer(token string, chatID int64) (*TelegramAnnouncer, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &TelegramAnnouncer{
		bot:  bot,
		chat: tele.ChatID(chatID),
	}, nil
}

func (a *TelegramAnnouncer) AnnounceSolve(team, problem string, points int) {
	msg := fmt.Sprintf("🏁 %s solved %s (+%d points)", team, problem, points)
	if _, err := a.bot.Send(a.chat, msg); err != nil {
		log.Printf("Failed to announce solve: %v", err)
	}
}
