package notify

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bandpilot/interfaces"
	"bandpilot/logging"
)

// Telegram delivers status lines to a chat. Best-effort: a send failure is
// logged and swallowed so transient notifier outages never reach the loop.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger logging.LoggerInterface
}

var _ interfaces.Notifier = (*Telegram)(nil)

// NewTelegram connects the bot API. An empty token disables delivery and
// returns a notifier that only logs.
func NewTelegram(token string, chatID int64, logger logging.LoggerInterface) *Telegram {
	t := &Telegram{chatID: chatID, logger: logger}
	if token == "" {
		logger.Warning("Telegram token empty: notifications disabled")
		return t
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Telegram connect failed, notifications disabled: %v", err)
		return t
	}
	bot.Debug = false
	t.bot = bot
	logger.Info("Telegram connected as @%s", bot.Self.UserName)
	return t
}

// Send delivers one plain-text line.
func (t *Telegram) Send(text string) {
	t.logger.Info("Notify: %s", text)
	if t.bot == nil {
		return
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		t.logger.Error("Telegram send failed: %v", err)
	}
}
