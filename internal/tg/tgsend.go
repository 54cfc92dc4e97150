package tg

import (
	"strings"

	"github.com/Spok95/school-fees-service/internal/observability"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Считаем системными: 5xx, 429, timeout. 400-ки и типичные телеграм-валидации в Sentry не шлём.
func isSystemErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	if strings.Contains(s, "429") || strings.Contains(s, "502") || strings.Contains(s, "503") || strings.Contains(s, "timeout") {
		return true
	}
	return false
}

func Send(bot *tgbotapi.BotAPI, msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	m, err := bot.Send(msg)
	if isSystemErr(err) {
		observability.CaptureErr(err)
	}
	return m, err
}

// Broadcast рассылает текст по списку чатов и возвращает чаты, до которых не дошло.
// Нулевой бот или пустой список админов превращают рассылку в no-op.
func Broadcast(bot *tgbotapi.BotAPI, chatIDs []int64, text string) []int64 {
	if bot == nil {
		return nil
	}
	var failed []int64
	for _, chatID := range chatIDs {
		if _, err := Send(bot, tgbotapi.NewMessage(chatID, text)); err != nil {
			failed = append(failed, chatID)
		}
	}
	return failed
}
