package app

import (
	"fmt"

	"github.com/Spok95/school-fees-service/internal/promotion"
	"github.com/Spok95/school-fees-service/internal/tg"
	"go.uber.org/zap"
)

// notifyPromotionDone шлёт админам итог rollover. Без бота — тишина.
func (s *Server) notifyPromotionDone(res *promotion.Result) {
	if s.Bot == nil || len(s.AdminIDs) == 0 {
		return
	}
	var text string
	if res.Success {
		text = fmt.Sprintf(
			"🎓 Переход на новую сессию завершён (прогон #%d).\n"+
				"Переведено учеников: %d, выпущено: %d.\n"+
				"Перенесено долгов: %.2f, начислено: %.2f.",
			res.PromotionID, res.StudentsPromoted, res.StudentsDeactivated,
			res.DuesCarriedForward, res.TotalFeesAdded,
		)
	} else {
		text = fmt.Sprintf(
			"⚠️ Переход на новую сессию прерван (прогон #%d): %s\n"+
				"Частичный прогон можно откатить через revert.",
			res.PromotionID, res.ErrorMessage,
		)
	}
	s.broadcast(text)
}

func (s *Server) notifyRevertDone(promotionID int64, res *promotion.RevertResult) {
	if s.Bot == nil || len(s.AdminIDs) == 0 {
		return
	}
	var text string
	if res.Success {
		text = fmt.Sprintf(
			"↩️ Откат прогона #%d выполнен.\n"+
				"Удалено начислений: %d, возвращено классов: %d, восстановлено учеников: %d.",
			promotionID, res.FeeEntriesDeleted, res.ClassesReverted, res.StudentsReactivated,
		)
	} else {
		text = fmt.Sprintf("⚠️ Откат прогона #%d прерван: %s", promotionID, res.ErrorMessage)
	}
	s.broadcast(text)
}

func (s *Server) broadcast(text string) {
	for _, chatID := range tg.Broadcast(s.Bot, s.AdminIDs, text) {
		s.Log.Warn("telegram notify failed", zap.Int64("chat_id", chatID))
	}
}
