package promotion

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Spok95/school-fees-service/internal/db"
	"github.com/Spok95/school-fees-service/internal/errs"
	"github.com/Spok95/school-fees-service/internal/models"
	"go.uber.org/zap"
)

type SafetyCheck struct {
	CanRevertSafely bool     `json:"can_revert_safely"`
	Warnings        []string `json:"warnings"`
}

type RevertResult struct {
	Success                      bool   `json:"success"`
	ErrorMessage                 string `json:"error_message,omitempty"`
	FeeStructuresDeleted         int64  `json:"fee_structures_deleted"`
	OpeningBalanceEntriesDeleted int64  `json:"opening_balance_entries_deleted"`
	ClassesReverted              int64  `json:"classes_reverted"`
	StudentsReactivated          int64  `json:"students_reactivated"`
	FeeEntriesDeleted            int64  `json:"fee_entries_deleted"`
	// Ненулевые только при forceDelete: это уничтоженные легитимные данные,
	// поэтому выведены отдельными полями, а не растворены в общих счётчиках.
	ReceiptsDeleted int64 `json:"receipts_deleted"`
	StudentsDeleted int64 `json:"students_deleted"`
}

// RevertEngine симметрично разбирает выполненный rollover. Знает о нём
// ровно то, что записано в session_promotions, и откатывает только
// фазы, отмеченные там как выполненные.
type RevertEngine struct {
	DB  *sql.DB
	Log *zap.Logger
}

func NewRevertEngine(database *sql.DB, log *zap.Logger) *RevertEngine {
	return &RevertEngine{DB: database, Log: log}
}

// CheckSafety ищет в целевой сессии следы легитимной пост-rollover
// активности, которую откат уничтожил бы: платежи и новых студентов.
func (r *RevertEngine) CheckSafety(ctx context.Context, promotionID int64) (*SafetyCheck, error) {
	p, err := db.GetPromotionByID(ctx, r.DB, promotionID)
	if err != nil {
		return nil, err
	}

	check := &SafetyCheck{CanRevertSafely: true}

	credits, err := db.CountSessionCredits(ctx, r.DB, p.TargetSessionID)
	if err != nil {
		return nil, err
	}
	if credits > 0 {
		check.CanRevertSafely = false
		check.Warnings = append(check.Warnings,
			fmt.Sprintf("в целевой сессии записано платежей: %d — откат удалит данные об оплате", credits))
	}

	admitted, err := db.ListStudentsAdmittedIn(ctx, r.DB, p.TargetSessionID)
	if err != nil {
		return nil, err
	}
	if len(admitted) > 0 {
		check.CanRevertSafely = false
		check.Warnings = append(check.Warnings,
			fmt.Sprintf("в целевой сессии заведено новых студентов: %d — откат удалит их записи", len(admitted)))
	}

	return check, nil
}

// Execute откатывает зафиксированные фазы в порядке, обратном rollover.
// Каждая категория — своя транзакция, и в ней же снимается флаг фазы:
// падение останавливает откат, а повторный запуск продолжает с
// неразобранных категорий, не трогая состав второй раз.
func (r *RevertEngine) Execute(ctx context.Context, promotionID int64, forceDelete bool, reason string) (*RevertResult, error) {
	p, err := db.GetPromotionByID(ctx, r.DB, promotionID)
	if err != nil {
		return nil, err
	}
	if p.RevertedAt != nil {
		return nil, errs.Conflictf("rollover %d уже откатан", promotionID)
	}

	res := &RevertResult{Success: true}
	fail := func(step string, err error) (*RevertResult, error) {
		res.Success = false
		res.ErrorMessage = fmt.Sprintf("%s: %v", step, err)
		r.Log.Error("откат rollover прерван", zap.String("step", step), zap.Error(err))
		return res, nil
	}

	// 5' — вернуть исходной сессии статус текущей
	if p.SetAsCurrent {
		err := r.inTx(ctx, func(tx *sql.Tx) error {
			if err := db.SetCurrentSessionTx(ctx, tx, p.SourceSessionID); err != nil {
				return err
			}
			return db.ClearPromotionPhases(ctx, tx, p.ID, db.PhaseSetAsCurrent)
		})
		if err != nil {
			return fail("восстановление текущей сессии", err)
		}
	}

	// принудительное удаление легитимных пост-rollover данных — до
	// обратного перевода классов, чтобы новые студенты под него не попали
	if forceDelete {
		err := r.inTx(ctx, func(tx *sql.Tx) error {
			n, err := db.DeleteSessionCredits(ctx, tx, p.TargetSessionID)
			if err != nil {
				return err
			}
			res.ReceiptsDeleted = n
			admitted, err := db.ListStudentsAdmittedIn(ctx, tx, p.TargetSessionID)
			if err != nil {
				return err
			}
			for _, st := range admitted {
				if err := db.DeleteStudentCascade(ctx, tx, st.ID); err != nil {
					return err
				}
				res.StudentsDeleted++
			}
			return nil
		})
		if err != nil {
			return fail("принудительное удаление", err)
		}
	}

	// 4' — убрать начисления целевой сессии
	if p.AddedTuitionFees || p.AddedTransportFees {
		err := r.inTx(ctx, func(tx *sql.Tx) error {
			refs := []models.ReferenceType{}
			if p.AddedTuitionFees {
				refs = append(refs, models.RefFeeCharge, models.RefRegistrationFee)
			}
			if p.AddedTransportFees {
				refs = append(refs, models.RefTransportFee)
			}
			n, err := db.DeleteSessionEntriesByReference(ctx, tx, p.TargetSessionID, refs...)
			if err != nil {
				return err
			}
			res.FeeEntriesDeleted = n
			return db.ClearPromotionPhases(ctx, tx, p.ID, db.PhaseAddedTuitionFees, db.PhaseAddedTransportFees)
		})
		if err != nil {
			return fail("удаление начислений", err)
		}
	}

	// 3' — обратный перевод классов и реактивация 12-классников.
	// Прогон переводил по возрастанию id и упал fail-fast, значит
	// переведены ровно первые StudentsPromoted подходящих студентов:
	// понижаем столько же в том же порядке и ни одного больше.
	if p.PromotedClasses && (p.StudentsPromoted > 0 || p.StudentsDeactivated > 0) {
		err := r.inTx(ctx, func(tx *sql.Tx) error {
			students, err := db.ListActiveStudents(ctx, tx)
			if err != nil {
				return err
			}
			toDemote := p.StudentsPromoted
			for _, st := range students {
				if toDemote == 0 {
					break
				}
				// заведённых после rollover студентов не трогаем:
				// их никто не переводил
				if st.AdmissionSessionID == p.TargetSessionID {
					continue
				}
				// без деактивации 12-классники оставались терминальными,
				// значит активный 12th переводом не создан — не трогаем
				if st.CurrentClass == models.SeniorClass && !p.Deactivated12thStudents {
					continue
				}
				if prev, ok := models.PrevClass(st.CurrentClass); ok {
					if err := db.SetStudentClass(ctx, tx, st.ID, prev); err != nil {
						return err
					}
					res.ClassesReverted++
					toDemote--
				}
			}
			if p.Deactivated12thStudents {
				// реактивируем только деактивированных в окне прогона;
				// отчисленные вручную остаются отчисленными
				n, err := db.ReactivateSeniors(ctx, tx, p.StartedAt, p.ExecutedAt)
				if err != nil {
					return err
				}
				res.StudentsReactivated = n
			}
			return db.ClearPromotionPhases(ctx, tx, p.ID, db.PhasePromotedClasses, db.PhaseDeactivated12thStudents)
		})
		if err != nil {
			return fail("обратный перевод классов", err)
		}
	}

	// 2' — удалить перенесённые долги
	if p.CarriedForwardDues {
		err := r.inTx(ctx, func(tx *sql.Tx) error {
			n, err := db.DeleteSessionEntriesByReference(ctx, tx, p.TargetSessionID, models.RefOpeningBalance)
			if err != nil {
				return err
			}
			res.OpeningBalanceEntriesDeleted = n
			return db.ClearPromotionPhases(ctx, tx, p.ID, db.PhaseCarriedForwardDues)
		})
		if err != nil {
			return fail("удаление перенесённых долгов", err)
		}
	}

	// 1' — удалить скопированные fee structures
	if p.CopiedFeeStructures {
		err := r.inTx(ctx, func(tx *sql.Tx) error {
			n, err := db.DeleteFeeStructuresForSession(ctx, tx, p.TargetSessionID)
			if err != nil {
				return err
			}
			res.FeeStructuresDeleted = n
			return db.ClearPromotionPhases(ctx, tx, p.ID, db.PhaseCopiedFeeStructures)
		})
		if err != nil {
			return fail("удаление fee structures", err)
		}
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err := db.MarkPromotionReverted(ctx, r.DB, promotionID, reasonPtr); err != nil {
		return fail("отметка об откате", err)
	}

	r.Log.Info("rollover откатан",
		zap.Int64("promotion_id", promotionID),
		zap.Int64("classes_reverted", res.ClassesReverted),
		zap.Int64("receipts_deleted", res.ReceiptsDeleted))
	return res, nil
}

func (r *RevertEngine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
