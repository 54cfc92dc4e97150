package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Spok95/school-fees-service/internal/errs"
	"github.com/Spok95/school-fees-service/internal/models"
)

const promotionCols = `id, source_session_id, target_session_id, started_at, executed_at,
copied_fee_structures, carried_forward_dues, promoted_classes, deactivated_12th_students,
added_tuition_fees, added_transport_fees, set_as_current,
fee_structures_copied, students_promoted, students_with_dues_carried, students_deactivated,
total_fees_added, success, error_message, reverted_at, revert_reason`

func InsertPromotion(ctx context.Context, q Querier, p models.SessionPromotion) (int64, error) {
	if p.StartedAt.IsZero() {
		p.StartedAt = time.Now()
	}
	var id int64
	err := q.QueryRowContext(ctx, `
INSERT INTO session_promotions (
    source_session_id, target_session_id, started_at,
    copied_fee_structures, carried_forward_dues, promoted_classes, deactivated_12th_students,
    added_tuition_fees, added_transport_fees, set_as_current,
    fee_structures_copied, students_promoted, students_with_dues_carried, students_deactivated,
    total_fees_added, success, error_message
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
RETURNING id`,
		p.SourceSessionID, p.TargetSessionID, p.StartedAt,
		p.CopiedFeeStructures, p.CarriedForwardDues, p.PromotedClasses, p.Deactivated12thStudents,
		p.AddedTuitionFees, p.AddedTransportFees, p.SetAsCurrent,
		p.FeeStructuresCopied, p.StudentsPromoted, p.StudentsWithDuesCarried, p.StudentsDeactivated,
		p.TotalFeesAdded, p.Success, p.ErrorMessage,
	).Scan(&id)
	return id, err
}

func GetPromotionByID(ctx context.Context, q Querier, id int64) (*models.SessionPromotion, error) {
	row := q.QueryRowContext(ctx, `SELECT `+promotionCols+` FROM session_promotions WHERE id = $1`, id)
	var p models.SessionPromotion
	err := row.Scan(&p.ID, &p.SourceSessionID, &p.TargetSessionID, &p.StartedAt, &p.ExecutedAt,
		&p.CopiedFeeStructures, &p.CarriedForwardDues, &p.PromotedClasses, &p.Deactivated12thStudents,
		&p.AddedTuitionFees, &p.AddedTransportFees, &p.SetAsCurrent,
		&p.FeeStructuresCopied, &p.StudentsPromoted, &p.StudentsWithDuesCarried, &p.StudentsDeactivated,
		&p.TotalFeesAdded, &p.Success, &p.ErrorMessage, &p.RevertedAt, &p.RevertReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("запись promotion %d не найдена", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func MarkPromotionReverted(ctx context.Context, q Querier, id int64, reason *string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE session_promotions SET reverted_at = $2, revert_reason = $3 WHERE id = $1`,
		id, time.Now(), reason)
	return err
}

// Колонки флагов фаз; откат снимает их по мере разбора.
const (
	PhaseCopiedFeeStructures     = "copied_fee_structures"
	PhaseCarriedForwardDues      = "carried_forward_dues"
	PhasePromotedClasses         = "promoted_classes"
	PhaseDeactivated12thStudents = "deactivated_12th_students"
	PhaseAddedTuitionFees        = "added_tuition_fees"
	PhaseAddedTransportFees      = "added_transport_fees"
	PhaseSetAsCurrent            = "set_as_current"
)

var promotionPhaseCols = map[string]bool{
	PhaseCopiedFeeStructures:     true,
	PhaseCarriedForwardDues:      true,
	PhasePromotedClasses:         true,
	PhaseDeactivated12thStudents: true,
	PhaseAddedTuitionFees:        true,
	PhaseAddedTransportFees:      true,
	PhaseSetAsCurrent:            true,
}

// ClearPromotionPhases снимает флаги откатанных фаз. Вызывается в одной
// транзакции с самим откатом категории: повторный запуск отката после
// сбоя пропустит уже разобранное и не тронет состав второй раз.
func ClearPromotionPhases(ctx context.Context, q Querier, id int64, cols ...string) error {
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if !promotionPhaseCols[c] {
			return fmt.Errorf("неизвестная колонка фазы %q", c)
		}
		sets = append(sets, c+" = FALSE")
	}
	if len(sets) == 0 {
		return nil
	}
	_, err := q.ExecContext(ctx,
		`UPDATE session_promotions SET `+strings.Join(sets, ", ")+` WHERE id = $1`, id)
	return err
}
