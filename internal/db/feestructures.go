package db

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/Spok95/school-fees-service/internal/models"
)

const feeCols = `id, session_id, class_name, fee_type, amount, full_year_discount_months,
is_active, deleted_reason, created_at, updated_at`

func scanFee(row interface{ Scan(...any) error }) (*models.FeeStructure, error) {
	var f models.FeeStructure
	err := row.Scan(&f.ID, &f.SessionID, &f.ClassName, &f.FeeType, &f.Amount, &f.FullYearDiscountMonths,
		&f.IsActive, &f.DeletedReason, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetActiveFeeStructure возвращает единственную активную строку ключа
// (session, class, fee_type) или nil — отсутствие структуры не ошибка:
// у многих комбинаций её легитимно нет.
func GetActiveFeeStructure(ctx context.Context, q Querier, sessionID int64, className string, ft models.FeeType) (*models.FeeStructure, error) {
	row := q.QueryRowContext(ctx, `
SELECT `+feeCols+` FROM fee_structures
WHERE session_id = $1 AND class_name = $2 AND fee_type = $3 AND is_active`,
		sessionID, className, ft)
	f, err := scanFee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// UpsertFeeStructure: активная строка есть — сумма меняется на месте
// (id сохраняется для трассировки); amount <= 0 — soft-delete активной строки.
// Отдельного «удалить» у вызывающих нет: сумма и существование — один тумблер.
func UpsertFeeStructure(ctx context.Context, database *sql.DB, sessionID int64, className string, ft models.FeeType, amount float64, discountMonths int) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := GetActiveFeeStructure(ctx, tx, sessionID, className, ft)
	if err != nil {
		return err
	}

	if amount <= 0 {
		if existing == nil {
			// нечего выключать
			return tx.Commit()
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE fee_structures SET is_active = FALSE, deleted_reason = 'amount set to zero', updated_at = now()
WHERE id = $1`, existing.ID); err != nil {
			return err
		}
		return tx.Commit()
	}

	if existing != nil {
		if _, err := tx.ExecContext(ctx, `
UPDATE fee_structures SET amount = $2, full_year_discount_months = $3, updated_at = now()
WHERE id = $1`, existing.ID, amount, discountMonths); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO fee_structures (session_id, class_name, fee_type, amount, full_year_discount_months)
VALUES ($1, $2, $3, $4, $5)`, sessionID, className, ft, amount, discountMonths); err != nil {
			return err
		}
	}
	if err := RecordAudit(ctx, tx, "fee_structure", sessionID, "upsert",
		className+"/"+string(ft)); err != nil {
		log.Println("Ошибка записи аудита fee_structure:", err)
	}
	return tx.Commit()
}

// CountActiveFeeStructures — сколько активных строк сессии пригодно к копированию.
func CountActiveFeeStructures(ctx context.Context, q Querier, sessionID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fee_structures WHERE session_id = $1 AND is_active`, sessionID).Scan(&n)
	return n, err
}

// CopyFeeStructures переносит активные строки из source в target; ключи,
// по которым в target уже есть активная строка, пропускаются.
func CopyFeeStructures(ctx context.Context, q Querier, sourceSessionID, targetSessionID int64) (int, error) {
	res, err := q.ExecContext(ctx, `
INSERT INTO fee_structures (session_id, class_name, fee_type, amount, full_year_discount_months)
SELECT $2, s.class_name, s.fee_type, s.amount, s.full_year_discount_months
FROM fee_structures s
WHERE s.session_id = $1 AND s.is_active
  AND NOT EXISTS (
      SELECT 1 FROM fee_structures t
      WHERE t.session_id = $2 AND t.class_name = s.class_name
        AND t.fee_type = s.fee_type AND t.is_active
  )`, sourceSessionID, targetSessionID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteFeeStructuresForSession — откат фазы копирования: физически удаляет
// строки целевой сессии (в т.ч. их soft-deleted историю).
func DeleteFeeStructuresForSession(ctx context.Context, q Querier, sessionID int64) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM fee_structures WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
