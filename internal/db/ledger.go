package db

import (
	"context"
	"log"

	"github.com/Spok95/school-fees-service/internal/errs"
	"github.com/Spok95/school-fees-service/internal/metrics"
	"github.com/Spok95/school-fees-service/internal/models"
)

// AddLedgerEntry добавляет запись журнала. Один INSERT — одна транзакция:
// строка либо записана целиком, либо не записана вовсе.
func AddLedgerEntry(ctx context.Context, q Querier, e models.LedgerEntry) (int64, error) {
	if e.Amount <= 0 {
		return 0, errs.Validationf("сумма записи должна быть > 0, получили %.2f", e.Amount)
	}
	var id int64
	err := q.QueryRowContext(ctx, `
INSERT INTO ledger_entries (student_id, session_id, entry_type, reference_type, amount, entry_date, remarks)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`,
		e.StudentID, e.SessionID, e.Type, e.ReferenceType, e.Amount, e.EntryDate, e.Remarks,
	).Scan(&id)
	if err != nil {
		log.Println("Ошибка при добавлении записи журнала:", err)
		return 0, err
	}
	metrics.LedgerAppends.Inc()
	return id, nil
}

func TotalDebits(ctx context.Context, q Querier, studentID int64) (float64, error) {
	return sumEntries(ctx, q, studentID, models.Debit, 0)
}

func TotalCredits(ctx context.Context, q Querier, studentID int64) (float64, error) {
	return sumEntries(ctx, q, studentID, models.Credit, 0)
}

// CurrentBalance всегда пересчитывается по журналу; отдельного
// кэшируемого поля баланса нет намеренно.
func CurrentBalance(ctx context.Context, q Querier, studentID int64) (float64, error) {
	d, err := TotalDebits(ctx, q, studentID)
	if err != nil {
		return 0, err
	}
	c, err := TotalCredits(ctx, q, studentID)
	if err != nil {
		return 0, err
	}
	return d - c, nil
}

// SessionDebits/SessionCredits — те же агрегаты, отфильтрованные по сессии.
func SessionDebits(ctx context.Context, q Querier, studentID, sessionID int64) (float64, error) {
	return sumEntries(ctx, q, studentID, models.Debit, sessionID)
}

func SessionCredits(ctx context.Context, q Querier, studentID, sessionID int64) (float64, error) {
	return sumEntries(ctx, q, studentID, models.Credit, sessionID)
}

func sumEntries(ctx context.Context, q Querier, studentID int64, t models.EntryType, sessionID int64) (float64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE student_id = $1 AND entry_type = $2`
	args := []any{studentID, t}
	if sessionID != 0 {
		query += ` AND session_id = $3`
		args = append(args, sessionID)
	}
	var sum float64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

func ListEntriesByStudent(ctx context.Context, q Querier, studentID int64) ([]models.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id, student_id, session_id, entry_type, reference_type, amount, entry_date, remarks, created_at
FROM ledger_entries
WHERE student_id = $1
ORDER BY entry_date, id`, studentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.StudentID, &e.SessionID, &e.Type, &e.ReferenceType, &e.Amount, &e.EntryDate, &e.Remarks, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEntriesByReference удаляет записи с данным reference_type у студента
// в сессии. Используется ТОЛЬКО откатом promotion. Ноль удалённых строк —
// NotFoundError: шаги promotion опциональны, вызывающий трактует это как no-op.
func DeleteEntriesByReference(ctx context.Context, q Querier, studentID, sessionID int64, ref models.ReferenceType) (int64, error) {
	res, err := q.ExecContext(ctx, `
DELETE FROM ledger_entries
WHERE student_id = $1 AND session_id = $2 AND reference_type = $3`,
		studentID, sessionID, ref)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errs.NotFoundf("записей %s у студента %d в сессии %d нет", ref, studentID, sessionID)
	}
	return n, nil
}

// DeleteSessionEntriesByReference — то же для всей сессии сразу (фазы отката,
// работающие не по одному студенту). Ноль строк здесь — не ошибка.
func DeleteSessionEntriesByReference(ctx context.Context, q Querier, sessionID int64, refs ...models.ReferenceType) (int64, error) {
	var total int64
	for _, ref := range refs {
		res, err := q.ExecContext(ctx,
			`DELETE FROM ledger_entries WHERE session_id = $1 AND reference_type = $2`, sessionID, ref)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// CountSessionCredits — сколько платежей (CREDIT) записано в сессии.
// Нужен проверке безопасности отката.
func CountSessionCredits(ctx context.Context, q Querier, sessionID int64) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE session_id = $1 AND entry_type = 'CREDIT'`, sessionID).Scan(&n)
	return n, err
}

// DeleteSessionCredits удаляет платежи сессии. Только forceDelete-откат.
func DeleteSessionCredits(ctx context.Context, q Querier, sessionID int64) (int64, error) {
	res, err := q.ExecContext(ctx,
		`DELETE FROM ledger_entries WHERE session_id = $1 AND entry_type = 'CREDIT'`, sessionID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
