package jobs

import (
	"context"
	"database/sql"

	"github.com/Spok95/school-fees-service/internal/ctxutil"
	"github.com/Spok95/school-fees-service/internal/metrics"
)

// RefreshDuesGauge пересчитывает суммарный положительный долг активных
// студентов в gauge. Чисто наблюдательная величина, в бизнес-логике
// нигде не используется.
func RefreshDuesGauge(ctx context.Context, database *sql.DB) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var total float64
	err := database.QueryRowContext(ctx, `
SELECT COALESCE(SUM(balance), 0) FROM (
    SELECT SUM(CASE WHEN entry_type = 'DEBIT' THEN amount ELSE -amount END) AS balance
    FROM ledger_entries e
    JOIN students s ON s.id = e.student_id AND s.is_active
    GROUP BY e.student_id
) b WHERE balance > 0`).Scan(&total)
	if err != nil {
		return err
	}
	metrics.DuesOutstanding.Set(total)
	return nil
}
