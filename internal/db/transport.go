package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Spok95/school-fees-service/internal/errs"
	"github.com/Spok95/school-fees-service/internal/models"
)

func CreateRoute(ctx context.Context, database *sql.DB, name string) (int64, error) {
	var id int64
	err := database.QueryRowContext(ctx,
		`INSERT INTO transport_routes (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	return id, err
}

func SetRouteClassFee(ctx context.Context, database *sql.DB, routeID int64, className string, monthlyFee float64) error {
	if monthlyFee <= 0 {
		return errs.Validationf("помесячная плата маршрута должна быть > 0")
	}
	if !models.IsKnownClass(className) {
		return errs.Validationf("неизвестный класс %q", className)
	}
	_, err := database.ExecContext(ctx, `
INSERT INTO transport_route_fees (route_id, class_name, monthly_fee)
VALUES ($1, $2, $3)
ON CONFLICT (route_id, class_name) DO UPDATE SET monthly_fee = EXCLUDED.monthly_fee`,
		routeID, className, monthlyFee)
	return err
}

// RouteMonthlyFee — плата маршрута для класса; nil-аналога нет:
// отсутствие тарифа считаем NotFound, решает вызывающий.
func RouteMonthlyFee(ctx context.Context, q Querier, routeID int64, className string) (float64, error) {
	var fee float64
	err := q.QueryRowContext(ctx,
		`SELECT monthly_fee FROM transport_route_fees WHERE route_id = $1 AND class_name = $2`,
		routeID, className).Scan(&fee)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errs.NotFoundf("у маршрута %d нет тарифа для класса %s", routeID, className)
	}
	return fee, err
}

// EnrollTransport открывает период пользования транспортом и помечает
// студента как транспортного.
func EnrollTransport(ctx context.Context, database *sql.DB, studentID, routeID int64, start time.Time) (int64, error) {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
INSERT INTO transport_enrollments (student_id, route_id, start_date)
VALUES ($1, $2, $3) RETURNING id`, studentID, routeID, start).Scan(&id)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE students SET has_transport = TRUE, transport_route_id = $2 WHERE id = $1`,
		studentID, routeID); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// EndTransport закрывает открытый период и снимает флаг с студента.
func EndTransport(ctx context.Context, database *sql.DB, studentID int64, end time.Time) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE transport_enrollments SET end_date = $2
WHERE student_id = $1 AND end_date IS NULL`, studentID, end)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFoundf("у студента %d нет открытой подписки на транспорт", studentID)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE students SET has_transport = FALSE, transport_route_id = NULL WHERE id = $1`, studentID); err != nil {
		return err
	}
	return tx.Commit()
}

func CountActiveTransportStudents(ctx context.Context, q Querier) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM students WHERE is_active AND has_transport`).Scan(&n)
	return n, err
}
