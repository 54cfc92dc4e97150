package db

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/Spok95/school-fees-service/internal/errs"
	"github.com/Spok95/school-fees-service/internal/models"
)

// CreateSession валидирует имя YYYY-YY и фиксированные границы
// 1 апреля — 31 марта, затем вставляет строку.
func CreateSession(ctx context.Context, database *sql.DB, name string, loc *time.Location) (int64, error) {
	startYear, err := models.ParseSessionName(name)
	if err != nil {
		return 0, errs.Validationf("%v", err)
	}
	start, end := models.SessionBounds(startYear, loc)

	var id int64
	err = database.QueryRowContext(ctx, `
INSERT INTO sessions (name, start_date, end_date)
VALUES ($1, $2, $3)
RETURNING id`, name, start, end).Scan(&id)
	if err != nil {
		log.Println("Ошибка при создании сессии:", err)
		return 0, err
	}
	return id, nil
}

func GetSessionByID(ctx context.Context, q Querier, id int64) (*models.Session, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, start_date, end_date, is_current, is_active FROM sessions WHERE id = $1`, id)
	var s models.Session
	if err := row.Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &s.IsCurrent, &s.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFoundf("сессия %d не найдена", id)
		}
		return nil, err
	}
	return &s, nil
}

func GetCurrentSession(ctx context.Context, q Querier) (*models.Session, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, start_date, end_date, is_current, is_active FROM sessions WHERE is_current LIMIT 1`)
	var s models.Session
	if err := row.Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &s.IsCurrent, &s.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFoundf("текущая сессия не назначена")
		}
		return nil, err
	}
	return &s, nil
}

func ListSessions(ctx context.Context, database *sql.DB) ([]models.Session, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT id, name, start_date, end_date, is_current, is_active FROM sessions ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &s.IsCurrent, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetCurrentSession атомарно переносит флаг is_current: в одной транзакции
// снимаем со старой сессии и ставим на новую.
func SetCurrentSession(ctx context.Context, database *sql.DB, id int64) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var isActive bool
	err = tx.QueryRowContext(ctx, `SELECT is_active FROM sessions WHERE id = $1`, id).Scan(&isActive)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.Conflictf("нельзя назначить текущей несуществующую сессию %d", id)
	}
	if err != nil {
		return err
	}
	if !isActive {
		return errs.Conflictf("нельзя назначить текущей неактивную сессию %d", id)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET is_current = FALSE WHERE is_current`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET is_current = TRUE WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SetCurrentSessionTx — вариант для фаз promotion/revert, уже идущих в своей транзакции.
func SetCurrentSessionTx(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET is_current = FALSE WHERE is_current`); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET is_current = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Conflictf("нельзя назначить текущей несуществующую сессию %d", id)
	}
	return nil
}

// DeactivateSession отклоняет попытку деактивировать текущую сессию
// до каких-либо мутаций.
func DeactivateSession(ctx context.Context, database *sql.DB, id int64) error {
	s, err := GetSessionByID(ctx, database, id)
	if err != nil {
		return err
	}
	if s.IsCurrent {
		return errs.Conflictf("сессия %s текущая, сначала назначьте текущей другую", s.Name)
	}
	_, err = database.ExecContext(ctx, `UPDATE sessions SET is_active = FALSE WHERE id = $1`, id)
	return err
}
