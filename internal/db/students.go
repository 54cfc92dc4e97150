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

const studentCols = `id, sr_number, account_number, name, guardian_name, guardian_phone,
current_class, section, admission_date, admission_session_id, has_transport,
transport_route_id, opening_balance, opening_balance_date, admission_fee_paid, is_active, deactivated_at`

func scanStudent(row interface{ Scan(...any) error }) (*models.Student, error) {
	var st models.Student
	err := row.Scan(&st.ID, &st.SrNumber, &st.AccountNumber, &st.Name, &st.GuardianName, &st.GuardianPhone,
		&st.CurrentClass, &st.Section, &st.AdmissionDate, &st.AdmissionSessionID, &st.HasTransport,
		&st.TransportRouteID, &st.OpeningBalance, &st.OpeningBalanceDate, &st.AdmissionFeePaid, &st.IsActive,
		&st.DeactivatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func CreateStudent(ctx context.Context, database *sql.DB, st models.Student) (int64, error) {
	if !models.IsKnownClass(st.CurrentClass) {
		return 0, errs.Validationf("неизвестный класс %q", st.CurrentClass)
	}
	var id int64
	err := database.QueryRowContext(ctx, `
INSERT INTO students (sr_number, account_number, name, guardian_name, guardian_phone,
                      current_class, section, admission_date, admission_session_id, has_transport,
                      transport_route_id, opening_balance, opening_balance_date, admission_fee_paid, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING id`,
		st.SrNumber, st.AccountNumber, st.Name, st.GuardianName, st.GuardianPhone,
		st.CurrentClass, st.Section, st.AdmissionDate, st.AdmissionSessionID, st.HasTransport,
		st.TransportRouteID, st.OpeningBalance, st.OpeningBalanceDate, st.AdmissionFeePaid, st.IsActive,
	).Scan(&id)
	if err != nil {
		log.Println("Ошибка при создании студента:", err)
		return 0, err
	}
	return id, nil
}

func GetStudentByID(ctx context.Context, q Querier, id int64) (*models.Student, error) {
	row := q.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE id = $1`, id)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("студент %d не найден", id)
	}
	return st, err
}

func UpdateStudent(ctx context.Context, database *sql.DB, st models.Student) error {
	if !models.IsKnownClass(st.CurrentClass) {
		return errs.Validationf("неизвестный класс %q", st.CurrentClass)
	}
	res, err := database.ExecContext(ctx, `
UPDATE students SET name = $2, guardian_name = $3, guardian_phone = $4, current_class = $5,
       section = $6, has_transport = $7, transport_route_id = $8, is_active = $9,
       deactivated_at = CASE WHEN $9 THEN NULL ELSE COALESCE(deactivated_at, now()) END
WHERE id = $1`,
		st.ID, st.Name, st.GuardianName, st.GuardianPhone, st.CurrentClass,
		st.Section, st.HasTransport, st.TransportRouteID, st.IsActive)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFoundf("студент %d не найден", st.ID)
	}
	return nil
}

// ListActiveStudents — весь действующий состав в стабильном порядке по id:
// при падении в середине прогона известно, сколько студентов уже затронуто.
func ListActiveStudents(ctx context.Context, q Querier) ([]models.Student, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+studentCols+` FROM students WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func CountActiveByClass(ctx context.Context, q Querier) (map[string]int, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT current_class, COUNT(*) FROM students WHERE is_active GROUP BY current_class`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := map[string]int{}
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, err
		}
		out[class] = n
	}
	return out, rows.Err()
}

func SetStudentClass(ctx context.Context, q Querier, studentID int64, class string) error {
	_, err := q.ExecContext(ctx, `UPDATE students SET current_class = $2 WHERE id = $1`, studentID, class)
	return err
}

func DeactivateStudent(ctx context.Context, q Querier, studentID int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE students SET is_active = FALSE, deactivated_at = COALESCE(deactivated_at, now()) WHERE id = $1`,
		studentID)
	return err
}

// ReactivateSeniors возвращает в состав 12-классников, деактивированных
// в окне [from, to] — окне прогона rollover. Отчисленные вручную до
// прогона под окно не попадают и остаются неактивными.
// Используется только откатом promotion.
func ReactivateSeniors(ctx context.Context, q Querier, from, to time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, `
UPDATE students SET is_active = TRUE, deactivated_at = NULL
WHERE NOT is_active AND current_class = $1
  AND deactivated_at IS NOT NULL AND deactivated_at >= $2 AND deactivated_at <= $3`,
		models.SeniorClass, from, to)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListStudentsAdmittedIn — студенты, заведённые в данной сессии.
// Проверка безопасности отката: их откат бы уничтожил.
func ListStudentsAdmittedIn(ctx context.Context, q Querier, sessionID int64) ([]models.Student, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE admission_session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// DeleteStudentCascade удаляет студента вместе с его записями журнала и
// транспортными подписками. Только forceDelete-откат.
func DeleteStudentCascade(ctx context.Context, q Querier, studentID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM ledger_entries WHERE student_id = $1`, studentID); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM transport_enrollments WHERE student_id = $1`, studentID); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, studentID)
	return err
}
