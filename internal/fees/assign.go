package fees

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Spok95/school-fees-service/internal/db"
	"github.com/Spok95/school-fees-service/internal/models"
)

// Engine создаёт дебетовые записи журнала для студента на сессию.
// Идемпотентность — забота вызывающего: повторный вызов AssignSessionFees
// для той же пары (студент, сессия) даст дублированные начисления.
// Единственные вызывающие — promotion/revert, которые гарантируют
// exactly-once через свою audit-запись.
type Engine struct {
	DB       *sql.DB
	Resolver *Resolver
}

func NewEngine(database *sql.DB) *Engine {
	return &Engine{DB: database, Resolver: NewResolver(database)}
}

// AssignSessionFees начисляет плату за обучение и транспорт.
// Дебет всегда датируется началом сессии (1 апреля), а не реальной датой
// приёма — так одноклассники сравнимы независимо от даты зачисления.
func (e *Engine) AssignSessionFees(ctx context.Context, studentID, sessionID int64, addTuition, addTransport bool) (int, float64, error) {
	student, err := db.GetStudentByID(ctx, e.DB, studentID)
	if err != nil {
		return 0, 0, err
	}
	session, err := db.GetSessionByID(ctx, e.DB, sessionID)
	if err != nil {
		return 0, 0, err
	}
	entryDate := session.StartDate

	count := 0
	total := 0.0

	if addTuition {
		fs, err := e.Resolver.TuitionFeeFor(ctx, sessionID, student.CurrentClass)
		if err != nil {
			return count, total, err
		}
		if fs != nil {
			amount := fs.Amount
			if fs.FeeType == models.FeeMonthly {
				amount = fs.Amount * models.TuitionMonths
			}
			remarks := fmt.Sprintf("Плата за обучение %s, класс %s", session.Name, student.CurrentClass)
			if _, err := db.AddLedgerEntry(ctx, e.DB, models.LedgerEntry{
				StudentID:     studentID,
				SessionID:     sessionID,
				Type:          models.Debit,
				ReferenceType: models.RefFeeCharge,
				Amount:        amount,
				EntryDate:     entryDate,
				Remarks:       &remarks,
			}); err != nil {
				return count, total, err
			}
			count++
			total += amount
		}

		// у старших классов поверх годовой платы идёт регистрационный сбор
		if models.IsSeniorClass(student.CurrentClass) {
			reg, err := e.Resolver.FeeFor(ctx, sessionID, student.CurrentClass, models.FeeRegistration)
			if err != nil {
				return count, total, err
			}
			if reg != nil {
				remarks := fmt.Sprintf("Регистрационный сбор %s", session.Name)
				if _, err := db.AddLedgerEntry(ctx, e.DB, models.LedgerEntry{
					StudentID:     studentID,
					SessionID:     sessionID,
					Type:          models.Debit,
					ReferenceType: models.RefRegistrationFee,
					Amount:        reg.Amount,
					EntryDate:     entryDate,
					Remarks:       &remarks,
				}); err != nil {
					return count, total, err
				}
				count++
				total += reg.Amount
			}
		}
	}

	if addTransport && student.HasTransport && student.TransportRouteID != nil {
		monthly, err := db.RouteMonthlyFee(ctx, e.DB, *student.TransportRouteID, student.CurrentClass)
		if err != nil {
			return count, total, err
		}
		amount := monthly * models.TransportMonths // июнь не тарифицируется
		remarks := fmt.Sprintf("Транспорт %s, %d месяцев", session.Name, models.TransportMonths)
		if _, err := db.AddLedgerEntry(ctx, e.DB, models.LedgerEntry{
			StudentID:     studentID,
			SessionID:     sessionID,
			Type:          models.Debit,
			ReferenceType: models.RefTransportFee,
			Amount:        amount,
			EntryDate:     entryDate,
			Remarks:       &remarks,
		}); err != nil {
			return count, total, err
		}
		count++
		total += amount
	}

	return count, total, nil
}

// AssignOpeningBalance переносит входящий долг дебетом OPENING_BALANCE.
// amount <= 0 — no-op: авансы и нулевые остатки не переносятся.
func (e *Engine) AssignOpeningBalance(ctx context.Context, studentID, sessionID int64, amount float64, date time.Time, remarks string) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	_, err := db.AddLedgerEntry(ctx, e.DB, models.LedgerEntry{
		StudentID:     studentID,
		SessionID:     sessionID,
		Type:          models.Debit,
		ReferenceType: models.RefOpeningBalance,
		Amount:        amount,
		EntryDate:     date,
		Remarks:       &remarks,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// AssignInitialPayment — кредит при заведении студента (миграция уже
// оплаченных сумм). Promotion его никогда не вызывает.
func (e *Engine) AssignInitialPayment(ctx context.Context, studentID, sessionID int64, amount float64, date time.Time, description string) error {
	_, err := db.AddLedgerEntry(ctx, e.DB, models.LedgerEntry{
		StudentID:     studentID,
		SessionID:     sessionID,
		Type:          models.Credit,
		ReferenceType: models.RefPayment,
		Amount:        amount,
		EntryDate:     date,
		Remarks:       &description,
	})
	return err
}

// AssignAdmissionFee — разовый сбор при приёме, если не отмечен оплаченным.
func (e *Engine) AssignAdmissionFee(ctx context.Context, studentID, sessionID int64, date time.Time) (bool, error) {
	fs, err := e.Resolver.AdmissionFeeFor(ctx, sessionID)
	if err != nil || fs == nil {
		return false, err
	}
	remarks := "Вступительный взнос"
	if _, err := db.AddLedgerEntry(ctx, e.DB, models.LedgerEntry{
		StudentID:     studentID,
		SessionID:     sessionID,
		Type:          models.Debit,
		ReferenceType: models.RefAdmissionFee,
		Amount:        fs.Amount,
		EntryDate:     date,
		Remarks:       &remarks,
	}); err != nil {
		return false, err
	}
	return true, nil
}
