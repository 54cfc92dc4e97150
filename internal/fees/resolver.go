package fees

import (
	"context"
	"database/sql"

	"github.com/Spok95/school-fees-service/internal/db"
	"github.com/Spok95/school-fees-service/internal/errs"
	"github.com/Spok95/school-fees-service/internal/models"
)

// Resolver отвечает на вопрос «сколько стоит (сессия, класс, вид платы)»
// с учётом soft-deleted версий fee structure.
type Resolver struct {
	DB *sql.DB
}

func NewResolver(database *sql.DB) *Resolver { return &Resolver{DB: database} }

// FeeFor — единственная активная строка ключа или nil.
func (r *Resolver) FeeFor(ctx context.Context, sessionID int64, className string, ft models.FeeType) (*models.FeeStructure, error) {
	return db.GetActiveFeeStructure(ctx, r.DB, sessionID, className, ft)
}

// TuitionFeeFor подбирает вид платы по классу сам: NC…8th — MONTHLY,
// 9th…12th — ANNUAL.
func (r *Resolver) TuitionFeeFor(ctx context.Context, sessionID int64, className string) (*models.FeeStructure, error) {
	return r.FeeFor(ctx, sessionID, className, models.TuitionFeeTypeForClass(className))
}

// AdmissionFeeFor — admission fee от класса не зависит, хранится под 'ALL'.
func (r *Resolver) AdmissionFeeFor(ctx context.Context, sessionID int64) (*models.FeeStructure, error) {
	return r.FeeFor(ctx, sessionID, models.AllClasses, models.FeeAdmission)
}

// Upsert меняет сумму на месте либо (amount <= 0) гасит активную строку.
func (r *Resolver) Upsert(ctx context.Context, sessionID int64, className string, ft models.FeeType, amount float64, discountMonths int) error {
	if className != models.AllClasses && !models.IsKnownClass(className) {
		return errs.Validationf("неизвестный класс %q", className)
	}
	if ft == models.FeeAdmission && className != models.AllClasses {
		return errs.Validationf("admission fee задаётся только для класса ALL")
	}
	if ft == models.FeeRegistration && !models.IsSeniorClass(className) {
		return errs.Validationf("registration fee есть только у классов 9th…12th")
	}
	return db.UpsertFeeStructure(ctx, r.DB, sessionID, className, ft, amount, discountMonths)
}
