package models

import "time"

type FeeType string

const (
	FeeMonthly      FeeType = "MONTHLY"
	FeeAnnual       FeeType = "ANNUAL"
	FeeRegistration FeeType = "REGISTRATION"
	FeeAdmission    FeeType = "ADMISSION"
)

// Сколько месяцев в году тарифицируется.
const (
	TuitionMonths = 12
	// Июнь не тарифицируется для транспорта.
	TransportMonths = 11
)

type FeeStructure struct {
	ID                     int64     `db:"id"`
	SessionID              int64     `db:"session_id"`
	ClassName              string    `db:"class_name"`
	FeeType                FeeType   `db:"fee_type"`
	Amount                 float64   `db:"amount"`
	FullYearDiscountMonths int       `db:"full_year_discount_months"`
	IsActive               bool      `db:"is_active"`
	DeletedReason          *string   `db:"deleted_reason"`
	CreatedAt              time.Time `db:"created_at"`
	UpdatedAt              time.Time `db:"updated_at"`
}

// TuitionFeeTypeForClass — разбиение классов по виду платы:
// NC…8th платят помесячно, 9th…12th — за год.
func TuitionFeeTypeForClass(class string) FeeType {
	if IsSeniorClass(class) {
		return FeeAnnual
	}
	return FeeMonthly
}
