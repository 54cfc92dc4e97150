package models

import "time"

type Student struct {
	ID                 int64      `db:"id"`
	SrNumber           string     `db:"sr_number"`
	AccountNumber      string     `db:"account_number"`
	Name               string     `db:"name"`
	GuardianName       string     `db:"guardian_name"`
	GuardianPhone      *string    `db:"guardian_phone"`
	CurrentClass       string     `db:"current_class"`
	Section            string     `db:"section"`
	AdmissionDate      time.Time  `db:"admission_date"`
	AdmissionSessionID int64      `db:"admission_session_id"`
	HasTransport       bool       `db:"has_transport"`
	TransportRouteID   *int64     `db:"transport_route_id"`
	OpeningBalance     float64    `db:"opening_balance"`
	OpeningBalanceDate *time.Time `db:"opening_balance_date"`
	AdmissionFeePaid   bool       `db:"admission_fee_paid"`
	IsActive           bool       `db:"is_active"`
	DeactivatedAt      *time.Time `db:"deactivated_at"`
}
