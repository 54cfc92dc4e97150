package models

import "time"

type EntryType string

const (
	Debit  EntryType = "DEBIT"
	Credit EntryType = "CREDIT"
)

type ReferenceType string

const (
	RefOpeningBalance  ReferenceType = "OPENING_BALANCE"
	RefFeeCharge       ReferenceType = "FEE_CHARGE"
	RefTransportFee    ReferenceType = "TRANSPORT_FEE"
	RefAdmissionFee    ReferenceType = "ADMISSION_FEE"
	RefRegistrationFee ReferenceType = "REGISTRATION_FEE"
	RefPayment         ReferenceType = "PAYMENT"
)

// Запись журнала. Append-only: никогда не изменяется; удаляет записи только
// откат promotion, и только те, которые сам promotion создал.
type LedgerEntry struct {
	ID            int64         `db:"id"`
	StudentID     int64         `db:"student_id"`
	SessionID     int64         `db:"session_id"`
	Type          EntryType     `db:"entry_type"`
	ReferenceType ReferenceType `db:"reference_type"`
	Amount        float64       `db:"amount"`
	EntryDate     time.Time     `db:"entry_date"`
	Remarks       *string       `db:"remarks"`
	CreatedAt     time.Time     `db:"created_at"`
}
