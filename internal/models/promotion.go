package models

import "time"

// Одна строка на выполненный rollover. Единственный вход для отката:
// revert не знает ничего, кроме того, что записано здесь. Флаги фаз
// фиксируют фазы, которые реально стартовали, а не запрошенные опции:
// при падении прогона до фазы её флаг остаётся FALSE. Откат по мере
// выполнения снимает флаги уже разобранных фаз.
type SessionPromotion struct {
	ID                      int64      `db:"id"`
	SourceSessionID         int64      `db:"source_session_id"`
	TargetSessionID         int64      `db:"target_session_id"`
	StartedAt               time.Time  `db:"started_at"`
	ExecutedAt              time.Time  `db:"executed_at"`
	CopiedFeeStructures     bool       `db:"copied_fee_structures"`
	CarriedForwardDues      bool       `db:"carried_forward_dues"`
	PromotedClasses         bool       `db:"promoted_classes"`
	Deactivated12thStudents bool       `db:"deactivated_12th_students"`
	AddedTuitionFees        bool       `db:"added_tuition_fees"`
	AddedTransportFees      bool       `db:"added_transport_fees"`
	SetAsCurrent            bool       `db:"set_as_current"`
	FeeStructuresCopied     int        `db:"fee_structures_copied"`
	StudentsPromoted        int        `db:"students_promoted"`
	StudentsWithDuesCarried int        `db:"students_with_dues_carried"`
	StudentsDeactivated     int        `db:"students_deactivated"`
	TotalFeesAdded          float64    `db:"total_fees_added"`
	Success                 bool       `db:"success"`
	ErrorMessage            *string    `db:"error_message"`
	RevertedAt              *time.Time `db:"reverted_at"`
	RevertReason            *string    `db:"revert_reason"`
}
