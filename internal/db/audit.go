package db

import "context"

// RecordAudit — общий append-only лог действий над сущностями
// (CRUD студентов, правки fee structure). У promotion/revert свой
// выделенный журнал session_promotions, сюда он не пишет.
func RecordAudit(ctx context.Context, q Querier, entityType string, entityID int64, action, details string) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO audit_log (entity_type, entity_id, action, details)
VALUES ($1, $2, $3, $4)`, entityType, entityID, action, details)
	return err
}
