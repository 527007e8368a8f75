package pgsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flanux/ledger-core/internal/core/domain"
	portsrepo "github.com/flanux/ledger-core/internal/core/ports/repositories"
)

// PgxAuditRepository stores one audit row per consumed event. The event ID is
// the primary key, so redeliveries collapse into a no-op.
type PgxAuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new repository for audit records.
func NewAuditRepository(pool *pgxpool.Pool) portsrepo.AuditRepository {
	return &PgxAuditRepository{pool: pool}
}

var _ portsrepo.AuditRepository = (*PgxAuditRepository)(nil)

// Record inserts the audit row, reporting whether this delivery was the first.
func (r *PgxAuditRepository) Record(ctx context.Context, evt domain.TransactionEvent) (bool, error) {
	query := `
		INSERT INTO audit_records (event_id, event_type, transaction_id, transaction_status, amount, currency_code, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (event_id) DO NOTHING;
	`
	tag, err := r.pool.Exec(ctx, query,
		evt.EventID,
		evt.EventType,
		evt.TransactionID,
		evt.Status,
		evt.Amount,
		evt.CurrencyCode,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert audit record for event %s: %w", evt.EventID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// PgxNotificationRepository stores dispatched notifications keyed by event ID,
// so each event notifies at most once.
type PgxNotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new repository for notification records.
func NewNotificationRepository(pool *pgxpool.Pool) portsrepo.NotificationRepository {
	return &PgxNotificationRepository{pool: pool}
}

var _ portsrepo.NotificationRepository = (*PgxNotificationRepository)(nil)

// Record inserts the notification row, reporting whether it was new.
func (r *PgxNotificationRepository) Record(ctx context.Context, evt domain.TransactionEvent, message string) (bool, error) {
	query := `
		INSERT INTO notification_records (event_id, event_type, transaction_id, message, sent_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (event_id) DO NOTHING;
	`
	tag, err := r.pool.Exec(ctx, query, evt.EventID, evt.EventType, evt.TransactionID, message)
	if err != nil {
		return false, fmt.Errorf("failed to insert notification record for event %s: %w", evt.EventID, err)
	}
	return tag.RowsAffected() > 0, nil
}
