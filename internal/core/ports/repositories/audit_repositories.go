package repositories

import (
	"context"

	"github.com/flanux/ledger-core/internal/core/domain"
)

// AuditRepository records consumed transaction events for the audit trail.
// Record must be idempotent on event ID: replaying a delivery is a no-op, not
// a duplicate row.
type AuditRepository interface {
	// Record writes the audit row. Returns inserted=false when the event was
	// already recorded.
	Record(ctx context.Context, evt domain.TransactionEvent) (inserted bool, err error)
}

// NotificationRepository records notification intents derived from events,
// with the same idempotency-on-event-ID obligation as the audit trail.
type NotificationRepository interface {
	Record(ctx context.Context, evt domain.TransactionEvent, message string) (inserted bool, err error)
}
