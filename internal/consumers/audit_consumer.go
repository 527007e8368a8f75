// Package consumers holds the event handlers hooked into the broker consumer
// runtime. Handlers are idempotent on event ID so redeliveries are harmless.
package consumers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flanux/ledger-core/internal/core/domain"
	portsrepo "github.com/flanux/ledger-core/internal/core/ports/repositories"
	"github.com/flanux/ledger-core/internal/middleware"
)

// AuditConsumer records every transaction event into the audit trail.
type AuditConsumer struct {
	auditRepo portsrepo.AuditRepository
}

// NewAuditConsumer creates the audit trail consumer.
func NewAuditConsumer(auditRepo portsrepo.AuditRepository) *AuditConsumer {
	return &AuditConsumer{auditRepo: auditRepo}
}

// HandleEvent persists the event. Returning an error requeues the delivery.
func (c *AuditConsumer) HandleEvent(ctx context.Context, evt domain.TransactionEvent) error {
	logger := middleware.GetLoggerFromCtx(ctx)

	inserted, err := c.auditRepo.Record(ctx, evt)
	if err != nil {
		return fmt.Errorf("failed to record audit event %s: %w", evt.EventID, err)
	}

	if !inserted {
		logger.Debug("Audit event already recorded, skipping",
			slog.String("event_id", evt.EventID))
		return nil
	}

	logger.Info("Audit event recorded",
		slog.String("event_id", evt.EventID),
		slog.String("event_type", evt.EventType),
		slog.String("transaction_id", evt.TransactionID),
	)
	return nil
}
