package consumers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flanux/ledger-core/internal/core/domain"
	portsrepo "github.com/flanux/ledger-core/internal/core/ports/repositories"
	"github.com/flanux/ledger-core/internal/middleware"
)

// NotificationConsumer turns terminal transaction events into customer
// notifications. Each event notifies at most once.
type NotificationConsumer struct {
	notificationRepo portsrepo.NotificationRepository
}

// NewNotificationConsumer creates the notification consumer.
func NewNotificationConsumer(notificationRepo portsrepo.NotificationRepository) *NotificationConsumer {
	return &NotificationConsumer{notificationRepo: notificationRepo}
}

// HandleEvent builds and records the notification for a terminal event.
func (c *NotificationConsumer) HandleEvent(ctx context.Context, evt domain.TransactionEvent) error {
	logger := middleware.GetLoggerFromCtx(ctx)

	message := buildMessage(evt)
	inserted, err := c.notificationRepo.Record(ctx, evt, message)
	if err != nil {
		return fmt.Errorf("failed to record notification for event %s: %w", evt.EventID, err)
	}

	if !inserted {
		logger.Debug("Notification already sent for event, skipping",
			slog.String("event_id", evt.EventID))
		return nil
	}

	logger.Info("Notification dispatched",
		slog.String("event_id", evt.EventID),
		slog.String("transaction_id", evt.TransactionID),
		slog.String("message", message),
	)
	return nil
}

func buildMessage(evt domain.TransactionEvent) string {
	switch evt.EventType {
	case domain.EventTransactionCompleted:
		return fmt.Sprintf("Your %s of %s %s (%s) has completed.",
			evt.Type, evt.Amount.String(), evt.CurrencyCode, evt.TransactionNumber)
	case domain.EventTransactionFailed:
		reason := evt.FailureReason
		if reason == "" {
			reason = "an internal error"
		}
		return fmt.Sprintf("Your %s of %s %s (%s) failed: %s",
			evt.Type, evt.Amount.String(), evt.CurrencyCode, evt.TransactionNumber, reason)
	case domain.EventTransactionReversed:
		return fmt.Sprintf("A reversal of %s %s (%s) has been applied to your account.",
			evt.Amount.String(), evt.CurrencyCode, evt.TransactionNumber)
	default:
		return fmt.Sprintf("Transaction %s update: %s.", evt.TransactionNumber, evt.EventType)
	}
}
