package repositories

import (
	"context"

	"github.com/flanux/ledger-core/internal/core/domain"
)

// OutboxRepository manages staged events awaiting broker delivery.
// ListPending returns rows in creation order, which preserves per-partition-key
// emission order when drained sequentially.
type OutboxRepository interface {
	ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string) error
	// RecordFailure increments the attempt counter and stores the last error,
	// keeping the row PENDING for a later retry.
	RecordFailure(ctx context.Context, eventID string, lastError string) error
	// MarkFailed parks the row as FAILED after the retry budget is exhausted.
	// FAILED rows are an operational incident surfaced for manual replay.
	MarkFailed(ctx context.Context, eventID string, lastError string) error
}
