package pgsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flanux/ledger-core/internal/core/domain"
	portsrepo "github.com/flanux/ledger-core/internal/core/ports/repositories"
)

// PgxOutboxRepository manages the staged-event table the dispatcher drains.
type PgxOutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository creates a new repository for outbox events.
func NewOutboxRepository(pool *pgxpool.Pool) portsrepo.OutboxRepository {
	return &PgxOutboxRepository{pool: pool}
}

var _ portsrepo.OutboxRepository = (*PgxOutboxRepository)(nil)

// ListPending returns unpublished events in commit order.
func (r *PgxOutboxRepository) ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	query := `
		SELECT event_id, event_type, partition_key, payload, status, attempts, last_error, created_at, published_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2;
	`
	rows, err := r.pool.Query(ctx, query, domain.OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending outbox events: %w", err)
	}
	defer rows.Close()

	events := []domain.OutboxEvent{}
	for rows.Next() {
		var evt domain.OutboxEvent
		err := rows.Scan(
			&evt.EventID,
			&evt.EventType,
			&evt.PartitionKey,
			&evt.Payload,
			&evt.Status,
			&evt.Attempts,
			&evt.LastError,
			&evt.CreatedAt,
			&evt.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event row: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox event rows: %w", err)
	}

	return events, nil
}

// MarkPublished records a broker-confirmed delivery.
func (r *PgxOutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, published_at = NOW()
		WHERE event_id = $2;
	`
	if _, err := r.pool.Exec(ctx, query, domain.OutboxStatusPublished, eventID); err != nil {
		return fmt.Errorf("failed to mark outbox event %s published: %w", eventID, err)
	}
	return nil
}

// RecordFailure bumps the attempt counter after a failed publish, keeping the
// event PENDING for a later retry.
func (r *PgxOutboxRepository) RecordFailure(ctx context.Context, eventID string, lastError string) error {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $1
		WHERE event_id = $2;
	`
	if _, err := r.pool.Exec(ctx, query, lastError, eventID); err != nil {
		return fmt.Errorf("failed to record publish failure for outbox event %s: %w", eventID, err)
	}
	return nil
}

// MarkFailed parks an event whose retry budget is exhausted.
func (r *PgxOutboxRepository) MarkFailed(ctx context.Context, eventID string, lastError string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, attempts = attempts + 1, last_error = $2
		WHERE event_id = $3;
	`
	if _, err := r.pool.Exec(ctx, query, domain.OutboxStatusFailed, lastError, eventID); err != nil {
		return fmt.Errorf("failed to mark outbox event %s failed: %w", eventID, err)
	}
	return nil
}
