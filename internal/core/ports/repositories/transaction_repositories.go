package repositories

import (
	"context"

	"github.com/flanux/ledger-core/internal/core/domain"
)

// TransactionRepository persists transaction lifecycle state. Every mutation
// that changes observable state commits the corresponding outbox event in the
// same database transaction, so an event is never emitted before the state it
// describes is durable, and never lost after it is.
type TransactionRepository interface {
	// CreatePending inserts a new PENDING transaction together with its
	// transaction.initiated outbox event.
	CreatePending(ctx context.Context, txn domain.Transaction, evt domain.OutboxEvent) error

	// MarkCompleted moves a transaction to COMPLETED, stamps balance
	// snapshots and completion time, appends its ledger entries, and stages
	// the outcome event. All in one commit.
	MarkCompleted(ctx context.Context, txn domain.Transaction, entries []domain.LedgerEntry, evt domain.OutboxEvent) error

	// MarkFailed moves a transaction to FAILED with a reason and stages the
	// transaction.failed event. No ledger entries are written.
	MarkFailed(ctx context.Context, txn domain.Transaction, evt domain.OutboxEvent) error

	// ClaimReversal atomically inserts the PENDING reversal transaction and
	// flips the original's is_reversed flag from false to true in the same
	// commit (compare-and-set). Returns apperrors.ErrAlreadyReversed when the
	// original was already claimed; the loser of a concurrent race observes
	// that error and nothing is inserted.
	ClaimReversal(ctx context.Context, reversal domain.Transaction, originalID string, reason string, evt domain.OutboxEvent) error

	// ReleaseReversal undoes a claim whose balance movement never happened:
	// marks the reversal FAILED and clears the original's reversal linkage,
	// staging the transaction.failed event in the same commit.
	ReleaseReversal(ctx context.Context, reversal domain.Transaction, originalID string, evt domain.OutboxEvent) error

	// FlagReconciliation records the fatal-inconsistency outcome: the
	// transaction is left COMPLETED with needs_reconciliation set, keeping
	// whatever balance snapshots were stamped before the failure. Best
	// effort; the caller alerts regardless.
	FlagReconciliation(ctx context.Context, txn domain.Transaction, reason string) error

	FindByID(ctx context.Context, transactionID string) (*domain.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error)
}
