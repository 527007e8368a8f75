package pgsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flanux/ledger-core/internal/apperrors"
	"github.com/flanux/ledger-core/internal/core/domain"
	portsrepo "github.com/flanux/ledger-core/internal/core/ports/repositories"
)

const pgUniqueViolation = "23505"

const transactionColumns = `
	transaction_id, transaction_number, type, status, amount, currency_code,
	source_account_id, destination_account_id, description, failure_reason,
	source_balance_after, destination_balance_after,
	is_reversed, reversal_of, reversed_by, reversal_reason,
	needs_reconciliation, idempotency_key, initiated_at, completed_at`

// PgxTransactionRepository persists transactions, their ledger entries and
// their outbox events. Each mutating method is one database transaction, so a
// state change and its event commit or roll back together.
type PgxTransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new repository for transaction data.
func NewTransactionRepository(pool *pgxpool.Pool) portsrepo.TransactionRepository {
	return &PgxTransactionRepository{pool: pool}
}

var _ portsrepo.TransactionRepository = (*PgxTransactionRepository)(nil)

// CreatePending inserts the PENDING record and its initiated event atomically.
func (r *PgxTransactionRepository) CreatePending(ctx context.Context, txn domain.Transaction, evt domain.OutboxEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	insertQuery := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20);
	`
	_, err = tx.Exec(ctx, insertQuery,
		txn.TransactionID,
		txn.TransactionNumber,
		txn.Type,
		txn.Status,
		txn.Amount,
		txn.CurrencyCode,
		txn.SourceAccountID,
		txn.DestinationAccountID,
		txn.Description,
		txn.FailureReason,
		txn.SourceBalanceAfter,
		txn.DestinationBalanceAfter,
		txn.IsReversed,
		txn.ReversalOf,
		txn.ReversedBy,
		txn.ReversalReason,
		txn.NeedsReconciliation,
		txn.IdempotencyKey,
		txn.InitiatedAt,
		txn.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("transaction %s: %w", txn.TransactionID, apperrors.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert transaction %s: %w", txn.TransactionID, err)
	}

	if err := insertOutboxEvent(ctx, tx, evt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction %s: %w", txn.TransactionID, err)
	}
	return nil
}

// MarkCompleted stamps the terminal COMPLETED state, appends the ledger
// entries and stages the outcome event in one commit.
func (r *PgxTransactionRepository) MarkCompleted(ctx context.Context, txn domain.Transaction, entries []domain.LedgerEntry, evt domain.OutboxEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	updateQuery := `
		UPDATE transactions
		SET status = $1, source_balance_after = $2, destination_balance_after = $3, completed_at = $4
		WHERE transaction_id = $5 AND status = 'PENDING';
	`
	tag, err := tx.Exec(ctx, updateQuery,
		domain.StatusCompleted,
		txn.SourceBalanceAfter,
		txn.DestinationBalanceAfter,
		txn.CompletedAt,
		txn.TransactionID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete transaction %s: %w", txn.TransactionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s is not PENDING: %w", txn.TransactionID, apperrors.ErrConflict)
	}

	if err := insertLedgerEntries(ctx, tx, entries); err != nil {
		return err
	}
	if err := insertOutboxEvent(ctx, tx, evt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit completion of transaction %s: %w", txn.TransactionID, err)
	}
	return nil
}

// MarkFailed stamps the terminal FAILED state and stages the failure event.
func (r *PgxTransactionRepository) MarkFailed(ctx context.Context, txn domain.Transaction, evt domain.OutboxEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	updateQuery := `
		UPDATE transactions
		SET status = $1, failure_reason = $2
		WHERE transaction_id = $3 AND status = 'PENDING';
	`
	tag, err := tx.Exec(ctx, updateQuery, domain.StatusFailed, txn.FailureReason, txn.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to mark transaction %s failed: %w", txn.TransactionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s is not PENDING: %w", txn.TransactionID, apperrors.ErrConflict)
	}

	if err := insertOutboxEvent(ctx, tx, evt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit failure of transaction %s: %w", txn.TransactionID, err)
	}
	return nil
}

// ClaimReversal flips is_reversed false->true on the original and inserts the
// PENDING reversal in the same commit. The compare-and-set makes concurrent
// reversal attempts mutually exclusive: the loser sees ErrAlreadyReversed.
func (r *PgxTransactionRepository) ClaimReversal(ctx context.Context, reversal domain.Transaction, originalID string, reason string, evt domain.OutboxEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	casQuery := `
		UPDATE transactions
		SET is_reversed = TRUE, reversed_by = $1, reversal_reason = $2
		WHERE transaction_id = $3 AND is_reversed = FALSE;
	`
	tag, err := tx.Exec(ctx, casQuery, reversal.TransactionID, reason, originalID)
	if err != nil {
		return fmt.Errorf("failed to claim reversal of transaction %s: %w", originalID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", originalID, apperrors.ErrAlreadyReversed)
	}

	insertQuery := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20);
	`
	_, err = tx.Exec(ctx, insertQuery,
		reversal.TransactionID,
		reversal.TransactionNumber,
		reversal.Type,
		reversal.Status,
		reversal.Amount,
		reversal.CurrencyCode,
		reversal.SourceAccountID,
		reversal.DestinationAccountID,
		reversal.Description,
		reversal.FailureReason,
		reversal.SourceBalanceAfter,
		reversal.DestinationBalanceAfter,
		reversal.IsReversed,
		reversal.ReversalOf,
		reversal.ReversedBy,
		reversal.ReversalReason,
		reversal.NeedsReconciliation,
		reversal.IdempotencyKey,
		reversal.InitiatedAt,
		reversal.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reversal transaction %s: %w", reversal.TransactionID, err)
	}

	if err := insertOutboxEvent(ctx, tx, evt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reversal claim for transaction %s: %w", originalID, err)
	}
	return nil
}

// ReleaseReversal marks a claimed-but-unapplied reversal FAILED and clears
// the original's linkage so it can be reversed again.
func (r *PgxTransactionRepository) ReleaseReversal(ctx context.Context, reversal domain.Transaction, originalID string, evt domain.OutboxEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	failQuery := `
		UPDATE transactions
		SET status = $1, failure_reason = $2
		WHERE transaction_id = $3;
	`
	if _, err := tx.Exec(ctx, failQuery, domain.StatusFailed, reversal.FailureReason, reversal.TransactionID); err != nil {
		return fmt.Errorf("failed to mark reversal %s failed: %w", reversal.TransactionID, err)
	}

	releaseQuery := `
		UPDATE transactions
		SET is_reversed = FALSE, reversed_by = NULL, reversal_reason = NULL
		WHERE transaction_id = $1 AND reversed_by = $2;
	`
	if _, err := tx.Exec(ctx, releaseQuery, originalID, reversal.TransactionID); err != nil {
		return fmt.Errorf("failed to release reversal claim on transaction %s: %w", originalID, err)
	}

	if err := insertOutboxEvent(ctx, tx, evt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reversal release for transaction %s: %w", originalID, err)
	}
	return nil
}

// FlagReconciliation records the fatal-inconsistency outcome. The balance
// snapshots stamped before the failure are persisted so the operator sees how
// far the movement got.
func (r *PgxTransactionRepository) FlagReconciliation(ctx context.Context, txn domain.Transaction, reason string) error {
	query := `
		UPDATE transactions
		SET status = $1, needs_reconciliation = TRUE, failure_reason = $2,
		    source_balance_after = $3, destination_balance_after = $4,
		    completed_at = COALESCE(completed_at, NOW())
		WHERE transaction_id = $5;
	`
	if _, err := r.pool.Exec(ctx, query, domain.StatusCompleted, reason,
		txn.SourceBalanceAfter, txn.DestinationBalanceAfter, txn.TransactionID); err != nil {
		return fmt.Errorf("failed to flag transaction %s for reconciliation: %w", txn.TransactionID, err)
	}
	return nil
}

// FindByID retrieves a transaction by its ID.
func (r *PgxTransactionRepository) FindByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1;`
	return r.queryOne(ctx, query, transactionID)
}

// FindByIdempotencyKey retrieves the transaction created under a client key.
func (r *PgxTransactionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1;`
	return r.queryOne(ctx, query, key)
}

// ListByAccount returns transactions touching an account, oldest first.
func (r *PgxTransactionRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE source_account_id = $1 OR destination_account_id = $1
		ORDER BY initiated_at
		LIMIT $2;
	`
	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row for account %s: %w", accountID, err)
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows for account %s: %w", accountID, err)
	}

	return transactions, nil
}

func (r *PgxTransactionRepository) queryOne(ctx context.Context, query string, arg any) (*domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read transaction row: %w", err)
		}
		return nil, apperrors.ErrNotFound
	}

	txn, err := scanTransaction(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction row: %w", err)
	}
	return txn, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := row.Scan(
		&txn.TransactionID,
		&txn.TransactionNumber,
		&txn.Type,
		&txn.Status,
		&txn.Amount,
		&txn.CurrencyCode,
		&txn.SourceAccountID,
		&txn.DestinationAccountID,
		&txn.Description,
		&txn.FailureReason,
		&txn.SourceBalanceAfter,
		&txn.DestinationBalanceAfter,
		&txn.IsReversed,
		&txn.ReversalOf,
		&txn.ReversedBy,
		&txn.ReversalReason,
		&txn.NeedsReconciliation,
		&txn.IdempotencyKey,
		&txn.InitiatedAt,
		&txn.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// insertLedgerEntries batches the append-only ledger rows into the open
// database transaction.
func insertLedgerEntries(ctx context.Context, tx pgx.Tx, entries []domain.LedgerEntry) error {
	batch := &pgx.Batch{}
	entryQuery := `
		INSERT INTO ledger_entries (entry_id, transaction_id, account_id, debit, credit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	for _, e := range entries {
		batch.Queue(entryQuery, e.EntryID, e.TransactionID, e.AccountID, e.Debit, e.Credit, e.CreatedAt)
	}

	br := tx.SendBatch(ctx, batch)
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to execute ledger entry batch: %w", err)
	}
	return nil
}

// insertOutboxEvent stages an event into the open database transaction.
func insertOutboxEvent(ctx context.Context, tx pgx.Tx, evt domain.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (event_id, event_type, partition_key, payload, status, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err := tx.Exec(ctx, query,
		evt.EventID,
		evt.EventType,
		evt.PartitionKey,
		evt.Payload,
		evt.Status,
		evt.Attempts,
		evt.LastError,
		evt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event %s: %w", evt.EventID, err)
	}
	return nil
}
