package pgsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flanux/ledger-core/internal/core/domain"
	portsrepo "github.com/flanux/ledger-core/internal/core/ports/repositories"
)

const ledgerEntryColumns = `entry_id, transaction_id, account_id, debit, credit, created_at`

// PgxLedgerRepository reads and appends the append-only ledger.
type PgxLedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new repository for ledger entries.
func NewLedgerRepository(pool *pgxpool.Pool) portsrepo.LedgerRepository {
	return &PgxLedgerRepository{pool: pool}
}

var _ portsrepo.LedgerRepository = (*PgxLedgerRepository)(nil)

// AppendEntries inserts the entries in one database transaction.
func (r *PgxLedgerRepository) AppendEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := insertLedgerEntries(ctx, tx, entries); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ledger entries: %w", err)
	}
	return nil
}

// FindByAccountID returns the account's entries, oldest first.
func (r *PgxLedgerRepository) FindByAccountID(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerEntryColumns + `
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at;
	`
	return r.queryEntries(ctx, query, accountID)
}

// FindByTransactionID returns the transaction's entries, oldest first.
func (r *PgxLedgerRepository) FindByTransactionID(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerEntryColumns + `
		FROM ledger_entries
		WHERE transaction_id = $1
		ORDER BY created_at;
	`
	return r.queryEntries(ctx, query, transactionID)
}

func (r *PgxLedgerRepository) queryEntries(ctx context.Context, query string, arg any) ([]domain.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entry rows: %w", err)
	}

	return entries, nil
}

func scanLedgerEntry(row pgx.Row) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := row.Scan(
		&entry.EntryID,
		&entry.TransactionID,
		&entry.AccountID,
		&entry.Debit,
		&entry.Credit,
		&entry.CreatedAt,
	)
	return entry, err
}
