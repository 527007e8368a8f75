package repositories

import (
	"context"

	"github.com/flanux/ledger-core/internal/core/domain"
)

// LedgerRepository is append-only: no update or delete operation exists.
// Reads are ordered by creation time ascending for statements and
// reconciliation.
type LedgerRepository interface {
	AppendEntries(ctx context.Context, entries []domain.LedgerEntry) error
	FindByAccountID(ctx context.Context, accountID string) ([]domain.LedgerEntry, error)
	FindByTransactionID(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error)
}
