package services

import (
	"context"

	"github.com/flanux/ledger-core/internal/core/domain"
)

// LedgerSvcFacade derives and reads balanced double-entry rows.
type LedgerSvcFacade interface {
	// DeriveEntries computes the balanced entry set for a COMPLETED
	// transaction without persisting it: two rows (debit source, credit
	// destination) for TRANSFER, a single credit for DEPOSIT, a single debit
	// for WITHDRAWAL. A REVERSAL mirrors whichever sides its original had. A
	// set that cannot balance is a programming contract violation, not a user
	// error.
	DeriveEntries(txn domain.Transaction) ([]domain.LedgerEntry, error)

	// RecordEntries derives and appends the entries for a transaction.
	RecordEntries(ctx context.Context, txn domain.Transaction) ([]domain.LedgerEntry, error)

	EntriesForAccount(ctx context.Context, accountID string) ([]domain.LedgerEntry, error)
	EntriesForTransaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error)
}
