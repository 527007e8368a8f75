package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is a single immutable double-entry row. Exactly one of Debit or
// Credit is set. Entries are never updated or deleted; corrections happen by
// appending new entries owned by a reversal transaction.
type LedgerEntry struct {
	EntryID       string           `json:"entryID"`
	TransactionID string           `json:"transactionID"`
	AccountID     string           `json:"accountID"`
	Debit         *decimal.Decimal `json:"debit,omitempty"`
	Credit        *decimal.Decimal `json:"credit,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Validate checks that the entry has exactly one positive side.
func (e *LedgerEntry) Validate() error {
	if e.Debit != nil && e.Credit != nil {
		return fmt.Errorf("ledger entry %s sets both debit and credit", e.EntryID)
	}
	if e.Debit == nil && e.Credit == nil {
		return fmt.Errorf("ledger entry %s sets neither debit nor credit", e.EntryID)
	}
	if e.Debit != nil && !e.Debit.IsPositive() {
		return fmt.Errorf("ledger entry %s debit must be positive, got %s", e.EntryID, e.Debit.String())
	}
	if e.Credit != nil && !e.Credit.IsPositive() {
		return fmt.Errorf("ledger entry %s credit must be positive, got %s", e.EntryID, e.Credit.String())
	}
	return nil
}

// SumEntries returns the total debits and total credits across entries.
func SumEntries(entries []LedgerEntry) (debits, credits decimal.Decimal) {
	debits = decimal.Zero
	credits = decimal.Zero
	for _, e := range entries {
		if e.Debit != nil {
			debits = debits.Add(*e.Debit)
		}
		if e.Credit != nil {
			credits = credits.Add(*e.Credit)
		}
	}
	return debits, credits
}
