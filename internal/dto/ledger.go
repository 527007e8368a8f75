package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/flanux/ledger-core/internal/core/domain"
)

// LedgerEntryResponse is the outbound ledger row representation.
type LedgerEntryResponse struct {
	EntryID       string           `json:"entryID"`
	TransactionID string           `json:"transactionID"`
	AccountID     string           `json:"accountID"`
	Debit         *decimal.Decimal `json:"debit,omitempty"`
	Credit        *decimal.Decimal `json:"credit,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// ToLedgerEntryResponses maps domain ledger entries to their API shape.
func ToLedgerEntryResponses(entries []domain.LedgerEntry) []LedgerEntryResponse {
	out := make([]LedgerEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = LedgerEntryResponse{
			EntryID:       e.EntryID,
			TransactionID: e.TransactionID,
			AccountID:     e.AccountID,
			Debit:         e.Debit,
			Credit:        e.Credit,
			CreatedAt:     e.CreatedAt,
		}
	}
	return out
}
