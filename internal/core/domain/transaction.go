package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies the kind of money movement.
type TransactionType string

const (
	Deposit    TransactionType = "DEPOSIT"
	Withdrawal TransactionType = "WITHDRAWAL"
	Transfer   TransactionType = "TRANSFER"
	Reversal   TransactionType = "REVERSAL"
)

// TransactionStatus is the lifecycle state of a transaction.
// PENDING transitions to exactly one of COMPLETED or FAILED; both are terminal
// for the record itself. Only the reversal linkage fields mutate afterward.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

// Transaction is a single money movement with a validated lifecycle.
type Transaction struct {
	TransactionID        string            `json:"transactionID"`     // Primary key (UUID), generated at creation, never reused
	TransactionNumber    string            `json:"transactionNumber"` // Business-facing unique number (TXN prefix)
	Type                 TransactionType   `json:"type"`
	Status               TransactionStatus `json:"status"`
	Amount               decimal.Decimal   `json:"amount"`               // Always positive
	CurrencyCode         string            `json:"currencyCode"`         // ISO 4217
	SourceAccountID      *string           `json:"sourceAccountID"`      // Nil for DEPOSIT
	DestinationAccountID *string           `json:"destinationAccountID"` // Nil for WITHDRAWAL
	Description          string            `json:"description"`
	FailureReason        string            `json:"failureReason,omitempty"`

	// Post-operation balance snapshots for audit. Immutable once set.
	SourceBalanceAfter      *decimal.Decimal `json:"sourceBalanceAfter,omitempty"`
	DestinationBalanceAfter *decimal.Decimal `json:"destinationBalanceAfter,omitempty"`

	// Reversal linkage. A transaction can be reversed at most once.
	IsReversed     bool    `json:"isReversed"`
	ReversalOf     *string `json:"reversalOf,omitempty"` // Set on the REVERSAL transaction
	ReversedBy     *string `json:"reversedBy,omitempty"` // Set on the original once reversed
	ReversalReason *string `json:"reversalReason,omitempty"`

	// NeedsReconciliation marks the single non-recoverable failure mode:
	// balances were mutated but the ledger write did not commit.
	NeedsReconciliation bool `json:"needsReconciliation"`

	// IdempotencyKey is the caller-supplied token used to collapse retried
	// requests into a single effect. Optional.
	IdempotencyKey *string `json:"idempotencyKey,omitempty"`

	InitiatedAt time.Time  `json:"initiatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Validate checks the structural invariants of a transaction.
func (t *Transaction) Validate() error {
	if !t.Amount.IsPositive() {
		return fmt.Errorf("transaction amount must be positive, got %s", t.Amount.String())
	}

	switch t.Type {
	case Deposit:
		if t.DestinationAccountID == nil {
			return fmt.Errorf("deposit requires a destination account")
		}
	case Withdrawal:
		if t.SourceAccountID == nil {
			return fmt.Errorf("withdrawal requires a source account")
		}
	case Transfer:
		if t.SourceAccountID == nil || t.DestinationAccountID == nil {
			return fmt.Errorf("%s requires both source and destination accounts", t.Type)
		}
		if *t.SourceAccountID == *t.DestinationAccountID {
			return fmt.Errorf("source and destination accounts must differ")
		}
	case Reversal:
		// Mirrors its original: both sides for a reversed transfer, a single
		// side for a reversed deposit or withdrawal.
		if t.SourceAccountID == nil && t.DestinationAccountID == nil {
			return fmt.Errorf("reversal requires at least one account")
		}
		if t.SourceAccountID != nil && t.DestinationAccountID != nil && *t.SourceAccountID == *t.DestinationAccountID {
			return fmt.Errorf("source and destination accounts must differ")
		}
	default:
		return fmt.Errorf("unknown transaction type %q", t.Type)
	}

	return nil
}

// IsTerminal reports whether the transaction reached a terminal status.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// PartitionKey returns the key used to route events for this transaction to
// an ordered stream. All events for the same key preserve emission order.
func (t *Transaction) PartitionKey() string {
	if t.SourceAccountID != nil {
		return *t.SourceAccountID
	}
	if t.DestinationAccountID != nil {
		return *t.DestinationAccountID
	}
	return t.TransactionID
}
