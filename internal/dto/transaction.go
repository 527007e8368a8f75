package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/flanux/ledger-core/internal/core/domain"
)

// ProcessTransactionRequest is the inbound shape for a money movement.
// Binding validates shape only; the coordinator re-validates business rules.
type ProcessTransactionRequest struct {
	Type                 domain.TransactionType `json:"type" binding:"required,oneof=DEPOSIT WITHDRAWAL TRANSFER"`
	SourceAccountID      *string                `json:"sourceAccountID"`
	DestinationAccountID *string                `json:"destinationAccountID"`
	Amount               decimal.Decimal        `json:"amount" binding:"required,decimalgt0"`
	CurrencyCode         string                 `json:"currencyCode" binding:"required,len=3"`
	Description          string                 `json:"description"`
	IdempotencyKey       string                 `json:"idempotencyKey"`
}

// ReverseTransactionRequest carries the operator-supplied reversal reason.
type ReverseTransactionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// TransactionResponse is the outbound transaction representation.
type TransactionResponse struct {
	TransactionID           string                   `json:"transactionID"`
	TransactionNumber       string                   `json:"transactionNumber"`
	Type                    domain.TransactionType   `json:"type"`
	Status                  domain.TransactionStatus `json:"status"`
	Amount                  decimal.Decimal          `json:"amount"`
	CurrencyCode            string                   `json:"currencyCode"`
	SourceAccountID         *string                  `json:"sourceAccountID,omitempty"`
	DestinationAccountID    *string                  `json:"destinationAccountID,omitempty"`
	Description             string                   `json:"description,omitempty"`
	FailureReason           string                   `json:"failureReason,omitempty"`
	SourceBalanceAfter      *decimal.Decimal         `json:"sourceBalanceAfter,omitempty"`
	DestinationBalanceAfter *decimal.Decimal         `json:"destinationBalanceAfter,omitempty"`
	IsReversed              bool                     `json:"isReversed"`
	ReversalOf              *string                  `json:"reversalOf,omitempty"`
	ReversedBy              *string                  `json:"reversedBy,omitempty"`
	NeedsReconciliation     bool                     `json:"needsReconciliation"`
	InitiatedAt             time.Time                `json:"initiatedAt"`
	CompletedAt             *time.Time               `json:"completedAt,omitempty"`
}

// ToTransactionResponse maps a domain transaction to its API shape.
func ToTransactionResponse(txn *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:           txn.TransactionID,
		TransactionNumber:       txn.TransactionNumber,
		Type:                    txn.Type,
		Status:                  txn.Status,
		Amount:                  txn.Amount,
		CurrencyCode:            txn.CurrencyCode,
		SourceAccountID:         txn.SourceAccountID,
		DestinationAccountID:    txn.DestinationAccountID,
		Description:             txn.Description,
		FailureReason:           txn.FailureReason,
		SourceBalanceAfter:      txn.SourceBalanceAfter,
		DestinationBalanceAfter: txn.DestinationBalanceAfter,
		IsReversed:              txn.IsReversed,
		ReversalOf:              txn.ReversalOf,
		ReversedBy:              txn.ReversedBy,
		NeedsReconciliation:     txn.NeedsReconciliation,
		InitiatedAt:             txn.InitiatedAt,
		CompletedAt:             txn.CompletedAt,
	}
}

// ToTransactionResponses maps a slice of domain transactions.
func ToTransactionResponses(txns []domain.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, len(txns))
	for i := range txns {
		out[i] = ToTransactionResponse(&txns[i])
	}
	return out
}
