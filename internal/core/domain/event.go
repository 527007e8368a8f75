package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types announced by the transaction coordinator. The set is closed;
// consumers register handlers per type.
const (
	EventTransactionInitiated = "transaction.initiated"
	EventTransactionCompleted = "transaction.completed"
	EventTransactionFailed    = "transaction.failed"
	EventTransactionReversed  = "transaction.reversed"
)

// TransactionEvent is the typed payload carried by every transaction event.
// It is a snapshot of the transaction at emission time.
type TransactionEvent struct {
	EventID                 string            `json:"eventID"`
	EventType               string            `json:"eventType"`
	TransactionID           string            `json:"transactionID"`
	TransactionNumber       string            `json:"transactionNumber"`
	Type                    TransactionType   `json:"type"`
	Status                  TransactionStatus `json:"status"`
	Amount                  decimal.Decimal   `json:"amount"`
	CurrencyCode            string            `json:"currencyCode"`
	SourceAccountID         *string           `json:"sourceAccountID,omitempty"`
	DestinationAccountID    *string           `json:"destinationAccountID,omitempty"`
	SourceBalanceAfter      *decimal.Decimal  `json:"sourceBalanceAfter,omitempty"`
	DestinationBalanceAfter *decimal.Decimal  `json:"destinationBalanceAfter,omitempty"`
	ReversalOf              *string           `json:"reversalOf,omitempty"`
	FailureReason           string            `json:"failureReason,omitempty"`
	EmittedAt               time.Time         `json:"emittedAt"`
}

// Outbox statuses. An event row is written in the same database commit as the
// state change it describes, then drained to the broker by the dispatcher.
const (
	OutboxStatusPending   = "PENDING"
	OutboxStatusPublished = "PUBLISHED"
	OutboxStatusFailed    = "FAILED"
)

// OutboxEvent is a domain event staged for reliable delivery.
type OutboxEvent struct {
	EventID      string     `json:"eventID"`
	EventType    string     `json:"eventType"`
	PartitionKey string     `json:"partitionKey"`
	Payload      []byte     `json:"payload"` // JSON-encoded TransactionEvent
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	LastError    string     `json:"lastError,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	PublishedAt  *time.Time `json:"publishedAt,omitempty"`
}

// NewTransactionOutboxEvent snapshots a transaction into a pending outbox event.
func NewTransactionOutboxEvent(eventType string, txn Transaction) (OutboxEvent, error) {
	now := time.Now().UTC()
	payload := TransactionEvent{
		EventID:                 uuid.NewString(),
		EventType:               eventType,
		TransactionID:           txn.TransactionID,
		TransactionNumber:       txn.TransactionNumber,
		Type:                    txn.Type,
		Status:                  txn.Status,
		Amount:                  txn.Amount,
		CurrencyCode:            txn.CurrencyCode,
		SourceAccountID:         txn.SourceAccountID,
		DestinationAccountID:    txn.DestinationAccountID,
		SourceBalanceAfter:      txn.SourceBalanceAfter,
		DestinationBalanceAfter: txn.DestinationBalanceAfter,
		ReversalOf:              txn.ReversalOf,
		FailureReason:           txn.FailureReason,
		EmittedAt:               now,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxEvent{}, fmt.Errorf("failed to marshal event payload for transaction %s: %w", txn.TransactionID, err)
	}

	return OutboxEvent{
		EventID:      payload.EventID,
		EventType:    eventType,
		PartitionKey: txn.PartitionKey(),
		Payload:      body,
		Status:       OutboxStatusPending,
		CreatedAt:    now,
	}, nil
}

// DecodeTransactionEvent parses an event payload back into its typed form.
func DecodeTransactionEvent(body []byte) (TransactionEvent, error) {
	var evt TransactionEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return TransactionEvent{}, fmt.Errorf("failed to decode transaction event: %w", err)
	}
	return evt, nil
}
