package services

import (
	"context"

	"github.com/flanux/ledger-core/internal/core/domain"
	"github.com/flanux/ledger-core/internal/dto"
)

// TransactionSvcFacade is the transaction coordinator contract. Callers always
// receive either a terminal transaction record reflecting true durable state
// or a well-typed pre-mutation error; errors after a durable mutation are
// recorded on the transaction itself rather than thrown past this boundary.
type TransactionSvcFacade interface {
	// ProcessTransaction runs a deposit, withdrawal or transfer to a terminal
	// state. On InsufficientFunds the returned transaction is the durable
	// FAILED record and the error classifies it.
	ProcessTransaction(ctx context.Context, req dto.ProcessTransactionRequest) (*domain.Transaction, error)

	// ReverseTransaction creates and completes a symmetric REVERSAL
	// transaction and links it to the original. A second attempt on the same
	// transaction returns apperrors.ErrAlreadyReversed.
	ReverseTransaction(ctx context.Context, transactionID string, reason string) (*domain.Transaction, error)

	GetTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error)
}
