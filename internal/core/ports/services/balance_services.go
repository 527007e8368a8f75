package services

import (
	"context"

	"github.com/shopspring/decimal"
)

// BalanceSvcFacade is the Account Balance Collaborator: the external authority
// over account balances. Debit and Credit are atomic per account on the
// collaborator side; concurrent movements on the same account serialize there,
// so the coordinator never holds a lock spanning two accounts.
type BalanceSvcFacade interface {
	// Debit subtracts amount and returns the new balance. Returns
	// apperrors.ErrInsufficientFunds when the account cannot cover it; the
	// debit operation, not the pre-check, is the authority.
	Debit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error)

	// Credit adds amount and returns the new balance.
	Credit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error)

	// HasSufficientBalance is an advisory pre-check. Balances may change
	// between this call and the debit.
	HasSufficientBalance(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error)
}
