package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flanux/ledger-core/internal/apperrors"
	"github.com/flanux/ledger-core/internal/core/domain"
	portsrepo "github.com/flanux/ledger-core/internal/core/ports/repositories"
	portssvc "github.com/flanux/ledger-core/internal/core/ports/services"
	"github.com/flanux/ledger-core/internal/middleware"
)

var (
	ErrEntriesUnbalanced  = errors.New("ledger entries do not balance")
	ErrNotCompleted       = errors.New("ledger entries can only be derived from a completed transaction")
	ErrMissingAccountSide = errors.New("transaction is missing an account required for derivation")
)

// ledgerService derives and reads balanced double-entry rows.
type ledgerService struct {
	ledgerRepo portsrepo.LedgerRepository
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(ledgerRepo portsrepo.LedgerRepository) portssvc.LedgerSvcFacade {
	return &ledgerService{ledgerRepo: ledgerRepo}
}

var _ portssvc.LedgerSvcFacade = (*ledgerService)(nil)

// DeriveEntries computes the entry set for a COMPLETED transaction.
// Derivation failures are programming-contract violations, wrapped in
// apperrors.ErrInternal so they fail loudly rather than read as user errors.
func (s *ledgerService) DeriveEntries(txn domain.Transaction) ([]domain.LedgerEntry, error) {
	if txn.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("%w: transaction %s is %s: %w", apperrors.ErrInternal, txn.TransactionID, txn.Status, ErrNotCompleted)
	}
	if !txn.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: transaction %s amount %s is not positive", apperrors.ErrInternal, txn.TransactionID, txn.Amount.String())
	}

	now := time.Now().UTC()
	amount := txn.Amount

	var entries []domain.LedgerEntry
	switch txn.Type {
	case domain.Transfer:
		if txn.SourceAccountID == nil || txn.DestinationAccountID == nil {
			return nil, fmt.Errorf("%w: transaction %s (%s): %w", apperrors.ErrInternal, txn.TransactionID, txn.Type, ErrMissingAccountSide)
		}
		entries = []domain.LedgerEntry{
			{
				EntryID:       uuid.NewString(),
				TransactionID: txn.TransactionID,
				AccountID:     *txn.SourceAccountID,
				Debit:         &amount,
				CreatedAt:     now,
			},
			{
				EntryID:       uuid.NewString(),
				TransactionID: txn.TransactionID,
				AccountID:     *txn.DestinationAccountID,
				Credit:        &amount,
				CreatedAt:     now,
			},
		}
	case domain.Reversal:
		// A reversal mirrors its original. Reversed transfers carry both
		// sides; a reversed deposit is a single debit and a reversed
		// withdrawal a single credit.
		switch {
		case txn.SourceAccountID != nil && txn.DestinationAccountID != nil:
			entries = []domain.LedgerEntry{
				{
					EntryID:       uuid.NewString(),
					TransactionID: txn.TransactionID,
					AccountID:     *txn.SourceAccountID,
					Debit:         &amount,
					CreatedAt:     now,
				},
				{
					EntryID:       uuid.NewString(),
					TransactionID: txn.TransactionID,
					AccountID:     *txn.DestinationAccountID,
					Credit:        &amount,
					CreatedAt:     now,
				},
			}
		case txn.SourceAccountID != nil:
			entries = []domain.LedgerEntry{
				{
					EntryID:       uuid.NewString(),
					TransactionID: txn.TransactionID,
					AccountID:     *txn.SourceAccountID,
					Debit:         &amount,
					CreatedAt:     now,
				},
			}
		case txn.DestinationAccountID != nil:
			entries = []domain.LedgerEntry{
				{
					EntryID:       uuid.NewString(),
					TransactionID: txn.TransactionID,
					AccountID:     *txn.DestinationAccountID,
					Credit:        &amount,
					CreatedAt:     now,
				},
			}
		default:
			return nil, fmt.Errorf("%w: transaction %s (%s): %w", apperrors.ErrInternal, txn.TransactionID, txn.Type, ErrMissingAccountSide)
		}
	case domain.Deposit:
		if txn.DestinationAccountID == nil {
			return nil, fmt.Errorf("%w: transaction %s (%s): %w", apperrors.ErrInternal, txn.TransactionID, txn.Type, ErrMissingAccountSide)
		}
		entries = []domain.LedgerEntry{
			{
				EntryID:       uuid.NewString(),
				TransactionID: txn.TransactionID,
				AccountID:     *txn.DestinationAccountID,
				Credit:        &amount,
				CreatedAt:     now,
			},
		}
	case domain.Withdrawal:
		if txn.SourceAccountID == nil {
			return nil, fmt.Errorf("%w: transaction %s (%s): %w", apperrors.ErrInternal, txn.TransactionID, txn.Type, ErrMissingAccountSide)
		}
		entries = []domain.LedgerEntry{
			{
				EntryID:       uuid.NewString(),
				TransactionID: txn.TransactionID,
				AccountID:     *txn.SourceAccountID,
				Debit:         &amount,
				CreatedAt:     now,
			},
		}
	default:
		return nil, fmt.Errorf("%w: unknown transaction type %q for transaction %s", apperrors.ErrInternal, txn.Type, txn.TransactionID)
	}

	if err := s.validateBalance(txn, entries); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInternal, err)
	}

	return entries, nil
}

// validateBalance enforces the double-entry invariant on a derived set. For
// two-sided movements debits and credits must both equal the transaction
// amount; one-sided movements carry exactly their single leg.
func (s *ledgerService) validateBalance(txn domain.Transaction, entries []domain.LedgerEntry) error {
	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			return err
		}
	}

	debits, credits := domain.SumEntries(entries)

	switch txn.Type {
	case domain.Transfer:
		if !debits.Equal(credits) || !debits.Equal(txn.Amount) {
			return fmt.Errorf("%w: transaction %s debits %s credits %s amount %s",
				ErrEntriesUnbalanced, txn.TransactionID, debits.String(), credits.String(), txn.Amount.String())
		}
	case domain.Reversal:
		switch {
		case txn.SourceAccountID != nil && txn.DestinationAccountID != nil:
			if !debits.Equal(credits) || !debits.Equal(txn.Amount) {
				return fmt.Errorf("%w: transaction %s debits %s credits %s amount %s",
					ErrEntriesUnbalanced, txn.TransactionID, debits.String(), credits.String(), txn.Amount.String())
			}
		case txn.SourceAccountID != nil:
			if !debits.Equal(txn.Amount) || !credits.IsZero() {
				return fmt.Errorf("%w: reversal %s debits %s amount %s", ErrEntriesUnbalanced, txn.TransactionID, debits.String(), txn.Amount.String())
			}
		default:
			if !credits.Equal(txn.Amount) || !debits.IsZero() {
				return fmt.Errorf("%w: reversal %s credits %s amount %s", ErrEntriesUnbalanced, txn.TransactionID, credits.String(), txn.Amount.String())
			}
		}
	case domain.Deposit:
		if !credits.Equal(txn.Amount) || !debits.IsZero() {
			return fmt.Errorf("%w: deposit %s credits %s amount %s", ErrEntriesUnbalanced, txn.TransactionID, credits.String(), txn.Amount.String())
		}
	case domain.Withdrawal:
		if !debits.Equal(txn.Amount) || !credits.IsZero() {
			return fmt.Errorf("%w: withdrawal %s debits %s amount %s", ErrEntriesUnbalanced, txn.TransactionID, debits.String(), txn.Amount.String())
		}
	}

	return nil
}

// RecordEntries derives and appends the entries for a transaction.
func (s *ledgerService) RecordEntries(ctx context.Context, txn domain.Transaction) ([]domain.LedgerEntry, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	entries, err := s.DeriveEntries(txn)
	if err != nil {
		logger.Error("Ledger derivation failed", slog.String("transaction_id", txn.TransactionID), slog.String("error", err.Error()))
		return nil, err
	}

	if err := s.ledgerRepo.AppendEntries(ctx, entries); err != nil {
		logger.Error("Failed to append ledger entries", slog.String("transaction_id", txn.TransactionID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to append ledger entries for transaction %s: %w", txn.TransactionID, err)
	}

	logger.Debug("Ledger entries recorded", slog.String("transaction_id", txn.TransactionID), slog.Int("entry_count", len(entries)))
	return entries, nil
}

// EntriesForAccount returns the account's ledger rows, oldest first.
func (s *ledgerService) EntriesForAccount(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	entries, err := s.ledgerRepo.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve ledger entries for account %s: %w", accountID, err)
	}
	return entries, nil
}

// EntriesForTransaction returns the rows owned by a transaction, oldest first.
func (s *ledgerService) EntriesForTransaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	entries, err := s.ledgerRepo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve ledger entries for transaction %s: %w", transactionID, err)
	}
	return entries, nil
}
