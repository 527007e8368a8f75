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
	"github.com/flanux/ledger-core/internal/dto"
	"github.com/flanux/ledger-core/internal/middleware"
)

// transactionService coordinates the lifecycle of a money movement: validate,
// debit/credit through the balance collaborator, append ledger entries, stage
// outcome events. Events ride in the same database commit as the state they
// describe (outbox), so none is visible before its state is durable.
type transactionService struct {
	txnRepo    portsrepo.TransactionRepository
	ledgerSvc  portssvc.LedgerSvcFacade
	balanceSvc portssvc.BalanceSvcFacade
}

// NewTransactionService creates a new transaction coordinator.
func NewTransactionService(
	txnRepo portsrepo.TransactionRepository,
	ledgerSvc portssvc.LedgerSvcFacade,
	balanceSvc portssvc.BalanceSvcFacade,
) portssvc.TransactionSvcFacade {
	return &transactionService{
		txnRepo:    txnRepo,
		ledgerSvc:  ledgerSvc,
		balanceSvc: balanceSvc,
	}
}

var _ portssvc.TransactionSvcFacade = (*transactionService)(nil)

// newTransactionNumber builds the business-facing transaction number.
func newTransactionNumber() string {
	return fmt.Sprintf("TXN%d%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// ProcessTransaction runs a transaction to a terminal state.
//
// Up to the debit the request can fail with no side effects. Once the debit
// has been applied the coordinator always runs to COMPLETED or to the
// reconciliation flag; it never aborts half-applied.
func (s *transactionService) ProcessTransaction(ctx context.Context, req dto.ProcessTransactionRequest) (*domain.Transaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	txn, err := s.buildTransaction(req)
	if err != nil {
		return nil, err
	}

	// Collapse retried requests carrying the same idempotency key into the
	// original effect.
	if txn.IdempotencyKey != nil {
		existing, err := s.txnRepo.FindByIdempotencyKey(ctx, *txn.IdempotencyKey)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if existing != nil {
			logger.Info("Idempotent resend collapsed to existing transaction",
				slog.String("transaction_id", existing.TransactionID),
				slog.String("idempotency_key", *txn.IdempotencyKey))
			return existing, nil
		}
	}

	initiatedEvt, err := domain.NewTransactionOutboxEvent(domain.EventTransactionInitiated, *txn)
	if err != nil {
		return nil, err
	}
	if err := s.txnRepo.CreatePending(ctx, *txn, initiatedEvt); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) && txn.IdempotencyKey != nil {
			// Lost a race on the idempotency key; the winner's record is the effect.
			if existing, ferr := s.txnRepo.FindByIdempotencyKey(ctx, *txn.IdempotencyKey); ferr == nil {
				return existing, nil
			}
		}
		logger.Error("Failed to create pending transaction", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to create transaction record: %w", err)
	}

	logger = logger.With(slog.String("transaction_id", txn.TransactionID), slog.String("type", string(txn.Type)))

	// Advisory pre-check. The atomic debit below remains the authority; the
	// balance may change in between.
	if txn.SourceAccountID != nil {
		sufficient, err := s.balanceSvc.HasSufficientBalance(ctx, *txn.SourceAccountID, txn.Amount)
		if err != nil {
			return s.failTransaction(ctx, txn, fmt.Sprintf("balance pre-check failed: %v", err), err)
		}
		if !sufficient {
			return s.failTransaction(ctx, txn, "insufficient funds", apperrors.ErrInsufficientFunds)
		}
	}

	return s.applyBalancesAndComplete(ctx, txn, logger)
}

// applyBalancesAndComplete moves the money, stamps snapshots, appends ledger
// entries and stages the outcome event. Shared by process and reversal paths.
func (s *transactionService) applyBalancesAndComplete(ctx context.Context, txn *domain.Transaction, logger *slog.Logger) (*domain.Transaction, error) {
	if txn.SourceAccountID != nil {
		newBalance, err := s.balanceSvc.Debit(ctx, *txn.SourceAccountID, txn.Amount)
		if err != nil {
			// Debit failed: nothing was mutated, the FAILED record is safe.
			if errors.Is(err, apperrors.ErrInsufficientFunds) {
				return s.failTransaction(ctx, txn, "insufficient funds", apperrors.ErrInsufficientFunds)
			}
			return s.failTransaction(ctx, txn, fmt.Sprintf("debit failed: %v", err), err)
		}
		txn.SourceBalanceAfter = &newBalance
	}

	if txn.DestinationAccountID != nil {
		newBalance, err := s.balanceSvc.Credit(ctx, *txn.DestinationAccountID, txn.Amount)
		if err != nil {
			if txn.SourceAccountID == nil {
				// Pure deposit: the failed credit mutated nothing.
				return s.failTransaction(ctx, txn, fmt.Sprintf("credit failed: %v", err), err)
			}
			// The debit already happened on a possibly separate account
			// store. Rolling it back silently is worse than flagging; leave
			// the record for manual reconciliation.
			return s.flagFatal(ctx, txn, fmt.Sprintf("credit failed after debit: %v", err), logger)
		}
		txn.DestinationBalanceAfter = &newBalance
	}

	now := time.Now().UTC()
	txn.Status = domain.StatusCompleted
	txn.CompletedAt = &now

	entries, err := s.ledgerSvc.DeriveEntries(*txn)
	if err != nil {
		return s.flagFatal(ctx, txn, fmt.Sprintf("ledger derivation failed: %v", err), logger)
	}

	eventType := domain.EventTransactionCompleted
	if txn.Type == domain.Reversal {
		eventType = domain.EventTransactionReversed
	}
	completedEvt, err := domain.NewTransactionOutboxEvent(eventType, *txn)
	if err != nil {
		return s.flagFatal(ctx, txn, fmt.Sprintf("event encoding failed: %v", err), logger)
	}

	if err := s.txnRepo.MarkCompleted(ctx, *txn, entries, completedEvt); err != nil {
		return s.flagFatal(ctx, txn, fmt.Sprintf("ledger write failed: %v", err), logger)
	}

	logger.Info("Transaction completed",
		slog.String("transaction_number", txn.TransactionNumber),
		slog.String("amount", txn.Amount.String()))
	return txn, nil
}

// ReverseTransaction creates and completes a symmetric REVERSAL transaction.
// The claim (reversal insert + is_reversed compare-and-set on the original) is
// one durable write, so two concurrent attempts cannot both succeed.
func (s *transactionService) ReverseTransaction(ctx context.Context, transactionID string, reason string) (*domain.Transaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	original, err := s.txnRepo.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("transaction %s: %w", transactionID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", transactionID, err)
	}

	if original.IsReversed {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, apperrors.ErrAlreadyReversed)
	}
	if original.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("%w: transaction %s is %s, only COMPLETED transactions can be reversed",
			apperrors.ErrConflict, transactionID, original.Status)
	}
	if original.Type == domain.Reversal {
		return nil, fmt.Errorf("%w: transaction %s is itself a reversal", apperrors.ErrConflict, transactionID)
	}

	reversal := &domain.Transaction{
		TransactionID:     uuid.NewString(),
		TransactionNumber: newTransactionNumber(),
		Type:              domain.Reversal,
		Status:            domain.StatusPending,
		Amount:            original.Amount,
		CurrencyCode:      original.CurrencyCode,
		// Source and destination swapped relative to the original. A reversed
		// deposit withdraws, a reversed withdrawal deposits.
		SourceAccountID:      original.DestinationAccountID,
		DestinationAccountID: original.SourceAccountID,
		Description:          fmt.Sprintf("Reversal: %s", original.Description),
		ReversalOf:           &original.TransactionID,
		ReversalReason:       &reason,
		InitiatedAt:          time.Now().UTC(),
	}

	initiatedEvt, err := domain.NewTransactionOutboxEvent(domain.EventTransactionInitiated, *reversal)
	if err != nil {
		return nil, err
	}

	if err := s.txnRepo.ClaimReversal(ctx, *reversal, original.TransactionID, reason, initiatedEvt); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyReversed) {
			logger.Warn("Concurrent reversal attempt rejected", slog.String("transaction_id", transactionID))
			return nil, fmt.Errorf("transaction %s: %w", transactionID, apperrors.ErrAlreadyReversed)
		}
		return nil, fmt.Errorf("failed to claim reversal of transaction %s: %w", transactionID, err)
	}

	logger = logger.With(
		slog.String("transaction_id", reversal.TransactionID),
		slog.String("reversal_of", original.TransactionID))

	result, err := s.applyBalancesAndComplete(ctx, reversal, logger)
	if err != nil && result != nil && result.Status == domain.StatusFailed {
		// No balance was mutated; release the claim so the original can be
		// reversed again once the cause is addressed.
		failedEvt, evtErr := domain.NewTransactionOutboxEvent(domain.EventTransactionFailed, *result)
		if evtErr == nil {
			if relErr := s.txnRepo.ReleaseReversal(ctx, *result, original.TransactionID, failedEvt); relErr != nil {
				logger.Error("Failed to release reversal claim", slog.String("error", relErr.Error()))
			}
		}
	}
	return result, err
}

// GetTransactionByID retrieves a transaction record.
func (s *transactionService) GetTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	txn, err := s.txnRepo.FindByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction %s: %w", transactionID, err)
	}
	return txn, nil
}

// ListTransactionsByAccount lists movements touching an account, oldest first.
func (s *transactionService) ListTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	txns, err := s.txnRepo.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for account %s: %w", accountID, err)
	}
	return txns, nil
}

// buildTransaction validates the request and assembles the PENDING record.
// All failures here are pre-mutation and returned directly to the caller.
func (s *transactionService) buildTransaction(req dto.ProcessTransactionRequest) (*domain.Transaction, error) {
	if req.Type == domain.Reversal {
		return nil, fmt.Errorf("%w: reversals are created via ReverseTransaction", apperrors.ErrValidation)
	}

	txn := &domain.Transaction{
		TransactionID:        uuid.NewString(),
		TransactionNumber:    newTransactionNumber(),
		Type:                 req.Type,
		Status:               domain.StatusPending,
		Amount:               req.Amount,
		CurrencyCode:         req.CurrencyCode,
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		Description:          req.Description,
		InitiatedAt:          time.Now().UTC(),
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		txn.IdempotencyKey = &key
	}

	if err := txn.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	return txn, nil
}

// failTransaction records the FAILED terminal state with its event. The
// returned transaction is the durable FAILED record; cause classifies it.
func (s *transactionService) failTransaction(ctx context.Context, txn *domain.Transaction, reason string, cause error) (*domain.Transaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	txn.Status = domain.StatusFailed
	txn.FailureReason = reason

	failedEvt, err := domain.NewTransactionOutboxEvent(domain.EventTransactionFailed, *txn)
	if err != nil {
		logger.Error("Failed to encode failure event", slog.String("transaction_id", txn.TransactionID), slog.String("error", err.Error()))
		return txn, cause
	}
	if err := s.txnRepo.MarkFailed(ctx, *txn, failedEvt); err != nil {
		logger.Error("Failed to persist FAILED status", slog.String("transaction_id", txn.TransactionID), slog.String("error", err.Error()))
	}

	logger.Warn("Transaction failed",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("reason", reason))
	return txn, cause
}

// flagFatal handles the single non-recoverable case: balances mutated but the
// completion write failed. The transaction stays COMPLETED with the
// reconciliation flag; nothing is rolled back automatically.
func (s *transactionService) flagFatal(ctx context.Context, txn *domain.Transaction, reason string, logger *slog.Logger) (*domain.Transaction, error) {
	txn.Status = domain.StatusCompleted
	txn.NeedsReconciliation = true

	logger.Error("FATAL inconsistency: manual reconciliation required",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("transaction_number", txn.TransactionNumber),
		slog.String("reason", reason))

	if err := s.txnRepo.FlagReconciliation(ctx, *txn, reason); err != nil {
		logger.Error("Failed to persist reconciliation flag",
			slog.String("transaction_id", txn.TransactionID),
			slog.String("error", err.Error()))
	}

	return txn, fmt.Errorf("%w: transaction %s: %s", apperrors.ErrFatalInconsistency, txn.TransactionID, reason)
}
