package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flanux/ledger-core/internal/apperrors"
	"github.com/flanux/ledger-core/internal/core/domain"
)

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) AppendEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockLedgerRepository) FindByAccountID(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepository) FindByTransactionID(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}

func completedTxn(txnType domain.TransactionType, source, dest *string) domain.Transaction {
	now := time.Now().UTC()
	return domain.Transaction{
		TransactionID:        "txn-1",
		Type:                 txnType,
		Status:               domain.StatusCompleted,
		Amount:               decimal.NewFromInt(75),
		CurrencyCode:         "USD",
		SourceAccountID:      source,
		DestinationAccountID: dest,
		InitiatedAt:          now,
		CompletedAt:          &now,
	}
}

func TestDeriveEntriesTransfer(t *testing.T) {
	svc := NewLedgerService(nil)
	txn := completedTxn(domain.Transfer, strPtr("acc-a"), strPtr("acc-b"))

	entries, err := svc.DeriveEntries(txn)

	require.NoError(t, err)
	require.Len(t, entries, 2)

	debit, credit := entries[0], entries[1]
	assert.Equal(t, "acc-a", debit.AccountID)
	require.NotNil(t, debit.Debit)
	assert.True(t, debit.Debit.Equal(txn.Amount))
	assert.Nil(t, debit.Credit)

	assert.Equal(t, "acc-b", credit.AccountID)
	require.NotNil(t, credit.Credit)
	assert.True(t, credit.Credit.Equal(txn.Amount))
	assert.Nil(t, credit.Debit)

	for _, e := range entries {
		assert.Equal(t, "txn-1", e.TransactionID)
		assert.NotEmpty(t, e.EntryID)
	}
}

func TestDeriveEntriesDepositSingleCredit(t *testing.T) {
	svc := NewLedgerService(nil)
	txn := completedTxn(domain.Deposit, nil, strPtr("acc-b"))

	entries, err := svc.DeriveEntries(txn)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Credit)
	assert.True(t, entries[0].Credit.Equal(txn.Amount))
	assert.Nil(t, entries[0].Debit)
}

func TestDeriveEntriesWithdrawalSingleDebit(t *testing.T) {
	svc := NewLedgerService(nil)
	txn := completedTxn(domain.Withdrawal, strPtr("acc-a"), nil)

	entries, err := svc.DeriveEntries(txn)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Debit)
	assert.True(t, entries[0].Debit.Equal(txn.Amount))
	assert.Nil(t, entries[0].Credit)
}

func TestDeriveEntriesReversalMirrorsTransfer(t *testing.T) {
	svc := NewLedgerService(nil)
	txn := completedTxn(domain.Reversal, strPtr("acc-b"), strPtr("acc-a"))

	entries, err := svc.DeriveEntries(txn)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	debits, credits := domain.SumEntries(entries)
	assert.True(t, debits.Equal(credits))
	assert.True(t, debits.Equal(txn.Amount))
}

func TestDeriveEntriesReversalOfDepositSingleDebit(t *testing.T) {
	svc := NewLedgerService(nil)
	txn := completedTxn(domain.Reversal, strPtr("acc-b"), nil)

	entries, err := svc.DeriveEntries(txn)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "acc-b", entries[0].AccountID)
	require.NotNil(t, entries[0].Debit)
	assert.True(t, entries[0].Debit.Equal(txn.Amount))
	assert.Nil(t, entries[0].Credit)
}

func TestDeriveEntriesReversalOfWithdrawalSingleCredit(t *testing.T) {
	svc := NewLedgerService(nil)
	txn := completedTxn(domain.Reversal, nil, strPtr("acc-a"))

	entries, err := svc.DeriveEntries(txn)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "acc-a", entries[0].AccountID)
	require.NotNil(t, entries[0].Credit)
	assert.True(t, entries[0].Credit.Equal(txn.Amount))
	assert.Nil(t, entries[0].Debit)
}

func TestDeriveEntriesContractViolations(t *testing.T) {
	svc := NewLedgerService(nil)

	testCases := []struct {
		name string
		txn  domain.Transaction
	}{
		{
			name: "pending transaction",
			txn: func() domain.Transaction {
				txn := completedTxn(domain.Transfer, strPtr("acc-a"), strPtr("acc-b"))
				txn.Status = domain.StatusPending
				return txn
			}(),
		},
		{
			name: "transfer missing destination",
			txn:  completedTxn(domain.Transfer, strPtr("acc-a"), nil),
		},
		{
			name: "deposit missing destination",
			txn:  completedTxn(domain.Deposit, nil, nil),
		},
		{
			name: "reversal missing both accounts",
			txn:  completedTxn(domain.Reversal, nil, nil),
		},
		{
			name: "non positive amount",
			txn: func() domain.Transaction {
				txn := completedTxn(domain.Transfer, strPtr("acc-a"), strPtr("acc-b"))
				txn.Amount = decimal.Zero
				return txn
			}(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.DeriveEntries(tc.txn)
			assert.ErrorIs(t, err, apperrors.ErrInternal)
		})
	}
}

func TestRecordEntriesAppendsDerivedSet(t *testing.T) {
	repo := new(MockLedgerRepository)
	svc := NewLedgerService(repo)
	txn := completedTxn(domain.Transfer, strPtr("acc-a"), strPtr("acc-b"))

	repo.On("AppendEntries", mock.Anything, mock.AnythingOfType("[]domain.LedgerEntry")).Return(nil)

	entries, err := svc.RecordEntries(context.Background(), txn)

	require.NoError(t, err)
	assert.Len(t, entries, 2)
	repo.AssertExpectations(t)
}

func TestRecordEntriesPropagatesAppendError(t *testing.T) {
	repo := new(MockLedgerRepository)
	svc := NewLedgerService(repo)
	txn := completedTxn(domain.Transfer, strPtr("acc-a"), strPtr("acc-b"))

	repo.On("AppendEntries", mock.Anything, mock.Anything).Return(errors.New("db gone"))

	_, err := svc.RecordEntries(context.Background(), txn)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "db gone")
}

func TestEntriesForAccountDelegates(t *testing.T) {
	repo := new(MockLedgerRepository)
	svc := NewLedgerService(repo)

	want := []domain.LedgerEntry{{EntryID: "e1", AccountID: "acc-a"}}
	repo.On("FindByAccountID", mock.Anything, "acc-a").Return(want, nil)

	got, err := svc.EntriesForAccount(context.Background(), "acc-a")

	require.NoError(t, err)
	assert.Equal(t, want, got)
}
