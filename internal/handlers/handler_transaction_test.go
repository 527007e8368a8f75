package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flanux/ledger-core/internal/apperrors"
	"github.com/flanux/ledger-core/internal/core/domain"
	"github.com/flanux/ledger-core/internal/dto"
)

type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) ProcessTransaction(ctx context.Context, req dto.ProcessTransactionRequest) (*domain.Transaction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionService) ReverseTransaction(ctx context.Context, transactionID string, reason string) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionService) GetTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionService) ListTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Transaction), args.Error(1)
}

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) DeriveEntries(txn domain.Transaction) ([]domain.LedgerEntry, error) {
	args := m.Called(txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}

func (m *MockLedgerService) RecordEntries(ctx context.Context, txn domain.Transaction) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}

func (m *MockLedgerService) EntriesForAccount(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}

func (m *MockLedgerService) EntriesForTransaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}

func strPtr(s string) *string { return &s }

func setupRouter(txnSvc *MockTransactionService, ledgerSvc *MockLedgerService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, txnSvc, ledgerSvc)
	return r
}

func completedTransfer() *domain.Transaction {
	return &domain.Transaction{
		TransactionID:        "txn-1",
		TransactionNumber:    "TXN1",
		Type:                 domain.Transfer,
		Status:               domain.StatusCompleted,
		Amount:               decimal.NewFromInt(50),
		CurrencyCode:         "USD",
		SourceAccountID:      strPtr("acc-a"),
		DestinationAccountID: strPtr("acc-b"),
	}
}

func TestProcessTransactionEndpoint(t *testing.T) {
	txnSvc := new(MockTransactionService)
	r := setupRouter(txnSvc, new(MockLedgerService))

	txnSvc.On("ProcessTransaction", mock.Anything, mock.AnythingOfType("dto.ProcessTransactionRequest")).
		Return(completedTransfer(), nil)

	body, _ := json.Marshal(gin.H{
		"type":                 "TRANSFER",
		"sourceAccountID":      "acc-a",
		"destinationAccountID": "acc-b",
		"amount":               "50",
		"currencyCode":         "USD",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp dto.TransactionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "txn-1", resp.TransactionID)
	assert.Equal(t, domain.StatusCompleted, resp.Status)
}

func TestProcessTransactionEndpointRejectsBadPayload(t *testing.T) {
	r := setupRouter(new(MockTransactionService), new(MockLedgerService))

	testCases := []struct {
		name string
		body gin.H
	}{
		{name: "missing type", body: gin.H{"amount": "10", "currencyCode": "USD"}},
		{name: "unknown type", body: gin.H{"type": "PAYMENT", "amount": "10", "currencyCode": "USD"}},
		{name: "zero amount", body: gin.H{"type": "DEPOSIT", "destinationAccountID": "acc-b", "amount": "0", "currencyCode": "USD"}},
		{name: "bad currency", body: gin.H{"type": "DEPOSIT", "destinationAccountID": "acc-b", "amount": "10", "currencyCode": "USDD"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.body)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestProcessTransactionEndpointInsufficientFunds(t *testing.T) {
	txnSvc := new(MockTransactionService)
	r := setupRouter(txnSvc, new(MockLedgerService))

	failed := completedTransfer()
	failed.Status = domain.StatusFailed
	failed.FailureReason = "insufficient funds"
	txnSvc.On("ProcessTransaction", mock.Anything, mock.Anything).
		Return(failed, apperrors.ErrInsufficientFunds)

	body, _ := json.Marshal(gin.H{
		"type":                 "TRANSFER",
		"sourceAccountID":      "acc-a",
		"destinationAccountID": "acc-b",
		"amount":               "9999",
		"currencyCode":         "USD",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient funds")
	assert.Contains(t, w.Body.String(), "txn-1")
}

func TestProcessTransactionEndpointFatalInconsistencyReturnsRecord(t *testing.T) {
	txnSvc := new(MockTransactionService)
	r := setupRouter(txnSvc, new(MockLedgerService))

	flagged := completedTransfer()
	flagged.NeedsReconciliation = true
	txnSvc.On("ProcessTransaction", mock.Anything, mock.Anything).
		Return(flagged, apperrors.ErrFatalInconsistency)

	body, _ := json.Marshal(gin.H{
		"type":                 "TRANSFER",
		"sourceAccountID":      "acc-a",
		"destinationAccountID": "acc-b",
		"amount":               "50",
		"currencyCode":         "USD",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// The record exists and is flagged for reconciliation; the caller gets
	// it back instead of an opaque error.
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "manual reconciliation")
	assert.Contains(t, w.Body.String(), "txn-1")
	assert.Contains(t, w.Body.String(), `"needsReconciliation":true`)
}

func TestReverseTransactionEndpointFatalInconsistencyReturnsRecord(t *testing.T) {
	txnSvc := new(MockTransactionService)
	r := setupRouter(txnSvc, new(MockLedgerService))

	flagged := completedTransfer()
	flagged.TransactionID = "txn-rev"
	flagged.Type = domain.Reversal
	flagged.NeedsReconciliation = true
	txnSvc.On("ReverseTransaction", mock.Anything, "txn-1", "operator error").
		Return(flagged, apperrors.ErrFatalInconsistency)

	body, _ := json.Marshal(gin.H{"reason": "operator error"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/txn-1/reverse", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "txn-rev")
}

func TestReverseTransactionEndpoint(t *testing.T) {
	txnSvc := new(MockTransactionService)
	r := setupRouter(txnSvc, new(MockLedgerService))

	reversal := completedTransfer()
	reversal.TransactionID = "txn-rev"
	reversal.Type = domain.Reversal
	txnSvc.On("ReverseTransaction", mock.Anything, "txn-1", "operator error").Return(reversal, nil)

	body, _ := json.Marshal(gin.H{"reason": "operator error"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/txn-1/reverse", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "txn-rev")
}

func TestReverseTransactionEndpointConflict(t *testing.T) {
	txnSvc := new(MockTransactionService)
	r := setupRouter(txnSvc, new(MockLedgerService))

	txnSvc.On("ReverseTransaction", mock.Anything, "txn-1", "again").
		Return(nil, apperrors.ErrAlreadyReversed)

	body, _ := json.Marshal(gin.H{"reason": "again"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/txn-1/reverse", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetTransactionEndpointNotFound(t *testing.T) {
	txnSvc := new(MockTransactionService)
	r := setupRouter(txnSvc, new(MockLedgerService))

	txnSvc.On("GetTransactionByID", mock.Anything, "missing").Return(nil, apperrors.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAccountTransactionsEndpoint(t *testing.T) {
	txnSvc := new(MockTransactionService)
	r := setupRouter(txnSvc, new(MockLedgerService))

	txnSvc.On("ListTransactionsByAccount", mock.Anything, "acc-a", 10).
		Return([]domain.Transaction{*completedTransfer()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/acc-a/transactions?limit=10", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "txn-1")
}

func TestListAccountTransactionsEndpointBadLimit(t *testing.T) {
	r := setupRouter(new(MockTransactionService), new(MockLedgerService))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/acc-a/transactions?limit=nope", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAccountLedgerEndpoint(t *testing.T) {
	ledgerSvc := new(MockLedgerService)
	r := setupRouter(new(MockTransactionService), ledgerSvc)

	amount := decimal.NewFromInt(50)
	ledgerSvc.On("EntriesForAccount", mock.Anything, "acc-a").Return([]domain.LedgerEntry{
		{EntryID: "e1", TransactionID: "txn-1", AccountID: "acc-a", Debit: &amount},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/acc-a/ledger", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "e1")
}
