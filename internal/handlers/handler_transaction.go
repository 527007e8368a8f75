package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/flanux/ledger-core/internal/apperrors"
	"github.com/flanux/ledger-core/internal/core/domain"
	portssvc "github.com/flanux/ledger-core/internal/core/ports/services"
	"github.com/flanux/ledger-core/internal/dto"
	"github.com/flanux/ledger-core/internal/middleware"
)

const defaultListLimit = 50

// TransactionHandler exposes the transaction coordinator over HTTP.
type TransactionHandler struct {
	transactionService portssvc.TransactionSvcFacade
}

// NewTransactionHandler creates a new handler for transaction endpoints.
func NewTransactionHandler(transactionService portssvc.TransactionSvcFacade) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

// ProcessTransaction handles POST /transactions.
func (h *TransactionHandler) ProcessTransaction(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.GetLoggerFromCtx(ctx)

	var req dto.ProcessTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	txn, err := h.transactionService.ProcessTransaction(ctx, req)
	if err != nil {
		// Insufficient funds yields a durable FAILED record; the response
		// carries it alongside the classification.
		if errors.Is(err, apperrors.ErrInsufficientFunds) && txn != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":       "insufficient funds",
				"transaction": dto.ToTransactionResponse(txn),
			})
			return
		}
		logger.Error("Failed to process transaction", slog.String("error", err.Error()))
		respondWithTerminalError(c, txn, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTransactionResponse(txn))
}

// ReverseTransaction handles POST /transactions/:transactionID/reverse.
func (h *TransactionHandler) ReverseTransaction(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.GetLoggerFromCtx(ctx)
	transactionID := c.Param("transactionID")

	var req dto.ReverseTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	reversal, err := h.transactionService.ReverseTransaction(ctx, transactionID, req.Reason)
	if err != nil {
		logger.Warn("Failed to reverse transaction",
			slog.String("transaction_id", transactionID),
			slog.String("error", err.Error()),
		)
		respondWithTerminalError(c, reversal, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTransactionResponse(reversal))
}

// GetTransaction handles GET /transactions/:transactionID.
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	ctx := c.Request.Context()
	transactionID := c.Param("transactionID")

	txn, err := h.transactionService.GetTransactionByID(ctx, transactionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

// ListAccountTransactions handles GET /accounts/:accountID/transactions.
func (h *TransactionHandler) ListAccountTransactions(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := c.Param("accountID")

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	txns, err := h.transactionService.ListTransactionsByAccount(ctx, accountID, limit)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTransactionResponses(txns))
}

// respondWithTerminalError responds like respondWithError but attaches the
// terminal transaction record when the coordinator produced one. A fatal
// inconsistency leaves a COMPLETED record flagged for reconciliation; the
// caller needs that record to act on the 500.
func respondWithTerminalError(c *gin.Context, txn *domain.Transaction, err error) {
	if errors.Is(err, apperrors.ErrFatalInconsistency) && txn != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":       "transaction requires manual reconciliation",
			"transaction": dto.ToTransactionResponse(txn),
		})
		return
	}
	respondWithError(c, err)
}

// respondWithError maps domain error classes onto HTTP statuses.
func respondWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrDuplicate), errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrAlreadyReversed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
	}
}
