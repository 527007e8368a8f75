package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	portssvc "github.com/flanux/ledger-core/internal/core/ports/services"
	"github.com/flanux/ledger-core/internal/dto"
)

// LedgerHandler exposes the double-entry ledger over HTTP. The ledger is
// append-only; these endpoints are read-only views.
type LedgerHandler struct {
	ledgerService portssvc.LedgerSvcFacade
}

// NewLedgerHandler creates a new handler for ledger endpoints.
func NewLedgerHandler(ledgerService portssvc.LedgerSvcFacade) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

// GetAccountEntries handles GET /accounts/:accountID/ledger.
func (h *LedgerHandler) GetAccountEntries(c *gin.Context) {
	entries, err := h.ledgerService.EntriesForAccount(c.Request.Context(), c.Param("accountID"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToLedgerEntryResponses(entries))
}

// GetTransactionEntries handles GET /transactions/:transactionID/ledger.
func (h *LedgerHandler) GetTransactionEntries(c *gin.Context) {
	entries, err := h.ledgerService.EntriesForTransaction(c.Request.Context(), c.Param("transactionID"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToLedgerEntryResponses(entries))
}
