package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	portssvc "github.com/flanux/ledger-core/internal/core/ports/services"
)

// RegisterRoutes wires all HTTP endpoints under /api/v1.
func RegisterRoutes(r *gin.Engine, transactionService portssvc.TransactionSvcFacade, ledgerService portssvc.LedgerSvcFacade) {
	registerCustomValidators()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	transactionHandler := NewTransactionHandler(transactionService)
	ledgerHandler := NewLedgerHandler(ledgerService)

	v1 := r.Group("/api/v1")
	{
		transactions := v1.Group("/transactions")
		{
			transactions.POST("", transactionHandler.ProcessTransaction)
			transactions.GET("/:transactionID", transactionHandler.GetTransaction)
			transactions.POST("/:transactionID/reverse", transactionHandler.ReverseTransaction)
			transactions.GET("/:transactionID/ledger", ledgerHandler.GetTransactionEntries)
		}

		accounts := v1.Group("/accounts")
		{
			accounts.GET("/:accountID/transactions", transactionHandler.ListAccountTransactions)
			accounts.GET("/:accountID/ledger", ledgerHandler.GetAccountEntries)
		}
	}
}
