// Package balance holds the HTTP client for the account balance service, the
// external authority over per-account balances.
package balance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flanux/ledger-core/internal/apperrors"
	portssvc "github.com/flanux/ledger-core/internal/core/ports/services"
)

// Client talks to the balance service over HTTP. Debit and credit are atomic
// per account on the service side.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a balance service client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ portssvc.BalanceSvcFacade = (*Client)(nil)

type movementRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type balanceResponse struct {
	AccountID string          `json:"accountID"`
	Balance   decimal.Decimal `json:"balance"`
}

type sufficiencyResponse struct {
	Sufficient bool `json:"sufficient"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Debit subtracts amount from the account and returns the balance after.
func (c *Client) Debit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	return c.move(ctx, accountID, "debit", amount)
}

// Credit adds amount to the account and returns the balance after.
func (c *Client) Credit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	return c.move(ctx, accountID, "credit", amount)
}

func (c *Client) move(ctx context.Context, accountID string, op string, amount decimal.Decimal) (decimal.Decimal, error) {
	body, err := json.Marshal(movementRequest{Amount: amount})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to marshal %s request for account %s: %w", op, accountID, err)
	}

	url := fmt.Sprintf("%s/accounts/%s/%s", c.baseURL, accountID, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build %s request for account %s: %w", op, accountID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance service %s for account %s: %w", op, accountID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out balanceResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return decimal.Zero, fmt.Errorf("failed to decode %s response for account %s: %w", op, accountID, err)
		}
		return out.Balance, nil
	case http.StatusUnprocessableEntity:
		return decimal.Zero, fmt.Errorf("account %s: %w", accountID, apperrors.ErrInsufficientFunds)
	case http.StatusNotFound:
		return decimal.Zero, fmt.Errorf("account %s: %w", accountID, apperrors.ErrNotFound)
	default:
		return decimal.Zero, fmt.Errorf("balance service %s for account %s returned %d: %s", op, accountID, resp.StatusCode, readErrorBody(resp.Body))
	}
}

// HasSufficientBalance is an advisory pre-check against the service.
func (c *Client) HasSufficientBalance(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error) {
	url := fmt.Sprintf("%s/accounts/%s/sufficiency?amount=%s", c.baseURL, accountID, amount.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build sufficiency request for account %s: %w", accountID, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("balance service sufficiency check for account %s: %w", accountID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out sufficiencyResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return false, fmt.Errorf("failed to decode sufficiency response for account %s: %w", accountID, err)
		}
		return out.Sufficient, nil
	case http.StatusNotFound:
		return false, fmt.Errorf("account %s: %w", accountID, apperrors.ErrNotFound)
	default:
		return false, fmt.Errorf("balance service sufficiency check for account %s returned %d: %s", accountID, resp.StatusCode, readErrorBody(resp.Body))
	}
}

func readErrorBody(r io.Reader) string {
	var out errorResponse
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&out); err != nil || out.Error == "" {
		return "unknown error"
	}
	return out.Error
}
