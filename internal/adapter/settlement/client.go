// Package settlement implements the HTTP client for the remote
// coin-settlement service.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"coinsettle/internal/domain"
)

const userAgent = "coinsettle/1.0"

// Client is the HTTP JSON adapter behind domain.SettlementClient.
// Every operation is one POST bounded by the client timeout. The remote
// signals success with an explicit flag in the body; a 2xx response without
// that flag is still a failure.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a settlement client for the given base URL with a per-call
// timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type cardInfoRequest struct {
	CardCode string `json:"cardCode"`
}

type cardInfoResponse struct {
	Success             bool            `json:"success"`
	Coins               decimal.Decimal `json:"coins"`
	TotalTransactions   int             `json:"totalTransactions"`
	CooldownRemainingMs int64           `json:"cooldownRemainingMs"`
	Error               string          `json:"error"`
}

type transferCardRequest struct {
	CardCode string `json:"cardCode"`
	ToID     string `json:"toId"`
	Amount   string `json:"amount"`
}

type cardPayRequest struct {
	FromCard string `json:"fromCard"`
	ToCard   string `json:"toCard"`
	Amount   string `json:"amount"`
}

type transferResponse struct {
	Success bool   `json:"success"`
	TxID    string `json:"txId"`
	Date    int64  `json:"date"` // unix milliseconds
	Error   string `json:"error"`
}

// TransferToUser moves coins from a settlement account to a remote user id.
func (c *Client) TransferToUser(ctx context.Context, sourceCard, toUserID, amount string) (*domain.SettlementResult, error) {
	req := transferCardRequest{CardCode: sourceCard, ToID: toUserID, Amount: amount}
	var resp transferResponse
	if err := c.post(ctx, "/api/transfer/card", req, &resp); err != nil {
		return nil, err
	}
	return transferResult(resp)
}

// TransferToAccount moves coins between two settlement accounts.
func (c *Client) TransferToAccount(ctx context.Context, fromCard, toCard, amount string) (*domain.SettlementResult, error) {
	req := cardPayRequest{FromCard: fromCard, ToCard: toCard, Amount: amount}
	var resp transferResponse
	if err := c.post(ctx, "/api/card/pay", req, &resp); err != nil {
		return nil, err
	}
	return transferResult(resp)
}

// AccountStatus looks up the remote state of a settlement account.
func (c *Client) AccountStatus(ctx context.Context, card string) (*domain.AccountStatus, error) {
	var resp cardInfoResponse
	if err := c.post(ctx, "/api/card/info", cardInfoRequest{CardCode: card}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, remoteFailure(resp.Error)
	}
	return &domain.AccountStatus{
		Coins:             resp.Coins,
		TotalTransactions: resp.TotalTransactions,
		CooldownRemaining: time.Duration(resp.CooldownRemainingMs) * time.Millisecond,
	}, nil
}

func transferResult(resp transferResponse) (*domain.SettlementResult, error) {
	if !resp.Success {
		return nil, remoteFailure(resp.Error)
	}
	return &domain.SettlementResult{
		TxID:        resp.TxID,
		CompletedAt: time.UnixMilli(resp.Date).UTC(),
	}, nil
}

func remoteFailure(reason string) error {
	if reason == "" {
		reason = "remote did not report success"
	}
	return fmt.Errorf("%w: %s", domain.ErrSettlementUnavailable, reason)
}

// post issues one JSON request and decodes the response body into out.
// A 404 maps to ErrAccountNotFound; every other non-success condition,
// including timeouts and undecodable bodies, maps to ErrSettlementUnavailable.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSettlementUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: remote returned 404 for %s", domain.ErrAccountNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: remote returned status %d", domain.ErrSettlementUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response body: %v", domain.ErrSettlementUnavailable, err)
	}

	return nil
}
