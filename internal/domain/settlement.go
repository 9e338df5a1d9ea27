package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementResult is the remote service's acknowledgement of a transfer.
type SettlementResult struct {
	TxID        string    // opaque remote transaction id
	CompletedAt time.Time // remote-assigned timestamp
}

// AccountStatus describes a settlement account as reported by the remote
// service.
type AccountStatus struct {
	Coins             decimal.Decimal
	TotalTransactions int
	CooldownRemaining time.Duration
}

// SettlementClient is the contract against the remote coin-settlement
// service. Each operation is a single blocking network call bounded by the
// client's configured timeout. Success is determined by the explicit success
// flag in the response body, never by transport status alone.
//
// Failure modes: AccountStatus fails with ErrAccountNotFound when the remote
// reports an unknown account; every operation fails with
// ErrSettlementUnavailable on timeout, transport error or an unsuccessful or
// malformed response.
type SettlementClient interface {
	// TransferToUser moves coins from a settlement account to a remote user
	// identifier. amount is coin-encoded text (EncodeCoin).
	TransferToUser(ctx context.Context, sourceCard, toUserID, amount string) (*SettlementResult, error)

	// TransferToAccount moves coins between two settlement accounts.
	TransferToAccount(ctx context.Context, fromCard, toCard, amount string) (*SettlementResult, error)

	// AccountStatus looks up the remote state of a settlement account.
	AccountStatus(ctx context.Context, card string) (*AccountStatus, error)
}
