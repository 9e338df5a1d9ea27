package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerAccount represents a fiat balance held by one holder within a tenant.
// Accounts are created implicitly on first reference with a zero balance and
// are never deleted.
type LedgerAccount struct {
	TenantID    string
	HolderID    string
	FiatBalance decimal.Decimal // 2 fraction digits, never negative
	LinkedCard  string          // external settlement account, empty if unlinked
	UpdatedAt   time.Time
}

// NewLedgerAccount returns a zero-balance account for the given key.
func NewLedgerAccount(tenantID, holderID string) *LedgerAccount {
	return &LedgerAccount{
		TenantID:    tenantID,
		HolderID:    holderID,
		FiatBalance: decimal.Zero,
	}
}

// Credit increases the balance by the given amount, floored to the cent.
func (a *LedgerAccount) Credit(amount decimal.Decimal) error {
	amount = FloorFiat(amount)
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: credit must be positive", ErrInvalidAmount)
	}
	a.FiatBalance = a.FiatBalance.Add(amount)
	return nil
}

// Debit decreases the balance by the given amount, floored to the cent.
// The balance invariant holds: a debit that would drive the balance negative
// fails with ErrInsufficientBalance and leaves the account untouched.
func (a *LedgerAccount) Debit(amount decimal.Decimal) error {
	amount = FloorFiat(amount)
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: debit must be positive", ErrInvalidAmount)
	}
	if a.FiatBalance.LessThan(amount) {
		return fmt.Errorf("%w: have %s, need %s",
			ErrInsufficientBalance, a.FiatBalance.StringFixed(FiatFractionDigits), amount.StringFixed(FiatFractionDigits))
	}
	a.FiatBalance = a.FiatBalance.Sub(amount)
	return nil
}
