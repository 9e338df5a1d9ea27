package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerAccount_CreditAndDebit(t *testing.T) {
	acc := NewLedgerAccount("guild-1", "user-1")
	assert.True(t, acc.FiatBalance.IsZero())

	require.NoError(t, acc.Credit(decimal.RequireFromString("50.00")))
	assert.Equal(t, "50.00", acc.FiatBalance.StringFixed(2))

	require.NoError(t, acc.Debit(decimal.RequireFromString("20.00")))
	assert.Equal(t, "30.00", acc.FiatBalance.StringFixed(2))
}

func TestLedgerAccount_DebitNeverGoesNegative(t *testing.T) {
	acc := NewLedgerAccount("guild-1", "user-1")
	require.NoError(t, acc.Credit(decimal.RequireFromString("10.00")))

	err := acc.Debit(decimal.RequireFromString("10.01"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, "10.00", acc.FiatBalance.StringFixed(2), "failed debit must not touch the balance")

	// Draining to exactly zero is allowed.
	require.NoError(t, acc.Debit(decimal.RequireFromString("10.00")))
	assert.True(t, acc.FiatBalance.IsZero())
}

func TestLedgerAccount_AmountsFlooredToCent(t *testing.T) {
	acc := NewLedgerAccount("guild-1", "user-1")
	require.NoError(t, acc.Credit(decimal.RequireFromString("10.999")))
	assert.Equal(t, "10.99", acc.FiatBalance.StringFixed(2))
}

func TestLedgerAccount_RejectsNonPositiveAmounts(t *testing.T) {
	acc := NewLedgerAccount("guild-1", "user-1")
	assert.ErrorIs(t, acc.Credit(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, acc.Debit(decimal.RequireFromString("-5")), ErrInvalidAmount)
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrInvalidAmount, "Your request was invalid."},
		{ErrAccountNotFound, "Your request was invalid."},
		{ErrInsufficientBalance, "You don't have enough balance."},
		{ErrSettlementUnavailable, "The settlement service is unavailable, try again later."},
		{ErrUnknownJobKind, "An unexpected error occurred."},
		{errors.New("boom"), "An unexpected error occurred."},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, UserMessage(tc.err))
	}
}
