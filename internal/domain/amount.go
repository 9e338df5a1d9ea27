package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// CoinFractionDigits is the precision of the remote service's native unit.
	CoinFractionDigits = 8

	// FiatFractionDigits is the precision of the locally tracked unit.
	FiatFractionDigits = 2
)

// EncodeCoin renders a coin amount as the fixed-precision decimal text the
// remote settlement service accepts. The value is truncated toward zero at the
// eighth fraction digit (never rounded, so the queue never requests more than
// the caller actually holds), rendered without scientific notation, and
// stripped of trailing zero fraction digits. Zero renders as "0".
func EncodeCoin(d decimal.Decimal) string {
	s := d.Truncate(CoinFractionDigits).StringFixed(CoinFractionDigits)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// EncodeCoinFloat is EncodeCoin for float inputs. NaN and infinities fail
// with ErrInvalidAmount.
func EncodeCoinFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: not a finite number", ErrInvalidAmount)
	}
	return EncodeCoin(decimal.NewFromFloat(f)), nil
}

// FloorFiat floors a fiat amount to the cent. The result is a stored numeric
// amount, not a transport string.
func FloorFiat(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(FiatFractionDigits)
}

// FormatCoin renders a coin amount for display. It uses the same truncation
// rule as EncodeCoin; integral values render without a decimal point and
// non-integral values keep at least one fraction digit.
func FormatCoin(d decimal.Decimal) string {
	t := d.Truncate(CoinFractionDigits)
	if t.IsInteger() {
		return t.StringFixed(0)
	}
	return strings.TrimRight(t.StringFixed(CoinFractionDigits), "0")
}

// ParseAmount parses caller-supplied amount text. Non-numeric or non-positive
// input fails with ErrInvalidAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	return d, nil
}
