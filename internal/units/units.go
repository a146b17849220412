package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// NativeSymbol labels the ledger's native asset in messages and responses.
	NativeSymbol = "ETH"
	// NativeDecimals is the fixed scale between a native display unit and its minor unit (wei).
	NativeDecimals int32 = 18
	// FiatSymbol labels fiat-denominated transfers.
	FiatSymbol = "USD"
	// StableDecimals is the scale of the USDC token the swap API quotes against.
	StableDecimals int32 = 6
)

// MaxMinorDigits bounds minor-unit amounts to what NUMERIC(78, 0) stores.
const MaxMinorDigits = 78

// maxAmountLen bounds the textual length of display amounts.
const maxAmountLen = 96

var (
	// ErrInvalidAmount is returned for unparsable, non-positive or over-precise amounts.
	ErrInvalidAmount = errors.New("invalid amount")
)

// parsePlain parses a plain decimal string. Exponent notation is refused so
// that a short input can never expand into a huge integer.
func parsePlain(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	if len(raw) > maxAmountLen {
		return decimal.Decimal{}, fmt.Errorf("%w: amount is too long", ErrInvalidAmount)
	}
	if strings.ContainsAny(raw, "eE") {
		return decimal.Decimal{}, fmt.Errorf("%w: exponent notation is not accepted", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	return d, nil
}

// ParseDecimal parses a strictly positive, finite decimal string.
func ParseDecimal(raw string) (decimal.Decimal, error) {
	d, err := parsePlain(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	return d, nil
}

// ToMinor converts a display amount into minor units at the given scale. Amounts
// carrying more fractional digits than the scale allows are rejected rather than rounded.
func ToMinor(display string, decimals int32) (*big.Int, error) {
	d, err := ParseDecimal(display)
	if err != nil {
		return nil, err
	}
	return shiftToMinor(d, decimals)
}

func shiftToMinor(d decimal.Decimal, decimals int32) (*big.Int, error) {
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, decimals)
	}
	minor := shifted.BigInt()
	if len(minor.String()) > MaxMinorDigits {
		return nil, fmt.Errorf("%w: amount is too large", ErrInvalidAmount)
	}
	return minor, nil
}

// TruncateToMinor converts a display amount into minor units, dropping any
// precision beyond the scale.
func TruncateToMinor(d decimal.Decimal, decimals int32) *big.Int {
	return d.Shift(decimals).Truncate(0).BigInt()
}

// FromMinor formats minor units as the shortest exact display string.
func FromMinor(minor *big.Int, decimals int32) string {
	if minor == nil {
		return "0"
	}
	return decimal.NewFromBigInt(minor, -decimals).String()
}

// ParseMinor parses a base-10 minor-unit integer string of at most
// MaxMinorDigits digits.
func ParseMinor(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if len(strings.TrimPrefix(raw, "-")) > MaxMinorDigits {
		return nil, fmt.Errorf("%w: amount is too large", ErrInvalidAmount)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidAmount, raw)
	}
	return v, nil
}

// ToMinorNonNegative is ToMinor for configuration values where zero is allowed.
func ToMinorNonNegative(display string, decimals int32) (*big.Int, error) {
	d, err := parsePlain(display)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidAmount)
	}
	return shiftToMinor(d, decimals)
}
