package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/sigledger/internal/units"
)

// ErrUnavailable is returned when no usable quote could be obtained.
var ErrUnavailable = errors.New("quote unavailable")

// Quote is the native amount a fiat figure converts to at request time.
type Quote struct {
	AmountMinorUnits *big.Int
	// Route names the provider and the figure it priced from. It is part of
	// the authenticated quote reference handed to the client.
	Route string
}

// Oracle converts a fiat amount into native minor units.
type Oracle interface {
	Quote(ctx context.Context, fiat decimal.Decimal) (Quote, error)
}

// StaticOracle prices the native asset at a fixed fiat rate.
type StaticOracle struct {
	// Rate is the fiat price of one native unit.
	Rate decimal.Decimal
}

// NewStaticOracle parses rate as the fiat price of one native unit.
func NewStaticOracle(rate string) (StaticOracle, error) {
	r, err := units.ParseDecimal(rate)
	if err != nil {
		return StaticOracle{}, fmt.Errorf("static quote rate: %w", err)
	}
	return StaticOracle{Rate: r}, nil
}

// Quote divides the fiat amount by the fixed rate, truncating to whole minor units.
func (o StaticOracle) Quote(_ context.Context, fiat decimal.Decimal) (Quote, error) {
	if !o.Rate.IsPositive() {
		return Quote{}, fmt.Errorf("%w: no rate configured", ErrUnavailable)
	}
	if !fiat.IsPositive() {
		return Quote{}, fmt.Errorf("%w: fiat amount must be positive", ErrUnavailable)
	}
	minor, _ := fiat.Shift(units.NativeDecimals).QuoRem(o.Rate, 0)
	amount := minor.BigInt()
	if amount.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: amount rounds to zero", ErrUnavailable)
	}
	return Quote{AmountMinorUnits: amount, Route: "static:" + o.Rate.String()}, nil
}
