// Package valuation converts collateral amounts to USD value and back,
// using the collateral registry for feed lookup and a PriceSource for
// current prices. All conversions floor so collateral value is never
// overstated and token payouts never round up.
package valuation

import (
	"errors"
	"fmt"
	"math/big"

	"StableVault/internal/fixedpoint"
	"StableVault/internal/oracle"
	"StableVault/internal/registry"

	"github.com/google/uuid"
)

// ErrNonPositivePrice is returned when the oracle reports a zero or
// negative price during a conversion. A non-positive price is an error to
// propagate, never a value to compute with.
var ErrNonPositivePrice = errors.New("oracle returned non-positive price")

// Engine values collateral against USD.
type Engine struct {
	registry *registry.Registry
	prices   oracle.PriceSource
}

// BalanceSource supplies per-user collateral balances. It matches the
// position store's accessor.
type BalanceSource interface {
	CollateralOf(user uuid.UUID, asset string) *big.Int
}

func NewEngine(reg *registry.Registry, prices oracle.PriceSource) *Engine {
	return &Engine{registry: reg, prices: prices}
}

// normalizedPrice fetches the latest quote for asset and scales it to the
// 18-decimal ledger convention.
func (e *Engine) normalizedPrice(asset string) (*big.Int, error) {
	feed, err := e.registry.FeedFor(asset)
	if err != nil {
		return nil, err
	}

	q, err := e.prices.LatestPrice(feed)
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", asset, err)
	}
	if q.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s reported %s", ErrNonPositivePrice, feed, q.Price)
	}
	if q.Decimals > 18 {
		return nil, fmt.Errorf("feed %s reports %d decimals, ledger convention is at most 18", feed, q.Decimals)
	}

	// price * 10^(18-decimals): the additional feed precision constant for
	// the usual 8-decimal feeds is 1e10.
	scaleUp := fixedpoint.FeedDenom(18 - q.Decimals)
	return new(big.Int).Mul(q.Price, scaleUp), nil
}

// UsdValue returns the USD value (18-decimal fixed point) of amount units
// of asset: amount * normalizedPrice / precision, floored.
func (e *Engine) UsdValue(asset string, amount *big.Int) (*big.Int, error) {
	price, err := e.normalizedPrice(asset)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(amount, price, fixedpoint.Precision), nil
}

// TokenAmountFromUsd returns how many units of asset are worth usdAmount:
// usdAmount * precision / normalizedPrice, floored.
func (e *Engine) TokenAmountFromUsd(asset string, usdAmount *big.Int) (*big.Int, error) {
	price, err := e.normalizedPrice(asset)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(usdAmount, fixedpoint.Precision, price), nil
}

// TotalCollateralValueUsd sums the USD value of every registered asset the
// user holds. Iteration follows registry insertion order; with a single
// wide accumulator the order is not observable in the result.
func (e *Engine) TotalCollateralValueUsd(user uuid.UUID, balances BalanceSource) (*big.Int, error) {
	total := new(big.Int)

	for _, asset := range e.registry.Symbols() {
		amount := balances.CollateralOf(user, asset)
		if amount.Sign() == 0 {
			continue
		}
		v, err := e.UsdValue(asset, amount)
		if err != nil {
			return nil, err
		}
		total.Add(total, v)
	}

	return total, nil
}
