// Package solvency computes health factors and enforces the minimum
// over-collateralization invariant. A health factor of exactly the
// configured minimum (1.0 in 18-decimal fixed point) is healthy; anything
// below it breaks the invariant.
package solvency

import (
	"fmt"
	"math/big"

	"StableVault/internal/fixedpoint"
)

// BreaksHealthFactorError reports a mutating operation that would leave an
// account below the minimum health factor. It carries the computed value
// for diagnostics.
type BreaksHealthFactorError struct {
	HealthFactor *big.Int
}

func (e *BreaksHealthFactorError) Error() string {
	return fmt.Sprintf("operation breaks health factor: %s", e.HealthFactor)
}

// Engine applies the liquidation threshold and minimum-health-factor
// parameters to positions.
type Engine struct {
	threshold *big.Int // percentage of collateral counted toward solvency
	precision *big.Int // denominator for threshold (100)
	minHealth *big.Int // 18-decimal fixed point, 1e18 = 1.0
}

func NewEngine(liquidationThreshold, liquidationPrecision int64, minHealthFactor *big.Int) *Engine {
	return &Engine{
		threshold: big.NewInt(liquidationThreshold),
		precision: big.NewInt(liquidationPrecision),
		minHealth: new(big.Int).Set(minHealthFactor),
	}
}

// HealthFactor returns the account's health factor given its total debt and
// total collateral value, both 18-decimal fixed point. An account with zero
// debt can never be liquidated and reports the maximum representable value.
func (e *Engine) HealthFactor(totalDebt, collateralValueUsd *big.Int) *big.Int {
	if totalDebt.Sign() == 0 {
		return fixedpoint.Clone(fixedpoint.MaxUint256)
	}

	adjusted := fixedpoint.MulDiv(collateralValueUsd, e.threshold, e.precision)
	return fixedpoint.MulDiv(adjusted, fixedpoint.Precision, totalDebt)
}

// Check returns a BreaksHealthFactorError when hf is below the minimum.
func (e *Engine) Check(hf *big.Int) error {
	if hf.Cmp(e.minHealth) < 0 {
		return &BreaksHealthFactorError{HealthFactor: fixedpoint.Clone(hf)}
	}
	return nil
}

// MinHealthFactor returns the configured minimum.
func (e *Engine) MinHealthFactor() *big.Int {
	return fixedpoint.Clone(e.minHealth)
}
