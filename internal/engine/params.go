package engine

import (
	"math/big"

	"StableVault/internal/fixedpoint"
)

// Params are the engine's solvency and liquidation constants, fixed at
// construction.
type Params struct {
	// LiquidationThreshold is the percentage of raw collateral value
	// counted toward solvency. 50 with precision 100 means positions must
	// be 200% over-collateralized.
	LiquidationThreshold int64

	// LiquidationPrecision is the denominator for threshold and bonus.
	LiquidationPrecision int64

	// LiquidationBonus is the extra collateral percentage awarded to a
	// liquidator on top of the debt covered.
	LiquidationBonus int64

	// MinHealthFactor is the solvency floor in 18-decimal fixed point;
	// 1e18 means 1.0.
	MinHealthFactor *big.Int
}

// DefaultParams returns the standard production constants.
func DefaultParams() Params {
	return Params{
		LiquidationThreshold: 50,
		LiquidationPrecision: 100,
		LiquidationBonus:     10,
		MinHealthFactor:      fixedpoint.Clone(fixedpoint.Precision),
	}
}

func (p Params) clone() Params {
	p.MinHealthFactor = fixedpoint.Clone(p.MinHealthFactor)
	return p
}
