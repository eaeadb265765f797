package fixedpoint

import (
	"math/big"
	"sync"
)

// Ledger-wide fixed-point constants. All collateral amounts, stable-unit
// amounts, and USD values are 18-decimal fixed point. Oracle feeds
// typically report 8 decimals and are scaled up by FeedPrecision.
var (
	// Precision is the 18-decimal ledger scale (1e18).
	Precision = pow10(18)

	// FeedPrecision normalizes an 8-decimal oracle price to 18 decimals (1e10).
	FeedPrecision = pow10(10)

	// MaxUint256 is the largest representable value (2^256 - 1). Used as the
	// health factor of an account with zero debt.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// intPool recycles big.Int intermediates on hot valuation paths.
var intPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt() *big.Int {
	return intPool.Get().(*big.Int)
}

func putInt(v *big.Int) {
	v.SetInt64(0)
	intPool.Put(v)
}

// MulDiv computes a * b / denom with a wide intermediate, flooring the
// quotient. Flooring keeps valuations conservative: collateral value is
// never overstated and token conversions never round in the caller's favor.
// denom must be non-zero.
func MulDiv(a, b, denom *big.Int) *big.Int {
	tmp := getInt()
	tmp.Mul(a, b)
	out := new(big.Int).Quo(tmp, denom)
	putInt(tmp)
	return out
}

// FeedDenom returns 10^decimals for scaling a raw feed price.
func FeedDenom(decimals uint8) *big.Int {
	return pow10(int64(decimals))
}

// Clone returns an independent copy of v. Store accessors hand out clones
// so callers cannot alias internal state.
func Clone(v *big.Int) *big.Int {
	return new(big.Int).Set(v)
}

// IsZero reports whether v is nil or exactly zero.
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

// IsPositive reports whether v is non-nil and strictly positive.
func IsPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
