package fixedpoint_test

import (
	"math/big"
	"testing"

	"StableVault/internal/fixedpoint"
)

func TestMulDiv_Floors(t *testing.T) {
	// 7 * 3 / 2 = 10.5 -> 10
	got := fixedpoint.MulDiv(big.NewInt(7), big.NewInt(3), big.NewInt(2))
	if got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("got %s, want 10", got)
	}
}

func TestMulDiv_WideIntermediate(t *testing.T) {
	// 1e30 * 1e30 overflows any fixed-width integer; the quotient must
	// still come out exact.
	a, _ := new(big.Int).SetString("1000000000000000000000000000000", 10) // 1e30
	got := fixedpoint.MulDiv(a, a, a)
	if got.Cmp(a) != 0 {
		t.Errorf("got %s, want %s", got, a)
	}
}

func TestMulDiv_DoesNotMutateInputs(t *testing.T) {
	a := big.NewInt(15)
	b := big.NewInt(4)
	d := big.NewInt(2)
	fixedpoint.MulDiv(a, b, d)
	if a.Int64() != 15 || b.Int64() != 4 || d.Int64() != 2 {
		t.Errorf("inputs mutated: a=%s b=%s d=%s", a, b, d)
	}
}

func TestFeedDenom(t *testing.T) {
	want, _ := new(big.Int).SetString("100000000", 10)
	if got := fixedpoint.FeedDenom(8); got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestPrecisionConstants(t *testing.T) {
	want, _ := new(big.Int).SetString("1000000000000000000", 10)
	if fixedpoint.Precision.Cmp(want) != 0 {
		t.Errorf("Precision: got %s, want 1e18", fixedpoint.Precision)
	}

	wantFeed, _ := new(big.Int).SetString("10000000000", 10)
	if fixedpoint.FeedPrecision.Cmp(wantFeed) != 0 {
		t.Errorf("FeedPrecision: got %s, want 1e10", fixedpoint.FeedPrecision)
	}
}

func TestMaxUint256(t *testing.T) {
	if fixedpoint.MaxUint256.BitLen() != 256 {
		t.Errorf("MaxUint256 bit length: got %d, want 256", fixedpoint.MaxUint256.BitLen())
	}
	plusOne := new(big.Int).Add(fixedpoint.MaxUint256, big.NewInt(1))
	if plusOne.BitLen() != 257 {
		t.Error("MaxUint256+1 should need 257 bits")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := big.NewInt(42)
	c := fixedpoint.Clone(orig)
	c.SetInt64(99)
	if orig.Int64() != 42 {
		t.Error("mutating clone affected original")
	}
}

func TestSignHelpers(t *testing.T) {
	if !fixedpoint.IsZero(nil) {
		t.Error("nil should be zero")
	}
	if !fixedpoint.IsZero(big.NewInt(0)) {
		t.Error("0 should be zero")
	}
	if fixedpoint.IsPositive(big.NewInt(0)) {
		t.Error("0 is not positive")
	}
	if fixedpoint.IsPositive(big.NewInt(-5)) {
		t.Error("-5 is not positive")
	}
	if !fixedpoint.IsPositive(big.NewInt(1)) {
		t.Error("1 is positive")
	}
}
