package engine_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"StableVault/internal/engine"
	"StableVault/internal/oracle"
	"StableVault/internal/position"
	"StableVault/internal/registry"
	"StableVault/internal/solvency"
	"StableVault/internal/token"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// setupUnderwater puts target at the exact mint limit (10 WETH, $10000
// debt) and then drops ETH to $1800, leaving HF at 0.9. The liquidator is
// funded with 1 WBTC and holds $5000 of stable units.
func setupUnderwater(t *testing.T, v *vault) (target, liquidator uuid.UUID) {
	t.Helper()
	target = uuid.New()
	liquidator = uuid.New()

	v.fund(t, target, "WETH", e18(10))
	if err := v.engine.MintStable(target, e18(10_000)); err != nil {
		t.Fatalf("mint target: %v", err)
	}

	v.fund(t, liquidator, "WBTC", e18(1))
	if err := v.engine.MintStable(liquidator, e18(5000)); err != nil {
		t.Fatalf("mint liquidator: %v", err)
	}

	v.prices.Put("feed:eth-usd", e8(1800), 8, time.Now())
	return target, liquidator
}

func TestLiquidate(t *testing.T) {
	v := newVault(t)
	target, liquidator := setupUnderwater(t, v)

	startHF, err := v.engine.HealthFactor(target)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	// $18000 collateral counts as $9000 against $10000 debt.
	if want := big.NewInt(9e17); startHF.Cmp(want) != 0 {
		t.Fatalf("starting HF: got %s, want %s", startHF, want)
	}

	if err := v.engine.Liquidate(liquidator, target, "WETH", e18(5000)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// $5000 of debt at $1800/WETH is 2.77..7 WETH; with the 10% bonus the
	// liquidator is owed 3055555555555555554 wei of WETH (floored twice).
	seized, _ := new(big.Int).SetString("3055555555555555554", 10)
	if got := v.weth.BalanceOf(liquidator); got.Cmp(seized) != 0 {
		t.Errorf("liquidator WETH: got %s, want %s", got, seized)
	}
	wantLeft := new(big.Int).Sub(e18(10), seized)
	if got := v.engine.CollateralBalance(target, "WETH"); got.Cmp(wantLeft) != 0 {
		t.Errorf("target WETH: got %s, want %s", got, wantLeft)
	}

	sum, err := v.engine.Account(target)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if sum.TotalDebt.Cmp(e18(5000)) != 0 {
		t.Errorf("target debt: got %s, want %s", sum.TotalDebt, e18(5000))
	}
	if sum.HealthFactor.Cmp(startHF) <= 0 {
		t.Errorf("HF did not improve: %s -> %s", startHF, sum.HealthFactor)
	}

	if got := v.ledger.BalanceOf(liquidator); got.Sign() != 0 {
		t.Errorf("liquidator stable balance: got %s, want 0", got)
	}

	last := v.sink.ops[len(v.sink.ops)-1]
	if last.Kind != engine.OpLiquidation {
		t.Fatalf("last journal record: got %s, want %s", last.Kind, engine.OpLiquidation)
	}
	if last.User != target || last.Counterparty != liquidator {
		t.Errorf("journal parties: user %s counterparty %s", last.User, last.Counterparty)
	}
	if last.DebtDelta.Cmp(new(big.Int).Neg(e18(5000))) != 0 {
		t.Errorf("journal debt delta: got %s", last.DebtDelta)
	}
}

func TestLiquidate_HealthyTarget(t *testing.T) {
	v := newVault(t)
	target := uuid.New()
	liquidator := uuid.New()

	v.fund(t, target, "WETH", e18(10))
	if err := v.engine.MintStable(target, e18(5000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	err := v.engine.Liquidate(liquidator, target, "WETH", e18(1000))
	if !errors.Is(err, engine.ErrHealthFactorOk) {
		t.Errorf("got %v, want ErrHealthFactorOk", err)
	}
}

func TestLiquidate_ZeroAmount(t *testing.T) {
	v := newVault(t)
	target, liquidator := setupUnderwater(t, v)

	err := v.engine.Liquidate(liquidator, target, "WETH", big.NewInt(0))
	if !errors.Is(err, engine.ErrZeroAmount) {
		t.Errorf("got %v, want ErrZeroAmount", err)
	}
}

func TestLiquidate_UnknownAsset(t *testing.T) {
	v := newVault(t)
	target, liquidator := setupUnderwater(t, v)

	err := v.engine.Liquidate(liquidator, target, "DOGE", e18(100))
	if !errors.Is(err, registry.ErrUnknownAsset) {
		t.Errorf("got %v, want ErrUnknownAsset", err)
	}
}

func TestLiquidate_InsufficientCollateralInAsset(t *testing.T) {
	v := newVault(t)
	target, liquidator := setupUnderwater(t, v)

	// The target is short of WBTC; the covered debt's collateral must come
	// from the named asset alone, with no fallback to the WETH balance.
	err := v.engine.Liquidate(liquidator, target, "WBTC", e18(5000))
	if !errors.Is(err, position.ErrInsufficientCollateral) {
		t.Errorf("got %v, want ErrInsufficientCollateral", err)
	}
}

func TestLiquidate_CoverExceedsDebt(t *testing.T) {
	v := newVault(t)
	target, liquidator := setupUnderwater(t, v)

	err := v.engine.Liquidate(liquidator, target, "WETH", e18(10_001))
	if !errors.Is(err, position.ErrInsufficientDebt) {
		t.Errorf("got %v, want ErrInsufficientDebt", err)
	}
}

func TestLiquidate_DeepUnderwaterDoesNotImprove(t *testing.T) {
	v := newVault(t)
	target, liquidator := setupUnderwater(t, v)

	// At $1000/WETH the collateral is worth 1.0x the debt, below the 1.1x
	// the bonus requires for the health factor to move upward.
	v.prices.Put("feed:eth-usd", e8(1000), 8, time.Now())

	err := v.engine.Liquidate(liquidator, target, "WETH", e18(1000))
	if !errors.Is(err, engine.ErrHealthFactorNotImproved) {
		t.Errorf("got %v, want ErrHealthFactorNotImproved", err)
	}

	// Nothing may have moved.
	if got := v.engine.CollateralBalance(target, "WETH"); got.Cmp(e18(10)) != 0 {
		t.Errorf("target collateral: got %s, want %s", got, e18(10))
	}
	if got := v.ledger.BalanceOf(liquidator); got.Cmp(e18(5000)) != 0 {
		t.Errorf("liquidator stable balance: got %s, want %s", got, e18(5000))
	}
}

func TestLiquidate_LiquidatorShortOfStable(t *testing.T) {
	v := newVault(t)
	target, _ := setupUnderwater(t, v)

	// A liquidator with collateral headroom but no stable units cannot
	// cover any debt: the burn fails and the target is untouched.
	broke := uuid.New()
	v.fund(t, broke, "WBTC", e18(1))

	err := v.engine.Liquidate(broke, target, "WETH", e18(1000))
	if !errors.Is(err, token.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}
	sum, _ := v.engine.Account(target)
	if sum.TotalDebt.Cmp(e18(10_000)) != 0 {
		t.Errorf("target debt: got %s, want %s", sum.TotalDebt, e18(10_000))
	}
}

func TestLiquidate_UnhealthyLiquidatorRejected(t *testing.T) {
	v := newVault(t)
	target := uuid.New()
	liquidator := uuid.New()

	// Both accounts mint WETH-backed debt at the limit; the price drop
	// puts both under water. An insolvent liquidator may not participate.
	v.fund(t, target, "WETH", e18(10))
	if err := v.engine.MintStable(target, e18(10_000)); err != nil {
		t.Fatalf("mint target: %v", err)
	}
	v.fund(t, liquidator, "WETH", e18(10))
	if err := v.engine.MintStable(liquidator, e18(10_000)); err != nil {
		t.Fatalf("mint liquidator: %v", err)
	}
	v.prices.Put("feed:eth-usd", e8(1800), 8, time.Now())

	err := v.engine.Liquidate(liquidator, target, "WETH", e18(5000))
	var brokeErr *solvency.BreaksHealthFactorError
	if !errors.As(err, &brokeErr) {
		t.Fatalf("got %v, want BreaksHealthFactorError", err)
	}
}

func TestLiquidate_TransferFailureUnwinds(t *testing.T) {
	reg, err := registry.New(
		[]string{"WETH", "WBTC"},
		[]string{"feed:eth-usd", "feed:btc-usd"},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	base := newVault(t)
	failing := &token.FailingToken{Inner: base.weth}
	eng, err := engine.New(engine.Config{
		Registry: reg,
		Prices:   base.prices,
		Ledger:   base.ledger,
		Tokens:   map[string]token.Token{"WETH": failing, "WBTC": base.wbtc},
		Params:   engine.DefaultParams(),
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	target := uuid.New()
	liquidator := uuid.New()

	base.weth.Credit(target, e18(10))
	if err := eng.DepositCollateral(target, "WETH", e18(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := eng.MintStable(target, e18(10_000)); err != nil {
		t.Fatalf("mint target: %v", err)
	}
	base.wbtc.Credit(liquidator, e18(1))
	if err := eng.DepositCollateral(liquidator, "WBTC", e18(1)); err != nil {
		t.Fatalf("deposit liquidator: %v", err)
	}
	if err := eng.MintStable(liquidator, e18(5000)); err != nil {
		t.Fatalf("mint liquidator: %v", err)
	}
	base.prices.Put("feed:eth-usd", e8(1800), 8, time.Now())

	failing.FailNext = 1
	err = eng.Liquidate(liquidator, target, "WETH", e18(5000))
	if !errors.Is(err, token.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}

	// Full unwind: target position and liquidator stable units restored.
	sum, _ := eng.Account(target)
	if sum.TotalDebt.Cmp(e18(10_000)) != 0 {
		t.Errorf("target debt: got %s, want %s", sum.TotalDebt, e18(10_000))
	}
	if got := eng.CollateralBalance(target, "WETH"); got.Cmp(e18(10)) != 0 {
		t.Errorf("target collateral: got %s, want %s", got, e18(10))
	}
	if got := base.ledger.BalanceOf(liquidator); got.Cmp(e18(5000)) != 0 {
		t.Errorf("liquidator stable balance: got %s, want %s", got, e18(5000))
	}
}

// shiftingSource serves quotes for one feed from its own state, passing
// every other feed through. Arm schedules a replacement quote that takes
// effect after the next read, modelling a feed write landing mid-call.
type shiftingSource struct {
	inner oracle.PriceSource
	feed  string
	quote oracle.Quote
	next  *oracle.Quote
	reads int
}

func (s *shiftingSource) LatestPrice(feedID string) (oracle.Quote, error) {
	if feedID != s.feed {
		return s.inner.LatestPrice(feedID)
	}
	s.reads++
	q := s.quote
	if s.next != nil {
		s.quote = *s.next
		s.next = nil
	}
	return q, nil
}

func (s *shiftingSource) Arm(current, after oracle.Quote) {
	s.quote = current
	s.next = &after
}

func TestLiquidate_PinsOnePricePerCall(t *testing.T) {
	reg, err := registry.New(
		[]string{"WETH", "WBTC"},
		[]string{"feed:eth-usd", "feed:btc-usd"},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	base := oracle.NewCache()
	base.Put("feed:btc-usd", e8(30_000), 8, time.Now())
	src := &shiftingSource{
		inner: base,
		feed:  "feed:eth-usd",
		quote: oracle.Quote{Price: e8(2000), Decimals: 8, UpdatedAt: time.Now()},
	}

	ledger := token.NewMemoryLedger()
	weth := token.NewMemoryToken("WETH")
	wbtc := token.NewMemoryToken("WBTC")
	eng, err := engine.New(engine.Config{
		Registry: reg,
		Prices:   src,
		Ledger:   ledger,
		Tokens:   map[string]token.Token{"WETH": weth, "WBTC": wbtc},
		Params:   engine.DefaultParams(),
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	target := uuid.New()
	liquidator := uuid.New()

	weth.Credit(target, e18(10))
	if err := eng.DepositCollateral(target, "WETH", e18(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := eng.MintStable(target, e18(10_000)); err != nil {
		t.Fatalf("mint target: %v", err)
	}
	wbtc.Credit(liquidator, e18(1))
	if err := eng.DepositCollateral(liquidator, "WBTC", e18(1)); err != nil {
		t.Fatalf("deposit liquidator: %v", err)
	}
	if err := eng.MintStable(liquidator, e18(5000)); err != nil {
		t.Fatalf("mint liquidator: %v", err)
	}

	// The call's first ETH read sees $1800; a concurrent write flips the
	// feed to $2500 for every read after it. All valuations inside the
	// call must use the $1800 figure the call started from.
	src.Arm(
		oracle.Quote{Price: e8(1800), Decimals: 8, UpdatedAt: time.Now()},
		oracle.Quote{Price: e8(2500), Decimals: 8, UpdatedAt: time.Now()},
	)
	readsBefore := src.reads

	if err := eng.Liquidate(liquidator, target, "WETH", e18(5000)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// One underlying read per feed per call.
	if got := src.reads - readsBefore; got != 1 {
		t.Errorf("ETH feed reads during call: got %d, want 1", got)
	}

	// Seizure at $1800/WETH: the $2500 figure would yield 2200000000000000000.
	seized, _ := new(big.Int).SetString("3055555555555555554", 10)
	if got := weth.BalanceOf(liquidator); got.Cmp(seized) != 0 {
		t.Errorf("liquidator WETH: got %s, want %s", got, seized)
	}
	sum, err := eng.Account(target)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if sum.TotalDebt.Cmp(e18(5000)) != 0 {
		t.Errorf("target debt: got %s, want %s", sum.TotalDebt, e18(5000))
	}
}

func TestLiquidate_SelfLiquidationRecovers(t *testing.T) {
	v := newVault(t)
	user := uuid.New()

	v.fund(t, user, "WETH", e18(10))
	if err := v.engine.MintStable(user, e18(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	v.prices.Put("feed:eth-usd", e8(1800), 8, time.Now())

	// Covering half their own debt with their own stable units lifts the
	// position from 0.9 to 1.25, so the ending-state check passes even
	// though the account was under water going in.
	if err := v.engine.Liquidate(user, user, "WETH", e18(5000)); err != nil {
		t.Fatalf("self-liquidate: %v", err)
	}

	sum, err := v.engine.Account(user)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if sum.TotalDebt.Cmp(e18(5000)) != 0 {
		t.Errorf("debt: got %s, want %s", sum.TotalDebt, e18(5000))
	}
	if sum.HealthFactor.Cmp(v.engine.MinHealthFactor()) < 0 {
		t.Errorf("HF still below minimum: %s", sum.HealthFactor)
	}
	if got := v.ledger.BalanceOf(user); got.Cmp(e18(5000)) != 0 {
		t.Errorf("stable balance: got %s, want %s", got, e18(5000))
	}
	seized, _ := new(big.Int).SetString("3055555555555555554", 10)
	if got := v.weth.BalanceOf(user); got.Cmp(seized) != 0 {
		t.Errorf("returned WETH: got %s, want %s", got, seized)
	}
}

func TestLiquidate_SelfLiquidationStillUnderwater(t *testing.T) {
	v := newVault(t)
	user := uuid.New()

	v.fund(t, user, "WETH", e18(10))
	if err := v.engine.MintStable(user, e18(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	// At $1300 covering $5000 improves the position to roughly 0.75,
	// still below the minimum: the ending-state check rejects it.
	v.prices.Put("feed:eth-usd", e8(1300), 8, time.Now())

	err := v.engine.Liquidate(user, user, "WETH", e18(5000))
	var brokeErr *solvency.BreaksHealthFactorError
	if !errors.As(err, &brokeErr) {
		t.Fatalf("got %v, want BreaksHealthFactorError", err)
	}

	// Nothing may have moved.
	if got := v.engine.CollateralBalance(user, "WETH"); got.Cmp(e18(10)) != 0 {
		t.Errorf("collateral: got %s, want %s", got, e18(10))
	}
	if got := v.ledger.BalanceOf(user); got.Cmp(e18(10_000)) != 0 {
		t.Errorf("stable balance: got %s, want %s", got, e18(10_000))
	}
}
