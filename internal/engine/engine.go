// Package engine is the collateralized-debt facade: users deposit approved
// collateral, mint the USD-pegged stable unit against it, and every
// committed state change leaves the account at or above the minimum health
// factor. Operations are serialized by a single mutex and commit
// all-or-nothing: checks run against the staged post-state before any
// external effect, and a failed external effect unwinds what was already
// applied. Each call pins one price per feed at entry, so its checks and
// conversions cannot disagree with each other under a moving feed.
package engine

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"StableVault/internal/observability"
	"StableVault/internal/oracle"
	"StableVault/internal/position"
	"StableVault/internal/registry"
	"StableVault/internal/solvency"
	"StableVault/internal/token"
	"StableVault/internal/valuation"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config wires the engine's collaborators.
type Config struct {
	Registry *registry.Registry
	Prices   oracle.PriceSource
	Ledger   token.StableLedger
	Tokens   map[string]token.Token // one per registered collateral asset
	Params   Params
	Logger   zerolog.Logger
	Metrics  *observability.Metrics // optional
	Sink     OperationSink          // optional
	Now      func() time.Time       // optional, defaults to time.Now
}

// Engine composes the registry, position store, valuation and solvency
// engines behind deposit/mint/burn/redeem/liquidate entry points.
type Engine struct {
	mu sync.Mutex

	registry  *registry.Registry
	positions *position.Store
	prices    oracle.PriceSource
	valuation *valuation.Engine
	solvency  *solvency.Engine
	ledger    token.StableLedger
	tokens    map[string]token.Token
	params    Params

	// custody is the engine's own account on the collateral tokens;
	// deposited collateral sits here until redeemed or seized.
	custody uuid.UUID

	log     zerolog.Logger
	metrics *observability.Metrics
	sink    OperationSink
	now     func() time.Time
}

// New validates the wiring and constructs an engine. Every registered
// collateral asset must have a token binding.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("engine requires a collateral registry")
	}
	if cfg.Prices == nil {
		return nil, fmt.Errorf("engine requires a price source")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("engine requires a stable-unit ledger")
	}
	for _, sym := range cfg.Registry.Symbols() {
		if _, ok := cfg.Tokens[sym]; !ok {
			return nil, fmt.Errorf("no token binding for collateral asset %s", sym)
		}
	}
	if cfg.Params.MinHealthFactor == nil || cfg.Params.MinHealthFactor.Sign() <= 0 {
		return nil, fmt.Errorf("minimum health factor must be positive")
	}
	if cfg.Params.LiquidationPrecision <= 0 || cfg.Params.LiquidationThreshold <= 0 {
		return nil, fmt.Errorf("liquidation threshold and precision must be positive")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		registry:  cfg.Registry,
		positions: position.NewStore(),
		prices:    cfg.Prices,
		valuation: valuation.NewEngine(cfg.Registry, cfg.Prices),
		solvency: solvency.NewEngine(
			cfg.Params.LiquidationThreshold,
			cfg.Params.LiquidationPrecision,
			cfg.Params.MinHealthFactor,
		),
		ledger:  cfg.Ledger,
		tokens:  cfg.Tokens,
		params:  cfg.Params.clone(),
		custody: uuid.New(),
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		sink:    cfg.Sink,
		now:     now,
	}, nil
}

// DepositCollateral transfers amount of asset from user into engine custody
// and credits the position. Deposits can only improve solvency, so no
// health check runs.
func (e *Engine) DepositCollateral(user uuid.UUID, asset string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyOp(OpDeposit, func() error {
		return e.depositLocked(user, asset, amount)
	})
}

func (e *Engine) depositLocked(user uuid.UUID, asset string, amount *big.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	tok, ok := e.tokens[asset]
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrUnknownAsset, asset)
	}

	// External transfer first: if it fails, no accounting has happened.
	if err := tok.TransferFrom(user, e.custody, amount); err != nil {
		return err
	}
	e.positions.AddCollateral(user, asset, amount)

	e.log.Debug().
		Stringer("user", user).
		Str("asset", asset).
		Str("amount", amount.String()).
		Msg("collateral deposited")

	e.record(OperationRecord{
		Kind:         OpDeposit,
		User:         user,
		Asset:        asset,
		Amount:       new(big.Int).Set(amount),
		DebtDelta:    new(big.Int),
		HealthFactor: e.healthFactorOrMax(user),
	})
	return nil
}

// MintStable issues amount stable units against user's collateral. The debt
// increment is rolled back if the post-state health factor is below minimum
// or the external mint fails.
func (e *Engine) MintStable(user uuid.UUID, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyOp(OpMint, func() error {
		return e.mintLocked(user, amount)
	})
}

func (e *Engine) mintLocked(user uuid.UUID, amount *big.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}

	e.positions.AddDebt(user, amount)

	if err := e.assertHealthyLocked(user); err != nil {
		if rb := e.positions.SubDebt(user, amount); rb != nil {
			panic(fmt.Sprintf("FATAL: mint rollback failed: %v", rb))
		}
		if e.metrics != nil {
			e.metrics.HealthCheckFailures.WithLabelValues(string(OpMint)).Inc()
		}
		return err
	}

	if err := e.ledger.Mint(user, amount); err != nil {
		if rb := e.positions.SubDebt(user, amount); rb != nil {
			panic(fmt.Sprintf("FATAL: mint rollback failed: %v", rb))
		}
		return err
	}

	e.log.Debug().
		Stringer("user", user).
		Str("amount", amount.String()).
		Msg("stable units minted")

	e.record(OperationRecord{
		Kind:         OpMint,
		User:         user,
		Amount:       new(big.Int).Set(amount),
		DebtDelta:    new(big.Int).Set(amount),
		HealthFactor: e.healthFactorOrMax(user),
	})
	return nil
}

// DepositCollateralAndMint is the composite deposit-then-mint with a single
// commit point: a failed mint unwinds the deposit.
func (e *Engine) DepositCollateralAndMint(user uuid.UUID, asset string, collateralAmount, mintAmount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyOp(OpMint, func() error {
		if err := e.depositLocked(user, asset, collateralAmount); err != nil {
			return err
		}
		if err := e.mintLocked(user, mintAmount); err != nil {
			e.unwindDeposit(user, asset, collateralAmount)
			return err
		}
		return nil
	})
}

func (e *Engine) unwindDeposit(user uuid.UUID, asset string, amount *big.Int) {
	if err := e.positions.SubCollateral(user, asset, amount); err != nil {
		panic(fmt.Sprintf("FATAL: deposit unwind failed: %v", err))
	}
	if err := e.tokens[asset].TransferFrom(e.custody, user, amount); err != nil {
		panic(fmt.Sprintf("FATAL: deposit unwind transfer failed: %v", err))
	}
}

// RedeemCollateral withdraws amount of asset from user's position to the
// `to` account. The caller's post-state health factor is asserted before
// the external transfer commits.
func (e *Engine) RedeemCollateral(user, to uuid.UUID, asset string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyOp(OpRedeem, func() error {
		return e.redeemLocked(user, to, asset, amount, true)
	})
}

func (e *Engine) redeemLocked(user, to uuid.UUID, asset string, amount *big.Int, assertHealth bool) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	tok, ok := e.tokens[asset]
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrUnknownAsset, asset)
	}

	if err := e.positions.SubCollateral(user, asset, amount); err != nil {
		return err
	}

	if assertHealth {
		if err := e.assertHealthyLocked(user); err != nil {
			e.positions.AddCollateral(user, asset, amount)
			if e.metrics != nil {
				e.metrics.HealthCheckFailures.WithLabelValues(string(OpRedeem)).Inc()
			}
			return err
		}
	}

	if err := tok.TransferFrom(e.custody, to, amount); err != nil {
		e.positions.AddCollateral(user, asset, amount)
		return err
	}

	e.log.Debug().
		Stringer("user", user).
		Stringer("to", to).
		Str("asset", asset).
		Str("amount", amount.String()).
		Msg("collateral redeemed")

	e.record(OperationRecord{
		Kind:         OpRedeem,
		User:         user,
		Counterparty: to,
		Asset:        asset,
		Amount:       new(big.Int).Set(amount),
		DebtDelta:    new(big.Int),
		HealthFactor: e.healthFactorOrMax(user),
	})
	return nil
}

// BurnStable retires amount of onBehalfOf's debt by burning payer's stable
// units. Burning can only improve the debtor's solvency, so no health
// check runs.
func (e *Engine) BurnStable(payer, onBehalfOf uuid.UUID, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyOp(OpBurn, func() error {
		return e.burnLocked(payer, onBehalfOf, amount)
	})
}

func (e *Engine) burnLocked(payer, onBehalfOf uuid.UUID, amount *big.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}

	if err := e.positions.SubDebt(onBehalfOf, amount); err != nil {
		return err
	}

	if err := e.ledger.Burn(payer, amount); err != nil {
		e.positions.AddDebt(onBehalfOf, amount)
		return err
	}

	e.log.Debug().
		Stringer("payer", payer).
		Stringer("debtor", onBehalfOf).
		Str("amount", amount.String()).
		Msg("stable units burned")

	e.record(OperationRecord{
		Kind:         OpBurn,
		User:         onBehalfOf,
		Counterparty: payer,
		Amount:       new(big.Int).Set(amount),
		DebtDelta:    new(big.Int).Neg(amount),
		HealthFactor: e.healthFactorOrMax(onBehalfOf),
	})
	return nil
}

// RedeemCollateralForStable is the composite burn-then-redeem with a single
// commit point: a failed redeem re-mints and restores the burned debt.
func (e *Engine) RedeemCollateralForStable(user uuid.UUID, asset string, collateralAmount, burnAmount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyOp(OpRedeem, func() error {
		if err := e.burnLocked(user, user, burnAmount); err != nil {
			return err
		}
		if err := e.redeemLocked(user, user, asset, collateralAmount, true); err != nil {
			e.positions.AddDebt(user, burnAmount)
			if rb := e.ledger.Mint(user, burnAmount); rb != nil {
				panic(fmt.Sprintf("FATAL: burn unwind failed: %v", rb))
			}
			return err
		}
		return nil
	})
}

// assertHealthyLocked recomputes the user's health factor from current
// state and fails when it is below the minimum.
func (e *Engine) assertHealthyLocked(user uuid.UUID) error {
	hf, err := e.healthFactorLocked(user)
	if err != nil {
		return err
	}
	return e.solvency.Check(hf)
}

func (e *Engine) healthFactorLocked(user uuid.UUID) (*big.Int, error) {
	collateralUsd, err := e.valuation.TotalCollateralValueUsd(user, e.positions)
	if err != nil {
		return nil, err
	}
	return e.solvency.HealthFactor(e.positions.DebtOf(user), collateralUsd), nil
}

// healthFactorOrMax is for journal records only: a pricing failure after
// commit must not fail the operation, so it degrades to the zero-debt
// sentinel rather than erroring.
func (e *Engine) healthFactorOrMax(user uuid.UUID) *big.Int {
	hf, err := e.healthFactorLocked(user)
	if err != nil {
		return e.solvency.HealthFactor(new(big.Int), new(big.Int))
	}
	return hf
}

// pinPricesLocked rebinds valuation to a snapshot of the price source, so
// every read within the current call observes one quote per feed even while
// the feed subscriber writes concurrently. Callers hold the engine mutex.
func (e *Engine) pinPricesLocked() {
	e.valuation = valuation.NewEngine(e.registry, oracle.NewSnapshot(e.prices))
}

// applyOp wraps an operation with a pinned price view plus duration and
// outcome metrics.
func (e *Engine) applyOp(kind OpKind, fn func() error) error {
	e.pinPricesLocked()
	start := e.now()
	err := fn()

	if e.metrics != nil {
		if err != nil {
			e.metrics.OpsRejected.WithLabelValues(string(kind), rejectReason(err)).Inc()
		} else {
			e.metrics.OpsApplied.WithLabelValues(string(kind)).Inc()
			e.metrics.OpDuration.WithLabelValues(string(kind)).Observe(e.now().Sub(start).Seconds())
		}
	}
	return err
}

func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	return nil
}
