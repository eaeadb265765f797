package engine

import (
	"fmt"
	"math/big"

	"StableVault/internal/fixedpoint"
	"StableVault/internal/position"
	"StableVault/internal/registry"

	"github.com/google/uuid"
)

// Liquidate lets a third party close part of an under-collateralized
// position: the liquidator's stable units cover debtToCover of the
// target's debt and the liquidator receives the USD-equivalent collateral
// plus the liquidation bonus, drawn only from the named asset.
//
// Every check runs against the staged post-state before any effect is
// applied, so a rejected liquidation leaves no trace. The commit sequence
// is burn, debt decrement, collateral decrement, collateral transfer; a
// failed transfer unwinds the first three.
func (e *Engine) Liquidate(liquidator, target uuid.UUID, asset string, debtToCover *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyOp(OpLiquidation, func() error {
		err := e.liquidateLocked(liquidator, target, asset, debtToCover)
		if e.metrics != nil {
			if err != nil {
				e.metrics.LiquidationsRejected.WithLabelValues(rejectReason(err)).Inc()
			} else {
				e.metrics.LiquidationsApplied.Inc()
			}
		}
		return err
	})
}

func (e *Engine) liquidateLocked(liquidator, target uuid.UUID, asset string, debtToCover *big.Int) error {
	if err := requirePositive(debtToCover); err != nil {
		return err
	}
	tok, ok := e.tokens[asset]
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrUnknownAsset, asset)
	}

	startingHF, err := e.healthFactorLocked(target)
	if err != nil {
		return err
	}
	if startingHF.Cmp(e.params.MinHealthFactor) >= 0 {
		return fmt.Errorf("%w: %s", ErrHealthFactorOk, startingHF)
	}

	// Collateral owed: USD-equivalent of the covered debt plus the bonus,
	// all from the named asset. No fallback to the target's other
	// collateral when this asset's balance is short.
	tokenFromDebt, err := e.valuation.TokenAmountFromUsd(asset, debtToCover)
	if err != nil {
		return err
	}
	bonus := fixedpoint.MulDiv(
		tokenFromDebt,
		big.NewInt(e.params.LiquidationBonus),
		big.NewInt(e.params.LiquidationPrecision),
	)
	seized := new(big.Int).Add(tokenFromDebt, bonus)

	// Staged preconditions: both decrements must be possible.
	held := e.positions.CollateralOf(target, asset)
	if held.Cmp(seized) < 0 {
		return fmt.Errorf("target holds %s %s, liquidation needs %s: %w",
			held, asset, seized, position.ErrInsufficientCollateral)
	}
	targetDebt := e.positions.DebtOf(target)
	if targetDebt.Cmp(debtToCover) < 0 {
		return fmt.Errorf("target owes %s, cover is %s: %w",
			targetDebt, debtToCover, position.ErrInsufficientDebt)
	}

	// Staged postcondition: the target's health factor must strictly
	// improve. Computed on hypothetical post-state before committing.
	// seizedUsd floors separately from the per-balance valuations, so the
	// staged figure can sit one quotient unit below the true post-commit
	// value; the error is in the rejecting direction.
	seizedUsd, err := e.valuation.UsdValue(asset, seized)
	if err != nil {
		return err
	}
	collateralUsd, err := e.valuation.TotalCollateralValueUsd(target, e.positions)
	if err != nil {
		return err
	}
	endCollateralUsd := new(big.Int).Sub(collateralUsd, seizedUsd)
	if endCollateralUsd.Sign() < 0 {
		endCollateralUsd.SetInt64(0)
	}
	endDebt := new(big.Int).Sub(targetDebt, debtToCover)
	endingHF := e.solvency.HealthFactor(endDebt, endCollateralUsd)
	if endingHF.Cmp(startingHF) <= 0 {
		return fmt.Errorf("%w: %s -> %s", ErrHealthFactorNotImproved, startingHF, endingHF)
	}

	// Staged postcondition: the liquidator's own position must be healthy
	// after the call. A distinct liquidator's collateral and debt are
	// untouched, so their pre-state stands in for post-state; a
	// self-liquidation is judged on the target's staged ending state.
	if liquidator == target {
		if err := e.solvency.Check(endingHF); err != nil {
			return err
		}
	} else if err := e.assertHealthyLocked(liquidator); err != nil {
		return err
	}

	// Commit. The burn is the only step that can legitimately fail
	// (liquidator short of stable units) and it runs first.
	if err := e.ledger.Burn(liquidator, debtToCover); err != nil {
		return err
	}
	if err := e.positions.SubDebt(target, debtToCover); err != nil {
		panic(fmt.Sprintf("FATAL: liquidation debt decrement failed after precheck: %v", err))
	}
	if err := e.positions.SubCollateral(target, asset, seized); err != nil {
		panic(fmt.Sprintf("FATAL: liquidation collateral decrement failed after precheck: %v", err))
	}
	if err := tok.TransferFrom(e.custody, liquidator, seized); err != nil {
		// Unwind: restore the position and re-issue the burned units.
		e.positions.AddCollateral(target, asset, seized)
		e.positions.AddDebt(target, debtToCover)
		if rb := e.ledger.Mint(liquidator, debtToCover); rb != nil {
			panic(fmt.Sprintf("FATAL: liquidation unwind mint failed: %v", rb))
		}
		return err
	}

	e.log.Info().
		Stringer("liquidator", liquidator).
		Stringer("target", target).
		Str("asset", asset).
		Str("debt_covered", debtToCover.String()).
		Str("collateral_seized", seized.String()).
		Str("health_factor_before", startingHF.String()).
		Str("health_factor_after", endingHF.String()).
		Msg("position liquidated")

	e.record(OperationRecord{
		Kind:         OpLiquidation,
		User:         target,
		Counterparty: liquidator,
		Asset:        asset,
		Amount:       seized,
		DebtDelta:    new(big.Int).Neg(debtToCover),
		HealthFactor: endingHF,
	})
	return nil
}
